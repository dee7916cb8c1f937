package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jvorob/cse502/internal/cli"
	"github.com/jvorob/cse502/internal/loader"
	"github.com/jvorob/cse502/internal/log"
	"github.com/jvorob/cse502/internal/mem"
)

func Inspect() cli.Command {
	return &inspector{log: log.DefaultLogger()}
}

type inspector struct {
	ramsize uint64

	log *log.Logger
}

func (inspector) Description() string {
	return "print an image's entry point and memory layout"
}

func (inspector) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `inspect file.elf

Loads an ELF image into a scratch address space and prints its entry point,
highest mapped address and, if present, the TLS errno slot's offset. Does not
build a Harness or run anything; a read-only diagnostic akin to readelf -h.`)

	return err
}

func (ins *inspector) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("inspect", flag.ExitOnError)
	fs.Uint64Var(&ins.ramsize, "ramsize", 16<<20, "scratch address space size, in bytes")

	return fs
}

func (ins *inspector) Run(_ context.Context, args []string, stdout io.Writer, logger *log.Logger) int {
	if len(args) == 0 {
		logger.Error("inspect: an image path is required")
		return 1
	}

	file, err := os.Open(args[0])
	if err != nil {
		logger.Error("inspect: opening image", "err", err)
		return 1
	}
	defer file.Close()

	store, err := mem.NewStore(ins.ramsize, false, true)
	if err != nil {
		logger.Error("inspect: building scratch store", "err", err)
		return 1
	}
	defer store.Close()

	pt := mem.NewPageTable(store, store.Allocate())

	img, err := loader.LoadELF(store, pt, file)
	if err != nil {
		logger.Error("inspect: loading image", "err", err)
		return 1
	}

	fmt.Fprintf(stdout, "entry:       %#016x\n", img.Entry)
	fmt.Fprintf(stdout, "max address: %#016x\n", img.MaxAddr)

	if img.ErrnoOffset != nil {
		fmt.Fprintf(stdout, "errno slot:  %#016x\n", *img.ErrnoOffset)
	} else {
		fmt.Fprintln(stdout, "errno slot:  (none)")
	}

	return 0
}
