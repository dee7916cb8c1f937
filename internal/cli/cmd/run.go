package cmd

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/jvorob/cse502/internal/axi"
	"github.com/jvorob/cse502/internal/cli"
	"github.com/jvorob/cse502/internal/harness"
	"github.com/jvorob/cse502/internal/log"
)

func Run() cli.Command {
	return &runner{log: log.DefaultLogger()}
}

type runner struct {
	image  string
	cycles int

	log *log.Logger
}

func (runner) Description() string {
	return "run an image against the bus coordinator"
}

func (runner) Usage(out io.Writer) error {
	_, err := fmt.Fprintln(out, `run -image file.elf [-cycles N]

Loads an image, builds a Harness from the HAVETLB/FULLSYSTEM environment, and
drives it one clock at a time, with no core attached, until the cycle budget is
exhausted or the harness is marked finished.`)

	return err
}

func (r *runner) FlagSet() *cli.FlagSet {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	fs.StringVar(&r.image, "image", "", "path to the image to load")
	fs.IntVar(&r.cycles, "cycles", 1000, "clock budget, in full clocks")

	return fs
}

// Run builds a harness from the image named by -image and free-runs the bus coordinator:
// no core is attached, so every clock presents no pending AR/AW/W and simply drains
// whatever the harness's own devices and DRAM model produce.
func (r *runner) Run(_ context.Context, args []string, stdout io.Writer, logger *log.Logger) int {
	if r.image == "" && len(args) > 0 {
		r.image = args[0]
	}

	if r.image == "" {
		logger.Error("run: -image is required")
		return 1
	}

	file, err := os.Open(r.image)
	if err != nil {
		logger.Error("run: opening image", "err", err)
		return 1
	}
	defer file.Close()

	cfg, err := harness.ConfigFromEnv()
	if err != nil {
		logger.Error("run: configuring harness", "err", err)
		return 1
	}

	h, err := harness.New(cfg, file, 50, 16)
	if err != nil {
		logger.Error("run: building harness", "err", err)
		return 1
	}
	defer h.Close()

	logger.Info("Starting harness", "image", r.image, "cycles", r.cycles)

	clk := 0
	for ; clk < r.cycles*2; clk++ {
		h.Tick(clk, axi.Inputs{})

		if done, code := h.Finished(); done {
			logger.Info("Harness finished", "code", code, "clock", clk)
			fmt.Fprintln(stdout, h.String())

			return code
		}
	}

	logger.Warn("Cycle budget exhausted", "cycles", r.cycles)
	fmt.Fprintln(stdout, h.String())

	return 0
}
