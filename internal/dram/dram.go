// Package dram defines the external-collaborator contract the bus coordinator submits
// transactions to, and a reference fixed-latency implementation. The real DRAM timing model
// this harness was distilled from is DRAMSim2, a separate cycle-accurate C++ library; matching
// its timing is explicitly out of scope, but its external API shape — willAcceptTransaction,
// addTransaction, update, and a pair of completion callbacks — is worth keeping, since it is
// exactly the contract the bus coordinator needs to drive.
package dram

// Model is the bus coordinator's view of a DRAM timing model: whether it will currently accept
// a transaction for a given 64-byte line, submitting one, advancing it by one clock, and the
// two hooks the coordinator registers once to learn when a submitted transaction completes.
type Model interface {
	// WillAccept reports whether Submit would currently succeed for line.
	WillAccept(line uint64) bool

	// Submit enqueues a transaction for line and reports whether it was accepted. Callers
	// must check WillAccept (or the return value) before treating the transaction as
	// in-flight: a false return means nothing was queued.
	Submit(isWrite bool, line uint64) bool

	// Update advances the model by one clock, at the given cycle count, firing any
	// completion callbacks whose latency has elapsed.
	Update(cycle uint64)

	// OnReadComplete registers the callback fired when a submitted read completes. Only one
	// callback may be registered; a second call replaces the first.
	OnReadComplete(func(line uint64, cycle uint64))

	// OnWriteComplete registers the callback fired when a submitted write completes.
	OnWriteComplete(func(line uint64, cycle uint64))
}
