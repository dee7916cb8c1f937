package dram

// FixedLatencyModel is a reference Model: every accepted transaction completes on the first
// Update whose cycle is at least latencyCycles past the cycle of the first Update that saw it,
// with no row-buffer, refresh, or bank-conflict
// modeling whatsoever. It exists so the bus coordinator has something real to drive in tests
// and in the CLI's demo mode, not as a claim about actual DRAM timing.
type FixedLatencyModel struct {
	latency    uint64
	queueDepth int

	pending []pendingTxn

	onRead  func(line uint64, cycle uint64)
	onWrite func(line uint64, cycle uint64)
}

type pendingTxn struct {
	line    uint64
	isWrite bool
	dueAt   uint64
}

// NewFixedLatencyModel creates a model whose transactions complete latencyCycles after the
// first Update that sees them, refusing new transactions once queueDepth are outstanding.
func NewFixedLatencyModel(latencyCycles uint64, queueDepth int) *FixedLatencyModel {
	return &FixedLatencyModel{latency: latencyCycles, queueDepth: queueDepth}
}

func (m *FixedLatencyModel) WillAccept(line uint64) bool {
	return len(m.pending) < m.queueDepth
}

func (m *FixedLatencyModel) Submit(isWrite bool, line uint64) bool {
	if !m.WillAccept(line) {
		return false
	}

	m.pending = append(m.pending, pendingTxn{line: line, isWrite: isWrite})

	return true
}

// Update advances the model by one clock. dueAt is fixed relative to cycle the first time a
// transaction is seen, since submission itself carries no timestamp.
func (m *FixedLatencyModel) Update(cycle uint64) {
	remaining := m.pending[:0]

	for _, txn := range m.pending {
		if txn.dueAt == 0 {
			txn.dueAt = cycle + m.latency
		}

		if cycle >= txn.dueAt {
			if txn.isWrite {
				if m.onWrite != nil {
					m.onWrite(txn.line, cycle)
				}
			} else if m.onRead != nil {
				m.onRead(txn.line, cycle)
			}

			continue
		}

		remaining = append(remaining, txn)
	}

	m.pending = remaining
}

func (m *FixedLatencyModel) OnReadComplete(f func(line uint64, cycle uint64))  { m.onRead = f }
func (m *FixedLatencyModel) OnWriteComplete(f func(line uint64, cycle uint64)) { m.onWrite = f }
