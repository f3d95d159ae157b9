package engine

import "time"

// sweepLoop runs cleanupExpiredTransactions on a fixed cadence until
// stopSweep is closed (spec §9 Open Question 4: the sweep must be
// scheduled, not merely touch-driven, or the table grows unbounded).
func (e *Engine) sweepLoop() {
	defer close(e.sweepDone)

	ticker := time.NewTicker(e.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			e.cleanupExpiredTransactions()
		case <-e.stopSweep:
			return
		}
	}
}

// cleanupExpiredTransactions drops every transaction whose wall-clock age
// exceeds its timeout. It never fails.
func (e *Engine) cleanupExpiredTransactions() {
	now := time.Now()

	e.txnMu.Lock()
	defer e.txnMu.Unlock()

	for id, txn := range e.txns {
		if txn.expired(now) {
			delete(e.txns, id)
		}
	}
}
