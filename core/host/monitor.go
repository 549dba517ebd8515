package host

import (
	"context"
	"time"

	"github.com/pyropy/chunkloader/core/ledger"
)

// LedgerMonitor periodically logs how much storage and lamports the ledger holds.
type LedgerMonitor struct {
	store    *ledger.Store
	interval time.Duration
}

func NewLedgerMonitor(store *ledger.Store, interval time.Duration) *LedgerMonitor {
	return &LedgerMonitor{
		store:    store,
		interval: interval,
	}
}

// Start ticks every interval until ctx is cancelled.
func (m *LedgerMonitor) Start(ctx context.Context) {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := m.Report(ctx); err != nil {
				log.Errorw("monitor", "error", err)
			}
		case <-ctx.Done():
			log.Infow("shutdown", "status", "ledger monitor stopped")
			return
		}
	}
}

func (m *LedgerMonitor) Report(ctx context.Context) (ledger.Stats, error) {
	stats, err := m.store.Stats(ctx)
	if err != nil {
		return stats, err
	}

	log.Infow("monitor", "accounts", stats.Accounts, "dataBytes", stats.DataBytes, "lamports", stats.TotalLamports)
	return stats, nil
}
