package journal

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// maintenance periodically deletes entries past the retention window.
func (m *Module) maintenance() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.cfg.MaintenanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			m.prune(time.Now())
		}
	}
}

func (m *Module) prune(now time.Time) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	n, err := m.store.Prune(ctx, now.Add(-m.cfg.Retention))
	if err != nil {
		m.logger.Warn("failed to prune journal", zap.Error(err))
		return
	}
	if n > 0 {
		m.logger.Info("pruned journal entries", zap.Int64("count", n))
	}
}
