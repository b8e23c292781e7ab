package db

import (
	"context"
	"log/slog"
	"time"

	"github.com/lojf/weatherbot/internal/models"
)

// Prune deletes journal rows older than retain and returns how many went.
func (j *Journal) Prune(ctx context.Context, retain time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retain)
	res := j.conn.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ProcessedUpdate{})
	return res.RowsAffected, res.Error
}

// StartPruneLoop prunes every interval until ctx is done. Telegram stops
// redelivering an update well within a day, so rows past retain only cost space.
func (j *Journal) StartPruneLoop(ctx context.Context, interval, retain time.Duration, log *slog.Logger) {
	if interval <= 0 || retain <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := j.Prune(ctx, retain)
				if err != nil {
					log.Warn("journal_prune_failed", "error", err.Error())
					continue
				}
				if n > 0 {
					log.Info("journal_pruned", "rows", n)
				}
			}
		}
	}()
}
