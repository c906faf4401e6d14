package sweeper

import (
	"context"
	"log"
	"time"

	kdb "github.com/opst/trackfab/pkg/db"
	"github.com/opst/trackfab/pkg/loop/recurring"
)

// Task returns a recurring task which marks runs as failed when they
// have stayed non-terminal without updates for ttl or longer.
//
// The task value is the time when the last sweep started.
func Task(logger *log.Logger, dbRun kdb.RunInterface, ttl time.Duration) recurring.Task[time.Time] {
	return func(ctx context.Context, _ time.Time) (time.Time, bool, error) {
		now := time.Now()
		swept, err := dbRun.FailStale(ctx, now.Add(-ttl))
		if err != nil {
			logger.Printf("failed to sweep stale runs: %s", err)
			return now, false, err
		}
		for _, runId := range swept {
			logger.Printf("run %s is failed: not updated for %s", runId, ttl)
		}
		return now, 0 < len(swept), nil
	}
}
