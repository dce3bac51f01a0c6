package assessment

import (
	"context"
	"log"
	"time"
)

// RunSweeper periodically abandons attempts that outlived their test's
// duration budget. It blocks until ctx is cancelled and is safe to restart;
// each pass is idempotent.
func RunSweeper(ctx context.Context, store Store, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			n, err := store.SweepAbandoned(ctx, now)
			if err != nil {
				log.Printf("abandon sweep: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("abandon sweep: marked %d attempts abandoned", n)
			}
		}
	}
}
