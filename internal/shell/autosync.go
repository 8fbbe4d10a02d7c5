package shell

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// StartAutosync runs a silent sync on the cron schedule (e.g. "@every 1m").
// Ticks that land while the previous sync still runs are skipped. The
// returned function stops the schedule and waits for a running job.
func (s *Shell) StartAutosync(schedule string) (stop func(), err error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.syncTimeout)
		defer cancel()
		_, _ = s.Sync(ctx, Silent)
	}); err != nil {
		return nil, fmt.Errorf("autosync schedule %q: %w", schedule, err)
	}
	c.Start()
	s.log.Info("autosync started", zap.String("schedule", schedule))
	return func() { <-c.Stop().Done() }, nil
}
