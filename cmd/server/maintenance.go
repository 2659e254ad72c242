package main

import (
	"context"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/vinodismyname/partnerlens/internal/service"
)

// cronLogger adapts zerolog to cron's logger interface.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}

// startMaintenance schedules snapshot pruning and idle dataset eviction.
func startMaintenance(ctx context.Context, spec string, svc *service.Service, logger zerolog.Logger) (*cron.Cron, error) {
	log := cronLogger{log: logger.With().Str("component", "maintenance").Logger()}
	sched := cron.New(cron.WithLogger(log), cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)))

	_, err := sched.AddFunc(spec, func() {
		pruned, evicted, err := svc.Maintain(ctx)
		if err != nil {
			log.log.Error().Err(err).Msg("maintenance failed")
			return
		}
		if pruned > 0 || evicted > 0 {
			log.log.Info().Int("pruned", pruned).Int("evicted", evicted).Msg("maintenance completed")
		}
	})
	if err != nil {
		return nil, err
	}
	sched.Start()
	return sched, nil
}
