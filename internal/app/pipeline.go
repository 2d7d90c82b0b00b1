package service

import (
	"github.com/okian/pointsledger/internal/adapters/fetch"
	"github.com/okian/pointsledger/internal/adapters/mq/worker"
	"github.com/okian/pointsledger/internal/adapters/repository"
	"github.com/okian/pointsledger/internal/config"
	"github.com/okian/pointsledger/internal/domain/extract"
	"github.com/okian/pointsledger/internal/domain/resolve"
	"github.com/okian/pointsledger/pkg/logger"
)

const maxBackoffFactor = 8

// NewScheduler builds the fetch, extract and resolve chain described by cfg
// behind a batch scheduler.
func NewScheduler(cfg *config.Config, log logger.Logger) *worker.Scheduler {
	minDelay, maxDelay := cfg.DelayRange()
	fetcher := fetch.New(
		fetch.WithTimeout(cfg.FetchTimeout()),
		fetch.WithDelayRange(minDelay, maxDelay),
		fetch.WithUserAgent(cfg.UserAgent),
		fetch.WithLogger(log.Named("fetch")),
	)
	resolver := resolve.New(fetcher, extract.New(),
		resolve.WithMaxRetries(cfg.MaxRetries),
		resolve.WithFallback(cfg.FallbackPoints),
		resolve.WithRetryOnNotFound(cfg.RetryOnNotFound),
		resolve.WithBackoff(cfg.RetryBackoff(), cfg.RetryBackoff()*maxBackoffFactor),
		resolve.WithLogger(log.Named("resolve")),
	)
	return worker.NewScheduler(resolver,
		worker.WithConcurrency(cfg.ConcurrencyLimit),
		worker.WithSchedulerTaskTimeout(cfg.TaskTimeout()),
		worker.WithBatchTimeout(cfg.BatchTimeout()),
		worker.WithSchedulerLogger(log.Named("scheduler")),
	)
}

// NewFromConfig wires a Service over store using cfg. Extra options are
// applied after the configured ones.
func NewFromConfig(cfg *config.Config, store repository.Store, log logger.Logger, opts ...Option) *Service {
	base := []Option{
		WithBatchSize(cfg.BatchSize),
		WithCooldown(cfg.Cooldown()),
		WithJobTTL(cfg.JobTTL()),
		WithJanitorInterval(cfg.JanitorInterval()),
		WithBackup(cfg.BackupDir, cfg.BackupKeep),
		WithLogger(log.Named("service")),
	}
	return New(store, NewScheduler(cfg, log), append(base, opts...)...)
}
