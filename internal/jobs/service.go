package jobs

import (
	"context"

	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
)

// Config holds the Redis connection used by the asynq client, server, and
// scheduler.
type Config struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	Concurrency   int
}

// Service wraps the asynq client/server/scheduler trio backing the two
// periodic jobs this system runs: the upload-intent sweep and the
// migrateAllToR2 backfill (SPEC_FULL.md domain stack).
type Service struct {
	client    *asynq.Client
	server    *asynq.Server
	scheduler *asynq.Scheduler
	inspector *asynq.Inspector
	logger    *logrus.Logger
}

func NewService(cfg Config) *Service {
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}

	logger := logrus.StandardLogger()

	serverCfg := asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues: map[string]int{
			"default": 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			logger.WithFields(logrus.Fields{
				"type":  task.Type(),
				"error": err,
			}).Error("job processing failed")
		}),
	}

	return &Service{
		client:    asynq.NewClient(redisOpt),
		server:    asynq.NewServer(redisOpt, serverCfg),
		scheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: newSchedulerLogger(logger)}),
		inspector: asynq.NewInspector(redisOpt),
		logger:    logger,
	}
}

// Enqueue submits a one-off task immediately.
func (s *Service) Enqueue(task *asynq.Task, opts ...asynq.Option) error {
	_, err := s.client.Enqueue(task, opts...)
	return err
}

// RegisterPeriodic schedules task to run on cronSpec (any spec asynq's
// scheduler accepts: a cron expression or an "@every <duration>"
// descriptor), e.g. the sweep and backfill jobs registered by cmd/main.go.
func (s *Service) RegisterPeriodic(cronSpec string, task *asynq.Task, opts ...asynq.Option) error {
	_, err := s.scheduler.Register(cronSpec, task, opts...)
	return err
}

// Start runs the worker server and the periodic scheduler until Stop is
// called. mux must have every job type this service will see registered
// against it (see Handlers.Mux).
func (s *Service) Start(mux *asynq.ServeMux) error {
	if err := s.scheduler.Start(); err != nil {
		return err
	}
	return s.server.Start(mux)
}

// Stop drains in-flight jobs and closes the Redis connections.
func (s *Service) Stop() {
	s.scheduler.Shutdown()
	s.server.Shutdown()
	_ = s.client.Close()
	_ = s.inspector.Close()
}

type schedulerLogger struct{ l *logrus.Logger }

func newSchedulerLogger(l *logrus.Logger) *schedulerLogger { return &schedulerLogger{l: l} }

func (s *schedulerLogger) Debug(args ...interface{}) { s.l.Debug(args...) }
func (s *schedulerLogger) Info(args ...interface{})  { s.l.Info(args...) }
func (s *schedulerLogger) Warn(args ...interface{})  { s.l.Warn(args...) }
func (s *schedulerLogger) Error(args ...interface{}) { s.l.Error(args...) }
func (s *schedulerLogger) Fatal(args ...interface{}) { s.l.Fatal(args...) }
