package sync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pbi-sync-service/internal/config"
	"pbi-sync-service/internal/logger"
)

var (
	ErrSchedulerDisabled = errors.New("scheduler is disabled")
	ErrInvalidJobID      = errors.New("invalid job id")
)

// AutoSyncer is what a scheduled tick invokes.
type AutoSyncer interface {
	RunAutoSync(ctx context.Context) (bool, error)
}

// Scheduler owns the recurring auto-sync job. Job ids are cron entry ids and
// do not survive a restart.
type Scheduler struct {
	cfg    config.SchedulerConfig
	syncer AutoSyncer
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

func NewScheduler(cfg config.SchedulerConfig, syncer AutoSyncer) *Scheduler {
	l := cronLogger{}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cfg:    cfg,
		syncer: syncer,
		cron: cron.New(
			cron.WithLogger(l),
			cron.WithChain(cron.Recover(l), cron.SkipIfStillRunning(l)),
		),
		ctx:    ctx,
		cancel: cancel,
	}
}

func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		logger.Log.Info("Scheduler is disabled")
		return
	}
	logger.Log.Info("Starting scheduler", zap.String("interval", s.cfg.Interval))
	s.cron.Start()
}

// Stop cancels in-flight jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Log.Info("Stopped scheduler")
}

// CreateJob registers the auto-sync job and returns its id.
func (s *Scheduler) CreateJob() (string, error) {
	if !s.cfg.Enabled {
		return "", ErrSchedulerDisabled
	}
	id, err := s.cron.AddFunc(s.cfg.Interval, s.triggerSync)
	if err != nil {
		return "", fmt.Errorf("failed to schedule job: %w", err)
	}
	logger.Log.Info("Scheduled auto-sync job", zap.Int("entry_id", int(id)), zap.String("interval", s.cfg.Interval))
	return strconv.Itoa(int(id)), nil
}

// DeleteJob removes a job. Removing an unknown id is a no-op.
func (s *Scheduler) DeleteJob(id string) error {
	entryID, err := parseEntryID(id)
	if err != nil {
		return err
	}
	s.cron.Remove(entryID)
	return nil
}

func (s *Scheduler) JobExists(id string) bool {
	entryID, err := parseEntryID(id)
	if err != nil {
		return false
	}
	return s.cron.Entry(entryID).Valid()
}

// NextRun returns the next activation of a job. The time is zero until the
// scheduler has started.
func (s *Scheduler) NextRun(id string) (time.Time, bool) {
	entryID, err := parseEntryID(id)
	if err != nil {
		return time.Time{}, false
	}
	entry := s.cron.Entry(entryID)
	if !entry.Valid() {
		return time.Time{}, false
	}
	return entry.Next, true
}

func (s *Scheduler) triggerSync() {
	ran, err := s.syncer.RunAutoSync(s.ctx)
	switch {
	case errors.Is(err, ErrSyncInProgress):
		logger.Log.Info("Sync already running, skipping scheduled run")
	case err != nil:
		logger.Log.Error("Scheduled sync failed", zap.Error(err))
	case ran:
		logger.Log.Info("Scheduled sync completed")
	}
}

func parseEntryID(id string) (cron.EntryID, error) {
	n, err := strconv.Atoi(id)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidJobID, id)
	}
	return cron.EntryID(n), nil
}

// cronLogger adapts the global zap logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Log.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
