package setup

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pbi-sync-service/internal/logger"
	"pbi-sync-service/internal/store"
)

const (
	MinFrequencyHours = 1
	MaxFrequencyHours = 168
)

var (
	ErrInvalidFrequency = fmt.Errorf("sync frequency must be between %d and %d hours", MinFrequencyHours, MaxFrequencyHours)
	ErrNoScheduledJob   = errors.New("auto-sync is enabled but its scheduled job no longer exists")
	ErrNotInstalled     = errors.New("setup record does not exist")
)

// JobScheduler creates and resolves the recurring auto-sync job.
type JobScheduler interface {
	CreateJob() (string, error)
	DeleteJob(id string) error
	JobExists(id string) bool
	NextRun(id string) (time.Time, bool)
}

// Defaults seed the setup record on first install.
type Defaults struct {
	AuthorityURL    string
	APIBaseURL      string
	FrequencyHours  int
	AutoSyncEnabled bool
}

// Resolution describes the state of the scheduled job reference.
type Resolution struct {
	JobID   string     `json:"job_id,omitempty"`
	Active  bool       `json:"active"`
	NextRun *time.Time `json:"next_run,omitempty"`
	Cleared bool       `json:"cleared"`
	Message string     `json:"message"`
}

// Service owns every mutation of the setup record. Each method loads the
// record, applies one change together with its scheduler side effect and
// saves it.
type Service struct {
	store    store.Store
	jobs     JobScheduler
	defaults Defaults
	mu       sync.Mutex
}

func NewService(st store.Store, jobs JobScheduler, defaults Defaults) *Service {
	if defaults.FrequencyHours == 0 {
		defaults.FrequencyHours = 24
	}
	return &Service{store: st, jobs: jobs, defaults: defaults}
}

// Install creates the setup record with defaults unless it already exists.
func (s *Service) Install(ctx context.Context) (*store.Setup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.store.GetSetup(ctx)
	if err != nil {
		return nil, fmt.Errorf("load setup: %w", err)
	}
	if existing != nil {
		return existing, nil
	}
	if !validFrequency(s.defaults.FrequencyHours) {
		return nil, ErrInvalidFrequency
	}

	st := &store.Setup{
		SyncFrequencyHours: s.defaults.FrequencyHours,
		AuthorityURL:       s.defaults.AuthorityURL,
		APIBaseURL:         s.defaults.APIBaseURL,
	}
	if s.defaults.AutoSyncEnabled {
		if err := s.enable(st); err != nil {
			return nil, err
		}
	}
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	logger.Log.Info("Installed setup record",
		zap.Int("frequency_hours", st.SyncFrequencyHours),
		zap.Bool("auto_sync_enabled", st.AutoSyncEnabled),
	)
	return st, nil
}

func (s *Service) Get(ctx context.Context) (*store.Setup, error) {
	return s.load(ctx)
}

// EnableAutoSync turns auto-sync on, creating the scheduled job when the
// current reference is missing or stale.
func (s *Service) EnableAutoSync(ctx context.Context) (*store.Setup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if st.ScheduledJobID.Valid && !s.jobs.JobExists(st.ScheduledJobID.String) {
		logger.Log.Warn("Clearing orphaned job reference", zap.String("job_id", st.ScheduledJobID.String))
		st.ScheduledJobID = sql.NullString{}
	}
	if st.AutoSyncEnabled && st.ScheduledJobID.Valid {
		return st, nil
	}

	created := !st.ScheduledJobID.Valid
	if created {
		if err := s.enable(st); err != nil {
			return nil, err
		}
	}
	st.AutoSyncEnabled = true
	if err := s.save(ctx, st); err != nil {
		if created {
			_ = s.jobs.DeleteJob(st.ScheduledJobID.String)
		}
		return nil, err
	}
	logger.Log.Info("Auto-sync enabled", zap.String("job_id", st.ScheduledJobID.String))
	return st, nil
}

// DisableAutoSync turns auto-sync off and cancels the scheduled job.
func (s *Service) DisableAutoSync(ctx context.Context) (*store.Setup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if err := s.cancelJob(st); err != nil {
		return nil, err
	}
	st.AutoSyncEnabled = false
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	logger.Log.Info("Auto-sync disabled")
	return st, nil
}

// SetFrequency changes the due-time threshold. The job keeps its cadence;
// each tick decides on its own whether a sweep is due.
func (s *Service) SetFrequency(ctx context.Context, hours int) (*store.Setup, error) {
	if !validFrequency(hours) {
		return nil, ErrInvalidFrequency
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	if st.AutoSyncEnabled && (!st.ScheduledJobID.Valid || !s.jobs.JobExists(st.ScheduledJobID.String)) {
		return nil, ErrNoScheduledJob
	}
	st.SyncFrequencyHours = hours
	if err := s.save(ctx, st); err != nil {
		return nil, err
	}
	logger.Log.Info("Sync frequency updated", zap.Int("frequency_hours", hours))
	return st, nil
}

// ResolveOrClear checks the stored job reference against the scheduler. A
// reference that no longer resolves is cleared and auto-sync is disabled.
func (s *Service) ResolveOrClear(ctx context.Context) (Resolution, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.load(ctx)
	if err != nil {
		return Resolution{}, err
	}

	if !st.ScheduledJobID.Valid {
		if !st.AutoSyncEnabled {
			return Resolution{Message: "Auto-sync is disabled and no job is scheduled."}, nil
		}
		st.AutoSyncEnabled = false
		if err := s.save(ctx, st); err != nil {
			return Resolution{}, err
		}
		logger.Log.Warn("Auto-sync was enabled without a scheduled job; disabled")
		return Resolution{
			Cleared: true,
			Message: "Auto-sync was enabled without a scheduled job and has been disabled. Enable it again to schedule a new job.",
		}, nil
	}

	id := st.ScheduledJobID.String
	if s.jobs.JobExists(id) {
		res := Resolution{JobID: id, Active: true, Message: "Scheduled job is active."}
		if next, ok := s.jobs.NextRun(id); ok && !next.IsZero() {
			res.NextRun = &next
		}
		return res, nil
	}

	st.ScheduledJobID = sql.NullString{}
	st.AutoSyncEnabled = false
	if err := s.save(ctx, st); err != nil {
		return Resolution{}, err
	}
	logger.Log.Warn("Scheduled job no longer exists; auto-sync disabled", zap.String("job_id", id))
	return Resolution{
		JobID:   id,
		Cleared: true,
		Message: fmt.Sprintf("Scheduled job %s no longer exists. The reference was cleared and auto-sync has been disabled.", id),
	}, nil
}

// Restore re-registers the job after a restart when auto-sync was enabled.
// Job ids are process-local, so a stored id from a previous run is replaced.
func (s *Service) Restore(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetSetup(ctx)
	if err != nil {
		return fmt.Errorf("load setup: %w", err)
	}
	if st == nil {
		return nil
	}
	if st.ScheduledJobID.Valid && s.jobs.JobExists(st.ScheduledJobID.String) {
		return nil
	}

	st.ScheduledJobID = sql.NullString{}
	if st.AutoSyncEnabled {
		if err := s.enable(st); err != nil {
			logger.Log.Warn("Could not restore auto-sync job; disabling", zap.Error(err))
			st.AutoSyncEnabled = false
		}
	}
	if err := s.save(ctx, st); err != nil {
		return err
	}
	if st.AutoSyncEnabled {
		logger.Log.Info("Restored auto-sync job", zap.String("job_id", st.ScheduledJobID.String))
	}
	return nil
}

// Uninstall cancels the scheduled job and deletes the setup record.
func (s *Service) Uninstall(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.store.GetSetup(ctx)
	if err != nil {
		return fmt.Errorf("load setup: %w", err)
	}
	if st == nil {
		return nil
	}
	if err := s.cancelJob(st); err != nil {
		return err
	}
	if err := s.store.DeleteSetup(ctx); err != nil {
		return fmt.Errorf("delete setup: %w", err)
	}
	logger.Log.Info("Uninstalled setup record")
	return nil
}

func (s *Service) enable(st *store.Setup) error {
	id, err := s.jobs.CreateJob()
	if err != nil {
		return fmt.Errorf("create scheduled job: %w", err)
	}
	st.ScheduledJobID = sql.NullString{String: id, Valid: true}
	st.AutoSyncEnabled = true
	return nil
}

func (s *Service) cancelJob(st *store.Setup) error {
	if !st.ScheduledJobID.Valid {
		return nil
	}
	if err := s.jobs.DeleteJob(st.ScheduledJobID.String); err != nil {
		return fmt.Errorf("delete scheduled job: %w", err)
	}
	st.ScheduledJobID = sql.NullString{}
	return nil
}

func (s *Service) load(ctx context.Context) (*store.Setup, error) {
	st, err := s.store.GetSetup(ctx)
	if err != nil {
		return nil, fmt.Errorf("load setup: %w", err)
	}
	if st == nil {
		return nil, ErrNotInstalled
	}
	return st, nil
}

func (s *Service) save(ctx context.Context, st *store.Setup) error {
	if err := s.store.SaveSetup(ctx, st); err != nil {
		return fmt.Errorf("save setup: %w", err)
	}
	return nil
}

func validFrequency(hours int) bool {
	return hours >= MinFrequencyHours && hours <= MaxFrequencyHours
}
