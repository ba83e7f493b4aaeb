package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/trezcool/edurise/core"
	"github.com/trezcool/edurise/core/mirror"
	"github.com/trezcool/edurise/services/logger"
)

type (
	Syncer interface {
		Sync(ctx context.Context, schoolID string) (mirror.Report, error)
	}

	// SchoolLister enumerates the remote schools when none are configured.
	SchoolLister interface {
		ListSchools(ctx context.Context) ([]string, error)
	}
)

// Scheduler runs sync passes for the configured schools on a cron schedule.
type Scheduler struct {
	cron    *cron.Cron
	syncer  Syncer
	lister  SchoolLister
	schools []string
	timeout time.Duration
	logger  core.Logger
}

// New schedules passes on spec (standard 5-field cron or "@every 15m").
// lister may be nil, in which case only schools are synced.
func New(syncer Syncer, lister SchoolLister, logger core.Logger, spec string, schools []string, timeout time.Duration) (*Scheduler, error) {
	cl := logsvc.CronLogger{Logger: logger}
	s := &Scheduler{
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		syncer:  syncer,
		lister:  lister,
		schools: schools,
		timeout: timeout,
		logger:  logger,
	}
	if _, err := s.cron.AddFunc(spec, func() { s.Run(context.Background()) }); err != nil {
		return nil, errors.Wrapf(err, "parsing schedule %q", spec)
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.logger.Info(fmt.Sprintf("scheduler started: %d school(s) configured", len(s.schools)))
	s.cron.Start()
}

// Stop stops scheduling; the returned context is done once the running pass has ended.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Run syncs every school once, one after the other, and returns the reports of the completed passes.
func (s *Scheduler) Run(ctx context.Context) []mirror.Report {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	schools, err := s.resolveSchools(ctx)
	if err != nil {
		s.logger.Error("listing schools", err)
		return nil
	}

	reports := make([]mirror.Report, 0, len(schools))
	for _, schoolID := range schools {
		if ctx.Err() != nil {
			s.logger.Warn("scheduled sync interrupted", ctx.Err())
			break
		}
		report, err := s.syncer.Sync(ctx, schoolID)
		switch {
		case errors.Is(err, mirror.ErrSyncInProgress):
			s.logger.Debug("sync already running, skipped", core.LogScope{SchoolID: schoolID})
			continue
		case err != nil && report.TaskID == "":
			s.logger.Error("scheduled sync", err, core.LogScope{SchoolID: schoolID})
			continue
		}
		reports = append(reports, report)
	}
	return reports
}

func (s *Scheduler) resolveSchools(ctx context.Context) ([]string, error) {
	if len(s.schools) > 0 || s.lister == nil {
		return s.schools, nil
	}
	return s.lister.ListSchools(ctx)
}
