// Package scheduler drives one backup invocation: it selects the day's
// sets, runs the backup executable for each and applies retention.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"flexbackup-manager/internal/config"
	apperrors "flexbackup-manager/internal/errors"
	"flexbackup-manager/internal/executor"
	"flexbackup-manager/internal/expand"
	"flexbackup-manager/internal/logging"
	"flexbackup-manager/internal/retention"
	"flexbackup-manager/internal/schedule"
	"flexbackup-manager/internal/snapshot"

	"github.com/google/uuid"
	"github.com/juju/clock"
)

// Options carries the collaborators of a Scheduler. Zero values select the
// production implementations.
type Options struct {
	Clock    clock.Clock
	Logger   *logging.Logger
	Runner   executor.Runner
	Store    snapshot.Store
	Shutdown *apperrors.GracefulShutdownHandler
	DryRun   bool
}

// Scheduler runs backups for one configuration
type Scheduler struct {
	cfg      *config.Config
	clock    clock.Clock
	logger   *logging.Logger
	runner   executor.Runner
	store    snapshot.Store
	expander *expand.Expander
	sweeper  *retention.Sweeper
	archiver *executor.LogArchiver
	shutdown *apperrors.GracefulShutdownHandler
	dryRun   bool
}

// New creates a scheduler. The destination directory must already exist.
func New(cfg *config.Config, opts Options) (*Scheduler, error) {
	if cfg == nil {
		return nil, apperrors.NewConfigurationError("configuration is required", nil)
	}

	s := &Scheduler{
		cfg:      cfg,
		clock:    opts.Clock,
		logger:   opts.Logger,
		runner:   opts.Runner,
		store:    opts.Store,
		shutdown: opts.Shutdown,
		dryRun:   opts.DryRun,
	}
	if s.clock == nil {
		s.clock = clock.WallClock
	}
	if s.logger == nil {
		s.logger = logging.NewDefaultLogger()
	}
	if s.store == nil {
		store, err := snapshot.NewLocalStore(cfg.DestDirectory, nil)
		if err != nil {
			return nil, apperrors.WrapError(err, "backup destination is not usable")
		}
		s.store = store
	}
	if s.runner == nil {
		s.runner = executor.NewCommandRunner(cfg.Executor.Command, cfg.Executor.ExtraArgs, cfg.Executor.Timeout, s.logger)
	}

	s.expander = expand.NewExpander(cfg.RootDirectory, cfg.SubdirectoryExpansions, nil)
	s.sweeper = retention.NewSweeper(s.store, s.logger)

	if cfg.Setup.LogDirectory != "" {
		if err := os.MkdirAll(cfg.Setup.LogDirectory, 0755); err != nil {
			return nil, apperrors.NewFilesystemError(
				fmt.Sprintf("Failed creating log directory %s", cfg.Setup.LogDirectory), err)
		}
		archiver, err := executor.NewLogArchiver(cfg.Setup.LogDirectory, cfg.Setup.LogCompression, cfg.Setup.LogRetentionDays, s.logger)
		if err != nil {
			return nil, apperrors.NewConfigurationError("invalid log settings", err)
		}
		s.archiver = archiver
	}

	return s, nil
}

// Plan computes the schedule for the day containing now. It has no side
// effects.
func (s *Scheduler) Plan(now time.Time) (*schedule.Plan, error) {
	plan, err := schedule.PlanFor(s.cfg.BackupTiers.Tier1, s.cfg.BackupTiers.Tier2, s.cfg.IncrementalFrequency, now)
	if err != nil {
		return nil, apperrors.NewConfigurationError("Failed to compute backup plan", err)
	}
	return plan, nil
}

// Run performs one invocation. Executor failures are recorded in the report
// and do not stop the run. The returned error is set when the run could not
// complete: invalid plan, workspace or template problems, a full backup
// whose snapshot directory could not be prepared, or cancellation.
func (s *Scheduler) Run(ctx context.Context) (*RunReport, error) {
	runID := uuid.NewString()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := s.logger.With(map[string]interface{}{"run_id": runID})

	report := &RunReport{
		RunID:     runID,
		StartedAt: s.clock.Now().UTC(),
		DryRun:    s.dryRun,
	}

	err := s.run(ctx, log, report)
	report.FinishedAt = s.clock.Now().UTC()
	if err != nil {
		report.Error = err.Error()
	}

	if s.cfg.Setup.LogDirectory != "" {
		if path, werr := report.Write(s.cfg.Setup.LogDirectory); werr != nil {
			log.Warnf("Failed to write run report: %v", werr)
		} else {
			log.Debugf("Run report written to %s", path)
		}
	}

	return report, err
}

func (s *Scheduler) run(ctx context.Context, log *logging.Logger, report *RunReport) error {
	now := s.clock.Now()
	plan, err := s.Plan(now)
	if err != nil {
		return err
	}
	report.Plan = plan

	log.Debugf("Running cyclic backup at index (%d/%d)", plan.Index, plan.CycleLength)
	log.LogSchedulePlan(plan.Index, plan.CycleLength, plan.Full, plan.Incremental)

	if s.cfg.GCOrder == config.GCOrderFirst {
		report.GC = s.collectGarbage(ctx)
	}

	tmpl, err := executor.LoadTemplate(s.cfg.Executor.TemplateFile)
	if err != nil {
		return apperrors.NewConfigurationError("Failed to load executor config template", err)
	}

	ws, err := executor.NewWorkspace(s.cfg.Executor.TempPrefix,
		executor.DefaultWrappers(s.cfg.Executor.PigzThreads, s.cfg.Executor.Nocache()))
	if err != nil {
		return apperrors.NewFilesystemError("Failed to create temporary workspace", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			log.Warnf("Error removing temporary files: %v", cerr)
		}
	}()
	if s.shutdown != nil {
		s.shutdown.RegisterShutdownFunc(ws.Close)
	}

	for _, set := range plan.Incremental {
		if err := ctx.Err(); err != nil {
			return apperrors.NewErrorClassifier().ClassifyError(err)
		}
		report.addIncremental(s.backupSet(ctx, log, ws, tmpl, set, schedule.LevelIncremental, plan.Date))
	}

	for _, set := range plan.Full {
		if err := ctx.Err(); err != nil {
			return apperrors.NewErrorClassifier().ClassifyError(err)
		}
		sr, err := s.backupFull(ctx, log, ws, tmpl, set, plan.Date)
		report.addFull(sr)
		if err != nil {
			return err
		}
	}

	if s.cfg.GCOrder == config.GCOrderLast {
		if err := ctx.Err(); err != nil {
			return apperrors.NewErrorClassifier().ClassifyError(err)
		}
		report.GC = s.collectGarbage(ctx)
	}

	if s.archiver != nil {
		if _, err := s.archiver.Prune(now); err != nil {
			log.Warnf("Failed to prune run logs: %v", err)
		}
	}

	if failed := report.Failed(); len(failed) > 0 {
		log.WithField("failed_sets", failed).Warnf("%d backup set(s) failed", len(failed))
	}
	return nil
}

// backupFull prepares today's dated directory, repoints current and runs a
// full backup. A preparation failure aborts the run.
func (s *Scheduler) backupFull(ctx context.Context, log *logging.Logger, ws *executor.Workspace, tmpl, set string, day time.Time) (SetReport, error) {
	if s.dryRun {
		log.Infof("Would create %s and point %s at it", s.store.DatedPath(set, day), s.store.CurrentPath(set))
		return s.backupSet(ctx, log, ws, tmpl, set, schedule.LevelFull, day), nil
	}

	path, err := s.store.Prepare(set, day)
	if err != nil {
		appErr := apperrors.WrapError(err, fmt.Sprintf("Failed creating snapshot directory for %s", set))
		return SetReport{
			Set:    set,
			Level:  schedule.LevelFull,
			Status: StatusFailed,
			Reason: appErr.Error(),
		}, appErr
	}
	log.WithField("set", set).Debugf("Current snapshot is %s", path)

	sr := s.backupSet(ctx, log, ws, tmpl, set, schedule.LevelFull, day)
	sr.Snapshot = snapshot.FormatDate(day)
	return sr, nil
}

// backupSet renders the executor config for set and runs one invocation.
// Every failure is recorded in the returned report.
func (s *Scheduler) backupSet(ctx context.Context, log *logging.Logger, ws *executor.Workspace, tmpl, set string, level schedule.Level, day time.Time) SetReport {
	sr := SetReport{Set: set, Level: level}
	setLog := log.With(map[string]interface{}{"set": set, "level": string(level)})

	fail := func(err error) SetReport {
		sr.Status = StatusFailed
		sr.Reason = err.Error()
		setLog.Errorf("Backup of %s failed: %s", set, apperrors.FormatUserError(err))
		return sr
	}

	dirs, err := s.expander.Expand(set)
	if err != nil {
		return fail(err)
	}
	sr.Directories = dirs

	storeDir := s.store.CurrentPath(set)
	if !(s.dryRun && level == schedule.LevelFull) {
		if _, err := os.Stat(storeDir); err != nil {
			sr.Status = StatusSkipped
			sr.Reason = "missing backup destination directory: " + storeDir
			setLog.Infof("Skip %s backup: missing backup destination directory: %s", level, storeDir)
			return sr
		}
	}

	content, err := executor.RenderConfig(tmpl, executor.TemplateValues{
		SetName:         set,
		SetContent:      dirs,
		StoreDir:        storeDir,
		ExcludePatterns: s.cfg.ExcludePatterns,
		Gzip:            ws.WrapperPath("gzip"),
		Tar:             ws.WrapperPath("tar"),
	})
	if err != nil {
		return fail(apperrors.NewConfigurationError("Failed to render executor config", err))
	}
	confPath, err := ws.WriteConfig(content)
	if err != nil {
		return fail(apperrors.NewFilesystemError("Failed to write executor config", err))
	}

	inv := executor.Invocation{
		Set:        set,
		Level:      level,
		ConfigPath: confPath,
		DryRun:     s.dryRun,
	}
	if s.archiver != nil {
		inv.LogPath = s.archiver.LogPath(day, set, string(level))
	}

	result, err := s.runner.Run(ctx, inv)
	sr.Result = result

	if s.archiver != nil && inv.LogPath != "" {
		if _, statErr := os.Stat(inv.LogPath); statErr == nil {
			stats, aerr := s.archiver.Compress(inv.LogPath)
			if aerr != nil {
				setLog.Warnf("Failed to archive run log: %v", aerr)
			}
			sr.archive = stats
		}
	}

	if err != nil {
		return fail(err)
	}
	sr.Status = StatusCompleted
	return sr
}

// collectGarbage sweeps tier1 then tier2 with their retention counts
func (s *Scheduler) collectGarbage(ctx context.Context) []*retention.TierResult {
	s.logger.Debug("Doing backup garbage collection ...")
	tier1, tier2 := s.cfg.TierSets()
	return []*retention.TierResult{
		s.sweeper.SweepTier(ctx, "tier1", tier1, s.cfg.Retention.Tier1, s.dryRun),
		s.sweeper.SweepTier(ctx, "tier2", tier2, s.cfg.Retention.Tier2, s.dryRun),
	}
}

// CollectGarbage runs only the retention pass
func (s *Scheduler) CollectGarbage(ctx context.Context) []*retention.TierResult {
	return s.collectGarbage(ctx)
}

// Candidates lists what a retention pass would remove for every configured
// set without touching anything.
func (s *Scheduler) Candidates() (map[string]*retention.SetResult, error) {
	out := map[string]*retention.SetResult{}
	tier1, tier2 := s.cfg.TierSets()
	var errs []error
	for _, tier := range []struct {
		sets []string
		keep int
	}{{tier1, s.cfg.Retention.Tier1}, {tier2, s.cfg.Retention.Tier2}} {
		for _, set := range tier.sets {
			res, err := s.sweeper.Candidates(set, tier.keep)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			out[set] = res
		}
	}
	return out, errors.Join(errs...)
}
