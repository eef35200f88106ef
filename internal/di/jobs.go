package di

import (
	"fmt"

	"github.com/aristath/capitol/internal/config"
	"github.com/aristath/capitol/internal/database"
	"github.com/aristath/capitol/internal/modules/rebalancing"
	"github.com/aristath/capitol/internal/modules/signals"
	"github.com/aristath/capitol/internal/reliability"
	"github.com/aristath/capitol/internal/scheduler"
	"github.com/rs/zerolog"
)

// Maintenance schedules (seconds field first)
const (
	flagCleanupSchedule     = "0 0 2 * * *"
	signalRetentionSchedule = "0 15 2 * * *"
	checkDatabasesSchedule  = "0 30 2 * * *"
	backupSchedule          = "0 0 3 * * *"
)

// JobInstances holds registered jobs for manual triggering
type JobInstances struct {
	Rebalance       *scheduler.RebalanceJob
	FlagCleanup     *rebalancing.FlagCleanupJob
	SignalRetention *signals.RetentionJob
	CheckDatabases  *scheduler.CheckDatabasesJob
	Backup          *reliability.BackupJob // nil when backups are disabled
}

// RegisterJobs creates every job and registers it with the scheduler
func RegisterJobs(container *Container, cfg *config.Config, sched *scheduler.Scheduler, log zerolog.Logger) (*JobInstances, error) {
	databases := map[string]*database.DB{
		database.NameCapitol: container.CapitolDB,
		database.NameLedger:  container.LedgerDB,
	}
	jobs := &JobInstances{
		Rebalance:       scheduler.NewRebalanceJob(container.RebalanceService, false, log),
		FlagCleanup:     rebalancing.NewFlagCleanupJob(container.FlagRepo, log),
		SignalRetention: signals.NewRetentionJob(container.SignalRepo, signals.DefaultRetention, log),
		CheckDatabases:  scheduler.NewCheckDatabasesJob(databases, log),
	}

	entries := []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Schedule, jobs.Rebalance},
		{flagCleanupSchedule, jobs.FlagCleanup},
		{signalRetentionSchedule, jobs.SignalRetention},
		{checkDatabasesSchedule, jobs.CheckDatabases},
	}

	if container.BackupService != nil {
		jobs.Backup = reliability.NewBackupJob(container.BackupService, cfg.Backup.RetentionDays, log)
		entries = append(entries, struct {
			schedule string
			job      scheduler.Job
		}{backupSchedule, jobs.Backup})
	}

	for _, e := range entries {
		if err := sched.AddJob(e.schedule, e.job); err != nil {
			return nil, fmt.Errorf("failed to register job %s: %w", e.job.Name(), err)
		}
	}

	return jobs, nil
}
