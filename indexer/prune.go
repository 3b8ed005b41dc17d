package indexer

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	log "github.com/sirupsen/logrus"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/signal"
)

// Pruner deletes expired rows per table on a cron schedule. Step failures
// are isolated: the failing step is recorded and the run continues.
type Pruner struct {
	settings Settings
	sig      *signal.Handler
	met      *metrics.Metrics
	db       *database.Client
	chunk    int
}

// NewPruner wires the retention pruner.
func NewPruner(settings Settings, sig *signal.Handler, met *metrics.Metrics, db *database.Client) *Pruner {
	return &Pruner{
		settings: settings,
		sig:      sig,
		met:      met,
		db:       db,
		chunk:    int(5000 * settings.Cfg.BatchScale),
	}
}

// Run schedules the pruner and blocks until shutdown. Without a cron
// expression it returns immediately.
func (p *Pruner) Run(ctx context.Context) error {
	pruning := p.settings.Cfg.Pruning
	if pruning.PruneDB == "" {
		log.Info("Database pruning is disabled. Disk usage will grow indefinitely")
		return nil
	}
	pruning.ApplyDefaults()
	log.Infof("Database pruning enabled, cron: %q", pruning.PruneDB)

	retention := map[string]time.Duration{
		"block_parent":             pruning.RetentionBlockParent,
		"blocks_transactions":      pruning.RetentionBlocksTransactions,
		"blocks":                   pruning.RetentionBlocks,
		"transactions_acceptances": pruning.RetentionTransactionsAcceptances,
		"transactions_outputs":     pruning.RetentionTransactionsOutputs,
		"transactions_inputs":      pruning.RetentionTransactionsInputs,
		"transactions":             pruning.RetentionTransactions,
		"addresses_transactions":   pruning.RetentionAddressesTransactions,
		"scripts_transactions":     pruning.RetentionScriptsTransactions,
	}
	p.met.Update(func(s *metrics.Snapshot) {
		s.Components.DbPruner.Enabled = true
		s.Components.DbPruner.Cron = pruning.PruneDB
		s.Components.DbPruner.Retention = make(map[string]string, len(retention))
		for table, d := range retention {
			if d > 0 {
				s.Components.DbPruner.Retention[table] = d.String()
			}
		}
	})

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	_, err = scheduler.NewJob(
		gocron.CronJob(pruning.PruneDB, false),
		gocron.NewTask(func() { p.prune(ctx, pruning) }),
	)
	if err != nil {
		return err
	}
	scheduler.Start()
	<-p.sig.Done()
	return scheduler.Shutdown()
}

func (p *Pruner) prune(ctx context.Context, pruning config.Pruning) {
	log.Info("Database pruning started")
	startTime := time.Now()
	stepErrors := 0
	p.met.Update(func(s *metrics.Snapshot) {
		s.Components.DbPruner.Running = true
		s.Components.DbPruner.StartTime = &startTime
		s.Components.DbPruner.Results = make(map[string]metrics.PrunerResult)
	})

	type step struct {
		name      string
		retention time.Duration
		run       func(context.Context, int64, int) (int64, error)
		guarded   bool
	}
	steps := []step{
		{"block_parent", pruning.RetentionBlockParent, p.db.PruneBlockParent, false},
		{"blocks_transactions", pruning.RetentionBlocksTransactions, p.db.PruneBlocksTransactions, false},
		{"blocks", pruning.RetentionBlocks, p.db.PruneBlocks, false},
		{"transactions_acceptances", pruning.RetentionTransactionsAcceptances, p.db.PruneTransactionsAcceptances, false},
		{"spent transactions_outputs", pruning.RetentionTransactionsOutputs, p.db.PruneSpentTransactionsOutputs, false},
		{"transactions_inputs", pruning.RetentionTransactionsInputs, p.db.PruneTransactionsInputs, false},
		{"transactions", pruning.RetentionTransactions, p.db.PruneTransactions, true},
		{"addresses_transactions", pruning.RetentionAddressesTransactions, p.db.PruneAddressesTransactions, false},
		{"scripts_transactions", pruning.RetentionScriptsTransactions, p.db.PruneScriptsTransactions, false},
	}
	for _, s := range steps {
		if p.sig.IsShutdown() {
			return
		}
		if s.retention == 0 {
			continue
		}
		cutoff := startTime.Add(-s.retention)
		if s.guarded && !p.checkpointNewerThan(ctx, cutoff) {
			log.Errorf("Refusing to prune %s: checkpoint is older than the cutoff %s", s.name, cutoff)
			stepErrors++
			continue
		}
		if !p.pruneStep(ctx, s.name, s.run, cutoff) {
			stepErrors++
		}
	}

	if stepErrors == 0 {
		log.Info("Database pruning completed successfully!")
	} else {
		log.Warn("Database pruning completed with one or more errors")
	}
	completed := time.Now()
	success := stepErrors == 0
	p.met.Update(func(s *metrics.Snapshot) {
		s.Components.DbPruner.Running = false
		s.Components.DbPruner.CompletedTime = &completed
		s.Components.DbPruner.CompletedSuccessfully = &success
	})
}

// checkpointNewerThan verifies the prune guard: the transactions step would
// break referential integrity if the pipeline could still replay blocks
// older than the cutoff.
func (p *Pruner) checkpointNewerThan(ctx context.Context, cutoff time.Time) bool {
	checkpoint, err := LoadBlockCheckpoint(ctx, p.db)
	if err != nil {
		log.Warnf("Prune guard: no checkpoint available: %v", err)
		return false
	}
	ts, err := p.db.SelectBlockTimestamp(ctx, checkpoint)
	if err != nil {
		log.Warnf("Prune guard: checkpoint block not found: %v", err)
		return false
	}
	return ts >= cutoff.UnixMilli()
}

func (p *Pruner) pruneStep(ctx context.Context, name string,
	run func(context.Context, int64, int) (int64, error), cutoff time.Time) bool {
	log.Infof("Pruning %s rows older than %s", name, cutoff.UTC().Format(time.RFC3339))
	stepStart := time.Now()
	result := metrics.PrunerResult{Name: name, StartTime: stepStart, CutoffTime: cutoff}
	p.met.Update(func(s *metrics.Snapshot) {
		s.Components.DbPruner.Results[name] = result
	})

	rowsDeleted, err := run(ctx, cutoff.UnixMilli(), p.chunk)
	success := err == nil
	result.Success = &success
	result.Duration = time.Since(stepStart)
	if err != nil {
		log.Errorf("Pruning %s failed with error: %v", name, err)
	} else {
		log.Infof("Pruned %s, %d rows deleted", name, rowsDeleted)
		result.RowsDeleted = &rowsDeleted
		metrics.RowsPruned.WithLabelValues(name).Add(float64(rowsDeleted))
	}
	p.met.Update(func(s *metrics.Snapshot) {
		s.Components.DbPruner.Results[name] = result
	})
	return success
}
