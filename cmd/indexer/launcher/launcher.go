/*
The launcher is the main entry point for the simply-kaspa-indexer command
line interface. It wires together CLI flags, configuration, logging, the
store and node clients, and starts the ingestion pipeline stages.
*/
package launcher

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/evalphobia/logrus_sentry"
	log "github.com/sirupsen/logrus"
	cli "gopkg.in/urfave/cli.v1"

	"github.com/supertypo/simply-kaspa-indexer/config"
	"github.com/supertypo/simply-kaspa-indexer/database"
	"github.com/supertypo/simply-kaspa-indexer/flags"
	"github.com/supertypo/simply-kaspa-indexer/indexer"
	"github.com/supertypo/simply-kaspa-indexer/kaspad"
	"github.com/supertypo/simply-kaspa-indexer/mapping"
	"github.com/supertypo/simply-kaspa-indexer/metrics"
	"github.com/supertypo/simply-kaspa-indexer/model"
	"github.com/supertypo/simply-kaspa-indexer/signal"
	"github.com/supertypo/simply-kaspa-indexer/web"
)

// Git SHA1 commit hash of the release (set via linker flags).
var gitCommit = ""

const checkpointQueueCapacity = 30000

// Launch parses flags and runs the indexer until shutdown.
func Launch(args []string) error {
	app := flags.NewApp(gitCommit, "the simply-kaspa-indexer command line interface")
	app.Flags = append(app.Flags, flags.CommonFlags()...)
	app.Flags = append(app.Flags, flags.IndexerFlags()...)
	app.Flags = append(app.Flags, flags.DatabaseFlags()...)
	app.Flags = append(app.Flags, flags.PruningFlags()...)
	app.Action = run
	return app.Run(args)
}

func run(ctx *cli.Context) error {
	cfg, err := MakeConfig(ctx)
	if err != nil {
		return err
	}
	configureLogging(cfg)
	log.Infof("simply-kaspa-indexer %s", ctx.App.Version)

	background := context.Background()
	sig := signal.NewHandler().Listen()

	poolSize := int32(cfg.BatchConcurrency * 10)
	db, err := database.New(background, cfg.DatabaseURL, poolSize)
	if err != nil {
		log.Fatalf("Database connection FAILED: %v", err)
	}
	defer db.Close()
	if cfg.InitializeDB {
		log.Info("Initializing database")
		if err = db.DropSchema(background); err != nil {
			log.Fatalf("Unable to drop schema: %v", err)
		}
	}
	if err = db.CreateSchema(background, cfg.UpgradeDB); err != nil {
		log.Fatalf("Unable to create schema: %v", err)
	}

	client := kaspad.NewClient(cfg.RpcURL)
	defer client.Close()

	var dagInfo *kaspad.BlockDagInfo
	for {
		if sig.IsShutdown() {
			return nil
		}
		if dagInfo, err = client.GetBlockDagInfo(background); err == nil {
			break
		}
		log.Warnf("Failed getting block dag info: %v", err)
		select {
		case <-time.After(5 * time.Second):
		case <-sig.Done():
		}
	}

	// Every current kaspa network runs ten blocks per second; the rate only
	// sizes caches and interlocks.
	netBps := 10
	netTpsMax := 300 * netBps
	log.Infof("Assuming %d block(s) per second for cache sizes", netBps)

	if len(cfg.Enabled) > 0 {
		log.Infof("Enable functionality is set, the following functionality will be enabled: %v", cfg.Enabled)
	}
	if len(cfg.Disabled) > 0 {
		log.Infof("Disable functionality is set, the following functionality will be disabled: %v", cfg.Disabled)
	}
	if len(cfg.ExcludeFields) > 0 {
		log.Infof("Exclude fields is set, the following fields will be excluded: %v", cfg.ExcludeFields)
	}

	checkpoint, utxoSetImport := resolveCheckpoint(background, cfg, db, dagInfo, client)

	settings := indexer.Settings{
		Cfg:                   cfg,
		NetBps:                netBps,
		NetTpsMax:             netTpsMax,
		Checkpoint:            checkpoint,
		DisableVcpWaitForSync: cfg.IsDisabled(config.DisableVcpWaitForSync) || utxoSetImport,
	}

	queueCapacity := int(1000 * cfg.BatchScale)
	blocksQueue := indexer.NewQueue[indexer.BlockData](queueCapacity)
	txsQueue := indexer.NewQueue[indexer.TransactionData](queueCapacity)
	checkpointQueue := indexer.NewQueue[indexer.CheckpointBlock](checkpointQueueCapacity)

	met := metrics.New("simply-kaspa-indexer", ctx.App.Version, cfg.Network)
	met.Update(func(s *metrics.Snapshot) {
		s.Queues.BlocksCapacity = uint64(blocksQueue.Cap())
		s.Queues.TransactionsCapacity = uint64(txsQueue.Cap())
		s.Queues.CheckpointsCapacity = uint64(checkpointQueue.Cap())
		s.Components.TransactionProcessor.Enabled = !cfg.IsDisabled(config.DisableTransactionProcessing)
		s.Components.VirtualChainProcessor.Enabled = !cfg.IsDisabled(config.DisableVirtualChainProcessing)
		s.Components.VirtualChainProcessor.OnlyBlocks = cfg.IsDisabled(config.DisableTransactionAcceptance)
	})
	if block, err := client.GetBlock(background, checkpoint.String(), false); err == nil {
		met.Update(func(s *metrics.Snapshot) {
			s.Checkpoint.Origin = indexer.OriginInitial.String()
			s.Checkpoint.Block = &metrics.BlockInfo{
				Hash:      block.VerboseData.Hash,
				Timestamp: block.Header.Timestamp,
				DaaScore:  block.Header.DaaScore,
				BlueScore: block.Header.BlueScore,
			}
		})
	}

	webServer := web.NewServer(cfg.Listen, cfg.BasePath, sig, met, db)
	go func() {
		if err := webServer.Run(background); err != nil {
			log.Errorf("Web server failed: %v", err)
		}
	}()

	if utxoSetImport {
		pruningPoint, err := model.ParseHash(dagInfo.PruningPointHash)
		if err != nil {
			log.Fatalf("Invalid pruning point hash: %v", err)
		}
		indexer.NewUtxoSetImporter(settings, sig, met, pruningPoint, db).Run(background)
	}

	mapper := mapping.NewMapper(cfg)
	startVcp := &atomic.Bool{}

	var wg sync.WaitGroup
	start := func(name string, fn func()) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn()
			log.Debugf("%s stopped", name)
		}()
	}
	start("block fetcher", func() {
		indexer.NewFetcher(settings, sig, met, client, blocksQueue, txsQueue).Run(background)
	})
	start("block processor", func() {
		indexer.NewBlockProcessor(settings, sig, met, startVcp, blocksQueue, checkpointQueue, db, mapper).Run(background)
	})
	start("checkpoint coordinator", func() {
		indexer.NewCheckpointCoordinator(settings, sig, met, checkpointQueue, db).Run(background)
	})
	if !cfg.IsDisabled(config.DisableTransactionProcessing) {
		start("transaction processor", func() {
			indexer.NewTransactionProcessor(settings, sig, met, txsQueue, checkpointQueue, db, mapper).Run(background)
		})
	}
	if !cfg.IsDisabled(config.DisableVirtualChainProcessing) {
		start("virtual chain processor", func() {
			indexer.NewVirtualChainProcessor(settings, sig, met, startVcp, checkpointQueue, client, db).Run(background)
		})
	}
	start("pruner", func() {
		if err := indexer.NewPruner(settings, sig, met, db).Run(background); err != nil {
			log.Errorf("Database pruner failed: %v", err)
		}
	})
	wg.Wait()
	return nil
}

// resolveCheckpoint decides where the pipeline resumes: an explicit
// override, the saved checkpoint, or a fresh start (with UTXO import unless
// disabled).
func resolveCheckpoint(ctx context.Context, cfg *config.Config, db *database.Client,
	dagInfo *kaspad.BlockDagInfo, client *kaspad.Client) (model.Hash, bool) {
	if cfg.IgnoreCheckpoint != "" {
		log.Warn("Checkpoint ignored due to user request (-i). This might lead to inconsistencies.")
		switch cfg.IgnoreCheckpoint {
		case "p":
			checkpoint, err := model.ParseHash(dagInfo.PruningPointHash)
			if err != nil {
				log.Fatalf("Invalid pruning point hash: %v", err)
			}
			log.Infof("Starting from pruning_point %s", checkpoint)
			return checkpoint, cfg.IsEnabled(config.EnableForceUtxoImport)
		case "v":
			checkpoint := virtualParent(dagInfo)
			log.Infof("Starting from virtual_parent %s", checkpoint)
			return checkpoint, cfg.IsEnabled(config.EnableForceUtxoImport)
		default:
			checkpoint, err := model.ParseHash(cfg.IgnoreCheckpoint)
			if err != nil {
				log.Fatalf("Supplied block hash is invalid: %v", err)
			}
			log.Infof("Starting from user supplied block %s", checkpoint)
			return checkpoint, cfg.IsEnabled(config.EnableForceUtxoImport)
		}
	}
	if saved, err := indexer.LoadBlockCheckpoint(ctx, db); err == nil {
		log.Infof("Starting from checkpoint %s", saved)
		return saved, cfg.IsEnabled(config.EnableForceUtxoImport)
	}
	if cfg.IsDisabled(config.DisableInitialUtxoImport) {
		checkpoint := virtualParent(dagInfo)
		log.Warnf("Checkpoint not found, starting from virtual_parent %s", checkpoint)
		return checkpoint, false
	}
	checkpoint, err := model.ParseHash(dagInfo.PruningPointHash)
	if err != nil {
		log.Fatalf("Invalid pruning point hash: %v", err)
	}
	log.Warnf("Checkpoint not found, starting from pruning_point %s", checkpoint)
	return checkpoint, true
}

func virtualParent(dagInfo *kaspad.BlockDagInfo) model.Hash {
	if len(dagInfo.VirtualParentHashes) == 0 {
		log.Fatal("Virtual parent not found")
	}
	checkpoint, err := model.ParseHash(dagInfo.VirtualParentHashes[0])
	if err != nil {
		log.Fatalf("Invalid virtual parent hash: %v", err)
	}
	return checkpoint
}

func configureLogging(cfg *config.Config) {
	level, err := log.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = log.InfoLevel
	}
	log.SetLevel(level)
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.000",
		DisableColors:   cfg.LogNoColor,
	})
	if cfg.SentryDSN != "" {
		hook, err := logrus_sentry.NewSentryHook(cfg.SentryDSN, []log.Level{
			log.PanicLevel, log.FatalLevel, log.ErrorLevel,
		})
		if err != nil {
			log.Warnf("Sentry hook setup failed: %v", err)
		} else {
			log.AddHook(hook)
		}
	}
}
