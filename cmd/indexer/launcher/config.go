package launcher

import (
	cli "gopkg.in/urfave/cli.v1"

	"github.com/supertypo/simply-kaspa-indexer/config"
)

// MakeConfig folds flag values into the aggregate configuration. Parse
// errors on the enum-valued flags are returned, range validation happens in
// Config.Validate.
func MakeConfig(ctx *cli.Context) (*config.Config, error) {
	cfg := &config.Config{
		RpcURL:      ctx.String("rpcurl"),
		P2pURL:      ctx.String("p2purl"),
		Network:     ctx.String("network"),
		DatabaseURL: ctx.String("database-url"),
		Listen:      ctx.String("listen"),
		BasePath:    ctx.String("base-path"),

		LogLevel:   ctx.String("log.level"),
		LogNoColor: ctx.Bool("log.no-color"),
		SentryDSN:  ctx.String("sentry-dsn"),

		BatchScale:       ctx.Float64("batch-scale"),
		BatchConcurrency: ctx.Int("batch-concurrency"),
		CacheTTL:         ctx.Duration("cache-ttl"),

		BlockInterval: ctx.Duration("block-interval"),
		VcpInterval:   ctx.Duration("vcp-interval"),
		VcpWindow:     ctx.Duration("vcp-window"),

		IgnoreCheckpoint: ctx.String("ignore-checkpoint"),
		UpgradeDB:        ctx.Bool("upgrade-db"),
		InitializeDB:     ctx.Bool("initialize-db"),

		Pruning: config.Pruning{
			PruneDB:   ctx.String("pruning.prune-db"),
			Retention: ctx.Duration("pruning.retention"),

			RetentionBlockParent:             ctx.Duration("pruning.retention.block-parent"),
			RetentionBlocksTransactions:      ctx.Duration("pruning.retention.blocks-transactions"),
			RetentionBlocks:                  ctx.Duration("pruning.retention.blocks"),
			RetentionTransactionsAcceptances: ctx.Duration("pruning.retention.transactions-acceptances"),
			RetentionTransactionsOutputs:     ctx.Duration("pruning.retention.transactions-outputs"),
			RetentionTransactionsInputs:      ctx.Duration("pruning.retention.transactions-inputs"),
			RetentionTransactions:            ctx.Duration("pruning.retention.transactions"),
			RetentionAddressesTransactions:   ctx.Duration("pruning.retention.addresses-transactions"),
			RetentionScriptsTransactions:     ctx.Duration("pruning.retention.scripts-transactions"),
		},
	}
	var err error
	if cfg.Enabled, err = config.ParseEnables(ctx.String("enable")); err != nil {
		return nil, err
	}
	if cfg.Disabled, err = config.ParseDisables(ctx.String("disable")); err != nil {
		return nil, err
	}
	if cfg.ExcludeFields, err = config.ParseFields(ctx.String("exclude-fields")); err != nil {
		return nil, err
	}
	if err = cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
