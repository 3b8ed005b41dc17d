package config

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{BatchScale: 1.0, BatchConcurrency: 4}
}

func TestValidate_BatchScaleRange(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	for _, scale := range []float64{0.1, 10} {
		cfg.BatchScale = scale
		assert.NoError(t, cfg.Validate(), "scale %v", scale)
	}
	for _, scale := range []float64{0.05, 10.5, 0, -1} {
		cfg.BatchScale = scale
		assert.Error(t, cfg.Validate(), "scale %v", scale)
	}
}

func TestValidate_BatchConcurrencyRange(t *testing.T) {
	cfg := validConfig()
	for _, c := range []int{1, 10} {
		cfg.BatchConcurrency = c
		assert.NoError(t, cfg.Validate())
	}
	for _, c := range []int{0, 11, -3} {
		cfg.BatchConcurrency = c
		assert.Error(t, cfg.Validate())
	}
}

func TestValidate_IgnoreCheckpoint(t *testing.T) {
	cfg := validConfig()
	for _, v := range []string{"", "p", "v", strings.Repeat("ab", 32)} {
		cfg.IgnoreCheckpoint = v
		assert.NoError(t, cfg.Validate(), "value %q", v)
	}
	for _, v := range []string{"x", "abcd", strings.Repeat("zz", 32)} {
		cfg.IgnoreCheckpoint = v
		assert.Error(t, cfg.Validate(), "value %q", v)
	}
}

func TestToggles(t *testing.T) {
	cfg := validConfig()
	cfg.Enabled = []Enable{EnableDynamicVcpTipDistance}
	cfg.Disabled = []Disable{DisableTransactionProcessing}
	cfg.ExcludeFields = []Field{FieldTxPayload}

	assert.True(t, cfg.IsEnabled(EnableDynamicVcpTipDistance))
	assert.False(t, cfg.IsEnabled(EnableForceUtxoImport))
	assert.True(t, cfg.IsDisabled(DisableTransactionProcessing))
	assert.False(t, cfg.IsDisabled(DisableVirtualChainProcessing))
	assert.True(t, cfg.IsExcluded(FieldTxPayload))
	assert.False(t, cfg.IsExcluded(FieldTxMass))
}

func TestParseEnables(t *testing.T) {
	got, err := ParseEnables("dynamic_vcp_tip_distance, transactions_inputs_resolve")
	require.NoError(t, err)
	assert.Equal(t, []Enable{EnableDynamicVcpTipDistance, EnableTransactionsInputsResolve}, got)

	got, err = ParseEnables("")
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = ParseEnables("bogus")
	assert.Error(t, err)
}

func TestParseDisables(t *testing.T) {
	got, err := ParseDisables("virtual_chain_processing,transaction_acceptance")
	require.NoError(t, err)
	assert.Equal(t, []Disable{DisableVirtualChainProcessing, DisableTransactionAcceptance}, got)

	_, err = ParseDisables("virtual_chain_processing,nope")
	assert.Error(t, err)
}

func TestParseFields(t *testing.T) {
	got, err := ParseFields("tx_payload,block_bits")
	require.NoError(t, err)
	assert.Equal(t, []Field{FieldTxPayload, FieldBlockBits}, got)

	_, err = ParseFields("tx_unknown")
	assert.Error(t, err)
}

func TestPruning_ApplyDefaults(t *testing.T) {
	p := Pruning{
		Retention:            720 * time.Hour,
		RetentionBlockParent: 24 * time.Hour,
	}
	p.ApplyDefaults()
	assert.Equal(t, 24*time.Hour, p.RetentionBlockParent)
	assert.Equal(t, 720*time.Hour, p.RetentionBlocks)
	assert.Equal(t, 720*time.Hour, p.RetentionTransactions)
	assert.Equal(t, 720*time.Hour, p.RetentionScriptsTransactions)
}

func TestPruning_ApplyDefaults_ZeroMeansDisabled(t *testing.T) {
	var p Pruning
	p.ApplyDefaults()
	assert.Zero(t, p.RetentionBlocks)
	assert.Zero(t, p.RetentionTransactions)
}
