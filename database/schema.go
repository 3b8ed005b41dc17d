package database

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

// SchemaVersion is the only schema this build reads and writes. Older
// versions are upgradeable one step at a time; anything else is fatal.
const SchemaVersion = 5

const ddlUp = `
CREATE TABLE vars
(
    key   VARCHAR PRIMARY KEY,
    value VARCHAR NOT NULL
);
INSERT INTO vars (key, value) VALUES ('schema_version', '5');

CREATE TABLE blocks
(
    hash                     BYTEA PRIMARY KEY,
    accepted_id_merkle_root  BYTEA,
    merge_set_blues_hashes   BYTEA[],
    merge_set_reds_hashes    BYTEA[],
    selected_parent_hash     BYTEA,
    bits                     BIGINT,
    blue_score               BIGINT,
    blue_work                BYTEA,
    daa_score                BIGINT,
    hash_merkle_root         BYTEA,
    nonce                    BYTEA,
    pruning_point            BYTEA,
    timestamp                BIGINT,
    utxo_commitment          BYTEA,
    version                  SMALLINT
);
CREATE INDEX ON blocks (blue_score);
CREATE INDEX ON blocks (timestamp);

CREATE TABLE block_parent
(
    block_hash  BYTEA,
    parent_hash BYTEA,
    PRIMARY KEY (block_hash, parent_hash)
);
CREATE INDEX ON block_parent (parent_hash);

CREATE TABLE subnetworks
(
    id            SERIAL PRIMARY KEY,
    subnetwork_id VARCHAR NOT NULL UNIQUE
);

CREATE TABLE transactions
(
    transaction_id BYTEA PRIMARY KEY,
    subnetwork_id  INTEGER,
    hash           BYTEA,
    mass           INTEGER,
    payload        BYTEA,
    block_time     BIGINT
);
CREATE INDEX ON transactions (block_time);

CREATE TABLE transactions_inputs
(
    transaction_id           BYTEA,
    index                    SMALLINT,
    previous_outpoint_hash   BYTEA,
    previous_outpoint_index  SMALLINT,
    signature_script         BYTEA,
    sig_op_count             SMALLINT,
    block_time               BIGINT,
    previous_outpoint_script BYTEA,
    previous_outpoint_amount BIGINT,
    PRIMARY KEY (transaction_id, index)
);
CREATE INDEX ON transactions_inputs (previous_outpoint_hash, previous_outpoint_index);

CREATE TABLE transactions_outputs
(
    transaction_id            BYTEA,
    index                     SMALLINT,
    amount                    BIGINT,
    script_public_key         BYTEA,
    script_public_key_address VARCHAR,
    block_time                BIGINT,
    PRIMARY KEY (transaction_id, index)
);

CREATE TABLE blocks_transactions
(
    block_hash     BYTEA,
    transaction_id BYTEA,
    PRIMARY KEY (block_hash, transaction_id)
);
CREATE INDEX ON blocks_transactions (transaction_id);

CREATE TABLE transactions_acceptances
(
    transaction_id BYTEA,
    block_hash     BYTEA
);
CREATE UNIQUE INDEX ON transactions_acceptances (transaction_id);
CREATE INDEX ON transactions_acceptances (block_hash);

CREATE TABLE addresses_transactions
(
    address        VARCHAR,
    transaction_id BYTEA,
    block_time     BIGINT,
    PRIMARY KEY (address, transaction_id, block_time)
);
CREATE INDEX ON addresses_transactions (block_time);

CREATE TABLE scripts_transactions
(
    script_public_key BYTEA,
    transaction_id    BYTEA,
    block_time        BIGINT,
    PRIMARY KEY (script_public_key, transaction_id, block_time)
);
CREATE INDEX ON scripts_transactions (block_time)
`

const ddlDown = `
DROP TABLE IF EXISTS scripts_transactions;
DROP TABLE IF EXISTS addresses_transactions;
DROP TABLE IF EXISTS transactions_acceptances;
DROP TABLE IF EXISTS blocks_transactions;
DROP TABLE IF EXISTS transactions_outputs;
DROP TABLE IF EXISTS transactions_inputs;
DROP TABLE IF EXISTS transactions;
DROP TABLE IF EXISTS subnetworks;
DROP TABLE IF EXISTS block_parent;
DROP TABLE IF EXISTS blocks;
DROP TABLE IF EXISTS vars
`

const ddlV1ToV2 = `
ALTER TABLE transactions_inputs ADD COLUMN previous_outpoint_script BYTEA;
ALTER TABLE transactions_inputs ADD COLUMN previous_outpoint_amount BIGINT;
UPDATE vars SET value = '2' WHERE key = 'schema_version'
`

const ddlV2ToV3 = `
CREATE TABLE scripts_transactions
(
    script_public_key BYTEA,
    transaction_id    BYTEA,
    block_time        BIGINT,
    PRIMARY KEY (script_public_key, transaction_id, block_time)
);
CREATE INDEX ON scripts_transactions (block_time);
UPDATE vars SET value = '3' WHERE key = 'schema_version'
`

const ddlV3ToV4 = `
ALTER TABLE transactions_inputs ADD COLUMN block_time BIGINT;
ALTER TABLE transactions_outputs ADD COLUMN block_time BIGINT;
UPDATE vars SET value = '4' WHERE key = 'schema_version'
`

const ddlV4ToV5 = `
CREATE INDEX IF NOT EXISTS transactions_inputs_previous_outpoint_idx
    ON transactions_inputs (previous_outpoint_hash, previous_outpoint_index);
CREATE INDEX IF NOT EXISTS transactions_acceptances_block_hash_idx
    ON transactions_acceptances (block_hash);
UPDATE vars SET value = '5' WHERE key = 'schema_version'
`

var upgrades = map[int]string{
	1: ddlV1ToV2,
	2: ddlV2ToV3,
	3: ddlV3ToV4,
	4: ddlV4ToV5,
}

// CreateSchema applies the schema on an empty database, or verifies the
// stored schema_version. With upgradeDB set, older versions are migrated in
// order; without it an outdated schema is an error.
func (c *Client) CreateSchema(ctx context.Context, upgradeDB bool) error {
	v, err := c.SelectVar(ctx, "schema_version")
	if err != nil {
		log.Warnf("Applying schema v%d", SchemaVersion)
		if err = c.executeDDL(ctx, ddlUp); err != nil {
			return errors.Wrap(err, "apply schema")
		}
		log.Info("Schema applied successfully")
		return nil
	}
	version, err := parseSchemaVersion(v)
	if err != nil {
		return err
	}
	for version < SchemaVersion {
		ddl, ok := upgrades[version]
		if !ok {
			return errors.Errorf("found old & unsupported schema v%d", version)
		}
		if !upgradeDB {
			return errors.Errorf("found outdated schema v%d, set flag '-u' to upgrade, or apply manually", version)
		}
		log.Warnf("Upgrading schema from v%d to v%d, this may take a while...", version, version+1)
		if err = c.executeDDL(ctx, ddl); err != nil {
			return errors.Wrapf(err, "upgrade schema v%d", version)
		}
		log.Info("Schema upgrade completed successfully")
		version++
	}
	if version > SchemaVersion {
		return errors.Errorf("found newer & unsupported schema v%d", version)
	}
	log.Infof("Schema v%d is up to date", version)
	return nil
}

// DropSchema removes every table. Used by --initialize-db.
func (c *Client) DropSchema(ctx context.Context) error {
	return c.executeDDL(ctx, ddlDown)
}

func (c *Client) executeDDL(ctx context.Context, ddl string) error {
	for _, statement := range strings.Split(ddl, ";") {
		if strings.TrimSpace(statement) == "" {
			continue
		}
		if _, err := c.pool.Exec(ctx, statement); err != nil {
			return err
		}
	}
	return nil
}

func parseSchemaVersion(s string) (int, error) {
	version := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errors.Errorf("invalid schema version %q", s)
		}
		version = version*10 + int(r-'0')
	}
	return version, nil
}
