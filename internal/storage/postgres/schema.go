package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pod_deployed_events (
	tx_hash          TEXT        NOT NULL,
	log_index        BIGINT      NOT NULL,
	block_number     BIGINT      NOT NULL,
	block_timestamp  BIGINT      NOT NULL,
	contract_address TEXT        NOT NULL,
	eigen_pod        TEXT        NOT NULL,
	pod_owner        TEXT        NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS pod_deployed_events_block_idx ON pod_deployed_events (block_number, log_index);

CREATE TABLE IF NOT EXISTS staked_deposit_events (
	tx_hash                TEXT        NOT NULL,
	log_index              BIGINT      NOT NULL,
	block_number           BIGINT      NOT NULL,
	block_timestamp        BIGINT      NOT NULL,
	contract_address       TEXT        NOT NULL,
	depositor              TEXT        NOT NULL,
	pubkey                 TEXT        NOT NULL,
	withdrawal_credentials TEXT        NOT NULL,
	amount                 TEXT        NOT NULL,
	tx_value               TEXT        NOT NULL,
	signature              TEXT        NOT NULL,
	deposit_index          BIGINT      NOT NULL,
	created_at             TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (tx_hash, log_index)
);
CREATE INDEX IF NOT EXISTS staked_deposit_events_block_idx ON staked_deposit_events (block_number, log_index);
CREATE INDEX IF NOT EXISTS staked_deposit_events_pubkey_idx ON staked_deposit_events (pubkey);
CREATE INDEX IF NOT EXISTS staked_deposit_events_credentials_idx ON staked_deposit_events (withdrawal_credentials);

CREATE TABLE IF NOT EXISTS indexing_cursors (
	stream             TEXT        PRIMARY KEY,
	last_indexed_block BIGINT      NOT NULL,
	updated_at         TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS deposit_block_summary (
	block_number    BIGINT PRIMARY KEY,
	block_timestamp BIGINT NOT NULL,
	event_count     BIGINT NOT NULL,
	total_deposited TEXT   NOT NULL
);
`

const summaryShadowSQL = `
CREATE TABLE deposit_block_summary_next (
	block_number    BIGINT PRIMARY KEY,
	block_timestamp BIGINT NOT NULL,
	event_count     BIGINT NOT NULL,
	total_deposited TEXT   NOT NULL
)`

const depositColumns = `tx_hash, log_index, block_number, block_timestamp, contract_address, depositor,
	pubkey, withdrawal_credentials, amount, tx_value, signature, deposit_index`
