package database

import (
	"context"
	"fmt"
)

// CreateSchema creates the mirror tables. Every statement is idempotent.
func (db *DB) CreateSchema(ctx context.Context) error {
	db.logger.Info("Creating mirror schema...")

	for _, stmt := range SchemaStatements() {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	db.logger.Info("Mirror schema created successfully")
	return nil
}

// SchemaStatements returns the DDL in execution order
func SchemaStatements() []string {
	return []string{
		createIdentitiesTable,
		createWalletsTable,
		createRecordRolesTable,
		createPermissionsTable,
		createAnchorsTable,
		createReviewsTable,
		addReviewAmendments,
		createReactionsTable,
		createSyncRunsTable,
		createMirrorIndexes,
	}
}

const (
	createIdentitiesTable = `
		CREATE TABLE IF NOT EXISTS mirror_identities (
			identity_id VARCHAR(256) PRIMARY KEY,
			status VARCHAR(16) NOT NULL,
			created_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createWalletsTable = `
		CREATE TABLE IF NOT EXISTS mirror_wallets (
			address VARCHAR(512) PRIMARY KEY,
			identity_id VARCHAR(256) NOT NULL,
			is_wallet_active BOOLEAN NOT NULL,
			registered_at BIGINT NOT NULL,
			updated_at BIGINT NOT NULL,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createRecordRolesTable = `
		CREATE TABLE IF NOT EXISTS mirror_record_roles (
			record_id VARCHAR(256) NOT NULL,
			identity_id VARCHAR(256) NOT NULL,
			role VARCHAR(16) NOT NULL,
			is_active BOOLEAN NOT NULL,
			granted_at BIGINT NOT NULL,
			last_modified BIGINT NOT NULL,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (record_id, identity_id)
		);`

	createPermissionsTable = `
		CREATE TABLE IF NOT EXISTS mirror_permissions (
			permission_hash VARCHAR(256) PRIMARY KEY,
			sharer VARCHAR(256) NOT NULL,
			receiver VARCHAR(256) NOT NULL,
			record_id VARCHAR(256) NOT NULL,
			granted_at BIGINT NOT NULL,
			revoked_at BIGINT NOT NULL DEFAULT 0,
			is_active BOOLEAN NOT NULL,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createAnchorsTable = `
		CREATE TABLE IF NOT EXISTS mirror_anchors (
			record_hash VARCHAR(256) PRIMARY KEY,
			record_id VARCHAR(256) NOT NULL,
			subject VARCHAR(256) NOT NULL,
			created_at BIGINT NOT NULL,
			created_by VARCHAR(256) NOT NULL,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);`

	createReviewsTable = `
		CREATE TABLE IF NOT EXISTS mirror_reviews (
			record_hash VARCHAR(256) NOT NULL,
			idx INTEGER NOT NULL,
			reviewer VARCHAR(256) NOT NULL,
			review_type VARCHAR(16) NOT NULL,
			severity SMALLINT NOT NULL,
			culpability SMALLINT NOT NULL,
			reviewed_at BIGINT NOT NULL,
			notes TEXT NOT NULL DEFAULT '',
			is_active BOOLEAN NOT NULL,
			amendments INTEGER NOT NULL DEFAULT 0,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (record_hash, idx)
		);`

	createReactionsTable = `
		CREATE TABLE IF NOT EXISTS mirror_reactions (
			record_hash VARCHAR(256) NOT NULL,
			disputer VARCHAR(256) NOT NULL,
			idx INTEGER NOT NULL,
			reactor VARCHAR(256) NOT NULL,
			supports_dispute BOOLEAN NOT NULL,
			reacted_at BIGINT NOT NULL,
			synced_at TIMESTAMP WITH TIME ZONE DEFAULT NOW(),
			PRIMARY KEY (record_hash, disputer, idx)
		);`

	createSyncRunsTable = `
		CREATE TABLE IF NOT EXISTS mirror_sync_runs (
			run_id UUID PRIMARY KEY,
			kind VARCHAR(32) NOT NULL,
			started_at TIMESTAMP WITH TIME ZONE NOT NULL,
			finished_at TIMESTAMP WITH TIME ZONE,
			applied INTEGER NOT NULL DEFAULT 0,
			failed INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);`

	addReviewAmendments = `
		ALTER TABLE mirror_reviews ADD COLUMN IF NOT EXISTS amendments INTEGER NOT NULL DEFAULT 0;`

	createMirrorIndexes = `
		CREATE INDEX IF NOT EXISTS idx_mirror_wallets_identity ON mirror_wallets(identity_id);
		CREATE INDEX IF NOT EXISTS idx_mirror_roles_identity ON mirror_record_roles(identity_id) WHERE is_active;
		CREATE INDEX IF NOT EXISTS idx_mirror_permissions_sharer ON mirror_permissions(sharer);
		CREATE INDEX IF NOT EXISTS idx_mirror_permissions_receiver ON mirror_permissions(receiver, record_id);
		CREATE INDEX IF NOT EXISTS idx_mirror_anchors_record ON mirror_anchors(record_id);
		CREATE INDEX IF NOT EXISTS idx_mirror_anchors_subject ON mirror_anchors(subject);
		CREATE INDEX IF NOT EXISTS idx_mirror_reviews_reviewer ON mirror_reviews(reviewer);`
)
