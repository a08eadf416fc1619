//go:build integration

package mirror

import (
	"context"
	"io"
	"strconv"
	"testing"
	"time"

	"github.com/medrex/record-provenance/pkg/config"
	"github.com/medrex/record-provenance/pkg/database"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/medrex/record-provenance/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupPostgres(t *testing.T) *database.DB {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_DB":       "provenance_test",
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "testpass",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	postgres, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { postgres.Terminate(ctx) })

	host, err := postgres.Host(ctx)
	require.NoError(t, err)
	port, err := postgres.MappedPort(ctx, "5432")
	require.NoError(t, err)
	portNum, err := strconv.Atoi(port.Port())
	require.NoError(t, err)

	cfg := &config.DatabaseConfig{
		Host:            host,
		Port:            portNum,
		User:            "test",
		Password:        "testpass",
		Name:            "provenance_test",
		SSLMode:         "disable",
		MaxOpenConns:    5,
		MaxIdleConns:    2,
		ConnMaxLifetime: 60,
	}

	db, err := database.NewConnection(cfg, logger.NewWithOutput("error", io.Discard))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	require.NoError(t, db.CreateSchema(ctx))
	return db
}

func TestRepository_Postgres(t *testing.T) {
	db := setupPostgres(t)
	repo := NewRepository(db, logger.NewWithOutput("error", io.Discard))
	ctx := context.Background()

	t.Run("schema is idempotent", func(t *testing.T) {
		assert.NoError(t, db.CreateSchema(ctx))
	})

	t.Run("role upsert overwrites", func(t *testing.T) {
		role := &types.RecordRole{RecordID: "rec-1", IdentityID: "bob", Role: types.RoleViewer, IsActive: true, GrantedAt: 1, LastModified: 1}
		require.NoError(t, repo.UpsertRecordRole(ctx, role))

		role.Role = types.RoleAdministrator
		role.LastModified = 2
		require.NoError(t, repo.UpsertRecordRole(ctx, role))

		var stored string
		require.NoError(t, db.QueryRowContext(ctx,
			`SELECT role FROM mirror_record_roles WHERE record_id = $1 AND identity_id = $2`, "rec-1", "bob").Scan(&stored))
		assert.Equal(t, "administrator", stored)
	})

	t.Run("review replay is harmless", func(t *testing.T) {
		anchor := &types.AnchoredRecord{RecordHash: "H1", RecordID: "rec-1", Subject: "patient-7", CreatedAt: 1, CreatedBy: "alice"}
		require.NoError(t, repo.UpsertAnchor(ctx, anchor))
		require.NoError(t, repo.UpsertAnchor(ctx, anchor))

		reviews := []*types.Review{
			{RecordHash: "H1", Index: 0, Reviewer: "bob", ReviewType: types.ReviewVerification, Timestamp: 2},
			{RecordHash: "H1", Index: 1, Reviewer: "bob", ReviewType: types.ReviewDispute, Severity: 2, Culpability: 3, Timestamp: 3, IsActive: true, Amendments: 1},
		}
		require.NoError(t, repo.ReplaceReviews(ctx, "H1", reviews))
		require.NoError(t, repo.ReplaceReviews(ctx, "H1", reviews))

		count, err := repo.ReviewCount(ctx, "H1")
		require.NoError(t, err)
		assert.Equal(t, 2, count)

		stats, err := repo.ReviewStats(ctx, "H1")
		require.NoError(t, err)
		assert.Equal(t, types.ReviewStats{RecordHash: "H1", Total: 2, ActiveDisputes: 1, Retracted: 1, Amendments: 1}, *stats)

		disputers, err := repo.Disputers(ctx, "H1")
		require.NoError(t, err)
		assert.Equal(t, []string{"bob"}, disputers)

		hashes, err := repo.AnchorHashes(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{"H1"}, hashes)
	})

	t.Run("sync runs", func(t *testing.T) {
		runID, err := repo.StartSyncRun(ctx, ReasonSweep)
		require.NoError(t, err)
		require.NoError(t, repo.FinishSyncRun(ctx, runID, 3, 0, nil))

		var applied int
		require.NoError(t, db.QueryRowContext(ctx, `SELECT applied FROM mirror_sync_runs WHERE run_id = $1`, runID).Scan(&applied))
		assert.Equal(t, 3, applied)
	})
}
