package database

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/medrex/record-provenance/pkg/config"
	"github.com/medrex/record-provenance/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateSchema(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, logger.NewWithOutput("error", io.Discard))
	for _, stmt := range SchemaStatements() {
		mock.ExpectExec(regexp.QuoteMeta(stmt)).WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, db.CreateSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateSchema_StopsOnError(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db := Wrap(sqlDB, logger.NewWithOutput("error", io.Discard))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS mirror_identities").WillReturnError(errors.New("permission denied"))

	err = db.CreateSchema(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "permission denied")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestWithTx(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	db := Wrap(sqlDB, logger.NewWithOutput("error", io.Discard))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM mirror_reviews").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()
	err = db.WithTx(context.Background(), func(tx *sql.Tx) error {
		_, err := tx.Exec("DELETE FROM mirror_reviews WHERE record_hash = $1", "H1")
		return err
	})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectRollback()
	err = db.WithTx(context.Background(), func(tx *sql.Tx) error {
		return errors.New("boom")
	})
	assert.EqualError(t, err, "boom")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestConnectionString(t *testing.T) {
	cfg := &config.DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p", Name: "mirror", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5433 user=u password=p dbname=mirror sslmode=disable", ConnectionString(cfg))
}
