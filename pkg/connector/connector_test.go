package connector

import (
	"context"
	"database/sql/driver"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/snowflakedb/gosnowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/schemadiff/pkg/config"
)

func TestSQLState(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "pgx", err: &pgconn.PgError{Code: "42P07", Message: "relation exists"}, want: "42P07"},
		{name: "lib/pq", err: &pq.Error{Code: "0A000", Message: "not supported"}, want: "0A000"},
		{name: "snowflake", err: &gosnowflake.SnowflakeError{Number: 2003, SQLState: "02000"}, want: "02000"},
		{name: "wrapped", err: fmt.Errorf("exec: %w", &pgconn.PgError{Code: "23505"}), want: "23505"},
		{name: "plain", err: fmt.Errorf("boom"), want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SQLState(tt.err))
		})
	}
}

func TestErrorMessage(t *testing.T) {
	assert.Equal(t, "relation exists", ErrorMessage(&pgconn.PgError{Code: "42P07", Message: "relation exists"}))
	assert.Equal(t, "boom", ErrorMessage(fmt.Errorf("boom")))
}

func TestIsConnectionError(t *testing.T) {
	assert.True(t, IsConnectionError(driver.ErrBadConn))
	assert.True(t, IsConnectionError(&pgconn.PgError{Code: "08006"}))
	assert.True(t, IsConnectionError(fmt.Errorf("dial tcp 127.0.0.1:5432: connect: connection refused")))
	assert.False(t, IsConnectionError(&pgconn.PgError{Code: "42601"}))
	assert.False(t, IsConnectionError(nil))
}

func TestWrapDB_SelectRebindsPlaceholders(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn := WrapDB(db, config.DriverPgx, zaptest.NewLogger(t))
	defer conn.Close()

	mock.ExpectQuery(`SELECT name FROM things WHERE kind = \$1`).
		WithArgs("table").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("a").AddRow("b"))

	var names []string
	err = conn.SelectWithTimeout(context.Background(), &names, "SELECT name FROM things WHERE kind = ?", time.Second, "table")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, names)
	assert.Equal(t, config.DriverPgx, conn.Driver())

	mock.ExpectClose()
}

func TestWrapDB_ServerVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn := WrapDB(db, config.DriverPostgres, zaptest.NewLogger(t))

	mock.ExpectQuery(`SHOW server_version`).
		WillReturnRows(sqlmock.NewRows([]string{"server_version"}).AddRow("15.4 (Debian 15.4-1)"))

	version, err := conn.ServerVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "15.4 (Debian 15.4-1)", version)

	mock.ExpectClose()
	require.NoError(t, conn.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecWithTimeout_ZeroTimeoutUsesParentContext(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	conn := WrapDB(db, config.DriverPgx, zaptest.NewLogger(t))

	mock.ExpectExec(`CREATE SCHEMA "s"`).WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = conn.ExecWithTimeout(context.Background(), `CREATE SCHEMA "s"`, 0)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
