package applier

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/David-Botos/schemadiff/pkg/config"
	"github.com/David-Botos/schemadiff/pkg/connector"
	"github.com/David-Botos/schemadiff/pkg/event"
	"github.com/David-Botos/schemadiff/pkg/model"
)

func newMockConn(t *testing.T) (connector.DatabaseConnector, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return connector.WrapDB(db, config.DriverPostgres, zaptest.NewLogger(t)), mock
}

func tenStatementScript() (string, []string) {
	var (
		sb    strings.Builder
		stmts []string
	)
	sb.WriteString("-- Reconciliation script for database shop\n")
	for i := 1; i <= 10; i++ {
		stmt := fmt.Sprintf(`CREATE TABLE "public"."t%d" ("id" integer)`, i)
		stmts = append(stmts, stmt)
		fmt.Fprintf(&sb, "\n-- create table public.t%d\n%s;\n", i, stmt)
	}
	return sb.String(), stmts
}

func TestApply_IgnoresConfiguredCodes(t *testing.T) {
	conn, mock := newMockConn(t)
	script, stmts := tenStatementScript()

	for i, stmt := range stmts {
		exp := mock.ExpectExec(regexp.QuoteMeta(stmt))
		switch i {
		case 2:
			exp.WillReturnError(&pq.Error{Code: "42P07", Message: `relation "t3" already exists`})
		case 6:
			exp.WillReturnError(&pq.Error{Code: "0A000", Message: "feature not supported"})
		default:
			exp.WillReturnResult(sqlmock.NewResult(0, 0))
		}
	}

	rec := &event.Recorder{}
	a := New(Options{IgnoredCodes: []string{"0A000"}, IgnoreDuplicates: true}, zaptest.NewLogger(t))
	result, err := a.Apply(context.Background(), conn, script, rec)
	require.NoError(t, err)

	assert.Equal(t, 8, result.Executed)
	require.Len(t, result.Ignored, 2)
	assert.Equal(t, event.IgnoredError{
		Code:    "42P07",
		Message: `relation "t3" already exists`,
		Command: stmts[2],
	}, result.Ignored[0])
	assert.Equal(t, "0A000", result.Ignored[1].Code)
	assert.Equal(t, result.Ignored, rec.IgnoredErrors())

	progress := rec.ProgressEvents()
	require.Len(t, progress, 11)
	assert.Equal(t, 0, progress[0].Percent)
	assert.Equal(t, stmts[0], progress[0].Command)
	assert.Equal(t, model.ObjectTable, progress[0].Category)
	assert.Equal(t, 100, progress[10].Percent)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_DefaultCodesStayIgnored(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectExec(`CREATE EXTENSION`).WillReturnError(&pq.Error{Code: "0A000", Message: "feature not supported"})
	mock.ExpectExec(`CREATE SCHEMA`).WillReturnResult(sqlmock.NewResult(0, 0))

	a := New(Options{IgnoredCodes: []string{"42P07"}}, zaptest.NewLogger(t))
	result, err := a.Apply(context.Background(), conn, `CREATE EXTENSION "x"; CREATE SCHEMA "sales";`, event.Discard)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Executed)
	require.Len(t, result.Ignored, 1)
	assert.Equal(t, "0A000", result.Ignored[0].Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_StopsOnFatalError(t *testing.T) {
	conn, mock := newMockConn(t)
	script, stmts := tenStatementScript()

	for i := 0; i < 5; i++ {
		exp := mock.ExpectExec(regexp.QuoteMeta(stmts[i]))
		if i == 4 {
			exp.WillReturnError(&pq.Error{Code: "42601", Message: "syntax error"})
			continue
		}
		exp.WillReturnResult(sqlmock.NewResult(0, 0))
	}

	a := New(Options{}, zaptest.NewLogger(t))
	result, err := a.Apply(context.Background(), conn, script, event.Discard)
	require.Error(t, err)

	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 5, stmtErr.Index)
	assert.Equal(t, "42601", stmtErr.Code)
	assert.Equal(t, stmts[4], stmtErr.Statement)
	assert.Equal(t, 4, result.Executed)

	// Statements 6 to 10 never reach the server
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_DuplicatesAreFatalUnlessEnabled(t *testing.T) {
	conn, mock := newMockConn(t)
	mock.ExpectExec(`CREATE SCHEMA`).WillReturnError(&pq.Error{Code: "42P06", Message: "schema exists"})

	a := New(Options{}, zaptest.NewLogger(t))
	_, err := a.Apply(context.Background(), conn, `CREATE SCHEMA "sales";`, event.Discard)

	var stmtErr *StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, "42P06", stmtErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_Cancelled(t *testing.T) {
	conn, mock := newMockConn(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := New(Options{}, zaptest.NewLogger(t))
	result, err := a.Apply(ctx, conn, "DROP TABLE a; DROP TABLE b;", event.Discard)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.Executed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApply_EmptyScript(t *testing.T) {
	conn, mock := newMockConn(t)
	rec := &event.Recorder{}

	result, err := New(Options{}, zaptest.NewLogger(t)).Apply(context.Background(), conn, "-- nothing to do\n", rec)
	require.NoError(t, err)
	assert.Zero(t, result.Executed)
	require.Len(t, rec.ProgressEvents(), 1)
	assert.Equal(t, 100, rec.ProgressEvents()[0].Percent)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIsIgnorable(t *testing.T) {
	logger := zaptest.NewLogger(t)

	defaults := New(Options{}, logger)
	assert.True(t, defaults.IsIgnorable("0A000"))
	assert.False(t, defaults.IsIgnorable("42P07"))
	assert.False(t, defaults.IsIgnorable(""))

	// Configured codes extend the defaults instead of replacing them
	custom := New(Options{IgnoredCodes: []string{" 42p07 ", ""}}, logger)
	assert.True(t, custom.IsIgnorable("0A000"))
	assert.True(t, custom.IsIgnorable("42P07"))
	assert.False(t, custom.IsIgnorable("42P06"))

	empty := New(Options{IgnoredCodes: []string{}}, logger)
	assert.True(t, empty.IsIgnorable("0A000"))

	dups := New(Options{IgnoredCodes: []string{"0a000"}, IgnoreDuplicates: true}, logger)
	for _, code := range append([]string{"0A000"}, DuplicateObjectCodes...) {
		assert.True(t, dups.IsIgnorable(code), code)
	}
}

func TestSplitStatements(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   []string
	}{
		{
			name:   "simple",
			script: "CREATE SCHEMA a;\nCREATE SCHEMA b;",
			want:   []string{"CREATE SCHEMA a", "CREATE SCHEMA b"},
		},
		{
			name:   "comments dropped",
			script: "-- header; with semicolon\n/* block; */DROP TABLE x;\n-- trailing",
			want:   []string{"DROP TABLE x"},
		},
		{
			name:   "quoted semicolons",
			script: `ALTER TABLE t ALTER COLUMN c SET DEFAULT 'a;''b'; CREATE TABLE "odd;name" (id int);`,
			want:   []string{`ALTER TABLE t ALTER COLUMN c SET DEFAULT 'a;''b'`, `CREATE TABLE "odd;name" (id int)`},
		},
		{
			name:   "dollar quoted body",
			script: "CREATE FUNCTION f() RETURNS void AS $fn$ BEGIN PERFORM 1; END $fn$ LANGUAGE plpgsql;SELECT $1",
			want:   []string{"CREATE FUNCTION f() RETURNS void AS $fn$ BEGIN PERFORM 1; END $fn$ LANGUAGE plpgsql", "SELECT $1"},
		},
		{
			name:   "escape string",
			script: `INSERT INTO t VALUES (E'\';'); ALTER TABLE t ALTER COLUMN c SET DEFAULT e'a\\'; SELECT 1;`,
			want: []string{
				`INSERT INTO t VALUES (E'\';')`,
				`ALTER TABLE t ALTER COLUMN c SET DEFAULT e'a\\'`,
				`SELECT 1`,
			},
		},
		{
			name:   "identifier ending in e",
			script: `SELECT name'\'; SELECT 2;`,
			want:   []string{`SELECT name'\'`, `SELECT 2`},
		},
		{
			name:   "empty",
			script: " ;\n;-- only comments\n",
			want:   nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitStatements(tt.script))
		})
	}
}

func TestStatementCategory(t *testing.T) {
	assert.Equal(t, model.ObjectRole, statementCategory(`CREATE ROLE "app" LOGIN`))
	assert.Equal(t, model.ObjectSchema, statementCategory(`DROP SCHEMA "old" CASCADE`))
	assert.Equal(t, model.ObjectSequence, statementCategory(`CREATE SEQUENCE "s"."q" INCREMENT BY 1 START WITH 1`))
	assert.Equal(t, model.ObjectColumn, statementCategory(`ALTER TABLE "s"."t" ADD COLUMN "c" text`))
	assert.Equal(t, model.ObjectConstraint, statementCategory(`ALTER TABLE "s"."t" DROP CONSTRAINT "t_pkey"`))
	assert.Equal(t, model.ObjectPermission, statementCategory(`GRANT SELECT ON TABLE "s"."t" TO "r"`))
	assert.Equal(t, model.ObjectTable, statementCategory(`TRUNCATE "s"."t"`))
	assert.Equal(t, model.ObjectDatabase, statementCategory(`VACUUM`))
}
