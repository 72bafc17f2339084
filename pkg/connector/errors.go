// pkg/connector/errors.go
package connector

import (
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgconn"
	"github.com/lib/pq"
	"github.com/snowflakedb/gosnowflake"
)

// SQLState extracts the five-character SQLSTATE code from a driver error.
// It returns "" when err carries no code.
func SQLState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}

	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) {
		return sfErr.SQLState
	}

	return ""
}

// ErrorMessage returns the server-side message of a driver error, or err.Error()
func ErrorMessage(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Message
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Message
	}

	var sfErr *gosnowflake.SnowflakeError
	if errors.As(err, &sfErr) && sfErr.Message != "" {
		return sfErr.Message
	}

	return err.Error()
}

// IsConnectionError reports whether err means the server could not be reached
// or the session was lost, as opposed to a statement being rejected.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, driver.ErrBadConn) {
		return true
	}

	// Class 08: connection exception
	if code := SQLState(err); code != "" {
		return strings.HasPrefix(code, "08")
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "no such host") ||
		strings.Contains(msg, "failed to connect") ||
		strings.Contains(msg, "ping timed out")
}
