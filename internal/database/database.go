// Package database applies and verifies rotated credentials against the
// live database server.
package database

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/rs/zerolog"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

// DefaultConnectTimeout bounds every connection attempt.
const DefaultConnectTimeout = 5 * time.Second

// Opener opens a handle for driver/dsn. sql.Open does not dial, so errors
// surface on the first ping.
type Opener func(ctx context.Context, driver, dsn string) (*sql.DB, error)

func openSQL(_ context.Context, driver, dsn string) (*sql.DB, error) {
	return sql.Open(driver, dsn)
}

// SQL talks to MySQL, MariaDB and Postgres through database/sql.
type SQL struct {
	open    Opener
	timeout time.Duration
}

// New returns a SQL client using the registered mysql and postgres drivers.
func New(timeout time.Duration) *SQL {
	return NewWithOpener(openSQL, timeout)
}

// NewWithOpener lets tests substitute the connection factory.
func NewWithOpener(open Opener, timeout time.Duration) *SQL {
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	return &SQL{
		open:    open,
		timeout: timeout,
	}
}

// Ping logs in with cred and runs an authenticated query.
func (s *SQL) Ping(ctx context.Context, cred Credential) error {
	db, err := s.connect(ctx, cred)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var one int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("authenticated query failed for %s: %w", cred, classify(err))
	}
	return nil
}

// SetPassword logs in as admin and changes username's password.
func (s *SQL) SetPassword(ctx context.Context, admin Credential, username, password string) error {
	logger := zerolog.Ctx(ctx)

	db, err := s.connect(ctx, admin)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	stmt, args := dialectFor(admin.Engine).setPassword(admin, username, password)
	if _, err := db.ExecContext(ctx, stmt, args...); err != nil {
		if isConnectionError(err) {
			return fmt.Errorf("failed to set password for %s: %v: %w", username, err, rerrors.ErrDatabaseUnavailable)
		}
		return fmt.Errorf("failed to set password for %s: %w", username, err)
	}

	logger.Info().
		Str("database", admin.String()).
		Str("username", username).
		Msg("Database password updated")

	return nil
}

func (s *SQL) connect(ctx context.Context, cred Credential) (*sql.DB, error) {
	if err := cred.Validate(); err != nil {
		return nil, err
	}

	d := dialectFor(cred.Engine)
	db, err := s.open(ctx, d.driver(), d.dsn(cred, s.timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %v: %w", cred, err, rerrors.ErrDatabaseUnavailable)
	}
	db.SetMaxOpenConns(1)

	pingCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", cred, classify(err))
	}

	return db, nil
}

// classify maps driver errors onto the rotation error taxonomy. Anything that
// is not an explicit authentication rejection is treated as transient.
func classify(err error) error {
	if isAuthError(err) {
		return fmt.Errorf("%v: %w", err, rerrors.ErrAuthenticationFailed)
	}
	return fmt.Errorf("%v: %w", err, rerrors.ErrDatabaseUnavailable)
}

func isAuthError(err error) bool {
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		// ER_ACCESS_DENIED_ERROR. 1044 (ER_DBACCESS_DENIED_ERROR) is raised
		// after a successful login and says nothing about the password.
		return mysqlErr.Number == 1045
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// invalid_password, invalid_authorization_specification
		return pqErr.Code == "28P01" || pqErr.Code == "28000"
	}

	return false
}

func isConnectionError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
