package database

import (
	"net/url"
	"strconv"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
)

type dialect interface {
	driver() string
	dsn(cred Credential, timeout time.Duration) string
	setPassword(admin Credential, username, password string) (string, []any)
}

func dialectFor(engine Engine) dialect {
	if engine == EnginePostgres {
		return postgresDialect{}
	}
	return mysqlDialect{}
}

type mysqlDialect struct{}

func (mysqlDialect) driver() string { return "mysql" }

func (mysqlDialect) dsn(cred Credential, timeout time.Duration) string {
	cfg := mysql.NewConfig()
	cfg.User = cred.Username
	cfg.Passwd = cred.Password
	cfg.Net = "tcp"
	cfg.Addr = cred.Address()
	cfg.DBName = cred.DBName
	cfg.Timeout = timeout
	cfg.ReadTimeout = timeout
	cfg.WriteTimeout = timeout
	cfg.TLSConfig = "preferred"
	// ALTER USER cannot be prepared server-side
	cfg.InterpolateParams = true
	return cfg.FormatDSN()
}

func (mysqlDialect) setPassword(admin Credential, username, password string) (string, []any) {
	if admin.Username == username {
		return "ALTER USER CURRENT_USER() IDENTIFIED BY ?", []any{password}
	}
	return "ALTER USER ?@'%' IDENTIFIED BY ?", []any{username, password}
}

type postgresDialect struct{}

func (postgresDialect) driver() string { return "postgres" }

func (postgresDialect) dsn(cred Credential, timeout time.Duration) string {
	dbname := cred.DBName
	if dbname == "" {
		dbname = "postgres"
	}

	query := url.Values{}
	query.Set("sslmode", "require")
	if seconds := int(timeout / time.Second); seconds > 0 {
		query.Set("connect_timeout", strconv.Itoa(seconds))
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(cred.Username, cred.Password),
		Host:     cred.Address(),
		Path:     "/" + dbname,
		RawQuery: query.Encode(),
	}
	return u.String()
}

func (postgresDialect) setPassword(_ Credential, username, password string) (string, []any) {
	// Utility statements take no bind parameters in Postgres.
	return "ALTER USER " + pq.QuoteIdentifier(username) + " WITH PASSWORD " + pq.QuoteLiteral(password), nil
}
