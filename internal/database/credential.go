package database

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	rerrors "github.com/savaki/secrets-rotator/internal/errors"
)

type Engine string

const (
	EngineMySQL    Engine = "mysql"
	EngineMariaDB  Engine = "mariadb"
	EnginePostgres Engine = "postgres"
)

// ParseEngine normalizes the engine names found in RDS secrets.
func ParseEngine(s string) (Engine, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "mysql", "aurora-mysql", "aurora":
		return EngineMySQL, nil
	case "mariadb":
		return EngineMariaDB, nil
	case "postgres", "postgresql", "aurora-postgresql":
		return EnginePostgres, nil
	default:
		return "", fmt.Errorf("%w: unsupported database engine %q", rerrors.ErrInvalidSecret, s)
	}
}

// DefaultPort returns the listener port an engine uses unless told otherwise.
func (e Engine) DefaultPort() int {
	if e == EnginePostgres {
		return 5432
	}
	return 3306
}

// Credential identifies a database login.
type Credential struct {
	Engine   Engine
	Host     string
	Port     int
	Username string
	Password string
	DBName   string
}

func (c Credential) Validate() error {
	switch {
	case c.Host == "":
		return fmt.Errorf("%w: host is required", rerrors.ErrInvalidSecret)
	case c.Username == "":
		return fmt.Errorf("%w: username is required", rerrors.ErrInvalidSecret)
	case c.Password == "":
		return fmt.Errorf("%w: password is required", rerrors.ErrInvalidSecret)
	case c.Port < 1 || c.Port > 65535:
		return fmt.Errorf("%w: port %d out of range", rerrors.ErrInvalidSecret, c.Port)
	}
	return nil
}

// Address returns host:port.
func (c Credential) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// SameTarget reports whether c and other log into the same user on the same server.
func (c Credential) SameTarget(other Credential) bool {
	return c.Engine == other.Engine &&
		strings.EqualFold(c.Host, other.Host) &&
		c.Port == other.Port &&
		c.Username == other.Username
}

// String never includes the password.
func (c Credential) String() string {
	return fmt.Sprintf("%s://%s@%s", c.Engine, c.Username, c.Address())
}
