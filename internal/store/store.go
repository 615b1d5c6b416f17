// Package store provides storage backends for KeikobaBot.
//
// It persists users (with their embedded group lists and conversation
// sessions), groups, membership relations, practices and the practice audit
// log. SQLite is the default backend; PostgreSQL is available for shared
// deployments and an in-memory store backs tests.
package store

import (
	"errors"
	"strings"
	"time"

	"github.com/BTreeMap/KeikobaBot/internal/models"
)

// ErrSessionConflict is returned by CompareAndSwapUserSession when the
// stored session version no longer matches the version read at load time.
var ErrSessionConflict = errors.New("session was modified concurrently")

// PracticeLog is one audit entry of a practice mutation.
type PracticeLog struct {
	GroupID  string    `json:"group_id"`
	LoggedAt time.Time `json:"logged_at"`
	Entry    string    `json:"entry"`
}

// Store is the persistence contract the conversation engine, admin API and
// notifier run against.
type Store interface {
	// Users. GetUser returns (nil, nil) when the user does not exist.
	// DeleteUser removes the user row and every relation row for the id.
	GetUser(userID string) (*models.User, error)
	CreateUser(userID string) error
	DeleteUser(userID string) error
	UpdateUserGroups(userID string, groups []models.GroupRef) error

	// Sessions. A nil session clears the stored value (SQL NULL); both
	// variants bump the session version. CompareAndSwapUserSession fails
	// with ErrSessionConflict unless the stored version equals expected.
	UpdateUserSession(userID string, session *models.Session) error
	CompareAndSwapUserSession(userID string, session *models.Session, expectedVersion int64) error

	// Groups. GetGroup returns (nil, nil) when absent. DeleteGroup fails
	// with models.ErrGroupNotEmpty while members remain.
	GetGroup(groupID string) (*models.Group, error)
	ListGroups() ([]models.Group, error)
	CreateGroup(g models.Group) error
	UpdateGroupName(groupID, name string) error
	DeleteGroup(groupID string) error

	// Relations.
	AddRelation(userID, groupID string) error
	DeleteRelation(userID, groupID string) error
	ListGroupMembers(groupID string) ([]string, error)
	CountGroupMembers(groupID string) (int, error)

	// Practices. ListPracticesFrom returns practices with date >= from
	// (YYYY-MM-DD) ordered by the composite key; ListPracticesOn returns
	// the practices of exactly one date.
	CreatePractice(p models.Practice) error
	PracticeExists(groupID, dateStartPlace string) (bool, error)
	ListPracticesFrom(groupID, from string) ([]models.Practice, error)
	ListPracticesOn(groupID, date string) ([]models.Practice, error)
	DeletePractice(groupID, dateStartPlace string) error

	// Audit log.
	AppendPracticeLog(groupID, entry string) error
	ListPracticeLogs(groupID string) ([]PracticeLog, error)

	Close() error
}

// Opts holds store configuration options.
type Opts struct {
	// DSN is the database connection string: a file path for SQLite, a
	// connection URL for PostgreSQL.
	DSN string
}

// Option defines a configuration option for store constructors.
type Option func(*Opts)

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType classifies a DSN as "postgres" or "sqlite". Connection URLs
// and key=value connection strings are Postgres; anything else is treated as
// a SQLite file path.
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}
