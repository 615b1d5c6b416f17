// Package store provides storage backends for KeikobaBot.
//
// This file implements the SQLite-backed store, the default for single-node
// deployments.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "embed"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories.
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// SQLiteStore implements Store on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN is a file path to the SQLite database file; the parent directory
// is created if it does not exist.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run SQLite migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) GetUser(userID string) (*models.User, error) {
	var groupsRaw string
	var sessionRaw sql.NullString
	var version int64
	err := s.db.QueryRow(
		`SELECT groups, session, session_version FROM users WHERE user_id = ?`, userID,
	).Scan(&groupsRaw, &sessionRaw, &version)
	if err == sql.ErrNoRows {
		slog.Debug("SQLiteStore GetUser not found", "userID", userID)
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}

	groups, err := decodeGroups(groupsRaw)
	if err != nil {
		slog.Error("SQLiteStore GetUser groups decode failed", "error", err, "userID", userID)
		return nil, err
	}
	session, err := decodeSession(sessionRaw)
	if err != nil {
		slog.Error("SQLiteStore GetUser session decode failed", "error", err, "userID", userID)
		return nil, err
	}
	return &models.User{UserID: userID, Groups: groups, Session: session, SessionVersion: version}, nil
}

func (s *SQLiteStore) CreateUser(userID string) error {
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, groups, session, session_version) VALUES (?, '[]', NULL, 0)`, userID,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to create user %s: %w", userID, err)
	}
	slog.Debug("SQLiteStore CreateUser succeeded", "userID", userID)
	return nil
}

func (s *SQLiteStore) DeleteUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM users WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteUser user row failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete user %s: %w", userID, err)
	}
	if _, err := tx.Exec(`DELETE FROM relations WHERE user_id = ?`, userID); err != nil {
		slog.Error("SQLiteStore DeleteUser relations failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete relations of %s: %w", userID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit user deletion: %w", err)
	}
	slog.Debug("SQLiteStore DeleteUser succeeded", "userID", userID)
	return nil
}

func (s *SQLiteStore) UpdateUserGroups(userID string, groups []models.GroupRef) error {
	raw, err := encodeGroups(groups)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE users SET groups = ? WHERE user_id = ?`, raw, userID)
	if err != nil {
		slog.Error("SQLiteStore UpdateUserGroups failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update groups of %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	slog.Debug("SQLiteStore UpdateUserGroups succeeded", "userID", userID, "count", len(groups))
	return nil
}

func (s *SQLiteStore) UpdateUserSession(userID string, session *models.Session) error {
	raw, err := encodeSession(session)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE users SET session = ?, session_version = session_version + 1 WHERE user_id = ?`,
		raw, userID,
	)
	if err != nil {
		slog.Error("SQLiteStore UpdateUserSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update session of %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	slog.Debug("SQLiteStore UpdateUserSession succeeded", "userID", userID, "cleared", session.IsZero())
	return nil
}

func (s *SQLiteStore) CompareAndSwapUserSession(userID string, session *models.Session, expectedVersion int64) error {
	raw, err := encodeSession(session)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE users SET session = ?, session_version = session_version + 1
		 WHERE user_id = ? AND session_version = ?`,
		raw, userID, expectedVersion,
	)
	if err != nil {
		slog.Error("SQLiteStore CompareAndSwapUserSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update session of %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("SQLiteStore CompareAndSwapUserSession conflict", "userID", userID, "expectedVersion", expectedVersion)
		return ErrSessionConflict
	}
	return nil
}

func (s *SQLiteStore) GetGroup(groupID string) (*models.Group, error) {
	var g models.Group
	err := s.db.QueryRow(
		`SELECT group_id, group_name, area FROM groups WHERE group_id = ?`, groupID,
	).Scan(&g.GroupID, &g.GroupName, &g.Area)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore GetGroup failed", "error", err, "groupID", groupID)
		return nil, fmt.Errorf("failed to query group %s: %w", groupID, err)
	}
	return &g, nil
}

func (s *SQLiteStore) ListGroups() ([]models.Group, error) {
	rows, err := s.db.Query(`SELECT group_id, group_name, area FROM groups ORDER BY group_id`)
	if err != nil {
		slog.Error("SQLiteStore ListGroups query failed", "error", err)
		return nil, fmt.Errorf("failed to query groups: %w", err)
	}
	defer rows.Close()

	var groups []models.Group
	for rows.Next() {
		var g models.Group
		if err := rows.Scan(&g.GroupID, &g.GroupName, &g.Area); err != nil {
			return nil, fmt.Errorf("failed to scan group row: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate group rows: %w", err)
	}
	return groups, nil
}

func (s *SQLiteStore) CreateGroup(g models.Group) error {
	_, err := s.db.Exec(
		`INSERT INTO groups (group_id, group_name, area) VALUES (?, ?, ?)`,
		g.GroupID, g.GroupName, g.Area,
	)
	if err != nil {
		slog.Error("SQLiteStore CreateGroup failed", "error", err, "groupID", g.GroupID)
		return fmt.Errorf("failed to create group %s: %w", g.GroupID, err)
	}
	slog.Debug("SQLiteStore CreateGroup succeeded", "groupID", g.GroupID, "name", g.GroupName)
	return nil
}

func (s *SQLiteStore) UpdateGroupName(groupID, name string) error {
	res, err := s.db.Exec(`UPDATE groups SET group_name = ? WHERE group_id = ?`, name, groupID)
	if err != nil {
		slog.Error("SQLiteStore UpdateGroupName failed", "error", err, "groupID", groupID)
		return fmt.Errorf("failed to rename group %s: %w", groupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrGroupNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteGroup(groupID string) error {
	count, err := s.CountGroupMembers(groupID)
	if err != nil {
		return err
	}
	if count > 0 {
		return models.ErrGroupNotEmpty
	}
	res, err := s.db.Exec(`DELETE FROM groups WHERE group_id = ?`, groupID)
	if err != nil {
		slog.Error("SQLiteStore DeleteGroup failed", "error", err, "groupID", groupID)
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrGroupNotFound
	}
	slog.Debug("SQLiteStore DeleteGroup succeeded", "groupID", groupID)
	return nil
}

func (s *SQLiteStore) AddRelation(userID, groupID string) error {
	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO relations (user_id, group_id) VALUES (?, ?)`, userID, groupID,
	)
	if err != nil {
		slog.Error("SQLiteStore AddRelation failed", "error", err, "userID", userID, "groupID", groupID)
		return fmt.Errorf("failed to add relation %s/%s: %w", userID, groupID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteRelation(userID, groupID string) error {
	_, err := s.db.Exec(
		`DELETE FROM relations WHERE user_id = ? AND group_id = ?`, userID, groupID,
	)
	if err != nil {
		slog.Error("SQLiteStore DeleteRelation failed", "error", err, "userID", userID, "groupID", groupID)
		return fmt.Errorf("failed to delete relation %s/%s: %w", userID, groupID, err)
	}
	return nil
}

func (s *SQLiteStore) ListGroupMembers(groupID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM relations WHERE group_id = ? ORDER BY user_id`, groupID)
	if err != nil {
		slog.Error("SQLiteStore ListGroupMembers query failed", "error", err, "groupID", groupID)
		return nil, fmt.Errorf("failed to query members of %s: %w", groupID, err)
	}
	defer rows.Close()

	var members []string
	for rows.Next() {
		var userID string
		if err := rows.Scan(&userID); err != nil {
			return nil, fmt.Errorf("failed to scan member row: %w", err)
		}
		members = append(members, userID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate member rows: %w", err)
	}
	return members, nil
}

func (s *SQLiteStore) CountGroupMembers(groupID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM relations WHERE group_id = ?`, groupID).Scan(&count)
	if err != nil {
		slog.Error("SQLiteStore CountGroupMembers failed", "error", err, "groupID", groupID)
		return 0, fmt.Errorf("failed to count members of %s: %w", groupID, err)
	}
	return count, nil
}

func (s *SQLiteStore) CreatePractice(p models.Practice) error {
	_, err := s.db.Exec(
		`INSERT INTO practices (group_id, date_start_place, group_name, place, date, start_time, end_time, address, latitude, longitude)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.GroupID, p.DateStartPlace, p.GroupName, p.Place, p.Date, p.StartTime, p.EndTime, p.Address, p.Latitude, p.Longitude,
	)
	if err != nil {
		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
			return models.ErrPracticeExists
		}
		slog.Error("SQLiteStore CreatePractice failed", "error", err, "groupID", p.GroupID, "key", p.DateStartPlace)
		return fmt.Errorf("failed to create practice %s/%s: %w", p.GroupID, p.DateStartPlace, err)
	}
	slog.Debug("SQLiteStore CreatePractice succeeded", "groupID", p.GroupID, "key", p.DateStartPlace)
	return nil
}

func (s *SQLiteStore) PracticeExists(groupID, dateStartPlace string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM practices WHERE group_id = ? AND date_start_place = ?`, groupID, dateStartPlace,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("SQLiteStore PracticeExists failed", "error", err, "groupID", groupID, "key", dateStartPlace)
		return false, fmt.Errorf("failed to check practice %s/%s: %w", groupID, dateStartPlace, err)
	}
	return true, nil
}

func (s *SQLiteStore) ListPracticesFrom(groupID, from string) ([]models.Practice, error) {
	return s.queryPractices(
		`SELECT group_id, date_start_place, group_name, place, date, start_time, end_time, address, latitude, longitude
		 FROM practices WHERE group_id = ? AND date >= ? ORDER BY date_start_place`,
		groupID, from,
	)
}

func (s *SQLiteStore) ListPracticesOn(groupID, date string) ([]models.Practice, error) {
	return s.queryPractices(
		`SELECT group_id, date_start_place, group_name, place, date, start_time, end_time, address, latitude, longitude
		 FROM practices WHERE group_id = ? AND date = ? ORDER BY date_start_place`,
		groupID, date,
	)
}

func (s *SQLiteStore) queryPractices(query string, args ...interface{}) ([]models.Practice, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("SQLiteStore practice query failed", "error", err)
		return nil, fmt.Errorf("failed to query practices: %w", err)
	}
	defer rows.Close()

	var practices []models.Practice
	for rows.Next() {
		var p models.Practice
		if err := rows.Scan(&p.GroupID, &p.DateStartPlace, &p.GroupName, &p.Place, &p.Date, &p.StartTime, &p.EndTime, &p.Address, &p.Latitude, &p.Longitude); err != nil {
			return nil, fmt.Errorf("failed to scan practice row: %w", err)
		}
		practices = append(practices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate practice rows: %w", err)
	}
	return practices, nil
}

func (s *SQLiteStore) DeletePractice(groupID, dateStartPlace string) error {
	res, err := s.db.Exec(
		`DELETE FROM practices WHERE group_id = ? AND date_start_place = ?`, groupID, dateStartPlace,
	)
	if err != nil {
		slog.Error("SQLiteStore DeletePractice failed", "error", err, "groupID", groupID, "key", dateStartPlace)
		return fmt.Errorf("failed to delete practice %s/%s: %w", groupID, dateStartPlace, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrPracticeNotFound
	}
	return nil
}

func (s *SQLiteStore) AppendPracticeLog(groupID, entry string) error {
	_, err := s.db.Exec(`INSERT INTO practice_logs (group_id, entry) VALUES (?, ?)`, groupID, entry)
	if err != nil {
		slog.Error("SQLiteStore AppendPracticeLog failed", "error", err, "groupID", groupID)
		return fmt.Errorf("failed to append practice log for %s: %w", groupID, err)
	}
	return nil
}

func (s *SQLiteStore) ListPracticeLogs(groupID string) ([]PracticeLog, error) {
	rows, err := s.db.Query(
		`SELECT group_id, logged_at, entry FROM practice_logs WHERE group_id = ? ORDER BY id`, groupID,
	)
	if err != nil {
		slog.Error("SQLiteStore ListPracticeLogs query failed", "error", err, "groupID", groupID)
		return nil, fmt.Errorf("failed to query practice logs of %s: %w", groupID, err)
	}
	defer rows.Close()

	var logs []PracticeLog
	for rows.Next() {
		var l PracticeLog
		if err := rows.Scan(&l.GroupID, &l.LoggedAt, &l.Entry); err != nil {
			return nil, fmt.Errorf("failed to scan practice log row: %w", err)
		}
		logs = append(logs, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate practice log rows: %w", err)
	}
	return logs, nil
}
