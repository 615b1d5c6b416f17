// Package store provides storage backends for KeikobaBot.
//
// This file implements the PostgreSQL-backed store for shared deployments.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	_ "embed"

	"github.com/BTreeMap/KeikobaBot/internal/models"
	"github.com/lib/pq"
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// PostgresStore implements Store on PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL store with the given DSN.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewPostgresStore invoked", "DSN_set", cfg.DSN != "")

	if cfg.DSN == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run Postgres migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")

	return &PostgresStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) GetUser(userID string) (*models.User, error) {
	var groupsRaw string
	var sessionRaw sql.NullString
	var version int64
	err := s.db.QueryRow(
		`SELECT groups, session, session_version FROM users WHERE user_id = $1`, userID,
	).Scan(&groupsRaw, &sessionRaw, &version)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetUser failed", "error", err, "userID", userID)
		return nil, fmt.Errorf("failed to query user %s: %w", userID, err)
	}

	groups, err := decodeGroups(groupsRaw)
	if err != nil {
		return nil, err
	}
	session, err := decodeSession(sessionRaw)
	if err != nil {
		return nil, err
	}
	return &models.User{UserID: userID, Groups: groups, Session: session, SessionVersion: version}, nil
}

func (s *PostgresStore) CreateUser(userID string) error {
	_, err := s.db.Exec(
		`INSERT INTO users (user_id, groups, session, session_version) VALUES ($1, '[]', NULL, 0)`, userID,
	)
	if err != nil {
		slog.Error("PostgresStore CreateUser failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to create user %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteUser(userID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM users WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteUser user row failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete user %s: %w", userID, err)
	}
	if _, err := tx.Exec(`DELETE FROM relations WHERE user_id = $1`, userID); err != nil {
		slog.Error("PostgresStore DeleteUser relations failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to delete relations of %s: %w", userID, err)
	}
	return tx.Commit()
}

func (s *PostgresStore) UpdateUserGroups(userID string, groups []models.GroupRef) error {
	raw, err := encodeGroups(groups)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(`UPDATE users SET groups = $1 WHERE user_id = $2`, raw, userID)
	if err != nil {
		slog.Error("PostgresStore UpdateUserGroups failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update groups of %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) UpdateUserSession(userID string, session *models.Session) error {
	raw, err := encodeSession(session)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE users SET session = $1, session_version = session_version + 1 WHERE user_id = $2`,
		raw, userID,
	)
	if err != nil {
		slog.Error("PostgresStore UpdateUserSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update session of %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

func (s *PostgresStore) CompareAndSwapUserSession(userID string, session *models.Session, expectedVersion int64) error {
	raw, err := encodeSession(session)
	if err != nil {
		return err
	}
	res, err := s.db.Exec(
		`UPDATE users SET session = $1, session_version = session_version + 1
		 WHERE user_id = $2 AND session_version = $3`,
		raw, userID, expectedVersion,
	)
	if err != nil {
		slog.Error("PostgresStore CompareAndSwapUserSession failed", "error", err, "userID", userID)
		return fmt.Errorf("failed to update session of %s: %w", userID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		slog.Warn("PostgresStore CompareAndSwapUserSession conflict", "userID", userID, "expectedVersion", expectedVersion)
		return ErrSessionConflict
	}
	return nil
}

func (s *PostgresStore) GetGroup(groupID string) (*models.Group, error) {
	var g models.Group
	err := s.db.QueryRow(
		`SELECT group_id, group_name, area FROM groups WHERE group_id = $1`, groupID,
	).Scan(&g.GroupID, &g.GroupName, &g.Area)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore GetGroup failed", "error", err, "groupID", groupID)
		return nil, fmt.Errorf("failed to query group %s: %w", groupID, err)
	}
	return &g, nil
}

func (s *PostgresStore) ListGroups() ([]models.Group, error) {
	rows, err := s.db.Query(`SELECT group_id, group_name, area FROM groups ORDER BY group_id`)
	if err != nil {
		slog.Error("PostgresStore ListGroups query failed", "error", err)
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

func (s *PostgresStore) CreateGroup(g models.Group) error {
	_, err := s.db.Exec(
		`INSERT INTO groups (group_id, group_name, area) VALUES ($1, $2, $3)`,
		g.GroupID, g.GroupName, g.Area,
	)
	if err != nil {
		slog.Error("PostgresStore CreateGroup failed", "error", err, "groupID", g.GroupID)
		return fmt.Errorf("failed to create group %s: %w", g.GroupID, err)
	}
	return nil
}

func (s *PostgresStore) UpdateGroupName(groupID, name string) error {
	res, err := s.db.Exec(`UPDATE groups SET group_name = $1 WHERE group_id = $2`, name, groupID)
	if err != nil {
		slog.Error("PostgresStore UpdateGroupName failed", "error", err, "groupID", groupID)
		return fmt.Errorf("failed to rename group %s: %w", groupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrGroupNotFound
	}
	return nil
}

func (s *PostgresStore) DeleteGroup(groupID string) error {
	count, err := s.CountGroupMembers(groupID)
	if err != nil {
		return err
	}
	if count > 0 {
		return models.ErrGroupNotEmpty
	}
	res, err := s.db.Exec(`DELETE FROM groups WHERE group_id = $1`, groupID)
	if err != nil {
		slog.Error("PostgresStore DeleteGroup failed", "error", err, "groupID", groupID)
		return fmt.Errorf("failed to delete group %s: %w", groupID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrGroupNotFound
	}
	return nil
}

func (s *PostgresStore) AddRelation(userID, groupID string) error {
	_, err := s.db.Exec(
		`INSERT INTO relations (user_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
		userID, groupID,
	)
	if err != nil {
		slog.Error("PostgresStore AddRelation failed", "error", err, "userID", userID, "groupID", groupID)
		return fmt.Errorf("failed to add relation %s/%s: %w", userID, groupID, err)
	}
	return nil
}

func (s *PostgresStore) DeleteRelation(userID, groupID string) error {
	_, err := s.db.Exec(
		`DELETE FROM relations WHERE user_id = $1 AND group_id = $2`, userID, groupID,
	)
	if err != nil {
		slog.Error("PostgresStore DeleteRelation failed", "error", err, "userID", userID, "groupID", groupID)
		return fmt.Errorf("failed to delete relation %s/%s: %w", userID, groupID, err)
	}
	return nil
}

func (s *PostgresStore) ListGroupMembers(groupID string) ([]string, error) {
	rows, err := s.db.Query(`SELECT user_id FROM relations WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		slog.Error("PostgresStore ListGroupMembers query failed", "error", err, "groupID", groupID)
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

func (s *PostgresStore) CountGroupMembers(groupID string) (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM relations WHERE group_id = $1`, groupID).Scan(&count)
	if err != nil {
		slog.Error("PostgresStore CountGroupMembers failed", "error", err, "groupID", groupID)
		return 0, fmt.Errorf("failed to count members of %s: %w", groupID, err)
	}
	return count, nil
}

func (s *PostgresStore) CreatePractice(p models.Practice) error {
	_, err := s.db.Exec(
		`INSERT INTO practices (group_id, date_start_place, group_name, place, date, start_time, end_time, address, latitude, longitude)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		p.GroupID, p.DateStartPlace, p.GroupName, p.Place, p.Date, p.StartTime, p.EndTime, p.Address, p.Latitude, p.Longitude,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return models.ErrPracticeExists
		}
		slog.Error("PostgresStore CreatePractice failed", "error", err, "groupID", p.GroupID, "key", p.DateStartPlace)
		return fmt.Errorf("failed to create practice %s/%s: %w", p.GroupID, p.DateStartPlace, err)
	}
	return nil
}

func (s *PostgresStore) PracticeExists(groupID, dateStartPlace string) (bool, error) {
	var one int
	err := s.db.QueryRow(
		`SELECT 1 FROM practices WHERE group_id = $1 AND date_start_place = $2`, groupID, dateStartPlace,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		slog.Error("PostgresStore PracticeExists failed", "error", err, "groupID", groupID, "key", dateStartPlace)
		return false, fmt.Errorf("failed to check practice %s/%s: %w", groupID, dateStartPlace, err)
	}
	return true, nil
}

func (s *PostgresStore) ListPracticesFrom(groupID, from string) ([]models.Practice, error) {
	return s.queryPractices(
		`SELECT group_id, date_start_place, group_name, place, date, start_time, end_time, address, latitude, longitude
		 FROM practices WHERE group_id = $1 AND date >= $2 ORDER BY date_start_place`,
		groupID, from,
	)
}

func (s *PostgresStore) ListPracticesOn(groupID, date string) ([]models.Practice, error) {
	return s.queryPractices(
		`SELECT group_id, date_start_place, group_name, place, date, start_time, end_time, address, latitude, longitude
		 FROM practices WHERE group_id = $1 AND date = $2 ORDER BY date_start_place`,
		groupID, date,
	)
}

func (s *PostgresStore) queryPractices(query string, args ...interface{}) ([]models.Practice, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		slog.Error("PostgresStore practice query failed", "error", err)
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

func (s *PostgresStore) DeletePractice(groupID, dateStartPlace string) error {
	res, err := s.db.Exec(
		`DELETE FROM practices WHERE group_id = $1 AND date_start_place = $2`, groupID, dateStartPlace,
	)
	if err != nil {
		slog.Error("PostgresStore DeletePractice failed", "error", err, "groupID", groupID, "key", dateStartPlace)
		return fmt.Errorf("failed to delete practice %s/%s: %w", groupID, dateStartPlace, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.ErrPracticeNotFound
	}
	return nil
}

func (s *PostgresStore) AppendPracticeLog(groupID, entry string) error {
	_, err := s.db.Exec(`INSERT INTO practice_logs (group_id, entry) VALUES ($1, $2)`, groupID, entry)
	if err != nil {
		slog.Error("PostgresStore AppendPracticeLog failed", "error", err, "groupID", groupID)
		return fmt.Errorf("failed to append practice log for %s: %w", groupID, err)
	}
	return nil
}

func (s *PostgresStore) ListPracticeLogs(groupID string) ([]PracticeLog, error) {
	rows, err := s.db.Query(
		`SELECT group_id, logged_at, entry FROM practice_logs WHERE group_id = $1 ORDER BY id`, groupID,
	)
	if err != nil {
		slog.Error("PostgresStore ListPracticeLogs query failed", "error", err, "groupID", groupID)
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
