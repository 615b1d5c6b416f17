// Package store: serialization of embedded user attributes.
package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/KeikobaBot/internal/models"
)

// encodeSession maps a session to its stored column value. The canonical
// cleared representation is SQL NULL; an empty session object is never
// written.
func encodeSession(s *models.Session) (interface{}, error) {
	if s.IsZero() {
		return nil, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal session: %w", err)
	}
	return string(raw), nil
}

// decodeSession maps a stored column value back to a session. NULL and, for
// robustness against rows written by older revisions, an empty object both
// decode to nil.
func decodeSession(raw sql.NullString) (*models.Session, error) {
	if !raw.Valid || raw.String == "" {
		return nil, nil
	}
	var s models.Session
	if err := json.Unmarshal([]byte(raw.String), &s); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	if s.IsZero() {
		return nil, nil
	}
	return &s, nil
}

func encodeGroups(groups []models.GroupRef) (string, error) {
	if groups == nil {
		groups = []models.GroupRef{}
	}
	raw, err := json.Marshal(groups)
	if err != nil {
		return "", fmt.Errorf("failed to marshal groups: %w", err)
	}
	return string(raw), nil
}

func decodeGroups(raw string) ([]models.GroupRef, error) {
	if raw == "" {
		return []models.GroupRef{}, nil
	}
	var groups []models.GroupRef
	if err := json.Unmarshal([]byte(raw), &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups: %w", err)
	}
	if groups == nil {
		groups = []models.GroupRef{}
	}
	return groups, nil
}
