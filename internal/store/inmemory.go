// Package store provides storage backends for KeikobaBot.
//
// This file implements an in-memory store used by tests and local
// experiments. It honors the same contracts as the SQL backends, including
// the canonical nil-session representation and version bumps.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/BTreeMap/KeikobaBot/internal/models"
)

type memUser struct {
	groups         []models.GroupRef
	session        *models.Session
	sessionVersion int64
}

// InMemoryStore is a mutex-guarded map-backed Store.
type InMemoryStore struct {
	mu        sync.Mutex
	users     map[string]*memUser
	groups    map[string]models.Group
	relations map[string]map[string]bool // groupID -> userID set
	practices map[string]map[string]models.Practice
	logs      map[string][]PracticeLog
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:     make(map[string]*memUser),
		groups:    make(map[string]models.Group),
		relations: make(map[string]map[string]bool),
		practices: make(map[string]map[string]models.Practice),
		logs:      make(map[string][]PracticeLog),
	}
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

func (s *InMemoryStore) GetUser(userID string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, nil
	}
	groups := make([]models.GroupRef, len(u.groups))
	copy(groups, u.groups)
	var session *models.Session
	if !u.session.IsZero() {
		c := *u.session
		if u.session.Data != nil {
			d := *u.session.Data
			c.Data = &d
		}
		session = &c
	}
	return &models.User{UserID: userID, Groups: groups, Session: session, SessionVersion: u.sessionVersion}, nil
}

func (s *InMemoryStore) CreateUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = &memUser{groups: []models.GroupRef{}}
	return nil
}

func (s *InMemoryStore) DeleteUser(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
	for _, members := range s.relations {
		delete(members, userID)
	}
	return nil
}

func (s *InMemoryStore) UpdateUserGroups(userID string, groups []models.GroupRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.groups = make([]models.GroupRef, len(groups))
	copy(u.groups, groups)
	return nil
}

func (s *InMemoryStore) UpdateUserSession(userID string, session *models.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	u.session = cloneSession(session)
	u.sessionVersion++
	return nil
}

func (s *InMemoryStore) CompareAndSwapUserSession(userID string, session *models.Session, expectedVersion int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return models.ErrUserNotFound
	}
	if u.sessionVersion != expectedVersion {
		return ErrSessionConflict
	}
	u.session = cloneSession(session)
	u.sessionVersion++
	return nil
}

func cloneSession(session *models.Session) *models.Session {
	if session.IsZero() {
		return nil
	}
	c := *session
	if session.Data != nil {
		d := *session.Data
		c.Data = &d
	}
	return &c
}

func (s *InMemoryStore) GetGroup(groupID string) (*models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return nil, nil
	}
	return &g, nil
}

func (s *InMemoryStore) ListGroups() ([]models.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	groups := make([]models.Group, 0, len(s.groups))
	for _, g := range s.groups {
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].GroupID < groups[j].GroupID })
	return groups, nil
}

func (s *InMemoryStore) CreateGroup(g models.Group) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups[g.GroupID] = g
	return nil
}

func (s *InMemoryStore) UpdateGroupName(groupID, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.groups[groupID]
	if !ok {
		return models.ErrGroupNotFound
	}
	g.GroupName = name
	s.groups[groupID] = g
	return nil
}

func (s *InMemoryStore) DeleteGroup(groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.relations[groupID]) > 0 {
		return models.ErrGroupNotEmpty
	}
	if _, ok := s.groups[groupID]; !ok {
		return models.ErrGroupNotFound
	}
	delete(s.groups, groupID)
	return nil
}

func (s *InMemoryStore) AddRelation(userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.relations[groupID] == nil {
		s.relations[groupID] = make(map[string]bool)
	}
	s.relations[groupID][userID] = true
	return nil
}

func (s *InMemoryStore) DeleteRelation(userID, groupID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.relations[groupID], userID)
	return nil
}

func (s *InMemoryStore) ListGroupMembers(groupID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := make([]string, 0, len(s.relations[groupID]))
	for userID := range s.relations[groupID] {
		members = append(members, userID)
	}
	sort.Strings(members)
	return members, nil
}

func (s *InMemoryStore) CountGroupMembers(groupID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.relations[groupID]), nil
}

func (s *InMemoryStore) CreatePractice(p models.Practice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.practices[p.GroupID] == nil {
		s.practices[p.GroupID] = make(map[string]models.Practice)
	}
	if _, ok := s.practices[p.GroupID][p.DateStartPlace]; ok {
		return models.ErrPracticeExists
	}
	s.practices[p.GroupID][p.DateStartPlace] = p
	return nil
}

func (s *InMemoryStore) PracticeExists(groupID, dateStartPlace string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.practices[groupID][dateStartPlace]
	return ok, nil
}

func (s *InMemoryStore) ListPracticesFrom(groupID, from string) ([]models.Practice, error) {
	return s.listPractices(groupID, func(p models.Practice) bool { return p.Date >= from })
}

func (s *InMemoryStore) ListPracticesOn(groupID, date string) ([]models.Practice, error) {
	return s.listPractices(groupID, func(p models.Practice) bool { return p.Date == date })
}

func (s *InMemoryStore) listPractices(groupID string, keep func(models.Practice) bool) ([]models.Practice, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var practices []models.Practice
	for _, p := range s.practices[groupID] {
		if keep(p) {
			practices = append(practices, p)
		}
	}
	sort.Slice(practices, func(i, j int) bool {
		return practices[i].DateStartPlace < practices[j].DateStartPlace
	})
	return practices, nil
}

func (s *InMemoryStore) DeletePractice(groupID, dateStartPlace string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.practices[groupID][dateStartPlace]; !ok {
		return models.ErrPracticeNotFound
	}
	delete(s.practices[groupID], dateStartPlace)
	return nil
}

func (s *InMemoryStore) AppendPracticeLog(groupID, entry string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logs[groupID] = append(s.logs[groupID], PracticeLog{
		GroupID:  groupID,
		LoggedAt: time.Now(),
		Entry:    entry,
	})
	return nil
}

func (s *InMemoryStore) ListPracticeLogs(groupID string) ([]PracticeLog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	logs := make([]PracticeLog, len(s.logs[groupID]))
	copy(logs, s.logs[groupID])
	return logs, nil
}
