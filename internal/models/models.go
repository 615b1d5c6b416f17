// Package models defines the core data structures for KeikobaBot.
//
// It includes the user/group/relation/practice entities shared across
// modules, plus the webhook event envelope and outbound message payloads.
package models

import (
	"errors"
	"fmt"
)

// Domain constants shared across modules.
const (
	// MaxJoinableGroups is the maximum number of groups a user may belong to.
	MaxJoinableGroups = 4
	// GroupIDLength is the length of generated group codes.
	GroupIDLength = 6
	// DefaultArea is the administrative area all groups belong to in v1.
	DefaultArea = "中央区"
	// DateLayout is the storage format for practice dates.
	DateLayout = "2006-01-02"
	// TimeLayout is the storage format for practice start/end times.
	TimeLayout = "15:04"
)

// Error variables for domain rejections, narrowed into user-facing replies
// by the conversation engine and into HTTP statuses by the admin API.
var (
	ErrUserNotFound     = errors.New("user not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrGroupNotEmpty    = errors.New("group still has members")
	ErrAlreadyMember    = errors.New("user already belongs to the group")
	ErrPracticeExists   = errors.New("same practice already exists")
	ErrPracticeNotFound = errors.New("practice not found")
	ErrUnknownPlace     = errors.New("place is not a venue of the group's area")
	ErrInvalidDate      = errors.New("date must be formatted as YYYY-MM-DD")
	ErrInvalidTime      = errors.New("time must be formatted as HH:mm")
	ErrDateBeforeToday  = errors.New("date must be today or later")
	ErrEndNotAfterStart = errors.New("end time must be after start time")
)

// GroupRef is the denormalized group reference embedded in a User record.
type GroupRef struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Area      string `json:"area"`
}

// User is a chat-platform user. Groups mirrors the relation rows keyed by
// the user id; every mutation keeps the two consistent. Session is nil when
// the user has no conversation in progress.
type User struct {
	UserID         string     `json:"user_id"`
	Groups         []GroupRef `json:"groups"`
	Session        *Session   `json:"session,omitempty"`
	SessionVersion int64      `json:"-"`
}

// BelongsTo reports whether the user's embedded group list contains groupID.
func (u *User) BelongsTo(groupID string) bool {
	for _, g := range u.Groups {
		if g.GroupID == groupID {
			return true
		}
	}
	return false
}

// GroupByID returns the embedded group reference for groupID, if present.
func (u *User) GroupByID(groupID string) (GroupRef, bool) {
	for _, g := range u.Groups {
		if g.GroupID == groupID {
			return g, true
		}
	}
	return GroupRef{}, false
}

// Group is a troupe that owns practices and has users as members.
type Group struct {
	GroupID   string `json:"group_id"`
	GroupName string `json:"group_name"`
	Area      string `json:"area"`
}

// Ref returns the denormalized reference embedded into user records.
func (g Group) Ref() GroupRef {
	return GroupRef{GroupID: g.GroupID, GroupName: g.GroupName, Area: g.Area}
}

// Relation is the membership edge between a user and a group, stored
// separately from the embedded group list for reverse (group -> members)
// lookup.
type Relation struct {
	UserID  string `json:"user_id"`
	GroupID string `json:"group_id"`
}

// Practice is a single scheduled rehearsal owned by a group. Its storage key
// is (group id, date#start#place).
type Practice struct {
	GroupID        string  `json:"group_id"`
	DateStartPlace string  `json:"date_start_place"`
	GroupName      string  `json:"group_name"`
	Place          string  `json:"place"`
	Date           string  `json:"date"`
	StartTime      string  `json:"start_time"`
	EndTime        string  `json:"end_time"`
	Address        string  `json:"address,omitempty"`
	Latitude       float64 `json:"latitude,omitempty"`
	Longitude      float64 `json:"longitude,omitempty"`
}

// PracticeKey builds the composite sort key for a practice.
func PracticeKey(date, startTime, place string) string {
	return fmt.Sprintf("%s#%s#%s", date, startTime, place)
}

// HasGeometry reports whether the practice carries enough location data to
// render a map link.
func (p Practice) HasGeometry() bool {
	return p.Address != "" && p.Latitude != 0 && p.Longitude != 0
}

// Profile is the subset of a messaging-platform profile the bot uses.
type Profile struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}
