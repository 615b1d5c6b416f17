// Package models defines session state structures for the conversation engine.
package models

// Mode is the top-level conversational task a session represents.
type Mode string

const (
	ModeJoinGroup       Mode = "JoinGroup"
	ModeListPractices   Mode = "ListPractices"
	ModeNotifyPractices Mode = "NotifyPractices"
	ModeAddPractice     Mode = "AddPractice"
	ModeDeletePractice  Mode = "DeletePractice"
	ModeWithdrawGroup   Mode = "WithdrawGroup"
)

// IsValidMode checks if the given mode is one the engine dispatches on.
func IsValidMode(m Mode) bool {
	switch m {
	case ModeJoinGroup, ModeListPractices, ModeNotifyPractices,
		ModeAddPractice, ModeDeletePractice, ModeWithdrawGroup:
		return true
	default:
		return false
	}
}

// Phase is the step within a mode's wizard. Phase values are only meaningful
// relative to a mode; ValidPhaseForMode guards cross-mode reads.
type Phase string

const (
	PhaseAskGroup Phase = "AskGroup"
	PhaseAskPlace Phase = "AskPlace"
	PhaseAskDate  Phase = "AskDate"
	PhaseAskStart Phase = "AskStart"
	PhaseAskEnd   Phase = "AskEnd"
	PhaseConfirm  Phase = "Confirm"
)

// ValidPhaseForMode reports whether phase belongs to mode's vocabulary.
func ValidPhaseForMode(m Mode, p Phase) bool {
	switch m {
	case ModeAddPractice:
		switch p {
		case PhaseAskGroup, PhaseAskPlace, PhaseAskDate, PhaseAskStart, PhaseAskEnd:
			return true
		}
	case ModeNotifyPractices, ModeWithdrawGroup:
		switch p {
		case PhaseAskGroup, PhaseConfirm:
			return true
		}
	case ModeJoinGroup:
		return p == ""
	}
	return false
}

// PracticeDraft is the partially filled practice a session accumulates
// across wizard steps. For NotifyPractices/WithdrawGroup only the group
// fields are used.
type PracticeDraft struct {
	GroupID   string `json:"group_id,omitempty"`
	GroupName string `json:"group_name,omitempty"`
	Place     string `json:"place,omitempty"`
	Date      string `json:"date,omitempty"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
}

// Session is the in-progress multi-turn conversation state attached to a
// user. A nil *Session is the canonical "no session" value; the store never
// persists a present-but-empty object.
type Session struct {
	Mode  Mode           `json:"mode"`
	Phase Phase          `json:"phase,omitempty"`
	Data  *PracticeDraft `json:"data,omitempty"`
}

// IsZero reports whether the session carries no state. A zero session read
// back from storage is treated the same as no session.
func (s *Session) IsZero() bool {
	return s == nil || s.Mode == ""
}
