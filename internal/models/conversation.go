package models

import (
	"sort"
	"strings"
	"time"
)

type Role string

const (
	RoleStudent Role = "student"
	RoleCoach   Role = "coach"
	RoleAdmin   Role = "admin"
)

// Roles is the fixed set of participant roles a conversation may carry.
var Roles = []Role{RoleStudent, RoleCoach, RoleAdmin}

type Conversation struct {
	ID        string    `bson:"_id" json:"id"`
	StudentID string    `bson:"student_id" json:"student_id"`
	CoachID   string    `bson:"coach_id,omitempty" json:"coach_id,omitempty"`
	AdminID   string    `bson:"admin_id,omitempty" json:"admin_id,omitempty"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt time.Time `bson:"updated_at" json:"updated_at"`
}

// ConversationID derives the canonical id for a participant set: sorted and
// joined so every caller converges on the same document regardless of who
// initiates.
func ConversationID(participantIDs ...string) string {
	ids := make([]string, 0, len(participantIDs))
	for _, id := range participantIDs {
		if id != "" {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return strings.Join(ids, "_")
}

// RoleOf reports the role a user holds in the conversation, or "" if the
// user is not a participant.
func (c *Conversation) RoleOf(userID string) Role {
	switch userID {
	case c.StudentID:
		return RoleStudent
	case c.CoachID:
		return RoleCoach
	case c.AdminID:
		return RoleAdmin
	}
	return ""
}

// ParticipantIDs lists the non-empty participant ids.
func (c *Conversation) ParticipantIDs() []string {
	out := make([]string, 0, 3)
	for _, id := range []string{c.StudentID, c.CoachID, c.AdminID} {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
