package types

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxMessageLength bounds a single chat input in characters
const MaxMessageLength = 4000

// FUNCTIONAL DISCOVERY: Regex compiled once at package initialization
var (
	emailRegex  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	roomIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
)

// NormalizeEmail trims and lowercases an address for comparison and storage
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsValidEmail checks the normalized address shape
func IsValidEmail(email string) bool {
	email = NormalizeEmail(email)
	if len(email) < 3 || len(email) > 254 {
		return false
	}
	return emailRegex.MatchString(email)
}

// IsValidRole accepts the two participant roles only
func IsValidRole(role Role) bool {
	return role == RolePatient || role == RoleDoctor
}

// IsValidRoomID checks room id format
func IsValidRoomID(roomID string) bool {
	if len(roomID) < 1 || len(roomID) > 64 {
		return false
	}
	return roomIDRegex.MatchString(roomID)
}

// Validate checks a join-room payload and normalizes its fields in place.
// FUNCTIONAL DISCOVERY: Email is optional for rooms without an invitation,
// but when present it must be well formed
func (j *JoinRequest) Validate() error {
	j.RoomID = strings.TrimSpace(j.RoomID)
	j.Nickname = strings.TrimSpace(j.Nickname)
	j.Email = NormalizeEmail(j.Email)

	if !IsValidRoomID(j.RoomID) {
		return ErrInvalidRoomID
	}
	if n := utf8.RuneCountInString(j.Nickname); n < 1 || n > 50 {
		return ErrInvalidNickname
	}
	if !IsValidRole(j.Role) {
		return ErrInvalidRole
	}
	if j.Email != "" && !IsValidEmail(j.Email) {
		return ErrInvalidEmail
	}
	return nil
}

// Validate trims the chat text and enforces length bounds
func (c *ChatRequest) Validate() error {
	c.Text = strings.TrimSpace(c.Text)
	if c.Text == "" {
		return ErrEmptyMessage
	}
	if utf8.RuneCountInString(c.Text) > MaxMessageLength {
		return ErrMessageTooLong
	}
	return nil
}

// Visible reports whether a logged message may be delivered to a role.
// ARCHITECTURAL DISCOVERY: The single visibility rule shared by live delivery
// and history replay, which is what keeps replay equal to live delivery
func Visible(msg Message, role Role) bool {
	return msg.ForRole == "" || msg.ForRole == role
}

// VisibleMessages filters a log for one role, preserving order
func VisibleMessages(messages []Message, role Role) []Message {
	visible := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if Visible(msg, role) {
			visible = append(visible, msg)
		}
	}
	return visible
}

// ViewFor returns the copy of a file record a role may see.
// FUNCTIONAL DISCOVERY: Patients only learn that a document was received;
// the clinical analysis and summary stay on the doctor side
func (f *UploadedFile) ViewFor(role Role) *UploadedFile {
	view := *f
	if role != RoleDoctor {
		view.AnalysisText = ""
		view.DocumentSummary = nil
	}
	return &view
}

// FileViews maps a file list to role views
func FileViews(files []*UploadedFile, role Role) []*UploadedFile {
	views := make([]*UploadedFile, 0, len(files))
	for _, f := range files {
		views = append(views, f.ViewFor(role))
	}
	return views
}

// SpeakerFor maps a participant role to the label stored on messages
func SpeakerFor(role Role) string {
	if role == RoleDoctor {
		return SpeakerDoctor
	}
	return SpeakerPatient
}

// Truncate bounds s to max runes
func Truncate(s string, max int) string {
	if max <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
