package database

import (
	"context"
	"database/sql"
	"time"
)

// AuditedMessage is a message row as stored in the audit trail
type AuditedMessage struct {
	Seq         uint64    `json:"seq"`
	SpeakerRole string    `json:"speakerRole"`
	Nickname    string    `json:"nickname"`
	Content     string    `json:"content"`
	ForRole     string    `json:"forRole,omitempty"`
	IsPrivate   bool      `json:"isPrivate"`
	FileRef     string    `json:"fileRef,omitempty"`
	SentAt      time.Time `json:"sentAt"`
}

// InvitationEvent is an invitation lifecycle row
type InvitationEvent struct {
	TokenHash    string    `json:"tokenHash"`
	RoomID       string    `json:"roomId"`
	DoctorEmail  string    `json:"doctorEmail"`
	PatientEmail string    `json:"patientEmail"`
	Action       string    `json:"action"`
	RecordedAt   time.Time `json:"recordedAt"`
}

// RoomMessages returns the audited transcript of a room in seq order.
// ARCHITECTURAL DISCOVERY: Reads serve operators reviewing a consultation;
// the live engine never loads room state from here
func (a *AuditLog) RoomMessages(ctx context.Context, roomID string) ([]AuditedMessage, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT seq, speaker_role, nickname, content, for_role, is_private, file_ref, sent_at
		FROM messages WHERE room_id = ? ORDER BY seq ASC, id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var messages []AuditedMessage
	for rows.Next() {
		var (
			msg              AuditedMessage
			forRole, fileRef sql.NullString
		)
		if err := rows.Scan(&msg.Seq, &msg.SpeakerRole, &msg.Nickname, &msg.Content,
			&forRole, &msg.IsPrivate, &fileRef, &msg.SentAt); err != nil {
			return nil, err
		}
		msg.ForRole = forRole.String
		msg.FileRef = fileRef.String
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// InvitationEvents returns the lifecycle events of a room oldest first
func (a *AuditLog) InvitationEvents(ctx context.Context, roomID string) ([]InvitationEvent, error) {
	rows, err := a.db.QueryContext(ctx, `
		SELECT token_hash, room_id, doctor_email, patient_email, action, recorded_at
		FROM invitation_events WHERE room_id = ? ORDER BY id ASC`, roomID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []InvitationEvent
	for rows.Next() {
		var event InvitationEvent
		if err := rows.Scan(&event.TokenHash, &event.RoomID, &event.DoctorEmail,
			&event.PatientEmail, &event.Action, &event.RecordedAt); err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, rows.Err()
}

// FileRecordCount returns how many snapshots were recorded for a file
func (a *AuditLog) FileRecordCount(ctx context.Context, roomID, fileID string) (int, error) {
	var count int
	err := a.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM files WHERE room_id = ? AND file_id = ?", roomID, fileID).Scan(&count)
	return count, err
}
