package session

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// Audit actions recorded for invitations
const (
	AuditCreated = "created"
	AuditDeleted = "deleted"
)

// RoomSummary is one entry of a participant's room list
type RoomSummary struct {
	Token        string     `json:"token"`
	RoomID       string     `json:"roomId"`
	Role         types.Role `json:"role"`
	DoctorEmail  string     `json:"doctorEmail"`
	PatientEmail string     `json:"patientEmail"`
	CreatedAt    time.Time  `json:"createdAt"`
	Connections  int        `json:"connections"`
}

// Store owns invitations and live room state.
// ARCHITECTURAL DISCOVERY: Mutations arrive from the hub loop; the RWMutex lets
// HTTP handlers read concurrently without going through the loop
type Store struct {
	mu          sync.RWMutex
	invitations map[string]*types.Invitation // token -> invitation
	roomTokens  map[string]string            // roomID -> token
	rooms       map[string]*types.Room

	audit  interfaces.AuditLog
	logger zerolog.Logger
	now    func() time.Time
}

// NewStore creates an empty store; audit may be nil
func NewStore(audit interfaces.AuditLog, logger zerolog.Logger) *Store {
	return &Store{
		invitations: make(map[string]*types.Invitation),
		roomTokens:  make(map[string]string),
		rooms:       make(map[string]*types.Room),
		audit:       audit,
		logger:      logger.With().Str("component", "session").Logger(),
		now:         time.Now,
	}
}

// newToken returns 128 random bits, hex encoded
func newToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate invitation token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// CreateInvitation binds a new room to a doctor and a patient email
func (s *Store) CreateInvitation(ctx context.Context, doctorEmail, patientEmail string) (*types.Invitation, error) {
	doctorEmail = types.NormalizeEmail(doctorEmail)
	patientEmail = types.NormalizeEmail(patientEmail)
	if doctorEmail == "" || patientEmail == "" {
		return nil, ErrMissingEmail
	}
	if !types.IsValidEmail(doctorEmail) || !types.IsValidEmail(patientEmail) {
		return nil, types.ErrInvalidEmail
	}

	token, err := newToken()
	if err != nil {
		return nil, err
	}

	invitation := &types.Invitation{
		Token:        token,
		RoomID:       uuid.NewString(),
		DoctorEmail:  doctorEmail,
		PatientEmail: patientEmail,
		CreatedAt:    s.now(),
	}

	s.mu.Lock()
	s.invitations[token] = invitation
	s.roomTokens[invitation.RoomID] = token
	s.rooms[invitation.RoomID] = s.newRoom(invitation.RoomID)
	s.mu.Unlock()

	s.recordInvitation(ctx, invitation, AuditCreated)
	s.logger.Info().Str("room_id", invitation.RoomID).Msg("invitation created")

	copied := *invitation
	return &copied, nil
}

// ValidateAccess resolves which role an email holds in an invitation
func (s *Store) ValidateAccess(token, email string) (types.Role, string, error) {
	email = types.NormalizeEmail(email)

	s.mu.RLock()
	invitation, exists := s.invitations[token]
	s.mu.RUnlock()

	if !exists {
		return "", "", ErrInvitationNotFound
	}
	switch email {
	case invitation.DoctorEmail:
		return types.RoleDoctor, invitation.RoomID, nil
	case invitation.PatientEmail:
		return types.RolePatient, invitation.RoomID, nil
	}
	return "", "", ErrNotParticipant
}

// AuthorizeDelete checks that email owns the invitation without mutating anything
func (s *Store) AuthorizeDelete(token, email string) (*types.Invitation, error) {
	email = types.NormalizeEmail(email)

	s.mu.RLock()
	invitation, exists := s.invitations[token]
	s.mu.RUnlock()

	if !exists {
		return nil, ErrInvitationNotFound
	}
	if email == "" || email != invitation.DoctorEmail {
		return nil, ErrNotRoomDoctor
	}
	copied := *invitation
	return &copied, nil
}

// DeleteInvitation removes an invitation and its room after the same ownership check
func (s *Store) DeleteInvitation(ctx context.Context, token, email string) (*types.Invitation, error) {
	invitation, err := s.AuthorizeDelete(token, email)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	delete(s.invitations, token)
	delete(s.roomTokens, invitation.RoomID)
	delete(s.rooms, invitation.RoomID)
	s.mu.Unlock()

	s.recordInvitation(ctx, invitation, AuditDeleted)
	s.logger.Info().Str("room_id", invitation.RoomID).Msg("room deleted")
	return invitation, nil
}

// ListRooms returns the invitations an email participates in, oldest first
func (s *Store) ListRooms(email string) []RoomSummary {
	email = types.NormalizeEmail(email)
	summaries := make([]RoomSummary, 0)
	if email == "" {
		return summaries
	}

	s.mu.RLock()
	for token, inv := range s.invitations {
		var role types.Role
		switch email {
		case inv.DoctorEmail:
			role = types.RoleDoctor
		case inv.PatientEmail:
			role = types.RolePatient
		default:
			continue
		}
		summaries = append(summaries, RoomSummary{
			Token:        token,
			RoomID:       inv.RoomID,
			Role:         role,
			DoctorEmail:  inv.DoctorEmail,
			PatientEmail: inv.PatientEmail,
			CreatedAt:    inv.CreatedAt,
		})
	}
	s.mu.RUnlock()

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].CreatedAt.Before(summaries[j].CreatedAt)
	})
	return summaries
}

// InvitationForRoom returns the invitation bound to a room, if any
func (s *Store) InvitationForRoom(roomID string) (*types.Invitation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	token, ok := s.roomTokens[roomID]
	if !ok {
		return nil, false
	}
	copied := *s.invitations[token]
	return &copied, true
}

// CheckJoin enforces the invitation binding for a join attempt.
// FUNCTIONAL DISCOVERY: Rooms without an invitation accept any joiner
func (s *Store) CheckJoin(roomID string, role types.Role, email string) error {
	invitation, bound := s.InvitationForRoom(roomID)
	if !bound {
		return nil
	}
	email = types.NormalizeEmail(email)
	switch role {
	case types.RoleDoctor:
		if email == invitation.DoctorEmail {
			return nil
		}
	case types.RolePatient:
		if email == invitation.PatientEmail {
			return nil
		}
	}
	return ErrNotParticipant
}

// AuthorizeDoctor checks doctor-only room actions
func (s *Store) AuthorizeDoctor(roomID string, role types.Role, email string) error {
	if role != types.RoleDoctor {
		return ErrNotRoomDoctor
	}
	if invitation, bound := s.InvitationForRoom(roomID); bound {
		if types.NormalizeEmail(email) != invitation.DoctorEmail {
			return ErrNotRoomDoctor
		}
	}
	return nil
}

func (s *Store) newRoom(roomID string) *types.Room {
	return &types.Room{
		ID:        roomID,
		Messages:  make([]types.Message, 0),
		Files:     make([]*types.UploadedFile, 0),
		VideoCall: types.VideoCall{Participants: make([]string, 0)},
		CreatedAt: s.now(),
	}
}

// EnsureRoom creates a room lazily; reports whether it was created
func (s *Store) EnsureRoom(roomID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.rooms[roomID]; exists {
		return false
	}
	s.rooms[roomID] = s.newRoom(roomID)
	s.logger.Debug().Str("room_id", roomID).Msg("room created on first join")
	return true
}

// HasRoom reports whether a room is live
func (s *Store) HasRoom(roomID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, exists := s.rooms[roomID]
	return exists
}

// Snapshot returns a deep copy of a room.
// ARCHITECTURAL DISCOVERY: Async work captures a snapshot before suspending and
// never holds a pointer into live state
func (s *Store) Snapshot(roomID string) (*types.Room, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return nil, false
	}

	copied := *room
	copied.Messages = append([]types.Message(nil), room.Messages...)
	copied.Files = make([]*types.UploadedFile, len(room.Files))
	for i, f := range room.Files {
		copied.Files[i] = copyFile(f)
	}
	copied.HealthMetrics = room.HealthMetrics.Clone()
	copied.VideoCall.Participants = append([]string{}, room.VideoCall.Participants...)
	return &copied, true
}

func copyFile(f *types.UploadedFile) *types.UploadedFile {
	c := *f
	if f.DocumentSummary != nil {
		summary := *f.DocumentSummary
		summary.KeyMetrics = append([]string(nil), f.DocumentSummary.KeyMetrics...)
		c.DocumentSummary = &summary
	}
	return &c
}

// AppendMessage assigns the next sequence number and appends to the room log
func (s *Store) AppendMessage(ctx context.Context, roomID string, msg types.Message) (types.Message, error) {
	s.mu.Lock()
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return types.Message{}, ErrRoomNotFound
	}
	room.NextSeq++
	msg.Seq = room.NextSeq
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	room.Messages = append(room.Messages, msg)
	s.mu.Unlock()

	if s.audit != nil {
		if err := s.audit.RecordMessage(ctx, roomID, msg); err != nil {
			s.logger.Warn().Err(err).Str("room_id", roomID).Msg("audit message failed")
		}
	}
	return msg, nil
}

// AddFile appends a file record
func (s *Store) AddFile(ctx context.Context, roomID string, file *types.UploadedFile) error {
	s.mu.Lock()
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return ErrRoomNotFound
	}
	room.Files = append(room.Files, copyFile(file))
	s.mu.Unlock()

	s.recordFile(ctx, roomID, file)
	return nil
}

// FileAnalysis is what the analysis pipeline writes back onto a file record
type FileAnalysis struct {
	ExtractedContent string
	AnalysisText     string
	Summary          *types.DocumentSummary
}

// CompleteFileAnalysis fills the extraction and analysis fields of a stored file record
func (s *Store) CompleteFileAnalysis(ctx context.Context, roomID, fileID string, update FileAnalysis) error {
	s.mu.Lock()
	room, exists := s.rooms[roomID]
	if !exists {
		s.mu.Unlock()
		return ErrRoomNotFound
	}
	var updated *types.UploadedFile
	for _, f := range room.Files {
		if f.ID == fileID {
			f.ExtractedContent = update.ExtractedContent
			f.AnalysisText = update.AnalysisText
			f.DocumentSummary = update.Summary
			updated = copyFile(f)
			break
		}
	}
	s.mu.Unlock()

	if updated == nil {
		return ErrFileNotFound
	}
	s.recordFile(ctx, roomID, updated)
	return nil
}

// SetHealthMetrics replaces the room's metrics snapshot wholesale
func (s *Store) SetHealthMetrics(roomID string, metrics *types.HealthMetrics) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return ErrRoomNotFound
	}
	room.HealthMetrics = metrics.Clone()
	return nil
}

// ClaimPresence gives a connection the nickname/avatar slot for its role.
// FUNCTIONAL DISCOVERY: Last writer wins; a second same-role joiner replaces
// the identity shown for that role
func (s *Store) ClaimPresence(binding types.Binding) (types.Presence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[binding.RoomID]
	if !exists {
		return types.Presence{}, ErrRoomNotFound
	}
	switch binding.Role {
	case types.RoleDoctor:
		room.Presence.DoctorNickname = binding.Nickname
		room.Presence.DoctorAvatarURL = binding.AvatarURL
		room.DoctorConnID = binding.ConnectionID
	case types.RolePatient:
		room.Presence.PatientNickname = binding.Nickname
		room.Presence.PatientAvatarURL = binding.AvatarURL
		room.PatientConnID = binding.ConnectionID
	}
	return room.Presence, nil
}

// ReleasePresence clears a role slot only if the leaving connection owns it
func (s *Store) ReleasePresence(binding types.Binding) (types.Presence, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[binding.RoomID]
	if !exists {
		return types.Presence{}, false, ErrRoomNotFound
	}
	cleared := false
	switch binding.Role {
	case types.RoleDoctor:
		if room.DoctorConnID == binding.ConnectionID {
			room.Presence.DoctorNickname = ""
			room.Presence.DoctorAvatarURL = ""
			room.DoctorConnID = ""
			cleared = true
		}
	case types.RolePatient:
		if room.PatientConnID == binding.ConnectionID {
			room.Presence.PatientNickname = ""
			room.Presence.PatientAvatarURL = ""
			room.PatientConnID = ""
			cleared = true
		}
	}
	return room.Presence, cleared, nil
}

// UpdateVideo applies a state transition to the room's call state.
// The transition sees live state and must not retain the pointer
func (s *Store) UpdateVideo(roomID string, transition func(call *types.VideoCall) error) (types.VideoCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, exists := s.rooms[roomID]
	if !exists {
		return types.VideoCall{}, ErrRoomNotFound
	}
	if err := transition(&room.VideoCall); err != nil {
		return types.VideoCall{}, err
	}
	call := room.VideoCall
	call.Participants = append([]string{}, room.VideoCall.Participants...)
	return call, nil
}

// GetStats returns store statistics
func (s *Store) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	messages := 0
	for _, room := range s.rooms {
		messages += len(room.Messages)
	}
	return map[string]interface{}{
		"rooms":       len(s.rooms),
		"invitations": len(s.invitations),
		"messages":    messages,
	}
}

func (s *Store) recordInvitation(ctx context.Context, invitation *types.Invitation, action string) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordInvitation(ctx, invitation, action); err != nil {
		s.logger.Warn().Err(err).Str("action", action).Msg("audit invitation failed")
	}
}

func (s *Store) recordFile(ctx context.Context, roomID string, file *types.UploadedFile) {
	if s.audit == nil {
		return
	}
	if err := s.audit.RecordFile(ctx, roomID, file); err != nil {
		s.logger.Warn().Err(err).Str("room_id", roomID).Msg("audit file failed")
	}
}
