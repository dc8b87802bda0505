package types

import (
	"encoding/json"
	"time"
)

// Role identifies which side of the consultation a connection belongs to.
// ARCHITECTURAL DISCOVERY: Exactly two participant roles; every visibility
// decision in the system is a comparison against one of these values
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
)

// Speaker labels stored on messages
const (
	SpeakerPatient = "Patient"
	SpeakerDoctor  = "Doctor"
	SpeakerAI      = "AI Assistant"
	SpeakerSystem  = "System"
)

// Client -> server events
const (
	EventJoinRoom             = "join-room"
	EventChatMessage          = "chat-message"
	EventTyping               = "typing"
	EventRequestDocumentation = "request-documentation"
	EventStartVideoCall       = "start-video-call"
	EventJoinVideoCall        = "join-video-call"
	EventLeaveVideoCall       = "leave-video-call"
	EventEndVideoCall         = "end-video-call"
)

// Server -> client events
const (
	EventRoomHistory               = "room-history"
	EventUserJoined                = "user-joined"
	EventUserLeft                  = "user-left"
	EventAIMessage                 = "ai-message"
	EventFilesUpdated              = "files-updated"
	EventHealthMetricsUpdated      = "health-metrics-updated"
	EventDocumentationGenerated    = "documentation-generated"
	EventVideoCallStarted          = "video-call-started"
	EventVideoCallEnded            = "video-call-ended"
	EventVideoCallActive           = "video-call-active"
	EventUserJoinedVideo           = "user-joined-video"
	EventExistingVideoParticipants = "existing-video-participants"
	EventUserLeftVideo             = "user-left-video"
	EventRoomDeleted               = "room-deleted"
	EventUserTyping                = "user-typing"
	EventEmergencyAlert            = "emergency-alert"
	EventError                     = "error"
)

// Invitation binds an opaque token to a room and its two participants.
// FUNCTIONAL DISCOVERY: Immutable after creation; only the doctor can delete it
type Invitation struct {
	Token        string    `json:"token"`
	RoomID       string    `json:"roomId"`
	DoctorEmail  string    `json:"doctorEmail"`
	PatientEmail string    `json:"patientEmail"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Message is one entry of a room's append-only log.
// ARCHITECTURAL DISCOVERY: Seq is assigned by the room on append and is the
// ordering contract for delivery; ForRole restricts delivery to one audience
type Message struct {
	Seq         uint64    `json:"seq"`
	SpeakerRole string    `json:"speakerRole"`
	Nickname    string    `json:"nickname"`
	Content     string    `json:"content"`
	Timestamp   time.Time `json:"timestamp"`
	FileRef     string    `json:"fileRef,omitempty"`
	ForRole     Role      `json:"forRole,omitempty"`
	IsPrivate   bool      `json:"isPrivate,omitempty"`
}

// DocumentSummary is the bounded digest of an analyzed upload used as cheap
// context for later AI turns.
type DocumentSummary struct {
	Analysis         string   `json:"analysis"`
	ContentExcerpt   string   `json:"contentExcerpt"`
	KeyMetrics       []string `json:"keyMetrics"`
	RiskLevel        string   `json:"riskLevel"`
	PrimaryDiagnosis string   `json:"primaryDiagnosis"`
}

// UploadedFile is the record kept for every successful upload
type UploadedFile struct {
	ID               string           `json:"id"`
	Name             string           `json:"name"`
	StoragePath      string           `json:"-"`
	URL              string           `json:"url"`
	MimeType         string           `json:"mimeType"`
	Size             int64            `json:"size"`
	ExtractedContent string           `json:"-"`
	AnalysisText     string           `json:"analysisText,omitempty"`
	DocumentSummary  *DocumentSummary `json:"documentSummary,omitempty"`
	UploadedAt       time.Time        `json:"uploadedAt"`
	UploadedBy       string           `json:"uploadedBy"`
	UploaderRole     Role             `json:"uploaderRole"`
}

// VideoCall is the signaling state of a room.
// FUNCTIONAL DISCOVERY: Participants is an ordered set of peer identifiers;
// order is join order so that joiners receive a stable pre-join roster
type VideoCall struct {
	Active       bool     `json:"active"`
	StartedBy    string   `json:"startedBy,omitempty"`
	Participants []string `json:"participants"`
}

// Presence is the "who is in the room right now" view
type Presence struct {
	PatientNickname  string `json:"patientNickname,omitempty"`
	DoctorNickname   string `json:"doctorNickname,omitempty"`
	PatientAvatarURL string `json:"patientAvatarUrl,omitempty"`
	DoctorAvatarURL  string `json:"doctorAvatarUrl,omitempty"`
}

// Room holds the live state of one consultation.
// ARCHITECTURAL DISCOVERY: Rooms are owned by session.Store; everything handed
// out of the store is a copy so callers can never mutate shared state
type Room struct {
	ID            string          `json:"roomId"`
	Messages      []Message       `json:"messages"`
	Files         []*UploadedFile `json:"files"`
	Presence      Presence        `json:"presence"`
	PatientConnID string          `json:"-"`
	DoctorConnID  string          `json:"-"`
	HealthMetrics *HealthMetrics  `json:"healthMetrics,omitempty"`
	VideoCall     VideoCall       `json:"videoCall"`
	NextSeq       uint64          `json:"-"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// Binding is what the connection directory knows about a joined connection
type Binding struct {
	ConnectionID string `json:"connectionId"`
	RoomID       string `json:"roomId"`
	Nickname     string `json:"nickname"`
	Role         Role   `json:"role"`
	AvatarURL    string `json:"avatarUrl,omitempty"`
	Email        string `json:"email,omitempty"`
}

// Envelope is the inbound WebSocket frame
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Event is the outbound WebSocket frame
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// JoinRequest is the payload of join-room
type JoinRequest struct {
	RoomID    string `json:"roomId"`
	Nickname  string `json:"nickname"`
	Role      Role   `json:"role"`
	AvatarURL string `json:"avatarUrl"`
	Email     string `json:"email"`
}

// ChatRequest is the payload of chat-message
type ChatRequest struct {
	Text string `json:"text"`
}

// TypingRequest is the payload of typing
type TypingRequest struct {
	IsTyping bool `json:"isTyping"`
}

// VideoRequest is the payload of the video signaling events
type VideoRequest struct {
	PeerID string `json:"peerId"`
}

// EmergencyAssessment is the outcome of classifying a flagged message
type EmergencyAssessment struct {
	IsEmergency  bool     `json:"isEmergency"`
	Level        string   `json:"level"`
	Reasoning    string   `json:"reasoning"`
	UrgentAdvice string   `json:"urgentAdvice"`
	Keywords     []string `json:"keywords"`
}
