package router

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"medroom/internal/session"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// AIMarker directs a chat message at the assistant (case-insensitive)
const AIMarker = "@ai"

// Runner runs slow work off the hub loop and applies its result back on it.
// The returned closure runs on the loop; returning nil skips the apply step
type Runner interface {
	Go(work func(ctx context.Context) func())
}

// Responder produces role-scoped assistant replies; it never fails
type Responder interface {
	Reply(ctx context.Context, room *types.Room, role types.Role, question types.Message) string
}

// EmergencyDetector scans chat text and classifies flagged messages
type EmergencyDetector interface {
	Scan(text string) []string
	Classify(ctx context.Context, text string, keywords []string) types.EmergencyAssessment
}

// EmergencyAlert is the payload of emergency-alert
type EmergencyAlert struct {
	types.EmergencyAssessment
	Seq         uint64 `json:"seq"`
	Nickname    string `json:"nickname"`
	SpeakerRole string `json:"speakerRole"`
	Content     string `json:"content"`
}

// TypingNotice is the payload of user-typing
type TypingNotice struct {
	Nickname string     `json:"nickname"`
	Role     types.Role `json:"role"`
	IsTyping bool       `json:"isTyping"`
}

// Router decides who sees each chat message and triggers the assistant and
// emergency checks.
// ARCHITECTURAL DISCOVERY: Called only from the hub loop; async results come
// back through the Runner so every state mutation stays on that loop
type Router struct {
	store     *session.Store
	delivery  *Delivery
	runner    Runner
	assistant Responder
	detector  EmergencyDetector
	logger    zerolog.Logger
}

// NewRouter creates a new message router
func NewRouter(store *session.Store, delivery *Delivery, runner Runner, assistant Responder, detector EmergencyDetector, logger zerolog.Logger) *Router {
	return &Router{
		store:     store,
		delivery:  delivery,
		runner:    runner,
		assistant: assistant,
		detector:  detector,
		logger:    logger.With().Str("component", "router").Logger(),
	}
}

// ContainsAIMarker reports whether text is addressed to the assistant
func ContainsAIMarker(text string) bool {
	return strings.Contains(strings.ToLower(text), AIMarker)
}

// HandleChat logs a chat message and routes it.
// FUNCTIONAL DISCOVERY: The message is always logged; "@ai" messages are
// tagged with the sender's role and echoed to the sender only
func (r *Router) HandleChat(ctx context.Context, conn interfaces.Connection, req types.ChatRequest) error {
	binding, bound := conn.Binding()
	if !bound {
		return ErrNotJoined
	}
	if err := req.Validate(); err != nil {
		return err
	}

	private := ContainsAIMarker(req.Text)
	msg := types.Message{
		SpeakerRole: types.SpeakerFor(binding.Role),
		Nickname:    binding.Nickname,
		Content:     req.Text,
	}
	if private {
		msg.ForRole = binding.Role
		msg.IsPrivate = true
	}

	stored, err := r.store.AppendMessage(ctx, binding.RoomID, msg)
	if err != nil {
		return fmt.Errorf("append chat message: %w", err)
	}

	if private {
		r.delivery.SendMessage(conn.ID(), binding.RoomID, stored)
	} else {
		r.delivery.DeliverMessage(binding.RoomID, stored)
	}

	r.checkEmergency(binding, stored)
	if private {
		r.requestReply(binding, stored)
	}
	return nil
}

// HandleTyping relays a typing indicator to the rest of the room; never logged
func (r *Router) HandleTyping(conn interfaces.Connection, req types.TypingRequest) error {
	binding, bound := conn.Binding()
	if !bound {
		return ErrNotJoined
	}
	r.delivery.BroadcastExcept(binding.RoomID, conn.ID(), types.Event{
		Type: types.EventUserTyping,
		Data: TypingNotice{Nickname: binding.Nickname, Role: binding.Role, IsTyping: req.IsTyping},
	})
	return nil
}

// requestReply snapshots the room and asks the assistant off-loop
func (r *Router) requestReply(binding types.Binding, question types.Message) {
	room, ok := r.store.Snapshot(binding.RoomID)
	if !ok {
		return
	}

	r.runner.Go(func(ctx context.Context) func() {
		reply := r.assistant.Reply(ctx, room, binding.Role, question)
		return func() {
			// ARCHITECTURAL DISCOVERY: A room deleted while the model was
			// thinking cancels the reply silently
			if !r.store.HasRoom(binding.RoomID) {
				r.logger.Debug().Str("room_id", binding.RoomID).Msg("room gone before AI reply")
				return
			}
			stored, err := r.store.AppendMessage(context.Background(), binding.RoomID, types.Message{
				SpeakerRole: types.SpeakerAI,
				Nickname:    types.SpeakerAI,
				Content:     reply,
				ForRole:     binding.Role,
				IsPrivate:   true,
			})
			if err != nil {
				r.logger.Warn().Err(err).Str("room_id", binding.RoomID).Msg("append AI reply failed")
				return
			}
			r.delivery.SendMessage(binding.ConnectionID, binding.RoomID, stored)
		}
	})
}

// checkEmergency classifies keyword hits off-loop, regardless of "@ai"
func (r *Router) checkEmergency(binding types.Binding, msg types.Message) {
	if r.detector == nil {
		return
	}
	keywords := r.detector.Scan(msg.Content)
	if len(keywords) == 0 {
		return
	}

	r.runner.Go(func(ctx context.Context) func() {
		assessment := r.detector.Classify(ctx, msg.Content, keywords)
		return func() {
			r.applyEmergency(binding, msg, assessment)
		}
	})
}

func (r *Router) applyEmergency(binding types.Binding, msg types.Message, assessment types.EmergencyAssessment) {
	logEvent := r.logger.Info()
	if assessment.IsEmergency {
		logEvent = r.logger.Warn()
	}
	logEvent.Str("room_id", binding.RoomID).Str("level", assessment.Level).
		Strs("keywords", assessment.Keywords).Bool("emergency", assessment.IsEmergency).Msg("emergency classification")

	if !assessment.IsEmergency || !r.store.HasRoom(binding.RoomID) {
		return
	}

	r.delivery.SendToRole(binding.RoomID, types.RoleDoctor, types.Event{
		Type: types.EventEmergencyAlert,
		Data: EmergencyAlert{
			EmergencyAssessment: assessment,
			Seq:                 msg.Seq,
			Nickname:            msg.Nickname,
			SpeakerRole:         msg.SpeakerRole,
			Content:             msg.Content,
		},
	})

	ctx := context.Background()
	alert, err := r.store.AppendMessage(ctx, binding.RoomID, types.Message{
		SpeakerRole: types.SpeakerSystem,
		Nickname:    types.SpeakerSystem,
		Content:     fmt.Sprintf("Emergency alert (%s) from %s: %s", assessment.Level, msg.Nickname, assessment.Reasoning),
		ForRole:     types.RoleDoctor,
		IsPrivate:   true,
	})
	if err == nil {
		r.delivery.DeliverMessage(binding.RoomID, alert)
	}

	if binding.Role != types.RolePatient || strings.TrimSpace(assessment.UrgentAdvice) == "" {
		return
	}
	advice, err := r.store.AppendMessage(ctx, binding.RoomID, types.Message{
		SpeakerRole: types.SpeakerAI,
		Nickname:    types.SpeakerAI,
		Content:     assessment.UrgentAdvice,
		ForRole:     types.RolePatient,
		IsPrivate:   true,
	})
	if err == nil {
		r.delivery.SendMessage(binding.ConnectionID, binding.RoomID, advice)
	}
}
