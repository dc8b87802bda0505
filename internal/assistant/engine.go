package assistant

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/rs/zerolog"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

// ContextWindow is how many earlier visible messages accompany a question
const ContextWindow = 5

var markerPattern = regexp.MustCompile(`(?i)@ai\b[,:]?`)

// Engine produces role-scoped assistant replies.
// ARCHITECTURAL DISCOVERY: Works only on room snapshots taken on the hub loop,
// so it is safe to run from any goroutine
type Engine struct {
	model  interfaces.LanguageModel
	logger zerolog.Logger
}

// NewEngine creates an assistant over a language model
func NewEngine(model interfaces.LanguageModel, logger zerolog.Logger) *Engine {
	return &Engine{
		model:  model,
		logger: logger.With().Str("component", "assistant").Logger(),
	}
}

// Reply answers an "@ai" question for one role. It never fails; model errors
// degrade to FallbackReply
func (e *Engine) Reply(ctx context.Context, room *types.Room, role types.Role, question types.Message) string {
	reply, err := e.model.Complete(ctx, BuildPrompt(room, role, question))
	if err != nil {
		e.logger.Warn().Err(err).Str("room_id", room.ID).Str("role", string(role)).Msg("assistant reply failed")
		return FallbackReply
	}
	return strings.TrimSpace(reply)
}

// Documentation writes a consultation note from everything the doctor can see
func (e *Engine) Documentation(ctx context.Context, room *types.Room) string {
	var transcript strings.Builder
	for _, msg := range types.VisibleMessages(room.Messages, types.RoleDoctor) {
		fmt.Fprintf(&transcript, "[%d] %s (%s): %s\n", msg.Seq, msg.Nickname, msg.SpeakerRole, msg.Content)
	}
	if transcript.Len() == 0 {
		transcript.WriteString("(no messages)\n")
	}

	segments := []interfaces.PromptSegment{
		{Role: interfaces.SegmentSystem, Content: documentationPersona},
	}
	if docs := documentContext(room, types.RoleDoctor); docs != "" {
		segments = append(segments, interfaces.PromptSegment{Role: interfaces.SegmentSystem, Content: docs})
	}
	segments = append(segments, interfaces.PromptSegment{
		Role:    interfaces.SegmentUser,
		Content: "Consultation transcript:\n" + transcript.String(),
	})

	note, err := e.model.Complete(ctx, segments)
	if err != nil {
		e.logger.Warn().Err(err).Str("room_id", room.ID).Msg("documentation failed")
		return FallbackDocumentation
	}
	return strings.TrimSpace(note)
}

// BuildPrompt assembles persona, document context, recent history and the
// question for one role.
// FUNCTIONAL DISCOVERY: Only messages the role may see are ever placed in
// its prompt, so a patient prompt can never carry doctor-only analysis
func BuildPrompt(room *types.Room, role types.Role, question types.Message) []interfaces.PromptSegment {
	persona := patientPersona
	if role == types.RoleDoctor {
		persona = doctorPersona
	}
	segments := []interfaces.PromptSegment{{Role: interfaces.SegmentSystem, Content: persona}}

	if docs := documentContext(room, role); docs != "" {
		segments = append(segments, interfaces.PromptSegment{Role: interfaces.SegmentSystem, Content: docs})
	}

	for _, msg := range RecentContext(room.Messages, role, question.Seq, ContextWindow) {
		if msg.SpeakerRole == types.SpeakerAI {
			segments = append(segments, interfaces.PromptSegment{Role: interfaces.SegmentAssistant, Content: msg.Content})
			continue
		}
		segments = append(segments, interfaces.PromptSegment{
			Role:    interfaces.SegmentUser,
			Content: fmt.Sprintf("%s (%s): %s", msg.Nickname, msg.SpeakerRole, msg.Content),
		})
	}

	segments = append(segments, interfaces.PromptSegment{
		Role:    interfaces.SegmentUser,
		Content: StripMarker(question.Content),
	})
	return segments
}

// RecentContext returns up to n messages visible to role with Seq before beforeSeq
func RecentContext(messages []types.Message, role types.Role, beforeSeq uint64, n int) []types.Message {
	var picked []types.Message
	for i := len(messages) - 1; i >= 0 && len(picked) < n; i-- {
		msg := messages[i]
		if msg.Seq >= beforeSeq || !types.Visible(msg, role) {
			continue
		}
		picked = append(picked, msg)
	}
	for i, j := 0, len(picked)-1; i < j; i, j = i+1, j-1 {
		picked[i], picked[j] = picked[j], picked[i]
	}
	return picked
}

// StripMarker removes the "@ai" address from a question
func StripMarker(text string) string {
	stripped := strings.TrimSpace(markerPattern.ReplaceAllString(text, ""))
	if stripped == "" {
		return text
	}
	return stripped
}

// documentContext summarizes the room's files for one role.
// FUNCTIONAL DISCOVERY: Doctors get the stored document summaries and the
// metrics snapshot; patients only learn that documents were received
func documentContext(room *types.Room, role types.Role) string {
	if len(room.Files) == 0 && (role != types.RoleDoctor || room.HealthMetrics == nil) {
		return ""
	}

	if role != types.RoleDoctor {
		names := make([]string, 0, len(room.Files))
		for _, f := range room.Files {
			names = append(names, f.Name)
		}
		return fmt.Sprintf(patientDocumentNotice, len(names), strings.Join(names, ", "))
	}

	var b strings.Builder
	b.WriteString("Documents in this consultation:\n")
	for i, f := range room.Files {
		fmt.Fprintf(&b, "%d. %s (%s)\n", i+1, f.Name, f.MimeType)
		if s := f.DocumentSummary; s != nil {
			fmt.Fprintf(&b, "   Diagnosis: %s (risk %s)\n", s.PrimaryDiagnosis, s.RiskLevel)
			if len(s.KeyMetrics) > 0 {
				fmt.Fprintf(&b, "   Key metrics: %s\n", strings.Join(s.KeyMetrics, "; "))
			}
			fmt.Fprintf(&b, "   Analysis: %s\n", s.Analysis)
		} else {
			b.WriteString("   Analysis pending.\n")
		}
	}

	if m := room.HealthMetrics; m != nil {
		fmt.Fprintf(&b, "Current health metrics: primary diagnosis %s, confidence %.0f%%, risk %s.\n",
			m.Diagnosis.Primary, m.Diagnosis.Confidence, m.Diagnosis.RiskLevel)
		names := make([]string, 0, len(m.Vitals))
		for name := range m.Vitals {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v := m.Vitals[name]
			fmt.Fprintf(&b, "   %s: %s %s (%s)\n", name, v.Value, v.Unit, v.Status)
		}
	}
	return b.String()
}
