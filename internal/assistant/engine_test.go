package assistant

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

type scriptedModel struct {
	reply    string
	err      error
	requests [][]interfaces.PromptSegment
}

func (m *scriptedModel) Complete(ctx context.Context, segments []interfaces.PromptSegment) (string, error) {
	m.requests = append(m.requests, segments)
	return m.reply, m.err
}

func promptText(segments []interfaces.PromptSegment) string {
	var b strings.Builder
	for _, s := range segments {
		b.WriteString(s.Content)
		b.WriteString("\n")
	}
	return b.String()
}

func sampleRoom() *types.Room {
	return &types.Room{
		ID: "room-1",
		Messages: []types.Message{
			{Seq: 1, SpeakerRole: types.SpeakerPatient, Nickname: "Ann", Content: "My chest feels tight"},
			{Seq: 2, SpeakerRole: types.SpeakerAI, Nickname: types.SpeakerAI, Content: "LDL 190 suggests familial hypercholesterolemia", ForRole: types.RoleDoctor},
			{Seq: 3, SpeakerRole: types.SpeakerDoctor, Nickname: "Dr. Lee", Content: "When did it start?"},
			{Seq: 4, SpeakerRole: types.SpeakerAI, Nickname: types.SpeakerAI, Content: "Your doctor is reviewing it", ForRole: types.RolePatient},
		},
		Files: []*types.UploadedFile{{
			ID:       "f1",
			Name:     "lipids.txt",
			MimeType: "text/plain",
			DocumentSummary: &types.DocumentSummary{
				Analysis:         "Markedly elevated LDL",
				KeyMetrics:       []string{"LDL: 190 mg/dL (high)"},
				RiskLevel:        types.RiskHigh,
				PrimaryDiagnosis: "Hyperlipidemia",
			},
		}},
		HealthMetrics: &types.HealthMetrics{
			Vitals:    map[string]types.Vital{"LDL": {Value: "190", Unit: "mg/dL", Status: "high"}},
			Diagnosis: types.Diagnosis{Primary: "Hyperlipidemia", Confidence: 80, RiskLevel: types.RiskHigh},
		},
	}
}

func TestReply_PatientPromptExcludesDoctorContent(t *testing.T) {
	model := &scriptedModel{reply: "  Please ask your doctor.  "}
	engine := NewEngine(model, zerolog.Nop())
	question := types.Message{Seq: 5, Content: "@ai what does my LDL mean?"}

	reply := engine.Reply(context.Background(), sampleRoom(), types.RolePatient, question)
	if reply != "Please ask your doctor." {
		t.Errorf("reply = %q", reply)
	}

	prompt := promptText(model.requests[0])
	for _, leaked := range []string{"familial hypercholesterolemia", "Markedly elevated LDL", "Hyperlipidemia"} {
		if strings.Contains(prompt, leaked) {
			t.Errorf("patient prompt leaked %q", leaked)
		}
	}
	if !strings.Contains(prompt, "received and are under review") {
		t.Error("patient prompt should mention documents under review")
	}
	if !strings.Contains(prompt, "Your doctor is reviewing it") {
		t.Error("patient-visible AI message should be in context")
	}
	last := model.requests[0][len(model.requests[0])-1]
	if last.Role != interfaces.SegmentUser || last.Content != "what does my LDL mean?" {
		t.Errorf("question segment = %+v", last)
	}
}

func TestReply_DoctorPromptCarriesClinicalContext(t *testing.T) {
	model := &scriptedModel{reply: "ok"}
	engine := NewEngine(model, zerolog.Nop())

	engine.Reply(context.Background(), sampleRoom(), types.RoleDoctor, types.Message{Seq: 5, Content: "@ai differential?"})

	segments := model.requests[0]
	if segments[0].Content != doctorPersona {
		t.Error("doctor persona should lead the prompt")
	}
	prompt := promptText(segments)
	for _, want := range []string{"Markedly elevated LDL", "LDL: 190 mg/dL", "Hyperlipidemia", "familial hypercholesterolemia"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("doctor prompt missing %q", want)
		}
	}
	if strings.Contains(prompt, "Your doctor is reviewing it") {
		t.Error("patient-only message leaked into doctor prompt")
	}
}

func TestReply_FallbackOnModelFailure(t *testing.T) {
	model := &scriptedModel{err: fmt.Errorf("%w: 500", types.ErrModelUnavailable)}
	engine := NewEngine(model, zerolog.Nop())

	reply := engine.Reply(context.Background(), sampleRoom(), types.RoleDoctor, types.Message{Seq: 5, Content: "@ai hi"})
	if reply != FallbackReply {
		t.Errorf("reply = %q", reply)
	}
}

func TestRecentContext(t *testing.T) {
	var messages []types.Message
	for i := 1; i <= 10; i++ {
		msg := types.Message{Seq: uint64(i), Content: fmt.Sprintf("m%d", i)}
		if i%3 == 0 {
			msg.ForRole = types.RoleDoctor
		}
		messages = append(messages, msg)
	}

	got := RecentContext(messages, types.RolePatient, 10, ContextWindow)
	var seqs []uint64
	for _, m := range got {
		seqs = append(seqs, m.Seq)
	}
	want := []uint64{2, 4, 5, 7, 8}
	if fmt.Sprint(seqs) != fmt.Sprint(want) {
		t.Errorf("seqs = %v, want %v", seqs, want)
	}

	if len(RecentContext(messages, types.RoleDoctor, 1, ContextWindow)) != 0 {
		t.Error("nothing precedes the first message")
	}
}

func TestStripMarker(t *testing.T) {
	cases := map[string]string{
		"@ai what is LDL?":     "what is LDL?",
		"@AI, summarize":       "summarize",
		"hey @ai: explain A1c": "hey  explain A1c",
		"@ai":                  "@ai",
	}
	for in, want := range cases {
		if got := StripMarker(in); got != want {
			t.Errorf("StripMarker(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestDocumentation(t *testing.T) {
	model := &scriptedModel{reply: "Chief Complaint: chest tightness"}
	engine := NewEngine(model, zerolog.Nop())

	note := engine.Documentation(context.Background(), sampleRoom())
	if note != "Chief Complaint: chest tightness" {
		t.Errorf("note = %q", note)
	}
	prompt := promptText(model.requests[0])
	if !strings.Contains(prompt, "[2]") || strings.Contains(prompt, "Your doctor is reviewing it") {
		t.Error("documentation should use the doctor-visible log only")
	}

	model.err = errors.New("down")
	if got := engine.Documentation(context.Background(), sampleRoom()); got != FallbackDocumentation {
		t.Errorf("fallback = %q", got)
	}
}
