package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"medroom/internal/database"
	"medroom/internal/hub"
	dbconfig "medroom/pkg/database"
	"medroom/pkg/types"
)

type roomResponse struct {
	Token      string `json:"token"`
	RoomID     string `json:"roomId"`
	InviteLink string `json:"inviteLink"`
}

func createRoom(t *testing.T, baseURL string) roomResponse {
	t.Helper()
	body := strings.NewReader(`{"doctorEmail":"dr.lee@clinic.test","patientEmail":"ann@example.com"}`)
	resp, err := http.Post(baseURL+"/api/rooms", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create room: status %d", resp.StatusCode)
	}
	var room roomResponse
	if err := json.NewDecoder(resp.Body).Decode(&room); err != nil {
		t.Fatal(err)
	}
	return room
}

func uploadFile(t *testing.T, baseURL, roomID, name, content string) {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	_ = writer.WriteField("roomId", roomID)
	_ = writer.WriteField("uploader", "Ann")
	_ = writer.WriteField("role", "patient")
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		t.Fatal(err)
	}
	_, _ = part.Write([]byte(content))
	_ = writer.Close()

	resp, err := http.Post(baseURL+"/api/upload", writer.FormDataContentType(), body)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("upload: status %d", resp.StatusCode)
	}
}

func assertAudience(t *testing.T, who string, client *TestClient, role types.Role) {
	t.Helper()
	for _, msg := range client.Messages(t) {
		if !types.Visible(msg, role) {
			t.Errorf("%s received a message scoped to %s: %q", who, msg.ForRole, msg.Content)
		}
	}
}

// TestConsultation_EndToEnd drives a full consultation over HTTP and WebSocket
func TestConsultation_EndToEnd(t *testing.T) {
	ta := startApp(t)
	room := createRoom(t, ta.baseURL)

	resp, err := http.Get(ta.baseURL + "/api/rooms/validate?token=" + room.Token + "&email=ann@example.com")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("validate: status %d", resp.StatusCode)
	}

	doctor := Dial(t, ta.baseURL)
	patient := Dial(t, ta.baseURL)
	doctor.join(t, room.RoomID, "Dr Lee", types.RoleDoctor, "dr.lee@clinic.test")
	patient.join(t, room.RoomID, "Ann", types.RolePatient, "ann@example.com")
	doctor.WaitFor(t, types.EventUserJoined, func(data json.RawMessage) bool {
		return strings.Contains(string(data), `"Ann"`)
	})

	t.Run("AIQuestionStaysWithAsker", func(t *testing.T) {
		patient.Send(t, types.EventChatMessage, types.ChatRequest{Text: "@ai what does LDL mean?"})
		patient.WaitFor(t, types.EventAIMessage, messageContaining("Here is what I can tell you"))

		doctor.Send(t, types.EventChatMessage, types.ChatRequest{Text: "I reviewed your chart"})
		patient.WaitFor(t, types.EventChatMessage, messageContaining("reviewed your chart"))
		doctor.WaitFor(t, types.EventChatMessage, messageContaining("reviewed your chart"))

		for _, msg := range doctor.Messages(t) {
			if strings.Contains(msg.Content, "LDL mean") || msg.SpeakerRole == types.SpeakerAI {
				t.Errorf("doctor saw the patient's private exchange: %q", msg.Content)
			}
		}
	})

	t.Run("EmergencyAlertsDoctor", func(t *testing.T) {
		patient.Send(t, types.EventChatMessage, types.ChatRequest{Text: "I have crushing chest pain"})
		alert := doctor.WaitFor(t, types.EventEmergencyAlert, nil)
		if !strings.Contains(string(alert), "CRITICAL") {
			t.Errorf("alert = %s", alert)
		}
		patient.WaitFor(t, types.EventAIMessage, messageContaining("Call emergency services now."))
		if got := patient.Events(types.EventEmergencyAlert); len(got) != 0 {
			t.Errorf("patient received %d emergency alerts", len(got))
		}
	})

	t.Run("UploadAnalysisSplitsByRole", func(t *testing.T) {
		uploadFile(t, ta.baseURL, room.RoomID, "labs.txt", "Lipid panel: LDL 190 mg/dL, HDL 38 mg/dL, fasting")

		doctor.WaitFor(t, types.EventAIMessage, messageContaining("Analysis of labs.txt"))
		doctor.WaitFor(t, types.EventHealthMetricsUpdated, nil)
		patient.WaitFor(t, types.EventAIMessage, messageContaining("Thank you for sharing labs.txt"))
		patient.WaitFor(t, types.EventFilesUpdated, nil)

		if got := patient.Events(types.EventHealthMetricsUpdated); len(got) != 0 {
			t.Errorf("patient received %d metrics updates", len(got))
		}
		for _, msg := range patient.Messages(t) {
			if strings.Contains(msg.Content, "markedly elevated") {
				t.Error("patient received the clinical analysis")
			}
		}
	})

	t.Run("DocumentationIsDoctorOnly", func(t *testing.T) {
		patient.Send(t, types.EventRequestDocumentation, struct{}{})
		patient.WaitFor(t, types.EventError, nil)

		doctor.Send(t, types.EventRequestDocumentation, struct{}{})
		note := doctor.WaitFor(t, types.EventDocumentationGenerated, nil)
		var result hub.DocumentationResult
		if err := json.Unmarshal(note, &result); err != nil {
			t.Fatal(err)
		}
		if !strings.Contains(result.Documentation, "SUBJECTIVE") {
			t.Errorf("documentation = %q", result.Documentation)
		}
	})

	t.Run("VideoSignaling", func(t *testing.T) {
		doctor.Send(t, types.EventStartVideoCall, struct{}{})
		patient.WaitFor(t, types.EventVideoCallStarted, nil)

		doctor.Send(t, types.EventJoinVideoCall, types.VideoRequest{PeerID: "peer-doctor"})
		doctor.WaitFor(t, types.EventExistingVideoParticipants, nil)
		patient.Send(t, types.EventJoinVideoCall, types.VideoRequest{PeerID: "peer-patient"})
		existing := patient.WaitFor(t, types.EventExistingVideoParticipants, nil)
		if !strings.Contains(string(existing), "peer-doctor") {
			t.Errorf("patient should see the doctor's peer, got %s", existing)
		}
		doctor.WaitFor(t, types.EventUserJoinedVideo, func(data json.RawMessage) bool {
			return strings.Contains(string(data), "peer-patient")
		})

		doctor.Send(t, types.EventEndVideoCall, struct{}{})
		patient.WaitFor(t, types.EventVideoCallEnded, nil)
	})

	assertAudience(t, "patient", patient, types.RolePatient)
	assertAudience(t, "doctor", doctor, types.RoleDoctor)

	t.Run("DeleteRoomEvictsEveryone", func(t *testing.T) {
		req, _ := http.NewRequest(http.MethodDelete, ta.baseURL+"/api/rooms/"+room.Token+"?email=dr.lee@clinic.test", nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		_ = resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("delete: status %d", resp.StatusCode)
		}
		doctor.WaitFor(t, types.EventRoomDeleted, nil)
		patient.WaitFor(t, types.EventRoomDeleted, nil)
	})

	// The audit trail is flushed on shutdown and keeps every audience tag
	ta.stop(t)
	audit, err := database.NewAuditLog(dbconfig.DefaultConfig(ta.auditPath), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = audit.Close() }()

	ctx := context.Background()
	stored, err := audit.RoomMessages(ctx, room.RoomID)
	if err != nil {
		t.Fatal(err)
	}
	var patientPrivate, doctorPrivate int
	for i, msg := range stored {
		if i > 0 && msg.Seq <= stored[i-1].Seq {
			t.Errorf("audited seq not increasing at %d", i)
		}
		switch msg.ForRole {
		case "patient":
			patientPrivate++
		case "doctor":
			doctorPrivate++
		}
	}
	if patientPrivate == 0 || doctorPrivate == 0 {
		t.Errorf("expected private messages for both roles, got patient=%d doctor=%d", patientPrivate, doctorPrivate)
	}

	events, err := audit.InvitationEvents(ctx, room.RoomID)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 || events[0].Action != "created" || events[1].Action != "deleted" {
		t.Errorf("invitation events = %+v", events)
	}
}

// TestConsultation_InvitationEnforced rejects a joiner whose email is not bound
func TestConsultation_InvitationEnforced(t *testing.T) {
	ta := startApp(t)
	room := createRoom(t, ta.baseURL)

	intruder := Dial(t, ta.baseURL)
	intruder.Send(t, types.EventJoinRoom, types.JoinRequest{
		RoomID: room.RoomID, Nickname: "Mallory", Role: types.RolePatient, Email: "mallory@example.com",
	})
	intruder.WaitFor(t, types.EventError, nil)
	if got := intruder.Events(types.EventRoomHistory); len(got) != 0 {
		t.Error("rejected joiner received room history")
	}

	resp, err := http.Get(ta.baseURL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("health: status %d", resp.StatusCode)
	}
}
