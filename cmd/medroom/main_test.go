package main

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"medroom/internal/database"
	dbconfig "medroom/pkg/database"
	"medroom/pkg/types"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(out, "medroom ") {
		t.Errorf("output = %q", out)
	}
}

func TestAuditCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.db")
	audit, err := database.NewAuditLog(dbconfig.DefaultConfig(path), zerolog.Nop())
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	_ = audit.RecordInvitation(ctx, &types.Invitation{Token: "t", RoomID: "room-9", DoctorEmail: "d@x.io", PatientEmail: "p@x.io"}, "created")
	_ = audit.RecordMessage(ctx, "room-9", types.Message{Seq: 1, SpeakerRole: types.SpeakerPatient, Nickname: "Ann", Content: "hello", Timestamp: time.Now()})
	if err := audit.Close(); err != nil {
		t.Fatal(err)
	}

	t.Setenv("MEDROOM_AUDIT_PATH", path)
	out, err := execute(t, "audit", "--room", "room-9")
	if err != nil {
		t.Fatalf("audit command: %v (%s)", err, out)
	}
	var result struct {
		Invitations []database.InvitationEvent `json:"invitations"`
		Messages    []database.AuditedMessage  `json:"messages"`
	}
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("output is not JSON: %q", out)
	}
	if len(result.Invitations) != 1 || len(result.Messages) != 1 || result.Messages[0].Content != "hello" {
		t.Errorf("result = %+v", result)
	}
}

func TestAuditCommandRequiresRoom(t *testing.T) {
	if _, err := execute(t, "audit"); err == nil {
		t.Error("audit without --room should fail")
	}
}

func TestAuditCommandDisabled(t *testing.T) {
	t.Setenv("MEDROOM_AUDIT_PATH", "")
	if _, err := execute(t, "audit", "--room", "room-9"); err == nil {
		t.Error("audit with an empty path should fail")
	}
}
