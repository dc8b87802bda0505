package llm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"medroom/internal/config"
	"medroom/pkg/interfaces"
	"medroom/pkg/types"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := config.DefaultConfig().AI
	cfg.APIKey = "test-key"
	cfg.BaseURL = server.URL + "/v1"
	cfg.Timeout = 2 * time.Second
	return NewClient(cfg, zerolog.Nop())
}

func completionBody(content string) string {
	body := map[string]interface{}{
		"id":      "cmpl-1",
		"object":  "chat.completion",
		"created": 1,
		"model":   "gpt-4o-mini",
		"choices": []map[string]interface{}{{
			"index":         0,
			"message":       map[string]string{"role": "assistant", "content": content},
			"finish_reason": "stop",
		}},
	}
	data, _ := json.Marshal(body)
	return string(data)
}

func TestClient_Complete(t *testing.T) {
	var gotRoles []string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req struct {
			Messages []struct {
				Role string `json:"role"`
			} `json:"messages"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		for _, m := range req.Messages {
			gotRoles = append(gotRoles, m.Role)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("Take rest and fluids.")))
	})

	reply, err := client.Complete(context.Background(), []interfaces.PromptSegment{
		{Role: interfaces.SegmentSystem, Content: "persona"},
		{Role: "narrator", Content: "coerced"},
		{Role: interfaces.SegmentUser, Content: "I have a cold"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "Take rest and fluids." {
		t.Errorf("reply = %q", reply)
	}
	if len(gotRoles) != 3 || gotRoles[0] != "system" || gotRoles[1] != "user" {
		t.Errorf("roles sent = %v", gotRoles)
	}
}

func TestClient_ServerErrorIsModelUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"boom","type":"server_error"}}`))
	})

	_, err := client.Complete(context.Background(), []interfaces.PromptSegment{{Role: interfaces.SegmentUser, Content: "hi"}})
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestClient_EmptyReplyIsModelUnavailable(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("   ")))
	})

	_, err := client.Complete(context.Background(), []interfaces.PromptSegment{{Role: interfaces.SegmentUser, Content: "hi"}})
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestClient_TimeoutIsModelUnavailable(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)
	client.timeout = 50 * time.Millisecond

	_, err := client.Complete(context.Background(), []interfaces.PromptSegment{{Role: interfaces.SegmentUser, Content: "hi"}})
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestClient_UnconfiguredFailsFast(t *testing.T) {
	cfg := config.DefaultConfig().AI
	cfg.APIKey = ""
	client := NewClient(cfg, zerolog.Nop())
	if client.Configured() {
		t.Error("client without key should report unconfigured")
	}
	_, err := client.Complete(context.Background(), nil)
	if !errors.Is(err, types.ErrModelUnavailable) {
		t.Errorf("expected ErrModelUnavailable, got %v", err)
	}
}

func TestClient_DescribeImageSendsDataURI(t *testing.T) {
	var body string
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		body = string(data)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(completionBody("Hemoglobin 13.2 g/dL")))
	})

	text, err := client.DescribeImage(context.Background(), "image/png", []byte{0x89, 'P', 'N', 'G'}, "transcribe")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if text != "Hemoglobin 13.2 g/dL" {
		t.Errorf("text = %q", text)
	}
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Errorf("request did not inline the image: %s", body)
	}
}
