package brain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ent0n29/dayroom/internal/audio"
	"github.com/ent0n29/dayroom/internal/capture"
	"github.com/ent0n29/dayroom/internal/memory"
	"github.com/ent0n29/dayroom/internal/observability"
)

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := NewClient(Config{BaseURL: url, Timeout: 5 * time.Second},
		observability.NewMetrics(fmt.Sprintf("dayroom_test_brain_%d", time.Now().UnixNano())))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return c
}

func TestSendTurnSuccess(t *testing.T) {
	var gotHistory []memory.HistoryItem
	var gotAudio []byte
	var gotFilename, gotPath string

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("ParseMultipartForm() error = %v", err)
			return
		}
		f, hdr, err := r.FormFile("audio")
		if err != nil {
			t.Errorf("FormFile(audio) error = %v", err)
			return
		}
		gotFilename = hdr.Filename
		gotAudio, _ = io.ReadAll(f)
		_ = json.Unmarshal([]byte(r.FormValue("history")), &gotHistory)

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set(HeaderUserText, "Hi")
		w.Header().Set(HeaderAIText, "Hello")
		w.Header().Set(HeaderComplianceScore, "72")
		_, _ = w.Write([]byte("ID3-reply"))
	}))
	defer ts.Close()

	c := newTestClient(t, ts.URL)
	resp, err := c.SendTurn(context.Background(), TurnRequest{
		TurnID:  "t1",
		Audio:   capture.Payload{Data: []byte("utterance"), ContentType: audio.ContentTypeWebM},
		History: []memory.HistoryItem{{Role: memory.RoleUser, Text: "a"}, {Role: memory.RoleModel, Text: "b"}},
	})
	if err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}

	if gotPath != DefaultTurnPath {
		t.Fatalf("request path = %q, want %q", gotPath, DefaultTurnPath)
	}
	if string(gotAudio) != "utterance" || gotFilename != "voice_input.webm" {
		t.Fatalf("audio part = %q (%s), want utterance (voice_input.webm)", gotAudio, gotFilename)
	}
	if len(gotHistory) != 2 || gotHistory[1].Role != memory.RoleModel {
		t.Fatalf("history = %+v, want 2 items", gotHistory)
	}
	if string(resp.Audio) != "ID3-reply" || resp.ContentType != "audio/mpeg" {
		t.Fatalf("resp audio = %q (%s)", resp.Audio, resp.ContentType)
	}
	if resp.UserText != "Hi" || resp.AIText != "Hello" {
		t.Fatalf("resp texts = %q/%q, want Hi/Hello", resp.UserText, resp.AIText)
	}
	if resp.ComplianceScore == nil || *resp.ComplianceScore != 72 {
		t.Fatalf("ComplianceScore = %v, want 72", resp.ComplianceScore)
	}
}

func TestSendTurnEmptyHistoryIsJSONArray(t *testing.T) {
	var raw string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw = r.FormValue("history")
		_, _ = w.Write([]byte("audio"))
	}))
	defer ts.Close()

	if _, err := newTestClient(t, ts.URL).SendTurn(context.Background(), TurnRequest{}); err != nil {
		t.Fatalf("SendTurn() error = %v", err)
	}
	if raw != "[]" {
		t.Fatalf("history field = %q, want []", raw)
	}
}

func TestSendTurnBackendErrorMessageVerbatim(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SendTurn(context.Background(), TurnRequest{})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("SendTurn() error = %v, want *BackendError", err)
	}
	if be.UserMessage() != "overloaded" {
		t.Fatalf("UserMessage() = %q, want %q", be.UserMessage(), "overloaded")
	}
	if be.StatusCode != 500 || !be.Retryable {
		t.Fatalf("StatusCode/Retryable = %d/%v, want 500/true", be.StatusCode, be.Retryable)
	}
}

func TestSendTurnBackendErrorFallbackMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("<html>bad gateway</html>"))
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SendTurn(context.Background(), TurnRequest{})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("SendTurn() error = %v, want *BackendError", err)
	}
	if be.Message != "Brain Freeze: Bad Gateway" {
		t.Fatalf("Message = %q, want %q", be.Message, "Brain Freeze: Bad Gateway")
	}
}

func TestSendTurnMissingAudio(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	_, err := newTestClient(t, ts.URL).SendTurn(context.Background(), TurnRequest{})
	if !errors.Is(err, ErrMissingAudio) {
		t.Fatalf("SendTurn() error = %v, want ErrMissingAudio", err)
	}
}

func TestSendTurnTransportFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := ts.URL
	ts.Close()

	_, err := newTestClient(t, url).SendTurn(context.Background(), TurnRequest{})
	var be *BackendError
	if !errors.As(err, &be) {
		t.Fatalf("SendTurn() error = %v, want *BackendError", err)
	}
	if be.Message != MessageConnectionLost || be.StatusCode != 0 {
		t.Fatalf("BackendError = %+v, want connection lost without status", be)
	}
}

func TestSendTurnInvalidScoreIgnored(t *testing.T) {
	for _, score := range []string{"", "abc", "101", "-3", "72.5"} {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			if score != "" {
				w.Header().Set(HeaderComplianceScore, score)
			}
			_, _ = w.Write([]byte("audio"))
		}))
		resp, err := newTestClient(t, ts.URL).SendTurn(context.Background(), TurnRequest{})
		ts.Close()
		if err != nil {
			t.Fatalf("SendTurn(score=%q) error = %v", score, err)
		}
		if resp.ComplianceScore != nil {
			t.Fatalf("SendTurn(score=%q) ComplianceScore = %d, want nil", score, *resp.ComplianceScore)
		}
	}
}

func TestHeaderTextPercentDecoded(t *testing.T) {
	h := http.Header{}
	h.Set(HeaderAIText, "Caf%C3%A9+ouvert")
	if got := headerText(h, HeaderAIText); got != "Café+ouvert" {
		t.Fatalf("headerText() = %q, want %q", got, "Café+ouvert")
	}
	h.Set(HeaderUserText, "100% sure")
	if got := headerText(h, HeaderUserText); got != "100% sure" {
		t.Fatalf("headerText() = %q, want raw value on bad escape", got)
	}
}

func TestNewClientValidatesURL(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatalf("NewClient() with empty URL expected error")
	}
	c, err := NewClient(Config{BaseURL: "http://brain.test/", TurnPath: "turn"}, nil)
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	if c.URL() != "http://brain.test/turn" {
		t.Fatalf("URL() = %q, want %q", c.URL(), "http://brain.test/turn")
	}
}
