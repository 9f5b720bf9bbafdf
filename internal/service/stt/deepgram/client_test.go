package deepgram

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"deepspeak/internal/service/stt"
)

const okBody = `{"metadata":{"request_id":"abc"},"results":{"channels":[{"alternatives":[{"transcript":"buongiorno","confidence":0.98}]}]}}`

func writePayload(t *testing.T, name string, data []byte) stt.Payload {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	return stt.NewPayload(path, int64(len(data)))
}

func TestClient_Name(t *testing.T) {
	if New("k").Name() != "deepgram" {
		t.Error("unexpected provider name")
	}
}

func TestClient_Transcribe_Success(t *testing.T) {
	audio := []byte("RIFF....WAVEfake audio bytes")
	var gotBody []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("expected POST, got %s", r.Method)
		}
		if r.URL.Path != "/v1/listen" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Token secret-key" {
			t.Errorf("unexpected Authorization header %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "audio/wav" {
			t.Errorf("unexpected Content-Type %q", got)
		}
		q := r.URL.Query()
		want := map[string]string{
			"model":        "nova-2",
			"language":     "it",
			"smart_format": "true",
			"punctuate":    "true",
			"paragraphs":   "false",
			"utterances":   "true",
		}
		for k, v := range want {
			if q.Get(k) != v {
				t.Errorf("query %s = %q, want %q", k, q.Get(k), v)
			}
		}
		if r.ContentLength != int64(len(audio)) {
			t.Errorf("expected content length %d, got %d", len(audio), r.ContentLength)
		}
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, okBody)
	}))
	defer server.Close()

	c := New("secret-key", WithBaseURL(server.URL+"/"))
	resp, err := c.Transcribe(context.Background(), writePayload(t, "a.wav", audio), stt.Options{
		Model:       "nova-2",
		Language:    "it",
		SmartFormat: true,
		Punctuate:   true,
		Utterances:  true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotBody) != string(audio) {
		t.Errorf("server received %q, want file contents", gotBody)
	}
	text, err := resp.FirstTranscript()
	if err != nil || text != "buongiorno" {
		t.Errorf("unexpected transcript %q, %v", text, err)
	}
	if string(resp.Raw) != okBody {
		t.Error("expected raw body to be preserved")
	}
}

func TestClient_Transcribe_Errors(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		wantAPI    bool
		wantAuth   bool
		wantMsg    string
		wantMalfmt bool
	}{
		{"unauthorized", http.StatusUnauthorized, `{"err_code":"INVALID_AUTH","err_msg":"Invalid credentials."}`, true, true, "INVALID_AUTH: Invalid credentials.", false},
		{"forbidden", http.StatusForbidden, `{"reason":"insufficient permissions"}`, true, true, "insufficient permissions", false},
		{"bad request", http.StatusBadRequest, `{"err_msg":"unknown model"}`, true, false, "unknown model", false},
		{"server error", http.StatusBadGateway, `<html>bad gateway</html>`, true, false, "<html>bad gateway</html>", false},
		{"garbage body", http.StatusOK, `not json at all`, false, false, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			}))
			defer server.Close()

			c := New("k", WithBaseURL(server.URL))
			_, err := c.Transcribe(context.Background(), writePayload(t, "a.mp3", []byte("x")), stt.Options{})
			if err == nil {
				t.Fatal("expected error")
			}
			if errors.Is(err, stt.ErrTranscriptionAPI) != tt.wantAPI {
				t.Errorf("errors.Is(ErrTranscriptionAPI) = %v, want %v (%v)", !tt.wantAPI, tt.wantAPI, err)
			}
			if errors.Is(err, stt.ErrMalformedResponse) != tt.wantMalfmt {
				t.Errorf("errors.Is(ErrMalformedResponse) mismatch: %v", err)
			}
			var apiErr *stt.APIError
			if errors.As(err, &apiErr) {
				if apiErr.StatusCode != tt.status {
					t.Errorf("expected status %d, got %d", tt.status, apiErr.StatusCode)
				}
				if apiErr.Auth != tt.wantAuth {
					t.Errorf("expected auth=%v", tt.wantAuth)
				}
				if apiErr.Message != tt.wantMsg {
					t.Errorf("expected message %q, got %q", tt.wantMsg, apiErr.Message)
				}
			}
		})
	}
}

func TestClient_Transcribe_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer server.Close()

	c := New("k", WithBaseURL(server.URL), WithTimeout(50*time.Millisecond))
	_, err := c.Transcribe(context.Background(), writePayload(t, "a.wav", []byte("x")), stt.Options{})

	var apiErr *stt.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if !apiErr.Timeout {
		t.Errorf("expected timeout flag, got %+v", apiErr)
	}
}

func TestClient_Transcribe_NetworkFailure(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	c := New("k", WithBaseURL(url))
	_, err := c.Transcribe(context.Background(), writePayload(t, "a.wav", []byte("x")), stt.Options{})
	if !errors.Is(err, stt.ErrTranscriptionAPI) {
		t.Fatalf("expected ErrTranscriptionAPI, got %v", err)
	}
	var apiErr *stt.APIError
	if errors.As(err, &apiErr) && apiErr.Timeout {
		t.Error("connection refused must not be reported as timeout")
	}
}

func TestClient_Transcribe_MissingFile(t *testing.T) {
	c := New("k")
	_, err := c.Transcribe(context.Background(), stt.NewPayload(filepath.Join(t.TempDir(), "gone.wav"), 0), stt.Options{})
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected not-exist error, got %v", err)
	}
}
