package synthesize

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(base string) *Client {
	return NewClient(base, nil, nil, zerolog.Nop())
}

func TestSynthesize_InlineBase64(t *testing.T) {
	audio := []byte("mp3-bytes-here")
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload map[string]string
		json.NewDecoder(r.Body).Decode(&payload)
		if payload["text"] != "hello" {
			t.Errorf("Expected text 'hello', got '%s'", payload["text"])
		}
		if _, ok := payload["session_id"]; ok {
			t.Error("Expected no session_id field when none is set")
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"audio_base64": %q}`, base64.StdEncoding.EncodeToString(audio))
	}))
	defer backend.Close()

	data, contentType, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	if !bytes.Equal(data, audio) {
		t.Errorf("Expected decoded bytes %q, got %q", audio, data)
	}
	if contentType != CanonicalAudioMime {
		t.Errorf("Expected content type %q, got %q", CanonicalAudioMime, contentType)
	}
}

func TestSynthesize_NamedFile(t *testing.T) {
	audio := []byte("file-audio")
	var audioPath string
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tts":
			var payload map[string]string
			json.NewDecoder(r.Body).Decode(&payload)
			if payload["session_id"] != "s1" {
				t.Errorf("Expected session_id 's1', got '%s'", payload["session_id"])
			}
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"filename": "reply.mp3"}`))
		default:
			audioPath = r.URL.Path
			w.Header().Set("Content-Type", "audio/mpeg")
			w.Write(audio)
		}
	}))
	defer backend.Close()

	data, _, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "s1")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	if audioPath != "/audio/reply.mp3" {
		t.Errorf("Expected GET /audio/reply.mp3, got %q", audioPath)
	}
	if !bytes.Equal(data, audio) {
		t.Errorf("Expected bytes %q, got %q", audio, data)
	}
}

func TestSynthesize_RelativeURL(t *testing.T) {
	audio := []byte("relative-audio")
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/tts":
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"audioUrl": "/audio/out.mp3"}`))
		case "/audio/out.mp3":
			// No content type reported: canonical fallback applies
			w.Write(audio)
		default:
			t.Errorf("Unexpected path %q", r.URL.Path)
		}
	}))
	defer backend.Close()

	data, contentType, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	if !bytes.Equal(data, audio) {
		t.Errorf("Expected bytes %q, got %q", audio, data)
	}
	if contentType == "" {
		t.Error("Expected content type fallback, got empty")
	}
}

func TestSynthesize_AbsoluteURL(t *testing.T) {
	audio := []byte("absolute-audio")
	audioHost := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/ogg")
		w.Write(audio)
	}))
	defer audioHost.Close()

	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"audioUrl": %q}`, audioHost.URL+"/clip.ogg")
	}))
	defer backend.Close()

	data, contentType, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}

	if !bytes.Equal(data, audio) {
		t.Errorf("Expected bytes %q, got %q", audio, data)
	}
	if contentType != "audio/ogg" {
		t.Errorf("Expected reported content type 'audio/ogg', got %q", contentType)
	}
}

func TestSynthesize_RawAudioBody(t *testing.T) {
	audio := []byte("raw-mp3")
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write(audio)
	}))
	defer backend.Close()

	data, contentType, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "")
	if err != nil {
		t.Fatalf("Synthesize() failed: %v", err)
	}
	if !bytes.Equal(data, audio) {
		t.Errorf("Expected bytes %q, got %q", audio, data)
	}
	if contentType != "audio/mpeg" {
		t.Errorf("Expected content type 'audio/mpeg', got %q", contentType)
	}
}

func TestSynthesize_EmptyText(t *testing.T) {
	requested := false
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requested = true
	}))
	defer backend.Close()

	_, _, err := newTestClient(backend.URL).Synthesize(context.Background(), "   ", "")
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrSynthesis for whitespace text, got %v", err)
	}
	if requested {
		t.Error("Expected no request for empty text")
	}
}

func TestSynthesize_BackendRejection(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer backend.Close()

	_, _, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "")
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrSynthesis, got %v", err)
	}
}

func TestSynthesize_MalformedPayload(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status": "done"}`))
	}))
	defer backend.Close()

	_, _, err := newTestClient(backend.URL).Synthesize(context.Background(), "hello", "")
	if !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Expected ErrMalformedPayload, got %v", err)
	}
	// The malformed shape is still a synthesis failure to the caller
	if !errors.Is(err, ErrSynthesis) {
		t.Errorf("Expected ErrMalformedPayload to satisfy ErrSynthesis, got %v", err)
	}
}

func TestResolveAudioURL(t *testing.T) {
	base := "http://host:8000"
	cases := []struct {
		raw  string
		want string
	}{
		{"http://other:9000/a.mp3", "http://other:9000/a.mp3"},
		{"https://cdn/a.mp3", "https://cdn/a.mp3"},
		{"/audio/a.mp3", "http://host:8000/audio/a.mp3"},
		{"audio/a.mp3", "http://host:8000/audio/a.mp3"},
	}

	for _, tc := range cases {
		got := ResolveAudioURL(base, tc.raw)
		if got != tc.want {
			t.Errorf("ResolveAudioURL(%q) = %q, want %q", tc.raw, got, tc.want)
		}

		// Idempotent under double resolution
		if again := ResolveAudioURL(base, got); again != got {
			t.Errorf("Double resolution changed %q to %q", got, again)
		}
	}
}
