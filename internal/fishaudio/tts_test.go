package fishaudio

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

func TestNewTTSRequestDefaults(t *testing.T) {
	req := NewTTSRequest("hello")

	if req.Text != "hello" {
		t.Errorf("Text = %q, want %q", req.Text, "hello")
	}
	if req.ChunkLength != 200 {
		t.Errorf("ChunkLength = %d, want 200", req.ChunkLength)
	}
	if req.Format != "mp3" {
		t.Errorf("Format = %q, want %q", req.Format, "mp3")
	}
	if req.MP3Bitrate != 128 {
		t.Errorf("MP3Bitrate = %d, want 128", req.MP3Bitrate)
	}
	if !req.Normalize {
		t.Error("Normalize = false, want true")
	}
	if req.Latency != "normal" {
		t.Errorf("Latency = %q, want %q", req.Latency, "normal")
	}
}

func TestSynthesize(t *testing.T) {
	audio := []byte("mp3-bytes")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" || r.URL.Path != "/v1/tts" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		if got := r.Header.Get("Content-Type"); got != "application/msgpack" {
			t.Errorf("Content-Type = %q", got)
		}
		if got := r.Header.Get("model"); got != "speech-1.6" {
			t.Errorf("model header = %q", got)
		}

		body, _ := io.ReadAll(r.Body)
		var req TTSRequest
		if err := msgpack.Unmarshal(body, &req); err != nil {
			t.Errorf("body is not msgpack: %v", err)
		}
		if req.Text != "hello world" {
			t.Errorf("request text = %q", req.Text)
		}

		w.Write(audio)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	got, err := client.Synthesize(context.Background(), NewTTSRequest("hello world"))
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if !bytes.Equal(got, audio) {
		t.Errorf("audio = %q, want %q", got, audio)
	}
}

func TestSynthesizeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"payment required"}`, http.StatusPaymentRequired)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	_, err := client.Synthesize(context.Background(), NewTTSRequest("hi"))
	if err == nil {
		t.Fatal("expected error for non-200 response")
	}
	if !strings.Contains(err.Error(), "402") {
		t.Errorf("err = %v, want status in message", err)
	}
	if !strings.Contains(err.Error(), "payment required") {
		t.Errorf("err = %v, want body in message", err)
	}
}

func TestSynthesizeStream(t *testing.T) {
	payload := bytes.Repeat([]byte("abcdefgh"), 2048) // forces multiple chunks

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(payload)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	ch, err := client.SynthesizeStream(context.Background(), NewTTSRequest("hi"))
	if err != nil {
		t.Fatalf("SynthesizeStream failed: %v", err)
	}

	var got []byte
	chunks := 0
	for chunk := range ch {
		got = append(got, chunk...)
		chunks++
	}

	if !bytes.Equal(got, payload) {
		t.Errorf("reassembled stream differs: %d bytes, want %d", len(got), len(payload))
	}
	if chunks < 2 {
		t.Errorf("stream arrived in %d chunk(s), want several", chunks)
	}
}

func TestSynthesizeStreamAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad request", http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL})

	if _, err := client.SynthesizeStream(context.Background(), NewTTSRequest("hi")); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}
