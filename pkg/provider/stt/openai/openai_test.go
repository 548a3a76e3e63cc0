package openai_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/MrWong99/countrycall/pkg/provider/stt"
	"github.com/MrWong99/countrycall/pkg/provider/stt/openai"
)

func TestNew_EmptyAPIKey(t *testing.T) {
	t.Parallel()
	if _, err := openai.New("", ""); err == nil {
		t.Fatal("expected error for empty API key")
	}
}

func TestTranscribe_UploadsWAV(t *testing.T) {
	t.Parallel()

	type upload struct {
		path, model, language, prompt, filename string
		size                                    int
	}
	got := make(chan upload, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(f)
		f.Close()
		got <- upload{
			path:     r.URL.Path,
			model:    r.FormValue("model"),
			language: r.FormValue("language"),
			prompt:   r.FormValue("prompt"),
			filename: hdr.Filename,
			size:     len(data),
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"text": " Japan and Peru "})
	}))
	defer srv.Close()

	p, err := openai.New("test-key", "", openai.WithBaseURL(srv.URL+"/v1/"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	text, err := p.Transcribe(context.Background(), stt.Request{
		Samples:    make([]float32, 1600),
		SampleRate: 16000,
		Language:   "en",
		Prompt:     "Countries.",
	})
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "Japan and Peru" {
		t.Errorf("text = %q, want %q", text, "Japan and Peru")
	}

	u := <-got
	if u.path != "/v1/audio/transcriptions" {
		t.Errorf("path = %q", u.path)
	}
	if u.model != "whisper-1" {
		t.Errorf("model = %q, want whisper-1", u.model)
	}
	if u.language != "en" || u.prompt != "Countries." {
		t.Errorf("language/prompt = %q/%q", u.language, u.prompt)
	}
	if u.filename != "audio.wav" {
		t.Errorf("filename = %q", u.filename)
	}
	if u.size != 44+3200 {
		t.Errorf("wav size = %d, want %d", u.size, 44+3200)
	}
}

func TestTranscribe_APIError(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"message":"bad audio","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	p, _ := openai.New("test-key", "whisper-1", openai.WithBaseURL(srv.URL+"/v1/"))
	if _, err := p.Transcribe(context.Background(), stt.Request{Samples: make([]float32, 10), SampleRate: 16000}); err == nil {
		t.Fatal("expected error for HTTP 400")
	}
}
