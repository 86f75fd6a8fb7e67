package speech

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

type recognizeRequest struct {
	Config RecognitionConfig `json:"config"`
	Audio  struct {
		Content string `json:"content"`
	} `json:"audio"`
}

func TestTranscribe_FirstConfigSucceeds(t *testing.T) {
	var requests []recognizeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recognizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		requests = append(requests, req)
		w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"買狗糧"}]}]}`))
	}))
	defer server.Close()

	tr := NewGoogleTranscriber("api-key", WithEndpoint(server.URL))
	text, err := tr.Transcribe(context.Background(), []byte("audio-bytes"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "買狗糧" {
		t.Fatalf("text = %q", text)
	}
	if len(requests) != 1 {
		t.Fatalf("made %d requests, want 1", len(requests))
	}
	if requests[0].Config.Encoding != "M4A" || requests[0].Config.LanguageCode != "zh-TW" {
		t.Fatalf("first config = %+v, want M4A zh-TW", requests[0].Config)
	}
	if requests[0].Audio.Content == "" {
		t.Fatal("audio content should be base64 encoded in the request")
	}
}

func TestTranscribe_FallsThroughConfigs(t *testing.T) {
	var encodings []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req recognizeRequest
		json.NewDecoder(r.Body).Decode(&req)
		encodings = append(encodings, req.Config.Encoding)

		// Only the WEBM_OPUS configuration succeeds.
		if req.Config.Encoding == "WEBM_OPUS" {
			w.Write([]byte(`{"results":[{"alternatives":[{"transcript":"遛狗"}]}]}`))
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"bad encoding"}}`))
	}))
	defer server.Close()

	tr := NewGoogleTranscriber("api-key", WithEndpoint(server.URL))
	text, err := tr.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "遛狗" {
		t.Fatalf("text = %q", text)
	}
	if len(encodings) != 3 {
		t.Fatalf("made %d requests, want 3", len(encodings))
	}
	if encodings[0] != "M4A" || encodings[1] != "" || encodings[2] != "WEBM_OPUS" {
		t.Fatalf("config order = %v, want [M4A, auto, WEBM_OPUS]", encodings)
	}
}

func TestTranscribe_AllConfigsEmpty(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	tr := NewGoogleTranscriber("api-key", WithEndpoint(server.URL))
	_, err := tr.Transcribe(context.Background(), []byte("silence"))
	if !errors.Is(err, ErrNoSpeech) {
		t.Fatalf("err = %v, want ErrNoSpeech", err)
	}
}

func TestTranscribe_JoinsMultipleResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[
			{"alternatives":[{"transcript":"第一段"}]},
			{"alternatives":[{"transcript":"第二段"}]}
		]}`))
	}))
	defer server.Close()

	tr := NewGoogleTranscriber("api-key", WithEndpoint(server.URL))
	text, err := tr.Transcribe(context.Background(), []byte("audio"))
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if text != "第一段\n第二段" {
		t.Fatalf("text = %q", text)
	}
}

func TestTranscribe_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"results":[]}`))
	}))
	defer server.Close()

	tr := NewGoogleTranscriber("api-key", WithEndpoint(server.URL))
	_, err := tr.Transcribe(ctx, []byte("audio"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
