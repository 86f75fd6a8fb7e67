package line

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
)

func newTestClient(t *testing.T, apiURL, blobURL string) *Client {
	t.Helper()
	opts := []Option{}
	if apiURL != "" {
		opts = append(opts, WithAPIEndpoint(apiURL))
	}
	if blobURL != "" {
		opts = append(opts, WithBlobEndpoint(blobURL))
	}
	c, err := NewClient("channel-token", opts...)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestClient_ReplyMessage(t *testing.T) {
	var gotPath, gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	err := c.ReplyMessage(context.Background(), "reply-token", messaging_api.TextMessage{Text: "汪汪"})
	if err != nil {
		t.Fatalf("ReplyMessage: %v", err)
	}

	if gotPath != "/v2/bot/message/reply" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotAuth != "Bearer channel-token" {
		t.Fatalf("auth = %q", gotAuth)
	}
	if gotBody["replyToken"] != "reply-token" {
		t.Fatalf("replyToken = %v", gotBody["replyToken"])
	}
	messages := gotBody["messages"].([]any)
	first := messages[0].(map[string]any)
	if first["type"] != "text" || first["text"] != "汪汪" {
		t.Fatalf("message = %v", first)
	}
}

func TestClient_PushMessageCarriesRetryKey(t *testing.T) {
	var gotBody map[string]any
	var gotRetryKey string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotRetryKey = r.Header.Get("X-Line-Retry-Key")
		data, _ := io.ReadAll(r.Body)
		json.Unmarshal(data, &gotBody)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	if err := c.PushMessage(context.Background(), "U1", messaging_api.TextMessage{Text: "hi"}); err != nil {
		t.Fatalf("PushMessage: %v", err)
	}
	if gotBody["to"] != "U1" {
		t.Fatalf("to = %v", gotBody["to"])
	}
	if gotRetryKey == "" {
		t.Fatal("push must carry a retry key for deduplication")
	}
}

func TestClient_APIErrorSurfaces(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"Invalid reply token"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	err := c.ReplyMessage(context.Background(), "stale", messaging_api.TextMessage{Text: "hi"})
	if err == nil {
		t.Fatal("ReplyMessage should fail on a 400")
	}
}

func TestClient_GetProfile(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/profile/U1" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(`{"userId":"U1","displayName":"小明","pictureUrl":"https://example.com/p.jpg"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL, "")
	profile, err := c.GetProfile(context.Background(), "U1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile.UserID != "U1" || profile.DisplayName != "小明" {
		t.Fatalf("profile = %+v", profile)
	}
}

func TestClient_GetMessageContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v2/bot/message/msg-1/content" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte("binary-audio"))
	}))
	defer server.Close()

	c := newTestClient(t, "", server.URL)
	data, err := c.GetMessageContent(context.Background(), "msg-1")
	if err != nil {
		t.Fatalf("GetMessageContent: %v", err)
	}
	if string(data) != "binary-audio" {
		t.Fatalf("content = %q", data)
	}
}

func TestClient_CancelledContext(t *testing.T) {
	c := newTestClient(t, "http://127.0.0.1:0", "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := c.ReplyMessage(ctx, "tok", messaging_api.TextMessage{Text: "hi"}); err == nil {
		t.Fatal("ReplyMessage should refuse a cancelled context")
	}
}
