// Package webhook receives LINE platform deliveries: it authenticates the
// raw body signature, fans events out to the bot concurrently, and always
// acknowledges with 200 so the platform does not re-deliver.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"

	linewebhook "github.com/line/line-bot-sdk-go/v8/linebot/webhook"
	"github.com/sirupsen/logrus"
)

// EventHandler processes one webhook event. Implementations own their error
// handling; a returned error is logged, never surfaced to the platform.
type EventHandler interface {
	HandleEvent(ctx context.Context, event linewebhook.EventInterface) error
}

// Handler is the HTTP entry point for webhook deliveries.
type Handler struct {
	channelSecret string
	events        EventHandler
}

// NewHandler creates a webhook handler. The channel secret authenticates
// deliveries; an empty secret fails every request rather than skipping
// verification.
func NewHandler(channelSecret string, events EventHandler) *Handler {
	return &Handler{channelSecret: channelSecret, events: events}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get("X-Line-Signature")
	if err := ValidateSignatureHeader(signature); err != nil {
		logrus.WithError(err).Warn("webhook rejected")
		http.Error(w, err.Error(), http.StatusUnauthorized)
		return
	}
	if h.channelSecret == "" {
		logrus.Error("channel secret not configured")
		http.Error(w, "server misconfigured", http.StatusInternalServerError)
		return
	}
	if !VerifySignature(body, signature, h.channelSecret) {
		logrus.Warn("webhook signature mismatch")
		http.Error(w, "invalid signature", http.StatusUnauthorized)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	callback, err := linewebhook.ParseRequest(h.channelSecret, r)
	if err != nil {
		logrus.WithError(err).Error("webhook body parse failed")
		http.Error(w, "invalid request body", http.StatusInternalServerError)
		return
	}

	h.dispatch(r.Context(), callback.Events)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{
		"status":    "ok",
		"processed": len(callback.Events),
	})
}

// dispatch runs every event concurrently and waits for all of them. A
// panicking or failing event never affects its siblings or the ack.
func (h *Handler) dispatch(ctx context.Context, events []linewebhook.EventInterface) {
	if len(events) == 0 {
		return
	}

	var wg sync.WaitGroup
	for _, event := range events {
		wg.Add(1)
		go func(ev linewebhook.EventInterface) {
			defer wg.Done()
			defer func() {
				if r := recover(); r != nil {
					logrus.WithFields(logrus.Fields{
						"panic": r,
						"type":  fmt.Sprintf("%T", ev),
					}).Error("event handler panicked")
				}
			}()

			if err := h.events.HandleEvent(ctx, ev); err != nil {
				logrus.WithError(err).WithField("type", fmt.Sprintf("%T", ev)).Error("event handling failed")
			}
		}(event)
	}
	wg.Wait()
}
