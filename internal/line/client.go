// Package line wraps the official LINE Messaging API SDK behind the small
// surface the bot uses: replies, pushes, profile lookup, and message
// content download.
package line

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/line/line-bot-sdk-go/v8/linebot/messaging_api"
	"github.com/sirupsen/logrus"
)

// Client talks to the LINE Messaging API with a channel access token.
type Client struct {
	api  *messaging_api.MessagingApiAPI
	blob *messaging_api.MessagingApiBlobAPI
}

type options struct {
	apiEndpoint  string
	blobEndpoint string
	httpClient   *http.Client
}

// Option customizes a Client.
type Option func(*options)

// WithAPIEndpoint overrides the API origin; tests point it at a local server.
func WithAPIEndpoint(endpoint string) Option {
	return func(o *options) { o.apiEndpoint = endpoint }
}

// WithBlobEndpoint overrides the content-download origin.
func WithBlobEndpoint(endpoint string) Option {
	return func(o *options) { o.blobEndpoint = endpoint }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) { o.httpClient = hc }
}

// NewClient creates a Messaging API client.
func NewClient(accessToken string, opts ...Option) (*Client, error) {
	o := options{httpClient: &http.Client{Timeout: 30 * time.Second}}
	for _, opt := range opts {
		opt(&o)
	}

	apiOpts := []messaging_api.MessagingApiAPIOption{
		messaging_api.WithHTTPClient(o.httpClient),
	}
	if o.apiEndpoint != "" {
		apiOpts = append(apiOpts, messaging_api.WithEndpoint(o.apiEndpoint))
	}
	api, err := messaging_api.NewMessagingApiAPI(accessToken, apiOpts...)
	if err != nil {
		return nil, fmt.Errorf("messaging api client: %w", err)
	}

	blobOpts := []messaging_api.MessagingApiBlobAPIOption{
		messaging_api.WithBlobHTTPClient(o.httpClient),
	}
	if o.blobEndpoint != "" {
		blobOpts = append(blobOpts, messaging_api.WithBlobEndpoint(o.blobEndpoint))
	}
	blob, err := messaging_api.NewMessagingApiBlobAPI(accessToken, blobOpts...)
	if err != nil {
		return nil, fmt.Errorf("messaging blob client: %w", err)
	}

	return &Client{api: api, blob: blob}, nil
}

// Profile is the subset of a LINE user profile the bot uses.
type Profile struct {
	UserID        string `json:"userId"`
	DisplayName   string `json:"displayName"`
	PictureURL    string `json:"pictureUrl"`
	StatusMessage string `json:"statusMessage"`
}

// ReplyMessage answers an event using its one-shot reply token.
func (c *Client) ReplyMessage(ctx context.Context, replyToken string, messages ...messaging_api.MessageInterface) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.ReplyMessage(&messaging_api.ReplyMessageRequest{
		ReplyToken: replyToken,
		Messages:   messages,
	})
	if err != nil {
		logrus.WithError(err).Warn("line reply failed")
		return fmt.Errorf("reply message: %w", err)
	}
	return nil
}

// PushMessage sends messages to a user outside a reply window. Each call
// carries a fresh retry key so LINE can deduplicate resent requests.
func (c *Client) PushMessage(ctx context.Context, to string, messages ...messaging_api.MessageInterface) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := c.api.PushMessage(&messaging_api.PushMessageRequest{
		To:       to,
		Messages: messages,
	}, uuid.NewString())
	if err != nil {
		logrus.WithError(err).Warn("line push failed")
		return fmt.Errorf("push message: %w", err)
	}
	return nil
}

// GetProfile fetches a user's display profile.
func (c *Client) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.api.GetProfile(userID)
	if err != nil {
		return nil, fmt.Errorf("get profile: %w", err)
	}
	return &Profile{
		UserID:        resp.UserId,
		DisplayName:   resp.DisplayName,
		PictureURL:    resp.PictureUrl,
		StatusMessage: resp.StatusMessage,
	}, nil
}

// GetMessageContent downloads the binary payload of a media message.
func (c *Client) GetMessageContent(ctx context.Context, messageID string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := c.blob.GetMessageContent(messageID)
	if err != nil {
		return nil, fmt.Errorf("get message content: %w", err)
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
