// Package speech transcribes voice messages via the Google Speech-to-Text
// REST API, trying several audio format configurations in order because
// the messaging platform does not declare the container format.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Transcriber converts recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) (string, error)
}

// ErrNoSpeech reports that no configuration produced a transcript; the bot
// turns it into a retry prompt rather than an apology.
var ErrNoSpeech = fmt.Errorf("no speech recognized")

// RecognitionConfig mirrors the recognize request config block.
type RecognitionConfig struct {
	Encoding                   string   `json:"encoding,omitempty"`
	SampleRateHertz            int      `json:"sampleRateHertz,omitempty"`
	AudioChannelCount          int      `json:"audioChannelCount,omitempty"`
	LanguageCode               string   `json:"languageCode"`
	AlternativeLanguageCodes   []string `json:"alternativeLanguageCodes,omitempty"`
	EnableAutomaticPunctuation bool     `json:"enableAutomaticPunctuation,omitempty"`
}

// fallbackConfigs is tried in order: explicit M4A first (the usual mobile
// upload), then server-side detection, then WEBM opus.
var fallbackConfigs = []RecognitionConfig{
	{
		Encoding:                   "M4A",
		SampleRateHertz:            16000,
		AudioChannelCount:          1,
		LanguageCode:               "zh-TW",
		EnableAutomaticPunctuation: true,
	},
	{
		LanguageCode:               "zh-TW",
		AlternativeLanguageCodes:   []string{"zh-CN", "en-US"},
		AudioChannelCount:          1,
		EnableAutomaticPunctuation: true,
	},
	{
		Encoding:                   "WEBM_OPUS",
		SampleRateHertz:            48000,
		AudioChannelCount:          1,
		LanguageCode:               "zh-TW",
		EnableAutomaticPunctuation: true,
	},
}

const defaultEndpoint = "https://speech.googleapis.com/v1/speech:recognize"

// GoogleTranscriber calls speech:recognize with an API key.
type GoogleTranscriber struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
}

// Option customizes a GoogleTranscriber.
type Option func(*GoogleTranscriber)

// WithEndpoint overrides the recognize URL; tests point it at a local server.
func WithEndpoint(url string) Option {
	return func(t *GoogleTranscriber) { t.endpoint = url }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(t *GoogleTranscriber) { t.httpClient = hc }
}

// NewGoogleTranscriber creates a REST transcriber.
func NewGoogleTranscriber(apiKey string, opts ...Option) *GoogleTranscriber {
	t := &GoogleTranscriber{
		endpoint:   defaultEndpoint,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transcribe tries each fallback configuration until one yields text.
// Per-configuration failures are logged and skipped; ErrNoSpeech is
// returned only when every configuration comes back empty.
func (t *GoogleTranscriber) Transcribe(ctx context.Context, audio []byte) (string, error) {
	content := base64.StdEncoding.EncodeToString(audio)

	for i, cfg := range fallbackConfigs {
		text, err := t.recognize(ctx, cfg, content)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			logrus.WithError(err).WithFields(logrus.Fields{
				"config":   i + 1,
				"encoding": cfg.Encoding,
			}).Warn("speech recognition attempt failed")
			continue
		}
		if text != "" {
			return text, nil
		}
	}
	return "", ErrNoSpeech
}

func (t *GoogleTranscriber) recognize(ctx context.Context, cfg RecognitionConfig, content string) (string, error) {
	payload, err := json.Marshal(map[string]any{
		"config": cfg,
		"audio":  map[string]string{"content": content},
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint+"?key="+t.apiKey, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("recognize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return "", fmt.Errorf("recognize: status %d: %s", resp.StatusCode, body)
	}

	var result struct {
		Results []struct {
			Alternatives []struct {
				Transcript string `json:"transcript"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("decode recognize response: %w", err)
	}

	var parts []string
	for _, r := range result.Results {
		if len(r.Alternatives) > 0 && r.Alternatives[0].Transcript != "" {
			parts = append(parts, r.Alternatives[0].Transcript)
		}
	}
	return strings.TrimSpace(strings.Join(parts, "\n")), nil
}
