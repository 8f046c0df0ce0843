package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/voicereply/voice-service/internal/styles"
	"github.com/voicereply/voice-service/pkg/logger"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultBaseURL = "https://api.elevenlabs.io"

// Client handles communication with the ElevenLabs text-to-speech API.
type Client struct {
	BaseURL    string
	APIKey     string
	VoiceID    string
	ModelID    string
	HTTPClient *http.Client

	// limiter smooths request bursts across tenants sharing one API key.
	limiter *rate.Limiter
}

// SynthesisError carries the upstream status for a failed request.
type SynthesisError struct {
	StatusCode int
	Body       string
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis request failed with status %d: %s", e.StatusCode, e.Body)
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
	Style           float64 `json:"style,omitempty"`
	UseSpeakerBoost bool    `json:"use_speaker_boost"`
}

type synthesisRequest struct {
	Text          string        `json:"text"`
	ModelID       string        `json:"model_id"`
	VoiceSettings voiceSettings `json:"voice_settings"`
}

// NewClient creates a synthesis client. baseURL may be empty to use the
// public API endpoint.
func NewClient(baseURL, apiKey, voiceID, modelID string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	if modelID == "" {
		modelID = "eleven_multilingual_v2"
	}
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		VoiceID: voiceID,
		ModelID: modelID,
		HTTPClient: &http.Client{
			Timeout: 60 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(2), 5),
	}
}

// Synthesize renders text as MP3 audio in the given style.
func (c *Client) Synthesize(ctx context.Context, text string, style *styles.Style) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	payload := synthesisRequest{
		Text:    prepareTextForStyle(text, style),
		ModelID: c.ModelID,
		VoiceSettings: voiceSettings{
			Stability:       style.Stability,
			SimilarityBoost: style.SimilarityBoost,
			UseSpeakerBoost: true,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	url := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=mp3_44100_128", c.BaseURL, c.VoiceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("xi-api-key", c.APIKey)
	req.Header.Set("Accept", "audio/mpeg")

	start := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SynthesisError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesis response: %w", err)
	}

	logger.Base().Debug("Synthesized audio",
		zap.String("style", style.Key),
		zap.Int("characters", len(text)),
		zap.Int("audio_bytes", len(audio)),
		zap.Duration("duration", time.Since(start)))

	return audio, nil
}

// CheckAPIKey verifies the configured key against the user endpoint.
func (c *Client) CheckAPIKey(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/v1/user", nil)
	if err != nil {
		return fmt.Errorf("failed to create key check request: %w", err)
	}
	req.Header.Set("xi-api-key", c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("key check request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &SynthesisError{StatusCode: resp.StatusCode, Body: string(errBody)}
	}
	return nil
}

// prepareTextForStyle prefixes stage directions the model reads as delivery
// cues. The directive text never reaches the quota ledger.
func prepareTextForStyle(text string, style *styles.Style) string {
	if style == nil || style.Directive == "" {
		return text
	}
	return style.Directive + " " + text
}
