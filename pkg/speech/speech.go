// Package speech turns synthesized insights into audio for delivery.
package speech

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cortex-mentor/cortex/pkg/errors"
)

// Synthesizer renders text to MP3 audio bytes.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// RESTSynthesizer calls a Google-style text-to-speech endpoint: the request
// carries text, voice and audio encoding; the response carries base64 MP3.
type RESTSynthesizer struct {
	endpoint   string
	apiKey     string
	voice      string
	httpClient *http.Client
}

func NewRESTSynthesizer(endpoint, apiKey, voice string) *RESTSynthesizer {
	return &RESTSynthesizer{
		endpoint: endpoint,
		apiKey:   apiKey,
		voice:    voice,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

type ttsRequest struct {
	Input struct {
		Text string `json:"text"`
	} `json:"input"`
	Voice struct {
		LanguageCode string `json:"languageCode"`
		Name         string `json:"name"`
	} `json:"voice"`
	AudioConfig struct {
		AudioEncoding string `json:"audioEncoding"`
	} `json:"audioConfig"`
}

type ttsResponse struct {
	AudioContent string `json:"audioContent"`
}

// Synthesize renders text and returns decoded MP3 bytes.
func (s *RESTSynthesizer) Synthesize(ctx context.Context, text string) ([]byte, error) {
	var payload ttsRequest
	payload.Input.Text = text
	payload.Voice.LanguageCode = "en-US"
	payload.Voice.Name = s.voice
	payload.AudioConfig.AudioEncoding = "MP3"

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to encode speech request")
	}

	url := s.endpoint
	if s.apiKey != "" {
		url += "?key=" + s.apiKey
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidInput, "failed to build speech request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "speech service unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ServiceUnavailable, "failed to read speech response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New(errors.ServiceUnavailable,
			fmt.Sprintf("speech service returned status %d", resp.StatusCode))
	}

	var parsed ttsResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "failed to decode speech response")
	}
	if parsed.AudioContent == "" {
		return nil, errors.New(errors.InvalidResponse, "speech response carried no audio")
	}

	audio, err := base64.StdEncoding.DecodeString(parsed.AudioContent)
	if err != nil {
		return nil, errors.Wrap(err, errors.InvalidResponse, "speech response audio is not valid base64")
	}
	return audio, nil
}
