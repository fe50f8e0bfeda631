// Package delivery turns a synthesized insight into speech and fans it out
// over the broadcast channel.
package delivery

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/logging"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
	"github.com/cortex-mentor/cortex/pkg/speech"
)

// Broadcaster publishes a delivery payload to connected clients.
type Broadcaster interface {
	Broadcast(ctx context.Context, payload interface{}) error
}

// Message is the payload published for each delivered insight.
type Message struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Audio string `json:"audio"`
}

// AudioDeliveryProcessor converts the final insight to MP3 and publishes
// {type, text, audio(base64)}. Delivery is best effort: synthesis or publish
// failures are logged and the pipeline result is returned unchanged, since
// the answer itself already exists.
type AudioDeliveryProcessor struct {
	synth       speech.Synthesizer
	broadcaster Broadcaster
}

func NewAudioDeliveryProcessor(synth speech.Synthesizer, broadcaster Broadcaster) *AudioDeliveryProcessor {
	return &AudioDeliveryProcessor{synth: synth, broadcaster: broadcaster}
}

func (p *AudioDeliveryProcessor) Name() string { return "AudioDelivery" }

func (p *AudioDeliveryProcessor) Process(ctx context.Context, data interface{}, _ *pipeline.Context) (interface{}, error) {
	d, ok := data.(map[string]interface{})
	if !ok {
		return nil, errors.New(errors.InvalidInput, fmt.Sprintf("expected a mapping, got %T", data))
	}

	logger := logging.GetLogger()
	finalInsight, _ := d["final_insight"].(string)
	if finalInsight == "" {
		logger.Warn(ctx, "No final insight found to convert to audio")
		return d, nil
	}

	logger.Info(ctx, "Converting final insight to audio")
	audio, err := p.synth.Synthesize(ctx, finalInsight)
	if err != nil {
		logger.Error(ctx, "Audio synthesis failed, skipping delivery: %v", err)
		return d, nil
	}
	if len(audio) == 0 {
		logger.Warn(ctx, "Speech synthesis returned no audio data")
		return d, nil
	}

	message := Message{
		Type:  "insight",
		Text:  finalInsight,
		Audio: base64.StdEncoding.EncodeToString(audio),
	}
	if err := p.broadcaster.Broadcast(ctx, message); err != nil {
		logger.Error(ctx, "Failed to publish delivery payload: %v", err)
		return d, nil
	}

	logger.Info(ctx, "Insight delivered to broadcast channel")
	return d, nil
}
