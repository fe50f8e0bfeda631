package delivery

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cortex-mentor/cortex/pkg/errors"
	"github.com/cortex-mentor/cortex/pkg/pipeline"
)

type stubSynth struct {
	audio []byte
	err   error
	calls int
}

func (s *stubSynth) Synthesize(context.Context, string) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

type recordingBroadcaster struct {
	payloads []interface{}
	err      error
}

func (b *recordingBroadcaster) Broadcast(_ context.Context, payload interface{}) error {
	if b.err != nil {
		return b.err
	}
	b.payloads = append(b.payloads, payload)
	return nil
}

func TestAudioDelivery(t *testing.T) {
	synth := &stubSynth{audio: []byte{0xFF, 0xFB}}
	broadcaster := &recordingBroadcaster{}
	proc := NewAudioDeliveryProcessor(synth, broadcaster)

	data := map[string]interface{}{"final_insight": "refactor the auth module"}
	result, err := proc.Process(context.Background(), data, pipeline.NewContext())
	require.NoError(t, err)
	assert.Equal(t, data, result)

	require.Len(t, broadcaster.payloads, 1)
	msg := broadcaster.payloads[0].(Message)
	assert.Equal(t, "insight", msg.Type)
	assert.Equal(t, "refactor the auth module", msg.Text)
	assert.Equal(t, base64.StdEncoding.EncodeToString([]byte{0xFF, 0xFB}), msg.Audio)
}

func TestNoFinalInsightSkipsSynthesis(t *testing.T) {
	synth := &stubSynth{audio: []byte{1}}
	broadcaster := &recordingBroadcaster{}
	proc := NewAudioDeliveryProcessor(synth, broadcaster)

	_, err := proc.Process(context.Background(), map[string]interface{}{}, pipeline.NewContext())
	require.NoError(t, err)
	assert.Zero(t, synth.calls)
	assert.Empty(t, broadcaster.payloads)
}

func TestSynthesisFailureIsNonFatal(t *testing.T) {
	synth := &stubSynth{err: errors.New(errors.ServiceUnavailable, "tts down")}
	broadcaster := &recordingBroadcaster{}
	proc := NewAudioDeliveryProcessor(synth, broadcaster)

	data := map[string]interface{}{"final_insight": "answer"}
	result, err := proc.Process(context.Background(), data, pipeline.NewContext())
	require.NoError(t, err)
	assert.Equal(t, data, result)
	assert.Empty(t, broadcaster.payloads)
}

func TestBroadcastFailureIsNonFatal(t *testing.T) {
	synth := &stubSynth{audio: []byte{1}}
	broadcaster := &recordingBroadcaster{err: errors.New(errors.ServiceUnavailable, "redis down")}
	proc := NewAudioDeliveryProcessor(synth, broadcaster)

	_, err := proc.Process(context.Background(),
		map[string]interface{}{"final_insight": "answer"}, pipeline.NewContext())
	require.NoError(t, err)
}
