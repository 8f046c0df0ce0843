package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/voicereply/voice-service/internal/audiocache"
	"github.com/voicereply/voice-service/internal/quota"
	"github.com/voicereply/voice-service/internal/styles"
)

type fakeCharger struct {
	result  quota.Result
	err     error
	charges []int
}

func (c *fakeCharger) Charge(_ context.Context, _ string, characters int, _, _ string) (quota.Result, error) {
	c.charges = append(c.charges, characters)
	return c.result, c.err
}

type fakeSynth struct {
	audio []byte
	err   error
	calls int
}

func (s *fakeSynth) Synthesize(_ context.Context, _ string, _ *styles.Style) ([]byte, error) {
	s.calls++
	return s.audio, s.err
}

func newTestPipeline(t *testing.T, charger *fakeCharger, synth *fakeSynth) *Pipeline {
	t.Helper()
	backend, err := audiocache.NewLocalBackend(t.TempDir())
	require.NoError(t, err)
	return NewPipeline(charger, audiocache.New(backend), synth)
}

func instructionReply(text, quoted string) ChatMessage {
	return ChatMessage{ChatID: "chat-1", FromSelf: true, Text: text, QuotedText: quoted}
}

func TestPipelineSynthesizesAndSendsAudio(t *testing.T) {
	charger := &fakeCharger{result: quota.Result{Allowed: true, Remaining: 90}}
	synth := &fakeSynth{audio: []byte("mp3")}
	pipeline := newTestPipeline(t, charger, synth)
	handle := newFakeHandle()

	err := pipeline.Handle(context.Background(), "tenant-1", handle, instructionReply("voice: pirate", "hello there"))
	require.NoError(t, err)

	require.Len(t, handle.sent, 1)
	assert.Equal(t, []byte("mp3"), handle.sent[0].Audio)
	assert.Empty(t, handle.sent[0].Text)
	assert.Equal(t, []int{11}, charger.charges)
	assert.Equal(t, 1, synth.calls)
}

func TestPipelineServesFromCache(t *testing.T) {
	charger := &fakeCharger{result: quota.Result{Allowed: true, Remaining: 90}}
	synth := &fakeSynth{audio: []byte("mp3")}
	pipeline := newTestPipeline(t, charger, synth)
	handle := newFakeHandle()

	msg := instructionReply("voice: pirate", "hello there")
	require.NoError(t, pipeline.Handle(context.Background(), "tenant-1", handle, msg))
	require.NoError(t, pipeline.Handle(context.Background(), "tenant-1", handle, msg))

	assert.Equal(t, 1, synth.calls, "second request must be a cache hit")
	require.Len(t, handle.sent, 2)
	assert.Equal(t, handle.sent[0].Audio, handle.sent[1].Audio)
	// Cache hits are still charged.
	assert.Len(t, charger.charges, 2)
}

func TestPipelineWithoutCacheSynthesizesEveryTime(t *testing.T) {
	charger := &fakeCharger{result: quota.Result{Allowed: true, Remaining: 90}}
	synth := &fakeSynth{audio: []byte("mp3")}
	pipeline := NewPipeline(charger, nil, synth)
	handle := newFakeHandle()

	msg := instructionReply("voice: pirate", "hello there")
	require.NoError(t, pipeline.Handle(context.Background(), "tenant-1", handle, msg))
	require.NoError(t, pipeline.Handle(context.Background(), "tenant-1", handle, msg))

	require.Len(t, handle.sent, 2)
	assert.Equal(t, []byte("mp3"), handle.sent[0].Audio)
	assert.Equal(t, []byte("mp3"), handle.sent[1].Audio)
	assert.Equal(t, 2, synth.calls, "no cache means every request synthesizes")
}

func TestPipelineQuotaRejection(t *testing.T) {
	charger := &fakeCharger{result: quota.Result{Allowed: false, Remaining: 5}}
	synth := &fakeSynth{audio: []byte("mp3")}
	pipeline := newTestPipeline(t, charger, synth)
	handle := newFakeHandle()

	err := pipeline.Handle(context.Background(), "tenant-1", handle, instructionReply("voice: pirate", "too long"))
	require.NoError(t, err)

	require.Len(t, handle.sent, 1)
	assert.Contains(t, handle.sent[0].Text, "5 characters left")
	assert.Nil(t, handle.sent[0].Audio)
	assert.Equal(t, 0, synth.calls, "rejected request never reaches synthesis")
}

func TestPipelineSynthesisFailureSendsNotice(t *testing.T) {
	charger := &fakeCharger{result: quota.Result{Allowed: true, Remaining: 90}}
	synth := &fakeSynth{err: errors.New("upstream 500")}
	pipeline := newTestPipeline(t, charger, synth)
	handle := newFakeHandle()

	err := pipeline.Handle(context.Background(), "tenant-1", handle, instructionReply("voice: pirate", "hello"))
	require.NoError(t, err, "synthesis failure is contained, not surfaced")

	require.Len(t, handle.sent, 1)
	assert.Contains(t, handle.sent[0].Text, "couldn't generate")
}

func TestPipelineHelpCommand(t *testing.T) {
	pipeline := newTestPipeline(t, &fakeCharger{}, &fakeSynth{})
	handle := newFakeHandle()

	for _, text := range []string{"voice help", "/voice help", "VOICE HELP"} {
		err := pipeline.Handle(context.Background(), "tenant-1", handle, ChatMessage{ChatID: "c", FromSelf: true, Text: text})
		require.NoError(t, err)
	}

	require.Len(t, handle.sent, 3)
	assert.Contains(t, handle.sent[0].Text, "pirate")
}

func TestPipelineIgnoresNonInstructions(t *testing.T) {
	charger := &fakeCharger{result: quota.Result{Allowed: true}}
	synth := &fakeSynth{audio: []byte("mp3")}
	pipeline := newTestPipeline(t, charger, synth)
	handle := newFakeHandle()

	cases := []ChatMessage{
		// Plain reply, not an instruction.
		instructionReply("can you help me?", "hello"),
		// Instruction but no quoted message.
		{ChatID: "c", FromSelf: true, Text: "voice: pirate"},
		// Empty message.
		{ChatID: "c", FromSelf: true, Text: "   "},
	}
	for _, msg := range cases {
		require.NoError(t, pipeline.Handle(context.Background(), "tenant-1", handle, msg))
	}

	assert.Empty(t, handle.sent)
	assert.Empty(t, charger.charges)
	assert.Equal(t, 0, synth.calls)
}
