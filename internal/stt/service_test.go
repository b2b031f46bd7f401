package stt

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/protocol"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"
)

func TestUtteranceDue(t *testing.T) {
	now := time.Now()
	u := &utterance{}
	require.True(t, u.due(now, time.Second), "first partial runs immediately")

	u.snapshot()
	require.False(t, u.due(now, time.Second), "busy utterance")

	u.running = false
	u.lastPass = now
	require.False(t, u.due(now.Add(500*time.Millisecond), time.Second))
	require.True(t, u.due(now.Add(time.Second), time.Second))
	require.False(t, u.due(now.Add(time.Hour), 0), "partials disabled after the first")
}

func TestServiceExpiresIdleSessions(t *testing.T) {
	client := startBus(t)
	svc := NewService(context.Background(), config.STTConfig{Enabled: true}, client, NewMockEngine("x"))

	now := time.Now()
	svc.utterances["stale"] = &utterance{lastFrame: now.Add(-time.Minute)}
	svc.utterances["busy"] = &utterance{lastFrame: now.Add(-time.Minute), running: true}
	svc.utterances["fresh"] = &utterance{lastFrame: now}

	expired := svc.expire(now, 30*time.Second)
	require.Equal(t, []string{"stale"}, expired)
	require.Equal(t, 2, svc.ActiveSessions())
}

func TestServiceEndsAbandonedSession(t *testing.T) {
	client := startBus(t)
	svc := NewService(context.Background(), config.STTConfig{Enabled: true, IdleSessionMS: 100}, client, NewMockEngine("x"))
	require.NoError(t, svc.Start())
	t.Cleanup(svc.Close)

	ends := make(chan *nats.Msg, 1)
	sub, err := client.Conn().ChanSubscribe(protocol.SubjectSessionEnd, ends)
	require.NoError(t, err)
	t.Cleanup(func() { _ = sub.Unsubscribe() })
	require.NoError(t, client.Conn().Flush())

	require.NoError(t, client.PublishJSON(protocol.SubjectAudioFramePrefix+".gone", protocol.AudioFrame{
		SessionID:  "gone",
		SampleRate: 16000,
		Channels:   1,
		PCM:        make([]byte, 640),
	}))

	select {
	case msg := <-ends:
		var end protocol.SessionEnd
		require.NoError(t, json.Unmarshal(msg.Data, &end))
		require.Equal(t, "gone", end.SessionID)
		require.Equal(t, EndTimeout, end.Reason)
	case <-time.After(3 * time.Second):
		t.Fatal("abandoned session was never ended")
	}
	require.Eventually(t, func() bool { return svc.ActiveSessions() == 0 }, time.Second, 10*time.Millisecond)
}
