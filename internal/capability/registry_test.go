package capability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/loqalabs/loqa-interview/internal/bus"
	"github.com/loqalabs/loqa-interview/internal/config"
	"github.com/loqalabs/loqa-interview/internal/natsserver"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func startBus(t *testing.T) (*bus.Client, config.BusConfig) {
	t.Helper()
	log := discardLogger()
	srv, err := natsserver.Start(config.BusConfig{Embedded: true, Port: -1}, log)
	require.NoError(t, err)
	t.Cleanup(srv.Shutdown)

	cfg := config.BusConfig{
		Servers:           []string{srv.ClientURL()},
		ConnectTimeout:    2000,
		HeartbeatInterval: 50,
		HeartbeatTimeout:  200,
	}
	client, err := bus.Connect(context.Background(), "capability-test", cfg, log)
	require.NoError(t, err)
	t.Cleanup(client.Close)
	return client, cfg
}

func backendOptions() Options {
	return Options{
		Role:         "speech-backend",
		Capabilities: []Capability{{Name: Transcription, Attributes: map[string]string{"engine": "mock"}}},
	}
}

func TestWatcherFindsBackendStartedEarlier(t *testing.T) {
	client, cfg := startBus(t)

	backend, err := NewRegistry(context.Background(), backendOptions(), cfg, client, discardLogger())
	require.NoError(t, err)
	defer backend.Close()

	watcher, err := NewRegistry(context.Background(), Options{Role: "practice"}, cfg, client, discardLogger())
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	node, err := watcher.WaitFor(ctx, Transcription)
	require.NoError(t, err)
	require.Equal(t, backend.NodeID(), node.ID)
	require.Equal(t, "speech-backend", node.Role)
	require.Equal(t, "mock", node.Capabilities[0].Attributes["engine"])
}

func TestWaitForTimesOutWithoutBackend(t *testing.T) {
	client, cfg := startBus(t)
	watcher, err := NewRegistry(context.Background(), Options{Role: "practice"}, cfg, client, discardLogger())
	require.NoError(t, err)
	defer watcher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	_, err = watcher.WaitFor(ctx, Transcription)
	require.True(t, errors.Is(err, ErrNoProvider))
}

func TestBackendWithdrawsOnClose(t *testing.T) {
	client, cfg := startBus(t)
	watcher, err := NewRegistry(context.Background(), Options{Role: "practice"}, cfg, client, discardLogger())
	require.NoError(t, err)
	defer watcher.Close()

	backend, err := NewRegistry(context.Background(), backendOptions(), cfg, client, discardLogger())
	require.NoError(t, err)

	hasBackend := func() bool {
		return len(watcher.Query(func(n NodeInfo) bool { return n.Has(Transcription) })) > 0
	}
	require.Eventually(t, hasBackend, 2*time.Second, 10*time.Millisecond)

	backend.Close()
	require.Eventually(t, func() bool { return !hasBackend() }, 2*time.Second, 10*time.Millisecond)
}

func TestMissedHeartbeatsMarkUnhealthy(t *testing.T) {
	client, cfg := startBus(t)
	watcher, err := NewRegistry(context.Background(), Options{Role: "practice"}, cfg, client, discardLogger())
	require.NoError(t, err)
	defer watcher.Close()

	seen := time.Now()
	watcher.updateNode("stale", "speech-backend", backendOptions().Capabilities, seen)
	watcher.evaluateHealth(seen.Add(100 * time.Millisecond))
	require.True(t, watcher.Query(nil)[0].Healthy)

	watcher.evaluateHealth(seen.Add(time.Second))
	require.False(t, watcher.Query(nil)[0].Healthy)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = watcher.WaitFor(ctx, Transcription)
	require.Error(t, err)
}
