package cache

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/bus"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	client, err := NewRedisClient(context.Background(), RedisConfig{Addr: "localhost:6379", DB: 2})
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func collect(b *bus.Bus) (<-chan bus.Event, func()) {
	ch := make(chan bus.Event, 64)
	return ch, b.Subscribe(func(ev bus.Event) { ch <- ev })
}

func TestRefreshRelay_HandleRepublishesRemote(t *testing.T) {
	b := bus.New(quietLogger(), nil)
	r := NewRefreshRelay(nil, b, "", quietLogger())
	events, unsubscribe := collect(b)
	defer unsubscribe()

	holder := solana.NewWallet().PublicKey()
	payload, err := json.Marshal(relayMessage{Origin: "other", Source: constants.SourceSwap, Holder: holder.String()})
	require.NoError(t, err)
	r.handle(string(payload))

	select {
	case ev := <-events:
		assert.Equal(t, constants.SourceRelay, ev.Source)
		assert.Equal(t, holder, ev.Holder)
		assert.Equal(t, "other", ev.Origin)
	default:
		t.Fatal("remote message was not republished")
	}
}

func TestRefreshRelay_HandleDropsOwnAndMalformed(t *testing.T) {
	b := bus.New(quietLogger(), nil)
	r := NewRefreshRelay(nil, b, "", quietLogger())
	events, unsubscribe := collect(b)
	defer unsubscribe()

	own, err := json.Marshal(relayMessage{Origin: r.Origin(), Source: constants.SourceSwap})
	require.NoError(t, err)
	r.handle(string(own))
	r.handle("{not json")
	bad, err := json.Marshal(relayMessage{Origin: "other", Holder: "not-a-key"})
	require.NoError(t, err)
	r.handle(string(bad))

	assert.Len(t, events, 0)
}

func TestRefreshRelay_AcrossProcesses(t *testing.T) {
	client := setupTestRedis(t)
	channel := "amm:test:refresh:" + time.Now().Format("150405.000000")

	busA := bus.New(quietLogger(), nil)
	busB := bus.New(quietLogger(), nil)
	relayA := NewRefreshRelay(client, busA, channel, quietLogger())
	relayB := NewRefreshRelay(client, busB, channel, quietLogger())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = relayB.Run(ctx) }()
	defer relayA.Forward(ctx)()

	eventsB, unsubscribe := collect(busB)
	defer unsubscribe()

	holder := solana.NewWallet().PublicKey()
	// give B time to subscribe before A publishes
	require.Eventually(t, func() bool {
		busA.Publish(bus.Event{Source: constants.SourceSwap, Holder: holder})
		select {
		case ev := <-eventsB:
			return ev.Holder == holder && ev.Origin == relayA.Origin()
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}
