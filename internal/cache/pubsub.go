package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/solana-amm-client/internal/bus"
	"github.com/aman-zulfiqar/solana-amm-client/internal/constants"
	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const relayPublishTimeout = 2 * time.Second

type relayMessage struct {
	Origin string    `json:"origin"`
	Source string    `json:"source"`
	Holder string    `json:"holder,omitempty"`
	At     time.Time `json:"at"`
}

// RefreshRelay bridges the local refresh bus and a Redis channel so that
// processes sharing a Redis refresh each other's holders.
type RefreshRelay struct {
	client  *redis.Client
	bus     *bus.Bus
	channel string
	origin  string
	logger  *logrus.Logger
}

func NewRefreshRelay(client *redis.Client, b *bus.Bus, channel string, logger *logrus.Logger) *RefreshRelay {
	if channel == "" {
		channel = constants.PubSubChannelRefresh
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &RefreshRelay{
		client:  client,
		bus:     b,
		channel: channel,
		origin:  uuid.NewString(),
		logger:  logger,
	}
}

// Origin identifies this process on the channel.
func (r *RefreshRelay) Origin() string { return r.origin }

// Forward publishes locally raised bus events to Redis until the returned
// function is called. Events that arrived through a relay are not forwarded.
func (r *RefreshRelay) Forward(ctx context.Context) func() {
	return r.bus.Subscribe(func(ev bus.Event) {
		if ev.Origin != "" {
			return
		}
		msg := relayMessage{Origin: r.origin, Source: ev.Source, At: ev.At}
		if !ev.Holder.IsZero() {
			msg.Holder = ev.Holder.String()
		}
		go r.publish(ctx, msg)
	})
}

func (r *RefreshRelay) publish(ctx context.Context, msg relayMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		r.logger.WithError(err).Error("failed to marshal refresh message")
		return
	}
	ctx, cancel := context.WithTimeout(ctx, relayPublishTimeout)
	defer cancel()
	if err := r.client.Publish(ctx, r.channel, data).Err(); err != nil {
		r.logger.WithError(err).WithField("channel", r.channel).Warn("failed to relay refresh event")
	}
}

// Run subscribes to the channel and republishes remote events on the bus until ctx is done.
func (r *RefreshRelay) Run(ctx context.Context) error {
	sub := r.client.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.logger.WithField("channel", r.channel).Info("refresh relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("refresh relay channel closed")
			}
			r.handle(msg.Payload)
		}
	}
}

func (r *RefreshRelay) handle(payload string) {
	var msg relayMessage
	if err := json.Unmarshal([]byte(payload), &msg); err != nil {
		r.logger.WithError(err).Warn("dropping malformed refresh message")
		return
	}
	if msg.Origin == r.origin {
		return
	}

	ev := bus.Event{Source: constants.SourceRelay, Origin: msg.Origin}
	if msg.Holder != "" {
		holder, err := solana.PublicKeyFromBase58(msg.Holder)
		if err != nil {
			r.logger.WithError(err).WithField("holder", msg.Holder).Warn("dropping refresh message with bad holder")
			return
		}
		ev.Holder = holder
	}
	r.bus.Publish(ev)
}
