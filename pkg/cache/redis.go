package cache

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v7"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Invalidator drops whatever is cached for a recipient.
type Invalidator interface {
	Invalidate(recipientID string)
}

// Config holds the redis connection of the invalidation bus.
type Config struct {
	Addr     string
	Password string
	Channel  string
}

type message struct {
	Origin      string `json:"origin"`
	RecipientID string `json:"recipientId"`
}

// Bus broadcasts cache invalidations to every instance of the service over
// a redis pub/sub channel.
type Bus struct {
	Client   *redis.Client
	channel  string
	instance string
	log      *logrus.Entry
}

// New creates a bus. It does not connect until the first command.
func New(cfg Config, log *logrus.Entry) *Bus {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	instance := uuid.NewString()
	return &Bus{
		Client: redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
		}),
		channel:  cfg.Channel,
		instance: instance,
		log:      log.WithFields(logrus.Fields{"component": "invalidation-bus", "instance": instance}),
	}
}

// Ping checks the redis connection.
func (b *Bus) Ping() error {
	return errors.Wrap(b.Client.Ping().Err(), "ping redis")
}

// Close the redis connection
func (b *Bus) Close() error {
	return b.Client.Close()
}

// Invalidate publishes an invalidation of recipientID. Publishing is best
// effort; failures are logged.
func (b *Bus) Invalidate(recipientID string) {
	payload, err := b.encode(recipientID)
	if err != nil {
		b.log.WithError(err).Error("failed to encode invalidation")
		return
	}
	if err := b.Client.Publish(b.channel, payload).Err(); err != nil {
		b.log.WithError(err).WithField("recipient", recipientID).Warn("failed to publish invalidation")
	}
}

// Listen applies invalidations published by other instances to target until
// ctx is done.
func (b *Bus) Listen(ctx context.Context, target Invalidator) error {
	sub := b.Client.Subscribe(b.channel)
	defer sub.Close() //nolint:errcheck
	if _, err := sub.Receive(); err != nil {
		return errors.Wrapf(err, "subscribe to %s", b.channel)
	}
	b.log.WithField("channel", b.channel).Info("listening for invalidations")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return errors.New("invalidation subscription closed")
			}
			b.handle(msg.Payload, target)
		}
	}
}

func (b *Bus) encode(recipientID string) (string, error) {
	data, err := json.Marshal(message{Origin: b.instance, RecipientID: recipientID})
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// handle reports whether payload invalidated target.
func (b *Bus) handle(payload string, target Invalidator) bool {
	var m message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		b.log.WithError(err).Warn("ignoring malformed invalidation")
		return false
	}
	if m.Origin == b.instance || m.RecipientID == "" {
		return false
	}
	target.Invalidate(m.RecipientID)
	return true
}
