package bus

import "context"

// Handler receives messages delivered on a subscribed topic. Handlers run on
// the delivery goroutine and must return quickly.
type Handler func(topic string, payload []byte)

// Bus is a pub/sub transport with MQTT semantics: at-least-once delivery,
// per-topic ordering only, and retained messages replayed to new subscribers.
type Bus interface {
	Name() string
	Start(ctx context.Context) error
	Stop() error
	Publish(topic, payload string, retained bool) error
	Subscribe(topic string, h Handler) error
}
