package bus

import (
	"context"
	"sync"
)

// Memory is an in-process Bus used by tests. Delivery is synchronous: Publish
// invokes every matching handler before returning, which keeps tests
// deterministic. Retained messages are replayed on subscribe, matching broker
// behavior.
type Memory struct {
	mu       sync.Mutex
	handlers map[string][]Handler
	retained map[string]string
}

var _ Bus = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		handlers: make(map[string][]Handler),
		retained: make(map[string]string),
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Start(context.Context) error { return nil }

func (m *Memory) Stop() error { return nil }

func (m *Memory) Publish(topic, payload string, retained bool) error {
	m.mu.Lock()
	if retained {
		m.retained[topic] = payload
	}
	hs := append([]Handler(nil), m.handlers[topic]...)
	m.mu.Unlock()
	for _, h := range hs {
		h(topic, []byte(payload))
	}
	return nil
}

func (m *Memory) Subscribe(topic string, h Handler) error {
	m.mu.Lock()
	m.handlers[topic] = append(m.handlers[topic], h)
	payload, ok := m.retained[topic]
	m.mu.Unlock()
	if ok {
		h(topic, []byte(payload))
	}
	return nil
}

// Retained returns the retained payload for topic, if any.
func (m *Memory) Retained(topic string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.retained[topic]
	return payload, ok
}
