package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	MessageNotification = "notification"

	userTopicPattern = "user/*/notifications"
)

// Message is the envelope delivered on a user topic.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func UserTopic(userID uuid.UUID) string {
	return fmt.Sprintf("user/%s/notifications", userID)
}

// Hub multiplexes topic messages to the sessions connected to this process.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[*Subscription]struct{}
	buffer int
	logger *zap.Logger
}

func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subs:   make(map[string]map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

type Subscription struct {
	topic string
	ch    chan Message
	hub   *Hub
	once  sync.Once
}

func (s *Subscription) C() <-chan Message {
	return s.ch
}

func (s *Subscription) Close() {
	s.once.Do(func() {
		s.hub.remove(s)
	})
}

func (h *Hub) Subscribe(topic string) *Subscription {
	sub := &Subscription{topic: topic, ch: make(chan Message, h.buffer), hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[*Subscription]struct{})
	}
	h.subs[topic][sub] = struct{}{}
	return sub
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if set, ok := h.subs[sub.topic]; ok {
		delete(set, sub)
		if len(set) == 0 {
			delete(h.subs, sub.topic)
		}
	}
	close(sub.ch)
}

// Dispatch hands msg to every subscriber of topic without blocking. A
// subscriber whose buffer is full misses the message and recovers by polling.
func (h *Hub) Dispatch(topic string, msg Message) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	delivered := 0
	for sub := range h.subs[topic] {
		select {
		case sub.ch <- msg:
			delivered++
		default:
			h.logger.Warn("realtime.subscriber_lagging", zap.String("topic", topic))
		}
	}
	return delivered
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
