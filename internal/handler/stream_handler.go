package handler

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"civic-automation/internal/middleware"
	"civic-automation/internal/realtime"
)

const heartbeatInterval = 25 * time.Second

// StreamHandler serves the caller's notification topic as server-sent events.
type StreamHandler struct {
	hub       *realtime.Hub
	heartbeat time.Duration
}

func NewStreamHandler(hub *realtime.Hub) *StreamHandler {
	return &StreamHandler{hub: hub, heartbeat: heartbeatInterval}
}

func (h *StreamHandler) Notifications(c *fiber.Ctx) error {
	userID, err := middleware.GetUserID(c)
	if err != nil {
		return err
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	topic := realtime.UserTopic(userID)
	sub := h.hub.Subscribe(topic)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		ticker := time.NewTicker(h.heartbeat)
		defer ticker.Stop()

		if err := writeEvent(w, "ready", []byte(fmt.Sprintf(`{"topic":%q}`, topic))); err != nil {
			return
		}

		for {
			select {
			case msg, ok := <-sub.C():
				if !ok {
					return
				}
				payload, err := json.Marshal(msg)
				if err != nil {
					continue
				}
				if err := writeEvent(w, msg.Type, payload); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	}))

	return nil
}

func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
