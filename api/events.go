package api

import (
	"io"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/clickweave/clickweave/pkg/logger"
	"github.com/clickweave/clickweave/services/events"
)

// keepAlive is how often an idle event stream sends a ping.
const keepAlive = 15 * time.Second

// StreamEvents relays hub events as server-sent events named by kind.
func (h *Handler) StreamEvents(c *gin.Context) {
	ctx := c.Request.Context()
	ch, cancel := h.coord.Hub().Subscribe(128)
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")
	logger.Info(ctx, "Event stream opened (%d subscribers)", h.coord.Hub().Subscribers())

	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-ch:
			if !ok {
				return false
			}
			c.SSEvent(string(ev.Kind()), ev)
			return true
		case <-ticker.C:
			c.SSEvent("ping", gin.H{"at": time.Now()})
			return true
		}
	})
	logger.Info(ctx, "Event stream closed")
}

// eventKinds lists every kind a client may see on the stream.
var eventKinds = []events.Kind{
	events.KindStarted,
	events.KindStopped,
	events.KindPaused,
	events.KindResumed,
	events.KindClick,
	events.KindStepExecuted,
	events.KindPixelMatched,
	events.KindProfileTriggered,
	events.KindScheduleError,
}

// EventKinds lists the event names sent on the stream
func (h *Handler) EventKinds(c *gin.Context) {
	c.JSON(200, gin.H{"kinds": eventKinds})
}
