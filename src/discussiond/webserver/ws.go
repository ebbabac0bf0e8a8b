package webserver

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/orbitlearn/discussions/src/shared/channel"
	"github.com/orbitlearn/discussions/src/shared/discussion"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// CORS already gates browser access; the upgrade itself accepts any
	// origin that made it through.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway bridges browser viewers onto the per-discussion topics: topic
// events flow down the socket, typing signals flow up.
type Gateway struct {
	bus *channel.Bus
}

func NewGateway(bus *channel.Bus) Gateway {
	return Gateway{bus: bus}
}

func (g Gateway) Stream(c *gin.Context) {
	discussionID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || discussionID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"err": "invalid discussion id"})
		return
	}
	userID, username := currentUser(c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		return
	}
	defer conn.Close()

	sub, err := g.bus.Join(c.Request.Context(), discussionID)
	if err != nil {
		log.Printf("ws: join discussion %d: %v", discussionID, err)
		return
	}
	defer sub.Leave()

	connID := uuid.NewString()
	log.Printf("ws %s: user %d joined discussion %d", connID, userID, discussionID)

	// Downstream: topic -> socket. Ends when Leave closes the events
	// channel.
	go func() {
		for ev := range sub.Events() {
			raw, err := discussion.EncodeEvent(ev)
			if err != nil {
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, raw); err != nil {
				return
			}
		}
	}()

	// Upstream: socket -> topic. Only typing signals are accepted here;
	// everything else must go through the REST writes so it hits the
	// authoritative store first.
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			break
		}
		ev, err := discussion.DecodeEvent(raw)
		if err != nil {
			log.Printf("ws %s: drop inbound event: %v", connID, err)
			continue
		}
		switch ev.(type) {
		case discussion.TypingStartEvent:
			// Identity comes from the token, never from the payload.
			_ = sub.Emit(c.Request.Context(), discussion.TypingStartEvent{UserID: userID, Username: username})
		case discussion.TypingStopEvent:
			_ = sub.Emit(c.Request.Context(), discussion.TypingStopEvent{UserID: userID})
		default:
			log.Printf("ws %s: drop non-typing event %s", connID, ev.EventName())
		}
	}

	// Peer gone without typing_stop: clear their indicator for everyone.
	// The request context is likely dead at this point, so use a fresh one.
	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	_ = g.bus.Emit(stopCtx, discussionID, discussion.TypingStopEvent{UserID: userID})
	cancel()
	log.Printf("ws %s: user %d left discussion %d", connID, userID, discussionID)
}
