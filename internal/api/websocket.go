package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all for local dashboards
	},
}

// subscriber is one websocket client. A subscriber either watches a single
// compose job (jobID set from the ?job= query parameter) or the firehose of
// every job. Events are queued on send and written by the client's own
// writer goroutine, so a stalled client never blocks a running solve.
type subscriber struct {
	conn  *websocket.Conn
	jobID string // empty = all jobs
	send  chan []byte
}

// StreamHub fans optimizer progress out to websocket subscribers, routed by
// compose job ID.
type StreamHub struct {
	mu   sync.Mutex
	subs map[*subscriber]bool
}

func NewStreamHub() *StreamHub {
	return &StreamHub{subs: make(map[*subscriber]bool)}
}

// Publish delivers one event for the given job to every subscriber watching
// it. The envelope carries the job ID so firehose clients can demultiplex.
// A subscriber whose queue is full is dropped; the optimizer emits an event
// per solver iteration and must never wait on a slow reader.
func (h *StreamHub) Publish(jobID, eventType string, payload interface{}) {
	data, err := json.Marshal(map[string]interface{}{
		"type":  eventType,
		"jobId": jobID,
		"event": payload,
	})
	if err != nil {
		log.Printf("Failed to marshal %s event for job %s: %v", eventType, jobID, err)
		return
	}

	h.mu.Lock()
	for sub := range h.subs {
		if sub.jobID != "" && sub.jobID != jobID {
			continue
		}
		select {
		case sub.send <- data:
		default:
			h.dropLocked(sub, "send queue full")
		}
	}
	h.mu.Unlock()
}

// dropLocked unregisters a subscriber and closes its queue. Caller holds mu.
func (h *StreamHub) dropLocked(sub *subscriber, reason string) {
	if !h.subs[sub] {
		return
	}
	delete(h.subs, sub)
	close(sub.send)
	log.Printf("WebSocket client dropped (%s). Total clients: %d", reason, len(h.subs))
}

// Subscribe upgrades the connection and registers the client. ?job=<id>
// narrows the stream to one compose job; without it the client sees every
// job's progress.
func (h *StreamHub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("Failed to upgrade websocket: %v", err)
		return
	}

	sub := &subscriber{
		conn:  conn,
		jobID: c.Query("job"),
		send:  make(chan []byte, 64),
	}

	h.mu.Lock()
	h.subs[sub] = true
	total := len(h.subs)
	h.mu.Unlock()

	if sub.jobID != "" {
		log.Printf("New WebSocket client watching job %s. Total clients: %d", sub.jobID, total)
	} else {
		log.Printf("New WebSocket client watching all jobs. Total clients: %d", total)
	}

	go sub.writePump()
	go h.readPump(sub)
}

// writePump drains the subscriber's queue onto the wire. A write deadline
// bounds how long one sluggish connection can hold its goroutine.
func (sub *subscriber) writePump() {
	defer sub.conn.Close()
	for data := range sub.send {
		_ = sub.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := sub.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Printf("Websocket write error: %v", err)
			return
		}
	}
}

// readPump discards inbound frames; the stream is push-only, but reading is
// how we notice the peer going away.
func (h *StreamHub) readPump(sub *subscriber) {
	defer func() {
		h.mu.Lock()
		h.dropLocked(sub, "disconnected")
		h.mu.Unlock()
		sub.conn.Close()
	}()
	for {
		if _, _, err := sub.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket error: %v", err)
			}
			return
		}
	}
}
