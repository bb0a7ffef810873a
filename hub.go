package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
)

const (
	replayBufferSize  = 50
	clientBufferSize  = 16
	keepaliveInterval = 10 * time.Second
)

// connectionStatusMessage tells every client how many displays are attached
type connectionStatusMessage struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// eventRecord stores a single SSE event with ID for replay
type eventRecord struct {
	id   string
	data string
}

// eventBuffer is a ring of recent events so reconnecting clients can catch up
type eventBuffer struct {
	mu      sync.RWMutex
	events  []eventRecord
	counter uint64
	maxSize int
}

func newEventBuffer(maxSize int) *eventBuffer {
	return &eventBuffer{
		events:  make([]eventRecord, 0, maxSize),
		maxSize: maxSize,
	}
}

// add assigns an event ID, stores the event, and returns the ID
func (eb *eventBuffer) add(data string) string {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.counter++
	id := strconv.FormatUint(eb.counter, 10)

	if len(eb.events) >= eb.maxSize {
		eb.events = eb.events[1:]
	}
	eb.events = append(eb.events, eventRecord{id: id, data: data})
	return id
}

// getAfter returns all events after lastID, oldest first
func (eb *eventBuffer) getAfter(lastID string) []eventRecord {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	var result []eventRecord
	foundLast := false
	for _, evt := range eb.events {
		if foundLast {
			result = append(result, evt)
		}
		if evt.id == lastID {
			foundLast = true
		}
	}
	return result
}

// hub fans controller events out to the connected displays
type hub struct {
	mu      sync.RWMutex
	clients map[string]chan string
	buffer  *eventBuffer
}

func newHub() *hub {
	return &hub{
		clients: make(map[string]chan string),
		buffer:  newEventBuffer(replayBufferSize),
	}
}

func (h *hub) publish(evt viewEvent) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("Error marshaling %s event: %v", evt.Type, err)
		return
	}
	h.broadcast(string(data))
}

func (h *hub) broadcast(message string) {
	id := h.buffer.add(message)
	formatted := fmt.Sprintf("id: %s\ndata: %s", id, message)

	h.mu.RLock()
	defer h.mu.RUnlock()
	for clientID, ch := range h.clients {
		select {
		case ch <- formatted:
		default:
			log.Debugf("SSE client %s is slow, dropping event %s", clientID, id)
		}
	}
}

func (h *hub) register() (string, chan string, int) {
	id := uuid.NewString()
	ch := make(chan string, clientBufferSize)

	h.mu.Lock()
	h.clients[id] = ch
	count := len(h.clients)
	h.mu.Unlock()
	return id, ch, count
}

func (h *hub) unregister(id string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(ch)
	}
	return len(h.clients)
}

func (h *hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *hub) broadcastConnectionStatus(count int) {
	data, err := json.Marshal(connectionStatusMessage{Type: "connection_status", Count: count})
	if err != nil {
		log.Printf("Error marshaling connection status: %v", err)
		return
	}
	h.broadcast(string(data))
}

func (h *hub) serveSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		log.Printf("SSE error: ResponseWriter doesn't support flushing")
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	clientID, ch, count := h.register()
	log.WithField("client", clientID).Debug("SSE client connected")
	h.broadcastConnectionStatus(count)

	defer func() {
		remaining := h.unregister(clientID)
		log.WithField("client", clientID).Debug("SSE client disconnected")
		h.broadcastConnectionStatus(remaining)
	}()

	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	if lastEventID := r.Header.Get("Last-Event-ID"); lastEventID != "" {
		missed := h.buffer.getAfter(lastEventID)
		log.Debugf("Client %s reconnected after %s, replaying %d events", clientID, lastEventID, len(missed))
		for _, evt := range missed {
			fmt.Fprintf(w, "id: %s\ndata: %s\n\n", evt.id, evt.data)
		}
		flusher.Flush()
	}

	ticker := time.NewTicker(keepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case message, ok := <-ch:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(w, "%s\n\n", message); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprintf(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}
