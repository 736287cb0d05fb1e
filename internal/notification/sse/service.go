// Package sse streams live request status updates over Server-Sent Events.
// Clients subscribe per request; the notification module feeds the stream
// from the in-memory event bus.
package sse

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"hireline_backend/platform/logger"
)

// EventType names the SSE events pushed to watchers of a request.
type EventType string

const (
	EventStateChanged         EventType = "state_changed"
	EventProviderCallUpdated  EventType = "provider_call_updated"
	EventRecommendationsReady EventType = "recommendations_ready"
	EventBookingConfirmed     EventType = "booking_confirmed"
	EventRequestFailed        EventType = "request_failed"
)

// Event is one SSE payload.
type Event struct {
	Type      EventType `json:"type"`
	RequestID uuid.UUID `json:"requestId"`
	Message   string    `json:"message,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// client is one open stream watching a request.
type client struct {
	requestID uuid.UUID
	events    chan Event
}

// Service manages per-request SSE connections and event fan-out.
type Service struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client
	closed  bool
	log     *logger.Logger
}

// New creates a new SSE service.
func New(log *logger.Logger) *Service {
	return &Service{
		clients: make(map[uuid.UUID][]*client),
		log:     log,
	}
}

func (s *Service) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.requestID] = append(s.clients[c.requestID], c)
	return true
}

func (s *Service) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	clients := s.clients[c.requestID]
	for i, cl := range clients {
		if cl == c {
			s.clients[c.requestID] = append(clients[:i], clients[i+1:]...)
			close(c.events)
			break
		}
	}
	if len(s.clients[c.requestID]) == 0 {
		delete(s.clients, c.requestID)
	}
}

// Publish fans an event out to every stream watching the request. Slow
// consumers are skipped rather than blocked on: the polling endpoint remains
// the source of truth. The read lock is held across the sends so a channel
// cannot be closed mid-send.
func (s *Service) Publish(requestID uuid.UUID, event Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.clients[requestID] {
		select {
		case c.events <- event:
		default:
			s.log.Warn("sse buffer full, dropping event", "requestId", requestID, "type", string(event.Type))
		}
	}
}

// Watchers reports how many streams are open for the request.
func (s *Service) Watchers(requestID uuid.UUID) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients[requestID])
}

// Handler returns the gin handler streaming events of one request until the
// client disconnects.
func (s *Service) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID, err := uuid.Parse(c.Param("requestId"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request id"})
			return
		}

		c.Writer.Header().Set("Content-Type", "text/event-stream")
		c.Writer.Header().Set("Cache-Control", "no-cache")
		c.Writer.Header().Set("Connection", "keep-alive")
		c.Writer.Header().Set("X-Accel-Buffering", "no")

		cl := &client{
			requestID: requestID,
			events:    make(chan Event, 32),
		}
		if !s.addClient(cl) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "stream shutting down"})
			return
		}
		defer s.removeClient(cl)

		c.SSEvent("connected", gin.H{"requestId": requestID})
		c.Writer.Flush()

		clientGone := c.Request.Context().Done()
		for {
			select {
			case <-clientGone:
				return
			case event, ok := <-cl.events:
				if !ok {
					return
				}
				data, _ := json.Marshal(event)
				c.SSEvent(string(event.Type), string(data))
				c.Writer.Flush()
			}
		}
	}
}

// Close drops every open stream. Connected handlers observe the closed
// channel and return.
func (s *Service) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true

	for _, clients := range s.clients {
		for _, c := range clients {
			close(c.events)
		}
	}
	s.clients = make(map[uuid.UUID][]*client)
}
