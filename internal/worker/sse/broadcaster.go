// Package sse streams progress updates to status-page clients over
// Server-Sent Events.
package sse

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	json "github.com/goccy/go-json"
)

// writeTimeout bounds a single client write so one stale connection
// cannot stall a broadcast.
const writeTimeout = 2 * time.Second

// client is one connected event-stream subscriber.
type client struct {
	id      string
	writer  http.ResponseWriter
	flusher http.Flusher
	done    chan struct{}
}

// Broadcaster fans progress events out to every connected client.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[string]*client
	nextID  int
}

// NewBroadcaster creates an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{clients: make(map[string]*client)}
}

// ClientCount returns the number of connected clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends one event to every client. Writes run concurrently and
// clients that fail or time out are dropped.
func (b *Broadcaster) Broadcast(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("event marshal failed")
		return
	}
	message := fmt.Sprintf("data: %s\n\n", payload)

	b.mu.RLock()
	targets := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		targets = append(targets, c)
	}
	b.mu.RUnlock()

	if len(targets) == 0 {
		return
	}

	dead := make(chan string, len(targets))
	var wg sync.WaitGroup
	for _, c := range targets {
		wg.Add(1)
		go func(c *client) {
			defer wg.Done()
			b.write(c, message, dead)
		}(c)
	}
	wg.Wait()
	close(dead)

	for id := range dead {
		b.drop(id)
	}
}

func (b *Broadcaster) write(c *client, message string, dead chan<- string) {
	result := make(chan error, 1)
	go func() {
		_, err := c.writer.Write([]byte(message))
		if err == nil {
			c.flusher.Flush()
		}
		result <- err
	}()

	select {
	case err := <-result:
		if err != nil {
			dead <- c.id
		}
	case <-c.done:
	case <-time.After(writeTimeout):
		log.Warn().Str("client", c.id).Msg("event write timed out, dropping client")
		dead <- c.id
	}
}

func (b *Broadcaster) add(w http.ResponseWriter) (*client, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	b.mu.Lock()
	b.nextID++
	c := &client{
		id:      fmt.Sprintf("client-%d", b.nextID),
		writer:  w,
		flusher: flusher,
		done:    make(chan struct{}),
	}
	b.clients[c.id] = c
	b.mu.Unlock()

	log.Debug().Str("client", c.id).Msg("event stream client connected")
	return c, nil
}

func (b *Broadcaster) drop(id string) {
	b.mu.Lock()
	c, ok := b.clients[id]
	if ok {
		delete(b.clients, id)
	}
	b.mu.Unlock()

	if ok {
		select {
		case <-c.done:
		default:
			close(c.done)
		}
		log.Debug().Str("client", id).Msg("event stream client disconnected")
	}
}

// ServeHTTP upgrades the request to an event stream and holds it open
// until the client disconnects.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	c, err := b.add(w)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	defer b.drop(c.id)

	fmt.Fprintf(w, "data: {\"type\":\"connected\",\"clientId\":%q}\n\n", c.id)
	c.flusher.Flush()

	<-r.Context().Done()
}
