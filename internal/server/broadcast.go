package server

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// CaptionBroadcaster fans emitted caption lines out to websocket
// subscribers. It implements pipeline.Sink, so it can be attached to the
// pipeline next to the stdout sink.
type CaptionBroadcaster struct {
	logger   *slog.Logger
	upgrader websocket.Upgrader

	conns  map[*websocket.Conn]struct{}
	closed bool
	mu     sync.Mutex
}

// captionMessage is the wire format sent to subscribers
type captionMessage struct {
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// NewCaptionBroadcaster creates an empty broadcaster
func NewCaptionBroadcaster(logger *slog.Logger) *CaptionBroadcaster {
	return &CaptionBroadcaster{
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Monitoring surface is local-only; origin checks add nothing here
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}
}

// HandleSubscribe upgrades the request and registers the subscriber
func (b *CaptionBroadcaster) HandleSubscribe(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("Websocket upgrade failed", slog.String("error", err.Error()))
		return
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		conn.Close()
		return
	}
	b.conns[conn] = struct{}{}
	b.mu.Unlock()

	b.logger.Info("Caption subscriber connected",
		slog.String("remote", conn.RemoteAddr().String()),
	)

	// Drain the read side so close frames are processed; subscriber input
	// is otherwise ignored.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				b.remove(conn)
				return
			}
		}
	}()
}

// Emit sends one caption line to all subscribers. Implements pipeline.Sink.
func (b *CaptionBroadcaster) Emit(line string) {
	msg := captionMessage{Text: line, Timestamp: time.Now()}

	b.mu.Lock()
	defer b.mu.Unlock()

	for conn := range b.conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(msg); err != nil {
			b.logger.Debug("Dropping caption subscriber",
				slog.String("remote", conn.RemoteAddr().String()),
				slog.String("error", err.Error()),
			)
			conn.Close()
			delete(b.conns, conn)
		}
	}
}

// Subscribers returns the number of connected subscribers
func (b *CaptionBroadcaster) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// remove drops one subscriber
func (b *CaptionBroadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.conns[conn]; ok {
		conn.Close()
		delete(b.conns, conn)
	}
}

// Close disconnects all subscribers and rejects new ones
func (b *CaptionBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	for conn := range b.conns {
		conn.Close()
		delete(b.conns, conn)
	}
}
