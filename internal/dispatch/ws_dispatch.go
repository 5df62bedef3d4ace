package dispatch

import (
	"log/slog"
	"sync"

	"github.com/example/bike-rental/internal/models"
	"github.com/gorilla/websocket"
)

// WSSession is one connected availability subscriber (a dashboard tab).
type WSSession struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *WSSession) Send(u models.AvailabilityUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(u)
}

// WSRegistry holds subscriber sessions and fans availability updates out
// to all of them after a booking commits.
type WSRegistry struct {
	mu       sync.RWMutex
	sessions map[*WSSession]struct{}
	logger   *slog.Logger
}

func NewWSRegistry(logger *slog.Logger) *WSRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSRegistry{sessions: make(map[*WSSession]struct{}), logger: logger}
}

func (r *WSRegistry) Add(conn *websocket.Conn) *WSSession {
	s := &WSSession{conn: conn}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s] = struct{}{}
	return s
}

func (r *WSRegistry) Remove(s *WSSession) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, s)
	_ = s.conn.Close()
}

// Broadcast sends the update to every subscriber, dropping sessions whose
// writes fail.
func (r *WSRegistry) Broadcast(u models.AvailabilityUpdate) {
	r.mu.RLock()
	sessions := make([]*WSSession, 0, len(r.sessions))
	for s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if err := s.Send(u); err != nil {
			r.logger.Warn("ws send failed, dropping subscriber", "error", err)
			r.Remove(s)
		}
	}
}
