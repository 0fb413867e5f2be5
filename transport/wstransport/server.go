package wstransport

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/c0deZ3R0/pixel-chunk/errors"
	"github.com/c0deZ3R0/pixel-chunk/logging"
	"github.com/c0deZ3R0/pixel-chunk/protocol"
	"github.com/c0deZ3R0/pixel-chunk/session"
)

// Server upgrades edit requests into server sessions.
type Server struct {
	manager  *session.Manager
	settings Settings
	logger   *logging.Logger
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  map[*websocket.Conn]struct{}
	closed bool
}

func NewServer(manager *session.Manager, settings *Settings, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.WithComponent(logging.Component(component))
	}
	s := &Server{
		manager:  manager,
		settings: settingsOrDefault(settings),
		logger:   logger,
		conns:    make(map[*websocket.Conn]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: s.settings.HandshakeTimeout,
	}
	return s
}

// Handler serves the edit session of the project named by the "id" route
// variable. Unknown projects are rejected before the upgrade.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.serveEdit)
}

func (s *Server) serveEdit(w http.ResponseWriter, r *http.Request) {
	projectID := mux.Vars(r)["id"]
	sess, err := s.manager.Open(r.Context(), projectID)
	if err != nil {
		switch errors.KindOf(err) {
		case errors.KindNoSuchProject:
			http.Error(w, "no such project", http.StatusNotFound)
		default:
			s.logger.LogError(r.Context(), err, "Opening session", logging.ProjectAttr(projectID))
			http.Error(w, "internal error", http.StatusInternalServerError)
		}
		return
	}
	defer sess.Close()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Debug("Upgrade failed", logging.SessionAttr(sess.ID()), logging.ProjectAttr(projectID))
		return
	}
	if !s.track(conn) {
		conn.Close()
		return
	}
	defer s.untrack(conn)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger := s.logger.WithAttrs(logging.SessionAttr(sess.ID()), logging.ProjectAttr(projectID))
	if err := s.serve(ctx, conn, sess, logger); err != nil {
		logger.LogError(ctx, err, "Edit connection ended")
	}
}

func (s *Server) serve(ctx context.Context, conn *websocket.Conn, sess *session.Session, logger *logging.Logger) error {
	conn.SetReadLimit(s.settings.MaxMessageBytes)
	conn.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	})

	if err := s.write(conn, sess.Ready()); err != nil {
		return err
	}

	go s.ping(ctx, conn)

	for {
		mt, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) || ctx.Err() != nil {
				logger.Debug("Edit connection closed by peer")
				return nil
			}
			return errors.E(errors.OpTransport, component, errors.KindConnectionLost, err)
		}
		conn.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))

		var result protocol.Result
		switch mt {
		case websocket.TextMessage, websocket.BinaryMessage:
			result = sess.HandleMessage(ctx, data)
		default:
			continue
		}

		if err := s.write(conn, result); err != nil {
			return err
		}
		if f, ok := result.(protocol.Failure); ok && f.Fatal {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"),
				time.Now().Add(s.settings.WriteTimeout))
			return nil
		}
	}
}

func (s *Server) write(conn *websocket.Conn, result protocol.Result) error {
	data, err := protocol.EncodeResult(result)
	if err != nil {
		return err
	}
	conn.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return errors.E(errors.OpTransport, component, errors.KindConnectionLost, err)
	}
	return nil
}

func (s *Server) ping(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(s.settings.PingInterval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.settings.WriteTimeout)); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) track(conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.conns[conn] = struct{}{}
	return true
}

func (s *Server) untrack(conn *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, conn)
	s.mu.Unlock()
	conn.Close()
}

// Close sends a going-away close frame to every open connection and refuses
// new ones. Hijacked connections are not covered by http.Server.Shutdown.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	deadline := time.Now().Add(s.settings.WriteTimeout)
	for conn := range s.conns {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"), deadline)
		conn.Close()
	}
	return nil
}

// Len reports the number of open connections.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
