// Package transport is the WebSocket edge of the server. It accepts
// connections, wraps player connections as broadcast sinks, and turns
// control-client events into cast triggers. It never decides what to
// stream; that belongs to the session.
package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/mossfeld/voicecast/internal/broadcast"
	"github.com/mossfeld/voicecast/internal/generator"
)

const (
	ClientTypePlayer = "player"
	ClientTypeServer = "server"

	writeTimeout = 10 * time.Second
)

// CastStarter starts one cast of the configured recording. The cast
// should stop when ctx is canceled.
type CastStarter interface {
	StartCast(ctx context.Context) error
}

// CastStarterFunc adapts a function to the CastStarter interface.
type CastStarterFunc func(ctx context.Context) error

func (f CastStarterFunc) StartCast(ctx context.Context) error {
	return f(ctx)
}

// Server owns the /ws endpoint. Players join the broadcast registry;
// control clients (clientType=server) trigger casts and signal
// end-of-call on disconnect.
type Server struct {
	registry *broadcast.Registry
	starter  CastStarter
	ids      generator.Generator[string]
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewServer(registry *broadcast.Registry, starter CastStarter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		registry: registry,
		starter:  starter,
		ids:      &generator.UUIDV4Generator{},
		logger:   logger,
		upgrader: websocket.Upgrader{
			// Listeners connect from arbitrary origins.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	clientType := r.URL.Query().Get("clientType")
	if clientType == "" {
		clientType = ClientTypePlayer
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}
	s.logger.Info("socket connected", "clientType", clientType, "remoteAddr", conn.RemoteAddr())

	switch clientType {
	case ClientTypeServer:
		s.serveControl(conn)
	default:
		s.servePlayer(conn)
	}
}

// wsSink adapts one player connection to the broadcast.Sink contract.
// The registry's writer goroutine is the only writer on the
// connection, which is what gorilla/websocket requires.
type wsSink struct {
	id   string
	conn *websocket.Conn
}

var _ broadcast.Sink = (*wsSink)(nil)

func (s *wsSink) ID() string { return s.id }

func (s *wsSink) Send(msg []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return s.conn.WriteMessage(websocket.TextMessage, msg)
}

func (s *wsSink) Close() error {
	return s.conn.Close()
}

func (s *Server) servePlayer(conn *websocket.Conn) {
	id, err := s.ids.Next()
	if err != nil {
		s.logger.Error("failed to generate sink ID", "error", err)
		conn.Close()
		return
	}

	sink := &wsSink{id: id, conn: conn}
	s.registry.Add(sink)
	defer func() {
		s.registry.Remove(sink)
		conn.Close()
		s.logger.Info("player disconnected", "sinkID", id)
	}()

	// Players only listen; drain until the connection dies so we
	// notice the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

// inboundEvent is the subset of control-client messages we care about.
type inboundEvent struct {
	Event string `json:"event"`
	Media *struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

func (s *Server) serveControl(conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(context.Background())
	defer func() {
		cancel()
		conn.Close()
		s.notifyClose()
		s.logger.Info("control client disconnected")
	}()

	for {
		messageType, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		if messageType == websocket.BinaryMessage {
			continue
		}

		var event inboundEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			continue
		}

		switch event.Event {
		case "connected":
			s.logger.Info("starting new call")
			go func() {
				if err := s.starter.StartCast(ctx); err != nil {
					s.logger.Error("cast failed", "error", err)
				}
			}()
		case "media":
			// Echo of our own media; nothing to do.
		}
	}
}

// notifyClose tells every listener the call has ended.
func (s *Server) notifyClose() {
	msg, err := broadcast.EncodeClose()
	if err != nil {
		s.logger.Error("failed to encode close message", "error", err)
		return
	}
	s.registry.Broadcast(msg)
}
