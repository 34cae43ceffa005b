package wsapi

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/kckern/daylightfit/internal/coordinator"
	"github.com/rs/zerolog"
)

const (
	writeTimeout = 10 * time.Second
	sendBuffer   = 32
)

// client is one connected WebSocket subscriber. It implements
// coordinator.Subscriber by buffering outbound frames onto send; when the
// buffer is full the frame is dropped and the client stays connected.
type client struct {
	id     string
	conn   *websocket.Conn
	send   chan []byte
	logger zerolog.Logger
}

func (c *client) Send(snap coordinator.Snapshot) {
	data, err := json.Marshal(Message{Type: MsgSnapshot, Payload: toSnapshotPayload(snap)})
	if err != nil {
		c.logger.Warn().Err(err).Msg("encoding snapshot failed")
		return
	}
	select {
	case c.send <- data:
	default:
		c.logger.Warn().Str("client", c.id).Msg("dropping slow subscriber")
	}
}

func (c *client) writePump() {
	defer c.conn.Close()
	for data := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

// Server exposes one session Coordinator over a single WebSocket endpoint
// (/ws), following the teacher's internal/ws.Server shape minus the
// sound/tmux-focus/frontend-embed endpoints this domain has no use for.
type Server struct {
	coord          *coordinator.Coordinator
	upgrader       websocket.Upgrader
	allowedOrigins []string
	authToken      string
	logger         zerolog.Logger
}

// NewServer builds a Server fronting coord.
func NewServer(coord *coordinator.Coordinator, allowedOrigins []string, authToken string, logger zerolog.Logger) *Server {
	s := &Server{
		coord:          coord,
		allowedOrigins: allowedOrigins,
		authToken:      authToken,
		logger:         logger.With().Str("component", "wsapi").Logger(),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// SetupRoutes registers the WebSocket endpoint on mux.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}

	cl := &client{id: r.RemoteAddr, conn: conn, send: make(chan []byte, sendBuffer), logger: s.logger}
	go cl.writePump()

	subID, err := s.coord.Subscribe(cl)
	if err != nil {
		s.logger.Warn().Err(err).Msg("subscribe failed")
		close(cl.send)
		return
	}

	// Read-pump purely to detect client disconnect, matching the
	// teacher's handleWS: subscriber messages carry no meaning here.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	s.coord.Unsubscribe(subID)
	close(cl.send)
}

// authorize checks a bearer token via query param or header, matching the
// teacher's internal/ws.Server.authorize. An empty configured token
// disables the check.
func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}
	if token := r.URL.Query().Get("token"); token == s.authToken {
		return true
	}
	auth := r.Header.Get("Authorization")
	return strings.TrimPrefix(auth, "Bearer ") == s.authToken
}

// checkOrigin allows configured origins plus localhost, matching the
// teacher's internal/ws.Server.checkOrigin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, allowed := range s.allowedOrigins {
		if allowed == origin {
			return true
		}
	}
	host, _, err := net.SplitHostPort(r.Host)
	if err != nil {
		host = r.Host
	}
	return host == "localhost" || host == "127.0.0.1" || host == "::1"
}
