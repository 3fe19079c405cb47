package consent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ggonzalez94/wallet-cli/internal/logging"
)

// Server exposes a Hub to an external consent UI over a websocket.
//
// The UI connects to /consent and receives
//
//	{"type":"prompt","prompt":{...}}
//
// for every outstanding request. It answers with
//
//	{"id":N,"result":{"accepted":true,...}}
type Server struct {
	hub      *Hub
	logger   logging.Logger
	gatherer prometheus.Gatherer
	upgrader websocket.Upgrader

	mu       sync.Mutex
	http     *http.Server
	listener net.Listener
}

type ServerOption func(*Server)

// WithGatherer serves the given registry on /metrics.
func WithGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// WithCheckOrigin restricts which browser origins may connect.
func WithCheckOrigin(fn func(r *http.Request) bool) ServerOption {
	return func(s *Server) { s.upgrader.CheckOrigin = fn }
}

func NewServer(hub *Hub, logger logging.Logger, opts ...ServerOption) *Server {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Server{
		hub:    hub,
		logger: logger.NewSystem("consent-server"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type serverMessage struct {
	Type   string  `json:"type"`
	Prompt *Prompt `json:"prompt,omitempty"`
	ID     int64   `json:"id,omitempty"`
	Error  string  `json:"error,omitempty"`
}

type clientMessage struct {
	ID     int64   `json:"id"`
	Result *Result `json:"result"`
}

// Handler returns the HTTP routes of the server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/consent", s.serveConsent)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// Start listens on addr in the background and returns the bound address.
func (s *Server) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 10 * time.Second}
	s.mu.Lock()
	s.http = srv
	s.listener = ln
	s.mu.Unlock()

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("consent server stopped", "error", err)
		}
	}()
	s.logger.Info("consent server listening", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.http
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *Server) serveConsent(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("failed to upgrade consent connection", "error", err)
		return
	}
	defer conn.Close()
	s.logger.Info("consent UI connected", "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()
	replies := make(chan serverMessage, 8)

	go func() {
		defer cancel()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				s.logger.Debug("consent UI disconnected", "error", err)
				return
			}
			var msg clientMessage
			if err := json.Unmarshal(data, &msg); err != nil || msg.Result == nil {
				s.reply(ctx, replies, serverMessage{Type: "error", Error: "invalid consent answer"})
				continue
			}
			if err := s.hub.Resolve(msg.ID, *msg.Result); err != nil {
				s.reply(ctx, replies, serverMessage{Type: "error", ID: msg.ID, Error: err.Error()})
				continue
			}
			s.reply(ctx, replies, serverMessage{Type: "resolved", ID: msg.ID})
		}
	}()

	for {
		var out serverMessage
		select {
		case <-ctx.Done():
			return
		case p := <-s.hub.Prompts():
			if ctx.Err() != nil {
				s.hub.Redeliver(p)
				return
			}
			out = serverMessage{Type: "prompt", Prompt: &p}
		case out = <-replies:
		}
		if err := conn.WriteJSON(out); err != nil {
			s.logger.Warn("failed to write to consent UI", "error", err)
			if out.Prompt != nil {
				s.hub.Redeliver(*out.Prompt)
			}
			return
		}
	}
}

func (s *Server) reply(ctx context.Context, replies chan<- serverMessage, msg serverMessage) {
	select {
	case replies <- msg:
	case <-ctx.Done():
	}
}
