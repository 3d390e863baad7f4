package wire

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/xraph/walkthrough/stream"
)

// DefaultHelloTimeout bounds the wait for a connection's hello frame.
const DefaultHelloTimeout = 10 * time.Second

// Server accepts tab sockets. Each socket authenticates with a hello
// frame, is subscribed to its tab topic on the stream broker, and then
// exchanges request and response frames.
type Server struct {
	broker       *stream.Broker
	handler      *Handler
	auth         Authenticator
	defaultCodec Codec
	conns        *ConnectionManager
	logger       *slog.Logger

	framesPerSecond float64
	frameBurst      int
	helloTimeout    time.Duration
}

// NewServer creates a new wire server.
func NewServer(broker *stream.Broker, handler *Handler, opts ...Option) *Server {
	s := &Server{
		broker:       broker,
		handler:      handler,
		defaultCodec: &JSONCodec{},
		conns:        NewConnectionManager(),
		logger:       slog.Default(),
		helloTimeout: DefaultHelloTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auth == nil {
		s.auth = &NoopAuthenticator{}
	}
	return s
}

// Broker returns the underlying stream broker.
func (s *Server) Broker() *stream.Broker { return s.broker }

// Handler returns the frame handler.
func (s *Server) Handler() *Handler { return s.handler }

// Connections returns the connection manager.
func (s *Server) Connections() *ConnectionManager { return s.conns }

// ServeHTTP upgrades the request to a WebSocket and serves it until the
// tab disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	nc, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		s.logger.Warn("wire upgrade failed", slog.String("error", err.Error()))
		return
	}
	if err := s.serve(r.Context(), nc); err != nil {
		s.logger.Debug("wire connection rejected", slog.String("error", err.Error()))
	}
}

// Close disconnects every tab.
func (s *Server) Close() error {
	for _, c := range s.conns.All() {
		_ = c.Close()
	}
	return nil
}

func (s *Server) serve(ctx context.Context, nc net.Conn) error {
	defer nc.Close()
	connID := uuid.NewString()

	// Hello frames are always JSON (before codec negotiation).
	_ = nc.SetReadDeadline(time.Now().Add(s.helloTimeout))
	data, _, err := wsutil.ReadClientData(nc)
	if err != nil {
		return fmt.Errorf("wire: read hello frame: %w", err)
	}
	_ = nc.SetReadDeadline(time.Time{})

	var hello Frame
	if err := json.Unmarshal(data, &hello); err != nil {
		s.reject(nc, "", ErrCodeBadRequest, "invalid hello frame")
		return fmt.Errorf("wire: unmarshal hello frame: %w", err)
	}
	if hello.Method != MethodHello {
		s.reject(nc, hello.ID, ErrCodeBadRequest, "first frame must be hello")
		return fmt.Errorf("wire: expected hello frame, got %q", hello.Method)
	}

	var req HelloRequest
	if len(hello.Data) > 0 {
		if err := json.Unmarshal(hello.Data, &req); err != nil {
			s.reject(nc, hello.ID, ErrCodeBadRequest, "invalid hello data")
			return err
		}
	}
	if req.TabID <= 0 {
		s.reject(nc, hello.ID, ErrCodeBadRequest, "hello requires a tab_id")
		return fmt.Errorf("wire: hello without tab id")
	}

	token := req.Token
	if token == "" {
		token = hello.Token
	}
	identity, authErr := s.auth.Authenticate(ctx, token)
	if authErr != nil {
		s.reject(nc, hello.ID, ErrCodeUnauthorized, "authentication failed")
		return fmt.Errorf("wire: auth failed: %w", authErr)
	}

	codec := s.defaultCodec
	if req.Format != "" {
		codec = GetCodec(req.Format)
	}

	conn := NewConnection(connID, req.TabID, identity, codec)
	conn.netConn = nc
	if s.framesPerSecond > 0 {
		burst := s.frameBurst
		if burst <= 0 {
			burst = 1
		}
		conn.limiter = rate.NewLimiter(rate.Limit(s.framesPerSecond), burst)
	}

	s.conns.Add(conn)
	sub := s.broker.Subscribe(connID, req.TabID)
	defer func() {
		s.broker.RemoveSubscriber(connID)
		s.conns.Remove(connID)
		s.logger.Info("tab disconnected",
			slog.String("conn_id", connID),
			slog.Int("tab_id", req.TabID),
		)
	}()

	resp, err := NewResponseFrame(hello.ID, HelloResponse{
		ConnID: connID,
		TabID:  req.TabID,
		Format: codec.Name(),
	})
	if err != nil {
		return fmt.Errorf("wire: marshal hello response: %w", err)
	}
	if err := conn.WriteFrame(resp); err != nil {
		return err
	}

	s.logger.Info("tab connected",
		slog.String("conn_id", connID),
		slog.Int("tab_id", req.TabID),
		slog.String("subject", identity.Subject),
		slog.String("codec", codec.Name()),
	)

	go s.forwardEvents(conn, sub)

	for {
		data, _, err := wsutil.ReadClientData(nc)
		if err != nil {
			return nil // Connection closed.
		}
		conn.Touch()

		frame, decErr := codec.Decode(data)
		if decErr != nil {
			s.write(conn, NewErrorFrame("", ErrCodeBadRequest, "invalid frame: "+decErr.Error()))
			continue
		}

		if frame.Type == FramePing {
			s.write(conn, &Frame{
				ID:        GenerateFrameID(),
				Type:      FramePong,
				CorrelID:  frame.ID,
				Timestamp: frame.Timestamp,
			})
			continue
		}

		if frame.Credits > 0 {
			sub.AddCredits(int64(frame.Credits))
			continue
		}

		if !conn.Allow() {
			s.write(conn, NewErrorFrame(frame.ID, ErrCodeTooManyRequests, "rate limit exceeded"))
			continue
		}

		if scope := RequiredScope(frame.Method); scope != "" && !identity.HasScope(scope) {
			s.write(conn, NewErrorFrame(frame.ID, ErrCodeForbidden, "insufficient permissions"))
			continue
		}

		respFrame := s.handler.Handle(ctx, frame, conn)
		if respFrame == nil {
			continue
		}
		if respFrame.Type == FrameResponse {
			s.applySubscription(conn, frame)
		}
		s.write(conn, respFrame)
	}
}

// applySubscription performs the broker side of subscribe/unsubscribe.
func (s *Server) applySubscription(conn *Connection, frame *Frame) {
	switch frame.Method {
	case MethodSubscribe:
		var req SubscribeRequest
		if json.Unmarshal(frame.Data, &req) == nil {
			s.broker.SubscribeTo(conn.ID, req.Channel)
			conn.AddSubscription(req.Channel)
		}
	case MethodUnsubscribe:
		var req UnsubscribeRequest
		if json.Unmarshal(frame.Data, &req) == nil {
			s.broker.Unsubscribe(conn.ID, req.Channel)
			conn.RemoveSubscription(req.Channel)
		}
	}
}

// forwardEvents writes broker events to the socket until the subscriber
// is closed.
func (s *Server) forwardEvents(conn *Connection, sub *stream.Subscriber) {
	for evt := range sub.C() {
		frame, err := NewEventFrame(evt.Topic, evt)
		if err != nil {
			continue
		}
		if err := conn.WriteFrame(frame); err != nil {
			return
		}
	}
}

func (s *Server) write(conn *Connection, frame *Frame) {
	if err := conn.WriteFrame(frame); err != nil {
		s.logger.Warn("failed to write frame",
			slog.String("conn_id", conn.ID),
			slog.String("error", err.Error()),
		)
	}
}

// reject writes a JSON error frame to a socket that never completed hello.
func (s *Server) reject(nc net.Conn, correlID string, code int, message string) {
	data, err := json.Marshal(NewErrorFrame(correlID, code, message))
	if err != nil {
		return
	}
	//nolint:errcheck // best-effort error response before disconnect
	wsutil.WriteServerText(nc, data)
}
