package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"agentmesh/internal/domain"
	"agentmesh/internal/infra/config"
	"agentmesh/internal/infra/middleware"
)

// clientConn tracks a single WebSocket subscriber.
type clientConn struct {
	info      *ClientInfo
	ws        *websocket.Conn
	sendCh    chan domain.Event // buffered outbound queue
	done      chan struct{}
	closeOnce sync.Once
}

// Server is the HTTP gateway: the REST API plus the WebSocket event feed.
type Server struct {
	cfg       config.ServerConfig
	deps      Deps
	bus       domain.EventBus
	auth      Authenticator
	logger    *slog.Logger
	clients   sync.Map // connID (uint64) -> *clientConn
	nextID    atomic.Uint64
	httpSrv   *http.Server
	boundAddr string
	unsubAll  func()
}

// NewServer creates a gateway server.
func NewServer(cfg config.ServerConfig, deps Deps, bus domain.EventBus, auth Authenticator, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		deps:   deps,
		bus:    bus,
		auth:   auth,
		logger: logger,
	}
}

// Start begins serving. Blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)
	s.registerRoutes(mux)

	var handler http.Handler = mux
	if s.cfg.RequestsPerMin > 0 {
		handler = middleware.RateLimit(ctx, s.cfg.RequestsPerMin, s.cfg.BurstSize)(handler)
	}
	handler = middleware.SecurityHeaders(handler)

	listener, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway listen: %w", err)
	}
	s.boundAddr = listener.Addr().String()

	s.httpSrv = &http.Server{Handler: handler}

	// Forward every bus event to connected clients in the same tenant.
	s.unsubAll = s.bus.SubscribeAll(func(_ context.Context, event domain.Event) {
		s.clients.Range(func(_, value any) bool {
			cc := value.(*clientConn)
			if cc.info.TenantID != "" && event.TenantID != "" && cc.info.TenantID != event.TenantID {
				return true
			}
			select {
			case cc.sendCh <- event:
			default:
				s.logger.Warn("gateway: dropped event for slow client")
			}
			return true
		})
	})

	s.logger.Info("gateway started", "addr", s.boundAddr)

	go func() {
		<-ctx.Done()
		s.Stop(context.Background())
	}()

	if err := s.httpSrv.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway serve: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the gateway.
func (s *Server) Stop(ctx context.Context) error {
	if s.unsubAll != nil {
		s.unsubAll()
	}

	s.clients.Range(func(key, value any) bool {
		cc := value.(*clientConn)
		cc.closeOnce.Do(func() { close(cc.done) })
		cc.ws.Close(websocket.StatusGoingAway, "server shutting down")
		s.clients.Delete(key)
		return true
	})

	if s.httpSrv != nil {
		grace := s.cfg.ShutdownGrace
		if grace <= 0 {
			grace = 5 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(ctx, grace)
		defer cancel()
		return s.httpSrv.Shutdown(shutdownCtx)
	}
	return nil
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

// authenticate resolves the request's bearer token (or ws token query
// param) into a tenant-scoped client.
func (s *Server) authenticate(r *http.Request) (*ClientInfo, error) {
	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		token = strings.TrimPrefix(h, "Bearer ")
	}

	info, err := s.auth.Authenticate(token)
	if err != nil {
		return nil, err
	}
	if info.TenantID == "" {
		// Open auth binds no tenant; the caller names one.
		out := *info
		out.TenantID = r.Header.Get("X-Tenant-ID")
		if out.TenantID == "" {
			out.TenantID = r.URL.Query().Get("tenant_id")
		}
		if out.TenantID == "" {
			return nil, domain.ErrScopeDenied
		}
		return &out, nil
	}
	return info, nil
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	info, err := s.authenticate(r)
	if err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{
			"localhost",
			"localhost:*",
			"127.0.0.1",
			"127.0.0.1:*",
			"[::1]",
			"[::1]:*",
		},
	})
	if err != nil {
		s.logger.Warn("websocket accept failed", "error", err)
		return
	}

	connID := s.nextID.Add(1)
	cc := &clientConn{
		info:   info,
		ws:     ws,
		sendCh: make(chan domain.Event, 64),
		done:   make(chan struct{}),
	}
	s.clients.Store(connID, cc)
	s.logger.Info("gateway client connected", "conn_id", connID, "tenant_id", info.TenantID)

	go s.writeLoop(cc)

	// Read loop: the feed is one-way, but reading surfaces close frames.
	s.readLoop(r.Context(), cc)

	cc.closeOnce.Do(func() { close(cc.done) })
	s.clients.Delete(connID)
	ws.Close(websocket.StatusNormalClosure, "")
	s.logger.Info("gateway client disconnected", "conn_id", connID)
}

func (s *Server) readLoop(ctx context.Context, cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		default:
		}

		var discard json.RawMessage
		if err := wsjson.Read(ctx, cc.ws, &discard); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(cc *clientConn) {
	for {
		select {
		case <-cc.done:
			return
		case event := <-cc.sendCh:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := wsjson.Write(ctx, cc.ws, event)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
