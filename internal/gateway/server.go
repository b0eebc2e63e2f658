// Package gateway serves the realtime chat channel and the HTTP API.
package gateway

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/soyeahso/supportim/internal/config"
	"github.com/soyeahso/supportim/internal/domain"
	"github.com/soyeahso/supportim/internal/geo"
	"github.com/soyeahso/supportim/internal/hooks"
	"github.com/soyeahso/supportim/internal/logging"
	"github.com/soyeahso/supportim/internal/metrics"
	"github.com/soyeahso/supportim/internal/notify"
	"github.com/soyeahso/supportim/internal/presence"
	"github.com/soyeahso/supportim/internal/ratelimit"
	"github.com/soyeahso/supportim/internal/recall"
	"github.com/soyeahso/supportim/internal/store"
	"github.com/soyeahso/supportim/internal/translate"
	"github.com/soyeahso/supportim/internal/version"
)

var (
	ErrClientClosed = errors.New("client connection closed")
	ErrUnauthorized = errors.New("unauthorized")
)

const (
	writeWait       = 10 * time.Second
	maxFrameBytes   = 1 << 20
	enrichTimeout   = 5 * time.Second
	limiterSweepGap = time.Minute
)

// Server is the supportim HTTP + WebSocket server.
type Server struct {
	cfg   config.Config
	log   *logging.Logger
	store store.Store
	hub   *Hub
	auth  authenticator
	now   func() time.Time

	tracker     *presence.Tracker
	realtime    *ratelimit.RealtimeLimiter
	writeLocal  *ratelimit.Limiter
	uploadLocal *ratelimit.Limiter
	writeLimit  *ratelimit.Shared
	uploadLimit *ratelimit.Shared
	counter     ratelimit.Counter

	recall     *recall.Coordinator
	purger     *recall.Purger
	translator *translate.Chain
	geo        geo.Resolver
	hooks      *hooks.Manager
	notifiers  *notify.Registry
	uploads    *uploader

	bg          sync.WaitGroup // enrichment goroutines
	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authGuard
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithHooks sets the hook manager for lifecycle and chat events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// WithTranslator sets the translation chain behind /api/translate.
func WithTranslator(c *translate.Chain) ServerOption {
	return func(s *Server) {
		s.translator = c
	}
}

// WithGeo sets the country resolver used for customer enrichment.
func WithGeo(r geo.Resolver) ServerOption {
	return func(s *Server) {
		s.geo = r
	}
}

// WithNotifiers sets the agent notification relays.
func WithNotifiers(r *notify.Registry) ServerOption {
	return func(s *Server) {
		s.notifiers = r
	}
}

// WithCounter shares HTTP rate limit counters through c.
func WithCounter(c ratelimit.Counter) ServerOption {
	return func(s *Server) {
		s.counter = c
	}
}

// WithClock overrides the clock used for watermarks and rate limits.
func WithClock(now func() time.Time) ServerOption {
	return func(s *Server) {
		s.now = now
	}
}

// New creates a new gateway server on top of st.
func New(cfg config.Config, st store.Store, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:   cfg,
		log:   log.Sub("gateway"),
		store: st,
		now:   time.Now,
		geo:   geo.Nop{},
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.Gateway.AllowedOrigins),
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.hooks == nil {
		s.hooks = hooks.NewManager(log)
	}

	s.auth = authenticator{
		secret:     cfg.Gateway.SharedSecret,
		production: cfg.Gateway.Production(),
		tokens:     st,
	}
	s.hub = NewHub(s.log.Sub("hub"))
	s.tracker = presence.NewTracker(s.onPresence, log)

	s.authLimiter = newAuthGuard(s.now)
	clock := ratelimit.WithClock(s.now)
	rl := cfg.RateLimit
	s.realtime = ratelimit.NewRealtime(ratelimit.PolicyFromConfig(rl.Realtime), clock)
	s.writeLocal = ratelimit.New(rl.WriteMax, rl.Window, clock)
	s.uploadLocal = ratelimit.New(rl.UploadMax, rl.Window, clock)
	s.writeLimit = ratelimit.NewShared(s.writeLocal, s.counter, rl.RedisPrefix, rl.RedisTimeout, log)
	s.uploadLimit = ratelimit.NewShared(s.uploadLocal, s.counter, rl.RedisPrefix, rl.RedisTimeout, log)

	s.recall = recall.NewCoordinator(st, s.hub, s.hooks, log)
	s.purger = recall.NewPurger(st, cfg.Recall.Retention, log)
	s.uploads = newUploader(cfg.Upload, s.now, s.log.Sub("upload"))

	if s.notifiers != nil {
		notify.NewRelay(s.notifiers, s.hub).Attach(s.hooks)
		s.notifiers.OnReply(s.handleReply)
	}
	return s
}

// checkWebSocketOrigin admits non-browser clients and browsers whose Origin
// is configured.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || isOriginAllowed(origin, allowed)
	}
}

// resolveBindAddr maps the bind mode to a listen address. Unknown modes
// fall back to loopback.
func resolveBindAddr(cfg config.GatewayConfig) string {
	host := "127.0.0.1"
	switch cfg.Bind {
	case "lan", "auto":
		host = "0.0.0.0"
	case "custom":
		host = cmp.Or(cfg.CustomBindHost, "0.0.0.0")
	}
	return net.JoinHostPort(host, strconv.Itoa(cfg.Port))
}

// Handler returns the routed HTTP handler with the middleware chain applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.Gateway.AllowedOrigins)
}

// Hub exposes the room hub.
func (s *Server) Hub() *Hub { return s.hub }

// Tracker exposes the presence tracker.
func (s *Server) Tracker() *presence.Tracker { return s.tracker }

// runBackground starts the periodic maintenance loops. They stop with ctx.
func (s *Server) runBackground(ctx context.Context) *sync.WaitGroup {
	var wg sync.WaitGroup
	loops := []func(){
		func() { s.authLimiter.run(ctx) },
		func() { s.realtime.Run(ctx, limiterSweepGap) },
		func() { s.writeLocal.Run(ctx, limiterSweepGap) },
		func() { s.uploadLocal.Run(ctx, limiterSweepGap) },
		func() { s.tracker.Run(ctx, s.cfg.Presence.ReconcileInterval, s.hub.LiveCustomers) },
		func() { s.purger.Run(ctx, s.cfg.Recall.PurgeInterval) },
		func() { s.uploads.runCleanup(ctx, time.Hour) },
	}
	for _, loop := range loops {
		wg.Add(1)
		go func() {
			defer wg.Done()
			loop()
		}()
	}
	if s.notifiers != nil {
		s.notifiers.StartAll(ctx)
	}
	return &wg
}

// listen opens the gateway socket, wrapped in TLS when configured.
func (s *Server) listen(addr string) (net.Listener, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	t := s.cfg.Gateway.TLS
	if !t.Enabled {
		if s.cfg.Gateway.Bind != "loopback" {
			s.log.Warn().Msg("TLS is not enabled, credentials travel in cleartext")
		}
		return ln, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertPath, t.KeyPath)
	if err != nil {
		ln.Close()
		return nil, fmt.Errorf("loading TLS certificate: %w", err)
	}
	s.log.Info().Str("cert", t.CertPath).Msg("TLS enabled")
	return tls.NewListener(ln, &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}), nil
}

// Start serves HTTP and realtime traffic until ctx is cancelled, then
// drains connections and background work before returning.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg.Gateway)
	ln, err := s.listen(addr)
	if err != nil {
		return err
	}
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  2 * time.Minute,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	s.startedAt = s.now()
	loops := s.runBackground(ctx)
	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Gateway.Bind).
		Str("mode", s.cfg.Gateway.Mode).
		Str("backend", s.store.Backend()).
		Bool("sharedSecret", s.cfg.Gateway.SharedSecret != "").
		Msg("gateway ready")
	s.hooks.Emit(ctx, hooks.EventGatewayStart, "", map[string]any{"addr": ln.Addr().String()})

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		s.shutdown(loops)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-done
	return nil
}

// shutdown closes sockets first so no new work arrives, then waits for
// the background loops, in-flight side effects and hook handlers.
func (s *Server) shutdown(loops *sync.WaitGroup) {
	s.log.Info().Msg("gateway stopping")
	s.hooks.Emit(context.Background(), hooks.EventGatewayStop, "", nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.hub.CloseAll()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.Warn().Err(err).Msg("http shutdown")
	}
	if s.notifiers != nil {
		s.notifiers.StopAll(ctx)
	}
	loops.Wait()
	s.bg.Wait()
	s.hooks.Wait()
}

// Addr is the configured listen address, empty before Start.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}

// handleWebSocket authenticates, upgrades and runs the connection loop.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	ip := clientIP(r, s.cfg.Gateway.TrustProxy)
	if !s.authLimiter.allow(ip) {
		s.log.Warn().Str("remote", ip).Msg("rate limited, too many failed auth attempts")
		metrics.RateLimitHits.WithLabelValues("auth").Inc()
		writeError(w, http.StatusTooManyRequests, "rate_limited")
		return
	}

	role, err := s.auth.connectionRole(r.Context(), r)
	if err != nil {
		if errors.Is(err, ErrUnauthorized) {
			s.authLimiter.recordFailure(ip)
			s.log.Warn().Str("remote", ip).Msg("realtime auth failed")
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		s.log.Error().Err(err).Msg("realtime auth lookup failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(conn, role, ip)
	s.hub.Add(client)
	defer s.disconnect(client)

	hello := Hello{ConnID: client.ConnID, Role: string(role), Protocol: version.Protocol}
	if err := s.hub.SendTo(client, domain.EventHello, hello); err != nil {
		s.log.Warn().Err(err).Str("connId", client.ConnID).Msg("sending hello")
		return
	}

	s.readLoop(r.Context(), client)
}

// disconnect releases everything a connection held.
func (s *Server) disconnect(c *Client) {
	s.hub.Remove(c)
	s.realtime.Forget(c.ConnID)
	if c.Role == domain.RoleCustomer {
		if phone := c.Phone(); phone != "" {
			s.tracker.Disconnect(phone)
		}
	}
	c.Close()
}

// readLoop routes frames from an accepted connection until it closes.
func (s *Server) readLoop(ctx context.Context, client *Client) {
	for {
		frame, err := client.ReadFrame()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Str("connId", client.ConnID).Msg("client closed connection")
			} else if !errors.Is(err, net.ErrClosed) {
				s.log.Debug().Err(err).Str("connId", client.ConnID).Msg("read error")
			}
			return
		}

		switch frame.Type {
		case FrameTypeEvent:
			s.dispatch(ctx, client, frame)
		case FrameTypeRequest:
			s.handleRequest(ctx, client, frame)
		default:
			s.log.Debug().Str("type", frame.Type).Msg("ignoring frame")
		}
	}
}

// async runs fn in a tracked goroutine detached from the caller's lifetime.
func (s *Server) async(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), enrichTimeout)
		defer cancel()
		fn(ctx)
	}()
}

// onPresence relays tracker transitions to the room and to hooks.
func (s *Server) onPresence(phone string, online bool) {
	s.hub.Broadcast(phone, domain.EventPresence, domain.PresenceEvent{Phone: phone, Online: online})
	metrics.OnlineThreads.Set(float64(len(s.tracker.Snapshot())))
	s.hooks.EmitAsync(context.Background(), hooks.EventPresenceChanged, phone, map[string]any{
		"online": online,
	})
}
