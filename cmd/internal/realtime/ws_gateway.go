// Package realtime contains the todosync websocket gateway, room fanout, and
// command dispatch primitives.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"todosync/cmd/internal/auth/session"
	"todosync/cmd/internal/todo"

	v1 "todosync/shared/contracts/sync/v1"

	"github.com/coder/websocket"
)

const (
	wsSubprotocolV1 = "todosync.sync.v1"

	wsDefaultSendQueueSize = 256
	wsMinSendQueueSize     = 32

	wsDefaultWriteTimeout = 5 * time.Second
	wsDefaultReadIdle     = 2 * time.Minute
	wsCloseGrace          = 1 * time.Second

	wsMaxPingFailures = 3

	// Security defaults:
	// - Origin is required by default.
	// - Only localhost is allowed by default (secure-by-default for dev).
	wsDefaultOriginRequired = true
	wsDefaultAllowedOrigins = "http://localhost,http://127.0.0.1"

	// The handshake query parameter carrying the bearer token. Browser
	// websocket clients cannot set arbitrary headers, so this mirrors the
	// auth metadata slot of the original transport.
	wsTokenQueryParam = "sessionToken"
)

// SessionValidator resolves an opaque bearer token to its identity and session.
// Implemented by session.Service.
type SessionValidator interface {
	Validate(ctx context.Context, token string, now time.Time) (session.Identity, session.Row, error)
}

// Gateway is the websocket entrypoint for todosync.
//
// It authenticates each connection exactly once at handshake time, binds it to
// its owner's room, and thereafter dispatches the todo mutation commands:
// every successful mutation is persisted, broadcast to the owner's room, and
// individually confirmed to the sender.
type Gateway struct {
	log      *slog.Logger
	registry *Registry
	todos    todo.Store
	sessions SessionValidator

	devInsecure    bool
	originRequired bool
	allowedOrigins []string

	// Derived for websocket.Accept origin checks.
	// Accept() authorizes same-host origins by default, but for cross-origin it requires OriginPatterns.
	originPatterns []string

	writeTimeout    time.Duration
	readIdleTimeout time.Duration
	sendQueueSize   int

	heartbeatEvery   time.Duration
	heartbeatTimeout time.Duration

	rateEvents int
	rateWindow time.Duration
}

// NewGateway constructs a gateway with secure defaults.
func NewGateway(log *slog.Logger, registry *Registry, todos todo.Store, sessions SessionValidator) *Gateway {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	if registry == nil {
		registry = NewRegistry(log)
	}

	g := &Gateway{log: log, registry: registry, todos: todos, sessions: sessions}

	// NOTE: InsecureSkipVerify is a dev-only knob (TLS verification). It is not an origin policy.
	g.devInsecure = envBoolWS("TODOSYNC_WS_DEV_INSECURE", false)

	g.originRequired = envBoolWS("TODOSYNC_WS_ORIGIN_REQUIRED", wsDefaultOriginRequired)
	g.allowedOrigins = envCSVWS("TODOSYNC_WS_ALLOWED_ORIGINS", wsDefaultAllowedOrigins)

	// websocket.Accept enforces its own origin policy:
	// - same-host is ok
	// - cross-origin requires OriginPatterns (host patterns)
	// We derive these patterns from allowed origins so the two layers agree.
	g.originPatterns = deriveOriginPatternsFromAllowedOrigins(g.allowedOrigins)

	g.writeTimeout = envDurationWS("TODOSYNC_WS_WRITE_TIMEOUT", wsDefaultWriteTimeout)
	g.readIdleTimeout = envDurationWS("TODOSYNC_WS_READ_IDLE_TIMEOUT", wsDefaultReadIdle)

	g.sendQueueSize = envIntWS("TODOSYNC_WS_SEND_QUEUE", wsDefaultSendQueueSize)
	if g.sendQueueSize < wsMinSendQueueSize {
		g.sendQueueSize = wsMinSendQueueSize
	}

	g.heartbeatEvery = envDurationWS("TODOSYNC_WS_HEARTBEAT_INTERVAL", heartbeatInterval)
	g.heartbeatTimeout = envDurationWS("TODOSYNC_WS_HEARTBEAT_TIMEOUT", heartbeatTimeout)

	g.rateEvents = envIntWS("TODOSYNC_WS_RATE_EVENTS", rateLimitEvents)
	g.rateWindow = envDurationWS("TODOSYNC_WS_RATE_WINDOW", rateLimitWindow)

	return g
}

// ServeHTTP adapter so it can be mounted as http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.HandleWS(w, r)
}

// HandleWS gates, upgrades, and runs the per-connection command loop.
//
// Authentication happens exactly once, before the upgrade: a missing or
// invalid token refuses the connection with 401 and no event is ever
// exchanged. On success the connection joins its owner's room before the
// first read, so there is no admitted-but-unjoined window.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	if err := g.enforceOrigin(r); err != nil {
		g.log.Info("ws.reject.origin", "err", err, "origin", r.Header.Get("Origin"), "remote", r.RemoteAddr)
		metricHandshakeRejects.WithLabelValues("origin").Inc()
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}

	ident, sess, err := g.sessions.Validate(r.Context(), bearerToken(r), time.Now().UTC())
	if err != nil {
		g.log.Info("ws.reject.unauthenticated", "err", err, "remote", r.RemoteAddr)
		metricHandshakeRejects.WithLabelValues("unauthenticated").Inc()
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols: []string{wsSubprotocolV1},

		// Authorize allowed origin hosts (e.g. localhost) for cross-origin requests.
		OriginPatterns: g.originPatterns,

		// Dev-only escape hatch.
		InsecureSkipVerify: g.devInsecure,
	})
	if err != nil {
		g.log.Error("ws.accept.fail", "err", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "bye") }()

	if sp := conn.Subprotocol(); sp != wsSubprotocolV1 {
		g.log.Info("ws.reject.subprotocol", "got", sp, "want", wsSubprotocolV1)
		metricHandshakeRejects.WithLabelValues("subprotocol").Inc()
		_ = conn.Close(websocket.StatusProtocolError, "subprotocol required")
		return
	}

	conn.SetReadLimit(maxFrameBytes)

	client := NewClient(NewConnID(), ident.ID, ident.Username, g.sendQueueSize)

	// Admission and join are one step: no command can be dispatched for a
	// connection that is not yet a member of its owner's room.
	g.registry.Join(client.UserID, client)
	metricOpenConnections.Inc()
	metricRooms.Set(float64(g.registry.RoomCount()))

	g.log.Info("ws.admit",
		"conn_id", client.ConnID,
		"user_id", client.UserID,
		"session_id", sess.ID,
	)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	var closeOnce sync.Once

	// shutdown is idempotent. It does NOT close client.Send.
	// Broadcast safety: client.Send remains open and membership removal happens before client.Close.
	shutdown := func(code websocket.StatusCode, reason string) {
		closeOnce.Do(func() {
			g.registry.Leave(client)
			client.Close()
			_ = conn.Close(code, reason)
			cancel()

			metricOpenConnections.Dec()
			metricRooms.Set(float64(g.registry.RoomCount()))
		})
	}

	rl := NewRateLimiter(g.rateEvents, g.rateWindow)

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)

		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case env := <-client.Send:
				if err := writeEnvelope(ctx, conn, env, g.writeTimeout); err != nil {
					g.log.Info("ws.write.fail", "conn_id", client.ConnID, "close_status", websocket.CloseStatus(err), "err", err)
					shutdown(websocket.StatusAbnormalClosure, "write failed")
					return
				}
			}
		}
	}()

	heartbeatDone := make(chan struct{})
	go func() {
		defer close(heartbeatDone)

		t := time.NewTicker(g.heartbeatEvery)
		defer t.Stop()

		failures := 0
		for {
			select {
			case <-ctx.Done():
				return
			case <-client.Done():
				return
			case <-t.C:
				hbCtx, hbCancel := context.WithTimeout(ctx, g.heartbeatTimeout)
				err := conn.Ping(hbCtx)
				hbCancel()

				if err != nil {
					failures++
					g.log.Info("ws.ping.fail", "conn_id", client.ConnID, "failures", failures, "err", err)
					if failures >= wsMaxPingFailures {
						shutdown(websocket.StatusGoingAway, "heartbeat failed")
						return
					}
					continue
				}
				failures = 0
			}
		}
	}()

readLoop:
	for {
		readCtx, readCancel := context.WithTimeout(ctx, g.readIdleTimeout)
		env, err := readEnvelope(readCtx, conn)
		readCancel()

		if err != nil {
			switch classifyReadErr(err) {
			case readErrClose:
				shutdown(websocket.StatusNormalClosure, "peer closed")
				break readLoop
			case readErrCtxDone:
				shutdown(websocket.StatusNormalClosure, "context done")
				break readLoop
			case readErrConnClosed:
				shutdown(websocket.StatusAbnormalClosure, "conn closed")
				break readLoop
			case readErrBadJSON:
				g.trySendError(ctx, client, "Invalid message")
				continue readLoop
			default:
				g.log.Info("ws.read.fail", "conn_id", client.ConnID, "err", err)
				shutdown(websocket.StatusAbnormalClosure, "read failed")
				break readLoop
			}
		}

		now := time.Now().UTC()
		if !rl.Allow(now) {
			g.trySendError(ctx, client, "Too many events")
			shutdown(websocket.StatusPolicyViolation, "rate limited")
			break readLoop
		}

		if err := env.Validate(); err != nil {
			g.trySendError(ctx, client, err.Error())
			continue readLoop
		}

		// The effective owner of every command is the connection's bound
		// principal. Client-supplied owner ids have no slot in the v1
		// payloads and would be ignored if smuggled in.
		switch env.Type {
		case v1.TypeFetchTodos:
			g.onFetchTodos(ctx, client, now)
		case v1.TypeAddTodo:
			g.onAddTodo(ctx, client, env, now)
		case v1.TypeUpdateTodo:
			g.onUpdateTodo(ctx, client, env, now)
		case v1.TypeDeleteTodo:
			g.onDeleteTodo(ctx, client, env, now)
		default:
			g.trySendError(ctx, client, fmt.Sprintf("Unsupported event: %s", env.Type))
		}
	}

	shutdown(websocket.StatusNormalClosure, "bye")
	<-writerDone

	select {
	case <-heartbeatDone:
	case <-time.After(wsCloseGrace):
	}
}

// ---- command handlers ----
//
// Every handler delivers exactly one terminal signal to the sender: a
// confirmation (after the room broadcast) or a single error reply. A failed
// mutation never broadcasts.

func (g *Gateway) onFetchTodos(ctx context.Context, client *Client, now time.Time) {
	list, err := g.todos.ListByOwner(ctx, client.UserID)
	if err != nil {
		g.log.Error("ws.fetch.fail", "conn_id", client.ConnID, "err", err)
		metricCommands.WithLabelValues(v1.TypeFetchTodos, outcomeStoreFailure).Inc()
		g.trySendError(ctx, client, "Error fetching todos")
		return
	}

	payload, _ := json.Marshal(toTodoPayloads(list))
	g.enqueue(ctx, client, newEnvelope(v1.TypeTodos, payload, now))
	metricCommands.WithLabelValues(v1.TypeFetchTodos, outcomeOK).Inc()
}

func (g *Gateway) onAddTodo(ctx context.Context, client *Client, env v1.Envelope, now time.Time) {
	var p v1.AddTodoPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricCommands.WithLabelValues(v1.TypeAddTodo, outcomeValidationError).Inc()
		g.trySendError(ctx, client, "Failed to add todo")
		return
	}

	if msg, ok := validateTitle(p.Title); !ok {
		metricCommands.WithLabelValues(v1.TypeAddTodo, outcomeValidationError).Inc()
		g.trySendError(ctx, client, msg)
		return
	}

	created, err := g.todos.Insert(ctx, client.UserID, p.Title)
	if err != nil {
		g.log.Error("ws.add.fail", "conn_id", client.ConnID, "err", err)
		metricCommands.WithLabelValues(v1.TypeAddTodo, outcomeStoreFailure).Inc()
		g.trySendError(ctx, client, "Failed to add todo")
		return
	}

	payload, _ := json.Marshal(toTodoPayload(created))
	g.broadcast(client.UserID, newEnvelope(v1.TypeTodoAdded, payload, now))
	g.enqueue(ctx, client, newEnvelope(v1.TypeTodoAddedConfirmation, payload, now))
	metricCommands.WithLabelValues(v1.TypeAddTodo, outcomeOK).Inc()
}

func (g *Gateway) onUpdateTodo(ctx context.Context, client *Client, env v1.Envelope, now time.Time) {
	var p v1.UpdateTodoPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricCommands.WithLabelValues(v1.TypeUpdateTodo, outcomeValidationError).Inc()
		g.trySendError(ctx, client, "Failed to update todo")
		return
	}

	updated, err := g.todos.SetCompleted(ctx, client.UserID, p.ID, p.Completed)
	if errors.Is(err, todo.ErrNotFound) {
		metricCommands.WithLabelValues(v1.TypeUpdateTodo, outcomeNotFound).Inc()
		g.trySendError(ctx, client, "Todo not found")
		return
	}
	if err != nil {
		g.log.Error("ws.update.fail", "conn_id", client.ConnID, "err", err)
		metricCommands.WithLabelValues(v1.TypeUpdateTodo, outcomeStoreFailure).Inc()
		g.trySendError(ctx, client, "Failed to update todo")
		return
	}

	payload, _ := json.Marshal(v1.TodoCompletedPayload{ID: updated.ID, Completed: updated.Completed})
	g.broadcast(client.UserID, newEnvelope(v1.TypeTodoUpdated, payload, now))
	g.enqueue(ctx, client, newEnvelope(v1.TypeTodoUpdateConfirmation, payload, now))
	metricCommands.WithLabelValues(v1.TypeUpdateTodo, outcomeOK).Inc()
}

func (g *Gateway) onDeleteTodo(ctx context.Context, client *Client, env v1.Envelope, now time.Time) {
	var p v1.DeleteTodoPayload
	if err := json.Unmarshal(env.Payload, &p); err != nil {
		metricCommands.WithLabelValues(v1.TypeDeleteTodo, outcomeValidationError).Inc()
		g.trySendError(ctx, client, "Failed to delete todo")
		return
	}

	err := g.todos.Delete(ctx, client.UserID, p.ID)
	if errors.Is(err, todo.ErrNotFound) {
		metricCommands.WithLabelValues(v1.TypeDeleteTodo, outcomeNotFound).Inc()
		g.trySendError(ctx, client, "Todo not found")
		return
	}
	if err != nil {
		g.log.Error("ws.delete.fail", "conn_id", client.ConnID, "err", err)
		metricCommands.WithLabelValues(v1.TypeDeleteTodo, outcomeStoreFailure).Inc()
		g.trySendError(ctx, client, "Failed to delete todo")
		return
	}

	// Deleted events carry the bare id (wire-stable shape).
	payload, _ := json.Marshal(p.ID)
	g.broadcast(client.UserID, newEnvelope(v1.TypeTodoDeleted, payload, now))
	g.enqueue(ctx, client, newEnvelope(v1.TypeTodoDeleteConfirmation, payload, now))
	metricCommands.WithLabelValues(v1.TypeDeleteTodo, outcomeOK).Inc()
}

func validateTitle(title string) (string, bool) {
	if title == "" {
		return "Title is required", false
	}
	if len([]rune(title)) > maxTitleChars {
		return fmt.Sprintf("Title must be at most %d characters", maxTitleChars), false
	}
	return "", true
}

// ---- send helpers ----

func (g *Gateway) broadcast(ownerID string, env v1.Envelope) {
	delivered := g.registry.Broadcast(ownerID, env)
	metricBroadcastDeliveries.WithLabelValues(env.Type).Add(float64(delivered))
}

func (g *Gateway) trySendError(ctx context.Context, client *Client, msg string) {
	p, _ := json.Marshal(v1.ErrorPayload{Message: msg})
	env := newEnvelope(v1.TypeError, p, time.Now().UTC())
	_ = g.enqueue(ctx, client, env)
}

// enqueue queues env for the writer goroutine. If the connection is gone or
// the queue is saturated, the reply is dropped rather than blocking the loop.
func (g *Gateway) enqueue(ctx context.Context, client *Client, env v1.Envelope) bool {
	select {
	case <-ctx.Done():
		return false
	case <-client.Done():
		return false
	case client.Send <- env:
		return true
	default:
		return false
	}
}

// ---- envelope IO ----

func newEnvelope(typ string, payload json.RawMessage, ts time.Time) v1.Envelope {
	return v1.Envelope{
		V:       v1.Version,
		Type:    typ,
		ID:      NewEnvelopeID(),
		TS:      ts,
		Payload: payload,
	}
}

func readEnvelope(ctx context.Context, conn *websocket.Conn) (v1.Envelope, error) {
	mt, data, err := conn.Read(ctx)
	if err != nil {
		return v1.Envelope{}, err
	}
	if mt != websocket.MessageText && mt != websocket.MessageBinary {
		return v1.Envelope{}, fmt.Errorf("unsupported message type: %v", mt)
	}
	var env v1.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return v1.Envelope{}, err
	}
	return env, nil
}

func writeEnvelope(parent context.Context, conn *websocket.Conn, env v1.Envelope, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, b)
}

func toTodoPayload(t todo.Todo) v1.TodoPayload {
	return v1.TodoPayload{
		ID:        t.ID,
		Title:     t.Title,
		Completed: t.Completed,
		UserID:    t.UserID,
	}
}

func toTodoPayloads(list []todo.Todo) []v1.TodoPayload {
	out := make([]v1.TodoPayload, 0, len(list))
	for _, t := range list {
		out = append(out, toTodoPayload(t))
	}
	return out
}

// ---- handshake token ----

// bearerToken extracts the session token from connection-establishment
// metadata: the Authorization header, or the sessionToken query parameter for
// browser clients.
func bearerToken(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(r.URL.Query().Get(wsTokenQueryParam))
}

// ---- read error classification ----

type readErrKind uint8

const (
	readErrUnknown readErrKind = iota
	readErrClose
	readErrCtxDone
	readErrConnClosed
	readErrBadJSON
)

func classifyReadErr(err error) readErrKind {
	if websocket.CloseStatus(err) != -1 {
		return readErrClose
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return readErrCtxDone
	}
	if errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) {
		return readErrConnClosed
	}

	// JSON decode errors are typically returned by json.Unmarshal, not conn.Read.
	// This fallback exists for robustness when error strings are propagated.
	s := err.Error()
	if strings.Contains(s, "unexpected end of JSON input") || strings.Contains(s, "invalid character") {
		return readErrBadJSON
	}
	return readErrUnknown
}

// ---- origin policy ----

func (g *Gateway) enforceOrigin(r *http.Request) error {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		if g.originRequired {
			return errors.New("missing origin")
		}
		return nil
	}

	if len(g.allowedOrigins) == 0 {
		return errors.New("origin not allowed (no allowlist)")
	}

	originHost := originHostOnly(origin)

	for _, a := range g.allowedOrigins {
		a = strings.TrimSpace(a)
		if a == "" {
			continue
		}
		if a == "*" {
			// Strongly discouraged, but honored if explicitly configured.
			return nil
		}

		// Full origin match (scheme + host + optional port).
		if origin == a {
			return nil
		}

		// Host match fallback (ignores port/scheme).
		if originHost != "" && originHost == originHostOnly(a) {
			return nil
		}
	}

	return fmt.Errorf("origin not allowed: %s", origin)
}

func originHostOnly(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// URL form.
	if strings.Contains(s, "://") {
		u, err := url.Parse(s)
		if err != nil {
			return ""
		}
		h := strings.TrimSpace(u.Host)
		if h == "" {
			return ""
		}
		if host, _, err := net.SplitHostPort(h); err == nil {
			return strings.ToLower(host)
		}
		return strings.ToLower(h)
	}

	// host[:port] form.
	if host, _, err := net.SplitHostPort(s); err == nil {
		return strings.ToLower(host)
	}
	return strings.ToLower(s)
}

func deriveOriginPatternsFromAllowedOrigins(allowed []string) []string {
	// websocket.Accept matches OriginPatterns against the origin host using filepath.Match patterns.
	// We keep this strict: only hosts extracted from allowlist are accepted.
	seen := make(map[string]struct{}, len(allowed))

	for _, a := range allowed {
		h := originHostOnly(a)
		if h == "" || h == "*" {
			continue
		}
		seen[h] = struct{}{}
	}

	out := make([]string, 0, len(seen))
	for h := range seen {
		out = append(out, h)
	}

	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j] < out[i] {
				out[i], out[j] = out[j], out[i]
			}
		}
	}

	return out
}

// ---- env helpers ----

func envBoolWS(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envIntWS(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func envDurationWS(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func envCSVWS(key string, def string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		raw = def
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
