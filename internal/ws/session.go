package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/jishnu70/Chat-app-backend/internal/identity"
	"github.com/jishnu70/Chat-app-backend/internal/models"
	"github.com/jishnu70/Chat-app-backend/internal/observability"
	"github.com/jishnu70/Chat-app-backend/internal/repositories"
)

const tracerName = "chat-backend/ws"

// State is the lifecycle position of a session.
type State int

const (
	StateConnecting State = iota
	StateAuthenticated
	StateActive
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateActive:
		return "active"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// UserResolver maps a verified subject to an internal user id.
type UserResolver interface {
	ResolveOrCreate(ctx context.Context, subject identity.Subject) (int, error)
}

type SessionConfig struct {
	SendTimeout    time.Duration
	PongWait       time.Duration
	PingPeriod     time.Duration
	MaxMessageSize int64
	AllowedOrigins []string
}

type SessionDeps struct {
	Registry *Registry
	Router   *Router
	Verifier identity.Verifier
	Resolver UserResolver
	Users    repositories.UserRepository
	Groups   repositories.GroupRepository
	Messages repositories.MessageRepository
	Logger   *zap.Logger
	Metrics  *observability.Metrics
	Events   *observability.Events
}

// SessionHandler accepts direct and group websocket sessions.
type SessionHandler struct {
	deps     SessionDeps
	cfg      SessionConfig
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewSessionHandler(deps SessionDeps, cfg SessionConfig) *SessionHandler {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 5 * time.Second
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = 60 * time.Second
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = 64 * 1024
	}
	policy := newOriginPolicy(cfg.AllowedOrigins)
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionHandler{
		deps: deps,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     policy.check,
		},
		ctx:    ctx,
		cancel: cancel,
	}
}

// HandleDirect serves /ws/chats/:user_id. Messages are persisted and echoed
// back to the sender only.
func (h *SessionHandler) HandleDirect(c *gin.Context) {
	userID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	h.serve(c, KindDirect, userID)
}

// HandleGroup serves /ws/groups/:group_id.
func (h *SessionHandler) HandleGroup(c *gin.Context) {
	groupID, err := strconv.Atoi(c.Param("group_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group id"})
		return
	}
	h.serve(c, KindGroup, groupID)
}

// Shutdown closes every open session with 1001 and waits for their cleanup.
func (h *SessionHandler) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()
	h.cancel()
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// track counts a new session unless Shutdown has already started.
func (h *SessionHandler) track() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.wg.Add(1)
	return true
}

// refusal is a handshake failure, reported to the client as a close code
// after the upgrade.
type refusal struct {
	code   int
	reason string
	err    error
}

func (r *refusal) Error() string {
	if r.err != nil {
		return fmt.Sprintf("%s: %v", r.reason, r.err)
	}
	return r.reason
}

func (h *SessionHandler) serve(c *gin.Context, kind string, targetID int) {
	ctx, span := otel.Tracer(tracerName).Start(c.Request.Context(), "ws.handshake",
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("ws.kind", kind),
			attribute.Int("ws.resource_id", targetID),
		),
	)
	defer span.End()

	userID, refused := h.authenticate(ctx, c.Request, kind, targetID)

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upgrade failed")
		h.deps.Logger.Debug("websocket upgrade failed", zap.String("kind", kind), zap.Error(err))
		return
	}

	info := newConnInfo(c.Request, kind, targetID, span.SpanContext().TraceID().String())
	info.UserID = userID
	peer := NewPeer(conn, info)
	s := newSession(h, context.WithoutCancel(ctx), peer)

	if refused != nil {
		span.SetStatus(codes.Error, refused.reason)
		h.deps.Metrics.IncWSEvent(kind, "ws_refused")
		h.deps.Logger.Info("websocket refused",
			zap.String("kind", kind),
			zap.Int("resource_id", targetID),
			zap.Int("code", refused.code),
			zap.String("conn_id", info.ConnID),
			zap.Error(refused),
		)
		_ = peer.CloseWith(refused.code, refused.reason)
		s.cancel()
		s.transition(StateClosed)
		return
	}
	s.transition(StateAuthenticated)
	span.SetAttributes(attribute.Int("ws.user_id", userID))

	conn.SetReadLimit(h.cfg.MaxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(h.cfg.PongWait))
	})

	if !h.track() {
		_ = peer.CloseWith(websocket.CloseGoingAway, "server shutting down")
		s.cancel()
		s.transition(StateClosed)
		return
	}
	go func() {
		defer h.wg.Done()
		s.run()
	}()
}

// authenticate resolves the caller and checks they may open this session.
// Nothing is registered here.
func (h *SessionHandler) authenticate(ctx context.Context, r *http.Request, kind string, targetID int) (int, *refusal) {
	if h.ctx.Err() != nil {
		return 0, &refusal{code: websocket.CloseGoingAway, reason: "server shutting down"}
	}

	token, err := credential(r)
	if err != nil {
		return 0, &refusal{code: websocket.ClosePolicyViolation, reason: "missing credential", err: err}
	}
	subject, err := h.deps.Verifier.Verify(ctx, token)
	if err != nil {
		return 0, &refusal{code: CloseUnauthorized, reason: "unauthorized", err: err}
	}
	userID, err := h.deps.Resolver.ResolveOrCreate(ctx, subject)
	if err != nil {
		return 0, &refusal{code: websocket.CloseInternalServerErr, reason: "internal error", err: err}
	}

	switch kind {
	case KindDirect:
		exists, err := h.deps.Users.Exists(ctx, targetID)
		if err != nil {
			return userID, &refusal{code: websocket.CloseInternalServerErr, reason: "internal error", err: err}
		}
		if !exists {
			return userID, &refusal{code: CloseNotFound, reason: "user not found"}
		}
	case KindGroup:
		if _, err := h.deps.Groups.GetGroup(ctx, targetID); err != nil {
			if errors.Is(err, repositories.ErrGroupNotFound) {
				return userID, &refusal{code: CloseNotFound, reason: "group not found"}
			}
			return userID, &refusal{code: websocket.CloseInternalServerErr, reason: "internal error", err: err}
		}
		member, err := h.deps.Groups.IsMember(ctx, targetID, userID)
		if err != nil {
			return userID, &refusal{code: websocket.CloseInternalServerErr, reason: "internal error", err: err}
		}
		if !member {
			return userID, &refusal{code: CloseForbidden, reason: "not a group member"}
		}
	}
	return userID, nil
}

// credential reads the bearer token from the Authorization header, falling
// back to the token query parameter for browser clients.
func credential(r *http.Request) (string, error) {
	if header := r.Header.Get("Authorization"); header != "" {
		return identity.BearerToken(header)
	}
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if token == "" {
		return "", identity.ErrMissingCredential
	}
	return token, nil
}

type outcome int

const (
	outcomeContinue outcome = iota
	outcomeProtocolViolation
	outcomeFatal
)

// loopResult is what one received frame did to the session.
type loopResult struct {
	outcome outcome
	code    int
	reason  string
	err     error
}

func fatal(code int, reason string, err error) loopResult {
	return loopResult{outcome: outcomeFatal, code: code, reason: reason, err: err}
}

type session struct {
	h      *SessionHandler
	peer   *Peer
	logger *zap.Logger

	state      State
	registered bool

	eventCtx context.Context
	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	closeCode   int
	closeReason string
	detail      string
}

func newSession(h *SessionHandler, base context.Context, peer *Peer) *session {
	ctx, cancel := context.WithCancel(base)
	info := peer.Info
	return &session{
		h:    h,
		peer: peer,
		logger: h.deps.Logger.With(
			zap.String("conn_id", info.ConnID),
			zap.String("kind", info.Kind),
			zap.Int("resource_id", info.ResourceID),
			zap.Int("user_id", info.UserID),
		),
		state:     StateConnecting,
		eventCtx:  base,
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		closeCode: websocket.CloseNormalClosure,
	}
}

func (s *session) transition(next State) {
	s.logger.Debug("session state", zap.Stringer("from", s.state), zap.Stringer("to", next))
	s.state = next
}

func (s *session) run() {
	defer s.finish()

	info := s.peer.Info
	s.h.deps.Metrics.IncWSActive(info.Kind)
	if info.Kind == KindGroup {
		if replaced := s.h.deps.Registry.Register(info.ResourceID, s.peer); replaced != nil {
			s.logger.Info("replaced existing group connection", zap.String("replaced_conn_id", replaced.Info.ConnID))
		}
		s.registered = true
		s.h.deps.Metrics.SetLiveGroups(s.h.deps.Registry.GroupCount())
	}
	publishLifecycle(s.eventCtx, s.h.deps.Events, s.h.deps.Metrics, info, eventConnect, "")
	s.transition(StateActive)
	s.logger.Info("websocket connected")

	go s.keepalive()

	for {
		_, raw, err := s.peer.conn.ReadMessage()
		if err != nil {
			s.readFailed(err)
			return
		}

		res := s.handle(raw)
		switch res.outcome {
		case outcomeContinue:
		case outcomeProtocolViolation:
			s.logger.Debug("invalid frame", zap.Error(res.err))
			s.h.deps.Metrics.IncWSEvent(info.Kind, "invalid_payload")
			if err := s.peer.Send(invalidPayloadNotice, s.h.cfg.SendTimeout); err != nil {
				s.closeCode, s.closeReason, s.detail = websocket.CloseGoingAway, "write failed", err.Error()
				return
			}
		case outcomeFatal:
			s.logger.Warn("session failed", zap.Int("code", res.code), zap.Error(res.err))
			publishLifecycle(s.eventCtx, s.h.deps.Events, s.h.deps.Metrics, info, eventError, res.err.Error())
			s.closeCode, s.closeReason, s.detail = res.code, res.reason, res.err.Error()
			return
		}
	}
}

func (s *session) readFailed(err error) {
	s.detail = err.Error()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		return
	}
	if s.h.ctx.Err() != nil {
		s.closeCode, s.closeReason = websocket.CloseGoingAway, "server shutting down"
		return
	}
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		s.closeCode = closeErr.Code
		return
	}
	if errors.Is(err, websocket.ErrReadLimit) {
		s.closeCode, s.closeReason = websocket.CloseMessageTooBig, "message too big"
	}
	s.logger.Debug("websocket read failed", zap.Error(err))
	publishLifecycle(s.eventCtx, s.h.deps.Events, s.h.deps.Metrics, s.peer.Info, eventError, s.detail)
}

func (s *session) handle(raw []byte) loopResult {
	frame, err := DecodeFrame(raw)
	if err != nil {
		return loopResult{outcome: outcomeProtocolViolation, err: err}
	}
	if s.peer.Info.Kind == KindDirect {
		return s.sendDirect(frame)
	}
	return s.sendGroup(frame)
}

func (s *session) sendDirect(frame InboundFrame) loopResult {
	receiverID := s.peer.Info.ResourceID
	msg, err := s.h.deps.Messages.CreateMessage(s.ctx, frame.NewMessage(s.peer.UserID(), &receiverID, nil))
	if err != nil {
		return fatal(websocket.CloseInternalServerErr, "failed to save message", err)
	}
	s.h.deps.Metrics.IncMessagePersisted(KindDirect)

	payload, err := json.Marshal(msg)
	if err != nil {
		return fatal(websocket.CloseInternalServerErr, "internal error", err)
	}
	if err := s.peer.Send(payload, s.h.cfg.SendTimeout); err != nil {
		return fatal(websocket.CloseGoingAway, "write failed", err)
	}
	return loopResult{outcome: outcomeContinue}
}

func (s *session) sendGroup(frame InboundFrame) loopResult {
	groupID := s.peer.Info.ResourceID
	newMsg := frame.NewMessage(s.peer.UserID(), nil, &groupID)
	_, report, err := s.h.deps.Router.Publish(s.ctx, groupID, func(ctx context.Context) (models.Message, error) {
		return s.h.deps.Messages.CreateMessage(ctx, newMsg)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return fatal(websocket.CloseGoingAway, "server shutting down", err)
		}
		return fatal(websocket.CloseInternalServerErr, "failed to save message", err)
	}
	s.h.deps.Metrics.IncMessagePersisted(KindGroup)
	if report.Failed > 0 {
		s.logger.Debug("partial group delivery", zap.Int("delivered", report.Delivered), zap.Int("failed", report.Failed))
	}
	return loopResult{outcome: outcomeContinue}
}

// keepalive pings the client until the session ends. It also closes the
// session when the handler shuts down.
func (s *session) keepalive() {
	ticker := time.NewTicker(s.h.cfg.PingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-s.h.ctx.Done():
			s.cancel()
			_ = s.peer.CloseWith(websocket.CloseGoingAway, "server shutting down")
			return
		case <-ticker.C:
			if err := s.peer.Ping(s.h.cfg.SendTimeout); err != nil {
				s.logger.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// finish is the single cleanup path for a session, whatever ended it.
func (s *session) finish() {
	if rec := recover(); rec != nil {
		s.logger.Error("session panic", zap.Any("panic", rec), zap.Stack("stack"))
		s.closeCode, s.closeReason, s.detail = websocket.CloseInternalServerErr, "internal error", fmt.Sprint(rec)
	}
	s.transition(StateClosing)

	close(s.done)
	s.cancel()
	info := s.peer.Info
	if s.registered {
		s.h.deps.Registry.Deregister(info.ResourceID, s.peer)
		s.h.deps.Metrics.SetLiveGroups(s.h.deps.Registry.GroupCount())
	}
	_ = s.peer.CloseWith(s.closeCode, s.closeReason)

	s.h.deps.Metrics.DecWSActive(info.Kind)
	publishLifecycle(s.eventCtx, s.h.deps.Events, s.h.deps.Metrics, info, eventDisconnect, s.detail)
	s.transition(StateClosed)
	s.logger.Info("websocket closed", zap.Int("code", s.closeCode), zap.Duration("duration", time.Since(info.ConnectedAt)))
}
