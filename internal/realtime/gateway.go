package realtime

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/repository"
	"github.com/devflow/devflow-api/pkg/auth"
	"github.com/devflow/devflow-api/pkg/errors"
	"github.com/devflow/devflow-api/pkg/httputil"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
)

const inboundTimeout = 5 * time.Second

type Config struct {
	WriteWait         time.Duration
	PongWait          time.Duration
	MaxMessageSize    int64
	SendBuffer        int
	InboundRate       float64
	InboundBurst      int
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
	if c.SendBuffer <= 0 {
		c.SendBuffer = 64
	}
	if c.InboundRate <= 0 {
		c.InboundRate = 10
	}
	if c.InboundBurst <= 0 {
		c.InboundBurst = 20
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = 30 * time.Second
	}
	return c
}

// pingPeriod must stay below PongWait.
func (c Config) pingPeriod() time.Duration {
	return c.PongWait * 9 / 10
}

type TokenVerifier interface {
	Verify(token string) (*auth.Claims, error)
}

type UserStore interface {
	GetSummary(ctx context.Context, id uuid.UUID) (*model.UserSummary, error)
	TouchLastActive(ctx context.Context, id uuid.UUID, at time.Time) error
}

// ReadMarker is the owner scoped persistence behind inbound read events.
type ReadMarker interface {
	MarkRead(ctx context.Context, id, userID uuid.UUID) (int64, error)
	MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

var errAuthFailed = &errors.AppError{Code: errors.ErrUnauthorized, Message: "authentication failed"}

// Gateway authenticates sockets, keeps presence current and relays bus
// messages to the clients connected here.
type Gateway struct {
	*Publisher

	cfg      Config
	hub      *Hub
	upgrader websocket.Upgrader
	verifier TokenVerifier
	users    UserStore
	reads    ReadMarker
	logger   *logger.Logger
	metrics  *metrics.Metrics
}

func NewGateway(
	cfg Config,
	publisher *Publisher,
	verifier TokenVerifier,
	users UserStore,
	reads ReadMarker,
	log *logger.Logger,
	m *metrics.Metrics,
) *Gateway {
	cfg = cfg.withDefaults()
	g := &Gateway{
		Publisher: publisher,
		cfg:       cfg,
		hub:       NewHub(),
		verifier:  verifier,
		users:     users,
		reads:     reads,
		logger:    log.With("realtime"),
		metrics:   m,
	}
	g.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     g.checkOrigin,
	}
	return g
}

func (g *Gateway) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(g.cfg.AllowedOrigins) == 0 {
		return true
	}
	for _, allowed := range g.cfg.AllowedOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// Start subscribes to the bus and returns once the subscription is live.
// Relaying and presence heartbeats stop when ctx ends, and every local
// client is disconnected.
func (g *Gateway) Start(ctx context.Context) error {
	msgs, err := g.bus.Subscribe(ctx, g.channel)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", g.channel, err)
	}

	go g.run(ctx, msgs)
	return nil
}

func (g *Gateway) run(ctx context.Context, msgs <-chan []byte) {
	ticker := time.NewTicker(g.cfg.HeartbeatInterval)
	defer ticker.Stop()
	defer g.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-msgs:
			if !ok {
				return
			}
			g.relay(raw)
		case <-ticker.C:
			if err := g.presence.Refresh(ctx, g.hub.userIDs()); err != nil {
				g.logger.Error(err, "presence heartbeat failed")
			}
		}
	}
}

func (g *Gateway) relay(raw []byte) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		g.logger.Error(err, "dropping malformed bus message")
		return
	}

	msg, err := json.Marshal(env.Frame)
	if err != nil {
		g.logger.Error(err, "failed to encode frame", "event", env.Frame.Event)
		return
	}

	if env.UserID == nil {
		g.hub.broadcast(msg)
		return
	}
	g.hub.sendToUser(*env.UserID, msg)
}

func (g *Gateway) closeAll() {
	for _, c := range g.hub.all() {
		c.close()
	}
}

// ServeWS authenticates the token query parameter and upgrades the
// request. Nothing is upgraded unless the token maps to an existing user.
func (g *Gateway) ServeWS(c *gin.Context) {
	claims, err := g.verifier.Verify(c.Query("token"))
	if err != nil {
		g.metrics.HandshakeFailures.WithLabelValues("invalid_token").Inc()
		g.logger.Debug("websocket handshake rejected", "error", err.Error())
		httputil.RespondWithError(c, errAuthFailed)
		return
	}

	user, err := g.users.GetSummary(c.Request.Context(), claims.UserID)
	if err != nil {
		if stderrors.Is(err, repository.ErrNotFound) {
			g.metrics.HandshakeFailures.WithLabelValues("unknown_user").Inc()
			httputil.RespondWithError(c, errAuthFailed)
			return
		}
		g.metrics.HandshakeFailures.WithLabelValues("lookup_failed").Inc()
		httputil.RespondWithError(c, errors.Internal(err))
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already written the HTTP error.
		g.metrics.HandshakeFailures.WithLabelValues("upgrade").Inc()
		g.logger.Debug("websocket upgrade failed", "error", err.Error())
		return
	}

	client := newClient(g, conn, user.ID)
	g.connect(client)

	go client.writePump()
	go client.readPump()
}

func (g *Gateway) connect(c *Client) {
	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	g.hub.add(c)
	g.metrics.ConnectedClients.Inc()

	if err := g.presence.Register(ctx, c.userID, c.id); err != nil {
		g.logger.Error(err, "failed to register presence", "user_id", c.userID.String())
	}
	g.touchLastActive(ctx, c.userID)

	g.logger.Debug("client connected", "user_id", c.userID.String(), "conn_id", c.id)
}

func (g *Gateway) disconnect(c *Client) {
	c.close()
	if !g.hub.remove(c) {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	g.metrics.ConnectedClients.Dec()
	if err := g.presence.Unregister(ctx, c.userID, c.id); err != nil {
		g.logger.Error(err, "failed to unregister presence", "user_id", c.userID.String())
	}
	g.touchLastActive(ctx, c.userID)

	g.logger.Debug("client disconnected", "user_id", c.userID.String(), "conn_id", c.id)
}

func (g *Gateway) touchLastActive(ctx context.Context, userID uuid.UUID) {
	if err := g.users.TouchLastActive(ctx, userID, time.Now()); err != nil {
		g.logger.Warn("failed to update last active", "user_id", userID.String(), "error", err.Error())
	}
}

func (g *Gateway) handleInbound(c *Client, raw []byte) {
	var frame Frame
	if err := json.Unmarshal(raw, &frame); err != nil {
		g.metrics.InboundEvents.WithLabelValues("malformed", "rejected").Inc()
		g.logger.Debug("dropping malformed frame", "user_id", c.userID.String())
		return
	}

	if !c.limiter.Allow() {
		g.metrics.InboundEvents.WithLabelValues(eventLabel(frame.Event), "rate_limited").Inc()
		g.logger.Warn("inbound rate limit exceeded", "user_id", c.userID.String(), "event", frame.Event)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), inboundTimeout)
	defer cancel()

	var err error
	switch frame.Event {
	case EventNotificationRead:
		err = g.markRead(ctx, c, frame.Data)
	case EventNotificationReadAll:
		err = g.markAllRead(ctx, c)
	default:
		g.metrics.InboundEvents.WithLabelValues("unknown", "ignored").Inc()
		g.logger.Debug("ignoring unknown event", "event", frame.Event)
		return
	}

	if err != nil {
		g.metrics.InboundEvents.WithLabelValues(frame.Event, "error").Inc()
		g.logger.Error(err, "failed to handle inbound event",
			"event", frame.Event, "user_id", c.userID.String())
		return
	}
	g.metrics.InboundEvents.WithLabelValues(frame.Event, "ok").Inc()
}

func (g *Gateway) markRead(ctx context.Context, c *Client, data json.RawMessage) error {
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("notification id must be a string: %w", err)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid notification id %q: %w", raw, err)
	}

	_, err = g.reads.MarkRead(ctx, id, c.userID)
	return err
}

func (g *Gateway) markAllRead(ctx context.Context, c *Client) error {
	if _, err := g.reads.MarkAllRead(ctx, c.userID); err != nil {
		return err
	}

	msg, err := json.Marshal(Frame{Event: EventNotificationAllRead})
	if err != nil {
		return err
	}
	c.enqueue(msg)
	return nil
}

// eventLabel keeps client supplied names out of metric labels.
func eventLabel(event string) string {
	switch event {
	case EventNotificationRead, EventNotificationReadAll:
		return event
	default:
		return "unknown"
	}
}

// LocalClients is the number of sockets open on this instance.
func (g *Gateway) LocalClients() int {
	return g.hub.ClientCount()
}
