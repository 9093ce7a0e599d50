package ws

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"proximity-service/internal/auth"
	"proximity-service/internal/broadcast"
	"proximity-service/internal/geo"
	"proximity-service/internal/observability"
)

// PresenceWebSocketHandler streams presence events to connected viewers.
type PresenceWebSocketHandler struct {
	broadcaster *broadcast.Broadcaster
	verifier    *auth.Verifier
	logger      *zap.Logger
}

var errInvalidViewport = errors.New("viewport requires numeric min_lat, max_lat, min_lng, max_lng")

// NewPresenceWebSocketHandler constructs a PresenceWebSocketHandler.
func NewPresenceWebSocketHandler(broadcaster *broadcast.Broadcaster, verifier *auth.Verifier, logger *zap.Logger) *PresenceWebSocketHandler {
	return &PresenceWebSocketHandler{broadcaster: broadcaster, verifier: verifier, logger: logger}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection, sends the current presence snapshot, then
// streams deltas until the client disconnects or falls too far behind. An
// evicted client sees its feed close and is expected to reconnect for a
// fresh snapshot.
func (h *PresenceWebSocketHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("proximity-service/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	token := c.GetHeader("Authorization")
	if token == "" {
		token = c.Query("token")
		if token != "" {
			token = "Bearer " + token
		}
	}

	userID, err := h.validateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	interest, err := interestFromQuery(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      userID,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   observability.RequestIDFromRequest(c.Request),
		TraceID:     span.SpanContext().TraceID().String(),
		ConnectedAt: time.Now(),
	}

	sub := h.broadcaster.Subscribe(userID, interest)
	observability.IncWSActive("presence")
	observability.IncWSEvent("presence", "ws_connect")
	h.logger.Info("presence feed connected",
		zap.String("conn_id", info.ConnID),
		zap.String("user_id", info.UserID),
		zap.String("ip", info.IP))

	// Writer: drain the subscription into the socket. The feed channel
	// closes on unsubscribe or eviction, which ends the loop.
	go func() {
		defer conn.Close()
		for ev := range sub.Events() {
			conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.WriteJSON(ev); err != nil {
				h.broadcaster.Unsubscribe(sub)
				return
			}
		}
		// Feed closed underneath us: tell the client to reconnect.
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "feed closed, reconnect"),
			time.Now().Add(time.Second))
	}()

	// Reader: the client sends nothing meaningful; reading only detects the
	// close handshake and transport errors.
	go func() {
		var closeReason string
		defer func() {
			h.broadcaster.Unsubscribe(sub)
			observability.DecWSActive("presence")
			observability.IncWSEvent("presence", "ws_disconnect")
			h.logger.Info("presence feed disconnected",
				zap.String("conn_id", info.ConnID),
				zap.String("user_id", info.UserID),
				zap.Duration("connected_for", time.Since(info.ConnectedAt)),
				zap.String("reason", closeReason))
			conn.Close()
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				closeReason = err.Error()
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					observability.IncWSEvent("presence", "ws_error")
				}
				return
			}
		}
	}()
}

func (h *PresenceWebSocketHandler) validateToken(header string) (string, error) {
	parts := strings.Split(header, " ")
	if len(parts) == 2 {
		return h.verifier.Verify(parts[1])
	}
	return "", auth.ErrInvalidToken
}

// interestFromQuery parses the optional subscription filters: a comma
// separated user id list and/or a viewport. No filters means everything.
func interestFromQuery(c *gin.Context) (broadcast.Interest, error) {
	var interest broadcast.Interest

	if raw := c.Query("user_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				interest.UserIDs = append(interest.UserIDs, id)
			}
		}
	}

	rawBounds := [4]string{c.Query("min_lat"), c.Query("max_lat"), c.Query("min_lng"), c.Query("max_lng")}
	if rawBounds[0] != "" || rawBounds[1] != "" || rawBounds[2] != "" || rawBounds[3] != "" {
		var bounds [4]float64
		for i, raw := range rawBounds {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return broadcast.Interest{}, errInvalidViewport
			}
			bounds[i] = v
		}
		interest.Viewport = &geo.Viewport{
			MinLatitude:  bounds[0],
			MaxLatitude:  bounds[1],
			MinLongitude: bounds[2],
			MaxLongitude: bounds[3],
		}
	}
	return interest, nil
}
