package handlers

import (
	"net/http"
	"slices"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/application/services"
	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/messaging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// StreamHandlers upgrades clients to a websocket event feed
type StreamHandlers struct {
	sinkService *services.SinkService
	broadcaster *messaging.FeedBroadcaster
	origins     []string
	logger      *logging.ChanneledLogger
}

// NewStreamHandlers creates stream handlers. Browser connections are accepted
// only from origins.
func NewStreamHandlers(sinkService *services.SinkService, broadcaster *messaging.FeedBroadcaster, origins []string, logger *logging.ChanneledLogger) *StreamHandlers {
	return &StreamHandlers{sinkService: sinkService, broadcaster: broadcaster, origins: origins, logger: logger}
}

func (h *StreamHandlers) upgrader() websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(h.origins, origin)
		},
	}
}

// Stream handles GET /api/v1/analytics/stream. The current window of events
// is sent on connect and every live delivery after it.
func (h *StreamHandlers) Stream(c *gin.Context) {
	topic := tracking.Topic(c.DefaultQuery("topic", string(tracking.TopicAnalytics)))
	if topic != tracking.TopicAnalytics && topic != tracking.TopicHugs {
		c.JSON(http.StatusBadRequest, gin.H{"error": "topic must be analytics or hugs"})
		return
	}

	upgrader := h.upgrader()
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.HTTP().Warn("Websocket upgrade failed", "error", err.Error())
		return
	}

	initial, err := json.Marshal(h.sinkService.RecentEvents(c.Request.Context(), topic, tracking.SubscriptionWindow))
	if err != nil {
		initial = nil
	}
	messaging.NewFeedClient(conn, topic).Serve(h.broadcaster, initial)
}
