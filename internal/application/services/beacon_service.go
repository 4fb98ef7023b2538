package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/metrics"
	"github.com/goccy/go-json"
)

// BeaconService delivers session-end summaries to an ingestion endpoint.
// Delivery is best effort: one attempt, no retry. Callers never wait for it;
// only process teardown does, through Drain.
type BeaconService struct {
	endpoint string
	timeout  time.Duration
	client   *http.Client
	logger   *logging.ChanneledLogger
	inflight sync.WaitGroup
}

// NewBeaconService creates a beacon sender. An empty endpoint disables it.
func NewBeaconService(endpoint string, timeout time.Duration, logger *logging.ChanneledLogger) *BeaconService {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &BeaconService{
		endpoint: endpoint,
		timeout:  timeout,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Enabled reports whether an endpoint is configured.
func (b *BeaconService) Enabled() bool { return b != nil && b.endpoint != "" }

// Dispatch sends summary in the background and returns immediately. The
// request is not bound to any caller context so teardown cannot cancel it.
func (b *BeaconService) Dispatch(summary tracking.SessionSummary) {
	if !b.Enabled() {
		return
	}
	body, err := json.Marshal(summary)
	if err != nil {
		metrics.BeaconsSent.WithLabelValues("failure").Inc()
		b.logger.Beacon().Error("Failed to encode session summary", "error", err.Error())
		return
	}

	b.inflight.Add(1)
	go func() {
		defer b.inflight.Done()
		if err := b.send(body); err != nil {
			metrics.BeaconsSent.WithLabelValues("failure").Inc()
			b.logger.Beacon().Warn("Session beacon not delivered", "error", err.Error())
			return
		}
		metrics.BeaconsSent.WithLabelValues("success").Inc()
		b.logger.Beacon().Debug("Session beacon delivered", "sessionId", logging.SanitizeSessionID(summary.SessionID))
	}()
}

func (b *BeaconService) send(body []byte) error {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, b.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build beacon request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("beacon endpoint returned %d", resp.StatusCode)
	}
	return nil
}

// Drain blocks until in-flight beacons finish or wait passes, whichever comes
// first. A non-positive wait uses the send timeout. It reports whether every
// beacon finished.
func (b *BeaconService) Drain(wait time.Duration) bool {
	if !b.Enabled() {
		return true
	}
	if wait <= 0 {
		wait = b.timeout
	}
	done := make(chan struct{})
	go func() {
		b.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(wait):
		b.logger.Beacon().Warn("Beacon still in flight at shutdown", "wait", wait)
		return false
	}
}
