// Package messaging pushes event feeds to connected websocket clients.
package messaging

import "github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"

// Publisher fans a feed delivery out to every client of its topic.
type Publisher interface {
	Broadcast(feed tracking.Feed)
	ClientCount(topic tracking.Topic) int
}
