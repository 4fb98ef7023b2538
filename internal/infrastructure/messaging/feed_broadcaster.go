package messaging

import (
	"context"
	"sync"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	"github.com/goccy/go-json"
)

// FeedBroadcaster manages connected stream clients grouped by topic.
type FeedBroadcaster struct {
	topicClients map[tracking.Topic]map[*FeedClient]bool
	register     chan *FeedClient
	unregister   chan *FeedClient
	done         chan struct{}
	logger       *logging.ChanneledLogger
	mu           sync.RWMutex
}

// NewFeedBroadcaster creates a broadcaster. Run must be started before
// clients register.
func NewFeedBroadcaster(logger *logging.ChanneledLogger) *FeedBroadcaster {
	return &FeedBroadcaster{
		topicClients: make(map[tracking.Topic]map[*FeedClient]bool),
		register:     make(chan *FeedClient),
		unregister:   make(chan *FeedClient),
		done:         make(chan struct{}),
		logger:       logger,
	}
}

// Run processes registrations until ctx is done, then disconnects every client.
func (b *FeedBroadcaster) Run(ctx context.Context) {
	for {
		select {
		case client := <-b.register:
			b.mu.Lock()
			if _, ok := b.topicClients[client.Topic]; !ok {
				b.topicClients[client.Topic] = make(map[*FeedClient]bool)
			}
			b.topicClients[client.Topic][client] = true
			b.mu.Unlock()
			b.logger.HTTP().Debug("Stream client registered", "topic", client.Topic)

		case client := <-b.unregister:
			b.remove(client)
			b.logger.HTTP().Debug("Stream client unregistered", "topic", client.Topic)

		case <-ctx.Done():
			close(b.done)
			b.mu.Lock()
			for topic, clients := range b.topicClients {
				for client := range clients {
					close(client.Send)
				}
				delete(b.topicClients, topic)
			}
			b.mu.Unlock()
			return
		}
	}
}

func (b *FeedBroadcaster) remove(client *FeedClient) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if clients, ok := b.topicClients[client.Topic]; ok {
		if _, ok := clients[client]; ok {
			delete(clients, client)
			close(client.Send)
			if len(clients) == 0 {
				delete(b.topicClients, client.Topic)
			}
		}
	}
}

// Register queues a client for registration. After Run has stopped the
// client is closed immediately.
func (b *FeedBroadcaster) Register(client *FeedClient) {
	select {
	case b.register <- client:
	case <-b.done:
		close(client.Send)
	}
}

// Unregister queues a client for removal.
func (b *FeedBroadcaster) Unregister(client *FeedClient) {
	select {
	case b.unregister <- client:
	case <-b.done:
	}
}

// Broadcast sends feed to every client of its topic. Slow clients miss the
// delivery rather than block the sender.
func (b *FeedBroadcaster) Broadcast(feed tracking.Feed) {
	message, err := json.Marshal(feed)
	if err != nil {
		b.logger.HTTP().Error("Failed to encode feed", "topic", feed.Topic, "error", err.Error())
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for client := range b.topicClients[feed.Topic] {
		select {
		case client.Send <- message:
		default:
		}
	}
}

// ClientCount returns the number of clients subscribed to topic.
func (b *FeedBroadcaster) ClientCount(topic tracking.Topic) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topicClients[topic])
}
