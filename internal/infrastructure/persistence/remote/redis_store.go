package remote

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AtRiskMedia/hugtrack-go/internal/domain/tracking"
	"github.com/AtRiskMedia/hugtrack-go/internal/infrastructure/observability/logging"
	goredis "github.com/redis/go-redis/v9"
)

const maxMergeRetries = 3

// RedisStore keeps each document as a JSON string, an index sorted set per
// collection scored by timestamp, and publishes every change on a per
// collection channel.
type RedisStore struct {
	rdb    *goredis.Client
	prefix string
	opts   Options
	logger *logging.ChanneledLogger
}

// NewRedisStore connects lazily to addr. Availability is probed per call.
func NewRedisStore(addr, prefix string, opts Options, logger *logging.ChanneledLogger) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("missing redis address")
	}
	if prefix == "" {
		prefix = "hugtrack"
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	return &RedisStore{rdb: rdb, prefix: prefix, opts: opts.withDefaults(), logger: logger}, nil
}

func (s *RedisStore) docKey(c tracking.Collection, id string) string {
	return fmt.Sprintf("%s:doc:%s:%s", s.prefix, c, id)
}

func (s *RedisStore) indexKey(c tracking.Collection) string {
	return fmt.Sprintf("%s:idx:%s", s.prefix, c)
}

func (s *RedisStore) channel(c tracking.Collection) string {
	return fmt.Sprintf("%s:changes:%s", s.prefix, c)
}

func (s *RedisStore) Available(ctx context.Context) bool {
	if s == nil || s.rdb == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ProbeTimeout)
	defer cancel()
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		s.logger.Remote().Debug("redis probe failed", "error", err.Error())
		return false
	}
	return true
}

// Put merges doc into the stored document inside an optimistic transaction.
func (s *RedisStore) Put(ctx context.Context, c tracking.Collection, doc tracking.Document) error {
	start := time.Now()
	key := s.docKey(c, doc.ID)

	txf := func(tx *goredis.Tx) error {
		existing, err := tx.Get(ctx, key).Bytes()
		if err != nil && !errors.Is(err, goredis.Nil) {
			return err
		}
		merged, err := mergeDocuments(existing, doc.Data)
		if err != nil {
			return fmt.Errorf("merge %s: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, key, merged, 0)
			if ms := millis(doc.Timestamp); ms > 0 || existing == nil {
				pipe.ZAdd(ctx, s.indexKey(c), goredis.Z{Score: float64(ms), Member: doc.ID})
			}
			return nil
		})
		return err
	}

	var err error
	for range maxMergeRetries {
		err = s.rdb.Watch(ctx, txf, key)
		if !errors.Is(err, goredis.TxFailedErr) {
			break
		}
	}
	if err != nil {
		s.logger.Remote().Error("redis put failed", "collection", c, "id", doc.ID, "error", err.Error())
		return fmt.Errorf("failed to put %s/%s: %w", c, doc.ID, err)
	}

	if err := s.rdb.Publish(ctx, s.channel(c), doc.ID).Err(); err != nil {
		s.logger.Remote().Warn("redis change notification failed", "collection", c, "error", err.Error())
	}
	s.logger.LogSlowOperation("put "+string(c), "redis", time.Since(start), s.opts.SlowThreshold)
	return nil
}

func (s *RedisStore) Get(ctx context.Context, c tracking.Collection, id string) (tracking.Document, error) {
	data, err := s.rdb.Get(ctx, s.docKey(c, id)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return tracking.Document{}, tracking.ErrNotFound
	}
	if err != nil {
		return tracking.Document{}, fmt.Errorf("failed to get %s/%s: %w", c, id, err)
	}
	doc := tracking.Document{ID: id, Data: data}
	if score, err := s.rdb.ZScore(ctx, s.indexKey(c), id).Result(); err == nil {
		doc.Timestamp = fromMillis(int64(score))
	}
	return doc, nil
}

func (s *RedisStore) Query(ctx context.Context, c tracking.Collection, q tracking.Query) ([]tracking.Document, error) {
	stop := int64(-1)
	if q.Limit > 0 {
		stop = int64(q.Limit - 1)
	}
	entries, err := s.rdb.ZRevRangeWithScores(ctx, s.indexKey(c), 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query %s index: %w", c, err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = s.docKey(c, fmt.Sprint(e.Member))
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load %s documents: %w", c, err)
	}

	docs := make([]tracking.Document, 0, len(values))
	for i, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // indexed but deleted
		}
		docs = append(docs, tracking.Document{
			ID:        fmt.Sprint(entries[i].Member),
			Timestamp: fromMillis(int64(entries[i].Score)),
			Data:      []byte(raw),
		})
	}
	return docs, nil
}

func (s *RedisStore) Delete(ctx context.Context, c tracking.Collection, id string) error {
	_, err := s.rdb.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, s.docKey(c, id))
		pipe.ZRem(ctx, s.indexKey(c), id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s/%s: %w", c, id, err)
	}
	_ = s.rdb.Publish(ctx, s.channel(c), id).Err()
	return nil
}

// Subscribe pushes the current result of q, then re-runs q on every change
// notification published for c.
func (s *RedisStore) Subscribe(ctx context.Context, c tracking.Collection, q tracking.Query, onDocs func([]tracking.Document), onErr func(error)) (func(), error) {
	ctx, cancel := context.WithCancel(ctx)
	sub := s.rdb.Subscribe(ctx, s.channel(c))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		cancel()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	docs, err := s.Query(ctx, c, q)
	if err != nil {
		_ = sub.Close()
		cancel()
		return nil, err
	}
	onDocs(docs)

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					if ctx.Err() == nil {
						onErr(errors.New("redis subscription closed"))
					}
					return
				}
				docs, err := s.Query(ctx, c, q)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					s.logger.Remote().Warn("redis subscription query failed", "collection", c, "error", err.Error())
					onErr(err)
					return
				}
				onDocs(docs)
			}
		}
	}()
	return cancel, nil
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
