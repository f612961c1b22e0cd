package journal

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"classlock/pkg/types"
)

const (
	streamPrefix    = "classlock:journal:"
	streamMaxLength = 10_000
)

// RedisJournal appends session events to one Redis stream per class code
type RedisJournal struct {
	client *redis.Client
	writer *asyncWriter
}

// NewRedis connects to redisURL and verifies the connection
func NewRedis(ctx context.Context, redisURL string, buffer int, logger *slog.Logger) (*RedisJournal, error) {
	if redisURL == "" {
		return nil, fmt.Errorf("redis journal requires a redis URL")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	j := &RedisJournal{client: client}
	j.writer = newAsyncWriter(buffer, j.append, logger.With("component", "journal", "driver", "redis"))
	return j, nil
}

func (j *RedisJournal) key(classCode string) string {
	return streamPrefix + classCode
}

// Record queues an entry without blocking
func (j *RedisJournal) Record(ctx context.Context, entry types.JournalEntry) error {
	return j.writer.enqueue(entry)
}

func (j *RedisJournal) append(ctx context.Context, entry types.JournalEntry) error {
	// TECHNICAL DISCOVERY: Approximate trimming keeps XADD O(1) while bounding stream size
	args := &redis.XAddArgs{
		Stream: j.key(entry.ClassCode),
		MaxLen: streamMaxLength,
		Approx: true,
		Values: map[string]interface{}{
			"id":            entry.ID,
			"kind":          entry.Kind,
			"connection_id": entry.ConnectionID,
			"detail":        string(entry.Detail),
			"at":            entry.At.UTC().Format(time.RFC3339Nano),
		},
	}
	if err := j.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to append journal entry: %w", err)
	}
	return nil
}

// History returns up to limit of the most recent entries for a class, oldest first
func (j *RedisJournal) History(ctx context.Context, classCode string, limit int) ([]types.JournalEntry, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	messages, err := j.client.XRevRangeN(ctx, j.key(classCode), "+", "-", int64(limit)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read journal stream: %w", err)
	}

	entries := make([]types.JournalEntry, 0, len(messages))
	for _, msg := range messages {
		entry := types.JournalEntry{
			ID:           field(msg.Values, "id"),
			ClassCode:    classCode,
			Kind:         field(msg.Values, "kind"),
			ConnectionID: field(msg.Values, "connection_id"),
		}
		if detail := field(msg.Values, "detail"); detail != "" {
			entry.Detail = []byte(detail)
		}
		if at, err := time.Parse(time.RFC3339Nano, field(msg.Values, "at")); err == nil {
			entry.At = at
		}
		entries = append(entries, entry)
	}

	reverse(entries)
	return entries, nil
}

// HealthCheck pings Redis
func (j *RedisJournal) HealthCheck(ctx context.Context) error {
	if err := j.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

// Close flushes queued entries and closes the client
func (j *RedisJournal) Close() error {
	if !j.writer.close() {
		return nil
	}
	return j.client.Close()
}

func field(values map[string]interface{}, key string) string {
	if v, ok := values[key].(string); ok {
		return v
	}
	return ""
}
