package outbox

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"
)

// StreamTransport appends entries to a Redis stream.
type StreamTransport struct {
	client *redis.Client
	stream string
	maxLen int64
}

// NewStreamTransport creates a transport writing to stream. maxLen caps the
// stream approximately; 0 leaves it unbounded.
func NewStreamTransport(client *redis.Client, stream string, maxLen int64) *StreamTransport {
	return &StreamTransport{client: client, stream: stream, maxLen: maxLen}
}

// Send implements Transport.
func (t *StreamTransport) Send(ctx context.Context, e Entry) error {
	return t.client.XAdd(ctx, &redis.XAddArgs{
		Stream: t.stream,
		MaxLen: t.maxLen,
		Approx: t.maxLen > 0,
		Values: map[string]any{
			"sequence_id": strconv.FormatInt(e.SequenceID, 10),
			"type":        e.Type,
			"ts":          strconv.FormatInt(e.TS, 10),
			"data":        e.Data,
		},
	}).Err()
}
