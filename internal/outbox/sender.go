// Package outbox drains the outgoing reliable-message queue to a transport
// with at-least-once delivery.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/matheus3301/imstore/internal/query"
	"go.uber.org/zap"
)

// ErrNoTransport is returned by Flush on a sender built without a
// transport. Such a sender can still Enqueue.
var ErrNoTransport = errors.New("no outgoing transport")

// Entry is one queued outgoing message.
type Entry struct {
	ID         int64
	SequenceID int64
	Type       string
	TS         int64
	Data       []byte
}

// Transport delivers an entry. A nil error means the entry may be dropped
// from the queue.
type Transport interface {
	Send(ctx context.Context, e Entry) error
}

// Resolver is the part of the store the sender needs.
type Resolver interface {
	Query(ctx context.Context, locator string, spec query.Spec) (*query.Cursor, error)
	Insert(ctx context.Context, locator string, vals query.Values) (string, error)
	Delete(ctx context.Context, locator string, where query.Expr) (int64, error)
}

// Options tunes the sender loop.
type Options struct {
	Interval  time.Duration
	BatchSize int
}

// Sender drains the outgoing queue in sequence order.
type Sender struct {
	res       Resolver
	transport Transport
	interval  time.Duration
	batch     int
	logger    *zap.Logger

	mu     sync.Mutex // serializes Enqueue
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSender creates a new outbox sender. transport may be nil; entries are
// then only queued.
func NewSender(res Resolver, transport Transport, opts Options, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Interval <= 0 {
		opts.Interval = 500 * time.Millisecond
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	return &Sender{
		res:       res,
		transport: transport,
		interval:  opts.Interval,
		batch:     opts.BatchSize,
		logger:    logger,
	}
}

// Start begins polling the queue.
func (s *Sender) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx)
}

// Stop stops the sender loop and waits for an in-flight batch.
func (s *Sender) Stop() {
	if s.cancel != nil {
		s.cancel()
		<-s.done
	}
}

func (s *Sender) loop(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := s.Flush(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn("outgoing queue flush stopped", zap.Error(err))
			}
		case <-ctx.Done():
			return
		}
	}
}

// Enqueue appends an entry after both the highest queued and the last
// acknowledged sequence id, and returns its sequence id.
func (s *Sender) Enqueue(ctx context.Context, typ string, data []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	highest, err := s.scalar(ctx, "outgoingQueue/highest")
	if err != nil {
		return 0, err
	}
	last, err := s.scalar(ctx, "lastSequenceId")
	if err != nil {
		return 0, err
	}
	seq := max(highest, last) + 1

	_, err = s.res.Insert(ctx, "outgoingQueue", query.Values{
		"sequence_id": seq,
		"type":        typ,
		"ts":          time.Now().UnixMilli(),
		"data":        data,
	})
	if err != nil {
		return 0, fmt.Errorf("enqueue: %w", err)
	}
	return seq, nil
}

func (s *Sender) scalar(ctx context.Context, locator string) (int64, error) {
	c, err := s.res.Query(ctx, locator, query.Spec{Columns: []string{"sequence_id"}})
	if err != nil {
		return 0, err
	}
	rows, err := c.All()
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := rows[0]["sequence_id"].(int64)
	return n, nil
}

// Flush sends one batch in sequence order and returns how many entries were
// delivered. It stops at the first failed send so later entries never
// overtake it; the failed entry stays queued.
func (s *Sender) Flush(ctx context.Context) (int, error) {
	if s.transport == nil {
		return 0, ErrNoTransport
	}
	pending, err := s.pending(ctx)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range pending {
		if err := s.transport.Send(ctx, e); err != nil {
			s.logger.Error("failed to send outgoing entry", zap.Error(err), zap.Int64("sequence_id", e.SequenceID))
			return sent, fmt.Errorf("send %d: %w", e.SequenceID, err)
		}
		// The watermark goes first so Enqueue never reissues a delivered id.
		if _, err := s.res.Insert(ctx, "lastSequenceId", query.Values{"id": int64(1), "sequence_id": e.SequenceID}); err != nil {
			return sent, fmt.Errorf("record %d: %w", e.SequenceID, err)
		}
		if _, err := s.res.Delete(ctx, "outgoingQueue/"+strconv.FormatInt(e.ID, 10), query.Expr{}); err != nil {
			return sent, fmt.Errorf("dequeue %d: %w", e.SequenceID, err)
		}
		sent++
		s.logger.Debug("outgoing entry sent", zap.Int64("sequence_id", e.SequenceID))
	}
	return sent, nil
}

func (s *Sender) pending(ctx context.Context) ([]Entry, error) {
	c, err := s.res.Query(ctx, "outgoingQueue", query.Spec{
		Columns: []string{"id", "sequence_id", "type", "ts", "data"},
		OrderBy: []query.Order{{Col: "sequence_id"}},
		Limit:   s.batch,
	})
	if err != nil {
		return nil, fmt.Errorf("read outgoing queue: %w", err)
	}
	rows, err := c.All()
	if err != nil {
		return nil, fmt.Errorf("read outgoing queue: %w", err)
	}

	out := make([]Entry, 0, len(rows))
	for _, row := range rows {
		e := Entry{}
		e.ID, _ = row["id"].(int64)
		e.SequenceID, _ = row["sequence_id"].(int64)
		e.TS, _ = row["ts"].(int64)
		switch v := row["type"].(type) {
		case string:
			e.Type = v
		case []byte:
			e.Type = string(v)
		}
		switch v := row["data"].(type) {
		case []byte:
			e.Data = v
		case string:
			e.Data = []byte(v)
		}
		if e.ID == 0 {
			return nil, errors.New("outgoing entry without id")
		}
		out = append(out, e)
	}
	return out, nil
}
