// Package status tracks per-account connection state and persists it to
// the account status table.
package status

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/schema"
	"go.uber.org/zap"
)

// ErrInvalidTransition is returned for a connection state change the
// machine does not allow.
var ErrInvalidTransition = errors.New("invalid transition")

// ErrInvalidPresence is returned for a presence mode outside the known range.
var ErrInvalidPresence = errors.New("invalid presence mode")

// Conn is an account connection state, stored as its integer code.
type Conn int

const (
	Offline Conn = iota
	Connecting
	Suspended
	Online
)

func (c Conn) String() string {
	switch c {
	case Offline:
		return "OFFLINE"
	case Connecting:
		return "CONNECTING"
	case Suspended:
		return "SUSPENDED"
	case Online:
		return "ONLINE"
	}
	return "Conn(" + strconv.Itoa(int(c)) + ")"
}

// ParseConn parses a state name as printed by String, case-insensitively.
func ParseConn(name string) (Conn, error) {
	for _, c := range []Conn{Offline, Connecting, Suspended, Online} {
		if strings.EqualFold(name, c.String()) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown connection state %q", name)
}

// validTransitions defines allowed state transitions.
var validTransitions = map[Conn][]Conn{
	Offline:    {Connecting},
	Connecting: {Online, Suspended, Offline},
	Online:     {Suspended, Offline},
	Suspended:  {Connecting, Offline},
}

// Writer is the part of the store the tracker writes through.
type Writer interface {
	Insert(ctx context.Context, locator string, vals query.Values) (string, error)
	Update(ctx context.Context, locator string, vals query.Values, where query.Expr) (int64, error)
}

type account struct {
	conn     Conn
	presence int
}

// Tracker enforces connection state transitions per account. Accounts it
// has not seen are Offline.
type Tracker struct {
	mu       sync.Mutex
	w        Writer
	accounts map[int64]account
	logger   *zap.Logger
}

// NewTracker creates a tracker writing through w.
func NewTracker(w Writer, logger *zap.Logger) *Tracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tracker{
		w:        w,
		accounts: make(map[int64]account),
		logger:   logger,
	}
}

// Current returns the connection state of acct.
func (t *Tracker) Current(acct int64) Conn {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.accounts[acct].conn
}

// Transition moves acct to a new connection state and persists it. Going
// offline also resets the account presence to offline.
func (t *Tracker) Transition(ctx context.Context, acct int64, to Conn) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.accounts[acct]
	if !slices.Contains(validTransitions[cur.conn], to) {
		return fmt.Errorf("%w: account %d from %s to %s", ErrInvalidTransition, acct, cur.conn, to)
	}
	next := account{conn: to, presence: cur.presence}
	if to == Offline {
		next.presence = schema.Offline
	}
	if err := t.persist(ctx, acct, next); err != nil {
		return err
	}
	t.accounts[acct] = next
	t.logger.Info("account status changed",
		zap.Int64("account", acct),
		zap.Stringer("from", cur.conn),
		zap.Stringer("to", to))
	return nil
}

// SetPresence records the account's own presence mode. The account must be
// online.
func (t *Tracker) SetPresence(ctx context.Context, acct int64, mode int) error {
	if mode < schema.Offline || mode > schema.Available {
		return fmt.Errorf("%w: %d", ErrInvalidPresence, mode)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	cur := t.accounts[acct]
	if cur.conn != Online {
		return fmt.Errorf("%w: account %d is %s", ErrInvalidTransition, acct, cur.conn)
	}
	cur.presence = mode
	if err := t.persist(ctx, acct, cur); err != nil {
		return err
	}
	t.accounts[acct] = cur
	return nil
}

// Reset marks every stored account status offline. Called on daemon start.
func (t *Tracker) Reset(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	n, err := t.w.Update(ctx, "accountStatus", query.Values{
		"conn_status":     int64(Offline),
		"presence_status": int64(schema.Offline),
	}, query.Expr{})
	if err != nil {
		return fmt.Errorf("reset account status: %w", err)
	}
	clear(t.accounts)
	t.logger.Info("account statuses reset", zap.Int64("rows", n))
	return nil
}

func (t *Tracker) persist(ctx context.Context, acct int64, a account) error {
	_, err := t.w.Insert(ctx, "accountStatus/"+strconv.FormatInt(acct, 10), query.Values{
		"conn_status":     int64(a.conn),
		"presence_status": int64(a.presence),
	})
	if err != nil {
		return fmt.Errorf("persist account %d status: %w", acct, err)
	}
	return nil
}
