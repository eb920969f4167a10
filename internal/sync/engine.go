// Package sync merges roster and presence batches from an external source
// into the store.
package sync

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
	"go.uber.org/zap"
)

// ErrLengthMismatch is returned when parallel batch lists differ in length.
// Nothing is written when it is returned.
var ErrLengthMismatch = errors.New("length mismatch")

// Contacts is a roster batch in parallel-list form. Optional lists may be
// nil; when set they must be as long as Usernames.
type Contacts struct {
	Provider int64
	Account  int64
	List     int64 // contact list id, 0 for none

	Usernames          []string
	Nicknames          []string
	Types              []int64
	SubscriptionStatus []int64
	SubscriptionType   []int64
	QuickContact       []int64
	Rejected           []int64

	SkipPresence bool
}

func (c Contacts) validate() error {
	n := len(c.Usernames)
	if len(c.Nicknames) != n {
		return fmt.Errorf("%w: %d usernames, %d nicknames", ErrLengthMismatch, n, len(c.Nicknames))
	}
	for name, l := range map[string]int{
		"types":               len(c.Types),
		"subscription_status": len(c.SubscriptionStatus),
		"subscription_type":   len(c.SubscriptionType),
		"qc":                  len(c.QuickContact),
		"rejected":            len(c.Rejected),
	} {
		if l != 0 && l != n {
			return fmt.Errorf("%w: %d usernames, %d %s", ErrLengthMismatch, n, l, name)
		}
	}
	return nil
}

// row returns the contact columns for entry i.
func (c Contacts) row(i int) query.Values {
	v := query.Values{
		"username": c.Usernames[i],
		"nickname": c.Nicknames[i],
	}
	if c.Types != nil {
		v["type"] = c.Types[i]
	}
	if c.SubscriptionStatus != nil {
		v["subscription_status"] = c.SubscriptionStatus[i]
	}
	if c.SubscriptionType != nil {
		v["subscription_type"] = c.SubscriptionType[i]
	}
	if c.QuickContact != nil {
		v["qc"] = c.QuickContact[i]
	}
	if c.Rejected != nil {
		v["rejected"] = c.Rejected[i]
	}
	return v
}

// Presence is a presence batch in parallel-list form.
type Presence struct {
	Account int64

	Usernames   []string
	Priorities  []int64
	Modes       []int64
	Statuses    []string
	ClientTypes []int64
	Resources   []string
}

func (p Presence) validate() error {
	n := len(p.Usernames)
	for name, l := range map[string]int{
		"priority":     len(p.Priorities),
		"mode":         len(p.Modes),
		"status":       len(p.Statuses),
		"client_type":  len(p.ClientTypes),
		"jid_resource": len(p.Resources),
	} {
		if l != 0 && l != n {
			return fmt.Errorf("%w: %d usernames, %d %s", ErrLengthMismatch, n, l, name)
		}
	}
	if p.Priorities == nil && p.Modes == nil && p.Statuses == nil && p.ClientTypes == nil && p.Resources == nil {
		return fmt.Errorf("%w: presence batch sets no fields", query.ErrInvalidQuery)
	}
	return nil
}

// Engine runs bulk merges inside a caller-owned transaction.
type Engine struct {
	logger *zap.Logger
	yield  func()
}

// NewEngine creates a new sync engine.
func NewEngine(logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		logger: logger,
		yield:  runtime.Gosched,
	}
}

var (
	contactsTable, _ = schema.Lookup(schema.Contacts)
	presenceTable, _ = schema.Lookup(schema.Presence)
)

// InsertContacts inserts every contact of the batch as a new row and, unless
// c.SkipPresence is set, seeds an offline presence row for each. It returns
// the number of contacts inserted.
func (e *Engine) InsertContacts(ctx context.Context, tx store.Querier, c Contacts) (int64, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}

	var sum int64
	for i := range c.Usernames {
		vals := c.row(i)
		vals["provider"] = c.Provider
		vals["account"] = c.Account
		if c.List != 0 {
			vals["contact_list"] = c.List
		}
		q, args, err := query.Insert(contactsTable, vals, false)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("insert contact %q: %w", c.Usernames[i], store.Classify(err))
		}
		id, err := res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("insert contact %q: %w", c.Usernames[i], err)
		}
		sum++

		if !c.SkipPresence {
			if _, err := tx.ExecContext(ctx,
				`INSERT OR IGNORE INTO presence (contact_id, mode) VALUES (?, ?)`,
				id, schema.Offline); err != nil {
				return 0, fmt.Errorf("seed presence for %q: %w", c.Usernames[i], err)
			}
		}
		e.yield()
	}
	return sum, nil
}

// UpdateContacts updates each contact of the batch matched by username
// within filter (and the batch account, when set). Entries that match no
// row are logged and skipped. It returns the number of rows changed. A
// batch with neither an account nor a filter is rejected.
func (e *Engine) UpdateContacts(ctx context.Context, tx store.Querier, c Contacts, filter query.Expr) (int64, error) {
	if err := c.validate(); err != nil {
		return 0, err
	}
	if c.Account == 0 && filter.IsZero() {
		return 0, fmt.Errorf("%w: bulk contact update needs an account or a filter", query.ErrInvalidQuery)
	}

	var scope query.Expr
	if c.Account != 0 {
		scope = query.Eq("account", c.Account)
	}

	var sum int64
	for i, username := range c.Usernames {
		vals := c.row(i)
		delete(vals, "username")
		where := query.And(filter, scope, query.Eq("username", username))
		q, args, err := query.Update(contactsTable, vals, where)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("update contact %q: %w", username, store.Classify(err))
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			e.logger.Warn("bulk contact update matched no row", zap.String("username", username))
		}
		sum += n
		e.yield()
	}
	return sum, nil
}

// UpdatePresence applies a presence batch. A row matches when its contact
// belongs to the batch account with a case-insensitively equal username and
// either its priority does not exceed the new one, it has no priority, or
// it carries the same resource. That predicate can touch several session
// rows of one contact. Entries matching nothing are logged and skipped.
func (e *Engine) UpdatePresence(ctx context.Context, tx store.Querier, p Presence, filter query.Expr) (int64, error) {
	if err := p.validate(); err != nil {
		return 0, err
	}

	var sum int64
	for i, username := range p.Usernames {
		var priority int64
		if p.Priorities != nil {
			priority = p.Priorities[i]
		}
		var resource string
		if p.Resources != nil {
			resource = p.Resources[i]
		}

		vals := query.Values{}
		if p.Modes != nil {
			vals["mode"] = p.Modes[i]
		}
		if p.Priorities != nil {
			vals["priority"] = priority
		}
		if p.Statuses != nil {
			vals["status"] = p.Statuses[i]
		}
		if p.ClientTypes != nil {
			vals["client_type"] = p.ClientTypes[i]
		}
		if resource != "" {
			vals["jid_resource"] = resource
		}
		if len(vals) == 0 {
			e.logger.Warn("bulk presence entry sets no fields", zap.String("username", username))
			continue
		}

		where := query.And(
			filter,
			query.InSelect("contact_id",
				`SELECT id FROM contacts WHERE account = ? AND username LIKE ? ESCAPE '\'`,
				p.Account, query.EscapeLike(username)),
			query.Or(
				query.Le("priority", priority),
				query.IsNull("priority"),
				query.Eq("jid_resource", resource),
			),
		)
		q, args, err := query.Update(presenceTable, vals, where)
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return 0, fmt.Errorf("update presence %q: %w", username, err)
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			e.logger.Warn("bulk presence update matched no row", zap.String("username", username))
		}
		sum += n
		e.yield()
	}
	return sum, nil
}
