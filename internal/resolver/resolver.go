// Package resolver executes reads and transactional writes addressed by
// resource locators.
package resolver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/quickswitch"
	"github.com/matheus3301/imstore/internal/route"
	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
	"github.com/matheus3301/imstore/internal/sync"
	"go.uber.org/zap"
)

var (
	// ErrConflictingKey is returned when a write sets a column the locator
	// already determines.
	ErrConflictingKey = errors.New("conflicting key")

	// ErrUnsupported is returned when a route exists but does not accept the
	// requested operation.
	ErrUnsupported = errors.New("unsupported operation")
)

// Notifier receives canonical change notifications after commit.
type Notifier interface {
	Notify(locators ...string)
}

// Resolver is the single read/write entry point over the store.
type Resolver struct {
	db     *store.DB
	routes *route.Table
	bulk   *sync.Engine
	notify Notifier
	logger *zap.Logger
}

// New creates a resolver over db. n may be nil.
func New(db *store.DB, n Notifier, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		db:     db,
		routes: route.NewTable(),
		bulk:   sync.NewEngine(logger.Named("sync")),
		notify: n,
		logger: logger,
	}
}

func (r *Resolver) changed(locators ...string) {
	if r.notify == nil {
		return
	}
	r.notify.Notify(locators...)
}

func (r *Resolver) match(locator string, o op) (route.Route, target, error) {
	rt, err := r.routes.Match(locator)
	if err != nil {
		return rt, target{}, err
	}
	t, ok := targetFor(rt)
	if !ok || !t.allows(o) {
		return rt, target{}, fmt.Errorf("%w: cannot %s %q", ErrUnsupported, o, rt.Locator)
	}
	return rt, t, nil
}

func (o op) String() string {
	switch o {
	case opRead:
		return "query"
	case opInsert:
		return "insert into"
	case opUpdate:
		return "update"
	case opDelete:
		return "delete"
	}
	return "op(" + strconv.Itoa(int(o)) + ")"
}

// Type returns the content type of locator.
func (r *Resolver) Type(locator string) (string, error) {
	rt, err := r.routes.Match(locator)
	if err != nil {
		return "", err
	}
	return rt.ContentType(), nil
}

// Query runs a read. The returned cursor's Notify names the locator to
// watch for changes to its rows. Grouping is fixed by the route; sort and
// limit are the caller's unless the route forces them.
func (r *Resolver) Query(ctx context.Context, locator string, spec query.Spec) (*query.Cursor, error) {
	rt, t, err := r.match(locator, opRead)
	if err != nil {
		return nil, err
	}
	if len(spec.GroupBy) > 0 {
		return nil, fmt.Errorf("%w: %q does not accept grouping", query.ErrInvalidQuery, rt.Locator)
	}
	spec.GroupBy = t.groupBy
	if t.orderBy != nil {
		spec.OrderBy = t.orderBy
	}
	if t.limit > 0 {
		spec.Limit = t.limit
	}

	q, args, err := query.Select(t.view, spec, query.And(t.where, t.readWhere))
	if err != nil {
		return nil, err
	}
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", rt.Locator, err)
	}
	return query.NewCursor(rows, rt.Notify())
}

// Insert creates one row, or runs a bulk or seeding operation, and returns
// the locator of what was created. An empty locator with a nil error means
// nothing was created.
func (r *Resolver) Insert(ctx context.Context, locator string, vals query.Values) (string, error) {
	rt, err := r.routes.Match(locator)
	if err != nil {
		return "", err
	}
	switch rt.Kind {
	case route.BulkContacts:
		return r.insertBulkContacts(ctx, rt, vals)
	case route.SeedPresence:
		return r.seedPresence(ctx, rt)
	}

	rt, t, err := r.match(locator, opInsert)
	if err != nil {
		return "", err
	}
	vals, err = inject(vals, t.scope)
	if err != nil {
		return "", err
	}
	chat := t.table == schema.Chats
	if chat {
		vals["shortcut"] = schema.NoShortcut
	}
	table, _ := schema.Lookup(t.table)
	q, args, err := query.Insert(table, vals, t.replace)
	if err != nil {
		return "", err
	}

	var created string
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return store.Classify(err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if chat {
			if _, err := quickswitch.Assign(ctx, tx, id); err != nil {
				return err
			}
		}
		created = itemLocator(t.table, id, vals)
		return nil
	})
	if err != nil {
		return "", err
	}
	if created != "" {
		r.changed(rt.Notify())
	}
	return created, nil
}

// Update applies vals to the rows the locator and where select and returns
// how many changed. Bulk locators merge whole batches instead.
func (r *Resolver) Update(ctx context.Context, locator string, vals query.Values, where query.Expr) (int64, error) {
	rt, err := r.routes.Match(locator)
	if err != nil {
		return 0, err
	}
	switch rt.Kind {
	case route.BulkContacts:
		return r.updateBulkContacts(ctx, rt, vals, where)
	case route.BulkPresence:
		return r.updateBulkPresence(ctx, rt, vals, where)
	}

	rt, t, err := r.match(locator, opUpdate)
	if err != nil {
		return 0, err
	}
	for _, col := range t.protected {
		if vals.Has(col) {
			return 0, fmt.Errorf("%w: %q sets %s", ErrConflictingKey, rt.Locator, col)
		}
	}
	table, _ := schema.Lookup(t.table)
	q, args, err := query.Update(table, vals, query.And(t.where, where))
	if err != nil {
		return 0, err
	}

	var n int64
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return store.Classify(err)
		}
		n, _ = res.RowsAffected()
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.changed(rt.Notify())
	}
	return n, nil
}

// Delete removes the rows the locator and where select and returns how many
// went. Deleting contacts also removes their presence, chat and group rows.
// Deleting chats hands freed shortcut keys to the most recent unassigned
// chats.
func (r *Resolver) Delete(ctx context.Context, locator string, where query.Expr) (int64, error) {
	rt, t, err := r.match(locator, opDelete)
	if err != nil {
		return 0, err
	}
	table, _ := schema.Lookup(t.table)
	q, args, err := query.Delete(table, query.And(t.where, where))
	if err != nil {
		return 0, err
	}

	var (
		n         int64
		freedChat bool
	)
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return store.Classify(err)
		}
		n, _ = res.RowsAffected()
		if n > 0 && t.table == schema.Contacts {
			var id int64
			if rt.Kind == route.Contact {
				id = rt.ID
			}
			freedChat, err = cleanupContacts(ctx, tx, id)
			return err
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	r.changed(rt.Notify())

	if t.table == schema.Chats || freedChat {
		r.backfill(ctx)
	}
	return n, nil
}

// backfill runs after the deleting transaction has committed and fills
// every freed key, one most-recent unassigned chat at a time. A failure
// leaves keys free until the next chat is created or deleted.
func (r *Resolver) backfill(ctx context.Context) {
	moved := 0
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		for {
			chatID, key, err := quickswitch.Backfill(ctx, tx)
			if err != nil {
				return err
			}
			if chatID == 0 {
				return nil
			}
			moved++
			r.logger.Debug("quick switch backfilled", zap.Int64("chat", chatID), zap.Int("key", key))
		}
	})
	if err != nil {
		r.logger.Warn("quick switch backfill failed", zap.Error(err))
		return
	}
	if moved > 0 {
		r.changed(route.NotifyContacts)
	}
}

// inject copies vals with the path values added. Setting a path-derived
// column explicitly is a conflict even when the values agree.
func inject(vals query.Values, scope query.Values) (query.Values, error) {
	out := vals.Clone()
	for col, v := range scope {
		if out.Has(col) {
			return nil, fmt.Errorf("%w: %s comes from the locator", ErrConflictingKey, col)
		}
		out[col] = v
	}
	return out, nil
}

var itemPrefix = map[string]string{
	schema.Providers:                "providers",
	schema.Accounts:                 "accounts",
	schema.Contacts:                 "contacts",
	schema.ContactList:              "contactLists",
	schema.BlockedList:              "blockedList",
	schema.ContactsEtag:             "contactsEtag",
	schema.Messages:                 "messages",
	schema.GroupMessages:            "groupMessages",
	schema.GroupMembers:             "groupMember",
	schema.Invitations:              "invitations",
	schema.Avatars:                  "avatars",
	schema.SessionCookies:           "sessionCookies",
	schema.OutgoingQueue:            "outgoingQueue",
	schema.BrandingResourceMapCache: "brandingResourceMapCache",
	schema.Presence:                 "presence",
	schema.Chats:                    "chats",
}

// itemLocator names a freshly written row. Presence and chats are addressed
// by contact, settings by provider and name, statuses by account.
func itemLocator(table string, id int64, vals query.Values) string {
	switch table {
	case schema.Presence, schema.Chats:
		base := itemPrefix[table]
		if c, ok := vals.Int64("contact_id"); ok {
			return route.Locator(base, strconv.FormatInt(c, 10))
		}
		return base
	case schema.ProviderSettings:
		p, ok := vals.Int64("provider")
		name, _ := vals["name"].(string)
		if !ok || name == "" {
			return route.NotifySettings
		}
		segs := append([]string{"providerSettings", strconv.FormatInt(p, 10)}, strings.Split(name, "/")...)
		return route.Locator(segs...)
	case schema.AccountStatus:
		if a, ok := vals.Int64("account"); ok {
			return route.Locator("accountStatus", strconv.FormatInt(a, 10))
		}
		return "accountStatus"
	case schema.LastSequenceID:
		return route.NotifyLastSequence
	}
	return route.Locator(itemPrefix[table], strconv.FormatInt(id, 10))
}
