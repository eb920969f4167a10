package resolver

import (
	"context"
	"database/sql"

	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/route"
	"github.com/matheus3301/imstore/internal/sync"
	"go.uber.org/zap"
)

func (r *Resolver) insertBulkContacts(ctx context.Context, rt route.Route, vals query.Values) (string, error) {
	batch, err := sync.ContactsFromValues(vals)
	if err != nil {
		return "", err
	}
	var n int64
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		n, err = r.bulk.InsertContacts(ctx, tx, batch)
		return err
	})
	if err != nil {
		return "", err
	}
	r.logger.Info("bulk contacts inserted", zap.Int64("account", batch.Account), zap.Int64("rows", n))
	if n == 0 {
		return "", nil
	}
	r.changed(rt.Notify())
	return route.NotifyContacts, nil
}

func (r *Resolver) updateBulkContacts(ctx context.Context, rt route.Route, vals query.Values, where query.Expr) (int64, error) {
	batch, err := sync.ContactsFromValues(vals)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		n, err = r.bulk.UpdateContacts(ctx, tx, batch, where)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.changed(rt.Notify())
	}
	return n, nil
}

func (r *Resolver) updateBulkPresence(ctx context.Context, rt route.Route, vals query.Values, where query.Expr) (int64, error) {
	batch, err := sync.PresenceFromValues(vals)
	if err != nil {
		return 0, err
	}
	var n int64
	err = r.db.WithTx(ctx, func(tx *sql.Tx) error {
		n, err = r.bulk.UpdatePresence(ctx, tx, batch, where)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		r.changed(rt.Notify())
	}
	return n, nil
}

func (r *Resolver) seedPresence(ctx context.Context, rt route.Route) (string, error) {
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := r.bulk.SeedPresence(ctx, tx, rt.Account)
		return err
	})
	if err != nil {
		return "", err
	}
	r.changed(rt.Notify())
	return "presence", nil
}
