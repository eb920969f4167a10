package sync

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "im.db"), filepath.Join(dir, "im.volatile.db"), store.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func count(t *testing.T, db *store.DB, q string, args ...any) int {
	t.Helper()
	var n int
	if err := db.QueryRow(q, args...).Scan(&n); err != nil {
		t.Fatalf("%s: %v", q, err)
	}
	return n
}

func insert(t *testing.T, db *store.DB, e *Engine, c Contacts) int64 {
	t.Helper()
	var n int64
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		n, err = e.InsertContacts(context.Background(), tx, c)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestInsertContactsSeedsPresence(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)

	yields := 0
	e.yield = func() { yields++ }

	n := insert(t, db, e, Contacts{
		Provider:  1,
		Account:   2,
		List:      3,
		Usernames: []string{"a@x", "b@x", "c@x"},
		Nicknames: []string{"A", "B", "C"},
		Types:     []int64{schema.ContactNormal, schema.ContactNormal, schema.ContactPinned},
	})
	if n != 3 {
		t.Fatalf("inserted = %d, want 3", n)
	}
	if yields != 3 {
		t.Errorf("yields = %d, want 3", yields)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM contacts WHERE account = 2 AND contact_list = 3`); got != 3 {
		t.Errorf("contacts = %d, want 3", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM presence WHERE mode = ?`, schema.Offline); got != 3 {
		t.Errorf("offline presence rows = %d, want 3", got)
	}
	if got := count(t, db, `SELECT type FROM contacts WHERE username = 'c@x'`); got != schema.ContactPinned {
		t.Errorf("type = %d, want %d", got, schema.ContactPinned)
	}
}

func TestInsertContactsSkipPresence(t *testing.T) {
	db := testDB(t)
	insert(t, db, NewEngine(nil), Contacts{
		Account:      2,
		Usernames:    []string{"a@x"},
		Nicknames:    []string{"A"},
		SkipPresence: true,
	})
	if got := count(t, db, `SELECT COUNT(*) FROM presence`); got != 0 {
		t.Errorf("presence rows = %d, want 0", got)
	}
}

func TestInsertContactsLengthMismatchWritesNothing(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)

	cases := []Contacts{
		{Usernames: []string{"a", "b"}, Nicknames: []string{"A"}},
		{Usernames: []string{"a"}, Nicknames: []string{"A"}, Types: []int64{0, 1}},
	}
	for _, c := range cases {
		err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
			_, err := e.InsertContacts(context.Background(), tx, c)
			return err
		})
		if !errors.Is(err, ErrLengthMismatch) {
			t.Errorf("err = %v, want ErrLengthMismatch", err)
		}
	}
	if got := count(t, db, `SELECT COUNT(*) FROM contacts`); got != 0 {
		t.Errorf("contacts = %d, want 0", got)
	}
}

func TestUpdateContactsRequiresScope(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)
	for _, acct := range []int64{2, 3} {
		insert(t, db, e, Contacts{
			Account:   acct,
			Usernames: []string{"a@x"},
			Nicknames: []string{"A"},
		})
	}

	update := func(c Contacts, filter query.Expr) (int64, error) {
		var n int64
		err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
			var err error
			n, err = e.UpdateContacts(context.Background(), tx, c, filter)
			return err
		})
		return n, err
	}

	_, err := update(Contacts{Usernames: []string{"a@x"}, Nicknames: []string{"Alice"}}, query.Expr{})
	if !errors.Is(err, query.ErrInvalidQuery) {
		t.Fatalf("unscoped update error = %v, want ErrInvalidQuery", err)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM contacts WHERE nickname = 'Alice'`); got != 0 {
		t.Errorf("renamed contacts = %d, want 0", got)
	}

	n, err := update(Contacts{Usernames: []string{"a@x"}, Nicknames: []string{"Alice"}}, query.Eq("account", int64(3)))
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM contacts WHERE nickname = 'Alice' AND account = 3`); got != 1 {
		t.Errorf("renamed contacts in account 3 = %d, want 1", got)
	}
}

func TestUpdateContactsSkipsUnknown(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)
	insert(t, db, e, Contacts{
		Account:   2,
		Usernames: []string{"a@x", "b@x"},
		Nicknames: []string{"A", "B"},
	})

	var n int64
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		n, err = e.UpdateContacts(context.Background(), tx, Contacts{
			Account:   2,
			Usernames: []string{"a@x", "ghost@x"},
			Nicknames: []string{"Alice", "Ghost"},
			Types:     []int64{schema.ContactBlocked, schema.ContactNormal},
		}, query.Expr{})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("updated = %d, want 1", n)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM contacts WHERE nickname = 'Alice' AND type = ?`, schema.ContactBlocked); got != 1 {
		t.Errorf("renamed contacts = %d, want 1", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM contacts`); got != 2 {
		t.Errorf("contacts = %d, want 2", got)
	}
}

func TestUpdatePresenceTieBreak(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)
	insert(t, db, e, Contacts{
		Account:      2,
		Usernames:    []string{"Bob@x"},
		Nicknames:    []string{"Bob"},
		SkipPresence: true,
	})
	var id int64
	if err := db.QueryRow(`SELECT id FROM contacts`).Scan(&id); err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(`INSERT INTO presence (contact_id, jid_resource, priority, mode) VALUES (?, 'phone', 10, 0)`, id); err != nil {
		t.Fatal(err)
	}

	update := func(p Presence) int64 {
		t.Helper()
		var n int64
		err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
			var err error
			n, err = e.UpdatePresence(context.Background(), tx, p, query.Expr{})
			return err
		})
		if err != nil {
			t.Fatal(err)
		}
		return n
	}

	// Lower priority from another resource loses.
	if n := update(Presence{
		Account:    2,
		Usernames:  []string{"bob@x"},
		Priorities: []int64{5},
		Modes:      []int64{schema.Available},
		Resources:  []string{"desktop"},
	}); n != 0 {
		t.Errorf("lower priority updated %d rows, want 0", n)
	}

	// Same resource wins regardless of priority.
	if n := update(Presence{
		Account:    2,
		Usernames:  []string{"bob@x"},
		Priorities: []int64{1},
		Modes:      []int64{schema.Away},
		Statuses:   []string{"lunch"},
		Resources:  []string{"phone"},
	}); n != 1 {
		t.Errorf("same resource updated %d rows, want 1", n)
	}
	if got := count(t, db, `SELECT mode FROM presence`); got != schema.Away {
		t.Errorf("mode = %d, want %d", got, schema.Away)
	}

	// Higher or equal priority wins.
	if n := update(Presence{
		Account:    2,
		Usernames:  []string{"BOB@X"},
		Priorities: []int64{20},
		Modes:      []int64{schema.Available},
		Resources:  []string{"desktop"},
	}); n != 1 {
		t.Errorf("higher priority updated %d rows, want 1", n)
	}
	var resource string
	if err := db.QueryRow(`SELECT jid_resource FROM presence`).Scan(&resource); err != nil {
		t.Fatal(err)
	}
	if resource != "desktop" {
		t.Errorf("resource = %q, want desktop", resource)
	}
}

func TestUpdatePresenceLikeIsLiteral(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)
	insert(t, db, e, Contacts{
		Account:   2,
		Usernames: []string{"ab@x"},
		Nicknames: []string{"AB"},
	})

	var n int64
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		n, err = e.UpdatePresence(context.Background(), tx, Presence{
			Account:   2,
			Usernames: []string{"a_@x", "%"},
			Modes:     []int64{schema.Available, schema.Available},
		}, query.Expr{})
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("wildcard usernames updated %d rows, want 0", n)
	}
}

func TestUpdatePresenceRequiresFields(t *testing.T) {
	e := NewEngine(nil)
	_, err := e.UpdatePresence(context.Background(), nil, Presence{Usernames: []string{"a"}}, query.Expr{})
	if !errors.Is(err, query.ErrInvalidQuery) {
		t.Errorf("err = %v, want ErrInvalidQuery", err)
	}
	_, err = e.UpdatePresence(context.Background(), nil, Presence{
		Usernames: []string{"a", "b"},
		Modes:     []int64{1},
	}, query.Expr{})
	if !errors.Is(err, ErrLengthMismatch) {
		t.Errorf("err = %v, want ErrLengthMismatch", err)
	}
}

func TestSeedPresence(t *testing.T) {
	db := testDB(t)
	e := NewEngine(nil)
	insert(t, db, e, Contacts{
		Account:      2,
		Usernames:    []string{"a@x", "b@x"},
		Nicknames:    []string{"A", "B"},
		SkipPresence: true,
	})
	insert(t, db, e, Contacts{
		Account:      7,
		Usernames:    []string{"other@x"},
		Nicknames:    []string{"O"},
		SkipPresence: true,
	})
	if _, err := db.Exec(`
		INSERT INTO presence (contact_id, mode, status)
		SELECT id, ?, 'busy' FROM contacts WHERE username = 'a@x'`, schema.DoNotDisturb); err != nil {
		t.Fatal(err)
	}

	var created int64
	err := db.WithTx(context.Background(), func(tx *sql.Tx) error {
		var err error
		created, err = e.SeedPresence(context.Background(), tx, 2)
		return err
	})
	if err != nil {
		t.Fatal(err)
	}
	if created != 1 {
		t.Errorf("created = %d, want 1", created)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM presence WHERE mode = ? AND status = ''`, schema.Offline); got != 2 {
		t.Errorf("offline rows = %d, want 2", got)
	}
	if got := count(t, db, `SELECT COUNT(*) FROM presence`); got != 2 {
		t.Errorf("presence rows = %d, want 2 (other account untouched)", got)
	}
}

func TestContactsFromValues(t *testing.T) {
	c, err := ContactsFromValues(query.Values{
		"account":       int64(2),
		"provider":      float64(1),
		"username":      []any{"a", "b"},
		"nickname":      []any{"A", "B"},
		"type":          []any{float64(0), "5"},
		"qc":            []int64{1, 0},
		"skip_presence": true,
	})
	if err != nil {
		t.Fatal(err)
	}
	if c.Account != 2 || c.Provider != 1 || !c.SkipPresence {
		t.Errorf("shared fields = %+v", c)
	}
	if len(c.Types) != 2 || c.Types[1] != 5 {
		t.Errorf("types = %v", c.Types)
	}
	if c.SubscriptionStatus != nil {
		t.Errorf("absent list decoded as %v", c.SubscriptionStatus)
	}

	if _, err := ContactsFromValues(query.Values{"nickname": []any{"A"}}); !errors.Is(err, query.ErrInvalidQuery) {
		t.Errorf("missing usernames err = %v", err)
	}
	if _, err := PresenceFromValues(query.Values{"username": "a"}); !errors.Is(err, query.ErrInvalidQuery) {
		t.Errorf("scalar usernames err = %v", err)
	}
}
