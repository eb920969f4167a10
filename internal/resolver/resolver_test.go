package resolver

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/route"
	"github.com/matheus3301/imstore/internal/schema"
	"github.com/matheus3301/imstore/internal/store"
	"github.com/matheus3301/imstore/internal/sync"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	got []string
}

func (r *recorder) Notify(locators ...string) { r.got = append(r.got, locators...) }

func (r *recorder) reset() { r.got = nil }

func setupResolver(t *testing.T) (*Resolver, *store.DB, *recorder) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "im.db"), filepath.Join(dir, "im.volatile.db"), store.Options{})
	require.NoError(t, err)
	_, err = db.Migrate()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	rec := &recorder{}
	return New(db, rec, nil), db, rec
}

func idOf(t *testing.T, locator string) int64 {
	t.Helper()
	i := strings.LastIndex(locator, "/")
	require.NotEqual(t, -1, i, locator)
	id, err := strconv.ParseInt(locator[i+1:], 10, 64)
	require.NoError(t, err, locator)
	return id
}

func addContact(t *testing.T, r *Resolver, username string, account int64) int64 {
	t.Helper()
	loc, err := r.Insert(context.Background(), route.Locator("contacts", "1", strconv.FormatInt(account, 10)),
		query.Values{"username": username, "nickname": username})
	require.NoError(t, err)
	return idOf(t, loc)
}

func addChat(t *testing.T, r *Resolver, contact, lastMessage int64) {
	t.Helper()
	_, err := r.Insert(context.Background(), "chats",
		query.Values{"contact_id": contact, "last_message_date": lastMessage})
	require.NoError(t, err)
}

func count(t *testing.T, db *store.DB, q string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, db.QueryRow(q, args...).Scan(&n), q)
	return n
}

func rows(t *testing.T, r *Resolver, locator string, spec query.Spec) []query.Row {
	t.Helper()
	c, err := r.Query(context.Background(), locator, spec)
	require.NoError(t, err, locator)
	out, err := c.All()
	require.NoError(t, err)
	return out
}

func shortcutOf(t *testing.T, db *store.DB, contact int64) int {
	t.Helper()
	return count(t, db, `SELECT shortcut FROM chats WHERE contact_id = ?`, contact)
}

func TestDuplicateAccountFails(t *testing.T) {
	r, db, rec := setupResolver(t)
	ctx := context.Background()
	acct := query.Values{"provider": int64(1), "username": "a", "name": "A"}

	loc, err := r.Insert(ctx, "accounts", acct)
	require.NoError(t, err)
	assert.Equal(t, "accounts/"+strconv.FormatInt(idOf(t, loc), 10), loc)
	assert.Equal(t, []string{route.NotifyProviderAcct}, rec.got)

	rec.reset()
	_, err = r.Insert(ctx, "accounts", acct)
	require.ErrorIs(t, err, store.ErrConstraintViolation)
	assert.Empty(t, rec.got)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM accounts`))
}

func TestReplaceOnConflict(t *testing.T) {
	r, db, _ := setupResolver(t)
	ctx := context.Background()
	c := addContact(t, r, "bob@x", 2)

	_, err := r.Insert(ctx, "presence", query.Values{"contact_id": c, "mode": int64(schema.Away)})
	require.NoError(t, err)
	loc, err := r.Insert(ctx, "presence", query.Values{"contact_id": c, "mode": int64(schema.Available)})
	require.NoError(t, err)
	assert.Equal(t, "presence/"+strconv.FormatInt(c, 10), loc)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM presence`))
	assert.Equal(t, schema.Available, count(t, db, `SELECT mode FROM presence`))

	for _, hash := range []string{"h1", "h2"} {
		_, err := r.Insert(ctx, "avatarsBy/1/2", query.Values{"contact": "bob@x", "hash": hash, "data": []byte{1, 2}})
		require.NoError(t, err)
	}
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM avatars`))

	addChat(t, r, c, 10)
	addChat(t, r, c, 20)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM chats`))
	assert.Equal(t, 0, shortcutOf(t, db, c))
}

func TestTenChatsGetShortcuts(t *testing.T) {
	r, db, _ := setupResolver(t)
	var contacts []int64
	for i := 0; i < 11; i++ {
		c := addContact(t, r, "user"+strconv.Itoa(i), 2)
		addChat(t, r, c, int64(i))
		contacts = append(contacts, c)
	}

	want := []int{0, 9, 8, 7, 6, 5, 4, 3, 2, 1}
	for i, key := range want {
		assert.Equal(t, key, shortcutOf(t, db, contacts[i]), "chat %d", i)
	}
	assert.Equal(t, schema.NoShortcut, shortcutOf(t, db, contacts[10]))
	assert.Equal(t, 10, count(t, db, `SELECT COUNT(DISTINCT shortcut) FROM chats WHERE shortcut >= 0`))
}

func TestDeleteChatBackfillsSlot(t *testing.T) {
	r, db, rec := setupResolver(t)
	ctx := context.Background()

	var contacts []int64
	for i := 0; i < 10; i++ {
		c := addContact(t, r, "user"+strconv.Itoa(i), 2)
		addChat(t, r, c, 100)
		contacts = append(contacts, c)
	}
	// Two unassigned chats tie on last message date; a third is older.
	late1 := addContact(t, r, "late1", 2)
	late2 := addContact(t, r, "late2", 2)
	old := addContact(t, r, "old", 2)
	addChat(t, r, late1, 500)
	addChat(t, r, late2, 500)
	addChat(t, r, old, 1)
	require.Equal(t, schema.NoShortcut, shortcutOf(t, db, late1))

	rec.reset()
	n, err := r.Delete(ctx, route.Locator("chats", strconv.FormatInt(contacts[0], 10)), query.Expr{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Contains(t, rec.got, route.NotifyContacts)

	assert.Equal(t, 0, shortcutOf(t, db, late1))
	assert.Equal(t, schema.NoShortcut, shortcutOf(t, db, late2))
	assert.Equal(t, schema.NoShortcut, shortcutOf(t, db, old))
}

func TestBulkChatDeleteFillsEveryFreedSlot(t *testing.T) {
	r, db, rec := setupResolver(t)
	ctx := context.Background()

	var contacts []int64
	for i := 0; i < 13; i++ {
		c := addContact(t, r, "user"+strconv.Itoa(i), 2)
		addChat(t, r, c, int64(100+i))
		contacts = append(contacts, c)
	}
	require.Equal(t, 10, count(t, db, `SELECT COUNT(*) FROM chats WHERE shortcut >= 0`))

	rec.reset()
	n, err := r.Delete(ctx, "chats", query.In("contact_id", contacts[0], contacts[1]))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Contains(t, rec.got, route.NotifyContacts)

	assert.Equal(t, 10, count(t, db, `SELECT COUNT(*) FROM chats WHERE shortcut >= 0`))
	assert.Equal(t, 10, count(t, db, `SELECT COUNT(DISTINCT shortcut) FROM chats WHERE shortcut >= 0`))
	// The two most recent of the three unassigned chats moved in.
	assert.NotEqual(t, schema.NoShortcut, shortcutOf(t, db, contacts[12]))
	assert.NotEqual(t, schema.NoShortcut, shortcutOf(t, db, contacts[11]))
	assert.Equal(t, schema.NoShortcut, shortcutOf(t, db, contacts[10]))
}

func TestDeleteContactCascades(t *testing.T) {
	r, db, _ := setupResolver(t)
	ctx := context.Background()

	keep := addContact(t, r, "keep", 2)
	gone := addContact(t, r, "gone", 2)
	for _, c := range []int64{keep, gone} {
		_, err := r.Insert(ctx, "presence", query.Values{"contact_id": c, "mode": int64(schema.Available)})
		require.NoError(t, err)
		addChat(t, r, c, 1)
		_, err = r.Insert(ctx, route.Locator("groupMembers", strconv.FormatInt(c, 10)), query.Values{"username": "m"})
		require.NoError(t, err)
		_, err = r.Insert(ctx, route.Locator("groupMessagesBy", strconv.FormatInt(c, 10)), query.Values{"body": "hi"})
		require.NoError(t, err)
	}

	n, err := r.Delete(ctx, route.Locator("contacts", strconv.FormatInt(gone, 10)), query.Expr{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	for _, q := range []string{
		`SELECT COUNT(*) FROM presence WHERE contact_id = ?`,
		`SELECT COUNT(*) FROM chats WHERE contact_id = ?`,
		`SELECT COUNT(*) FROM group_members WHERE group_id = ?`,
		`SELECT COUNT(*) FROM group_messages WHERE group_id = ?`,
	} {
		assert.Equal(t, 0, count(t, db, q, gone), q)
		assert.Equal(t, 1, count(t, db, q, keep), q)
	}
}

func TestBulkDeleteContactsRemovesOrphans(t *testing.T) {
	r, db, _ := setupResolver(t)
	ctx := context.Background()

	a := addContact(t, r, "a", 2)
	b := addContact(t, r, "b", 3)
	for _, c := range []int64{a, b} {
		_, err := r.Insert(ctx, "presence", query.Values{"contact_id": c})
		require.NoError(t, err)
		addChat(t, r, c, 1)
	}

	n, err := r.Delete(ctx, "contacts/1/2", query.Expr{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM presence WHERE contact_id = ?`, a))
	assert.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM chats WHERE contact_id = ?`, a))
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM presence WHERE contact_id = ?`, b))

	// The chat freed by the cascade is available again.
	c := addContact(t, r, "c", 3)
	addChat(t, r, c, 1)
	assert.Equal(t, 0, shortcutOf(t, db, c))
}

func TestContactsViewKeepsBareContacts(t *testing.T) {
	r, _, _ := setupResolver(t)
	id := addContact(t, r, "solo", 2)

	got := rows(t, r, "contacts", query.Spec{})
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0]["id"])
	assert.Equal(t, "solo", got[0]["username"])
	for _, col := range []string{"mode", "status", "shortcut", "last_message_date", "avatars_hash", "avatars_data"} {
		assert.Nil(t, got[0][col], col)
	}
}

func TestQueryRouteFilters(t *testing.T) {
	r, _, _ := setupResolver(t)
	ctx := context.Background()

	on := addContact(t, r, "on", 2)
	off := addContact(t, r, "off", 2)
	blocked := addContact(t, r, "blocked", 2)
	other := addContact(t, r, "other", 3)
	_, err := r.Update(ctx, route.Locator("contacts", strconv.FormatInt(blocked, 10)),
		query.Values{"type": int64(schema.ContactBlocked)}, query.Expr{})
	require.NoError(t, err)
	for c, mode := range map[int64]int64{on: schema.Available, off: schema.Offline, blocked: schema.Available, other: schema.Available} {
		_, err := r.Insert(ctx, "presence", query.Values{"contact_id": c, "mode": mode})
		require.NoError(t, err)
	}

	names := func(rs []query.Row) []string {
		var out []string
		for _, row := range rs {
			out = append(out, row["username"].(string))
		}
		return out
	}
	byName := query.Spec{OrderBy: []query.Order{{Col: "username"}}}

	assert.Equal(t, []string{"off", "on"}, names(rows(t, r, "contacts/1/2", byName)))
	assert.Equal(t, []string{"on"}, names(rows(t, r, "contacts/online/1/2", byName)))
	assert.Equal(t, []string{"off"}, names(rows(t, r, "contacts/offline/1/2", byName)))
	assert.Equal(t, []string{"blocked"}, names(rows(t, r, "contacts/blocked", byName)))
	assert.Equal(t, []string{"on"}, names(rows(t, r, "contacts/1/2", query.Spec{Where: query.Eq("mode", schema.Available)})))

	addChat(t, r, on, 5)
	assert.Equal(t, []string{"on"}, names(rows(t, r, "contacts/chatting", byName)))

	counts := rows(t, r, "contacts/onlineCount", query.Spec{Columns: []string{"contact_list", "_count"}})
	require.Len(t, counts, 1)
	assert.Equal(t, int64(1), counts[0]["_count"]) // "other" only: "on" is chatting
}

func TestQueryReportsCanonicalLocator(t *testing.T) {
	r, _, _ := setupResolver(t)
	for _, loc := range []string{"contactsBarebone", "contacts/online/1/2", "presence", "chats/account/2"} {
		c, err := r.Query(context.Background(), loc, query.Spec{})
		require.NoError(t, err, loc)
		assert.Equal(t, route.NotifyContacts, c.Notify, loc)
		require.NoError(t, c.Close())
	}
}

func TestOutgoingQueueHighest(t *testing.T) {
	r, _, _ := setupResolver(t)
	ctx := context.Background()
	for _, seq := range []int64{3, 9, 5} {
		_, err := r.Insert(ctx, "outgoingQueue", query.Values{"sequence_id": seq, "type": "msg"})
		require.NoError(t, err)
	}
	got := rows(t, r, "outgoingQueue/highest", query.Spec{Columns: []string{"sequence_id"}})
	require.Len(t, got, 1)
	assert.Equal(t, int64(9), got[0]["sequence_id"])
}

func TestPathScopedInsert(t *testing.T) {
	r, db, rec := setupResolver(t)
	ctx := context.Background()

	loc, err := r.Insert(ctx, "messagesBy/1/2/bob%40x", query.Values{"body": "hello"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(loc, "messages/"), loc)
	assert.Equal(t, []string{route.NotifyMessages}, rec.got)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM messages WHERE provider = 1 AND account = 2 AND contact = 'bob@x'`))

	_, err = r.Insert(ctx, "messagesBy/1/2/bob%40x", query.Values{"body": "x", "account": int64(2)})
	require.ErrorIs(t, err, ErrConflictingKey)

	loc, err = r.Insert(ctx, "providerSettings/4/muc/server", query.Values{"value": "conf.example"})
	require.NoError(t, err)
	assert.Equal(t, "providerSettings/4/muc/server", loc)

	_, err = r.Update(ctx, "providerSettings/4/muc/server", query.Values{"name": "other"}, query.Expr{})
	require.ErrorIs(t, err, ErrConflictingKey)

	n, err := r.Update(ctx, "providerSettings/4/muc/server", query.Values{"value": "conf2"}, query.Expr{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestZeroEffectWritesDoNotNotify(t *testing.T) {
	r, _, rec := setupResolver(t)
	ctx := context.Background()

	n, err := r.Update(ctx, "contacts/99", query.Values{"nickname": "x"}, query.Expr{})
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = r.Delete(ctx, "messages", query.Eq("id", 1))
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, rec.got)
}

func TestErrors(t *testing.T) {
	r, _, _ := setupResolver(t)
	ctx := context.Background()

	_, err := r.Query(ctx, "nope", query.Spec{})
	assert.ErrorIs(t, err, route.ErrUnknownResource)
	_, err = r.Type("contacts/abc/def/ghi")
	assert.ErrorIs(t, err, route.ErrUnknownResource)

	_, err = r.Insert(ctx, "contacts/online/1/2", query.Values{"username": "x"})
	assert.ErrorIs(t, err, ErrUnsupported)
	_, err = r.Delete(ctx, "bulk_presence", query.Expr{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = r.Query(ctx, "contacts", query.Spec{Where: query.Eq("nope", 1)})
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
	_, err = r.Query(ctx, "contacts", query.Spec{GroupBy: []string{"account"}})
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
	_, err = r.Update(ctx, "contacts", query.Values{"nope": 1}, query.Expr{})
	assert.ErrorIs(t, err, query.ErrInvalidQuery)
}

func TestType(t *testing.T) {
	r, _, _ := setupResolver(t)
	typ, err := r.Type("contacts")
	require.NoError(t, err)
	assert.Equal(t, "vnd.imstore.dir/contact", typ)
	typ, err = r.Type("contacts/3")
	require.NoError(t, err)
	assert.Equal(t, "vnd.imstore.item/contact", typ)
}

func TestBulkContacts(t *testing.T) {
	r, db, rec := setupResolver(t)
	ctx := context.Background()

	loc, err := r.Insert(ctx, "bulk_contacts", query.Values{
		"provider": int64(1),
		"account":  int64(2),
		"username": []any{"a", "b"},
		"nickname": []any{"A", "B"},
	})
	require.NoError(t, err)
	assert.Equal(t, "contacts", loc)
	assert.Equal(t, []string{route.NotifyContacts}, rec.got)
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM presence WHERE mode = 0`))

	_, err = r.Insert(ctx, "bulk_contacts", query.Values{
		"account":  int64(2),
		"username": []any{"c", "d"},
		"nickname": []any{"C"},
	})
	require.ErrorIs(t, err, sync.ErrLengthMismatch)
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM contacts`))

	n, err := r.Update(ctx, "bulk_contacts", query.Values{
		"account":  int64(2),
		"username": []any{"a", "zzz"},
		"nickname": []any{"Alice", "Z"},
	}, query.Expr{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = r.Update(ctx, "bulk_presence", query.Values{
		"account":  int64(2),
		"username": []any{"A", "B"},
		"mode":     []any{float64(schema.Available), float64(schema.Away)},
		"status":   []any{"here", "gone"},
	}, query.Expr{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM presence WHERE mode = ? AND status = 'gone'`, schema.Away))
}

func TestSeedPresenceRoute(t *testing.T) {
	r, db, rec := setupResolver(t)
	ctx := context.Background()

	_, err := r.Insert(ctx, "bulk_contacts", query.Values{
		"account":       int64(2),
		"username":      []any{"a", "b"},
		"nickname":      []any{"A", "B"},
		"skip_presence": true,
	})
	require.NoError(t, err)
	require.Equal(t, 0, count(t, db, `SELECT COUNT(*) FROM presence`))

	rec.reset()
	loc, err := r.Insert(ctx, "seed_presence/account/2", nil)
	require.NoError(t, err)
	assert.Equal(t, "presence", loc)
	assert.Equal(t, []string{route.NotifyContacts}, rec.got)
	assert.Equal(t, 2, count(t, db, `SELECT COUNT(*) FROM presence WHERE mode = 0 AND status = ''`))
}

func TestVolatileAndDurableSplit(t *testing.T) {
	r, db, _ := setupResolver(t)
	ctx := context.Background()
	_, err := r.Insert(ctx, "messages", query.Values{"body": "x"})
	require.NoError(t, err)

	var file string
	require.NoError(t, db.QueryRow(`SELECT file FROM pragma_database_list WHERE name = ?`, schema.VolatileSchema).Scan(&file))
	assert.True(t, strings.HasSuffix(file, "im.volatile.db"), file)
	assert.Equal(t, 1, count(t, db, `SELECT COUNT(*) FROM volatile.messages`))
}
