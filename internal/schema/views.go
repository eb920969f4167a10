package schema

// Column maps a logical column name to its physical SQL expression.
type Column struct {
	Name   string
	Expr   string
	Source string // table providing the column, empty for aggregates
}

// Aggregate reports whether the column is computed over a group.
func (c Column) Aggregate() bool { return c.Source == "" }

// View is a read target: a FROM clause plus the projection map readers
// address it through.
type View struct {
	From    string
	Tables  []string
	Columns []Column
}

// Lookup returns the logical column name.
func (v View) Lookup(name string) (Column, bool) {
	for _, c := range v.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Resolve maps a logical column name to its physical expression.
func (v View) Resolve(name string) (string, bool) {
	c, ok := v.Lookup(name)
	if !ok {
		return "", false
	}
	return c.Expr, true
}

// Defaults returns the columns selected when a reader asks for none.
func (v View) Defaults() []Column {
	out := make([]Column, 0, len(v.Columns))
	for _, c := range v.Columns {
		if !c.Aggregate() {
			out = append(out, c)
		}
	}
	return out
}

const countColumn = "_count"

// TableView exposes a single table with every column qualified by the
// table name.
func TableView(name string) View {
	t, ok := Lookup(name)
	if !ok {
		panic("schema: unknown table " + name)
	}
	cols := make([]Column, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		cols = append(cols, Column{Name: c, Expr: name + "." + c, Source: name})
	}
	cols = append(cols, Column{Name: countColumn, Expr: "COUNT(*)"})
	return View{From: name, Tables: []string{name}, Columns: cols}
}

func joinView(from string, tables []string, all []Column) View {
	in := make(map[string]bool, len(tables))
	for _, t := range tables {
		in[t] = true
	}
	cols := make([]Column, 0, len(all))
	for _, c := range all {
		if c.Aggregate() || in[c.Source] {
			cols = append(cols, c)
		}
	}
	return View{From: from, Tables: tables, Columns: cols}
}

var contactColumns = []Column{
	{Name: "id", Expr: "contacts.id", Source: Contacts},
	{Name: countColumn, Expr: "COUNT(*)"},
	{Name: "username", Expr: "contacts.username", Source: Contacts},
	{Name: "nickname", Expr: "contacts.nickname", Source: Contacts},
	{Name: "provider", Expr: "contacts.provider", Source: Contacts},
	{Name: "account", Expr: "contacts.account", Source: Contacts},
	{Name: "contact_list", Expr: "contacts.contact_list", Source: Contacts},
	{Name: "type", Expr: "contacts.type", Source: Contacts},
	{Name: "subscription_status", Expr: "contacts.subscription_status", Source: Contacts},
	{Name: "subscription_type", Expr: "contacts.subscription_type", Source: Contacts},
	{Name: "qc", Expr: "contacts.qc", Source: Contacts},
	{Name: "rejected", Expr: "contacts.rejected", Source: Contacts},
	{Name: "otr", Expr: "contacts.otr", Source: Contacts},

	{Name: "contact_id", Expr: "presence.contact_id", Source: Presence},
	{Name: "mode", Expr: "presence.mode", Source: Presence},
	{Name: "status", Expr: "presence.status", Source: Presence},
	{Name: "client_type", Expr: "presence.client_type", Source: Presence},
	{Name: "priority", Expr: "presence.priority", Source: Presence},

	{Name: "chats_contact_id", Expr: "chats.contact_id", Source: Chats},
	{Name: "jid_resource", Expr: "chats.jid_resource", Source: Chats},
	{Name: "groupchat", Expr: "chats.groupchat", Source: Chats},
	{Name: "last_unread_message", Expr: "chats.last_unread_message", Source: Chats},
	{Name: "last_message_date", Expr: "chats.last_message_date", Source: Chats},
	{Name: "unsent_composed_message", Expr: "chats.unsent_composed_message", Source: Chats},
	{Name: "shortcut", Expr: "chats.shortcut", Source: Chats},

	{Name: "avatars_hash", Expr: "avatars.hash", Source: Avatars},
	{Name: "avatars_data", Expr: "avatars.data", Source: Avatars},
}

const (
	contactJoinPresence = "contacts LEFT OUTER JOIN presence ON (contacts.id = presence.contact_id)"

	contactJoinPresenceChat = contactJoinPresence +
		" LEFT OUTER JOIN chats ON (contacts.id = chats.contact_id)"

	contactJoinPresenceChatAvatar = contactJoinPresenceChat +
		" LEFT OUTER JOIN avatars ON (contacts.username = avatars.contact" +
		" AND contacts.account = avatars.account_id)"

	providerJoinAccount = "providers LEFT OUTER JOIN accounts ON " +
		"(providers.id = accounts.provider AND accounts.active = 1) " +
		"LEFT OUTER JOIN account_status ON (accounts.id = account_status.account)"

	blockedListJoinAvatar = "blocked_list LEFT OUTER JOIN avatars ON (blocked_list.username = avatars.contact" +
		" AND blocked_list.account = avatars.account_id)"
)

// Join views. They are built once and never mutated.
var (
	ContactsView = joinView(contactJoinPresenceChatAvatar,
		[]string{Contacts, Presence, Chats, Avatars}, contactColumns)

	ContactsWithPresenceView = joinView(contactJoinPresence,
		[]string{Contacts, Presence}, contactColumns)

	ContactsPresenceChatView = joinView(contactJoinPresenceChat,
		[]string{Contacts, Presence, Chats}, contactColumns)

	ProviderAccountsView = View{
		From:   providerJoinAccount,
		Tables: []string{Providers, Accounts, AccountStatus},
		Columns: []Column{
			{Name: "id", Expr: "providers.id", Source: Providers},
			{Name: "_account", Expr: "COUNT(*)"},
			{Name: "name", Expr: "providers.name", Source: Providers},
			{Name: "fullname", Expr: "providers.fullname", Source: Providers},
			{Name: "category", Expr: "providers.category", Source: Providers},
			{Name: "account_id", Expr: "accounts.id", Source: Accounts},
			{Name: "account_username", Expr: "accounts.username", Source: Accounts},
			{Name: "account_pw", Expr: "accounts.pw", Source: Accounts},
			{Name: "account_locked", Expr: "accounts.locked", Source: Accounts},
			{Name: "account_presence_status", Expr: "account_status.presence_status", Source: AccountStatus},
			{Name: "account_conn_status", Expr: "account_status.conn_status", Source: AccountStatus},
		},
	}

	BlockedListView = View{
		From:   blockedListJoinAvatar,
		Tables: []string{BlockedList, Avatars},
		Columns: []Column{
			{Name: "id", Expr: "blocked_list.id", Source: BlockedList},
			{Name: countColumn, Expr: "COUNT(*)"},
			{Name: "username", Expr: "blocked_list.username", Source: BlockedList},
			{Name: "nickname", Expr: "blocked_list.nickname", Source: BlockedList},
			{Name: "provider", Expr: "blocked_list.provider", Source: BlockedList},
			{Name: "account", Expr: "blocked_list.account", Source: BlockedList},
			{Name: "avatars_data", Expr: "avatars.data", Source: Avatars},
		},
	}
)
