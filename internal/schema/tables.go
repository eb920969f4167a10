// Package schema describes the tables of the IM store, the join views
// exposed to readers and the logical-to-physical projection maps.
package schema

// Durable tables live in the main database file.
const (
	Providers                = "providers"
	Accounts                 = "accounts"
	Contacts                 = "contacts"
	ContactsEtag             = "contacts_etag"
	ContactList              = "contact_list"
	BlockedList              = "blocked_list"
	Avatars                  = "avatars"
	ProviderSettings         = "provider_settings"
	OutgoingQueue            = "outgoing_queue"
	LastSequenceID           = "last_sequence_id"
	AccountStatus            = "account_status"
	BrandingResourceMapCache = "branding_resource_map_cache"
)

// Volatile tables live in the attached volatile database and are recreated
// empty every time the store is opened.
const (
	Messages       = "messages"
	Presence       = "presence"
	Invitations    = "invitations"
	GroupMembers   = "group_members"
	GroupMessages  = "group_messages"
	Chats          = "chats"
	SessionCookies = "session_cookies"
)

// VolatileSchema is the name the volatile database is attached under.
const VolatileSchema = "volatile"

// Presence modes.
const (
	Offline      = 0
	Invisible    = 1
	Away         = 2
	Idle         = 3
	DoNotDisturb = 4
	Available    = 5
)

// Contact types.
const (
	ContactNormal    = 0
	ContactTemporary = 1
	ContactGroup     = 2
	ContactBlocked   = 3
	ContactHidden    = 4
	ContactPinned    = 5
)

// NoShortcut marks a chat without a quick-switch slot.
const NoShortcut = -1

// Table is a physical table and its writable columns.
type Table struct {
	Name     string
	Volatile bool
	Columns  []string
}

// Has reports whether col is a column of the table.
func (t Table) Has(col string) bool {
	for _, c := range t.Columns {
		if c == col {
			return true
		}
	}
	return false
}

var tables = map[string]Table{
	Providers: {Name: Providers, Columns: []string{
		"id", "name", "fullname", "category", "signup_url",
	}},
	Accounts: {Name: Accounts, Columns: []string{
		"id", "name", "provider", "username", "pw", "active", "locked",
		"keep_signed_in", "last_login_state",
	}},
	Contacts: {Name: Contacts, Columns: []string{
		"id", "username", "nickname", "provider", "account", "contact_list",
		"type", "subscription_status", "subscription_type", "qc", "rejected", "otr",
	}},
	ContactsEtag: {Name: ContactsEtag, Columns: []string{
		"id", "etag", "otr_etag", "account",
	}},
	ContactList: {Name: ContactList, Columns: []string{
		"id", "name", "provider", "account",
	}},
	BlockedList: {Name: BlockedList, Columns: []string{
		"id", "username", "nickname", "provider", "account",
	}},
	Avatars: {Name: Avatars, Columns: []string{
		"id", "contact", "provider_id", "account_id", "hash", "data",
	}},
	ProviderSettings: {Name: ProviderSettings, Columns: []string{
		"id", "provider", "name", "value",
	}},
	OutgoingQueue: {Name: OutgoingQueue, Columns: []string{
		"id", "sequence_id", "type", "ts", "data",
	}},
	LastSequenceID: {Name: LastSequenceID, Columns: []string{
		"id", "sequence_id",
	}},
	AccountStatus: {Name: AccountStatus, Columns: []string{
		"id", "account", "presence_status", "conn_status",
	}},
	BrandingResourceMapCache: {Name: BrandingResourceMapCache, Columns: []string{
		"id", "provider_id", "app_res_id", "plugin_res_id",
	}},

	Messages: {Name: Messages, Volatile: true, Columns: []string{
		"id", "thread_id", "provider", "account", "contact", "body", "date",
		"type", "err_code", "err_message", "packet_id", "is_muc", "display_sent_time",
	}},
	Presence: {Name: Presence, Volatile: true, Columns: []string{
		"id", "contact_id", "jid_resource", "client_type", "priority", "mode", "status",
	}},
	Invitations: {Name: Invitations, Volatile: true, Columns: []string{
		"id", "provider", "account", "invite_id", "group_name", "sender", "note", "status",
	}},
	GroupMembers: {Name: GroupMembers, Volatile: true, Columns: []string{
		"id", "group_id", "username", "nickname",
	}},
	GroupMessages: {Name: GroupMessages, Volatile: true, Columns: []string{
		"id", "group_id", "contact", "body", "date", "type", "err_code",
		"err_message", "packet_id", "display_sent_time",
	}},
	Chats: {Name: Chats, Volatile: true, Columns: []string{
		"id", "contact_id", "jid_resource", "groupchat", "last_unread_message",
		"last_message_date", "unsent_composed_message", "shortcut",
	}},
	SessionCookies: {Name: SessionCookies, Volatile: true, Columns: []string{
		"id", "provider", "account", "name", "value",
	}},
}

// Lookup returns the table definition for name.
func Lookup(name string) (Table, bool) {
	t, ok := tables[name]
	return t, ok
}

// VolatileDDL creates the volatile tables. Every statement is idempotent so
// it can run on each new pooled connection.
var VolatileDDL = []string{
	`CREATE TABLE IF NOT EXISTS volatile.messages (
		id INTEGER PRIMARY KEY,
		thread_id INTEGER,
		provider INTEGER,
		account INTEGER,
		contact TEXT,
		body TEXT,
		date INTEGER,
		type INTEGER,
		err_code INTEGER NOT NULL DEFAULT 0,
		err_message TEXT,
		packet_id TEXT,
		is_muc INTEGER NOT NULL DEFAULT 0,
		display_sent_time INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS volatile.idx_messages_contact ON messages(account, contact)`,
	`CREATE TABLE IF NOT EXISTS volatile.presence (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER UNIQUE,
		jid_resource TEXT,
		client_type INTEGER,
		priority INTEGER,
		mode INTEGER,
		status TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS volatile.invitations (
		id INTEGER PRIMARY KEY,
		provider INTEGER,
		account INTEGER,
		invite_id TEXT,
		group_name TEXT,
		sender TEXT,
		note TEXT,
		status INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS volatile.group_members (
		id INTEGER PRIMARY KEY,
		group_id INTEGER,
		username TEXT,
		nickname TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS volatile.group_messages (
		id INTEGER PRIMARY KEY,
		group_id INTEGER,
		contact TEXT,
		body TEXT,
		date INTEGER,
		type INTEGER,
		err_code INTEGER NOT NULL DEFAULT 0,
		err_message TEXT,
		packet_id TEXT,
		display_sent_time INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS volatile.chats (
		id INTEGER PRIMARY KEY,
		contact_id INTEGER UNIQUE,
		jid_resource TEXT,
		groupchat INTEGER,
		last_unread_message TEXT,
		last_message_date INTEGER,
		unsent_composed_message TEXT,
		shortcut INTEGER NOT NULL DEFAULT -1
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS volatile.idx_chats_shortcut ON chats(shortcut) WHERE shortcut >= 0`,
	`CREATE TABLE IF NOT EXISTS volatile.session_cookies (
		id INTEGER PRIMARY KEY,
		provider INTEGER,
		account INTEGER,
		name TEXT,
		value TEXT
	)`,
}
