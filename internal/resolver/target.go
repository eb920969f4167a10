package resolver

import (
	"github.com/matheus3301/imstore/internal/query"
	"github.com/matheus3301/imstore/internal/route"
	"github.com/matheus3301/imstore/internal/schema"
)

type op uint8

const (
	opRead op = 1 << iota
	opInsert
	opUpdate
	opDelete

	opAll    = opRead | opInsert | opUpdate | opDelete
	opModify = opRead | opUpdate | opDelete
)

// target is what a route reads from and writes to.
type target struct {
	ops   op
	view  schema.View
	table string

	where     query.Expr   // applied to reads, updates and deletes
	readWhere query.Expr   // applied to reads only
	scope     query.Values // path values injected into inserts
	protected []string     // columns updates may not set

	groupBy []string
	orderBy []query.Order
	limit   int

	replace bool
}

func (t target) allows(o op) bool { return t.ops&o != 0 }

var (
	nonBlocked = query.Or(query.IsNull("type"), query.Ne("type", schema.ContactBlocked))
	online     = query.Ne("mode", schema.Offline)
	chatting   = query.NotNull("last_message_date")
)

func tableTarget(name string, ops op) target {
	return target{ops: ops, view: schema.TableView(name), table: name}
}

func contactsOfAccount(account int64) query.Expr {
	return query.InSelect("contact_id", "SELECT id FROM contacts WHERE account = ?", account)
}

// targetFor maps a matched route onto its read view, write table and
// route-mandated predicates. Bulk and seeding routes are handled by the
// caller and have no target.
func targetFor(r route.Route) (target, bool) {
	var t target
	switch r.Kind {
	case route.Providers:
		t = tableTarget(schema.Providers, opAll)
	case route.Provider:
		t = tableTarget(schema.Providers, opModify)
		t.where = query.Eq("id", r.ID)
	case route.ProvidersWithAccount:
		t = target{ops: opRead, view: schema.ProviderAccountsView}

	case route.Accounts:
		t = tableTarget(schema.Accounts, opAll)
	case route.Account:
		t = tableTarget(schema.Accounts, opModify)
		t.where = query.Eq("id", r.ID)

	case route.Contacts:
		t = target{ops: opAll, view: schema.ContactsView, table: schema.Contacts}
	case route.ContactsWithPresence:
		t = target{ops: opRead, view: schema.ContactsWithPresenceView}
	case route.ContactsBarebone:
		t = tableTarget(schema.Contacts, opAll)
	case route.ContactsByAccount:
		t = target{ops: opAll, view: schema.ContactsView, table: schema.Contacts}
		t.where = query.Eq("account", r.Account)
		t.readWhere = nonBlocked
		t.scope = query.Values{"provider": r.Provider, "account": r.Account}
	case route.ChattingContacts:
		t = target{ops: opRead, view: schema.ContactsView}
		t.readWhere = chatting
	case route.ChattingContactsByAccount:
		t = target{ops: opRead, view: schema.ContactsView}
		t.readWhere = query.And(query.Eq("account", r.Account), chatting)
	case route.OnlineContactsByAccount:
		t = target{ops: opRead, view: schema.ContactsView}
		t.readWhere = query.And(query.Eq("account", r.Account), online, nonBlocked)
	case route.OfflineContactsByAccount:
		t = target{ops: opRead, view: schema.ContactsView}
		t.readWhere = query.And(query.Eq("account", r.Account), query.Eq("mode", schema.Offline), nonBlocked)
	case route.Contact:
		t = target{ops: opModify, view: schema.ContactsView, table: schema.Contacts}
		t.where = query.Eq("id", r.ID)
	case route.BlockedContacts:
		t = target{ops: opRead, view: schema.ContactsView}
		t.readWhere = query.Eq("type", schema.ContactBlocked)
	case route.OnlineContactCount:
		t = target{ops: opRead, view: schema.ContactsPresenceChatView}
		t.readWhere = query.And(online, query.IsNull("last_message_date"), nonBlocked)
		t.groupBy = []string{"contact_list"}

	case route.ContactLists:
		t = tableTarget(schema.ContactList, opAll)
	case route.ContactListsByAccount:
		t = tableTarget(schema.ContactList, opAll)
		t.where = query.Eq("account", r.Account)
		t.scope = query.Values{"provider": r.Provider, "account": r.Account}
	case route.ContactList:
		t = tableTarget(schema.ContactList, opModify)
		t.where = query.Eq("id", r.ID)
	case route.BlockedList:
		t = target{ops: opAll, view: schema.BlockedListView, table: schema.BlockedList}
	case route.BlockedListByAccount:
		t = target{ops: opAll, view: schema.BlockedListView, table: schema.BlockedList}
		t.where = query.Eq("account", r.Account)
		t.scope = query.Values{"provider": r.Provider, "account": r.Account}
	case route.BlockedListEntry:
		t = target{ops: opModify, view: schema.BlockedListView, table: schema.BlockedList}
		t.where = query.Eq("id", r.ID)
	case route.ContactsEtags:
		t = tableTarget(schema.ContactsEtag, opAll)
		t.replace = true
	case route.ContactsEtag:
		t = tableTarget(schema.ContactsEtag, opModify)
		t.where = query.Eq("id", r.ID)

	case route.Presence:
		t = tableTarget(schema.Presence, opAll)
		t.replace = true
	case route.PresenceByContact:
		t = tableTarget(schema.Presence, opAll)
		t.where = query.Eq("contact_id", r.ID)
		t.scope = query.Values{"contact_id": r.ID}
		t.replace = true
	case route.PresenceByAccount:
		t = tableTarget(schema.Presence, opModify)
		t.where = contactsOfAccount(r.Account)

	case route.Messages:
		t = tableTarget(schema.Messages, opAll)
	case route.MessagesByContact:
		t = tableTarget(schema.Messages, opAll)
		t.where = query.And(query.Eq("account", r.Account), query.Eq("contact", r.Contact))
		t.scope = query.Values{"provider": r.Provider, "account": r.Account, "contact": r.Contact}
	case route.Message:
		t = tableTarget(schema.Messages, opModify)
		t.where = query.Eq("id", r.ID)
	case route.GroupMessages:
		t = tableTarget(schema.GroupMessages, opAll)
	case route.GroupMessagesByGroup:
		t = tableTarget(schema.GroupMessages, opAll)
		t.where = query.Eq("group_id", r.ID)
		t.scope = query.Values{"group_id": r.ID}
	case route.GroupMessage:
		t = tableTarget(schema.GroupMessages, opModify)
		t.where = query.Eq("id", r.ID)
	case route.GroupMembers:
		t = tableTarget(schema.GroupMembers, opAll)
	case route.GroupMembersByGroup:
		t = tableTarget(schema.GroupMembers, opAll)
		t.where = query.Eq("group_id", r.ID)
		t.scope = query.Values{"group_id": r.ID}
	case route.GroupMember:
		t = tableTarget(schema.GroupMembers, opModify)
		t.where = query.Eq("id", r.ID)
	case route.Invitations:
		t = tableTarget(schema.Invitations, opAll)
	case route.Invitation:
		t = tableTarget(schema.Invitations, opModify)
		t.where = query.Eq("id", r.ID)

	case route.Avatars:
		t = tableTarget(schema.Avatars, opAll)
		t.replace = true
	case route.Avatar:
		t = tableTarget(schema.Avatars, opModify)
		t.where = query.Eq("id", r.ID)
	case route.AvatarsByAccount:
		t = tableTarget(schema.Avatars, opAll)
		t.where = query.Eq("account_id", r.Account)
		t.scope = query.Values{"provider_id": r.Provider, "account_id": r.Account}
		t.replace = true
	case route.Chats:
		t = tableTarget(schema.Chats, opAll)
		t.replace = true
	case route.ChatsByAccount:
		t = tableTarget(schema.Chats, opModify)
		t.where = contactsOfAccount(r.Account)
	case route.Chat:
		t = tableTarget(schema.Chats, opAll)
		t.where = query.Eq("contact_id", r.ID)
		t.scope = query.Values{"contact_id": r.ID}
		t.replace = true

	case route.SessionCookies:
		t = tableTarget(schema.SessionCookies, opAll)
	case route.SessionCookiesByAccount:
		t = tableTarget(schema.SessionCookies, opAll)
		t.where = query.Eq("account", r.Account)
		t.scope = query.Values{"provider": r.Provider, "account": r.Account}
	case route.SessionCookie:
		t = tableTarget(schema.SessionCookies, opModify)
		t.where = query.Eq("id", r.ID)
	case route.ProviderSettings:
		t = tableTarget(schema.ProviderSettings, opAll)
		t.replace = true
	case route.ProviderSettingsByProvider:
		t = tableTarget(schema.ProviderSettings, opAll)
		t.where = query.Eq("provider", r.Provider)
		t.scope = query.Values{"provider": r.Provider}
		t.replace = true
	case route.ProviderSetting:
		t = tableTarget(schema.ProviderSettings, opAll)
		t.where = query.And(query.Eq("provider", r.Provider), query.Eq("name", r.Name))
		t.scope = query.Values{"provider": r.Provider, "name": r.Name}
		t.replace = true

	case route.OutgoingQueue:
		t = tableTarget(schema.OutgoingQueue, opAll)
	case route.OutgoingQueueEntry:
		t = tableTarget(schema.OutgoingQueue, opModify)
		t.where = query.Eq("id", r.ID)
	case route.OutgoingQueueHighest:
		t = tableTarget(schema.OutgoingQueue, opRead)
		t.orderBy = []query.Order{{Col: "sequence_id", Desc: true}}
		t.limit = 1
	case route.LastSequenceID:
		t = tableTarget(schema.LastSequenceID, opAll)
		t.limit = 1
		t.replace = true
	case route.AccountStatuses:
		t = tableTarget(schema.AccountStatus, opAll)
		t.replace = true
	case route.AccountStatus:
		t = tableTarget(schema.AccountStatus, opAll)
		t.where = query.Eq("account", r.Account)
		t.scope = query.Values{"account": r.Account}
		t.replace = true
	case route.BrandingResourceMapCache:
		t = tableTarget(schema.BrandingResourceMapCache, opAll)
	case route.BrandingResource:
		t = tableTarget(schema.BrandingResourceMapCache, opModify)
		t.where = query.Eq("id", r.ID)

	default:
		return target{}, false
	}
	for col := range t.scope {
		t.protected = append(t.protected, col)
	}
	return t, true
}
