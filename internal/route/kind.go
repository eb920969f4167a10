package route

// Kind identifies a matched route. Each kind carries its path parameters in
// the typed fields of Route.
type Kind int

const (
	Providers Kind = iota + 1
	Provider
	ProvidersWithAccount
	Accounts
	Account

	Contacts
	ContactsWithPresence
	ContactsBarebone
	ContactsByAccount
	ChattingContacts
	ChattingContactsByAccount
	OnlineContactsByAccount
	OfflineContactsByAccount
	Contact
	BlockedContacts
	BulkContacts
	OnlineContactCount

	ContactLists
	ContactListsByAccount
	ContactList
	BlockedList
	BlockedListByAccount
	BlockedListEntry
	ContactsEtags
	ContactsEtag

	Presence
	PresenceByContact
	PresenceByAccount
	SeedPresence
	BulkPresence

	Messages
	MessagesByContact
	Message
	GroupMessages
	GroupMessagesByGroup
	GroupMessage
	GroupMembers
	GroupMembersByGroup
	GroupMember
	Invitations
	Invitation

	Avatars
	Avatar
	AvatarsByAccount
	Chats
	ChatsByAccount
	Chat

	SessionCookies
	SessionCookiesByAccount
	SessionCookie
	ProviderSettings
	ProviderSettingsByProvider
	ProviderSetting

	OutgoingQueue
	OutgoingQueueEntry
	OutgoingQueueHighest
	LastSequenceID
	AccountStatuses
	AccountStatus
	BrandingResourceMapCache
	BrandingResource
)

// Canonical locators that observers watch.
const (
	NotifyProviderAcct  = "providers/account"
	NotifyContacts      = "contacts"
	NotifyContactLists  = "contactLists"
	NotifyBlockedList   = "blockedList"
	NotifyContactsEtag  = "contactsEtag"
	NotifyMessages      = "messages"
	NotifyGroupMessages = "groupMessages"
	NotifyGroupMembers  = "groupMembers"
	NotifyInvitations   = "invitations"
	NotifyAvatars       = "avatars"
	NotifySessions      = "sessionCookies"
	NotifySettings      = "providerSettings"
	NotifyOutgoing      = "outgoingQueue"
	NotifyLastSequence  = "lastSequenceId"
	NotifyBranding      = "brandingResourceMapCache"
)

// Param names used in patterns. ":" binds a numeric segment, "*" a single
// text segment and "**" the rest of the locator.
const (
	paramProvider = "provider"
	paramAccount  = "account"
	paramID       = "id"
	paramContact  = "contact"
	paramName     = "name"
)

type def struct {
	pattern string
	kind    Kind
	item    bool
	content string
	notify  string
}

var defs = []def{
	{"providers", Providers, false, "provider", NotifyProviderAcct},
	{"providers/:id", Provider, true, "provider", NotifyProviderAcct},
	{"providers/account", ProvidersWithAccount, false, "provider-account", NotifyProviderAcct},

	{"accounts", Accounts, false, "account", NotifyProviderAcct},
	{"accounts/:id", Account, true, "account", NotifyProviderAcct},

	{"contacts", Contacts, false, "contact", NotifyContacts},
	{"contactsWithPresence", ContactsWithPresence, false, "contact", NotifyContacts},
	{"contactsBarebone", ContactsBarebone, false, "contact", NotifyContacts},
	{"contacts/:provider/:account", ContactsByAccount, false, "contact", NotifyContacts},
	{"contacts/chatting", ChattingContacts, false, "contact", NotifyContacts},
	{"contacts/chatting/:provider/:account", ChattingContactsByAccount, false, "contact", NotifyContacts},
	{"contacts/online/:provider/:account", OnlineContactsByAccount, false, "contact", NotifyContacts},
	{"contacts/offline/:provider/:account", OfflineContactsByAccount, false, "contact", NotifyContacts},
	{"contacts/:id", Contact, true, "contact", NotifyContacts},
	{"contacts/blocked", BlockedContacts, false, "contact", NotifyContacts},
	{"bulk_contacts", BulkContacts, false, "contact", NotifyContacts},
	{"contacts/onlineCount", OnlineContactCount, false, "contact-count", NotifyContacts},

	{"contactLists", ContactLists, false, "contact-list", NotifyContactLists},
	{"contactLists/:provider/:account", ContactListsByAccount, false, "contact-list", NotifyContactLists},
	{"contactLists/:id", ContactList, true, "contact-list", NotifyContactLists},
	{"blockedList", BlockedList, false, "blocked-list", NotifyBlockedList},
	{"blockedList/:provider/:account", BlockedListByAccount, false, "blocked-list", NotifyBlockedList},
	{"blockedList/:id", BlockedListEntry, true, "blocked-list", NotifyBlockedList},
	{"contactsEtag", ContactsEtags, false, "contacts-etag", NotifyContactsEtag},
	{"contactsEtag/:id", ContactsEtag, true, "contacts-etag", NotifyContactsEtag},

	{"presence", Presence, false, "presence", NotifyContacts},
	{"presence/:id", PresenceByContact, true, "presence", NotifyContacts},
	{"presence/account/:account", PresenceByAccount, false, "presence", NotifyContacts},
	{"seed_presence/account/:account", SeedPresence, false, "presence", NotifyContacts},
	{"bulk_presence", BulkPresence, false, "presence", NotifyContacts},

	{"messages", Messages, false, "message", NotifyMessages},
	{"messagesBy/:provider/:account/*contact", MessagesByContact, false, "message", NotifyMessages},
	{"messages/:id", Message, true, "message", NotifyMessages},
	{"groupMessages", GroupMessages, false, "group-message", NotifyGroupMessages},
	{"groupMessagesBy/:id", GroupMessagesByGroup, false, "group-message", NotifyGroupMessages},
	{"groupMessages/:id", GroupMessage, true, "group-message", NotifyGroupMessages},
	{"groupMembers", GroupMembers, false, "group-member", NotifyGroupMembers},
	{"groupMembers/:id", GroupMembersByGroup, false, "group-member", NotifyGroupMembers},
	{"groupMember/:id", GroupMember, true, "group-member", NotifyGroupMembers},
	{"invitations", Invitations, false, "invitation", NotifyInvitations},
	{"invitations/:id", Invitation, true, "invitation", NotifyInvitations},

	{"avatars", Avatars, false, "avatar", NotifyAvatars},
	{"avatars/:id", Avatar, true, "avatar", NotifyAvatars},
	{"avatarsBy/:provider/:account", AvatarsByAccount, false, "avatar", NotifyAvatars},
	{"chats", Chats, false, "chat", NotifyContacts},
	{"chats/account/:account", ChatsByAccount, false, "chat", NotifyContacts},
	{"chats/:id", Chat, true, "chat", NotifyContacts},

	{"sessionCookies", SessionCookies, false, "session-cookie", NotifySessions},
	{"sessionCookiesBy/:provider/:account", SessionCookiesByAccount, false, "session-cookie", NotifySessions},
	{"sessionCookies/:id", SessionCookie, true, "session-cookie", NotifySessions},
	{"providerSettings", ProviderSettings, false, "provider-setting", NotifySettings},
	{"providerSettings/:provider", ProviderSettingsByProvider, false, "provider-setting", NotifySettings},
	{"providerSettings/:provider/**name", ProviderSetting, true, "provider-setting", NotifySettings},

	{"outgoingQueue", OutgoingQueue, false, "outgoing", NotifyOutgoing},
	{"outgoingQueue/:id", OutgoingQueueEntry, true, "outgoing", NotifyOutgoing},
	{"outgoingQueue/highest", OutgoingQueueHighest, true, "outgoing", NotifyOutgoing},
	{"lastSequenceId", LastSequenceID, true, "last-sequence-id", NotifyLastSequence},
	{"accountStatus", AccountStatuses, false, "account-status", NotifyProviderAcct},
	{"accountStatus/:account", AccountStatus, true, "account-status", NotifyProviderAcct},
	{"brandingResourceMapCache", BrandingResourceMapCache, false, "branding-resource", NotifyBranding},
	{"brandingResourceMapCache/:id", BrandingResource, true, "branding-resource", NotifyBranding},
}
