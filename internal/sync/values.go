package sync

import (
	"fmt"
	"strconv"

	"github.com/matheus3301/imstore/internal/query"
)

// ContactsFromValues decodes a bulk contact request. List fields hold one
// entry per contact; provider, account and contact_list are shared.
func ContactsFromValues(v query.Values) (Contacts, error) {
	var (
		c   Contacts
		err error
	)
	if c.Usernames, err = stringList(v, "username"); err != nil {
		return c, err
	}
	if c.Usernames == nil {
		return c, fmt.Errorf("%w: username list required", query.ErrInvalidQuery)
	}
	if c.Nicknames, err = stringList(v, "nickname"); err != nil {
		return c, err
	}
	for key, dst := range map[string]*[]int64{
		"type":                &c.Types,
		"subscription_status": &c.SubscriptionStatus,
		"subscription_type":   &c.SubscriptionType,
		"qc":                  &c.QuickContact,
		"rejected":            &c.Rejected,
	} {
		if *dst, err = intList(v, key); err != nil {
			return c, err
		}
	}
	for key, dst := range map[string]*int64{
		"provider":     &c.Provider,
		"account":      &c.Account,
		"contact_list": &c.List,
	} {
		if !v.Has(key) {
			continue
		}
		n, ok := v.Int64(key)
		if !ok {
			return c, fmt.Errorf("%w: %s must be an integer", query.ErrInvalidQuery, key)
		}
		*dst = n
	}
	if skip, ok := v["skip_presence"].(bool); ok {
		c.SkipPresence = skip
	}
	return c, nil
}

// PresenceFromValues decodes a bulk presence request.
func PresenceFromValues(v query.Values) (Presence, error) {
	var (
		p   Presence
		err error
	)
	if p.Usernames, err = stringList(v, "username"); err != nil {
		return p, err
	}
	if p.Usernames == nil {
		return p, fmt.Errorf("%w: username list required", query.ErrInvalidQuery)
	}
	if p.Statuses, err = stringList(v, "status"); err != nil {
		return p, err
	}
	if p.Resources, err = stringList(v, "jid_resource"); err != nil {
		return p, err
	}
	for key, dst := range map[string]*[]int64{
		"priority":    &p.Priorities,
		"mode":        &p.Modes,
		"client_type": &p.ClientTypes,
	} {
		if *dst, err = intList(v, key); err != nil {
			return p, err
		}
	}
	if v.Has("account") {
		n, ok := v.Int64("account")
		if !ok {
			return p, fmt.Errorf("%w: account must be an integer", query.ErrInvalidQuery)
		}
		p.Account = n
	}
	return p, nil
}

func stringList(v query.Values, key string) ([]string, error) {
	switch l := v[key].(type) {
	case nil:
		return nil, nil
	case []string:
		return l, nil
	case []any:
		out := make([]string, len(l))
		for i, x := range l {
			switch s := x.(type) {
			case string:
				out[i] = s
			case nil:
			default:
				out[i] = fmt.Sprint(s)
			}
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list", query.ErrInvalidQuery, key)
	}
}

func intList(v query.Values, key string) ([]int64, error) {
	switch l := v[key].(type) {
	case nil:
		return nil, nil
	case []int64:
		return l, nil
	case []int:
		out := make([]int64, len(l))
		for i, n := range l {
			out[i] = int64(n)
		}
		return out, nil
	case []string:
		out := make([]int64, len(l))
		for i, s := range l {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("%w: %s[%d]: %v", query.ErrInvalidQuery, key, i, err)
			}
			out[i] = n
		}
		return out, nil
	case []any:
		out := make([]int64, len(l))
		for i, x := range l {
			n, ok := toInt(x)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] must be an integer", query.ErrInvalidQuery, key, i)
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list", query.ErrInvalidQuery, key)
	}
}

func toInt(x any) (int64, bool) {
	return query.Values{"v": x}.Int64("v")
}
