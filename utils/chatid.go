package utils

import (
	"strings"

	"go.mau.fi/whatsmeow/types"
)

const (
	GroupSuffix   = "@" + types.GroupServer
	ContactSuffix = "@" + types.LegacyUserServer
)

// NormalizeChatID turns a destination into a chat identifier: group and contact
// identifiers are kept, bare numbers get the contact suffix.
func NormalizeChatID(to string) string {
	if strings.Contains(to, GroupSuffix) || strings.Contains(to, ContactSuffix) {
		return to
	}
	return to + ContactSuffix
}

// IsGroupID reports whether a chat identifier addresses a group chat
func IsGroupID(id string) bool {
	return strings.HasSuffix(id, GroupSuffix)
}

// ToJID parses a chat identifier into a whatsmeow JID, mapping the c.us contact
// server onto s.whatsapp.net.
func ToJID(id string) (types.JID, error) {
	jid, err := types.ParseJID(id)
	if err != nil {
		return types.EmptyJID, err
	}
	if jid.Server == types.LegacyUserServer {
		jid.Server = types.DefaultUserServer
	}
	return jid, nil
}

// FromJID renders a whatsmeow JID as a chat identifier
func FromJID(jid types.JID) string {
	jid = jid.ToNonAD()
	if jid.Server == types.DefaultUserServer {
		jid.Server = types.LegacyUserServer
	}
	return jid.String()
}
