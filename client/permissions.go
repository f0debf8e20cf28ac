package client

import (
	"fmt"
	"strconv"
)

// effective permissions for the current user in one guild, as computed by
// the server. the client never patches these bit-by-bit, it always reloads
// the full set

type PermissionSet uint64

const (
	PermissionViewChannels PermissionSet = 1 << iota
	PermissionSendMessages
	PermissionManageMessages
	PermissionManageChannels
	PermissionManageGuild
	PermissionManageRoles
	PermissionMentionEveryone
	PermissionCreateThreads
	PermissionConnectVoice
	PermissionSpeak
	PermissionPublishCamera
	PermissionMuteMembers
	PermissionBanMembers
	PermissionAdministrator
)

// absent guilds read as no permissions
const PermissionsNone = PermissionSet(0)

func (self PermissionSet) Has(permissions PermissionSet) bool {
	if self&PermissionAdministrator != 0 {
		return true
	}
	return self&permissions == permissions
}

func (self PermissionSet) With(permissions PermissionSet) PermissionSet {
	return self | permissions
}

func (self PermissionSet) Without(permissions PermissionSet) PermissionSet {
	return self &^ permissions
}

// the wire form is a quoted decimal string so that the full 64-bit range
// survives json number handling
func (self PermissionSet) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(strconv.FormatUint(uint64(self), 10))), nil
}

func (self *PermissionSet) UnmarshalJSON(src []byte) error {
	s := string(src)
	if unquoted, err := strconv.Unquote(s); err == nil {
		s = unquoted
	}
	value, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid permission set: %w", err)
	}
	*self = PermissionSet(value)
	return nil
}
