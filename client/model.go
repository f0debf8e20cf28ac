package client

import (
	"time"
)

type ChannelType string

const (
	ChannelTypeText         ChannelType = "text"
	ChannelTypeVoice        ChannelType = "voice"
	ChannelTypeStage        ChannelType = "stage"
	ChannelTypeAnnouncement ChannelType = "announcement"
	ChannelTypeForum        ChannelType = "forum"
	ChannelTypeGallery      ChannelType = "gallery"
	ChannelTypeDm           ChannelType = "dm"
	ChannelTypeGroup        ChannelType = "group"
	ChannelTypeCategory     ChannelType = "category"
)

func (self ChannelType) IsDirect() bool {
	switch self {
	case ChannelTypeDm, ChannelTypeGroup:
		return true
	default:
		return false
	}
}

type PresenceStatus string

const (
	PresenceStatusOnline  PresenceStatus = "online"
	PresenceStatusIdle    PresenceStatus = "idle"
	PresenceStatusBusy    PresenceStatus = "busy"
	PresenceStatusOffline PresenceStatus = "offline"
)

type User struct {
	UserId    Id     `json:"user_id"`
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

type Guild struct {
	GuildId Id     `json:"guild_id"`
	Name    string `json:"name"`
	OwnerId Id     `json:"owner_id"`
	IconUrl string `json:"icon_url,omitempty"`
}

type Channel struct {
	ChannelId Id          `json:"channel_id"`
	Type      ChannelType `json:"channel_type"`
	// zero for dm/group channels
	GuildId Id `json:"guild_id,omitempty"`
	// set for threads. the parent must itself be a non-thread channel
	ParentChannelId Id     `json:"parent_channel_id,omitempty"`
	Name            string `json:"name,omitempty"`
	Position        int    `json:"position,omitempty"`
	Archived        bool   `json:"archived,omitempty"`
	LastMessageId   Id     `json:"last_message_id,omitempty"`
	LastActivityAt  int64  `json:"last_activity_at,omitempty"`
	// denormalized identity copies for dm/group channels
	Recipients []*User `json:"recipients,omitempty"`
}

func (self *Channel) IsThread() bool {
	return !self.ParentChannelId.IsZero()
}

// shallow copy. message and recipient slices are shared with the original,
// which is safe because entries are never mutated in place
func (self *Channel) Copy() *Channel {
	copy := *self
	return &copy
}

type Reaction struct {
	Emoji   string `json:"emoji"`
	Count   int    `json:"count"`
	UserIds []Id   `json:"user_ids,omitempty"`
}

type Embed struct {
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Url         string `json:"url,omitempty"`
}

type Message struct {
	MessageId        Id          `json:"message_id"`
	ChannelId        Id          `json:"channel_id"`
	AuthorId         Id          `json:"author_id"`
	Content          string      `json:"content"`
	MentionEveryone  bool        `json:"mention_everyone,omitempty"`
	MentionHere      bool        `json:"mention_here,omitempty"`
	MentionUserIds   []Id        `json:"mention_user_ids,omitempty"`
	MentionRoleIds   []Id        `json:"mention_role_ids,omitempty"`
	ReplyToMessageId Id          `json:"reply_to_message_id,omitempty"`
	Reactions        []*Reaction `json:"reactions,omitempty"`
	Embeds           []*Embed    `json:"embeds,omitempty"`
	CreatedAt        time.Time   `json:"created_at"`
}

// comparable key for the guild members store
type MemberKey struct {
	GuildId Id
	UserId  Id
}

type GuildMember struct {
	GuildId Id     `json:"guild_id"`
	UserId  Id     `json:"user_id"`
	Nick    string `json:"nick,omitempty"`
	RoleIds []Id   `json:"role_ids,omitempty"`
	// denormalized identity copies, kept in sync on USER_UPDATE
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

func (self *GuildMember) HasRole(roleId Id) bool {
	for _, memberRoleId := range self.RoleIds {
		if memberRoleId == roleId {
			return true
		}
	}
	return false
}

type RelationshipType string

const (
	RelationshipTypeFriend          RelationshipType = "friend"
	RelationshipTypePendingIncoming RelationshipType = "pending_incoming"
	RelationshipTypePendingOutgoing RelationshipType = "pending_outgoing"
	RelationshipTypeBlocked         RelationshipType = "blocked"
)

type Relationship struct {
	UserId Id               `json:"user_id"`
	Type   RelationshipType `json:"relationship_type"`
	// denormalized identity copies, kept in sync on USER_UPDATE
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url,omitempty"`
}

type Notification struct {
	NotificationId   Id        `json:"notification_id"`
	Kind             string    `json:"kind"`
	Body             string    `json:"body,omitempty"`
	Read             bool      `json:"read,omitempty"`
	RelatedUserId    Id        `json:"related_user_id,omitempty"`
	RelatedChannelId Id        `json:"related_channel_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}

type Announcement struct {
	AnnouncementId Id        `json:"announcement_id"`
	Title          string    `json:"title"`
	Body           string    `json:"body,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type VoiceParticipant struct {
	UserId    Id     `json:"user_id"`
	Name      string `json:"name"`
	AvatarUrl string `json:"avatar_url,omitempty"`
	Muted     bool   `json:"muted,omitempty"`
	Deafened  bool   `json:"deafened,omitempty"`
	Speaking  bool   `json:"speaking,omitempty"`
}

func (self *VoiceParticipant) Copy() *VoiceParticipant {
	copy := *self
	return &copy
}

// per-channel read watermark plus mention count
type UnreadEntry struct {
	LastReadId   Id  `json:"last_read_id,omitempty"`
	MentionCount int `json:"mention_count,omitempty"`
}

type ReadStateEntry struct {
	ChannelId    Id  `json:"channel_id"`
	LastReadId   Id  `json:"last_read_id,omitempty"`
	MentionCount int `json:"mention_count,omitempty"`
	UnreadCount  int `json:"unread_count,omitempty"`
}

type PresenceEntry struct {
	UserId Id             `json:"user_id"`
	Status PresenceStatus `json:"status"`
}

type VoiceStateEntry struct {
	ChannelId   Id                `json:"channel_id"`
	Participant *VoiceParticipant `json:"participant"`
}
