package client

import (
	"encoding/json"
	"fmt"
)

// the gateway emits named events with json payloads. payloads are decoded
// into typed structs at the transport boundary so handlers never re-cast an
// opaque blob

type EventType string

const (
	EventReady               EventType = "READY"
	EventGatewayAuthFailed   EventType = "GATEWAY_AUTH_FAILED"
	EventGatewayExhausted    EventType = "GATEWAY_EXHAUSTED"
	EventGatewayDisconnected EventType = "GATEWAY_DISCONNECTED"

	EventGuildCreate EventType = "GUILD_CREATE"
	EventGuildUpdate EventType = "GUILD_UPDATE"
	EventGuildDelete EventType = "GUILD_DELETE"

	EventChannelCreate EventType = "CHANNEL_CREATE"
	EventChannelUpdate EventType = "CHANNEL_UPDATE"
	EventChannelDelete EventType = "CHANNEL_DELETE"
	EventThreadCreate  EventType = "CHANNEL_THREAD_CREATE"

	EventMessageCreate     EventType = "MESSAGE_CREATE"
	EventMessageUpdate     EventType = "MESSAGE_UPDATE"
	EventMessageDelete     EventType = "MESSAGE_DELETE"
	EventMessageDeleteBulk EventType = "MESSAGE_DELETE_BULK"

	EventPresenceUpdate EventType = "PRESENCE_UPDATE"
	EventTypingStart    EventType = "TYPING_START"
	EventUserUpdate     EventType = "USER_UPDATE"

	EventVoiceStateUpdate EventType = "VOICE_STATE_UPDATE"

	EventRelationshipAdd    EventType = "RELATIONSHIP_ADD"
	EventRelationshipUpdate EventType = "RELATIONSHIP_UPDATE"
	EventRelationshipRemove EventType = "RELATIONSHIP_REMOVE"

	EventGuildMemberAdd    EventType = "GUILD_MEMBER_ADD"
	EventGuildMemberUpdate EventType = "GUILD_MEMBER_UPDATE"
	EventGuildMemberRemove EventType = "GUILD_MEMBER_REMOVE"

	EventGuildRoleCreate EventType = "GUILD_ROLE_CREATE"
	EventGuildRoleUpdate EventType = "GUILD_ROLE_UPDATE"
	EventGuildRoleDelete EventType = "GUILD_ROLE_DELETE"

	EventGuildBanAdd    EventType = "GUILD_BAN_ADD"
	EventGuildBanRemove EventType = "GUILD_BAN_REMOVE"

	EventNotificationCreate EventType = "NOTIFICATION_CREATE"
	EventNotificationUpdate EventType = "NOTIFICATION_UPDATE"
	EventNotificationDelete EventType = "NOTIFICATION_DELETE"

	EventCallRing   EventType = "CALL_RING"
	EventChannelAck EventType = "CHANNEL_ACK"

	EventAnnouncementCreate EventType = "ANNOUNCEMENT_CREATE"
	EventAnnouncementUpdate EventType = "ANNOUNCEMENT_UPDATE"
	EventAnnouncementDelete EventType = "ANNOUNCEMENT_DELETE"
)

type ReadyEvent struct {
	SessionId   string             `json:"session_id"`
	User        *User              `json:"user"`
	Guilds      []*Guild           `json:"guilds,omitempty"`
	DmChannels  []*Channel         `json:"dm_channels,omitempty"`
	Presences   []*PresenceEntry   `json:"presences,omitempty"`
	VoiceStates []*VoiceStateEntry `json:"voice_states,omitempty"`
}

type GatewayErrorEvent struct {
	Message string `json:"message,omitempty"`
}

type GuildEvent struct {
	Guild *Guild `json:"guild"`
}

type GuildDeleteEvent struct {
	GuildId Id `json:"guild_id"`
}

type ChannelEvent struct {
	Channel *Channel `json:"channel"`
}

type ChannelDeleteEvent struct {
	ChannelId Id `json:"channel_id"`
	GuildId   Id `json:"guild_id,omitempty"`
}

type MessageEvent struct {
	Message *Message `json:"message"`
}

type MessageDeleteEvent struct {
	ChannelId Id `json:"channel_id"`
	MessageId Id `json:"message_id"`
}

type MessageDeleteBulkEvent struct {
	ChannelId  Id   `json:"channel_id"`
	MessageIds []Id `json:"message_ids"`
}

type PresenceUpdateEvent struct {
	UserId Id             `json:"user_id"`
	Status PresenceStatus `json:"status"`
}

type TypingStartEvent struct {
	ChannelId Id `json:"channel_id"`
	UserId    Id `json:"user_id"`
}

type UserUpdateEvent struct {
	User *User `json:"user"`
}

type VoiceStateAction string

const (
	VoiceStateJoin   VoiceStateAction = "join"
	VoiceStateLeave  VoiceStateAction = "leave"
	VoiceStateChange VoiceStateAction = "update"
)

type VoiceStateUpdateEvent struct {
	Action      VoiceStateAction  `json:"action"`
	ChannelId   Id                `json:"channel_id"`
	UserId      Id                `json:"user_id"`
	Participant *VoiceParticipant `json:"participant,omitempty"`
}

type RelationshipEvent struct {
	Relationship *Relationship `json:"relationship"`
}

type RelationshipRemoveEvent struct {
	UserId Id `json:"user_id"`
}

type GuildMemberEvent struct {
	GuildId Id           `json:"guild_id"`
	Member  *GuildMember `json:"member"`
}

type GuildMemberRemoveEvent struct {
	GuildId Id `json:"guild_id"`
	UserId  Id `json:"user_id"`
}

type GuildRoleEvent struct {
	GuildId Id `json:"guild_id"`
	RoleId  Id `json:"role_id"`
}

type GuildBanEvent struct {
	GuildId Id `json:"guild_id"`
	UserId  Id `json:"user_id"`
}

type NotificationEvent struct {
	Notification *Notification `json:"notification"`
}

type NotificationDeleteEvent struct {
	NotificationId Id `json:"notification_id"`
}

type CallRingEvent struct {
	ChannelId Id `json:"channel_id"`
	CallerId  Id `json:"caller_id"`
}

type ChannelAckEvent struct {
	ChannelId  Id `json:"channel_id"`
	LastReadId Id `json:"last_read_id,omitempty"`
}

type AnnouncementEvent struct {
	Announcement *Announcement `json:"announcement"`
}

type AnnouncementDeleteEvent struct {
	AnnouncementId Id `json:"announcement_id"`
}

// categories the gateway sends but this client intentionally does not act
// on (activity, game, soundboard, screen share, location)
type RawEvent struct {
	Type EventType
	Data json.RawMessage
}

func DecodeEvent(eventType EventType, data json.RawMessage) (any, error) {
	decode := func(payload any) (any, error) {
		if len(data) == 0 {
			return payload, nil
		}
		if err := json.Unmarshal(data, payload); err != nil {
			return nil, fmt.Errorf("decode %s: %w", eventType, err)
		}
		return payload, nil
	}

	switch eventType {
	case EventReady:
		return decode(&ReadyEvent{})
	case EventGatewayAuthFailed, EventGatewayExhausted, EventGatewayDisconnected:
		return decode(&GatewayErrorEvent{})
	case EventGuildCreate, EventGuildUpdate:
		return decode(&GuildEvent{})
	case EventGuildDelete:
		return decode(&GuildDeleteEvent{})
	case EventChannelCreate, EventChannelUpdate, EventThreadCreate:
		return decode(&ChannelEvent{})
	case EventChannelDelete:
		return decode(&ChannelDeleteEvent{})
	case EventMessageCreate, EventMessageUpdate:
		return decode(&MessageEvent{})
	case EventMessageDelete:
		return decode(&MessageDeleteEvent{})
	case EventMessageDeleteBulk:
		return decode(&MessageDeleteBulkEvent{})
	case EventPresenceUpdate:
		return decode(&PresenceUpdateEvent{})
	case EventTypingStart:
		return decode(&TypingStartEvent{})
	case EventUserUpdate:
		return decode(&UserUpdateEvent{})
	case EventVoiceStateUpdate:
		return decode(&VoiceStateUpdateEvent{})
	case EventRelationshipAdd, EventRelationshipUpdate:
		return decode(&RelationshipEvent{})
	case EventRelationshipRemove:
		return decode(&RelationshipRemoveEvent{})
	case EventGuildMemberAdd, EventGuildMemberUpdate:
		return decode(&GuildMemberEvent{})
	case EventGuildMemberRemove:
		return decode(&GuildMemberRemoveEvent{})
	case EventGuildRoleCreate, EventGuildRoleUpdate, EventGuildRoleDelete:
		return decode(&GuildRoleEvent{})
	case EventGuildBanAdd, EventGuildBanRemove:
		return decode(&GuildBanEvent{})
	case EventNotificationCreate, EventNotificationUpdate:
		return decode(&NotificationEvent{})
	case EventNotificationDelete:
		return decode(&NotificationDeleteEvent{})
	case EventCallRing:
		return decode(&CallRingEvent{})
	case EventChannelAck:
		return decode(&ChannelAckEvent{})
	case EventAnnouncementCreate, EventAnnouncementUpdate:
		return decode(&AnnouncementEvent{})
	case EventAnnouncementDelete:
		return decode(&AnnouncementDeleteEvent{})
	default:
		return &RawEvent{
			Type: eventType,
			Data: data,
		}, nil
	}
}
