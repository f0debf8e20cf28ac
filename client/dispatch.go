package client

import (
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// the single callback bound to the gateway. every inbound event passes
// through Dispatch exactly once, in wire order, and fans out to the domain
// stores. store mutations for one event happen within the same synchronous
// call, so no other dispatch interleaves between them

// the rest calls the dispatcher issues as side effects
type DispatchApi interface {
	FetchGuilds(callback FetchGuildsCallback)
	FetchDmChannels(callback FetchDmChannelsCallback)
	FetchReadState(callback FetchReadStateCallback)
	FetchRelationships(callback FetchRelationshipsCallback)
	FetchMutePrefs(callback FetchMutePrefsCallback)
	FetchNotifications(callback FetchNotificationsCallback)
	FetchPermissions(guildId Id, callback FetchPermissionsCallback)
	FetchMessages(channelId Id, before Id, callback FetchMessagesCallback)
	AckChannel(ackChannel *AckChannelArgs, callback AckChannelCallback)
}

// invoked when the gateway session cannot continue (auth rejected)
type SessionFatalFunction = func(reason string)

type Dispatcher struct {
	state  *ClientState
	api    DispatchApi
	toasts *ToastSink
	typing *TypingTracker
	resync *Resynchronizer

	stateLock sync.Mutex
	// relationship alerts already covered by a server-backed notification.
	// the server-backed stream is authoritative, the client-computed alert
	// is suppressed when both could fire for the same user
	notifiedUserIds map[Id]bool

	fatalCallbacks *callbackList[SessionFatalFunction]
}

func NewDispatcher(
	state *ClientState,
	api DispatchApi,
	toasts *ToastSink,
	typing *TypingTracker,
	resync *Resynchronizer,
) *Dispatcher {
	return &Dispatcher{
		state:           state,
		api:             api,
		toasts:          toasts,
		typing:          typing,
		resync:          resync,
		notifiedUserIds: map[Id]bool{},
		fatalCallbacks:  newCallbackList[SessionFatalFunction](),
	}
}

func (self *Dispatcher) AddFatalCallback(callback SessionFatalFunction) func() {
	callbackId := self.fatalCallbacks.Add(callback)
	return func() {
		self.fatalCallbacks.Remove(callbackId)
	}
}

// one malformed event must not prevent dispatch of the next event on the
// stream, so each call is contained
func (self *Dispatcher) Dispatch(eventType EventType, payload any) {
	defer func() {
		if r := recover(); r != nil {
			glog.Errorf("[d]%s handler panic = %s\n", eventType, r)
		}
	}()

	switch event := payload.(type) {
	case *ReadyEvent:
		self.ready(event)
	case *GatewayErrorEvent:
		self.gatewayError(eventType, event)
	case *GuildEvent:
		self.guildUpsert(event.Guild)
	case *GuildDeleteEvent:
		self.guildRemove(event.GuildId)
	case *ChannelEvent:
		self.channelUpsert(event.Channel)
	case *ChannelDeleteEvent:
		self.channelRemove(event.ChannelId)
	case *MessageEvent:
		if eventType == EventMessageCreate {
			self.messageCreate(event.Message)
		} else {
			self.state.ReplaceMessage(event.Message)
		}
	case *MessageDeleteEvent:
		self.state.RemoveMessages(event.ChannelId, []Id{event.MessageId})
	case *MessageDeleteBulkEvent:
		self.state.RemoveMessages(event.ChannelId, event.MessageIds)
	case *PresenceUpdateEvent:
		// last write wins
		self.state.Presence.Set(event.UserId, event.Status)
	case *TypingStartEvent:
		self.typingStart(event)
	case *UserUpdateEvent:
		self.userUpdate(event.User)
	case *VoiceStateUpdateEvent:
		self.voiceStateUpdate(event)
	case *RelationshipEvent:
		self.relationshipUpsert(event.Relationship)
	case *RelationshipRemoveEvent:
		self.state.Relationships.Remove(event.UserId)
	case *GuildMemberEvent:
		self.memberUpsert(event)
	case *GuildMemberRemoveEvent:
		self.memberRemove(event)
	case *GuildRoleEvent:
		self.roleEvent(event)
	case *GuildBanEvent:
		self.banEvent(eventType, event)
	case *NotificationEvent:
		self.notificationUpsert(eventType, event.Notification)
	case *NotificationDeleteEvent:
		self.state.Notifications.Remove(event.NotificationId)
	case *CallRingEvent:
		self.callRing(event)
	case *ChannelAckEvent:
		self.state.AckChannelLocal(event.ChannelId, event.LastReadId)
	case *AnnouncementEvent:
		self.state.Announcements.Set(event.Announcement.AnnouncementId, event.Announcement)
	case *AnnouncementDeleteEvent:
		self.state.Announcements.Remove(event.AnnouncementId)
	case *RawEvent:
		// received but intentionally not acted on
		glog.V(2).Infof("[d]ignore %s\n", event.Type)
	default:
		glog.V(2).Infof("[d]unhandled %s (%T)\n", eventType, payload)
	}
}

func (self *Dispatcher) ready(event *ReadyEvent) {
	if event.User != nil {
		self.state.SetCurrentUser(event.User)
	}

	for _, guild := range event.Guilds {
		self.state.Guilds.Set(guild.GuildId, guild)
	}
	for _, channel := range event.DmChannels {
		self.state.DmChannels.Set(channel.ChannelId, channel)
		self.state.Channels.Set(channel.ChannelId, channel)
	}

	// seed presence for the current user and the bundled snapshot
	if event.User != nil {
		self.state.Presence.Set(event.User.UserId, PresenceStatusOnline)
	}
	for _, presence := range event.Presences {
		self.state.Presence.Set(presence.UserId, presence.Status)
	}

	// authoritative voice snapshot, never append onto stale entries
	self.state.RebuildVoiceState(event.VoiceStates)

	self.bulkLoad()

	self.resync.OnReady()
}

// fire and forget. each load is idempotent and simply overwrites with the
// latest server truth, so completion order does not matter
func (self *Dispatcher) bulkLoad() {
	self.api.FetchGuilds(NewApiCallback(func(result *FetchGuildsResult, err error) {
		if err != nil {
			glog.Infof("[d]guild load error = %s\n", err)
			return
		}
		for _, guild := range result.Guilds {
			self.state.Guilds.Set(guild.GuildId, guild)
		}
	}))
	self.api.FetchDmChannels(NewApiCallback(func(result *FetchDmChannelsResult, err error) {
		if err != nil {
			glog.Infof("[d]dm load error = %s\n", err)
			return
		}
		for _, channel := range result.Channels {
			self.state.DmChannels.Set(channel.ChannelId, channel)
			self.state.Channels.Set(channel.ChannelId, channel)
		}
	}))
	self.api.FetchReadState(NewApiCallback(func(result *FetchReadStateResult, err error) {
		if err != nil {
			glog.Infof("[d]read state load error = %s\n", err)
			return
		}
		for _, entry := range result.Entries {
			self.state.Unreads.Set(entry.ChannelId, &UnreadEntry{
				LastReadId:   entry.LastReadId,
				MentionCount: entry.MentionCount,
			})
			self.state.UnreadCounts.Set(entry.ChannelId, entry.UnreadCount)
		}
	}))
	self.api.FetchRelationships(NewApiCallback(func(result *FetchRelationshipsResult, err error) {
		if err != nil {
			glog.Infof("[d]relationship load error = %s\n", err)
			return
		}
		for _, relationship := range result.Relationships {
			self.state.Relationships.Set(relationship.UserId, relationship)
		}
	}))
	self.api.FetchMutePrefs(NewApiCallback(func(result *FetchMutePrefsResult, err error) {
		if err != nil {
			glog.Infof("[d]mute pref load error = %s\n", err)
			return
		}
		for _, channelId := range result.MutedChannelIds {
			self.state.MutedChannels.Set(channelId, true)
		}
		for _, guildId := range result.MutedGuildIds {
			self.state.MutedGuilds.Set(guildId, true)
		}
	}))
	self.api.FetchNotifications(NewApiCallback(func(result *FetchNotificationsResult, err error) {
		if err != nil {
			glog.Infof("[d]notification load error = %s\n", err)
			return
		}
		for _, notification := range result.Notifications {
			self.state.Notifications.Set(notification.NotificationId, notification)
		}
	}))
}

func (self *Dispatcher) gatewayError(eventType EventType, event *GatewayErrorEvent) {
	switch eventType {
	case EventGatewayAuthFailed:
		// fatal to the session
		self.toasts.Post(ToastSeverityError, ToastKindAuthFailed, "Session rejected, please log in again")
		for _, callback := range self.fatalCallbacks.Get() {
			callback(event.Message)
		}
	case EventGatewayExhausted:
		self.toasts.Post(ToastSeverityError, ToastKindExhausted, "Cannot reach the server, giving up")
	case EventGatewayDisconnected:
		// recoverable. the gateway owns the backoff, the typing indicators
		// just go stale
		self.typing.Clear()
	}
}

// a new or changed guild can have different effective permissions.
// permissions are never patched incrementally, always a full reload
func (self *Dispatcher) guildUpsert(guild *Guild) {
	self.state.Guilds.Set(guild.GuildId, guild)
	self.reloadPermissions(guild.GuildId)
}

// the guild and its permission cache entry are removed in the same
// synchronous call so a ui read never observes guild-removed with
// permissions still present
func (self *Dispatcher) guildRemove(guildId Id) {
	self.state.Guilds.Remove(guildId)
	self.state.Permissions.Remove(guildId)
}

func (self *Dispatcher) reloadPermissions(guildId Id) {
	self.api.FetchPermissions(guildId, NewApiCallback(func(result *FetchPermissionsResult, err error) {
		if err != nil {
			glog.Infof("[d]permission reload error %s = %s\n", guildId, err)
			return
		}
		self.state.Permissions.Set(guildId, result.Permissions)
	}))
}

func (self *Dispatcher) channelUpsert(channel *Channel) {
	self.state.Channels.Set(channel.ChannelId, channel)
	// a dm/group channel is a member of both stores
	if channel.Type.IsDirect() {
		self.state.DmChannels.Set(channel.ChannelId, channel)
	}
}

func (self *Dispatcher) channelRemove(channelId Id) {
	// removal from a store that does not contain the key is a safe no-op
	self.state.Channels.Remove(channelId)
	self.state.DmChannels.Remove(channelId)
	self.state.Messages.Remove(channelId)
}

func (self *Dispatcher) messageCreate(message *Message) {
	if !self.state.AppendMessage(message) {
		// duplicate delivery
		return
	}

	bump := func(channelId Id, update func(channel *Channel) *Channel) {
		self.state.Channels.Update(channelId, update)
		self.state.DmChannels.Update(channelId, update)
	}
	bump(message.ChannelId, func(channel *Channel) *Channel {
		next := channel.Copy()
		next.LastMessageId = message.MessageId
		next.LastActivityAt = message.CreatedAt.UnixMilli()
		return next
	})

	channel, hasChannel := self.state.Channels.Get(message.ChannelId)

	// a thread message surfaces on the parent channel too
	if hasChannel && channel.IsThread() {
		bump(channel.ParentChannelId, func(parent *Channel) *Channel {
			next := parent.Copy()
			next.LastActivityAt = message.CreatedAt.UnixMilli()
			return next
		})
	}

	currentUserId := self.state.CurrentUserId()
	if message.AuthorId == currentUserId {
		return
	}

	var guildId Id
	if hasChannel {
		guildId = channel.GuildId
	}
	mention := self.isMention(message, guildId, currentUserId)

	// suppressed entirely for the channel being viewed
	self.state.IncrementUnread(message.ChannelId, mention)
	if self.state.ActiveChannelId() == message.ChannelId {
		return
	}

	// counters still moved above for muted channels (badge truth), but no
	// banner fires
	channelMuted, _ := self.state.MutedChannels.Get(message.ChannelId)
	guildMuted := false
	if !guildId.IsZero() {
		guildMuted, _ = self.state.MutedGuilds.Get(guildId)
	}
	if channelMuted || guildMuted {
		return
	}

	direct := hasChannel && channel.Type.IsDirect()
	if mention || direct {
		self.toasts.Post(ToastSeverityInfo, ToastKindMention, fmt.Sprintf("New message in %s", message.ChannelId))
	}
}

// explicit user mention, @everyone, @here, or a role the current user holds.
// role mentions only count when the member record for this guild is already
// loaded, to avoid false positives from stale data
func (self *Dispatcher) isMention(message *Message, guildId Id, currentUserId Id) bool {
	if currentUserId.IsZero() {
		return false
	}
	if message.MentionEveryone || message.MentionHere {
		return true
	}
	for _, userId := range message.MentionUserIds {
		if userId == currentUserId {
			return true
		}
	}
	if 0 < len(message.MentionRoleIds) && !guildId.IsZero() {
		member, loaded := self.state.Members.Get(MemberKey{
			GuildId: guildId,
			UserId:  currentUserId,
		})
		if loaded {
			for _, roleId := range message.MentionRoleIds {
				if member.HasRole(roleId) {
					return true
				}
			}
		}
	}
	return false
}

func (self *Dispatcher) typingStart(event *TypingStartEvent) {
	// no self echo
	if event.UserId == self.state.CurrentUserId() {
		return
	}
	self.typing.Start(event.ChannelId, event.UserId)
}

func (self *Dispatcher) userUpdate(user *User) {
	if user.UserId == self.state.CurrentUserId() {
		self.state.SetCurrentUser(user)
	}
	self.state.ApplyUserProfile(user)
}

// the dual write to the active map and the occupancy map happens inside
// this one dispatch call
func (self *Dispatcher) voiceStateUpdate(event *VoiceStateUpdateEvent) {
	switch event.Action {
	case VoiceStateLeave:
		self.state.ApplyVoiceLeave(event.ChannelId, event.UserId)
	case VoiceStateJoin, VoiceStateChange:
		if event.Participant == nil {
			glog.V(2).Infof("[d]voice %s without participant\n", event.Action)
			return
		}
		self.state.ApplyVoiceJoin(event.ChannelId, event.Participant)
	default:
		glog.V(2).Infof("[d]voice unknown action %s\n", event.Action)
	}
}

func (self *Dispatcher) relationshipUpsert(relationship *Relationship) {
	previous, _ := self.state.Relationships.Get(relationship.UserId)
	self.state.Relationships.Set(relationship.UserId, relationship)

	// surface an incoming request, unless the server-backed notification
	// stream already covered this user (it is authoritative)
	incoming := relationship.Type == RelationshipTypePendingIncoming
	wasIncoming := previous != nil && previous.Type == RelationshipTypePendingIncoming
	if incoming && !wasIncoming && !self.serverNotified(relationship.UserId) {
		self.toasts.Post(
			ToastSeverityInfo,
			ToastKindFriendRequest,
			fmt.Sprintf("%s sent a friend request", relationship.Name),
		)
	}
}

func (self *Dispatcher) serverNotified(userId Id) bool {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.notifiedUserIds[userId]
}

func (self *Dispatcher) notificationUpsert(eventType EventType, notification *Notification) {
	self.state.Notifications.Set(notification.NotificationId, notification)

	if !notification.RelatedUserId.IsZero() {
		self.stateLock.Lock()
		self.notifiedUserIds[notification.RelatedUserId] = true
		self.stateLock.Unlock()
	}

	if eventType == EventNotificationCreate && !notification.Read {
		self.toasts.Post(ToastSeverityInfo, ToastKindNotification, notification.Body)
	}
}

func (self *Dispatcher) memberUpsert(event *GuildMemberEvent) {
	member := event.Member
	self.state.Members.Set(MemberKey{
		GuildId: event.GuildId,
		UserId:  member.UserId,
	}, member)

	if member.UserId == self.state.CurrentUserId() {
		self.reloadPermissions(event.GuildId)
	}
}

func (self *Dispatcher) memberRemove(event *GuildMemberRemoveEvent) {
	self.state.Members.Remove(MemberKey{
		GuildId: event.GuildId,
		UserId:  event.UserId,
	})

	// leaving a guild removes it and invalidates its permissions together
	if event.UserId == self.state.CurrentUserId() {
		self.guildRemove(event.GuildId)
	}
}

// role structure changed. reload when it can affect what the user sees
func (self *Dispatcher) roleEvent(event *GuildRoleEvent) {
	if event.GuildId == self.state.ActiveGuildId() {
		self.reloadPermissions(event.GuildId)
		return
	}
	// a role event can touch the current user in any guild, and the member
	// record tells us whether it does
	member, loaded := self.state.Members.Get(MemberKey{
		GuildId: event.GuildId,
		UserId:  self.state.CurrentUserId(),
	})
	if loaded && member.HasRole(event.RoleId) {
		self.reloadPermissions(event.GuildId)
	}
}

func (self *Dispatcher) banEvent(eventType EventType, event *GuildBanEvent) {
	if eventType != EventGuildBanAdd {
		return
	}
	if event.UserId == self.state.CurrentUserId() {
		self.guildRemove(event.GuildId)
	} else {
		self.state.Members.Remove(MemberKey{
			GuildId: event.GuildId,
			UserId:  event.UserId,
		})
	}
}

func (self *Dispatcher) callRing(event *CallRingEvent) {
	self.toasts.Post(
		ToastSeverityInfo,
		ToastKindCallRing,
		fmt.Sprintf("Incoming call in %s", event.ChannelId),
	)
}
