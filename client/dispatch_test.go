package client

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-playground/assert/v2"
)

// in-memory api that completes every call synchronously, so tests observe
// dispatch side effects without a server
type stubApi struct {
	guilds        []*Guild
	dmChannels    []*Channel
	readState     []*ReadStateEntry
	relationships []*Relationship
	mutePrefs     *FetchMutePrefsResult
	notifications []*Notification
	permissions   map[Id]PermissionSet
	messages      map[Id][]*Message

	fetchMessagesCount    int
	fetchPermissionsCount int
	ackCount              int
	ackErr                error
}

func newStubApi() *stubApi {
	return &stubApi{
		mutePrefs:   &FetchMutePrefsResult{},
		permissions: map[Id]PermissionSet{},
		messages:    map[Id][]*Message{},
	}
}

func (self *stubApi) FetchGuilds(callback FetchGuildsCallback) {
	callback.Result(&FetchGuildsResult{Guilds: self.guilds}, nil)
}

func (self *stubApi) FetchDmChannels(callback FetchDmChannelsCallback) {
	callback.Result(&FetchDmChannelsResult{Channels: self.dmChannels}, nil)
}

func (self *stubApi) FetchReadState(callback FetchReadStateCallback) {
	callback.Result(&FetchReadStateResult{Entries: self.readState}, nil)
}

func (self *stubApi) FetchRelationships(callback FetchRelationshipsCallback) {
	callback.Result(&FetchRelationshipsResult{Relationships: self.relationships}, nil)
}

func (self *stubApi) FetchMutePrefs(callback FetchMutePrefsCallback) {
	callback.Result(self.mutePrefs, nil)
}

func (self *stubApi) FetchNotifications(callback FetchNotificationsCallback) {
	callback.Result(&FetchNotificationsResult{Notifications: self.notifications}, nil)
}

func (self *stubApi) FetchPermissions(guildId Id, callback FetchPermissionsCallback) {
	self.fetchPermissionsCount += 1
	callback.Result(&FetchPermissionsResult{
		GuildId:     guildId,
		Permissions: self.permissions[guildId],
	}, nil)
}

func (self *stubApi) FetchMessages(channelId Id, before Id, callback FetchMessagesCallback) {
	self.fetchMessagesCount += 1
	callback.Result(&FetchMessagesResult{
		ChannelId: channelId,
		Messages:  self.messages[channelId],
	}, nil)
}

func (self *stubApi) AckChannel(ackChannel *AckChannelArgs, callback AckChannelCallback) {
	self.ackCount += 1
	callback.Result(&AckChannelResult{}, self.ackErr)
}

type dispatchFixture struct {
	state      *ClientState
	api        *stubApi
	toasts     *ToastSink
	dispatcher *Dispatcher
	posted     []*Toast
}

func newDispatchFixture() *dispatchFixture {
	state := NewClientState()
	api := newStubApi()
	toasts := NewToastSink()
	typing := NewTypingTracker(state.Typing, 50*time.Millisecond)
	resync := NewResynchronizer(state, api, toasts)
	dispatcher := NewDispatcher(state, api, toasts, typing, resync)

	fixture := &dispatchFixture{
		state:      state,
		api:        api,
		toasts:     toasts,
		dispatcher: dispatcher,
	}
	toasts.AddToastCallback(func(toast *Toast) {
		fixture.posted = append(fixture.posted, toast)
	})
	return fixture
}

func (self *dispatchFixture) toastsOfKind(kind string) []*Toast {
	matched := []*Toast{}
	for _, toast := range self.posted {
		if toast.Kind == kind {
			matched = append(matched, toast)
		}
	}
	return matched
}

func readyEvent(user *User) *ReadyEvent {
	return &ReadyEvent{
		SessionId: NewId().String(),
		User:      user,
	}
}

func TestDispatchReadySeedsStores(t *testing.T) {
	fixture := newDispatchFixture()

	user := &User{UserId: NewId(), Name: "me"}
	guild := &Guild{GuildId: NewId(), Name: "guild"}
	dm := &Channel{ChannelId: NewId(), Type: ChannelTypeDm}
	friend := NewId()

	fixture.api.guilds = []*Guild{guild}
	fixture.api.relationships = []*Relationship{
		{UserId: friend, Type: RelationshipTypeFriend, Name: "ada"},
	}

	event := readyEvent(user)
	event.Guilds = []*Guild{guild}
	event.DmChannels = []*Channel{dm}
	event.Presences = []*PresenceEntry{
		{UserId: friend, Status: PresenceStatusIdle},
	}
	fixture.dispatcher.Dispatch(EventReady, event)

	assert.Equal(t, user.UserId, fixture.state.CurrentUserId())
	_, ok := fixture.state.Guilds.Get(guild.GuildId)
	assert.Equal(t, true, ok)
	// a dm channel lands in both channel stores
	_, ok = fixture.state.DmChannels.Get(dm.ChannelId)
	assert.Equal(t, true, ok)
	_, ok = fixture.state.Channels.Get(dm.ChannelId)
	assert.Equal(t, true, ok)

	status, _ := fixture.state.Presence.Get(friend)
	assert.Equal(t, PresenceStatusIdle, status)
	status, _ = fixture.state.Presence.Get(user.UserId)
	assert.Equal(t, PresenceStatusOnline, status)

	relationship, ok := fixture.state.Relationships.Get(friend)
	assert.Equal(t, true, ok)
	assert.Equal(t, RelationshipTypeFriend, relationship.Type)

	// first READY is not a reconnect
	assert.Equal(t, 0, len(fixture.toastsOfKind(ToastKindReconnected)))
	assert.Equal(t, 0, fixture.api.fetchMessagesCount)
}

func TestDispatchReconnectRecovery(t *testing.T) {
	fixture := newDispatchFixture()

	user := &User{UserId: NewId()}
	channelId := NewId()
	fixture.state.SetActiveChannelId(channelId)

	stale := &Message{MessageId: NewIdAt(time.Now().Add(-time.Hour)), ChannelId: channelId}
	fixture.state.AppendMessage(stale)

	fresh := &Message{MessageId: NewId(), ChannelId: channelId, Content: "fresh"}
	fixture.api.messages[channelId] = []*Message{fresh}

	fixture.dispatcher.Dispatch(EventReady, readyEvent(user))
	assert.Equal(t, 0, fixture.api.fetchMessagesCount)

	fixture.dispatcher.Dispatch(EventReady, readyEvent(user))

	// the cached page was cleared and reloaded from the server
	assert.Equal(t, 1, fixture.api.fetchMessagesCount)
	messages := fixture.state.ChannelMessages(channelId)
	assert.Equal(t, 1, len(messages))
	assert.Equal(t, fresh.MessageId, messages[0].MessageId)

	// exactly one reconnected banner
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindReconnected)))
}

func TestDispatchMessageCreate(t *testing.T) {
	fixture := newDispatchFixture()

	me := NewId()
	fixture.state.SetCurrentUser(&User{UserId: me})

	channelId := NewId()
	guildId := NewId()
	fixture.state.Channels.Set(channelId, &Channel{
		ChannelId: channelId,
		Type:      ChannelTypeText,
		GuildId:   guildId,
	})

	message := &Message{
		MessageId: NewId(),
		ChannelId: channelId,
		AuthorId:  NewId(),
		Content:   "hello",
		CreatedAt: time.Now(),
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: message})

	count, _ := fixture.state.UnreadCounts.Get(channelId)
	assert.Equal(t, 1, count)
	channel, _ := fixture.state.Channels.Get(channelId)
	assert.Equal(t, message.MessageId, channel.LastMessageId)

	// duplicate delivery changes nothing
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: message})
	assert.Equal(t, 1, len(fixture.state.ChannelMessages(channelId)))
	count, _ = fixture.state.UnreadCounts.Get(channelId)
	assert.Equal(t, 1, count)

	// own messages never move counters
	own := &Message{
		MessageId: NewId(),
		ChannelId: channelId,
		AuthorId:  me,
		CreatedAt: time.Now(),
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: own})
	count, _ = fixture.state.UnreadCounts.Get(channelId)
	assert.Equal(t, 1, count)
}

func TestDispatchActiveChannelSuppression(t *testing.T) {
	fixture := newDispatchFixture()

	fixture.state.SetCurrentUser(&User{UserId: NewId()})
	channelId := NewId()
	fixture.state.SetActiveChannelId(channelId)

	message := &Message{
		MessageId:       NewId(),
		ChannelId:       channelId,
		AuthorId:        NewId(),
		MentionEveryone: true,
		CreatedAt:       time.Now(),
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: message})

	// visible on screen: no unread, no mention count, no banner
	count, _ := fixture.state.UnreadCounts.Get(channelId)
	assert.Equal(t, 0, count)
	assert.Equal(t, 0, len(fixture.toastsOfKind(ToastKindMention)))
	// the message itself still landed
	assert.Equal(t, 1, len(fixture.state.ChannelMessages(channelId)))
}

func TestDispatchMutedChannel(t *testing.T) {
	fixture := newDispatchFixture()

	me := NewId()
	fixture.state.SetCurrentUser(&User{UserId: me})
	channelId := NewId()
	fixture.state.MutedChannels.Set(channelId, true)

	message := &Message{
		MessageId:      NewId(),
		ChannelId:      channelId,
		AuthorId:       NewId(),
		MentionUserIds: []Id{me},
		CreatedAt:      time.Now(),
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: message})

	// counters stay truthful under mute, only the banner is suppressed
	count, _ := fixture.state.UnreadCounts.Get(channelId)
	assert.Equal(t, 1, count)
	entry, _ := fixture.state.Unreads.Get(channelId)
	assert.Equal(t, 1, entry.MentionCount)
	assert.Equal(t, 0, len(fixture.toastsOfKind(ToastKindMention)))
}

func TestDispatchMentionToast(t *testing.T) {
	fixture := newDispatchFixture()

	me := NewId()
	fixture.state.SetCurrentUser(&User{UserId: me})

	channelId := NewId()
	message := &Message{
		MessageId:      NewId(),
		ChannelId:      channelId,
		AuthorId:       NewId(),
		MentionUserIds: []Id{me},
		CreatedAt:      time.Now(),
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: message})
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindMention)))

	// a dm message banners without any mention
	dmChannelId := NewId()
	fixture.state.Channels.Set(dmChannelId, &Channel{
		ChannelId: dmChannelId,
		Type:      ChannelTypeDm,
	})
	dm := &Message{
		MessageId: NewId(),
		ChannelId: dmChannelId,
		AuthorId:  NewId(),
		CreatedAt: time.Now(),
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: dm})
	assert.Equal(t, 2, len(fixture.toastsOfKind(ToastKindMention)))
}

func TestDispatchRoleMention(t *testing.T) {
	fixture := newDispatchFixture()

	me := NewId()
	fixture.state.SetCurrentUser(&User{UserId: me})

	guildId := NewId()
	channelId := NewId()
	roleId := NewId()
	fixture.state.Channels.Set(channelId, &Channel{
		ChannelId: channelId,
		Type:      ChannelTypeText,
		GuildId:   guildId,
	})

	roleMessage := func() *Message {
		return &Message{
			MessageId:      NewId(),
			ChannelId:      channelId,
			AuthorId:       NewId(),
			MentionRoleIds: []Id{roleId},
			CreatedAt:      time.Now(),
		}
	}

	// without a loaded member record the role mention does not count
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: roleMessage()})
	_, ok := fixture.state.Unreads.Get(channelId)
	assert.Equal(t, false, ok)

	fixture.state.Members.Set(MemberKey{GuildId: guildId, UserId: me}, &GuildMember{
		GuildId: guildId,
		UserId:  me,
		RoleIds: []Id{roleId},
	})
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: roleMessage()})
	entry, ok := fixture.state.Unreads.Get(channelId)
	assert.Equal(t, true, ok)
	assert.Equal(t, 1, entry.MentionCount)
}

func TestDispatchThreadActivity(t *testing.T) {
	fixture := newDispatchFixture()

	fixture.state.SetCurrentUser(&User{UserId: NewId()})

	parentId := NewId()
	threadId := NewId()
	fixture.state.Channels.Set(parentId, &Channel{
		ChannelId: parentId,
		Type:      ChannelTypeText,
	})
	fixture.state.Channels.Set(threadId, &Channel{
		ChannelId:       threadId,
		Type:            ChannelTypeText,
		ParentChannelId: parentId,
	})

	createdAt := time.Now()
	message := &Message{
		MessageId: NewId(),
		ChannelId: threadId,
		AuthorId:  NewId(),
		CreatedAt: createdAt,
	}
	fixture.dispatcher.Dispatch(EventMessageCreate, &MessageEvent{Message: message})

	// the parent surfaces the thread activity but keeps its own last message
	parent, _ := fixture.state.Channels.Get(parentId)
	assert.Equal(t, createdAt.UnixMilli(), parent.LastActivityAt)
	assert.Equal(t, true, parent.LastMessageId.IsZero())

	thread, _ := fixture.state.Channels.Get(threadId)
	assert.Equal(t, message.MessageId, thread.LastMessageId)
}

func TestDispatchGuildDelete(t *testing.T) {
	fixture := newDispatchFixture()

	guildId := NewId()
	fixture.api.permissions[guildId] = PermissionViewChannels

	fixture.dispatcher.Dispatch(EventGuildCreate, &GuildEvent{
		Guild: &Guild{GuildId: guildId, Name: "guild"},
	})
	assert.Equal(t, PermissionViewChannels, fixture.state.PermissionsFor(guildId))

	fixture.dispatcher.Dispatch(EventGuildDelete, &GuildDeleteEvent{GuildId: guildId})

	_, ok := fixture.state.Guilds.Get(guildId)
	assert.Equal(t, false, ok)
	// the permission entry goes with it, reads fail closed
	assert.Equal(t, PermissionsNone, fixture.state.PermissionsFor(guildId))
}

func TestDispatchVoiceStateUpdate(t *testing.T) {
	fixture := newDispatchFixture()

	channelId := NewId()
	fixture.state.SetActiveVoiceChannelId(channelId)

	participant := &VoiceParticipant{UserId: NewId(), Name: "ada"}
	fixture.dispatcher.Dispatch(EventVoiceStateUpdate, &VoiceStateUpdateEvent{
		Action:      VoiceStateJoin,
		ChannelId:   channelId,
		UserId:      participant.UserId,
		Participant: participant,
	})

	_, ok := fixture.state.VoiceActive.Get(participant.UserId)
	assert.Equal(t, true, ok)
	occupants, _ := fixture.state.VoiceOccupancy.Get(channelId)
	_, ok = occupants[participant.UserId]
	assert.Equal(t, true, ok)

	fixture.dispatcher.Dispatch(EventVoiceStateUpdate, &VoiceStateUpdateEvent{
		Action:    VoiceStateLeave,
		ChannelId: channelId,
		UserId:    participant.UserId,
	})

	_, ok = fixture.state.VoiceActive.Get(participant.UserId)
	assert.Equal(t, false, ok)
	_, ok = fixture.state.VoiceOccupancy.Get(channelId)
	assert.Equal(t, false, ok)
}

func TestDispatchRelationshipNotificationDedupe(t *testing.T) {
	fixture := newDispatchFixture()

	requester := NewId()

	// the server-backed notification arrives first and is authoritative
	fixture.dispatcher.Dispatch(EventNotificationCreate, &NotificationEvent{
		Notification: &Notification{
			NotificationId: NewId(),
			Kind:           "friend_request",
			Body:           "ada sent a friend request",
			RelatedUserId:  requester,
		},
	})
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindNotification)))

	fixture.dispatcher.Dispatch(EventRelationshipAdd, &RelationshipEvent{
		Relationship: &Relationship{
			UserId: requester,
			Type:   RelationshipTypePendingIncoming,
			Name:   "ada",
		},
	})
	// the client-computed alert is suppressed for the same user
	assert.Equal(t, 0, len(fixture.toastsOfKind(ToastKindFriendRequest)))

	// a different requester with no covering notification still alerts
	other := NewId()
	fixture.dispatcher.Dispatch(EventRelationshipAdd, &RelationshipEvent{
		Relationship: &Relationship{
			UserId: other,
			Type:   RelationshipTypePendingIncoming,
			Name:   "grace",
		},
	})
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindFriendRequest)))

	// an update that keeps the pending state does not re-alert
	fixture.dispatcher.Dispatch(EventRelationshipUpdate, &RelationshipEvent{
		Relationship: &Relationship{
			UserId: other,
			Type:   RelationshipTypePendingIncoming,
			Name:   "grace",
		},
	})
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindFriendRequest)))
}

func TestDispatchUserUpdate(t *testing.T) {
	fixture := newDispatchFixture()

	userId := NewId()
	guildId := NewId()
	fixture.state.Members.Set(MemberKey{GuildId: guildId, UserId: userId}, &GuildMember{
		GuildId: guildId,
		UserId:  userId,
		Name:    "old",
	})

	fixture.dispatcher.Dispatch(EventUserUpdate, &UserUpdateEvent{
		User: &User{UserId: userId, Name: "new"},
	})

	member, _ := fixture.state.Members.Get(MemberKey{GuildId: guildId, UserId: userId})
	assert.Equal(t, "new", member.Name)
}

func TestDispatchTypingStart(t *testing.T) {
	fixture := newDispatchFixture()

	me := NewId()
	fixture.state.SetCurrentUser(&User{UserId: me})
	channelId := NewId()

	// no self echo
	fixture.dispatcher.Dispatch(EventTypingStart, &TypingStartEvent{
		ChannelId: channelId,
		UserId:    me,
	})
	assert.Equal(t, 0, fixture.state.Typing.Len())

	other := NewId()
	fixture.dispatcher.Dispatch(EventTypingStart, &TypingStartEvent{
		ChannelId: channelId,
		UserId:    other,
	})
	_, ok := fixture.state.Typing.Get(TypingKey{ChannelId: channelId, UserId: other})
	assert.Equal(t, true, ok)
}

func TestDispatchGatewayErrors(t *testing.T) {
	fixture := newDispatchFixture()

	fatalReasons := []string{}
	fixture.dispatcher.AddFatalCallback(func(reason string) {
		fatalReasons = append(fatalReasons, reason)
	})

	fixture.dispatcher.Dispatch(EventGatewayDisconnected, &GatewayErrorEvent{Message: "read timeout"})
	assert.Equal(t, 0, len(fatalReasons))

	fixture.dispatcher.Dispatch(EventGatewayExhausted, &GatewayErrorEvent{Message: "gave up"})
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindExhausted)))
	assert.Equal(t, 0, len(fatalReasons))

	fixture.dispatcher.Dispatch(EventGatewayAuthFailed, &GatewayErrorEvent{Message: "bad token"})
	assert.Equal(t, []string{"bad token"}, fatalReasons)
	assert.Equal(t, 1, len(fixture.toastsOfKind(ToastKindAuthFailed)))
}

func TestDispatchMemberAndBan(t *testing.T) {
	fixture := newDispatchFixture()

	me := NewId()
	fixture.state.SetCurrentUser(&User{UserId: me})

	guildId := NewId()
	fixture.state.Guilds.Set(guildId, &Guild{GuildId: guildId})

	other := NewId()
	fixture.dispatcher.Dispatch(EventGuildMemberAdd, &GuildMemberEvent{
		GuildId: guildId,
		Member:  &GuildMember{GuildId: guildId, UserId: other},
	})
	_, ok := fixture.state.Members.Get(MemberKey{GuildId: guildId, UserId: other})
	assert.Equal(t, true, ok)

	// banning someone else only drops the member record
	fixture.dispatcher.Dispatch(EventGuildBanAdd, &GuildBanEvent{
		GuildId: guildId,
		UserId:  other,
	})
	_, ok = fixture.state.Members.Get(MemberKey{GuildId: guildId, UserId: other})
	assert.Equal(t, false, ok)
	_, ok = fixture.state.Guilds.Get(guildId)
	assert.Equal(t, true, ok)

	// a ban on the current user removes the guild itself
	fixture.dispatcher.Dispatch(EventGuildBanAdd, &GuildBanEvent{
		GuildId: guildId,
		UserId:  me,
	})
	_, ok = fixture.state.Guilds.Get(guildId)
	assert.Equal(t, false, ok)
}

func TestDispatchContainsPanics(t *testing.T) {
	fixture := newDispatchFixture()

	// a handler panic on a malformed payload must not take down dispatch
	fixture.dispatcher.Dispatch(EventGuildCreate, (*GuildEvent)(nil))

	guildId := NewId()
	fixture.dispatcher.Dispatch(EventGuildCreate, &GuildEvent{
		Guild: &Guild{GuildId: guildId},
	})
	_, ok := fixture.state.Guilds.Get(guildId)
	assert.Equal(t, true, ok)
}

func TestDispatchUnknownEvent(t *testing.T) {
	fixture := newDispatchFixture()

	fixture.dispatcher.Dispatch(EventType("SOMETHING_NEW"), &RawEvent{
		Type: "SOMETHING_NEW",
	})
	// nothing to assert beyond survival
	assert.Equal(t, 0, len(fixture.posted))
}

func TestDispatchChannelAck(t *testing.T) {
	fixture := newDispatchFixture()

	channelId := NewId()
	fixture.state.IncrementUnread(channelId, true)
	fixture.state.IncrementUnread(channelId, false)

	lastReadId := NewId()
	fixture.dispatcher.Dispatch(EventChannelAck, &ChannelAckEvent{
		ChannelId:  channelId,
		LastReadId: lastReadId,
	})

	count, _ := fixture.state.UnreadCounts.Get(channelId)
	assert.Equal(t, 0, count)
	entry, _ := fixture.state.Unreads.Get(channelId)
	assert.Equal(t, 0, entry.MentionCount)
	assert.Equal(t, lastReadId, entry.LastReadId)
}

func TestDispatchCallRing(t *testing.T) {
	fixture := newDispatchFixture()

	channelId := NewId()
	fixture.dispatcher.Dispatch(EventCallRing, &CallRingEvent{
		ChannelId: channelId,
		CallerId:  NewId(),
	})

	rings := fixture.toastsOfKind(ToastKindCallRing)
	assert.Equal(t, 1, len(rings))
	assert.Equal(t, fmt.Sprintf("Incoming call in %s", channelId), rings[0].Message)
}
