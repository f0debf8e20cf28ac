package client

import (
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

// ClientState owns every domain store for one session. stores are
// independently constructible (no package-level singletons) so multiple
// sessions can coexist, and all mutation goes through the narrow store api

type ClientState struct {
	Guilds     *Store[Id, *Guild]
	Channels   *Store[Id, *Channel]
	DmChannels *Store[Id, *Channel]
	// channel id -> messages deduplicated by id, ascending by id
	Messages *Store[Id, []*Message]
	Presence *Store[Id, PresenceStatus]
	// channel id and user id -> expiry deadline, unix milli
	Typing *Store[TypingKey, int64]
	// channel id -> read watermark and mention count
	Unreads *Store[Id, *UnreadEntry]
	// channel id -> unread message count
	UnreadCounts  *Store[Id, int]
	Relationships *Store[Id, *Relationship]
	Members       *Store[MemberKey, *GuildMember]
	// guild id -> effective permissions. absent reads fail closed
	Permissions   *Store[Id, PermissionSet]
	MutedChannels *Store[Id, bool]
	MutedGuilds   *Store[Id, bool]
	Notifications *Store[Id, *Notification]
	Announcements *Store[Id, *Announcement]
	// participants of the voice channel currently joined, user id keyed
	VoiceActive *Store[Id, *VoiceParticipant]
	// channel id -> user id -> participant, for every channel (sidebar previews)
	VoiceOccupancy *Store[Id, map[Id]*VoiceParticipant]

	stateLock            sync.Mutex
	currentUser          *User
	activeChannelId      Id
	activeVoiceChannelId Id
}

func NewClientState() *ClientState {
	return &ClientState{
		Guilds:         NewStore[Id, *Guild](),
		Channels:       NewStore[Id, *Channel](),
		DmChannels:     NewStore[Id, *Channel](),
		Messages:       NewStore[Id, []*Message](),
		Presence:       NewStore[Id, PresenceStatus](),
		Typing:         NewStore[TypingKey, int64](),
		Unreads:        NewStore[Id, *UnreadEntry](),
		UnreadCounts:   NewStore[Id, int](),
		Relationships:  NewStore[Id, *Relationship](),
		Members:        NewStore[MemberKey, *GuildMember](),
		Permissions:    NewStore[Id, PermissionSet](),
		MutedChannels:  NewStore[Id, bool](),
		MutedGuilds:    NewStore[Id, bool](),
		Notifications:  NewStore[Id, *Notification](),
		Announcements:  NewStore[Id, *Announcement](),
		VoiceActive:    NewStore[Id, *VoiceParticipant](),
		VoiceOccupancy: NewStore[Id, map[Id]*VoiceParticipant](),
	}
}

// clears every store so stale data cannot leak into a later session.
// subscribers observe the clearing
func (self *ClientState) Clear() {
	self.Guilds.Clear()
	self.Channels.Clear()
	self.DmChannels.Clear()
	self.Messages.Clear()
	self.Presence.Clear()
	self.Typing.Clear()
	self.Unreads.Clear()
	self.UnreadCounts.Clear()
	self.Relationships.Clear()
	self.Members.Clear()
	self.Permissions.Clear()
	self.MutedChannels.Clear()
	self.MutedGuilds.Clear()
	self.Notifications.Clear()
	self.Announcements.Clear()
	self.VoiceActive.Clear()
	self.VoiceOccupancy.Clear()

	self.stateLock.Lock()
	defer self.stateLock.Unlock()
	self.currentUser = nil
	self.activeChannelId = Id{}
	self.activeVoiceChannelId = Id{}
}

// snapshot-read accessors instead of one-shot subscriptions

func (self *ClientState) CurrentUser() *User {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.currentUser
}

func (self *ClientState) CurrentUserId() Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.currentUser == nil {
		return Id{}
	}
	return self.currentUser.UserId
}

func (self *ClientState) SetCurrentUser(user *User) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.currentUser = user
}

func (self *ClientState) ActiveChannelId() Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.activeChannelId
}

func (self *ClientState) SetActiveChannelId(channelId Id) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.activeChannelId = channelId
}

// the guild of the channel currently viewed, zero for dms
func (self *ClientState) ActiveGuildId() Id {
	channelId := self.ActiveChannelId()
	if channelId.IsZero() {
		return Id{}
	}
	if channel, ok := self.Channels.Get(channelId); ok {
		return channel.GuildId
	}
	return Id{}
}

func (self *ClientState) ActiveVoiceChannelId() Id {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	return self.activeVoiceChannelId
}

func (self *ClientState) SetActiveVoiceChannelId(channelId Id) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.activeVoiceChannelId = channelId
}

// fail closed: a guild without a cache entry has no permissions
func (self *ClientState) PermissionsFor(guildId Id) PermissionSet {
	permissions, ok := self.Permissions.Get(guildId)
	if !ok {
		return PermissionsNone
	}
	return permissions
}

// message sequences

func (self *ClientState) ChannelMessages(channelId Id) []*Message {
	messages, _ := self.Messages.Get(channelId)
	return messages
}

// inserts into the channel sequence keeping ascending id order. appending
// an id that is already present is a no-op
func (self *ClientState) AppendMessage(message *Message) bool {
	messages, _ := self.Messages.Get(message.ChannelId)
	i := sort.Search(len(messages), func(i int) bool {
		return CompareIds(message.MessageId, messages[i].MessageId) <= 0
	})
	if i < len(messages) && messages[i].MessageId == message.MessageId {
		return false
	}
	next := make([]*Message, 0, len(messages)+1)
	next = append(next, messages[:i]...)
	next = append(next, message)
	next = append(next, messages[i:]...)
	self.Messages.Set(message.ChannelId, next)
	return true
}

// replace by id. absent id is a no-op
func (self *ClientState) ReplaceMessage(message *Message) bool {
	messages, ok := self.Messages.Get(message.ChannelId)
	if !ok {
		return false
	}
	for i, existing := range messages {
		if existing.MessageId == message.MessageId {
			next := make([]*Message, len(messages))
			copy(next, messages)
			next[i] = message
			self.Messages.Set(message.ChannelId, next)
			return true
		}
	}
	return false
}

// remove by ids. absent ids are safe no-ops
func (self *ClientState) RemoveMessages(channelId Id, messageIds []Id) int {
	messages, ok := self.Messages.Get(channelId)
	if !ok || len(messages) == 0 {
		return 0
	}
	removeIds := map[Id]bool{}
	for _, messageId := range messageIds {
		removeIds[messageId] = true
	}
	next := make([]*Message, 0, len(messages))
	for _, message := range messages {
		if !removeIds[message.MessageId] {
			next = append(next, message)
		}
	}
	removedCount := len(messages) - len(next)
	if removedCount == 0 {
		return 0
	}
	self.Messages.Set(channelId, next)
	return removedCount
}

func (self *ClientState) ClearChannelMessages(channelId Id) {
	self.Messages.Remove(channelId)
}

// seeds a page of messages from the server, merging with anything already
// held (idempotent by id)
func (self *ClientState) MergeMessages(channelId Id, messages []*Message) {
	existing, _ := self.Messages.Get(channelId)
	byId := map[Id]*Message{}
	for _, message := range existing {
		byId[message.MessageId] = message
	}
	for _, message := range messages {
		byId[message.MessageId] = message
	}
	next := maps.Values(byId)
	sort.Slice(next, func(i int, j int) bool {
		return CompareIds(next[i].MessageId, next[j].MessageId) < 0
	})
	self.Messages.Set(channelId, next)
}

// unread counters

// a channel currently viewed never accumulates unread count
func (self *ClientState) IncrementUnread(channelId Id, mention bool) {
	if self.ActiveChannelId() == channelId {
		return
	}
	count, _ := self.UnreadCounts.Get(channelId)
	self.UnreadCounts.Set(channelId, count+1)
	if mention {
		entry, ok := self.Unreads.Get(channelId)
		if !ok {
			entry = &UnreadEntry{}
		}
		self.Unreads.Set(channelId, &UnreadEntry{
			LastReadId:   entry.LastReadId,
			MentionCount: entry.MentionCount + 1,
		})
	}
}

// clears both the count and the mention count for the channel
func (self *ClientState) AckChannelLocal(channelId Id, lastReadId Id) {
	self.UnreadCounts.Set(channelId, 0)
	entry, _ := self.Unreads.Get(channelId)
	if entry == nil {
		entry = &UnreadEntry{}
	}
	if lastReadId.IsZero() {
		lastReadId = entry.LastReadId
	}
	self.Unreads.Set(channelId, &UnreadEntry{
		LastReadId: lastReadId,
	})
}

// voice. the active map and the occupancy map must stay consistent, so the
// dual writes below happen inside the same dispatch call

func (self *ClientState) ApplyVoiceJoin(channelId Id, participant *VoiceParticipant) {
	occupants, _ := self.VoiceOccupancy.Get(channelId)
	next := maps.Clone(occupants)
	if next == nil {
		next = map[Id]*VoiceParticipant{}
	}
	next[participant.UserId] = participant
	self.VoiceOccupancy.Set(channelId, next)

	if self.ActiveVoiceChannelId() == channelId {
		self.VoiceActive.Set(participant.UserId, participant)
	}
}

func (self *ClientState) ApplyVoiceLeave(channelId Id, userId Id) {
	if occupants, ok := self.VoiceOccupancy.Get(channelId); ok {
		next := maps.Clone(occupants)
		delete(next, userId)
		if len(next) == 0 {
			self.VoiceOccupancy.Remove(channelId)
		} else {
			self.VoiceOccupancy.Set(channelId, next)
		}
	}

	if self.ActiveVoiceChannelId() == channelId {
		self.VoiceActive.Remove(userId)
	}
}

// clear-then-rebuild from the authoritative snapshot, never append onto
// stale entries
func (self *ClientState) RebuildVoiceState(entries []*VoiceStateEntry) {
	occupancy := map[Id]map[Id]*VoiceParticipant{}
	for _, entry := range entries {
		if entry.Participant == nil {
			continue
		}
		occupants, ok := occupancy[entry.ChannelId]
		if !ok {
			occupants = map[Id]*VoiceParticipant{}
			occupancy[entry.ChannelId] = occupants
		}
		occupants[entry.Participant.UserId] = entry.Participant
	}
	self.VoiceOccupancy.SetAll(occupancy)

	activeChannelId := self.ActiveVoiceChannelId()
	active := map[Id]*VoiceParticipant{}
	if !activeChannelId.IsZero() {
		for userId, participant := range occupancy[activeChannelId] {
			active[userId] = participant
		}
	}
	self.VoiceActive.SetAll(active)
}

// a user's display identity is denormalized into member records, dm
// recipient lists, relationships and voice maps. keep every copy in sync
func (self *ClientState) ApplyUserProfile(user *User) {
	for key := range self.Members.Snapshot() {
		if key.UserId != user.UserId {
			continue
		}
		self.Members.Update(key, func(member *GuildMember) *GuildMember {
			next := *member
			next.Name = user.Name
			next.AvatarUrl = user.AvatarUrl
			return &next
		})
	}

	for channelId, channel := range self.DmChannels.Snapshot() {
		updated := false
		nextRecipients := make([]*User, len(channel.Recipients))
		for i, recipient := range channel.Recipients {
			if recipient.UserId == user.UserId {
				nextRecipients[i] = user
				updated = true
			} else {
				nextRecipients[i] = recipient
			}
		}
		if updated {
			next := channel.Copy()
			next.Recipients = nextRecipients
			self.DmChannels.Set(channelId, next)
			// a dm channel is a member of both stores
			if _, ok := self.Channels.Get(channelId); ok {
				self.Channels.Set(channelId, next)
			}
		}
	}

	self.Relationships.Update(user.UserId, func(relationship *Relationship) *Relationship {
		next := *relationship
		next.Name = user.Name
		next.AvatarUrl = user.AvatarUrl
		return &next
	})

	for channelId, occupants := range self.VoiceOccupancy.Snapshot() {
		if participant, ok := occupants[user.UserId]; ok {
			next := participant.Copy()
			next.Name = user.Name
			next.AvatarUrl = user.AvatarUrl
			nextOccupants := maps.Clone(occupants)
			nextOccupants[user.UserId] = next
			self.VoiceOccupancy.Set(channelId, nextOccupants)
		}
	}
	self.VoiceActive.Update(user.UserId, func(participant *VoiceParticipant) *VoiceParticipant {
		next := participant.Copy()
		next.Name = user.Name
		next.AvatarUrl = user.AvatarUrl
		return next
	})
}
