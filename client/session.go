package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
)

// composition root for one signed-in session. owns the stores, the
// dispatcher and the gateway, and wires them together. sessions are
// independent: tests and multi-account clients construct several

type SessionSettings struct {
	ApiUrl     string
	GatewayUrl string
	Device     string

	GatewaySettings *GatewaySettings
	QualitySettings *ConnectionQualitySettings
	TypingTimeout   time.Duration
}

func DefaultSessionSettings(apiUrl string, gatewayUrl string) *SessionSettings {
	return &SessionSettings{
		ApiUrl:          apiUrl,
		GatewayUrl:      gatewayUrl,
		Device:          "driftchat-go",
		GatewaySettings: DefaultGatewaySettings(),
		QualitySettings: DefaultConnectionQualitySettings(),
	}
}

type Session struct {
	ctx    context.Context
	cancel context.CancelFunc

	settings *SessionSettings
	token    string

	state      *ClientState
	api        *Api
	toasts     *ToastSink
	typing     *TypingTracker
	quality    *ConnectionQualityTracker
	resync     *Resynchronizer
	dispatcher *Dispatcher
	voice      *VoiceController

	stateLock sync.Mutex
	gateway   GatewayClient
}

func NewSession(ctx context.Context, settings *SessionSettings, token string) (*Session, error) {
	sessionToken, err := ParseSessionTokenUnverified(token)
	if err != nil {
		return nil, fmt.Errorf("invalid session token: %w", err)
	}

	cancelCtx, cancel := context.WithCancel(ctx)

	state := NewClientState()
	// identity hint before the first READY replaces it
	state.SetCurrentUser(&User{
		UserId: sessionToken.UserId,
		Name:   sessionToken.UserName,
	})

	api := NewApiWithContext(cancelCtx, settings.ApiUrl)
	api.SetByJwt(token)

	toasts := NewToastSink()
	typing := NewTypingTracker(state.Typing, settings.TypingTimeout)
	quality := NewConnectionQualityTracker(settings.QualitySettings)
	resync := NewResynchronizer(state, api, toasts)
	dispatcher := NewDispatcher(state, api, toasts, typing, resync)

	session := &Session{
		ctx:        cancelCtx,
		cancel:     cancel,
		settings:   settings,
		token:      token,
		state:      state,
		api:        api,
		toasts:     toasts,
		typing:     typing,
		quality:    quality,
		resync:     resync,
		dispatcher: dispatcher,
	}

	dispatcher.AddFatalCallback(func(reason string) {
		glog.Infof("[s]fatal = %s\n", reason)
		session.Disconnect()
	})

	return session, nil
}

// the media sdk is injected by the embedding application
func (self *Session) SetMediaSession(media MediaSession) {
	self.voice = NewVoiceController(self.state, media, self.toasts)
}

func (self *Session) State() *ClientState {
	return self.state
}

func (self *Session) Api() *Api {
	return self.api
}

func (self *Session) Toasts() *ToastSink {
	return self.toasts
}

func (self *Session) Quality() *ConnectionQualityTracker {
	return self.quality
}

func (self *Session) Voice() *VoiceController {
	return self.voice
}

func (self *Session) Dispatcher() *Dispatcher {
	return self.dispatcher
}

// connecting replaces the gateway wholesale. an old instance is
// disconnected and discarded, never reused
func (self *Session) Connect() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.gateway != nil {
		self.gateway.Disconnect()
	}
	gateway := NewWsGateway(
		self.ctx,
		self.settings.GatewayUrl,
		self.token,
		self.settings.Device,
		self.quality,
		self.settings.GatewaySettings,
	)
	gateway.On(self.dispatcher.Dispatch)
	if err := gateway.Connect(); err != nil {
		return err
	}
	self.gateway = gateway
	return nil
}

func (self *Session) Disconnect() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.gateway != nil {
		self.gateway.Disconnect()
		self.gateway = nil
	}
	self.typing.Clear()
	self.quality.Disconnected()
}

// tears the session down and clears every store so nothing leaks into a
// later session
func (self *Session) Logout() {
	self.Disconnect()
	self.resync.Reset()
	self.state.Clear()
	self.api.Close()
	self.cancel()
}

func (self *Session) UpdatePresence(status PresenceStatus) {
	self.stateLock.Lock()
	gateway := self.gateway
	self.stateLock.Unlock()

	if gateway != nil {
		gateway.UpdatePresence(status)
	}
	if userId := self.state.CurrentUserId(); !userId.IsZero() {
		self.state.Presence.Set(userId, status)
	}
}

// marks the channel as the one being viewed. its unread count stops
// accumulating and it is acked
func (self *Session) ViewChannel(channelId Id) {
	self.state.SetActiveChannelId(channelId)

	if len(self.state.ChannelMessages(channelId)) == 0 {
		self.api.FetchMessages(channelId, Id{}, NewApiCallback(func(result *FetchMessagesResult, err error) {
			if err != nil {
				glog.Infof("[s]message load error = %s\n", err)
				return
			}
			self.state.MergeMessages(channelId, result.Messages)
		}))
	}

	self.AckChannel(channelId)
}

// optimistic: counters clear locally first, then a best-effort server call
func (self *Session) AckChannel(channelId Id) {
	var lastReadId Id
	if messages := self.state.ChannelMessages(channelId); 0 < len(messages) {
		lastReadId = messages[len(messages)-1].MessageId
	}

	countOperation := BeginOptimistic(self.state.UnreadCounts)
	unreadOperation := BeginOptimistic(self.state.Unreads)
	self.state.AckChannelLocal(channelId, lastReadId)

	self.api.AckChannel(&AckChannelArgs{
		ChannelId:  channelId,
		LastReadId: lastReadId,
	}, NewApiCallback(func(result *AckChannelResult, err error) {
		if err != nil {
			glog.Infof("[s]ack error %s = %s\n", channelId, err)
			countOperation.Revert()
			unreadOperation.Revert()
		}
	}))
}

// optimistic mute toggle with rollback on failure
func (self *Session) SetChannelMuted(channelId Id, muted bool) {
	RunOptimistic(
		self.state.MutedChannels,
		self.toasts,
		"Could not update mute preference",
		func() {
			if muted {
				self.state.MutedChannels.Set(channelId, true)
			} else {
				self.state.MutedChannels.Remove(channelId)
			}
		},
		func(complete func(err error)) {
			self.api.UpdateMutePref(&UpdateMutePrefArgs{
				ChannelId: channelId,
				Muted:     muted,
			}, NewApiCallback(func(result *UpdateMutePrefResult, err error) {
				complete(err)
			}))
		},
	)
}

func (self *Session) SetGuildMuted(guildId Id, muted bool) {
	RunOptimistic(
		self.state.MutedGuilds,
		self.toasts,
		"Could not update mute preference",
		func() {
			if muted {
				self.state.MutedGuilds.Set(guildId, true)
			} else {
				self.state.MutedGuilds.Remove(guildId)
			}
		},
		func(complete func(err error)) {
			self.api.UpdateMutePref(&UpdateMutePrefArgs{
				GuildId: guildId,
				Muted:   muted,
			}, NewApiCallback(func(result *UpdateMutePrefResult, err error) {
				complete(err)
			}))
		},
	)
}
