package client

import (
	"context"
	"fmt"
	"sync"

	"github.com/golang/glog"
)

// glue around the third-party voice/video room sdk. the sdk owns track
// negotiation and codecs. this controller only mirrors its participant and
// track events into the voice stores and issues commands back to it

type MediaConnectionState string

const (
	MediaConnectionConnecting   MediaConnectionState = "connecting"
	MediaConnectionConnected    MediaConnectionState = "connected"
	MediaConnectionDisconnected MediaConnectionState = "disconnected"
)

type MediaTrackKind string

const (
	MediaTrackAudio  MediaTrackKind = "audio"
	MediaTrackVideo  MediaTrackKind = "video"
	MediaTrackScreen MediaTrackKind = "screen"
)

type MediaSessionEvents struct {
	ParticipantConnected    func(participant *VoiceParticipant)
	ParticipantDisconnected func(userId Id)
	TrackSubscribed         func(userId Id, kind MediaTrackKind)
	TrackUnsubscribed       func(userId Id, kind MediaTrackKind)
	ActiveSpeakersChanged   func(userIds []Id)
	ConnectionStateChanged  func(state MediaConnectionState)
}

type MediaSession interface {
	Connect(ctx context.Context, url string, token string, events *MediaSessionEvents) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	SetCameraEnabled(ctx context.Context, enabled bool) error
	Disconnect(ctx context.Context) error
}

type VoiceController struct {
	state  *ClientState
	media  MediaSession
	toasts *ToastSink

	// serializes join/leave so a second join cannot start before the
	// previous channel is fully left
	opLock sync.Mutex
}

func NewVoiceController(state *ClientState, media MediaSession, toasts *ToastSink) *VoiceController {
	return &VoiceController{
		state:  state,
		media:  media,
		toasts: toasts,
	}
}

// joining while already joined forces an explicit leave-then-join sequence
func (self *VoiceController) JoinChannel(ctx context.Context, channelId Id, url string, token string) error {
	self.opLock.Lock()
	defer self.opLock.Unlock()

	if joined := self.state.ActiveVoiceChannelId(); !joined.IsZero() {
		if joined == channelId {
			return nil
		}
		if err := self.leave(ctx); err != nil {
			return fmt.Errorf("leave before join: %w", err)
		}
	}

	events := &MediaSessionEvents{
		ParticipantConnected: func(participant *VoiceParticipant) {
			self.state.ApplyVoiceJoin(channelId, participant)
		},
		ParticipantDisconnected: func(userId Id) {
			self.state.ApplyVoiceLeave(channelId, userId)
		},
		TrackSubscribed: func(userId Id, kind MediaTrackKind) {
			glog.V(2).Infof("[v]track %s %s\n", userId, kind)
		},
		TrackUnsubscribed: func(userId Id, kind MediaTrackKind) {
			glog.V(2).Infof("[v]untrack %s %s\n", userId, kind)
		},
		ActiveSpeakersChanged: func(userIds []Id) {
			self.applyActiveSpeakers(userIds)
		},
		ConnectionStateChanged: func(state MediaConnectionState) {
			if state == MediaConnectionDisconnected {
				// nothing accumulated before the drop can be trusted
				self.state.VoiceActive.Clear()
			}
		},
	}

	if err := self.media.Connect(ctx, url, token, events); err != nil {
		return err
	}
	self.state.SetActiveVoiceChannelId(channelId)

	if user := self.state.CurrentUser(); user != nil {
		self.state.ApplyVoiceJoin(channelId, &VoiceParticipant{
			UserId:    user.UserId,
			Name:      user.Name,
			AvatarUrl: user.AvatarUrl,
		})
	}
	return nil
}

func (self *VoiceController) LeaveChannel(ctx context.Context) error {
	self.opLock.Lock()
	defer self.opLock.Unlock()

	return self.leave(ctx)
}

// must be called with opLock held
func (self *VoiceController) leave(ctx context.Context) error {
	channelId := self.state.ActiveVoiceChannelId()
	if channelId.IsZero() {
		return nil
	}

	err := self.media.Disconnect(ctx)

	if userId := self.state.CurrentUserId(); !userId.IsZero() {
		self.state.ApplyVoiceLeave(channelId, userId)
	}
	self.state.VoiceActive.Clear()
	self.state.SetActiveVoiceChannelId(Id{})
	return err
}

func (self *VoiceController) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	if err := self.media.SetMicrophoneEnabled(ctx, enabled); err != nil {
		return err
	}
	self.updateSelf(func(participant *VoiceParticipant) {
		participant.Muted = !enabled
	})
	return nil
}

func (self *VoiceController) SetCameraEnabled(ctx context.Context, enabled bool) error {
	return self.media.SetCameraEnabled(ctx, enabled)
}

func (self *VoiceController) updateSelf(mutate func(participant *VoiceParticipant)) {
	userId := self.state.CurrentUserId()
	if userId.IsZero() {
		return
	}
	channelId := self.state.ActiveVoiceChannelId()
	if channelId.IsZero() {
		return
	}
	if participant, ok := self.state.VoiceActive.Get(userId); ok {
		next := participant.Copy()
		mutate(next)
		self.state.ApplyVoiceJoin(channelId, next)
	}
}

func (self *VoiceController) applyActiveSpeakers(userIds []Id) {
	speaking := map[Id]bool{}
	for _, userId := range userIds {
		speaking[userId] = true
	}
	channelId := self.state.ActiveVoiceChannelId()
	if channelId.IsZero() {
		return
	}
	for userId, participant := range self.state.VoiceActive.Snapshot() {
		if participant.Speaking != speaking[userId] {
			next := participant.Copy()
			next.Speaking = speaking[userId]
			self.state.ApplyVoiceJoin(channelId, next)
		}
	}
}
