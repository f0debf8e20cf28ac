package client

import (
	"sync"

	"github.com/golang/glog"
)

// distinguishes the first READY of a session from a reconnect READY.
// treating every READY identically would either skip recovery on reconnect
// or wastefully re-fetch on first load

type Resynchronizer struct {
	state  *ClientState
	api    DispatchApi
	toasts *ToastSink

	stateLock sync.Mutex
	readySeen bool
}

func NewResynchronizer(state *ClientState, api DispatchApi, toasts *ToastSink) *Resynchronizer {
	return &Resynchronizer{
		state:  state,
		api:    api,
		toasts: toasts,
	}
}

// returns true when the READY was a reconnect and recovery ran
func (self *Resynchronizer) OnReady() bool {
	reconnect := false
	func() {
		self.stateLock.Lock()
		defer self.stateLock.Unlock()

		reconnect = self.readySeen
		self.readySeen = true
	}()
	if !reconnect {
		return false
	}

	// messages cached for the channel being viewed may have gaps from the
	// drop. clear and reissue the initial page fetch
	channelId := self.state.ActiveChannelId()
	if !channelId.IsZero() {
		self.state.ClearChannelMessages(channelId)
		self.api.FetchMessages(channelId, Id{}, NewApiCallback(func(result *FetchMessagesResult, err error) {
			if err != nil {
				glog.Infof("[resync]message reload error = %s\n", err)
				return
			}
			self.state.MergeMessages(channelId, result.Messages)
		}))
	}

	self.toasts.Post(ToastSeverityInfo, ToastKindReconnected, "Reconnected")
	glog.Infof("[resync]recovered after reconnect\n")
	return true
}

// a new login starts a fresh page lifetime
func (self *Resynchronizer) Reset() {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.readySeen = false
}
