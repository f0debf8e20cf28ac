package client

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// the gateway is the long-lived bidirectional event stream. the dispatcher
// is registered with On and invoked once per named event, in wire order.
// in-order delivery holds within one connection epoch

type GatewayDispatchFunction = func(eventType EventType, payload any)

type GatewayClient interface {
	Connect() error
	Disconnect()
	On(dispatch GatewayDispatchFunction)
	UpdatePresence(status PresenceStatus)
}

type GatewaySettings struct {
	WsHandshakeTimeout time.Duration
	AuthTimeout        time.Duration
	HeartbeatInterval  time.Duration
	WriteTimeout       time.Duration
	ReadTimeout        time.Duration
}

func DefaultGatewaySettings() *GatewaySettings {
	return &GatewaySettings{
		WsHandshakeTimeout: 2 * time.Second,
		AuthTimeout:        2 * time.Second,
		HeartbeatInterval:  15 * time.Second,
		WriteTimeout:       5 * time.Second,
		ReadTimeout:        45 * time.Second,
	}
}

// every frame on the wire is a named event with a json payload
type gatewayFrame struct {
	T string          `json:"t"`
	D json.RawMessage `json:"d,omitempty"`
}

const (
	frameAuth         = "AUTH"
	frameAuthOk       = "AUTH_OK"
	frameAuthFailed   = "AUTH_FAILED"
	frameHeartbeat    = "HEARTBEAT"
	frameHeartbeatAck = "HEARTBEAT_ACK"
	framePresence     = "PRESENCE"
)

type gatewayAuth struct {
	Token  string `json:"token"`
	Device string `json:"device,omitempty"`
}

type gatewayHeartbeat struct {
	SendTime int64 `json:"send_time"`
}

type gatewayPresence struct {
	Status PresenceStatus `json:"status"`
}

type WsGateway struct {
	ctx    context.Context
	cancel context.CancelFunc

	gatewayUrl string
	auth       *gatewayAuth
	quality    *ConnectionQualityTracker
	settings   *GatewaySettings

	stateLock sync.Mutex
	dispatch  GatewayDispatchFunction
	started   bool

	writeLock sync.Mutex
	conn      *websocket.Conn
}

func NewWsGatewayWithDefaults(
	ctx context.Context,
	gatewayUrl string,
	token string,
	device string,
	quality *ConnectionQualityTracker,
) *WsGateway {
	return NewWsGateway(ctx, gatewayUrl, token, device, quality, DefaultGatewaySettings())
}

func NewWsGateway(
	ctx context.Context,
	gatewayUrl string,
	token string,
	device string,
	quality *ConnectionQualityTracker,
	settings *GatewaySettings,
) *WsGateway {
	cancelCtx, cancel := context.WithCancel(ctx)
	return &WsGateway{
		ctx:        cancelCtx,
		cancel:     cancel,
		gatewayUrl: gatewayUrl,
		auth: &gatewayAuth{
			Token:  token,
			Device: device,
		},
		quality:  quality,
		settings: settings,
	}
}

// registers the single dispatcher callback. must be called before Connect
func (self *WsGateway) On(dispatch GatewayDispatchFunction) {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	self.dispatch = dispatch
}

func (self *WsGateway) Connect() error {
	self.stateLock.Lock()
	defer self.stateLock.Unlock()

	if self.dispatch == nil {
		return fmt.Errorf("no dispatcher registered")
	}
	if self.started {
		return fmt.Errorf("already connected")
	}
	self.started = true
	go self.run()
	return nil
}

// a disconnected gateway is discarded, never reused. reconnecting within
// run replaces the websocket, reconnecting a session replaces the gateway
func (self *WsGateway) Disconnect() {
	self.cancel()
	self.quality.CancelRetry()

	self.writeLock.Lock()
	defer self.writeLock.Unlock()
	if self.conn != nil {
		self.conn.Close()
		self.conn = nil
	}
}

func (self *WsGateway) UpdatePresence(status PresenceStatus) {
	err := self.writeFrame(framePresence, &gatewayPresence{
		Status: status,
	})
	if err != nil {
		glog.V(2).Infof("[gw]presence write error = %s\n", err)
	}
}

func (self *WsGateway) writeFrame(t string, payload any) error {
	self.writeLock.Lock()
	defer self.writeLock.Unlock()

	if self.conn == nil {
		return fmt.Errorf("not connected")
	}
	d, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	frameBytes, err := json.Marshal(&gatewayFrame{
		T: t,
		D: d,
	})
	if err != nil {
		return err
	}
	self.conn.SetWriteDeadline(time.Now().Add(self.settings.WriteTimeout))
	return self.conn.WriteMessage(websocket.TextMessage, frameBytes)
}

func (self *WsGateway) run() {
	defer self.cancel()

	for {
		connect := func() (*websocket.Conn, bool, error) {
			dialer := &websocket.Dialer{
				HandshakeTimeout: self.settings.WsHandshakeTimeout,
			}
			ws, _, err := dialer.DialContext(self.ctx, self.gatewayUrl, nil)
			if err != nil {
				return nil, false, err
			}

			success := false
			defer func() {
				if !success {
					ws.Close()
				}
			}()

			authBytes, err := json.Marshal(self.auth)
			if err != nil {
				return nil, false, err
			}
			frameBytes, err := json.Marshal(&gatewayFrame{
				T: frameAuth,
				D: authBytes,
			})
			if err != nil {
				return nil, false, err
			}
			ws.SetWriteDeadline(time.Now().Add(self.settings.AuthTimeout))
			if err := ws.WriteMessage(websocket.TextMessage, frameBytes); err != nil {
				return nil, false, err
			}

			ws.SetReadDeadline(time.Now().Add(self.settings.AuthTimeout))
			_, responseBytes, err := ws.ReadMessage()
			if err != nil {
				return nil, false, err
			}
			var response gatewayFrame
			if err := json.Unmarshal(responseBytes, &response); err != nil {
				return nil, false, err
			}
			switch response.T {
			case frameAuthOk:
				success = true
				return ws, false, nil
			case frameAuthFailed:
				return nil, true, fmt.Errorf("auth rejected")
			default:
				return nil, false, fmt.Errorf("auth response error: %s", response.T)
			}
		}

		ws, authRejected, err := connect()
		if err != nil {
			if authRejected {
				// fatal to the session, no retry
				self.dispatchEvent(EventGatewayAuthFailed, &GatewayErrorEvent{
					Message: err.Error(),
				})
				return
			}
			glog.Infof("[gw]connect error = %s\n", err)
			if !self.awaitRetry() {
				return
			}
			continue
		}

		self.quality.Established()
		self.handle(ws)

		self.quality.Disconnected()
		self.dispatchEvent(EventGatewayDisconnected, &GatewayErrorEvent{})

		select {
		case <-self.ctx.Done():
			return
		default:
		}

		if !self.awaitRetry() {
			return
		}
	}
}

// schedules the next reconnect on the quality tracker, which owns the single
// live retry timer, and blocks until it fires. false ends the run loop:
// either the backoff gave up or the gateway was disconnected
func (self *WsGateway) awaitRetry() bool {
	wake := make(chan struct{})
	if !self.quality.ScheduleRetry(func() {
		close(wake)
	}) {
		self.dispatchEvent(EventGatewayExhausted, &GatewayErrorEvent{
			Message: "retries exhausted",
		})
		return false
	}
	select {
	case <-self.ctx.Done():
		return false
	case <-wake:
		return true
	}
}

// one connection epoch: a heartbeat writer and a read loop that invokes the
// dispatcher synchronously per message, preserving wire order
func (self *WsGateway) handle(ws *websocket.Conn) {
	defer ws.Close()

	handleCtx, handleCancel := context.WithCancel(self.ctx)
	defer handleCancel()

	func() {
		self.writeLock.Lock()
		defer self.writeLock.Unlock()
		self.conn = ws
	}()
	defer func() {
		self.writeLock.Lock()
		defer self.writeLock.Unlock()
		self.conn = nil
	}()

	go func() {
		defer handleCancel()

		ticker := time.NewTicker(self.settings.HeartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-handleCtx.Done():
				return
			case <-ticker.C:
				err := self.writeFrame(frameHeartbeat, &gatewayHeartbeat{
					SendTime: time.Now().UnixMilli(),
				})
				if err != nil {
					// a websocket deadline timeout cannot be recovered
					glog.Infof("[gw]heartbeat write error = %s\n", err)
					return
				}
			}
		}
	}()

	for {
		select {
		case <-handleCtx.Done():
			return
		default:
		}

		ws.SetReadDeadline(time.Now().Add(self.settings.ReadTimeout))
		_, messageBytes, err := ws.ReadMessage()
		if err != nil {
			glog.Infof("[gw]read error = %s\n", err)
			return
		}

		var frame gatewayFrame
		if err := json.Unmarshal(messageBytes, &frame); err != nil {
			glog.Infof("[gw]frame decode error = %s\n", err)
			continue
		}

		switch frame.T {
		case frameHeartbeatAck:
			var heartbeat gatewayHeartbeat
			if err := json.Unmarshal(frame.D, &heartbeat); err == nil {
				rtt := time.Since(time.UnixMilli(heartbeat.SendTime))
				if 0 <= rtt {
					self.quality.AddLatencySample(rtt)
				}
			}
		case "":
			// ping
		default:
			eventType := EventType(frame.T)
			payload, err := DecodeEvent(eventType, frame.D)
			if err != nil {
				glog.Infof("[gw]event decode error = %s\n", err)
				continue
			}
			self.dispatchEvent(eventType, payload)
		}
	}
}

func (self *WsGateway) dispatchEvent(eventType EventType, payload any) {
	self.stateLock.Lock()
	dispatch := self.dispatch
	self.stateLock.Unlock()

	if dispatch != nil {
		dispatch(eventType, payload)
	}
}
