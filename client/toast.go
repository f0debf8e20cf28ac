package client

// the toast sink is the only user-visible failure and alert surface. the ui
// (out of this library) registers a callback and renders however it likes

type ToastSeverity string

const (
	ToastSeverityInfo  ToastSeverity = "info"
	ToastSeverityWarn  ToastSeverity = "warn"
	ToastSeverityError ToastSeverity = "error"
)

const (
	ToastKindReconnected   = "reconnected"
	ToastKindMention       = "mention"
	ToastKindFriendRequest = "friend_request"
	ToastKindCallRing      = "call_ring"
	ToastKindNotification  = "notification"
	ToastKindAuthFailed    = "auth_failed"
	ToastKindExhausted     = "exhausted"
	ToastKindOperation     = "operation"
)

type Toast struct {
	Severity ToastSeverity
	Kind     string
	Message  string
}

type ToastFunction = func(toast *Toast)

type ToastSink struct {
	callbacks *callbackList[ToastFunction]
}

func NewToastSink() *ToastSink {
	return &ToastSink{
		callbacks: newCallbackList[ToastFunction](),
	}
}

func (self *ToastSink) AddToastCallback(callback ToastFunction) func() {
	callbackId := self.callbacks.Add(callback)
	return func() {
		self.callbacks.Remove(callbackId)
	}
}

func (self *ToastSink) Post(severity ToastSeverity, kind string, message string) {
	toast := &Toast{
		Severity: severity,
		Kind:     kind,
		Message:  message,
	}
	for _, callback := range self.callbacks.Get() {
		callback(toast)
	}
}
