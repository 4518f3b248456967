package repositories

import "context"

// LiveConfig opens a bidirectional audio session.
type LiveConfig struct {
	Model             string
	SystemInstruction string
	Voice             string
}

// LiveMessage is one inbound server message: either PCM audio at 24 kHz or
// an interruption signal.
type LiveMessage struct {
	Audio        []byte
	MIMEType     string
	Interrupted  bool
	TurnComplete bool
}

// LiveCallbacks are invoked from the connector's receive goroutine.
type LiveCallbacks struct {
	OnOpen    func()
	OnMessage func(LiveMessage)
	OnError   func(error)
	OnClose   func()
}

// LiveStream is the open remote session handle.
type LiveStream interface {
	SendAudio(frame []byte, mimeType string) error
	Close() error
}

// LiveConnector dials the remote live endpoint.
type LiveConnector interface {
	Connect(ctx context.Context, config LiveConfig, callbacks LiveCallbacks) (LiveStream, error)
}
