package realtime

import (
	"fmt"

	"github.com/lukasbauer/fishvoice/internal/fishaudio"
)

// Event discriminants framed over the live synthesis connection.
const (
	eventStart  = "start"
	eventText   = "text"
	eventFlush  = "flush"
	eventStop   = "stop"
	eventAudio  = "audio"
	eventLog    = "log"
	eventFinish = "finish"
)

// startEvent carries the initial session configuration. It is sent exactly
// once, before any other traffic.
type startEvent struct {
	Event   string               `msgpack:"event"`
	Request fishaudio.TTSRequest `msgpack:"request"`
	Debug   bool                 `msgpack:"debug"`
}

// textEvent carries one text fragment, verbatim (whitespace included).
type textEvent struct {
	Event string `msgpack:"event"`
	Text  string `msgpack:"text"`
}

// controlEvent is a payload-less client event (flush, stop).
type controlEvent struct {
	Event string `msgpack:"event"`
}

// serverEvent is the decoded form of any server-to-client event.
type serverEvent struct {
	Event   string `msgpack:"event"`
	Audio   []byte `msgpack:"audio,omitempty"`   // for "audio"
	Message string `msgpack:"message,omitempty"` // for "log"
	Reason  string `msgpack:"reason,omitempty"`  // for "finish"
}

// ProtocolError reports a server event that violates the session protocol:
// either an unrecognized discriminant, or any event arriving after finish.
type ProtocolError struct {
	Event       string
	AfterFinish bool
}

func (e *ProtocolError) Error() string {
	if e.AfterFinish {
		return fmt.Sprintf("protocol violation: received %q event after finish", e.Event)
	}
	return fmt.Sprintf("protocol violation: unrecognized event %q", e.Event)
}
