// Package channel abstracts the best-effort device-to-device transport
// used to mirror session state and exchange one-shot commands between
// the paired devices. Delivery is unordered and at-most-once; callers
// must treat every publish as fire-and-forget.
package channel

import (
	"encoding/binary"
	"fmt"

	"github.com/comigor/fastline-go/internal/session"
)

// Command paths carried on the command topics.
const (
	CmdStartFasting    = "start_fasting"
	CmdStopFasting     = "stop_fasting"
	CmdUpdateStartTime = "update_start_time"
	CmdOpenWatchApp    = "open_watch_app"
)

// StateMessage is one remote change event: a session snapshot plus the
// identity of the device that wrote it. The origin id is what echo
// suppression keys on.
type StateMessage struct {
	OriginDeviceID string `json:"originDeviceId"`
	session.Snapshot
}

// Command is a one-shot message at a command path. Payload encoding is
// path-specific: start_fasting carries the start time as 8-byte
// big-endian millis, open_watch_app carries a notification type name
// as UTF-8 bytes, the rest are empty.
type Command struct {
	Path    string
	Payload []byte
}

// Channel is the transport boundary. Implementations must not retry
// failed publishes; recovery is the caller's explicit force-sync.
type Channel interface {
	// PublishState mirrors a session write to the paired device.
	PublishState(msg StateMessage) error

	// SendCommand delivers a one-shot command to the paired device.
	SendCommand(path string, payload []byte) error

	// Subscribe registers the handlers for incoming state batches and
	// commands. onStates is invoked serially, one batch at a time.
	Subscribe(onStates func(batch []StateMessage), onCommand func(cmd Command)) error

	// Close disconnects from the transport.
	Close() error
}

// EncodeStartMillis encodes a start timestamp for CmdStartFasting.
func EncodeStartMillis(millis int64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, uint64(millis))
	return buf
}

// DecodeStartMillis decodes a CmdStartFasting payload.
func DecodeStartMillis(payload []byte) (int64, error) {
	if len(payload) != 8 {
		return 0, fmt.Errorf("start payload must be 8 bytes, got %d", len(payload))
	}
	return int64(binary.BigEndian.Uint64(payload)), nil
}
