// Package evdevcodes decodes raw Linux input_event records and names the
// keycodes accentd cares about.
package evdevcodes

import (
	"encoding/binary"
	"fmt"
	"time"
)

// rawEventSize is the size in bytes of a 64-bit struct input_event: a
// struct timeval (two 8-byte fields), then type, code (uint16 each), then
// a 4-byte value, matching the layout the kernel writes on amd64/arm64.
const rawEventSize = 24

// Action describes what happened to a key.
type Action int32

const (
	Release Action = 0
	Press   Action = 1
	Repeat  Action = 2
)

func (a Action) String() string {
	switch a {
	case Release:
		return "release"
	case Press:
		return "press"
	case Repeat:
		return "repeat"
	default:
		return fmt.Sprintf("action(%d)", int32(a))
	}
}

// evKey is the kernel's EV_KEY event type, the only one accentd looks at.
const evKey = 0x01

// Code is a Linux keycode (the kernel's KEY_* constant space).
type Code uint16

// Keycodes accentd's state machine and synthesizer reason about directly.
const (
	KeyEsc       Code = 1
	Key1         Code = 2
	Key2         Code = 3
	Key3         Code = 4
	Key4         Code = 5
	Key5         Code = 6
	Key6         Code = 7
	Key7         Code = 8
	Key8         Code = 9
	Key9         Code = 10
	Key0         Code = 11
	KeyBackspace Code = 14
	KeyTab       Code = 15
	KeyEnter     Code = 28
	KeyLeftCtrl  Code = 29
	KeyLeftShift Code = 42
	KeyRightShift Code = 54
	KeySpace     Code = 57
	KeyCapsLock  Code = 58
	KeyRightCtrl Code = 97
	KeyLeftAlt   Code = 56
	KeyRightAlt  Code = 100
	KeyLeftMeta  Code = 125
	KeyRightMeta Code = 126

	KeyA Code = 30
	KeyE Code = 18
	KeyZ Code = 44
)

// hexDigitCodes maps a lowercase hex digit to the keycode used to type it
// on a standard US layout, which is what the Ctrl+Shift+U Unicode input
// method expects regardless of the physical layout in use.
var hexDigitCodes = map[rune]Code{
	'0': Key0, '1': Key1, '2': Key2, '3': Key3, '4': Key4,
	'5': Key5, '6': Key6, '7': Key7, '8': Key8, '9': Key9,
	'a': 30, 'b': 48, 'c': 46, 'd': 32, 'e': 18, 'f': 33,
}

// HexDigitCode returns the keycode used to type the given lowercase hex
// digit, and whether the digit is valid.
func HexDigitCode(digit rune) (Code, bool) {
	c, ok := hexDigitCodes[digit]
	return c, ok
}

// IsDigitKey reports whether code is one of the top-row digit keys 0-9,
// and returns the digit it types.
func IsDigitKey(code Code) (int, bool) {
	switch code {
	case Key1:
		return 1, true
	case Key2:
		return 2, true
	case Key3:
		return 3, true
	case Key4:
		return 4, true
	case Key5:
		return 5, true
	case Key6:
		return 6, true
	case Key7:
		return 7, true
	case Key8:
		return 8, true
	case Key9:
		return 9, true
	case Key0:
		return 0, true
	default:
		return 0, false
	}
}

// IsModifier reports whether code is a Ctrl, Alt, Super, or Shift key.
func IsModifier(code Code) bool {
	switch code {
	case KeyLeftCtrl, KeyRightCtrl, KeyLeftAlt, KeyRightAlt,
		KeyLeftMeta, KeyRightMeta, KeyLeftShift, KeyRightShift:
		return true
	default:
		return false
	}
}

// Event is a normalized keyboard event read from a grabbed device.
type Event struct {
	DeviceID  int
	Keycode   Code
	Action    Action
	Timestamp time.Time
}

// Decode parses a raw kernel input_event record. It returns ok=false for
// non-key events (SYN, MSC, LED, ...), which callers should discard.
func Decode(buf []byte, deviceID int) (ev Event, ok bool, err error) {
	if len(buf) < rawEventSize {
		return Event{}, false, fmt.Errorf("short input_event: got %d bytes, want %d", len(buf), rawEventSize)
	}

	typ := binary.LittleEndian.Uint16(buf[16:18])
	if typ != evKey {
		return Event{}, false, nil
	}

	code := binary.LittleEndian.Uint16(buf[18:20])
	value := int32(binary.LittleEndian.Uint32(buf[20:24]))
	sec := int64(binary.LittleEndian.Uint64(buf[0:8]))
	usec := int64(binary.LittleEndian.Uint64(buf[8:16]))

	return Event{
		DeviceID:  deviceID,
		Keycode:   Code(code),
		Action:    Action(value),
		Timestamp: time.Unix(sec, usec*1000),
	}, true, nil
}

// RawEventSize exposes the byte size of one input_event record so callers
// can size their read buffers.
func RawEventSize() int { return rawEventSize }
