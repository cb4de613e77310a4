// Package ipc implements accentd's control plane: a Unix-domain socket
// speaking line-delimited JSON between the daemon, the popup UI, and the
// accentctl CLI.
package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
)

// MessageType discriminates the JSON objects exchanged on the control
// socket, carried as the "type" field of every message.
type MessageType string

// Daemon -> popup.
const (
	TypePopupShow MessageType = "PopupShow"
	TypePopupHide MessageType = "PopupHide"
)

// Popup -> daemon.
const (
	TypePopupAck  MessageType = "PopupAck"
	TypeSelection MessageType = "Selection"
	TypeDismissed MessageType = "Dismissed"
)

// CLI -> daemon.
const (
	TypeGetStatus MessageType = "GetStatus"
	TypeSetLocale MessageType = "SetLocale"
	TypeEnable    MessageType = "Enable"
	TypeDisable   MessageType = "Disable"
	TypeToggle    MessageType = "Toggle"
	TypeShutdown  MessageType = "Shutdown"
)

// Daemon -> any client, as responses.
const (
	TypeStatus MessageType = "Status"
	TypeOk     MessageType = "Ok"
	TypeError  MessageType = "Error"
)

// Message is the envelope every line on the socket carries: a type tag
// plus whichever fields that type uses (others left at zero value and
// omitted from encoding).
type Message struct {
	Type MessageType `json:"type"`

	// PopupShow
	Base      string   `json:"base,omitempty"`
	Variants  []string `json:"variants,omitempty"`
	FontSize  uint32   `json:"font_size,omitempty"`
	TimeoutMs uint32   `json:"timeout_ms,omitempty"`

	// Selection
	Index int `json:"index,omitempty"`

	// SetLocale
	Name string `json:"name,omitempty"`

	// Status response
	ActiveLocale string   `json:"active_locale,omitempty"`
	Devices      []string `json:"devices,omitempty"`
	ThresholdMs  uint32   `json:"threshold_ms,omitempty"`
	Version      string   `json:"version,omitempty"`

	// Ok / Status. Not omitempty: Enabled=false is a meaningful value that
	// Disable/Toggle responses must carry, not drop.
	Enabled bool `json:"enabled"`

	// Error
	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

// Error kinds returned on protocol failure.
const (
	ErrUnknownCommand = "unknown_command"
	ErrParseError     = "parse_error"
)

// ParseError marks a Decode failure caused by malformed JSON on one line,
// as opposed to a real connection error (EOF, reset). The server checks
// for it with errors.As so it can reply with an Error message and keep
// the connection open instead of dropping the client.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %v", ErrParseError, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Encode writes msg as one JSON line terminated by 0x0A.
func Encode(w io.Writer, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode %s message: %w", msg.Type, err)
	}
	data = append(data, '\n')
	_, err = w.Write(data)
	return err
}

// Decode reads one line from r and parses it as a Message. It returns
// io.EOF when the connection is closed with no more data.
func Decode(r *bufio.Reader) (Message, error) {
	line, err := r.ReadBytes('\n')
	if err != nil && len(line) == 0 {
		return Message{}, err
	}

	var msg Message
	if jsonErr := json.Unmarshal(line, &msg); jsonErr != nil {
		return Message{}, &ParseError{Err: jsonErr}
	}
	return msg, nil
}

// Convenience constructors for the daemon's outbound messages.

func PopupShow(base string, variants []string, fontSize, timeoutMs uint32) Message {
	return Message{Type: TypePopupShow, Base: base, Variants: variants, FontSize: fontSize, TimeoutMs: timeoutMs}
}

func PopupHide() Message {
	return Message{Type: TypePopupHide}
}

func Status(enabled bool, activeLocale string, devices []string, thresholdMs uint32, version string) Message {
	return Message{
		Type:         TypeStatus,
		Enabled:      enabled,
		ActiveLocale: activeLocale,
		Devices:      devices,
		ThresholdMs:  thresholdMs,
		Version:      version,
	}
}

func Ok() Message {
	return Message{Type: TypeOk}
}

func OkEnabled(enabled bool) Message {
	return Message{Type: TypeOk, Enabled: enabled}
}

func Error(kind, message string) Message {
	return Message{Type: TypeError, Kind: kind, Message: message}
}
