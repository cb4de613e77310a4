// Package synth owns the virtual keyboard accentd replays keystrokes
// through, and the Unicode codepoint-injection sequence used to deliver
// accented variants.
package synth

import (
	"fmt"

	"github.com/gildo/accentd/internal/evdevcodes"
)

// Writer emits a single key event to the virtual device. Implementations
// must be safe to call only from the synthesizer's owning goroutine; the
// package does not add its own locking, mirroring the "owned exclusively"
// resource rule.
type Writer interface {
	Write(code evdevcodes.Code, action evdevcodes.Action) error
	Sync() error
}

// Synthesizer drives a Writer to replay physical keys and inject Unicode
// codepoints via the Ctrl+Shift+U input method.
type Synthesizer struct {
	w Writer
}

// New wraps a Writer with the emission sequences accentd needs.
func New(w Writer) *Synthesizer {
	return &Synthesizer{w: w}
}

// PassThrough emits a single event verbatim, followed by a sync.
func (s *Synthesizer) PassThrough(code evdevcodes.Code, action evdevcodes.Action) error {
	if err := s.w.Write(code, action); err != nil {
		return fmt.Errorf("pass through %v %v: %w", code, action, err)
	}
	return s.w.Sync()
}

// ReplayCancelled emits a synthetic Release for a base key whose Press was
// already forwarded but whose hold was interrupted by the popup opening.
func (s *Synthesizer) ReplayCancelled(code evdevcodes.Code) error {
	if err := s.w.Write(code, evdevcodes.Release); err != nil {
		return fmt.Errorf("replay cancelled release of %v: %w", code, err)
	}
	return s.w.Sync()
}

// EmitBackspace emits a single Press+Release of Backspace to remove a
// previously echoed letter.
func (s *Synthesizer) EmitBackspace() error {
	if err := s.tap(evdevcodes.KeyBackspace); err != nil {
		return fmt.Errorf("emit backspace: %w", err)
	}
	return nil
}

// EmitCodepoint types one Unicode scalar via Ctrl+Shift+U, its hex digits,
// then Space, in this order: Ctrl and Shift pressed, U tapped, each hex
// digit tapped, Space tapped, then Shift and Ctrl released. Space rather
// than Enter commits the sequence without also submitting whatever form
// field has focus.
func (s *Synthesizer) EmitCodepoint(cp rune) error {
	hex := fmt.Sprintf("%x", cp)

	if err := s.press(evdevcodes.KeyLeftCtrl); err != nil {
		return err
	}
	if err := s.press(evdevcodes.KeyLeftShift); err != nil {
		return err
	}
	if err := s.tap(22); err != nil { // KEY_U
		return err
	}
	for _, digit := range hex {
		code, ok := evdevcodes.HexDigitCode(digit)
		if !ok {
			return fmt.Errorf("emit codepoint U+%04X: no key for hex digit %q", cp, digit)
		}
		if err := s.tap(code); err != nil {
			return err
		}
	}
	if err := s.tap(evdevcodes.KeySpace); err != nil {
		return err
	}
	if err := s.release(evdevcodes.KeyLeftShift); err != nil {
		return err
	}
	if err := s.release(evdevcodes.KeyLeftCtrl); err != nil {
		return err
	}
	return nil
}

// EmitVariant types every Unicode scalar in variant, in order.
func (s *Synthesizer) EmitVariant(variant string) error {
	for _, r := range variant {
		if err := s.EmitCodepoint(r); err != nil {
			return fmt.Errorf("emit variant %q: %w", variant, err)
		}
	}
	return nil
}

func (s *Synthesizer) press(code evdevcodes.Code) error {
	if err := s.w.Write(code, evdevcodes.Press); err != nil {
		return err
	}
	return s.w.Sync()
}

func (s *Synthesizer) release(code evdevcodes.Code) error {
	if err := s.w.Write(code, evdevcodes.Release); err != nil {
		return err
	}
	return s.w.Sync()
}

func (s *Synthesizer) tap(code evdevcodes.Code) error {
	if err := s.press(code); err != nil {
		return err
	}
	return s.release(code)
}
