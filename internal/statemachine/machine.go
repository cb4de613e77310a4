// Package statemachine implements the per-device hold/select state
// machine that drives the press-and-hold accent popup.
package statemachine

import (
	"time"

	"github.com/gildo/accentd/internal/accent"
	"github.com/gildo/accentd/internal/evdevcodes"
)

// State names the three-state machine's current mode.
type State int

const (
	Idle State = iota
	Held
	MenuOpen
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Held:
		return "held"
	case MenuOpen:
		return "menu_open"
	default:
		return "unknown"
	}
}

// ActionKind names what the supervisor must do in response to a Machine
// transition.
type ActionKind int

const (
	// NoAction means nothing needs to happen beyond the state change.
	NoAction ActionKind = iota
	// ForwardEvent replays Keycode/KeyAction downstream unchanged.
	ForwardEvent
	// SuppressEvent drops the triggering event entirely.
	SuppressEvent
	// ArmTimer starts (or restarts) the hold timer for Deadline.
	ArmTimer
	// SynthRelease emits a synthetic Release of Keycode.
	SynthRelease
	// ShowPopup requests the popup for Base/Variants.
	ShowPopup
	// HidePopup tells the popup to close.
	HidePopup
	// ReplaceWithVariant backspaces the echoed letter and types Variant.
	ReplaceWithVariant
	// Shutdown names a daemon shutdown. Machine never returns it; the
	// supervisor's panic-combo detector triggers shutdown directly.
	Shutdown
)

// Action is one instruction the supervisor must carry out after feeding
// an Input to a Machine. A single Input can yield multiple Actions; call
// sites drain Actions in order.
type Action struct {
	Kind     ActionKind
	Keycode  evdevcodes.Code
	KeyAct   evdevcodes.Action
	Base     string
	Variants []string
	Variant  string
	Deadline time.Time
	Gen      int
}

// Modifiers tracks which modifier keys are currently held, independent of
// the three-state machine — restored from the reference implementation,
// which gates hold-detection on Ctrl/Alt/Super and selects uppercase
// variants when Shift is held.
type Modifiers struct {
	Ctrl  bool
	Alt   bool
	Super bool
	Shift bool
}

func (m *Modifiers) observe(code evdevcodes.Code, action evdevcodes.Action) {
	down := action == evdevcodes.Press || action == evdevcodes.Repeat
	if action == evdevcodes.Release {
		down = false
	}
	switch code {
	case evdevcodes.KeyLeftCtrl, evdevcodes.KeyRightCtrl:
		m.Ctrl = down
	case evdevcodes.KeyLeftAlt, evdevcodes.KeyRightAlt:
		m.Alt = down
	case evdevcodes.KeyLeftMeta, evdevcodes.KeyRightMeta:
		m.Super = down
	case evdevcodes.KeyLeftShift, evdevcodes.KeyRightShift:
		m.Shift = down
	}
}

// held describes the accent-eligible key currently tracked in Held or
// MenuOpen.
type held struct {
	keycode  evdevcodes.Code
	base     string
	variants []string
}

// Machine is one device's state machine. It is not safe for concurrent
// use — callers (the supervisor) must serialize all access, matching the
// "not concurrent with itself" requirement.
type Machine struct {
	DeviceID int

	state State
	cur   held
	mods  Modifiers

	thresholdMs    uint32
	popupTimeoutMs uint32
	enabled        bool
	locale         accent.Table

	generation int

	// suppressRelease, when suppressPending is set, is the keycode whose
	// next Release must be swallowed rather than forwarded: a selecting
	// digit Press is consumed by the popup and never reaches Idle's
	// generic forwarding, so its matching Release would otherwise leak
	// through with no Press ever having been sent for it.
	suppressRelease evdevcodes.Code
	suppressPending bool
}

// New creates a Machine for one device.
func New(deviceID int, thresholdMs, popupTimeoutMs uint32, enabled bool, locale accent.Table) *Machine {
	return &Machine{
		DeviceID:       deviceID,
		state:          Idle,
		thresholdMs:    thresholdMs,
		popupTimeoutMs: popupTimeoutMs,
		enabled:        enabled,
		locale:         locale,
	}
}

// State returns the machine's current state.
func (m *Machine) State() State { return m.state }

// SetEnabled toggles disabled pass-through mode. Disabling while Held or
// MenuOpen force-resets to Idle so no dangling timer or popup survives.
func (m *Machine) SetEnabled(enabled bool) []Action {
	m.enabled = enabled
	if enabled {
		return nil
	}
	return m.resetToIdle()
}

// SetLocale swaps the active accent table, used immediately by any
// subsequent Held transition.
func (m *Machine) SetLocale(locale accent.Table) {
	m.locale = locale
}

// SetThreshold updates the hold threshold in milliseconds.
func (m *Machine) SetThreshold(ms uint32) { m.thresholdMs = ms }

// SetPopupTimeout updates the popup inactivity timeout in milliseconds.
func (m *Machine) SetPopupTimeout(ms uint32) { m.popupTimeoutMs = ms }

// Generation returns the current timer generation stamp, so the
// supervisor can tag timers it arms and discard late fires against a
// stale generation.
func (m *Machine) Generation() int { return m.generation }

func (m *Machine) bumpGeneration() int {
	m.generation++
	return m.generation
}

// ForceCancel force-cancels an in-progress MenuOpen, as if PopupTimeout
// had fired on it. Used by the supervisor to enforce the global-popup
// invariant and to react to a popup client vanishing.
func (m *Machine) ForceCancel() []Action {
	if m.state != MenuOpen {
		return nil
	}
	return m.resetToIdle()
}

func (m *Machine) resetToIdle() []Action {
	var actions []Action
	if m.state == MenuOpen {
		actions = append(actions, Action{Kind: HidePopup})
	}
	m.state = Idle
	m.cur = held{}
	m.bumpGeneration()
	return actions
}

// HandleKey feeds one physical key event into the machine and returns the
// actions the supervisor must perform.
func (m *Machine) HandleKey(code evdevcodes.Code, action evdevcodes.Action) []Action {
	m.mods.observe(code, action)

	if !m.enabled {
		return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
	}

	switch m.state {
	case Idle:
		return m.handleIdle(code, action)
	case Held:
		return m.handleHeld(code, action)
	case MenuOpen:
		return m.handleMenuOpen(code, action)
	default:
		return nil
	}
}

func (m *Machine) handleIdle(code evdevcodes.Code, action evdevcodes.Action) []Action {
	if m.suppressPending && code == m.suppressRelease && action == evdevcodes.Release {
		m.suppressPending = false
		return []Action{{Kind: SuppressEvent}}
	}

	if action != evdevcodes.Press {
		return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
	}

	base, eligible := accent.BaseForKeycode(code)
	if !eligible {
		return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
	}

	// Ctrl/Alt/Super held gates hold-detection so application shortcuts
	// (e.g. Ctrl+E) are never intercepted.
	if m.mods.Ctrl || m.mods.Alt || m.mods.Super {
		return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
	}

	variants, ok := m.locale.Resolve(base, m.mods.Shift)
	if !ok || len(variants) == 0 {
		return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
	}

	m.cur = held{keycode: code, base: base, variants: variants}
	m.state = Held
	gen := m.bumpGeneration()

	deadline := time.Now().Add(time.Duration(m.thresholdMs) * time.Millisecond)
	return []Action{
		{Kind: ForwardEvent, Keycode: code, KeyAct: action},
		{Kind: ArmTimer, Deadline: deadline, Gen: gen},
	}
}

func (m *Machine) handleHeld(code evdevcodes.Code, action evdevcodes.Action) []Action {
	if code == m.cur.keycode {
		switch action {
		case evdevcodes.Repeat:
			// Suppress autorepeat while we decide whether this is a hold.
			return []Action{{Kind: SuppressEvent}}
		case evdevcodes.Release:
			m.state = Idle
			m.cur = held{}
			m.bumpGeneration()
			return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
		}
	}

	// Any other key press/release cancels the pending hold; the base key
	// is still physically down and will produce a normal Release later,
	// handled in Idle.
	m.state = Idle
	m.cur = held{}
	m.bumpGeneration()
	return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
}

// Timeout is called by the supervisor when a machine's armed timer fires.
// gen must match the generation stamped when the timer was armed, or the
// fire is stale and ignored.
func (m *Machine) Timeout(gen int) []Action {
	if gen != m.generation || m.state != Held {
		return nil
	}

	keycode := m.cur.keycode
	m.state = MenuOpen
	m.bumpGeneration()

	return []Action{
		{Kind: SynthRelease, Keycode: keycode},
		{Kind: ShowPopup, Base: m.cur.base, Variants: m.cur.variants, Gen: m.generation},
	}
}

// PopupTimeout is called by the supervisor when a MenuOpen popup-timeout
// timer fires. gen must match the generation stamped when ShowPopup was
// issued, or the fire is stale and ignored.
func (m *Machine) PopupTimeout(gen int) []Action {
	if gen != m.generation || m.state != MenuOpen {
		return nil
	}
	return m.resetToIdle()
}

func (m *Machine) handleMenuOpen(code evdevcodes.Code, action evdevcodes.Action) []Action {
	if code == m.cur.keycode && action == evdevcodes.Release {
		actions := []Action{{Kind: HidePopup}}
		m.state = Idle
		m.cur = held{}
		m.bumpGeneration()
		return actions
	}

	if code == evdevcodes.KeyEsc && action == evdevcodes.Press {
		actions := []Action{{Kind: HidePopup}, {Kind: ForwardEvent, Keycode: code, KeyAct: action}}
		m.state = Idle
		m.cur = held{}
		m.bumpGeneration()
		return actions
	}
	if code == evdevcodes.KeyEsc && action == evdevcodes.Release {
		// ESC's Release arrives after we've already returned to Idle for
		// its Press; Idle forwards it normally, so nothing to do here.
		return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
	}

	if digit, ok := evdevcodes.IsDigitKey(code); ok && action == evdevcodes.Press {
		return m.selectByDigit(digit)
	}

	if action == evdevcodes.Press {
		actions := []Action{{Kind: HidePopup}, {Kind: ForwardEvent, Keycode: code, KeyAct: action}}
		m.state = Idle
		m.cur = held{}
		m.bumpGeneration()
		return actions
	}

	return []Action{{Kind: ForwardEvent, Keycode: code, KeyAct: action}}
}

func (m *Machine) selectByDigit(digit int) []Action {
	if digit < 1 || digit > len(m.cur.variants) {
		// Out-of-range digit cancels the menu, forwarding the press, per
		// the conservative resolution of the spec's open question.
		actions := []Action{{Kind: HidePopup}, {Kind: ForwardEvent, Keycode: keycodeForDigit(digit), KeyAct: evdevcodes.Press}}
		m.state = Idle
		m.cur = held{}
		m.bumpGeneration()
		return actions
	}

	variant := m.cur.variants[digit-1]
	actions := []Action{
		{Kind: HidePopup},
		{Kind: ReplaceWithVariant, Variant: variant},
	}
	m.state = Idle
	m.cur = held{}
	m.bumpGeneration()
	m.suppressRelease = keycodeForDigit(digit)
	m.suppressPending = true
	return actions
}

// Selection handles an IPC-originated Selection{index} message, treating
// out-of-range or inapplicable indices as a no-op rather than forwarding
// a physical keypress that never happened.
func (m *Machine) Selection(index int) []Action {
	if m.state != MenuOpen {
		return nil
	}
	if index < 1 || index > len(m.cur.variants) {
		return nil
	}
	variant := m.cur.variants[index-1]
	m.state = Idle
	m.cur = held{}
	m.bumpGeneration()
	return []Action{
		{Kind: HidePopup},
		{Kind: ReplaceWithVariant, Variant: variant},
	}
}

// Dismissed handles a Dismissed{} message from the popup (user clicked
// away), equivalent to an implicit cancel.
func (m *Machine) Dismissed() []Action {
	return m.ForceCancel()
}

func keycodeForDigit(digit int) evdevcodes.Code {
	switch digit {
	case 1:
		return evdevcodes.Key1
	case 2:
		return evdevcodes.Key2
	case 3:
		return evdevcodes.Key3
	case 4:
		return evdevcodes.Key4
	case 5:
		return evdevcodes.Key5
	case 6:
		return evdevcodes.Key6
	case 7:
		return evdevcodes.Key7
	case 8:
		return evdevcodes.Key8
	case 9:
		return evdevcodes.Key9
	case 0:
		return evdevcodes.Key0
	default:
		return evdevcodes.Key0
	}
}
