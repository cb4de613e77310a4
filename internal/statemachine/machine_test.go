package statemachine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gildo/accentd/internal/accent"
	"github.com/gildo/accentd/internal/evdevcodes"
)

func newItalianMachine() *Machine {
	it, _ := accent.Builtin("it")
	return New(0, 300, 5000, true, it)
}

func kinds(actions []Action) []ActionKind {
	out := make([]ActionKind, len(actions))
	for i, a := range actions {
		out[i] = a.Kind
	}
	return out
}

func TestFastTypeNoPopup(t *testing.T) {
	m := newItalianMachine()

	actions := m.HandleKey(18, evdevcodes.Press) // KEY_E
	assert.Equal(t, []ActionKind{ForwardEvent, ArmTimer}, kinds(actions))
	assert.Equal(t, Held, m.State())

	actions = m.HandleKey(18, evdevcodes.Release)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(actions))
	assert.Equal(t, Idle, m.State())
}

func TestHoldSuppressesRepeatThenShowsPopup(t *testing.T) {
	m := newItalianMachine()

	actions := m.HandleKey(18, evdevcodes.Press)
	gen := actions[1].Gen

	repeatActions := m.HandleKey(18, evdevcodes.Repeat)
	assert.Equal(t, []ActionKind{SuppressEvent}, kinds(repeatActions))

	timeoutActions := m.Timeout(gen)
	require.Len(t, timeoutActions, 2)
	assert.Equal(t, SynthRelease, timeoutActions[0].Kind)
	assert.Equal(t, evdevcodes.Code(18), timeoutActions[0].Keycode)
	assert.Equal(t, ShowPopup, timeoutActions[1].Kind)
	assert.Equal(t, "e", timeoutActions[1].Base)
	assert.Equal(t, []string{"è", "é", "ê", "ë"}, timeoutActions[1].Variants)
	assert.Equal(t, MenuOpen, m.State())
}

func TestSelectionByDigitReplacesVariant(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(18, evdevcodes.Press)
	m.Timeout(armed[1].Gen)
	require.Equal(t, MenuOpen, m.State())

	actions := m.HandleKey(evdevcodes.Key2, evdevcodes.Press)
	require.Len(t, actions, 2)
	assert.Equal(t, HidePopup, actions[0].Kind)
	assert.Equal(t, ReplaceWithVariant, actions[1].Kind)
	assert.Equal(t, "é", actions[1].Variant)
	assert.Equal(t, Idle, m.State())

	// The selecting digit's own Press was consumed by the popup and never
	// forwarded, so its matching Release must be suppressed too rather
	// than leaking through with no Press ever sent for it.
	releaseActions := m.HandleKey(evdevcodes.Key2, evdevcodes.Release)
	assert.Equal(t, []ActionKind{SuppressEvent}, kinds(releaseActions))

	// Only that one Release is suppressed; anything after is normal again.
	nextActions := m.HandleKey(evdevcodes.Key3, evdevcodes.Release)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(nextActions))
}

func TestCancelOnOtherKey(t *testing.T) {
	m := newItalianMachine()
	m.HandleKey(18, evdevcodes.Press) // hold e

	actions := m.HandleKey(50, evdevcodes.Press) // unrelated key m (KEY_M)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(actions))
	assert.Equal(t, Idle, m.State())
}

func TestEscInMenuForwardsAndHides(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(18, evdevcodes.Press)
	m.Timeout(armed[1].Gen)

	actions := m.HandleKey(evdevcodes.KeyEsc, evdevcodes.Press)
	require.Len(t, actions, 2)
	assert.Equal(t, HidePopup, actions[0].Kind)
	assert.Equal(t, ForwardEvent, actions[1].Kind)
	assert.Equal(t, evdevcodes.KeyEsc, actions[1].Keycode)
	assert.Equal(t, Idle, m.State())

	releaseActions := m.HandleKey(evdevcodes.KeyEsc, evdevcodes.Release)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(releaseActions))
}

func TestDisabledPassesEverythingThrough(t *testing.T) {
	m := newItalianMachine()
	m.SetEnabled(false)

	actions := m.HandleKey(18, evdevcodes.Press)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(actions))
	assert.Equal(t, Idle, m.State())

	repeat := m.HandleKey(18, evdevcodes.Repeat)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(repeat))
}

func TestLocaleSwapAffectsNextHold(t *testing.T) {
	m := newItalianMachine()
	fr, _ := accent.Builtin("fr")
	m.SetLocale(fr)

	armed := m.HandleKey(18, evdevcodes.Press)
	actions := m.Timeout(armed[1].Gen)
	require.Len(t, actions, 2)
	assert.Equal(t, []string{"è", "é", "ê", "ë", "æ"}, actions[1].Variants)
}

func TestStaleTimeoutIgnored(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(18, evdevcodes.Press)
	gen := armed[1].Gen

	// Key released before the timer fired: a late-arriving timer fire
	// against the old generation must be a no-op.
	m.HandleKey(18, evdevcodes.Release)
	actions := m.Timeout(gen)
	assert.Nil(t, actions)
	assert.Equal(t, Idle, m.State())
}

func TestOutOfRangeDigitCancelsAndForwards(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(49, evdevcodes.Press) // KEY_N -> only 1 variant
	m.Timeout(armed[1].Gen)
	require.Equal(t, MenuOpen, m.State())

	actions := m.HandleKey(evdevcodes.Key5, evdevcodes.Press)
	require.Len(t, actions, 2)
	assert.Equal(t, HidePopup, actions[0].Kind)
	assert.Equal(t, ForwardEvent, actions[1].Kind)
	assert.Equal(t, Idle, m.State())

	// Unlike a successful selection, the out-of-range branch already
	// forwarded a synthetic Press for this digit, so its physical
	// Release must still be forwarded to match it.
	releaseActions := m.HandleKey(evdevcodes.Key5, evdevcodes.Release)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(releaseActions))
}

func TestPopupTimeoutForceCancels(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(18, evdevcodes.Press)
	showActions := m.Timeout(armed[1].Gen)
	gen := showActions[1].Gen

	actions := m.PopupTimeout(gen)
	assert.Equal(t, []ActionKind{HidePopup}, kinds(actions))
	assert.Equal(t, Idle, m.State())
}

func TestModifierHeldSuppressesHoldDetection(t *testing.T) {
	m := newItalianMachine()
	m.HandleKey(evdevcodes.KeyLeftCtrl, evdevcodes.Press)

	actions := m.HandleKey(18, evdevcodes.Press)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(actions))
	assert.Equal(t, Idle, m.State())
}

func TestShiftHeldSelectsUppercaseVariants(t *testing.T) {
	m := newItalianMachine()
	m.HandleKey(evdevcodes.KeyLeftShift, evdevcodes.Press)

	armed := m.HandleKey(18, evdevcodes.Press)
	actions := m.Timeout(armed[1].Gen)
	assert.Equal(t, []string{"È", "É", "Ê", "Ë"}, actions[1].Variants)
}

func TestIneligibleKeyNeverHeld(t *testing.T) {
	m := newItalianMachine()
	actions := m.HandleKey(48, evdevcodes.Press) // KEY_B, not accent-eligible
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(actions))
	assert.Equal(t, Idle, m.State())

	repeat := m.HandleKey(48, evdevcodes.Repeat)
	assert.Equal(t, []ActionKind{ForwardEvent}, kinds(repeat))
}

func TestIPCSelectionOutOfRangeIsNoOp(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(49, evdevcodes.Press) // KEY_N -> only 1 variant
	m.Timeout(armed[1].Gen)

	actions := m.Selection(5)
	assert.Nil(t, actions)
	assert.Equal(t, MenuOpen, m.State())
}

func TestIPCDismissedForceCancels(t *testing.T) {
	m := newItalianMachine()
	armed := m.HandleKey(18, evdevcodes.Press)
	m.Timeout(armed[1].Gen)

	actions := m.Dismissed()
	assert.Equal(t, []ActionKind{HidePopup}, kinds(actions))
	assert.Equal(t, Idle, m.State())
}
