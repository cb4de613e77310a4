package supervisor

import (
	"path/filepath"
	"testing"

	"github.com/gildo/accentd/internal/accent"
	"github.com/gildo/accentd/internal/config"
	"github.com/gildo/accentd/internal/evdevcodes"
	"github.com/gildo/accentd/internal/ipc"
	"github.com/gildo/accentd/internal/logging"
	"github.com/gildo/accentd/internal/metrics"
	"github.com/gildo/accentd/internal/statemachine"
	"github.com/gildo/accentd/internal/synth"
)

// recordingWriter satisfies synth.Writer without touching a real uinput
// device, so the synthesizer can run against it in tests.
type recordingWriter struct {
	events []evdevcodes.Action
}

func (w *recordingWriter) Write(_ evdevcodes.Code, action evdevcodes.Action) error {
	w.events = append(w.events, action)
	return nil
}

func (w *recordingWriter) Sync() error { return nil }

func newTestSupervisor(t *testing.T) *Supervisor {
	t.Helper()

	logger, err := logging.New(logging.DefaultConfig())
	if err != nil {
		t.Fatalf("logging.New: %v", err)
	}

	server, err := ipc.NewServer(filepath.Join(t.TempDir(), "accentd.sock"), false, logger)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	go server.Serve()

	table := accent.Table{"e": {"é", "è", "ê", "ë"}}

	return &Supervisor{
		cfg:         config.Default(),
		logger:      logger,
		synthesizer: synth.New(&recordingWriter{}),
		server:      server,
		machines: map[int]*statemachine.Machine{
			0: statemachine.New(0, 150, 5000, true, table),
			1: statemachine.New(1, 150, 5000, true, table),
		},
		menuOpenDevice:  -1,
		timers:          make(chan *pendingTimer, 4),
		popupsShown:     metrics.NewCounter("test_popups_shown_total", "", nil),
		accentsInserted: metrics.NewCounter("test_accents_inserted_total", "", nil),
		keysSuppressed:  metrics.NewCounter("test_keys_suppressed_total", "", nil),
		shutdown:        make(chan struct{}),
	}
}

// TestGlobalPopupInvariant opens a popup on device 0, then opens one on
// device 1 before the first is dismissed: device 0's MenuOpen must be
// force-cancelled so only one device ever holds the popup slot.
func TestGlobalPopupInvariant(t *testing.T) {
	s := newTestSupervisor(t)

	openPopup(t, s, 0)
	if s.menuOpenDevice != 0 {
		t.Fatalf("menuOpenDevice = %d, want 0", s.menuOpenDevice)
	}
	if s.machines[0].State() != statemachine.MenuOpen {
		t.Fatalf("device 0 state = %v, want MenuOpen", s.machines[0].State())
	}

	openPopup(t, s, 1)
	if s.menuOpenDevice != 1 {
		t.Fatalf("menuOpenDevice = %d, want 1 after second device opens", s.menuOpenDevice)
	}
	if s.machines[0].State() != statemachine.Idle {
		t.Errorf("device 0 state = %v, want Idle after being force-cancelled", s.machines[0].State())
	}
	if s.machines[1].State() != statemachine.MenuOpen {
		t.Errorf("device 1 state = %v, want MenuOpen", s.machines[1].State())
	}

	if s.popupsShown.Value() != 2 {
		t.Errorf("popupsShown = %d, want 2", s.popupsShown.Value())
	}
}

// openPopup drives deviceID's machine from Idle through Held to MenuOpen,
// the way the supervisor would in response to a real hold-then-timeout.
func openPopup(t *testing.T, s *Supervisor, deviceID int) {
	t.Helper()

	m := s.machines[deviceID]
	actions := m.HandleKey(evdevcodes.KeyE, evdevcodes.Press)
	s.applyActions(deviceID, actions)

	if m.State() != statemachine.Held {
		t.Fatalf("device %d state = %v, want Held after press", deviceID, m.State())
	}

	actions = m.Timeout(m.Generation())
	s.applyActions(deviceID, actions)
}
