// Package supervisor wires the Device Registry, per-device state
// machines, Synthesizer, and Control Plane into the single goroutine
// that owns all daemon state, mirroring the single-threaded, lock-free
// event loop the design calls for.
package supervisor

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gildo/accentd/internal/accent"
	"github.com/gildo/accentd/internal/config"
	"github.com/gildo/accentd/internal/device"
	"github.com/gildo/accentd/internal/evdevcodes"
	"github.com/gildo/accentd/internal/ipc"
	"github.com/gildo/accentd/internal/logging"
	"github.com/gildo/accentd/internal/metrics"
	"github.com/gildo/accentd/internal/paniccombo"
	"github.com/gildo/accentd/internal/statemachine"
	"github.com/gildo/accentd/internal/synth"
	"github.com/gildo/accentd/internal/watcher"
)

// Version is surfaced in Status responses.
const Version = "0.1.0"

// deviceEvent wraps a normalized key event read by one device's reader
// goroutine.
type deviceEvent struct {
	ev evdevcodes.Event
}

// pendingTimer is one armed hold or popup-timeout timer.
type pendingTimer struct {
	deviceID int
	gen      int
	popup    bool
	deadline time.Time
	timer    *time.Timer
}

// Supervisor owns every piece of mutable daemon state and runs the main
// select loop.
type Supervisor struct {
	cfg      *config.Config
	registry *accent.Registry
	logger   *logging.Logger

	synthesizer *synth.Synthesizer
	closeSynth  func() error

	server *ipc.Server

	handles  map[int]*device.Handle
	machines map[int]*statemachine.Machine

	menuOpenDevice int // -1 when no device is in MenuOpen

	watcher *watcher.Watcher

	events  chan deviceEvent
	timers  chan *pendingTimer
	combo   *paniccombo.Detector

	popupsShown     *metrics.Counter
	accentsInserted *metrics.Counter
	keysSuppressed  *metrics.Counter

	shutdown chan struct{}
}

// New builds a Supervisor. Devices have already been discovered and
// grabbed by the caller (typically cmd/accentd's startup sequence); New
// takes ownership of them.
func New(
	cfg *config.Config,
	registry *accent.Registry,
	logger *logging.Logger,
	synthesizer *synth.Synthesizer,
	closeSynth func() error,
	server *ipc.Server,
	handles []*device.Handle,
	devWatcher *watcher.Watcher,
) (*Supervisor, error) {
	s := &Supervisor{
		cfg:            cfg,
		registry:       registry,
		logger:         logger,
		synthesizer:    synthesizer,
		closeSynth:     closeSynth,
		server:         server,
		handles:        make(map[int]*device.Handle),
		machines:       make(map[int]*statemachine.Machine),
		menuOpenDevice: -1,
		watcher:        devWatcher,
		events:         make(chan deviceEvent, 256),
		timers:         make(chan *pendingTimer, 16),
		combo:          paniccombo.New(),
		shutdown:       make(chan struct{}),
	}

	reg := metrics.Default()
	s.popupsShown = reg.RegisterCounter("popups_shown_total", "Accent popups opened", nil)
	s.accentsInserted = reg.RegisterCounter("accents_inserted_total", "Accented variants inserted via selection", nil)
	s.keysSuppressed = reg.RegisterCounter("keys_suppressed_total", "Key events suppressed (autorepeat during a hold, releases of selecting digits)", nil)

	snap := cfg.Snapshot()
	table, err := registry.Load(snap.ActiveLocale)
	if err != nil {
		return nil, fmt.Errorf("load initial locale %q: %w", snap.ActiveLocale, err)
	}

	for _, h := range handles {
		s.addDevice(h, table, snap)
	}

	return s, nil
}

func (s *Supervisor) addDevice(h *device.Handle, table accent.Table, snap config.Snapshot) {
	s.handles[h.ID] = h
	s.machines[h.ID] = statemachine.New(h.ID, snap.ThresholdMs, snap.PopupTimeoutMs, snap.Enabled, table)

	go func() {
		for ev := range h.Events() {
			select {
			case s.events <- deviceEvent{ev: ev}:
			case <-s.shutdown:
				return
			}
		}
	}()
}

// Run drives the main loop until a shutdown signal, the panic combo, or a
// Shutdown control-plane message is received. It returns the error, if
// any, from closing the control socket during teardown.
func (s *Supervisor) Run() error {
	go s.server.Serve()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if s.watcher != nil {
		go s.watchHotplug()
	}

	for {
		select {
		case de := <-s.events:
			s.handleDeviceEvent(de.ev)

		case in := <-s.server.Inbound():
			// Device events already queued are handled before the control
			// message, keeping input-to-output latency low.
			for pending := true; pending; {
				select {
				case de := <-s.events:
					s.handleDeviceEvent(de.ev)
				default:
					pending = false
				}
			}
			s.handleControlMessage(in)

		case t := <-s.timers:
			s.handleTimerFire(t)

		case sig := <-sigCh:
			s.logger.Info("received signal, shutting down", "signal", sig.String())
			return s.teardown()

		case <-s.shutdown:
			return s.teardown()
		}
	}
}

func (s *Supervisor) watchHotplug() {
	for {
		select {
		case ev, ok := <-s.watcher.Events():
			if !ok {
				return
			}
			switch ev.Kind {
			case watcher.DeviceAdded:
				s.onDeviceAdded(ev.Path)
			case watcher.DeviceRemoved:
				s.onDeviceRemoved(ev.Path)
			}
		case <-s.shutdown:
			return
		}
	}
}

func (s *Supervisor) onDeviceAdded(path string) {
	handles, err := device.Discover(func(p string, err error) {
		s.logger.Debug("skipping device on hotplug scan", "path", p, "error", err)
	})
	if err != nil {
		s.logger.Warn("hotplug rescan failed", "error", err)
		return
	}
	for _, h := range handles {
		if h.Path != path {
			continue
		}
		// Discover numbers each scan's handles from 0, so give the new
		// handle an id no tracked device already uses.
		for _, taken := s.handles[h.ID]; taken; _, taken = s.handles[h.ID] {
			h.ID++
		}
		snap := s.cfg.Snapshot()
		table, err := s.registry.Load(snap.ActiveLocale)
		if err != nil {
			s.logger.Warn("failed to load locale for new device", "error", err)
			return
		}
		s.addDevice(h, table, snap)
		s.logger.Info("grabbed newly attached keyboard", "path", h.Path, "name", h.Name)
	}
}

func (s *Supervisor) onDeviceRemoved(path string) {
	for id, h := range s.handles {
		if h.Path == path {
			h.Close()
			delete(s.handles, id)
			delete(s.machines, id)
			if s.menuOpenDevice == id {
				s.menuOpenDevice = -1
			}
			s.logger.Info("dropped removed keyboard", "path", path)
			return
		}
	}
}

func (s *Supervisor) handleDeviceEvent(ev evdevcodes.Event) {
	m, ok := s.machines[ev.DeviceID]
	if !ok {
		return
	}

	if ev.Action == evdevcodes.Press {
		if s.combo.Observe(ev.Keycode, ev.Timestamp) {
			s.logger.Info("panic combo detected, shutting down")
			close(s.shutdown)
			return
		}
	}

	actions := m.HandleKey(ev.Keycode, ev.Action)
	s.applyActions(ev.DeviceID, actions)
}

func (s *Supervisor) applyActions(deviceID int, actions []statemachine.Action) {
	for _, a := range actions {
		switch a.Kind {
		case statemachine.ForwardEvent:
			if err := s.synthesizer.PassThrough(a.Keycode, a.KeyAct); err != nil {
				s.logger.Warn("synthesizer emission failed, resetting device", "device", deviceID, "error", err)
				s.resetDevice(deviceID)
			}

		case statemachine.SuppressEvent:
			s.keysSuppressed.Inc()

		case statemachine.ArmTimer:
			s.armTimer(deviceID, a.Gen, false, a.Deadline)

		case statemachine.SynthRelease:
			if err := s.synthesizer.ReplayCancelled(a.Keycode); err != nil {
				s.logger.Warn("synthetic release failed", "device", deviceID, "error", err)
				s.resetDevice(deviceID)
			}

		case statemachine.ShowPopup:
			s.popupsShown.Inc()
			s.onEnteringMenuOpen(deviceID)
			snap := s.cfg.Snapshot()
			s.server.Broadcast(ipc.PopupShow(a.Base, a.Variants, snap.FontSize, snap.PopupTimeoutMs))
			s.armTimer(deviceID, a.Gen, true, time.Now().Add(time.Duration(snap.PopupTimeoutMs)*time.Millisecond))

		case statemachine.HidePopup:
			if s.menuOpenDevice == deviceID {
				s.menuOpenDevice = -1
			}
			s.server.Broadcast(ipc.PopupHide())

		case statemachine.ReplaceWithVariant:
			s.accentsInserted.Inc()
			if err := s.synthesizer.EmitBackspace(); err != nil {
				s.logger.Warn("backspace emission failed", "device", deviceID, "error", err)
				s.resetDevice(deviceID)
				continue
			}
			if err := s.synthesizer.EmitVariant(a.Variant); err != nil {
				s.logger.Warn("variant emission failed", "device", deviceID, "error", err)
				s.resetDevice(deviceID)
			}
		}
	}
}

// onEnteringMenuOpen enforces the global-popup invariant: before this
// device opens its menu, force-cancel whichever other device currently
// has one open.
func (s *Supervisor) onEnteringMenuOpen(deviceID int) {
	if s.menuOpenDevice != -1 && s.menuOpenDevice != deviceID {
		if other, ok := s.machines[s.menuOpenDevice]; ok {
			cancelActions := other.ForceCancel()
			s.applyActions(s.menuOpenDevice, cancelActions)
		}
	}
	s.menuOpenDevice = deviceID
}

func (s *Supervisor) resetDevice(deviceID int) {
	if m, ok := s.machines[deviceID]; ok {
		m.ForceCancel()
	}
	if s.menuOpenDevice == deviceID {
		s.menuOpenDevice = -1
	}
}

func (s *Supervisor) armTimer(deviceID, gen int, popup bool, deadline time.Time) {
	t := &pendingTimer{deviceID: deviceID, gen: gen, popup: popup, deadline: deadline}
	timer := time.AfterFunc(time.Until(deadline), func() {
		select {
		case s.timers <- t:
		case <-s.shutdown:
		}
	})
	t.timer = timer
}

func (s *Supervisor) handleTimerFire(t *pendingTimer) {
	m, ok := s.machines[t.deviceID]
	if !ok {
		return
	}

	var actions []statemachine.Action
	if t.popup {
		actions = m.PopupTimeout(t.gen)
	} else {
		actions = m.Timeout(t.gen)
	}
	s.applyActions(t.deviceID, actions)
}

func (s *Supervisor) handleControlMessage(in ipc.Inbound) {
	msg := in.Msg
	switch msg.Type {
	case ipc.TypeGetStatus:
		snap := s.cfg.Snapshot()
		names := make([]string, 0, len(s.handles))
		for _, h := range s.handles {
			names = append(names, h.Name)
		}
		in.Reply(ipc.Status(snap.Enabled, snap.ActiveLocale, names, snap.ThresholdMs, Version))

	case ipc.TypeSetLocale:
		table, err := s.registry.Load(msg.Name)
		if err != nil {
			in.Reply(ipc.Error("unknown_locale", err.Error()))
			return
		}
		s.cfg.SetLocale(msg.Name)
		for _, m := range s.machines {
			m.SetLocale(table)
		}
		in.Reply(ipc.Ok())

	case ipc.TypeEnable:
		enabled := s.cfg.SetEnabled(true)
		s.propagateEnabled(enabled)
		in.Reply(ipc.OkEnabled(enabled))

	case ipc.TypeDisable:
		enabled := s.cfg.SetEnabled(false)
		s.propagateEnabled(enabled)
		in.Reply(ipc.OkEnabled(enabled))

	case ipc.TypeToggle:
		enabled := s.cfg.Toggle()
		s.propagateEnabled(enabled)
		in.Reply(ipc.OkEnabled(enabled))

	case ipc.TypeShutdown:
		in.Reply(ipc.Ok())
		close(s.shutdown)

	case ipc.TypeSelection:
		if s.menuOpenDevice == -1 {
			return
		}
		if m, ok := s.machines[s.menuOpenDevice]; ok {
			actions := m.Selection(msg.Index)
			s.applyActions(s.menuOpenDevice, actions)
		}

	case ipc.TypeDismissed:
		if s.menuOpenDevice == -1 {
			return
		}
		if m, ok := s.machines[s.menuOpenDevice]; ok {
			actions := m.Dismissed()
			s.applyActions(s.menuOpenDevice, actions)
		}

	case ipc.TypePopupAck:
		// Acknowledged; no state change required.

	default:
		in.Reply(ipc.Error(ipc.ErrUnknownCommand, string(msg.Type)))
	}
}

func (s *Supervisor) propagateEnabled(enabled bool) {
	for id, m := range s.machines {
		actions := m.SetEnabled(enabled)
		s.applyActions(id, actions)
	}
}

func (s *Supervisor) teardown() error {
	for _, h := range s.handles {
		h.Close()
	}
	if s.watcher != nil {
		s.watcher.Stop()
	}
	if s.closeSynth != nil {
		if err := s.closeSynth(); err != nil {
			s.logger.Warn("failed to destroy virtual device cleanly", "error", err)
		}
	}
	return s.server.Close()
}
