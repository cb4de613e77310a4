// Package device discovers physical keyboards under /dev/input, grabs
// them exclusively, and normalizes their raw event streams.
package device

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gildo/accentd/internal/evdevcodes"
)

// Handle is a grabbed keyboard: its file descriptor, a human-readable
// name, and the stable id the rest of the daemon refers to it by. Closing
// the descriptor releases the exclusive grab unconditionally, including on
// crash — the kernel does this for free.
type Handle struct {
	ID   int
	Path string
	Name string

	f *os.File
}

// Events returns a channel of normalized key events read from this
// device. The channel is closed, and the underlying file left open for
// the caller to Close, when a read error occurs (including the read that
// fails once Close has been called).
func (h *Handle) Events() <-chan evdevcodes.Event {
	out := make(chan evdevcodes.Event, 64)
	buf := make([]byte, evdevcodes.RawEventSize())

	go func() {
		defer close(out)
		for {
			n, err := h.f.Read(buf)
			if err != nil {
				return
			}
			if n < len(buf) {
				continue
			}
			ev, ok, err := evdevcodes.Decode(buf, h.ID)
			if err != nil || !ok {
				continue
			}
			out <- ev
		}
	}()

	return out
}

// Close releases the grab by closing the descriptor.
func (h *Handle) Close() error {
	return h.f.Close()
}

// selfDeviceMarker appears in the name of accentd's own virtual output
// device; discovery skips any device whose name contains it, so the
// daemon never grabs (and feeds back into) its own synthesized keyboard.
const selfDeviceMarker = "accentd"

// Discover enumerates /dev/input/event* devices, keeping only those whose
// /proc/bus/input/devices capability line marks them as a keyboard, and
// opens+grabs each one. Devices that fail to open or grab are reported to
// onSkip with their error and skipped; Discover
// itself never fails outright because one bad device is present.
func Discover(onSkip func(path string, err error)) ([]*Handle, error) {
	keyboardPaths, err := keyboardDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("enumerate input devices: %w", err)
	}

	var handles []*Handle
	nextID := 0
	for _, path := range keyboardPaths {
		h, err := openAndGrab(path, nextID)
		if err != nil {
			if onSkip != nil {
				onSkip(path, err)
			}
			continue
		}
		if strings.Contains(h.Name, selfDeviceMarker) {
			h.Close()
			continue
		}
		handles = append(handles, h)
		nextID++
	}

	return handles, nil
}

// keyboardDevicePaths scans /proc/bus/input/devices for handlers whose
// capability bitmap includes KEY_A, KEY_Z, and KEY_ENTER — a heuristic
// that keeps mice and other pointer-only devices out, matching the
// reference daemon's is_keyboard check.
func keyboardDevicePaths() ([]string, error) {
	f, err := os.Open("/proc/bus/input/devices")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var paths []string
	var handler string
	hasKeyBitmap := false

	flush := func() {
		if handler != "" && hasKeyBitmap {
			paths = append(paths, handler)
		}
		handler = ""
		hasKeyBitmap = false
	}

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()

		switch {
		case strings.HasPrefix(line, "H: Handlers="):
			for _, field := range strings.Fields(line) {
				if strings.HasPrefix(field, "event") {
					handler = filepath.Join("/dev/input", field)
				}
			}
		case strings.HasPrefix(line, "B: KEY="):
			if looksLikeKeyboardBitmap(line) {
				hasKeyBitmap = true
			}
		case line == "":
			flush()
		}
	}
	flush()

	return paths, scanner.Err()
}

// looksLikeKeyboardBitmap reports whether the KEY= capability line sets the
// KEY_A, KEY_Z, and KEY_ENTER bits. The line lists 64-bit words, most
// significant first, so those low keycodes all live in its last word.
func looksLikeKeyboardBitmap(line string) bool {
	words := strings.Fields(strings.TrimPrefix(line, "B: KEY="))
	if len(words) == 0 {
		return false
	}
	low, err := strconv.ParseUint(words[len(words)-1], 16, 64)
	if err != nil {
		return false
	}
	for _, code := range []evdevcodes.Code{evdevcodes.KeyA, evdevcodes.KeyZ, evdevcodes.KeyEnter} {
		if low&(1<<uint(code)) == 0 {
			return false
		}
	}
	return true
}

func openAndGrab(path string, id int) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}

	if err := grab(f); err != nil {
		f.Close()
		return nil, fmt.Errorf("grab %s: %w", path, err)
	}

	return &Handle{
		ID:   id,
		Path: path,
		Name: deviceName(path),
		f:    f,
	}, nil
}

func deviceName(path string) string {
	base := filepath.Base(path)
	namePath := filepath.Join("/sys/class/input", base, "device", "name")
	data, err := os.ReadFile(namePath)
	if err != nil {
		return base
	}
	return strings.TrimSpace(string(data))
}
