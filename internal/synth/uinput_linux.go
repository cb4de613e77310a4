//go:build linux

package synth

import (
	"fmt"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/gildo/accentd/internal/evdevcodes"
)

// uinput ioctl numbers and struct layout, from linux/uinput.h and
// linux/input.h.
const (
	uiDevCreate  = 0x5501
	uiDevDestroy = 0x5502
	uiSetEvBit   = 0x40045564
	uiSetKeyBit  = 0x40045565
	busUSB       = 0x03

	uinputMaxNameSize = 80
	maxKeycode        = 0x2ff
)

type inputID struct {
	Bustype uint16
	Vendor  uint16
	Product uint16
	Version uint16
}

type uinputUserDev struct {
	Name       [uinputMaxNameSize]byte
	ID         inputID
	EffectsMax uint32
	Absmax     [64]int32
	Absmin     [64]int32
	Absfuzz    [64]int32
	Absflat    [64]int32
}

type rawInputEvent struct {
	Sec, Usec int64
	Type      uint16
	Code      uint16
	Value     int32
}

// UinputDevice is a Writer backed by a real /dev/uinput virtual keyboard.
type UinputDevice struct {
	f *os.File
}

// deviceName is advertised by the virtual keyboard; the Device Registry
// uses it to skip grabbing accentd's own synthetic output.
const deviceName = "accentd virtual keyboard"

// CreateUinputDevice opens /dev/uinput, advertises every keycode up to
// maxKeycode so the daemon can replay and inject any key it needs, and
// creates the device.
func CreateUinputDevice() (*UinputDevice, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}

	if err := setEvBit(f); err != nil {
		f.Close()
		return nil, err
	}
	for code := 0; code <= maxKeycode; code++ {
		if err := ioctlInt(f, uiSetKeyBit, code); err != nil {
			f.Close()
			return nil, fmt.Errorf("UI_SET_KEYBIT %d: %w", code, err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:], deviceName)
	dev.ID = inputID{Bustype: busUSB, Vendor: 0x1d6b, Product: 0x0101, Version: 1}

	if _, err := f.Write((*(*[unsafe.Sizeof(uinputUserDev{})]byte)(unsafe.Pointer(&dev)))[:]); err != nil {
		f.Close()
		return nil, fmt.Errorf("write uinput_user_dev: %w", err)
	}

	if err := ioctlNoArg(f, uiDevCreate); err != nil {
		f.Close()
		return nil, fmt.Errorf("UI_DEV_CREATE: %w", err)
	}

	return &UinputDevice{f: f}, nil
}

func setEvBit(f *os.File) error {
	const evKey = 0x01
	return ioctlInt(f, uiSetEvBit, evKey)
}

// Write emits a single key event plus its implicit timestamp.
func (d *UinputDevice) Write(code evdevcodes.Code, action evdevcodes.Action) error {
	now := time.Now()
	ev := rawInputEvent{
		Sec:   now.Unix(),
		Usec:  int64(now.Nanosecond() / 1000),
		Type:  0x01, // EV_KEY
		Code:  uint16(code),
		Value: int32(action),
	}
	return d.writeEvent(ev)
}

// Sync emits an EV_SYN/SYN_REPORT so the kernel delivers the batch.
func (d *UinputDevice) Sync() error {
	now := time.Now()
	ev := rawInputEvent{
		Sec:  now.Unix(),
		Usec: int64(now.Nanosecond() / 1000),
		Type: 0x00, // EV_SYN
		Code: 0,    // SYN_REPORT
	}
	return d.writeEvent(ev)
}

func (d *UinputDevice) writeEvent(ev rawInputEvent) error {
	buf := (*(*[unsafe.Sizeof(rawInputEvent{})]byte)(unsafe.Pointer(&ev)))[:]
	_, err := d.f.Write(buf)
	return err
}

// Close destroys the virtual device and releases the file descriptor.
func (d *UinputDevice) Close() error {
	_ = ioctlNoArg(d.f, uiDevDestroy)
	return d.f.Close()
}

func ioctlInt(f *os.File, req uint, arg int) error {
	return unix.IoctlSetInt(int(f.Fd()), req, arg)
}

func ioctlNoArg(f *os.File, req uint) error {
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uintptr(req), 0)
	if errno != 0 {
		return errno
	}
	return nil
}
