//go:build linux

package device

import (
	"os"

	"golang.org/x/sys/unix"
)

// eviocgrab is EVIOCGRAB from linux/input.h: ioctl(fd, EVIOCGRAB, 1) takes
// exclusive ownership of the device's event stream; no other process,
// including the X/Wayland compositor, sees its events while held.
const eviocgrab = 0x40044590

func grab(f *os.File) error {
	return unix.IoctlSetInt(int(f.Fd()), eviocgrab, 1)
}
