//go:build linux

package player

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ShmSupported reports whether /dev/shm exists and the terminal on stdin and
// stdout accepts Kitty graphics sent through shared memory (t=s).
//
// It reads the terminal's answer from stdin, so it must run before bubbletea
// starts.
func ShmSupported() bool {
	info, err := os.Stat(shmDir)
	if err != nil || !info.IsDir() {
		return false
	}

	name := fmt.Sprintf("/netplay-probe-%d", os.Getpid())
	if err := writeShm(name, []byte{0, 0, 0}); err != nil {
		return false
	}
	// a terminal that never reads the object leaves it behind
	defer os.Remove(shmDir + name)

	var reply []byte
	err = withRawInput(int(os.Stdin.Fd()), func() error {
		// discard typeahead
		discard := make([]byte, 256)
		_, _ = os.Stdin.Read(discard)

		if _, err := fmt.Fprint(os.Stdout, shmProbeEscape(name)); err != nil {
			return err
		}
		buf := make([]byte, 256)
		n, _ := os.Stdin.Read(buf)
		reply = buf[:n]

		_, err := fmt.Fprint(os.Stdout, shmProbeCleanup())
		return err
	})
	return err == nil && shmReplyOK(reply)
}

// withRawInput runs fn with fd in non-canonical mode, where a read returns
// after shmProbeTimeout without input. The previous mode is restored.
func withRawInput(fd int, fn func() error) error {
	old, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		return err
	}

	raw := *old
	raw.Lflag &^= unix.ECHO | unix.ICANON | unix.ISIG
	raw.Iflag &^= unix.IXON | unix.ICRNL
	raw.Cc[unix.VMIN] = 0
	raw.Cc[unix.VTIME] = uint8(shmProbeTimeout.Milliseconds() / 100)
	if err := unix.IoctlSetTermios(fd, unix.TCSETS, &raw); err != nil {
		return err
	}
	defer unix.IoctlSetTermios(fd, unix.TCSETS, old)

	return fn()
}

// writeShm stores pix in the POSIX shared memory object name. The terminal
// unlinks the object after reading it.
func writeShm(name string, pix []byte) error {
	return os.WriteFile(shmDir+name, pix, 0o600)
}
