package player

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"time"
)

const (
	shmProbeImageID = 999
	shmProbeTimeout = 200 * time.Millisecond
	shmDir          = "/dev/shm"
)

// shmProbeEscape asks the terminal to show a 1x1 RGB image read from the
// shared memory object name. It leaves out q= so the terminal must answer.
func shmProbeEscape(name string) string {
	encoded := base64.StdEncoding.EncodeToString([]byte(name))
	return fmt.Sprintf("\x1b_Ga=T,f=24,s=1,v=1,i=%d,t=s;%s\x1b\\", shmProbeImageID, encoded)
}

// shmProbeCleanup deletes the probe image.
func shmProbeCleanup() string {
	return fmt.Sprintf("\x1b_Ga=d,d=i,i=%d,q=2\x1b\\", shmProbeImageID)
}

// shmReplyOK reports whether reply holds a successful graphics response for
// the probe image, e.g. "\x1b_Gi=999;OK\x1b\\". Other terminal output may
// surround it.
func shmReplyOK(reply []byte) bool {
	prefix := []byte(fmt.Sprintf("\x1b_Gi=%d;", shmProbeImageID))
	start := bytes.Index(reply, prefix)
	if start < 0 {
		return false
	}
	msg := reply[start+len(prefix):]
	end := bytes.IndexByte(msg, 0x1b)
	if end < 0 {
		return false
	}
	return string(msg[:end]) == "OK"
}
