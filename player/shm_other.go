//go:build !linux

package player

import "errors"

// ShmSupported always reports false outside Linux.
func ShmSupported() bool {
	return false
}

func writeShm(string, []byte) error {
	return errors.New("shared memory transmission not supported")
}
