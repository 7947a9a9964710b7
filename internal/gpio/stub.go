//go:build !linux

package gpio

import "errors"

// OpenEndstop returns an error on non-Linux platforms.
func OpenEndstop(name, chipName string, offset int, clock Clock) (*Endstop, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
