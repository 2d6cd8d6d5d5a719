package shared

import "errors"

var (
	// ErrHardwareInit means the GPIO subsystem could not be brought up. Fatal.
	ErrHardwareInit = errors.New("gpio subsystem unavailable")

	// ErrSerialPortUnavailable means the peer serial device could not be
	// opened. The peer engine retries with backoff.
	ErrSerialPortUnavailable = errors.New("serial port unavailable")

	// ErrUnknownEventID is returned when a player, second or protocol byte
	// falls outside its domain. Callers log it and carry on.
	ErrUnknownEventID = errors.New("unknown event id")

	// ErrPrivilege is a warning: the process lacks hardware access rights.
	ErrPrivilege = errors.New("not running with hardware access rights")
)
