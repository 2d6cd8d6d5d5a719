package peer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"

	"github.com/LBBNetwork/JeopardyRingInPublic/shared"
)

// Port is an open link to the peer. Read returns 0, nil when its timeout
// passes with nothing to read.
type Port interface {
	io.ReadWriteCloser
}

type Opener interface {
	Open() (Port, error)
}

type SerialOpener struct {
	Path        string
	Baud        int
	ReadTimeout time.Duration
}

func (o SerialOpener) Open() (Port, error) {
	port, err := serial.Open(o.Path, &serial.Mode{
		BaudRate: o.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %s", shared.ErrSerialPortUnavailable, o.Path, describe(err))
	}
	if err := port.SetReadTimeout(o.ReadTimeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("%w: %s: set read timeout: %v", shared.ErrSerialPortUnavailable, o.Path, err)
	}
	return port, nil
}

func describe(err error) string {
	code, ok := portErrorCode(err)
	if !ok {
		return err.Error()
	}
	switch code {
	case serial.PortNotFound:
		return "device not found"
	case serial.PortBusy:
		return "device busy"
	case serial.PermissionDenied:
		return "permission denied"
	case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
		return "unsupported line settings: " + err.Error()
	}
	return err.Error()
}

func portErrorCode(err error) (serial.PortErrorCode, bool) {
	var byValue serial.PortError
	if errors.As(err, &byValue) {
		return byValue.Code(), true
	}
	var byRef *serial.PortError
	if errors.As(err, &byRef) && byRef != nil {
		return byRef.Code(), true
	}
	return 0, false
}
