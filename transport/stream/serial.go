package stream

import (
	"github.com/jacobsa/go-serial/serial"
	"github.com/pkg/errors"
)

// DefaultSerialOptions returns 8N1 options for a blocking read of at least
// one byte.
func DefaultSerialOptions() serial.OpenOptions {
	return serial.OpenOptions{
		BaudRate:        115200,
		DataBits:        8,
		StopBits:        1,
		ParityMode:      serial.PARITY_NONE,
		MinimumReadSize: 1,
	}
}

// OpenSerial opens the UART at path. A zero baud keeps the default rate.
func OpenSerial(path string, baud uint, mtu int) (*Stream, error) {
	opts := DefaultSerialOptions()
	opts.PortName = path
	if baud != 0 {
		opts.BaudRate = baud
	}

	sp, err := serial.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "can't open %s", path)
	}
	return New(sp, mtu), nil
}
