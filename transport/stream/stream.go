// Package stream carries L2CAP SDUs over a byte stream such as a TCP socket
// or a UART, so a multiplexer session can run without a Bluetooth stack.
package stream

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
)

const (
	readBufferSize = 512
	partialTimeout = 500 * time.Millisecond
)

// Stream implements rfcomm.Transport over an io.ReadWriteCloser.
type Stream struct {
	rwc io.ReadWriteCloser
	mtu int
	log rfcomm.Logger

	wmu sync.Mutex

	mu     sync.Mutex
	events rfcomm.TransportEvents

	done      chan struct{}
	closeOnce sync.Once
}

var _ rfcomm.Transport = (*Stream)(nil)

// New wraps rwc. mtu bounds the SDUs sent and accepted; values outside
// 1..65535 select rfcomm.DefaultL2CAPMTU.
func New(rwc io.ReadWriteCloser, mtu int) *Stream {
	if mtu <= 0 || mtu > 0xffff {
		mtu = rfcomm.DefaultL2CAPMTU
	}
	return &Stream{
		rwc:  rwc,
		mtu:  mtu,
		log:  rfcomm.GetLogger().ChildLogger(map[string]interface{}{"transport": "stream"}),
		done: make(chan struct{}),
	}
}

// Connect binds events and starts receiving. The stream is already
// connected, so Connected is reported before the first Receive.
func (s *Stream) Connect(events rfcomm.TransportEvents) error {
	s.mu.Lock()
	if s.events != nil {
		s.mu.Unlock()
		return errors.New("stream already bound")
	}
	if s.isClosed() {
		s.mu.Unlock()
		return rfcomm.ErrClosed
	}
	s.events = events
	s.mu.Unlock()

	events.Connected()
	go s.rxLoop(events)
	return nil
}

// Disconnect closes the underlying stream. Disconnected is reported from the
// receive loop.
func (s *Stream) Disconnect() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.rwc.Close()
	})
	return errors.Wrap(err, "can't close stream")
}

// Send writes one SDU.
func (s *Stream) Send(b []byte) error {
	if len(b) > s.mtu {
		return errors.Wrapf(rfcomm.ErrTooLarge, "sdu of %d bytes, mtu %d", len(b), s.mtu)
	}
	if s.isClosed() {
		return rfcomm.ErrClosed
	}

	s.wmu.Lock()
	defer s.wmu.Unlock()
	_, err := s.rwc.Write(encode(b))
	return errors.Wrap(err, "can't write stream")
}

// MTU returns the SDU limit given to New.
func (s *Stream) MTU() int { return s.mtu }

func (s *Stream) isClosed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (s *Stream) rxLoop(events rfcomm.TransportEvents) {
	a := newAssembler(s.mtu, partialTimeout, events.Receive)
	tmp := make([]byte, readBufferSize)
	for {
		n, err := s.rwc.Read(tmp)
		if n > 0 {
			a.Assemble(tmp[:n])
		}
		if err == nil {
			continue
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() && !s.isClosed() {
			continue
		}
		if err != io.EOF && !s.isClosed() {
			s.log.Warnf("rxLoop: %v", err)
		}
		break
	}
	if a.dropped != 0 {
		s.log.Debugf("rxLoop: discarded %d bytes", a.dropped)
	}

	s.Disconnect()
	events.Disconnected()
}
