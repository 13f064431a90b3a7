package protocol

import (
	"errors"
	"net"
	"os"
	"syscall"
	"time"
)

const (
	// DefaultBufferSize is the size of a single socket read.
	DefaultBufferSize = 1024
	// DefaultDrainWindow is how long the socket may stay quiet before the
	// bytes read so far are taken as a complete message.
	DefaultDrainWindow = 20 * time.Millisecond
)

// ReadFrame reads one message from conn into a new slice, using buf for the
// individual reads. It waits up to wait for the first bytes (forever if wait
// is 0), then keeps reading until no more bytes arrive within drain.
//
// A message split by the network into pieces further apart than drain is
// returned as separate frames; senders must flush each message in one write.
//
// If the first read times out, ReadFrame returns an empty frame and an error
// for which IsTimeout is true. Other errors are returned with whatever bytes
// were read before them.
func ReadFrame(conn net.Conn, buf []byte, wait, drain time.Duration) ([]byte, error) {
	if len(buf) == 0 {
		buf = make([]byte, DefaultBufferSize)
	}
	if drain <= 0 {
		drain = DefaultDrainWindow
	}

	var deadline time.Time
	if wait > 0 {
		deadline = time.Now().Add(wait)
	}
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	n, err := conn.Read(buf)
	frame := append([]byte(nil), buf[:n]...)
	if err != nil {
		return frame, err
	}

	for {
		if err := conn.SetReadDeadline(time.Now().Add(drain)); err != nil {
			return frame, err
		}
		n, err := conn.Read(buf)
		frame = append(frame, buf[:n]...)
		if err != nil {
			if IsTimeout(err) {
				return frame, nil
			}
			return frame, err
		}
	}
}

// WriteFrame sends msg as one write.
func WriteFrame(conn net.Conn, msg string) error {
	_, err := conn.Write([]byte(msg))
	return err
}

// IsTimeout reports whether err is a read or write deadline expiry.
func IsTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// IsReset reports whether err means the peer reset the connection.
func IsReset(err error) bool {
	return errors.Is(err, syscall.ECONNRESET)
}
