package protocol

import (
	"bufio"
	"errors"
	"net"
	"strings"
	"sync"
	"time"
)

const (
	// MaxLineSize is the maximum allowed message size in bytes, excluding
	// the terminating newline. Longer messages are rejected to bound
	// per-connection buffering.
	MaxLineSize = 4096

	// DefaultReadTimeout is how long a read waits for a complete line
	// before the connection is considered lost.
	DefaultReadTimeout = 30 * time.Second
)

var (
	ErrLineTooLong = errors.New("message exceeds maximum size (4096 bytes)")
)

// Framer reads and writes newline-terminated messages on a net.Conn.
// Reads accumulate bytes until a newline is seen, under a per-read
// deadline. Writes are serialized by an internal mutex so multiple
// goroutines may send on the same connection (the eviction notice is
// pushed from another session's worker).
type Framer struct {
	conn        net.Conn
	reader      *bufio.Reader
	writeMu     sync.Mutex
	ReadTimeout time.Duration
	MaxLineSize int
}

// NewFramer wraps a connection with line framing using the default
// timeout and size ceiling.
func NewFramer(conn net.Conn) *Framer {
	return &Framer{
		conn:        conn,
		reader:      bufio.NewReader(conn),
		ReadTimeout: DefaultReadTimeout,
		MaxLineSize: MaxLineSize,
	}
}

// ReadLine reads one message, blocking until a newline arrives or the
// read timeout fires. The returned line has the newline (and any
// preceding carriage return) stripped. Any error means the caller
// should treat the connection as lost.
func (f *Framer) ReadLine() (string, error) {
	if f.ReadTimeout > 0 {
		if err := f.conn.SetReadDeadline(time.Now().Add(f.ReadTimeout)); err != nil {
			return "", err
		}
	}

	var sb strings.Builder
	for {
		b, err := f.reader.ReadByte()
		if err != nil {
			return "", err
		}
		if b == '\n' {
			return strings.TrimSuffix(sb.String(), "\r"), nil
		}
		if sb.Len() >= f.MaxLineSize {
			return "", ErrLineTooLong
		}
		sb.WriteByte(b)
	}
}

// WriteLine sends a message followed by a newline, retrying partial
// writes until the full payload is on the wire or the connection fails.
func (f *Framer) WriteLine(line string) error {
	f.writeMu.Lock()
	defer f.writeMu.Unlock()

	payload := []byte(line + "\n")
	for len(payload) > 0 {
		n, err := f.conn.Write(payload)
		if err != nil {
			return err
		}
		payload = payload[n:]
	}
	return nil
}

// WriteMessage serializes and sends a message.
func (f *Framer) WriteMessage(m Message) error {
	return f.WriteLine(m.Serialize())
}
