package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/sweeney/stim-relay/internal/logger"
)

// Framing selects how the TCP stream is split into records.
type Framing string

const (
	// FramingRead treats each single read as one record. A record split
	// across reads, or longer than the buffer, is not reassembled.
	FramingRead Framing = "read"
	// FramingLine splits the stream on newlines.
	FramingLine Framing = "line"
)

// Defaults for TCPSource.
const (
	DefaultBufferSize  = 1024
	DefaultDialTimeout = 10 * time.Second
)

// TCPConfig configures a TCPSource.
type TCPConfig struct {
	Host        string
	Port        int
	Label       string
	Framing     Framing       // default FramingRead
	BufferSize  int           // default DefaultBufferSize
	DialTimeout time.Duration // default DefaultDialTimeout
}

// TCPSource reads text records from a TCP stream and triggers on a label.
type TCPSource struct {
	cfg TCPConfig
	log logger.Logger

	mu     sync.Mutex
	conn   net.Conn
	reader *bufio.Reader
	buf    []byte
	closed bool
}

// NewTCPSource creates a source for cfg. Nothing is dialled until Connect.
func NewTCPSource(cfg TCPConfig, log logger.Logger) *TCPSource {
	if cfg.Framing == "" {
		cfg.Framing = FramingRead
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = DefaultBufferSize
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = DefaultDialTimeout
	}
	return &TCPSource{cfg: cfg, log: log}
}

// Addr returns host:port.
func (s *TCPSource) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

func (s *TCPSource) String() string {
	return fmt.Sprintf("tcp %s label=%q", s.Addr(), s.cfg.Label)
}

// Connect dials the server.
func (s *TCPSource) Connect(ctx context.Context) error {
	d := net.Dialer{Timeout: s.cfg.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrConnection, s.Addr(), err)
	}

	s.mu.Lock()
	s.conn = conn
	s.buf = make([]byte, s.cfg.BufferSize)
	if s.cfg.Framing == FramingLine {
		s.reader = bufio.NewReaderSize(conn, s.cfg.BufferSize)
	}
	s.mu.Unlock()

	s.log.Info("connected",
		logger.String("local", conn.LocalAddr().String()),
		logger.String("remote", conn.RemoteAddr().String()),
		logger.String("framing", string(s.cfg.Framing)))
	return nil
}

// WaitForTrigger reads records until one matches the label (true) or the
// remote closes the stream (false).
func (s *TCPSource) WaitForTrigger(ctx context.Context) (bool, error) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return false, errors.New("source: not connected")
	}
	if ctx.Err() != nil {
		return false, nil
	}

	// Unblock the read when ctx is cancelled.
	stop := context.AfterFunc(ctx, func() {
		conn.SetReadDeadline(time.Now())
	})
	defer stop()

	var (
		ok  bool
		err error
	)
	if s.cfg.Framing == FramingLine {
		ok, err = s.waitLine()
	} else {
		ok, err = s.waitRead(conn)
	}
	// Buffered bytes can still be read after cancellation; they are not
	// reported as a trigger.
	if ctx.Err() != nil || (err != nil && s.isClosed()) {
		return false, nil
	}
	return ok, err
}

func (s *TCPSource) waitRead(conn net.Conn) (bool, error) {
	for {
		n, err := conn.Read(s.buf)
		if n > 0 && Match(string(s.buf[:n]), s.cfg.Label) {
			return true, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("remote closed connection")
				return false, nil
			}
			return false, fmt.Errorf("read: %w", err)
		}
	}
}

// waitLine matches newline-terminated records. A line longer than the
// buffer is discarded whole and reading continues.
func (s *TCPSource) waitLine() (bool, error) {
	oversized := false
	for {
		line, err := s.reader.ReadSlice('\n')
		switch {
		case errors.Is(err, bufio.ErrBufferFull):
			if !oversized {
				s.log.Warn("discarding oversized line", logger.Int("limit", s.cfg.BufferSize))
			}
			oversized = true
			continue
		case oversized:
			// Tail of the discarded line.
			oversized = false
		case len(line) > 0 && Match(string(line), s.cfg.Label):
			return true, nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.log.Info("remote closed connection")
				return false, nil
			}
			return false, fmt.Errorf("read line: %w", err)
		}
	}
}

func (s *TCPSource) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Close closes the connection. A blocked WaitForTrigger returns false.
func (s *TCPSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
