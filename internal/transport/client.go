package transport

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"
)

// MaxResponseLine bounds the reply line read from a server.
const MaxResponseLine = 64 * 1024

var (
	// ErrNoResponse is returned when the peer closes without sending a line.
	ErrNoResponse = errors.New("no response from server")
	// ErrResponseTooLong is returned when no line terminator arrives within
	// MaxResponseLine bytes.
	ErrResponseTooLong = errors.New("response line too long")
)

// DialError wraps a failure to establish the connection.
type DialError struct {
	Address string
	Err     error
}

func (e *DialError) Error() string { return fmt.Sprintf("connect %s: %v", e.Address, e.Err) }
func (e *DialError) Unwrap() error { return e.Err }

// IsUnknownHost reports whether err is a name resolution failure.
func IsUnknownHost(err error) bool {
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}

// Client performs one line-oriented request/response exchange per call:
// connect, write one line, read one line, close.
type Client struct {
	address string
	timeout time.Duration
	dialer  net.Dialer
}

// DefaultTimeout applies when NewClient is given a non-positive timeout.
const DefaultTimeout = 10 * time.Second

func NewClient(host string, port int, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Client{
		address: net.JoinHostPort(host, strconv.Itoa(port)),
		timeout: timeout,
		dialer:  net.Dialer{Timeout: timeout},
	}
}

func (c *Client) Address() string { return c.address }

// Exchange writes line (newline terminated) and returns the first response
// line without its terminator. The connection is closed on every path.
func (c *Client) Exchange(ctx context.Context, line string) (string, error) {
	conn, err := c.dialer.DialContext(ctx, "tcp", c.address)
	if err != nil {
		return "", &DialError{Address: c.address, Err: err}
	}
	defer conn.Close()

	deadline := time.Now().Add(c.timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return "", fmt.Errorf("set deadline: %w", err)
	}

	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := io.WriteString(conn, line); err != nil {
		return "", fmt.Errorf("write failed: %w", err)
	}

	buf, err := bufio.NewReaderSize(conn, MaxResponseLine).ReadSlice('\n')
	resp := strings.TrimRight(string(buf), "\r\n")
	switch {
	case err == nil:
		return resp, nil
	case errors.Is(err, bufio.ErrBufferFull):
		return "", ErrResponseTooLong
	case errors.Is(err, io.EOF) && len(buf) > 0:
		return resp, nil
	case errors.Is(err, io.EOF):
		return "", ErrNoResponse
	}
	return "", fmt.Errorf("read failed: %w", err)
}
