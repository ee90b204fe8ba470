package transport

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// serveOnce accepts one connection, records the received line and answers
// with reply verbatim.
func serveOnce(t *testing.T, reply string) (host string, port int, got <-chan string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	ch := make(chan string, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		line, _ := bufio.NewReader(conn).ReadString('\n')
		ch <- line
		_, _ = conn.Write([]byte(reply))
	}()

	h, p, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	n, err := strconv.Atoi(p)
	require.NoError(t, err)
	return h, n, ch
}

func TestClient_Exchange(t *testing.T) {
	host, port, got := serveOnce(t, "result=OK000\nmessage=Successful")

	c := NewClient(host, port, 2*time.Second)
	resp, err := c.Exchange(context.Background(), "PING:7")
	require.NoError(t, err)

	assert.Equal(t, "PING:7\n", <-got)
	assert.Equal(t, "result=OK000", resp)
}

func TestClient_ExchangeUnterminatedReply(t *testing.T) {
	host, port, _ := serveOnce(t, "result=TX001")

	resp, err := NewClient(host, port, 2*time.Second).Exchange(context.Background(), "X\n")
	require.NoError(t, err)
	assert.Equal(t, "result=TX001", resp)
}

func TestClient_ExchangeNoReply(t *testing.T) {
	host, port, _ := serveOnce(t, "")

	_, err := NewClient(host, port, 2*time.Second).Exchange(context.Background(), "X")
	assert.ErrorIs(t, err, ErrNoResponse)
}

func TestClient_ExchangeOversizedReply(t *testing.T) {
	host, port, _ := serveOnce(t, strings.Repeat("x", MaxResponseLine+1))

	_, err := NewClient(host, port, 2*time.Second).Exchange(context.Background(), "X")
	assert.ErrorIs(t, err, ErrResponseTooLong)
}

func TestClient_DialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().(*net.TCPAddr)
	require.NoError(t, ln.Close())

	_, err = NewClient("127.0.0.1", addr.Port, time.Second).Exchange(context.Background(), "X")
	var dialErr *DialError
	require.ErrorAs(t, err, &dialErr)
	assert.False(t, IsUnknownHost(err))
}

func TestClient_ReadTimeout(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		time.Sleep(500 * time.Millisecond)
		conn.Close()
	}()

	addr := ln.Addr().(*net.TCPAddr)
	start := time.Now()
	_, err = NewClient("127.0.0.1", addr.Port, 100*time.Millisecond).Exchange(context.Background(), "X")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 450*time.Millisecond)
}

func TestProperties_EncodeParse(t *testing.T) {
	p := NewProperties().
		Set("account", "acme").
		Set("device", "truck 1").
		Set("cmdStr", `say "hi"`).
		Set("arg0", "")

	line := p.Encode()
	assert.Equal(t, `account=acme device="truck 1" cmdStr="say \"hi\"" arg0=""`, line)

	back := ParseProperties(line)
	assert.Equal(t, []string{"account", "device", "cmdStr", "arg0"}, back.Keys())
	assert.Equal(t, "truck 1", back.Get("device"))
	assert.Equal(t, `say "hi"`, back.Get("cmdStr"))
	assert.True(t, back.Has("arg0"))
	assert.Equal(t, "", back.Get("arg0"))
}

func TestParseProperties_Loose(t *testing.T) {
	p := ParseProperties("  result=SS002   message=\"device offline\" flag extra=1 ")
	assert.Equal(t, "SS002", p.Get("result"))
	assert.Equal(t, "device offline", p.Get("message"))
	assert.True(t, p.Has("flag"))
	assert.Equal(t, "1", p.Get("extra"))
	assert.Equal(t, 0, ParseProperties("").Len())
}
