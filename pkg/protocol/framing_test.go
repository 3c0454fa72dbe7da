package protocol

import (
	"net"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadLineAssemblesPartialWrites(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte("LOGIN|al"))
		client.Write([]byte("ice|pw1"))
		client.Write([]byte("\n"))
	}()

	f := NewFramer(server)
	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "LOGIN|alice|pw1", line)
}

func TestReadLineStripsCarriageReturn(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go client.Write([]byte("GET_STRING\r\n"))

	f := NewFramer(server)
	line, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "GET_STRING", line)
}

func TestReadLineMultipleMessages(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go client.Write([]byte("LOGOUT\nQUIT\n"))

	f := NewFramer(server)
	first, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "LOGOUT", first)

	second, err := f.ReadLine()
	require.NoError(t, err)
	assert.Equal(t, "QUIT", second)
}

func TestReadLineRejectsOversizedMessage(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	go func() {
		client.Write([]byte(strings.Repeat("a", 64)))
		// The reader bails before the newline ever arrives; the
		// deferred Close unblocks this writer.
		client.Write([]byte("\n"))
	}()

	f := NewFramer(server)
	f.MaxLineSize = 16
	_, err := f.ReadLine()
	assert.ErrorIs(t, err, ErrLineTooLong)
}

func TestReadLineTimesOutWithoutNewline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	f := NewFramer(server)
	f.ReadTimeout = 50 * time.Millisecond

	start := time.Now()
	_, err := f.ReadLine()
	require.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestWriteLineAppendsNewline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	f := NewFramer(server)
	go func() {
		f.WriteLine("SUCCESS|ok")
	}()

	buf := make([]byte, 64)
	client.SetReadDeadline(time.Now().Add(time.Second))
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "SUCCESS|ok\n", string(buf[:n]))
}

func TestWriteLineFailsOnClosedConnection(t *testing.T) {
	client, server := net.Pipe()
	client.Close()
	server.Close()

	f := NewFramer(server)
	err := f.WriteLine("SUCCESS|ok")
	assert.Error(t, err)
}
