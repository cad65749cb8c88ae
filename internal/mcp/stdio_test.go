// ABOUTME: Tests for the line-delimited stdio transport.

package mcp

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStdio_OneResponsePerRequestLine(t *testing.T) {
	d, core := newTestDispatcher(nil, &fakeTool{name: "T"})
	srv := NewStdioServer(d, nil)

	in := strings.Join([]string{
		`{"jsonrpc":"2.0","id":1,"method":"initialize","params":{}}`,
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		``,
		`   `,
		`{"jsonrpc":"2.0","id":2,"method":"ping"}`,
		`{broken`,
		`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"T","arguments":{"userId":"x"}}}`,
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, srv.Serve(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[0], `"id":1,"result":{"protocolVersion":"2024-11-05"`)
	assert.Equal(t, `{"jsonrpc":"2.0","id":2,"result":{}}`, lines[1])
	assert.Equal(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, lines[2])
	assert.Equal(t, `{"jsonrpc":"2.0","id":3,"result":{"content":[{"type":"text","text":"articles for x"}]}}`, lines[3])
	assert.True(t, core.Ready())
}

func TestStdio_LastLineWithoutNewline(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	var out bytes.Buffer
	require.NoError(t, NewStdioServer(d, nil).Serve(context.Background(),
		strings.NewReader(`{"jsonrpc":"2.0","id":9,"method":"ping"}`), &out))
	assert.Equal(t, "{\"jsonrpc\":\"2.0\",\"id\":9,\"result\":{}}\n", out.String())
}

func TestStdio_StopsOnCancel(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	pr, pw := io.Pipe()
	defer pw.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewStdioServer(d, nil).Serve(ctx, pr, io.Discard) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, io.ErrClosedPipe }

func TestStdio_WriteFailureEndsServe(t *testing.T) {
	d, _ := newTestDispatcher(nil)
	err := NewStdioServer(d, nil).Serve(context.Background(),
		strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"ping"}`+"\n"), failingWriter{})
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}

func TestStdio_OversizedLineKeepsServing(t *testing.T) {
	d, _ := newTestDispatcher(nil)

	big := `{"jsonrpc":"2.0","id":1,"method":"ping","params":{"pad":"` + strings.Repeat("x", maxLineSize) + `"}}`
	in := big + "\n" + `{"jsonrpc":"2.0","id":2,"method":"ping"}` + "\n"

	var out bytes.Buffer
	require.NoError(t, NewStdioServer(d, nil).Serve(context.Background(), strings.NewReader(in), &out))

	lines := strings.Split(strings.TrimRight(out.String(), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, `{"jsonrpc":"2.0","id":null,"error":{"code":-32700,"message":"Parse error"}}`, lines[0])
	assert.Equal(t, `{"jsonrpc":"2.0","id":2,"result":{}}`, lines[1])
}

func TestReadLine_CRLFAndLimit(t *testing.T) {
	r := bufio.NewReaderSize(strings.NewReader("abc\r\n"+strings.Repeat("y", 40)+"\nok"), 16)

	line, tooLong, err := readLine(r, 8)
	require.NoError(t, err)
	assert.False(t, tooLong)
	assert.Equal(t, "abc", string(line))

	line, tooLong, err = readLine(r, 8)
	require.NoError(t, err)
	assert.True(t, tooLong)
	assert.Empty(t, line)

	line, tooLong, err = readLine(r, 8)
	assert.ErrorIs(t, err, io.EOF)
	assert.False(t, tooLong)
	assert.Equal(t, "ok", string(line))
}
