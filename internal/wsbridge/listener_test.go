package wsbridge

import (
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dial(t *testing.T, ln net.Listener, path string) *websocket.Conn {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+path, nil)
	require.NoError(t, err)
	return ws
}

func TestListener_StreamsBothWays(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client := dial(t, ln, DefaultPath)
	defer client.Close()

	srv, err := ln.Accept()
	require.NoError(t, err)
	defer srv.Close()

	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("RFB ")))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte("003.008\n")))

	buf := make([]byte, 12)
	_ = srv.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = io.ReadFull(srv, buf)
	require.NoError(t, err)
	assert.Equal(t, "RFB 003.008\n", string(buf))

	n, err := srv.Write([]byte("ok"))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	mt, msg, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, mt)
	assert.Equal(t, "ok", string(msg))
}

func TestConn_EOFOnClientClose(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	client := dial(t, ln, DefaultPath)
	srv, err := ln.Accept()
	require.NoError(t, err)

	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = srv.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, err = srv.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.EOF)
	assert.NoError(t, srv.Close())
	assert.Error(t, srv.Close())
	_ = client.Close()
}

func TestListener_CloseUnblocksAccept(t *testing.T) {
	ln, err := Listen(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)

	errCh := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		errCh <- err
	}()
	require.NoError(t, ln.Close())

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, net.ErrClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("Accept did not return after Close")
	}
	assert.ErrorIs(t, ln.Close(), net.ErrClosed)
}

func TestListenPath_OtherPathsRejected(t *testing.T) {
	ln, err := ListenPath("/vnc")(context.Background(), "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	_, resp, err := websocket.DefaultDialer.Dial("ws://"+ln.Addr().String()+DefaultPath, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, 404, resp.StatusCode)

	client := dial(t, ln, "/vnc")
	defer client.Close()
	srv, err := ln.Accept()
	require.NoError(t, err)
	_ = srv.Close()
}

func TestListen_BindFailure(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	_, err = Listen(context.Background(), occupied.Addr().String())
	assert.Error(t, err)
}

func TestListener_SocketFailureReachesAccept(t *testing.T) {
	tcp, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	ln := Serve(tcp, DefaultPath)
	defer ln.Close()

	accepted := make(chan error, 1)
	go func() {
		_, err := ln.Accept()
		accepted <- err
	}()
	require.NoError(t, tcp.Close())

	select {
	case err := <-accepted:
		require.Error(t, err)
		assert.ErrorIs(t, err, net.ErrClosed)
	case <-time.After(5 * time.Second):
		t.Fatal("Accept blocked after the socket failed")
	}
	_, err = ln.Accept()
	assert.Error(t, err, "failure is sticky")
}
