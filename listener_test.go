package fpc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestListenerAcceptLoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	defer l.Stop()
	require.NoError(t, l.Start())

	conns, err := l.Connections()
	require.NoError(t, err)

	client, err := Dial(path, nil)
	require.NoError(t, err)
	defer client.Stop()
	require.NoError(t, client.Start())

	var server *Endpoint
	select {
	case server = <-conns:
	case <-time.After(5 * time.Second):
		t.Fatal("accepted connection never surfaced")
	}
	require.Equal(t, StateIdle, server.State(), "accepted endpoints arrive unstarted")
	require.NoError(t, server.Start())
	defer server.Stop()

	// Prove the pair is wired up end to end.
	incoming, err := server.Incoming()
	require.NoError(t, err)
	go func() {
		req := <-incoming
		_ = server.Reply(req.Token(), MsgPong, req.Payload)
	}()

	reply, err := client.Request(context.Background(), NewRequest(MsgPing, []byte("via listener")), 5*time.Second)
	require.NoError(t, err)
	require.Equal(t, []byte("via listener"), reply.Payload)
}

func TestListenerSynchronousAccept(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	defer l.Stop()

	go func() {
		client, err := Dial(path, nil)
		if err == nil {
			client.Stop()
		}
	}()

	server, err := l.Accept(context.Background())
	require.NoError(t, err)
	server.Stop()
}

func TestListenerAcceptContextCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	defer l.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = l.Accept(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestListenerAcceptAfterStop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	l.Stop()

	_, err = l.Accept(context.Background())
	require.True(t, IsCode(err, CodeListenerClosed), "err = %v", err)
}

func TestListenerStopFinishesStream(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	require.NoError(t, l.Start())

	conns, err := l.Connections()
	require.NoError(t, err)

	l.Stop()
	l.Stop()

	select {
	case _, open := <-conns:
		require.False(t, open, "connection stream must finish on stop")
	case <-time.After(5 * time.Second):
		t.Fatal("connection stream never finished")
	}

	require.True(t, IsCode(l.Start(), CodeListenerClosed))
	_, err = l.Connections()
	require.True(t, IsCode(err, CodeListenerClosed), "err = %v", err)
}

func TestListenerConnectionsSingleClaim(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	defer l.Stop()
	require.NoError(t, l.Start())

	_, err = l.Connections()
	require.NoError(t, err)
	_, err = l.Connections()
	require.True(t, IsCode(err, CodeStreamClaimed), "err = %v", err)
}

func TestListenerConnectionsRequiresStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fpc.sock")

	l, err := Listen(path, nil)
	require.NoError(t, err)
	defer l.Stop()

	_, err = l.Connections()
	require.True(t, IsCode(err, CodeNotStarted), "err = %v", err)
}

func TestListenAtDirfd(t *testing.T) {
	dir := t.TempDir()
	dirfd, err := unix.Open(dir, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	require.NoError(t, err)
	defer unix.Close(dirfd)

	l, err := ListenAt(dirfd, "rel.sock", nil)
	require.NoError(t, err)
	defer l.Stop()

	client, err := DialAt(dirfd, "rel.sock", nil)
	require.NoError(t, err)
	defer client.Stop()

	server, err := l.Accept(context.Background())
	require.NoError(t, err)
	server.Stop()
}
