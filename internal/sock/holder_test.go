package sock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestHolderDo(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer unix.Close(b)

	h := NewHolder(a)
	defer h.Close()

	var seen int
	err = h.Do(func(fd int) error {
		seen = fd
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, a, seen)
}

func TestHolderCloseIdempotent(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer unix.Close(b)

	h := NewHolder(a)
	require.NoError(t, h.Close())
	require.NoError(t, h.Close())
	require.True(t, h.Closed())

	err = h.Do(func(int) error { return nil })
	require.ErrorIs(t, err, ErrClosed)
}

func TestHolderCloseUnblocksRecv(t *testing.T) {
	a, b, err := Pair()
	require.NoError(t, err)
	defer unix.Close(b)

	h := NewHolder(a)
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 1024)
		done <- h.Do(func(fd int) error {
			_, _, err := RecvFrame(fd, buf)
			return err
		})
	}()

	// Let the goroutine park in recvmsg, then close underneath it.
	time.Sleep(50 * time.Millisecond)
	require.NoError(t, h.Close())

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("recv did not unblock after close")
	}
}
