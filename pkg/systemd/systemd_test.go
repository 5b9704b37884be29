package systemd

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func listenNotify(t *testing.T) *net.UnixConn {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notify.sock")
	conn, err := net.ListenUnixgram("unixgram", &net.UnixAddr{Name: path, Net: "unixgram"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	t.Setenv("NOTIFY_SOCKET", path)
	return conn
}

func read(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	buf := make([]byte, 512)
	n, err := conn.Read(buf)
	require.NoError(t, err)
	return string(buf[:n])
}

func TestNotify_NoSocketIsNoop(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	sent, err := Ready("ok")
	require.NoError(t, err)
	assert.False(t, sent)
}

func TestNotify_States(t *testing.T) {
	conn := listenNotify(t)

	sent, err := Ready("queue 0/256")
	require.NoError(t, err)
	require.True(t, sent)
	assert.Equal(t, "READY=1\nSTATUS=queue 0/256", read(t, conn))

	_, err = Reloading()
	require.NoError(t, err)
	assert.Equal(t, "RELOADING=1\nSTATUS=reloading configuration", read(t, conn))

	_, err = Stopping()
	require.NoError(t, err)
	assert.Equal(t, "STOPPING=1\nSTATUS=shutting down", read(t, conn))

	_, err = Status("idle")
	require.NoError(t, err)
	assert.Equal(t, "STATUS=idle", read(t, conn))
}

func TestWatchdog_DisabledReturns(t *testing.T) {
	t.Setenv("WATCHDOG_USEC", "")
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, Watchdog(ctx))
	assert.NoError(t, ctx.Err())
}
