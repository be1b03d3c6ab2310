package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// --- DefaultConfig ---

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.IdleTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
}

// --- Group lifecycle ---

func okHandler(body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body))
	})
}

func randomPort() Config {
	cfg := DefaultConfig()
	cfg.Addr = ":0"
	return cfg
}

func TestGroup_StartServesAllListeners(t *testing.T) {
	g := NewGroup(zap.NewNop())
	proxy := g.Add("proxy", okHandler("proxy"), randomPort())
	metrics := g.Add("metrics", okHandler("metrics"), randomPort())

	require.NoError(t, g.Start())
	t.Cleanup(func() { g.Shutdown(context.Background()) })

	for _, tc := range []struct {
		l    *Listener
		body string
	}{
		{proxy, "proxy"},
		{metrics, "metrics"},
	} {
		resp, err := http.Get("http://" + tc.l.Addr() + "/")
		require.NoError(t, err)
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, tc.body, string(body))
	}
}

func TestGroup_StartFailureRollsBack(t *testing.T) {
	g := NewGroup(zap.NewNop())
	first := g.Add("proxy", okHandler("ok"), randomPort())

	require.NoError(t, g.Start())
	occupied := DefaultConfig()
	occupied.Addr = first.Addr() // 端口已被占用

	g2 := NewGroup(zap.NewNop())
	started := g2.Add("proxy", okHandler("ok"), randomPort())
	g2.Add("metrics", okHandler("ok"), occupied)

	err := g2.Start()
	require.Error(t, err)
	assert.False(t, started.Running(), "already-started listeners must be rolled back")

	require.NoError(t, g.Shutdown(context.Background()))
}

func TestGroup_ShutdownIdempotent(t *testing.T) {
	g := NewGroup(zap.NewNop())
	l := g.Add("proxy", okHandler("ok"), randomPort())

	require.NoError(t, g.Start())
	require.NoError(t, g.Shutdown(context.Background()))
	assert.False(t, l.Running())

	// 重复关闭为空操作
	require.NoError(t, g.Shutdown(context.Background()))
}

func TestGroup_Errors(t *testing.T) {
	g := NewGroup(zap.NewNop())
	ch := g.Errors()
	require.NotNil(t, ch)

	select {
	case <-ch:
		t.Fatal("should not have received an error")
	default:
	}
}

// --- Listener ---

func TestListener_DoubleStart(t *testing.T) {
	g := NewGroup(zap.NewNop())
	l := g.Add("proxy", okHandler("ok"), randomPort())

	require.NoError(t, l.start())
	t.Cleanup(func() { l.Shutdown(context.Background()) })

	err := l.start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestListener_StartAfterShutdown(t *testing.T) {
	g := NewGroup(zap.NewNop())
	l := g.Add("proxy", okHandler("ok"), randomPort())

	require.NoError(t, l.start())
	require.NoError(t, l.Shutdown(context.Background()))

	err := l.start()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "closed")
}

func TestListener_AddrBeforeStart(t *testing.T) {
	g := NewGroup(zap.NewNop())
	cfg := DefaultConfig()
	cfg.Addr = ":9999"
	l := g.Add("proxy", okHandler("ok"), cfg)

	assert.Equal(t, ":9999", l.Addr())
	assert.True(t, l.Running())
}
