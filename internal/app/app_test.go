package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telenotify/internal/config"
)

type fakeTelegram struct {
	mu    sync.Mutex
	texts []string
	chats []string
}

func (f *fakeTelegram) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()
	f.mu.Lock()
	f.texts = append(f.texts, r.PostForm.Get("text"))
	f.chats = append(f.chats, r.PostForm.Get("chat_id"))
	f.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"ok":true,"result":{}}`))
}

func (f *fakeTelegram) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.texts...)
}

const testConfig = `
telegram:
  token: "123:abc"
  chat_id: -1001
  api_base: "{{api}}"
messages:
  join: "{player} {{verb}}"
delivery:
  tick: 10ms
  backoff_base: 10ms
logging:
  level: error
ingest:
  enabled: true
  listen: "127.0.0.1:0"
storage:
  driver: file
  path: "{{dir}}/state"
`

func writeConfig(t *testing.T, dir, api, token, verb string) string {
	t.Helper()
	body := strings.NewReplacer("{{api}}", api, "{{dir}}", dir, "{{verb}}", verb).Replace(testConfig)
	if token == "" {
		body = strings.Replace(body, `token: "123:abc"`, `token: ""`, 1)
	}
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func postEvent(t *testing.T, addr, body string) int {
	t.Helper()
	resp, err := http.Post("http://"+addr+"/v1/events", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	return resp.StatusCode
}

func TestApp_EndToEnd(t *testing.T) {
	tg := &fakeTelegram{}
	api := httptest.NewServer(tg)
	defer api.Close()

	dir := t.TempDir()
	path := writeConfig(t, dir, api.URL, "123:abc", "joined")

	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	stopped := false
	defer func() {
		if !stopped {
			_ = a.Stop(context.Background(), StopAppStop)
		}
	}()

	addr := a.Ingest().Addr()
	require.NotEmpty(t, addr)

	assert.Equal(t, http.StatusAccepted, postEvent(t, addr, `{"kind":"join","player":"Mall*ory"}`))
	require.Eventually(t, func() bool { return len(tg.sent()) == 1 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, `Mall\*ory joined`, tg.sent()[0])
	tg.mu.Lock()
	assert.Equal(t, "-1001", tg.chats[0])
	tg.mu.Unlock()

	require.Eventually(t, func() bool {
		recs, err := a.Store().RecentDeliveries(context.Background(), 10)
		return err == nil && len(recs) == 1 && recs[0].Outcome == "sent"
	}, 3*time.Second, 10*time.Millisecond)

	writeConfig(t, dir, api.URL, "123:abc", "arrived")
	require.NoError(t, a.ReloadFromSignal(context.Background(), "SIGHUP"))
	assert.Equal(t, "{player} arrived", a.Config().Current().Messages.Join)

	assert.Equal(t, http.StatusAccepted, postEvent(t, addr, `{"kind":"join","player":"bob"}`))
	require.Eventually(t, func() bool { return len(tg.sent()) == 2 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, "bob arrived", tg.sent()[1])

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))
	stopped = true

	b, err := os.ReadFile(filepath.Join(dir, "state.audit.jsonl"))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"source":"signal"`)
	assert.Contains(t, string(b), `"ok":true`)
}

func TestApp_InvalidCredentialsSkipEvents(t *testing.T) {
	tg := &fakeTelegram{}
	api := httptest.NewServer(tg)
	defer api.Close()

	dir := t.TempDir()
	a, err := New(writeConfig(t, dir, api.URL, "", "joined"))
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))

	assert.Equal(t, http.StatusNoContent, postEvent(t, a.Ingest().Addr(), `{"kind":"join","player":"p"}`))
	assert.False(t, a.Notifier().Submit(""))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	require.NoError(t, a.Stop(ctx, StopAppStop))
	assert.Empty(t, tg.sent())
}

func TestApp_BadReloadKeepsSnapshot(t *testing.T) {
	tg := &fakeTelegram{}
	api := httptest.NewServer(tg)
	defer api.Close()

	dir := t.TempDir()
	path := writeConfig(t, dir, api.URL, "123:abc", "joined")
	a, err := New(path)
	require.NoError(t, err)
	require.NoError(t, a.Start(context.Background()))
	defer func() { _ = a.Stop(context.Background(), StopAppStop) }()

	before := a.Config().Current()
	require.NoError(t, os.WriteFile(path, []byte("telegram: [not, a, map]\n"), 0o600))
	assert.Error(t, a.ReloadFromSignal(context.Background(), "SIGHUP"))
	assert.Same(t, before, a.Config().Current())
}

func TestMapStorageConfig(t *testing.T) {
	t.Parallel()
	cfg := testCfg()
	_, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.False(t, enabled)

	cfg.Storage.Driver, cfg.Storage.Path = "SQLite", "/tmp/x.db"
	sc, enabled, err := mapStorageConfig(cfg)
	require.NoError(t, err)
	assert.True(t, enabled)
	assert.Equal(t, "sqlite", sc.Driver)
	assert.Equal(t, time.Second, sc.BusyTimeout)

	cfg.Storage.Path = ""
	_, _, err = mapStorageConfig(cfg)
	assert.Error(t, err)
}

func testCfg() *config.Config { return &config.Config{} }
