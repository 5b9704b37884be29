package admin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"telenotify/internal/storage"
	logx "telenotify/pkg/logx"
)

type reply struct {
	text string
	ok   bool
}

type fakeInvoker struct {
	perms   map[string]bool
	replies []reply
}

func (f *fakeInvoker) HasPermission(p string) bool { return f.perms[p] }
func (f *fakeInvoker) Reply(text string, ok bool)  { f.replies = append(f.replies, reply{text, ok}) }
func (f *fakeInvoker) Source() string              { return "test" }
func (f *fakeInvoker) Actor() string               { return "tester" }

func TestDispatch_Reload(t *testing.T) {
	t.Parallel()
	calls := 0
	var fail error
	reg := NewRegistry(nil, logx.Nop())
	require.NoError(t, reg.Register(ReloadCommand(func(context.Context) error {
		calls++
		return fail
	})))

	denied := &fakeInvoker{}
	assert.ErrorIs(t, reg.Dispatch(context.Background(), "telereload", denied), ErrNoPermission)
	assert.Equal(t, []reply{{textNoPermission, false}}, denied.replies)
	assert.Equal(t, 0, calls)

	op := &fakeInvoker{perms: map[string]bool{PermReload: true}}
	require.NoError(t, reg.Dispatch(context.Background(), "/telereload@my_bot", op))
	assert.Equal(t, []reply{{"✓ configuration reloaded", true}}, op.replies)

	fail = errors.New("config line 3: bad indent")
	op.replies = nil
	assert.Error(t, reg.Dispatch(context.Background(), "TELERELOAD", op))
	require.Len(t, op.replies, 1)
	assert.False(t, op.replies[0].ok)
	assert.Equal(t, "reload failed: config line 3: bad indent", op.replies[0].text)
	assert.Equal(t, 2, calls)
}

func TestDispatch_UnknownAndDuplicate(t *testing.T) {
	t.Parallel()
	reg := NewRegistry(nil, logx.Nop())
	cmd := ReloadCommand(func(context.Context) error { return nil })
	require.NoError(t, reg.Register(cmd))
	assert.Error(t, reg.Register(cmd))
	assert.Error(t, reg.Register(Command{Name: "x"}))

	inv := &fakeInvoker{}
	assert.ErrorIs(t, reg.Dispatch(context.Background(), "nope", inv), ErrUnknownCommand)
	assert.Equal(t, "unknown command: nope", inv.replies[0].text)

	cmds := reg.Commands()
	require.Len(t, cmds, 1)
	assert.Equal(t, CmdReload, cmds[0].Name)
}

func TestDispatch_Audited(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	st, err := storage.Open(storage.Config{Driver: "file", Path: filepath.Join(dir, "state")}, logx.Nop())
	require.NoError(t, err)

	reg := NewRegistry(st, logx.Nop())
	require.NoError(t, reg.Register(ReloadCommand(func(context.Context) error { return nil })))

	require.NoError(t, reg.Dispatch(context.Background(), CmdReload, ConsoleInvoker{Log: logx.Nop(), Signal: "SIGHUP"}))
	assert.ErrorIs(t, reg.Dispatch(context.Background(), CmdReload, &fakeInvoker{}), ErrNoPermission)
	require.NoError(t, st.Close())

	b, err := os.ReadFile(filepath.Join(dir, "state.audit.jsonl"))
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 2)

	var first, second storage.AuditEntry
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &first))
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &second))
	assert.Equal(t, "signal", first.Source)
	assert.Equal(t, "SIGHUP", first.Actor)
	assert.Equal(t, CmdReload, first.Action)
	assert.True(t, first.OK)
	assert.NotEmpty(t, first.ID)
	assert.False(t, second.OK)
	assert.Equal(t, ErrNoPermission.Error(), second.Error)
	assert.NotEqual(t, first.ID, second.ID)
}

type fakeBotAPI struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if !strings.HasSuffix(r.URL.Path, "/sendMessage") {
		_, _ = io.WriteString(w, `{"ok":true,"result":true}`)
		return
	}
	var body struct {
		Text string `json:"text"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)
	f.mu.Lock()
	f.sent = append(f.sent, body.Text)
	f.mu.Unlock()
	_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"date":0,"chat":{"id":77,"type":"private"}}}`)
}

func (f *fakeBotAPI) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent...)
}

func TestTelegram_OwnersHoldPermissions(t *testing.T) {
	t.Parallel()
	api := &fakeBotAPI{}
	ts := httptest.NewServer(api)
	defer ts.Close()

	reloads := 0
	reg := NewRegistry(nil, logx.Nop())
	require.NoError(t, reg.Register(ReloadCommand(func(context.Context) error {
		reloads++
		return nil
	})))

	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", APIBase: ts.URL, Owners: []int64{42}, offline: true}, reg, logx.Nop())
	require.NoError(t, err)

	update := func(from int64) tele.Update {
		return tele.Update{Message: &tele.Message{
			ID:     1,
			Text:   "/telereload",
			Sender: &tele.User{ID: from},
			Chat:   &tele.Chat{ID: 77, Type: tele.ChatPrivate},
		}}
	}

	tg.bot.ProcessUpdate(update(7))
	tg.bot.ProcessUpdate(update(42))

	assert.Equal(t, 1, reloads)
	assert.Equal(t, []string{textNoPermission, textReloaded}, api.texts())

	tg.SetOwners(nil)
	tg.bot.ProcessUpdate(update(42))
	assert.Equal(t, 1, reloads)
}

func TestNewTelegram_RequiresToken(t *testing.T) {
	t.Parallel()
	_, err := NewTelegram(TelegramConfig{Token: "  "}, NewRegistry(nil, logx.Nop()), logx.Nop())
	assert.Error(t, err)
}
