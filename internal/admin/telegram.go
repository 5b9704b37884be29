package admin

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v4"

	rtsup "telenotify/internal/runtime/supervisor"
	logx "telenotify/pkg/logx"
)

// TelegramConfig configures the bot command listener.
type TelegramConfig struct {
	Token       string
	APIBase     string
	PollTimeout time.Duration
	Owners      []int64

	// offline skips the getMe call; tests only.
	offline bool
}

// Telegram long-polls the bot API and dispatches registered commands.
// Owners hold every permission; everyone else holds none.
type Telegram struct {
	cfg TelegramConfig
	reg *Registry
	log logx.Logger
	bot *tele.Bot

	mu     sync.Mutex
	owners map[int64]struct{}
	sup    *rtsup.Supervisor
}

func NewTelegram(cfg TelegramConfig, reg *Registry, log logx.Logger) (*Telegram, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("admin.telegram: token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	t := &Telegram{cfg: cfg, reg: reg, log: log}
	b, err := tele.NewBot(tele.Settings{
		URL:         strings.TrimRight(cfg.APIBase, "/"),
		Token:       cfg.Token,
		Poller:      &tele.LongPoller{Timeout: timeout},
		Synchronous: cfg.offline,
		Offline:     cfg.offline,
		OnError: func(err error, _ tele.Context) {
			log.Warn("telegram handler error", logx.Err(err))
		},
	})
	if err != nil {
		return nil, err
	}
	t.bot = b
	t.SetOwners(cfg.Owners)
	for _, cmd := range reg.Commands() {
		name := cmd.Name
		b.Handle("/"+name, func(c tele.Context) error {
			t.handle(c, name)
			return nil
		})
	}
	return t, nil
}

// SetOwners replaces the owner list; safe to call on reload.
func (t *Telegram) SetOwners(ids []int64) {
	m := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	t.mu.Lock()
	t.owners = m
	t.mu.Unlock()
}

func (t *Telegram) isOwner(id int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.owners[id]
	return ok
}

func (t *Telegram) handle(c tele.Context, name string) {
	sender := c.Sender()
	if sender == nil {
		return
	}
	inv := &telegramInvoker{t: t, c: c, userID: sender.ID}
	_ = t.reg.Dispatch(context.Background(), name, inv)
}

// Start runs the poller under a restart loop until ctx is done or Stop is called.
func (t *Telegram) Start(ctx context.Context) {
	t.mu.Lock()
	if t.sup != nil {
		t.mu.Unlock()
		return
	}
	sup := rtsup.New(ctx,
		rtsup.WithLogger(t.log.With(logx.String("comp", "admin.telegram"))),
		rtsup.WithCancelOnError(false),
	)
	t.sup = sup
	t.mu.Unlock()

	sup.Go0("telebot.stop_on_cancel", func(c context.Context) {
		<-c.Done()
		t.bot.Stop()
	})
	sup.GoRestart("telebot.poll", func(c context.Context) error {
		t.log.Info("command polling started")
		t.bot.Start()
		if c.Err() != nil {
			return nil
		}
		return errors.New("telebot poller exited")
	}, rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second), rtsup.WithPublishFirstError(true))
}

// Stop cancels polling and waits for the poller, bounded by ctx.
func (t *Telegram) Stop(ctx context.Context) error {
	t.mu.Lock()
	sup := t.sup
	t.sup = nil
	t.mu.Unlock()
	if sup == nil {
		return nil
	}
	sup.Cancel()
	return sup.Wait(ctx)
}

type telegramInvoker struct {
	t      *Telegram
	c      tele.Context
	userID int64
}

func (i *telegramInvoker) HasPermission(string) bool { return i.t.isOwner(i.userID) }

func (i *telegramInvoker) Reply(text string, _ bool) {
	if err := i.c.Send(text); err != nil {
		i.t.log.Warn("telegram reply failed", logx.Err(err))
	}
}

func (i *telegramInvoker) Source() string { return "telegram" }

func (i *telegramInvoker) Actor() string { return strconv.FormatInt(i.userID, 10) }
