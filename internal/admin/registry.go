// Package admin is the operator command surface. Commands are registered
// with a required permission and dispatched from Telegram or the process
// console (SIGHUP).
package admin

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"telenotify/internal/storage"
	logx "telenotify/pkg/logx"
)

const (
	CmdReload  = "telereload"
	PermReload = "telenotify.reload"

	textNoPermission = "⛔ You do not have permission to use this command."
	textReloaded     = "✓ configuration reloaded"
)

var (
	ErrNoPermission   = errors.New("permission denied")
	ErrUnknownCommand = errors.New("unknown command")
)

// Invoker is whoever issued a command.
type Invoker interface {
	HasPermission(perm string) bool
	// Reply sends text back to the invoker; ok=false marks a failure.
	Reply(text string, ok bool)
	// Source and Actor identify the invoker in the audit log.
	Source() string
	Actor() string
}

type Command struct {
	Name       string
	Permission string
	Help       string
	// Run returns the success reply.
	Run func(ctx context.Context) (string, error)
}

type Registry struct {
	log   logx.Logger
	store storage.Store

	mu   sync.RWMutex
	cmds map[string]Command
}

// NewRegistry creates an empty registry. store may be nil (no audit).
func NewRegistry(store storage.Store, log logx.Logger) *Registry {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Registry{log: log, store: store, cmds: map[string]Command{}}
}

func (r *Registry) Register(c Command) error {
	name := normalize(c.Name)
	if name == "" || c.Run == nil {
		return fmt.Errorf("admin: command needs a name and a Run func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.cmds[name]; dup {
		return fmt.Errorf("admin: command %q already registered", name)
	}
	c.Name = name
	r.cmds[name] = c
	return nil
}

func (r *Registry) Lookup(name string) (Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.cmds[normalize(name)]
	return c, ok
}

// Commands returns the registered commands sorted by name.
func (r *Registry) Commands() []Command {
	r.mu.RLock()
	out := make([]Command, 0, len(r.cmds))
	for _, c := range r.cmds {
		out = append(out, c)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Dispatch runs name on behalf of inv. The invoker always gets a reply and
// every known command invocation is audited.
func (r *Registry) Dispatch(ctx context.Context, name string, inv Invoker) error {
	cmd, ok := r.Lookup(name)
	if !ok {
		inv.Reply(fmt.Sprintf("unknown command: %s", normalize(name)), false)
		return ErrUnknownCommand
	}

	start := time.Now()
	log := r.log.With(logx.String("cmd", cmd.Name), logx.String("source", inv.Source()), logx.String("actor", inv.Actor()))

	var err error
	if cmd.Permission != "" && !inv.HasPermission(cmd.Permission) {
		err = ErrNoPermission
		inv.Reply(textNoPermission, false)
		log.Warn("command denied", logx.String("permission", cmd.Permission))
	} else {
		var reply string
		reply, err = cmd.Run(ctx)
		if err != nil {
			inv.Reply(err.Error(), false)
			log.Warn("command failed", logx.Err(err), logx.Duration("took", time.Since(start)))
		} else {
			inv.Reply(reply, true)
			log.Info("command ok", logx.Duration("took", time.Since(start)))
		}
	}

	r.audit(ctx, cmd.Name, inv, err, time.Since(start))
	return err
}

func (r *Registry) audit(ctx context.Context, action string, inv Invoker, err error, took time.Duration) {
	if r.store == nil {
		return
	}
	e := storage.AuditEntry{
		ID:     uuid.NewString(),
		At:     time.Now(),
		Source: inv.Source(),
		Actor:  inv.Actor(),
		Action: action,
		OK:     err == nil,
		TookMS: took.Milliseconds(),
	}
	if err != nil {
		e.Error = err.Error()
	}
	if aerr := r.store.AppendAudit(context.WithoutCancel(ctx), e); aerr != nil {
		r.log.Warn("audit write failed", logx.Err(aerr))
	}
}

// ReloadCommand wraps the config reload as the telereload command.
func ReloadCommand(reload func(ctx context.Context) error) Command {
	return Command{
		Name:       CmdReload,
		Permission: PermReload,
		Help:       "reload the configuration file",
		Run: func(ctx context.Context) (string, error) {
			if err := reload(ctx); err != nil {
				return "", fmt.Errorf("reload failed: %w", err)
			}
			return textReloaded, nil
		},
	}
}

// normalize strips a leading slash and a "@botname" suffix.
func normalize(name string) string {
	name = strings.TrimPrefix(strings.TrimSpace(name), "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}
