package admin

import logx "telenotify/pkg/logx"

// ConsoleInvoker is the process operator (SIGHUP). It holds every permission
// and replies through the log.
type ConsoleInvoker struct {
	Log    logx.Logger
	Signal string
}

func (ConsoleInvoker) HasPermission(string) bool { return true }

func (c ConsoleInvoker) Reply(text string, ok bool) {
	if ok {
		c.Log.Info(text)
		return
	}
	c.Log.Error(text)
}

func (ConsoleInvoker) Source() string { return "signal" }

func (c ConsoleInvoker) Actor() string { return c.Signal }
