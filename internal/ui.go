package internal

import (
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/jroimartin/gocui"
	"github.com/sirupsen/logrus"
)

const uiRefreshInterval = 500 * time.Millisecond

// ChatUI is the server console: activity log, online users, counters and a
// command line.
type ChatUI struct {
	gui        *gocui.Gui
	server     *Server
	msgView    string
	inputView  string
	statusView string
	userView   string
	helpView   string
	showHelp   bool
	closed     atomic.Bool
}

func NewChatUI(server *Server) (*ChatUI, error) {
	g, err := gocui.NewGui(gocui.OutputNormal)
	if err != nil {
		return nil, err
	}

	ui := &ChatUI{
		gui:        g,
		server:     server,
		msgView:    "messages",
		inputView:  "input",
		statusView: "status",
		userView:   "users",
		helpView:   "help",
	}

	g.SetManagerFunc(ui.layout)
	return ui, nil
}

// RunWithUI shows the console until the operator quits. Log entries are
// mirrored into the activity view.
func RunWithUI(server *Server, logger *logrus.Logger) error {
	ui, err := NewChatUI(server)
	if err != nil {
		return err
	}
	defer ui.Close()

	detach := attachHook(logger, &viewHook{ui: ui})
	defer detach()
	return ui.Run()
}

// attachHook adds hook to logger and returns a func restoring the previous hooks.
func attachHook(logger *logrus.Logger, hook logrus.Hook) func() {
	hooks := make(logrus.LevelHooks)
	for level, list := range logger.Hooks {
		hooks[level] = append([]logrus.Hook(nil), list...)
	}
	hooks.Add(hook)
	previous := logger.ReplaceHooks(hooks)
	return func() { logger.ReplaceHooks(previous) }
}

func (ui *ChatUI) layout(g *gocui.Gui) error {
	maxX, maxY := g.Size()

	sidebarWidth := 24
	msgWidth := maxX - sidebarWidth - 1
	msgHeight := maxY - 7

	if v, err := g.SetView(ui.msgView, 0, 0, msgWidth, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Activity"
		v.Wrap = true
		v.Autoscroll = true
	}

	if v, err := g.SetView(ui.userView, msgWidth+1, 0, maxX-1, msgHeight); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Online Users"
		v.Wrap = true
	}

	if v, err := g.SetView(ui.statusView, 0, msgHeight+1, maxX-1, msgHeight+3); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Status"
		v.Wrap = true
	}

	if v, err := g.SetView(ui.inputView, 0, msgHeight+4, maxX-1, maxY-1); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Command"
		v.Editable = true
		v.Wrap = true

		if _, err := g.SetCurrentView(ui.inputView); err != nil {
			return err
		}
	}

	if !ui.showHelp {
		if err := g.DeleteView(ui.helpView); err != nil && err != gocui.ErrUnknownView {
			return err
		}
		return nil
	}
	if v, err := g.SetView(ui.helpView, maxX/6, maxY/6, maxX*5/6, maxY*5/6); err != nil {
		if err != gocui.ErrUnknownView {
			return err
		}
		v.Title = "Help"
		fmt.Fprintln(v, consoleHelp)
		fmt.Fprintln(v, `
Keybindings:
Ctrl-C          - Quit
Ctrl-H          - Toggle help
Enter           - Run command`)
	}
	return nil
}

func (ui *ChatUI) refresh() {
	ui.gui.Update(func(g *gocui.Gui) error {
		users, err := g.View(ui.userView)
		if err != nil {
			return nil
		}
		users.Clear()
		for _, sess := range ui.server.Registry().Sessions() {
			fmt.Fprintf(users, "%s (%s)\n", sess.Name(), sess.JoinTime().Format(TimeLayout))
		}

		status, err := g.View(ui.statusView)
		if err != nil {
			return nil
		}
		status.Clear()
		messages, clients := ui.server.Router().Stats()
		addr := "-"
		if a := ui.server.Addr(); a != nil {
			addr = a.String()
		}
		fmt.Fprintf(status, "Listening on %s | Messages: %d | Clients: %d | Ctrl-H: Help", addr, messages, clients)
		return nil
	})
}

func (ui *ChatUI) appendActivity(line string) {
	// no main loop is left to consume updates
	if ui.closed.Load() {
		return
	}
	ui.gui.Update(func(g *gocui.Gui) error {
		v, err := g.View(ui.msgView)
		if err != nil {
			return nil
		}
		fmt.Fprintln(v, line)
		return nil
	})
}

func (ui *ChatUI) keybindings() error {
	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlC, gocui.ModNone,
		func(g *gocui.Gui, _ *gocui.View) error {
			return gocui.ErrQuit
		}); err != nil {
		return err
	}

	if err := ui.gui.SetKeybinding("", gocui.KeyCtrlH, gocui.ModNone,
		func(_ *gocui.Gui, _ *gocui.View) error {
			ui.showHelp = !ui.showHelp
			return nil
		}); err != nil {
		return err
	}

	return ui.gui.SetKeybinding(ui.inputView, gocui.KeyEnter, gocui.ModNone, ui.handleInput)
}

func (ui *ChatUI) handleInput(_ *gocui.Gui, v *gocui.View) error {
	input := strings.TrimSpace(v.Buffer())
	v.Clear()
	v.SetCursor(0, 0)
	if input == "" {
		return nil
	}

	out, err := ui.server.ExecConsole(input)
	switch {
	case errors.Is(err, ErrQuit):
		return gocui.ErrQuit
	case err != nil:
		ui.appendActivity(fmt.Sprintf("[%s] [ERROR] %s", consoleTime(), err))
	case out != "":
		ui.appendActivity(out)
	}
	ui.refresh()
	return nil
}

func (ui *ChatUI) Run() error {
	if err := ui.keybindings(); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(uiRefreshInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				ui.refresh()
			case <-done:
				return
			}
		}
	}()

	if err := ui.gui.MainLoop(); err != nil && err != gocui.ErrQuit {
		return err
	}
	return nil
}

func (ui *ChatUI) Close() {
	ui.closed.Store(true)
	ui.gui.Close()
}

// viewHook copies log entries into the activity view.
type viewHook struct {
	ui *ChatUI
}

func (h *viewHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *viewHook) Fire(entry *logrus.Entry) error {
	line := fmt.Sprintf("[%s] %s", entry.Time.Format(TimeLayout), entry.Message)
	if entry.Level <= logrus.WarnLevel {
		line = fmt.Sprintf("[%s] [%s] %s", entry.Time.Format(TimeLayout), strings.ToUpper(entry.Level.String()), entry.Message)
	}
	h.ui.appendActivity(line)
	return nil
}
