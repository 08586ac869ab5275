package bot

import (
	"context"
	"runtime"
	"runtime/debug"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	rtsup "signalbot/internal/runtime/supervisor"
	kit "signalbot/internal/transport"
	logx "signalbot/pkg/logx"
)

type Access int

const (
	AccessEveryone Access = iota
	AccessAdminOnly
)

type Command struct {
	Name        string
	Aliases     []string
	Description string
	Usage       string
	Access      Access
	Timeout     time.Duration // optional per-command override
	Handle      HandlerFunc
}

type Request struct {
	Message *kit.Message
	Chat    kit.ChatTarget
	FromID  int64
	Command string
	Args    []string
	ReqID   string
	Admin   bool

	Adapter kit.Adapter
	Logger  logx.Logger

	replied atomic.Bool
}

// Reply sends text back to the chat the command came from.
func (r *Request) Reply(ctx context.Context, text string) {
	r.replied.Store(true)
	if _, err := r.Adapter.SendText(ctx, r.Chat, text, &kit.SendOptions{DisablePreview: true}); err != nil {
		r.Logger.Warn("reply failed", logx.Err(err))
	}
}

// Arg returns the i-th argument or "".
func (r *Request) Arg(i int) string {
	if i < len(r.Args) {
		return r.Args[i]
	}
	return ""
}

const (
	textUnknown  = "Unknown command. Try /help."
	textBusy     = "Busy, please try again."
	textNotAdmin = "Only administrators can change the signal status."
)

// CommandManager routes slash commands to handlers on a bounded worker pool.
type CommandManager struct {
	mu     sync.RWMutex
	cmds   map[string]*Command // name and aliases
	list   []Command
	admins map[int64]bool

	log     logx.Logger
	adapter kit.Adapter

	runMu   sync.Mutex
	running bool
	sup     *rtsup.Supervisor

	jobs chan func()
}

func NewCommandManager(log logx.Logger, adapter kit.Adapter, admins []int64) *CommandManager {
	if log.IsZero() {
		log = logx.Nop()
	}
	m := &CommandManager{
		cmds:    map[string]*Command{},
		log:     log.With(logx.String("comp", "bot.commands")),
		adapter: adapter,
		jobs:    make(chan func(), 256),
	}
	m.SetAdmins(admins)
	return m
}

// SetAdmins replaces the admin list. Safe to call during hot-reload.
func (m *CommandManager) SetAdmins(ids []int64) {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	m.mu.Lock()
	m.admins = set
	m.mu.Unlock()
}

func (m *CommandManager) IsAdmin(id int64) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.admins[id]
}

// Admins returns the current admin ids, sorted.
func (m *CommandManager) Admins() []int64 {
	m.mu.RLock()
	out := make([]int64, 0, len(m.admins))
	for id := range m.admins {
		out = append(out, id)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SetRegistry installs cmds plus a generated /help.
func (m *CommandManager) SetRegistry(cmds []Command) {
	help := Command{
		Name:        "help",
		Aliases:     []string{"h"},
		Description: "show available commands",
		Usage:       "/help",
		Access:      AccessEveryone,
		Handle: func(ctx context.Context, req *Request) error {
			req.Reply(ctx, m.helpText(req.Admin))
			return nil
		},
	}
	cmds = append(append([]Command(nil), cmds...), help)

	list := make([]Command, 0, len(cmds))
	for _, c := range cmds {
		if c.Name = sanitizeCommand(c.Name); c.Name == "" || c.Handle == nil {
			continue
		}
		list = append(list, c)
	}
	idx := make(map[string]*Command, len(list))
	for i := range list {
		idx[list[i].Name] = &list[i]
	}
	for i := range list {
		for _, a := range list[i].Aliases {
			if a = sanitizeCommand(a); a != "" {
				if _, exists := idx[a]; !exists {
					idx[a] = &list[i]
				}
			}
		}
	}

	m.mu.Lock()
	m.cmds = idx
	m.list = list
	m.mu.Unlock()
}

// Menu returns the Telegram command menu for the registered commands.
func (m *CommandManager) Menu() []kit.BotCommand {
	m.mu.RLock()
	list := append([]Command(nil), m.list...)
	m.mu.RUnlock()
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Access != list[j].Access {
			return list[i].Access < list[j].Access
		}
		return list[i].Name < list[j].Name
	})
	out := make([]kit.BotCommand, 0, len(list))
	for _, c := range list {
		desc := strings.ReplaceAll(strings.TrimSpace(c.Description), "\n", " ")
		if desc == "" {
			desc = c.Name
		}
		if c.Access == AccessAdminOnly {
			desc = "🔒 " + desc
		}
		out = append(out, kit.BotCommand{Command: c.Name, Description: desc})
	}
	return out
}

func (m *CommandManager) helpText(admin bool) string {
	m.mu.RLock()
	list := append([]Command(nil), m.list...)
	m.mu.RUnlock()
	sort.SliceStable(list, func(i, j int) bool { return list[i].Name < list[j].Name })

	var b strings.Builder
	b.WriteString("Commands:")
	for _, c := range list {
		if c.Access == AccessAdminOnly && !admin {
			continue
		}
		usage := c.Usage
		if usage == "" {
			usage = "/" + c.Name
		}
		b.WriteString("\n")
		b.WriteString(usage)
		if c.Description != "" {
			b.WriteString(" - ")
			b.WriteString(c.Description)
		}
	}
	return b.String()
}

func (m *CommandManager) setSupervisor(sup *rtsup.Supervisor, running bool) {
	m.runMu.Lock()
	m.sup = sup
	m.running = running
	m.runMu.Unlock()
}

// tryEnqueue is a panic-safe enqueue helper (handles the jobs channel being closed).
func (m *CommandManager) tryEnqueue(fn func()) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	select {
	case m.jobs <- fn:
		return true
	default:
		return false
	}
}

// DispatchLoop reads updates until ctx ends or updates closes.
func (m *CommandManager) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	workers := runtime.NumCPU()
	if workers < 2 {
		workers = 2
	}

	sup := rtsup.New(ctx,
		rtsup.WithLogger(m.log),
		rtsup.WithCancelOnError(false),
	)
	m.setSupervisor(sup, true)
	m.log.Info("command dispatcher started", logx.Int("workers", workers), logx.Int("job_queue_cap", cap(m.jobs)))

	if up, ok := m.adapter.(kit.CommandMenuUpdater); ok {
		menu := m.Menu()
		sup.Go("telegram.menu.update", func(c context.Context) error {
			cctx, cancel := context.WithTimeout(c, 5*time.Second)
			defer cancel()
			if err := up.UpdateMenuCommands(cctx, menu); err != nil {
				m.log.Warn("menu update failed", logx.Err(err))
			}
			return nil
		})
	}

	var closeOnce sync.Once
	closeJobs := func() {
		closeOnce.Do(func() {
			m.setSupervisor(sup, false)
			close(m.jobs)
		})
	}

	for i := 0; i < workers; i++ {
		idx := i
		sup.GoRestart("command.worker."+strconv.Itoa(idx), func(c context.Context) error {
			for {
				select {
				case <-c.Done():
					return nil
				case job, ok := <-m.jobs:
					if !ok {
						return nil
					}
					func() {
						defer func() {
							if r := recover(); r != nil {
								m.log.Error("panic in command job", logx.Int("worker", idx), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
							}
						}()
						job()
					}()
				}
			}
		},
			rtsup.WithRestartBackoff(200*time.Millisecond, 5*time.Second),
			rtsup.WithPublishFirstError(true),
			rtsup.WithStopOnCleanExit(true),
		)
	}

	defer func() {
		closeJobs()
		wctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		_ = sup.Wait(wctx)
		cancel()
		m.setSupervisor(nil, false)
		m.log.Info("command dispatcher stopped")
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case up, ok := <-updates:
			if !ok {
				return nil
			}
			m.route(ctx, up)
		}
	}
}

func (m *CommandManager) route(root context.Context, up kit.Update) {
	msg := up.Message
	if msg == nil {
		return
	}
	text := strings.TrimSpace(msg.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}
	parts := tokenize(text)
	if len(parts) == 0 {
		return
	}
	word := commandWord(parts[0])
	chat := kit.ChatTarget{ChatID: msg.ChatID, ThreadID: msg.ThreadID}

	m.mu.RLock()
	cmd, ok := m.cmds[word]
	admin := m.admins[msg.FromID]
	m.mu.RUnlock()
	if !ok {
		m.send(root, chat, textUnknown)
		return
	}
	if cmd.Access == AccessAdminOnly && !admin {
		m.send(root, chat, textNotAdmin)
		return
	}

	rid := uuid.NewString()[:8]
	req := &Request{
		Message: msg,
		Chat:    chat,
		FromID:  msg.FromID,
		Command: cmd.Name,
		Args:    parts[1:],
		ReqID:   rid,
		Admin:   admin,
		Adapter: m.adapter,
		Logger: m.log.With(
			logx.String("rid", rid),
			logx.Int64("chat_id", msg.ChatID),
			logx.Int64("from_id", msg.FromID),
			logx.String("cmd", cmd.Name),
		),
	}

	final := Chain(
		cmd.Handle,
		MWReplyOnError(textUnexpected),
		MWPanicRecover(m.log),
		MWRequestLog(m.log),
		MWTimeout(cmd.Timeout),
	)
	if !m.tryEnqueue(func() { _ = final(root, req) }) {
		m.send(root, chat, textBusy)
	}
}

func (m *CommandManager) send(ctx context.Context, to kit.ChatTarget, text string) {
	if _, err := m.adapter.SendText(ctx, to, text, nil); err != nil {
		m.log.Warn("send failed", logx.Int64("chat_id", to.ChatID), logx.Err(err))
	}
}
