package bot

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"signalbot/internal/signal"
	"signalbot/internal/storage"
	logx "signalbot/pkg/logx"
)

// Engine is the part of *signal.Engine the command layer drives.
type Engine interface {
	Status(ctx context.Context) signal.Status
	Settings(ctx context.Context) (hours, rangeValue string, err error)
	SetSignalsEnabled(ctx context.Context, on bool) (bool, error)
	SetWorkingHours(ctx context.Context, value string) (string, error)
	SetSignalRange(ctx context.Context, value string) (string, error)
	Replan(ctx context.Context) signal.DaySchedule
	TriggerNow(ctx context.Context) (signal.Report, error)
	SendCustom(ctx context.Context, pair, direction string, minutes float64) (signal.Report, error)
}

type Notifier interface {
	NotifyAll(ctx context.Context, channel string, ids []int64, text string) error
}

// Preferences reads a user's personal signal switch, defaulting it on.
type Preferences interface {
	Preference(ctx context.Context, userID int64) (bool, error)
}

const channelApplications = "application"

var pocketIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{4,32}$`)

// Handlers implements the user and admin commands.
type Handlers struct {
	engine Engine
	store  storage.Store
	prefs  Preferences
	notify Notifier
	admins func() []int64
	log    logx.Logger
}

func NewHandlers(engine Engine, store storage.Store, prefs Preferences, notify Notifier, admins func() []int64, log logx.Logger) *Handlers {
	if admins == nil {
		admins = func() []int64 { return nil }
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handlers{engine: engine, store: store, prefs: prefs, notify: notify, admins: admins, log: log.With(logx.String("comp", "bot.handlers"))}
}

// Commands returns the full command set.
func (h *Handlers) Commands() []Command {
	return []Command{
		{Name: "start", Description: "welcome and your status", Handle: h.start},
		{Name: "signals", Description: "your personal signals", Usage: "/signals [on|off]", Handle: h.signals},
		{Name: "apply", Description: "request access", Usage: "/apply <pocket_id>", Handle: h.apply},

		{Name: "status", Description: "today's plan", Access: AccessAdminOnly, Handle: h.status},
		{Name: "auto", Description: "global signal switch", Usage: "/auto [on|off]", Access: AccessAdminOnly, Handle: h.auto},
		{Name: "hours", Description: "working hours", Usage: "/hours [HH:MM-HH:MM]", Access: AccessAdminOnly, Handle: h.hours},
		{Name: "range", Description: "daily signal range", Usage: "/range [A-B]", Access: AccessAdminOnly, Handle: h.signalRange},
		{Name: "send_now", Aliases: []string{"now"}, Description: "send an auto signal now", Access: AccessAdminOnly, Timeout: 5 * time.Minute, Handle: h.sendNow},
		{Name: "signal", Description: "send a custom signal", Usage: "/signal PAIR buy|sell [minutes]", Access: AccessAdminOnly, Timeout: 5 * time.Minute, Handle: h.custom},
		{Name: "replan", Description: "rebuild today's plan", Access: AccessAdminOnly, Handle: h.replan},
		{Name: "approve", Description: "approve an application", Usage: "/approve <user_id>", Access: AccessAdminOnly, Handle: h.approve},
		{Name: "reject", Description: "reject an application", Usage: "/reject <user_id>", Access: AccessAdminOnly, Handle: h.reject},
		{Name: "remove", Description: "revoke an approved user", Usage: "/remove <user_id>", Access: AccessAdminOnly, Handle: h.remove},
		{Name: "unblock", Description: "move a rejected user back to review", Usage: "/unblock <user_id>", Access: AccessAdminOnly, Handle: h.unblock},
		{Name: "users", Description: "approved and rejected users", Access: AccessAdminOnly, Handle: h.users},
		{Name: "pending", Description: "pending applications", Access: AccessAdminOnly, Handle: h.pending},
	}
}

// fail answers with the engine's reply text. Only unexpected errors are
// returned so the request log records them.
func (h *Handlers) fail(ctx context.Context, req *Request, err error) error {
	text := signal.Reply(err)
	req.Reply(ctx, text)
	if text == signal.UnexpectedText {
		return err
	}
	return nil
}

func (h *Handlers) start(ctx context.Context, req *Request) error {
	if _, err := h.store.GetUserStage(ctx, req.FromID); errors.Is(err, storage.ErrNotFound) {
		if err := h.store.SetUserStage(ctx, req.FromID, storage.StageStarted); err != nil {
			return fmt.Errorf("store stage: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("read stage: %w", err)
	}
	on, err := h.prefs.Preference(ctx, req.FromID)
	if err != nil {
		return err
	}

	lines := []string{textWelcome, "", "Your signals: " + onOff(on)}
	app, err := h.store.GetApplication(ctx, req.FromID)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		lines = append(lines, textApplyHint)
	case err != nil:
		return fmt.Errorf("read application: %w", err)
	default:
		lines = append(lines, applicationLine(app.Status))
	}
	if req.Admin {
		lines = append(lines, "Global signals: "+onOff(h.engine.Status(ctx).Enabled))
	}
	req.Reply(ctx, strings.Join(lines, "\n"))
	return nil
}

func applicationLine(status string) string {
	switch status {
	case storage.StatusApproved:
		return textApproved
	case storage.StatusRejected:
		return textPreviouslyRejected
	default:
		return textProcessing
	}
}

func (h *Handlers) signals(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		on, err := h.prefs.Preference(ctx, req.FromID)
		if err != nil {
			return err
		}
		req.Reply(ctx, "Your signals: "+onOff(on))
		return nil
	}
	on, ok := parseToggle(req.Arg(0))
	if !ok {
		req.Reply(ctx, "Usage: /signals on|off")
		return nil
	}
	if err := h.store.SetPersonalSignals(ctx, req.FromID, on); err != nil {
		return fmt.Errorf("store preference: %w", err)
	}
	req.Logger.Info("personal signals changed", logx.Bool("enabled", on))
	if on {
		req.Reply(ctx, textPersonalOn)
	} else {
		req.Reply(ctx, textPersonalOff)
	}
	return nil
}

func (h *Handlers) apply(ctx context.Context, req *Request) error {
	pocketID := strings.TrimSpace(req.Arg(0))
	switch {
	case pocketID == "":
		req.Reply(ctx, textEnterPocketID)
		return nil
	case !pocketIDPattern.MatchString(pocketID):
		req.Reply(ctx, textPocketIDFormat)
		return nil
	case !strings.ContainsAny(pocketID, "0123456789"):
		req.Reply(ctx, textPocketIDDigit)
		return nil
	}

	existing, err := h.store.GetApplication(ctx, req.FromID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("read application: %w", err)
	}
	if err == nil && existing.Status != storage.StatusPending {
		req.Reply(ctx, applicationLine(existing.Status))
		return nil
	}

	msg := req.Message
	app := storage.Application{UserID: req.FromID, PocketID: pocketID, Status: storage.StatusPending}
	if msg != nil {
		app.FirstName, app.LastName, app.Username, app.Language = msg.FirstName, msg.LastName, msg.FromUsername, msg.LanguageCode
	}
	if _, err := h.store.UpsertApplication(ctx, app); err != nil {
		return fmt.Errorf("store application: %w", err)
	}
	req.Logger.Info("application received", logx.String("pocket_id", pocketID))
	req.Reply(ctx, textProcessing)

	text := fmt.Sprintf("New application from %s (id %d).\nPocket ID: %s\n/approve %d or /reject %d",
		displayName(app), app.UserID, pocketID, app.UserID, app.UserID)
	if err := h.notify.NotifyAll(ctx, channelApplications, h.admins(), text); err != nil {
		req.Logger.Warn("admin notification failed", logx.Err(err))
	}
	return nil
}

func displayName(app storage.Application) string {
	if app.Username != "" {
		return "@" + app.Username
	}
	if name := strings.TrimSpace(app.FirstName + " " + app.LastName); name != "" {
		return name
	}
	return strconv.FormatInt(app.UserID, 10)
}

func (h *Handlers) status(ctx context.Context, req *Request) error {
	st := h.engine.Status(ctx)
	hours, rangeValue, err := h.engine.Settings(ctx)
	if err != nil {
		return err
	}
	lines := []string{
		st.Text(),
		"Global signals: " + onOff(st.Enabled),
		fmt.Sprintf("Pending timers: %d", st.Pending),
		signal.SettingsText(hours, rangeValue),
	}
	req.Reply(ctx, strings.Join(lines, "\n"))
	return nil
}

func (h *Handlers) auto(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		req.Reply(ctx, "Global signals: "+onOff(h.engine.Status(ctx).Enabled))
		return nil
	}
	on, ok := parseToggle(req.Arg(0))
	if !ok {
		req.Reply(ctx, "Usage: /auto on|off")
		return nil
	}
	changed, err := h.engine.SetSignalsEnabled(ctx, on)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	switch {
	case !changed:
		req.Reply(ctx, fmt.Sprintf("Signals are already %s.", onOff(on)))
	case on:
		req.Reply(ctx, textGlobalOn)
	default:
		req.Reply(ctx, textGlobalOff)
	}
	return nil
}

func (h *Handlers) hours(ctx context.Context, req *Request) error {
	hours, rangeValue, err := h.engine.Settings(ctx)
	if err != nil {
		return err
	}
	if len(req.Args) == 0 {
		req.Reply(ctx, textEnterHours+"\n\n"+signal.SettingsText(hours, rangeValue))
		return nil
	}
	v, err := h.engine.SetWorkingHours(ctx, strings.Join(req.Args, ""))
	if err != nil {
		return h.fail(ctx, req, err)
	}
	req.Reply(ctx, textHoursUpdated+"\n"+signal.SettingsText(v, rangeValue))
	return nil
}

func (h *Handlers) signalRange(ctx context.Context, req *Request) error {
	hours, rangeValue, err := h.engine.Settings(ctx)
	if err != nil {
		return err
	}
	if len(req.Args) == 0 {
		req.Reply(ctx, textEnterRange+"\n\n"+signal.SettingsText(hours, rangeValue))
		return nil
	}
	v, err := h.engine.SetSignalRange(ctx, strings.Join(req.Args, " "))
	if err != nil {
		return h.fail(ctx, req, err)
	}
	req.Reply(ctx, textRangeUpdated+"\n"+signal.SettingsText(hours, v))
	return nil
}

func (h *Handlers) sendNow(ctx context.Context, req *Request) error {
	rep, err := h.engine.TriggerNow(ctx)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	req.Reply(ctx, rep.Text())
	return nil
}

func (h *Handlers) custom(ctx context.Context, req *Request) error {
	if len(req.Args) < 2 {
		req.Reply(ctx, "Usage: /signal PAIR buy|sell [minutes]")
		return nil
	}
	minutes := signal.DefaultExpiration
	if len(req.Args) > 2 {
		v, err := signal.ParseMinutes(strings.Join(req.Args[2:], ""))
		if err != nil {
			return h.fail(ctx, req, err)
		}
		minutes = v
	}
	rep, err := h.engine.SendCustom(ctx, req.Arg(0), req.Arg(1), minutes)
	if err != nil {
		return h.fail(ctx, req, err)
	}
	req.Reply(ctx, rep.Text())
	return nil
}

func (h *Handlers) replan(ctx context.Context, req *Request) error {
	d := h.engine.Replan(ctx)
	req.Reply(ctx, fmt.Sprintf("Plan rebuilt for %s: %d signals planned.", d.Date, d.Target))
	return nil
}

// userArg parses the target user id or answers with the usage line.
func userArg(ctx context.Context, req *Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(req.Arg(0)), 10, 64)
	if err != nil || id <= 0 {
		req.Reply(ctx, fmt.Sprintf("Usage: /%s <user_id>", req.Command))
		return 0, false
	}
	return id, true
}

// moderate moves one application from an allowed status to a new status
// and stage, then tells the user.
func (h *Handlers) moderate(ctx context.Context, req *Request, id int64, from []string, status, stage, notice string) (bool, error) {
	app, err := h.store.GetApplication(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("read application: %w", err)
	}
	allowed := len(from) == 0
	for _, s := range from {
		allowed = allowed || app.Status == s
	}
	if !allowed {
		return false, nil
	}
	if status == "" {
		err = h.store.DeleteApplication(ctx, id)
	} else {
		err = h.store.SetApplicationStatus(ctx, id, status)
	}
	if err != nil {
		return false, fmt.Errorf("update application: %w", err)
	}
	if err := h.store.SetUserStage(ctx, id, stage); err != nil {
		return false, fmt.Errorf("store stage: %w", err)
	}
	req.Logger.Info("application moderated", logx.Int64("user_id", id), logx.String("from", app.Status), logx.String("to", status), logx.String("stage", stage))
	if err := h.notify.NotifyAll(ctx, channelApplications, []int64{id}, notice); err != nil {
		req.Logger.Warn("user notification failed", logx.Int64("user_id", id), logx.Err(err))
	}
	return true, nil
}

func (h *Handlers) approve(ctx context.Context, req *Request) error {
	id, ok := userArg(ctx, req)
	if !ok {
		return nil
	}
	done, err := h.moderate(ctx, req, id, nil, storage.StatusApproved, storage.StageCompleted, textApproved)
	if err != nil {
		return err
	}
	if !done {
		req.Reply(ctx, fmt.Sprintf("Could not find application for user %d.", id))
		return nil
	}
	req.Reply(ctx, fmt.Sprintf("User %d approved.", id))
	return nil
}

func (h *Handlers) reject(ctx context.Context, req *Request) error {
	id, ok := userArg(ctx, req)
	if !ok {
		return nil
	}
	done, err := h.moderate(ctx, req, id, nil, storage.StatusRejected, storage.StageRejected, textRejected)
	if err != nil {
		return err
	}
	if !done {
		req.Reply(ctx, fmt.Sprintf("Could not find application for user %d.", id))
		return nil
	}
	req.Reply(ctx, fmt.Sprintf("User %d rejected.", id))
	return nil
}

func (h *Handlers) remove(ctx context.Context, req *Request) error {
	id, ok := userArg(ctx, req)
	if !ok {
		return nil
	}
	done, err := h.moderate(ctx, req, id, []string{storage.StatusApproved}, "", storage.StageRejected, textRevoked)
	if err != nil {
		return err
	}
	if !done {
		req.Reply(ctx, fmt.Sprintf("Could not find approved user %d.", id))
		return nil
	}
	req.Reply(ctx, fmt.Sprintf("User %d has been removed.", id))
	return nil
}

func (h *Handlers) unblock(ctx context.Context, req *Request) error {
	id, ok := userArg(ctx, req)
	if !ok {
		return nil
	}
	done, err := h.moderate(ctx, req, id, []string{storage.StatusRejected}, storage.StatusPending, storage.StageStarted, textRestored)
	if err != nil {
		return err
	}
	if !done {
		req.Reply(ctx, fmt.Sprintf("Could not find rejected user %d.", id))
		return nil
	}
	req.Reply(ctx, fmt.Sprintf("User %d has been unblocked and moved to pending review.", id))
	return nil
}

func (h *Handlers) users(ctx context.Context, req *Request) error {
	approved, err := h.store.ListApplications(ctx, storage.StatusApproved)
	if err != nil {
		return fmt.Errorf("list approved: %w", err)
	}
	rejected, err := h.store.ListApplications(ctx, storage.StatusRejected)
	if err != nil {
		return fmt.Errorf("list rejected: %w", err)
	}
	lines := []string{fmt.Sprintf("Approved: %d\nRejected: %d", len(approved), len(rejected)), "", "Approved users:"}
	lines = append(lines, applicationLines(approved)...)
	lines = append(lines, "", "Rejected users:")
	lines = append(lines, applicationLines(rejected)...)
	req.Reply(ctx, strings.Join(lines, "\n"))
	return nil
}

func (h *Handlers) pending(ctx context.Context, req *Request) error {
	apps, err := h.store.ListApplications(ctx, storage.StatusPending)
	if err != nil {
		return fmt.Errorf("list pending: %w", err)
	}
	if len(apps) == 0 {
		req.Reply(ctx, textNoApplications)
		return nil
	}
	lines := []string{fmt.Sprintf("Pending applications: %d.", len(apps))}
	lines = append(lines, applicationLines(apps)...)
	req.Reply(ctx, strings.Join(lines, "\n"))
	return nil
}

func applicationLines(apps []storage.Application) []string {
	if len(apps) == 0 {
		return []string{textEmptyList}
	}
	out := make([]string, 0, len(apps))
	for _, a := range apps {
		out = append(out, fmt.Sprintf("%d · %s · %s", a.UserID, a.PocketID, displayName(a)))
	}
	return out
}
