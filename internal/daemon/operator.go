package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	tele "gopkg.in/telebot.v3"

	"github.com/codelatch/codelatch/internal/chat"
	"github.com/codelatch/codelatch/internal/protocol"
	"github.com/codelatch/codelatch/internal/store"
	"github.com/codelatch/codelatch/internal/tmux"
)

// handleMessage dispatches one operator message: slash commands first,
// then reply routing, then the default route.
func (d *Daemon) handleMessage(ctx context.Context, message *chat.Message) error {
	if message.Chat.ID != d.tg.ChatID() {
		return nil
	}
	text := message.Text
	if text == "" {
		return nil
	}

	switch {
	case strings.HasPrefix(text, "/peek"):
		return d.handlePeekCommand(ctx, message)
	case strings.HasPrefix(text, "/diff"):
		return d.handleDiffCommand(ctx, message)
	case strings.HasPrefix(text, "/log"):
		return d.handleLogCommand(ctx, message)
	case strings.HasPrefix(text, "/sessions"):
		return d.handleSessionsCommand(ctx)
	case strings.HasPrefix(text, "/switch"):
		return d.handleSwitchCommand(ctx, text)
	}

	if message.ReplyTo == nil {
		route, err := d.store.GetDefaultRoute(ctx)
		if err != nil {
			return err
		}
		if route != nil {
			reply := "Failed to inject message into default session."
			if d.panes.InjectReply(route.TmuxPane, text) {
				reply = fmt.Sprintf("Sent message to default session %s.", route.SessionName)
			}
			_, err := d.tg.SendMessage(ctx, reply)
			return err
		}
		_, err = d.tg.SendMessage(ctx, "Reply to a session message, or use /switch <name> first.")
		return err
	}

	route, err := d.store.LookupReplyRoute(ctx, message.ReplyTo.MessageID)
	if err != nil || route == nil {
		return err
	}
	reply := "Failed to inject reply into tmux session."
	if d.panes.InjectReply(route.TmuxPane, text) {
		reply = fmt.Sprintf("Sent reply to session %s.", route.SessionID)
	}
	_, err = d.tg.SendMessage(ctx, reply)
	return err
}

func (d *Daemon) handleSessionsCommand(ctx context.Context) error {
	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		_, err := d.tg.SendMessage(ctx, "No active sessions.")
		return err
	}
	defaultRoute, err := d.store.GetDefaultRoute(ctx)
	if err != nil {
		return err
	}
	var out strings.Builder
	out.WriteString("Active sessions:\n")
	for _, s := range sessions {
		prefix := "- "
		if defaultRoute != nil && defaultRoute.SessionID == s.SessionID {
			prefix = "* "
		}
		fmt.Fprintf(&out, "%s%s (%s)\n", prefix, s.Name, s.SessionID)
	}
	_, err = d.tg.SendMessage(ctx, out.String())
	return err
}

func (d *Daemon) handleSwitchCommand(ctx context.Context, text string) error {
	parts := strings.Fields(text)
	if len(parts) < 2 {
		current, err := d.store.GetDefaultRoute(ctx)
		if err != nil {
			return err
		}
		msg := "No default session set. Use /switch <name>."
		if current != nil {
			msg = fmt.Sprintf("Current default session: %s", current.SessionName)
		}
		_, err = d.tg.SendMessage(ctx, msg)
		return err
	}

	route, err := d.store.FindSessionByName(ctx, parts[1])
	if err != nil {
		return err
	}
	if route == nil {
		_, err := d.tg.SendMessage(ctx, "Session not found. Use /sessions to list active sessions.")
		return err
	}
	if err := d.store.SetDefaultRoute(ctx, route, time.Now().Unix()); err != nil {
		return err
	}
	_, err = d.tg.SendMessage(ctx, fmt.Sprintf("Default session switched to %s.", route.SessionName))
	return err
}

func (d *Daemon) handlePeekCommand(ctx context.Context, message *chat.Message) error {
	session, err := d.resolveSessionForMessage(ctx, message)
	if err != nil {
		return err
	}
	if session == nil {
		_, err := d.tg.SendMessage(ctx, "No active session. Use /sessions to pick one.")
		return err
	}

	recent, ok := d.panes.CaptureContext(session.TmuxPane, peekContextLines)
	if !ok {
		recent = "No tmux output available"
	}
	redacted := d.redactor.Redact(recent)
	running, ok := d.panes.DetectRunningCommand(session.TmuxPane)
	if !ok || running == "" {
		running = "idle"
	}
	currentFile, ok := tmux.DetectCurrentFile(running, redacted)
	if !ok {
		currentFile = "unknown"
	}
	currentTask, ok := tmux.LatestNonemptyLine(redacted)
	if !ok {
		currentTask = "unknown"
	}

	body := peekBody(session, currentTask, running, currentFile, redacted, false)
	if utf8.RuneCountInString(body) > chat.MaxTextLength {
		body = peekBody(session, currentTask, running, currentFile,
			tmux.TruncateTail(redacted, 1800), true)
	}
	_, err = d.tg.SendMarkdownWithMarkup(ctx, body, peekKeyboard(session.SessionID))
	return err
}

func peekBody(session *store.SessionRecord, task, running, file, output string, truncated bool) string {
	body := fmt.Sprintf(
		"*🔵 Peek* · %s\n\n*Session* %s\n*Dir* %s\n*Task* %s\n*Running* %s\n*Current file* %s\n\n*Recent output*\n%s",
		chat.InlineCode(session.Name),
		chat.InlineCode(session.SessionID),
		chat.InlineCode(session.CWD),
		chat.InlineCode(task),
		chat.InlineCode(running),
		chat.InlineCode(file),
		chat.CodeBlock("", output),
	)
	if truncated {
		body += "\n\nTruncated for Telegram"
	}
	return body
}

func (d *Daemon) handleDiffCommand(ctx context.Context, message *chat.Message) error {
	session, err := d.resolveSessionForMessage(ctx, message)
	if err != nil {
		return err
	}
	if session == nil {
		_, err := d.tg.SendMessage(ctx, "No active session. Use /sessions to pick one.")
		return err
	}
	return d.sendDiffForSession(ctx, session)
}

func (d *Daemon) handleLogCommand(ctx context.Context, message *chat.Message) error {
	session, err := d.resolveSessionForMessage(ctx, message)
	if err != nil {
		return err
	}
	if session == nil {
		_, err := d.tg.SendMessage(ctx, "No active session. Use /sessions to pick one.")
		return err
	}
	return d.sendLogForSession(ctx, session)
}

func (d *Daemon) sendDiffForSession(ctx context.Context, session *store.SessionRecord) error {
	stdout, stderr, ok := d.gitDiff(session.CWD)
	if !ok {
		msg := fmt.Sprintf("*❌ Diff failed* · %s\n\n%s",
			chat.InlineCode(session.Name),
			chat.CodeBlock("", d.redactor.Redact(strings.TrimSpace(stderr))),
		)
		_, err := d.tg.SendMarkdown(ctx, msg)
		return err
	}

	diff := d.redactor.Redact(stdout)
	if strings.TrimSpace(diff) == "" {
		_, err := d.tg.SendMarkdown(ctx,
			fmt.Sprintf("*✅ Diff* · %s\n\nNo changes", chat.InlineCode(session.Name)))
		return err
	}

	inline := fmt.Sprintf("*🔵 Diff* · %s\n\n%s",
		chat.InlineCode(session.Name), chat.CodeBlock("diff", diff))
	if utf8.RuneCountInString(inline) <= chat.MaxTextLength {
		_, err := d.tg.SendMarkdown(ctx, inline)
		return err
	}

	fileName := safeFilename(session.Name) + "-diff.patch"
	caption := fmt.Sprintf("*🔵 Diff* · %s", chat.InlineCode(session.Name))
	_, err := d.tg.SendDocument(ctx, fileName, []byte(diff), caption)
	return err
}

func (d *Daemon) sendLogForSession(ctx context.Context, session *store.SessionRecord) error {
	log, ok := d.panes.CaptureContext(session.TmuxPane, logLines)
	if !ok {
		log = "No tmux log available"
	}
	fileName := safeFilename(session.Name) + "-log.txt"
	caption := fmt.Sprintf("*🔵 Log* · %s", chat.InlineCode(session.Name))
	_, err := d.tg.SendDocument(ctx, fileName, []byte(d.redactor.Redact(log)), caption)
	return err
}

// resolveSessionForMessage picks the session a command applies to:
// the replied-to message's route, then the default route, then the
// most recently seen session.
func (d *Daemon) resolveSessionForMessage(ctx context.Context, message *chat.Message) (*store.SessionRecord, error) {
	if message.ReplyTo != nil {
		route, err := d.store.LookupReplyRoute(ctx, message.ReplyTo.MessageID)
		if err != nil {
			return nil, err
		}
		if route != nil {
			session, err := d.store.GetSession(ctx, route.SessionID)
			if err != nil {
				return nil, err
			}
			if session != nil {
				return session, nil
			}
		}
	}

	defaultRoute, err := d.store.GetDefaultRoute(ctx)
	if err != nil {
		return nil, err
	}
	if defaultRoute != nil {
		session, err := d.store.GetSession(ctx, defaultRoute.SessionID)
		if err != nil {
			return nil, err
		}
		if session != nil {
			return session, nil
		}
	}

	sessions, err := d.store.ListSessions(ctx)
	if err != nil {
		return nil, err
	}
	if len(sessions) == 0 {
		return nil, nil
	}
	return &sessions[0], nil
}

// handleCallbackQuery acknowledges the callback before anything else
// so the operator's client never spins on a stale button.
func (d *Daemon) handleCallbackQuery(ctx context.Context, callback *chat.CallbackQuery) error {
	if err := d.tg.AnswerCallbackQuery(ctx, callback.ID); err != nil {
		return err
	}
	if callback.Message == nil || callback.Message.Chat.ID != d.tg.ChatID() {
		return nil
	}
	if callback.Data == "" {
		return nil
	}

	parts := strings.SplitN(callback.Data, ":", 3)
	switch parts[0] {
	case "permit":
		if len(parts) < 3 || parts[1] == "" {
			return nil
		}
		return d.handlePermitCallback(ctx, callback, parts[1], parts[2])
	case "peek":
		if len(parts) < 3 || parts[2] == "" {
			return nil
		}
		return d.handlePeekCallbackAction(ctx, parts[1], parts[2])
	}
	return nil
}

func (d *Daemon) handlePermitCallback(ctx context.Context, callback *chat.CallbackQuery, requestID, action string) error {
	var nextState, statusText string
	var hookOutput []byte
	switch action {
	case "allow":
		nextState, statusText = "approved", "✅ Approved"
		hookOutput = protocol.AllowPermissionOutput()
	case "deny":
		nextState, statusText = "denied", "❌ Denied"
		hookOutput = protocol.DenyPermissionOutput("Denied by remote operator")
	default:
		return nil
	}

	changed, err := d.store.TransitionPendingState(ctx, requestID, nextState)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	d.tg.EditMessage(ctx, callback.Message.MessageID, "🔴 Permission\n\n"+statusText) //nolint:errcheck
	d.waiters.Complete(requestID, protocol.HookResponseEnvelope{
		RequestID:  requestID,
		HookOutput: hookOutput,
	})
	return nil
}

func (d *Daemon) handlePeekCallbackAction(ctx context.Context, action, sessionID string) error {
	session, err := d.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session == nil {
		_, err := d.tg.SendMessage(ctx, "Session is no longer active.")
		return err
	}

	switch action {
	case "diff":
		return d.sendDiffForSession(ctx, session)
	case "log":
		return d.sendLogForSession(ctx, session)
	case "stop":
		if d.panes.SendInterrupt(session.TmuxPane) {
			text := fmt.Sprintf("*⏹ Stop sent* · %s\n\nSent Ctrl\\+C to %s",
				chat.InlineCode(session.Name), chat.InlineCode(session.TmuxPane))
			_, err := d.tg.SendMarkdown(ctx, text)
			return err
		}
		_, err := d.tg.SendMessage(ctx, "Failed to send interrupt to tmux pane.")
		return err
	}
	return nil
}

func peekKeyboard(sessionID string) *tele.ReplyMarkup {
	return &tele.ReplyMarkup{
		InlineKeyboard: [][]tele.InlineButton{{
			{Text: "Diff", Data: "peek:diff:" + sessionID},
			{Text: "Log", Data: "peek:log:" + sessionID},
			{Text: "Stop", Data: "peek:stop:" + sessionID},
		}},
	}
}
