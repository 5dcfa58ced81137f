package daemon

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/codelatch/codelatch/internal/chat"
	"github.com/codelatch/codelatch/internal/protocol"
)

// processAsyncEvent forwards a non-blocking hook event to the
// operator. Oversized bodies go out as a document instead of being
// truncated.
func (d *Daemon) processAsyncEvent(ctx context.Context, envelope *protocol.HookEnvelope) error {
	now := time.Now().Unix()
	if err := d.store.UpsertSession(ctx, envelope, now); err != nil {
		return err
	}

	redactedPayload := d.redactor.Redact(prettyPayload(envelope.Payload))
	var redactedContext string
	hasContext := false
	if envelope.TmuxPane != "" {
		if captured, ok := d.panes.CaptureContext(envelope.TmuxPane, d.cfg.ContextLines); ok {
			redactedContext = d.redactor.Redact(captured)
			hasContext = true
		}
	}

	markdown := formatAsyncMarkdown(envelope, redactedPayload, redactedContext, hasContext)

	var messageID int64
	var err error
	if utf8.RuneCountInString(markdown) <= d.cfg.MaxInlineLength {
		messageID, err = d.tg.SendMarkdown(ctx, markdown)
	} else {
		fileName := fmt.Sprintf("%s-%s-event.txt",
			safeFilename(envelope.SessionName),
			safeFilename(strings.ToLower(envelope.HookEventName)),
		)
		text := fmt.Sprintf("%s %s · %s\n\n%s",
			iconFor(envelope), envelope.HookEventName, envelope.SessionName, redactedPayload)
		if hasContext {
			text += "\n\nContext:\n" + redactedContext
		}
		caption := "*" + chat.EscapeText(eventTitle(envelope)) + "* · " + chat.InlineCode(envelope.SessionName)
		messageID, err = d.tg.SendDocument(ctx, fileName, []byte(text), caption)
	}
	if err != nil {
		return err
	}

	// Only notifications invite a reply, so only they get a route.
	if envelope.HookEventName == "Notification" {
		return d.store.InsertReplyRoute(ctx, messageID, envelope, time.Now().Unix())
	}
	return nil
}
