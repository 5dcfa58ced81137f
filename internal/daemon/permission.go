package daemon

import (
	"context"
	"time"

	"github.com/codelatch/codelatch/internal/protocol"
)

// processPermissionRequest runs the blocking pipeline: persist the
// request, post the prompt, and hold the connection until an operator
// decision, the auto-deny timer, or shutdown resolves it. The
// compare-and-set on pending state guarantees exactly one of those
// wins.
func (d *Daemon) processPermissionRequest(ctx context.Context, envelope *protocol.HookEnvelope) (*protocol.HookResponseEnvelope, error) {
	now := time.Now().Unix()
	expiresAt := now + d.cfg.AutoDenySeconds
	if err := d.store.UpsertSession(ctx, envelope, now); err != nil {
		return nil, err
	}
	if err := d.store.InsertPendingRequest(ctx, envelope, expiresAt, now); err != nil {
		return nil, err
	}

	command := d.redactor.Redact(extractCommand(envelope))
	messageID, err := d.tg.SendPermissionMessage(ctx,
		envelope.SessionName, command, envelope.CWD,
		envelope.RequestID, d.cfg.AutoDenySeconds,
	)
	if err != nil {
		return nil, err
	}
	if err := d.store.SetPendingMessageID(ctx, envelope.RequestID, messageID); err != nil {
		return nil, err
	}

	ch := d.waiters.Create(envelope.RequestID)
	go d.autoDenyAfterTimeout(ctx, envelope.RequestID, messageID)

	select {
	case response := <-ch:
		return &response, nil
	case <-ctx.Done():
		d.waiters.Remove(envelope.RequestID)
		return &protocol.HookResponseEnvelope{
			RequestID:  envelope.RequestID,
			HookOutput: protocol.DenyPermissionOutput("Denied because daemon waiter closed"),
		}, nil
	}
}

func (d *Daemon) autoDenyAfterTimeout(ctx context.Context, requestID string, messageID int64) {
	timer := time.NewTimer(time.Duration(d.cfg.AutoDenySeconds) * time.Second)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
	}

	changed, err := d.store.TransitionPendingState(ctx, requestID, "timed_out")
	if err != nil || !changed {
		return
	}
	// Edit failures are tolerable; the deny must still be delivered.
	d.tg.EditMessage(ctx, messageID, "🔴 Permission\n\n⏳ Timed out — denied") //nolint:errcheck
	d.waiters.Complete(requestID, protocol.HookResponseEnvelope{
		RequestID:  requestID,
		HookOutput: protocol.DenyPermissionOutput("Denied by timeout"),
	})
}
