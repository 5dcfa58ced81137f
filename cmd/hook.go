package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/logger"
	"github.com/codelatch/codelatch/internal/protocol"
)

var HookCmd = &cobra.Command{
	Use:   "hook <event>",
	Short: "Hook command called by Claude Code (reads stdin payload)",
	Args:  cobra.ExactArgs(1),
	Run:   runHookCmd,
}

func runHookCmd(cmd *cobra.Command, args []string) {
	event := args[0]
	blocking := event == "PermissionRequest"

	cfg, err := config.Load()
	if err != nil {
		hookFail(blocking, fmt.Sprintf("load config: %v", err))
		return
	}

	payloadText, err := io.ReadAll(os.Stdin)
	if err != nil {
		hookFail(blocking, fmt.Sprintf("read stdin: %v", err))
		return
	}
	payload := json.RawMessage(payloadText)
	if !json.Valid(payload) || len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}

	envelope, err := buildHookEnvelope(event, blocking, payload)
	if err != nil {
		hookFail(blocking, err.Error())
		return
	}

	conn, err := net.DialTimeout("unix", cfg.SocketPath, 3*time.Second)
	if err != nil {
		if blocking {
			fmt.Fprintln(os.Stderr, "Codelatch daemon unavailable — denied for safety")
			os.Exit(2)
		}
		fmt.Fprintf(os.Stderr, "daemon unavailable at %s\n", cfg.SocketPath)
		os.Exit(1)
	}
	defer conn.Close() //nolint:errcheck

	if err := protocol.WriteEnvelope(conn, envelope); err != nil {
		hookFail(blocking, fmt.Sprintf("send envelope: %v", err))
		return
	}

	if blocking {
		// Bound the wait; a hung daemon must still resolve to a deny.
		if cfg.HookTimeoutSeconds > 0 {
			conn.SetReadDeadline(time.Now().Add(time.Duration(cfg.HookTimeoutSeconds) * time.Second)) //nolint:errcheck
		}
		response, err := protocol.ReadResponseEnvelope(conn)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Codelatch daemon closed permission channel — denied for safety")
			os.Exit(2)
		}
		fmt.Println(string(response.HookOutput))
		return
	}

	logger.Info(fmt.Sprintf("forwarded hook event %s request_id=%s", envelope.HookEventName, envelope.RequestID))
}

// buildHookEnvelope fills the wire envelope from the managed-session
// environment. Hooks fired outside `codelatch run` report an
// unmanaged session with a fresh id.
func buildHookEnvelope(event string, blocking bool, payload json.RawMessage) (*protocol.HookEnvelope, error) {
	sessionID := os.Getenv("CODELATCH_SESSION_ID")
	if sessionID == "" {
		sessionID = newID()
	}
	sessionName := os.Getenv("CODELATCH_SESSION_NAME")
	if sessionName == "" {
		sessionName = "unmanaged-session"
	}
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("resolve cwd: %w", err)
	}

	return &protocol.HookEnvelope{
		Version:       protocol.Version,
		RequestID:     newID(),
		SessionID:     sessionID,
		SessionName:   sessionName,
		TmuxPane:      os.Getenv("TMUX_PANE"),
		HookEventName: event,
		Blocking:      blocking,
		CWD:           cwd,
		Payload:       payload,
	}, nil
}

// newID returns a time-ordered unique id.
func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// hookFail exits safely: a blocking hook must deny rather than hang
// Claude on a broken broker.
func hookFail(blocking bool, message string) {
	if blocking {
		fmt.Fprintln(os.Stderr, "Codelatch daemon unavailable — denied for safety")
		os.Exit(2)
	}
	fmt.Fprintln(os.Stderr, message)
	os.Exit(1)
}
