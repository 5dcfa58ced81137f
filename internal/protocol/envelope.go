// Package protocol defines the wire contract between hook clients and
// the daemon: JSON envelopes carried in 4-byte big-endian
// length-prefixed frames over a unix stream socket.
package protocol

import "encoding/json"

// Version is the current envelope protocol version.
const Version = 1

// HookEnvelope is the request frame sent by a hook client.
type HookEnvelope struct {
	Version       int             `json:"version"`
	RequestID     string          `json:"request_id"`
	SessionID     string          `json:"session_id"`
	SessionName   string          `json:"session_name"`
	TmuxPane      string          `json:"tmux_pane,omitempty"`
	HookEventName string          `json:"hook_event_name"`
	Blocking      bool            `json:"blocking"`
	CWD           string          `json:"cwd"`
	Payload       json.RawMessage `json:"payload"`
}

// IsBlockingPermission reports whether the envelope expects a
// synchronous decision frame.
func (e *HookEnvelope) IsBlockingPermission() bool {
	return e.Blocking && e.HookEventName == "PermissionRequest"
}

// HookResponseEnvelope is the response frame returned to a blocking
// permission request.
type HookResponseEnvelope struct {
	RequestID  string          `json:"request_id"`
	HookOutput json.RawMessage `json:"hook_output"`
}

type permissionDecision struct {
	Behavior string `json:"behavior"`
	Message  string `json:"message,omitempty"`
}

type hookSpecificOutput struct {
	HookEventName string             `json:"hookEventName"`
	Decision      permissionDecision `json:"decision"`
}

type permissionOutput struct {
	HookSpecificOutput hookSpecificOutput `json:"hookSpecificOutput"`
}

// AllowPermissionOutput builds the hook output for an approved request.
func AllowPermissionOutput() json.RawMessage {
	out, _ := json.Marshal(permissionOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName: "PermissionRequest",
			Decision:      permissionDecision{Behavior: "allow"},
		},
	})
	return out
}

// DenyPermissionOutput builds the hook output for a denied request.
func DenyPermissionOutput(message string) json.RawMessage {
	out, _ := json.Marshal(permissionOutput{
		HookSpecificOutput: hookSpecificOutput{
			HookEventName: "PermissionRequest",
			Decision:      permissionDecision{Behavior: "deny", Message: message},
		},
	})
	return out
}
