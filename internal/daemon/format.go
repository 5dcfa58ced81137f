package daemon

import (
	"encoding/json"

	"github.com/codelatch/codelatch/internal/chat"
	"github.com/codelatch/codelatch/internal/protocol"
)

// extractCommand pulls tool_input.command out of a permission payload.
func extractCommand(envelope *protocol.HookEnvelope) string {
	var payload struct {
		ToolInput struct {
			Command string `json:"command"`
		} `json:"tool_input"`
	}
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil || payload.ToolInput.Command == "" {
		return "<unknown command>"
	}
	return payload.ToolInput.Command
}

func notificationType(envelope *protocol.HookEnvelope) string {
	var payload struct {
		NotificationType string `json:"notification_type"`
	}
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return ""
	}
	return payload.NotificationType
}

func iconFor(envelope *protocol.HookEnvelope) string {
	if envelope.HookEventName == "Notification" {
		switch notificationType(envelope) {
		case "elicitation_dialog":
			return "🟡"
		case "permission_prompt":
			return "🔴"
		default:
			return "🔵"
		}
	}
	switch envelope.HookEventName {
	case "PostToolUseFailure":
		return "❌"
	case "Stop", "TaskCompleted", "SessionEnd":
		return "✅"
	default:
		return "🔵"
	}
}

func eventTitle(envelope *protocol.HookEnvelope) string {
	if envelope.HookEventName == "Notification" {
		switch notificationType(envelope) {
		case "elicitation_dialog":
			return "🟡 Question"
		case "permission_prompt":
			return "🔴 Permission Prompt"
		case "idle_prompt":
			return "🔵 Idle Prompt"
		default:
			return "🔵 Notification"
		}
	}
	switch envelope.HookEventName {
	case "PostToolUseFailure":
		return "❌ Tool Failure"
	case "Stop", "TaskCompleted":
		return "✅ Done"
	case "SessionStart":
		return "🔵 Session Start"
	case "SessionEnd":
		return "🔵 Session End"
	default:
		return iconFor(envelope) + " " + envelope.HookEventName
	}
}

// formatAsyncMarkdown renders the operator notification for a
// non-blocking event. hasContext distinguishes "no pane output" from
// an empty capture.
func formatAsyncMarkdown(envelope *protocol.HookEnvelope, redactedPayload, redactedContext string, hasContext bool) string {
	out := "*" + chat.EscapeText(eventTitle(envelope)) + "* · " + chat.InlineCode(envelope.SessionName)

	switch envelope.HookEventName {
	case "SessionStart":
		out += "\n\n*Dir* " + chat.InlineCode(envelope.CWD)
		out += "\n\nNew session latched"
	case "SessionEnd":
		out += "\n\nSession ended"
	case "Stop", "TaskCompleted":
		out += "\n\nTask finished"
	default:
		out += "\n\n*Payload*\n" + chat.CodeBlock("json", redactedPayload)
		if hasContext {
			out += "\n\n*Context*\n" + chat.CodeBlock("", redactedContext)
		}
		if envelope.HookEventName == "Notification" {
			out += "\n\nReply to this message"
		}
	}
	return out
}

// prettyPayload renders the payload as indented JSON, falling back to
// the raw bytes when it does not parse.
func prettyPayload(payload json.RawMessage) string {
	if len(payload) == 0 {
		return "null"
	}
	var decoded interface{}
	if err := json.Unmarshal(payload, &decoded); err != nil {
		return string(payload)
	}
	pretty, err := json.MarshalIndent(decoded, "", "  ")
	if err != nil {
		return string(payload)
	}
	return string(pretty)
}

// safeFilename keeps ASCII alphanumerics, dash, underscore, and dot;
// everything else becomes an underscore.
func safeFilename(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		case r == '-' || r == '_' || r == '.':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "codelatch"
	}
	return string(out)
}
