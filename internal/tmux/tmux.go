// Package tmux drives the terminal multiplexer as a subprocess:
// capture, inject, interrupt, and process-tree inspection. Failures
// are soft; callers get an ok=false and decide how to degrade.
package tmux

import (
	"fmt"
	"os/exec"
	"sort"
	"strconv"
	"strings"
)

// maxTreeHops bounds the process-tree descent when resolving the
// active command under a pane.
const maxTreeHops = 25

// CaptureContext returns the last `lines` lines of the pane,
// normalized for safe embedding in operator messages.
func CaptureContext(pane string, lines int) (string, bool) {
	if pane == "" {
		return "", false
	}
	out, err := exec.Command("tmux", "capture-pane", "-p", "-t", pane, "-S", fmt.Sprintf("-%d", lines)).Output()
	if err != nil {
		return "", false
	}
	return NormalizeTerminalText(string(out)), true
}

// SendInterrupt sends Ctrl-C to the pane.
func SendInterrupt(pane string) bool {
	return exec.Command("tmux", "send-keys", "-t", pane, "C-c").Run() == nil
}

// InjectReply types text into the pane literally (bypassing key
// binding interpretation) and presses Enter. Newlines are flattened to
// spaces so the reply lands as one input line.
func InjectReply(pane, text string) bool {
	sanitized := strings.ReplaceAll(text, "\n", " ")
	if err := exec.Command("tmux", "send-keys", "-t", pane, "-l", sanitized).Run(); err != nil {
		return false
	}
	return exec.Command("tmux", "send-keys", "-t", pane, "C-m").Run() == nil
}

func displayValue(pane, formatExpr string) (string, bool) {
	out, err := exec.Command("tmux", "display-message", "-p", "-t", pane, formatExpr).Output()
	if err != nil {
		return "", false
	}
	return strings.TrimSpace(string(out)), true
}

// DetectRunningCommand resolves what is actually running in the pane
// by walking the process tree below the pane's root PID. Returns
// "idle" when only shells are found.
func DetectRunningCommand(pane string) (string, bool) {
	pidText, ok := displayValue(pane, "#{pane_pid}")
	if !ok {
		return "", false
	}
	panePID, err := strconv.Atoi(strings.TrimSpace(pidText))
	if err != nil {
		return "", false
	}
	paneCommand, ok := displayValue(pane, "#{pane_current_command}")
	if !ok {
		return "", false
	}
	psOut, err := exec.Command("ps", "-axo", "pid=,ppid=,command=").Output()
	if err != nil {
		return strings.TrimSpace(paneCommand), true
	}
	return resolveRunningCommand(panePID, paneCommand, NormalizeTerminalText(string(psOut))), true
}

// resolveRunningCommand walks the parsed ps table: from the pane root,
// descend to the highest-numbered child each hop, remembering the last
// non-shell command seen.
func resolveRunningCommand(panePID int, paneCommand, psTable string) string {
	children, commands := parseProcessTable(psTable)

	best := commands[panePID]
	if best == "" {
		best = strings.TrimSpace(paneCommand)
	}

	current := panePID
	for hop := 0; hop < maxTreeHops; hop++ {
		kids, ok := children[current]
		if !ok || len(kids) == 0 {
			break
		}
		sort.Ints(kids)
		current = kids[len(kids)-1]
		if command, ok := commands[current]; ok && !looksLikeShell(command) {
			best = command
		}
	}

	best = strings.TrimSpace(best)
	if best == "" || looksLikeShell(best) {
		return "idle"
	}
	return best
}

// parseProcessTable parses `ps -axo pid=,ppid=,command=` output into a
// parent→children map and a pid→command map.
func parseProcessTable(psTable string) (map[int][]int, map[int]string) {
	children := make(map[int][]int)
	commands := make(map[int]string)
	for _, line := range strings.Split(psTable, "\n") {
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		pid, err := strconv.Atoi(fields[0])
		if err != nil {
			continue
		}
		ppid, err := strconv.Atoi(fields[1])
		if err != nil {
			continue
		}
		children[ppid] = append(children[ppid], pid)
		commands[pid] = strings.Join(fields[2:], " ")
	}
	return children, commands
}

// looksLikeShell matches on the basename of the first token, dropping
// a login-shell leading dash.
func looksLikeShell(command string) bool {
	first := strings.Fields(command)
	if len(first) == 0 {
		return false
	}
	base := strings.TrimPrefix(first[0], "-")
	if idx := strings.LastIndex(base, "/"); idx >= 0 {
		base = base[idx+1:]
	}
	switch base {
	case "bash", "zsh", "sh", "fish", "tmux", "login":
		return true
	}
	return false
}

// DetectCurrentFile guesses the file being worked on: path-like tokens
// from the running command first, then from the context lines bottom
// up.
func DetectCurrentFile(runningCommand, context string) (string, bool) {
	if path, ok := firstPathToken(runningCommand); ok {
		return path, true
	}
	lines := strings.Split(context, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if path, ok := firstPathToken(lines[i]); ok {
			return path, true
		}
	}
	return "", false
}

// firstPathToken scans tokens right to left for something that looks
// like a file path: contains a dot, is not a URL, not a flag, and does
// not end in a dot.
func firstPathToken(input string) (string, bool) {
	tokens := strings.Fields(input)
	for i := len(tokens) - 1; i >= 0; i-- {
		cleaned := strings.TrimFunc(tokens[i], func(r rune) bool {
			switch r {
			case '"', '\'', '`', '[', ']', '(', ')', '{', '}', ',', ';', ':':
				return true
			}
			return r == ' ' || r == '\t'
		})
		if strings.Contains(cleaned, "://") || strings.HasPrefix(cleaned, "-") {
			continue
		}
		if !strings.Contains(cleaned, ".") || strings.HasSuffix(cleaned, ".") {
			continue
		}
		return cleaned, true
	}
	return "", false
}

// LatestNonemptyLine returns the last line with visible content.
func LatestNonemptyLine(input string) (string, bool) {
	lines := strings.Split(input, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if trimmed := strings.TrimSpace(lines[i]); trimmed != "" {
			return trimmed, true
		}
	}
	return "", false
}

// TruncateTail keeps the last maxChars codepoints of input.
func TruncateTail(input string, maxChars int) string {
	runes := []rune(input)
	if len(runes) <= maxChars {
		return input
	}
	return string(runes[len(runes)-maxChars:])
}

// NormalizeTerminalText keeps newlines, carriage returns, and tabs
// verbatim, strips ANSI escape sequences, and drops every other C0/C1
// control character.
func NormalizeTerminalText(input string) string {
	const (
		stateNormal = iota
		stateEscape
		stateEscapeIntermediate
		stateCSI
		stateOSC
	)
	var b strings.Builder
	b.Grow(len(input))
	state := stateNormal
	prevEscInOSC := false
	for _, r := range input {
		switch state {
		case stateNormal:
			switch {
			case r == 0x1b:
				state = stateEscape
			case r == '\n' || r == '\r' || r == '\t':
				b.WriteRune(r)
			case r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f):
				// drop
			default:
				b.WriteRune(r)
			}
		case stateEscape:
			switch {
			case r == '[':
				state = stateCSI
			case r == ']':
				state = stateOSC
				prevEscInOSC = false
			case r >= 0x20 && r <= 0x2f:
				// Intermediate byte, as in the charset reset ESC ( B.
				state = stateEscapeIntermediate
			default:
				// Two-character escape; this is the final byte.
				state = stateNormal
			}
		case stateEscapeIntermediate:
			if r >= 0x30 && r <= 0x7e {
				state = stateNormal
			}
		case stateCSI:
			if r >= 0x40 && r <= 0x7e {
				state = stateNormal
			}
		case stateOSC:
			if r == 0x07 || (prevEscInOSC && r == '\\') {
				state = stateNormal
			}
			prevEscInOSC = r == 0x1b
		}
	}
	return b.String()
}
