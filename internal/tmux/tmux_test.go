package tmux

import (
	"fmt"
	"strings"
	"testing"
)

func TestNormalizeStripsColorSequences(t *testing.T) {
	if got := NormalizeTerminalText("\x1b[31merror\x1b[0m"); got != "error" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeStripsCursorAndEraseSequences(t *testing.T) {
	if got := NormalizeTerminalText("line\x1b[2K\x1b[1Aafter"); got != "lineafter" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizePreservesNewlinesTabsAndCR(t *testing.T) {
	input := "a\tb\nc\rd"
	if got := NormalizeTerminalText(input); got != input {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeRemovesOtherControlCharacters(t *testing.T) {
	if got := NormalizeTerminalText("a\x07b\x00c"); got != "abc" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeStripsOSCTitleSequence(t *testing.T) {
	if got := NormalizeTerminalText("\x1b]0;window title\x07prompt$"); got != "prompt$" {
		t.Errorf("got %q", got)
	}
}

func TestNormalizeConsumesCharsetDesignationEscapes(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"\x1b(Btext", "text"},
		{"\x1b(0lqqqk\x1b(B done", "lqqqk done"},
		{"\x1b#8grid", "grid"},
		{"\x1bMup", "up"},
	}
	for _, tc := range tests {
		if got := NormalizeTerminalText(tc.input); got != tc.want {
			t.Errorf("NormalizeTerminalText(%q) = %q, want %q", tc.input, got, tc.want)
		}
	}
}

func TestNormalizeOutputHasNoControlsBesidesWhitespace(t *testing.T) {
	input := "mix\x1b[1;32med \x1b(Btext\x0bwith\tstuff\nkept\r"
	got := NormalizeTerminalText(input)
	for _, r := range got {
		if r == '\n' || r == '\r' || r == '\t' {
			continue
		}
		if r < 0x20 || r == 0x7f || (r >= 0x80 && r <= 0x9f) {
			t.Fatalf("control character %q survived in %q", r, got)
		}
	}
	if !strings.Contains(got, "ed text") || !strings.Contains(got, "kept") {
		t.Errorf("visible text lost: %q", got)
	}
}

func TestResolveRunningCommandDescendsToNonShellLeaf(t *testing.T) {
	ps := strings.Join([]string{
		"  100     1 tmux",
		"  200   100 -zsh",
		"  300   200 /usr/local/bin/claude",
		"  400   300 /bin/bash -c cargo build",
		"  500   400 cargo build",
	}, "\n")
	if got := resolveRunningCommand(200, "zsh", ps); got != "cargo build" {
		t.Errorf("got %q", got)
	}
}

func TestResolveRunningCommandPicksHighestNumberedChild(t *testing.T) {
	ps := strings.Join([]string{
		"  200   100 -zsh",
		"  310   200 vim notes.txt",
		"  305   200 tail -f app.log",
	}, "\n")
	// 310 > 305, so vim wins.
	if got := resolveRunningCommand(200, "zsh", ps); got != "vim notes.txt" {
		t.Errorf("got %q", got)
	}
}

func TestResolveRunningCommandAllShellsMeansIdle(t *testing.T) {
	ps := strings.Join([]string{
		"  200   100 -zsh",
		"  300   200 /bin/sh",
	}, "\n")
	if got := resolveRunningCommand(200, "zsh", ps); got != "idle" {
		t.Errorf("got %q", got)
	}
}

func TestResolveRunningCommandNoChildren(t *testing.T) {
	ps := "  200   100 -zsh"
	if got := resolveRunningCommand(200, "zsh", ps); got != "idle" {
		t.Errorf("got %q", got)
	}
	// A non-shell pane command with no children stands on its own.
	ps = "  200   100 htop"
	if got := resolveRunningCommand(200, "htop", ps); got != "htop" {
		t.Errorf("got %q", got)
	}
}

func TestResolveRunningCommandBoundsTreeDepth(t *testing.T) {
	lines := []string{"  1000   999 -zsh"}
	pid := 1000
	for i := 0; i < 40; i++ {
		child := pid + 1
		lines = append(lines, fmt.Sprintf("  %d %d /bin/sh -c step", child, pid))
		pid = child
	}
	got := resolveRunningCommand(1000, "zsh", strings.Join(lines, "\n"))
	if got != "idle" {
		t.Errorf("got %q", got)
	}
}

func TestLooksLikeShell(t *testing.T) {
	tests := []struct {
		command string
		want    bool
	}{
		{"-zsh", true},
		{"/bin/bash", true},
		{"bash -c make", true},
		{"fish", true},
		{"tmux attach", true},
		{"login -pf user", true},
		{"vim main.go", false},
		{"cargo build", false},
		{"bashful", false},
		{"", false},
	}
	for _, tc := range tests {
		if got := looksLikeShell(tc.command); got != tc.want {
			t.Errorf("looksLikeShell(%q) = %v, want %v", tc.command, got, tc.want)
		}
	}
}

func TestFirstPathToken(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
		ok    bool
	}{
		{"editor with file", "vim src/main.go", "src/main.go", true},
		{"reverse order wins", "cp a.txt b.txt", "b.txt", true},
		{"skips urls", "curl https://example.com/x.tar.gz", "", false},
		{"skips flags", "ls -la.b", "", false},
		{"requires dot", "cd /tmp/work", "", false},
		{"rejects trailing dot", "end of sentence file.", "", false},
		{"strips punctuation", "error in (src/lib.rs):", "src/lib.rs", true},
		{"quoted path", "editing \"notes.md\"", "notes.md", true},
		{"empty", "", "", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := firstPathToken(tc.input)
			if ok != tc.ok || got != tc.want {
				t.Errorf("firstPathToken(%q) = %q, %v; want %q, %v", tc.input, got, ok, tc.want, tc.ok)
			}
		})
	}
}

func TestDetectCurrentFilePrefersRunningCommand(t *testing.T) {
	got, ok := DetectCurrentFile("vim cmd/root.go", "earlier mention of other.txt")
	if !ok || got != "cmd/root.go" {
		t.Errorf("got %q, %v", got, ok)
	}
}

func TestDetectCurrentFileFallsBackToContextBottomUp(t *testing.T) {
	context := "opened first.go\nnow editing second.go\njust text"
	got, ok := DetectCurrentFile("idle", context)
	if !ok || got != "second.go" {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := DetectCurrentFile("idle", "nothing pathlike here"); ok {
		t.Error("expected no match")
	}
}

func TestLatestNonemptyLine(t *testing.T) {
	got, ok := LatestNonemptyLine("first\nsecond\n   \n\n")
	if !ok || got != "second" {
		t.Errorf("got %q, %v", got, ok)
	}
	if _, ok := LatestNonemptyLine("  \n\t\n"); ok {
		t.Error("expected no line")
	}
}

func TestTruncateTailKeepsSuffix(t *testing.T) {
	if got := TruncateTail("abcdef", 3); got != "def" {
		t.Errorf("got %q", got)
	}
	if got := TruncateTail("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	// Codepoints, not bytes.
	if got := TruncateTail("ааааб", 1); got != "б" {
		t.Errorf("got %q", got)
	}
}
