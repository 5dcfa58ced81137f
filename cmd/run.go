package cmd

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/logger"
)

var RunCmd = &cobra.Command{
	Use:   "run [-- claude args...]",
	Short: "Launch Claude Code in a supervised tmux session",
	Run:   runRunCmd,
}

var runNoAttachFlag bool

func init() {
	RunCmd.Flags().BoolVar(&runNoAttachFlag, "no-attach", false, "do not attach to the tmux session")
}

func runRunCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.IsConfigured() {
		fmt.Println("First run detected. Starting guided setup...")
		runInitCmd(cmd, nil)
		cfg, err = config.Load()
		if err != nil || !cfg.IsConfigured() {
			fmt.Fprintln(os.Stderr, "Not configured. Run `codelatch init` first.")
			os.Exit(1)
		}
	}

	if !tmuxAvailable() {
		fmt.Fprintln(os.Stderr, "tmux is required but not available.")
		os.Exit(1)
	}
	if err := ensureDaemonRunning(cfg.SocketPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start daemon: %v\n", err)
		os.Exit(1)
	}

	sessionID := newID()
	cwd, err := os.Getwd()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve working directory: %v\n", err)
		os.Exit(1)
	}
	repoName := filepath.Base(cwd)
	if repoName == "." || repoName == string(filepath.Separator) || repoName == "" {
		repoName = "project"
	}
	sessionName := fmt.Sprintf("%s-%s", repoName, idSuffix(sessionID, 6))
	tmuxSession := fmt.Sprintf("codelatch:%s:%s", sessionName, sessionID)

	if err := exec.Command("tmux", "new-session", "-d", "-s", tmuxSession, "-c", cwd).Run(); err != nil {
		fmt.Fprintln(os.Stderr, "Unable to create tmux session.")
		os.Exit(1)
	}

	launch := fmt.Sprintf("CODELATCH_SESSION_ID=%s CODELATCH_SESSION_NAME=%s CODELATCH_SOCKET=%s %s",
		shellQuote(sessionID),
		shellQuote(sessionName),
		shellQuote(cfg.SocketPath),
		buildClaudeCommand(args),
	)
	if err := exec.Command("tmux", "send-keys", "-t", tmuxSession, launch, "C-m").Run(); err != nil {
		fmt.Fprintln(os.Stderr, "Unable to inject Claude launch command.")
		os.Exit(1)
	}

	logger.Info(fmt.Sprintf("started managed session %s (%s)", sessionName, sessionID))
	fmt.Printf("Started managed session: %s\n", sessionName)
	fmt.Printf("tmux session: %s\n", tmuxSession)

	if !runNoAttachFlag {
		attach := exec.Command("tmux", "attach", "-t", tmuxSession)
		attach.Stdin = os.Stdin
		attach.Stdout = os.Stdout
		attach.Stderr = os.Stderr
		if err := attach.Run(); err != nil {
			fmt.Fprintln(os.Stderr, "Unable to attach to tmux session.")
			os.Exit(1)
		}
	}
}

func tmuxAvailable() bool {
	return exec.Command("tmux", "-V").Run() == nil
}

// ensureDaemonRunning dials the socket and, when nobody answers,
// spawns a background daemon and waits up to five seconds for it to
// bind.
func ensureDaemonRunning(socketPath string) error {
	if socketReachable(socketPath) {
		return nil
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("resolve executable: %w", err)
	}
	child := exec.Command(exe, "start", "--background")
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	if err := child.Start(); err != nil {
		return fmt.Errorf("spawn daemon: %w", err)
	}
	go child.Wait() //nolint:errcheck

	for i := 0; i < 50; i++ {
		if socketReachable(socketPath) {
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not become ready in time")
}

func socketReachable(socketPath string) bool {
	conn, err := net.DialTimeout("unix", socketPath, time.Second)
	if err != nil {
		return false
	}
	conn.Close() //nolint:errcheck
	return true
}

func buildClaudeCommand(claudeArgs []string) string {
	if len(claudeArgs) == 0 {
		return "claude"
	}
	parts := []string{"claude"}
	for _, arg := range claudeArgs {
		parts = append(parts, shellQuote(arg))
	}
	return strings.Join(parts, " ")
}

// shellQuote single-quotes a value for tmux send-keys, escaping
// embedded single quotes the POSIX way.
func shellQuote(value string) string {
	if value == "" {
		return "''"
	}
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// idSuffix keeps the last n characters of an id for readable names.
func idSuffix(id string, n int) string {
	runes := []rune(id)
	if len(runes) <= n {
		return id
	}
	return string(runes[len(runes)-n:])
}
