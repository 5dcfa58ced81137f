package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/chat"
	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/plugin"
)

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Check hook, daemon, tmux, and Telegram health",
	Run:   runStatusCmd,
}

func runStatusCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.IsConfigured() {
		fmt.Fprintln(os.Stderr, "Not configured. Run `codelatch init` first.")
		os.Exit(1)
	}

	ready := true
	fmt.Println("Status:")

	hooksOK, err := plugin.HooksInstalled()
	if err == nil && hooksOK {
		fmt.Println("✅ Hooks installed")
	} else {
		ready = false
		fmt.Println("⚠️ Hooks not installed")
	}

	if socketReachable(cfg.SocketPath) {
		fmt.Println("✅ Daemon socket reachable")
	} else {
		ready = false
		fmt.Printf("⚠️ Daemon socket unreachable (%s)\n", cfg.SocketPath)
	}

	pidPath := config.PidPath()
	if text, err := os.ReadFile(pidPath); err == nil {
		fmt.Printf("✅ PID file present (%s)\n", strings.TrimSpace(string(text)))
	} else {
		ready = false
		fmt.Printf("⚠️ PID file missing (%s)\n", pidPath)
	}

	if tmuxAvailable() {
		fmt.Println("✅ tmux available")
	} else {
		ready = false
		fmt.Println("⚠️ tmux not available")
	}

	if username, err := chat.GetBotUsername(cfg.TelegramBotToken); err == nil {
		fmt.Printf("✅ Telegram auth ok (@%s)\n", username)
	} else {
		ready = false
		fmt.Println("⚠️ Telegram auth failed")
	}

	if ready {
		fmt.Println("✅ Ready")
	} else {
		fmt.Println("⚠️ Not ready (run `codelatch doctor --fix`)")
	}
}
