package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/codelatch/codelatch/internal/chat"
	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/logger"
	"github.com/codelatch/codelatch/internal/plugin"
)

var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Guided setup: pair the Telegram bot and install hooks",
	Run:   runInitCmd,
}

func runInitCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Existing config unreadable, starting fresh: %v\n", err)
		cfg = config.Default()
	}

	token, err := readToken()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read token: %v\n", err)
		os.Exit(1)
	}

	username, err := chat.GetBotUsername(token)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Telegram auth failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Bot verified: @%s\n", username)
	fmt.Printf("Send /start to @%s now. Waiting up to 120 seconds...\n", username)

	chatID, err := chat.WaitForStartChat(context.Background(), token, 120*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Pairing failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Paired chat_id: %d\n", chatID)

	cfg.TelegramBotToken = token
	cfg.TelegramChatID = chatID
	if err := config.Save(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to save config: %v\n", err)
		os.Exit(1)
	}

	binaryPath, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve executable: %v\n", err)
		os.Exit(1)
	}
	if err := plugin.InstallHooks(binaryPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to install hooks: %v\n", err)
		os.Exit(1)
	}
	if err := plugin.WritePluginArtifacts(binaryPath); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write plugin artifacts: %v\n", err)
		os.Exit(1)
	}

	daemonReady := ensureDaemonRunning(cfg.SocketPath) == nil

	logger.Info("init completed")
	fmt.Println("Paired ✅")
	fmt.Println("Hooks installed ✅")
	if daemonReady {
		fmt.Println("Daemon running ✅")
	} else {
		fmt.Println("Daemon not running yet (run `codelatch start`) ⚠️")
	}
	fmt.Printf("Config saved at %s\n", config.ConfigPath())
}

// readToken hides the token on a real terminal; piped input falls
// back to a plain line read.
func readToken() (string, error) {
	fmt.Print("Telegram bot token (from BotFather): ")
	if term.IsTerminal(int(os.Stdin.Fd())) {
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(string(raw)), nil
	}
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
