package cmd

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/daemon"
	"github.com/codelatch/codelatch/internal/logger"
)

var StartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the codelatch daemon",
	Run:   runStartCmd,
}

var (
	startForegroundFlag bool
	startBackgroundFlag bool
)

func init() {
	StartCmd.Flags().BoolVar(&startForegroundFlag, "foreground", false, "run the daemon in the foreground")
	StartCmd.Flags().BoolVar(&startBackgroundFlag, "background", false, "detach and run in the background")
}

func runStartCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.IsConfigured() {
		fmt.Fprintln(os.Stderr, "Not configured. Run `codelatch init` first.")
		os.Exit(1)
	}

	if startForegroundFlag {
		logger.Init(config.LogPath(), logger.IsDebugMode())
		logger.Info("starting codelatch daemon (foreground)")
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		if err := daemon.Run(ctx, cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Daemon failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if socketReachable(cfg.SocketPath) {
		fmt.Println("Daemon already running.")
		return
	}

	exe, err := os.Executable()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to resolve executable: %v\n", err)
		os.Exit(1)
	}
	child := exec.Command(exe, "start", "--foreground")
	child.Stdin = nil
	child.Stdout = nil
	child.Stderr = nil
	if err := child.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to spawn daemon: %v\n", err)
		os.Exit(1)
	}
	go child.Wait() //nolint:errcheck

	for i := 0; i < 50; i++ {
		if socketReachable(cfg.SocketPath) {
			fmt.Println("Daemon started.")
			return
		}
		time.Sleep(100 * time.Millisecond)
	}
	fmt.Fprintln(os.Stderr, "Daemon did not become ready in time.")
	os.Exit(1)
}
