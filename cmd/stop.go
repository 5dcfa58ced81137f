package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
)

var StopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the codelatch daemon",
	Run:   runStopCmd,
}

func runStopCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	pidPath := config.PidPath()

	if pid, ok := readPid(pidPath); ok {
		if err := syscall.Kill(pid, syscall.SIGINT); err != nil {
			syscall.Kill(pid, syscall.SIGTERM) //nolint:errcheck
		}
	}

	for i := 0; i < 50; i++ {
		if !socketReachable(cfg.SocketPath) {
			break
		}
		time.Sleep(100 * time.Millisecond)
	}

	// The daemon removes these on clean shutdown; sweep up after a
	// hard kill.
	if _, err := os.Stat(cfg.SocketPath); err == nil {
		os.Remove(cfg.SocketPath) //nolint:errcheck
	}
	if _, err := os.Stat(pidPath); err == nil {
		os.Remove(pidPath) //nolint:errcheck
	}

	if socketReachable(cfg.SocketPath) {
		fmt.Fprintln(os.Stderr, "Daemon is still answering on the socket.")
		os.Exit(1)
	}
	fmt.Println("Daemon stopped.")
}

func readPid(path string) (int, bool) {
	text, err := os.ReadFile(path)
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(text)))
	if err != nil {
		return 0, false
	}
	return pid, true
}
