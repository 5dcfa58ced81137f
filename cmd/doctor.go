package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/plugin"
)

var DoctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Print effective paths and hook state",
	Run:   runDoctorCmd,
}

var doctorFixFlag bool

func init() {
	DoctorCmd.Flags().BoolVar(&doctorFixFlag, "fix", false, "reinstall hooks into Claude settings")
}

func runDoctorCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.IsConfigured() {
		fmt.Fprintln(os.Stderr, "Not configured. Run `codelatch init` first.")
		os.Exit(1)
	}

	fmt.Printf("Config: %s\n", config.ConfigPath())
	fmt.Printf("Socket: %s\n", cfg.SocketPath)
	fmt.Printf("DB: %s\n", cfg.DBPath)
	fmt.Printf("PID: %s\n", config.PidPath())

	installed, err := plugin.HooksInstalled()
	if doctorFixFlag && (err != nil || !installed) {
		binaryPath, exeErr := os.Executable()
		if exeErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to resolve executable: %v\n", exeErr)
			os.Exit(1)
		}
		if err := plugin.InstallHooks(binaryPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to install hooks: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Hooks reinstalled.")
		installed, err = plugin.HooksInstalled()
	}
	state := "no"
	if err == nil && installed {
		state = "yes"
	}
	fmt.Printf("Hooks installed: %s\n", state)
	fmt.Println("Run `codelatch status` for live daemon/socket checks.")
}
