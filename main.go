package main

import (
	"fmt"
	"os"

	"github.com/codelatch/codelatch/cmd"
	"github.com/codelatch/codelatch/internal/logger"
	"github.com/spf13/cobra"
)

func main() {
	var debugFlag bool
	rootCmd := &cobra.Command{
		Use:   "codelatch",
		Short: "Telegram supervision broker for Claude Code",
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			logger.SetDebugMode(debugFlag)
		},
		Run: cmd.RunCmd.Run,
	}
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.AddCommand(cmd.RunCmd)
	rootCmd.AddCommand(cmd.InitCmd)
	rootCmd.AddCommand(cmd.StartCmd)
	rootCmd.AddCommand(cmd.StopCmd)
	rootCmd.AddCommand(cmd.StatusCmd)
	rootCmd.AddCommand(cmd.DoctorCmd)
	rootCmd.AddCommand(cmd.SessionsCmd)
	rootCmd.AddCommand(cmd.HookCmd)
	rootCmd.AddCommand(cmd.ServiceCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
