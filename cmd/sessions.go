package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codelatch/codelatch/internal/config"
	"github.com/codelatch/codelatch/internal/store"
)

var SessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List tracked Claude sessions",
	Run:   runSessionsCmd,
}

func runSessionsCmd(cmd *cobra.Command, args []string) {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if !cfg.IsConfigured() {
		fmt.Fprintln(os.Stderr, "Not configured. Run `codelatch init` first.")
		os.Exit(1)
	}

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open database: %v\n", err)
		os.Exit(1)
	}
	defer st.Close() //nolint:errcheck

	sessions, err := st.ListSessions(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to list sessions: %v\n", err)
		os.Exit(1)
	}
	if len(sessions) == 0 {
		fmt.Println("No tracked sessions yet.")
		return
	}
	for _, session := range sessions {
		fmt.Printf("%s (%s) | %s | pane=%s | last_seen=%s\n",
			session.Name, session.SessionID, session.CWD, session.TmuxPane, session.LastSeenAt)
	}
}
