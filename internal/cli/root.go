// Package cli implements relucectl, the client-side session driver.
//
// The driver runs the checklist session machine locally against remote
// collaborators: persistence, photo storage, and validation all go through
// the Reluce HTTP API. Session state between invocations lives in a local
// state file, mirroring how the mobile client keeps its in-progress
// operation on device.
package cli

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/reluceapp/reluce/internal/session"
)

var (
	serverURL string
	statePath string
)

var rootCmd = &cobra.Command{
	Use:   "relucectl",
	Short: "Drive a cleaning checklist session against a Reluce server",
	Long: `relucectl walks a cleaner through a room's checklist step by step,
uploading photo evidence where required and resolving AI validation
verdicts, with all progress persisted to the Reluce server.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Reluce server base URL")
	rootCmd.PersistentFlags().StringVar(&statePath, "state", defaultStatePath(), "session state file")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stepCmd)
	rootCmd.AddCommand(confirmCmd)
	rootCmd.AddCommand(ignoreCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(listCmd)
}

func defaultStatePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".relucectl.json"
	}
	return filepath.Join(home, ".relucectl.json")
}

// newMachine wires a session machine to the remote collaborators.
func newMachine() (*session.Machine, *remoteGateway) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := newAPIClient(serverURL)
	gw := &remoteGateway{api: api}
	return session.New(gw, &remotePhotos{api: api}, &remoteValidator{api: api, logger: logger}, logger), gw
}
