package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/reluceapp/reluce/internal/session"
)

// loadSnapshot reads the saved session state. A missing file means no
// session is in progress.
func loadSnapshot() (session.Snapshot, bool, error) {
	raw, err := os.ReadFile(statePath)
	if os.IsNotExist(err) {
		return session.Snapshot{}, false, nil
	}
	if err != nil {
		return session.Snapshot{}, false, fmt.Errorf("cli: read state file: %w", err)
	}

	var snap session.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return session.Snapshot{}, false, fmt.Errorf("cli: parse state file %s: %w", statePath, err)
	}
	return snap, true, nil
}

func saveSnapshot(snap session.Snapshot) error {
	raw, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("cli: encode state: %w", err)
	}
	if err := os.WriteFile(statePath, raw, 0o600); err != nil {
		return fmt.Errorf("cli: write state file: %w", err)
	}
	return nil
}

func clearState() error {
	if err := os.Remove(statePath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("cli: remove state file: %w", err)
	}
	return nil
}

// resumeHandle restores the in-progress session or fails with a hint.
func resumeHandle() (*session.Machine, *session.Handle, error) {
	snap, ok, err := loadSnapshot()
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("no session in progress; run 'relucectl start' first")
	}

	m, _ := newMachine()
	h, err := m.Restore(snap)
	if err != nil {
		return nil, nil, err
	}
	return m, h, nil
}
