package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/reluceapp/reluce/internal/checklist"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/session"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
)

var startCmd = &cobra.Command{
	Use:   "start [room-type] [room-name]",
	Short: "Start a new cleaning operation for a room",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, ok, err := loadSnapshot(); err != nil {
			return err
		} else if ok {
			return fmt.Errorf("a session is already in progress; finish it or remove %s", statePath)
		}

		m, _ := newMachine()
		h, err := m.StartOperation(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}
		if err := saveSnapshot(h.Snapshot()); err != nil {
			return err
		}

		op := h.Operation()
		fmt.Printf("✓ Started %s (%s), operation %s\n", op.Room, op.RoomType, op.ID)
		printCurrentStep(h)
		return nil
	},
}

var stepPhoto string

var stepCmd = &cobra.Command{
	Use:   "step",
	Short: "Complete the current checklist step",
	Long:  "Completes the current step. Photo-gated steps need --photo with evidence.",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, h, err := resumeHandle()
		if err != nil {
			return err
		}

		evidence, filename, err := readPhoto(stepPhoto)
		if err != nil {
			return err
		}

		tr, err := m.CompleteStep(cmd.Context(), h, evidence, filename)
		if err != nil {
			return err
		}
		return finishTransition(h, tr)
	},
}

var confirmPhoto string

var confirmCmd = &cobra.Command{
	Use:   "confirm",
	Short: "Resubmit a corrected photo for the failed step",
	RunE: func(cmd *cobra.Command, args []string) error {
		if confirmPhoto == "" {
			return fmt.Errorf("--photo is required to resubmit evidence")
		}

		m, h, err := resumeHandle()
		if err != nil {
			return err
		}

		evidence, filename, err := readPhoto(confirmPhoto)
		if err != nil {
			return err
		}

		tr, err := m.ConfirmCorrection(cmd.Context(), h, evidence, filename)
		if err != nil {
			return err
		}
		return finishTransition(h, tr)
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore",
	Short: "Accept the failing verdict and move on",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, h, err := resumeHandle()
		if err != nil {
			return err
		}

		tr, err := m.IgnoreCorrection(cmd.Context(), h)
		if err != nil {
			return err
		}
		yellow.Println("! Step accepted with a failing verdict")
		return finishTransition(h, tr)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the in-progress session",
	RunE: func(cmd *cobra.Command, args []string) error {
		snap, ok, err := loadSnapshot()
		if err != nil {
			return err
		}
		if !ok {
			fmt.Println("No session in progress")
			return nil
		}

		op := snap.Operation
		def, err := checklist.ForRoomType(op.RoomType)
		if err != nil {
			return err
		}

		fmt.Printf("\nOperation %s — %s (%s)\n", op.ID, op.Room, op.RoomType)
		fmt.Printf("State: %s\n\n", snap.State)
		for i, step := range def.Steps {
			marker := " "
			switch {
			case i < snap.DefIndex:
				marker = green.Sprint("✓")
			case i == snap.DefIndex:
				marker = yellow.Sprint("→")
			}
			gate := ""
			if step.PhotoRequired() {
				gate = " [foto]"
			}
			fmt.Printf("  %s %d. %s%s\n", marker, step.ID, step.Title, gate)
		}
		if snap.PendingVerdict != nil {
			fmt.Println()
			printVerdict(*snap.PendingVerdict)
			fmt.Println("Resolve with 'relucectl confirm --photo <file>' or 'relucectl ignore'")
		}
		fmt.Println()
		return nil
	},
}

func init() {
	stepCmd.Flags().StringVar(&stepPhoto, "photo", "", "photo evidence file")
	confirmCmd.Flags().StringVar(&confirmPhoto, "photo", "", "corrected photo evidence file")
}

func readPhoto(path string) ([]byte, string, error) {
	if path == "" {
		return nil, "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, "", fmt.Errorf("cli: read photo %s: %w", path, err)
	}
	return data, filepath.Base(path), nil
}

// finishTransition reports the outcome and saves or clears local state.
func finishTransition(h *session.Handle, tr session.Transition) error {
	if tr.Split {
		yellow.Println("! Long pause detected; progress so far was filed and a fresh operation started")
	}
	if tr.Verdict != nil {
		printVerdict(*tr.Verdict)
	}

	switch tr.State {
	case session.StateCompleted:
		if err := clearState(); err != nil {
			return err
		}
		green.Printf("✓ Room complete: %s\n", tr.Operation.Room)
		return nil
	case session.StatePhotoPending:
		yellow.Printf("! Step %d (%s) needs a photo; re-run with --photo <file>\n", tr.Step.ID, tr.Step.Title)
	case session.StateCorrection:
		red.Println("✗ Validation failed — fix the issue and 'relucectl confirm --photo <file>', or 'relucectl ignore'")
	default:
		green.Printf("✓ Step %d done: %s\n", tr.Step.ID, tr.Step.Title)
		printCurrentStep(h)
	}

	return saveSnapshot(h.Snapshot())
}

func printCurrentStep(h *session.Handle) {
	if step, ok := h.CurrentStep(); ok {
		gate := ""
		if step.PhotoRequired() {
			gate = yellow.Sprint(" [foto]")
		}
		fmt.Printf("→ Next: %d. %s%s\n", step.ID, step.Title, gate)
	}
}

func printVerdict(v model.ValidationVerdict) {
	if v.Valid {
		green.Printf("✓ %s\n", v.Found)
		return
	}
	red.Printf("✗ Esperado: %s\n", v.Expected)
	red.Printf("  Encontrado: %s\n", v.Found)
}
