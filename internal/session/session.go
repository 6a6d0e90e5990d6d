// Package session drives one cleaning operation through its checklist.
//
// The machine owns the validate/correct/accept loop for photo-gated steps
// and the gap-split heuristic, and persists the full operation after every
// transition. Transitions are synchronous: the photo upload and the AI
// validation are awaited in order, and both degrade rather than block, so
// the only error a caller sees from a transition is total persistence
// unavailability or a misuse of the contract (wrong state, unknown room).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/reluceapp/reluce/internal/checklist"
	"github.com/reluceapp/reluce/internal/model"
	"github.com/reluceapp/reluce/internal/policy"
	"github.com/reluceapp/reluce/internal/vision"
)

// State is the machine's position within one operation.
type State string

const (
	StateSelecting    State = "selecting"
	StateStepActive   State = "step_active"
	StatePhotoPending State = "photo_pending"
	StateCorrection   State = "correction"
	StateCompleted    State = "completed"
)

// maxValidationAttempts caps the validate/correct loop. The second failing
// verdict is force-accepted.
const maxValidationAttempts = 2

// Upserter is the persistence contract the machine writes through.
type Upserter interface {
	Upsert(ctx context.Context, op model.Operation) (model.Operation, error)
}

// PhotoStore is the evidence storage boundary.
type PhotoStore interface {
	Store(ctx context.Context, data []byte, filename, subpath string) (key, url string, err error)
}

// Transition reports the outcome of one machine call.
type Transition struct {
	State     State
	Step      checklist.Step // the step the call acted on
	Verdict   *model.ValidationVerdict
	Operation model.Operation // operation as persisted after the call
	Split     bool            // a gap-split replaced the operation
}

// Handle is one active operation's mutable session state. A handle is
// owned by a single caller; the machine never shares handles.
type Handle struct {
	op       model.Operation
	def      checklist.Definition
	defIndex int // index into def.Steps of the step being worked
	state    State
	attempts int // validation attempts on the current step

	// pending evidence from a failed first attempt, resolved by
	// ConfirmCorrection or IgnoreCorrection.
	pendingPhoto   *string
	pendingVerdict *model.ValidationVerdict
}

// State returns the handle's current state.
func (h *Handle) State() State { return h.state }

// Operation returns a copy of the operation as last persisted.
func (h *Handle) Operation() model.Operation { return h.op }

// CurrentStep returns the checklist step being worked. The second return is
// false once the operation is completed.
func (h *Handle) CurrentStep() (checklist.Step, bool) {
	if h.state == StateCompleted || h.defIndex >= len(h.def.Steps) {
		return checklist.Step{}, false
	}
	return h.def.Steps[h.defIndex], true
}

// PendingVerdict returns the failing verdict awaiting correction, if any.
func (h *Handle) PendingVerdict() *model.ValidationVerdict {
	return h.pendingVerdict
}

// Snapshot is a serializable copy of a handle, used by client drivers that
// resume a session across process restarts.
type Snapshot struct {
	Operation      model.Operation          `json:"operation"`
	DefIndex       int                      `json:"defIndex"`
	State          State                    `json:"state"`
	Attempts       int                      `json:"attempts"`
	PendingPhoto   *string                  `json:"pendingPhoto,omitempty"`
	PendingVerdict *model.ValidationVerdict `json:"pendingVerdict,omitempty"`
}

// Snapshot captures the handle's state for later Restore.
func (h *Handle) Snapshot() Snapshot {
	return Snapshot{
		Operation:      h.op,
		DefIndex:       h.defIndex,
		State:          h.state,
		Attempts:       h.attempts,
		PendingPhoto:   h.pendingPhoto,
		PendingVerdict: h.pendingVerdict,
	}
}

// Machine coordinates session handles against the persistence, photo
// storage, and validation collaborators. One machine serves one client
// visit: operations it starts share a session id.
type Machine struct {
	gateway   Upserter
	photos    PhotoStore
	validator vision.Validator
	logger    *slog.Logger
	sessionID string
	now       func() time.Time
}

// New creates a Machine with a fresh session id.
func New(gateway Upserter, photos PhotoStore, validator vision.Validator, logger *slog.Logger) *Machine {
	return &Machine{
		gateway:   gateway,
		photos:    photos,
		validator: validator,
		logger:    logger,
		sessionID: uuid.NewString(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// StartOperation begins a new operation for a room. It fails only when the
// room type has no checklist definition.
func (m *Machine) StartOperation(ctx context.Context, roomType, roomName string) (*Handle, error) {
	def, err := checklist.ForRoomType(roomType)
	if err != nil {
		return nil, err
	}

	now := m.now()
	sid := m.sessionID
	h := &Handle{
		op: model.Operation{
			ID:        uuid.NewString(),
			Room:      roomName,
			RoomType:  roomType,
			StartTime: now,
			SessionID: &sid,
			Steps:     []model.StepRecord{{ID: def.Steps[0].ID, StartTime: now}},
		},
		def:   def,
		state: StateStepActive,
	}

	if err := m.persist(ctx, h); err != nil {
		return nil, err
	}
	return h, nil
}

// Restore rebuilds a handle from a snapshot. It fails when the snapshot's
// room type no longer has a checklist definition.
func (m *Machine) Restore(s Snapshot) (*Handle, error) {
	def, err := checklist.ForRoomType(s.Operation.RoomType)
	if err != nil {
		return nil, err
	}
	if s.DefIndex < 0 || s.DefIndex > len(def.Steps) {
		return nil, fmt.Errorf("session: snapshot step index %d out of range", s.DefIndex)
	}
	return &Handle{
		op:             s.Operation,
		def:            def,
		defIndex:       s.DefIndex,
		state:          s.State,
		attempts:       s.Attempts,
		pendingPhoto:   s.PendingPhoto,
		pendingVerdict: s.PendingVerdict,
	}, nil
}

// CompleteStep advances past the current step. For a photo-gated step the
// caller must supply evidence; without it the handle blocks in
// StatePhotoPending until the call is repeated with evidence. A failing
// first validation enters StateCorrection instead of completing the step.
func (m *Machine) CompleteStep(ctx context.Context, h *Handle, evidence []byte, filename string) (Transition, error) {
	switch h.state {
	case StateCompleted:
		return Transition{}, fmt.Errorf("session: operation %s already completed", h.op.ID)
	case StateCorrection:
		return Transition{}, fmt.Errorf("session: operation %s awaits a correction decision", h.op.ID)
	}

	now := m.now()
	split, err := m.maybeSplit(ctx, h, now)
	if err != nil {
		return Transition{}, err
	}

	step := h.def.Steps[h.defIndex]

	if !step.PhotoRequired() {
		return m.recordAndAdvance(ctx, h, step, nil, nil, split)
	}

	if len(evidence) == 0 {
		h.state = StatePhotoPending
		if err := m.persist(ctx, h); err != nil {
			return Transition{}, err
		}
		return Transition{State: h.state, Step: step, Operation: h.op, Split: split}, nil
	}

	return m.validateAndRecord(ctx, h, step, evidence, filename, split)
}

// Skip completes the current step with no evidence. It never substitutes
// for a required photo on the active step.
func (m *Machine) Skip(ctx context.Context, h *Handle) (Transition, error) {
	if step, ok := h.CurrentStep(); ok && step.PhotoRequired() {
		return Transition{}, fmt.Errorf("session: step %d requires a photo and cannot be skipped", step.ID)
	}
	return m.CompleteStep(ctx, h, nil, "")
}

// ConfirmCorrection resubmits new evidence for a step in StateCorrection.
// The new photo re-enters the validate flow as the second attempt; whatever
// its verdict, the step completes (pass, or forced accept).
func (m *Machine) ConfirmCorrection(ctx context.Context, h *Handle, evidence []byte, filename string) (Transition, error) {
	if h.state != StateCorrection {
		return Transition{}, fmt.Errorf("session: operation %s has no pending correction", h.op.ID)
	}
	if len(evidence) == 0 {
		return Transition{}, fmt.Errorf("session: correction requires new evidence")
	}

	step := h.def.Steps[h.defIndex]
	h.state = StateStepActive
	h.pendingPhoto = nil
	h.pendingVerdict = nil

	tr, err := m.validateAndRecord(ctx, h, step, evidence, filename, false)
	if err != nil {
		return tr, err
	}
	markCorrected(&h.op)
	if err := m.persist(ctx, h); err != nil {
		return Transition{}, err
	}
	tr.Operation = h.op
	return tr, nil
}

// IgnoreCorrection accepts the failing verdict as-is: the step completes
// with the original photo and verdict, flagged ignored.
func (m *Machine) IgnoreCorrection(ctx context.Context, h *Handle) (Transition, error) {
	if h.state != StateCorrection {
		return Transition{}, fmt.Errorf("session: operation %s has no pending correction", h.op.ID)
	}

	step := h.def.Steps[h.defIndex]
	photo := h.pendingPhoto
	verdict := h.pendingVerdict
	h.state = StateStepActive
	h.pendingPhoto = nil
	h.pendingVerdict = nil

	tr, err := m.recordAndAdvance(ctx, h, step, photo, verdict, false)
	if err != nil {
		return tr, err
	}
	markIgnored(&h.op)
	if err := m.persist(ctx, h); err != nil {
		return Transition{}, err
	}
	tr.Operation = h.op
	return tr, nil
}

// validateAndRecord runs the upload-then-validate pipeline for a photo-gated
// step and applies the attempt policy.
func (m *Machine) validateAndRecord(ctx context.Context, h *Handle, step checklist.Step, evidence []byte, filename string, split bool) (Transition, error) {
	outcome := m.uploadThenValidate(ctx, h.op, step, evidence, filename)
	h.attempts++

	if outcome.Verdict.Valid || h.attempts >= maxValidationAttempts {
		forced := !outcome.Verdict.Valid
		tr, err := m.recordAndAdvance(ctx, h, step, &outcome.PhotoRef, &outcome.Verdict, split)
		if err != nil {
			return tr, err
		}
		if forced {
			m.logger.Warn("session: step force-accepted after retry cap",
				"operation", h.op.ID, "step", step.ID)
			markFailed(&h.op)
			if err := m.persist(ctx, h); err != nil {
				return Transition{}, err
			}
			tr.Operation = h.op
		}
		return tr, nil
	}

	// First failing attempt: hold the evidence and wait for the cleaner.
	h.state = StateCorrection
	h.pendingPhoto = &outcome.PhotoRef
	h.pendingVerdict = &outcome.Verdict
	if err := m.persist(ctx, h); err != nil {
		return Transition{}, err
	}
	return Transition{State: h.state, Step: step, Verdict: &outcome.Verdict, Operation: h.op, Split: split}, nil
}

// StepOutcome is the result of the upload-then-validate pipeline.
type StepOutcome struct {
	PhotoRef string
	Verdict  model.ValidationVerdict
	Degraded bool // upload failed; verdict is the flagged pass
}

// uploadThenValidate stores evidence and validates it against the step's
// expectation. An upload failure is recorded as a local-only reference and
// skips validation with a flagged-pass verdict; it never aborts the step.
func (m *Machine) uploadThenValidate(ctx context.Context, op model.Operation, step checklist.Step, evidence []byte, filename string) StepOutcome {
	subpath := op.ID
	if op.SessionID != nil {
		subpath = *op.SessionID
	}

	_, url, err := m.photos.Store(ctx, evidence, filename, subpath)
	if err != nil {
		m.logger.Error("session: photo upload failed, keeping local reference",
			"operation", op.ID, "step", step.ID, "error", err)
		return StepOutcome{
			PhotoRef: "local://" + filename,
			Verdict:  vision.DegradedVerdict(step.Expectation),
			Degraded: true,
		}
	}

	verdict := m.validator.Validate(ctx, evidence, step.Title, step.Expectation)
	return StepOutcome{PhotoRef: url, Verdict: verdict}
}

// recordAndAdvance completes the current step record and moves to the next
// step, or closes the operation after the final one.
func (m *Machine) recordAndAdvance(ctx context.Context, h *Handle, step checklist.Step, photo *string, verdict *model.ValidationVerdict, split bool) (Transition, error) {
	now := m.now()

	rec := &h.op.Steps[len(h.op.Steps)-1]
	rec.CompletedTime = &now
	elapsed := int64(now.Sub(rec.StartTime).Seconds())
	rec.ElapsedSeconds = &elapsed
	rec.Photo = photo
	rec.Verdict = verdict
	if step.PhotoCategory != "" {
		cat := step.PhotoCategory
		rec.PhotoCategory = &cat
	}

	h.defIndex++
	h.attempts = 0

	if h.defIndex < len(h.def.Steps) {
		next := h.def.Steps[h.defIndex]
		h.op.Steps = append(h.op.Steps, model.StepRecord{ID: next.ID, StartTime: now})
		h.state = StateStepActive
	} else {
		end := now
		h.op.EndTime = &end
		h.op.Complete = true
		h.state = StateCompleted
	}

	if err := m.persist(ctx, h); err != nil {
		return Transition{}, err
	}
	return Transition{State: h.state, Step: step, Verdict: verdict, Operation: h.op, Split: split}, nil
}

// maybeSplit applies the gap-split heuristic before recording elapsed time.
// When the idle time since the current step started exceeds the threshold,
// the operation so far is persisted open with the split reason and a fresh
// operation takes over, starting at the interrupted checklist step.
func (m *Machine) maybeSplit(ctx context.Context, h *Handle, now time.Time) (bool, error) {
	if len(h.op.Steps) == 0 {
		return false, nil
	}
	current := h.op.Steps[len(h.op.Steps)-1]
	if !policy.ShouldSplit(now, current.StartTime, h.defIndex) {
		return false, nil
	}

	reason := policy.GapSplitReason
	stale := h.op
	stale.Steps = stale.Steps[:len(stale.Steps)-1] // unfinished step moves to the new operation
	stale.Reason = &reason
	if _, err := m.gateway.Upsert(ctx, stale); err != nil {
		return false, fmt.Errorf("session: persist split operation: %w", err)
	}

	m.logger.Info("session: gap split",
		"stale_operation", stale.ID, "room", stale.Room, "idle_since", current.StartTime)

	step := h.def.Steps[h.defIndex]
	sid := h.op.SessionID
	h.op = model.Operation{
		ID:        uuid.NewString(),
		Room:      stale.Room,
		RoomType:  stale.RoomType,
		StartTime: now,
		SessionID: sid,
		Steps:     []model.StepRecord{{ID: step.ID, StartTime: now}},
	}
	h.attempts = 0
	h.state = StateStepActive

	if err := m.persist(ctx, h); err != nil {
		return false, err
	}
	return true, nil
}

// persist writes the handle's operation through the gateway and refreshes
// the local copy with the stored record. Only total persistence
// unavailability surfaces as an error.
func (m *Machine) persist(ctx context.Context, h *Handle) error {
	stored, err := m.gateway.Upsert(ctx, h.op)
	if err != nil {
		return fmt.Errorf("session: persist operation %s: %w", h.op.ID, err)
	}
	h.op = stored
	return nil
}

func markCorrected(op *model.Operation) {
	if last := lastDone(op); last != nil {
		last.Corrected = true
	}
}

func markIgnored(op *model.Operation) {
	if last := lastDone(op); last != nil {
		last.Ignored = true
	}
}

func markFailed(op *model.Operation) {
	if last := lastDone(op); last != nil {
		last.Failed = true
	}
}

func lastDone(op *model.Operation) *model.StepRecord {
	for i := len(op.Steps) - 1; i >= 0; i-- {
		if op.Steps[i].Done() {
			return &op.Steps[i]
		}
	}
	return nil
}
