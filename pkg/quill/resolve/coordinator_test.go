// Package resolve – coordinator_test.go exercises the turn coordinator:
// dispatch order, the single-outstanding-clarification rule, resume, and the
// per-user turn lock.
package resolve

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/quillhq/quill/pkg/quill/plan"
)

// fakeLedger is an in-memory Ledger for coordinator tests.
type fakeLedger struct {
	mu  sync.Mutex
	rec map[string]*PendingClarification
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{rec: make(map[string]*PendingClarification)}
}

func (l *fakeLedger) Put(_ context.Context, p *PendingClarification) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.rec[p.UserID] = p
	return nil
}

func (l *fakeLedger) Get(_ context.Context, userID string) (*PendingClarification, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.rec[userID]
	if !ok {
		return nil, ErrNoPending
	}
	return p, nil
}

func (l *fakeLedger) Clear(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rec, userID)
	return nil
}

// scriptedResolver returns a canned outcome per Resolve call and records the
// actions it saw.
type scriptedResolver struct {
	cap     plan.Capability
	outcome func(action string, args plan.Arguments) (Outcome, error)

	mu    sync.Mutex
	calls []string
}

func (r *scriptedResolver) Capability() plan.Capability { return r.cap }

func (r *scriptedResolver) Resolve(_ context.Context, _ Context, action string, args plan.Arguments) (Outcome, error) {
	r.mu.Lock()
	r.calls = append(r.calls, action)
	r.mu.Unlock()
	return r.outcome(action, args)
}

func (r *scriptedResolver) ApplySelection(_ context.Context, _ Context, sel Selection, p *PendingClarification) (Outcome, error) {
	return applyIndexSelection(sel, p, func(ids []string) Outcome {
		return Resolved(p.OriginalArgs, ids...)
	}), nil
}

func (r *scriptedResolver) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func alwaysResolved(action string, args plan.Arguments) (Outcome, error) {
	return Resolved(args), nil
}

func twoCandidates() []Candidate {
	return []Candidate{
		{ID: "t1", DisplayText: "Buy milk"},
		{ID: "t2", DisplayText: "Buy milk for the cake"},
	}
}

func taskStep(id, action, query string) plan.OperationStep {
	return plan.OperationStep{
		ID:         id,
		Capability: plan.CapabilityTasks,
		Action:     action,
		Args:       plan.Arguments{Tasks: &plan.TaskArgs{Query: query}},
	}
}

func TestRunTurnResolvesEveryStep(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{cap: plan.CapabilityTasks, outcome: alwaysResolved}
	ledger := newFakeLedger()
	c := NewCoordinator(DefaultConfig(), ledger, nil, tasks)

	steps := []plan.OperationStep{taskStep("s1", "complete", "milk"), taskStep("s2", "delete", "eggs")}
	result, err := c.RunTurn(context.Background(), testContext(), steps, nil)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if !result.Complete() {
		t.Fatalf("turn not complete: pending=%v failure=%v", result.Pending, result.Failure)
	}
	if len(result.Resolved) != 2 {
		t.Errorf("got %d resolved steps, want 2", len(result.Resolved))
	}
	if _, err := ledger.Get(context.Background(), "u1"); !errors.Is(err, ErrNoPending) {
		t.Error("a fully resolved turn must leave no pending clarification")
	}
}

func TestRunTurnRejectsMismatchedArgumentBag(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{cap: plan.CapabilityTasks, outcome: alwaysResolved}
	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil, tasks)

	steps := []plan.OperationStep{{
		ID:         "s1",
		Capability: plan.CapabilityTasks,
		Action:     "delete",
		Args:       plan.Arguments{Calendar: &plan.CalendarArgs{Query: "dentist"}},
	}}
	result, err := c.RunTurn(context.Background(), testContext(), steps, nil)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.Failure == nil {
		t.Fatal("expected a failure for a calendar bag on a tasks step")
	}
	if result.Failure.StepID != "s1" {
		t.Errorf("got failed step %q, want s1", result.Failure.StepID)
	}
	if tasks.callCount() != 0 {
		t.Errorf("resolver was called %d time(s) with mismatched arguments, want 0", tasks.callCount())
	}
}

func TestRunTurnParksOnFirstAmbiguity(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{
		cap: plan.CapabilityTasks,
		outcome: func(action string, args plan.Arguments) (Outcome, error) {
			if action == "delete" {
				return Disambiguate(twoCandidates(), false, "which task?"), nil
			}
			return Resolved(args), nil
		},
	}
	ledger := newFakeLedger()
	c := NewCoordinator(DefaultConfig(), ledger, nil, tasks)

	steps := []plan.OperationStep{
		taskStep("s1", "complete", "eggs"),
		taskStep("s2", "delete", "milk"),
		taskStep("s3", "complete", "bread"),
	}
	result, err := c.RunTurn(context.Background(), testContext(), steps, nil)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.Pending == nil {
		t.Fatal("expected a pending clarification")
	}
	if result.Pending.OriginStepID != "s2" {
		t.Errorf("got origin step %q, want s2", result.Pending.OriginStepID)
	}
	if tasks.callCount() != 2 {
		t.Errorf("steps after the interrupt must not dispatch: got %d calls, want 2", tasks.callCount())
	}
	if _, ok := result.Pending.ResolvedSoFar["s1"]; !ok {
		t.Error("work resolved before the interrupt must ride along in the pending record")
	}
	stored, err := ledger.Get(context.Background(), "u1")
	if err != nil {
		t.Fatalf("pending clarification not persisted: %v", err)
	}
	if stored.OriginStepID != "s2" {
		t.Errorf("persisted origin step %q, want s2", stored.OriginStepID)
	}
}

func TestRunTurnResumeAppliesSelectionAndContinues(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{cap: plan.CapabilityTasks, outcome: alwaysResolved}
	ledger := newFakeLedger()
	c := NewCoordinator(DefaultConfig(), ledger, nil, tasks)

	rc := testContext()
	prior := plan.Arguments{Tasks: &plan.TaskArgs{Query: "eggs", TaskIDs: []string{"t9"}}}
	_ = ledger.Put(context.Background(), &PendingClarification{
		UserID:        rc.UserID,
		Domain:        plan.CapabilityTasks,
		Candidates:    twoCandidates(),
		OriginStepID:  "s2",
		OriginAction:  "delete",
		OriginalArgs:  plan.Arguments{Tasks: &plan.TaskArgs{Query: "milk"}},
		ResolvedSoFar: map[string]plan.Arguments{"s1": prior},
		CreatedAt:     rc.Now,
	})

	steps := []plan.OperationStep{
		taskStep("s1", "complete", "eggs"),
		taskStep("s2", "delete", "milk"),
		taskStep("s3", "complete", "bread"),
	}
	sel := Selection{Indices: []int{2}}
	result, err := c.RunTurn(context.Background(), rc, steps, &sel)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if !result.Complete() {
		t.Fatalf("turn not complete: pending=%v failure=%v", result.Pending, result.Failure)
	}
	if got := result.ResolvedIDs["s2"]; len(got) != 1 || got[0] != "t2" {
		t.Errorf("selection applied to wrong candidate: got %v, want [t2]", got)
	}
	if got := result.Resolved["s1"]; got.Tasks == nil || len(got.Tasks.TaskIDs) != 1 || got.Tasks.TaskIDs[0] != "t9" {
		t.Error("work resolved before the interrupt must not be redone on resume")
	}
	// Only s3 should dispatch fresh: s1 was restored, s2 came from the reply.
	if tasks.callCount() != 1 {
		t.Errorf("got %d resolver calls, want 1", tasks.callCount())
	}
	if _, err := ledger.Get(context.Background(), rc.UserID); !errors.Is(err, ErrNoPending) {
		t.Error("answered clarification must be cleared from the ledger")
	}
}

func TestRunTurnInvalidSelectionReArmsPending(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{cap: plan.CapabilityTasks, outcome: alwaysResolved}
	ledger := newFakeLedger()
	c := NewCoordinator(DefaultConfig(), ledger, nil, tasks)

	rc := testContext()
	_ = ledger.Put(context.Background(), &PendingClarification{
		UserID:       rc.UserID,
		Domain:       plan.CapabilityTasks,
		Candidates:   twoCandidates(),
		OriginStepID: "s2",
		OriginalArgs: plan.Arguments{Tasks: &plan.TaskArgs{Query: "milk"}},
		CreatedAt:    rc.Now,
	})

	sel := Selection{Indices: []int{5}}
	result, err := c.RunTurn(context.Background(), rc, []plan.OperationStep{taskStep("s2", "delete", "milk")}, &sel)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.Pending == nil || result.Pending.OriginStepID != "s2" {
		t.Fatal("invalid selection must re-arm the same clarification")
	}
	if tasks.callCount() != 0 {
		t.Errorf("no fresh dispatch on a re-armed turn: got %d calls", tasks.callCount())
	}
	if _, err := ledger.Get(context.Background(), rc.UserID); err != nil {
		t.Error("re-armed clarification must stay in the ledger")
	}
}

func TestRunTurnSelectionWithoutPendingFails(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil,
		&scriptedResolver{cap: plan.CapabilityTasks, outcome: alwaysResolved})

	sel := Selection{Indices: []int{1}}
	_, err := c.RunTurn(context.Background(), testContext(), nil, &sel)
	if !errors.Is(err, ErrNoPending) {
		t.Errorf("got %v, want ErrNoPending: a reply to a vanished question must fail cleanly", err)
	}
}

func TestRunTurnPassesThroughUnknownCapability(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil,
		&scriptedResolver{cap: plan.CapabilityTasks, outcome: alwaysResolved})

	step := plan.OperationStep{
		ID:         "s1",
		Capability: plan.CapabilityMail,
		Action:     "send",
		Args:       plan.Arguments{Mail: &plan.MailArgs{To: "ana@example.com"}},
	}
	result, err := c.RunTurn(context.Background(), testContext(), []plan.OperationStep{step}, nil)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if got := result.Resolved["s1"]; got.Mail == nil || got.Mail.To != "ana@example.com" {
		t.Error("capability without a resolver must pass its arguments through unchanged")
	}
}

func TestRunTurnFailureStopsDispatch(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{
		cap: plan.CapabilityTasks,
		outcome: func(action string, args plan.Arguments) (Outcome, error) {
			if action == "delete" {
				return NotFound(args.Tasks.Query, "no task matched the reference", nil), nil
			}
			return Resolved(args), nil
		},
	}
	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil, tasks)

	steps := []plan.OperationStep{taskStep("s1", "delete", "milk"), taskStep("s2", "complete", "eggs")}
	result, err := c.RunTurn(context.Background(), testContext(), steps, nil)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.Failure == nil || result.Failure.StepID != "s1" {
		t.Fatalf("got failure %+v, want one for s1", result.Failure)
	}
	if result.Failure.Kind != KindNotFound {
		t.Errorf("got failure kind %q, want not_found", result.Failure.Kind)
	}
	if tasks.callCount() != 1 {
		t.Errorf("steps after a terminal failure must not dispatch: got %d calls", tasks.callCount())
	}
}

func TestRunTurnResolverErrorBecomesFailure(t *testing.T) {
	t.Parallel()

	tasks := &scriptedResolver{
		cap: plan.CapabilityTasks,
		outcome: func(string, plan.Arguments) (Outcome, error) {
			return Outcome{}, errors.New("store offline")
		},
	}
	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil, tasks)

	result, err := c.RunTurn(context.Background(), testContext(), []plan.OperationStep{taskStep("s1", "delete", "milk")}, nil)
	if err != nil {
		t.Fatalf("run turn: %v", err)
	}
	if result.Failure == nil || result.Failure.StepID != "s1" {
		t.Fatalf("got failure %+v, want one for s1", result.Failure)
	}
}

func TestRunTurnRejectsEmptyUser(t *testing.T) {
	t.Parallel()

	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil)
	if _, err := c.RunTurn(context.Background(), Context{}, nil, nil); err == nil {
		t.Error("expected an error for an empty user id")
	}
}

// blockingResolver parks inside Resolve until released, so a second turn can
// be attempted while the first is in flight.
type blockingResolver struct {
	cap     plan.Capability
	entered chan struct{}
	release chan struct{}
}

func (r *blockingResolver) Capability() plan.Capability { return r.cap }

func (r *blockingResolver) Resolve(_ context.Context, _ Context, _ string, args plan.Arguments) (Outcome, error) {
	close(r.entered)
	<-r.release
	return Resolved(args), nil
}

func (r *blockingResolver) ApplySelection(_ context.Context, _ Context, _ Selection, _ *PendingClarification) (Outcome, error) {
	return Outcome{}, errors.New("not used")
}

func TestRunTurnRejectsConcurrentTurnForSameUser(t *testing.T) {
	t.Parallel()

	blocking := &blockingResolver{
		cap:     plan.CapabilityTasks,
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	c := NewCoordinator(DefaultConfig(), newFakeLedger(), nil, blocking)

	done := make(chan error, 1)
	go func() {
		_, err := c.RunTurn(context.Background(), testContext(), []plan.OperationStep{taskStep("s1", "complete", "milk")}, nil)
		done <- err
	}()

	<-blocking.entered
	if _, err := c.RunTurn(context.Background(), testContext(), nil, nil); !errors.Is(err, ErrTurnInProgress) {
		t.Errorf("got %v, want ErrTurnInProgress", err)
	}
	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("first turn: %v", err)
	}

	// The lock releases with the turn; a later turn for the same user runs.
	if _, err := c.RunTurn(context.Background(), testContext(), nil, nil); err != nil {
		t.Errorf("turn after release: %v", err)
	}
}
