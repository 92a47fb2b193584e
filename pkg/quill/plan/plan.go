// Package plan – plan.go defines the operation plan produced by the upstream
// planner: ordered steps, each tagged with a capability and a domain action,
// carrying a typed argument bag for that capability.
package plan

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Capability identifies the domain a step operates on. Each capability shares
// one resolver contract.
type Capability string

const (
	CapabilityCalendar Capability = "calendar"
	CapabilityTasks    Capability = "tasks"
	CapabilityMail     Capability = "mail"
	CapabilityMemory   Capability = "memory"
)

// OperationStep is one unit of work inside a multi-step plan. Immutable once
// planned; Args mutates only by replacement with resolved arguments.
type OperationStep struct {
	// ID uniquely identifies the step inside its plan.
	ID string `json:"id"`

	// Capability selects the domain resolver for this step.
	Capability Capability `json:"capability"`

	// Action is the domain-specific action name (e.g. "delete", "update").
	Action string `json:"action"`

	// Args is the typed argument bag, keyed by Capability.
	Args Arguments `json:"args"`

	// DependsOn lists step IDs that must resolve before this step.
	DependsOn []string `json:"depends_on,omitempty"`
}

// NewStep creates a step with a fresh UUID.
func NewStep(cap Capability, action string, args Arguments) OperationStep {
	return OperationStep{
		ID:         uuid.NewString(),
		Capability: cap,
		Action:     action,
		Args:       args,
	}
}

// ---------- Argument Bags ----------

// Arguments is a tagged union keyed by capability: exactly the pointer
// matching the owning step's capability is set. Extra carries planner
// extension fields that have no typed home.
type Arguments struct {
	Calendar *CalendarArgs `json:"calendar,omitempty"`
	Tasks    *TaskArgs     `json:"tasks,omitempty"`
	Mail     *MailArgs     `json:"mail,omitempty"`
	Memory   *MemoryArgs   `json:"memory,omitempty"`

	// Extra holds provider-specific planner extras. Passed through untouched.
	Extra map[string]any `json:"extra,omitempty"`
}

// Kind returns the capability whose bag is populated, or "" when empty.
func (a Arguments) Kind() Capability {
	switch {
	case a.Calendar != nil:
		return CapabilityCalendar
	case a.Tasks != nil:
		return CapabilityTasks
	case a.Mail != nil:
		return CapabilityMail
	case a.Memory != nil:
		return CapabilityMemory
	}
	return ""
}

// Validate checks that at most one capability bag is set and that it matches
// the given capability.
func (a Arguments) Validate(cap Capability) error {
	set := 0
	if a.Calendar != nil {
		set++
	}
	if a.Tasks != nil {
		set++
	}
	if a.Mail != nil {
		set++
	}
	if a.Memory != nil {
		set++
	}
	if set > 1 {
		return fmt.Errorf("arguments: %d capability bags set, want at most 1", set)
	}
	if set == 1 && a.Kind() != cap {
		return fmt.Errorf("arguments: bag is %q, step capability is %q", a.Kind(), cap)
	}
	return nil
}

// CalendarArgs carries calendar operation arguments.
type CalendarArgs struct {
	// Query is the free-text reference to an existing event.
	Query string `json:"query,omitempty"`

	// EventIDs holds resolved event identifiers. Non-empty means resolved.
	EventIDs []string `json:"event_ids,omitempty"`

	// Title, Location, StartsAt, EndsAt describe the event payload for
	// create/update actions.
	Title    string     `json:"title,omitempty"`
	Location string     `json:"location,omitempty"`
	StartsAt *time.Time `json:"starts_at,omitempty"`
	EndsAt   *time.Time `json:"ends_at,omitempty"`

	// WindowStart/WindowEnd bound time-window actions (delete_window, list).
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// TaskArgs carries task/list operation arguments.
type TaskArgs struct {
	Query   string   `json:"query,omitempty"`
	TaskIDs []string `json:"task_ids,omitempty"`

	// ListName scopes the search to one list when set.
	ListName string `json:"list_name,omitempty"`

	// Title and DueAt describe the task payload for add/update actions.
	Title string     `json:"title,omitempty"`
	DueAt *time.Time `json:"due_at,omitempty"`
	Done  *bool      `json:"done,omitempty"`
}

// MailArgs carries mail operation arguments.
type MailArgs struct {
	Query      string   `json:"query,omitempty"`
	MessageIDs []string `json:"message_ids,omitempty"`

	// Folder scopes the search ("inbox" when empty).
	Folder string `json:"folder,omitempty"`

	// To, Subject, Body describe an outgoing draft for compose actions.
	To      string `json:"to,omitempty"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body,omitempty"`
}

// ConflictDecision records how a memory-write conflict was settled.
type ConflictDecision string

const (
	// ConflictOverride updates the existing entry in place.
	ConflictOverride ConflictDecision = "override"

	// ConflictInsert keeps both: the new entry is written alongside.
	ConflictInsert ConflictDecision = "insert"
)

// MemoryArgs carries semantic-memory operation arguments.
type MemoryArgs struct {
	Query     string   `json:"query,omitempty"`
	MemoryIDs []string `json:"memory_ids,omitempty"`

	// Kind is the memory kind for store actions: note, contact, or fact.
	Kind string `json:"kind,omitempty"`

	// Content is the memory payload for store/update actions.
	Content string `json:"content,omitempty"`

	// Subject is the normalized subject for fact-kind entries.
	Subject string `json:"subject,omitempty"`

	// ConflictDecision is set after conflict disambiguation. TargetID names
	// the entry being overridden; empty for ConflictInsert.
	ConflictDecision ConflictDecision `json:"conflict_decision,omitempty"`
	TargetID         string           `json:"target_id,omitempty"`
}
