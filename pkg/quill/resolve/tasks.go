// Package resolve – tasks.go implements the task/list domain resolver.
package resolve

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/quillhq/quill/pkg/quill/plan"
	"github.com/quillhq/quill/pkg/quill/tasks"
)

// Task actions that reference an existing task; "add" creates and
// short-circuits.
var taskEntityActions = map[string]bool{
	"update":          true,
	"complete":        true,
	"delete":          true,
	"get":             true,
	"clear_completed": true,
}

// taskBulkActions may act on several tasks at once.
var taskBulkActions = map[string]bool{
	"clear_completed": true,
}

// TaskSource lists a user's tasks. Implemented by *tasks.Store.
type TaskSource interface {
	List(ctx context.Context, userID, listName string) ([]tasks.Task, error)
	ListCompleted(ctx context.Context, userID, listName string) ([]tasks.Task, error)
}

// TaskResolver resolves free-text task references against a TaskSource.
type TaskResolver struct {
	tasks  TaskSource
	cfg    Config
	logger *slog.Logger
}

// NewTaskResolver creates the tasks resolver.
func NewTaskResolver(source TaskSource, cfg Config, logger *slog.Logger) *TaskResolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &TaskResolver{tasks: source, cfg: cfg.normalized(), logger: logger}
}

// Capability returns the tasks capability tag.
func (r *TaskResolver) Capability() plan.Capability { return plan.CapabilityTasks }

// Resolve implements the uniform resolution algorithm for task steps.
func (r *TaskResolver) Resolve(ctx context.Context, rc Context, action string, args plan.Arguments) (Outcome, error) {
	ta := args.Tasks
	if ta == nil {
		return Outcome{}, fmt.Errorf("tasks resolver: missing task arguments for action %q", action)
	}
	if !taskEntityActions[action] {
		return Resolved(args), nil
	}
	if len(ta.TaskIDs) > 0 {
		return Resolved(args, ta.TaskIDs...), nil
	}

	query := ta.Query
	if query == "" {
		query = ta.Title
	}
	if query == "" && action != "clear_completed" {
		return ClarifyQuery("which task? no reference text was given", nil), nil
	}

	list, err := r.listTasks(ctx, rc, action, ta)
	if err != nil {
		r.logger.Warn("task lookup failed", "user", rc.UserID, "error", err)
		list = nil
	}

	// clear_completed with no narrowing query acts on every completed task.
	if action == "clear_completed" && query == "" {
		if len(list) == 0 {
			return NotFound("completed tasks", "no completed tasks to clear", nil), nil
		}
		ids := make([]string, len(list))
		for i, t := range list {
			ids[i] = t.ID
		}
		return finishTasks(args, ids), nil
	}

	ids := make([]string, len(list))
	texts := make([]string, len(list))
	entities := make([]any, len(list))
	for i, t := range list {
		ids[i] = t.ID
		texts[i] = formatTask(t)
		entities[i] = t
	}

	ranked := rankEntities(query, ids, texts, entities)
	return decide(r.cfg, query, ranked, ids, texts,
		taskBulkActions[action], "which task did you mean?",
		func(chosen []string) Outcome { return finishTasks(args, chosen) }), nil
}

// ApplySelection routes a parsed choice back into resolved task arguments.
func (r *TaskResolver) ApplySelection(_ context.Context, _ Context, sel Selection, p *PendingClarification) (Outcome, error) {
	return applyIndexSelection(sel, p, func(chosen []string) Outcome {
		return finishTasks(p.OriginalArgs, chosen)
	}), nil
}

// listTasks narrows the candidate pool by action and list scope.
func (r *TaskResolver) listTasks(ctx context.Context, rc Context, action string, ta *plan.TaskArgs) ([]tasks.Task, error) {
	if action == "clear_completed" {
		return r.tasks.ListCompleted(ctx, rc.UserID, ta.ListName)
	}
	return r.tasks.List(ctx, rc.UserID, ta.ListName)
}

// finishTasks writes the chosen task ids into a copy of the arguments.
func finishTasks(args plan.Arguments, ids []string) Outcome {
	ta := *args.Tasks
	ta.TaskIDs = ids
	args.Tasks = &ta
	return Resolved(args, ids...)
}

// formatTask renders a task for candidate display.
func formatTask(t tasks.Task) string {
	s := t.Title
	if t.ListName != "" {
		s += " [" + t.ListName + "]"
	}
	if t.Done {
		s += " (done)"
	}
	return s
}
