// Package commands – chat.go implements the interactive REPL. Each input
// line becomes a one-step plan; ambiguous references are clarified inline, on
// a TTY through a huh select form and otherwise through a plain numeric
// prompt.
package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/chzyer/readline"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/quillhq/quill/pkg/quill/assistant"
	"github.com/quillhq/quill/pkg/quill/plan"
	"github.com/quillhq/quill/pkg/quill/resolve"
)

// newChatCmd creates the `quill chat` REPL command.
func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Interactive assistant session",
		Long: `Starts an interactive session. Commands:

  event add <title> [at 2026-08-28 15:00]
  event update <ref> to <new title>
  event delete <ref>
  task add <title> [on <list>]
  task done <ref>
  task delete <ref>
  task clear-done
  mail archive <ref>
  mail read <ref>
  mail delete <ref>
  remember <note|contact|fact> <content> [about <subject>]
  recall <query>
  forget <ref>
  exit`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			logger := setupLogger(cmd)
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			engine, err := assistant.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()
			if err := engine.StartSweeper(); err != nil {
				logger.Warn("ledger sweeper not started", "error", err)
			}

			userID, _ := cmd.Flags().GetString("user")
			return runREPL(cmd.Context(), engine, userID)
		},
	}
}

// runREPL reads lines until EOF or "exit".
func runREPL(ctx context.Context, engine *assistant.Engine, userID string) error {
	rl, err := readline.New("quill> ")
	if err != nil {
		return fmt.Errorf("init readline: %w", err)
	}
	defer rl.Close()

	fmt.Println("Quill ready. Type a command, or 'exit' to quit.")
	for {
		line, err := rl.Readline()
		if err != nil { // io.EOF or interrupt
			return nil
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		step, err := parseLine(line)
		if err != nil {
			fmt.Println(err)
			continue
		}

		if err := runOneCommand(ctx, engine, rl, userID, []plan.OperationStep{*step}); err != nil {
			fmt.Println("error:", err)
		}
	}
}

// runOneCommand resolves and executes a plan, looping through clarification
// turns until the plan completes or terminally fails.
func runOneCommand(ctx context.Context, engine *assistant.Engine, rl *readline.Instance, userID string, steps []plan.OperationStep) error {
	rc := resolve.Context{UserID: userID, Now: time.Now()}

	var selection *resolve.Selection
	for {
		result, err := engine.Coordinator.RunTurn(ctx, rc, steps, selection)
		if err != nil {
			return err
		}

		if result.Failure != nil {
			printFailure(result.Failure)
			return nil
		}
		if result.Pending != nil {
			sel, err := askSelection(rl, result.Pending, engine.Config.Resolver.AllTokens)
			if err != nil {
				return err
			}
			selection = &sel
			continue
		}

		lines, err := engine.ExecuteTurn(ctx, userID, steps, result)
		if err != nil {
			return err
		}
		for _, l := range lines {
			fmt.Println(l)
		}
		return nil
	}
}

// printFailure explains a terminal resolution failure.
func printFailure(f *resolve.StepFailure) {
	switch f.Kind {
	case resolve.KindClarifyQuery:
		fmt.Println("I need more detail:", f.Reason)
	default:
		if f.SearchedFor != "" {
			fmt.Printf("nothing matched %q: %s\n", f.SearchedFor, f.Reason)
		} else {
			fmt.Println("could not resolve:", f.Reason)
		}
		for i, s := range f.Suggestions {
			fmt.Printf("  maybe %d. %s\n", i+1, s.DisplayText)
		}
	}
}

// askSelection collects the human's choice over the offered candidates.
func askSelection(rl *readline.Instance, p *resolve.PendingClarification, allTokens []string) (resolve.Selection, error) {
	if term.IsTerminal(int(os.Stdin.Fd())) {
		return askSelectionForm(p)
	}
	return askSelectionPlain(rl, p, allTokens)
}

// askSelectionForm renders a huh select/multi-select form.
func askSelectionForm(p *resolve.PendingClarification) (resolve.Selection, error) {
	question := p.Question
	if question == "" {
		question = "which one did you mean?"
	}
	options := make([]huh.Option[int], len(p.Candidates))
	for i, c := range p.Candidates {
		options[i] = huh.NewOption(fmt.Sprintf("%d. %s", i+1, c.DisplayText), i+1)
	}

	if p.AllowMultiple {
		var picks []int
		form := huh.NewForm(huh.NewGroup(
			huh.NewMultiSelect[int]().Title(question).Options(options...).Value(&picks),
		))
		if err := form.Run(); err != nil {
			return resolve.Selection{}, err
		}
		return resolve.Selection{Indices: picks}, nil
	}

	var pick int
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[int]().Title(question).Options(options...).Value(&pick),
	))
	if err := form.Run(); err != nil {
		return resolve.Selection{}, err
	}
	return resolve.Selection{Indices: []int{pick}}, nil
}

// askSelectionPlain prompts for a numeric reply on non-TTY input.
func askSelectionPlain(rl *readline.Instance, p *resolve.PendingClarification, allTokens []string) (resolve.Selection, error) {
	question := p.Question
	if question == "" {
		question = "which one did you mean?"
	}
	fmt.Println(question)
	for i, c := range p.Candidates {
		fmt.Printf("  %d. %s\n", i+1, c.DisplayText)
	}
	if p.AllowMultiple {
		fmt.Println("  (several numbers or 'all' are accepted)")
	}

	for {
		line, err := rl.Readline()
		if err != nil {
			return resolve.Selection{}, err
		}
		sel, err := resolve.ParseSelection(strings.TrimSpace(line), allTokens)
		if errors.Is(err, resolve.ErrInvalidSelection) {
			fmt.Println("please answer with a number from the list")
			continue
		}
		if err != nil {
			return resolve.Selection{}, err
		}
		return sel, nil
	}
}

// ---------- Line Parsing ----------

// parseLine converts one REPL line into a plan step.
func parseLine(line string) (*plan.OperationStep, error) {
	verb, rest, _ := strings.Cut(line, " ")
	switch verb {
	case "event":
		return parseEventLine(rest)
	case "task":
		return parseTaskLine(rest)
	case "mail":
		return parseMailLine(rest)
	case "remember":
		return parseRememberLine(rest)
	case "recall":
		if rest == "" {
			return nil, fmt.Errorf("usage: recall <query>")
		}
		step := plan.NewStep(plan.CapabilityMemory, "retrieve", plan.Arguments{Memory: &plan.MemoryArgs{Query: rest}})
		return &step, nil
	case "forget":
		if rest == "" {
			return nil, fmt.Errorf("usage: forget <ref>")
		}
		step := plan.NewStep(plan.CapabilityMemory, "delete", plan.Arguments{Memory: &plan.MemoryArgs{Query: rest}})
		return &step, nil
	}
	return nil, fmt.Errorf("unknown command %q (try 'event', 'task', 'mail', 'remember', 'recall', 'forget')", verb)
}

func parseEventLine(rest string) (*plan.OperationStep, error) {
	action, text, _ := strings.Cut(rest, " ")
	switch action {
	case "add":
		title, when := splitKeyword(text, " at ")
		args := &plan.CalendarArgs{Title: title}
		if when != "" {
			t, err := parseWhen(when)
			if err != nil {
				return nil, err
			}
			args.StartsAt = &t
		}
		step := plan.NewStep(plan.CapabilityCalendar, "create", plan.Arguments{Calendar: args})
		return &step, nil
	case "update":
		ref, newTitle := splitKeyword(text, " to ")
		if ref == "" {
			return nil, fmt.Errorf("usage: event update <ref> to <new title>")
		}
		step := plan.NewStep(plan.CapabilityCalendar, "update",
			plan.Arguments{Calendar: &plan.CalendarArgs{Query: ref, Title: newTitle}})
		return &step, nil
	case "delete":
		step := plan.NewStep(plan.CapabilityCalendar, "delete",
			plan.Arguments{Calendar: &plan.CalendarArgs{Query: text}})
		return &step, nil
	}
	return nil, fmt.Errorf("usage: event add|update|delete ...")
}

func parseTaskLine(rest string) (*plan.OperationStep, error) {
	action, text, _ := strings.Cut(rest, " ")
	switch action {
	case "add":
		title, list := splitKeyword(text, " on ")
		step := plan.NewStep(plan.CapabilityTasks, "add",
			plan.Arguments{Tasks: &plan.TaskArgs{Title: title, ListName: list}})
		return &step, nil
	case "done":
		step := plan.NewStep(plan.CapabilityTasks, "complete",
			plan.Arguments{Tasks: &plan.TaskArgs{Query: text}})
		return &step, nil
	case "delete":
		step := plan.NewStep(plan.CapabilityTasks, "delete",
			plan.Arguments{Tasks: &plan.TaskArgs{Query: text}})
		return &step, nil
	case "clear-done":
		step := plan.NewStep(plan.CapabilityTasks, "clear_completed",
			plan.Arguments{Tasks: &plan.TaskArgs{}})
		return &step, nil
	}
	return nil, fmt.Errorf("usage: task add|done|delete|clear-done ...")
}

func parseMailLine(rest string) (*plan.OperationStep, error) {
	action, text, _ := strings.Cut(rest, " ")
	actions := map[string]string{"archive": "archive", "read": "mark_read", "delete": "delete"}
	mapped, ok := actions[action]
	if !ok {
		return nil, fmt.Errorf("usage: mail archive|read|delete <ref>")
	}
	step := plan.NewStep(plan.CapabilityMail, mapped,
		plan.Arguments{Mail: &plan.MailArgs{Query: text}})
	return &step, nil
}

func parseRememberLine(rest string) (*plan.OperationStep, error) {
	kind, text, _ := strings.Cut(rest, " ")
	if kind != "note" && kind != "contact" && kind != "fact" {
		// Bare form defaults to a note.
		kind, text = "note", rest
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("usage: remember [note|contact|fact] <content> [about <subject>]")
	}
	content, subject := splitKeyword(text, " about ")
	step := plan.NewStep(plan.CapabilityMemory, "store",
		plan.Arguments{Memory: &plan.MemoryArgs{Kind: kind, Content: content, Subject: subject}})
	return &step, nil
}

// splitKeyword cuts text at the last occurrence of sep, trimming both sides.
func splitKeyword(text, sep string) (string, string) {
	idx := strings.LastIndex(text, sep)
	if idx < 0 {
		return strings.TrimSpace(text), ""
	}
	return strings.TrimSpace(text[:idx]), strings.TrimSpace(text[idx+len(sep):])
}

// parseWhen accepts "2006-01-02 15:04" or "15:04" (today).
func parseWhen(s string) (time.Time, error) {
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", s, time.Local); err == nil {
		now := time.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), t.Hour(), t.Minute(), 0, 0, time.Local), nil
	}
	return time.Time{}, fmt.Errorf("could not parse time %q (use '2006-01-02 15:04' or '15:04')", s)
}
