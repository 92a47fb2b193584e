// Package assistant – execute_test.go exercises step execution against real
// temp-dir stores.
package assistant

import (
	"context"
	"testing"

	"github.com/quillhq/quill/pkg/quill/memory"
	"github.com/quillhq/quill/pkg/quill/plan"
)

func openTestEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Embedding.Provider = "none"
	e, err := Open(cfg, nil)
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExecuteMemoryGetFetchesResolvedIDs(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)
	ctx := context.Background()

	kept := &memory.Memory{UserID: "u1", Kind: memory.KindNote, Content: "gym on Tuesdays"}
	other := &memory.Memory{UserID: "u1", Kind: memory.KindNote, Content: "gym membership renews in March"}
	for _, m := range []*memory.Memory{kept, other} {
		if err := e.Memory.Save(ctx, m); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	// The query would rank both entries; the resolved id pins exactly one.
	line, err := e.executeMemory(ctx, "u1", "get", &plan.MemoryArgs{
		Query:     "gym",
		MemoryIDs: []string{kept.ID},
	})
	if err != nil {
		t.Fatalf("execute get: %v", err)
	}
	if line != "gym on Tuesdays" {
		t.Errorf("got %q, want the entry the resolved id names", line)
	}
}

func TestExecuteMemoryRetrieveSearches(t *testing.T) {
	t.Parallel()

	e := openTestEngine(t)
	ctx := context.Background()

	if err := e.Memory.Save(ctx, &memory.Memory{
		UserID: "u1", Kind: memory.KindNote, Content: "ana's birthday is in May",
	}); err != nil {
		t.Fatalf("save: %v", err)
	}

	line, err := e.executeMemory(ctx, "u1", "retrieve", &plan.MemoryArgs{Query: "ana birthday"})
	if err != nil {
		t.Fatalf("execute retrieve: %v", err)
	}
	if line != "ana's birthday is in May" {
		t.Errorf("got %q, want the stored note", line)
	}
}
