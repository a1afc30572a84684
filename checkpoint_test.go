package converse

import (
	"context"
	"testing"
)

func TestMemoryCheckpointer_SaveLoad(t *testing.T) {
	c := NewMemoryCheckpointer()
	ctx := context.Background()

	if _, ok, err := c.Load(ctx, "missing"); err != nil || ok {
		t.Fatalf("got ok=%v err=%v, want no checkpoint", ok, err)
	}

	state := TurnState{UserPrompt: "hi", FinalResult: "hello"}
	if err := c.Save(ctx, "t1", state); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, ok, err := c.Load(ctx, "t1")
	if err != nil || !ok {
		t.Fatalf("got ok=%v err=%v", ok, err)
	}
	if got.FinalResult != "hello" {
		t.Errorf("got %q", got.FinalResult)
	}
}

func TestMemoryCheckpointer_SaveReplaces(t *testing.T) {
	c := NewMemoryCheckpointer()
	ctx := context.Background()

	_ = c.Save(ctx, "t1", TurnState{FinalResult: "first"})
	_ = c.Save(ctx, "t1", TurnState{FinalResult: "second"})

	got, ok, _ := c.Load(ctx, "t1")
	if !ok || got.FinalResult != "second" {
		t.Errorf("got ok=%v state=%+v, want latest state", ok, got)
	}
}

func TestMemoryCheckpointer_ThreadsIsolated(t *testing.T) {
	c := NewMemoryCheckpointer()
	ctx := context.Background()

	_ = c.Save(ctx, "a", TurnState{FinalResult: "for a"})

	if _, ok, _ := c.Load(ctx, "b"); ok {
		t.Error("thread b must not see thread a's state")
	}
}
