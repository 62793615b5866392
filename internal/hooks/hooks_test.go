package hooks

import (
	"context"
	"errors"
	"testing"
)

func TestNewHookManager(t *testing.T) {
	hm := NewHookManager()
	if hm == nil {
		t.Fatal("NewHookManager returned nil")
	}
}

func TestExecute_NoHandlers(t *testing.T) {
	hm := NewHookManager()
	if err := hm.Execute(context.Background(), HookRunStart, Event{RunID: "r"}); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
}

func TestRegisterHandler(t *testing.T) {
	hm := NewHookManager()

	var got []Event
	hm.RegisterHandler(HookAttemptFailed, func(ctx context.Context, ev Event) error {
		got = append(got, ev)
		return nil
	})

	ev := Event{RunID: "r", Attempt: 2, Issues: []string{"referee must be PASS"}}
	if err := hm.Execute(context.Background(), HookAttemptFailed, ev); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if err := hm.Execute(context.Background(), HookRunEnd, ev); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected 1 call, got %d", len(got))
	}
	if got[0].Attempt != 2 || got[0].Issues[0] != "referee must be PASS" {
		t.Errorf("unexpected event: %+v", got[0])
	}
}

func TestExecute_OrderAndFirstError(t *testing.T) {
	hm := NewHookManager()
	boom := errors.New("boom")

	var order []int
	hm.RegisterHandler(HookRunEnd, func(ctx context.Context, ev Event) error {
		order = append(order, 1)
		return nil
	})
	hm.RegisterHandler(HookRunEnd, func(ctx context.Context, ev Event) error {
		order = append(order, 2)
		return boom
	})
	hm.RegisterHandler(HookRunEnd, func(ctx context.Context, ev Event) error {
		order = append(order, 3)
		return nil
	})

	err := hm.Execute(context.Background(), HookRunEnd, Event{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected wrapped boom, got %v", err)
	}
	if err.Error() != "hook run_end failed: boom" {
		t.Errorf("unexpected message: %q", err.Error())
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("unexpected call order: %v", order)
	}
}
