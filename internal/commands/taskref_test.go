package commands

import (
	"errors"
	"testing"

	"tasktrack/internal/task"
)

func TestParseTaskRef_Number(t *testing.T) {
	ref, err := ParseTaskRef([]string{"5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Num != 5 {
		t.Errorf("expected Num 5, got %d", ref.Num)
	}
	if ref.Prefix != "" {
		t.Errorf("expected no Prefix, got %q", ref.Prefix)
	}
}

func TestParseTaskRef_Prefix(t *testing.T) {
	ref, err := ParseTaskRef([]string{"3f2a"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Prefix != "3f2a" {
		t.Errorf("expected Prefix 3f2a, got %q", ref.Prefix)
	}
	if ref.Num != 0 {
		t.Errorf("expected Num 0, got %d", ref.Num)
	}
}

func TestParseTaskRef_TrimsSpace(t *testing.T) {
	ref, err := ParseTaskRef([]string{" 12 "})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ref.Num != 12 {
		t.Errorf("expected Num 12, got %d", ref.Num)
	}
}

func TestParseTaskRef_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		msg  string
	}{
		{"no args", nil, "task reference required"},
		{"blank", []string{"   "}, "task reference required"},
		{"zero", []string{"0"}, "task number out of range: 0"},
		{"leading zeros", []string{"000"}, "task number out of range: 0"},
		{"two args", []string{"a", "3"}, "unexpected argument: 3"},
		{"too large", []string{"99999999999999999999"}, "invalid task reference: 99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseTaskRef(tt.args)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.msg {
				t.Errorf("expected %q, got %q", tt.msg, err.Error())
			}
		})
	}
}

func TestParseTaskRef_RequiredIsSentinel(t *testing.T) {
	_, err := ParseTaskRef(nil)
	if !errors.Is(err, ErrTaskRefRequired) {
		t.Errorf("expected ErrTaskRefRequired, got %v", err)
	}
}

func refTasks() []task.Task {
	return []task.Task{
		{ID: "abc111", Title: "one"},
		{ID: "abd222", Title: "two"},
		{ID: "ab", Title: "three"},
	}
}

func TestResolve_Position(t *testing.T) {
	got, err := TaskRef{Num: 2}.Resolve(refTasks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "abd222" {
		t.Errorf("expected abd222, got %s", got.ID)
	}
}

func TestResolve_PositionOutOfRange(t *testing.T) {
	_, err := TaskRef{Num: 4}.Resolve(refTasks())
	if err == nil || err.Error() != "task number out of range: 4" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolve_UniquePrefix(t *testing.T) {
	got, err := TaskRef{Prefix: "abd"}.Resolve(refTasks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "abd222" {
		t.Errorf("expected abd222, got %s", got.ID)
	}
}

func TestResolve_ExactIDBeatsAmbiguousPrefix(t *testing.T) {
	got, err := TaskRef{Prefix: "ab"}.Resolve(refTasks())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "ab" {
		t.Errorf("expected ab, got %s", got.ID)
	}
}

func TestResolve_Ambiguous(t *testing.T) {
	_, err := TaskRef{Prefix: "abc"}.Resolve(append(refTasks(), task.Task{ID: "abc999"}))
	if err == nil || err.Error() != "ambiguous task reference: abc" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolve_NotFound(t *testing.T) {
	_, err := TaskRef{Prefix: "zz"}.Resolve(refTasks())
	if err == nil || err.Error() != "task not found: zz" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestResolve_EmptyList(t *testing.T) {
	_, err := TaskRef{Num: 1}.Resolve(nil)
	if err == nil || err.Error() != "task number out of range: 1" {
		t.Errorf("unexpected error: %v", err)
	}
}
