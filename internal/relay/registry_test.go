package relay

import (
	"errors"
	"testing"
)

type stubIndex map[string]bool

func (s stubIndex) HasParticipant(code, participantID string) bool {
	return s[code+"/"+participantID]
}

func TestRegistryBindLookupUnbind(t *testing.T) {
	reg := NewRegistry(stubIndex{"ABC123/p1": true})

	if err := reg.Bind("c1", "ABC123", RoleTeacher, ""); err != nil {
		t.Fatalf("bind teacher: %v", err)
	}
	if err := reg.Bind("c2", "ABC123", RoleStudent, "p1"); err != nil {
		t.Fatalf("bind student: %v", err)
	}

	b, ok := reg.Lookup("c2")
	if !ok || b.SessionCode != "ABC123" || b.Role != RoleStudent || b.ParticipantID != "p1" {
		t.Fatalf("unexpected binding %+v (found=%v)", b, ok)
	}
	if owner, ok := reg.Owner("ABC123"); !ok || owner != "c1" {
		t.Fatalf("owner = %q, %v; want c1", owner, ok)
	}

	prev, ok := reg.Unbind("c2")
	if !ok || prev.ParticipantID != "p1" {
		t.Fatalf("unbind returned %+v, %v", prev, ok)
	}
	if _, ok := reg.Unbind("c2"); ok {
		t.Fatal("second unbind must report nothing")
	}
	if _, ok := reg.Lookup("c2"); ok {
		t.Fatal("lookup after unbind must miss")
	}
	if reg.Len() != 1 {
		t.Fatalf("len = %d, want 1", reg.Len())
	}
}

func TestRegistryRejectsUnknownStudent(t *testing.T) {
	reg := NewRegistry(stubIndex{})

	err := reg.Bind("c1", "ABC123", RoleStudent, "ghost")
	if !errors.Is(err, ErrUnknownParticipant) {
		t.Fatalf("err = %v, want ErrUnknownParticipant", err)
	}
	if reg.Len() != 0 {
		t.Fatal("failed bind must not register the connection")
	}
}

func TestRegistryRebindMovesConnection(t *testing.T) {
	reg := NewRegistry(stubIndex{"AAAAAA/p1": true, "BBBBBB/p2": true})

	_ = reg.Bind("c1", "AAAAAA", RoleStudent, "p1")
	_ = reg.Bind("c1", "BBBBBB", RoleStudent, "p2")

	if got := reg.Members("AAAAAA"); len(got) != 0 {
		t.Fatalf("old room still lists %v", got)
	}
	if got := reg.Members("BBBBBB"); len(got) != 1 || got[0] != "c1" {
		t.Fatalf("new room members = %v", got)
	}
}

func TestRegistryMembersInBindOrder(t *testing.T) {
	reg := NewRegistry(stubIndex{"ABC123/p1": true, "ABC123/p2": true})

	_ = reg.Bind("teacher", "ABC123", RoleTeacher, "")
	_ = reg.Bind("zeta", "ABC123", RoleStudent, "p1")
	_ = reg.Bind("alpha", "ABC123", RoleStudent, "p2")

	got := reg.Members("ABC123")
	want := []string{"teacher", "zeta", "alpha"}
	if len(got) != len(want) {
		t.Fatalf("members = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("members = %v, want %v", got, want)
		}
	}

	removed := reg.UnbindSession("ABC123")
	if len(removed) != 3 || removed[0].ConnID != "teacher" {
		t.Fatalf("unbind session returned %+v", removed)
	}
	if reg.Len() != 0 || len(reg.Members("ABC123")) != 0 {
		t.Fatal("session bindings must be gone")
	}
}
