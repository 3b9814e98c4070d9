package roles

import (
	"strings"
	"testing"
)

func TestDefaultLibraryLoads(t *testing.T) {
	lib := DefaultLibrary()
	if len(lib.Names()) != 9 {
		t.Fatalf("expected 9 default roles, got %d", len(lib.Names()))
	}
}

func TestResolveAlias(t *testing.T) {
	lib := DefaultLibrary()

	r, ok := lib.Resolve("architect")
	if !ok {
		t.Fatal("alias 'architect' did not resolve")
	}
	if r.Name != "systems-architect" {
		t.Errorf("resolved to %q, want systems-architect", r.Name)
	}

	if _, ok := lib.Resolve("astrologer"); ok {
		t.Error("unknown role should not resolve")
	}
}

func TestDebaterStanceInjection(t *testing.T) {
	lib := DefaultLibrary()

	pro, err := lib.PromptFor("debater", true)
	if err != nil {
		t.Fatalf("PromptFor: %v", err)
	}
	con, err := lib.PromptFor("debater", false)
	if err != nil {
		t.Fatalf("PromptFor: %v", err)
	}

	if !strings.Contains(pro, "FOR the proposition") {
		t.Error("first debater should argue for the proposition")
	}
	if !strings.Contains(con, "AGAINST the proposition") {
		t.Error("second debater should argue against the proposition")
	}
}

func TestNonAdversarialRoleHasNoStance(t *testing.T) {
	lib := DefaultLibrary()
	first, _ := lib.PromptFor("philosopher", true)
	second, _ := lib.PromptFor("philosopher", false)
	if first != second {
		t.Error("non-adversarial role prompt should not depend on position")
	}
}

func TestDetectTags(t *testing.T) {
	lib := DefaultLibrary()

	tags := lib.DetectTags("Should we rework the database architecture before the deadline?")
	if len(tags) == 0 {
		t.Fatal("expected tags for engineering/planning question")
	}
	// engineering matches two keywords, planning one
	if tags[0] != "engineering" {
		t.Errorf("expected engineering first, got %v", tags)
	}

	if got := lib.DetectTags("completely unrelated gibberish"); len(got) != 0 {
		t.Errorf("expected no tags, got %v", got)
	}
}

func TestRolesForTags(t *testing.T) {
	lib := DefaultLibrary()
	got := lib.RolesForTags([]string{"law"})
	if len(got) != 1 || got[0] != "lawyer" {
		t.Errorf("expected [lawyer], got %v", got)
	}
}

func TestParseRejectsBadInput(t *testing.T) {
	if _, err := Parse([]byte("roles: []")); err == nil {
		t.Error("empty role list should fail")
	}
	if _, err := Parse([]byte("roles:\n  - name: a\n  - name: a\n")); err == nil {
		t.Error("duplicate role names should fail")
	}
	if _, err := Parse([]byte("{{not yaml")); err == nil {
		t.Error("invalid yaml should fail")
	}
}
