package data

import (
	"context"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/ovo-bot/ovo-agent/internal/biz/repo"
)

func TestGroupRepo(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "ovo.db")
	db, err := OpenDB(path)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	defer db.Close()

	groups, err := NewGroupRepo(db, true, map[string]bool{"oc_quiet": false, "oc_loud": true})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	tests := []struct {
		group string
		want  bool
	}{
		{"oc_quiet", false},
		{"oc_loud", true},
		{"oc_unknown", true},
	}
	for _, tt := range tests {
		got, err := groups.IsEnabled(ctx, tt.group)
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if got != tt.want {
			t.Errorf("IsEnabled(%s): expected %v, got %v", tt.group, tt.want, got)
		}
	}

	if err := groups.SetEnabled(ctx, "oc_quiet", true); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// Re-seeding does not overwrite stored flags
	reseeded, err := NewGroupRepo(db, false, map[string]bool{"oc_quiet": false})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if on, _ := reseeded.IsEnabled(ctx, "oc_quiet"); !on {
		t.Error("Expected stored flag to survive reseeding")
	}
	if on, _ := reseeded.IsEnabled(ctx, "oc_unknown"); on {
		t.Error("Expected new default for unknown groups")
	}

	list, err := reseeded.List(ctx)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	want := []repo.GroupSetting{{GroupID: "oc_loud", Enabled: true}, {GroupID: "oc_quiet", Enabled: true}}
	if !reflect.DeepEqual(list, want) {
		t.Errorf("Expected %v, got %v", want, list)
	}
}
