package changereq

import (
	"strings"
	"testing"

	"github.com/maxidea1024/gatrix-sub004/internal/ops"
)

func int64Ptr(v int64) *int64 { return &v }

func TestTokenBasedDetect(t *testing.T) {
	strategy := TokenBased{Column: "entity_version"}

	tests := []struct {
		name     string
		snap     ItemSnapshot
		live     ops.Record
		conflict bool
	}{
		{
			name:     "token unchanged",
			snap:     ItemSnapshot{BaselineVersion: int64Ptr(3)},
			live:     ops.Record{"entity_version": int64(3)},
			conflict: false,
		},
		{
			name:     "token advanced",
			snap:     ItemSnapshot{BaselineVersion: int64Ptr(3)},
			live:     ops.Record{"entity_version": int64(4)},
			conflict: true,
		},
		{
			name:     "row deleted since review",
			snap:     ItemSnapshot{BaselineVersion: int64Ptr(3)},
			live:     nil,
			conflict: true,
		},
		{
			name: "no baseline falls back to structural match",
			snap: ItemSnapshot{
				Before: ops.Record{"name": "Launch Event", "discount": int64(20)},
			},
			live:     ops.Record{"name": "Launch Event", "discount": int64(20)},
			conflict: false,
		},
		{
			name: "no baseline falls back to structural mismatch",
			snap: ItemSnapshot{
				Before: ops.Record{"name": "Launch Event"},
			},
			live:     ops.Record{"name": "Renamed Event"},
			conflict: true,
		},
		{
			name:     "token read from uint column",
			snap:     ItemSnapshot{BaselineVersion: int64Ptr(7)},
			live:     ops.Record{"entity_version": uint64(7)},
			conflict: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := strategy.Detect(tt.snap, tt.live)
			if (reason != "") != tt.conflict {
				t.Errorf("Detect() = %q, want conflict=%v", reason, tt.conflict)
			}
		})
	}
}

func TestTokenBasedDetectReason(t *testing.T) {
	strategy := TokenBased{Column: "entity_version"}
	reason := strategy.Detect(
		ItemSnapshot{BaselineVersion: int64Ptr(2)},
		ops.Record{"entity_version": int64(5)},
	)
	if !strings.Contains(reason, "2") || !strings.Contains(reason, "5") {
		t.Errorf("Expected reason to name both versions, got %q", reason)
	}
}

func TestStructuralCompareDetect(t *testing.T) {
	strategy := StructuralCompare{}

	tests := []struct {
		name     string
		snap     ItemSnapshot
		live     ops.Record
		conflict bool
	}{
		{
			name:     "identical rows",
			snap:     ItemSnapshot{Before: ops.Record{"title": "Maintenance", "pinned": int64(1)}},
			live:     ops.Record{"title": "Maintenance", "pinned": int64(1)},
			conflict: false,
		},
		{
			name:     "normalized equivalence",
			snap:     ItemSnapshot{Before: ops.Record{"pinned": true}},
			live:     ops.Record{"pinned": int64(1)},
			conflict: false,
		},
		{
			name:     "field changed",
			snap:     ItemSnapshot{Before: ops.Record{"title": "Maintenance"}},
			live:     ops.Record{"title": "Emergency Maintenance"},
			conflict: true,
		},
		{
			name:     "row deleted",
			snap:     ItemSnapshot{Before: ops.Record{"title": "Maintenance"}},
			live:     nil,
			conflict: true,
		},
		{
			name:     "bookkeeping columns ignored",
			snap:     ItemSnapshot{Before: ops.Record{"title": "Maintenance", "updated_at": "2026-01-01T00:00:00Z"}},
			live:     ops.Record{"title": "Maintenance", "updated_at": "2026-02-01T12:30:00Z"},
			conflict: false,
		},
		{
			name:     "both absent",
			snap:     ItemSnapshot{},
			live:     nil,
			conflict: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reason := strategy.Detect(tt.snap, tt.live)
			if (reason != "") != tt.conflict {
				t.Errorf("Detect() = %q, want conflict=%v", reason, tt.conflict)
			}
		})
	}
}
