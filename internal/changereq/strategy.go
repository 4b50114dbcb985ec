package changereq

import (
	"fmt"

	"github.com/maxidea1024/gatrix-sub004/internal/ops"
)

// ItemSnapshot is what a change item captured about its target row: the
// optimistic token read at submission time and the full before image read at
// edit time.
type ItemSnapshot struct {
	BaselineVersion *int64
	Before          ops.Record
}

// ConflictStrategy decides whether a live row diverged from what the item
// captured. Selected per table at registration time.
type ConflictStrategy interface {
	Name() string
	// Detect returns a non-empty human-readable reason on conflict.
	Detect(snap ItemSnapshot, live ops.Record) string
}

// TokenBased compares the live concurrency token against the baseline
// captured at submission. Items without a captured baseline fall back to the
// structural comparison.
type TokenBased struct {
	Column string
}

// Name implements ConflictStrategy
func (t TokenBased) Name() string { return "token" }

// Detect implements ConflictStrategy
func (t TokenBased) Detect(snap ItemSnapshot, live ops.Record) string {
	if snap.BaselineVersion == nil {
		return StructuralCompare{}.Detect(snap, live)
	}
	if live == nil {
		return "row was deleted since review started"
	}
	liveToken, ok := ops.Normalize(live[t.Column]).(int64)
	if !ok {
		return fmt.Sprintf("live row has no readable %s token", t.Column)
	}
	if liveToken != *snap.BaselineVersion {
		return fmt.Sprintf("version changed from %d to %d since review started",
			*snap.BaselineVersion, liveToken)
	}
	return ""
}

// StructuralCompare detects divergence by a normalized field-by-field
// comparison of the live row against the captured before snapshot. Used for
// tables without a token column.
type StructuralCompare struct{}

// Name implements ConflictStrategy
func (StructuralCompare) Name() string { return "structural" }

// Detect implements ConflictStrategy
func (StructuralCompare) Detect(snap ItemSnapshot, live ops.Record) string {
	if live == nil && snap.Before == nil {
		return ""
	}
	if live == nil {
		return "row was deleted since the change was drafted"
	}
	if snap.Before == nil {
		return "row was created by someone else since the change was drafted"
	}
	if !ops.RecordEqual(live, snap.Before) {
		return "row content diverged from the captured snapshot"
	}
	return ""
}
