package ops

import (
	"encoding/json"
	"math"
	"reflect"
	"sort"
	"time"
)

// Bookkeeping columns excluded from diffs: timestamps, audit columns and the
// concurrency token are maintained by the store, not by editors.
var skippedFields = map[string]struct{}{
	"created_at":     {},
	"updated_at":     {},
	"created_by":     {},
	"updated_by":     {},
	"entity_version": {},
	"createdAt":      {},
	"updatedAt":      {},
	"entityVersion":  {},
}

// IsSkippedField reports whether a column is excluded from diffing.
func IsSkippedField(name string) bool {
	_, ok := skippedFields[name]
	return ok
}

// Normalize canonicalizes a value for comparison. The store represents
// booleans as small integers, so bool and 0/1 compare equal; integer widths
// collapse to int64, whole floats to int64, byte slices to strings, times to
// RFC3339, and composites to their JSON text.
func Normalize(v interface{}) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case bool:
		if x {
			return int64(1)
		}
		return int64(0)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case int64:
		return x
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return Normalize(float64(x))
	case float64:
		if x == math.Trunc(x) && math.Abs(x) < float64(math.MaxInt64) {
			return int64(x)
		}
		return x
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i
		}
		if f, err := x.Float64(); err == nil {
			return Normalize(f)
		}
		return x.String()
	case []byte:
		return string(x)
	case time.Time:
		return x.UTC().Format(time.RFC3339)
	case string:
		return x
	default:
		// Maps, slices and other composites compare by their JSON text.
		data, err := json.Marshal(x)
		if err != nil {
			return x
		}
		return string(data)
	}
}

// ValueEqual reports whether two values are equal after normalization.
func ValueEqual(a, b interface{}) bool {
	return reflect.DeepEqual(Normalize(a), Normalize(b))
}

func isAbsent(r Record, key string) bool {
	if r == nil {
		return true
	}
	v, ok := r[key]
	return !ok || v == nil
}

// Diff computes the field-level patch turning before into after. Bookkeeping
// columns are skipped; ops come out in field order for determinism.
func Diff(before, after Record) []FieldOp {
	keys := make(map[string]struct{}, len(before)+len(after))
	for k := range before {
		keys[k] = struct{}{}
	}
	for k := range after {
		keys[k] = struct{}{}
	}

	sorted := make([]string, 0, len(keys))
	for k := range keys {
		if IsSkippedField(k) {
			continue
		}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	var fops []FieldOp
	for _, k := range sorted {
		beforeAbsent := isAbsent(before, k)
		afterAbsent := isAbsent(after, k)

		switch {
		case beforeAbsent && afterAbsent:
			// nothing to record
		case beforeAbsent:
			fops = append(fops, FieldOp{Field: k, New: after[k], Kind: KindSet})
		case afterAbsent:
			fops = append(fops, FieldOp{Field: k, Old: before[k], Kind: KindDel})
		case !ValueEqual(before[k], after[k]):
			fops = append(fops, FieldOp{Field: k, Old: before[k], New: after[k], Kind: KindMod})
		}
	}
	return fops
}

// Apply replays a patch onto a base record. DELETE yields nil; CREATE starts
// from an empty record regardless of base.
func Apply(base Record, fops []FieldOp, op EntityOp) Record {
	if op == EntityDelete {
		return nil
	}

	result := Record{}
	if op != EntityCreate {
		for k, v := range base {
			result[k] = v
		}
	}

	for _, fop := range fops {
		switch fop.Kind {
		case KindDel:
			delete(result, fop.Field)
		case KindSet, KindMod:
			result[fop.Field] = fop.New
		}
	}
	return result
}

// Invert produces the patch that undoes fops.
func Invert(fops []FieldOp) []FieldOp {
	inverted := make([]FieldOp, 0, len(fops))
	for _, fop := range fops {
		switch fop.Kind {
		case KindSet:
			if fop.Old != nil {
				inverted = append(inverted, FieldOp{Field: fop.Field, Old: fop.New, New: fop.Old, Kind: KindMod})
			} else {
				inverted = append(inverted, FieldOp{Field: fop.Field, Old: fop.New, Kind: KindDel})
			}
		case KindDel:
			inverted = append(inverted, FieldOp{Field: fop.Field, Old: fop.New, New: fop.Old, Kind: KindSet})
		case KindMod:
			inverted = append(inverted, FieldOp{Field: fop.Field, Old: fop.New, New: fop.Old, Kind: KindMod})
		}
	}
	return inverted
}

// InvertEntityOp maps CREATE to DELETE and back; UPDATE stays UPDATE.
func InvertEntityOp(op EntityOp) EntityOp {
	switch op {
	case EntityCreate:
		return EntityDelete
	case EntityDelete:
		return EntityCreate
	default:
		return EntityUpdate
	}
}

// DetectEntityOp determines the row-level operation from a before/after pair.
func DetectEntityOp(before, after Record) EntityOp {
	switch {
	case len(before) == 0 && len(after) > 0:
		return EntityCreate
	case len(before) > 0 && len(after) == 0:
		return EntityDelete
	default:
		return EntityUpdate
	}
}

// Merge overlays partial changes onto a full base record, so a patch is
// always computed against the complete row, not just the fields a caller
// happened to send.
func Merge(base, overlay Record) Record {
	merged := make(Record, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}

// RecordEqual reports whether two records match on all non-skipped fields
// after normalization. Used by the structural conflict strategy.
func RecordEqual(a, b Record) bool {
	keys := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		keys[k] = struct{}{}
	}
	for k := range b {
		keys[k] = struct{}{}
	}
	for k := range keys {
		if IsSkippedField(k) {
			continue
		}
		if isAbsent(a, k) != isAbsent(b, k) {
			return false
		}
		if isAbsent(a, k) {
			continue
		}
		if !ValueEqual(a[k], b[k]) {
			return false
		}
	}
	return true
}
