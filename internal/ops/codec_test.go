package ops

import (
	"testing"
)

func TestDiff_Classification(t *testing.T) {
	before := Record{"a": 1, "b": "old", "c": "gone", "created_at": "2026-01-01"}
	after := Record{"a": 1, "b": "new", "d": true, "updated_at": "2026-01-02"}

	fops := Diff(before, after)

	want := map[string]Kind{"b": KindMod, "c": KindDel, "d": KindSet}
	if len(fops) != len(want) {
		t.Fatalf("Expected %d ops, got %d: %+v", len(want), len(fops), fops)
	}
	for _, fop := range fops {
		if want[fop.Field] != fop.Kind {
			t.Errorf("Field %s: expected kind %s, got %s", fop.Field, want[fop.Field], fop.Kind)
		}
	}
}

func TestDiff_BooleanNormalization(t *testing.T) {
	// The store hands back tinyints where the caller sends bools
	before := Record{"enabled": int64(1), "maintenance": int64(0)}
	after := Record{"enabled": true, "maintenance": true}

	fops := Diff(before, after)

	if len(fops) != 1 {
		t.Fatalf("Expected 1 op, got %d: %+v", len(fops), fops)
	}
	if fops[0].Field != "maintenance" || fops[0].Kind != KindMod {
		t.Errorf("Expected MOD on maintenance, got %+v", fops[0])
	}
}

func TestDiff_SkipsBookkeepingColumns(t *testing.T) {
	before := Record{"updated_at": "a", "entity_version": 1, "name": "x"}
	after := Record{"updated_at": "b", "entity_version": 2, "name": "x"}

	if fops := Diff(before, after); len(fops) != 0 {
		t.Errorf("Expected no ops for bookkeeping-only changes, got %+v", fops)
	}
}

func TestDiff_NullIsAbsent(t *testing.T) {
	before := Record{"note": nil}
	after := Record{"note": "hello"}

	fops := Diff(before, after)
	if len(fops) != 1 || fops[0].Kind != KindSet {
		t.Fatalf("Expected single SET, got %+v", fops)
	}

	back := Diff(after, before)
	if len(back) != 1 || back[0].Kind != KindDel {
		t.Fatalf("Expected single DEL, got %+v", back)
	}
}

func TestApply_RoundTrip(t *testing.T) {
	tests := []struct {
		name   string
		before Record
		after  Record
	}{
		{
			name:   "update",
			before: Record{"a": 1, "b": "x", "c": true},
			after:  Record{"a": 2, "c": false, "d": "new"},
		},
		{
			name:   "create",
			before: Record{},
			after:  Record{"name": "fresh", "enabled": true},
		},
		{
			name:   "noop",
			before: Record{"a": 1},
			after:  Record{"a": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fops := Diff(tt.before, tt.after)
			op := DetectEntityOp(tt.before, tt.after)
			got := Apply(tt.before, fops, op)

			if !RecordEqual(got, tt.after) {
				t.Errorf("apply(before, diff(before, after)) = %+v, want %+v", got, tt.after)
			}
		})
	}
}

func TestApply_DeleteYieldsNil(t *testing.T) {
	if got := Apply(Record{"a": 1}, nil, EntityDelete); got != nil {
		t.Errorf("Expected nil record for DELETE, got %+v", got)
	}
}

func TestInvert_RoundTrip(t *testing.T) {
	base := Record{"a": 1, "b": "x", "gone": "soon"}
	target := Record{"a": 2, "c": true}

	fops := Diff(base, target)
	applied := Apply(base, fops, EntityUpdate)
	restored := Apply(applied, Invert(fops), EntityUpdate)

	if !RecordEqual(restored, base) {
		t.Errorf("apply(apply(base, P), invert(P)) = %+v, want %+v", restored, base)
	}
}

func TestInvert_Kinds(t *testing.T) {
	tests := []struct {
		name string
		in   FieldOp
		want FieldOp
	}{
		{
			name: "set from null becomes del",
			in:   FieldOp{Field: "f", New: "v", Kind: KindSet},
			want: FieldOp{Field: "f", Old: "v", Kind: KindDel},
		},
		{
			name: "set over non-null becomes mod",
			in:   FieldOp{Field: "f", Old: "prev", New: "v", Kind: KindSet},
			want: FieldOp{Field: "f", Old: "v", New: "prev", Kind: KindMod},
		},
		{
			name: "del becomes set",
			in:   FieldOp{Field: "f", Old: "v", Kind: KindDel},
			want: FieldOp{Field: "f", New: "v", Kind: KindSet},
		},
		{
			name: "mod swaps",
			in:   FieldOp{Field: "f", Old: "a", New: "b", Kind: KindMod},
			want: FieldOp{Field: "f", Old: "b", New: "a", Kind: KindMod},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Invert([]FieldOp{tt.in})
			if len(got) != 1 {
				t.Fatalf("Expected 1 op, got %d", len(got))
			}
			if got[0].Kind != tt.want.Kind || got[0].Field != tt.want.Field {
				t.Errorf("Got %+v, want %+v", got[0], tt.want)
			}
			if !ValueEqual(got[0].Old, tt.want.Old) || !ValueEqual(got[0].New, tt.want.New) {
				t.Errorf("Got old=%v new=%v, want old=%v new=%v", got[0].Old, got[0].New, tt.want.Old, tt.want.New)
			}
		})
	}
}

func TestInvertEntityOp(t *testing.T) {
	if InvertEntityOp(EntityCreate) != EntityDelete {
		t.Error("CREATE should invert to DELETE")
	}
	if InvertEntityOp(EntityDelete) != EntityCreate {
		t.Error("DELETE should invert to CREATE")
	}
	if InvertEntityOp(EntityUpdate) != EntityUpdate {
		t.Error("UPDATE should invert to UPDATE")
	}
}

func TestDetectEntityOp(t *testing.T) {
	tests := []struct {
		name   string
		before Record
		after  Record
		want   EntityOp
	}{
		{"create", Record{}, Record{"a": 1}, EntityCreate},
		{"create from nil", nil, Record{"a": 1}, EntityCreate},
		{"delete", Record{"a": 1}, Record{}, EntityDelete},
		{"delete to nil", Record{"a": 1}, nil, EntityDelete},
		{"update", Record{"a": 1}, Record{"a": 2}, EntityUpdate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DetectEntityOp(tt.before, tt.after); got != tt.want {
				t.Errorf("DetectEntityOp() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestEncodeDecodeOps(t *testing.T) {
	fops := []FieldOp{
		{Field: "enabled", Old: false, New: true, Kind: KindMod},
		{Field: "note", New: "added", Kind: KindSet},
	}

	raw, err := EncodeOps(fops)
	if err != nil {
		t.Fatalf("EncodeOps() failed: %v", err)
	}

	decoded, err := DecodeOps(raw)
	if err != nil {
		t.Fatalf("DecodeOps() failed: %v", err)
	}

	if len(decoded) != len(fops) {
		t.Fatalf("Expected %d ops, got %d", len(fops), len(decoded))
	}
	for i := range fops {
		if decoded[i].Field != fops[i].Field || decoded[i].Kind != fops[i].Kind {
			t.Errorf("Op %d: got %+v, want %+v", i, decoded[i], fops[i])
		}
	}
}

func TestDecodeOps_UnknownVersion(t *testing.T) {
	if _, err := DecodeOps([]byte(`{"v":99,"ops":[]}`)); err == nil {
		t.Error("Expected error for unknown encoding version")
	}
}

func TestMerge(t *testing.T) {
	base := Record{"a": 1, "b": 2}
	overlay := Record{"b": 3, "c": 4}

	merged := Merge(base, overlay)

	if merged["a"] != 1 || merged["b"] != 3 || merged["c"] != 4 {
		t.Errorf("Unexpected merge result: %+v", merged)
	}
	if base["b"] != 2 {
		t.Error("Merge must not mutate base")
	}
}
