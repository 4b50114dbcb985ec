package ops

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Kind is the kind of a single field operation.
type Kind string

const (
	KindSet Kind = "SET" // field absent or null before, set after
	KindDel Kind = "DEL" // field present before, absent or null after
	KindMod Kind = "MOD" // field changed value
)

// EntityOp is the row-level operation a change item performs.
type EntityOp string

const (
	EntityCreate EntityOp = "CREATE"
	EntityUpdate EntityOp = "UPDATE"
	EntityDelete EntityOp = "DELETE"
)

// FieldOp is a single field's change: {old, new, kind}.
type FieldOp struct {
	Field string      `json:"field"`
	Old   interface{} `json:"old,omitempty"`
	New   interface{} `json:"new,omitempty"`
	Kind  Kind        `json:"kind"`
}

// Record is a flat row image keyed by column name.
type Record map[string]interface{}

// encodingVersion is bumped whenever the stored shape of the op list
// changes, so old rows stay decodable.
const encodingVersion = 1

type opsEnvelope struct {
	Version int       `json:"v"`
	Ops     []FieldOp `json:"ops"`
}

// EncodeOps serializes a field-op list into its versioned JSON blob form.
func EncodeOps(fops []FieldOp) (datatypes.JSON, error) {
	data, err := json.Marshal(opsEnvelope{Version: encodingVersion, Ops: fops})
	if err != nil {
		return nil, fmt.Errorf("failed to encode field ops: %w", err)
	}
	return datatypes.JSON(data), nil
}

// DecodeOps parses a versioned JSON blob back into a field-op list.
func DecodeOps(raw datatypes.JSON) ([]FieldOp, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var env opsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("failed to decode field ops: %w", err)
	}
	if env.Version != encodingVersion {
		return nil, fmt.Errorf("unsupported field ops encoding version %d", env.Version)
	}
	return env.Ops, nil
}

// EncodeRecord serializes a record snapshot. A nil record encodes as JSON null.
func EncodeRecord(r Record) (datatypes.JSON, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode record: %w", err)
	}
	return datatypes.JSON(data), nil
}

// DecodeRecord parses a record snapshot. JSON null decodes as a nil record.
func DecodeRecord(raw datatypes.JSON) (Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var r Record
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, fmt.Errorf("failed to decode record: %w", err)
	}
	return r, nil
}
