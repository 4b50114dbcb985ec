package changereq

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/maxidea1024/gatrix-sub004/internal/ops"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// IDKind is how a table mints primary keys for rows created through the
// engine.
type IDKind int

const (
	IDAutoIncrement IDKind = iota
	IDUUID
)

// Table describes one mutable target table known to the engine. Only
// registered tables can be touched; the executor refuses everything else.
type Table struct {
	Name        string
	IDKind      IDKind
	TokenColumn string // optimistic concurrency column, "" if the table has none
	Strategy    ConflictStrategy
}

// tableNamePattern guards registration; registered names are the only ones
// ever spliced into queries.
var tableNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// Accessor is the typed gateway to one registered table: locked reads,
// token-gated writes and id minting.
type Accessor struct {
	table Table
}

// Name returns the underlying table name.
func (a *Accessor) Name() string {
	return a.table.Name
}

// HasToken reports whether the table carries a concurrency token column.
func (a *Accessor) HasToken() bool {
	return a.table.TokenColumn != ""
}

// TokenColumn returns the concurrency token column name ("" if none).
func (a *Accessor) TokenColumn() string {
	return a.table.TokenColumn
}

// Strategy returns the table's conflict detection strategy.
func (a *Accessor) Strategy() ConflictStrategy {
	return a.table.Strategy
}

// Read fetches the current row image, nil if the row does not exist.
func (a *Accessor) Read(db *gorm.DB, id string) (ops.Record, error) {
	row := map[string]interface{}{}
	err := db.Table(a.table.Name).Where("id = ?", id).Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s/%s: %w", a.table.Name, id, err)
	}
	return ops.Record(row), nil
}

// ReadForUpdate fetches the current row image under a row lock, nil if the
// row does not exist. Must be called inside a transaction.
func (a *Accessor) ReadForUpdate(tx *gorm.DB, id string) (ops.Record, error) {
	row := map[string]interface{}{}
	err := tx.Table(a.table.Name).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		Take(&row).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock %s/%s: %w", a.table.Name, id, err)
	}
	return ops.Record(row), nil
}

// ReadToken reads only the live concurrency token of a row.
func (a *Accessor) ReadToken(db *gorm.DB, id string) (*int64, error) {
	if !a.HasToken() {
		return nil, nil
	}
	row, err := a.Read(db, id)
	if err != nil || row == nil {
		return nil, err
	}
	return a.TokenFromRecord(row)
}

// TokenFromRecord extracts the concurrency token from a row image already in
// hand, nil when the table has no token or the image carries none.
func (a *Accessor) TokenFromRecord(row ops.Record) (*int64, error) {
	if !a.HasToken() || row == nil {
		return nil, nil
	}
	v, ok := row[a.table.TokenColumn]
	if !ok || v == nil {
		return nil, nil
	}
	token, ok := ops.Normalize(v).(int64)
	if !ok {
		return nil, fmt.Errorf("token column %s.%s is not numeric", a.table.Name, a.table.TokenColumn)
	}
	return &token, nil
}

// Insert creates a row and returns its final id. The row image must already
// be normalized for storage; the id column is minted here according to the
// table's id kind, and the token column (if any) starts at 1.
func (a *Accessor) Insert(tx *gorm.DB, row ops.Record) (string, error) {
	stored := map[string]interface{}(SanitizeForStorage(row, a.table.TokenColumn))
	delete(stored, "id")

	var newID string
	if a.table.IDKind == IDUUID {
		newID = uuid.NewString()
		stored["id"] = newID
	}
	if a.HasToken() {
		stored[a.table.TokenColumn] = 1
	}

	if err := tx.Table(a.table.Name).Create(stored).Error; err != nil {
		return "", fmt.Errorf("failed to insert into %s: %w", a.table.Name, err)
	}

	if a.table.IDKind == IDAutoIncrement {
		var id int64
		if err := tx.Raw("SELECT LAST_INSERT_ID()").Scan(&id).Error; err != nil {
			return "", fmt.Errorf("failed to read inserted id for %s: %w", a.table.Name, err)
		}
		newID = fmt.Sprintf("%d", id)
	}
	return newID, nil
}

// Update writes a row image, gated by the captured token when the table has
// one. Returns the number of affected rows; zero means the gate did not
// match.
func (a *Accessor) Update(tx *gorm.DB, id string, row ops.Record, baseVersion *int64) (int64, error) {
	stored := map[string]interface{}(SanitizeForStorage(row, a.table.TokenColumn))
	delete(stored, "id")

	query := tx.Table(a.table.Name).Where("id = ?", id)
	if a.HasToken() && baseVersion != nil {
		query = query.Where(a.table.TokenColumn+" = ?", *baseVersion)
		stored[a.table.TokenColumn] = gorm.Expr(a.table.TokenColumn + " + 1")
	}

	result := query.Updates(stored)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to update %s/%s: %w", a.table.Name, id, result.Error)
	}
	return result.RowsAffected, nil
}

// Delete removes a row, gated by the captured token when available. Returns
// the number of affected rows.
func (a *Accessor) Delete(tx *gorm.DB, id string, baseVersion *int64) (int64, error) {
	query := tx.Table(a.table.Name).Where("id = ?", id)
	if a.HasToken() && baseVersion != nil {
		query = query.Where(a.table.TokenColumn+" = ?", *baseVersion)
	}
	result := query.Delete(nil)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete %s/%s: %w", a.table.Name, id, result.Error)
	}
	return result.RowsAffected, nil
}

// Registry maps table names to accessors. Populated once at startup.
type Registry struct {
	tables map[string]*Accessor
}

// NewRegistry creates an empty table registry
func NewRegistry() *Registry {
	return &Registry{tables: map[string]*Accessor{}}
}

// Register adds a table. Panics on invalid names or duplicates since
// registration is startup-time wiring.
func (r *Registry) Register(t Table) {
	if !tableNamePattern.MatchString(t.Name) {
		panic(fmt.Sprintf("changereq: invalid table name %q", t.Name))
	}
	if _, exists := r.tables[t.Name]; exists {
		panic(fmt.Sprintf("changereq: table %q registered twice", t.Name))
	}
	if t.Strategy == nil {
		if t.TokenColumn != "" {
			t.Strategy = TokenBased{Column: t.TokenColumn}
		} else {
			t.Strategy = StructuralCompare{}
		}
	}
	r.tables[t.Name] = &Accessor{table: t}
}

// Lookup returns the accessor for a table name.
func (r *Registry) Lookup(name string) (*Accessor, bool) {
	a, ok := r.tables[name]
	return a, ok
}

// SanitizeForStorage prepares a row image for writing: bookkeeping columns
// and the token column are dropped (the store and the accessor own those),
// RFC3339 strings become time values and composites become JSON text.
func SanitizeForStorage(row ops.Record, tokenColumn string) ops.Record {
	stored := make(ops.Record, len(row))
	for k, v := range row {
		if ops.IsSkippedField(k) {
			continue
		}
		if tokenColumn != "" && k == tokenColumn {
			continue
		}
		stored[k] = normalizeForStorage(v)
	}
	return stored
}

func normalizeForStorage(v interface{}) interface{} {
	switch x := v.(type) {
	case string:
		if t, err := time.Parse(time.RFC3339, x); err == nil {
			return t
		}
		return x
	case map[string]interface{}, []interface{}:
		data, err := json.Marshal(x)
		if err != nil {
			return x
		}
		return string(data)
	default:
		return v
	}
}
