package outbox

import (
	"fmt"

	"github.com/maxidea1024/gatrix-sub004/internal/model"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"

	"gorm.io/gorm"
)

// Change is one row mutation observed while applying a batch, in apply
// order.
type Change struct {
	Table  string
	ID     string
	Op     ops.EntityOp
	Before ops.Record
	After  ops.Record
}

// Event is a pruned, classified notification ready to be recorded.
type Event struct {
	EntityType string
	EntityID   string
	EventType  string
	Payload    ops.Record
}

// Classify collapses the per-row history of a batch into at most one event
// per (table, id). A row created and deleted within the batch yields
// nothing, as does a row whose final state equals its original state.
func Classify(changes []Change) []Event {
	type key struct {
		table string
		id    string
	}

	order := make([]key, 0, len(changes))
	groups := make(map[key][]Change, len(changes))
	for _, c := range changes {
		k := key{c.Table, c.ID}
		if _, seen := groups[k]; !seen {
			order = append(order, k)
		}
		groups[k] = append(groups[k], c)
	}

	events := make([]Event, 0, len(order))
	for _, k := range order {
		group := groups[k]
		first, last := group[0], group[len(group)-1]

		created := first.Op == ops.EntityCreate
		deleted := last.Op == ops.EntityDelete

		switch {
		case created && deleted:
			// Never visible outside the batch.
			continue
		case deleted:
			events = append(events, Event{
				EntityType: k.table,
				EntityID:   k.id,
				EventType:  model.OutboxEventDeleted,
				Payload:    last.Before,
			})
		case created:
			events = append(events, Event{
				EntityType: k.table,
				EntityID:   k.id,
				EventType:  model.OutboxEventCreated,
				Payload:    last.After,
			})
		default:
			if ops.RecordEqual(first.Before, last.After) {
				continue
			}
			events = append(events, Event{
				EntityType: k.table,
				EntityID:   k.id,
				EventType:  model.OutboxEventUpdated,
				Payload:    last.After,
			})
		}
	}
	return events
}

// RecordBatch inserts pending outbox rows inside the caller's transaction
// so events commit or roll back together with the data change.
func RecordBatch(tx *gorm.DB, crID int64, events []Event) error {
	for _, ev := range events {
		payload, err := ops.EncodeRecord(ev.Payload)
		if err != nil {
			return err
		}
		row := model.OutboxEvent{
			ChangeRequestID: crID,
			EntityType:      ev.EntityType,
			EntityID:        ev.EntityID,
			EventType:       ev.EventType,
			Payload:         payload,
			Status:          model.OutboxStatusPending,
		}
		if err := tx.Create(&row).Error; err != nil {
			return fmt.Errorf("failed to record outbox event: %w", err)
		}
	}
	return nil
}
