package outbox

import (
	"testing"

	"github.com/maxidea1024/gatrix-sub004/internal/model"
	"github.com/maxidea1024/gatrix-sub004/internal/ops"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name    string
		changes []Change
		want    []Event
	}{
		{
			name: "plain create",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityCreate, After: ops.Record{"code": "A"}},
			},
			want: []Event{
				{EntityType: "coupons", EntityID: "c1", EventType: model.OutboxEventCreated},
			},
		},
		{
			name: "plain update",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityUpdate,
					Before: ops.Record{"code": "A"}, After: ops.Record{"code": "B"}},
			},
			want: []Event{
				{EntityType: "coupons", EntityID: "c1", EventType: model.OutboxEventUpdated},
			},
		},
		{
			name: "plain delete",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityDelete, Before: ops.Record{"code": "A"}},
			},
			want: []Event{
				{EntityType: "coupons", EntityID: "c1", EventType: model.OutboxEventDeleted},
			},
		},
		{
			name: "create then delete collapses to nothing",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityCreate, After: ops.Record{"code": "A"}},
				{Table: "coupons", ID: "c1", Op: ops.EntityDelete, Before: ops.Record{"code": "A"}},
			},
			want: []Event{},
		},
		{
			name: "update back to original collapses to nothing",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityUpdate,
					Before: ops.Record{"code": "A"}, After: ops.Record{"code": "B"}},
				{Table: "coupons", ID: "c1", Op: ops.EntityUpdate,
					Before: ops.Record{"code": "B"}, After: ops.Record{"code": "A"}},
			},
			want: []Event{},
		},
		{
			name: "create then update stays created",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityCreate, After: ops.Record{"code": "A"}},
				{Table: "coupons", ID: "c1", Op: ops.EntityUpdate,
					Before: ops.Record{"code": "A"}, After: ops.Record{"code": "B"}},
			},
			want: []Event{
				{EntityType: "coupons", EntityID: "c1", EventType: model.OutboxEventCreated},
			},
		},
		{
			name: "update then delete classifies as deleted",
			changes: []Change{
				{Table: "coupons", ID: "c1", Op: ops.EntityUpdate,
					Before: ops.Record{"code": "A"}, After: ops.Record{"code": "B"}},
				{Table: "coupons", ID: "c1", Op: ops.EntityDelete, Before: ops.Record{"code": "B"}},
			},
			want: []Event{
				{EntityType: "coupons", EntityID: "c1", EventType: model.OutboxEventDeleted},
			},
		},
		{
			name: "independent rows keep batch order",
			changes: []Change{
				{Table: "coupons", ID: "c2", Op: ops.EntityUpdate,
					Before: ops.Record{"code": "A"}, After: ops.Record{"code": "B"}},
				{Table: "service_notices", ID: "7", Op: ops.EntityCreate, After: ops.Record{"title": "Hi"}},
			},
			want: []Event{
				{EntityType: "coupons", EntityID: "c2", EventType: model.OutboxEventUpdated},
				{EntityType: "service_notices", EntityID: "7", EventType: model.OutboxEventCreated},
			},
		},
		{
			name: "normalized no-op update collapses",
			changes: []Change{
				{Table: "client_versions", ID: "3", Op: ops.EntityUpdate,
					Before: ops.Record{"force_update": true}, After: ops.Record{"force_update": int64(1)}},
			},
			want: []Event{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.changes)
			if len(got) != len(tt.want) {
				t.Fatalf("Classify() produced %d events, want %d: %+v", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i].EntityType != tt.want[i].EntityType ||
					got[i].EntityID != tt.want[i].EntityID ||
					got[i].EventType != tt.want[i].EventType {
					t.Errorf("event %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestClassifyPayloads(t *testing.T) {
	events := Classify([]Change{
		{Table: "coupons", ID: "c1", Op: ops.EntityUpdate,
			Before: ops.Record{"code": "A"}, After: ops.Record{"code": "B"}},
		{Table: "coupons", ID: "c2", Op: ops.EntityDelete, Before: ops.Record{"code": "X"}},
	})
	if len(events) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(events))
	}
	if events[0].Payload["code"] != "B" {
		t.Errorf("Expected update payload to carry the final state, got %v", events[0].Payload)
	}
	if events[1].Payload["code"] != "X" {
		t.Errorf("Expected delete payload to carry the last known state, got %v", events[1].Payload)
	}
}

func TestChannelFor(t *testing.T) {
	if got := ChannelFor("remote_config_templates"); got != "gatrix:events:remote_config" {
		t.Errorf("ChannelFor(remote_config_templates) = %s", got)
	}
	if got := ChannelFor("game_worlds"); got != "gatrix:events:game_worlds" {
		t.Errorf("ChannelFor(game_worlds) = %s", got)
	}
}
