package ws

import (
	"log"

	socketio "github.com/googollee/go-socket.io"

	"github.com/maxidea1024/gatrix-sub004/internal/db"
	"github.com/maxidea1024/gatrix-sub004/internal/model"
)

// ChangeRequestListItem is one change request in the dashboard snapshot
type ChangeRequestListItem struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	Environment string `json:"environment"`
	Status      string `json:"status"`
	Type        string `json:"type"`
	RequesterID int    `json:"requesterId"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

// handleRequestChanges handles the request:changes event. The client sends
// an optional environment filter and gets a snapshot of the requests still
// in flight; live updates arrive over changes:update from the Redis relay.
func handleRequestChanges(s socketio.Conn, data interface{}) {
	log.Printf("[WebSocket] request:changes from client %s, data: %v", s.ID(), data)

	environment := ""
	if dataMap, ok := data.(map[string]interface{}); ok {
		if env, ok := dataMap["environment"].(string); ok {
			environment = env
		}
	}

	query := db.GetDB().Model(&model.ChangeRequest{}).
		Where("status IN ?", []string{
			model.ChangeRequestStatusOpen,
			model.ChangeRequestStatusApproved,
			model.ChangeRequestStatusConflict,
		})
	if environment != "" {
		query = query.Where("environment = ?", environment)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		log.Printf("[WebSocket] Failed to count change requests: %v", err)
		s.Emit("error", map[string]interface{}{
			"message": "Failed to query change requests",
		})
		return
	}

	var crs []model.ChangeRequest
	if err := query.Order("id DESC").Limit(1000).Find(&crs).Error; err != nil {
		log.Printf("[WebSocket] Failed to query change requests: %v", err)
		s.Emit("error", map[string]interface{}{
			"message": "Failed to query change requests",
		})
		return
	}

	items := make([]ChangeRequestListItem, 0, len(crs))
	for _, cr := range crs {
		items = append(items, ChangeRequestListItem{
			ID:          cr.ID,
			Title:       cr.Title,
			Environment: cr.Environment,
			Status:      cr.Status,
			Type:        cr.Type,
			RequesterID: cr.RequesterID,
			CreatedAt:   cr.CreatedAt.Format("2006-01-02 15:04:05"),
			UpdatedAt:   cr.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}

	s.Emit("changes:initial", map[string]interface{}{
		"items": items,
		"total": total,
	})

	log.Printf("[WebSocket] Sent change request snapshot: total=%d", total)
}
