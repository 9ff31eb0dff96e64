package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/telcoops/casedesk/db"
)

// Notification kinds
const (
	NotifyCaseAssigned = "case_assigned"
	NotifyCaseResolved = "case_resolved"
	NotifyAlertRefired = "alert_refired"
	NotifySLABreached  = "sla_breached"
)

const notificationQueue = "cases:notifications"

// NotificationSender records notification intents for delivery by external
// systems. Implementations must not block case processing on delivery.
type NotificationSender interface {
	Send(ctx context.Context, n *db.Notification) error
}

// RedisNotificationQueue pushes notification intents onto a Redis list and
// persists them for the worker to mark processed. Intent ids are uuids.
type RedisNotificationQueue struct {
	PG    *sql.DB
	Redis *redis.Client
}

func NewRedisNotificationQueue(pg *sql.DB, rdb *redis.Client) *RedisNotificationQueue {
	return &RedisNotificationQueue{PG: pg, Redis: rdb}
}

func (q *RedisNotificationQueue) Send(ctx context.Context, n *db.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}

	_, err := q.PG.ExecContext(ctx, `
		INSERT INTO notifications (id, case_id, kind, priority, user_ids, team_ids, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		n.ID, n.CaseID, n.Kind, n.Priority, pq.Array(n.UserIDs), pq.Array(n.TeamIDs), n.CreatedAt)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(n)
	if err != nil {
		return err
	}
	if err := q.Redis.RPush(ctx, notificationQueue, payload).Err(); err != nil {
		// Row is persisted; the worker sweep picks it up even when the
		// queue push fails.
		log.Printf("WARNING: failed to enqueue notification %s: %v", n.ID, err)
	}
	return nil
}
