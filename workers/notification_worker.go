package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/telcoops/casedesk/db"
)

const notificationQueue = "cases:notifications"

// NotificationWorker drains the notification queue and marks intents
// processed. Actual delivery channels (email, chat) consume the processed
// rows downstream.
type NotificationWorker struct {
	PG       *sql.DB
	Redis    *redis.Client
	Interval time.Duration
}

func NewNotificationWorker(pg *sql.DB, redisClient *redis.Client) *NotificationWorker {
	return &NotificationWorker{PG: pg, Redis: redisClient, Interval: 5 * time.Second}
}

func (w *NotificationWorker) Run(ctx context.Context) {
	log.Printf("INFO: notification worker started (interval=%s)", w.Interval)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: notification worker stopping")
			return
		case <-ticker.C:
			w.drainQueue(ctx)
			w.sweepUnprocessed(ctx)
		}
	}
}

func (w *NotificationWorker) drainQueue(ctx context.Context) {
	for {
		payload, err := w.Redis.LPop(ctx, notificationQueue).Result()
		if err == redis.Nil {
			return
		}
		if err != nil {
			log.Printf("ERROR: notification queue pop failed: %v", err)
			return
		}

		var n db.Notification
		if err := json.Unmarshal([]byte(payload), &n); err != nil {
			log.Printf("WARNING: dropping unreadable notification payload: %v", err)
			continue
		}
		w.process(ctx, n.ID)
	}
}

// sweepUnprocessed catches intents whose queue push failed. The row is the
// source of truth, the queue is just a latency optimization.
func (w *NotificationWorker) sweepUnprocessed(ctx context.Context) {
	rows, err := w.PG.QueryContext(ctx, `
		SELECT id FROM notifications
		WHERE processed_at IS NULL AND created_at < NOW() - INTERVAL '1 minute'
		LIMIT 100`)
	if err != nil {
		log.Printf("ERROR: notification sweep failed: %v", err)
		return
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			log.Printf("ERROR: notification sweep scan failed: %v", err)
			return
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: notification sweep failed: %v", err)
		return
	}

	for _, id := range ids {
		w.process(ctx, id)
	}
}

func (w *NotificationWorker) process(ctx context.Context, id string) {
	res, err := w.PG.ExecContext(ctx, `
		UPDATE notifications SET processed_at = NOW()
		WHERE id = $1 AND processed_at IS NULL`, id)
	if err != nil {
		log.Printf("ERROR: failed to mark notification %s processed: %v", id, err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("DEBUG: notification %s processed", id)
	}
}
