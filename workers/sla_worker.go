package workers

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/telcoops/casedesk/db"
)

// SLAWorker sweeps open cases past their SLA deadline and flags them.
type SLAWorker struct {
	PG       *sql.DB
	Interval time.Duration
}

func NewSLAWorker(pg *sql.DB) *SLAWorker {
	return &SLAWorker{PG: pg, Interval: time.Minute}
}

func (w *SLAWorker) Run(ctx context.Context) {
	log.Printf("INFO: sla worker started (interval=%s)", w.Interval)
	ticker := time.NewTicker(w.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("INFO: sla worker stopping")
			return
		case <-ticker.C:
			w.sweep(ctx)
		}
	}
}

func (w *SLAWorker) sweep(ctx context.Context) {
	rows, err := w.PG.QueryContext(ctx, `
		UPDATE cases
		SET sla_breached = TRUE, updated_at = NOW()
		WHERE sla_breached = FALSE
		  AND sla_deadline IS NOT NULL
		  AND sla_deadline < NOW()
		  AND status NOT IN ('resolved', 'closed', 'cancelled')
		RETURNING id, case_number`)
	if err != nil {
		log.Printf("ERROR: sla sweep failed: %v", err)
		return
	}
	defer rows.Close()

	for rows.Next() {
		var id int64
		var caseNumber string
		if err := rows.Scan(&id, &caseNumber); err != nil {
			log.Printf("ERROR: sla sweep scan failed: %v", err)
			return
		}
		log.Printf("WARNING: case %s breached its SLA deadline", caseNumber)
		w.recordBreach(ctx, id)
	}
	if err := rows.Err(); err != nil {
		log.Printf("ERROR: sla sweep failed: %v", err)
	}
}

func (w *SLAWorker) recordBreach(ctx context.Context, caseID int64) {
	actor := db.SystemActorSLASweep
	data, _ := json.Marshal(map[string]interface{}{"breached_at": time.Now().UTC()})
	_, err := w.PG.ExecContext(ctx, `
		INSERT INTO case_activity (id, case_id, type, data, actor_id)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), caseID, db.ActivitySLABreached, data, actor)
	if err != nil {
		log.Printf("ERROR: failed to record sla breach for case %d: %v", caseID, err)
	}
}
