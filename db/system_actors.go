package db

// System actor ids. These rows are seeded by the schema migration and
// referenced whenever an action has no human behind it, so that actor_id
// columns can stay NOT NULL.
const (
	SystemActorGrafana  int64 = 1
	SystemActorSLASweep int64 = 2
	SystemActorAPI      int64 = 3
)

// GetSystemActorBySource returns the system actor for an automated source.
func GetSystemActorBySource(source string) int64 {
	switch source {
	case "grafana", "webhook":
		return SystemActorGrafana
	case "sla", "sla_sweep":
		return SystemActorSLASweep
	default:
		return SystemActorAPI
	}
}
