package instance

import "github.com/angelmondragon/farmbid-backend/pkg/env"

// GetID identifies this process for cron lock ownership and Pub/Sub consumer
// logs. FARMBID_WORKER_ID wins over the container HOSTNAME.
func GetID() string {
	return env.First("worker-0", "FARMBID_WORKER_ID", "HOSTNAME")
}
