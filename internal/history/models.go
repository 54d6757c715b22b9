package history

import "time"

// Deployment request outcomes.
const (
	StatusInitiated = "initiated"
	StatusFailed    = "failed"
)

// Record is one full-deployment request as seen by the façade. HostPort is
// recorded even when the request later fails, so ports lost to failed
// deployments stay auditable.
type Record struct {
	ID           int64
	Subdomain    string
	ProjectName  string
	AppName      string
	ProjectUUID  *string
	AppUUID      *string
	HostPort     *int
	Status       string
	ErrorMessage *string
	CreatedAt    time.Time
}
