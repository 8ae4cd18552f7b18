package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/saraya-erp/saraya-erp/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskBedChargeAccrual posts the nightly bed charge accruals.
	TaskBedChargeAccrual = "finance:bed_charge_accrual"
	// TaskGLIntegrity scans the ledger for entries that do not balance.
	TaskGLIntegrity = "finance:gl_integrity"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BedChargePayload selects the service day to accrue. An empty day means yesterday.
type BedChargePayload struct {
	Day     string `json:"day,omitempty"`
	ActorID int64  `json:"actor_id,omitempty"`
}

// NewBedChargeTask constructs the accrual task.
func NewBedChargeTask(payload BedChargePayload) (*asynq.Task, error) {
	if payload.Day != "" {
		if _, err := time.Parse(time.DateOnly, payload.Day); err != nil {
			return nil, fmt.Errorf("bed charge: day %q must be YYYY-MM-DD", payload.Day)
		}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskBedChargeAccrual, data, asynq.Queue(QueueDefault)), nil
}

// GLIntegrityPayload narrows the scan to one hospital. Zero scans all.
type GLIntegrityPayload struct {
	HospitalID int64 `json:"hospital_id,omitempty"`
}

// NewGLIntegrityTask constructs the integrity scan task.
func NewGLIntegrityTask(payload GLIntegrityPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskGLIntegrity, data, asynq.Queue(QueueDefault)), nil
}
