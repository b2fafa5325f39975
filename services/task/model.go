package task

import (
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

var (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

// SweepRun is the execution record of one scheduled or manual task run.
type SweepRun struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	Task        string         `gorm:"column:task;index;type:varchar(100);not null" json:"task"`
	Trigger     string         `gorm:"column:triggered_by;type:varchar(20)" json:"triggered_by"`
	Status      RunStatus      `gorm:"column:status;type:varchar(20);default:'pending'" json:"status"`
	ErrorMsg    string         `gorm:"column:error_msg;type:text" json:"error,omitempty"`
	StartedAt   *time.Time     `gorm:"column:started_at" json:"started_at,omitempty"`
	CompletedAt *time.Time     `gorm:"column:completed_at" json:"completed_at,omitempty"`
	CreatedAt   time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	Metadata    datatypes.JSON `gorm:"column:metadata" json:"metadata,omitempty"`
}

func (SweepRun) TableName() string {
	return "sweep_runs"
}
