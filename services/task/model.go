package task

import (
	"time"

	"gorm.io/datatypes"
)

// Job is the audit trail for one scheduled enqueue: which batch was handed
// to the queue, for which period, and whether the handoff succeeded.
type Job struct {
	ID        string         `gorm:"column:id;primaryKey"`
	TaskName  string         `gorm:"column:task_name;index;not null"`
	Period    string         `gorm:"column:period;index;not null"`
	Status    string         `gorm:"column:status;type:varchar(20);default:'pending'"` // pending|enqueued|failed
	ErrorMsg  string         `gorm:"column:error_msg;type:text"`
	Metadata  datatypes.JSON `gorm:"column:metadata"`
	CreatedAt time.Time      `gorm:"autoCreateTime"`
	UpdatedAt time.Time      `gorm:"autoUpdateTime"`
}

func (Job) TableName() string {
	return "jobs"
}
