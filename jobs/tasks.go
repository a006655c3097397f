package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskTypePurgePending is the task type for purging stale unverified accounts.
	TaskTypePurgePending = "auth:purge-pending"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data), nil
}

// PurgePendingPayload configures the stale-registration sweep.
type PurgePendingPayload struct {
	// OlderThanHours is how long past the verification expiry a PENDING
	// account must be before it is removed.
	OlderThanHours int `json:"older_than_hours"`
}

// NewPurgePendingTask constructs the cleanup task.
func NewPurgePendingTask(olderThanHours int) (*asynq.Task, error) {
	if olderThanHours <= 0 {
		olderThanHours = 24
	}
	data, err := json.Marshal(PurgePendingPayload{OlderThanHours: olderThanHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePurgePending, data), nil
}
