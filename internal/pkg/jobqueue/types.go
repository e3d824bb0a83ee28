package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypeOrderPaidNotification JobType = "order_paid_notification"
	JobTypeOrderStatusAnomaly    JobType = "order_status_anomaly"
	JobTypeWebhookDeadLetter     JobType = "webhook_dead_letter"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// OrderPaidNotificationPayload asks for the "payment confirmed" customer mail
type OrderPaidNotificationPayload struct {
	OrderID     string    `json:"order_id"`
	PaymentID   string    `json:"payment_id"`
	Event       string    `json:"event"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// ToMap converts the payload to a map for storage
func (p OrderPaidNotificationPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"order_id":     p.OrderID,
		"payment_id":   p.PaymentID,
		"event":        p.Event,
		"confirmed_at": p.ConfirmedAt.UTC().Format(time.RFC3339Nano),
	}
}

// OrderPaidNotificationPayloadFromMap creates a payload from a map
func OrderPaidNotificationPayloadFromMap(data map[string]interface{}) (*OrderPaidNotificationPayload, error) {
	var payload OrderPaidNotificationPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// OrderStatusAnomalyPayload describes a transition outside the lifecycle table
type OrderStatusAnomalyPayload struct {
	OrderID    string    `json:"order_id"`
	FromStatus string    `json:"from_status"`
	ToStatus   string    `json:"to_status"`
	Event      string    `json:"event"`
	PaymentID  string    `json:"payment_id"`
	At         time.Time `json:"at"`
}

// ToMap converts the payload to a map for storage
func (p OrderStatusAnomalyPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"order_id":    p.OrderID,
		"from_status": p.FromStatus,
		"to_status":   p.ToStatus,
		"event":       p.Event,
		"payment_id":  p.PaymentID,
		"at":          p.At.UTC().Format(time.RFC3339Nano),
	}
}

// OrderStatusAnomalyPayloadFromMap creates a payload from a map
func OrderStatusAnomalyPayloadFromMap(data map[string]interface{}) (*OrderStatusAnomalyPayload, error) {
	var payload OrderStatusAnomalyPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

// WebhookDeadLetterPayload carries an unmatched webhook delivery
type WebhookDeadLetterPayload struct {
	Provider        string    `json:"provider"`
	ProviderEventID string    `json:"provider_event_id"`
	Event           string    `json:"event"`
	PaymentID       string    `json:"payment_id"`
	Path            string    `json:"path"`
	Reason          string    `json:"reason"`
	Body            string    `json:"body"` // raw webhook JSON
	ReceivedAt      time.Time `json:"received_at"`
}

// ToMap converts the payload to a map for storage
func (p WebhookDeadLetterPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"provider":          p.Provider,
		"provider_event_id": p.ProviderEventID,
		"event":             p.Event,
		"payment_id":        p.PaymentID,
		"path":              p.Path,
		"reason":            p.Reason,
		"body":              p.Body,
		"received_at":       p.ReceivedAt.UTC().Format(time.RFC3339Nano),
	}
}

// WebhookDeadLetterPayloadFromMap creates a payload from a map
func WebhookDeadLetterPayloadFromMap(data map[string]interface{}) (*WebhookDeadLetterPayload, error) {
	var payload WebhookDeadLetterPayload
	if err := decodePayload(data, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func decodePayload(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
