package jobqueue

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJob_IsRetryable(t *testing.T) {
	tests := []struct {
		name      string
		job       *Job
		retryable bool
	}{
		{"Failed job with retries remaining", &Job{Status: JobStatusFailed, RetryCount: 1, MaxRetries: 3}, true},
		{"Failed job with no retries remaining", &Job{Status: JobStatusFailed, RetryCount: 3, MaxRetries: 3}, false},
		{"Completed job", &Job{Status: JobStatusCompleted, RetryCount: 1, MaxRetries: 3}, false},
		{"Pending job", &Job{Status: JobStatusPending, MaxRetries: 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.retryable, tt.job.IsRetryable())
		})
	}
}

func TestJob_StatusTransitions(t *testing.T) {
	job := &Job{Status: JobStatusPending, MaxRetries: 3}
	before := time.Now()

	job.MarkAsProcessing()
	assert.Equal(t, JobStatusProcessing, job.Status)
	require.NotNil(t, job.ProcessedAt)
	assert.False(t, job.UpdatedAt.Before(before))

	job.MarkAsFailed("smtp timeout")
	assert.Equal(t, JobStatusFailed, job.Status)
	assert.Equal(t, "smtp timeout", job.ErrorMsg)
	assert.Equal(t, 1, job.RetryCount)

	job.MarkAsRetrying()
	assert.Equal(t, JobStatusRetrying, job.Status)

	job.MarkAsCompleted()
	assert.Equal(t, JobStatusCompleted, job.Status)
	assert.NotNil(t, job.CompletedAt)
	assert.Empty(t, job.ErrorMsg)
}

func TestPayloadTimesSurviveMapEncoding(t *testing.T) {
	at := time.Date(2024, 6, 12, 16, 45, 3, 120, time.UTC)

	paid, err := OrderPaidNotificationPayloadFromMap(OrderPaidNotificationPayload{OrderID: "o1", ConfirmedAt: at}.ToMap())
	require.NoError(t, err)
	assert.True(t, paid.ConfirmedAt.Equal(at))

	dl, err := WebhookDeadLetterPayloadFromMap(WebhookDeadLetterPayload{ProviderEventID: "evt", Body: `{"a":1}`, ReceivedAt: at}.ToMap())
	require.NoError(t, err)
	assert.Equal(t, `{"a":1}`, dl.Body)
	assert.True(t, dl.ReceivedAt.Equal(at))
}

func TestPayloadFromMapErrors(t *testing.T) {
	invalid := map[string]interface{}{"invalid": make(chan int)}

	_, err := OrderPaidNotificationPayloadFromMap(invalid)
	assert.Error(t, err)
	_, err = OrderStatusAnomalyPayloadFromMap(map[string]interface{}{"at": "yesterday"})
	assert.Error(t, err)
}
