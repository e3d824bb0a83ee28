package jobqueue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetManager(t *testing.T) {
	globalManager = nil
	managerOnce = sync.Once{}

	manager1 := GetManager()
	manager2 := GetManager()

	assert.NotNil(t, manager1)
	assert.Same(t, manager1, manager2, "GetManager should return the same instance")
	assert.NotNil(t, manager1.GetQueue())
	assert.False(t, manager1.IsRunning())
}

func TestManager_UseProcessorsAndDispatcher(t *testing.T) {
	m := NewManager(NewQueueWithClient(nil, 1))
	m.UseProcessors(&Processors{})

	_, ok := m.GetQueue().handler(JobTypeWebhookDeadLetter)
	assert.True(t, ok)
	assert.NotNil(t, m.Dispatcher())
}

func TestManager_StopWithoutStart(t *testing.T) {
	m := NewManager(NewQueueWithClient(nil, 1))
	assert.False(t, m.IsRunning())
	m.Stop()
	assert.False(t, m.IsRunning())
}
