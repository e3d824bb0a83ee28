package jobqueue

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
)

const statsLogInterval = 5 * time.Minute

// Manager owns the global job queue and its background tasks
type Manager struct {
	queue      *Queue
	statsTick  *time.Ticker
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
	processors *Processors
}

var (
	globalManager *Manager
	managerOnce   sync.Once
)

// GetManager returns the global job queue manager (singleton)
func GetManager() *Manager {
	managerOnce.Do(func() {
		workers := DefaultWorkers
		if cfg, err := LoadConfig(); err == nil {
			workers = cfg.Workers
		} else {
			log.Warnf("[JobQueue Manager] Invalid config, using %d workers: %v", workers, err)
		}
		globalManager = NewManager(NewQueue(workers))
	})
	return globalManager
}

// NewManager wraps a queue.
func NewManager(q *Queue) *Manager {
	return &Manager{queue: q, stopCh: make(chan struct{})}
}

// GetQueue returns the managed job queue
func (m *Manager) GetQueue() *Queue {
	return m.queue
}

// Dispatcher returns a dispatcher writing to the managed queue.
func (m *Manager) Dispatcher() *Dispatcher {
	return NewDispatcher(m.queue)
}

// UseProcessors registers job handlers before Start.
func (m *Manager) UseProcessors(p *Processors) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processors = p
	p.Register(m.queue)
}

// Start starts the job queue and background tasks
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return
	}
	if m.processors == nil {
		log.Warn("[JobQueue Manager] Starting without processors, jobs will fail as unknown")
	}

	m.stopCh = make(chan struct{})
	m.running = true
	log.Info("[JobQueue Manager] Starting job queue and background tasks")

	m.queue.Start()

	m.statsTick = time.NewTicker(statsLogInterval)
	m.wg.Add(1)
	go m.statsWorker()

	log.Info("[JobQueue Manager] Started successfully")
}

// Stop stops the job queue and background tasks
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	log.Info("[JobQueue Manager] Stopping job queue and background tasks...")
	if m.statsTick != nil {
		m.statsTick.Stop()
	}
	close(m.stopCh)
	m.running = false
	m.wg.Wait()

	m.queue.Stop()
	log.Info("[JobQueue Manager] Stopped successfully")
}

// statsWorker periodically logs queue depth
func (m *Manager) statsWorker() {
	defer m.wg.Done()
	for {
		select {
		case <-m.stopCh:
			return
		case <-m.statsTick.C:
			stats, err := m.queue.Stats(context.Background())
			if err != nil {
				log.Errorf("[JobQueue Manager] Stats error: %v", err)
				continue
			}
			log.Infof("[JobQueue Manager] pending=%d processing=%d delayed=%d completed=%d failed=%d",
				stats.Pending, stats.Processing, stats.Delayed, stats.Statuses[JobStatusCompleted], stats.Statuses[JobStatusFailed])
		}
	}
}

// IsRunning returns whether the manager is currently running
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}
