package api

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Job statuses
const (
	JobPrinting  = "printing"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// JobRecord represents a direct print job
type JobRecord struct {
	ID          string     `json:"id"`
	PrinterID   string     `json:"printer_id"`
	Kind        string     `json:"kind"` // labels or test
	Status      string     `json:"status"`
	Tiles       int        `json:"tiles,omitempty"`
	DataSize    int        `json:"data_size"`
	CreatedAt   time.Time  `json:"created_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// JobBuffer is a thread-safe ring buffer for job records
type JobBuffer struct {
	mu      sync.RWMutex
	entries []JobRecord
	cap     int
}

// NewJobBuffer creates a new job buffer with the given capacity
func NewJobBuffer(capacity int) *JobBuffer {
	return &JobBuffer{
		entries: make([]JobRecord, 0, capacity),
		cap:     capacity,
	}
}

// Start records a new job in the printing state and returns its ID
func (jb *JobBuffer) Start(printerID, kind string, tiles int) string {
	job := JobRecord{
		ID:        uuid.NewString(),
		PrinterID: printerID,
		Kind:      kind,
		Status:    JobPrinting,
		Tiles:     tiles,
		CreatedAt: time.Now(),
	}

	jb.mu.Lock()
	defer jb.mu.Unlock()
	if len(jb.entries) >= jb.cap {
		copy(jb.entries, jb.entries[1:])
		jb.entries[len(jb.entries)-1] = job
	} else {
		jb.entries = append(jb.entries, job)
	}
	return job.ID
}

// Finish marks a job completed, or failed when err is not nil
func (jb *JobBuffer) Finish(jobID string, dataSize int, err error) {
	jb.mu.Lock()
	defer jb.mu.Unlock()

	for i := len(jb.entries) - 1; i >= 0; i-- {
		if jb.entries[i].ID != jobID {
			continue
		}
		now := time.Now()
		jb.entries[i].CompletedAt = &now
		jb.entries[i].DataSize = dataSize
		jb.entries[i].Status = JobCompleted
		if err != nil {
			jb.entries[i].Status = JobFailed
			jb.entries[i].Error = err.Error()
		}
		return
	}
}

// Entries returns all job records (newest first)
func (jb *JobBuffer) Entries() []JobRecord {
	jb.mu.RLock()
	defer jb.mu.RUnlock()

	result := make([]JobRecord, len(jb.entries))
	for i, j := 0, len(jb.entries)-1; j >= 0; i, j = i+1, j-1 {
		result[i] = jb.entries[j]
	}
	return result
}
