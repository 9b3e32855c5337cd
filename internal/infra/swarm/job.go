package swarm

import (
	"sync"
	"time"

	"github.com/chunkmesh-network/chunkmesh/internal/domain"
)

// Job is the mutable state of one download, shared between the worker
// pool and the observation surface.
type Job struct {
	mu       sync.Mutex
	hash     string
	name     string
	size     int64
	total    int
	done     int
	status   domain.JobStatus
	final    string
	finished time.Time
}

// NewJob creates a job in the Downloading state.
func NewJob(hash string) *Job {
	return &Job{hash: hash, status: domain.StatusDownloading}
}

// Hash returns the target file digest.
func (j *Job) Hash() string { return j.hash }

func (j *Job) setMeta(name string, size int64, total int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.name = name
	j.size = size
	j.total = total
}

func (j *Job) setCompleted(done int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done = done
}

func (j *Job) markChunkDone() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.done++
}

func (j *Job) finish(status domain.JobStatus, finalPath string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.status = status
	j.final = finalPath
	j.finished = time.Now()
}

// Status returns the job's current lifecycle state.
func (j *Job) Status() domain.JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// State snapshots the job for UIs and tests.
func (j *Job) State() domain.JobState {
	j.mu.Lock()
	defer j.mu.Unlock()

	var progress float64
	if j.total > 0 {
		progress = float64(j.done) / float64(j.total) * 100
	}
	return domain.JobState{
		Hash:            j.hash,
		Name:            j.name,
		Size:            j.size,
		TotalChunks:     j.total,
		CompletedChunks: j.done,
		Progress:        progress,
		Status:          j.status,
		FinalPath:       j.final,
		Timestamp:       j.finished,
	}
}
