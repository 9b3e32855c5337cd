package domain

import "time"

// JobStatus is the lifecycle state of a download job.
type JobStatus string

const (
	StatusDownloading      JobStatus = "Downloading"
	StatusComplete         JobStatus = "Complete"
	StatusStalled          JobStatus = "Stalled"
	StatusReassemblyFailed JobStatus = "Reassembly Failed"
	StatusMissingChunks    JobStatus = "Missing Chunks"
	StatusError            JobStatus = "Error"
)

// Terminal reports whether the status ends a job. Terminal jobs move
// from the active registry to history.
func (s JobStatus) Terminal() bool {
	return s != StatusDownloading
}

// JobState is a point-in-time snapshot of a download job, safe to hand
// to UIs and tests.
type JobState struct {
	Hash            string    `json:"hash"`
	Name            string    `json:"name"`
	Size            int64     `json:"size"`
	TotalChunks     int       `json:"total_chunks"`
	CompletedChunks int       `json:"completed_chunks"`
	Progress        float64   `json:"progress"`
	Status          JobStatus `json:"status"`
	FinalPath       string    `json:"final_path,omitempty"`
	Timestamp       time.Time `json:"timestamp,omitzero"`
}
