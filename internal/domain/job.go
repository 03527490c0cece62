package domain

import "time"

// ListingJobStatus enumerates job lifecycle states.
type ListingJobStatus string

const (
	ListingJobStatusQueued    ListingJobStatus = "queued"
	ListingJobStatusRunning   ListingJobStatus = "running"
	ListingJobStatusSucceeded ListingJobStatus = "succeeded"
	ListingJobStatusFailed    ListingJobStatus = "failed"
)

// ListingJob encapsulates the lifecycle of one upload-to-listing generation run.
type ListingJob struct {
	ID           string
	UserID       string
	Status       ListingJobStatus
	ImagePath    string
	CountryCode  string
	BundleJSON   []byte
	ListingJSON  []byte
	ErrorMessage string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
