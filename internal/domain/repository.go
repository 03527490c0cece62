package domain

import "context"

// UserRepository defines access methods for users and the credit ledger.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	// DeductCredits atomically subtracts amount and appends a ledger row.
	// Returns ErrInsufficientCredits without side effects when the balance is
	// too low.
	DeductCredits(ctx context.Context, userID string, amount int, description string) error
	RefundCredits(ctx context.Context, userID string, amount int, reason string) error
	GrantCredits(ctx context.Context, userID string, amount int, description string) error
}

// ListingJobRepository defines persistence for listing generation jobs.
type ListingJobRepository interface {
	Create(ctx context.Context, job *ListingJob) error
	// Claim atomically picks the oldest queued job and marks it running.
	// Returns ErrNotFound when the queue is empty.
	Claim(ctx context.Context) (*ListingJob, error)
	Complete(ctx context.Context, jobID string, status ListingJobStatus, errMsg string, bundleJSON, listingJSON []byte) error
	GetByID(ctx context.Context, jobID string) (*ListingJob, error)
}

// NicheRepository serves the classifier's keyword tables.
type NicheRepository interface {
	ListNiches(ctx context.Context) ([]Niche, error)
	// ListKeywords returns every keyword with its weight and owning niche.
	ListKeywords(ctx context.Context) ([]NicheKeyword, error)
	// LearnKeyword records a corrected label against a niche, skipping
	// duplicates.
	LearnKeyword(ctx context.Context, nicheID int, keyword string, weight float64) error
}

// NicheKeyword associates a scored keyword with a niche.
type NicheKeyword struct {
	NicheID   int
	NicheName string
	Keyword   string
	Weight    float64
}
