package project

import "context"

// Repository keeps the outcome of every saga run, so resources left behind
// by a partial failure can be traced after the response is gone.
type Repository interface {
	Create(ctx context.Context, outcome *Outcome) error
	// List returns the outcomes recorded for org/repo, newest first. A
	// limit of zero returns all of them.
	List(ctx context.Context, org, repo string, limit int) ([]*Outcome, error)
}
