package project

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/kazz187/provisioner/pkg/panicerr"
)

// Coordinator fans sagas out over a bounded worker pool. Items never share
// a ledger; a failing or panicking item does not affect its siblings.
type Coordinator struct {
	concurrency int
}

// NewCoordinator returns a Coordinator running at most concurrency sagas
// at once. 1 runs a batch sequentially.
func NewCoordinator(concurrency int) *Coordinator {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Coordinator{concurrency: concurrency}
}

type batchItem struct {
	org  string
	repo string
	run  func(ctx context.Context) Outcome
}

// Run executes every item and returns the outcomes in input order. Outcomes
// are collected by org/repo key rather than completion order, so keys must
// be unique within a batch.
func (c *Coordinator) Run(ctx context.Context, op Operation, items []batchItem) BatchResult {
	var (
		mu      sync.Mutex
		results = make(map[string]Outcome, len(items))
	)
	p := pool.New().WithMaxGoroutines(c.concurrency)
	for _, item := range items {
		p.Go(func() {
			outcome, err := panicerr.Try(func() Outcome {
				return item.run(ctx)
			})
			if err != nil {
				slog.ErrorContext(ctx, "saga panicked", "org", item.org, "repo", item.repo, "error", err)
				outcome = panicked(op, item.org, item.repo, err)
			}
			mu.Lock()
			results[Key(item.org, item.repo)] = outcome
			mu.Unlock()
		})
	}
	p.Wait()

	batch := BatchResult{Operation: op, Total: len(items), Results: make([]Outcome, len(items))}
	for i, item := range items {
		outcome := results[Key(item.org, item.repo)]
		batch.Results[i] = outcome
		switch outcome.Status {
		case StatusSuccess:
			batch.Succeeded++
		case StatusPartialFailure:
			batch.Partial++
		default:
			batch.Failed++
		}
	}
	return batch
}

// panicked reports an item whose saga died outside any step. Its side
// effects are unknown, so it is marked for manual inspection.
func panicked(op Operation, org, repo string, err error) Outcome {
	now := time.Now()
	state := StateFailed
	if op == OperationDeprovision {
		state = StateIncomplete
	}
	return Outcome{
		Operation:  op,
		Org:        org,
		Repo:       repo,
		State:      state,
		Status:     StatusFailure,
		Resources:  []Resource{},
		Errors:     []StepError{{Kind: ErrorInternal, Message: fmt.Sprintf("saga panicked: %v", err)}},
		StartedAt:  now,
		FinishedAt: now,
	}
}

func (c *Coordinator) provisionItems(p *Provisioner, descriptors []Descriptor) []batchItem {
	items := make([]batchItem, len(descriptors))
	for i, d := range descriptors {
		items[i] = batchItem{org: d.Org, repo: d.Repo, run: func(ctx context.Context) Outcome {
			return p.Provision(ctx, d)
		}}
	}
	return items
}

func (c *Coordinator) deprovisionItems(p *Provisioner, org string, repos []string) []batchItem {
	items := make([]batchItem, len(repos))
	for i, repo := range repos {
		items[i] = batchItem{org: org, repo: repo, run: func(ctx context.Context) Outcome {
			return p.Deprovision(ctx, org, repo)
		}}
	}
	return items
}
