package project

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedger_CompensateRunsInReverse(t *testing.T) {
	var order []string
	undo := func(name string) UndoFunc {
		return func(context.Context) error {
			order = append(order, name)
			return nil
		}
	}
	l := &Ledger{}
	l.Record(Resource{Kind: KindRepository, Name: "r"}, StepDeleteRepository, undo("repo"))
	l.Record(Resource{Kind: KindTeam, Name: "t"}, StepDeleteTeam, undo("team"))
	l.Record(Resource{Kind: KindPermission, Name: "p"}, StepRevokePermission, undo("perm"))

	resources, errs := l.Compensate(context.Background())

	assert.Empty(t, errs)
	assert.Equal(t, []string{"perm", "team", "repo"}, order)
	assert.Equal(t, []ResourceKind{KindRepository, KindTeam, KindPermission}, kinds(resources))
	for _, r := range resources {
		assert.Equal(t, ResourceRolledBack, r.State)
	}
}

func TestLedger_CompensateNeverShortCircuits(t *testing.T) {
	var ran []Step
	l := &Ledger{}
	l.Record(Resource{Kind: KindRepository, Name: "r"}, StepDeleteRepository, func(context.Context) error {
		ran = append(ran, StepDeleteRepository)
		return nil
	})
	l.Record(Resource{Kind: KindTeam, Name: "t"}, StepDeleteTeam, func(context.Context) error {
		ran = append(ran, StepDeleteTeam)
		panic("team undo exploded")
	})
	l.Record(Resource{Kind: KindQualityProject, Name: "q"}, StepDeleteQualityProject, func(context.Context) error {
		ran = append(ran, StepDeleteQualityProject)
		return errors.New("quality down")
	})

	resources, errs := l.Compensate(context.Background())

	assert.Equal(t, []Step{StepDeleteQualityProject, StepDeleteTeam, StepDeleteRepository}, ran)
	require.Len(t, errs, 2)
	assert.Equal(t, StepDeleteQualityProject, errs[0].Step)
	assert.EqualError(t, errs[0].Err, "quality down")
	assert.Equal(t, StepDeleteTeam, errs[1].Step)
	assert.Contains(t, errs[1].Error(), "team undo exploded")
	assert.Equal(t, ResourceRolledBack, resources[0].State)
	assert.Equal(t, ResourceRemaining, resources[1].State)
	assert.Equal(t, ResourceRemaining, resources[2].State)
}

func TestLedger_ExistingIsLeftAlone(t *testing.T) {
	l := &Ledger{}
	l.RecordExisting(Resource{Kind: KindTeam, Name: "platform"})
	l.Record(Resource{Kind: KindPermission, Name: "p"}, StepRevokePermission, func(context.Context) error { return nil })

	assert.Equal(t, 2, l.Len())
	resources, errs := l.Compensate(context.Background())

	assert.Empty(t, errs)
	assert.Equal(t, Resource{Kind: KindTeam, Name: "platform", PreExisting: true, State: ResourceExisting}, resources[0])
	assert.Equal(t, ResourceRolledBack, resources[1].State)
}

func TestLedger_Kinds(t *testing.T) {
	l := &Ledger{}
	assert.Empty(t, l.Kinds())
	noop := func(context.Context) error { return nil }
	l.Record(Resource{Kind: KindRepository}, StepDeleteRepository, noop)
	l.Record(Resource{Kind: KindSecret, Name: "A"}, StepDeleteSecret, noop)
	l.Record(Resource{Kind: KindSecret, Name: "B"}, StepDeleteSecret, noop)

	assert.Equal(t, []ResourceKind{KindRepository, KindSecret}, l.Kinds())
	assert.Equal(t, 3, l.Len())
}

func TestLedger_CompensateUsesGivenContext(t *testing.T) {
	type key struct{}
	ctx := context.WithValue(context.Background(), key{}, "run")
	var got any
	l := &Ledger{}
	l.Record(Resource{Kind: KindRepository}, StepDeleteRepository, func(ctx context.Context) error {
		got = ctx.Value(key{})
		return nil
	})

	l.Compensate(ctx)

	assert.Equal(t, "run", got)
}
