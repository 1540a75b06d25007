package ingestion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"duck-ingest/internal/domain"
)

func TestPlanSourceSystem(t *testing.T) {
	f := newFixture(t)
	a := f.addMapping("A", 1)
	b := f.addMapping("B", 1)
	c := f.addMapping("C", 1)
	f.catalog.AddDependency(c.ID, a.ID)

	plan, err := f.orchestrator(Config{}).PlanSourceSystem(context.Background(), "CRM")
	require.NoError(t, err)

	assert.Equal(t, "CRM", plan.Source.Code)
	assert.Equal(t, []int64{b.ID, c.ID, a.ID}, plan.Order)
	assert.Equal(t, [][]int64{{b.ID, c.ID}, {a.ID}}, plan.Levels)
	assert.Equal(t, "C", plan.Code(c.ID))
	assert.Empty(t, plan.Code(999))
	assert.Empty(t, plan.Warnings)
	assert.Empty(t, f.catalog.Executions(), "planning must not execute")
}

func TestPlanSourceSystem_WarnsOnInactiveParent(t *testing.T) {
	f := newFixture(t)
	a := f.addMapping("A", 1)
	parent := f.catalog.AddMapping(domain.TableMapping{
		Code: "OLD", SourceSystemID: f.source.ID, SourceTable: "old", TargetTable: "old", IsActive: false,
	})
	f.catalog.AddDependency(parent.ID, a.ID)

	plan, err := f.orchestrator(Config{}).PlanSourceSystem(context.Background(), "CRM")
	require.NoError(t, err)
	assert.Equal(t, []int64{a.ID}, plan.Order)
	require.Len(t, plan.Warnings, 1)
	assert.Equal(t, parent.ID, plan.Warnings[0].ParentID)
}
