package revisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleBuildsTransition(t *testing.T) {
	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	job := Schedule("page-1").
		Revision(42).
		To("published").
		At(at).
		By("editor@example.com").
		Workflow("editorial").
		Language("fi").
		RecreateNonDefaultHead().
		Build()

	require.NotEmpty(t, job.ID)
	assert.Equal(t, "page-1", job.DocumentID)
	assert.Equal(t, int64(42), job.RevisionID)
	assert.Equal(t, "published", job.StateID)
	assert.True(t, job.TransitionOn.Equal(at))
	assert.Equal(t, "editor@example.com", job.Author)
	assert.Equal(t, "editorial", job.WorkflowID)
	assert.Equal(t, "fi", job.Language)
	assert.True(t, job.RecreateNonDefaultHead())
}

func TestScheduleAssignsUniqueIDs(t *testing.T) {
	b := Schedule("page-1").To("published")
	first := b.Build()
	second := b.Build()
	require.NotEqual(t, first.ID, second.ID)

	// Each built job owns its options bag.
	first.SetOption("k", "v")
	_, ok := second.Options["k"]
	assert.False(t, ok)
}

func TestScheduleDynamicRevision(t *testing.T) {
	job := Schedule("page-1").To("published").Build()
	assert.Zero(t, job.RevisionID)
	assert.False(t, job.RecreateNonDefaultHead())
}

func TestSchedulePanicsOnMissingFields(t *testing.T) {
	assert.Panics(t, func() {
		Schedule("").To("published").Build()
	})
	assert.Panics(t, func() {
		Schedule("page-1").Build()
	})
}

func TestBuildAndSave(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()

	job, err := Schedule("page-1").
		To("published").
		At(time.Now()).
		Option("note", "campaign end").
		BuildAndSave(ctx, store)
	require.NoError(t, err)

	got, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "page-1", got.DocumentID)
	assert.Equal(t, "campaign end", got.Options["note"])
}
