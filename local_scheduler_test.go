package revisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/petrijr/revisor/pkg/scheduler"
)

func TestLocalSchedulerSynchronousRun(t *testing.T) {
	ctx := context.Background()
	local := NewLocalScheduler()

	require.NoError(t, local.Store.SaveWorkflow(testWorkflow()))
	doc := &Document{ID: "page-1", Kind: "page", WorkflowID: "editorial"}
	require.NoError(t, local.Store.SaveDocument(ctx, doc))
	revID, err := local.Store.SaveAsNewRevision(ctx, doc.ID, NewBasicRevision("draft"))
	require.NoError(t, err)

	job, err := Schedule(doc.ID).
		Revision(revID).
		To("published").
		At(time.Now()).
		BuildAndSave(ctx, local.Store)
	require.NoError(t, err)

	require.NoError(t, local.Runner.RunTransition(ctx, job))

	latestID, err := local.Store.LatestRevisionID(ctx, doc.ID)
	require.NoError(t, err)
	latest, err := local.Store.LoadRevision(ctx, doc.ID, latestID)
	require.NoError(t, err)
	assert.Equal(t, "published", latest.State())

	_, err = local.Store.GetJob(ctx, job.ID)
	assert.True(t, errors.Is(err, ErrJobNotFound))
}

func TestLocalSchedulerBackgroundRun(t *testing.T) {
	ctx := context.Background()
	local := NewLocalSchedulerWithConfig(scheduler.Config{
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, local.Store.SaveWorkflow(testWorkflow()))
	doc := &Document{ID: "page-1", Kind: "page", WorkflowID: "editorial"}
	require.NoError(t, local.Store.SaveDocument(ctx, doc))
	revID, err := local.Store.SaveAsNewRevision(ctx, doc.ID, NewBasicRevision("draft"))
	require.NoError(t, err)

	require.NoError(t, local.Start(ctx, 1))
	defer local.Stop()

	// Starting twice without Stop is refused.
	require.Error(t, local.Start(ctx, 1))

	job, err := Schedule(doc.ID).
		Revision(revID).
		To("published").
		At(time.Now().Add(-time.Second)).
		BuildAndSave(ctx, local.Store)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		_, err := local.Store.GetJob(ctx, job.ID)
		return errors.Is(err, ErrJobNotFound)
	}, 5*time.Second, 10*time.Millisecond, "transition was not executed")

	latestID, err := local.Store.LatestRevisionID(ctx, doc.ID)
	require.NoError(t, err)
	latest, err := local.Store.LoadRevision(ctx, doc.ID, latestID)
	require.NoError(t, err)
	assert.Equal(t, "published", latest.State())
}

func TestLocalSchedulerMultiplePollers(t *testing.T) {
	ctx := context.Background()
	local := NewLocalSchedulerWithConfig(scheduler.Config{
		PollInterval: 10 * time.Millisecond,
	})

	require.NoError(t, local.Store.SaveWorkflow(testWorkflow()))

	var jobIDs []string
	for _, docID := range []string{"page-1", "page-2", "page-3"} {
		doc := &Document{ID: docID, Kind: "page", WorkflowID: "editorial"}
		require.NoError(t, local.Store.SaveDocument(ctx, doc))
		revID, err := local.Store.SaveAsNewRevision(ctx, doc.ID, NewBasicRevision("draft"))
		require.NoError(t, err)

		job, err := Schedule(doc.ID).
			Revision(revID).
			To("published").
			At(time.Now().Add(-time.Second)).
			BuildAndSave(ctx, local.Store)
		require.NoError(t, err)
		jobIDs = append(jobIDs, job.ID)
	}

	require.NoError(t, local.Start(ctx, 3))
	defer local.Stop()

	require.Eventually(t, func() bool {
		for _, id := range jobIDs {
			if _, err := local.Store.GetJob(ctx, id); !errors.Is(err, ErrJobNotFound) {
				return false
			}
		}
		return true
	}, 5*time.Second, 10*time.Millisecond, "not all transitions executed")

	for _, docID := range []string{"page-1", "page-2", "page-3"} {
		latestID, err := local.Store.LatestRevisionID(ctx, docID)
		require.NoError(t, err)
		latest, err := local.Store.LoadRevision(ctx, docID, latestID)
		require.NoError(t, err)
		assert.Equal(t, "published", latest.State())
	}
}

func TestLocalSchedulerStopIsIdempotent(t *testing.T) {
	local := NewLocalScheduler()
	require.NoError(t, local.Start(context.Background(), 1))
	local.Stop()
	local.Stop()

	// A stopped scheduler can be started again.
	require.NoError(t, local.Start(context.Background(), 1))
	local.Stop()
}
