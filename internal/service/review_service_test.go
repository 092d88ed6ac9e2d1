package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/skopiLandToken/skopi-sub000/internal/errors"
	"github.com/skopiLandToken/skopi-sub000/internal/events"
	"github.com/skopiLandToken/skopi-sub000/internal/models"
	"github.com/skopiLandToken/skopi-sub000/internal/storage"
	"github.com/skopiLandToken/skopi-sub000/internal/types"
)

func (fx *submissionFixture) pending(t *testing.T, campaignID, taskID, proof string) *models.Submission {
	t.Helper()
	result, err := fx.submit.Submit(context.Background(), SubmitInput{CampaignID: campaignID, TaskID: taskID, Wallet: newKey(), EvidenceURL: proof})
	require.NoError(t, err)
	require.True(t, result.OK)
	require.Equal(t, types.SubmissionPendingReview, result.Submission.State)
	return result.Submission
}

func TestReview_ApproveAllocatesBounty(t *testing.T) {
	fx := newSubmissionFixture()
	ctx := context.Background()
	c := fx.activeCampaign(t, int64Ptr(100), nil, 0)
	task := fx.task(t, c.ID, CreateTaskInput{BountyTokens: 40, RequiresReview: true})

	a := fx.pending(t, c.ID, task.ID, "https://x.com/p/1")
	b := fx.pending(t, c.ID, task.ID, "https://x.com/p/2")
	d := fx.pending(t, c.ID, task.ID, "https://x.com/p/3")
	assert.Empty(t, fx.ledger.allocations, "manual submissions allocate nothing until approved")

	batch, err := fx.review.Approve(ctx, []string{a.ID, b.ID, a.ID, d.ID, "missing"}, "mod")
	require.NoError(t, err)
	require.Len(t, batch.Results, 4)
	assert.Equal(t, 2, batch.Succeeded)
	assert.Equal(t, 2, batch.Failed)

	assert.True(t, batch.Results[0].OK)
	assert.Equal(t, types.SubmissionVerifiedManual, batch.Results[0].State)
	assert.True(t, batch.Results[1].OK)

	// third bounty no longer fits in the pool; the submission stays pending
	assert.False(t, batch.Results[2].OK)
	assert.Equal(t, string(types.ReasonInsufficientPool), batch.Results[2].Error)
	assert.Equal(t, types.SubmissionPendingReview, batch.Results[2].State)
	assert.Equal(t, types.SubmissionPendingReview, fx.ledger.submissions[d.ID].State)

	assert.Equal(t, string(types.ReasonSubmissionNotFound), batch.Results[3].Error)

	assert.Equal(t, int64(80), fx.ledger.campaigns[c.ID].DistributedTokens)
	assert.Equal(t, 2, fx.publisher.count(events.AirdropAllocated))

	again, err := fx.review.Approve(ctx, []string{a.ID}, "mod")
	require.NoError(t, err)
	assert.Equal(t, string(types.ReasonSubmissionNotPending), again.Results[0].Error)
	assert.Equal(t, int64(80), fx.ledger.campaigns[c.ID].DistributedTokens)
}

func TestReview_RejectLeavesPoolUntouched(t *testing.T) {
	fx := newSubmissionFixture()
	ctx := context.Background()
	c := fx.activeCampaign(t, int64Ptr(100), nil, 0)
	task := fx.task(t, c.ID, CreateTaskInput{BountyTokens: 40, RequiresReview: true})
	sub := fx.pending(t, c.ID, task.ID, "https://x.com/p/1")

	batch, err := fx.review.Reject(ctx, []string{sub.ID}, "mod", "   ")
	require.NoError(t, err)
	assert.Equal(t, string(types.ReasonRejectReasonRequired), batch.Results[0].Error)
	assert.Equal(t, types.SubmissionPendingReview, fx.ledger.submissions[sub.ID].State)

	batch, err = fx.review.Reject(ctx, []string{sub.ID}, "mod", "not the right account")
	require.NoError(t, err)
	require.True(t, batch.Results[0].OK)
	assert.Equal(t, types.SubmissionRevoked, batch.Results[0].State)
	assert.Zero(t, fx.ledger.campaigns[c.ID].DistributedTokens)

	approve, err := fx.review.Approve(ctx, []string{sub.ID}, "mod")
	require.NoError(t, err)
	assert.Equal(t, string(types.ReasonSubmissionNotPending), approve.Results[0].Error)
}

func TestReview_BatchValidation(t *testing.T) {
	fx := newSubmissionFixture()
	ctx := context.Background()

	_, err := fx.review.Approve(ctx, nil, "mod")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParameter))

	_, err = fx.review.Approve(ctx, []string{"a"}, " ")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParameter))

	ids := make([]string, MaxReviewBatch+1)
	for i := range ids {
		ids[i] = newKey()
	}
	_, err = fx.review.Reject(ctx, ids, "mod", "x")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParameter))
}

// flakySubmissions fails the first approval with a storage error
type flakySubmissions struct {
	fakeSubmissions
	failID string
}

func (f flakySubmissions) Approve(ctx context.Context, id, reviewer string) (*storage.ReviewOutcome, error) {
	if id == f.failID {
		return nil, apperrors.NewDatabaseError("lock submission", errors.New("deadlock detected"))
	}
	return f.fakeSubmissions.Approve(ctx, id, reviewer)
}

func TestReview_StoreErrorDoesNotAbortBatch(t *testing.T) {
	fx := newSubmissionFixture()
	ctx := context.Background()
	c := fx.activeCampaign(t, int64Ptr(100), nil, 0)
	task := fx.task(t, c.ID, CreateTaskInput{BountyTokens: 10, RequiresReview: true})
	a := fx.pending(t, c.ID, task.ID, "https://x.com/p/1")
	b := fx.pending(t, c.ID, task.ID, "https://x.com/p/2")

	review := NewReviewService(flakySubmissions{fakeSubmissions{fx.ledger}, a.ID}, nil)
	batch, err := review.Approve(ctx, []string{a.ID, b.ID}, "mod")
	require.NoError(t, err)
	assert.Equal(t, apperrors.CodeDatabaseError, batch.Results[0].Error)
	assert.True(t, batch.Results[1].OK)
}

func TestReview_PendingQueue(t *testing.T) {
	fx := newSubmissionFixture()
	ctx := context.Background()
	c := fx.activeCampaign(t, int64Ptr(100), nil, 0)
	other := fx.activeCampaign(t, int64Ptr(100), nil, 0)
	task := fx.task(t, c.ID, CreateTaskInput{BountyTokens: 10, RequiresReview: true})
	otherTask := fx.task(t, other.ID, CreateTaskInput{BountyTokens: 10, RequiresReview: true})

	a := fx.pending(t, c.ID, task.ID, "https://x.com/p/1")
	b := fx.pending(t, c.ID, task.ID, "https://x.com/p/2")
	d := fx.pending(t, c.ID, task.ID, "https://x.com/p/3")
	fx.pending(t, other.ID, otherTask.ID, "https://x.com/p/4")

	_, err := fx.review.Reject(ctx, []string{b.ID}, "mod", "spam")
	require.NoError(t, err)

	queue, err := fx.review.ListPending(ctx, c.ID, 0)
	require.NoError(t, err)
	require.Len(t, queue, 2)
	assert.Equal(t, a.ID, queue[0].ID, "oldest first")
	assert.Equal(t, d.ID, queue[1].ID)

	limited, err := fx.review.ListPending(ctx, c.ID, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, a.ID, limited[0].ID)

	empty, err := fx.review.ListPending(ctx, newKey(), 10)
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)

	got, err := fx.review.GetSubmission(ctx, " "+b.ID+" ")
	require.NoError(t, err)
	assert.Equal(t, types.SubmissionRevoked, got.State)
	require.NotNil(t, got.ReviewNotes)
	assert.Equal(t, "spam", *got.ReviewNotes)

	_, err = fx.review.GetSubmission(ctx, "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeSubmissionNotFound))
}
