// internal/services/licensing_service_test.go
package services

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/royalty"
	"github.com/javajoker/creative-settlement/internal/utils"
)

func TestSubmitRejectsInvalidSplits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, testCreator, "art-1", 1000)

	tests := []struct {
		name   string
		splits []royalty.Split
	}{
		{
			name: "sum below total",
			splits: []royalty.Split{
				{Identity: testCreator, BasisPoints: 6000},
				{Identity: testCollab, BasisPoints: 3000},
			},
		},
		{
			name: "primary creator not first",
			splits: []royalty.Split{
				{Identity: testCollab, BasisPoints: 3000},
				{Identity: testCreator, BasisPoints: 7000},
			},
		},
		{
			name: "duplicate identity",
			splits: []royalty.Split{
				{Identity: testCreator, BasisPoints: 5000},
				{Identity: testCreator, BasisPoints: 5000},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.licensing.Submit(ctx, testCreator, agreementRequest("art-1", tt.splits...))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvariant))
			assert.True(t, errors.Is(err, ErrValidation))
		})
	}

	var count int64
	env.db.Model(&models.LicensingAgreement{}).Count(&count)
	assert.Zero(t, count)
}

func TestSubmitValidatesTerms(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, testCreator, "art-1", 1000)
	full := royalty.Split{Identity: testCreator, BasisPoints: 10000}

	req := agreementRequest("art-1", full)
	req.TermsAccepted = false
	_, err := env.licensing.Submit(ctx, testCreator, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = agreementRequest("art-1", full)
	req.Redistribution = models.Redistribution{Kind: models.RedistributionLimited}
	_, err = env.licensing.Submit(ctx, testCreator, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = agreementRequest("art-1", full)
	req.Redistribution = models.Redistribution{Kind: models.RedistributionFull, UsageTerms: "anything"}
	_, err = env.licensing.Submit(ctx, testCreator, req)
	assert.ErrorIs(t, err, ErrValidation)

	req = agreementRequest("art-1", full)
	req.DerivativeWorks = "sometimes"
	_, err = env.licensing.Submit(ctx, testCreator, req)
	assert.ErrorIs(t, err, ErrValidation)

	_, err = env.licensing.Submit(ctx, testCreator, agreementRequest("missing", full))
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = env.licensing.Submit(ctx, "stranger", agreementRequest("art-1", full))
	assert.ErrorIs(t, err, ErrForbidden)

	req = agreementRequest("art-1", full)
	req.Redistribution = models.LimitedRedistribution("non-commercial prints only")
	agreement, err := env.licensing.Submit(ctx, testCreator, req)
	require.NoError(t, err)
	assert.Equal(t, models.RedistributionLimited, agreement.Redistribution.Kind)
	assert.Equal(t, "non-commercial prints only", agreement.Redistribution.UsageTerms)
}

func TestAgreementLifecycle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, testCreator, "art-1", 1000)
	splits := []royalty.Split{
		{Identity: testCreator, BasisPoints: 7000},
		{Identity: testCollab, BasisPoints: 3000},
	}

	agreement, err := env.licensing.Submit(ctx, testCreator, agreementRequest("art-1", splits...))
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusPending, agreement.Status)
	assert.Equal(t, testCreator, agreement.OwnerID)
	assert.Positive(t, agreement.SubmittedAt)

	pending, total, err := env.licensing.ListPending(ctx, utils.PaginationParams{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, pending, 1)

	// Not listed while pending.
	_, err = env.content.GetListedContent(ctx, "art-1")
	assert.ErrorIs(t, err, ErrNotFound)

	// A second submission by someone else is a duplicate.
	_, err = env.licensing.Submit(ctx, testAdmin, agreementRequest("art-1", splits...))
	assert.ErrorIs(t, err, ErrDuplicate)

	rejected, err := env.licensing.Reject(ctx, testAdmin, "art-1", "missing attribution")
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusRejected, rejected.Status)
	assert.Equal(t, "missing attribution", rejected.RejectionReason)

	// Rejected agreements can be neither approved nor rejected again.
	_, err = env.licensing.Approve(ctx, testAdmin, "art-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.licensing.Reject(ctx, testAdmin, "art-1", "again")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	views, err := env.licensing.GetAgreementViews(ctx, testCreator, "art-1")
	require.NoError(t, err)
	assert.Nil(t, views.Pending)
	assert.Nil(t, views.Published)

	resubmitted, err := env.licensing.Submit(ctx, testCreator, agreementRequest("art-1", splits...))
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusPending, resubmitted.Status)
	assert.Empty(t, resubmitted.RejectionReason)
	assert.Greater(t, resubmitted.SubmittedAt, agreement.SubmittedAt)

	approved, err := env.licensing.Approve(ctx, testAdmin, "art-1")
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusApproved, approved.Status)
	assert.Equal(t, testAdmin, approved.ReviewedBy)
	assert.Equal(t, splits, []royalty.Split(approved.FrozenSplits))

	listed, err := env.content.GetListedContent(ctx, "art-1")
	require.NoError(t, err)
	require.NotNil(t, listed.Agreement)
	assert.Equal(t, models.AgreementStatusApproved, listed.Agreement.Status)

	marketplace, total, err := env.content.ListMarketplace(ctx, utils.PaginationParams{Page: 1, Limit: 20})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, marketplace, 1)
	assert.Equal(t, "art-1", marketplace[0].ID)

	// Approved agreements are final for owners.
	_, err = env.licensing.Approve(ctx, testAdmin, "art-1")
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = env.licensing.Submit(ctx, testCreator, agreementRequest("art-1", splits...))
	assert.ErrorIs(t, err, ErrDuplicate)
	_, err = env.licensing.Update(ctx, testCreator, agreementRequest("art-1", splits...))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestApproveRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, testCreator, "art-1", 1000)
	_, err := env.licensing.Submit(ctx, testCreator, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	require.NoError(t, err)

	_, err = env.licensing.Approve(ctx, testCreator, "art-1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.licensing.Reject(ctx, testCreator, "art-1", "no")
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = env.licensing.Approve(ctx, testAdmin, "unknown")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestOwnerAmendsPendingAgreement(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.upload(t, testCreator, "art-1", 1000)

	_, err := env.licensing.Submit(ctx, testCreator, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	require.NoError(t, err)

	amended, err := env.licensing.Update(ctx, testCreator, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 8000},
		royalty.Split{Identity: testCollab, BasisPoints: 2000},
	))
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusPending, amended.Status)
	assert.Len(t, amended.RoyaltySplits, 2)

	_, err = env.licensing.Update(ctx, testAdmin, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	assert.ErrorIs(t, err, ErrForbidden)

	views, err := env.licensing.GetAgreementViews(ctx, testCreator, "art-1")
	require.NoError(t, err)
	require.NotNil(t, views.Pending)
	assert.Nil(t, views.Published)

	views, err = env.licensing.GetAgreementViews(ctx, testBuyer, "art-1")
	require.NoError(t, err)
	assert.Nil(t, views.Pending)

	_, err = env.licensing.GetForReview(ctx, testBuyer, "art-1")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.licensing.GetForReview(ctx, testAdmin, "art-1")
	assert.NoError(t, err)
}

func TestAdminOverrideAffectsFutureSalesOnly(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.listed(t, "art-1", 1000)

	env.pay(t, "cs_1", testBuyer, "art-1")
	first, err := env.settlement.SettlePurchase(ctx, "art-1", "cs_1", testBuyer)
	require.NoError(t, err)

	// Overrides are admin-only and must keep a valid split.
	_, err = env.licensing.AdminOverride(ctx, testCreator, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = env.licensing.AdminOverride(ctx, testAdmin, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 9000}))
	assert.ErrorIs(t, err, ErrInvariant)

	overridden, err := env.licensing.AdminOverride(ctx, testAdmin, agreementRequest("art-1",
		royalty.Split{Identity: testCreator, BasisPoints: 5000},
		royalty.Split{Identity: testCollab, BasisPoints: 5000},
	))
	require.NoError(t, err)
	assert.Equal(t, models.AgreementStatusApproved, overridden.Status)
	assert.Equal(t, int64(5000), overridden.Splits()[1].BasisPoints)

	summary, err := env.licensing.GetRoyaltySummary(ctx, "art-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5000), summary.Splits[0].BasisPoints)

	env.pay(t, "cs_2", testBuyer, "art-1")
	second, err := env.settlement.SettlePurchase(ctx, "art-1", "cs_2", testBuyer)
	require.NoError(t, err)

	// 1000 - 50 fee = 950 distributable.
	require.Len(t, first.Distribution, 2)
	assert.Equal(t, int64(665), first.Distribution[0].Amount)
	assert.Equal(t, int64(285), first.Distribution[1].Amount)
	require.Len(t, second.Distribution, 2)
	assert.Equal(t, int64(475), second.Distribution[0].Amount)
	assert.Equal(t, int64(475), second.Distribution[1].Amount)

	reloaded, err := env.settlement.GetDistribution(ctx, first.Purchase.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(665), reloaded.Distribution[0].Amount)

	// Overrides never apply to agreements that are not approved.
	env.upload(t, testCreator, "art-2", 500)
	_, err = env.licensing.Submit(ctx, testCreator, agreementRequest("art-2",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	require.NoError(t, err)
	_, err = env.licensing.AdminOverride(ctx, testAdmin, agreementRequest("art-2",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestLicensingNotifications(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.listed(t, "art-1", 1000)

	notifications, _, err := env.notification.List(ctx, NotificationFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 20},
	})
	require.NoError(t, err)

	types := make(map[string]int)
	for _, n := range notifications {
		types[n.Type]++
	}
	assert.Equal(t, 1, types[NotificationLicensingSubmitted])
	assert.Equal(t, 1, types[NotificationLicensingApproved])
}
