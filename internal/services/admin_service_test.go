// internal/services/admin_service_test.go
package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/javajoker/creative-settlement/internal/royalty"
	"github.com/javajoker/creative-settlement/internal/utils"
)

func TestDashboardStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.listed(t, "art-1", 1000)
	env.upload(t, testCreator, "art-2", 500)
	_, err := env.licensing.Submit(ctx, testCreator, agreementRequest("art-2",
		royalty.Split{Identity: testCreator, BasisPoints: 10000}))
	require.NoError(t, err)
	_, err = env.access.RequestApproval(ctx, testBuyer)
	require.NoError(t, err)

	env.pay(t, "cs_1", testBuyer, "art-1")
	_, err = env.settlement.SettlePurchase(ctx, "art-1", "cs_1", testBuyer)
	require.NoError(t, err)

	stats, err := env.admin.GetDashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.TotalContent)
	assert.Equal(t, int64(1), stats.ListedContent)
	assert.Equal(t, int64(1), stats.PendingAgreements)
	assert.Equal(t, int64(1), stats.ApprovedAgreements)
	assert.Equal(t, int64(1), stats.TotalPurchases)
	assert.Equal(t, int64(1), stats.PurchasesThisMonth)
	assert.Equal(t, int64(1000), stats.GrossVolume)
	assert.Equal(t, int64(50), stats.PlatformFees)
	assert.Equal(t, int64(950), stats.AccruedRoyalties)
	assert.Equal(t, int64(1), stats.PendingApprovals)
	assert.Positive(t, stats.UnreadNotifications)
}

func TestAnalytics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.listed(t, "art-1", 1000)
	env.pay(t, "cs_1", testBuyer, "art-1")
	_, err := env.settlement.SettlePurchase(ctx, "art-1", "cs_1", testBuyer)
	require.NoError(t, err)

	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)
	analytics, err := env.admin.GetAnalytics(ctx, start, end,
		[]string{"content_uploads", "licensing_submissions", "purchases", "gross_volume", "platform_fees", "unknown"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), analytics["content_uploads"])
	assert.Equal(t, int64(1), analytics["licensing_submissions"])
	assert.Equal(t, int64(1), analytics["purchases"])
	assert.Equal(t, int64(1000), analytics["gross_volume"])
	assert.Equal(t, int64(50), analytics["platform_fees"])
	assert.NotContains(t, analytics, "unknown")
}

func TestAuditLogs(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.admin.RecordAction(ctx, testAdmin, "approve_licensing", "licensing_agreement", "art-1",
		map[string]interface{}{"status": "pending"}, map[string]interface{}{"status": "approved"})
	env.admin.RecordAction(ctx, testAdmin, "assign_role", "user_role", testCreator, nil, map[string]interface{}{"role": "admin"})

	logs, total, err := env.admin.ListAuditLogs(ctx, AuditLogFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 20},
		Action:           "approve_licensing",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, "art-1", logs[0].ResourceID)
	assert.Equal(t, "approved", logs[0].NewValues["status"])

	_, total, err = env.admin.ListAuditLogs(ctx, AuditLogFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 20},
		Identity:         testAdmin,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
}

func TestMarkNotificationRead(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	_, err := env.access.RequestApproval(ctx, testBuyer)
	require.NoError(t, err)

	unread, total, err := env.admin.ListNotifications(ctx, NotificationFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 20},
		Status:           "unread",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), total)

	require.NoError(t, env.notification.MarkRead(ctx, unread[0].ID))

	_, total, err = env.admin.ListNotifications(ctx, NotificationFilter{
		PaginationParams: utils.PaginationParams{Page: 1, Limit: 20},
		Status:           "unread",
	})
	require.NoError(t, err)
	assert.Zero(t, total)
}
