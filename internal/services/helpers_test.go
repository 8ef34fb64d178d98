// internal/services/helpers_test.go
package services

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creative-settlement/internal/config"
	"github.com/javajoker/creative-settlement/internal/database"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/royalty"
)

const (
	testAdmin   = "admin-1"
	testCreator = "creator-1"
	testCollab  = "collab-1"
	testBuyer   = "buyer-1"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(database.Models()...))
	return db
}

func newTestConfig() *config.Config {
	return &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "localhost", Port: "8080"},
		Payment: config.PaymentConfig{
			Currency:       "usd",
			PlatformFeeBps: 500,
			GatewayTimeout: 5,
			SettingsKey:    "test-settings-key",
		},
		Access:   config.AccessConfig{RequireUserApproval: true},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
}

// fakeGateway serves canned session states and records created sessions.
type fakeGateway struct {
	mu         sync.Mutex
	configured bool
	sessions   map[string]*SessionStatus
	created    []*CheckoutRequest
	lookups    int
	err        error
	// onLookup runs before a status is returned, outside the lock.
	onLookup func(sessionID string)
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		configured: true,
		sessions:   make(map[string]*SessionStatus),
	}
}

func (g *fakeGateway) Configure(secretKey string, allowedCountries []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configured = secretKey != ""
}

func (g *fakeGateway) IsConfigured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.configured
}

func (g *fakeGateway) CreateSession(ctx context.Context, req *CheckoutRequest) (*SessionReference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.err != nil {
		return nil, g.err
	}
	g.created = append(g.created, req)
	id := fmt.Sprintf("cs_test_%d", len(g.created))
	return &SessionReference{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *fakeGateway) GetSessionStatus(ctx context.Context, sessionID string) (*SessionStatus, error) {
	g.mu.Lock()
	g.lookups++
	hook := g.onLookup
	status, ok := g.sessions[sessionID]
	err := g.err
	g.mu.Unlock()

	if hook != nil {
		hook(sessionID)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no such session %s", ErrGateway, sessionID)
	}
	copied := *status
	return &copied, nil
}

func (g *fakeGateway) complete(sessionID, buyer, contentID string, amount int64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID] = &SessionStatus{
		SessionID:     sessionID,
		State:         SessionCompleted,
		BuyerIdentity: buyer,
		ContentID:     contentID,
		AmountTotal:   amount,
		Currency:      "usd",
	}
}

func (g *fakeGateway) setState(sessionID string, state SessionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID] = &SessionStatus{SessionID: sessionID, State: state}
}

func (g *fakeGateway) lookupCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lookups
}

// testEnv wires the service graph the way the router does.
type testEnv struct {
	db           *gorm.DB
	cfg          *config.Config
	gateway      *fakeGateway
	notification *NotificationService
	access       *AccessService
	content      *ContentService
	licensing    *LicensingService
	payment      *PaymentService
	settlement   *SettlementService
	admin        *AdminService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := newTestDB(t)
	cfg := newTestConfig()
	gateway := newFakeGateway()

	storage, err := NewStorageService(cfg)
	require.NoError(t, err)

	env := &testEnv{db: db, cfg: cfg, gateway: gateway}
	env.notification = NewNotificationService(db)
	env.access = NewAccessService(db, env.notification, cfg.Access.RequireUserApproval)
	env.settlement = NewSettlementService(db, cfg, gateway, env.access, env.notification)
	env.content = NewContentService(db, storage, env.access, env.settlement)
	env.licensing = NewLicensingService(db, env.content, env.access, env.notification)
	env.payment = NewPaymentService(db, cfg, gateway, env.content, env.access)
	env.admin = NewAdminService(db, env.notification)

	ctx := context.Background()
	role, err := env.access.InitializeAccessControl(ctx, testAdmin)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, role)

	return env
}

func (e *testEnv) upload(t *testing.T, owner, id string, price int64) *models.Content {
	t.Helper()
	content, err := e.content.Upload(context.Background(), owner, &UploadContentRequest{
		ID:       id,
		Title:    "Work " + id,
		Price:    price,
		Category: "illustration",
		BlobKey:  "content/" + id + ".png",
	})
	require.NoError(t, err)
	return content
}

func agreementRequest(contentID string, splits ...royalty.Split) *AgreementRequest {
	return &AgreementRequest{
		ContentID:       contentID,
		CommercialUse:   true,
		DerivativeWorks: models.DerivativeWithAttribution,
		Redistribution:  models.NoRedistribution(),
		RoyaltySplits:   splits,
		TermsAccepted:   true,
	}
}

// listed uploads content with a 70/30 split and approves it.
func (e *testEnv) listed(t *testing.T, id string, price int64) *models.Content {
	t.Helper()
	ctx := context.Background()

	content := e.upload(t, testCreator, id, price)
	_, err := e.licensing.Submit(ctx, testCreator, agreementRequest(id,
		royalty.Split{Identity: testCreator, BasisPoints: 7000},
		royalty.Split{Identity: testCollab, BasisPoints: 3000},
	))
	require.NoError(t, err)
	_, err = e.licensing.Approve(ctx, testAdmin, id)
	require.NoError(t, err)
	return content
}

// pay completes a session for the full price of the content.
func (e *testEnv) pay(t *testing.T, sessionID, buyer, contentID string) {
	t.Helper()
	content, err := e.content.GetContent(context.Background(), contentID)
	require.NoError(t, err)
	e.gateway.complete(sessionID, buyer, contentID, content.Price)
}
