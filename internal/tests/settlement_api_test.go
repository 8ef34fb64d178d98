// internal/tests/settlement_api_test.go
package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/javajoker/creative-settlement/internal/config"
	"github.com/javajoker/creative-settlement/internal/database"
	"github.com/javajoker/creative-settlement/internal/i18n"
	"github.com/javajoker/creative-settlement/internal/models"
	"github.com/javajoker/creative-settlement/internal/router"
	"github.com/javajoker/creative-settlement/internal/services"
	"github.com/javajoker/creative-settlement/internal/utils"
)

const (
	admin   = "admin-1"
	creator = "creator-1"
	collab  = "collab-1"
	buyer   = "buyer-1"
)

// stubGateway completes whatever sessions the test marks as paid.
type stubGateway struct {
	mu         sync.Mutex
	configured bool
	next       int
	sessions   map[string]*services.SessionStatus
}

func (g *stubGateway) Configure(secretKey string, allowedCountries []string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.configured = secretKey != ""
}

func (g *stubGateway) IsConfigured() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.configured
}

func (g *stubGateway) CreateSession(ctx context.Context, req *services.CheckoutRequest) (*services.SessionReference, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	id := fmt.Sprintf("cs_test_%d", g.next)
	status := &services.SessionStatus{
		SessionID:     id,
		State:         services.SessionPending,
		BuyerIdentity: req.Buyer,
		ContentID:     req.Metadata["content_id"],
	}
	for _, item := range req.Items {
		status.AmountTotal += item.PriceInCents * item.Quantity
		status.Currency = item.Currency
	}
	g.sessions[id] = status
	return &services.SessionReference{ID: id, URL: "https://checkout.stripe.test/" + id}, nil
}

func (g *stubGateway) GetSessionStatus(ctx context.Context, sessionID string) (*services.SessionStatus, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	status, ok := g.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: unknown session %s", services.ErrGateway, sessionID)
	}
	copied := *status
	return &copied, nil
}

func (g *stubGateway) pay(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID].State = services.SessionCompleted
}

func (g *stubGateway) open(sessionID, buyer, contentID string, state services.SessionState) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sessions[sessionID] = &services.SessionStatus{
		SessionID:     sessionID,
		State:         state,
		BuyerIdentity: buyer,
		ContentID:     contentID,
	}
}

type SettlementAPITestSuite struct {
	suite.Suite
	db      *gorm.DB
	router  *gin.Engine
	gateway *stubGateway
}

func (suite *SettlementAPITestSuite) SetupSuite() {
	gin.SetMode(gin.TestMode)
}

func (suite *SettlementAPITestSuite) SetupTest() {
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(suite.T(), err)
	sqlDB, err := db.DB()
	require.NoError(suite.T(), err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(suite.T(), database.RunMigrations(db))

	cfg := &config.Config{
		Environment: "test",
		Server:      config.ServerConfig{Host: "localhost", Port: "8080"},
		JWT:         config.JWTConfig{SecretKey: "test-secret"},
		Payment: config.PaymentConfig{
			Currency:       "usd",
			PlatformFeeBps: 500,
			GatewayTimeout: 5,
		},
		Access:   config.AccessConfig{RequireUserApproval: true},
		Metrics:  config.MetricsConfig{Enabled: true, Path: "/metrics"},
		Frontend: config.FrontendConfig{BaseURL: "http://localhost:3000"},
	}
	require.NoError(suite.T(), database.SeedInitialData(db, cfg))

	suite.gateway = &stubGateway{configured: true, sessions: make(map[string]*services.SessionStatus)}
	svc, err := router.NewServices(db, cfg, suite.gateway)
	require.NoError(suite.T(), err)

	suite.db = db
	suite.router = router.Setup(db, cfg, svc, router.Options{AuditLog: true})
}

func (suite *SettlementAPITestSuite) TearDownTest() {
	if sqlDB, err := suite.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func (suite *SettlementAPITestSuite) do(method, path, identity string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	var payload bytes.Buffer
	if body != nil {
		require.NoError(suite.T(), json.NewEncoder(&payload).Encode(body))
	}

	req, _ := http.NewRequest(method, path, &payload)
	req.Header.Set("Content-Type", "application/json")
	if identity != "" {
		token, err := utils.GenerateJWT(identity, 1)
		require.NoError(suite.T(), err)
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)

	var response map[string]interface{}
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" && bytes.HasPrefix(w.Body.Bytes(), []byte("{")) {
		require.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &response))
	}
	return w, response
}

func data(response map[string]interface{}) map[string]interface{} {
	d, _ := response["data"].(map[string]interface{})
	return d
}

func total(response map[string]interface{}) float64 {
	meta, _ := response["meta"].(map[string]interface{})
	pagination, _ := meta["pagination"].(map[string]interface{})
	n, _ := pagination["total"].(float64)
	return n
}

func errorCode(response map[string]interface{}) string {
	e, _ := response["error"].(map[string]interface{})
	code, _ := e["code"].(string)
	return code
}

func errorMessage(response map[string]interface{}) string {
	e, _ := response["error"].(map[string]interface{})
	message, _ := e["message"].(string)
	return message
}

func splits(entries ...interface{}) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(entries)/2)
	for i := 0; i+1 < len(entries); i += 2 {
		out = append(out, map[string]interface{}{"identity": entries[i], "basis_points": entries[i+1]})
	}
	return out
}

func agreement(contentID string, royaltySplits []map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"content_id":       contentID,
		"commercial_use":   true,
		"derivative_works": "withAttribution",
		"redistribution":   map[string]interface{}{"kind": "none"},
		"royalty_splits":   royaltySplits,
		"terms_accepted":   true,
	}
}

// bootstrap makes admin the administrator and approves the given identities.
func (suite *SettlementAPITestSuite) bootstrap(approved ...string) {
	w, response := suite.do(http.MethodPost, "/v1/access/initialize", admin, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	require.Equal(suite.T(), "admin", data(response)["role"])

	for _, identity := range approved {
		w, _ = suite.do(http.MethodPut, "/v1/admin/approvals/"+identity, admin, map[string]interface{}{"status": "approved"})
		require.Equal(suite.T(), http.StatusOK, w.Code)
	}
}

// listContent uploads and approves a work with a 70/30 split.
func (suite *SettlementAPITestSuite) listContent(id string, price int64) {
	w, _ := suite.do(http.MethodPost, "/v1/content", creator, map[string]interface{}{
		"id":       id,
		"title":    "Work " + id,
		"price":    price,
		"blob_key": "content/" + id + ".png",
	})
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w, _ = suite.do(http.MethodPost, "/v1/licensing", creator, agreement(id, splits(creator, 7000, collab, 3000)))
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w, _ = suite.do(http.MethodPut, "/v1/admin/licensing/"+id+"/approve", admin, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *SettlementAPITestSuite) TestHealth() {
	w, response := suite.do(http.MethodGet, "/health", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "healthy", response["status"])
	assert.Equal(suite.T(), true, response["gateway_configured"])

	w, _ = suite.do(http.MethodGet, "/metrics", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *SettlementAPITestSuite) TestAuthenticationRequired() {
	w, _ := suite.do(http.MethodPost, "/v1/purchases/settle", "", map[string]interface{}{
		"content_id": "art-1",
		"session_id": "cs_1",
	})
	assert.Equal(suite.T(), http.StatusUnauthorized, w.Code)

	w, _ = suite.do(http.MethodGet, "/v1/admin/dashboard", buyer, nil)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
}

func (suite *SettlementAPITestSuite) TestApprovalGate() {
	suite.bootstrap()

	w, response := suite.do(http.MethodPost, "/v1/content", creator, map[string]interface{}{"title": "Blocked"})
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Equal(suite.T(), "NOT_APPROVED", errorCode(response))

	w, _ = suite.do(http.MethodPost, "/v1/access/request", creator, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w, response = suite.do(http.MethodGet, "/v1/admin/approvals?status=pending", admin, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Len(suite.T(), response["data"], 1)

	w, _ = suite.do(http.MethodPut, "/v1/admin/approvals/"+creator, admin, map[string]interface{}{"status": "approved"})
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w, response = suite.do(http.MethodGet, "/v1/access/me", creator, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), true, data(response)["approved"])

	w, _ = suite.do(http.MethodPost, "/v1/content", creator, map[string]interface{}{"title": "Allowed"})
	assert.Equal(suite.T(), http.StatusCreated, w.Code)
}

func (suite *SettlementAPITestSuite) TestLicensingReview() {
	suite.bootstrap(creator)

	w, _ := suite.do(http.MethodPost, "/v1/content", creator, map[string]interface{}{"id": "art-1", "title": "Sunrise", "price": 1000})
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w, response := suite.do(http.MethodPost, "/v1/licensing", creator, agreement("art-1", splits(creator, 6000, collab, 3000)))
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
	assert.Equal(suite.T(), "VALIDATION_ERROR", errorCode(response))

	w, _ = suite.do(http.MethodPost, "/v1/licensing", creator, agreement("art-1", splits(creator, 7000, collab, 3000)))
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w, _ = suite.do(http.MethodPost, "/v1/licensing", creator, agreement("art-1", splits(creator, 10000)))
	assert.Equal(suite.T(), http.StatusCreated, w.Code, "owner may amend while pending")

	w, response = suite.do(http.MethodGet, "/v1/licensing/art-1", buyer, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Nil(suite.T(), data(response)["pending"])

	w, response = suite.do(http.MethodGet, "/v1/licensing/art-1", creator, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.NotNil(suite.T(), data(response)["pending"])

	w, _ = suite.do(http.MethodPut, "/v1/admin/licensing/art-1/approve", creator, nil)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	w, _ = suite.do(http.MethodPut, "/v1/admin/licensing/art-1/reject", admin, map[string]interface{}{"reason": "needs attribution"})
	require.Equal(suite.T(), http.StatusOK, w.Code)

	w, response = suite.do(http.MethodPut, "/v1/admin/licensing/art-1/approve", admin, nil)
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.Equal(suite.T(), "INVALID_TRANSITION", errorCode(response))

	w, _ = suite.do(http.MethodPost, "/v1/licensing", creator, agreement("art-1", splits(creator, 7000, collab, 3000)))
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	w, response = suite.do(http.MethodGet, "/v1/admin/licensing/pending", admin, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Len(suite.T(), response["data"], 1)

	w, response = suite.do(http.MethodGet, "/v1/marketplace", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), float64(0), total(response))

	w, _ = suite.do(http.MethodPut, "/v1/admin/licensing/art-1/approve", admin, nil)
	require.Equal(suite.T(), http.StatusOK, w.Code)

	w, response = suite.do(http.MethodGet, "/v1/marketplace", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Len(suite.T(), response["data"], 1)

	w, response = suite.do(http.MethodGet, "/v1/licensing/art-1/summary", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Len(suite.T(), data(response)["splits"], 2)

	w, _ = suite.do(http.MethodPost, "/v1/licensing", creator, agreement("art-1", splits(creator, 10000)))
	assert.Equal(suite.T(), http.StatusConflict, w.Code)

	// Admin decisions are audited.
	var audits int64
	suite.db.Model(&models.AuditLog{}).Where("identity = ?", admin).Count(&audits)
	assert.Positive(suite.T(), audits)
}

func (suite *SettlementAPITestSuite) TestPurchaseFlow() {
	suite.bootstrap(creator)
	suite.listContent("art-1", 1000)

	w, response := suite.do(http.MethodPost, "/v1/payments/checkout", buyer, map[string]interface{}{"content_id": "art-1"})
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Equal(suite.T(), "NOT_APPROVED", errorCode(response))

	w, _ = suite.do(http.MethodPut, "/v1/admin/approvals/"+buyer, admin, map[string]interface{}{"status": "approved"})
	require.Equal(suite.T(), http.StatusOK, w.Code)

	w, response = suite.do(http.MethodPost, "/v1/payments/checkout", buyer, map[string]interface{}{"content_id": "art-1"})
	require.Equal(suite.T(), http.StatusCreated, w.Code)
	sessionID, _ := data(response)["id"].(string)
	require.NotEmpty(suite.T(), sessionID)

	settle := map[string]interface{}{"content_id": "art-1", "session_id": sessionID}

	w, response = suite.do(http.MethodPost, "/v1/purchases/settle", buyer, settle)
	assert.Equal(suite.T(), http.StatusPaymentRequired, w.Code)
	assert.Equal(suite.T(), "PAYMENT_NOT_COMPLETED", errorCode(response))

	suite.gateway.pay(sessionID)

	w, response = suite.do(http.MethodPost, "/v1/purchases/settle", "intruder", settle)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Equal(suite.T(), "IDENTITY_MISMATCH", errorCode(response))

	w, response = suite.do(http.MethodPost, "/v1/purchases/settle", buyer, settle)
	require.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Empty(suite.T(), w.Header().Get("Idempotent-Replayed"))
	assert.Len(suite.T(), data(response)["distribution"], 2)
	first := w.Body.String()

	w, _ = suite.do(http.MethodPost, "/v1/purchases/settle", buyer, settle)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), "true", w.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(suite.T(), first, w.Body.String())

	w, response = suite.do(http.MethodGet, "/v1/purchases/access/art-1", buyer, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), true, data(response)["has_access"])

	w, _ = suite.do(http.MethodGet, "/v1/content/art-1/download", buyer, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	w, _ = suite.do(http.MethodGet, "/v1/content/art-1/download", "stranger", nil)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)

	w, response = suite.do(http.MethodGet, "/v1/purchases/me", buyer, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Len(suite.T(), response["data"], 1)

	w, response = suite.do(http.MethodGet, "/v1/earnings/me", creator, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), float64(665), data(response)["total_accrued"])

	w, response = suite.do(http.MethodGet, "/v1/admin/dashboard", admin, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), float64(1), data(response)["total_purchases"])

	var purchases int64
	suite.db.Model(&models.PurchaseRecord{}).Count(&purchases)
	assert.Equal(suite.T(), int64(1), purchases)
}

func (suite *SettlementAPITestSuite) TestItemsCheckoutCannotUnlockContent() {
	suite.bootstrap(creator, buyer)
	suite.listContent("art-1", 100000)

	w, response := suite.do(http.MethodPost, "/v1/payments/checkout", buyer, map[string]interface{}{
		"items": []map[string]interface{}{{
			"product_name":   "Sticker",
			"currency":       "usd",
			"quantity":       1,
			"price_in_cents": 50,
		}},
		"success_url": "http://localhost:3000/ok",
		"cancel_url":  "http://localhost:3000/cancel",
	})
	require.Equal(suite.T(), http.StatusCreated, w.Code)
	sessionID, _ := data(response)["id"].(string)
	suite.gateway.pay(sessionID)

	w, response = suite.do(http.MethodPost, "/v1/purchases/settle", buyer, map[string]interface{}{
		"content_id": "art-1",
		"session_id": sessionID,
	})
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Equal(suite.T(), "IDENTITY_MISMATCH", errorCode(response))

	w, response = suite.do(http.MethodGet, "/v1/purchases/access/art-1", buyer, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	assert.Equal(suite.T(), false, data(response)["has_access"])
}

func (suite *SettlementAPITestSuite) TestSettlementWithoutLicense() {
	suite.bootstrap(creator)

	w, _ := suite.do(http.MethodPost, "/v1/content", creator, map[string]interface{}{"id": "art-1", "title": "Unlisted", "price": 1000})
	require.Equal(suite.T(), http.StatusCreated, w.Code)

	suite.gateway.open("cs_rogue", buyer, "art-1", services.SessionCompleted)
	w, response := suite.do(http.MethodPost, "/v1/purchases/settle", buyer, map[string]interface{}{
		"content_id": "art-1",
		"session_id": "cs_rogue",
	})
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)
	assert.Equal(suite.T(), "NO_LICENSE", errorCode(response))

	w, response = suite.do(http.MethodGet, "/v1/admin/notifications?status=unread", admin, nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	found := false
	items, _ := response["data"].([]interface{})
	for _, item := range items {
		n, _ := item.(map[string]interface{})
		if n["type"] == services.NotificationSettlementAlert {
			found = true
		}
	}
	assert.True(suite.T(), found)
}

func (suite *SettlementAPITestSuite) TestErrorsUseMessageCatalog() {
	suite.bootstrap(creator)
	suite.listContent("art-1", 1000)

	w, response := suite.do(http.MethodGet, "/v1/content/missing", "", nil)
	assert.Equal(suite.T(), http.StatusNotFound, w.Code)
	assert.Equal(suite.T(), "NOT_FOUND", errorCode(response))
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyContentNotFound), errorMessage(response))

	w, response = suite.do(http.MethodPost, "/v1/content", creator, map[string]interface{}{"id": "art-1", "title": "Again"})
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.Equal(suite.T(), "CONFLICT", errorCode(response))
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyContentDuplicate), errorMessage(response))

	w, response = suite.do(http.MethodPut, "/v1/admin/licensing/art-1/reject", admin, map[string]interface{}{"reason": "late"})
	assert.Equal(suite.T(), http.StatusConflict, w.Code)
	assert.Equal(suite.T(), "INVALID_TRANSITION", errorCode(response))
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyLicensingInvalidTransition), errorMessage(response))

	w, response = suite.do(http.MethodGet, "/v1/content/art-1/download", "stranger", nil)
	assert.Equal(suite.T(), http.StatusForbidden, w.Code)
	assert.Equal(suite.T(), i18n.T("en", i18n.KeyContentNoAccess), errorMessage(response))
}

func (suite *SettlementAPITestSuite) TestCheckoutWithoutGateway() {
	suite.bootstrap(creator, buyer)
	suite.listContent("art-1", 1000)
	suite.gateway.Configure("", nil)

	w, response := suite.do(http.MethodPost, "/v1/payments/checkout", buyer, map[string]interface{}{"content_id": "art-1"})
	assert.Equal(suite.T(), http.StatusServiceUnavailable, w.Code)
	assert.Equal(suite.T(), "GATEWAY_NOT_CONFIGURED", errorCode(response))
}

func (suite *SettlementAPITestSuite) TestRoyaltyPreview() {
	suite.bootstrap(creator)
	suite.listContent("art-1", 1000)

	w, response := suite.do(http.MethodGet, "/v1/licensing/art-1/royalty-preview?sale_price=2000", "", nil)
	assert.Equal(suite.T(), http.StatusOK, w.Code)
	shares, _ := data(response)["shares"].([]interface{})
	require.Len(suite.T(), shares, 2)
	first, _ := shares[0].(map[string]interface{})
	assert.Equal(suite.T(), float64(1330), first["amount"])

	w, _ = suite.do(http.MethodGet, "/v1/licensing/art-1/royalty-preview?sale_price=-5", "", nil)
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func TestSettlementAPISuite(t *testing.T) {
	suite.Run(t, new(SettlementAPITestSuite))
}
