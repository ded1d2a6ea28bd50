package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"pooled-asset-vault/internal/core/domain"
	"pooled-asset-vault/internal/core/ports"
	"pooled-asset-vault/internal/core/ports/mocks"
	"pooled-asset-vault/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testTransportConfig() TransportConfig {
	return TransportConfig{
		Secret:   "transport-secret",
		Peers:    map[string]string{"replica-b": "http://replica-b:8080"},
		MaxSkew:  5 * time.Minute,
		NonceTTL: 10 * time.Minute,
	}
}

func TestTransportAuth_MissingHeaders(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	log := zerolog.Nop()

	router := gin.New()
	router.POST("/test", TransportAuth(testTransportConfig(), sigSvc, nonceStore, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransportAuth_UnknownPeer(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	log := zerolog.Nop()

	router := gin.New()
	router.POST("/test", TransportAuth(testTransportConfig(), sigSvc, nonceStore, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set(service.HeaderReplicaSource, "replica-x")
	req.Header.Set(service.HeaderReplicaSignature, "sig")
	req.Header.Set(service.HeaderReplicaTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(service.HeaderReplicaNonce, "nonce123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestTransportAuth_ExpiredTimestamp(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	log := zerolog.Nop()

	router := gin.New()
	router.POST("/test", TransportAuth(testTransportConfig(), sigSvc, nonceStore, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set(service.HeaderReplicaSource, "replica-b")
	req.Header.Set(service.HeaderReplicaSignature, "sig")
	req.Header.Set(service.HeaderReplicaTimestamp, strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10))
	req.Header.Set(service.HeaderReplicaNonce, "nonce123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransportAuth_ReplayedNonce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	log := zerolog.Nop()

	cfg := testTransportConfig()
	nonceStore.EXPECT().CheckAndSet(gomock.Any(), "replica-b", "nonce-used", cfg.NonceTTL).Return(false, nil)

	router := gin.New()
	router.POST("/test", TransportAuth(cfg, sigSvc, nonceStore, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set(service.HeaderReplicaSource, "replica-b")
	req.Header.Set(service.HeaderReplicaSignature, "sig")
	req.Header.Set(service.HeaderReplicaTimestamp, strconv.FormatInt(time.Now().Unix(), 10))
	req.Header.Set(service.HeaderReplicaNonce, "nonce-used")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTransportAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	log := zerolog.Nop()

	cfg := testTransportConfig()
	nowTs := time.Now().Unix()
	body := `{"transfer_id":"x"}`

	nonceStore.EXPECT().CheckAndSet(gomock.Any(), "replica-b", "nonce-ok", cfg.NonceTTL).Return(true, nil)
	sigSvc.EXPECT().BuildCanonicalString("POST", "/test", nowTs, "nonce-ok", body).Return("canonical")
	sigSvc.EXPECT().Verify("transport-secret", "canonical", "valid_sig").Return(true)

	var capturedSource string
	var capturedRole domain.Role
	router := gin.New()
	router.POST("/test", TransportAuth(cfg, sigSvc, nonceStore, log), func(c *gin.Context) {
		src, _ := c.Get(CtxSourceReplica)
		capturedSource = src.(string)
		role, _ := c.Get(CtxRole)
		capturedRole = role.(domain.Role)
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(body))
	req.Header.Set(service.HeaderReplicaSource, "replica-b")
	req.Header.Set(service.HeaderReplicaSignature, "valid_sig")
	req.Header.Set(service.HeaderReplicaTimestamp, strconv.FormatInt(nowTs, 10))
	req.Header.Set(service.HeaderReplicaNonce, "nonce-ok")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "replica-b", capturedSource)
	assert.Equal(t, domain.RoleTransport, capturedRole)
}

func TestTransportAuth_BadSignature(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	sigSvc := mocks.NewMockSignatureService(ctrl)
	nonceStore := mocks.NewMockNonceStore(ctrl)
	log := zerolog.Nop()

	cfg := testTransportConfig()
	nowTs := time.Now().Unix()

	nonceStore.EXPECT().CheckAndSet(gomock.Any(), "replica-b", "nonce-1", cfg.NonceTTL).Return(true, nil)
	sigSvc.EXPECT().BuildCanonicalString("POST", "/test", nowTs, "nonce-1", "").Return("canonical")
	sigSvc.EXPECT().Verify("transport-secret", "canonical", "forged").Return(false)

	router := gin.New()
	router.POST("/test", TransportAuth(cfg, sigSvc, nonceStore, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	req.Header.Set(service.HeaderReplicaSource, "replica-b")
	req.Header.Set(service.HeaderReplicaSignature, "forged")
	req.Header.Set(service.HeaderReplicaTimestamp, strconv.FormatInt(nowTs, 10))
	req.Header.Set(service.HeaderReplicaNonce, "nonce-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	log := zerolog.Nop()

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_InvalidToken(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	log := zerolog.Nop()

	tokenSvc.EXPECT().Validate("bad_token").Return(nil, assert.AnError)

	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, log), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer bad_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAuth_Success(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	tokenSvc := mocks.NewMockTokenService(ctrl)
	log := zerolog.Nop()

	operatorID := uuid.New()
	tokenSvc.EXPECT().Validate("good_token").Return(&ports.TokenClaims{
		OperatorID: operatorID,
		Role:       domain.RoleOperator,
	}, nil)

	var capturedID uuid.UUID
	router := gin.New()
	router.GET("/test", JWTAuth(tokenSvc, log), func(c *gin.Context) {
		id, _ := c.Get(CtxOperatorID)
		capturedID = id.(uuid.UUID)
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("Authorization", "Bearer good_token")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, operatorID, capturedID)
}

func TestRequireCapability(t *testing.T) {
	tests := []struct {
		name     string
		role     domain.Role
		op       domain.Operation
		wantCode int
	}{
		{"operator may mint", domain.RoleOperator, domain.OpMint, http.StatusOK},
		{"owner may set parameters", domain.RoleOwner, domain.OpSetParameters, http.StatusOK},
		{"operator may not set parameters", domain.RoleOperator, domain.OpSetParameters, http.StatusForbidden},
		{"transport may not mint", domain.RoleTransport, domain.OpMint, http.StatusForbidden},
		{"transport may receive", domain.RoleTransport, domain.OpReceive, http.StatusOK},
		{"owner may not receive", domain.RoleOwner, domain.OpReceive, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := gin.New()
			router.POST("/test",
				func(c *gin.Context) { c.Set(CtxRole, tt.role) },
				RequireCapability(tt.op),
				func(c *gin.Context) { c.JSON(200, gin.H{"ok": true}) },
			)

			req := httptest.NewRequest(http.MethodPost, "/test", nil)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantCode, w.Code)
		})
	}
}

func TestRequireCapability_NoRole(t *testing.T) {
	router := gin.New()
	router.POST("/test", RequireCapability(domain.OpMint), func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})

	req := httptest.NewRequest(http.MethodPost, "/test", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRecovery_PanicRecovered(t *testing.T) {
	log := zerolog.Nop()

	router := gin.New()
	router.Use(Recovery(log))
	router.GET("/panic", func(c *gin.Context) {
		panic("something went wrong")
	})

	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "SYS_001", resp["error_code"])
}
