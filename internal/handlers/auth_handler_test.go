package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"shadowpool/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupAuthConfig(t *testing.T) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("correct-horse"), bcrypt.MinCost)
	require.NoError(t, err)

	key, err := totp.Generate(totp.GenerateOpts{Issuer: "test", AccountName: "admin"})
	require.NoError(t, err)

	config.AppConfig = &config.Config{
		Admin: config.AdminConfig{
			PasswordHash:  string(hash),
			TOTPSecret:    key.Secret(),
			JWTSecret:     "test-jwt-secret",
			TokenTTLHours: 1,
		},
	}
	t.Cleanup(func() { config.AppConfig = nil })
}

func doLogin(t *testing.T, password, code string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/admin/login", NewAuthHandler().LoginHandler)

	body, _ := json.Marshal(map[string]string{"password": password, "totp_code": code})
	req := httptest.NewRequest(http.MethodPost, "/api/admin/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestLoginIssuesValidToken(t *testing.T) {
	setupAuthConfig(t)

	code, err := totp.GenerateCode(config.AppConfig.Admin.TOTPSecret, time.Now())
	require.NoError(t, err)

	w := doLogin(t, "correct-horse", code)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Token   string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotEmpty(t, resp.Token)

	claims, err := ValidateJWTToken(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, "admin", claims.Role)
}

func TestLoginRejectsBadPassword(t *testing.T) {
	setupAuthConfig(t)

	code, err := totp.GenerateCode(config.AppConfig.Admin.TOTPSecret, time.Now())
	require.NoError(t, err)

	w := doLogin(t, "wrong", code)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestLoginRejectsBadTOTP(t *testing.T) {
	setupAuthConfig(t)

	w := doLogin(t, "correct-horse", "000000")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestValidateJWTTokenRejectsGarbage(t *testing.T) {
	setupAuthConfig(t)

	_, err := ValidateJWTToken("not-a-token")
	assert.Error(t, err)

	_, err = ValidateJWTToken("")
	assert.Error(t, err)
}
