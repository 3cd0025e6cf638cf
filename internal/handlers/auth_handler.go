package handlers

import (
	"fmt"
	"net/http"
	"time"

	"shadowpool/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/pquerna/otp/totp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

// AdminClaims are the JWT claims of an admin session token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AuthHandler issues admin session tokens. Login requires the configured
// password plus a valid TOTP code.
type AuthHandler struct{}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler() *AuthHandler {
	return &AuthHandler{}
}

type loginRequest struct {
	Password string `json:"password" binding:"required"`
	TOTPCode string `json:"totp_code" binding:"required"`
}

// LoginHandler authenticates an operator and returns a bearer token.
// POST /api/admin/login
func (h *AuthHandler) LoginHandler(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "password and totp_code are required"})
		return
	}

	cfg := config.AppConfig
	if cfg == nil || cfg.Admin.PasswordHash == "" || cfg.Admin.TOTPSecret == "" || cfg.Admin.JWTSecret == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"success": false, "error": "admin authentication not configured"})
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(cfg.Admin.PasswordHash), []byte(req.Password)); err != nil {
		log.WithField("ip", c.ClientIP()).Warn("Admin login rejected: bad password")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}

	if !totp.Validate(req.TOTPCode, cfg.Admin.TOTPSecret) {
		log.WithField("ip", c.ClientIP()).Warn("Admin login rejected: bad TOTP code")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "error": "invalid credentials"})
		return
	}

	ttl := time.Duration(cfg.Admin.TokenTTLHours) * time.Hour
	claims := AdminClaims{
		Role: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			Issuer:    "shadowpool",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(cfg.Admin.JWTSecret))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "failed to sign token"})
		return
	}

	log.WithField("ip", c.ClientIP()).Info("Admin login succeeded")
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"token":      signed,
		"expires_at": claims.ExpiresAt.Time,
	})
}

// ValidateJWTToken parses and verifies an admin session token.
func ValidateJWTToken(tokenString string) (*AdminClaims, error) {
	cfg := config.AppConfig
	if cfg == nil || cfg.Admin.JWTSecret == "" {
		return nil, fmt.Errorf("admin authentication not configured")
	}

	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(cfg.Admin.JWTSecret), nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid || claims.Role != "admin" {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}
