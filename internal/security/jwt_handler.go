package security

import (
	"fmt"
	"strings"
	"time"

	"github.com/dosdebug/broker/internal/logging"
	"github.com/golang-jwt/jwt/v4"
)

// JWTClaims is the claims structure carried by operator tokens.
type JWTClaims struct {
	Subject string `json:"sub"`
	Role    string `json:"role"`
	IAT     int64  `json:"iat"`
	EXP     int64  `json:"exp"`
}

// ValidRoles enumerates the roles this broker recognizes. Unlike the
// teacher's three-tier viewer/operator/admin model, the debug broker
// has exactly one management role: any caller with a valid token may
// reseat the backend or drive execution control.
var ValidRoles = map[string]bool{
	"operator": true,
}

// JWTHandler issues and validates HS256 JWTs for the management API.
type JWTHandler struct {
	secretKey string
	logger    *logging.Logger
}

// NewJWTHandler constructs a handler with the given signing secret.
func NewJWTHandler(secretKey string, logger *logging.Logger) (*JWTHandler, error) {
	if strings.TrimSpace(secretKey) == "" {
		return nil, fmt.Errorf("secret key must be provided")
	}
	if logger == nil {
		logger = logging.GetLogger("jwt-handler")
	}
	return &JWTHandler{secretKey: secretKey, logger: logger}, nil
}

// GenerateToken issues a signed token for the given subject and role.
func (h *JWTHandler) GenerateToken(subject, role string, expiry time.Duration) (string, error) {
	if strings.TrimSpace(subject) == "" {
		return "", fmt.Errorf("subject cannot be empty")
	}
	if !ValidRoles[role] {
		return "", fmt.Errorf("invalid role: %s", role)
	}
	if expiry == 0 {
		expiry = 24 * time.Hour
	}

	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  subject,
		"role": role,
		"iat":  now.Unix(),
		"exp":  now.Add(expiry).Unix(),
	})

	signed, err := token.SignedString([]byte(h.secretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	h.logger.WithFields(logging.Fields{"subject": subject, "role": role}).Debug("issued operator token")
	return signed, nil
}

// ValidateToken parses and validates a bearer token, restricting the
// accepted algorithm to HS256 to avoid algorithm-confusion attacks.
func (h *JWTHandler) ValidateToken(tokenString string) (*JWTClaims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("token cannot be empty")
	}

	parsed, err := jwt.ParseWithClaims(tokenString, jwt.MapClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != "HS256" {
			return nil, fmt.Errorf("unsupported signing method: %v", t.Method.Alg())
		}
		return []byte(h.secretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok || !parsed.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}

	role, _ := claims["role"].(string)
	if !ValidRoles[role] {
		return nil, fmt.Errorf("invalid role: %v", claims["role"])
	}

	sub, _ := claims["sub"].(string)
	iat, _ := claims["iat"].(float64)
	exp, ok := claims["exp"].(float64)
	if !ok {
		return nil, fmt.Errorf("missing expiration claim")
	}
	if time.Now().Unix() > int64(exp) {
		return nil, fmt.Errorf("token has expired")
	}

	return &JWTClaims{Subject: sub, Role: role, IAT: int64(iat), EXP: int64(exp)}, nil
}
