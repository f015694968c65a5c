// Package auth provides authentication for the web server's ops endpoints.
// It handles password hashing and JWT token generation/validation against
// the single operator credential carried in the configuration.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// Roles for access control
const (
	RoleAdmin  = "admin"  // Feed control and viewing
	RoleViewer = "viewer" // Read-only access
)

var (
	// ErrInvalidCredentials is returned when authentication fails
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned when token validation fails
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims represents the JWT claims for an operator session
type Claims struct {
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// Config holds authentication configuration
type Config struct {
	Username      string        // Operator login name
	PasswordHash  string        // bcrypt hash of the operator password
	JWTSecret     string        // Secret key for signing JWTs
	TokenDuration time.Duration // How long tokens are valid
	BCryptCost    int           // BCrypt hashing cost (default: bcrypt.DefaultCost)
}

// Service provides authentication operations
type Service struct {
	config Config
}

// NewService creates a new authentication service
func NewService(cfg Config) *Service {
	// Set default BCrypt cost if not specified
	if cfg.BCryptCost == 0 {
		cfg.BCryptCost = bcrypt.DefaultCost
	}

	// Set default token duration if not specified
	if cfg.TokenDuration == 0 {
		cfg.TokenDuration = time.Hour
	}

	return &Service{
		config: cfg,
	}
}

// HashPassword hashes a plaintext password using bcrypt
func (s *Service) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.config.BCryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// ComparePassword compares a plaintext password with a hashed password
func (s *Service) ComparePassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

// Authenticate verifies the operator credentials and returns a signed
// session token carrying the admin role.
func (s *Service) Authenticate(username, password string) (string, error) {
	if s.config.Username == "" || s.config.PasswordHash == "" {
		return "", ErrInvalidCredentials
	}
	if username != s.config.Username {
		return "", ErrInvalidCredentials
	}
	if err := s.ComparePassword(s.config.PasswordHash, password); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.GenerateToken(username, RoleAdmin)
}

// GenerateToken generates a JWT token for a session
func (s *Service) GenerateToken(username, role string) (string, error) {
	// Create claims
	claims := &Claims{
		Username: username,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.config.TokenDuration)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			NotBefore: jwt.NewNumericDate(time.Now()),
			Issuer:    "l2p-scope",
		},
	}

	// Create token
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	// Sign token with secret
	tokenString, err := token.SignedString([]byte(s.config.JWTSecret))
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns the claims
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	// Parse token
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Verify signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(s.config.JWTSecret), nil
	})

	if err != nil {
		return nil, ErrInvalidToken
	}

	// Extract claims
	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}

// HasRole checks if a session has a specific role or higher.
// Role hierarchy: Admin > Viewer
func HasRole(userRole, requiredRole string) bool {
	roleLevel := map[string]int{
		RoleAdmin:  1,
		RoleViewer: 0,
	}

	userLevel, ok1 := roleLevel[userRole]
	requiredLevel, ok2 := roleLevel[requiredRole]

	if !ok1 || !ok2 {
		return false
	}

	return userLevel >= requiredLevel
}

// CanOperateFeed checks if a role can reset or reconnect the feed
func CanOperateFeed(role string) bool {
	return HasRole(role, RoleAdmin)
}
