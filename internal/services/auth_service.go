package services

import (
	"context"
	cryptorand "crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/go-redis/redis/v8"
	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"
	"golang.org/x/crypto/argon2"

	"github.com/skry/backend/internal/config"
	"github.com/skry/backend/internal/models"
)

type AuthService struct {
	db        *sql.DB
	redis     *redis.Client
	shards    *ShardService
	google    GoogleVerifier
	validator *validator.Validate
	cfg       *config.ShardConfig
}

// RegisterRequest represents the registration request payload
// @Description Registration request structure
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password string `json:"password" validate:"required,min=6" example:"password123"`   // User password
	FullName string `json:"fullName" validate:"max=100" example:"Jane Doe"`             // Display name
}

// LoginRequest represents the login request payload
// @Description Login request structure
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email" example:"user@example.com"` // User email address
	Password string `json:"password" validate:"required" example:"password123"`         // User password
}

// AuthResponse represents the authentication response
// @Description Authentication response structure
type AuthResponse struct {
	Message string      `json:"message"`
	Token   string      `json:"token" example:"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9..."` // JWT token
	User    models.User `json:"user"`                                                    // User information
}

func NewAuthService(db *sql.DB, redisClient *redis.Client, shards *ShardService, google GoogleVerifier) *AuthService {
	return &AuthService{
		db:        db,
		redis:     redisClient,
		shards:    shards,
		google:    google,
		validator: validator.New(),
		cfg:       config.LoadShardConfig(),
	}
}

// Register handles user registration
// @Summary Register a new user
// @Description Register a new user and grant the welcome shard allocation
// @Tags auth
// @Accept json
// @Produce json
// @Param request body RegisterRequest true "Registration request"
// @Success 201 {object} AuthResponse "Registration successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 409 {object} ErrorResponse "Email already exists"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /auth/register [post]
func (s *AuthService) Register(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Registration attempt from IP: %s", r.RemoteAddr)

	var req RegisterRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Registration validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	hashedPassword, err := hashPassword(req.Password)
	if err != nil {
		log.Printf("[AUTH] Password hashing failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "An Internal Error Occurred", http.StatusInternalServerError, nil)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var user models.User
	err = tx.QueryRowContext(r.Context(), `
		INSERT INTO users (email, password_hash, full_name)
		VALUES ($1, $2, $3)
		RETURNING id, email, full_name, module_permissions, created_at`,
		strings.ToLower(req.Email), hashedPassword, req.FullName).
		Scan(&user.ID, &user.Email, &user.FullName, &user.ModulePermissions, &user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			log.Printf("[AUTH] Duplicate registration for %s", req.Email)
			SendErrorResponse(w, "User already exists", http.StatusConflict, nil)
			return
		}
		log.Printf("[AUTH] User creation failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	// Welcome grant is part of the same unit of work as the user row.
	grant := s.cfg.WelcomeGrant
	balance, err := s.shards.CreditTx(r.Context(), tx, user.ID, grant,
		models.ShardKindInitialAllocation, "Welcome gift: 5 free scans", "")
	if err != nil {
		log.Printf("[AUTH] Welcome grant failed for %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}
	user.ShardBalance = balance

	if err := tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", req.Email, err)
		SendErrorResponse(w, "Failed to create user", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(&user)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Registration successful for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(AuthResponse{
		Message: "User registered successfully",
		Token:   token,
		User:    user,
	})
}

// Login handles user authentication
// @Summary Login user
// @Description Authenticate user with email and password
// @Tags auth
// @Accept json
// @Produce json
// @Param request body LoginRequest true "Login request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (s *AuthService) Login(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Login attempt from IP: %s", r.RemoteAddr)

	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		log.Printf("[AUTH] Login validation failed: %v", err)
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var user models.User
	var hashedPassword string
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, email, full_name, password_hash, module_permissions, shard_balance
		FROM users WHERE email = $1`, strings.ToLower(req.Email)).
		Scan(&user.ID, &user.Email, &user.FullName, &hashedPassword,
			&user.ModulePermissions, &user.ShardBalance)
	if err != nil {
		log.Printf("[AUTH] User not found for email: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	if !verifyPassword(req.Password, hashedPassword) {
		log.Printf("[AUTH] Invalid password for user: %s", req.Email)
		SendErrorResponse(w, "Invalid credentials", http.StatusUnauthorized, nil)
		return
	}

	token, err := generateJWT(&user)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Login successful for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    user,
	})
}

// GoogleLoginRequest represents the Google sign-in payload
// @Description Google sign-in request structure
type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"` // Google ID token from the client SDK
}

// GoogleLogin handles Google sign-in and sign-up
// @Summary Google OAuth sign-in/sign-up
// @Description Verify a Google ID token, creating the account (with the welcome shard allocation) on first sign-in
// @Tags auth
// @Accept json
// @Produce json
// @Param request body GoogleLoginRequest true "Google sign-in request"
// @Success 200 {object} AuthResponse "Login successful"
// @Failure 400 {object} ErrorResponse "Invalid request"
// @Failure 401 {object} ErrorResponse "Invalid Google token"
// @Router /auth/google [post]
func (s *AuthService) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	log.Printf("[AUTH] Google sign-in attempt from IP: %s", r.RemoteAddr)

	var req GoogleLoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if err := s.validator.Struct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	identity, err := s.google.Verify(r.Context(), req.IDToken)
	if err != nil {
		log.Printf("[AUTH] Google token verification failed: %v", err)
		SendErrorResponse(w, "Invalid Google token", http.StatusUnauthorized, nil)
		return
	}

	tx, err := s.db.BeginTx(r.Context(), nil)
	if err != nil {
		log.Printf("[AUTH] Transaction start failed for %s: %v", identity.Email, err)
		SendErrorResponse(w, "Sign-in failed", http.StatusInternalServerError, nil)
		return
	}
	defer tx.Rollback()

	var user models.User
	var googleID sql.NullString
	err = tx.QueryRowContext(r.Context(), `
		SELECT id, email, full_name, google_id, module_permissions, shard_balance
		FROM users WHERE google_id = $1 OR email = $2`,
		identity.GoogleID, strings.ToLower(identity.Email)).
		Scan(&user.ID, &user.Email, &user.FullName, &googleID,
			&user.ModulePermissions, &user.ShardBalance)

	switch {
	case err == sql.ErrNoRows:
		// First sign-in: create the account and grant the welcome shards in
		// the same unit of work, mirroring Register.
		err = tx.QueryRowContext(r.Context(), `
			INSERT INTO users (email, google_id, full_name)
			VALUES ($1, $2, $3)
			RETURNING id, email, full_name, module_permissions, created_at`,
			strings.ToLower(identity.Email), identity.GoogleID, identity.Name).
			Scan(&user.ID, &user.Email, &user.FullName, &user.ModulePermissions, &user.CreatedAt)
		if err != nil {
			log.Printf("[AUTH] Google user creation failed for %s: %v", identity.Email, err)
			SendErrorResponse(w, "Sign-in failed", http.StatusInternalServerError, nil)
			return
		}

		balance, err := s.shards.CreditTx(r.Context(), tx, user.ID, s.cfg.WelcomeGrant,
			models.ShardKindInitialAllocation, "Welcome gift: 5 free scans", "")
		if err != nil {
			log.Printf("[AUTH] Welcome grant failed for %s: %v", user.ID, err)
			SendErrorResponse(w, "Sign-in failed", http.StatusInternalServerError, nil)
			return
		}
		user.ShardBalance = balance

	case err != nil:
		log.Printf("[AUTH] Google user lookup failed for %s: %v", identity.Email, err)
		SendErrorResponse(w, "Sign-in failed", http.StatusInternalServerError, nil)
		return

	default:
		// Existing password account signing in with Google: link the ids.
		if !googleID.Valid {
			if _, err := tx.ExecContext(r.Context(),
				`UPDATE users SET google_id = $1 WHERE id = $2`,
				identity.GoogleID, user.ID); err != nil {
				log.Printf("[AUTH] Google account link failed for %s: %v", user.ID, err)
				SendErrorResponse(w, "Sign-in failed", http.StatusInternalServerError, nil)
				return
			}
		}
	}

	if err := tx.Commit(); err != nil {
		log.Printf("[AUTH] Transaction commit failed for %s: %v", identity.Email, err)
		SendErrorResponse(w, "Sign-in failed", http.StatusInternalServerError, nil)
		return
	}

	token, err := generateJWT(&user)
	if err != nil {
		log.Printf("[AUTH] JWT generation failed for user %s: %v", user.ID, err)
		SendErrorResponse(w, "Failed to generate token", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[AUTH] Google sign-in successful for user %s", user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AuthResponse{
		Message: "Login successful",
		Token:   token,
		User:    user,
	})
}

// Logout handles user logout
// @Summary Logout user
// @Description Logout user and blacklist token
// @Tags auth
// @Produce json
// @Success 200 {object} map[string]string "Logout successful"
// @Router /auth/logout [post]
func (s *AuthService) Logout(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if strings.HasPrefix(token, "Bearer ") {
		token = token[7:]

		if s.redis != nil {
			key := fmt.Sprintf("blacklist:%s", token)
			expiry := time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour
			if err := s.redis.Set(context.Background(), key, "1", expiry).Err(); err != nil {
				log.Printf("[AUTH] Failed to blacklist token: %v", err)
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"message": "Logout successful"})
}

// Me returns the authenticated user's account
// @Summary Get current user info
// @Description Get the authenticated user's account including shard balance
// @Tags auth
// @Produce json
// @Success 200 {object} models.User "User account details"
// @Failure 401 {object} ErrorResponse "Unauthorized"
// @Failure 404 {object} ErrorResponse "User not found"
// @Router /auth/me [get]
func (s *AuthService) Me(w http.ResponseWriter, r *http.Request) {
	userID, ok := r.Context().Value("userID").(string)
	if !ok || userID == "" {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
		return
	}

	var user models.User
	err := s.db.QueryRowContext(r.Context(), `
		SELECT id, email, full_name, module_permissions, shard_balance, created_at
		FROM users WHERE id = $1`, userID).
		Scan(&user.ID, &user.Email, &user.FullName, &user.ModulePermissions,
			&user.ShardBalance, &user.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "User not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[AUTH] Failed to fetch user %s: %v", userID, err)
			SendErrorResponse(w, "Failed to fetch user details", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(user)
}

// decodeJSONBody applies the shared strict-decoding rules and writes the
// error response itself; it reports whether decoding succeeded.
func decodeJSONBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	return true
}

func generateJWT(user *models.User) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":         user.ID,
		"email":       user.Email,
		"fullName":    user.FullName,
		"permissions": []string(user.ModulePermissions),
		"exp":         time.Now().Add(time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour).Unix(),
	})

	return token.SignedString([]byte(viper.GetString("jwt.secret_key")))
}

func hashPassword(password string) (string, error) {
	salt := make([]byte, viper.GetInt("argon2.salt_length"))
	if _, err := cryptorand.Read(salt); err != nil {
		return "", err
	}

	hash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return fmt.Sprintf("%s$%s", base64.StdEncoding.EncodeToString(salt), base64.StdEncoding.EncodeToString(hash)), nil
}

func verifyPassword(password, hashedPassword string) bool {
	parts := strings.Split(hashedPassword, "$")
	if len(parts) != 2 {
		return false
	}

	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}

	hash, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}

	computedHash := argon2.IDKey([]byte(password), salt,
		uint32(viper.GetInt("argon2.time")),
		uint32(viper.GetInt("argon2.memory")),
		uint8(viper.GetInt("argon2.threads")),
		uint32(viper.GetInt("argon2.key_length")))
	return string(hash) == string(computedHash)
}
