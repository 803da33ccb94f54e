package services

import (
	"bytes"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-redis/redismock/v8"
	"github.com/lib/pq"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	tmock "github.com/stretchr/testify/mock"
)

func setupAuthConfig() {
	viper.Set("argon2.salt_length", 16)
	viper.Set("argon2.time", 1)
	viper.Set("argon2.memory", 64*1024)
	viper.Set("argon2.threads", 4)
	viper.Set("argon2.key_length", 32)
	viper.Set("jwt.secret_key", "test-secret")
	viper.Set("jwt.expiry_hours", 24)
}

func TestAuthService_Register(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	service := NewAuthService(db, nil, NewShardService(db), nil)

	t.Run("successful registration grants welcome shards", func(t *testing.T) {
		req := RegisterRequest{
			Email:    "test@example.com",
			Password: "password123",
			FullName: "Jane Doe",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, sqlmock.AnyArg(), req.FullName).
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "email", "full_name", "module_permissions", "created_at"}).
				AddRow("user1", req.Email, req.FullName, []byte("{ad-cam}"), time.Now()))
		mock.ExpectQuery("SELECT shard_balance FROM users WHERE id = \\$1 FOR UPDATE").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"shard_balance"}).AddRow(0))
		mock.ExpectExec("UPDATE users SET shard_balance = \\$1 WHERE id = \\$2").
			WithArgs(int64(125), "user1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO shard_transactions").
			WithArgs("user1", int64(125), "INITIAL_ALLOCATION", "Welcome gift: 5 free scans", nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusCreated, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, req.Email, response.User.Email)
		assert.Equal(t, int64(125), response.User.ShardBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("duplicate email", func(t *testing.T) {
		req := RegisterRequest{
			Email:    "taken@example.com",
			Password: "password123",
		}

		mock.ExpectBegin()
		mock.ExpectQuery("INSERT INTO users").
			WithArgs(req.Email, sqlmock.AnyArg(), "").
			WillReturnError(&pq.Error{Code: "23505"})
		mock.ExpectRollback()

		body, _ := json.Marshal(req)
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusConflict, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid request body", func(t *testing.T) {
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer([]byte("invalid")))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("short password fails validation", func(t *testing.T) {
		body, _ := json.Marshal(RegisterRequest{Email: "a@b.com", Password: "123"})
		r := httptest.NewRequest("POST", "/auth/register", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Register(w, r)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Login(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	service := NewAuthService(db, nil, NewShardService(db), nil)

	loginRows := func(hashedPassword string) *sqlmock.Rows {
		return sqlmock.NewRows(
			[]string{"id", "email", "full_name", "password_hash", "module_permissions", "shard_balance"}).
			AddRow("user1", "test@example.com", "Jane Doe", hashedPassword, []byte("{ad-cam}"), int64(100))
	}

	t.Run("successful login", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, full_name, password_hash, module_permissions, shard_balance").
			WithArgs("test@example.com").
			WillReturnRows(loginRows(hashedPassword))

		body, _ := json.Marshal(LoginRequest{Email: "test@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, int64(100), response.User.ShardBalance)
		assert.True(t, response.User.HasModule("ad-cam"))
	})

	t.Run("wrong password", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, full_name, password_hash, module_permissions, shard_balance").
			WithArgs("test@example.com").
			WillReturnRows(loginRows(hashedPassword))

		body, _ := json.Marshal(LoginRequest{Email: "test@example.com", Password: "wrong"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("user not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, email, full_name, password_hash, module_permissions, shard_balance").
			WithArgs("nonexistent@example.com").
			WillReturnError(sql.ErrNoRows)

		body, _ := json.Marshal(LoginRequest{Email: "nonexistent@example.com", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("email is lowercased before lookup", func(t *testing.T) {
		hashedPassword, _ := hashPassword("password123")

		mock.ExpectQuery("SELECT id, email, full_name, password_hash, module_permissions, shard_balance").
			WithArgs("test@example.com").
			WillReturnRows(loginRows(hashedPassword))

		body, _ := json.Marshal(LoginRequest{Email: "Test@Example.COM", Password: "password123"})
		r := httptest.NewRequest("POST", "/auth/login", bytes.NewBuffer(body))
		w := httptest.NewRecorder()

		service.Login(w, r)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestAuthService_GoogleLogin(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	verifier := new(MockGoogleVerifier)
	service := NewAuthService(db, nil, NewShardService(db), verifier)

	googleLogin := func(idToken string) *httptest.ResponseRecorder {
		body, _ := json.Marshal(GoogleLoginRequest{IDToken: idToken})
		r := httptest.NewRequest("POST", "/auth/google", bytes.NewBuffer(body))
		w := httptest.NewRecorder()
		service.GoogleLogin(w, r)
		return w
	}

	t.Run("first sign-in creates the account and grants welcome shards", func(t *testing.T) {
		verifier.On("Verify", tmock.Anything, "token-new").
			Return(&GoogleUser{GoogleID: "g-1", Email: "new@example.com", Name: "Jane Doe"}, nil).Once()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, email, full_name, google_id, module_permissions, shard_balance").
			WithArgs("g-1", "new@example.com").
			WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery("INSERT INTO users").
			WithArgs("new@example.com", "g-1", "Jane Doe").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "email", "full_name", "module_permissions", "created_at"}).
				AddRow("user1", "new@example.com", "Jane Doe", []byte("{ad-cam}"), time.Now()))
		mock.ExpectQuery("SELECT shard_balance FROM users WHERE id = \\$1 FOR UPDATE").
			WithArgs("user1").
			WillReturnRows(sqlmock.NewRows([]string{"shard_balance"}).AddRow(0))
		mock.ExpectExec("UPDATE users SET shard_balance = \\$1 WHERE id = \\$2").
			WithArgs(int64(125), "user1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectExec("INSERT INTO shard_transactions").
			WithArgs("user1", int64(125), "INITIAL_ALLOCATION", "Welcome gift: 5 free scans", nil).
			WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		w := googleLogin("token-new")

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.NotEmpty(t, response.Token)
		assert.Equal(t, int64(125), response.User.ShardBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("existing password account is linked to the google id", func(t *testing.T) {
		verifier.On("Verify", tmock.Anything, "token-link").
			Return(&GoogleUser{GoogleID: "g-2", Email: "test@example.com", Name: "Jane Doe"}, nil).Once()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, email, full_name, google_id, module_permissions, shard_balance").
			WithArgs("g-2", "test@example.com").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "email", "full_name", "google_id", "module_permissions", "shard_balance"}).
				AddRow("user1", "test@example.com", "Jane Doe", nil, []byte("{ad-cam}"), int64(100)))
		mock.ExpectExec("UPDATE users SET google_id = \\$1 WHERE id = \\$2").
			WithArgs("g-2", "user1").
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		w := googleLogin("token-link")

		assert.Equal(t, http.StatusOK, w.Code)
		var response AuthResponse
		json.Unmarshal(w.Body.Bytes(), &response)
		assert.Equal(t, int64(100), response.User.ShardBalance)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("returning google account signs in without writes", func(t *testing.T) {
		verifier.On("Verify", tmock.Anything, "token-return").
			Return(&GoogleUser{GoogleID: "g-2", Email: "test@example.com"}, nil).Once()

		mock.ExpectBegin()
		mock.ExpectQuery("SELECT id, email, full_name, google_id, module_permissions, shard_balance").
			WithArgs("g-2", "test@example.com").
			WillReturnRows(sqlmock.NewRows(
				[]string{"id", "email", "full_name", "google_id", "module_permissions", "shard_balance"}).
				AddRow("user1", "test@example.com", "Jane Doe", "g-2", []byte("{ad-cam}"), int64(100)))
		mock.ExpectCommit()

		w := googleLogin("token-return")

		assert.Equal(t, http.StatusOK, w.Code)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid token", func(t *testing.T) {
		verifier.On("Verify", tmock.Anything, "token-bad").
			Return(nil, assert.AnError).Once()

		w := googleLogin("token-bad")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("missing token fails validation", func(t *testing.T) {
		w := googleLogin("")
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestAuthService_Logout(t *testing.T) {
	db, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	setupAuthConfig()

	redisClient, redisMock := redismock.NewClientMock()
	service := NewAuthService(db, redisClient, NewShardService(db), nil)

	redisMock.ExpectSet("blacklist:some-token", "1", 24*time.Hour).SetVal("OK")

	r := httptest.NewRequest("POST", "/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer some-token")
	w := httptest.NewRecorder()

	service.Logout(w, r)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.NoError(t, redisMock.ExpectationsWereMet())
}

func TestPasswordHashing(t *testing.T) {
	setupAuthConfig()

	password := "testpassword"

	hashed, err := hashPassword(password)
	assert.NoError(t, err)
	assert.NotEmpty(t, hashed)

	assert.True(t, verifyPassword(password, hashed))
	assert.False(t, verifyPassword("wrongpassword", hashed))
	assert.False(t, verifyPassword(password, "not-a-valid-hash"))
}
