package user

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/CityParkLink/CityParkLink/internal/common/auth"
	"github.com/CityParkLink/CityParkLink/internal/common/config"
	commonserver "github.com/CityParkLink/CityParkLink/internal/common/server"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type HTTPHandler struct {
	repo    *Repo
	authCfg config.AuthConfig
}

func NewHTTPHandler(db *gorm.DB, authCfg config.AuthConfig) *HTTPHandler {
	return &HTTPHandler{
		repo:    NewRepo(db),
		authCfg: authCfg,
	}
}

// Register 挂载用户相关路由。
func (h *HTTPHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/register", h.handleRegister)
	mux.HandleFunc("POST /api/login", h.handleLogin)
	mux.HandleFunc("GET /api/me", h.handleMe)
	mux.Handle("DELETE /api/users/{id}", commonserver.RequireRoles(http.HandlerFunc(h.handleDelete), "admin"))
}

type userPayload struct {
	ID       string   `json:"id"`
	Username string   `json:"username"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
}

func toPayload(u *User) userPayload {
	return userPayload{
		ID:       u.ID,
		Username: u.Username,
		Email:    u.Email,
		Roles:    u.RolesSlice(),
	}
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	User      userPayload `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt int64       `json:"expires_at"`
}

func (h *HTTPHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(req.Email)
	if username == "" || email == "" || req.Password == "" {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "username/email/password required")
		return
	}

	ctx := r.Context()
	if _, err := h.repo.FindByUsername(ctx, username); err == nil {
		commonserver.WriteError(w, http.StatusBadRequest, "username_taken", "Username taken")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	if _, err := h.repo.FindByEmail(ctx, email); err == nil {
		commonserver.WriteError(w, http.StatusBadRequest, "email_taken", "Email taken")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}

	salt, err := GenerateSaltHex()
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	hash, err := HashPassword(req.Password, salt)
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}

	u := &User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		PasswordSalt: salt,
		Roles:        RolesJoin([]string{"user"}),
	}
	if err := h.repo.Create(ctx, u); err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}

	token, exp, err := auth.GenerateAccessToken(h.authCfg, u.ID, u.RolesSlice(), 24*time.Hour)
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}

	commonserver.WriteJSON(w, http.StatusCreated, authResponse{
		User:      toPayload(u),
		Token:     token,
		ExpiresAt: exp.Unix(),
	})
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *HTTPHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "invalid request body")
		return
	}
	username := strings.TrimSpace(req.Username)
	if username == "" || req.Password == "" {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "username/password required")
		return
	}

	u, err := h.repo.FindByUsername(r.Context(), username)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "Invalid login")
		return
	}
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	if !VerifyPassword(req.Password, u.PasswordSalt, u.PasswordHash) {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "Invalid login")
		return
	}

	token, exp, err := auth.GenerateAccessToken(h.authCfg, u.ID, u.RolesSlice(), 24*time.Hour)
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}

	commonserver.WriteJSON(w, http.StatusOK, authResponse{
		User:      toPayload(u),
		Token:     token,
		ExpiresAt: exp.Unix(),
	})
}

func (h *HTTPHandler) handleMe(w http.ResponseWriter, r *http.Request) {
	ai, ok := commonserver.AuthFromContext(r.Context())
	if !ok || strings.TrimSpace(ai.Subject) == "" {
		commonserver.WriteError(w, http.StatusUnauthorized, commonserver.CodeUnauthenticated, "missing auth")
		return
	}
	u, err := h.repo.FindByID(r.Context(), ai.Subject)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		commonserver.WriteError(w, http.StatusNotFound, commonserver.CodeNotFound, "user not found")
		return
	}
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	commonserver.WriteJSON(w, http.StatusOK, toPayload(u))
}

func (h *HTTPHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		commonserver.WriteError(w, http.StatusBadRequest, commonserver.CodeInvalidRequest, "id required")
		return
	}
	err := h.repo.Delete(r.Context(), id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		commonserver.WriteError(w, http.StatusNotFound, commonserver.CodeNotFound, "user not found")
		return
	}
	if err != nil {
		commonserver.WriteError(w, http.StatusInternalServerError, commonserver.CodeInternalError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
