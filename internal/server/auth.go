package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/ButyrinIA/blogsync/internal/validation"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type ctxKey int

const userKey ctxKey = iota

var errInvalidCredentials = apperr.Unauthenticated("Invalid email or password")

func (s *Server) generateToken(userID string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"exp":     s.now().Add(s.cfg.Server.TokenTTL).Unix(),
	})
	return token.SignedString([]byte(s.cfg.Server.JWTSecret))
}

func (s *Server) validateJWT(tokenString string) (string, error) {
	if tokenString == "" {
		return "", errors.New("пустой токен")
	}
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.cfg.Server.JWTSecret), nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return "", fmt.Errorf("invalid token: %w", err)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", errors.New("invalid token claims")
	}
	userID, _ := claims["user_id"].(string)
	if userID == "" {
		return "", errors.New("token has no user_id")
	}
	return userID, nil
}

func bearer(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
		return strings.TrimSpace(h[7:])
	}
	return ""
}

// requireUser resolves the bearer token to a stored user.
func (s *Server) requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.validateJWT(bearer(r))
		if err != nil {
			s.log.Debug("Rejected token", "path", r.URL.Path, "error", err)
			s.fail(w, r, apperr.Unauthenticated("Authentication required"))
			return
		}
		user, err := loadersFrom(r.Context()).user(r.Context(), userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				err = apperr.Unauthenticated("User no longer exists")
			}
			s.fail(w, r, err)
			return
		}
		ctx := context.WithValue(r.Context(), userKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentUser(ctx context.Context) *models.User {
	u, _ := ctx.Value(userKey).(*models.User)
	return u
}

// CreateUser stores a new account with a bcrypt password hash.
func (s *Server) CreateUser(ctx context.Context, in models.Registration, role models.Role) (*models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Check(in, nil); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user := &models.User{
		Identity: models.Identity{
			ID:       uuid.New().String(),
			Username: in.Username,
			Email:    in.Email,
			Role:     role,
		},
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.storage.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var in models.Registration
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	user, err := s.CreateUser(r.Context(), in, models.RoleUser)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	token, err := s.generateToken(user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("User registered", "user_id", user.ID)
	identity := user.Identity
	writeJSON(w, http.StatusCreated, models.AuthResult{Token: token, User: &identity})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var in models.Credentials
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.Email = strings.TrimSpace(in.Email)
	if err := validation.Check(in, nil); err != nil {
		s.fail(w, r, err)
		return
	}

	user, err := s.storage.GetUserByEmail(r.Context(), in.Email)
	if errors.Is(err, storage.ErrNotFound) {
		s.fail(w, r, errInvalidCredentials)
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(in.Password)) != nil {
		s.fail(w, r, errInvalidCredentials)
		return
	}

	token, err := s.generateToken(user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.LoginResult{Access: token})
}

func (s *Server) details(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	writeJSON(w, http.StatusOK, map[string]models.Identity{"user": user.Identity})
}
