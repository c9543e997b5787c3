package apperr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeRules(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"error field", `{"error":"Post not found","message":"ignored"}`, "Post not found"},
		{"message field", `{"message":"Title is required"}`, "Title is required"},
		{"blank error falls through", `{"error":"  ","message":"second"}`, "second"},
		{"errors string array", `{"errors":["Email taken","other"]}`, "Email taken"},
		{"errors msg array", `{"errors":[{"msg":"Invalid email","param":"email"}]}`, "Invalid email"},
		{"errors object", `{"errors":{"email":"Email is invalid"}}`, "Email is invalid"},
		{"errors object nested", `{"errors":{"email":{"message":"bad email"}}}`, "bad email"},
		{"json string body", `"plain json string"`, "plain json string"},
		{"text body", "  Service Unavailable\n", "Service Unavailable"},
		{"error not a string", `{"error":{"code":1},"message":"fallback message"}`, "fallback message"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Normalize(http.StatusBadRequest, []byte(tt.body), nil)
			assert.Equal(t, tt.want, err.Error())
			assert.Equal(t, Transport, err.Kind)
		})
	}
}

func TestNormalizeFallback(t *testing.T) {
	err := Normalize(http.StatusInternalServerError, []byte(`{}`), nil)
	assert.Equal(t, "Request failed (HTTP 500): Internal Server Error", err.Error())

	cause := errors.New("connection refused")
	err = Normalize(0, nil, cause)
	assert.Equal(t, "Request failed: connection refused", err.Error())
	assert.ErrorIs(t, err, cause)

	err = Normalize(0, nil, nil)
	assert.Equal(t, "Request failed: Network error", err.Error())

	err = Normalize(0, nil, context.DeadlineExceeded)
	assert.Equal(t, Transport, err.Kind, "таймаут - обычная транспортная ошибка")
}

func TestNormalizeKinds(t *testing.T) {
	assert.True(t, IsUnauthorized(Normalize(http.StatusUnauthorized, []byte(`{"error":"Token expired"}`), nil)))
	assert.Equal(t, Forbidden, KindOf(Normalize(http.StatusForbidden, nil, nil)))
	assert.Equal(t, NotFound, KindOf(Normalize(http.StatusNotFound, nil, nil)))
	assert.Equal(t, Transport, KindOf(Normalize(http.StatusUnprocessableEntity, nil, nil)))
}

func TestKindOfWrapped(t *testing.T) {
	err := fmt.Errorf("load post: %w", NotFoundError("post not found"))
	assert.Equal(t, NotFound, KindOf(err))
	assert.Equal(t, Transport, KindOf(errors.New("plain")))
	assert.False(t, Is(nil, Transport))
}

func TestStatus(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, Status(ValidationError("bad")))
	assert.Equal(t, http.StatusForbidden, Status(ForbiddenError("no")))
	assert.Equal(t, http.StatusUnauthorized, Status(Unauthenticated("who")))
	assert.Equal(t, http.StatusNotFound, Status(NotFoundError("gone")))
	assert.Equal(t, http.StatusInternalServerError, Status(errors.New("boom")))
	assert.Equal(t, http.StatusBadGateway, Status(Normalize(http.StatusBadGateway, nil, nil)))
}
