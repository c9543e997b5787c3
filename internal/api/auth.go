package api

import (
	"context"
	"net/http"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/endpoint"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/tidwall/gjson"
)

func (c *Client) Register(ctx context.Context, in models.Registration) (*models.AuthResult, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint.Register, nil, in)
	if err != nil {
		return nil, err
	}
	var res models.AuthResult
	if _, err := decodeField(body, "", &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// Login exchanges credentials for an access token. The identity is fetched
// separately with Me.
func (c *Client) Login(ctx context.Context, in models.Credentials) (string, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint.Login, nil, in)
	if err != nil {
		return "", err
	}
	var res models.LoginResult
	if _, err := decodeField(body, "", &res); err != nil {
		return "", err
	}
	if res.Access == "" {
		return "", &apperr.Error{Kind: apperr.Transport, Message: "No token received"}
	}
	return res.Access, nil
}

// Me accepts both {"user": {...}} and a bare identity object.
func (c *Client) Me(ctx context.Context) (*models.Identity, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint.UserDetails, nil, nil)
	if err != nil {
		return nil, err
	}
	field := ""
	if gjson.GetBytes(body, "user").IsObject() {
		field = "user"
	}
	var user models.Identity
	if err := requireField(body, field, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
