package api

import (
	"context"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ButyrinIA/blogsync/internal/endpoint"
	"github.com/ButyrinIA/blogsync/internal/models"
)

// ListPosts walks every page of the post list.
func (c *Client) ListPosts(ctx context.Context) ([]models.Post, error) {
	var (
		all    []models.Post
		cursor string
	)
	for {
		query := url.Values{"limit": {strconv.Itoa(c.pageSize)}}
		if cursor != "" {
			query.Set("cursor", cursor)
		}
		body, err := c.do(ctx, http.MethodGet, endpoint.ListPosts, query, nil)
		if err != nil {
			return nil, err
		}
		var page models.PostList
		if _, err := decodeField(body, "", &page); err != nil {
			return nil, err
		}
		all = append(all, page.Posts...)

		// защита от сервера, возвращающего тот же курсор
		if page.NextCursor == nil || *page.NextCursor == "" || *page.NextCursor == cursor || len(page.Posts) == 0 {
			return all, nil
		}
		cursor = *page.NextCursor
	}
}

func (c *Client) ListMyPosts(ctx context.Context) ([]models.Post, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint.MyPosts, nil, nil)
	if err != nil {
		return nil, err
	}
	var posts []models.Post
	if _, err := decodeField(body, "posts", &posts); err != nil {
		return nil, err
	}
	return posts, nil
}

func (c *Client) GetPost(ctx context.Context, id string) (*models.PostDetail, error) {
	body, err := c.do(ctx, http.MethodGet, endpoint.Path(endpoint.GetPost, id), nil, nil)
	if err != nil {
		return nil, err
	}
	var post models.PostDetail
	if err := requireField(body, "post", &post); err != nil {
		return nil, err
	}
	return &post, nil
}

func (c *Client) CreatePost(ctx context.Context, in models.PostInput) (*models.Post, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint.CreatePost, nil, in)
	if err != nil {
		return nil, err
	}
	var post models.Post
	if err := requireField(body, "post", &post); err != nil {
		return nil, err
	}
	return &post, nil
}

// UpdatePost returns nil without error when the server acknowledges the
// update without echoing the post.
func (c *Client) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	body, err := c.do(ctx, http.MethodPatch, endpoint.Path(endpoint.UpdatePost, id), nil, patch)
	if err != nil {
		return nil, err
	}
	var post models.Post
	ok, err := decodeField(body, "post", &post)
	if err != nil || !ok {
		return nil, err
	}
	return &post, nil
}

func (c *Client) DeletePost(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, endpoint.Path(endpoint.DeletePost, id), nil, nil)
	return err
}
