package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("already exists")
)

type Storage interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// GetUsers returns the users found among ids; missing ids are skipped.
	GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error)

	CreatePost(ctx context.Context, post *models.PostRecord) error
	GetPost(ctx context.Context, id string) (*models.PostRecord, error)
	// ListPosts pages posts newest first. cursor is the value returned as
	// NextCursor by the previous page.
	ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error)
	ListPostsByAuthor(ctx context.Context, authorID string) ([]models.PostRecord, error)
	UpdatePost(ctx context.Context, post *models.PostRecord) error
	// DeletePost removes the post with all its comments and replies.
	DeletePost(ctx context.Context, id string) error

	CreateComment(ctx context.Context, comment *models.CommentRecord) error
	GetComment(ctx context.Context, id string) (*models.CommentRecord, error)
	// ListComments returns comments and replies of a post, newest first.
	ListComments(ctx context.Context, postID string) ([]models.CommentRecord, error)
	UpdateComment(ctx context.Context, comment *models.CommentRecord) error
	// DeleteComment removes the comment with its replies.
	DeleteComment(ctx context.Context, id string) error
	// CountComments counts top-level comments per post.
	CountComments(ctx context.Context, postIDs []string) (map[string]int, error)

	Close() error
}

// Курсор страницы постов: время создания и id последнего поста.

func EncodeCursor(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(time.RFC3339Nano) + "|" + id
}

func DecodeCursor(cursor string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor %q: %w", cursor, err)
	}
	return createdAt, id, nil
}
