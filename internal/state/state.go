// Package state keeps the client-side view of the blog in sync with the API.
//
// Mutations are optimistic: the local change is applied first, the remote
// call is awaited, and the change is then reconciled with the server copy or
// rolled back to its snapshot. Operations on the same entity are queued;
// operations on different entities run concurrently. Accessors return copies.
package state

import (
	"context"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
)

type AuthAPI interface {
	Register(ctx context.Context, in models.Registration) (*models.AuthResult, error)
	Login(ctx context.Context, in models.Credentials) (string, error)
	Me(ctx context.Context) (*models.Identity, error)
}

type PostsAPI interface {
	ListPosts(ctx context.Context) ([]models.Post, error)
	ListMyPosts(ctx context.Context) ([]models.Post, error)
	GetPost(ctx context.Context, id string) (*models.PostDetail, error)
	CreatePost(ctx context.Context, in models.PostInput) (*models.Post, error)
	UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error)
	DeletePost(ctx context.Context, id string) error
}

type CommentsAPI interface {
	GetPost(ctx context.Context, id string) (*models.PostDetail, error)
	AddComment(ctx context.Context, postID, text string) (*models.Comment, error)
	UpdateComment(ctx context.Context, postID, commentID, text string) (*models.Comment, error)
	DeleteComment(ctx context.Context, postID, commentID string) error
	AddReply(ctx context.Context, postID, commentID, text string) (*models.Reply, error)
	UpdateReply(ctx context.Context, postID, commentID, replyID, text string) (*models.Reply, error)
	DeleteReply(ctx context.Context, postID, commentID, replyID string) error
}

// Viewer reports who is acting; nil means nobody is signed in or the
// identity has not been loaded yet.
type Viewer interface {
	Identity() *models.Identity
}

// PostViews is how the comment tree tells the post collections about
// changes to derived post fields. AdjustCommentsCount returns the undo.
type PostViews interface {
	AdjustCommentsCount(postID string, delta int) func()
	SyncCurrent(post models.Post)
	Lookup(postID string) (models.Post, bool)
}

// Recorder observes optimistic mutations.
type Recorder interface {
	MutationStarted(domain, op string)
	MutationFinished(domain, op string, err error, elapsed time.Duration)
}

type nopRecorder struct{}

func (nopRecorder) MutationStarted(string, string) {}
func (nopRecorder) MutationFinished(string, string, error, time.Duration) {}

type anonymous struct{}

func (anonymous) Identity() *models.Identity { return nil }
