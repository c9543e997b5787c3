package state

import (
	"context"
	"errors"
	"log/slog"

	"github.com/ButyrinIA/blogsync/internal/credstore"
	"github.com/ButyrinIA/blogsync/internal/models"
)

// API is the full remote surface the store needs.
type API interface {
	AuthAPI
	PostsAPI
	CommentsAPI
}

// EventSource streams live comment events for one post.
type EventSource interface {
	Subscribe(ctx context.Context, postID string) (<-chan models.CommentEvent, error)
}

// UnauthorizedNotifier is implemented by transports that report rejected
// credentials to interested parties.
type UnauthorizedNotifier interface {
	OnUnauthorized(fn func())
}

type Deps struct {
	API         API
	Credentials credstore.Store
	Events      EventSource
	Recorder    Recorder
	Logger      *slog.Logger
	PageSize    int
}

// Store is the process-wide synchronizer. Create one at startup and Close
// it at shutdown.
type Store struct {
	Session  *Session
	Posts    *Posts
	Comments *Comments

	events EventSource
	creds  credstore.Store
	log    *slog.Logger
}

func New(d Deps) *Store {
	if d.Credentials == nil {
		d.Credentials = credstore.NewMemory()
	}
	eng := newEngine(d.Recorder, d.Logger)

	session := NewSession(d.API, d.Credentials, d.Logger)
	posts := newPosts(d.API, session, eng, d.PageSize)
	comments := newComments(d.API, session, posts, eng)

	if n, ok := d.API.(UnauthorizedNotifier); ok {
		n.OnUnauthorized(session.Expire)
	}

	return &Store{
		Session:  session,
		Posts:    posts,
		Comments: comments,
		events:   d.Events,
		creds:    d.Credentials,
		log:      eng.log,
	}
}

// OpenPost fetches a post into the current slot, loads its thread and
// copies the server's comment counter into the lists.
func (s *Store) OpenPost(ctx context.Context, id string) (*models.PostDetail, error) {
	detail, err := s.Posts.FetchOne(ctx, id)
	if err != nil {
		return nil, err
	}
	s.Comments.Load(id, detail.Comments)
	s.Posts.SyncCurrent(detail.Post)
	return detail, nil
}

var ErrNoEvents = errors.New("live events are not configured")

// Watch applies live comment events for the post until ctx ends or the
// stream closes. The post's thread must be loaded for events to apply.
func (s *Store) Watch(ctx context.Context, postID string, onChange func(models.CommentEvent)) error {
	if s.events == nil {
		return ErrNoEvents
	}
	events, err := s.events.Subscribe(ctx, postID)
	if err != nil {
		return err
	}
	s.log.Info("Watching post", "post_id", postID)

	for ev := range events {
		if s.Comments.ApplyEvent(ev) && onChange != nil {
			onChange(ev)
		}
	}
	return ctx.Err()
}

func (s *Store) Close() error {
	return s.creds.Close()
}
