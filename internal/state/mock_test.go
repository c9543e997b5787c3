package state

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/credstore"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/stretchr/testify/mock"
)

// мок удаленного API
type mockAPI struct {
	mock.Mock
}

func (m *mockAPI) Register(ctx context.Context, in models.Registration) (*models.AuthResult, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*models.AuthResult)
	return res, args.Error(1)
}

func (m *mockAPI) Login(ctx context.Context, in models.Credentials) (string, error) {
	args := m.Called(ctx, in)
	return args.String(0), args.Error(1)
}

func (m *mockAPI) Me(ctx context.Context) (*models.Identity, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).(*models.Identity)
	return res, args.Error(1)
}

func (m *mockAPI) ListPosts(ctx context.Context) ([]models.Post, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.Post)
	return res, args.Error(1)
}

func (m *mockAPI) ListMyPosts(ctx context.Context) ([]models.Post, error) {
	args := m.Called(ctx)
	res, _ := args.Get(0).([]models.Post)
	return res, args.Error(1)
}

func (m *mockAPI) GetPost(ctx context.Context, id string) (*models.PostDetail, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*models.PostDetail)
	return res, args.Error(1)
}

func (m *mockAPI) CreatePost(ctx context.Context, in models.PostInput) (*models.Post, error) {
	args := m.Called(ctx, in)
	res, _ := args.Get(0).(*models.Post)
	return res, args.Error(1)
}

func (m *mockAPI) UpdatePost(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	args := m.Called(ctx, id, patch)
	res, _ := args.Get(0).(*models.Post)
	return res, args.Error(1)
}

func (m *mockAPI) DeletePost(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockAPI) AddComment(ctx context.Context, postID, text string) (*models.Comment, error) {
	args := m.Called(ctx, postID, text)
	res, _ := args.Get(0).(*models.Comment)
	return res, args.Error(1)
}

func (m *mockAPI) UpdateComment(ctx context.Context, postID, commentID, text string) (*models.Comment, error) {
	args := m.Called(ctx, postID, commentID, text)
	res, _ := args.Get(0).(*models.Comment)
	return res, args.Error(1)
}

func (m *mockAPI) DeleteComment(ctx context.Context, postID, commentID string) error {
	return m.Called(ctx, postID, commentID).Error(0)
}

func (m *mockAPI) AddReply(ctx context.Context, postID, commentID, text string) (*models.Reply, error) {
	args := m.Called(ctx, postID, commentID, text)
	res, _ := args.Get(0).(*models.Reply)
	return res, args.Error(1)
}

func (m *mockAPI) UpdateReply(ctx context.Context, postID, commentID, replyID, text string) (*models.Reply, error) {
	args := m.Called(ctx, postID, commentID, replyID, text)
	res, _ := args.Get(0).(*models.Reply)
	return res, args.Error(1)
}

func (m *mockAPI) DeleteReply(ctx context.Context, postID, commentID, replyID string) error {
	return m.Called(ctx, postID, commentID, replyID).Error(0)
}

var (
	alice = &models.Identity{ID: "u-alice", Username: "alice", Email: "alice@example.com", Role: models.RoleUser}
	bob   = &models.Identity{ID: "u-bob", Username: "bob", Email: "bob@example.com", Role: models.RoleUser}
	admin = &models.Identity{ID: "u-admin", Username: "root", Email: "root@example.com", Role: models.RoleAdmin}

	errNetwork = apperr.Normalize(0, nil, errors.New("connection refused"))
	fixedNow   = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
)

// newTestStore собирает хранилище с заданным пользователем без сетевого входа
func newTestStore(t *testing.T, api *mockAPI, me *models.Identity) *Store {
	t.Helper()
	s := New(Deps{API: api, Credentials: credstore.NewMemory()})
	s.Posts.eng.now = func() time.Time { return fixedNow }
	if me != nil {
		s.Session.establish("token-"+me.ID, me)
	}
	return s
}

// gate блокирует вызов мока, пока тест не отпустит его
type gate struct {
	started chan struct{}
	release chan struct{}
}

func newGate() *gate {
	return &gate{started: make(chan struct{}), release: make(chan struct{})}
}

func (g *gate) run(mock.Arguments) {
	close(g.started)
	<-g.release
}

func (g *gate) wait(t *testing.T) {
	t.Helper()
	select {
	case <-g.started:
	case <-time.After(2 * time.Second):
		t.Fatal("вызов API не начался")
	}
}

// async запускает операцию и возвращает канал с ее ошибкой
func async(fn func() error) <-chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func await(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("операция не завершилась")
		return nil
	}
}

func seedPost(s *Store, post models.Post, comments []models.Comment) {
	s.Posts.mu.Lock()
	s.Posts.all = append(s.Posts.all, post)
	s.Posts.current = clonePost(&post)
	s.Posts.mu.Unlock()
	s.Comments.Load(post.ID, comments)
}
