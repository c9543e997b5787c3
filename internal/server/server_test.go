package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ButyrinIA/blogsync/internal/config"
	"github.com/ButyrinIA/blogsync/internal/endpoint"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/ButyrinIA/blogsync/internal/storage/memory"
	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStorage считает пакетные запросы пользователей
type countingStorage struct {
	storage.Storage
	getUsers atomic.Int32
}

func (c *countingStorage) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	c.getUsers.Add(1)
	return c.Storage.GetUsers(ctx, ids)
}

func newTestServer(t *testing.T, store storage.Storage) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Server.JWTSecret = "test-secret"
	if store == nil {
		store = memory.New()
	}
	return New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (s *Server) call(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out), "Ответ не является JSON")
	return out
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) string {
	return decodeBody[errorBody](t, rr).Error
}

// signup регистрирует пользователя с заданной ролью и возвращает его токен
func (s *Server) signup(t *testing.T, name string, role models.Role) (*models.User, string) {
	t.Helper()
	user, err := s.CreateUser(context.Background(), models.Registration{
		Username: name,
		Email:    name + "@example.com",
		Password: "secret123",
	}, role)
	require.NoError(t, err)
	token, err := s.generateToken(user.ID)
	require.NoError(t, err)
	return user, token
}

func TestNewServer(t *testing.T) {
	server := newTestServer(t, nil)

	assert.NotNil(t, server)
	assert.Equal(t, "test-secret", server.cfg.Server.JWTSecret)
	assert.NotNil(t, server.handler)
}

func TestGenerateToken(t *testing.T) {
	server := newTestServer(t, nil)
	token, err := server.generateToken("user1")
	assert.NoError(t, err)
	assert.NotEmpty(t, token)

	parsedToken, err := jwt.Parse(token, func(token *jwt.Token) (interface{}, error) {
		return []byte("test-secret"), nil
	})
	assert.NoError(t, err)
	assert.True(t, parsedToken.Valid)

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	assert.True(t, ok)
	assert.Equal(t, "user1", claims["user_id"])
	assert.Contains(t, claims, "exp")
}

func TestValidateJWT(t *testing.T) {
	server := newTestServer(t, nil)
	token, err := server.generateToken("user1")
	assert.NoError(t, err)

	userID, err := server.validateJWT(token)
	assert.NoError(t, err)
	assert.Equal(t, "user1", userID)
}

func TestValidateJWT_Invalid(t *testing.T) {
	server := newTestServer(t, nil)

	_, err := server.validateJWT("")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "пустой токен")

	_, err = server.validateJWT("invalid-token")
	assert.Error(t, err)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": "user1",
		"exp":     time.Now().Add(time.Hour * 24).Unix(),
	})
	wrongKeyToken, _ := token.SignedString([]byte("wrong-key"))
	_, err = server.validateJWT(wrongKeyToken)
	assert.Error(t, err, "Токен с чужим ключом должен отклоняться")

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "user1"})
	noExpToken, _ := noExp.SignedString([]byte("test-secret"))
	_, err = server.validateJWT(noExpToken)
	assert.Error(t, err, "Токен без срока действия должен отклоняться")
}

func TestValidateJWT_Expired(t *testing.T) {
	server := newTestServer(t, nil)
	issued := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	server.now = func() time.Time { return issued }
	token, err := server.generateToken("user1")
	require.NoError(t, err)

	server.now = func() time.Time { return issued.Add(server.cfg.Server.TokenTTL + time.Minute) }
	_, err = server.validateJWT(token)
	assert.Error(t, err, "Просроченный токен должен отклоняться")
}

func TestAuthHandlers(t *testing.T) {
	server := newTestServer(t, nil)

	t.Run("Register", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Register, "", models.Registration{
			Username: " alice ", Email: "Alice@Example.com", Password: "secret123",
		})
		require.Equal(t, http.StatusCreated, rr.Code)
		res := decodeBody[models.AuthResult](t, rr)
		assert.NotEmpty(t, res.Token)
		require.NotNil(t, res.User)
		assert.Equal(t, "alice", res.User.Username)
		assert.Equal(t, "alice@example.com", res.User.Email)
		assert.Equal(t, models.RoleUser, res.User.Role)
	})

	t.Run("Register duplicate", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Register, "", models.Registration{
			Username: "alice2", Email: "alice@example.com", Password: "secret123",
		})
		assert.Equal(t, http.StatusConflict, rr.Code)
		assert.NotEmpty(t, errorOf(t, rr))
	})

	t.Run("Register invalid", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Register, "", models.Registration{
			Username: "bob", Email: "not-an-email", Password: "secret123",
		})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Email is invalid", errorOf(t, rr))
	})

	t.Run("Login and details", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Login, "", models.Credentials{
			Email: "ALICE@example.com", Password: "secret123",
		})
		require.Equal(t, http.StatusOK, rr.Code)
		access := decodeBody[models.LoginResult](t, rr).Access
		require.NotEmpty(t, access)

		rr = server.call(t, http.MethodGet, endpoint.UserDetails, access, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		body := decodeBody[map[string]models.Identity](t, rr)
		assert.Equal(t, "alice", body["user"].Username)
	})

	t.Run("Login wrong password", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Login, "", models.Credentials{
			Email: "alice@example.com", Password: "wrong-password",
		})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Invalid email or password", errorOf(t, rr))
	})

	t.Run("Details without token", func(t *testing.T) {
		rr := server.call(t, http.MethodGet, endpoint.UserDetails, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		assert.Equal(t, "Authentication required", errorOf(t, rr))
	})

	t.Run("Token of deleted user", func(t *testing.T) {
		token, err := server.generateToken("ghost")
		require.NoError(t, err)
		rr := server.call(t, http.MethodGet, endpoint.UserDetails, token, nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})
}

func createPost(t *testing.T, s *Server, token, title string) models.Post {
	t.Helper()
	rr := s.call(t, http.MethodPost, endpoint.CreatePost, token, models.PostInput{Title: title, Content: "Содержимое"})
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	return decodeBody[map[string]models.Post](t, rr)["post"]
}

func TestPostHandlers(t *testing.T) {
	store := &countingStorage{Storage: memory.New()}
	server := newTestServer(t, store)
	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	server.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}

	alice, aliceToken := server.signup(t, "alice", models.RoleUser)
	_, bobToken := server.signup(t, "bob", models.RoleUser)
	_, adminToken := server.signup(t, "admin", models.RoleAdmin)

	first := createPost(t, server, aliceToken, "Первый")
	second := createPost(t, server, bobToken, "Второй")
	third := createPost(t, server, aliceToken, "Третий")

	t.Run("Create", func(t *testing.T) {
		assert.Equal(t, alice.ID, first.Author.ID)
		assert.Equal(t, "alice", first.Author.Username)
		assert.Zero(t, first.CommentsCount)
		assert.False(t, models.IsTemporaryID(first.ID))
	})

	t.Run("Create invalid", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.CreatePost, aliceToken, models.PostInput{Title: "  ", Content: "x"})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Title is required", errorOf(t, rr))
	})

	t.Run("List pages with cursor and batches authors", func(t *testing.T) {
		store.getUsers.Store(0)
		rr := server.call(t, http.MethodGet, endpoint.ListPosts+"?limit=2", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page := decodeBody[models.PostList](t, rr)
		assert.Equal(t, 3, page.TotalCount)
		require.Len(t, page.Posts, 2)
		assert.Equal(t, third.ID, page.Posts[0].ID)
		assert.Equal(t, second.ID, page.Posts[1].ID)
		assert.Equal(t, "bob", page.Posts[1].Author.Username)
		assert.Equal(t, int32(1), store.getUsers.Load(), "Авторы должны загружаться одним пакетом")
		require.NotNil(t, page.NextCursor)

		rr = server.call(t, http.MethodGet, endpoint.ListPosts+"?limit=2&cursor="+url.QueryEscape(*page.NextCursor), "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		page = decodeBody[models.PostList](t, rr)
		require.Len(t, page.Posts, 1)
		assert.Equal(t, first.ID, page.Posts[0].ID)
		assert.Nil(t, page.NextCursor)
	})

	t.Run("List bad input", func(t *testing.T) {
		rr := server.call(t, http.MethodGet, endpoint.ListPosts+"?limit=abc", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		rr = server.call(t, http.MethodGet, endpoint.ListPosts+"?cursor=garbage", "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Invalid cursor", errorOf(t, rr))
	})

	t.Run("My posts", func(t *testing.T) {
		rr := server.call(t, http.MethodGet, endpoint.MyPosts, aliceToken, nil)
		require.Equal(t, http.StatusOK, rr.Code)
		posts := decodeBody[map[string][]models.Post](t, rr)["posts"]
		require.Len(t, posts, 2)
		for _, p := range posts {
			assert.Equal(t, alice.ID, p.Author.ID)
		}
	})

	t.Run("Update by author", func(t *testing.T) {
		title := "  Новый заголовок "
		rr := server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdatePost, first.ID), aliceToken, models.PostPatch{Title: &title})
		require.Equal(t, http.StatusOK, rr.Code)
		post := decodeBody[map[string]models.Post](t, rr)["post"]
		assert.Equal(t, "Новый заголовок", post.Title)
		assert.Equal(t, "Содержимое", post.Content, "Непереданные поля не меняются")
		assert.True(t, post.UpdatedAt.After(first.UpdatedAt))
	})

	t.Run("Update checks", func(t *testing.T) {
		title := "чужой"
		rr := server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdatePost, first.ID), bobToken, models.PostPatch{Title: &title})
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "Only the author can edit this post", errorOf(t, rr))

		rr = server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdatePost, first.ID), aliceToken, models.PostPatch{})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Nothing to update", errorOf(t, rr))

		rr = server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdatePost, "missing"), aliceToken, models.PostPatch{Title: &title})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Delete", func(t *testing.T) {
		rr := server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeletePost, second.ID), aliceToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeletePost, second.ID), adminToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code, "Админ может удалить любой пост")

		rr = server.call(t, http.MethodGet, endpoint.Path(endpoint.GetPost, second.ID), "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Post not found", errorOf(t, rr))
	})

	t.Run("Unknown route", func(t *testing.T) {
		rr := server.call(t, http.MethodGet, "/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		assert.Equal(t, "Route not found", errorOf(t, rr))
	})
}

func TestCommentHandlers(t *testing.T) {
	server := newTestServer(t, nil)
	_, authorToken := server.signup(t, "author", models.RoleUser)
	reader, readerToken := server.signup(t, "reader", models.RoleUser)
	_, otherToken := server.signup(t, "other", models.RoleUser)
	_, adminToken := server.signup(t, "admin", models.RoleAdmin)
	post := createPost(t, server, authorToken, "Пост")

	rr := server.call(t, http.MethodPost, endpoint.Path(endpoint.AddComment, post.ID), readerToken, models.TextInput{Text: " Привет "})
	require.Equal(t, http.StatusCreated, rr.Code)
	comment := decodeBody[map[string]models.Comment](t, rr)["comment"]
	assert.Equal(t, "Привет", comment.Text)
	assert.Equal(t, reader.ID, comment.AuthorID)

	t.Run("Add checks", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Path(endpoint.AddComment, post.ID), adminToken, models.TextInput{Text: "x"})
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "Admins cannot add comments", errorOf(t, rr))

		rr = server.call(t, http.MethodPost, endpoint.Path(endpoint.AddComment, post.ID), readerToken, models.TextInput{Text: "   "})
		assert.Equal(t, http.StatusBadRequest, rr.Code)
		assert.Equal(t, "Comment text is required", errorOf(t, rr))

		rr = server.call(t, http.MethodPost, endpoint.Path(endpoint.AddComment, "missing"), readerToken, models.TextInput{Text: "x"})
		assert.Equal(t, http.StatusNotFound, rr.Code)
	})

	t.Run("Edit comment", func(t *testing.T) {
		rr := server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdateComment, post.ID, comment.ID), otherToken, models.TextInput{Text: "x"})
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdateComment, post.ID, comment.ID), readerToken, models.TextInput{Text: "Исправлено"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Исправлено", decodeBody[map[string]models.Comment](t, rr)["comment"].Text)
	})

	var reply models.Reply
	t.Run("Reply", func(t *testing.T) {
		rr := server.call(t, http.MethodPost, endpoint.Path(endpoint.ReplyComment, post.ID, comment.ID), readerToken, models.TextInput{Text: "x"})
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "Only the post author can reply to comments", errorOf(t, rr))

		rr = server.call(t, http.MethodPost, endpoint.Path(endpoint.ReplyComment, post.ID, comment.ID), authorToken, models.TextInput{Text: "Спасибо"})
		require.Equal(t, http.StatusCreated, rr.Code)
		reply = decodeBody[map[string]models.Reply](t, rr)["reply"]
		assert.Equal(t, comment.ID, reply.CommentID)

		rr = server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdateReply, post.ID, comment.ID, reply.ID), authorToken, models.TextInput{Text: "Спасибо!"})
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "Спасибо!", decodeBody[map[string]models.Reply](t, rr)["reply"].Text)

		rr = server.call(t, http.MethodPatch, endpoint.Path(endpoint.UpdateReply, post.ID, "other", reply.ID), authorToken, models.TextInput{Text: "x"})
		assert.Equal(t, http.StatusNotFound, rr.Code, "Ответ ищется только под своим комментарием")
	})

	t.Run("Post detail tree", func(t *testing.T) {
		rr := server.call(t, http.MethodGet, endpoint.Path(endpoint.GetPost, post.ID), "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		detail := decodeBody[map[string]models.PostDetail](t, rr)["post"]
		assert.Equal(t, 1, detail.CommentsCount, "Ответы не входят в счетчик")
		require.Len(t, detail.Comments, 1)
		require.Len(t, detail.Comments[0].Replies, 1)
		assert.Equal(t, reply.ID, detail.Comments[0].Replies[0].ID)
	})

	t.Run("Delete reply and comment", func(t *testing.T) {
		rr := server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeleteReply, post.ID, comment.ID, reply.ID), readerToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)

		rr = server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeleteReply, post.ID, comment.ID, reply.ID), adminToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeleteComment, post.ID, comment.ID), otherToken, nil)
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.Equal(t, "Only the comment author or an admin can delete it", errorOf(t, rr))

		rr = server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeleteComment, post.ID, comment.ID), readerToken, nil)
		assert.Equal(t, http.StatusOK, rr.Code)

		rr = server.call(t, http.MethodGet, endpoint.Path(endpoint.GetPost, post.ID), "", nil)
		detail := decodeBody[map[string]models.PostDetail](t, rr)["post"]
		assert.Zero(t, detail.CommentsCount)
		assert.Empty(t, detail.Comments)
	})
}

func TestPostEvents(t *testing.T) {
	server := newTestServer(t, nil)
	_, authorToken := server.signup(t, "author", models.RoleUser)
	_, readerToken := server.signup(t, "reader", models.RoleUser)
	post := createPost(t, server, authorToken, "Пост")

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + endpoint.Path(endpoint.PostEvents, post.ID)
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err, "Не удалось подключиться к потоку событий")
	defer conn.Close()

	// подписка регистрируется после апгрейда, ждем ее появления
	require.Eventually(t, func() bool {
		server.hub.mu.RLock()
		defer server.hub.mu.RUnlock()
		return len(server.hub.subscribers[post.ID]) == 1
	}, time.Second, 10*time.Millisecond)

	rr := server.call(t, http.MethodPost, endpoint.Path(endpoint.AddComment, post.ID), readerToken, models.TextInput{Text: "Привет"})
	require.Equal(t, http.StatusCreated, rr.Code)
	comment := decodeBody[map[string]models.Comment](t, rr)["comment"]

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var ev models.CommentEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventCommentAdded, ev.Type)
	assert.Equal(t, comment.ID, ev.CommentID)
	require.NotNil(t, ev.Comment)
	assert.Equal(t, "Привет", ev.Comment.Text)

	rr = server.call(t, http.MethodDelete, endpoint.Path(endpoint.DeleteComment, post.ID, comment.ID), readerToken, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventCommentDeleted, ev.Type)

	t.Run("Unknown post", func(t *testing.T) {
		missingURL := "ws" + strings.TrimPrefix(ts.URL, "http") + endpoint.Path(endpoint.PostEvents, "missing")
		_, resp, err := websocket.DefaultDialer.Dial(missingURL, nil)
		assert.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestHub(t *testing.T) {
	h := newHub()
	events, release := h.subscribe("p1")
	other, releaseOther := h.subscribe("p2")
	defer releaseOther()

	h.publish(models.CommentEvent{Type: models.EventCommentAdded, PostID: "p1", CommentID: "c1"})
	ev := <-events
	assert.Equal(t, "c1", ev.CommentID)
	assert.Len(t, other, 0, "Событие другого поста не доставляется")

	release()
	release()
	_, ok := <-events
	assert.False(t, ok, "Канал закрывается при отписке")

	h.close()
	_, ok = <-other
	assert.False(t, ok, "Канал закрывается при остановке")
	releaseOther()

	late, _ := h.subscribe("p1")
	_, ok = <-late
	assert.False(t, ok, "После остановки подписка сразу закрыта")
}

func TestMetricsEndpoint(t *testing.T) {
	server := newTestServer(t, nil)
	server.call(t, http.MethodGet, endpoint.ListPosts, "", nil)

	rr := server.call(t, http.MethodGet, endpoint.Metrics, "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `blogsync_http_requests_total{code="200",route="/posts/getPosts"}`)
}
