package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func TestPostgresStorage(t *testing.T) {
	if testing.Short() {
		t.Skip("нужен Docker")
	}

	// Запуск тестового контейнера PostgreSQL
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "user",
			"POSTGRES_PASSWORD": "password",
			"POSTGRES_DB":       "blog",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}
	postgresC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Fatalf("Не удалось запустить контейнер PostgreSQL: %v", err)
	}
	defer postgresC.Terminate(ctx)

	// Получение DSN
	host, err := postgresC.Host(ctx)
	if err != nil {
		t.Fatalf("Не удалось получить хост контейнера: %v", err)
	}
	port, err := postgresC.MappedPort(ctx, "5432")
	if err != nil {
		t.Fatalf("Не удалось получить порт контейнера: %v", err)
	}
	dsn := "postgres://user:password@" + host + ":" + port.Port() + "/blog?sslmode=disable"

	// Инициализация хранилища
	store, err := New(ctx, dsn)
	if err != nil {
		t.Fatalf("Не удалось инициализировать PostgresStorage: %v", err)
	}
	defer store.Close()

	now := time.Now().UTC().Truncate(time.Microsecond)
	author := &models.User{
		Identity:     models.Identity{ID: uuid.New().String(), Username: "alice", Email: "Alice@example.com", Role: models.RoleUser},
		PasswordHash: []byte("hash"),
		CreatedAt:    now,
	}

	t.Run("Users", func(t *testing.T) {
		require.NoError(t, store.CreateUser(ctx, author))

		dup := *author
		dup.ID = uuid.New().String()
		dup.Username = "other"
		assert.True(t, errors.Is(store.CreateUser(ctx, &dup), storage.ErrConflict), "Ожидался конфликт по email")

		found, err := store.GetUserByEmail(ctx, "alice@EXAMPLE.com")
		require.NoError(t, err)
		assert.Equal(t, author.ID, found.ID)
		assert.Equal(t, models.RoleUser, found.Role)

		users, err := store.GetUsers(ctx, []string{author.ID, "missing"})
		require.NoError(t, err)
		assert.Len(t, users, 1)
	})

	t.Run("CreatePost and GetPost", func(t *testing.T) {
		post := &models.PostRecord{
			ID:        uuid.New().String(),
			Title:     "Тестовый пост",
			Content:   "Содержимое",
			AuthorID:  author.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		err := store.CreatePost(ctx, post)
		assert.NoError(t, err, "Ошибка при создании поста")

		retrieved, err := store.GetPost(ctx, post.ID)
		assert.NoError(t, err, "Ошибка при получении поста")
		assert.Equal(t, post.ID, retrieved.ID, "ID поста не совпадает")
		assert.Equal(t, post.Title, retrieved.Title, "Заголовок поста не совпадает")

		post.Title = "Новый заголовок"
		require.NoError(t, store.UpdatePost(ctx, post))
		retrieved, _ = store.GetPost(ctx, post.ID)
		assert.Equal(t, "Новый заголовок", retrieved.Title)
	})

	t.Run("GetPost Not Found", func(t *testing.T) {
		_, err := store.GetPost(ctx, "non-existent-id")
		assert.True(t, errors.Is(err, storage.ErrNotFound), "Неверная ошибка")
	})

	t.Run("ListPosts pages through everything", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, store.CreatePost(ctx, &models.PostRecord{
				ID:        uuid.New().String(),
				Title:     "Пост",
				Content:   "Содержимое",
				AuthorID:  author.ID,
				CreatedAt: now.Add(time.Duration(i%2) * time.Minute),
				UpdatedAt: now,
			}))
		}

		seen := map[string]bool{}
		var cursor *string
		total := 0
		for {
			page, err := store.ListPosts(ctx, 2, cursor)
			require.NoError(t, err)
			total = page.TotalCount
			for _, p := range page.Posts {
				assert.False(t, seen[p.ID], "Пост встретился дважды")
				seen[p.ID] = true
			}
			if page.NextCursor == nil {
				break
			}
			cursor = page.NextCursor
		}
		assert.Equal(t, total, len(seen))

		mine, err := store.ListPostsByAuthor(ctx, author.ID)
		require.NoError(t, err)
		assert.Len(t, mine, total)
	})

	t.Run("Comments, replies and cascade", func(t *testing.T) {
		post := &models.PostRecord{ID: uuid.New().String(), Title: "t", Content: "c", AuthorID: author.ID, CreatedAt: now, UpdatedAt: now}
		require.NoError(t, store.CreatePost(ctx, post))

		parent := &models.CommentRecord{ID: uuid.New().String(), PostID: post.ID, AuthorID: "user2", Text: "Родительский комментарий", CreatedAt: now, UpdatedAt: now}
		reply := &models.CommentRecord{ID: uuid.New().String(), PostID: post.ID, ParentID: &parent.ID, AuthorID: author.ID, Text: "Ответ", CreatedAt: now.Add(time.Hour), UpdatedAt: now}
		require.NoError(t, store.CreateComment(ctx, parent))
		require.NoError(t, store.CreateComment(ctx, reply))

		comments, err := store.ListComments(ctx, post.ID)
		require.NoError(t, err)
		require.Len(t, comments, 2)
		assert.Equal(t, reply.ID, comments[0].ID)
		require.NotNil(t, comments[0].ParentID)
		assert.Equal(t, parent.ID, *comments[0].ParentID)

		counts, err := store.CountComments(ctx, []string{post.ID})
		require.NoError(t, err)
		assert.Equal(t, 1, counts[post.ID])

		parent.Text = "Исправлено"
		require.NoError(t, store.UpdateComment(ctx, parent))
		got, err := store.GetComment(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, "Исправлено", got.Text)

		require.NoError(t, store.DeleteComment(ctx, parent.ID))
		_, err = store.GetComment(ctx, reply.ID)
		assert.True(t, errors.Is(err, storage.ErrNotFound), "Ответ должен удалиться вместе с комментарием")

		require.NoError(t, store.CreateComment(ctx, &models.CommentRecord{ID: uuid.New().String(), PostID: post.ID, AuthorID: "u", Text: "x", CreatedAt: now, UpdatedAt: now}))
		require.NoError(t, store.DeletePost(ctx, post.ID))
		comments, err = store.ListComments(ctx, post.ID)
		require.NoError(t, err)
		assert.Empty(t, comments)
		assert.True(t, errors.Is(store.DeletePost(ctx, post.ID), storage.ErrNotFound))
	})
}
