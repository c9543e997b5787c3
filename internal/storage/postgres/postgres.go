package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/storage"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		role TEXT NOT NULL,
		password_hash BYTEA NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		author_id TEXT NOT NULL REFERENCES users(id),
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS comments (
		id TEXT PRIMARY KEY,
		post_id TEXT NOT NULL REFERENCES posts(id) ON DELETE CASCADE,
		parent_id TEXT REFERENCES comments(id) ON DELETE CASCADE,
		author_id TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_posts_created ON posts(created_at DESC, id DESC);
	CREATE INDEX IF NOT EXISTS idx_posts_author ON posts(author_id);
	CREATE INDEX IF NOT EXISTS idx_comments_post_id ON comments(post_id);
	CREATE INDEX IF NOT EXISTS idx_comments_parent_id ON comments(parent_id);
`

type PostgresStorage struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, dsn string) (*PostgresStorage, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return &PostgresStorage{pool: pool}, nil
}

func notFound(err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func (s *PostgresStorage) CreateUser(ctx context.Context, user *models.User) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (id, username, email, role, password_hash, created_at)
		VALUES ($1, $2, LOWER($3), $4, $5, $6)`,
		user.ID, user.Username, user.Email, string(user.Role), user.PasswordHash, user.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("user %s: %w", user.Email, storage.ErrConflict)
	}
	return err
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	var role string
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &role, &u.PasswordHash, &u.CreatedAt); err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

func (s *PostgresStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT id, username, email, role, password_hash, created_at
		FROM users
		WHERE email = LOWER(TRIM($1))`, email))
	if err != nil {
		return nil, notFound(err)
	}
	return u, nil
}

func (s *PostgresStorage) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, username, email, role, password_hash, created_at
		FROM users
		WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]*models.User, len(ids))
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out[u.ID] = u
	}
	return out, rows.Err()
}

const postColumns = `id, title, content, author_id, created_at, updated_at`

func scanPost(row pgx.Row) (models.PostRecord, error) {
	var p models.PostRecord
	err := row.Scan(&p.ID, &p.Title, &p.Content, &p.AuthorID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func collectPosts(rows pgx.Rows) ([]models.PostRecord, error) {
	defer rows.Close()
	var posts []models.PostRecord
	for rows.Next() {
		p, err := scanPost(rows)
		if err != nil {
			return nil, err
		}
		posts = append(posts, p)
	}
	return posts, rows.Err()
}

func (s *PostgresStorage) CreatePost(ctx context.Context, post *models.PostRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO posts (id, title, content, author_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		post.ID, post.Title, post.Content, post.AuthorID, post.CreatedAt, post.UpdatedAt)
	return err
}

func (s *PostgresStorage) GetPost(ctx context.Context, id string) (*models.PostRecord, error) {
	p, err := scanPost(s.pool.QueryRow(ctx, `SELECT `+postColumns+` FROM posts WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *PostgresStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	// Подсчет общего количества
	var totalCount int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM posts`).Scan(&totalCount); err != nil {
		return nil, err
	}

	var (
		afterTime *time.Time
		afterID   *string
	)
	if cursor != nil && *cursor != "" {
		createdAt, id, err := storage.DecodeCursor(*cursor)
		if err != nil {
			return nil, err
		}
		afterTime, afterID = &createdAt, &id
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE ($1::TIMESTAMPTZ IS NULL OR (created_at, id) < ($1, $2::TEXT))
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, afterTime, afterID, limit+1)
	if err != nil {
		return nil, err
	}
	posts, err := collectPosts(rows)
	if err != nil {
		return nil, err
	}

	var nextCursor *string
	if len(posts) > limit {
		posts = posts[:limit]
		last := posts[limit-1]
		cursorVal := storage.EncodeCursor(last.CreatedAt, last.ID)
		nextCursor = &cursorVal
	}

	return &models.PaginatedPosts{
		Posts:      posts,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (s *PostgresStorage) ListPostsByAuthor(ctx context.Context, authorID string) ([]models.PostRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+postColumns+`
		FROM posts
		WHERE author_id=$1
		ORDER BY created_at DESC, id DESC`, authorID)
	if err != nil {
		return nil, err
	}
	return collectPosts(rows)
}

func (s *PostgresStorage) UpdatePost(ctx context.Context, post *models.PostRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE posts SET title=$2, content=$3, updated_at=$4
		WHERE id=$1`, post.ID, post.Title, post.Content, post.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeletePost(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM posts WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

const commentColumns = `id, post_id, parent_id, author_id, text, created_at, updated_at`

func scanComment(row pgx.Row) (models.CommentRecord, error) {
	var c models.CommentRecord
	err := row.Scan(&c.ID, &c.PostID, &c.ParentID, &c.AuthorID, &c.Text, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (s *PostgresStorage) CreateComment(ctx context.Context, comment *models.CommentRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO comments (id, post_id, parent_id, author_id, text, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		comment.ID, comment.PostID, comment.ParentID, comment.AuthorID, comment.Text, comment.CreatedAt, comment.UpdatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23503" {
		return fmt.Errorf("comment parent: %w", storage.ErrNotFound)
	}
	return err
}

func (s *PostgresStorage) GetComment(ctx context.Context, id string) (*models.CommentRecord, error) {
	c, err := scanComment(s.pool.QueryRow(ctx, `SELECT `+commentColumns+` FROM comments WHERE id=$1`, id))
	if err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

func (s *PostgresStorage) ListComments(ctx context.Context, postID string) ([]models.CommentRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+commentColumns+`
		FROM comments
		WHERE post_id=$1
		ORDER BY created_at DESC, id DESC`, postID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []models.CommentRecord
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, err
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

func (s *PostgresStorage) UpdateComment(ctx context.Context, comment *models.CommentRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE comments SET text=$2, updated_at=$3
		WHERE id=$1`, comment.ID, comment.Text, comment.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) DeleteComment(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM comments WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *PostgresStorage) CountComments(ctx context.Context, postIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(postIDs))
	for _, id := range postIDs {
		counts[id] = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT post_id, COUNT(*)
		FROM comments
		WHERE post_id = ANY($1) AND parent_id IS NULL
		GROUP BY post_id`, postIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var (
			postID string
			n      int
		)
		if err := rows.Scan(&postID, &n); err != nil {
			return nil, err
		}
		counts[postID] = n
	}
	return counts, rows.Err()
}

func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
