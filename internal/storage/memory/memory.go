package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/storage"
)

type MemoryStorage struct {
	users    map[string]*models.User
	emails   map[string]string
	posts    map[string]*models.PostRecord
	comments map[string]*models.CommentRecord
	mu       sync.RWMutex
}

func New() *MemoryStorage {
	return &MemoryStorage{
		users:    make(map[string]*models.User),
		emails:   make(map[string]string),
		posts:    make(map[string]*models.PostRecord),
		comments: make(map[string]*models.CommentRecord),
	}
}

func emailKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (s *MemoryStorage) CreateUser(ctx context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := emailKey(user.Email)
	if _, exists := s.emails[key]; exists {
		return fmt.Errorf("user %s: %w", user.Email, storage.ErrConflict)
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, user.Username) {
			return fmt.Errorf("user %s: %w", user.Username, storage.ErrConflict)
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	s.emails[key] = user.ID
	return nil
}

func (s *MemoryStorage) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, exists := s.emails[emailKey(email)]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

func (s *MemoryStorage) GetUsers(ctx context.Context, ids []string) (map[string]*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]*models.User, len(ids))
	for _, id := range ids {
		if u, exists := s.users[id]; exists {
			cp := *u
			out[id] = &cp
		}
	}
	return out, nil
}

func (s *MemoryStorage) CreatePost(ctx context.Context, post *models.PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetPost(ctx context.Context, id string) (*models.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	post, exists := s.posts[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *post
	return &cp, nil
}

// newestFirst упорядочивает посты по (created_at, id) по убыванию
func (s *MemoryStorage) newestFirst(filter func(*models.PostRecord) bool) []models.PostRecord {
	var posts []models.PostRecord
	for _, post := range s.posts {
		if filter == nil || filter(post) {
			posts = append(posts, *post)
		}
	}
	sort.Slice(posts, func(i, j int) bool {
		if !posts[i].CreatedAt.Equal(posts[j].CreatedAt) {
			return posts[i].CreatedAt.After(posts[j].CreatedAt)
		}
		return posts[i].ID > posts[j].ID
	})
	return posts
}

func (s *MemoryStorage) ListPosts(ctx context.Context, limit int, cursor *string) (*models.PaginatedPosts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	posts := s.newestFirst(nil)
	totalCount := len(posts)

	// Применение курсора
	startIdx := 0
	if cursor != nil && *cursor != "" {
		createdAt, id, err := storage.DecodeCursor(*cursor)
		if err != nil {
			return nil, err
		}
		startIdx = len(posts)
		for i, post := range posts {
			if post.CreatedAt.Before(createdAt) || (post.CreatedAt.Equal(createdAt) && post.ID < id) {
				startIdx = i
				break
			}
		}
	}

	// Ограничение количества
	endIdx := startIdx + limit
	if endIdx > len(posts) {
		endIdx = len(posts)
	}

	result := posts[startIdx:endIdx]
	var nextCursor *string
	if endIdx < len(posts) && endIdx > startIdx {
		last := posts[endIdx-1]
		cursorVal := storage.EncodeCursor(last.CreatedAt, last.ID)
		nextCursor = &cursorVal
	}

	return &models.PaginatedPosts{
		Posts:      result,
		TotalCount: totalCount,
		NextCursor: nextCursor,
	}, nil
}

func (s *MemoryStorage) ListPostsByAuthor(ctx context.Context, authorID string) ([]models.PostRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.newestFirst(func(p *models.PostRecord) bool { return p.AuthorID == authorID }), nil
}

func (s *MemoryStorage) UpdatePost(ctx context.Context, post *models.PostRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[post.ID]; !exists {
		return storage.ErrNotFound
	}
	cp := *post
	s.posts[post.ID] = &cp
	return nil
}

func (s *MemoryStorage) DeletePost(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.posts, id)
	for cid, c := range s.comments {
		if c.PostID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

func (s *MemoryStorage) CreateComment(ctx context.Context, comment *models.CommentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.posts[comment.PostID]; !exists {
		return fmt.Errorf("post %s: %w", comment.PostID, storage.ErrNotFound)
	}
	if comment.ParentID != nil {
		if _, exists := s.comments[*comment.ParentID]; !exists {
			return fmt.Errorf("comment %s: %w", *comment.ParentID, storage.ErrNotFound)
		}
	}
	cp := *comment
	s.comments[comment.ID] = &cp
	return nil
}

func (s *MemoryStorage) GetComment(ctx context.Context, id string) (*models.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	comment, exists := s.comments[id]
	if !exists {
		return nil, storage.ErrNotFound
	}
	cp := *comment
	return &cp, nil
}

func (s *MemoryStorage) ListComments(ctx context.Context, postID string) ([]models.CommentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var comments []models.CommentRecord
	for _, c := range s.comments {
		if c.PostID == postID {
			comments = append(comments, *c)
		}
	}
	// Сортировка по CreatedAt
	sort.Slice(comments, func(i, j int) bool {
		if !comments[i].CreatedAt.Equal(comments[j].CreatedAt) {
			return comments[i].CreatedAt.After(comments[j].CreatedAt)
		}
		return comments[i].ID > comments[j].ID
	})
	return comments, nil
}

func (s *MemoryStorage) UpdateComment(ctx context.Context, comment *models.CommentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.comments[comment.ID]; !exists {
		return storage.ErrNotFound
	}
	cp := *comment
	s.comments[comment.ID] = &cp
	return nil
}

func (s *MemoryStorage) DeleteComment(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.comments[id]; !exists {
		return storage.ErrNotFound
	}
	delete(s.comments, id)
	for cid, c := range s.comments {
		if c.ParentID != nil && *c.ParentID == id {
			delete(s.comments, cid)
		}
	}
	return nil
}

func (s *MemoryStorage) CountComments(ctx context.Context, postIDs []string) (map[string]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	wanted := make(map[string]bool, len(postIDs))
	counts := make(map[string]int, len(postIDs))
	for _, id := range postIDs {
		wanted[id] = true
		counts[id] = 0
	}
	for _, c := range s.comments {
		if c.ParentID == nil && wanted[c.PostID] {
			counts[c.PostID]++
		}
	}
	return counts, nil
}

func (s *MemoryStorage) Close() error {
	return nil
}
