package models

import "time"

// Записи хранилища эталонного сервера.

type User struct {
	Identity
	PasswordHash []byte    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

type PostRecord struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	AuthorID  string    `json:"authorId"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CommentRecord хранит и комментарии, и ответы: у ответа заполнен ParentID
type CommentRecord struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId"`
	ParentID  *string   `json:"parentId"`
	AuthorID  string    `json:"authorId"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type PaginatedPosts struct {
	Posts      []PostRecord `json:"posts"`
	TotalCount int          `json:"totalCount"`
	NextCursor *string      `json:"nextCursor"`
}
