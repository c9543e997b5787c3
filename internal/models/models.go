package models

import (
	"strings"
	"time"
)

type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// Identity - пользователь в том виде, в каком его отдает API
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
}

func (i *Identity) IsAdmin() bool {
	return i != nil && strings.EqualFold(string(i.Role), string(RoleAdmin))
}

type Post struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	Content       string    `json:"content"`
	Author        Identity  `json:"author"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
	CommentsCount int       `json:"commentsCount"`
	Pending       bool      `json:"-"`
}

// PostDetail - ответ get-one: пост вместе с деревом комментариев
type PostDetail struct {
	Post
	Comments []Comment `json:"comments"`
}

type Comment struct {
	ID        string    `json:"id"`
	PostID    string    `json:"postId,omitempty"`
	AuthorID  string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Replies   []Reply   `json:"replies"`
	Pending   bool      `json:"-"`
}

type Reply struct {
	ID        string    `json:"id"`
	CommentID string    `json:"commentId,omitempty"`
	AuthorID  string    `json:"user"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	Pending   bool      `json:"-"`
}

type PostList struct {
	Posts      []Post  `json:"posts"`
	TotalCount int     `json:"totalCount"`
	NextCursor *string `json:"nextCursor"`
}

const (
	EventCommentAdded   = "comment.added"
	EventCommentDeleted = "comment.deleted"
)

// CommentEvent рассылается подписчикам поста при добавлении и удалении комментариев
type CommentEvent struct {
	Type      string   `json:"type"`
	PostID    string   `json:"postId"`
	CommentID string   `json:"commentId"`
	Comment   *Comment `json:"comment,omitempty"`
}
