package models

import (
	"strings"

	"github.com/google/uuid"
)

type Registration struct {
	Username string `json:"username" validate:"required,max=50"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type PostInput struct {
	Title   string `json:"title" validate:"required,max=200"`
	Content string `json:"content" validate:"required"`
}

// PostPatch - частичное обновление: nil означает "не менять"
type PostPatch struct {
	Title   *string `json:"title,omitempty" validate:"omitempty,min=1,max=200"`
	Content *string `json:"content,omitempty" validate:"omitempty,min=1"`
}

func (p PostPatch) Empty() bool {
	return p.Title == nil && p.Content == nil
}

type TextInput struct {
	Text string `json:"text" validate:"required,max=2000"`
}

type AuthResult struct {
	Token string    `json:"token"`
	User  *Identity `json:"user"`
}

type LoginResult struct {
	Access string `json:"access"`
}

const tempPrefix = "temp-"

// NewTempID генерирует временный идентификатор для неподтвержденной сущности
func NewTempID(kind string) string {
	if kind == "" {
		return tempPrefix + uuid.NewString()
	}
	return tempPrefix + kind + "-" + uuid.NewString()
}

func IsTemporaryID(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}
