package state

import "github.com/ButyrinIA/blogsync/internal/models"

// Copies normalize empty slices to nil so snapshots compare equal.

func clonePosts(in []models.Post) []models.Post {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Post, len(in))
	copy(out, in)
	return out
}

func clonePost(p *models.Post) *models.Post {
	if p == nil {
		return nil
	}
	cp := *p
	return &cp
}

func cloneReplies(in []models.Reply) []models.Reply {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Reply, len(in))
	copy(out, in)
	return out
}

func cloneComment(c models.Comment) models.Comment {
	c.Replies = cloneReplies(c.Replies)
	return c
}

func cloneComments(in []models.Comment) []models.Comment {
	if len(in) == 0 {
		return nil
	}
	out := make([]models.Comment, len(in))
	for i, c := range in {
		out[i] = cloneComment(c)
	}
	return out
}

func indexPost(posts []models.Post, id string) int {
	for i := range posts {
		if posts[i].ID == id {
			return i
		}
	}
	return -1
}

func indexComment(items []models.Comment, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func indexReply(items []models.Reply, id string) int {
	for i := range items {
		if items[i].ID == id {
			return i
		}
	}
	return -1
}

func insertAt[T any](items []T, idx int, v T) []T {
	if idx < 0 {
		idx = 0
	}
	if idx > len(items) {
		idx = len(items)
	}
	items = append(items, v)
	copy(items[idx+1:], items[idx:])
	items[idx] = v
	return items
}

func removeAt[T any](items []T, idx int) []T {
	out := make([]T, 0, len(items)-1)
	out = append(out, items[:idx]...)
	return append(out, items[idx+1:]...)
}
