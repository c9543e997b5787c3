// Package postview derives presentation data from post lists: ordering,
// paging, search, excerpts and cover images.
package postview

import (
	"sort"
	"strings"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
)

type Page struct {
	Items      []models.Post
	Page       int
	TotalPages int
}

// SortByRecency orders posts newest first by creation time, using the update
// time for posts without one. The sort is stable.
func SortByRecency(posts []models.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return recency(posts[i]).After(recency(posts[j]))
	})
}

func recency(p models.Post) time.Time {
	if !p.CreatedAt.IsZero() {
		return p.CreatedAt
	}
	return p.UpdatedAt
}

// Paginate returns page n (1-based) of posts. n is clamped to the available
// pages and there is always at least one page.
func Paginate(posts []models.Post, n, size int) Page {
	if size <= 0 {
		size = 1
	}
	total := (len(posts) + size - 1) / size
	if total < 1 {
		total = 1
	}
	if n < 1 {
		n = 1
	}
	if n > total {
		n = total
	}

	start := (n - 1) * size
	end := min(start+size, len(posts))
	var items []models.Post
	if start < end {
		items = append(items, posts[start:end]...)
	}
	return Page{Items: items, Page: n, TotalPages: total}
}

// Search matches q case-insensitively against title, content and author.
// An empty query returns every post.
func Search(posts []models.Post, q string) []models.Post {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return append([]models.Post(nil), posts...)
	}
	var out []models.Post
	for _, p := range posts {
		fields := []string{p.Title, p.Content, p.Author.Username, p.Author.Email}
		for _, f := range fields {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, p)
				break
			}
		}
	}
	return out
}

// Trending returns up to n posts with the most comments.
func Trending(posts []models.Post, n int) []models.Post {
	if n <= 0 {
		return nil
	}
	out := append([]models.Post(nil), posts...)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CommentsCount > out[j].CommentsCount
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
