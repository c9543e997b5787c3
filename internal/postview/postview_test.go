package postview

import (
	"strings"
	"testing"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(posts []models.Post) []string {
	out := make([]string, 0, len(posts))
	for _, p := range posts {
		out = append(out, p.ID)
	}
	return out
}

func TestSortByRecency(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	posts := []models.Post{
		{ID: "old", CreatedAt: base},
		{ID: "new", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "updated-only", UpdatedAt: base.Add(time.Hour)},
		{ID: "old-twin", CreatedAt: base},
	}

	SortByRecency(posts)
	assert.Equal(t, []string{"new", "updated-only", "old", "old-twin"}, ids(posts), "Неверный порядок постов")
}

func TestPaginate(t *testing.T) {
	posts := make([]models.Post, 9)
	for i := range posts {
		posts[i].ID = string(rune('a' + i))
	}

	t.Run("Middle page", func(t *testing.T) {
		p := Paginate(posts, 2, 4)
		assert.Equal(t, []string{"e", "f", "g", "h"}, ids(p.Items))
		assert.Equal(t, 2, p.Page)
		assert.Equal(t, 3, p.TotalPages)
	})

	t.Run("Last page is short", func(t *testing.T) {
		p := Paginate(posts, 3, 4)
		assert.Equal(t, []string{"i"}, ids(p.Items))
	})

	t.Run("Out of range pages are clamped", func(t *testing.T) {
		assert.Equal(t, 1, Paginate(posts, 0, 4).Page)
		assert.Equal(t, 3, Paginate(posts, 42, 4).Page)
	})

	t.Run("Empty list has one page", func(t *testing.T) {
		p := Paginate(nil, 5, 4)
		assert.Empty(t, p.Items)
		assert.Equal(t, 1, p.Page)
		assert.Equal(t, 1, p.TotalPages)
	})
}

func TestSearch(t *testing.T) {
	posts := []models.Post{
		{ID: "1", Title: "Go generics", Author: models.Identity{Username: "alice"}},
		{ID: "2", Title: "Rust", Content: "borrow checker"},
		{ID: "3", Title: "Misc", Author: models.Identity{Email: "BOB@example.com"}},
	}

	assert.Equal(t, []string{"1"}, ids(Search(posts, "GENERICS")))
	assert.Equal(t, []string{"2"}, ids(Search(posts, "  borrow ")))
	assert.Equal(t, []string{"1"}, ids(Search(posts, "alice")))
	assert.Equal(t, []string{"3"}, ids(Search(posts, "bob@")))
	assert.Len(t, Search(posts, ""), 3, "Пустой запрос должен вернуть все посты")
	assert.Empty(t, Search(posts, "python"))
}

func TestTrending(t *testing.T) {
	posts := []models.Post{
		{ID: "a", CommentsCount: 1},
		{ID: "b", CommentsCount: 5},
		{ID: "c", CommentsCount: 5},
		{ID: "d"},
	}

	assert.Equal(t, []string{"b", "c", "a"}, ids(Trending(posts, 3)))
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(posts), "Исходный список не должен меняться")
	assert.Nil(t, Trending(posts, 0))
}

func TestStripText(t *testing.T) {
	in := "# Title\n\nSome **bold** and *italic* with a [link](http://x.y) and `code`.\n" +
		"![pic](http://img/a.png)\n> quote\n- item\n1. first\n---\n" +
		"<p>html <b>tag</b></p><script>alert(1)</script><style>p{}</style>"

	assert.Equal(t, "Title Some bold and italic with a link and . quote item first html tag", StripText(in))
}

func TestExcerpt(t *testing.T) {
	t.Run("Short text is kept", func(t *testing.T) {
		assert.Equal(t, "hello world", Excerpt("<p>hello   world</p>", 0))
	})

	t.Run("Long text is cut", func(t *testing.T) {
		text := strings.Repeat("слово ", 50)
		out := Excerpt(text, 20)
		assert.True(t, strings.HasSuffix(out, "…"), "Ожидалось многоточие")
		assert.LessOrEqual(t, len([]rune(out)), 20)
		assert.False(t, strings.HasSuffix(strings.TrimSuffix(out, "…"), " "), "Пробел перед многоточием")
	})
}

func TestPickImage(t *testing.T) {
	t.Run("Markdown image wins", func(t *testing.T) {
		post := models.Post{Content: `<img src="http://h/b.png"> ![a](http://m/a.png "t")`}
		assert.Equal(t, "http://m/a.png", PickImage(post, nil))
	})

	t.Run("HTML image", func(t *testing.T) {
		post := models.Post{Content: `text <IMG alt='x' src='/img/c.jpg' />`}
		assert.Equal(t, "/img/c.jpg", PickImage(post, nil))
	})

	t.Run("Fallback is stable", func(t *testing.T) {
		post := models.Post{ID: "post-1", Content: "no images"}
		first := PickImage(post, nil)
		require.Contains(t, DefaultImages, first)
		assert.Equal(t, first, PickImage(post, nil), "Запасная картинка должна быть детерминированной")

		// "ab" -> 97*31+98 = 3105, 3105 % 2 = 1
		assert.Equal(t, "two", PickImage(models.Post{Title: "ab"}, []string{"one", "two"}))
	})
}
