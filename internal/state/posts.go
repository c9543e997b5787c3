package state

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/postview"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const DefaultPageSize = 4

// Posts holds the three post views: the full list, the caller's own posts
// and the currently opened post.
type Posts struct {
	api      PostsAPI
	viewer   Viewer
	eng      *engine
	log      *slog.Logger
	pageSize int
	fetches  singleflight.Group

	mu      sync.RWMutex
	all     []models.Post
	mine    []models.Post
	current *models.Post
	loading int
	err     string

	Creating *Pending
	Updating *Pending
	Deleting *Pending
}

func newPosts(api PostsAPI, viewer Viewer, eng *engine, pageSize int) *Posts {
	if viewer == nil {
		viewer = anonymous{}
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Posts{
		api:      api,
		viewer:   viewer,
		eng:      eng,
		log:      eng.log.With("component", "posts"),
		pageSize: pageSize,
		Creating: NewPending(),
		Updating: NewPending(),
		Deleting: NewPending(),
	}
}

func (p *Posts) startLoading() func() {
	p.mu.Lock()
	p.loading++
	p.err = ""
	p.mu.Unlock()
	return func() {
		p.mu.Lock()
		p.loading--
		p.mu.Unlock()
	}
}

func (p *Posts) setErr(err error) {
	p.mu.Lock()
	p.err = err.Error()
	p.mu.Unlock()
}

// FetchAll replaces the full list with the server copy sorted by recency.
// Unconfirmed posts stay on top until their create settles.
func (p *Posts) FetchAll(ctx context.Context) ([]models.Post, error) {
	defer p.startLoading()()

	posts, err := p.api.ListPosts(ctx)
	if err != nil {
		p.setErr(err)
		return nil, err
	}
	postview.SortByRecency(posts)

	p.mu.Lock()
	p.all = withUnconfirmed(p.all, posts)
	out := clonePosts(p.all)
	p.mu.Unlock()

	p.log.Debug("Posts loaded", "count", len(posts))
	return out, nil
}

func (p *Posts) FetchMine(ctx context.Context) ([]models.Post, error) {
	defer p.startLoading()()

	posts, err := p.api.ListMyPosts(ctx)
	if err != nil {
		p.setErr(err)
		return nil, err
	}

	p.mu.Lock()
	p.mine = withUnconfirmed(p.mine, posts)
	out := clonePosts(p.mine)
	p.mu.Unlock()
	return out, nil
}

func withUnconfirmed(local, fetched []models.Post) []models.Post {
	var out []models.Post
	for _, post := range local {
		if models.IsTemporaryID(post.ID) {
			out = append(out, post)
		}
	}
	return append(out, fetched...)
}

// Refresh reloads the full list and the caller's own posts concurrently.
func (p *Posts) Refresh(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		_, err := p.FetchAll(ctx)
		return err
	})
	if p.viewer.Identity() != nil {
		g.Go(func() error {
			_, err := p.FetchMine(ctx)
			return err
		})
	}
	return g.Wait()
}

// FetchOne loads a post with its comments into the current slot. Concurrent
// fetches of the same id share one request.
func (p *Posts) FetchOne(ctx context.Context, id string) (*models.PostDetail, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.ValidationError("Post id is required")
	}
	defer p.startLoading()()

	// общий запрос не должен падать из-за отмены первого вызывающего
	shared := context.WithoutCancel(ctx)
	ch := p.fetches.DoChan(id, func() (any, error) {
		return p.api.GetPost(shared, id)
	})
	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if res.Err != nil {
		p.setErr(res.Err)
		return nil, res.Err
	}
	detail := res.Val.(*models.PostDetail)

	p.mu.Lock()
	p.current = clonePost(&detail.Post)
	p.mu.Unlock()

	return &models.PostDetail{
		Post:     detail.Post,
		Comments: cloneComments(detail.Comments),
	}, nil
}

// Create inserts a placeholder post at the top of the full list and the
// caller's list, then swaps it for the server copy.
func (p *Posts) Create(ctx context.Context, in models.PostInput) (*models.Post, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := checkInput(in, nil); err != nil {
		return nil, err
	}

	tempID := models.NewTempID("post")
	var author models.Identity

	return mutate(ctx, p.eng, mutation[*models.Post]{
		domain:     "posts",
		op:         "create",
		pending:    p.Creating,
		pendingKey: tempID,
		apply: func() (func(), error) {
			me := p.viewer.Identity()
			if me == nil {
				return nil, apperr.Unauthenticated("Sign in to create a post")
			}
			author = *me
			now := p.eng.now()
			placeholder := models.Post{
				ID:        tempID,
				Title:     in.Title,
				Content:   in.Content,
				Author:    author,
				CreatedAt: now,
				UpdatedAt: now,
				Pending:   true,
			}

			p.mu.Lock()
			p.all = insertAt(p.all, 0, placeholder)
			p.mine = insertAt(p.mine, 0, placeholder)
			p.mu.Unlock()

			return func() {
				p.mu.Lock()
				p.all = dropPost(p.all, tempID)
				p.mine = dropPost(p.mine, tempID)
				p.mu.Unlock()
			}, nil
		},
		call: func(ctx context.Context) (*models.Post, error) {
			created, err := p.api.CreatePost(ctx, in)
			if err != nil {
				return nil, err
			}
			if created.Author.ID == "" {
				created.Author = author
			}
			created.Pending = false
			return created, nil
		},
		commit: func(created *models.Post) {
			p.mu.Lock()
			p.all = replacePost(p.all, tempID, *created)
			p.mine = replacePost(p.mine, tempID, *created)
			p.mu.Unlock()
		},
		failed: p.setErr,
	})
}

// Update applies the patch to every view holding the post. A server reply
// without a post body keeps the optimistic values.
func (p *Posts) Update(ctx context.Context, id string, patch models.PostPatch) (*models.Post, error) {
	patch = trimPatch(patch)
	if patch.Empty() {
		return nil, apperr.ValidationError("Nothing to update")
	}
	if err := checkInput(patch, nil); err != nil {
		return nil, err
	}

	_, err := mutate(ctx, p.eng, mutation[*models.Post]{
		domain:     "posts",
		op:         "update",
		lockKey:    "post:" + id,
		pending:    p.Updating,
		pendingKey: id,
		apply: func() (func(), error) {
			p.mu.Lock()
			defer p.mu.Unlock()

			post, ok := p.lookupLocked(id)
			if !ok {
				return nil, apperr.NotFoundError("Post not found")
			}
			me := p.viewer.Identity()
			if me == nil {
				return nil, apperr.Unauthenticated("Sign in to edit posts")
			}
			if !CanEditPost(me, post) {
				return nil, apperr.ForbiddenError("Only the author can edit this post")
			}

			prev := post
			now := p.eng.now()
			p.eachLocked(id, func(v *models.Post) {
				if patch.Title != nil {
					v.Title = *patch.Title
				}
				if patch.Content != nil {
					v.Content = *patch.Content
				}
				v.UpdatedAt = now
			})

			return func() {
				p.mu.Lock()
				p.eachLocked(id, func(v *models.Post) {
					v.Title = prev.Title
					v.Content = prev.Content
					v.UpdatedAt = prev.UpdatedAt
				})
				p.mu.Unlock()
			}, nil
		},
		call: func(ctx context.Context) (*models.Post, error) {
			return p.api.UpdatePost(ctx, id, patch)
		},
		commit: func(updated *models.Post) {
			if updated == nil {
				return
			}
			p.mu.Lock()
			p.eachLocked(id, func(v *models.Post) {
				// счетчик комментариев ведет дерево комментариев
				count := v.CommentsCount
				author := v.Author
				*v = *updated
				v.CommentsCount = count
				if v.Author.ID == "" {
					v.Author = author
				}
				v.Pending = false
			})
			p.mu.Unlock()
		},
		failed: p.setErr,
	})
	if err != nil {
		return nil, err
	}

	post, ok := p.Lookup(id)
	if !ok {
		return nil, apperr.NotFoundError("Post not found")
	}
	return &post, nil
}

// Delete removes the post from every view. Rollback puts it back at the
// same positions and restores the current slot if nothing else took it.
func (p *Posts) Delete(ctx context.Context, id string) error {
	_, err := mutate(ctx, p.eng, mutation[struct{}]{
		domain:     "posts",
		op:         "delete",
		lockKey:    "post:" + id,
		pending:    p.Deleting,
		pendingKey: id,
		apply: func() (func(), error) {
			p.mu.Lock()
			defer p.mu.Unlock()

			post, ok := p.lookupLocked(id)
			if !ok {
				return nil, apperr.NotFoundError("Post not found")
			}
			me := p.viewer.Identity()
			if me == nil {
				return nil, apperr.Unauthenticated("Sign in to delete posts")
			}
			if !CanDeletePost(me, post) {
				return nil, apperr.ForbiddenError("Only the author or an admin can delete this post")
			}

			allIdx := indexPost(p.all, id)
			mineIdx := indexPost(p.mine, id)
			var allPrev, minePrev models.Post
			if allIdx >= 0 {
				allPrev = p.all[allIdx]
				p.all = removeAt(p.all, allIdx)
			}
			if mineIdx >= 0 {
				minePrev = p.mine[mineIdx]
				p.mine = removeAt(p.mine, mineIdx)
			}
			current := p.current
			if current != nil && current.ID == id {
				p.current = nil
			} else {
				current = nil
			}

			return func() {
				p.mu.Lock()
				defer p.mu.Unlock()
				if allIdx >= 0 && indexPost(p.all, id) < 0 {
					p.all = insertAt(p.all, allIdx, allPrev)
				}
				if mineIdx >= 0 && indexPost(p.mine, id) < 0 {
					p.mine = insertAt(p.mine, mineIdx, minePrev)
				}
				if current != nil && p.current == nil {
					p.current = current
				}
			}, nil
		},
		call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, p.api.DeletePost(ctx, id)
		},
		commit: func(struct{}) {},
		failed: p.setErr,
	})
	return err
}

// AdjustCommentsCount shifts the comment counter of the post in every view.
// The counter never goes below zero. The returned func takes back exactly
// what each view received, so a clamped view is left as it was.
func (p *Posts) AdjustCommentsCount(postID string, delta int) func() {
	p.mu.Lock()
	defer p.mu.Unlock()

	var applied [3]int
	p.eachViewLocked(postID, func(slot int, v *models.Post) {
		prev := v.CommentsCount
		v.CommentsCount = max(prev+delta, 0)
		applied[slot] = v.CommentsCount - prev
	})

	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		p.eachViewLocked(postID, func(slot int, v *models.Post) {
			v.CommentsCount = max(v.CommentsCount-applied[slot], 0)
		})
	}
}

// SyncCurrent stores a freshly fetched post as the current one and copies
// its comment counter into the lists.
func (p *Posts) SyncCurrent(post models.Post) {
	post.Pending = false

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || p.current.ID == post.ID {
		p.current = clonePost(&post)
	}
	for _, list := range [][]models.Post{p.all, p.mine} {
		if i := indexPost(list, post.ID); i >= 0 {
			list[i].CommentsCount = post.CommentsCount
		}
	}
}

func (p *Posts) Lookup(postID string) (models.Post, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.lookupLocked(postID)
}

func (p *Posts) lookupLocked(id string) (models.Post, bool) {
	if p.current != nil && p.current.ID == id {
		return *p.current, true
	}
	if i := indexPost(p.all, id); i >= 0 {
		return p.all[i], true
	}
	if i := indexPost(p.mine, id); i >= 0 {
		return p.mine[i], true
	}
	return models.Post{}, false
}

func (p *Posts) eachLocked(id string, fn func(*models.Post)) {
	p.eachViewLocked(id, func(_ int, v *models.Post) { fn(v) })
}

// слоты: 0 общий список, 1 свои посты, 2 открытый пост
func (p *Posts) eachViewLocked(id string, fn func(slot int, v *models.Post)) {
	if i := indexPost(p.all, id); i >= 0 {
		fn(0, &p.all[i])
	}
	if i := indexPost(p.mine, id); i >= 0 {
		fn(1, &p.mine[i])
	}
	if p.current != nil && p.current.ID == id {
		fn(2, p.current)
	}
}

func (p *Posts) All() []models.Post {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clonePosts(p.all)
}

func (p *Posts) Mine() []models.Post {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clonePosts(p.mine)
}

func (p *Posts) Current() *models.Post {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return clonePost(p.current)
}

func (p *Posts) Loading() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.loading > 0
}

func (p *Posts) Err() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.err
}

// Page returns one page of the full list using the configured page size.
func (p *Posts) Page(n int) postview.Page {
	return postview.Paginate(p.All(), n, p.pageSize)
}

func (p *Posts) Search(q string) []models.Post {
	return postview.Search(p.All(), q)
}

func (p *Posts) Trending(n int) []models.Post {
	return postview.Trending(p.All(), n)
}

func dropPost(posts []models.Post, id string) []models.Post {
	if i := indexPost(posts, id); i >= 0 {
		return removeAt(posts, i)
	}
	return posts
}

// replacePost swaps the placeholder for the confirmed post in place. When a
// reload already brought the confirmed post in, the placeholder is dropped
// instead; when the reload dropped the placeholder, the post goes on top.
func replacePost(posts []models.Post, tempID string, post models.Post) []models.Post {
	i := indexPost(posts, tempID)
	if indexPost(posts, post.ID) >= 0 {
		if i >= 0 {
			return removeAt(posts, i)
		}
		return posts
	}
	if i >= 0 {
		posts[i] = post
		return posts
	}
	return insertAt(posts, 0, post)
}
