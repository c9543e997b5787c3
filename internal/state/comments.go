package state

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/models"
)

// Comments holds one ordered comment thread per post. Operations on a
// comment and its replies are queued on the comment; counter changes are
// sent to the post views.
type Comments struct {
	api    CommentsAPI
	viewer Viewer
	posts  PostViews
	eng    *engine
	log    *slog.Logger

	mu      sync.RWMutex
	threads map[string]*thread

	Adding           *Pending
	UpdatingComments *Pending
	DeletingComments *Pending
	Replying         *Pending
	UpdatingReplies  *Pending
	DeletingReplies  *Pending
}

type thread struct {
	comments []models.Comment
	err      string
}

func newComments(api CommentsAPI, viewer Viewer, posts PostViews, eng *engine) *Comments {
	if viewer == nil {
		viewer = anonymous{}
	}
	return &Comments{
		api:              api,
		viewer:           viewer,
		posts:            posts,
		eng:              eng,
		log:              eng.log.With("component", "comments"),
		threads:          make(map[string]*thread),
		Adding:           NewPending(),
		UpdatingComments: NewPending(),
		DeletingComments: NewPending(),
		Replying:         NewPending(),
		UpdatingReplies:  NewPending(),
		DeletingReplies:  NewPending(),
	}
}

// Load replaces the thread of a post with comments as returned by the server.
func (c *Comments) Load(postID string, comments []models.Comment) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threads[postID] = &thread{comments: cloneComments(comments)}
}

// Fetch reloads a post and its thread and brings the post views in line
// with the server's counter.
func (c *Comments) Fetch(ctx context.Context, postID string) ([]models.Comment, error) {
	detail, err := c.api.GetPost(ctx, postID)
	if err != nil {
		c.setErr(postID, err)
		return nil, err
	}
	c.Load(postID, detail.Comments)
	if c.posts != nil {
		c.posts.SyncCurrent(detail.Post)
	}
	return cloneComments(detail.Comments), nil
}

func (c *Comments) Thread(postID string) []models.Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.threads[postID]; ok {
		return cloneComments(t.comments)
	}
	return nil
}

func (c *Comments) Loaded(postID string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.threads[postID]
	return ok
}

// Err is the message of the last failed operation on the post's thread.
func (c *Comments) Err(postID string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, ok := c.threads[postID]; ok {
		return t.err
	}
	return ""
}

func (c *Comments) setErr(postID string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threadLocked(postID).err = err.Error()
}

func (c *Comments) clearErr(postID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.threads[postID]; ok {
		t.err = ""
	}
}

func (c *Comments) threadLocked(postID string) *thread {
	t, ok := c.threads[postID]
	if !ok {
		t = &thread{}
		c.threads[postID] = t
	}
	return t
}

func (c *Comments) adjustCount(postID string, delta int) func() {
	if c.posts == nil {
		return func() {}
	}
	return c.posts.AdjustCommentsCount(postID, delta)
}

func (c *Comments) lookupPost(postID string) (models.Post, bool) {
	if c.posts == nil {
		return models.Post{}, false
	}
	return c.posts.Lookup(postID)
}

func (c *Comments) findLocked(postID, commentID string) (*thread, int) {
	t, ok := c.threads[postID]
	if !ok {
		return nil, -1
	}
	return t, indexComment(t.comments, commentID)
}

// Add puts a placeholder comment on top of the thread and bumps the post's
// counter, then swaps the placeholder for the server copy.
func (c *Comments) Add(ctx context.Context, postID, text string) (*models.Comment, error) {
	text, err := checkText("Comment text", text)
	if err != nil {
		return nil, err
	}
	c.clearErr(postID)

	tempID := models.NewTempID("")

	return mutate(ctx, c.eng, mutation[*models.Comment]{
		domain:     "comments",
		op:         "add",
		pending:    c.Adding,
		pendingKey: postID,
		apply: func() (func(), error) {
			me := c.viewer.Identity()
			if me == nil {
				return nil, apperr.Unauthenticated("Sign in to comment")
			}
			if !CanAddComment(me) {
				return nil, apperr.ForbiddenError("Admins cannot add comments")
			}
			now := c.eng.now()
			placeholder := models.Comment{
				ID:        tempID,
				PostID:    postID,
				AuthorID:  me.ID,
				Text:      text,
				CreatedAt: now,
				UpdatedAt: now,
				Pending:   true,
			}

			c.mu.Lock()
			t := c.threadLocked(postID)
			t.comments = insertAt(t.comments, 0, placeholder)
			c.mu.Unlock()
			restoreCount := c.adjustCount(postID, 1)

			return func() {
				c.mu.Lock()
				if t, i := c.findLocked(postID, tempID); i >= 0 {
					t.comments = removeAt(t.comments, i)
				}
				c.mu.Unlock()
				restoreCount()
			}, nil
		},
		call: func(ctx context.Context) (*models.Comment, error) {
			created, err := c.api.AddComment(ctx, postID, text)
			if err != nil {
				return nil, err
			}
			if created.PostID == "" {
				created.PostID = postID
			}
			created.Pending = false
			return created, nil
		},
		commit: func(created *models.Comment) {
			c.mu.Lock()
			defer c.mu.Unlock()
			t := c.threadLocked(postID)
			if i := indexComment(t.comments, tempID); i >= 0 {
				t.comments[i] = cloneComment(*created)
				return
			}
			if indexComment(t.comments, created.ID) < 0 {
				t.comments = insertAt(t.comments, 0, cloneComment(*created))
			}
		},
		failed: func(err error) { c.setErr(postID, err) },
	})
}

// Update changes the text of the caller's own comment.
func (c *Comments) Update(ctx context.Context, postID, commentID, text string) (*models.Comment, error) {
	text, err := checkText("Comment text", text)
	if err != nil {
		return nil, err
	}
	c.clearErr(postID)

	_, err = mutate(ctx, c.eng, mutation[*models.Comment]{
		domain:     "comments",
		op:         "update",
		lockKey:    "comment:" + commentID,
		pending:    c.UpdatingComments,
		pendingKey: commentID,
		apply: func() (func(), error) {
			c.mu.Lock()
			defer c.mu.Unlock()

			t, i := c.findLocked(postID, commentID)
			if i < 0 {
				return nil, apperr.NotFoundError("Comment not found")
			}
			me := c.viewer.Identity()
			if me == nil {
				return nil, apperr.Unauthenticated("Sign in to edit comments")
			}
			if !CanEditComment(me, t.comments[i]) {
				return nil, apperr.ForbiddenError("Only the comment author can edit it")
			}

			prevText, prevUpdated := t.comments[i].Text, t.comments[i].UpdatedAt
			t.comments[i].Text = text
			t.comments[i].UpdatedAt = c.eng.now()

			return func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				if t, i := c.findLocked(postID, commentID); i >= 0 {
					t.comments[i].Text = prevText
					t.comments[i].UpdatedAt = prevUpdated
				}
			}, nil
		},
		call: func(ctx context.Context) (*models.Comment, error) {
			return c.api.UpdateComment(ctx, postID, commentID, text)
		},
		commit: func(updated *models.Comment) {
			if updated == nil {
				return
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			if t, i := c.findLocked(postID, commentID); i >= 0 {
				t.comments[i].Text = updated.Text
				if !updated.UpdatedAt.IsZero() {
					t.comments[i].UpdatedAt = updated.UpdatedAt
				}
			}
		},
		failed: func(err error) { c.setErr(postID, err) },
	})
	if err != nil {
		return nil, err
	}
	if cm := c.comment(postID, commentID); cm != nil {
		return cm, nil
	}
	return nil, apperr.NotFoundError("Comment not found")
}

// Delete removes a comment with its replies and lowers the post's counter.
func (c *Comments) Delete(ctx context.Context, postID, commentID string) error {
	c.clearErr(postID)

	_, err := mutate(ctx, c.eng, mutation[struct{}]{
		domain:     "comments",
		op:         "delete",
		lockKey:    "comment:" + commentID,
		pending:    c.DeletingComments,
		pendingKey: commentID,
		apply: func() (func(), error) {
			c.mu.Lock()
			t, i := c.findLocked(postID, commentID)
			if i < 0 {
				c.mu.Unlock()
				return nil, apperr.NotFoundError("Comment not found")
			}
			me := c.viewer.Identity()
			if me == nil {
				c.mu.Unlock()
				return nil, apperr.Unauthenticated("Sign in to delete comments")
			}
			if !CanDeleteComment(me, t.comments[i]) {
				c.mu.Unlock()
				return nil, apperr.ForbiddenError("Only the comment author or an admin can delete it")
			}
			removed := t.comments[i]
			t.comments = removeAt(t.comments, i)
			c.mu.Unlock()
			restoreCount := c.adjustCount(postID, -1)

			idx := i
			return func() {
				c.mu.Lock()
				t := c.threadLocked(postID)
				if indexComment(t.comments, commentID) < 0 {
					t.comments = insertAt(t.comments, idx, removed)
				}
				c.mu.Unlock()
				restoreCount()
			}, nil
		},
		call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.DeleteComment(ctx, postID, commentID)
		},
		commit: func(struct{}) {},
		failed: func(err error) { c.setErr(postID, err) },
	})
	return err
}

// replyTarget checks that the comment is present and returns the post it
// belongs to for the reply permission rules.
func (c *Comments) replyTarget(postID, commentID string) (*thread, int, models.Post, *models.Identity, error) {
	t, i := c.findLocked(postID, commentID)
	if i < 0 {
		return nil, -1, models.Post{}, nil, apperr.NotFoundError("Comment not found")
	}
	post, ok := c.lookupPost(postID)
	if !ok {
		return nil, -1, models.Post{}, nil, apperr.NotFoundError("Post not found")
	}
	me := c.viewer.Identity()
	if me == nil {
		return nil, -1, models.Post{}, nil, apperr.Unauthenticated("Sign in to reply")
	}
	return t, i, post, me, nil
}

// Reply adds a placeholder reply on top of the comment's replies. Only the
// post's author may reply.
func (c *Comments) Reply(ctx context.Context, postID, commentID, text string) (*models.Reply, error) {
	text, err := checkText("Reply text", text)
	if err != nil {
		return nil, err
	}
	c.clearErr(postID)

	tempID := models.NewTempID("reply")

	return mutate(ctx, c.eng, mutation[*models.Reply]{
		domain:     "replies",
		op:         "add",
		lockKey:    "comment:" + commentID,
		pending:    c.Replying,
		pendingKey: commentID,
		apply: func() (func(), error) {
			c.mu.Lock()
			defer c.mu.Unlock()

			t, i, post, me, err := c.replyTarget(postID, commentID)
			if err != nil {
				return nil, err
			}
			if !CanReply(me, post) {
				return nil, apperr.ForbiddenError("Only the post author can reply to comments")
			}
			now := c.eng.now()
			placeholder := models.Reply{
				ID:        tempID,
				CommentID: commentID,
				AuthorID:  me.ID,
				Text:      text,
				CreatedAt: now,
				UpdatedAt: now,
				Pending:   true,
			}
			t.comments[i].Replies = insertAt(t.comments[i].Replies, 0, placeholder)

			return func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				if t, i := c.findLocked(postID, commentID); i >= 0 {
					if j := indexReply(t.comments[i].Replies, tempID); j >= 0 {
						t.comments[i].Replies = removeAt(t.comments[i].Replies, j)
					}
				}
			}, nil
		},
		call: func(ctx context.Context) (*models.Reply, error) {
			created, err := c.api.AddReply(ctx, postID, commentID, text)
			if err != nil {
				return nil, err
			}
			if created.CommentID == "" {
				created.CommentID = commentID
			}
			created.Pending = false
			return created, nil
		},
		commit: func(created *models.Reply) {
			c.mu.Lock()
			defer c.mu.Unlock()
			t, i := c.findLocked(postID, commentID)
			if i < 0 {
				return
			}
			replies := t.comments[i].Replies
			if j := indexReply(replies, tempID); j >= 0 {
				replies[j] = *created
				return
			}
			if indexReply(replies, created.ID) < 0 {
				t.comments[i].Replies = insertAt(replies, 0, *created)
			}
		},
		failed: func(err error) { c.setErr(postID, err) },
	})
}

func (c *Comments) UpdateReply(ctx context.Context, postID, commentID, replyID, text string) (*models.Reply, error) {
	text, err := checkText("Reply text", text)
	if err != nil {
		return nil, err
	}
	c.clearErr(postID)

	_, err = mutate(ctx, c.eng, mutation[*models.Reply]{
		domain:     "replies",
		op:         "update",
		lockKey:    "comment:" + commentID,
		pending:    c.UpdatingReplies,
		pendingKey: replyID,
		apply: func() (func(), error) {
			c.mu.Lock()
			defer c.mu.Unlock()

			t, i, post, me, err := c.replyTarget(postID, commentID)
			if err != nil {
				return nil, err
			}
			replies := t.comments[i].Replies
			j := indexReply(replies, replyID)
			if j < 0 {
				return nil, apperr.NotFoundError("Reply not found")
			}
			if !CanEditReply(me, post, replies[j]) {
				return nil, apperr.ForbiddenError("Only the post author can edit their replies")
			}

			prevText, prevUpdated := replies[j].Text, replies[j].UpdatedAt
			replies[j].Text = text
			replies[j].UpdatedAt = c.eng.now()

			return func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				if r := c.replyLocked(postID, commentID, replyID); r != nil {
					r.Text = prevText
					r.UpdatedAt = prevUpdated
				}
			}, nil
		},
		call: func(ctx context.Context) (*models.Reply, error) {
			return c.api.UpdateReply(ctx, postID, commentID, replyID, text)
		},
		commit: func(updated *models.Reply) {
			if updated == nil {
				return
			}
			c.mu.Lock()
			defer c.mu.Unlock()
			if r := c.replyLocked(postID, commentID, replyID); r != nil {
				r.Text = updated.Text
				if !updated.UpdatedAt.IsZero() {
					r.UpdatedAt = updated.UpdatedAt
				}
			}
		},
		failed: func(err error) { c.setErr(postID, err) },
	})
	if err != nil {
		return nil, err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if r := c.replyLocked(postID, commentID, replyID); r != nil {
		cp := *r
		return &cp, nil
	}
	return nil, apperr.NotFoundError("Reply not found")
}

func (c *Comments) DeleteReply(ctx context.Context, postID, commentID, replyID string) error {
	c.clearErr(postID)

	_, err := mutate(ctx, c.eng, mutation[struct{}]{
		domain:     "replies",
		op:         "delete",
		lockKey:    "comment:" + commentID,
		pending:    c.DeletingReplies,
		pendingKey: replyID,
		apply: func() (func(), error) {
			c.mu.Lock()
			defer c.mu.Unlock()

			t, i, post, me, err := c.replyTarget(postID, commentID)
			if err != nil {
				return nil, err
			}
			replies := t.comments[i].Replies
			j := indexReply(replies, replyID)
			if j < 0 {
				return nil, apperr.NotFoundError("Reply not found")
			}
			if !CanDeleteReply(me, post, replies[j]) {
				return nil, apperr.ForbiddenError("Only the reply author or an admin can delete it")
			}
			removed := replies[j]
			t.comments[i].Replies = removeAt(replies, j)

			return func() {
				c.mu.Lock()
				defer c.mu.Unlock()
				t, i := c.findLocked(postID, commentID)
				if i < 0 {
					return
				}
				if indexReply(t.comments[i].Replies, replyID) < 0 {
					t.comments[i].Replies = insertAt(t.comments[i].Replies, j, removed)
				}
			}, nil
		},
		call: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, c.api.DeleteReply(ctx, postID, commentID, replyID)
		},
		commit: func(struct{}) {},
		failed: func(err error) { c.setErr(postID, err) },
	})
	return err
}

// ApplyEvent merges a live event for a loaded thread. Additions authored by
// the current user are skipped: the mutation that sent them already changed
// the thread. It reports whether the thread changed.
func (c *Comments) ApplyEvent(ev models.CommentEvent) bool {
	if ev.Type == models.EventCommentAdded && ev.Comment != nil {
		if me := c.viewer.Identity(); me != nil && ev.Comment.AuthorID == me.ID {
			return false
		}
	}
	commentID := ev.CommentID
	if commentID == "" && ev.Comment != nil {
		commentID = ev.Comment.ID
	}
	if commentID == "" {
		return false
	}

	c.mu.Lock()
	t, ok := c.threads[ev.PostID]
	if !ok {
		c.mu.Unlock()
		return false
	}
	delta := 0
	switch ev.Type {
	case models.EventCommentAdded:
		if ev.Comment != nil && indexComment(t.comments, commentID) < 0 {
			added := cloneComment(*ev.Comment)
			added.Pending = false
			if added.PostID == "" {
				added.PostID = ev.PostID
			}
			t.comments = insertAt(t.comments, 0, added)
			delta = 1
		}
	case models.EventCommentDeleted:
		if i := indexComment(t.comments, commentID); i >= 0 {
			t.comments = removeAt(t.comments, i)
			delta = -1
		}
	}
	c.mu.Unlock()

	if delta == 0 {
		return false
	}
	_ = c.adjustCount(ev.PostID, delta)
	c.log.Debug("Comment event applied", "type", ev.Type, "post_id", ev.PostID, "comment_id", commentID)
	return true
}

func (c *Comments) comment(postID, commentID string) *models.Comment {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if t, i := c.findLocked(postID, commentID); i >= 0 {
		cp := cloneComment(t.comments[i])
		return &cp
	}
	return nil
}

func (c *Comments) replyLocked(postID, commentID, replyID string) *models.Reply {
	t, i := c.findLocked(postID, commentID)
	if i < 0 {
		return nil
	}
	if j := indexReply(t.comments[i].Replies, replyID); j >= 0 {
		return &t.comments[i].Replies[j]
	}
	return nil
}
