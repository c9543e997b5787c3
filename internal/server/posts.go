package server

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const (
	defaultListLimit = 10
	maxListLimit     = 100
)

// toPosts resolves authors and top-level comment counts for records.
func (s *Server) toPosts(ctx context.Context, records []models.PostRecord) ([]models.Post, error) {
	posts := make([]models.Post, 0, len(records))
	if len(records) == 0 {
		return posts, nil
	}

	ids := make([]string, len(records))
	authorIDs := make([]string, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		authorIDs[i] = rec.AuthorID
	}
	authors, err := loadersFrom(ctx).identities(ctx, authorIDs)
	if err != nil {
		return nil, err
	}
	counts, err := s.storage.CountComments(ctx, ids)
	if err != nil {
		return nil, err
	}

	for _, rec := range records {
		posts = append(posts, models.Post{
			ID:            rec.ID,
			Title:         rec.Title,
			Content:       rec.Content,
			Author:        authors[rec.AuthorID],
			CreatedAt:     rec.CreatedAt,
			UpdatedAt:     rec.UpdatedAt,
			CommentsCount: counts[rec.ID],
		})
	}
	return posts, nil
}

func (s *Server) toPost(ctx context.Context, rec *models.PostRecord) (*models.Post, error) {
	posts, err := s.toPosts(ctx, []models.PostRecord{*rec})
	if err != nil {
		return nil, err
	}
	return &posts[0], nil
}

// postDetail builds the comment tree: top-level comments newest first, each
// with its replies newest first.
func (s *Server) postDetail(ctx context.Context, rec *models.PostRecord) (*models.PostDetail, error) {
	post, err := s.toPost(ctx, rec)
	if err != nil {
		return nil, err
	}
	records, err := s.storage.ListComments(ctx, rec.ID)
	if err != nil {
		return nil, err
	}

	replies := make(map[string][]models.Reply)
	for _, c := range records {
		if c.ParentID != nil {
			replies[*c.ParentID] = append(replies[*c.ParentID], toReply(c))
		}
	}
	comments := make([]models.Comment, 0, len(records))
	for _, c := range records {
		if c.ParentID == nil {
			comment := toComment(c)
			if r := replies[c.ID]; r != nil {
				comment.Replies = r
			}
			comments = append(comments, comment)
		}
	}
	return &models.PostDetail{Post: *post, Comments: comments}, nil
}

func (s *Server) loadPost(ctx context.Context, id string) (*models.PostRecord, error) {
	rec, err := s.storage.GetPost(ctx, id)
	if err != nil {
		return nil, missing(err, "Post not found")
	}
	return rec, nil
}

func (s *Server) listPosts(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			s.fail(w, r, apperr.ValidationError("limit must be a positive number"))
			return
		}
		limit = min(n, maxListLimit)
	}
	var cursor *string
	if raw := r.URL.Query().Get("cursor"); raw != "" {
		cursor = &raw
	}

	page, err := s.storage.ListPosts(r.Context(), limit, cursor)
	if err != nil {
		if cursor != nil {
			err = apperr.ValidationError("Invalid cursor")
		}
		s.fail(w, r, err)
		return
	}
	posts, err := s.toPosts(r.Context(), page.Posts)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, models.PostList{
		Posts:      posts,
		TotalCount: page.TotalCount,
		NextCursor: page.NextCursor,
	})
}

func (s *Server) myPosts(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	records, err := s.storage.ListPostsByAuthor(r.Context(), user.ID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	posts, err := s.toPosts(r.Context(), records)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string][]models.Post{"posts": posts})
}

func (s *Server) getPost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadPost(r.Context(), mux.Vars(r)["postId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	detail, err := s.postDetail(r.Context(), rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.PostDetail{"post": detail})
}

func (s *Server) createPost(w http.ResponseWriter, r *http.Request) {
	var in models.PostInput
	if err := decode(r, &in); err != nil {
		s.fail(w, r, err)
		return
	}
	in.Title = strings.TrimSpace(in.Title)
	in.Content = strings.TrimSpace(in.Content)
	if err := validation.Check(in, nil); err != nil {
		s.fail(w, r, err)
		return
	}

	now := s.now().UTC()
	rec := &models.PostRecord{
		ID:        uuid.New().String(),
		Title:     in.Title,
		Content:   in.Content,
		AuthorID:  currentUser(r.Context()).ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreatePost(r.Context(), rec); err != nil {
		s.fail(w, r, err)
		return
	}
	post, err := s.toPost(r.Context(), rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.log.Info("Post created", "post_id", rec.ID, "author_id", rec.AuthorID)
	writeJSON(w, http.StatusCreated, map[string]*models.Post{"post": post})
}

func (s *Server) updatePost(w http.ResponseWriter, r *http.Request) {
	var patch models.PostPatch
	if err := decode(r, &patch); err != nil {
		s.fail(w, r, err)
		return
	}
	if patch.Empty() {
		s.fail(w, r, apperr.ValidationError("Nothing to update"))
		return
	}
	if patch.Title != nil {
		t := strings.TrimSpace(*patch.Title)
		patch.Title = &t
	}
	if patch.Content != nil {
		c := strings.TrimSpace(*patch.Content)
		patch.Content = &c
	}
	if err := validation.Check(patch, nil); err != nil {
		s.fail(w, r, err)
		return
	}

	rec, err := s.loadPost(r.Context(), mux.Vars(r)["postId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if rec.AuthorID != currentUser(r.Context()).ID {
		s.fail(w, r, apperr.ForbiddenError("Only the author can edit this post"))
		return
	}

	if patch.Title != nil {
		rec.Title = *patch.Title
	}
	if patch.Content != nil {
		rec.Content = *patch.Content
	}
	rec.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdatePost(r.Context(), rec); err != nil {
		s.fail(w, r, missing(err, "Post not found"))
		return
	}
	post, err := s.toPost(r.Context(), rec)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]*models.Post{"post": post})
}

func (s *Server) deletePost(w http.ResponseWriter, r *http.Request) {
	rec, err := s.loadPost(r.Context(), mux.Vars(r)["postId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r.Context())
	if !user.IsAdmin() && rec.AuthorID != user.ID {
		s.fail(w, r, apperr.ForbiddenError("Only the author or an admin can delete this post"))
		return
	}
	if err := s.storage.DeletePost(r.Context(), rec.ID); err != nil {
		s.fail(w, r, missing(err, "Post not found"))
		return
	}
	s.log.Info("Post deleted", "post_id", rec.ID, "by", user.ID)
	writeJSON(w, http.StatusOK, messageBody{Message: "Post deleted"})
}
