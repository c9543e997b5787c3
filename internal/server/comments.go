package server

import (
	"context"
	"net/http"
	"strings"

	"github.com/ButyrinIA/blogsync/internal/apperr"
	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/validation"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

func toComment(c models.CommentRecord) models.Comment {
	return models.Comment{
		ID:        c.ID,
		PostID:    c.PostID,
		AuthorID:  c.AuthorID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
		Replies:   []models.Reply{},
	}
}

func toReply(c models.CommentRecord) models.Reply {
	r := models.Reply{
		ID:        c.ID,
		AuthorID:  c.AuthorID,
		Text:      c.Text,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
	if c.ParentID != nil {
		r.CommentID = *c.ParentID
	}
	return r
}

func readText(r *http.Request, label string) (string, error) {
	var in models.TextInput
	if err := decode(r, &in); err != nil {
		return "", err
	}
	in.Text = strings.TrimSpace(in.Text)
	if err := validation.Check(in, map[string]string{"Text": label}); err != nil {
		return "", err
	}
	return in.Text, nil
}

// loadComment returns the top-level comment commentID of postID.
func (s *Server) loadComment(ctx context.Context, postID, commentID string) (*models.CommentRecord, error) {
	c, err := s.storage.GetComment(ctx, commentID)
	if err != nil {
		return nil, missing(err, "Comment not found")
	}
	if c.PostID != postID || c.ParentID != nil {
		return nil, apperr.NotFoundError("Comment not found")
	}
	return c, nil
}

// loadReply returns the reply replyID of commentID together with its post.
func (s *Server) loadReply(ctx context.Context, postID, commentID, replyID string) (*models.PostRecord, *models.CommentRecord, error) {
	post, err := s.loadPost(ctx, postID)
	if err != nil {
		return nil, nil, err
	}
	reply, err := s.storage.GetComment(ctx, replyID)
	if err != nil {
		return nil, nil, missing(err, "Reply not found")
	}
	if reply.PostID != postID || reply.ParentID == nil || *reply.ParentID != commentID {
		return nil, nil, apperr.NotFoundError("Reply not found")
	}
	return post, reply, nil
}

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	user := currentUser(r.Context())
	if user.IsAdmin() {
		s.fail(w, r, apperr.ForbiddenError("Admins cannot add comments"))
		return
	}
	text, err := readText(r, "Comment text")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	postID := mux.Vars(r)["postId"]
	if _, err := s.loadPost(r.Context(), postID); err != nil {
		s.fail(w, r, err)
		return
	}

	now := s.now().UTC()
	rec := &models.CommentRecord{
		ID:        uuid.New().String(),
		PostID:    postID,
		AuthorID:  user.ID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreateComment(r.Context(), rec); err != nil {
		s.fail(w, r, missing(err, "Post not found"))
		return
	}

	comment := toComment(*rec)
	s.hub.publish(models.CommentEvent{
		Type:      models.EventCommentAdded,
		PostID:    postID,
		CommentID: comment.ID,
		Comment:   &comment,
	})
	writeJSON(w, http.StatusCreated, map[string]models.Comment{"comment": comment})
}

func (s *Server) updateComment(w http.ResponseWriter, r *http.Request) {
	text, err := readText(r, "Comment text")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	rec, err := s.loadComment(r.Context(), vars["postId"], vars["commentId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r.Context())
	if user.IsAdmin() || rec.AuthorID != user.ID {
		s.fail(w, r, apperr.ForbiddenError("Only the comment author can edit it"))
		return
	}

	rec.Text = text
	rec.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateComment(r.Context(), rec); err != nil {
		s.fail(w, r, missing(err, "Comment not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Comment{"comment": toComment(*rec)})
}

func (s *Server) deleteComment(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	rec, err := s.loadComment(r.Context(), vars["postId"], vars["commentId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r.Context())
	if !user.IsAdmin() && rec.AuthorID != user.ID {
		s.fail(w, r, apperr.ForbiddenError("Only the comment author or an admin can delete it"))
		return
	}
	if err := s.storage.DeleteComment(r.Context(), rec.ID); err != nil {
		s.fail(w, r, missing(err, "Comment not found"))
		return
	}

	comment := toComment(*rec)
	s.hub.publish(models.CommentEvent{
		Type:      models.EventCommentDeleted,
		PostID:    rec.PostID,
		CommentID: rec.ID,
		Comment:   &comment,
	})
	writeJSON(w, http.StatusOK, messageBody{Message: "Comment deleted"})
}

func (s *Server) replyComment(w http.ResponseWriter, r *http.Request) {
	text, err := readText(r, "Reply text")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	post, err := s.loadPost(r.Context(), vars["postId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	parent, err := s.loadComment(r.Context(), post.ID, vars["commentId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r.Context())
	if post.AuthorID != user.ID {
		s.fail(w, r, apperr.ForbiddenError("Only the post author can reply to comments"))
		return
	}

	now := s.now().UTC()
	rec := &models.CommentRecord{
		ID:        uuid.New().String(),
		PostID:    post.ID,
		ParentID:  &parent.ID,
		AuthorID:  user.ID,
		Text:      text,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.storage.CreateComment(r.Context(), rec); err != nil {
		s.fail(w, r, missing(err, "Comment not found"))
		return
	}
	writeJSON(w, http.StatusCreated, map[string]models.Reply{"reply": toReply(*rec)})
}

func (s *Server) updateReply(w http.ResponseWriter, r *http.Request) {
	text, err := readText(r, "Reply text")
	if err != nil {
		s.fail(w, r, err)
		return
	}
	vars := mux.Vars(r)
	post, rec, err := s.loadReply(r.Context(), vars["postId"], vars["commentId"], vars["replyId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r.Context())
	if post.AuthorID != user.ID || rec.AuthorID != user.ID {
		s.fail(w, r, apperr.ForbiddenError("Only the post author can edit their replies"))
		return
	}

	rec.Text = text
	rec.UpdatedAt = s.now().UTC()
	if err := s.storage.UpdateComment(r.Context(), rec); err != nil {
		s.fail(w, r, missing(err, "Reply not found"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]models.Reply{"reply": toReply(*rec)})
}

func (s *Server) deleteReply(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	post, rec, err := s.loadReply(r.Context(), vars["postId"], vars["commentId"], vars["replyId"])
	if err != nil {
		s.fail(w, r, err)
		return
	}
	user := currentUser(r.Context())
	owner := post.AuthorID == user.ID && rec.AuthorID == user.ID
	if !user.IsAdmin() && !owner {
		s.fail(w, r, apperr.ForbiddenError("Only the reply author or an admin can delete it"))
		return
	}
	if err := s.storage.DeleteComment(r.Context(), rec.ID); err != nil {
		s.fail(w, r, missing(err, "Reply not found"))
		return
	}
	writeJSON(w, http.StatusOK, messageBody{Message: "Reply deleted"})
}
