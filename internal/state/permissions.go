package state

import "github.com/ButyrinIA/blogsync/internal/models"

// Правила доступа повторяют проверки сервера; сервер остается источником истины.

func CanAddComment(me *models.Identity) bool {
	return me != nil && !me.IsAdmin()
}

func CanEditComment(me *models.Identity, c models.Comment) bool {
	return me != nil && !me.IsAdmin() && c.AuthorID == me.ID
}

func CanDeleteComment(me *models.Identity, c models.Comment) bool {
	return me != nil && (me.IsAdmin() || c.AuthorID == me.ID)
}

func CanReply(me *models.Identity, post models.Post) bool {
	return me != nil && post.Author.ID == me.ID
}

func CanEditReply(me *models.Identity, post models.Post, r models.Reply) bool {
	return CanReply(me, post) && r.AuthorID == me.ID
}

func CanDeleteReply(me *models.Identity, post models.Post, r models.Reply) bool {
	if me == nil {
		return false
	}
	return me.IsAdmin() || CanEditReply(me, post, r)
}

func CanEditPost(me *models.Identity, post models.Post) bool {
	return me != nil && post.Author.ID == me.ID
}

func CanDeletePost(me *models.Identity, post models.Post) bool {
	return me != nil && (me.IsAdmin() || post.Author.ID == me.ID)
}
