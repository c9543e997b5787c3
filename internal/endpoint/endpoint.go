// Package endpoint holds the REST routes of the blog API. Route templates use
// gorilla/mux variable syntax so the reference server can register them as-is.
package endpoint

import (
	"net/url"
	"strings"
)

const (
	Register    = "/users/register"
	Login       = "/users/login"
	UserDetails = "/users/details"

	ListPosts  = "/posts/getPosts"
	MyPosts    = "/posts/myPosts"
	GetPost    = "/posts/getPost/{postId}"
	CreatePost = "/posts/createPost"
	UpdatePost = "/posts/updatePost/{postId}"
	DeletePost = "/posts/deletePost/{postId}"

	AddComment    = "/comments/addComment/{postId}"
	UpdateComment = "/comments/updateComment/{postId}/{commentId}"
	DeleteComment = "/comments/deleteComment/{postId}/{commentId}"
	ReplyComment  = "/comments/replyComment/{postId}/{commentId}"
	UpdateReply   = "/comments/updateReply/{postId}/{commentId}/{replyId}"
	DeleteReply   = "/comments/deleteReply/{postId}/{commentId}/{replyId}"

	PostEvents = "/events/posts/{postId}"

	Metrics = "/metrics"
)

// Path fills the template variables in order of appearance, escaping each value.
func Path(template string, ids ...string) string {
	var b strings.Builder
	rest := template
	for _, id := range ids {
		start := strings.IndexByte(rest, '{')
		if start < 0 {
			break
		}
		end := strings.IndexByte(rest[start:], '}')
		if end < 0 {
			break
		}
		b.WriteString(rest[:start])
		b.WriteString(url.PathEscape(id))
		rest = rest[start+end+1:]
	}
	b.WriteString(rest)
	return b.String()
}
