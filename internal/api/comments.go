package api

import (
	"context"
	"net/http"

	"github.com/ButyrinIA/blogsync/internal/endpoint"
	"github.com/ButyrinIA/blogsync/internal/models"
)

func (c *Client) AddComment(ctx context.Context, postID, text string) (*models.Comment, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint.Path(endpoint.AddComment, postID), nil, models.TextInput{Text: text})
	if err != nil {
		return nil, err
	}
	var comment models.Comment
	if err := requireField(body, "comment", &comment); err != nil {
		return nil, err
	}
	return &comment, nil
}

func (c *Client) UpdateComment(ctx context.Context, postID, commentID, text string) (*models.Comment, error) {
	body, err := c.do(ctx, http.MethodPatch, endpoint.Path(endpoint.UpdateComment, postID, commentID), nil, models.TextInput{Text: text})
	if err != nil {
		return nil, err
	}
	var comment models.Comment
	ok, err := decodeField(body, "comment", &comment)
	if err != nil || !ok {
		return nil, err
	}
	return &comment, nil
}

func (c *Client) DeleteComment(ctx context.Context, postID, commentID string) error {
	_, err := c.do(ctx, http.MethodDelete, endpoint.Path(endpoint.DeleteComment, postID, commentID), nil, nil)
	return err
}

func (c *Client) AddReply(ctx context.Context, postID, commentID, text string) (*models.Reply, error) {
	body, err := c.do(ctx, http.MethodPost, endpoint.Path(endpoint.ReplyComment, postID, commentID), nil, models.TextInput{Text: text})
	if err != nil {
		return nil, err
	}
	var reply models.Reply
	if err := requireField(body, "reply", &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) UpdateReply(ctx context.Context, postID, commentID, replyID, text string) (*models.Reply, error) {
	body, err := c.do(ctx, http.MethodPatch, endpoint.Path(endpoint.UpdateReply, postID, commentID, replyID), nil, models.TextInput{Text: text})
	if err != nil {
		return nil, err
	}
	var reply models.Reply
	ok, err := decodeField(body, "reply", &reply)
	if err != nil || !ok {
		return nil, err
	}
	return &reply, nil
}

func (c *Client) DeleteReply(ctx context.Context, postID, commentID, replyID string) error {
	_, err := c.do(ctx, http.MethodDelete, endpoint.Path(endpoint.DeleteReply, postID, commentID, replyID), nil, nil)
	return err
}
