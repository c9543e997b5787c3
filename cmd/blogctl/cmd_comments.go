package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	commentsCmd = &cobra.Command{
		Use:   "comments",
		Short: "Manage comments of a post",
	}
	commentsAddCmd = &cobra.Command{
		Use:   "add [post-id] [text...]",
		Short: "Comment on a post",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			c, err := cli.store.Comments.Add(cmd.Context(), args[0], strings.Join(args[1:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Added comment %s\n", c.ID)
			return nil
		},
	}
	commentsEditCmd = &cobra.Command{
		Use:   "edit [post-id] [comment-id] [text...]",
		Short: "Change your comment",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			c, err := cli.store.Comments.Update(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Updated comment %s\n", c.ID)
			return nil
		},
	}
	commentsDeleteCmd = &cobra.Command{
		Use:   "delete [post-id] [comment-id]",
		Short: "Delete a comment with its replies",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := cli.store.Comments.Delete(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Deleted comment %s\n", args[1])
			return nil
		},
	}

	repliesCmd = &cobra.Command{
		Use:   "replies",
		Short: "Answer comments on your posts",
	}
	repliesAddCmd = &cobra.Command{
		Use:   "add [post-id] [comment-id] [text...]",
		Short: "Reply to a comment",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			r, err := cli.store.Comments.Reply(cmd.Context(), args[0], args[1], strings.Join(args[2:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Added reply %s\n", r.ID)
			return nil
		},
	}
	repliesEditCmd = &cobra.Command{
		Use:   "edit [post-id] [comment-id] [reply-id] [text...]",
		Short: "Change your reply",
		Args:  cobra.MinimumNArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			r, err := cli.store.Comments.UpdateReply(cmd.Context(), args[0], args[1], args[2], strings.Join(args[3:], " "))
			if err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Updated reply %s\n", r.ID)
			return nil
		},
	}
	repliesDeleteCmd = &cobra.Command{
		Use:   "delete [post-id] [comment-id] [reply-id]",
		Short: "Delete a reply",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := openThread(cmd.Context(), args[0]); err != nil {
				return err
			}
			if err := cli.store.Comments.DeleteReply(cmd.Context(), args[0], args[1], args[2]); err != nil {
				return err
			}
			fmt.Fprintf(cli.out, "Deleted reply %s\n", args[2])
			return nil
		},
	}
)

func init() {
	commentsCmd.AddCommand(commentsAddCmd, commentsEditCmd, commentsDeleteCmd)
	repliesCmd.AddCommand(repliesAddCmd, repliesEditCmd, repliesDeleteCmd)
}

// openThread signs in and loads the post with its comments, so permission
// checks see the same data the server does.
func openThread(ctx context.Context, postID string) error {
	if _, err := cli.identity(ctx); err != nil {
		return err
	}
	_, err := cli.store.OpenPost(ctx, postID)
	return err
}
