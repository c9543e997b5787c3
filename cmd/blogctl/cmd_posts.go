package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/ButyrinIA/blogsync/internal/models"
	"github.com/ButyrinIA/blogsync/internal/postview"
	"github.com/spf13/cobra"
)

var (
	page          int
	search        string
	trendingLimit int
	title         string
	content       string

	postsCmd = &cobra.Command{
		Use:   "posts",
		Short: "Browse and manage posts",
	}
	postsListCmd = &cobra.Command{
		Use:   "list",
		Short: "List posts, newest first",
		Args:  cobra.NoArgs,
		RunE:  runPostsList,
	}
	postsMineCmd = &cobra.Command{
		Use:   "mine",
		Short: "List your own posts",
		Args:  cobra.NoArgs,
		RunE:  runPostsMine,
	}
	postsTrendingCmd = &cobra.Command{
		Use:   "trending",
		Short: "List the most commented posts",
		Args:  cobra.NoArgs,
		RunE:  runPostsTrending,
	}
	postsShowCmd = &cobra.Command{
		Use:   "show [post-id]",
		Short: "Show a post with its comments",
		Args:  cobra.ExactArgs(1),
		RunE:  runPostsShow,
	}
	postsCreateCmd = &cobra.Command{
		Use:   "create",
		Short: "Publish a new post",
		Args:  cobra.NoArgs,
		RunE:  runPostsCreate,
	}
	postsEditCmd = &cobra.Command{
		Use:   "edit [post-id]",
		Short: "Change the title or content of your post",
		Args:  cobra.ExactArgs(1),
		RunE:  runPostsEdit,
	}
	postsDeleteCmd = &cobra.Command{
		Use:   "delete [post-id]",
		Short: "Delete a post",
		Args:  cobra.ExactArgs(1),
		RunE:  runPostsDelete,
	}
	postsWatchCmd = &cobra.Command{
		Use:   "watch [post-id]",
		Short: "Follow new and deleted comments of a post",
		Args:  cobra.ExactArgs(1),
		RunE:  runPostsWatch,
	}
)

func init() {
	postsListCmd.Flags().IntVar(&page, "page", 1, "page number")
	postsListCmd.Flags().StringVar(&search, "search", "", "filter by title, content or author")
	postsTrendingCmd.Flags().IntVar(&trendingLimit, "limit", 5, "number of posts")
	postsCreateCmd.Flags().StringVar(&title, "title", "", "post title")
	postsCreateCmd.Flags().StringVar(&content, "content", "", "post content")
	postsEditCmd.Flags().StringVar(&title, "title", "", "new title")
	postsEditCmd.Flags().StringVar(&content, "content", "", "new content")

	postsCmd.AddCommand(postsListCmd, postsMineCmd, postsTrendingCmd, postsShowCmd,
		postsCreateCmd, postsEditCmd, postsDeleteCmd, postsWatchCmd)
}

func printPosts(posts []models.Post) {
	w := tabwriter.NewWriter(cli.out, 0, 4, 2, ' ', 0)
	for _, p := range posts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d comments\t%s\n",
			p.ID, p.Title, p.Author.Username, p.CommentsCount, postview.Excerpt(p.Content, 60))
	}
	w.Flush()
}

func runPostsList(cmd *cobra.Command, args []string) error {
	if _, err := cli.store.Posts.FetchAll(cmd.Context()); err != nil {
		return err
	}
	if search != "" {
		printPosts(cli.store.Posts.Search(search))
		return nil
	}
	p := cli.store.Posts.Page(page)
	printPosts(p.Items)
	fmt.Fprintf(cli.out, "Page %d of %d\n", p.Page, p.TotalPages)
	return nil
}

func runPostsMine(cmd *cobra.Command, args []string) error {
	if _, err := cli.identity(cmd.Context()); err != nil {
		return err
	}
	posts, err := cli.store.Posts.FetchMine(cmd.Context())
	if err != nil {
		return err
	}
	printPosts(posts)
	return nil
}

func runPostsTrending(cmd *cobra.Command, args []string) error {
	if _, err := cli.store.Posts.FetchAll(cmd.Context()); err != nil {
		return err
	}
	printPosts(cli.store.Posts.Trending(trendingLimit))
	return nil
}

func printComments(comments []models.Comment) {
	for _, c := range comments {
		fmt.Fprintf(cli.out, "  [%s] %s: %s\n", c.ID, c.AuthorID, c.Text)
		for _, r := range c.Replies {
			fmt.Fprintf(cli.out, "      [%s] %s: %s\n", r.ID, r.AuthorID, r.Text)
		}
	}
}

func runPostsShow(cmd *cobra.Command, args []string) error {
	// права на ответы зависят от текущего пользователя
	_, _ = cli.identity(cmd.Context())
	detail, err := cli.store.OpenPost(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%s\nby %s, %s, %d comments\nimage: %s\n\n%s\n\n",
		detail.Title, detail.Author.Username, detail.CreatedAt.Format(time.RFC1123),
		detail.CommentsCount, postview.PickImage(detail.Post, postview.DefaultImages),
		postview.StripText(detail.Content))
	printComments(cli.store.Comments.Thread(detail.ID))
	return nil
}

func runPostsCreate(cmd *cobra.Command, args []string) error {
	if _, err := cli.identity(cmd.Context()); err != nil {
		return err
	}
	post, err := cli.store.Posts.Create(cmd.Context(), models.PostInput{Title: title, Content: content})
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Created post %s\n", post.ID)
	return nil
}

func runPostsEdit(cmd *cobra.Command, args []string) error {
	if _, err := cli.identity(cmd.Context()); err != nil {
		return err
	}
	var patch models.PostPatch
	if cmd.Flags().Changed("title") {
		patch.Title = &title
	}
	if cmd.Flags().Changed("content") {
		patch.Content = &content
	}
	if _, err := cli.store.OpenPost(cmd.Context(), args[0]); err != nil {
		return err
	}
	post, err := cli.store.Posts.Update(cmd.Context(), args[0], patch)
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Updated post %s: %s\n", post.ID, post.Title)
	return nil
}

func runPostsDelete(cmd *cobra.Command, args []string) error {
	if _, err := cli.identity(cmd.Context()); err != nil {
		return err
	}
	if _, err := cli.store.OpenPost(cmd.Context(), args[0]); err != nil {
		return err
	}
	if err := cli.store.Posts.Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Deleted post %s\n", args[0])
	return nil
}

func runPostsWatch(cmd *cobra.Command, args []string) error {
	_, _ = cli.identity(cmd.Context())
	detail, err := cli.store.OpenPost(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "Watching %q, press Ctrl+C to stop\n", detail.Title)

	err = cli.store.Watch(cmd.Context(), detail.ID, func(ev models.CommentEvent) {
		count := 0
		if post, ok := cli.store.Posts.Lookup(detail.ID); ok {
			count = post.CommentsCount
		}
		switch ev.Type {
		case models.EventCommentAdded:
			text := ""
			if ev.Comment != nil {
				text = ev.Comment.Text
			}
			fmt.Fprintf(cli.out, "+ [%s] %s (%d comments)\n", ev.CommentID, text, count)
		case models.EventCommentDeleted:
			fmt.Fprintf(cli.out, "- [%s] (%d comments)\n", ev.CommentID, count)
		}
	})
	if cmd.Context().Err() != nil {
		return nil
	}
	return err
}
