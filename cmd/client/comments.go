package client

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"learnhub/internal/course"

	"github.com/spf13/cobra"
)

func newCommentsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "comments",
		Short: "查看、发表或删除课程评论",
	}
	cmd.AddCommand(newCommentsListCommand(), newCommentsAddCommand(), newCommentsDeleteCommand())
	return cmd
}

func newCommentsListCommand() *cobra.Command {
	var lessonID string
	cmd := &cobra.Command{
		Use:   "list <courseId>",
		Short: "按回复关系列出评论",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			payload, err := e.api.ListComments(cmd.Context(), args[0], lessonID, e.token())
			if err != nil {
				return fmt.Errorf("获取评论失败: %w", err)
			}
			list, err := course.ParseCommentList(payload)
			if err != nil {
				return err
			}
			if len(list) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No comments yet.")
				return nil
			}
			renderComments(cmd.OutOrStdout(), course.CommentTree(list), 0)
			return nil
		},
	}
	cmd.Flags().StringVar(&lessonID, "lesson", "", "只显示指定课时的评论")
	return cmd
}

func newCommentsAddCommand() *cobra.Command {
	var lessonID, parentID, text string
	cmd := &cobra.Command{
		Use:   "add <courseId>",
		Short: "发表评论，--reply-to 回复已有评论",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text = strings.TrimSpace(text)
			if text == "" {
				return errors.New("--text is required")
			}
			e, err := newEnv()
			if err != nil {
				return err
			}
			token := e.token()
			if token == "" {
				return errors.New("please log in to comment")
			}
			payload, err := e.api.PostComment(cmd.Context(), token, args[0], lessonID, parentID, text)
			if err != nil {
				return fmt.Errorf("发表评论失败: %w", err)
			}
			raw, _ := payload["comment"].(map[string]any)
			c, err := course.ParseComment(raw)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Comment posted: %s\n", c.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&lessonID, "lesson", "", "评论所属课时")
	cmd.Flags().StringVar(&parentID, "reply-to", "", "被回复的评论 ID")
	cmd.Flags().StringVar(&text, "text", "", "评论内容")
	return cmd
}

func newCommentsDeleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <commentId>",
		Short: "删除评论及其回复（作者或管理员）",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			token := e.token()
			if token == "" {
				return errors.New("please log in to delete comments")
			}
			payload, err := e.api.DeleteComment(cmd.Context(), args[0], token)
			if err != nil {
				return fmt.Errorf("删除评论失败: %w", err)
			}
			n, _ := payload["deleted"].(float64)
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d comment(s)\n", int(n))
			return nil
		},
	}
}

// renderComments 逐层缩进输出评论树
func renderComments(w io.Writer, list []*course.Comment, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, c := range list {
		when := ""
		if !c.CreatedAt.IsZero() {
			when = " · " + c.CreatedAt.Local().Format("2006-01-02 15:04")
		}
		name := c.Author.Name
		if name == "" {
			name = "anonymous"
		}
		if c.Author.Role == "admin" {
			name += " (admin)"
		}
		fmt.Fprintf(w, "%s[%s] %s%s\n", indent, c.ID, name, when)
		for _, line := range strings.Split(c.Content, "\n") {
			fmt.Fprintf(w, "%s  %s\n", indent, line)
		}
		renderComments(w, c.Replies, depth+1)
	}
}
