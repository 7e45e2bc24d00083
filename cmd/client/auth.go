package client

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"learnhub/internal/session"

	"github.com/spf13/cobra"
)

func newLoginCommand() *cobra.Command {
	var email, password string
	cmd := &cobra.Command{
		Use:   "login",
		Short: "使用邮箱和密码登录",
		Long:  "登录远程课程服务并把令牌保存到本地会话文件。\n未指定 --password 时从标准输入读取一行作为密码。",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			if strings.TrimSpace(email) == "" {
				return errors.New("--email is required")
			}
			if password == "" {
				fmt.Fprint(cmd.ErrOrStderr(), "Password: ")
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("读取密码失败: %w", err)
				}
				password = strings.TrimRight(line, "\r\n")
			}

			payload, err := e.api.Login(cmd.Context(), email, password)
			if err != nil {
				return fmt.Errorf("登录失败: %w", err)
			}
			token, _ := payload["token"].(string)
			if token == "" {
				return errors.New("登录失败: 响应中缺少 token")
			}
			var user session.User
			if raw, ok := payload["user"]; ok {
				if err := decodeInto(raw, &user); err != nil {
					return err
				}
			}
			if user.ID == "" {
				// 部分服务端只返回令牌，用户 ID 取自令牌主体
				if info, err := session.InspectToken(token); err == nil {
					user.ID = info.Subject
				}
				if user.Email == "" {
					user.Email = email
				}
			}
			if err := e.sessions.Login(user, token); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", displayName(user))
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "登录邮箱")
	cmd.Flags().StringVar(&password, "password", "", "登录密码（不建议在命令行中明文传入）")
	return cmd
}

func newLogoutCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "退出登录并删除本地会话",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			if _, ok := e.sessions.Current(); !ok {
				fmt.Fprintln(cmd.OutOrStdout(), "Not logged in")
				return nil
			}
			if err := e.sessions.Logout(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}

func newWhoamiCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "whoami",
		Short: "显示当前登录用户",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			s, ok := e.sessions.Current()
			if !ok {
				fmt.Fprintln(out, "Not logged in")
				return nil
			}
			fmt.Fprintf(out, "User:  %s\n", displayName(s.User))
			fmt.Fprintf(out, "ID:    %s\n", s.User.ID)
			fmt.Fprintf(out, "Role:  %s\n", s.User.Role)
			if info, err := session.InspectToken(s.Token); err == nil && !info.ExpiresAt.IsZero() {
				state := "valid"
				if info.Expired(time.Now()) {
					state = "expired"
				}
				fmt.Fprintf(out, "Token: %s until %s\n", state, info.ExpiresAt.Local().Format(time.RFC3339))
			}
			return nil
		},
	}
}

func displayName(u session.User) string {
	if u.Name != "" && u.Email != "" {
		return fmt.Sprintf("%s <%s>", u.Name, u.Email)
	}
	if u.Email != "" {
		return u.Email
	}
	return u.ID
}
