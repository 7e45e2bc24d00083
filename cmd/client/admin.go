package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"learnhub/internal/course"
	"learnhub/internal/remote"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newAdminCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "编辑课程、单元与课时（需要管理员账号）",
	}
	cmd.AddCommand(newAdminCourseCommand(), newAdminUnitCommand(), newAdminLessonCommand())
	return cmd
}

// adminCall 使用当前会话令牌调用编辑接口，返回课程时打印课程大纲
func adminCall(cmd *cobra.Command, call func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error)) error {
	e, err := newEnv()
	if err != nil {
		return err
	}
	token := e.token()
	if token == "" {
		return errors.New("please log in with an admin account")
	}
	payload, err := call(cmd.Context(), e.api, token)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if raw, ok := payload["course"].(map[string]any); ok {
		c, err := course.ParseCourse(raw)
		if err != nil {
			return err
		}
		renderOutline(out, c)
		return nil
	}
	if msg, ok := payload["message"].(string); ok {
		fmt.Fprintln(out, msg)
	}
	return nil
}

// renderOutline 输出课程、单元与课时 ID，便于后续编辑命令引用
func renderOutline(w io.Writer, c *course.Course) {
	fmt.Fprintf(w, "%s  %s  (%s)\n", c.ID, c.Title, formatPrice(c.Price))
	for _, u := range c.Units {
		fmt.Fprintf(w, "  [%s] %s\n", u.UnitID, u.Title)
		for _, l := range u.Lessons {
			preview := ""
			if l.IsPreview {
				preview = "  preview"
			}
			fmt.Fprintf(w, "    - %s  %s  (%s)%s\n", l.ID, l.Title, l.Type, preview)
		}
	}
}

// courseFlags 课程字段，只有显式设置的标志才会发送
type courseFlags struct {
	id, title, description, category, level, thumbnail string
	price                                              float64
}

func (f *courseFlags) register(cmd *cobra.Command, withID bool) {
	if withID {
		cmd.Flags().StringVar(&f.id, "id", "", "课程 ID，缺省由标题生成")
	}
	cmd.Flags().StringVar(&f.title, "title", "", "标题")
	cmd.Flags().StringVar(&f.description, "description", "", "简介")
	cmd.Flags().Float64Var(&f.price, "price", 0, "价格，0 为免费")
	cmd.Flags().StringVar(&f.category, "category", "", "分类")
	cmd.Flags().StringVar(&f.level, "level", "", "难度 (beginner, intermediate, advanced)")
	cmd.Flags().StringVar(&f.thumbnail, "thumbnail", "", "封面地址")
}

func (f *courseFlags) body(cmd *cobra.Command) map[string]any {
	body := map[string]any{}
	set := func(name string, v any) {
		if cmd.Flags().Changed(name) {
			body[name] = v
		}
	}
	set("id", f.id)
	set("title", f.title)
	set("description", f.description)
	set("price", f.price)
	set("category", f.category)
	set("level", f.level)
	set("thumbnail", f.thumbnail)
	return body
}

func newAdminCourseCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "course", Short: "新建、修改或删除课程"}

	var create courseFlags
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "新建课程",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			body := create.body(cmd)
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.CreateCourse(ctx, token, body)
			})
		},
	}
	create.register(createCmd, true)
	_ = createCmd.MarkFlagRequired("title")

	var update courseFlags
	updateCmd := &cobra.Command{
		Use:   "update <courseId>",
		Short: "修改课程基本信息",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := update.body(cmd)
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.UpdateCourse(ctx, token, args[0], body)
			})
		},
	}
	update.register(updateCmd, false)

	deleteCmd := &cobra.Command{
		Use:   "delete <courseId>",
		Short: "删除课程",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.DeleteCourse(ctx, token, args[0])
			})
		},
	}

	cmd.AddCommand(createCmd, updateCmd, deleteCmd)
	return cmd
}

type unitFlags struct {
	id, title, description string
	order                  int
}

func (f *unitFlags) register(cmd *cobra.Command, withID bool) {
	if withID {
		cmd.Flags().StringVar(&f.id, "id", "", "单元 ID，缺省自动生成")
	}
	cmd.Flags().StringVar(&f.title, "title", "", "标题")
	cmd.Flags().StringVar(&f.description, "description", "", "简介")
	cmd.Flags().IntVar(&f.order, "order", 0, "排序，缺省排在最后")
}

func (f *unitFlags) body(cmd *cobra.Command) map[string]any {
	body := map[string]any{}
	if cmd.Flags().Changed("id") {
		body["unitId"] = f.id
	}
	if cmd.Flags().Changed("title") {
		body["title"] = f.title
	}
	if cmd.Flags().Changed("description") {
		body["description"] = f.description
	}
	if cmd.Flags().Changed("order") {
		body["order"] = f.order
	}
	return body
}

func newAdminUnitCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "unit", Short: "新增、修改或删除单元"}

	var add unitFlags
	addCmd := &cobra.Command{
		Use:   "add <courseId>",
		Short: "追加单元",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := add.body(cmd)
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.AddUnit(ctx, token, args[0], body)
			})
		},
	}
	add.register(addCmd, true)
	_ = addCmd.MarkFlagRequired("title")

	var update unitFlags
	updateCmd := &cobra.Command{
		Use:   "update <courseId> <unitId>",
		Short: "修改单元",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body := update.body(cmd)
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.UpdateUnit(ctx, token, args[0], args[1], body)
			})
		},
	}
	update.register(updateCmd, false)

	deleteCmd := &cobra.Command{
		Use:   "delete <courseId> <unitId>",
		Short: "删除单元及其课时",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.DeleteUnit(ctx, token, args[0], args[1])
			})
		},
	}

	cmd.AddCommand(addCmd, updateCmd, deleteCmd)
	return cmd
}

type lessonFlags struct {
	id, title, lessonType, contentFile string
	duration                           int
	preview                            bool
}

func (f *lessonFlags) register(cmd *cobra.Command, withID bool) {
	if withID {
		cmd.Flags().StringVar(&f.id, "id", "", "课时 ID，缺省自动生成")
	}
	cmd.Flags().StringVar(&f.title, "title", "", "标题")
	cmd.Flags().StringVar(&f.lessonType, "type", "", "类型 (explanation, examples, quiz, coding, video)")
	cmd.Flags().IntVar(&f.duration, "duration", 0, "预计时长（分钟）")
	cmd.Flags().BoolVar(&f.preview, "preview", false, "是否可试看")
	cmd.Flags().StringVar(&f.contentFile, "content-file", "", "课时内容 YAML/JSON 文件 (explanation/examples/quiz/coding)")
}

func (f *lessonFlags) body(cmd *cobra.Command) (map[string]any, error) {
	body := map[string]any{}
	if cmd.Flags().Changed("id") {
		body["lessonId"] = f.id
	}
	if cmd.Flags().Changed("title") {
		body["title"] = f.title
	}
	if cmd.Flags().Changed("type") {
		body["type"] = f.lessonType
	}
	if cmd.Flags().Changed("duration") {
		body["duration"] = f.duration
	}
	if cmd.Flags().Changed("preview") {
		body["isPreview"] = f.preview
	}
	if f.contentFile != "" {
		content, err := readContentFile(f.contentFile)
		if err != nil {
			return nil, err
		}
		body["content"] = content
	}
	return body, nil
}

// readContentFile 读取课时内容文件，JSON 同样按 YAML 解析
func readContentFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取课时内容失败: %w", err)
	}
	var content map[string]any
	if err := yaml.Unmarshal(data, &content); err != nil {
		return nil, fmt.Errorf("解析课时内容失败 %s: %w", path, err)
	}
	if content == nil {
		content = map[string]any{}
	}
	return content, nil
}

func newAdminLessonCommand() *cobra.Command {
	cmd := &cobra.Command{Use: "lesson", Short: "新增、修改或删除课时"}

	var add lessonFlags
	addCmd := &cobra.Command{
		Use:   "add <courseId> <unitId>",
		Short: "在单元末尾追加课时",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := add.body(cmd)
			if err != nil {
				return err
			}
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.AddLesson(ctx, token, args[0], args[1], body)
			})
		},
	}
	add.register(addCmd, true)
	_ = addCmd.MarkFlagRequired("title")

	var update lessonFlags
	updateCmd := &cobra.Command{
		Use:   "update <courseId> <unitId> <lessonId>",
		Short: "修改课时",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := update.body(cmd)
			if err != nil {
				return err
			}
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.UpdateLesson(ctx, token, args[0], args[1], args[2], body)
			})
		},
	}
	update.register(updateCmd, false)

	deleteCmd := &cobra.Command{
		Use:   "delete <courseId> <unitId> <lessonId>",
		Short: "删除课时",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return adminCall(cmd, func(ctx context.Context, api *remote.Client, token string) (remote.Payload, error) {
				return api.DeleteLesson(ctx, token, args[0], args[1], args[2])
			})
		},
	}

	cmd.AddCommand(addCmd, updateCmd, deleteCmd)
	return cmd
}
