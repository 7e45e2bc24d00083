package check

import (
	"fmt"
	"strings"
)

// RenderSummaryCLI 将环境检查结果渲染为适合 CLI 输出的文本。
// 包含开始/结束分隔与缩进的详情。
func RenderSummaryCLI(summary Summary) string {
	var b strings.Builder
	b.WriteString("================ 环境检查开始 ================\n")

	for _, it := range summary.Items {
		if it.OK {
			b.WriteString(fmt.Sprintf("[✅] %s：%s\n", it.Name, it.Message))
		} else {
			b.WriteString(fmt.Sprintf("[❌] %s：%s\n", it.Name, it.Message))
		}
		if strings.TrimSpace(it.Details) != "" {
			b.WriteString(indent(it.Details, "    "))
			if !strings.HasSuffix(it.Details, "\n") {
				b.WriteString("\n")
			}
		}
	}

	b.WriteString("================ 环境检查结束 ================")
	return b.String()
}

// indent 将多行文本缩进，便于在 CLI 中更清晰展示（内部使用）
func indent(s, prefix string) string {
	lines := strings.SplitAfter(s, "\n")
	var b strings.Builder
	for _, line := range lines {
		if line == "" {
			continue
		}
		b.WriteString(prefix)
		b.WriteString(line)
	}
	return b.String()
}
