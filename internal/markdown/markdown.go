// Package markdown renders the fixed response layouts the tool returns:
// success, failure and cooldown bodies. This is template-string
// composition, so it stays on stdlib strings.Builder/fmt rather than
// pulling in a templating engine for three fixed, non-looping layouts.
package markdown

import (
	"fmt"
	"strings"

	"github.com/wangwingzero/huge-ai-search/internal/searcher"
)

// SuccessInput carries everything the success template needs.
type SuccessInput struct {
	FollowUp  bool
	Query     string // empty when image-only input
	Answer    string
	Sources   []searcher.Source
	SessionID string
	LogPath   string
	LogDir    string
	RetentionDays int
}

const maxSourcesShown = 5
const maxSourcesCounted = 10

// Success renders the success layout.
func Success(in SuccessInput) string {
	var b strings.Builder

	if in.FollowUp {
		b.WriteString("## AI 追问结果\n")
	} else {
		b.WriteString("## AI 搜索结果\n")
	}

	query := in.Query
	if strings.TrimSpace(query) == "" {
		query = "(仅图片输入)"
	}
	fmt.Fprintf(&b, "**查询**: %s\n\n", query)

	b.WriteString("### AI 回答\n\n")
	b.WriteString(in.Answer)
	b.WriteString("\n\n")

	if len(in.Sources) > 0 {
		k := len(in.Sources)
		if k > maxSourcesCounted {
			k = maxSourcesCounted
		}
		fmt.Fprintf(&b, "### 来源 (%d 个)\n\n", k)
		shown := len(in.Sources)
		if shown > maxSourcesShown {
			shown = maxSourcesShown
		}
		for i := 0; i < shown; i++ {
			s := in.Sources[i]
			fmt.Fprintf(&b, "%d. [%s](%s)\n", i+1, s.Title, s.URL)
		}
		b.WriteString("\n")
	}

	b.WriteString("---\n")
	fmt.Fprintf(&b, "🔑 **会话 ID**: `%s`\n", in.SessionID)
	fmt.Fprintf(&b, "🧾 **运行日志**: `%s`\n", in.LogPath)
	fmt.Fprintf(&b, "📁 **日志目录**: `%s`（默认保留 %d 天）\n\n", in.LogDir, in.RetentionDays)
	fmt.Fprintf(&b, "💡 **提示**: 如需深入了解，可以设置 `follow_up: true` 并传入 `session_id: \"%s\"` 进行追问，AI 会在当前对话上下文中继续回答。\n", in.SessionID)

	return b.String()
}

// FailureInput carries everything the failure template needs.
type FailureInput struct {
	ErrorText string
	AuthIssue bool // true selects the setup-command remedy
	SetupCmd  string
}

// Failure renders the failure layout.
func Failure(in FailureInput) string {
	var b strings.Builder
	if in.AuthIssue {
		b.WriteString("## ❌ 搜索失败\n\n")
	} else {
		b.WriteString("## 搜索失败\n\n")
	}
	fmt.Fprintf(&b, "**错误**: %s\n\n", in.ErrorText)
	b.WriteString("### 🔧 解决方案\n\n")
	if in.AuthIssue {
		fmt.Fprintf(&b, "请先完成登录设置：\n\n```\n%s\n```\n", in.SetupCmd)
	} else {
		b.WriteString("这通常是网络或临时故障，请稍后重试；如果持续出现，请检查网络连接。\n")
	}
	return b.String()
}

// Cooldown renders the cooldown layout.
func Cooldown(remainingMinutes, remainingSeconds int) string {
	var b strings.Builder
	b.WriteString("## ⏸️ Patchright 浏览器工具暂时不可用\n\n")
	fmt.Fprintf(&b, "检测到登录验证超时，工具暂时进入冷却状态，预计还需 %d 分 %d 秒恢复。\n\n", remainingMinutes, remainingSeconds)
	b.WriteString("在此期间，你可以：\n")
	b.WriteString("- 稍后重试本次查询；\n")
	b.WriteString("- 使用其他搜索工具作为替代；\n")
	b.WriteString("- 如长时间无法恢复，请手动运行登录设置流程。\n")
	return b.String()
}
