package ui

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	qrcode "github.com/skip2/go-qrcode"

	"github.com/palemoky/aircade/internal/protocol"
	"github.com/palemoky/aircade/internal/session"
)

const maxFeedLines = 8

// JoinURL 玩家扫码加入的地址
func JoinURL(webBase, code string) string {
	return strings.TrimRight(webBase, "/") + "/join/" + code
}

// renderQR 终端半块字符二维码
func renderQR(content string) string {
	if content == "" {
		return ""
	}
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return ""
	}
	return qr.ToSmallString(false)
}

// connectionBadge 连接子状态提示
func connectionBadge(st session.State) string {
	switch st.Connection {
	case session.ConnectionConnected:
		return okStyle.Render("● Connected")
	case session.ConnectionReconnecting:
		return noticeStyle.Render("● Reconnecting…")
	case session.ConnectionDisconnected:
		return errorStyle.Render("● Disconnected")
	case session.ConnectionConnecting:
		return noticeStyle.Render("● Connecting…")
	default:
		return mutedStyle.Render("● Offline")
	}
}

// renderRoster 玩家名单
func renderRoster(players []protocol.Player, maxPlayers int) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Players (%d/%d)\n", len(players), maxPlayers))
	if len(players) == 0 {
		sb.WriteString(mutedStyle.Render("Waiting for a player to connect before starting…"))
		return boxStyle.Render(sb.String())
	}
	for i, p := range players {
		mark := okStyle.Render("●")
		if p.ConnectionStatus == protocol.ConnectionDisconnected {
			mark = mutedStyle.Render("○")
		}
		sb.WriteString(fmt.Sprintf("%s %s", mark, truncateName(p.DisplayName, 20)))
		if i < len(players)-1 {
			sb.WriteString("\n")
		}
	}
	return boxStyle.Render(sb.String())
}

// renderFeed 最近的输入记录
func renderFeed(lines []string) string {
	if len(lines) == 0 {
		return mutedStyle.Render("No input yet")
	}
	return strings.Join(lines, "\n")
}

// renderState 游戏状态，键按字典序输出
func renderState(state map[string]any) string {
	if len(state) == 0 {
		return mutedStyle.Render("No state yet")
	}
	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return errorStyle.Render(err.Error())
	}
	return string(data)
}

// renderKeys 底部快捷键说明
func renderKeys(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, helpKeyStyle.Render(pairs[i])+" "+mutedStyle.Render(pairs[i+1]))
	}
	return strings.Join(parts, "  ")
}

func center(width int, s string) string {
	if width <= 0 {
		return s
	}
	return lipgloss.PlaceHorizontal(width, lipgloss.Center, s)
}

// appendFeed 追加一行并保留最近若干行
func appendFeed(feed []string, line string) []string {
	feed = append(feed, line)
	if len(feed) > maxFeedLines {
		feed = feed[len(feed)-maxFeedLines:]
	}
	return feed
}
