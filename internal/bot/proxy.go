package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"frp-bot/internal/api"
	"frp-bot/internal/platform/logger"
	"frp-bot/internal/storage/credentials"
)

// requireCredentials 讀取用戶綁定的帳密；未綁定或讀取失敗時已回覆用戶
func (b *Bot) requireCredentials(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID string) (*credentials.Credential, bool) {
	creds, err := b.store.Get(userID)
	if err != nil {
		logger.Error(ctx, fmt.Sprintf("讀取綁定記錄失敗: %v", err), logger.WithUserID(userID))
		b.followup(s, i, "❌ 系統錯誤，已記錄日誌", true)
		return nil, false
	}
	if creds == nil {
		b.followup(s, i, "❌ 您還未綁定帳號，請先執行 `/bind`", true)
		return nil, false
	}
	return creds, true
}

// handleTunnels 查看用戶的隧道列表
func (b *Bot) handleTunnels(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("tunnels"))
	b.audit.LogCommand(ctx, user.ID, "tunnels", "")

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	creds, ok := b.requireCredentials(ctx, s, i, user.ID)
	if !ok {
		return
	}

	apiCtx, cancel := b.apiContext(ctx)
	tunnels, err := b.client.ListTunnels(apiCtx, creds.Username, creds.Password)
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "獲取隧道列表", err, true)
		return
	}

	if len(tunnels) == 0 {
		b.followup(s, i, "📭 您目前沒有任何隧道", true)
		b.audit.LogTunnelCheck(ctx, user.ID, "none", "無隧道")
		return
	}

	// 為每個節點獲取詳細配置（失敗只影響顯示，不中止）
	details := map[string]api.TunnelConfig{}
	seen := map[string]bool{}
	for _, tunnel := range tunnels {
		if tunnel.Node == "" || seen[tunnel.Node] {
			continue
		}
		seen[tunnel.Node] = true

		nodeCtx, cancel := b.apiContext(ctx)
		configs, err := b.client.TunnelConfigs(nodeCtx, creds.Username, creds.Password, tunnel.Node)
		cancel()
		if err != nil {
			logger.Warning(ctx, fmt.Sprintf("獲取節點 %s 的隧道配置失敗: %v", tunnel.Node, err), logger.WithUserID(user.ID))
			continue
		}
		for _, cfg := range configs {
			details[cfg.Name] = cfg
		}
	}

	embed := &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("🌐 您的隧道列表 (%d)", len(tunnels)),
		Color:       colorGreen,
		Description: fmt.Sprintf("帳號: `%s`", creds.Username),
		Footer:      &discordgo.MessageEmbedFooter{Text: "使用 /status <隧道名稱> 查看詳細狀態"},
	}

	for _, tunnel := range tunnels {
		detail := details[tunnel.Name]

		localPort := valueOr(detail.LocalPort, "N/A")
		remotePort := valueOr(detail.RemotePort, "N/A")
		protocol := detail.Protocol
		if protocol == "" {
			protocol = strings.ToUpper(valueOr(detail.Type, "tcp"))
		}

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: valueOr(tunnel.Name, "未知"),
			Value: fmt.Sprintf("**協議**: %s\n**節點**: %s\n**本地**: :%s → **遠端**: :%s",
				protocol, valueOr(tunnel.Node, "未知"), localPort, remotePort),
		})
	}

	b.followupEmbed(s, i, embed, true)
	b.audit.LogTunnelCheck(ctx, user.ID, "list_all", fmt.Sprintf("成功獲取 %d 個隧道", len(tunnels)))
}

// handleStatus 檢查特定隧道的狀態
func (b *Bot) handleStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	tunnelName := ""
	if opts := i.ApplicationCommandData().Options; len(opts) > 0 {
		tunnelName = opts[0].StringValue()
	}

	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("status"), logger.WithTunnel(tunnelName))
	b.audit.LogCommand(ctx, user.ID, "status", tunnelName)

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	creds, ok := b.requireCredentials(ctx, s, i, user.ID)
	if !ok {
		return
	}

	// 先從列表找到對應隧道
	listCtx, cancel := b.apiContext(ctx)
	tunnels, err := b.client.ListTunnels(listCtx, creds.Username, creds.Password)
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "檢查隧道狀態", err, true)
		return
	}

	var tunnel *api.Tunnel
	for idx := range tunnels {
		if tunnels[idx].Name == tunnelName {
			tunnel = &tunnels[idx]
			break
		}
	}
	if tunnel == nil {
		b.followup(s, i, fmt.Sprintf("❌ 找不到隧道 `%s`", tunnelName), true)
		b.audit.LogTunnelCheck(ctx, user.ID, tunnelName, "not_found")
		return
	}

	checkCtx, cancel := b.apiContext(ctx)
	status, err := b.client.CheckTunnel(checkCtx, creds.Username, creds.Password,
		tunnelName, valueOr(tunnel.Protocol, "tcp"), valueOr(tunnel.Node, "unknown"))
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "檢查隧道狀態", err, true)
		return
	}

	statusEmoji := "🔴"
	statusText := "離線 ❌"
	color := colorRed
	if status.Online() {
		statusEmoji = "🟢"
		statusText = "線上 ✅"
		color = colorGreen
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("%s 隧道狀態: %s", statusEmoji, tunnelName),
		Color: color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "狀態", Value: statusText, Inline: true},
			{Name: "協議", Value: valueOr(tunnel.Protocol, "N/A"), Inline: true},
			{Name: "節點", Value: valueOr(tunnel.Node, "N/A"), Inline: true},
		},
	}

	if len(status.Info) > 0 {
		info := string(status.Info)
		if len(info) > 200 {
			info = info[:200]
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "詳細信息",
			Value: fmt.Sprintf("```%s```", info),
		})
	}

	b.followupEmbed(s, i, embed, true)

	result := "offline"
	if status.Online() {
		result = "online"
	}
	b.audit.LogTunnelCheck(ctx, user.ID, tunnelName, result)
}

// handleNodes 查看可用的節點
func (b *Bot) handleNodes(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("nodes"))
	b.audit.LogCommand(ctx, user.ID, "nodes", "")

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	apiCtx, cancel := b.apiContext(ctx)
	nodes, err := b.client.GetNodes(apiCtx)
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "獲取節點列表", err, true)
		return
	}

	if len(nodes) == 0 {
		b.followup(s, i, "📭 暫無可用節點", true)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("🌍 可用節點 (%d)", len(nodes)),
		Color: colorBlue,
	}

	for _, node := range nodes {
		ports := joinPorts(node.AvailablePorts, 0)
		if ports == "" {
			ports = "無可用端口"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  valueOr(node.Name, "未知"),
			Value: fmt.Sprintf("**IP**: `%s`\n**可用端口**: %s", valueOr(node.IP, "N/A"), ports),
		})
	}

	b.followupEmbed(s, i, embed, true)
}

// replyAPIError 遠端呼叫失敗的統一回覆：超時與系統錯誤分開呈現
func (b *Bot) replyAPIError(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate, userID, operation string, err error, ephemeral bool) {
	if errors.Is(err, context.DeadlineExceeded) {
		logger.Warning(ctx, fmt.Sprintf("%s超時", operation), logger.WithUserID(userID))
		b.followup(s, i, fmt.Sprintf("❌ %s超時，請稍後再試", operation), ephemeral)
		return
	}
	logger.Error(ctx, fmt.Sprintf("%s失敗: %v", operation, err), logger.WithUserID(userID))
	b.followup(s, i, fmt.Sprintf("❌ %s失敗，已記錄日誌", operation), ephemeral)
}

// valueOr 空字串時返回預設值
func valueOr(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}

// joinPorts 端口列表轉字串；limit > 0 時只列前 limit 個並附加剩餘數量
func joinPorts(ports []int, limit int) string {
	shown := ports
	if limit > 0 && len(ports) > limit {
		shown = ports[:limit]
	}

	parts := make([]string, len(shown))
	for idx, p := range shown {
		parts[idx] = fmt.Sprintf("%d", p)
	}
	result := strings.Join(parts, ", ")

	if limit > 0 && len(ports) > limit {
		result += fmt.Sprintf(", 等 %d 個端口", len(ports)-limit)
	}
	return result
}
