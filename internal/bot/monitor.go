package bot

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/bwmarrin/discordgo"

	"frp-bot/internal/api"
	"frp-bot/internal/platform/logger"
)

// handleMonitor 伺服器監控面板（公開回覆）
func (b *Bot) handleMonitor(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("monitor"))
	b.audit.LogCommand(ctx, user.ID, "monitor", "view")

	if err := b.deferReply(s, i, false); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	apiCtx, cancel := b.apiContext(ctx)
	nodes, err := b.client.GetNodes(apiCtx)
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "獲取監控信息", err, false)
		return
	}

	if len(nodes) == 0 {
		b.followup(s, i, "📭 暫無節點信息", false)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🖥️ TaiwanFRP 伺服器監控面板",
		Color:       colorBlue,
		Description: "實時伺服器狀態監控",
		Footer:      &discordgo.MessageEmbedFooter{Text: "最後更新於命令執行時"},
	}

	onlineCount := 0
	totalPorts := 0
	for _, node := range nodes {
		portCount := len(node.AvailablePorts)

		// 有可用端口即判定為在線
		online := portCount > 0
		if online {
			onlineCount++
		}
		totalPorts += portCount

		statusEmoji := "🔴"
		if online {
			statusEmoji = "🟢"
		}
		ports := joinPorts(node.AvailablePorts, 5)
		if ports == "" {
			ports = "無"
		}

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: valueOr(node.Name, "未知"),
			Value: fmt.Sprintf("%s **IP**: `%s`\n**可用端口**: %d\n**端口列表**: %s",
				statusEmoji, valueOr(node.IP, "N/A"), portCount, ports),
		})
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name:  "📊 統計信息",
		Value: fmt.Sprintf("**在線節點**: %d/%d\n**總可用端口**: %d", onlineCount, len(nodes), totalPorts),
	})

	b.followupEmbed(s, i, embed, false)
	b.audit.LogTunnelCheck(ctx, user.ID, "monitor", fmt.Sprintf("查看監控面板 - %d/%d 節點在線", onlineCount, len(nodes)))
}

// handleFrpStats 服務統計摘要
func (b *Bot) handleFrpStats(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("frp_stats"))
	b.audit.LogCommand(ctx, user.ID, "frp_stats", "")

	if err := b.deferReply(s, i, false); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	apiCtx, cancel := b.apiContext(ctx)
	nodes, err := b.client.GetNodes(apiCtx)
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "獲取統計信息", err, false)
		return
	}

	totalNodes := len(nodes)
	onlineNodes := 0
	totalPorts := 0
	for _, node := range nodes {
		if len(node.AvailablePorts) > 0 {
			onlineNodes++
		}
		totalPorts += len(node.AvailablePorts)
	}

	onlineRate := 0.0
	if totalNodes > 0 {
		onlineRate = float64(onlineNodes) / float64(totalNodes) * 100
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📈 TaiwanFRP 服務統計",
		Color:       colorBlurple,
		Description: "全球伺服器統計信息",
		Footer:      &discordgo.MessageEmbedFooter{Text: "數據每次查詢時即時更新"},
		Fields: []*discordgo.MessageEmbedField{
			{Name: "🌍 總節點數", Value: fmt.Sprintf("%d", totalNodes), Inline: true},
			{Name: "🟢 在線節點", Value: fmt.Sprintf("%d", onlineNodes), Inline: true},
			{Name: "📊 在線率", Value: fmt.Sprintf("%.1f%%", onlineRate), Inline: true},
			{Name: "🔌 可用端口", Value: fmt.Sprintf("%d", totalPorts), Inline: true},
			{Name: "🏢 節點詳情", Value: strings.Repeat("─", 20)},
		},
	}

	for _, node := range nodes {
		status := "🔴 離線"
		if len(node.AvailablePorts) > 0 {
			status = "🟢 在線"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:   valueOr(node.Name, "未知"),
			Value:  fmt.Sprintf("%s - 可用端口: %d", status, len(node.AvailablePorts)),
			Inline: true,
		})
	}

	b.followupEmbed(s, i, embed, false)
	b.audit.LogTunnelCheck(ctx, user.ID, "stats", "查看統計信息")
}

// handleServiceStatus 各節點詳細監控（客戶端數、連接數、流量）
func (b *Bot) handleServiceStatus(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("service_status"))
	b.audit.LogCommand(ctx, user.ID, "service_status", "")

	if err := b.deferReply(s, i, false); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	apiCtx, cancel := b.apiContext(ctx)
	report, err := b.client.MonitorStatus(apiCtx)
	cancel()
	if err != nil {
		b.replyAPIError(ctx, s, i, user.ID, "獲取監控數據", err, false)
		return
	}

	if report == nil || len(report.Result) == 0 {
		b.followup(s, i, "❌ 無法獲取監控數據", false)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title:       "🔧 TaiwanFRP 實時監控面板",
		Color:       colorBlue,
		Description: "全球節點運行狀態與流量統計",
		Footer:      &discordgo.MessageEmbedFooter{Text: "數據實時更新 | 來源: redbean0721 監控 API"},
	}

	// 固定節點排序，避免每次查詢欄位順序不同
	names := make([]string, 0, len(report.Result))
	for name := range report.Result {
		names = append(names, name)
	}
	sort.Strings(names)

	var totalClients, totalConns int
	var totalTrafficIn, totalTrafficOut int64
	onlineServers := 0
	totalServers := len(report.Result)

	for _, name := range names {
		metrics := report.Result[name]
		if len(metrics) == 0 {
			continue
		}
		data := metrics[0] // 每個節點只有一條記錄

		online := data.IsOnline != 0
		if online {
			onlineServers++
		}
		totalClients += data.ClientCounts
		totalConns += data.CurConns
		totalTrafficIn += data.TotalTrafficIn
		totalTrafficOut += data.TotalTrafficOut

		statusEmoji := "🔴"
		statusText := "離線"
		if online {
			statusEmoji = "🟢"
			statusText = "在線"
		}

		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name: name,
			Value: fmt.Sprintf("%s **狀態**: %s\n👥 **客戶端**: %d | 📊 **連接**: %d\n🔄 **TCP**: %d | 📡 **UDP**: %d\n📥 **入站**: %s\n📤 **出站**: %s",
				statusEmoji, statusText, data.ClientCounts, data.CurConns, data.TCPCount, data.UDPCount,
				api.FormatTraffic(data.TotalTrafficIn), api.FormatTraffic(data.TotalTrafficOut)),
		})
	}

	embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
		Name: "📊 全局統計",
		Value: fmt.Sprintf("🌍 **在線節點**: %d/%d\n👥 **總客戶端**: %d\n🔗 **活躍連接**: %d\n📥 **總入站流量**: %s\n📤 **總出站流量**: %s",
			onlineServers, totalServers, totalClients, totalConns,
			api.FormatTraffic(totalTrafficIn), api.FormatTraffic(totalTrafficOut)),
	})

	if len(report.Stats.Version) > 0 {
		versions := make([]string, 0, len(report.Stats.Version))
		for v := range report.Stats.Version {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		parts := make([]string, len(versions))
		for idx, v := range versions {
			parts[idx] = fmt.Sprintf("%s: %d", v, report.Stats.Version[v])
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "🔖 版本分佈",
			Value: strings.Join(parts, ", "),
		})
	}

	b.followupEmbed(s, i, embed, false)
	b.audit.LogCommand(ctx, user.ID, "service_status", fmt.Sprintf("查看監控 - %d/%d 節點在線", onlineServers, totalServers))
}
