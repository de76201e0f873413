package bot

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"

	"frp-bot/internal/bind"
	"frp-bot/internal/platform/logger"
)

// handleBind 綁定 TaiwanFRP 帳號（流程在私訊進行）
func (b *Bot) handleBind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("bind"))
	b.audit.LogCommand(ctx, user.ID, "bind", "")

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	b.followup(s, i, "✅ 請到私訊完成綁定流程", true)

	// 綁定對話可能持續數分鐘，獨立於事件處理執行
	go func() {
		result := b.flow.Run(ctx, user.ID)

		switch result.State {
		case bind.StateCommit:
			b.audit.LogBindAttempt(ctx, user.ID, result.Username, true, "")
		case bind.StateAbort:
			if result.Reason == bind.ReasonNoChannel {
				b.followup(s, i, "❌ 無法打開私訊，請檢查隱私設定", true)
			}
			b.audit.LogBindAttempt(ctx, user.ID, result.Username, false, string(result.Reason))
		}
	}()
}

// handleUnbind 解綁 TaiwanFRP 帳號
func (b *Bot) handleUnbind(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("unbind"))
	b.audit.LogCommand(ctx, user.ID, "unbind", "")

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	if err := b.store.Remove(user.ID); err != nil {
		logger.Error(ctx, fmt.Sprintf("解綁失敗: %v", err), logger.WithUserID(user.ID))
		b.followup(s, i, "❌ 系統錯誤，解綁未完成，請稍後再試", true)
		return
	}

	b.followup(s, i, "✅ 帳號已解綁", true)
	b.audit.LogUnbind(ctx, user.ID)
}

// handleInfo 查看綁定的帳號信息
func (b *Bot) handleInfo(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("info"))
	b.audit.LogCommand(ctx, user.ID, "info", "")

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	creds, err := b.store.Get(user.ID)
	if err != nil {
		// 解密或讀檔失敗：用戶重試無法解決，回報系統錯誤並記錄
		logger.Error(ctx, fmt.Sprintf("讀取綁定記錄失敗: %v", err), logger.WithUserID(user.ID))
		b.followup(s, i, "❌ 系統錯誤，已記錄日誌", true)
		return
	}
	if creds == nil {
		b.followup(s, i, "❌ 您還未綁定任何帳號，請使用 `/bind` 綁定", true)
		return
	}

	embed := &discordgo.MessageEmbed{
		Title: "帳號信息",
		Color: colorBlue,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "TaiwanFRP 帳號", Value: fmt.Sprintf("`%s`", creds.Username)},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "密碼已安全加密存儲，不會顯示"},
	}
	b.followupEmbed(s, i, embed, true)
}

// handleHelp 顯示所有可用命令
func (b *Bot) handleHelp(ctx context.Context, s *discordgo.Session, i *discordgo.InteractionCreate) {
	user := interactionUser(i)
	logger.Info(ctx, "執行命令", logger.WithUserID(user.ID), logger.WithCommand("help"))
	b.audit.LogCommand(ctx, user.ID, "help", "")

	if err := b.deferReply(s, i, true); err != nil {
		logger.Warning(ctx, fmt.Sprintf("延遲回應失敗: %v", err))
		return
	}

	commandsInfo := []struct {
		name string
		desc string
	}{
		{"**/bind**", "綁定您的 TaiwanFRP 帳號（私訊執行）"},
		{"**/unbind**", "解綁帳號（私訊執行）"},
		{"**/info**", "查看綁定的帳號信息（私訊執行）"},
		{"**/tunnels**", "查看您的所有隧道（私訊執行）"},
		{"**/status <隧道名稱>**", "檢查特定隧道的狀態（私訊執行）"},
		{"**/nodes**", "查看可用的節點列表（私訊執行）"},
		{"**/monitor**", "查看伺服器監控狀態（公開頻道）"},
		{"**/frp_stats**", "查看 TaiwanFRP 統計信息（公開頻道）"},
		{"**/service_status**", "查看 TaiwanFRP 實時監控面板（公開頻道）"},
		{"**/help**", "顯示此幫助信息"},
	}

	embed := &discordgo.MessageEmbed{
		Title:       "📖 TaiwanFRP Bot 命令幫助",
		Color:       colorGold,
		Description: "所有可用命令列表",
		Footer:      &discordgo.MessageEmbedFooter{Text: "💡 提示: 大部分命令需要先綁定帳號"},
	}
	for _, c := range commandsInfo {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{Name: c.name, Value: c.desc})
	}

	b.followupEmbed(s, i, embed, true)
}
