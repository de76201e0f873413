package bot

import (
	"fmt"

	"github.com/bwmarrin/discordgo"

	"frp-bot/internal/platform/config"
)

// embed 顏色
const (
	colorBlue    = 0x3498db
	colorGreen   = 0x2ecc71
	colorRed     = 0xe74c3c
	colorGold    = 0xf1c40f
	colorBlurple = 0x5865f2
)

// commands 全部斜線命令定義
var commands = []*discordgo.ApplicationCommand{
	{Name: "bind", Description: "綁定您的 TaiwanFRP 帳號"},
	{Name: "unbind", Description: "解綁您的 TaiwanFRP 帳號"},
	{Name: "info", Description: "查看綁定的帳號信息"},
	{Name: "help", Description: "顯示所有可用命令"},
	{Name: "tunnels", Description: "查看您的隧道列表"},
	{
		Name:        "status",
		Description: "檢查特定隧道的狀態",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        "tunnel_name",
				Description: "隧道名稱",
				Required:    true,
			},
		},
	},
	{Name: "nodes", Description: "查看可用的節點"},
	{Name: "monitor", Description: "查看伺服器監控狀態"},
	{Name: "frp_stats", Description: "查看 TaiwanFRP 統計信息"},
	{Name: "service_status", Description: "查看 TaiwanFRP 服務狀態"},
}

// registerCommands 覆寫式註冊全部斜線命令。
// guild_id 為空時註冊全域命令（生效較慢，最長約一小時）。
func (b *Bot) registerCommands() error {
	cfg := config.Get()

	appID := cfg.Discord.AppID
	if appID == "" {
		appID = b.session.State.User.ID
	}

	if _, err := b.session.ApplicationCommandBulkOverwrite(appID, cfg.Discord.GuildID, commands); err != nil {
		return fmt.Errorf("註冊斜線命令失敗: %w", err)
	}
	return nil
}
