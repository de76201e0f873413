package bot

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"

	"frp-bot/internal/api"
	"frp-bot/internal/bind"
	"frp-bot/internal/platform/config"
	"frp-bot/internal/platform/logger"
	"frp-bot/internal/security/audit"
	"frp-bot/internal/storage/credentials"
)

// Store 認證記錄存取（bind.Store 的超集，加上解綁）
type Store interface {
	Get(userID string) (*credentials.Credential, error)
	Save(userID, username, password string) error
	Remove(userID string) error
}

// Bot Discord 機器人：註冊斜線命令並分發到各命令處理器
type Bot struct {
	session *discordgo.Session
	store   Store
	client  *api.Client
	flow    *bind.Flow
	audit   *audit.AuditService

	apiTimeout time.Duration
	ready      atomic.Bool
}

// New 創建機器人。session 尚未連線，Start 時才開啟。
func New(token string, store Store, client *api.Client, auditSvc *audit.AuditService, cfg *config.Config) (*Bot, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("創建 Discord session 失敗: %w", err)
	}

	// 私訊流程需要讀取訊息內容
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	b := &Bot{
		session:    session,
		store:      store,
		client:     client,
		audit:      auditSvc,
		apiTimeout: time.Duration(cfg.API.TimeoutSeconds) * time.Second,
	}

	b.flow = bind.New(
		&dmOpener{session: session},
		client,
		store,
		bind.Options{
			InputTimeout: time.Duration(cfg.Bind.InputTimeoutSeconds) * time.Second,
			MaxAttempts:  cfg.Bind.MaxAttempts,
			AuthTimeout:  time.Duration(cfg.Bind.AuthTimeoutSeconds) * time.Second,
		},
	)

	session.AddHandler(b.onReady)
	session.AddHandler(b.onInteraction)

	return b, nil
}

// Start 開啟連線並註冊斜線命令
func (b *Bot) Start(ctx context.Context) error {
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("開啟 Discord 連線失敗: %w", err)
	}

	if err := b.registerCommands(); err != nil {
		b.session.Close()
		return err
	}

	logger.Info(ctx, "機器人已上線", logger.WithDetails(map[string]interface{}{
		"user": b.session.State.User.String(),
	}))
	return nil
}

// Stop 關閉連線
func (b *Bot) Stop() error {
	return b.session.Close()
}

// Ready 機器人是否已連上 gateway（健康檢查用）
func (b *Bot) Ready() bool {
	return b.ready.Load()
}

func (b *Bot) onReady(_ *discordgo.Session, _ *discordgo.Ready) {
	b.ready.Store(true)
}

// onInteraction 斜線命令統一入口
func (b *Bot) onInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}

	ctx := context.Background()
	name := i.ApplicationCommandData().Name

	defer func() {
		if r := recover(); r != nil {
			logger.Critical(ctx, fmt.Sprintf("命令處理 panic: %v", r), logger.WithCommand(name))
		}
	}()

	switch name {
	case "bind":
		b.handleBind(ctx, s, i)
	case "unbind":
		b.handleUnbind(ctx, s, i)
	case "info":
		b.handleInfo(ctx, s, i)
	case "help":
		b.handleHelp(ctx, s, i)
	case "tunnels":
		b.handleTunnels(ctx, s, i)
	case "status":
		b.handleStatus(ctx, s, i)
	case "nodes":
		b.handleNodes(ctx, s, i)
	case "monitor":
		b.handleMonitor(ctx, s, i)
	case "frp_stats":
		b.handleFrpStats(ctx, s, i)
	case "service_status":
		b.handleServiceStatus(ctx, s, i)
	default:
		logger.Warning(ctx, "未知命令", logger.WithCommand(name))
	}
}

// interactionUser 取得發起互動的用戶（伺服器內走 Member，私訊走 User）
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.Member != nil {
		return i.Member.User
	}
	return i.User
}

// deferReply 延遲回應，ephemeral 表示只有發起者可見
func (b *Bot) deferReply(s *discordgo.Session, i *discordgo.InteractionCreate, ephemeral bool) error {
	data := &discordgo.InteractionResponseData{}
	if ephemeral {
		data.Flags = discordgo.MessageFlagsEphemeral
	}
	return s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
		Data: data,
	})
}

// followup 發送後續文字回應
func (b *Bot) followup(s *discordgo.Session, i *discordgo.InteractionCreate, content string, ephemeral bool) {
	params := &discordgo.WebhookParams{Content: content}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
		logger.Warning(context.Background(), fmt.Sprintf("發送回應失敗: %v", err))
	}
}

// followupEmbed 發送後續 embed 回應
func (b *Bot) followupEmbed(s *discordgo.Session, i *discordgo.InteractionCreate, embed *discordgo.MessageEmbed, ephemeral bool) {
	params := &discordgo.WebhookParams{Embeds: []*discordgo.MessageEmbed{embed}}
	if ephemeral {
		params.Flags = discordgo.MessageFlagsEphemeral
	}
	if _, err := s.FollowupMessageCreate(i.Interaction, true, params); err != nil {
		logger.Warning(context.Background(), fmt.Sprintf("發送回應失敗: %v", err))
	}
}

// apiContext 單次遠端呼叫的超時 context
func (b *Bot) apiContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, b.apiTimeout)
}
