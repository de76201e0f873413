package bot

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"frp-bot/internal/bind"
)

// dmOpener 透過 Discord 私訊頻道實現 bind.Opener
type dmOpener struct {
	session *discordgo.Session
}

// OpenDM 開啟（或取得既有的）用戶私訊頻道。
// 用戶隱私設定禁止私訊時 Discord 會返回錯誤。
func (o *dmOpener) OpenDM(_ context.Context, userID string) (bind.Conversation, error) {
	channel, err := o.session.UserChannelCreate(userID)
	if err != nil {
		return nil, fmt.Errorf("開啟私訊頻道失敗: %w", err)
	}

	return &dmConversation{
		session:   o.session,
		channelID: channel.ID,
		userID:    userID,
	}, nil
}

// dmConversation 單一用戶的私訊對話
type dmConversation struct {
	session   *discordgo.Session
	channelID string
	userID    string
}

func (c *dmConversation) Send(_ context.Context, text string) error {
	_, err := c.session.ChannelMessageSend(c.channelID, text)
	return err
}

// AwaitReply 等待同一用戶在同一頻道的下一則訊息。
// 臨時掛一個 MessageCreate handler，收到或超時後移除。
func (c *dmConversation) AwaitReply(ctx context.Context, timeout time.Duration) (bind.Reply, error) {
	messages := make(chan *discordgo.Message, 1)

	remove := c.session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
		if m.Author == nil || m.Author.ID != c.userID || m.ChannelID != c.channelID {
			return
		}
		select {
		case messages <- m.Message:
		default:
		}
	})
	defer remove()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case msg := <-messages:
		return &dmReply{session: c.session, message: msg}, nil
	case <-timer.C:
		return nil, bind.ErrInputTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// dmReply 用戶的一則私訊回覆
type dmReply struct {
	session *discordgo.Session
	message *discordgo.Message
}

func (r *dmReply) Content() string {
	return r.message.Content
}

// Delete 從頻道刪除該則訊息（密碼步驟用，失敗不致命）
func (r *dmReply) Delete() error {
	return r.session.ChannelMessageDelete(r.message.ChannelID, r.message.ID)
}
