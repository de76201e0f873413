package bind

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"frp-bot/internal/platform/logger"
	"frp-bot/internal/storage/credentials"
)

// State 綁定流程狀態
type State int

const (
	StateStart State = iota
	StateCheckExisting
	StateCollectUsername
	StateCollectPassword
	StateValidate
	StateCommit // 終態：成功
	StateAbort  // 終態：失敗
)

// String 狀態名稱（日誌用）
func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateCheckExisting:
		return "check_existing"
	case StateCollectUsername:
		return "collect_username"
	case StateCollectPassword:
		return "collect_password"
	case StateValidate:
		return "validate"
	case StateCommit:
		return "commit"
	case StateAbort:
		return "abort"
	default:
		return "unknown"
	}
}

// Reason 中止原因
type Reason string

const (
	ReasonNone         Reason = ""
	ReasonNoChannel    Reason = "no_channel"
	ReasonAlreadyBound Reason = "already_bound"
	ReasonTimeout      Reason = "timeout"
	ReasonAuthRejected Reason = "auth_rejected"
	ReasonAuthTimeout  Reason = "auth_timeout"
	ReasonError        Reason = "error"
)

// ErrInputTimeout 等待用戶輸入超時（AwaitReply 超時時返回）
var ErrInputTimeout = errors.New("input timeout")

// Reply 用戶在私訊頻道的一則回覆
type Reply interface {
	Content() string
	// Delete 從頻道刪除該則訊息，盡力而為；失敗不影響流程
	Delete() error
}

// Conversation 與單一用戶的私訊對話。
// AwaitReply 只接收同一用戶在同一頻道的下一則訊息，超時返回 ErrInputTimeout。
type Conversation interface {
	Send(ctx context.Context, text string) error
	AwaitReply(ctx context.Context, timeout time.Duration) (Reply, error)
}

// Opener 開啟用戶私訊頻道。用戶隱私設定可能導致失敗。
type Opener interface {
	OpenDM(ctx context.Context, userID string) (Conversation, error)
}

// Authenticator 遠端帳密驗證。
// ok=false 表示遠端明確拒絕；err 只用於網路層失敗（超時、連線錯誤）。
type Authenticator interface {
	Login(ctx context.Context, username, password string) (bool, error)
}

// Store 認證記錄存取（由 credentials.Store 實現，測試可替換）
type Store interface {
	Get(userID string) (*credentials.Credential, error)
	Save(userID, username, password string) error
}

// Options 流程參數
type Options struct {
	InputTimeout time.Duration // 每次等待輸入的超時，預設 60 秒
	MaxAttempts  int           // 每個輸入步驟的總嘗試次數，預設 2
	AuthTimeout  time.Duration // 驗證帳密的超時，預設 10 秒
}

// Result 一次綁定流程的結果
type Result struct {
	State    State  // StateCommit 或 StateAbort
	Reason   Reason // 中止原因（成功時為空）
	Username string // 收集到的帳號（用於審計）
}

// Flow 帳號綁定流程：開啟私訊、收集帳密、遠端驗證、寫入存儲。
// 有限狀態序列，每個等待點都有超時和固定嘗試次數上限，
// 最壞情況下的用戶等待時間是有界的。
type Flow struct {
	opener Opener
	auth   Authenticator
	store  Store
	opts   Options
}

// New 創建綁定流程
func New(opener Opener, auth Authenticator, store Store, opts Options) *Flow {
	if opts.InputTimeout <= 0 {
		opts.InputTimeout = 60 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 2
	}
	if opts.AuthTimeout <= 0 {
		opts.AuthTimeout = 10 * time.Second
	}
	return &Flow{opener: opener, auth: auth, store: store, opts: opts}
}

// Run 執行一次完整的綁定流程。
// 所有失敗路徑都轉成用戶通知加日誌並以 Result 返回，不向上傳播錯誤；
// 中止時不留下任何部分狀態，用戶可隨時重新發起。
func (f *Flow) Run(ctx context.Context, userID string) *Result {
	// START：開啟私訊頻道
	conv, err := f.opener.OpenDM(ctx, userID)
	if err != nil {
		logger.Warning(ctx, "無法開啟私訊頻道", logger.WithUserID(userID), logger.WithAction("bind"))
		return &Result{State: StateAbort, Reason: ReasonNoChannel}
	}

	// CHECK_EXISTING：已綁定時不隱式覆蓋，用戶必須先解綁
	existing, err := f.store.Get(userID)
	if err != nil {
		logger.Error(ctx, fmt.Sprintf("讀取綁定記錄失敗: %v", err), logger.WithUserID(userID))
		f.notify(ctx, conv, "❌ 系統錯誤，請稍後再試")
		return &Result{State: StateAbort, Reason: ReasonError}
	}
	if existing != nil {
		f.notify(ctx, conv, fmt.Sprintf("⚠️ 您已綁定帳號: `%s`\n如需更改，請先執行 `/unbind`", existing.Username))
		return &Result{State: StateAbort, Reason: ReasonAlreadyBound}
	}

	f.notify(ctx, conv, "🔐 開始綁定 TaiwanFRP 帳號...\n*您的密碼將被安全加密存儲*")

	// COLLECT_USERNAME
	username, err := f.collect(ctx, conv, "請輸入您的 TaiwanFRP **帳號**:", false)
	if err != nil {
		return f.abortCollect(ctx, userID, err)
	}

	// COLLECT_PASSWORD：收到後會盡力刪除該則訊息
	password, err := f.collect(ctx, conv, "請輸入您的 TaiwanFRP **密碼**:", true)
	if err != nil {
		return f.abortCollect(ctx, userID, err)
	}

	// VALIDATE：獨立於輸入超時的驗證超時
	f.notify(ctx, conv, "🔍 正在驗證帳號...")

	authCtx, cancel := context.WithTimeout(ctx, f.opts.AuthTimeout)
	ok, err := f.auth.Login(authCtx, username, password)
	cancel()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			logger.Warning(ctx, "帳號驗證超時", logger.WithUserID(userID), logger.WithAction("bind"))
			f.notify(ctx, conv, "❌ API 驗證超時，請檢查網絡連線後重試")
			return &Result{State: StateAbort, Reason: ReasonAuthTimeout, Username: username}
		}
		logger.Error(ctx, fmt.Sprintf("帳號驗證失敗: %v", err), logger.WithUserID(userID))
		f.notify(ctx, conv, "❌ 驗證時發生系統錯誤，請稍後再試")
		return &Result{State: StateAbort, Reason: ReasonError, Username: username}
	}
	if !ok {
		logger.Warning(ctx, "帳號或密碼錯誤", logger.WithUserID(userID), logger.WithAction("bind"))
		f.notify(ctx, conv, "❌ 帳號或密碼錯誤，請檢查後重試")
		return &Result{State: StateAbort, Reason: ReasonAuthRejected, Username: username}
	}

	// COMMIT
	if err := f.store.Save(userID, username, password); err != nil {
		logger.Error(ctx, fmt.Sprintf("保存綁定記錄失敗: %v", err), logger.WithUserID(userID))
		f.notify(ctx, conv, "❌ 系統錯誤，綁定未完成，請稍後再試")
		return &Result{State: StateAbort, Reason: ReasonError, Username: username}
	}

	f.notify(ctx, conv, "✅ 帳號綁定成功！您現在可以使用代理監控命令了。")
	logger.Info(ctx, "帳號綁定成功", logger.WithUserID(userID), logger.WithAction("bind"))
	return &Result{State: StateCommit, Username: username}
}

// collect 等待下一則回覆，帶重試機制。
// hide=true 時收到後盡力刪除該則訊息（密碼步驟），刪除失敗不中止流程。
func (f *Flow) collect(ctx context.Context, conv Conversation, prompt string, hide bool) (string, error) {
	for attempt := 0; attempt < f.opts.MaxAttempts; attempt++ {
		if err := conv.Send(ctx, prompt); err != nil {
			return "", err
		}

		reply, err := conv.AwaitReply(ctx, f.opts.InputTimeout)
		if errors.Is(err, ErrInputTimeout) {
			remaining := f.opts.MaxAttempts - attempt - 1
			if remaining > 0 {
				f.notify(ctx, conv, fmt.Sprintf("⏱️ 超時，請在 %d 秒內回覆。剩餘嘗試次數：%d",
					int(f.opts.InputTimeout.Seconds()), remaining))
				continue
			}
			f.notify(ctx, conv, "❌ 超時次數過多，已取消操作")
			return "", ErrInputTimeout
		}
		if err != nil {
			return "", err
		}

		content := strings.TrimSpace(reply.Content())
		if hide {
			if err := reply.Delete(); err != nil {
				logger.Warning(ctx, fmt.Sprintf("刪除密碼訊息失敗: %v", err))
			}
		}
		return content, nil
	}

	return "", ErrInputTimeout
}

// abortCollect 收集階段失敗的統一收尾
func (f *Flow) abortCollect(ctx context.Context, userID string, err error) *Result {
	if errors.Is(err, ErrInputTimeout) {
		logger.Warning(ctx, "用戶多次超時未回覆", logger.WithUserID(userID), logger.WithAction("bind"))
		return &Result{State: StateAbort, Reason: ReasonTimeout}
	}
	logger.Error(ctx, fmt.Sprintf("收集輸入失敗: %v", err), logger.WithUserID(userID))
	return &Result{State: StateAbort, Reason: ReasonError}
}

// notify 發送用戶通知，發送失敗只記日誌
func (f *Flow) notify(ctx context.Context, conv Conversation, text string) {
	if err := conv.Send(ctx, text); err != nil {
		logger.Warning(ctx, fmt.Sprintf("發送通知失敗: %v", err))
	}
}
