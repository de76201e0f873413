package bind

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frp-bot/internal/storage/credentials"
)

// fakeReply 腳本化的用戶回覆
type fakeReply struct {
	content   string
	deleted   bool
	deleteErr error
}

func (r *fakeReply) Content() string { return r.content }
func (r *fakeReply) Delete() error {
	r.deleted = true
	return r.deleteErr
}

// step 一次 AwaitReply 的結果：回覆或超時
type step struct {
	reply *fakeReply
	err   error
}

// fakeConversation 腳本化的私訊對話
type fakeConversation struct {
	sent   []string
	script []step
	awaits int
}

func (c *fakeConversation) Send(_ context.Context, text string) error {
	c.sent = append(c.sent, text)
	return nil
}

func (c *fakeConversation) AwaitReply(_ context.Context, _ time.Duration) (Reply, error) {
	if c.awaits >= len(c.script) {
		return nil, ErrInputTimeout
	}
	s := c.script[c.awaits]
	c.awaits++
	return s.reply, s.err
}

type fakeOpener struct {
	conv *fakeConversation
	err  error
}

func (o *fakeOpener) OpenDM(_ context.Context, _ string) (Conversation, error) {
	if o.err != nil {
		return nil, o.err
	}
	return o.conv, nil
}

type fakeAuth struct {
	ok    bool
	err   error
	calls int
	user  string
	pass  string
}

func (a *fakeAuth) Login(_ context.Context, username, password string) (bool, error) {
	a.calls++
	a.user = username
	a.pass = password
	return a.ok, a.err
}

// memStore 記憶體版認證存儲
type memStore struct {
	records map[string]credentials.Credential
	saves   int
}

func newMemStore() *memStore {
	return &memStore{records: map[string]credentials.Credential{}}
}

func (m *memStore) Get(userID string) (*credentials.Credential, error) {
	rec, ok := m.records[userID]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (m *memStore) Save(userID, username, password string) error {
	m.saves++
	m.records[userID] = credentials.Credential{Username: username, Password: password}
	return nil
}

func fastOpts() Options {
	return Options{InputTimeout: 10 * time.Millisecond, MaxAttempts: 2, AuthTimeout: 10 * time.Millisecond}
}

func TestBindHappyPath(t *testing.T) {
	passwordReply := &fakeReply{content: "s3cr3t"}
	conv := &fakeConversation{script: []step{
		{reply: &fakeReply{content: "alice"}},
		{reply: passwordReply},
	}}
	auth := &fakeAuth{ok: true}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, auth, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateCommit, result.State)
	assert.Equal(t, ReasonNone, result.Reason)
	assert.Equal(t, "alice", result.Username)

	cred, err := store.Get("42")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cr3t", cred.Password)

	// 驗證請求使用收集到的帳密
	assert.Equal(t, 1, auth.calls)
	assert.Equal(t, "alice", auth.user)
	assert.Equal(t, "s3cr3t", auth.pass)

	// 密碼訊息必須被標記刪除
	assert.True(t, passwordReply.deleted)
}

func TestBindRetryExhaustion(t *testing.T) {
	// 帳號步驟連續兩次超時
	conv := &fakeConversation{script: []step{
		{err: ErrInputTimeout},
		{err: ErrInputTimeout},
	}}
	auth := &fakeAuth{ok: true}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, auth, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateAbort, result.State)
	assert.Equal(t, ReasonTimeout, result.Reason)

	// 恰好嘗試了配置的次數，之後不再等待
	assert.Equal(t, 2, conv.awaits)
	// 絕不調用驗證或保存
	assert.Equal(t, 0, auth.calls)
	assert.Equal(t, 0, store.saves)
}

func TestBindRetryThenSuccess(t *testing.T) {
	// 第一次超時，第二次回覆；密碼一次到位
	conv := &fakeConversation{script: []step{
		{err: ErrInputTimeout},
		{reply: &fakeReply{content: "alice"}},
		{reply: &fakeReply{content: "s3cr3t"}},
	}}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, &fakeAuth{ok: true}, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateCommit, result.State)
	assert.Equal(t, 1, store.saves)
}

func TestBindExistingShortCircuits(t *testing.T) {
	conv := &fakeConversation{}
	auth := &fakeAuth{ok: true}
	store := newMemStore()
	store.records["42"] = credentials.Credential{Username: "alice", Password: "s3cr3t"}

	flow := New(&fakeOpener{conv: conv}, auth, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateAbort, result.State)
	assert.Equal(t, ReasonAlreadyBound, result.Reason)

	// 不提示輸入新帳密，不修改既有記錄
	assert.Equal(t, 0, conv.awaits)
	assert.Equal(t, 0, auth.calls)
	assert.Equal(t, 0, store.saves)

	cred, _ := store.Get("42")
	assert.Equal(t, "alice", cred.Username)
}

func TestBindAuthRejected(t *testing.T) {
	conv := &fakeConversation{script: []step{
		{reply: &fakeReply{content: "bob"}},
		{reply: &fakeReply{content: "wrongpass"}},
	}}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, &fakeAuth{ok: false}, store, fastOpts())
	result := flow.Run(context.Background(), "7")

	require.Equal(t, StateAbort, result.State)
	assert.Equal(t, ReasonAuthRejected, result.Reason)
	assert.Equal(t, "bob", result.Username)

	// 拒絕時不得創建記錄
	cred, err := store.Get("7")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestBindAuthTimeout(t *testing.T) {
	conv := &fakeConversation{script: []step{
		{reply: &fakeReply{content: "alice"}},
		{reply: &fakeReply{content: "s3cr3t"}},
	}}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, &fakeAuth{err: context.DeadlineExceeded}, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateAbort, result.State)
	assert.Equal(t, ReasonAuthTimeout, result.Reason)
	assert.Equal(t, 0, store.saves)
}

func TestBindNoChannel(t *testing.T) {
	store := newMemStore()

	flow := New(&fakeOpener{err: errors.New("privacy settings")}, &fakeAuth{ok: true}, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateAbort, result.State)
	assert.Equal(t, ReasonNoChannel, result.Reason)
	assert.Equal(t, 0, store.saves)
}

func TestBindTrimsWhitespace(t *testing.T) {
	conv := &fakeConversation{script: []step{
		{reply: &fakeReply{content: "  alice \n"}},
		{reply: &fakeReply{content: "\ts3cr3t  "}},
	}}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, &fakeAuth{ok: true}, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateCommit, result.State)
	cred, _ := store.Get("42")
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cr3t", cred.Password)
}

func TestBindDeleteFailureNonFatal(t *testing.T) {
	conv := &fakeConversation{script: []step{
		{reply: &fakeReply{content: "alice"}},
		{reply: &fakeReply{content: "s3cr3t", deleteErr: errors.New("missing permissions")}},
	}}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, &fakeAuth{ok: true}, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	// 刪除密碼訊息失敗不得中止綁定
	require.Equal(t, StateCommit, result.State)
	assert.Equal(t, 1, store.saves)
}

func TestBindPasswordTimeoutAfterUsername(t *testing.T) {
	conv := &fakeConversation{script: []step{
		{reply: &fakeReply{content: "alice"}},
		{err: ErrInputTimeout},
		{err: ErrInputTimeout},
	}}
	auth := &fakeAuth{ok: true}
	store := newMemStore()

	flow := New(&fakeOpener{conv: conv}, auth, store, fastOpts())
	result := flow.Run(context.Background(), "42")

	require.Equal(t, StateAbort, result.State)
	assert.Equal(t, ReasonTimeout, result.Reason)
	assert.Equal(t, 0, auth.calls)
	assert.Equal(t, 0, store.saves)
}
