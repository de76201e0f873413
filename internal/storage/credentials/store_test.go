package credentials

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"frp-bot/internal/security/keystore"
)

func setupTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	dir := t.TempDir()

	ks := keystore.New(filepath.Join(dir, "twfrp.key"))
	require.NoError(t, ks.EnsureKey())

	path := filepath.Join(dir, "users.json")
	store := New(path, ks)
	require.NoError(t, store.Initialize())

	return store, path
}

func TestStore_SaveAndGet(t *testing.T) {
	store, _ := setupTestStore(t)

	err := store.Save("42", "alice", "s3cr3t")
	require.NoError(t, err)

	cred, err := store.Get("42")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)
	assert.Equal(t, "s3cr3t", cred.Password)
}

func TestStore_GetUnknownUser(t *testing.T) {
	store, _ := setupTestStore(t)

	cred, err := store.Get("999")
	require.NoError(t, err)
	assert.Nil(t, cred)
}

func TestStore_Isolation(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.Save("1", "alice", "pw-alice"))
	require.NoError(t, store.Save("2", "bob", "pw-bob"))

	cred1, err := store.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "alice", cred1.Username)
	assert.Equal(t, "pw-alice", cred1.Password)

	cred2, err := store.Get("2")
	require.NoError(t, err)
	assert.Equal(t, "bob", cred2.Username)
	assert.Equal(t, "pw-bob", cred2.Password)

	// 刪除 u1 不影響 u2
	require.NoError(t, store.Remove("1"))

	cred1, err = store.Get("1")
	require.NoError(t, err)
	assert.Nil(t, cred1)

	cred2, err = store.Get("2")
	require.NoError(t, err)
	require.NotNil(t, cred2)
	assert.Equal(t, "bob", cred2.Username)
}

func TestStore_RemoveAbsentIsNoop(t *testing.T) {
	store, _ := setupTestStore(t)

	assert.NoError(t, store.Remove("404"))
}

func TestStore_SaveOverwrites(t *testing.T) {
	store, _ := setupTestStore(t)

	require.NoError(t, store.Save("42", "alice", "old-pass"))
	require.NoError(t, store.Save("42", "alice2", "new-pass"))

	cred, err := store.Get("42")
	require.NoError(t, err)
	assert.Equal(t, "alice2", cred.Username)
	assert.Equal(t, "new-pass", cred.Password)
}

func TestStore_InitializeIdempotent(t *testing.T) {
	store, path := setupTestStore(t)

	require.NoError(t, store.Save("42", "alice", "s3cr3t"))

	// 重複初始化不得清空既有記錄
	for i := 0; i < 3; i++ {
		require.NoError(t, store.Initialize())
	}

	cred, err := store.Get("42")
	require.NoError(t, err)
	require.NotNil(t, cred)
	assert.Equal(t, "alice", cred.Username)

	// 文件必須始終是有效的 JSON 映射
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(strings.TrimSpace(string(raw)), "{"))
}

func TestStore_PasswordEncryptedAtRest(t *testing.T) {
	store, path := setupTestStore(t)

	require.NoError(t, store.Save("42", "alice", "super-secret-password"))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	assert.NotContains(t, string(raw), "super-secret-password")
	assert.Contains(t, string(raw), "aes256gcm:")
	// 帳號名稱以明文存儲
	assert.Contains(t, string(raw), "alice")
}

func TestStore_NoTempFileResidue(t *testing.T) {
	store, path := setupTestStore(t)

	require.NoError(t, store.Save("42", "alice", "s3cr3t"))
	require.NoError(t, store.Remove("42"))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), ".tmp-")
	}
}

func TestStore_DecryptionErrorPropagates(t *testing.T) {
	dir := t.TempDir()

	ks1 := keystore.New(filepath.Join(dir, "key1"))
	require.NoError(t, ks1.EnsureKey())

	path := filepath.Join(dir, "users.json")
	store1 := New(path, ks1)
	require.NoError(t, store1.Initialize())
	require.NoError(t, store1.Save("42", "alice", "s3cr3t"))

	// 同一份文件換一把密鑰讀取（模擬密鑰檔案遺失後重生成）
	ks2 := keystore.New(filepath.Join(dir, "key2"))
	require.NoError(t, ks2.EnsureKey())

	store2 := New(path, ks2)
	_, err := store2.Get("42")
	require.Error(t, err)
	assert.ErrorIs(t, err, keystore.ErrDecryption)
}

func TestStore_CorruptDocument(t *testing.T) {
	store, path := setupTestStore(t)

	require.NoError(t, os.WriteFile(path, []byte("not json{"), 0o600))

	_, err := store.Get("42")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStorage)
}
