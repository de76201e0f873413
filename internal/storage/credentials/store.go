package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ErrStorage 認證資料檔案讀寫失敗
var ErrStorage = errors.New("credential storage error")

// Cipher 密碼加解密介面（由 keystore.KeyStore 實現，測試可替換）
type Cipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(token string) (string, error)
}

// Credential 一個 Discord 用戶綁定的 TaiwanFRP 帳號（解密後）
type Credential struct {
	Username string
	Password string
}

// record 檔案中的單筆記錄，密碼為密文
type record struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Store 認證記錄存儲。
// 整份文件為 Discord 用戶 ID 到記錄的 JSON 映射，每次操作完整讀取、
// 修改單筆、完整寫回；不保留記憶體緩存。寫入採用 temp 檔 + rename，
// 避免寫到一半的檔案破壞其他用戶的記錄。
// mu 只序列化同一行程內的寫入者；跨行程競爭仍是已知限制。
type Store struct {
	path   string
	cipher Cipher
	mu     sync.Mutex
}

// New 創建 Store，path 為認證資料檔案完整路徑
func New(path string, cipher Cipher) *Store {
	return &Store{path: path, cipher: cipher}
}

// Initialize 創建資料目錄和空文件（若不存在）。
// 每次行程啟動都可調用；已初始化時是 no-op。
func (s *Store) Initialize() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return fmt.Errorf("%w: 創建資料目錄失敗: %v", ErrStorage, err)
	}

	if _, err := os.Stat(s.path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("%w: %v", ErrStorage, err)
	}

	return s.writeLocked(map[string]record{})
}

// Save 加密密碼並寫入（或覆蓋）用戶的記錄。
// 是否允許覆蓋既有綁定由調用方決定，這裡不做檢查。
func (s *Store) Save(userID, username, password string) error {
	encrypted, err := s.cipher.Encrypt(password)
	if err != nil {
		return fmt.Errorf("加密密碼失敗: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return err
	}

	data[userID] = record{Username: username, Password: encrypted}
	return s.writeLocked(data)
}

// Get 返回用戶的記錄（密碼已解密）；沒有記錄時返回 (nil, nil)。
// 密文無法解密時傳播 keystore 的錯誤（表示密鑰不符或資料損壞）。
func (s *Store) Get(userID string) (*Credential, error) {
	s.mu.Lock()
	data, err := s.loadLocked()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	rec, ok := data[userID]
	if !ok {
		return nil, nil
	}

	password, err := s.cipher.Decrypt(rec.Password)
	if err != nil {
		return nil, fmt.Errorf("解密用戶 %s 的密碼失敗: %w", userID, err)
	}

	return &Credential{Username: rec.Username, Password: password}, nil
}

// Remove 刪除用戶的記錄；記錄不存在時是 no-op，不是錯誤。
func (s *Store) Remove(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.loadLocked()
	if err != nil {
		return err
	}

	if _, ok := data[userID]; !ok {
		return nil
	}

	delete(data, userID)
	return s.writeLocked(data)
}

// loadLocked 讀取整份文件（需持有 mu）
func (s *Store) loadLocked() (map[string]record, error) {
	raw, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return map[string]record{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: 讀取失敗: %v", ErrStorage, err)
	}

	data := map[string]record{}
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("%w: 解析失敗: %v", ErrStorage, err)
	}

	return data, nil
}

// writeLocked 寫回整份文件（需持有 mu）。
// 先寫 temp 檔再 rename，rename 在同一檔案系統上是原子操作。
func (s *Store) writeLocked(data map[string]record) error {
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: 序列化失敗: %v", ErrStorage, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("%w: 創建暫存檔失敗: %v", ErrStorage, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: 寫入失敗: %v", ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: 寫入失敗: %v", ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: 設定權限失敗: %v", ErrStorage, err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: 寫回失敗: %v", ErrStorage, err)
	}

	return nil
}
