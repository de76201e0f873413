package keystore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/hkdf"
)

// ErrDecryption 解密失敗（密文損壞、密鑰不符或驗證標籤錯誤）
var ErrDecryption = errors.New("decryption failed")

// 密文格式前綴，base64 內容為 nonce || ciphertext
const tokenPrefix = "aes256gcm:"

// 密鑰檔案的原始長度（256 bits）
const keyFileSize = 32

// hkdfInfo 密鑰推導的用途標記
var hkdfInfo = []byte("taiwanfrp credential encryption v1")

// KeyStore 管理唯一的對稱密鑰並提供密碼字串的加解密。
// 密鑰在第一次運行時生成並寫入檔案；遺失該檔案將無法解密已存密碼。
type KeyStore struct {
	keyPath string

	mu   sync.Mutex
	aead cipher.AEAD // EnsureKey 之後可用
}

// New 創建 KeyStore，keyPath 為密鑰檔案完整路徑。
// 必須先調用 EnsureKey 才能加解密。
func New(keyPath string) *KeyStore {
	return &KeyStore{keyPath: keyPath}
}

// EnsureKey 確保密鑰檔案存在並載入。
// 檔案不存在時生成新的 32 bytes 隨機密鑰；已存在時絕不覆寫。
// 可重複調用（冪等）。
func (ks *KeyStore) EnsureKey() error {
	ks.mu.Lock()
	defer ks.mu.Unlock()

	if ks.aead != nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(ks.keyPath), 0o700); err != nil {
		return fmt.Errorf("創建密鑰目錄失敗: %w", err)
	}

	material, err := os.ReadFile(ks.keyPath)
	if errors.Is(err, os.ErrNotExist) {
		material = make([]byte, keyFileSize)
		if _, err := io.ReadFull(rand.Reader, material); err != nil {
			return fmt.Errorf("生成密鑰失敗: %w", err)
		}
		// O_EXCL：兩個行程同時初始化時只有一個能寫入
		f, err := os.OpenFile(ks.keyPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			if errors.Is(err, os.ErrExist) {
				material, err = os.ReadFile(ks.keyPath)
				if err != nil {
					return fmt.Errorf("讀取密鑰檔案失敗: %w", err)
				}
				return ks.deriveLocked(material)
			}
			return fmt.Errorf("寫入密鑰檔案失敗: %w", err)
		}
		if _, err := f.Write(material); err != nil {
			f.Close()
			return fmt.Errorf("寫入密鑰檔案失敗: %w", err)
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("寫入密鑰檔案失敗: %w", err)
		}
	} else if err != nil {
		return fmt.Errorf("讀取密鑰檔案失敗: %w", err)
	}

	if len(material) != keyFileSize {
		return fmt.Errorf("密鑰檔案長度錯誤: 預期 %d bytes，實際 %d bytes", keyFileSize, len(material))
	}

	return ks.deriveLocked(material)
}

// deriveLocked 從檔案材料推導 AES-256 密鑰並建立 AEAD（需持有 mu）
func (ks *KeyStore) deriveLocked(material []byte) error {
	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, material, nil, hkdfInfo), key); err != nil {
		return fmt.Errorf("密鑰推導失敗: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return fmt.Errorf("創建 cipher 失敗: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return fmt.Errorf("創建 GCM 失敗: %w", err)
	}

	ks.aead = aead
	return nil
}

// Encrypt 加密密碼字串，返回可作為文本存儲的密文 token。
// 格式: "aes256gcm:" + base64(nonce || ciphertext)
func (ks *KeyStore) Encrypt(plaintext string) (string, error) {
	aead, err := ks.cipher()
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("生成 nonce 失敗: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return tokenPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密 Encrypt 產生的 token。
// 密文格式錯誤、使用不同密鑰產生或驗證失敗時返回包裝 ErrDecryption 的錯誤，
// 絕不返回損壞的明文。
func (ks *KeyStore) Decrypt(token string) (string, error) {
	aead, err := ks.cipher()
	if err != nil {
		return "", err
	}

	if len(token) < len(tokenPrefix) || token[:len(tokenPrefix)] != tokenPrefix {
		return "", fmt.Errorf("%w: 缺少 %q 前綴", ErrDecryption, tokenPrefix)
	}

	data, err := base64.StdEncoding.DecodeString(token[len(tokenPrefix):])
	if err != nil {
		return "", fmt.Errorf("%w: base64 解碼失敗", ErrDecryption)
	}

	if len(data) < aead.NonceSize() {
		return "", fmt.Errorf("%w: 密文過短", ErrDecryption)
	}

	nonce, ciphertext := data[:aead.NonceSize()], data[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("%w: 驗證失敗", ErrDecryption)
	}

	return string(plaintext), nil
}

// cipher 取得已初始化的 AEAD
func (ks *KeyStore) cipher() (cipher.AEAD, error) {
	ks.mu.Lock()
	defer ks.mu.Unlock()
	if ks.aead == nil {
		return nil, fmt.Errorf("key store not initialized: call EnsureKey first")
	}
	return ks.aead, nil
}
