package keystore

import (
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestStore(t *testing.T) *KeyStore {
	t.Helper()
	ks := New(filepath.Join(t.TempDir(), "twfrp.key"))
	if err := ks.EnsureKey(); err != nil {
		t.Fatal(err)
	}
	return ks
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	ks := newTestStore(t)

	testCases := []struct {
		name      string
		plaintext string
	}{
		{"Simple password", "s3cr3t"},
		{"Unicode", "密碼123！🔐"},
		{"Long text", strings.Repeat("verylongpassword", 64)},
		{"Special chars", "!@#$%^&*()_+-=[]{}|;':\",./<>?"},
		{"Whitespace", "pass word\twith\nspaces"},
		{"Empty", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			token, err := ks.Encrypt(tc.plaintext)
			if err != nil {
				t.Fatalf("Encryption failed: %v", err)
			}

			// 驗證格式
			if !strings.HasPrefix(token, "aes256gcm:") {
				t.Errorf("Invalid token format: missing prefix")
			}

			if token == tc.plaintext {
				t.Errorf("Token should differ from plaintext")
			}

			decrypted, err := ks.Decrypt(token)
			if err != nil {
				t.Fatalf("Decryption failed: %v", err)
			}

			if decrypted != tc.plaintext {
				t.Errorf("Decryption mismatch.\nWant: %s\nGot: %s", tc.plaintext, decrypted)
			}
		})
	}
}

func TestDecryptRejectsTampering(t *testing.T) {
	ks := newTestStore(t)

	token, err := ks.Encrypt("s3cr3t")
	if err != nil {
		t.Fatal(err)
	}

	sealed, err := base64.StdEncoding.DecodeString(token[len("aes256gcm:"):])
	if err != nil {
		t.Fatal(err)
	}

	// 翻轉任何一個 byte 都必須導致解密失敗，絕不能返回看似有效的明文
	for i := range sealed {
		tampered := make([]byte, len(sealed))
		copy(tampered, sealed)
		tampered[i] ^= 0x01

		_, err := ks.Decrypt("aes256gcm:" + base64.StdEncoding.EncodeToString(tampered))
		if err == nil {
			t.Fatalf("Decrypt accepted ciphertext tampered at byte %d", i)
		}
		if !errors.Is(err, ErrDecryption) {
			t.Errorf("Expected ErrDecryption for byte %d, got %v", i, err)
		}
	}
}

func TestDecryptMalformedToken(t *testing.T) {
	ks := newTestStore(t)

	testCases := []struct {
		name  string
		token string
	}{
		{"Empty", ""},
		{"Missing prefix", "bm90LWEtdG9rZW4="},
		{"Wrong prefix", "aes256ctr:bm90LWEtdG9rZW4="},
		{"Invalid base64", "aes256gcm:!!!not-base64!!!"},
		{"Too short", "aes256gcm:" + base64.StdEncoding.EncodeToString([]byte("abc"))},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ks.Decrypt(tc.token)
			if !errors.Is(err, ErrDecryption) {
				t.Errorf("Expected ErrDecryption, got %v", err)
			}
		})
	}
}

func TestDecryptWithDifferentKey(t *testing.T) {
	ks1 := newTestStore(t)
	ks2 := newTestStore(t)

	token, err := ks1.Encrypt("s3cr3t")
	if err != nil {
		t.Fatal(err)
	}

	_, err = ks2.Decrypt(token)
	if !errors.Is(err, ErrDecryption) {
		t.Errorf("Expected ErrDecryption with mismatched key, got %v", err)
	}
}

func TestEnsureKeyIdempotent(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "twfrp.key")

	ks := New(keyPath)
	if err := ks.EnsureKey(); err != nil {
		t.Fatal(err)
	}

	first, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 32 {
		t.Fatalf("Expected 32-byte key file, got %d bytes", len(first))
	}

	// 重複調用不得重新生成密鑰
	for i := 0; i < 3; i++ {
		if err := ks.EnsureKey(); err != nil {
			t.Fatal(err)
		}
	}

	again, err := os.ReadFile(keyPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(first) != string(again) {
		t.Error("EnsureKey regenerated an existing key")
	}
}

func TestKeyPersistsAcrossInstances(t *testing.T) {
	keyPath := filepath.Join(t.TempDir(), "twfrp.key")

	ks1 := New(keyPath)
	if err := ks1.EnsureKey(); err != nil {
		t.Fatal(err)
	}

	token, err := ks1.Encrypt("s3cr3t")
	if err != nil {
		t.Fatal(err)
	}

	// 同一密鑰檔案的新實例（模擬行程重啟）必須能解密
	ks2 := New(keyPath)
	if err := ks2.EnsureKey(); err != nil {
		t.Fatal(err)
	}

	decrypted, err := ks2.Decrypt(token)
	if err != nil {
		t.Fatalf("Decryption after restart failed: %v", err)
	}
	if decrypted != "s3cr3t" {
		t.Errorf("Decryption mismatch: got %s", decrypted)
	}
}

func TestEncryptBeforeEnsureKey(t *testing.T) {
	ks := New(filepath.Join(t.TempDir(), "twfrp.key"))

	if _, err := ks.Encrypt("s3cr3t"); err == nil {
		t.Error("Expected error when encrypting before EnsureKey")
	}
	if _, err := ks.Decrypt("aes256gcm:AAAA"); err == nil {
		t.Error("Expected error when decrypting before EnsureKey")
	}
}
