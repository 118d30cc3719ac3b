package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

const (
	// SecretKeyFileName 数据目录下的密钥文件名
	SecretKeyFileName = ".secret_key"
	// EncryptedPrefix 加密字段前缀
	EncryptedPrefix = "enc:"
)

// SecretBox 配置文件中 API Key 的加解密（AES-256-GCM）
type SecretBox struct {
	keyPath string
	key     []byte
}

// NewSecretBox 加载密钥，不存在时生成
func NewSecretBox(keyPath string) (*SecretBox, error) {
	box := &SecretBox{keyPath: keyPath}
	if err := box.loadOrGenerateKey(); err != nil {
		return nil, err
	}
	return box, nil
}

// IsEncrypted 是否为加密字段
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// loadOrGenerateKey 加载或生成密钥
func (b *SecretBox) loadOrGenerateKey() error {
	if data, err := os.ReadFile(b.keyPath); err == nil {
		if len(data) != 32 {
			return fmt.Errorf("invalid key length %d in %s", len(data), b.keyPath)
		}
		b.key = data
		return nil
	}

	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return fmt.Errorf("failed to generate key: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(b.keyPath), 0700); err != nil {
		return fmt.Errorf("failed to create key directory: %w", err)
	}
	// 仅所有者可读写
	if err := os.WriteFile(b.keyPath, key, 0600); err != nil {
		return fmt.Errorf("failed to save key: %w", err)
	}
	b.key = key
	return nil
}

// gcm 创建 GCM
func (b *SecretBox) gcm() (cipher.AEAD, error) {
	block, err := aes.NewCipher(b.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}

// Encrypt 加密并加上 enc: 前缀
func (b *SecretBox) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	aead, err := b.gcm()
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 解密 enc: 字段，未加密的值原样返回
func (b *SecretBox) Decrypt(value string) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	aead, err := b.gcm()
	if err != nil {
		return "", err
	}
	nonceSize := aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("secret too short")
	}
	plain, err := aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt secret: %w", err)
	}
	return string(plain), nil
}
