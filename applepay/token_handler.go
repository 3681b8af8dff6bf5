package applepay

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/godrealms/go-apple-sdk/applepay/errorx"
	"github.com/godrealms/go-apple-sdk/utils/logs"
)

var newAESCipher = aes.NewCipher

// GCM认证标签长度与协议规定的固定Nonce长度
const (
	gcmTagSize   = 16
	gcmNonceSize = 16
)

// TokenHandler Token处理器：签名校验与对称解密
type TokenHandler struct {
	config     *Config
	keyManager *KeyManager
	logger     logs.Logger
}

// NewTokenHandler 创建Token处理器
func NewTokenHandler(config *Config, keyManager *KeyManager, logger logs.Logger) (*TokenHandler, error) {
	if config == nil {
		return nil, fmt.Errorf("config is nil")
	}
	if keyManager == nil {
		return nil, fmt.Errorf("key manager is nil")
	}
	if logger == nil {
		logger = logs.NewLogger(logs.LogLevelInfo, false)
	}

	return &TokenHandler{
		config:     config,
		keyManager: keyManager,
		logger:     logger,
	}, nil
}

// VerifyToken 完整校验Token内容
//
// 顺序固定：版本门禁、证书分类、信任链、原始签名、签名时间。任何
// 一步失败立即返回对应类型的错误，不存在部分通过。当前时间由调用
// 方显式传入，校验本身无状态且可重复。
func (th *TokenHandler) VerifyToken(token *PKPaymentToken, now time.Time) error {
	if th == nil || token == nil {
		return fmt.Errorf("token handler or token is nil")
	}

	version := Version(token.PaymentData.Version)
	suite, err := suiteForVersion(version)
	if err != nil {
		return err
	}

	msg, chain, err := th.verifyCertificateChain(token, now)
	if err != nil {
		return err
	}

	content, err := th.signedContent(token, version)
	if err != nil {
		return err
	}
	if err := msg.VerifyLeafSignature(suite, chain.Leaf, content); err != nil {
		return err
	}

	return msg.VerifySigningTime(now, th.config.ReplayWindow)
}

// verifyCertificateChain 解析签名、分类证书并证明信任链
func (th *TokenHandler) verifyCertificateChain(token *PKPaymentToken, now time.Time) (*SignedMessage, *CertificateChain, error) {
	signature, err := token.SignatureBytes()
	if err != nil {
		return nil, nil, errorx.NewSignatureError("failed to decode signature", err)
	}

	msg, err := ParseSignedMessage(signature)
	if err != nil {
		return nil, nil, err
	}

	chain, err := classifyCertificates(msg.Certificates(), th.config.IntermediateOID, th.config.LeafOID)
	if err != nil {
		return nil, nil, err
	}

	anchor := th.keyManager.RootCertificate()
	if anchor == nil {
		return nil, nil, errorx.NewCertificateError("no trusted root certificate", nil)
	}

	if err := verifyChain(anchor, chain, now); err != nil {
		return nil, nil, err
	}

	return msg, chain, nil
}

// signedContent 构造签名覆盖的内容
//
// 版本集合封闭，新协议必须显式补充分支。
func (th *TokenHandler) signedContent(token *PKPaymentToken, version Version) ([]byte, error) {
	signed := bytes.NewBuffer(nil)

	switch version {
	case VersionECv1:
		ephemeralKey, err := token.EphemeralPublicKeyBytes()
		if err != nil {
			return nil, errorx.NewSignatureError("failed to decode ephemeral public key", err)
		}
		signed.Write(ephemeralKey)
	case VersionRSAv1:
		wrappedKey, err := token.WrappedKeyBytes()
		if err != nil {
			return nil, errorx.NewSignatureError("failed to decode wrapped key", err)
		}
		signed.Write(wrappedKey)
	default:
		return nil, errorx.NewVersionError(fmt.Sprintf("unsupported version: %s", version))
	}

	data, err := token.EncryptedData()
	if err != nil {
		return nil, errorx.NewSignatureError("failed to decode encrypted data", err)
	}
	signed.Write(data)

	transactionID, err := token.TransactionIDBytes()
	if err != nil {
		return nil, errorx.NewSignatureError("failed to decode transaction id", err)
	}
	signed.Write(transactionID)

	applicationData, err := token.ApplicationDataBytes()
	if err != nil {
		return nil, errorx.NewSignatureError("failed to decode application data", err)
	}
	signed.Write(applicationData)

	return signed.Bytes(), nil
}

// Decrypt 用调用方提供的对称密钥解密Token负载
//
// 负载末尾16字节是GCM认证标签，之前是密文；Nonce固定为16个零字节
// （协议规定，偏离GCM默认的12字节随机Nonce），附加认证数据为空。
// 所有密码层失败统一归结为同一个错误，不向调用方暴露失败子类型。
func (th *TokenHandler) Decrypt(token *PKPaymentToken, key []byte) ([]byte, error) {
	if th == nil || token == nil {
		return nil, fmt.Errorf("token handler or token is nil")
	}

	suite, err := suiteForVersion(Version(token.PaymentData.Version))
	if err != nil {
		return nil, err
	}

	data, err := token.EncryptedData()
	if err != nil {
		return nil, errorx.NewFormatError("invalid encrypted data")
	}
	if len(data) == 0 {
		return nil, errorx.NewFormatError("no encrypted data")
	}

	if len(key) != suite.KeyLength {
		return nil, errorx.NewKeyError(
			fmt.Sprintf("invalid key length: expected %d bytes, got %d", suite.KeyLength, len(key)))
	}

	block, err := newAESCipher(key)
	if err != nil {
		return nil, errorx.NewKeyError("wrong key")
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		return nil, errorx.NewKeyError("wrong key")
	}

	// Open以密文||标签的拼接为输入，即完整负载本身
	nonce := make([]byte, gcmNonceSize)
	plaintext, err := gcm.Open(nil, nonce, data, nil)
	if err != nil {
		return nil, errorx.NewKeyError("wrong key")
	}

	return plaintext, nil
}

// DecryptToken 校验并解密JSON编码的支付Token
func (th *TokenHandler) DecryptToken(ctx context.Context, encryptedTokenStr string) (*Token, error) {
	if th == nil {
		return nil, fmt.Errorf("token handler is nil")
	}
	if th.keyManager == nil {
		return nil, fmt.Errorf("token handler is not initialized")
	}

	var paymentToken PKPaymentToken
	if err := json.Unmarshal([]byte(encryptedTokenStr), &paymentToken); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment token: %w", err)
	}

	// 信封形态校验先于一切语义校验
	if err := ValidateTokenFormat(&paymentToken); err != nil {
		return nil, err
	}

	// 完整签名校验
	if err := th.VerifyToken(&paymentToken, time.Now()); err != nil {
		return nil, fmt.Errorf("token verification failed: %w", err)
	}

	// 派生对称密钥，版本门禁已保证这里只会遇到EC_v1
	key, err := th.keyManager.ComputeEncryptionKey(&paymentToken)
	if err != nil {
		return nil, fmt.Errorf("failed to compute encryption key: %w", err)
	}

	plaintext, err := th.Decrypt(&paymentToken, key)
	if err != nil {
		return nil, fmt.Errorf("decryption failed: %w", err)
	}

	var token Token
	if err := json.Unmarshal(plaintext, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payment data: %w", err)
	}
	token.DecryptedAt = time.Now()

	th.logger.Debug("Token decrypted successfully")
	return &token, nil
}

// ValidSignature 布尔形式的签名校验，丢弃全部错误信息
//
// 需要区分错误类型的调用方必须使用VerifyToken。
func (th *TokenHandler) ValidSignature(token *PKPaymentToken, now time.Time) bool {
	return th.VerifyToken(token, now) == nil
}

// SigningTimeOK 布尔形式的签名时间校验，丢弃全部错误信息
func (th *TokenHandler) SigningTimeOK(token *PKPaymentToken, now time.Time) bool {
	signature, err := token.SignatureBytes()
	if err != nil {
		return false
	}
	msg, err := ParseSignedMessage(signature)
	if err != nil {
		return false
	}
	return msg.VerifySigningTime(now, th.config.ReplayWindow) == nil
}

// Health 健康检查
func (th *TokenHandler) Health(ctx context.Context) error {
	if th.keyManager == nil {
		return errors.New("key manager not available")
	}

	return th.keyManager.Health(ctx)
}
