package applepay

import (
	"context"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/godrealms/go-apple-sdk/applepay/errorx"
	"github.com/godrealms/go-apple-sdk/utils/logs"
)

var newRequestWithContext = http.NewRequestWithContext

// KeyManager 密钥管理器：持有商户处理私钥与固定的Apple根证书
type KeyManager struct {
	config *Config
	logger logs.Logger

	// 商户处理私钥，EC或RSA
	privateKey interface{}

	// 信任锚
	mu              sync.RWMutex
	rootCertificate *x509.Certificate
	lastUpdate      time.Time

	// HTTP客户端，仅用于按URL获取根证书
	httpClient *http.Client
}

// NewKeyManager 创建密钥管理器
func NewKeyManager(config *Config, logger logs.Logger) (*KeyManager, error) {
	if config == nil {
		return nil, errors.New("config is nil")
	}
	if logger == nil {
		logger = logs.NewLogger(logs.LogLevelInfo, false)
	}

	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}

	km := &KeyManager{
		config: config,
		logger: logger,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}

	// 加载商户私钥
	if err := km.loadPrivateKey(); err != nil {
		return nil, fmt.Errorf("failed to load private key: %w", err)
	}

	// 加载Apple根证书
	if err := km.loadRootCertificate(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to load root certificate: %w", err)
	}

	return km, nil
}

// loadPrivateKey 加载商户处理私钥
func (km *KeyManager) loadPrivateKey() error {
	var keyData []byte
	var err error

	// 优先使用配置中的密钥数据
	if len(km.config.PrivateKeyData) > 0 {
		keyData = km.config.PrivateKeyData
	} else if km.config.PrivateKeyPath != "" {
		keyData, err = os.ReadFile(km.config.PrivateKeyPath)
		if err != nil {
			return fmt.Errorf("failed to read private key file: %w", err)
		}
	} else {
		return errors.New("no private key provided")
	}

	// 解析PEM格式
	block, _ := pem.Decode(keyData)
	if block == nil {
		return errors.New("failed to decode PEM block")
	}

	// 解析私钥
	switch block.Type {
	case "EC PRIVATE KEY":
		km.privateKey, err = x509.ParseECPrivateKey(block.Bytes)
	case "RSA PRIVATE KEY":
		km.privateKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
	case "PRIVATE KEY":
		var key interface{}
		key, err = x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return fmt.Errorf("failed to parse PKCS8 private key: %w", err)
		}
		switch key.(type) {
		case *ecdsa.PrivateKey, *rsa.PrivateKey:
			km.privateKey = key
		default:
			return errors.New("private key is not ECDSA or RSA")
		}
	default:
		return fmt.Errorf("unsupported private key type: %s", block.Type)
	}

	if err != nil {
		return fmt.Errorf("failed to parse private key: %w", err)
	}

	if km.logger != nil {
		km.logger.Info("Private key loaded successfully")
	}
	return nil
}

// loadRootCertificate 加载固定的Apple根证书
func (km *KeyManager) loadRootCertificate(ctx context.Context) error {
	var certData []byte
	var err error

	switch {
	case len(km.config.RootCertificateData) > 0:
		certData = km.config.RootCertificateData
	case km.config.RootCertificatePath != "":
		certData, err = os.ReadFile(km.config.RootCertificatePath)
		if err != nil {
			return fmt.Errorf("failed to read root certificate file: %w", err)
		}
	case km.config.RootCertificateURL != "":
		certData, err = km.fetchRootCertificate(ctx)
		if err != nil {
			return fmt.Errorf("failed to fetch root certificate: %w", err)
		}
	default:
		return errors.New("no root certificate provided")
	}

	cert, err := parseCertificatePEM(certData)
	if err != nil {
		return errorx.NewCertificateError("trusted root certificate is malformed", err)
	}

	km.mu.Lock()
	defer km.mu.Unlock()
	km.rootCertificate = cert
	km.lastUpdate = time.Now()

	if km.logger != nil {
		km.logger.Info("Root certificate loaded successfully", "subject", cert.Subject.CommonName)
	}
	return nil
}

// fetchRootCertificate 按配置URL获取根证书
func (km *KeyManager) fetchRootCertificate(ctx context.Context) ([]byte, error) {
	req, err := newRequestWithContext(ctx, http.MethodGet, km.config.RootCertificateURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := km.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch root certificate: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}

// parseCertificatePEM 解析PEM或DER编码的证书
func parseCertificatePEM(data []byte) (*x509.Certificate, error) {
	if block, _ := pem.Decode(data); block != nil {
		if block.Type != "CERTIFICATE" {
			return nil, fmt.Errorf("unexpected PEM block type: %s", block.Type)
		}
		return x509.ParseCertificate(block.Bytes)
	}
	// 非PEM输入按DER解析
	return x509.ParseCertificate(data)
}

// RootCertificate 返回固定的信任锚
func (km *KeyManager) RootCertificate() *x509.Certificate {
	km.mu.RLock()
	defer km.mu.RUnlock()
	return km.rootCertificate
}

// RefreshRootCertificate 重新加载根证书
func (km *KeyManager) RefreshRootCertificate(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	return km.loadRootCertificate(ctx)
}

// ComputeEncryptionKey 为EC_v1 Token计算对称解密密钥
//
// 使用Token的临时公钥与商户处理私钥做ECDHE，再按NIST SP 800-56A
// 单步KDF（SHA256，Apple定义的参数）从共享密钥派生32字节密钥。
func (km *KeyManager) ComputeEncryptionKey(token *PKPaymentToken) ([]byte, error) {
	ephemeralData, err := token.EphemeralPublicKeyBytes()
	if err != nil {
		return nil, err
	}
	if len(ephemeralData) == 0 {
		return nil, errors.New("no ephemeral public key")
	}

	pubAny, err := x509.ParsePKIXPublicKey(ephemeralData)
	if err != nil {
		return nil, fmt.Errorf("failed to parse ephemeral public key: %w", err)
	}
	pub, ok := pubAny.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("ephemeral public key is not EC")
	}

	priv, ok := km.privateKey.(*ecdsa.PrivateKey)
	if !ok {
		return nil, errors.New("processing private key is not EC")
	}

	sharedSecret, err := ecdheSharedSecret(pub, priv)
	if err != nil {
		return nil, fmt.Errorf("failed to compute shared secret: %w", err)
	}

	return deriveEncryptionKey(sharedSecret, km.merchantIdentifierHash()), nil
}

// UnwrapEncryptionKey 为RSA_v1 Token解包对称解密密钥
func (km *KeyManager) UnwrapEncryptionKey(token *PKPaymentToken) ([]byte, error) {
	priv, ok := km.privateKey.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("processing private key is not RSA")
	}

	wrappedKey, err := token.WrappedKeyBytes()
	if err != nil {
		return nil, err
	}
	if len(wrappedKey) == 0 {
		return nil, errors.New("no wrapped key")
	}

	key, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to unwrap encryption key: %w", err)
	}

	return key, nil
}

// ecdheSharedSecret 按RFC 5903计算EC公私钥间的共享密钥
func ecdheSharedSecret(pubEcdsa *ecdsa.PublicKey, privEcdsa *ecdsa.PrivateKey) ([]byte, error) {
	pub, err := pubEcdsa.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to convert public key to ECDH: %w", err)
	}

	priv, err := privEcdsa.ECDH()
	if err != nil {
		return nil, fmt.Errorf("failed to convert private key to ECDH: %w", err)
	}

	return priv.ECDH(pub)
}

// deriveEncryptionKey 从ECDHE共享密钥与商户标识哈希派生对称密钥
//
// NIST SP 800-56A第5.8.1节的单步KDF，只需一轮：
// SHA256( counter || Z || algorithm || partyU || partyV )
func deriveEncryptionKey(sharedSecret, merchantIDHash []byte) []byte {
	counter := []byte{0, 0, 0, 1}
	// Apple定义的KDF参数
	kdfAlgorithm := []byte("\x0did-aes256-GCM")
	kdfPartyU := []byte("Apple")
	kdfPartyV := merchantIDHash

	h := sha256.New()
	h.Write(counter)
	h.Write(sharedSecret)
	h.Write(kdfAlgorithm)
	h.Write(kdfPartyU)
	h.Write(kdfPartyV)

	return h.Sum(nil)
}

// merchantIdentifierHash 商户标识的SHA256哈希，作为KDF的partyV参数
func (km *KeyManager) merchantIdentifierHash() []byte {
	hash := sha256.Sum256([]byte(km.config.MerchantID))
	return hash[:]
}

// Health 健康检查
func (km *KeyManager) Health(ctx context.Context) error {
	if km.privateKey == nil {
		return errors.New("private key not loaded")
	}

	km.mu.RLock()
	loaded := km.rootCertificate != nil
	km.mu.RUnlock()

	if !loaded {
		return errors.New("root certificate not loaded")
	}

	return nil
}

// Close 关闭密钥管理器
func (km *KeyManager) Close() error {
	km.mu.Lock()
	defer km.mu.Unlock()

	km.rootCertificate = nil
	km.privateKey = nil

	return nil
}
