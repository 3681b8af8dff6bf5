package applepay

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godrealms/go-apple-sdk/utils/cache"
	"github.com/godrealms/go-apple-sdk/utils/logs"
)

// Client Apple Pay客户端
type Client struct {
	config       *Config
	keyManager   *KeyManager
	tokenHandler *TokenHandler
	cache        cache.Cache
	logger       logs.Logger

	// 内部状态
	mu          sync.RWMutex
	initialized bool
}

// NewClient 创建新的客户端
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	client := &Client{
		config: config,
		logger: logs.NewLogger(config.LogLevel, config.EnableDebugLog),
	}

	if err := client.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize client: %w", err)
	}

	return client, nil
}

// initialize 初始化客户端
func (c *Client) initialize() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// 初始化密钥管理器
	keyManager, err := NewKeyManager(c.config, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create key manager: %w", err)
	}
	c.keyManager = keyManager

	// 初始化Token处理器
	tokenHandler, err := NewTokenHandler(c.config, c.keyManager, c.logger)
	if err != nil {
		return fmt.Errorf("failed to create token handler: %w", err)
	}
	c.tokenHandler = tokenHandler

	// 初始化缓存
	if c.config.CacheEnabled {
		c.cache = cache.NewMemoryCache(c.config.CacheTTL)
	} else {
		c.cache = cache.NewNoOpCache()
	}

	c.initialized = true
	c.logger.Info("Apple Pay client initialized successfully")

	return nil
}

// DecryptPaymentToken 校验并解密支付Token
//
// 调用方需要超时控制时应自行包装ctx，核心流程是同步纯计算。
func (c *Client) DecryptPaymentToken(ctx context.Context, encryptedToken string) (*Token, error) {
	if !c.initialized {
		return nil, errors.New("client not initialized")
	}

	// 检查缓存
	if cached := c.cache.Get(encryptedToken); cached != nil {
		if token, ok := cached.(*Token); ok {
			c.logger.Debug("Payment token found in cache")
			return token, nil
		}
	}

	// 校验并解密Token
	token, err := c.tokenHandler.DecryptToken(ctx, encryptedToken)
	if err != nil {
		c.logger.Error("Failed to decrypt payment token", "error", err)
		return nil, fmt.Errorf("decrypt token failed: %w", err)
	}

	// 解密后的记录同样要通过格式校验
	if err := ValidatePaymentData(token); err != nil {
		c.logger.Error("Decrypted payment data failed format validation", "error", err)
		return nil, err
	}

	// 缓存结果
	c.cache.Set(encryptedToken, token)

	c.logger.Info("Payment token decrypted successfully")
	return token, nil
}

// ValidatePaymentToken 校验支付Token的签名与时间窗口
func (c *Client) ValidatePaymentToken(ctx context.Context, token *PKPaymentToken) error {
	if token == nil {
		return errors.New("token is nil")
	}

	// 先做形态校验，再做语义校验
	if err := ValidateTokenFormat(token); err != nil {
		return err
	}

	if err := c.tokenHandler.VerifyToken(token, time.Now()); err != nil {
		return fmt.Errorf("token verification failed: %w", err)
	}

	c.logger.Info("Payment token validated successfully")
	return nil
}

// GetPaymentMethodInfo 获取支付方式信息
func (c *Client) GetPaymentMethodInfo(ctx context.Context, token *Token) (*PaymentMethodInfo, error) {
	if token == nil {
		return nil, errors.New("token is nil")
	}

	if err := ValidatePaymentData(token); err != nil {
		return nil, err
	}

	return &PaymentMethodInfo{
		Type:       token.PaymentDataType,
		MaskedPAN:  token.GetMaskedPAN(),
		Expiration: token.ApplicationExpirationDate,
		Cardholder: token.CardholderName,
		Is3DSecure: token.Is3DSecure(),
	}, nil
}

// PaymentMethodInfo 支付方式信息
type PaymentMethodInfo struct {
	Type       string `json:"type"`
	MaskedPAN  string `json:"maskedPan"`
	Expiration string `json:"expiration"`
	Cardholder string `json:"cardholder"`
	Is3DSecure bool   `json:"is3DSecure"`
}

// Health 健康检查
func (c *Client) Health(ctx context.Context) error {
	if !c.initialized {
		return errors.New("client not initialized")
	}

	// 检查密钥管理器
	if err := c.keyManager.Health(ctx); err != nil {
		return fmt.Errorf("key manager unhealthy: %w", err)
	}

	// 检查Token处理器
	if err := c.tokenHandler.Health(ctx); err != nil {
		return fmt.Errorf("token handler unhealthy: %w", err)
	}

	return nil
}

// Close 关闭客户端
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.cache != nil {
		c.cache.Close()
	}

	if c.keyManager != nil {
		c.keyManager.Close()
	}

	c.initialized = false
	c.logger.Info("Apple Pay client closed")

	return nil
}
