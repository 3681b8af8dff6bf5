package applepay

import (
	"errors"
	"time"

	"github.com/godrealms/go-apple-sdk/utils/logs"
)

// Config Apple Pay配置
type Config struct {
	// 环境配置
	Environment Environment `json:"environment"`

	// 商户配置
	MerchantID   string `json:"merchant_id"`
	MerchantName string `json:"merchant_name"`

	// 密钥配置
	PrivateKeyPath string `json:"private_key_path"`
	PrivateKeyData []byte `json:"-"` // 不序列化敏感数据

	// 信任配置：固定的Apple根证书（PEM），三选一提供
	RootCertificatePath string `json:"root_certificate_path"`
	RootCertificateData []byte `json:"-"`
	RootCertificateURL  string `json:"root_certificate_url"`

	// 证书角色标记OID，空值使用Apple默认值
	LeafOID         string `json:"leaf_oid"`
	IntermediateOID string `json:"intermediate_oid"`

	// 防重放时间窗口（签名时间与当前时间的最大偏差）
	ReplayWindow time.Duration `json:"replay_window"`

	// 网络配置
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`

	// 缓存配置
	CacheEnabled bool          `json:"cache_enabled"`
	CacheTTL     time.Duration `json:"cache_ttl"`

	// 日志配置
	LogLevel       logs.LogLevel `json:"log_level"`
	EnableDebugLog bool          `json:"enable_debug_log"`
}

// Environment 环境类型
type Environment string

const (
	EnvironmentSandbox    Environment = "sandbox"
	EnvironmentProduction Environment = "production"
)

// Apple定义的证书角色标记OID：扩展存在即代表角色，值本身不参与判断
const (
	DefaultLeafOID         = "1.2.840.113635.100.6.29"
	DefaultIntermediateOID = "1.2.840.113635.100.6.2.14"
)

// DefaultReplayWindow 默认防重放时间窗口
const DefaultReplayWindow = 5 * time.Minute

// DefaultConfig 默认配置
func DefaultConfig() *Config {
	return &Config{
		Environment:     EnvironmentSandbox,
		LeafOID:         DefaultLeafOID,
		IntermediateOID: DefaultIntermediateOID,
		ReplayWindow:    DefaultReplayWindow,
		Timeout:         30 * time.Second,
		MaxRetries:      3,
		CacheEnabled:    true,
		CacheTTL:        5 * time.Minute,
		LogLevel:        logs.LogLevelInfo,
		EnableDebugLog:  false,
	}
}

// Validate 验证配置
func (c *Config) Validate() error {
	if c.MerchantID == "" {
		return errors.New("merchant_id is required")
	}

	if len(c.PrivateKeyData) == 0 && c.PrivateKeyPath == "" {
		return errors.New("private key is required")
	}

	if len(c.RootCertificateData) == 0 && c.RootCertificatePath == "" && c.RootCertificateURL == "" {
		return errors.New("root certificate is required")
	}

	if c.LeafOID == "" {
		c.LeafOID = DefaultLeafOID
	}

	if c.IntermediateOID == "" {
		c.IntermediateOID = DefaultIntermediateOID
	}

	if c.ReplayWindow <= 0 {
		c.ReplayWindow = DefaultReplayWindow
	}

	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}

	if c.MaxRetries < 0 {
		c.MaxRetries = 3
	}

	return nil
}
