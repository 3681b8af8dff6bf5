package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/godrealms/go-apple-sdk/applepay"
	"github.com/godrealms/go-apple-sdk/utils/logs"
)

func main() {
	// 创建配置
	config := applepay.DefaultConfig()
	config.Environment = applepay.EnvironmentSandbox
	config.MerchantID = "merchant.com.example.store"
	config.PrivateKeyPath = "/path/to/your/payment-processing-key.pem"
	config.RootCertificatePath = "/path/to/AppleRootCA-G3.pem"
	config.EnableDebugLog = true

	// 创建客户端
	client, err := applepay.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	// 健康检查
	ctx := context.Background()
	if err := client.Health(ctx); err != nil {
		log.Fatalf("Client health check failed: %v", err)
	}

	// 校验并解密支付Token
	encryptedTokenStr := `{
		"paymentData": {
			"version": "EC_v1",
			"data": "...",
			"signature": "...",
			"header": {
				"ephemeralPublicKey": "...",
				"publicKeyHash": "...",
				"transactionId": "..."
			}
		}
	}`

	paymentData, err := client.DecryptPaymentToken(ctx, encryptedTokenStr)
	if err != nil {
		log.Fatalf("Failed to decrypt payment token: %v", err)
	}

	// 获取支付方式信息
	paymentInfo, err := client.GetPaymentMethodInfo(ctx, paymentData)
	if err != nil {
		log.Fatalf("Failed to get payment method info: %v", err)
	}

	// 输出结果
	fmt.Printf("Payment Data Type: %s\n", paymentInfo.Type)
	fmt.Printf("Masked PAN: %s\n", paymentInfo.MaskedPAN)
	fmt.Printf("Card Last 4: %s\n", paymentData.GetCardLast4())
	fmt.Printf("Expiration: %s\n", paymentInfo.Expiration)
	fmt.Printf("3-D Secure: %v\n", paymentInfo.Is3DSecure)
}

// 高级使用示例
func advancedExample() {
	// 使用自定义配置
	config := &applepay.Config{
		Environment:        applepay.EnvironmentProduction,
		MerchantID:         "merchant.com.example.prod",
		MerchantName:       "My Store",
		PrivateKeyPath:     "/secure/path/payment-processing-key.pem",
		RootCertificateURL: "https://www.apple.com/certificateauthority/AppleRootCA-G3.cer",
		ReplayWindow:       2 * time.Minute,
		Timeout:            45 * time.Second,
		MaxRetries:         5,
		CacheEnabled:       true,
		CacheTTL:           10 * time.Minute,
		LogLevel:           logs.LogLevelWarn,
		EnableDebugLog:     false,
	}

	client, err := applepay.NewClient(config)
	if err != nil {
		log.Fatalf("Failed to create client: %v", err)
	}
	defer client.Close()

	// 批量处理Token
	tokens := []string{
		"encrypted-token-1",
		"encrypted-token-2",
		"encrypted-token-3",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for i, tokenStr := range tokens {
		paymentData, err := client.DecryptPaymentToken(ctx, tokenStr)
		if err != nil {
			fmt.Printf("Failed to decrypt token %d: %v\n", i+1, err)
			continue
		}

		fmt.Printf("Token %d: %s ****%s\n",
			i+1,
			paymentData.PaymentDataType,
			paymentData.GetCardLast4())
	}
}
