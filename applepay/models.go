package applepay

import (
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"
)

// PKPaymentToken Apple Pay支付Token结构（PassKit序列化格式）
type PKPaymentToken struct {
	PaymentData           PaymentData   `json:"paymentData" validate:"required"`
	PaymentMethod         PaymentMethod `json:"paymentMethod"`
	TransactionIdentifier string        `json:"transactionIdentifier"`
}

// PaymentData 加密支付数据及其签名
type PaymentData struct {
	Version   string `json:"version" validate:"required,oneof=EC_v1 RSA_v1"`
	Data      string `json:"data" validate:"required,base64"`
	Signature string `json:"signature" validate:"required,base64"`
	Header    Header `json:"header" validate:"required"`
}

// Header 支付数据头，携带密钥协商材料与交易标识
type Header struct {
	EphemeralPublicKey string `json:"ephemeralPublicKey,omitempty" validate:"omitempty,base64"`
	WrappedKey         string `json:"wrappedKey,omitempty" validate:"omitempty,base64"`
	PublicKeyHash      string `json:"publicKeyHash" validate:"required,base64"`
	TransactionID      string `json:"transactionId" validate:"required,hexadecimal"`
	ApplicationData    string `json:"applicationData,omitempty" validate:"omitempty,hexadecimal"`
}

// PaymentMethod 支付方式展示信息
type PaymentMethod struct {
	DisplayName string `json:"displayName"`
	Network     string `json:"network"`
	Type        string `json:"type"`
}

// Token 解密后的支付数据记录
type Token struct {
	ApplicationPrimaryAccountNumber string           `json:"applicationPrimaryAccountNumber" validate:"required,number,min=12,max=19"`
	ApplicationExpirationDate       string           `json:"applicationExpirationDate" validate:"required,datetime=060102"`
	CurrencyCode                    string           `json:"currencyCode" validate:"required,number,len=3"`
	TransactionAmount               int64            `json:"transactionAmount" validate:"gte=0"`
	CardholderName                  string           `json:"cardholderName,omitempty"`
	DeviceManufacturerIdentifier    string           `json:"deviceManufacturerIdentifier" validate:"required,hexadecimal"`
	PaymentDataType                 string           `json:"paymentDataType" validate:"required,oneof=3DSecure EMV"`
	PaymentData                     TokenPaymentData `json:"paymentData"`

	// 内部字段
	DecryptedAt time.Time `json:"-"`
}

// TokenPaymentData 按paymentDataType区分的在线支付凭据
type TokenPaymentData struct {
	OnlinePaymentCryptogram string `json:"onlinePaymentCryptogram,omitempty" validate:"omitempty,base64"`
	EciIndicator            string `json:"eciIndicator,omitempty"`
	EmvData                 string `json:"emvData,omitempty" validate:"omitempty,base64"`
	EncryptedPINData        string `json:"encryptedPINData,omitempty" validate:"omitempty,hexadecimal"`
}

// EncryptedData 解码加密负载
func (t *PKPaymentToken) EncryptedData() ([]byte, error) {
	if t.PaymentData.Data == "" {
		return nil, nil
	}
	data, err := base64.StdEncoding.DecodeString(t.PaymentData.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to decode encrypted data: %w", err)
	}
	return data, nil
}

// SignatureBytes 解码PKCS7签名
func (t *PKPaymentToken) SignatureBytes() ([]byte, error) {
	sig, err := base64.StdEncoding.DecodeString(t.PaymentData.Signature)
	if err != nil {
		return nil, fmt.Errorf("failed to decode signature: %w", err)
	}
	return sig, nil
}

// TransactionIDBytes 解码交易标识
func (t *PKPaymentToken) TransactionIDBytes() ([]byte, error) {
	id, err := hex.DecodeString(t.PaymentData.Header.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to decode transaction id: %w", err)
	}
	return id, nil
}

// ApplicationDataBytes 解码应用数据，字段缺省时返回nil
func (t *PKPaymentToken) ApplicationDataBytes() ([]byte, error) {
	if t.PaymentData.Header.ApplicationData == "" {
		return nil, nil
	}
	data, err := hex.DecodeString(t.PaymentData.Header.ApplicationData)
	if err != nil {
		return nil, fmt.Errorf("failed to decode application data: %w", err)
	}
	return data, nil
}

// EphemeralPublicKeyBytes 解码临时公钥
func (t *PKPaymentToken) EphemeralPublicKeyBytes() ([]byte, error) {
	if t.PaymentData.Header.EphemeralPublicKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(t.PaymentData.Header.EphemeralPublicKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ephemeral public key: %w", err)
	}
	return key, nil
}

// WrappedKeyBytes 解码包装密钥
func (t *PKPaymentToken) WrappedKeyBytes() ([]byte, error) {
	if t.PaymentData.Header.WrappedKey == "" {
		return nil, nil
	}
	key, err := base64.StdEncoding.DecodeString(t.PaymentData.Header.WrappedKey)
	if err != nil {
		return nil, fmt.Errorf("failed to decode wrapped key: %w", err)
	}
	return key, nil
}

// GetCardLast4 获取卡号后4位
func (t *Token) GetCardLast4() string {
	pan := t.ApplicationPrimaryAccountNumber
	if len(pan) >= 4 {
		return pan[len(pan)-4:]
	}
	return ""
}

// GetMaskedPAN 获取掩码卡号
func (t *Token) GetMaskedPAN() string {
	last4 := t.GetCardLast4()
	if last4 == "" {
		return ""
	}
	return "****" + last4
}

// Is3DSecure 判断是否为3DS凭据
func (t *Token) Is3DSecure() bool {
	return t.PaymentDataType == "3DSecure"
}
