package applepay

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"github.com/godrealms/go-apple-sdk/applepay/errorx"
)

// 格式校验只负责字段形态，信任、时间与真实性语义由核心校验承担
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(headerStructLevel, Header{})
	v.RegisterStructValidation(tokenStructLevel, Token{})
	return v
}

// headerStructLevel 密钥协商材料必须恰好存在一种
func headerStructLevel(sl validator.StructLevel) {
	header := sl.Current().Interface().(Header)

	hasEphemeral := header.EphemeralPublicKey != ""
	hasWrapped := header.WrappedKey != ""
	if hasEphemeral == hasWrapped {
		sl.ReportError(header.EphemeralPublicKey, "EphemeralPublicKey", "ephemeralPublicKey", "key_material_xor", "")
	}
}

// tokenStructLevel 凭据字段的存在性随paymentDataType变化
func tokenStructLevel(sl validator.StructLevel) {
	token := sl.Current().Interface().(Token)

	hasCryptogram := token.PaymentData.OnlinePaymentCryptogram != ""
	switch token.PaymentDataType {
	case "3DSecure":
		if !hasCryptogram {
			sl.ReportError(token.PaymentData.OnlinePaymentCryptogram, "OnlinePaymentCryptogram", "onlinePaymentCryptogram", "required_for_3dsecure", "")
		}
	case "EMV":
		if token.PaymentData.EmvData == "" {
			sl.ReportError(token.PaymentData.EmvData, "EmvData", "emvData", "required_for_emv", "")
		}
	}
}

// ValidateTokenFormat 校验Token信封的字段形态
func ValidateTokenFormat(token *PKPaymentToken) error {
	if token == nil {
		return errorx.NewFormatError("token is nil")
	}

	if err := validate.Struct(token); err != nil {
		return errorx.NewFormatError(fmt.Sprintf("invalid token format: %v", err))
	}
	return nil
}

// ValidatePaymentData 校验解密后支付数据记录的字段形态
func ValidatePaymentData(token *Token) error {
	if token == nil {
		return errorx.NewFormatError("payment data is nil")
	}

	if err := validate.Struct(token); err != nil {
		return errorx.NewFormatError(fmt.Sprintf("invalid payment data format: %v", err))
	}
	return nil
}
