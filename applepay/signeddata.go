package applepay

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"fmt"
	"time"

	"github.com/godrealms/go-apple-sdk/applepay/errorx"
)

// CMS相关OID
var (
	oidSignedData           = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidData                 = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidAttributeContentType = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidAttributeDigest      = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidAttributeSigningTime = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 5}
	oidDigestSHA256         = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
)

// contentInfo RFC 5652外层结构
type contentInfo struct {
	ContentType asn1.ObjectIdentifier
	Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// signedDataASN1 RFC 5652 SignedData结构
//
// 可选的带标签集合字段必须是切片而不是裸RawValue：裸RawValue解析
// 时不做标签匹配，字段缺省时会吞掉后面的元素。
type signedDataASN1 struct {
	Version          int
	DigestAlgorithms []pkix.AlgorithmIdentifier `asn1:"set"`
	EncapContentInfo encapContentInfo
	Certificates     []asn1.RawValue  `asn1:"optional,tag:0"`
	CRLs             []asn1.RawValue  `asn1:"optional,tag:1"`
	SignerInfos      []signerInfoASN1 `asn1:"set"`
}

// encapContentInfo 被签名内容；分离式签名时EContent缺省
type encapContentInfo struct {
	EContentType asn1.ObjectIdentifier
	EContent     asn1.RawValue `asn1:"explicit,optional,tag:0"`
}

// signerInfoASN1 RFC 5652 SignerInfo结构
type signerInfoASN1 struct {
	Version            int
	SID                asn1.RawValue
	DigestAlgorithm    pkix.AlgorithmIdentifier
	SignedAttrs        []attribute `asn1:"optional,omitempty,tag:0"`
	SignatureAlgorithm pkix.AlgorithmIdentifier
	Signature          []byte
	UnsignedAttrs      []attribute `asn1:"optional,omitempty,tag:1"`
}

// attribute 签名属性
type attribute struct {
	Type   asn1.ObjectIdentifier
	Values asn1.RawValue `asn1:"set"`
}

// SignedMessage Token签名的解析结果：内嵌证书集合与签名者信息
type SignedMessage struct {
	certificates []*x509.Certificate
	signers      []signerInfoASN1
}

// ParseSignedMessage 解析DER编码的PKCS7/CMS SignedData
func ParseSignedMessage(der []byte) (*SignedMessage, error) {
	var ci contentInfo
	rest, err := asn1.Unmarshal(der, &ci)
	if err != nil {
		return nil, errorx.NewSignatureError("failed to parse ContentInfo", err)
	}
	if len(rest) > 0 {
		return nil, errorx.NewSignatureError("trailing data after ContentInfo", nil)
	}
	if !ci.ContentType.Equal(oidSignedData) {
		return nil, errorx.NewSignatureError(
			fmt.Sprintf("unexpected content type: %s", ci.ContentType), nil)
	}

	// Content是[0] EXPLICIT包装，Bytes即完整的SignedData SEQUENCE
	var sd signedDataASN1
	if _, err := asn1.Unmarshal(ci.Content.Bytes, &sd); err != nil {
		return nil, errorx.NewSignatureError("failed to parse SignedData", err)
	}

	var certs []*x509.Certificate
	for _, raw := range sd.Certificates {
		cert, err := x509.ParseCertificate(raw.FullBytes)
		if err != nil {
			return nil, errorx.NewSignatureError("failed to parse embedded certificates", err)
		}
		certs = append(certs, cert)
	}

	return &SignedMessage{
		certificates: certs,
		signers:      sd.SignerInfos,
	}, nil
}

// Certificates 返回签名内嵌的证书集合，保持原始顺序
func (m *SignedMessage) Certificates() []*x509.Certificate {
	return m.certificates
}

// SignerCount 返回签名者数量
func (m *SignedMessage) SignerCount() int {
	return len(m.signers)
}

// SigningTime 提取唯一签名者的签名时间
//
// Token签名必须且只能有一个签名者；签名者数量异常或签名时间属性
// 缺失都视为无法确定签名时间。
func (m *SignedMessage) SigningTime() (time.Time, error) {
	if len(m.signers) != 1 {
		return time.Time{}, errorx.NewSignatureError("unable to determine signing time", nil)
	}

	for _, attr := range m.signers[0].SignedAttrs {
		if !attr.Type.Equal(oidAttributeSigningTime) {
			continue
		}
		var t time.Time
		if _, err := asn1.Unmarshal(attr.Values.Bytes, &t); err != nil {
			return time.Time{}, errorx.NewSignatureError("unable to determine signing time", err)
		}
		return t, nil
	}

	return time.Time{}, errorx.NewSignatureError("unable to determine signing time", nil)
}

// VerifySigningTime 以显式传入的当前时间校验签名时间是否落在防重放窗口内
//
// 窗口两端均为闭区间：now-window ≤ t ≤ now+window。
func (m *SignedMessage) VerifySigningTime(now time.Time, window time.Duration) error {
	signingTime, err := m.SigningTime()
	if err != nil {
		return err
	}

	delta := now.Sub(signingTime)
	if delta > window {
		return errorx.NewSignatureError(
			fmt.Sprintf("signature too old, signed %d seconds ago", int64(delta/time.Second)), nil)
	}
	if -delta > window {
		return errorx.NewSignatureError(
			fmt.Sprintf("signature too new, signed %d seconds in the future", int64(-delta/time.Second)), nil)
	}

	return nil
}

// VerifyLeafSignature 用叶子证书公钥校验唯一签名者对内容的原始签名
//
// 只在证书链校验通过之后调用。签名携带已认证属性时按RFC 5652
// 校验messageDigest并对属性SET验签，否则直接对内容摘要验签。
func (m *SignedMessage) VerifyLeafSignature(suite CipherSuite, leaf *x509.Certificate, content []byte) error {
	if len(m.signers) != 1 {
		return errorx.NewSignatureError(
			fmt.Sprintf("expected exactly one signer, got %d", len(m.signers)), nil)
	}
	si := m.signers[0]

	if !si.DigestAlgorithm.Algorithm.Equal(oidDigestSHA256) {
		return errorx.NewSignatureError(
			fmt.Sprintf("unsupported digest algorithm: %s", si.DigestAlgorithm.Algorithm), nil)
	}

	contentDigest := sha256.Sum256(content)

	var signedDigest [32]byte
	if len(si.SignedAttrs) > 0 {
		messageDigest, err := findMessageDigest(si.SignedAttrs)
		if err != nil {
			return err
		}
		if !bytes.Equal(messageDigest, contentDigest[:]) {
			return errorx.NewSignatureError("message digest does not match signed content", nil)
		}

		// 签名覆盖的是SET形式的已认证属性，按RFC 5652重新编码为SET参与摘要
		setBytes, err := asn1.MarshalWithParams(si.SignedAttrs, "set")
		if err != nil {
			return errorx.NewSignatureError("failed to encode signed attributes", err)
		}
		signedDigest = sha256.Sum256(setBytes)
	} else {
		signedDigest = contentDigest
	}

	switch suite.PublicKeyAlgorithm {
	case x509.ECDSA:
		pub, ok := leaf.PublicKey.(*ecdsa.PublicKey)
		if !ok {
			return errorx.NewSignatureError("leaf certificate public key is not ECDSA", nil)
		}
		if !ecdsa.VerifyASN1(pub, signedDigest[:], si.Signature) {
			return errorx.NewSignatureError("signature verification failed", nil)
		}
	default:
		return errorx.NewSignatureError(
			fmt.Sprintf("unsupported public key algorithm: %s", suite.PublicKeyAlgorithm), nil)
	}

	return nil
}

// findMessageDigest 从已认证属性中取出messageDigest
func findMessageDigest(attrs []attribute) ([]byte, error) {
	for _, attr := range attrs {
		if !attr.Type.Equal(oidAttributeDigest) {
			continue
		}
		var digest []byte
		if _, err := asn1.Unmarshal(attr.Values.Bytes, &digest); err != nil {
			return nil, errorx.NewSignatureError("failed to parse message digest attribute", err)
		}
		return digest, nil
	}
	return nil, errorx.NewSignatureError("message digest attribute is missing", nil)
}
