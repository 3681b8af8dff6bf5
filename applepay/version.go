package applepay

import (
	"crypto/x509"
	"fmt"

	"github.com/godrealms/go-apple-sdk/applepay/errorx"
)

// Version Token协议版本
type Version string

const (
	VersionECv1  Version = "EC_v1"
	VersionRSAv1 Version = "RSA_v1"
)

// String 实现Stringer接口
func (v Version) String() string {
	return string(v)
}

// IsRecognized 判断版本标签是否为已知协议
func (v Version) IsRecognized() bool {
	return v == VersionECv1 || v == VersionRSAv1
}

// CipherSuite 协议版本对应的密码套件
type CipherSuite struct {
	// SymmetricAlgorithm 对称算法名称
	SymmetricAlgorithm string
	// KeyLength 对称密钥长度（字节）
	KeyLength int
	// PublicKeyAlgorithm 签名及密钥协商使用的公钥算法
	PublicKeyAlgorithm x509.PublicKeyAlgorithm
}

// suiteForVersion 返回协议版本要求的密码套件
//
// 版本集合是封闭的：新增协议必须在这里显式补充分支。RSA_v1是
// 已识别但尚未实现的版本，必须显式失败而不是继续执行。
func suiteForVersion(version Version) (CipherSuite, error) {
	switch version {
	case VersionECv1:
		return CipherSuite{
			SymmetricAlgorithm: "AES-256-GCM",
			KeyLength:          32,
			PublicKeyAlgorithm: x509.ECDSA,
		}, nil
	case VersionRSAv1:
		return CipherSuite{}, errorx.NewVersionError(
			fmt.Sprintf("version %s is recognized but not implemented", version))
	default:
		return CipherSuite{}, errorx.NewVersionError(
			fmt.Sprintf("unsupported version: %s", version))
	}
}
