package applepay

import (
	"bytes"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/godrealms/go-apple-sdk/applepay/errorx"
)

// CertificateRole 证书在信任链中的角色
type CertificateRole int

const (
	RoleRoot CertificateRole = iota
	RoleIntermediate
	RoleLeaf
)

// String 实现Stringer接口
func (r CertificateRole) String() string {
	switch r {
	case RoleRoot:
		return "root"
	case RoleIntermediate:
		return "intermediate"
	case RoleLeaf:
		return "leaf"
	default:
		return "unknown"
	}
}

// CertificateChain 分类后的证书链
type CertificateChain struct {
	Leaf         *x509.Certificate
	Intermediate *x509.Certificate
	Root         *x509.Certificate
}

// classifyCertificates 按标记OID把内嵌证书划分为叶子、中间和根
//
// 按顺序检查每张证书的扩展：第一个命中的标记OID决定角色并停止
// 检查该证书；两个标记都不存在则视为根。每个角色必须恰好一张，
// 重复与缺失同样非法，因为都意味着证书集合有歧义或被构造过。
func classifyCertificates(certs []*x509.Certificate, intermediateOID, leafOID string) (*CertificateChain, error) {
	chain := &CertificateChain{}
	var leafCount, intermediateCount, rootCount int

	for _, cert := range certs {
		switch certificateRole(cert, intermediateOID, leafOID) {
		case RoleLeaf:
			chain.Leaf = cert
			leafCount++
		case RoleIntermediate:
			chain.Intermediate = cert
			intermediateCount++
		case RoleRoot:
			chain.Root = cert
			rootCount++
		}
	}

	if leafCount != 1 {
		return nil, errorx.NewSignatureError(
			fmt.Sprintf("no unique leaf certificate found (%d candidates)", leafCount), nil)
	}
	if intermediateCount != 1 {
		return nil, errorx.NewSignatureError(
			fmt.Sprintf("no unique intermediate certificate found (%d candidates)", intermediateCount), nil)
	}
	if rootCount != 1 {
		return nil, errorx.NewSignatureError(
			fmt.Sprintf("no unique root certificate found (%d candidates)", rootCount), nil)
	}

	return chain, nil
}

// certificateRole 检查单张证书的扩展并确定角色
func certificateRole(cert *x509.Certificate, intermediateOID, leafOID string) CertificateRole {
	for _, ext := range cert.Extensions {
		// 标记OID存在即确定角色，扩展值不参与判断
		switch ext.Id.String() {
		case intermediateOID:
			return RoleIntermediate
		case leafOID:
			return RoleLeaf
		}
	}
	return RoleRoot
}

// verifyChain 按固定顺序证明根到叶子的信任链，证书有效期以显式
// 传入的当前时间判定
//
// 顺序不可调整：中间证书必须先通过仅含信任锚的存储校验，之后才能
// 加入存储，否则伪造但可入库的中间证书会藏进一个表面有效的存储。
// 每一步失败都终止并指明断开的链环。
func verifyChain(anchor *x509.Certificate, chain *CertificateChain, now time.Time) error {
	// 第一步：根证书必须与配置的信任锚逐字节一致。这是固定信任锚
	// 检查而非签名检查，结构上有效的自签名证书不能通过。
	if !bytes.Equal(chain.Root.Raw, anchor.Raw) {
		return errorx.NewSignatureError("invalid chain due to root: does not match trusted root certificate", nil)
	}

	// 第二步：建立仅含信任锚的存储，确认信任锚自身作为根结构有效
	rootPool := x509.NewCertPool()
	rootPool.AddCert(anchor)

	if _, err := chain.Root.Verify(x509.VerifyOptions{
		Roots:       rootPool,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		CurrentTime: now,
	}); err != nil {
		return errorx.NewSignatureError("invalid chain due to root", err)
	}

	// 第三步：用仅含根的存储校验中间证书由根签发
	if _, err := chain.Intermediate.Verify(x509.VerifyOptions{
		Roots:       rootPool,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		CurrentTime: now,
	}); err != nil {
		return errorx.NewSignatureError("invalid chain due to intermediate", err)
	}

	// 第四步：把中间证书永久加入存储，结构性入库失败独立于第三步
	// 的签名失败
	intermediatePool := x509.NewCertPool()
	if err := addToPool(intermediatePool, chain.Intermediate); err != nil {
		return errorx.NewSignatureError("invalid chain due to intermediate", err)
	}

	// 第五步：叶子证书入库
	if err := addToPool(intermediatePool, chain.Leaf); err != nil {
		return errorx.NewSignatureError("invalid chain due to leaf", err)
	}

	// 第六步：用根加中间的完整存储校验叶子
	if _, err := chain.Leaf.Verify(x509.VerifyOptions{
		Roots:         rootPool,
		Intermediates: intermediatePool,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
		CurrentTime:   now,
	}); err != nil {
		return errorx.NewSignatureError("invalid chain due to leaf", err)
	}

	return nil
}

// addToPool 结构性校验后把证书加入存储
func addToPool(pool *x509.CertPool, cert *x509.Certificate) error {
	if cert == nil || len(cert.Raw) == 0 {
		return fmt.Errorf("certificate is empty")
	}
	reparsed, err := x509.ParseCertificate(cert.Raw)
	if err != nil {
		return fmt.Errorf("certificate is malformed: %w", err)
	}
	pool.AddCert(reparsed)
	return nil
}
