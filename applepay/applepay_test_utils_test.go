package applepay

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/godrealms/go-apple-sdk/utils/logs"
)

type roundTripperFunc func(*http.Request) (*http.Response, error)

func (rt roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return rt(req)
}

var testTransportMu sync.Mutex

func withStubbedDefaultTransport(t *testing.T, rt http.RoundTripper, fn func()) {
	t.Helper()
	testTransportMu.Lock()
	orig := http.DefaultTransport
	http.DefaultTransport = rt
	t.Cleanup(func() {
		http.DefaultTransport = orig
		testTransportMu.Unlock()
	})

	fn()
}

func responseWithBody(t *testing.T, status int, body string) *http.Response {
	t.Helper()

	return &http.Response{
		StatusCode: status,
		Body:       io.NopCloser(strings.NewReader(body)),
		Header:     http.Header{"Content-Type": []string{"application/octet-stream"}},
	}
}

func newECKeyPair(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate ecdsa key: %v", err)
	}

	return key
}

func ecPrivateKeyPEM(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()

	bytes, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatalf("marshal EC private key: %v", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: bytes})
}

func ecPrivateKeyPKCS8PEM(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()

	bytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		t.Fatalf("marshal PKCS8 private key: %v", err)
	}

	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: bytes})
}

func rsaPrivateKeyPEM(t *testing.T, key *rsa.PrivateKey) []byte {
	t.Helper()

	return pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
}

func certificatePEM(t *testing.T, cert *x509.Certificate) []byte {
	t.Helper()

	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})
}

// 证书角色标记OID的测试端定义
var (
	testLeafMarkerOID         = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 29}
	testIntermediateMarkerOID = asn1.ObjectIdentifier{1, 2, 840, 113635, 100, 6, 2, 14}
)

func markerExtension(oid asn1.ObjectIdentifier) pkix.Extension {
	return pkix.Extension{Id: oid, Value: []byte{0x05, 0x00}}
}

type testChain struct {
	rootKey         *ecdsa.PrivateKey
	intermediateKey *ecdsa.PrivateKey
	leafKey         *ecdsa.PrivateKey
	root            *x509.Certificate
	intermediate    *x509.Certificate
	leaf            *x509.Certificate
}

func createCertificate(t *testing.T, template, parent *x509.Certificate, pub interface{}, parentKey *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()

	der, err := x509.CreateCertificate(rand.Reader, template, parent, pub, parentKey)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse created certificate: %v", err)
	}

	return cert
}

func newTestCertChain(t *testing.T) *testChain {
	t.Helper()
	return newTestCertChainAt(t, time.Now().Add(-time.Hour), time.Now().Add(24*time.Hour))
}

// newTestCertChainAt 构造根、中间、叶子三级证书链，中间与叶子带
// 各自的角色标记扩展，根不带任何标记
func newTestCertChainAt(t *testing.T, notBefore, notAfter time.Time) *testChain {
	t.Helper()

	chain := &testChain{
		rootKey:         newECKeyPair(t),
		intermediateKey: newECKeyPair(t),
		leafKey:         newECKeyPair(t),
	}

	rootTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "Test Root CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
	}
	chain.root = createCertificate(t, rootTemplate, rootTemplate, &chain.rootKey.PublicKey, chain.rootKey)

	intermediateTemplate := &x509.Certificate{
		SerialNumber:          big.NewInt(2),
		Subject:               pkix.Name{CommonName: "Test Intermediate CA"},
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtraExtensions:       []pkix.Extension{markerExtension(testIntermediateMarkerOID)},
	}
	chain.intermediate = createCertificate(t, intermediateTemplate, chain.root, &chain.intermediateKey.PublicKey, chain.rootKey)

	leafTemplate := &x509.Certificate{
		SerialNumber:    big.NewInt(3),
		Subject:         pkix.Name{CommonName: "Test Leaf"},
		NotBefore:       notBefore,
		NotAfter:        notAfter,
		KeyUsage:        x509.KeyUsageDigitalSignature,
		ExtraExtensions: []pkix.Extension{markerExtension(testLeafMarkerOID)},
	}
	chain.leaf = createCertificate(t, leafTemplate, chain.intermediate, &chain.leafKey.PublicKey, chain.intermediateKey)

	return chain
}

var testOIDEcdsaWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}

type issuerAndSerial struct {
	Issuer asn1.RawValue
	Serial *big.Int
}

// setOf 把单个值包装成DER SET OF，仅支持短形式长度
func setOf(t *testing.T, v interface{}) asn1.RawValue {
	t.Helper()

	inner, err := asn1.Marshal(v)
	if err != nil {
		t.Fatalf("marshal set element: %v", err)
	}
	if len(inner) > 127 {
		t.Fatalf("set element too long: %d", len(inner))
	}

	full := append([]byte{0x31, byte(len(inner))}, inner...)
	return asn1.RawValue{FullBytes: full}
}

func makeSignedAttrs(t *testing.T, content []byte, signingTime time.Time, includeSigningTime bool) []attribute {
	t.Helper()

	contentDigest := sha256.Sum256(content)
	attrs := []attribute{
		{Type: oidAttributeContentType, Values: setOf(t, oidData)},
	}
	if includeSigningTime {
		attrs = append(attrs, attribute{
			Type:   oidAttributeSigningTime,
			Values: setOf(t, signingTime.UTC().Truncate(time.Second)),
		})
	}
	attrs = append(attrs, attribute{Type: oidAttributeDigest, Values: setOf(t, contentDigest[:])})

	return attrs
}

// signAttrs 按RFC 5652以SET形式编码已认证属性并对其摘要签名
func signAttrs(t *testing.T, key *ecdsa.PrivateKey, attrs []attribute) []byte {
	t.Helper()

	setBytes, err := asn1.MarshalWithParams(attrs, "set")
	if err != nil {
		t.Fatalf("marshal signed attributes: %v", err)
	}

	digest := sha256.Sum256(setBytes)
	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatalf("sign attributes: %v", err)
	}

	return signature
}

func makeSignerInfo(t *testing.T, cert *x509.Certificate, key *ecdsa.PrivateKey, content []byte, attrs []attribute) signerInfoASN1 {
	t.Helper()

	sidDER, err := asn1.Marshal(issuerAndSerial{
		Issuer: asn1.RawValue{FullBytes: cert.RawIssuer},
		Serial: cert.SerialNumber,
	})
	if err != nil {
		t.Fatalf("marshal signer identifier: %v", err)
	}

	si := signerInfoASN1{
		Version:            1,
		SID:                asn1.RawValue{FullBytes: sidDER},
		DigestAlgorithm:    pkix.AlgorithmIdentifier{Algorithm: oidDigestSHA256},
		SignatureAlgorithm: pkix.AlgorithmIdentifier{Algorithm: testOIDEcdsaWithSHA256},
	}

	if attrs != nil {
		si.SignedAttrs = attrs
		si.Signature = signAttrs(t, key, attrs)
		return si
	}

	// 无已认证属性时直接对内容摘要签名
	digest := sha256.Sum256(content)
	signature, err := ecdsa.SignASN1(rand.Reader, key, digest[:])
	if err != nil {
		t.Fatalf("sign content: %v", err)
	}
	si.Signature = signature

	return si
}

func assembleSignedData(t *testing.T, certs []*x509.Certificate, signers []signerInfoASN1) []byte {
	t.Helper()

	var rawCerts []asn1.RawValue
	for _, cert := range certs {
		rawCerts = append(rawCerts, asn1.RawValue{FullBytes: cert.Raw})
	}

	sd := signedDataASN1{
		Version: 1,
		DigestAlgorithms: []pkix.AlgorithmIdentifier{
			{Algorithm: oidDigestSHA256},
		},
		EncapContentInfo: encapContentInfo{EContentType: oidData},
		Certificates:     rawCerts,
		SignerInfos:      signers,
	}

	sdDER, err := asn1.Marshal(sd)
	if err != nil {
		t.Fatalf("marshal SignedData: %v", err)
	}

	ci := contentInfo{
		ContentType: oidSignedData,
		Content: asn1.RawValue{
			Class:      asn1.ClassContextSpecific,
			Tag:        0,
			IsCompound: true,
			Bytes:      sdDER,
		},
	}

	der, err := asn1.Marshal(ci)
	if err != nil {
		t.Fatalf("marshal ContentInfo: %v", err)
	}

	return der
}

// buildSignedData 构造单签名者、内嵌证书的分离式CMS SignedData
func buildSignedData(t *testing.T, cert *x509.Certificate, key *ecdsa.PrivateKey, certs []*x509.Certificate, content []byte, signingTime time.Time) []byte {
	t.Helper()

	attrs := makeSignedAttrs(t, content, signingTime, true)
	signer := makeSignerInfo(t, cert, key, content, attrs)

	return assembleSignedData(t, certs, []signerInfoASN1{signer})
}

// sealPayload 按协议形态加密负载：AES-256-GCM、16字节全零Nonce、
// 空AAD，返回密文与认证标签的拼接
func sealPayload(t *testing.T, key, plaintext []byte) []byte {
	t.Helper()

	block, err := aes.NewCipher(key)
	if err != nil {
		t.Fatalf("create cipher: %v", err)
	}

	gcm, err := cipher.NewGCMWithNonceSize(block, gcmNonceSize)
	if err != nil {
		t.Fatalf("create gcm: %v", err)
	}

	return gcm.Seal(nil, make([]byte, gcmNonceSize), plaintext, nil)
}

const testTransactionIDHex = "6eb45e5d3e4e"

// newPaymentToken 构造完整的EC_v1 Token并返回派生出的对称密钥
func newPaymentToken(t *testing.T, chain *testChain, merchant *ecdsa.PrivateKey, merchantID string, plaintext []byte, signingTime time.Time) (*PKPaymentToken, []byte) {
	t.Helper()

	ephemeral := newECKeyPair(t)

	shared, err := ecdheSharedSecret(&merchant.PublicKey, ephemeral)
	if err != nil {
		t.Fatalf("compute shared secret: %v", err)
	}
	merchantHash := sha256.Sum256([]byte(merchantID))
	key := deriveEncryptionKey(shared, merchantHash[:])

	payload := sealPayload(t, key, plaintext)

	ephemeralDER, err := x509.MarshalPKIXPublicKey(&ephemeral.PublicKey)
	if err != nil {
		t.Fatalf("marshal ephemeral public key: %v", err)
	}

	transactionID, err := hex.DecodeString(testTransactionIDHex)
	if err != nil {
		t.Fatalf("decode transaction id: %v", err)
	}

	content := make([]byte, 0, len(ephemeralDER)+len(payload)+len(transactionID))
	content = append(content, ephemeralDER...)
	content = append(content, payload...)
	content = append(content, transactionID...)

	signature := buildSignedData(t, chain.leaf, chain.leafKey,
		[]*x509.Certificate{chain.leaf, chain.intermediate, chain.root}, content, signingTime)

	merchantPubDER, err := x509.MarshalPKIXPublicKey(&merchant.PublicKey)
	if err != nil {
		t.Fatalf("marshal merchant public key: %v", err)
	}
	pubKeyHash := sha256.Sum256(merchantPubDER)

	token := &PKPaymentToken{
		PaymentData: PaymentData{
			Version:   string(VersionECv1),
			Data:      base64.StdEncoding.EncodeToString(payload),
			Signature: base64.StdEncoding.EncodeToString(signature),
			Header: Header{
				EphemeralPublicKey: base64.StdEncoding.EncodeToString(ephemeralDER),
				PublicKeyHash:      base64.StdEncoding.EncodeToString(pubKeyHash[:]),
				TransactionID:      testTransactionIDHex,
			},
		},
	}

	return token, key
}

func testPaymentDataJSON() []byte {
	return []byte(`{
		"applicationPrimaryAccountNumber": "4109370251004320",
		"applicationExpirationDate": "270930",
		"currencyCode": "840",
		"transactionAmount": 100,
		"deviceManufacturerIdentifier": "040010030273",
		"paymentDataType": "3DSecure",
		"paymentData": {
			"onlinePaymentCryptogram": "QW0rM2RzZWN1cmU=",
			"eciIndicator": "7"
		}
	}`)
}

func newTestHandler(t *testing.T, chain *testChain, merchant *ecdsa.PrivateKey, merchantID string) *TokenHandler {
	t.Helper()

	cfg := DefaultConfig()
	cfg.MerchantID = merchantID

	km := &KeyManager{
		config:          cfg,
		logger:          logs.NewNopLogger(),
		privateKey:      merchant,
		rootCertificate: chain.root,
	}

	handler, err := NewTokenHandler(cfg, km, logs.NewNopLogger())
	if err != nil {
		t.Fatalf("create token handler: %v", err)
	}

	return handler
}
