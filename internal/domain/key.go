package domain

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"fmt"
	"math/big"
	"time"
)

// OAEPOverhead はOAEP(SHA-256)によるオーバーヘッド（2*hLen+2 バイト）。
// 平文の最大長は鍵長（バイト）からこの値を引いたものになる。
const OAEPOverhead = 42

// SessionKeyPair は1回のACTIVEセッションに紐づく非対称鍵ペアを表す。
// 秘密鍵はこの構造体の外に出さず、セッション終了時にZeroizeで破棄する。
type SessionKeyPair struct {
	private     *rsa.PrivateKey
	bits        int
	fingerprint string
	createdAt   time.Time
}

// KeyMetadata はセッション鍵のメタデータを表す（秘密鍵材料を含まない）。
type KeyMetadata struct {
	Fingerprint string
	Bits        int
	CreatedAt   time.Time
}

// GenerateSessionKeyPair は新しいセッション鍵ペアを生成する。
// 鍵長は2048または4096ビットのみ許可する。
func GenerateSessionKeyPair(bits int) (*SessionKeyPair, error) {
	if bits != 2048 && bits != 4096 {
		return nil, fmt.Errorf("%w: %d bits", ErrInvalidKeyBits, bits)
	}

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key pair: %w", err)
	}

	spki, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	sum := sha256.Sum256(spki)

	return &SessionKeyPair{
		private:     priv,
		bits:        bits,
		fingerprint: hex.EncodeToString(sum[:]),
		createdAt:   time.Now().UTC(),
	}, nil
}

// Metadata はメタデータのコピーを返す。
func (k *SessionKeyPair) Metadata() KeyMetadata {
	return KeyMetadata{
		Fingerprint: k.fingerprint,
		Bits:        k.bits,
		CreatedAt:   k.createdAt,
	}
}

// Fingerprint は公開鍵(SubjectPublicKeyInfo)のSHA-256フィンガープリントを返す。
func (k *SessionKeyPair) Fingerprint() string {
	return k.fingerprint
}

// Bits は鍵長（ビット）を返す。
func (k *SessionKeyPair) Bits() int {
	return k.bits
}

// CreatedAt は鍵の生成時刻を返す。
func (k *SessionKeyPair) CreatedAt() time.Time {
	return k.createdAt
}

// MaxPlaintext はOAEPで暗号化できる平文の最大長（バイト）を返す。
// 2048ビット鍵で214バイト、4096ビット鍵で470バイト。
func (k *SessionKeyPair) MaxPlaintext() int {
	return k.bits/8 - OAEPOverhead
}

// PublicKeyPEM は公開鍵をPEM(SubjectPublicKeyInfo)形式で返す。
func (k *SessionKeyPair) PublicKeyPEM() ([]byte, error) {
	if k.private == nil {
		return nil, ErrNoActiveSession
	}
	spki, err := x509.MarshalPKIXPublicKey(&k.private.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: spki,
	}), nil
}

// PublicKeyBase64 はPEM形式の公開鍵をBase64エンコードして返す。
// プラットフォームへ送信するワイヤ形式。
func (k *SessionKeyPair) PublicKeyBase64() (string, error) {
	pemBytes, err := k.PublicKeyPEM()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pemBytes), nil
}

// Encrypt は公開鍵でOAEP(SHA-256)暗号化する。テストおよび検証用。
// プラットフォーム側の暗号化と同じパラメータ（ラベルなし）を使う。
func (k *SessionKeyPair) Encrypt(plaintext []byte) ([]byte, error) {
	if k.private == nil {
		return nil, ErrNoActiveSession
	}
	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, &k.private.PublicKey, plaintext, nil)
	if err != nil {
		return nil, fmt.Errorf("encrypting with session public key: %w", err)
	}
	return ciphertext, nil
}

// Decrypt は秘密鍵でOAEP(SHA-256)復号する。
// 鍵が一致しない・暗号文が壊れている場合はErrDecryptionFailedを返す。
func (k *SessionKeyPair) Decrypt(ciphertext []byte) ([]byte, error) {
	if k.private == nil {
		return nil, fmt.Errorf("%w: key material destroyed", ErrDecryptionFailed)
	}
	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, k.private, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}

// Zeroize は秘密鍵材料をメモリ上で上書きしてから破棄する。
// 参照を外すだけでは不十分なため、素数・秘密指数・CRT値をすべてゼロ埋めする。
// 二重呼び出しは無害。
func (k *SessionKeyPair) Zeroize() {
	if k.private == nil {
		return
	}
	zeroBigInt(k.private.D)
	for _, p := range k.private.Primes {
		zeroBigInt(p)
	}
	zeroBigInt(k.private.Precomputed.Dp)
	zeroBigInt(k.private.Precomputed.Dq)
	zeroBigInt(k.private.Precomputed.Qinv)
	for i := range k.private.Precomputed.CRTValues {
		zeroBigInt(k.private.Precomputed.CRTValues[i].Exp)
		zeroBigInt(k.private.Precomputed.CRTValues[i].Coeff)
		zeroBigInt(k.private.Precomputed.CRTValues[i].R)
	}
	k.private = nil
}

func zeroBigInt(x *big.Int) {
	if x == nil {
		return
	}
	bits := x.Bits()
	for i := range bits {
		bits[i] = 0
	}
	x.SetInt64(0)
}
