package telebirr

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"math/big"
	"net/url"
	"sort"
	"strings"
)

// SignType is the fixed signature-type label the gateway expects. It is
// transmitted alongside the signature but never part of the signed string.
const SignType = "SHA256WithRSA"

// signExcludedFields are never part of the signing string. The set matches
// the gateway protocol: signature fields plus envelope wrappers.
var signExcludedFields = map[string]struct{}{
	"sign":        {},
	"sign_type":   {},
	"header":      {},
	"refund_info": {},
	"openType":    {},
	"raw_request": {},
}

// flattenForSign hoists every biz_content key into the same flat namespace
// as the envelope fields, dropping the excluded set. A key present in both
// the envelope and biz_content is rejected outright instead of letting map
// iteration order decide which value gets signed.
func flattenForSign(envelope, bizContent map[string]string) (map[string]string, error) {
	flat := make(map[string]string, len(envelope)+len(bizContent))
	for k, v := range envelope {
		if _, skip := signExcludedFields[k]; skip {
			continue
		}
		flat[k] = v
	}
	for k, v := range bizContent {
		if _, skip := signExcludedFields[k]; skip {
			continue
		}
		if _, dup := flat[k]; dup {
			return nil, fmt.Errorf("signing field collision: %q present in both envelope and biz_content", k)
		}
		flat[k] = v
	}
	return flat, nil
}

// buildSignString sorts the flattened keys lexicographically, URL-decodes
// each value and joins key=value pairs with '&'.
func buildSignString(flat map[string]string) string {
	keys := make([]string, 0, len(flat))
	for k := range flat {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		v := flat[k]
		if decoded, err := url.QueryUnescape(v); err == nil {
			v = decoded
		}
		pairs = append(pairs, k+"="+v)
	}
	return strings.Join(pairs, "&")
}

// Signer signs canonicalized strings with the merchant's RSA private key.
type Signer struct {
	key *rsa.PrivateKey
}

// NewSignerFromPEM parses a PKCS#1 or PKCS#8 RSA private key. Keys loaded
// from env files often carry literal "\n" sequences; they are normalized.
func NewSignerFromPEM(pemData string) (*Signer, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemData)))
	if block == nil {
		return nil, errors.New("private key is not valid PEM")
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return &Signer{key: key}, nil
	}
	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, errors.New("private key is not RSA")
	}
	return &Signer{key: key}, nil
}

// Sign returns the base64 RSA-PSS/SHA-256 signature with salt length equal
// to the digest length, as the gateway requires.
func (s *Signer) Sign(signString string) (string, error) {
	digest := sha256.Sum256([]byte(signString))
	sig, err := rsa.SignPSS(rand.Reader, s.key, crypto.SHA256, digest[:], &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if err != nil {
		return "", fmt.Errorf("sign payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verifier checks gateway callback signatures with the provider public key.
type Verifier struct {
	key *rsa.PublicKey
}

// NewVerifierFromPEM parses a PKIX or PKCS#1 RSA public key.
func NewVerifierFromPEM(pemData string) (*Verifier, error) {
	block, _ := pem.Decode([]byte(normalizePEM(pemData)))
	if block == nil {
		return nil, errors.New("public key is not valid PEM")
	}

	if parsed, err := x509.ParsePKIXPublicKey(block.Bytes); err == nil {
		if key, ok := parsed.(*rsa.PublicKey); ok {
			return &Verifier{key: key}, nil
		}
		return nil, errors.New("public key is not RSA")
	}
	key, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	return &Verifier{key: key}, nil
}

// Verify checks a base64 RSA/SHA-256 signature over signString. PSS is
// tried first; PKCS#1 v1.5 is accepted as fallback since some gateway
// environments sign callbacks with the older padding.
func (v *Verifier) Verify(signString, signatureB64 string) error {
	sig, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signatureB64))
	if err != nil {
		return fmt.Errorf("decode signature: %w", err)
	}
	digest := sha256.Sum256([]byte(signString))

	pssErr := rsa.VerifyPSS(v.key, crypto.SHA256, digest[:], sig, &rsa.PSSOptions{
		SaltLength: rsa.PSSSaltLengthEqualsHash,
		Hash:       crypto.SHA256,
	})
	if pssErr == nil {
		return nil
	}
	if err := rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], sig); err == nil {
		return nil
	}
	return pssErr
}

func normalizePEM(pemData string) string {
	s := strings.ReplaceAll(pemData, `\n`, "\n")
	return strings.TrimSpace(strings.ReplaceAll(s, "\r\n", "\n"))
}

const nonceChars = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// nonceString returns an n-character alphanumeric token from a
// cryptographically secure source. Requests are replay-protected only as
// far as the nonce is unpredictable, so math/rand is not acceptable here.
func nonceString(n int) (string, error) {
	out := make([]byte, n)
	max := big.NewInt(int64(len(nonceChars)))
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", fmt.Errorf("generate nonce: %w", err)
		}
		out[i] = nonceChars[idx.Int64()]
	}
	return string(out), nil
}
