package telebirr

import (
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"strings"
	"testing"
)

func generateKeyPair(t *testing.T) (privPEM, pubPEM string) {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	privPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}))
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM = string(pem.EncodeToMemory(&pem.Block{
		Type:  "PUBLIC KEY",
		Bytes: pubDER,
	}))
	return privPEM, pubPEM
}

func TestFlattenForSign(t *testing.T) {
	envelope := map[string]string{
		"timestamp": "1700000000",
		"nonce_str": "abc",
		"sign":      "should-be-dropped",
		"sign_type": "should-be-dropped",
	}
	bizContent := map[string]string{
		"merch_order_id": "ORDER1",
		"total_amount":   "10.00",
		"header":         "should-be-dropped",
		"refund_info":    "should-be-dropped",
		"openType":       "should-be-dropped",
		"raw_request":    "should-be-dropped",
	}

	flat, err := flattenForSign(envelope, bizContent)
	if err != nil {
		t.Fatalf("flattenForSign: %v", err)
	}

	want := map[string]string{
		"timestamp":      "1700000000",
		"nonce_str":      "abc",
		"merch_order_id": "ORDER1",
		"total_amount":   "10.00",
	}
	if len(flat) != len(want) {
		t.Fatalf("flattened to %d fields, want %d: %v", len(flat), len(want), flat)
	}
	for k, v := range want {
		if flat[k] != v {
			t.Fatalf("flat[%q] = %q, want %q", k, flat[k], v)
		}
	}
}

func TestFlattenForSign_CollisionRejected(t *testing.T) {
	envelope := map[string]string{"timestamp": "1"}
	bizContent := map[string]string{"timestamp": "2"}

	if _, err := flattenForSign(envelope, bizContent); err == nil {
		t.Fatalf("expected collision error for duplicate key")
	}
}

func TestBuildSignString(t *testing.T) {
	got := buildSignString(map[string]string{
		"b": "2",
		"a": "1",
		"c": "hello%20world",
	})
	want := "a=1&b=2&c=hello world"
	if got != want {
		t.Fatalf("buildSignString = %q, want %q", got, want)
	}
}

func TestSignVerify_RoundTrip(t *testing.T) {
	privPEM, pubPEM := generateKeyPair(t)

	signer, err := NewSignerFromPEM(privPEM)
	if err != nil {
		t.Fatalf("NewSignerFromPEM: %v", err)
	}
	verifier, err := NewVerifierFromPEM(pubPEM)
	if err != nil {
		t.Fatalf("NewVerifierFromPEM: %v", err)
	}

	signString := "appid=123&merch_order_id=ORDER1&total_amount=10.00"
	sig, err := signer.Sign(signString)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := verifier.Verify(signString, sig); err != nil {
		t.Fatalf("expected signature to verify: %v", err)
	}
	if err := verifier.Verify(signString+"x", sig); err == nil {
		t.Fatalf("expected tampered payload to fail verification")
	}
	if err := verifier.Verify(signString, "not-base64!!"); err == nil {
		t.Fatalf("expected malformed signature to fail verification")
	}
}

func TestVerify_PKCS1v15Fallback(t *testing.T) {
	privPEM, pubPEM := generateKeyPair(t)

	block, _ := pem.Decode([]byte(privPEM))
	key, err := x509.ParsePKCS1PrivateKey(block.Bytes)
	if err != nil {
		t.Fatalf("parse private key: %v", err)
	}

	signString := "merch_order_id=ORDER1&trade_status=Completed"
	digest := sha256.Sum256([]byte(signString))
	sig, err := rsa.SignPKCS1v15(rand.Reader, key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("SignPKCS1v15: %v", err)
	}

	verifier, err := NewVerifierFromPEM(pubPEM)
	if err != nil {
		t.Fatalf("NewVerifierFromPEM: %v", err)
	}
	if err := verifier.Verify(signString, base64.StdEncoding.EncodeToString(sig)); err != nil {
		t.Fatalf("expected PKCS#1 v1.5 signature to verify via fallback: %v", err)
	}
}

func TestNewSignerFromPEM_EscapedNewlines(t *testing.T) {
	privPEM, _ := generateKeyPair(t)

	escaped := strings.ReplaceAll(privPEM, "\n", `\n`)
	if _, err := NewSignerFromPEM(escaped); err != nil {
		t.Fatalf("expected escaped-newline PEM to parse: %v", err)
	}
}

func TestNonceString(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 32; i++ {
		nonce, err := nonceString(32)
		if err != nil {
			t.Fatalf("nonceString: %v", err)
		}
		if len(nonce) != 32 {
			t.Fatalf("nonce length = %d, want 32", len(nonce))
		}
		for _, r := range nonce {
			if !strings.ContainsRune(nonceChars, r) {
				t.Fatalf("nonce contains unexpected character %q", r)
			}
		}
		if seen[nonce] {
			t.Fatalf("nonce repeated: %s", nonce)
		}
		seen[nonce] = true
	}
}
