package mtproto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
)

func testKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestParsePublicKeyPKCS1(t *testing.T) {
	key := testKey(t)
	pemData := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&key.PublicKey),
	})

	parsed, err := ParsePublicKey(string(pemData))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.N.Cmp(key.PublicKey.N) != 0 {
		t.Fatal("parsed key does not match")
	}
}

func TestParsePublicKeyPKIX(t *testing.T) {
	key := testKey(t)
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	pemData := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	parsed, err := ParsePublicKey(string(pemData))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if parsed.E != key.PublicKey.E {
		t.Fatal("parsed key does not match")
	}
}

func TestParsePublicKeyRejectsGarbage(t *testing.T) {
	if _, err := ParsePublicKey("not a pem"); err == nil {
		t.Fatal("expected an error for non-PEM input")
	}
	if _, err := ParsePublicKey("-----BEGIN PUBLIC KEY-----\nYWJj\n-----END PUBLIC KEY-----\n"); err == nil {
		t.Fatal("expected an error for invalid DER")
	}
}
