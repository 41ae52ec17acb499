package utils // package utils provides crypto helpers shared by the auth and payment flows

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"math/big"
	"strings"
)

// ErrDecrypt is returned when a ciphertext cannot be decrypted: the
// iv:ciphertext delimiter is missing, the hex is malformed or the padding
// does not check out after decryption.
var ErrDecrypt = errors.New("cannot decrypt data")

// otpKey derives the fixed-length AES-128 key from the configured secret.
// SHA-256 then truncate to 16 bytes, so any secret length is accepted.
func otpKey(secret string) []byte {
	sum := sha256.Sum256([]byte(secret))
	return sum[:16]
}

// Encrypt encrypts plain with AES-128-CBC under a key derived from secret.
// A fresh random IV is generated per call and prepended to the result as
// "hex(iv):hex(ciphertext)" so decryption is self contained.  The same input
// therefore never produces the same output twice.
func Encrypt(secret, plain string) (string, error) {
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	block, err := aes.NewCipher(otpKey(secret))
	if err != nil {
		return "", err
	}
	padded := pkcs7Pad([]byte(plain), aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(out, padded)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(out), nil
}

// Decrypt reverses Encrypt.  Any malformed input is reported as ErrDecrypt;
// the caller never sees cipher internals.
func Decrypt(secret, encrypted string) (string, error) {
	ivHex, ctHex, ok := strings.Cut(encrypted, ":")
	if !ok {
		return "", ErrDecrypt
	}
	iv, err := hex.DecodeString(ivHex)
	if err != nil || len(iv) != aes.BlockSize {
		return "", ErrDecrypt
	}
	ct, err := hex.DecodeString(ctHex)
	if err != nil || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrDecrypt
	}
	block, err := aes.NewCipher(otpKey(secret))
	if err != nil {
		return "", err
	}
	out := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(out, ct)
	plain, err := pkcs7Unpad(out, aes.BlockSize)
	if err != nil {
		return "", ErrDecrypt
	}
	return string(plain), nil
}

func pkcs7Pad(b []byte, size int) []byte {
	n := size - len(b)%size
	pad := make([]byte, n)
	for i := range pad {
		pad[i] = byte(n)
	}
	return append(b, pad...)
}

func pkcs7Unpad(b []byte, size int) ([]byte, error) {
	if len(b) == 0 || len(b)%size != 0 {
		return nil, errors.New("invalid padded length")
	}
	n := int(b[len(b)-1])
	if n == 0 || n > size || n > len(b) {
		return nil, errors.New("invalid padding")
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, errors.New("invalid padding")
		}
	}
	return b[:len(b)-n], nil
}

// RandomNDigits returns a uniformly random integer with exactly n decimal
// digits (no leading zero) from a cryptographically secure source.  Used to
// generate OTP codes.
func RandomNDigits(n int) (int, error) {
	min := big.NewInt(1)
	for i := 1; i < n; i++ {
		min.Mul(min, big.NewInt(10))
	}
	// range size is 9*10^(n-1): [10^(n-1), 10^n - 1]
	span := new(big.Int).Mul(min, big.NewInt(9))
	v, err := rand.Int(rand.Reader, span)
	if err != nil {
		return 0, err
	}
	return int(new(big.Int).Add(v, min).Int64()), nil
}

// HMACSign computes the hex encoded HMAC-SHA256 of message under secret.
// It signs the order|payment test string sent to the gateway and is also
// the digest recomputed when authenticating inbound webhooks.
func HMACSign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACValid reports whether signature matches the digest of message under
// secret.  Comparison is constant time over the full digest.
func HMACValid(secret, message, signature string) bool {
	expected := HMACSign(secret, message)
	return hmac.Equal([]byte(expected), []byte(signature))
}
