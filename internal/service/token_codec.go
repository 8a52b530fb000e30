package service

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"
)

// ErrTokenSecretMissing se devuelve al construir el codec sin secreto. Es un
// error fatal de arranque: sin secreto no se puede derivar ningún token.
var ErrTokenSecretMissing = errors.New("token secret missing")

const rawTokenBytes = 32

// TokenCodec genera tokens opacos de alta entropía y deriva de cada uno un
// hash de búsqueda determinista. El valor crudo nunca se persiste.
type TokenCodec struct {
	secret []byte
}

func NewTokenCodec(secret string) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, ErrTokenSecretMissing
	}
	return &TokenCodec{secret: []byte(secret)}, nil
}

// Generate produce un token URL-safe con 256 bits de entropía.
func (c *TokenCodec) Generate() (string, error) {
	buf := make([]byte, rawTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash deriva el hash de búsqueda con HMAC-SHA256 sobre el secreto del
// proceso. El mismo token crudo siempre produce el mismo hash dentro de un
// despliegue, lo que permite buscar por igualdad sin guardar el valor crudo.
func (c *TokenCodec) Hash(rawToken string) string {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write([]byte(rawToken))
	return hex.EncodeToString(mac.Sum(nil))
}
