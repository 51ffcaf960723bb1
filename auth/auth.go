// Package auth builds the handshake that exchanges the configured credentials
// for a server-issued access token, and tracks that token's lifetime.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/zteradb/zteradb-go/config"
	zterr "github.com/zteradb/zteradb-go/errors"
	"github.com/zteradb/zteradb-go/wire"
)

// ExpiryMargin is how long before the server-reported expiry a token is
// already treated as expired, so a query never rides a token that dies
// mid-stream.
const ExpiryMargin = 15 * time.Minute

const nonceSeedLen = 16

// Handshake is the first frame sent on a fresh connection.
type Handshake struct {
	AccessKey    string           `json:"access_key"`
	ClientKey    string           `json:"client_key"`
	Nonce        string           `json:"nonce"`
	RequestToken string           `json:"request_token"`
	RequestType  wire.RequestType `json:"request_type"`
}

// Token is the server-issued access record carried by an authenticated
// connection.
type Token struct {
	ClientKey   string
	AccessKey   string
	AccessToken string
	ExpiresAt   time.Time // absolute UTC instant
}

// Expired reports whether the token is within ExpiryMargin of, or past, its
// expiry at the given instant.
func (t *Token) Expired(now time.Time) bool {
	return !now.UTC().Before(t.ExpiresAt.Add(-ExpiryMargin))
}

// Authenticator derives handshakes from a fixed set of credentials. One
// instance serves a whole pool; a fresh nonce is generated per handshake.
type Authenticator struct {
	clientKey string
	accessKey string
	secretKey string
}

// New builds an Authenticator from the config's identity fields.
func New(cfg *config.Config) *Authenticator {
	return &Authenticator{
		clientKey: cfg.ClientKey,
		accessKey: cfg.AccessKey,
		secretKey: cfg.SecretKey,
	}
}

// Handshake produces a handshake document with a freshly generated nonce.
func (a *Authenticator) Handshake() (*Handshake, error) {
	seed := make([]byte, nonceSeedLen)
	if _, err := rand.Read(seed); err != nil {
		return nil, zterr.Auth("failed to generate nonce", err)
	}
	return a.handshakeWithSeed(hex.EncodeToString(seed)), nil
}

// handshakeWithSeed is split out so tests can pin the random seed.
func (a *Authenticator) handshakeWithSeed(seedHex string) *Handshake {
	nonce := sha256Hex(seedHex + a.accessKey + a.clientKey)
	return &Handshake{
		AccessKey:    a.accessKey,
		ClientKey:    a.clientKey,
		Nonce:        nonce,
		RequestToken: sha256Hex(a.secretKey + nonce),
		RequestType:  wire.RequestConnect,
	}
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// handshakeReply is the single frame the server answers a handshake with.
// Data is an object on success and a message string on rejection.
type handshakeReply struct {
	Error bool            `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type tokenFields struct {
	ClientKey         string `json:"client_key"`
	AccessKey         string `json:"access_key"`
	AccessToken       string `json:"access_token"`
	AccessTokenExpire string `json:"access_token_expire"`
}

// ParseReply decodes the handshake response body into a Token. A truthy
// error field is an authentication rejection; a success body missing any
// token field is a value error.
func ParseReply(body []byte) (*Token, error) {
	var reply handshakeReply
	if err := wire.DecodeJSON(body, &reply); err != nil {
		return nil, err
	}

	if reply.Error {
		var msg string
		if err := json.Unmarshal(reply.Data, &msg); err != nil {
			msg = string(reply.Data)
		}
		return nil, zterr.Auth(msg, nil)
	}

	var fields tokenFields
	if err := wire.DecodeJSON(reply.Data, &fields); err != nil {
		return nil, err
	}
	if fields.ClientKey == "" || fields.AccessKey == "" ||
		fields.AccessToken == "" || fields.AccessTokenExpire == "" {
		return nil, zterr.Value("handshake reply is missing token fields")
	}

	expires, err := parseExpiry(fields.AccessTokenExpire)
	if err != nil {
		return nil, err
	}

	return &Token{
		ClientKey:   fields.ClientKey,
		AccessKey:   fields.AccessKey,
		AccessToken: fields.AccessToken,
		ExpiresAt:   expires,
	}, nil
}

func parseExpiry(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	// Servers omit the zone designator on some builds; those timestamps
	// are UTC.
	if t, err := time.Parse("2006-01-02T15:04:05", s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, zterr.Value("invalid access_token_expire timestamp %q", s)
}
