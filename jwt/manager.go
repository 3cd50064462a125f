package jwt

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// SigningMethod selects the access-token signature algorithm.
type SigningMethod string

const (
	MethodEd25519 SigningMethod = "ed25519"
	MethodHS256   SigningMethod = "hs256"
)

// Config configures a Manager. For Ed25519 the private key may be omitted,
// giving a verify-only Manager.
type Config struct {
	AccessTTL     time.Duration
	SigningMethod SigningMethod
	PrivateKey    []byte
	PublicKey     []byte
	Issuer        string
	Audience      string
	Leeway        time.Duration
}

// Grant describes one access token to issue. A zero TTL uses the
// configured AccessTTL.
type Grant struct {
	Subject    string
	SessionID  string
	Generation uint64
	TTL        time.Duration
}

// AccessClaims are the claims carried by an issued access token. Generation
// lets a server invalidate every token issued before a point in time.
type AccessClaims struct {
	SID        string `json:"sid"`
	Generation uint64 `json:"gen"`
	jwt.RegisteredClaims
}

// Manager issues and verifies access tokens for servers the pipeline
// talks to. Keys are parsed once, at construction.
type Manager struct {
	ttl      time.Duration
	issuer   string
	audience string

	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	parser    *jwt.Parser
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg Config) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}

	m := &Manager{
		ttl:      cfg.AccessTTL,
		issuer:   cfg.Issuer,
		audience: cfg.Audience,
	}

	switch cfg.SigningMethod {
	case MethodHS256:
		if len(cfg.PrivateKey) == 0 {
			return nil, errors.New("hs256 requires private key")
		}
		m.method = jwt.SigningMethodHS256
		m.signKey = cfg.PrivateKey
		m.verifyKey = cfg.PrivateKey
	case MethodEd25519:
		if len(cfg.PublicKey) == 0 {
			return nil, errors.New("ed25519 requires public key")
		}
		pub, err := parseEdPublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		m.method = jwt.SigningMethodEdDSA
		m.verifyKey = pub
		if len(cfg.PrivateKey) > 0 {
			priv, err := parseEdPrivateKey(cfg.PrivateKey)
			if err != nil {
				return nil, err
			}
			m.signKey = priv
		}
	default:
		return nil, errors.New("unsupported signing method")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{m.method.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Leeway > 0 {
		options = append(options, jwt.WithLeeway(cfg.Leeway))
	}
	if cfg.Issuer != "" {
		options = append(options, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		options = append(options, jwt.WithAudience(cfg.Audience))
	}
	m.parser = jwt.NewParser(options...)

	return m, nil
}

// TTL returns the configured access-token lifetime.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Issue signs an access token for g. Every token gets a fresh jti, so two
// grants issued in the same second still differ.
func (m *Manager) Issue(g Grant) (string, error) {
	if m.signKey == nil {
		return "", errors.New("manager has no signing key")
	}
	ttl := g.TTL
	if ttl == 0 {
		ttl = m.ttl
	}

	now := time.Now()
	claims := AccessClaims{
		SID:        g.SessionID,
		Generation: g.Generation,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   g.Subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    m.issuer,
		},
	}
	if m.audience != "" {
		claims.Audience = jwt.ClaimStrings{m.audience}
	}
	return jwt.NewWithClaims(m.method, claims).SignedString(m.signKey)
}

// Verify checks signature, algorithm, expiry, issuer and audience.
func (m *Manager) Verify(token string) (*AccessClaims, error) {
	parsed, err := m.parser.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != m.method.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}
		return m.verifyKey, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid {
		return nil, jwt.ErrTokenInvalidClaims
	}
	return claims, nil
}

func parseEdPrivateKey(key []byte) (ed25519.PrivateKey, error) {
	if len(key) == ed25519.PrivateKeySize {
		return ed25519.PrivateKey(key), nil
	}
	parsed, err := jwt.ParseEdPrivateKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 private key")
	}
	edKey, ok := parsed.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("invalid ed25519 private key type")
	}
	return edKey, nil
}

func parseEdPublicKey(key []byte) (ed25519.PublicKey, error) {
	if len(key) == ed25519.PublicKeySize {
		return ed25519.PublicKey(key), nil
	}
	parsed, err := jwt.ParseEdPublicKeyFromPEM(key)
	if err != nil {
		return nil, errors.New("invalid ed25519 public key")
	}
	edKey, ok := parsed.(ed25519.PublicKey)
	if !ok {
		return nil, errors.New("invalid ed25519 public key type")
	}
	return edKey, nil
}
