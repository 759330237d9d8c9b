// Package token implements capability tokens: an offline-verifiable,
// attenuable credential carrying a role claim and an optional tenant
// claim. A token is a chain of Ed25519-signed blocks; block zero is
// signed by a well-known root key and carries the role fact plus a
// delegation public key. Each attenuation step adds one more block,
// signed by the private key matching the previous block's delegation
// key, and may add a tenant fact. Verification walks the chain from the
// root public key and never touches the network or a store.
package token

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// ErrorKind is the closed set of token verification failures.
type ErrorKind int

const (
	Malformed ErrorKind = iota
	BadSignature
	Expired
	ClaimsConflict
)

func (k ErrorKind) String() string {
	switch k {
	case Malformed:
		return "malformed"
	case BadSignature:
		return "bad_signature"
	case Expired:
		return "expired"
	case ClaimsConflict:
		return "claims_conflict"
	default:
		return "unknown"
	}
}

// Error is the typed error returned by Verify and Attenuate.
type Error struct {
	Kind ErrorKind
	Msg  string
}

func (e *Error) Error() string { return fmt.Sprintf("token: %s: %s", e.Kind, e.Msg) }

func newErr(kind ErrorKind, msg string) *Error { return &Error{Kind: kind, Msg: msg} }

// Claims is the result of a successful verification.
type Claims struct {
	Role      string
	Tenant    string // empty if not present
	HasTenant bool
	ExpiresAt *time.Time // nil if no block carried an expiry
}

// blockPayload is the signed content of one block. Field order is
// load-bearing: encoding/json marshals struct fields in declaration
// order, which is what makes this a stable signing input.
type blockPayload struct {
	Role      string     `json:"role,omitempty"`
	Tenant    string     `json:"tenant,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	NextKey   []byte     `json:"next_key"`
}

type signedBlock struct {
	Payload   blockPayload `json:"payload"`
	Signature []byte       `json:"signature"`
}

// wireToken is the full serialized form. DelegationKey is the private
// key matching the last block's NextKey; it rides along unverified so
// the holder can attenuate without the root private key. It carries no
// authority on its own — Verify never reads it.
type wireToken struct {
	Blocks        []signedBlock `json:"blocks"`
	DelegationKey []byte        `json:"delegation_key,omitempty"`
}

func canonicalize(p blockPayload) []byte {
	b, err := json.Marshal(p)
	if err != nil {
		panic(fmt.Sprintf("token: payload must always marshal: %v", err))
	}
	return b
}

func encode(w wireToken) []byte {
	b, err := json.Marshal(w)
	if err != nil {
		panic(fmt.Sprintf("token: wire token must always marshal: %v", err))
	}
	return []byte(base64.StdEncoding.EncodeToString(b))
}

func decode(tokenBytes []byte) (wireToken, error) {
	raw, err := base64.StdEncoding.DecodeString(string(tokenBytes))
	if err != nil {
		return wireToken{}, newErr(Malformed, "not valid base64")
	}
	var w wireToken
	if err := json.Unmarshal(raw, &w); err != nil {
		return wireToken{}, newErr(Malformed, "not valid token JSON")
	}
	if len(w.Blocks) == 0 {
		return wireToken{}, newErr(Malformed, "token has no blocks")
	}
	return w, nil
}

// Mint produces a new role token: a single block, signed by rootPriv,
// naming role and expiring after ttl (zero ttl means no expiration).
func Mint(rootPriv ed25519.PrivateKey, role string, ttl time.Duration) ([]byte, error) {
	if role == "" {
		return nil, newErr(Malformed, "role must not be empty")
	}
	nextPub, nextPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generating delegation key: %w", err)
	}
	payload := blockPayload{Role: role, NextKey: nextPub}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		payload.ExpiresAt = &exp
	}
	sig := ed25519.Sign(rootPriv, canonicalize(payload))
	w := wireToken{
		Blocks:        []signedBlock{{Payload: payload, Signature: sig}},
		DelegationKey: nextPriv,
	}
	return encode(w), nil
}

// Attenuate extends parentToken with one more block naming tenant,
// expiring after ttl from now (the effective expiry is the minimum
// across the whole chain — see Verify). It requires the delegation
// private key embedded in parentToken and fails if that token cannot
// be attenuated further (e.g. it is a raw verification result, not a
// token holder's own serialized token).
func Attenuate(parentToken []byte, tenant string, ttl time.Duration) ([]byte, error) {
	w, err := decode(parentToken)
	if err != nil {
		return nil, err
	}
	if len(w.DelegationKey) != ed25519.PrivateKeySize {
		return nil, newErr(Malformed, "token cannot be attenuated: no delegation key")
	}
	last := w.Blocks[len(w.Blocks)-1]
	signerPriv := ed25519.PrivateKey(w.DelegationKey)
	signerPub := signerPriv.Public().(ed25519.PublicKey)
	if len(last.Payload.NextKey) != ed25519.PublicKeySize || !signerPub.Equal(ed25519.PublicKey(last.Payload.NextKey)) {
		return nil, newErr(Malformed, "delegation key does not match last block")
	}

	// I1/T2: the new block may only narrow. Tenant must agree with any
	// tenant already present in the chain.
	for _, b := range w.Blocks {
		if b.Payload.Tenant != "" && tenant != "" && b.Payload.Tenant != tenant {
			return nil, newErr(ClaimsConflict, "tenant disagrees with an existing block")
		}
	}

	nextPub, nextPriv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generating delegation key: %w", err)
	}
	payload := blockPayload{Tenant: tenant, NextKey: nextPub}
	if ttl > 0 {
		exp := time.Now().Add(ttl)
		payload.ExpiresAt = &exp
	}
	sig := ed25519.Sign(signerPriv, canonicalize(payload))

	blocks := make([]signedBlock, len(w.Blocks), len(w.Blocks)+1)
	copy(blocks, w.Blocks)
	blocks = append(blocks, signedBlock{Payload: payload, Signature: sig})

	out := wireToken{Blocks: blocks, DelegationKey: nextPriv}
	return encode(out), nil
}

// Verify walks the signature chain from rootPub and returns the
// accumulated claims. It is a pure function of (rootPub, tokenBytes,
// clock) — no network, no storage.
func Verify(rootPub ed25519.PublicKey, tokenBytes []byte) (Claims, error) {
	w, err := decode(tokenBytes)
	if err != nil {
		return Claims{}, err
	}

	currentKey := rootPub
	var claims Claims
	var roleSet, tenantSet bool

	for i, b := range w.Blocks {
		if !ed25519.Verify(currentKey, canonicalize(b.Payload), b.Signature) {
			return Claims{}, newErr(BadSignature, "signature chain broken")
		}
		if i == 0 {
			if b.Payload.Role == "" {
				return Claims{}, newErr(Malformed, "first block missing role fact")
			}
			claims.Role = b.Payload.Role
			roleSet = true
		} else if b.Payload.Role != "" {
			return Claims{}, newErr(Malformed, "role fact only allowed in first block")
		}

		if b.Payload.Tenant != "" {
			if tenantSet && claims.Tenant != b.Payload.Tenant {
				return Claims{}, newErr(ClaimsConflict, "conflicting tenant facts across blocks")
			}
			claims.Tenant = b.Payload.Tenant
			claims.HasTenant = true
			tenantSet = true
		}

		if b.Payload.ExpiresAt != nil {
			if claims.ExpiresAt == nil || b.Payload.ExpiresAt.Before(*claims.ExpiresAt) {
				claims.ExpiresAt = b.Payload.ExpiresAt
			}
		}

		if len(b.Payload.NextKey) != ed25519.PublicKeySize {
			return Claims{}, newErr(Malformed, "block missing delegation key")
		}
		currentKey = ed25519.PublicKey(b.Payload.NextKey)
	}

	if !roleSet {
		return Claims{}, newErr(Malformed, "token has no role fact")
	}
	if claims.ExpiresAt != nil && time.Now().After(*claims.ExpiresAt) {
		return Claims{}, newErr(Expired, "token expired")
	}
	return claims, nil
}
