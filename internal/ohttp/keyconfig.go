// Package ohttp implements the Oblivious HTTP request/response envelope
// (spec §4.6) on top of cloudflare/circl's HPKE primitives: no OHTTP or
// HPKE implementation exists anywhere in the retrieved example pack, so
// circl is the named out-of-pack ecosystem dependency for this concern
// (see DESIGN.md).
package ohttp

import (
	"encoding/base64"
	"fmt"

	"github.com/cloudflare/circl/hpke"
	"github.com/cloudflare/circl/kem"
)

// KeyConfig mirrors the wire key-config structure from spec §4.7:
// {key_id: u8, KEM, KDF, AEAD}.
type KeyConfig struct {
	KeyID uint8
	KEM   hpke.KEM
	KDF   hpke.KDF
	AEAD  hpke.AEAD
}

// ParseKEM maps a config-file KEM name to the circl identifier.
func ParseKEM(name string) (hpke.KEM, error) {
	switch name {
	case "X25519HKDFSHA256", "":
		return hpke.KEM_X25519_HKDF_SHA256, nil
	case "P256HKDFSHA256":
		return hpke.KEM_P256_HKDF_SHA256, nil
	case "P384HKDFSHA384":
		return hpke.KEM_P384_HKDF_SHA384, nil
	default:
		return 0, fmt.Errorf("ohttp: unknown KEM %q", name)
	}
}

// ParseKDF maps a config-file KDF name to the circl identifier.
func ParseKDF(name string) (hpke.KDF, error) {
	switch name {
	case "HKDFSHA256", "":
		return hpke.KDF_HKDF_SHA256, nil
	case "HKDFSHA384":
		return hpke.KDF_HKDF_SHA384, nil
	case "HKDFSHA512":
		return hpke.KDF_HKDF_SHA512, nil
	default:
		return 0, fmt.Errorf("ohttp: unknown KDF %q", name)
	}
}

// ParseAEAD maps a config-file AEAD name to the circl identifier.
func ParseAEAD(name string) (hpke.AEAD, error) {
	switch name {
	case "AES256GCM", "":
		return hpke.AEAD_AES256GCM, nil
	case "AES128GCM":
		return hpke.AEAD_AES128GCM, nil
	case "ChaCha20Poly1305":
		return hpke.AEAD_ChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("ohttp: unknown AEAD %q", name)
	}
}

// KeyFetcher supplies the HPKE key pair and key-id a deployment uses for
// OHTTP, decoupling envelope construction from key management/rotation.
// Tests substitute a fake fetcher backed by an in-memory generated pair.
type KeyFetcher interface {
	KeyConfig() KeyConfig
	PublicKey() kem.PublicKey
	PrivateKey() kem.PrivateKey
}

// StaticKeyFetcher is a KeyFetcher over a fixed, pre-generated key pair —
// the shape a real deployment's KMS-backed fetcher would have, with the
// storage/rotation part out of scope (spec's Non-goals exclude key
// management).
type StaticKeyFetcher struct {
	Config KeyConfig
	Pub    kem.PublicKey
	Priv   kem.PrivateKey
}

func (f *StaticKeyFetcher) KeyConfig() KeyConfig       { return f.Config }
func (f *StaticKeyFetcher) PublicKey() kem.PublicKey   { return f.Pub }
func (f *StaticKeyFetcher) PrivateKey() kem.PrivateKey { return f.Priv }

// NewStaticKeyFetcher builds a StaticKeyFetcher from config-file strings:
// KEM/KDF/AEAD names per Parse* above, and base64-encoded KEM-serialized
// public/private keys.
func NewStaticKeyFetcher(keyID uint8, kemName, kdfName, aeadName, pubB64, privB64 string) (*StaticKeyFetcher, error) {
	kemID, err := ParseKEM(kemName)
	if err != nil {
		return nil, err
	}
	kdfID, err := ParseKDF(kdfName)
	if err != nil {
		return nil, err
	}
	aeadID, err := ParseAEAD(aeadName)
	if err != nil {
		return nil, err
	}

	pubBytes, err := base64.StdEncoding.DecodeString(pubB64)
	if err != nil {
		return nil, fmt.Errorf("ohttp: decode public key: %w", err)
	}
	privBytes, err := base64.StdEncoding.DecodeString(privB64)
	if err != nil {
		return nil, fmt.Errorf("ohttp: decode private key: %w", err)
	}

	scheme := kemID.Scheme()
	pub, err := scheme.UnmarshalBinaryPublicKey(pubBytes)
	if err != nil {
		return nil, fmt.Errorf("ohttp: unmarshal public key: %w", err)
	}
	priv, err := scheme.UnmarshalBinaryPrivateKey(privBytes)
	if err != nil {
		return nil, fmt.Errorf("ohttp: unmarshal private key: %w", err)
	}

	return &StaticKeyFetcher{
		Config: KeyConfig{KeyID: keyID, KEM: kemID, KDF: kdfID, AEAD: aeadID},
		Pub:    pub,
		Priv:   priv,
	}, nil
}
