package ohttp

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"github.com/cloudflare/circl/hpke"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// ErrOrderingViolation is the fixed, machine-comparable error returned when
// a Client or Server method is called out of the required sequence (spec
// §4.6): Client.DecryptResponse before Client.EncryptRequest, or
// Server.EncryptResponse before Server.DecryptRequest.
var ErrOrderingViolation = errors.New("ohttp: ordering violation")

// defaultRequestLabel and defaultResponseLabel are the OHTTP framing labels
// a Client or Server uses unless built with overrides: the request label is
// the HPKE "info" context and the response label is the exporter context
// for the response key schedule (spec §4.7).
const (
	defaultRequestLabel  = "message/bhttp request"
	defaultResponseLabel = "message/bhttp response"
	responseNonceLen     = 16
)

func suiteFor(cfg KeyConfig) hpke.Suite {
	return hpke.NewSuite(cfg.KEM, cfg.KDF, cfg.AEAD)
}

// aeadSizes returns the key and nonce lengths for the response-layer AEAD,
// matching the OHTTP response key schedule (RFC 9458 §4.4): a fresh
// symmetric key/nonce is derived per response from the HPKE exchange's
// exporter secret plus a random response_nonce, rather than reusing the
// HPKE request context directly (the server has no Sealer/Opener context
// symmetric with the client's, only the shared exporter secret).
func aeadSizes(id hpke.AEAD) (keyLen, nonceLen int, err error) {
	switch id {
	case hpke.AEAD_AES128GCM:
		return 16, 12, nil
	case hpke.AEAD_AES256GCM:
		return 32, 12, nil
	case hpke.AEAD_ChaCha20Poly1305:
		return chacha20poly1305.KeySize, chacha20poly1305.NonceSize, nil
	default:
		return 0, 0, fmt.Errorf("ohttp: unsupported response AEAD %v", id)
	}
}

func newAEAD(id hpke.AEAD, key []byte) (cipher.AEAD, error) {
	switch id {
	case hpke.AEAD_AES128GCM, hpke.AEAD_AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, err
		}
		return cipher.NewGCM(block)
	case hpke.AEAD_ChaCha20Poly1305:
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("ohttp: unsupported response AEAD %v", id)
	}
}

// deriveResponseKeyNonce runs the OHTTP response key schedule: extract a
// PRK from secret salted with enc||responseNonce, then expand "key" and
// "nonce" sub-keys from it.
func deriveResponseKeyNonce(secret, enc, responseNonce []byte, aeadID hpke.AEAD) (key, nonce []byte, err error) {
	keyLen, nonceLen, err := aeadSizes(aeadID)
	if err != nil {
		return nil, nil, err
	}

	salt := append(append([]byte{}, enc...), responseNonce...)
	prk := hkdf.Extract(sha256.New, secret, salt)

	key = make([]byte, keyLen)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, []byte("key")), key); err != nil {
		return nil, nil, fmt.Errorf("ohttp: derive response key: %w", err)
	}
	nonce = make([]byte, nonceLen)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, []byte("nonce")), nonce); err != nil {
		return nil, nil, fmt.Errorf("ohttp: derive response nonce: %w", err)
	}
	return key, nonce, nil
}

// Client is the requester side of an OHTTP exchange: non-thread-safe,
// single-use, and stateful between EncryptRequest and DecryptResponse.
type Client struct {
	fetcher       KeyFetcher
	requestLabel  string
	responseLabel string

	sealed bool
	enc    []byte
	secret []byte
	aeadID hpke.AEAD
}

// NewClient builds a Client bound to a deployment's key configuration,
// obtained from fetcher.
func NewClient(fetcher KeyFetcher) *Client {
	return &Client{
		fetcher:       fetcher,
		requestLabel:  defaultRequestLabel,
		responseLabel: defaultResponseLabel,
	}
}

// NewClientWithLabels is NewClient with the request/response framing labels
// overridden, e.g. from config.OHTTPConfig, instead of the package
// defaults. Empty labels fall back to the default.
func NewClientWithLabels(fetcher KeyFetcher, requestLabel, responseLabel string) *Client {
	c := NewClient(fetcher)
	if requestLabel != "" {
		c.requestLabel = requestLabel
	}
	if responseLabel != "" {
		c.responseLabel = responseLabel
	}
	return c
}

// EncryptRequest HPKE-encrypts payload under the server's public key,
// returning the key-id-prefixed encapsulated request. Must be called
// exactly once, before DecryptResponse.
func (c *Client) EncryptRequest(payload []byte) ([]byte, error) {
	cfg := c.fetcher.KeyConfig()
	suite := suiteFor(cfg)

	sender, err := suite.NewSender(c.fetcher.PublicKey(), []byte(c.requestLabel))
	if err != nil {
		return nil, fmt.Errorf("ohttp: client setup sender: %w", err)
	}

	enc, sealer, err := sender.Setup(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("ohttp: client hpke setup: %w", err)
	}

	ct, err := sealer.Seal(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("ohttp: client seal: %w", err)
	}

	c.enc = enc
	c.secret = sealer.Export([]byte(c.responseLabel), exporterSecretLen(cfg.AEAD))
	c.aeadID = cfg.AEAD
	c.sealed = true

	out := make([]byte, 0, 1+len(enc)+len(ct))
	out = append(out, cfg.KeyID)
	out = appendLengthPrefixed(out, enc)
	out = append(out, ct...)
	return out, nil
}

// DecryptResponse decrypts a server response produced by
// Server.EncryptResponse, using the exporter secret retained from
// EncryptRequest. Calling this before EncryptRequest is an ordering
// violation.
func (c *Client) DecryptResponse(data []byte) ([]byte, error) {
	if !c.sealed {
		return nil, ErrOrderingViolation
	}

	responseNonce, ct, err := consumeLengthPrefixed(data)
	if err != nil {
		return nil, fmt.Errorf("ohttp: malformed response envelope: %w", err)
	}

	key, nonce, err := deriveResponseKeyNonce(c.secret, c.enc, responseNonce, c.aeadID)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(c.aeadID, key)
	if err != nil {
		return nil, err
	}

	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, fmt.Errorf("ohttp: client open response: %w", err)
	}
	return pt, nil
}

// Server is the responder side of an OHTTP exchange: non-thread-safe,
// single-use per request, and stateful between DecryptRequest and
// EncryptResponse.
type Server struct {
	fetcher       KeyFetcher
	requestLabel  string
	responseLabel string

	opened bool
	enc    []byte
	secret []byte
	aeadID hpke.AEAD
}

// NewServer builds a Server bound to a deployment's key configuration.
func NewServer(fetcher KeyFetcher) *Server {
	return &Server{
		fetcher:       fetcher,
		requestLabel:  defaultRequestLabel,
		responseLabel: defaultResponseLabel,
	}
}

// NewServerWithLabels is NewServer with the request/response framing labels
// overridden, e.g. from config.OHTTPConfig, instead of the package
// defaults. Empty labels fall back to the default.
func NewServerWithLabels(fetcher KeyFetcher, requestLabel, responseLabel string) *Server {
	s := NewServer(fetcher)
	if requestLabel != "" {
		s.requestLabel = requestLabel
	}
	if responseLabel != "" {
		s.responseLabel = responseLabel
	}
	return s
}

// DecryptRequest HPKE-decrypts a client-encapsulated request produced by
// Client.EncryptRequest. Must be called before EncryptResponse.
func (s *Server) DecryptRequest(data []byte) ([]byte, error) {
	if len(data) < 1 {
		return nil, fmt.Errorf("ohttp: request too short")
	}
	keyID := data[0]
	cfg := s.fetcher.KeyConfig()
	if keyID != cfg.KeyID {
		return nil, fmt.Errorf("ohttp: unknown key id %d", keyID)
	}

	enc, ct, err := consumeLengthPrefixed(data[1:])
	if err != nil {
		return nil, fmt.Errorf("ohttp: malformed request envelope: %w", err)
	}

	suite := suiteFor(cfg)
	receiver, err := suite.NewReceiver(s.fetcher.PrivateKey(), []byte(s.requestLabel))
	if err != nil {
		return nil, fmt.Errorf("ohttp: server setup receiver: %w", err)
	}

	opener, err := receiver.Setup(enc)
	if err != nil {
		return nil, fmt.Errorf("ohttp: server hpke setup: %w", err)
	}

	pt, err := opener.Open(ct, nil)
	if err != nil {
		return nil, fmt.Errorf("ohttp: server open request: %w", err)
	}

	s.enc = append([]byte{}, enc...)
	s.secret = opener.Export([]byte(s.responseLabel), exporterSecretLen(cfg.AEAD))
	s.aeadID = cfg.AEAD
	s.opened = true
	return pt, nil
}

// EncryptResponse encrypts plaintext using a fresh response key derived
// from the exporter secret retained from DecryptRequest. Calling this
// before DecryptRequest is an ordering violation, reported symmetrically
// with the client side.
func (s *Server) EncryptResponse(plaintext []byte) ([]byte, error) {
	if !s.opened {
		return nil, ErrOrderingViolation
	}

	responseNonce := make([]byte, responseNonceLen)
	if _, err := rand.Read(responseNonce); err != nil {
		return nil, fmt.Errorf("ohttp: generate response nonce: %w", err)
	}

	key, nonce, err := deriveResponseKeyNonce(s.secret, s.enc, responseNonce, s.aeadID)
	if err != nil {
		return nil, err
	}

	aead, err := newAEAD(s.aeadID, key)
	if err != nil {
		return nil, err
	}

	ct := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, 2+len(responseNonce)+len(ct))
	out = appendLengthPrefixed(out, responseNonce)
	out = append(out, ct...)
	return out, nil
}

func exporterSecretLen(aeadID hpke.AEAD) uint {
	keyLen, nonceLen, err := aeadSizes(aeadID)
	if err != nil {
		return 32
	}
	return uint(keyLen + nonceLen)
}

func appendLengthPrefixed(dst, data []byte) []byte {
	n := len(data)
	dst = append(dst, byte(n>>8), byte(n))
	return append(dst, data...)
}

func consumeLengthPrefixed(data []byte) (field, rest []byte, err error) {
	if len(data) < 2 {
		return nil, nil, fmt.Errorf("truncated length prefix")
	}
	n := int(data[0])<<8 | int(data[1])
	data = data[2:]
	if len(data) < n {
		return nil, nil, fmt.Errorf("truncated field: want %d bytes, have %d", n, len(data))
	}
	return data[:n], data[n:], nil
}
