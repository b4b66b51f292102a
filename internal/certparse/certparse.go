// Package certparse parses the Ed25519 signing-key certificates embedded
// as base64 objects (keyword "ed25519_cert" et al.) inside server and
// extra-info descriptors, following the fixed binary layout of Tor's
// cert-spec.txt: a one-byte version and cert type, a four-byte expiration
// date, a one-byte certified-key type, the 32-byte certified key itself, a
// variable-length extension block, and a trailing 64-byte Ed25519
// signature. Parsing is edge-triggered: Parse reads the fixed-width fields
// off fixed offsets and only walks the extension block length-prefix by
// length-prefix, never scanning byte-by-byte the way internal/dirdoc does.
package certparse

import (
	"crypto/ed25519"
	"encoding/binary"
	"time"

	"github.com/irl/bushel/internal/bushelerr"
)

// CertType enumerates the certified-key purposes Tor defines for this
// certificate format. Only the values bushel needs to distinguish are
// named; others pass through as their raw byte.
type CertType byte

const (
	CertTypeSigningKeyToV3Ident     CertType = 0x04
	CertTypeSigningKeyToEd25519Key  CertType = 0x05
	CertTypeTLSLinkToEd25519Signing CertType = 0x06
	CertTypeEd25519SigningToTLS     CertType = 0x07
)

// KeyType enumerates the CERTIFIED_KEY_TYPE values.
type KeyType byte

const (
	KeyTypeEd25519        KeyType = 1
	KeyTypeSHA256OfRSAKey KeyType = 2
	KeyTypeSHA256OfCert   KeyType = 3
)

// Extension is one TLV entry from the certificate's extension block.
type Extension struct {
	Type  byte
	Flags byte
	Data  []byte
}

// ExtensionSignedKey is the extension type carrying the Ed25519 master
// identity key that signed this certificate, when present.
const ExtensionSignedKey byte = 4

// ExtensionAffectsValidation is set in Extension.Flags when an unrecognized
// extension must cause validation to fail, per cert-spec.txt.
const ExtensionAffectsValidation byte = 1

// Cert is a parsed Ed25519 certificate.
type Cert struct {
	Version          byte
	Type             CertType
	Expiration       time.Time
	CertifiedKeyType KeyType
	CertifiedKey     []byte // 32 bytes
	Extensions       []Extension
	Signature        []byte // 64 bytes

	// signed is the byte range covered by Signature, retained for Verify.
	signed []byte
}

const (
	minCertLen         = 1 + 1 + 4 + 1 + 32 + 1 + 64
	extensionHeaderLen = 2 + 1 + 1
	signatureLen       = ed25519.SignatureSize
	certifiedKeyLen    = 32
)

// Parse decodes raw as a single Ed25519 certificate. It is fatal
// (BadArgument) on truncation or an extension length that runs past the
// buffer; unknown CertType/KeyType values are preserved verbatim rather
// than rejected, since new types are added to the protocol over time.
func Parse(raw []byte) (*Cert, error) {
	if len(raw) < minCertLen {
		return nil, bushelerr.BadArgument("ed25519 cert too short: %d bytes", len(raw))
	}

	c := &Cert{
		Version:          raw[0],
		Type:             CertType(raw[1]),
		Expiration:       time.Unix(int64(binary.BigEndian.Uint32(raw[2:6]))*3600, 0).UTC(),
		CertifiedKeyType: KeyType(raw[6]),
	}
	c.CertifiedKey = append([]byte(nil), raw[7:7+certifiedKeyLen]...)

	pos := 7 + certifiedKeyLen
	nExtensions := int(raw[pos])
	pos++

	for i := 0; i < nExtensions; i++ {
		if pos+extensionHeaderLen > len(raw) {
			return nil, bushelerr.BadArgument("ed25519 cert extension %d header truncated", i)
		}
		elen := int(binary.BigEndian.Uint16(raw[pos : pos+2]))
		etype := raw[pos+2]
		eflags := raw[pos+3]
		pos += extensionHeaderLen
		if pos+elen > len(raw) {
			return nil, bushelerr.BadArgument("ed25519 cert extension %d data truncated", i)
		}
		c.Extensions = append(c.Extensions, Extension{
			Type:  etype,
			Flags: eflags,
			Data:  append([]byte(nil), raw[pos:pos+elen]...),
		})
		pos += elen
	}

	if pos+signatureLen != len(raw) {
		return nil, bushelerr.BadArgument("ed25519 cert has %d trailing bytes after extensions, want exactly %d signature bytes", len(raw)-pos, signatureLen)
	}
	c.signed = append([]byte(nil), raw[:pos]...)
	c.Signature = append([]byte(nil), raw[pos:]...)
	return c, nil
}

// SigningKey returns the Ed25519 master identity key carried in the
// ExtensionSignedKey extension, if present.
func (c *Cert) SigningKey() (ed25519.PublicKey, bool) {
	for _, ext := range c.Extensions {
		if ext.Type == ExtensionSignedKey && len(ext.Data) >= certifiedKeyLen {
			return ed25519.PublicKey(ext.Data[:certifiedKeyLen]), true
		}
	}
	return nil, false
}

// Verify reports whether Signature is a valid Ed25519 signature over the
// certificate's signed fields under signingKey.
func (c *Cert) Verify(signingKey ed25519.PublicKey) bool {
	return ed25519.Verify(signingKey, c.signed, c.Signature)
}

// Expired reports whether the certificate's expiration date is before now.
func (c *Cert) Expired(now time.Time) bool {
	return now.After(c.Expiration)
}
