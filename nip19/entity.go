// Package nip19 implements the bech32-based shareable identifiers of NIP-19:
// npub, nprofile, nevent and naddr, including the TLV sub-encoding used by
// the composite forms.
//
// Encode functions validate their inputs and return errors, because the
// caller constructed them. Decode functions handle untrusted network or user
// input and fail softly with ok=false instead.
package nip19

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

// TLV type constants for NIP-19
const (
	tlvTypeSpecial = 0 // pubkey for nprofile, event id for nevent, d-tag for naddr
	tlvTypeRelay   = 1 // relay URL, repeatable
	tlvTypeAuthor  = 2 // author pubkey
	tlvTypeKind    = 3 // kind, 4 bytes big-endian
)

// URIPrefix is the scheme that wraps NIP-19 identifiers in web content.
const URIPrefix = "nostr:"

// NProfile is a decoded nprofile1... identifier.
type NProfile struct {
	Pubkey string   // 32-byte pubkey as hex
	Relays []string // optional relay hints
}

// NEvent is a decoded nevent1... identifier.
type NEvent struct {
	EventID string   // 32-byte event ID as hex
	Relays  []string // optional relay hints
}

// NAddr is a decoded naddr1... identifier.
type NAddr struct {
	Kind       uint32   // event kind
	Author     string   // 32-byte author pubkey as hex
	Identifier string   // d-tag value, may be empty
	Relays     []string // optional relay hints
}

// IsHexPubkey reports whether input is a 64-char lowercase-foldable hex
// pubkey.
func IsHexPubkey(input string) bool {
	s := strings.ToLower(strings.TrimSpace(input))
	if len(s) != 64 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// NpubToHex decodes an npub1... identifier to a 64-char lowercase hex
// pubkey. Any malformed input yields ok=false.
func NpubToHex(npub string) (string, bool) {
	hrp, data, variant, ok := Bech32Decode(npub)
	if !ok || hrp != "npub" || variant != VariantBech32 {
		return "", false
	}
	raw, err := ConvertBits(data, 5, 8, false)
	if err != nil || len(raw) != 32 {
		return "", false
	}
	return hex.EncodeToString(raw), true
}

// NormalizePubkey accepts either a 64-char hex pubkey (optionally
// 0x-prefixed) or an npub1... identifier and returns the lowercase hex form.
func NormalizePubkey(input string) (string, bool) {
	s := strings.TrimSpace(input)
	if s == "" {
		return "", false
	}
	if strings.HasPrefix(strings.ToLower(s), "0x") {
		s = s[2:]
	}
	if IsHexPubkey(s) {
		return strings.ToLower(s), true
	}
	if strings.HasPrefix(strings.ToLower(s), "npub1") {
		return NpubToHex(s)
	}
	return "", false
}

func decode32Bytes(hexStr, what string) ([]byte, error) {
	raw, err := hex.DecodeString(hexStr)
	if err != nil {
		return nil, fmt.Errorf("invalid %s hex: %w", what, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("invalid %s length: %d bytes", what, len(raw))
	}
	return raw, nil
}

func appendTLV(buf []byte, typ byte, value []byte) ([]byte, error) {
	if len(value) > 255 {
		return nil, fmt.Errorf("tlv value too long: %d bytes", len(value))
	}
	buf = append(buf, typ, byte(len(value)))
	return append(buf, value...), nil
}

func appendRelayTLVs(buf []byte, relays []string) ([]byte, error) {
	var err error
	for _, relay := range relays {
		if buf, err = appendTLV(buf, tlvTypeRelay, []byte(relay)); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func encodeTLVEntity(hrp string, tlv []byte) (string, error) {
	words, err := ConvertBits(tlv, 8, 5, true)
	if err != nil {
		return "", err
	}
	return Bech32Encode(hrp, words, VariantBech32), nil
}

// EncodeNpub encodes a 64-char hex pubkey as npub1...
func EncodeNpub(pubkeyHex string) (string, error) {
	raw, err := decode32Bytes(pubkeyHex, "pubkey")
	if err != nil {
		return "", err
	}
	words, err := ConvertBits(raw, 8, 5, true)
	if err != nil {
		return "", err
	}
	return Bech32Encode("npub", words, VariantBech32), nil
}

// EncodeNprofile encodes a pubkey with optional relay hints as nprofile1...
func EncodeNprofile(pubkeyHex string, relays ...string) (string, error) {
	raw, err := decode32Bytes(pubkeyHex, "pubkey")
	if err != nil {
		return "", err
	}
	tlv, err := appendTLV(nil, tlvTypeSpecial, raw)
	if err != nil {
		return "", err
	}
	if tlv, err = appendRelayTLVs(tlv, relays); err != nil {
		return "", err
	}
	return encodeTLVEntity("nprofile", tlv)
}

// EncodeNevent encodes an event id with optional relay hints as nevent1...
func EncodeNevent(eventIDHex string, relays ...string) (string, error) {
	raw, err := decode32Bytes(eventIDHex, "event id")
	if err != nil {
		return "", err
	}
	tlv, err := appendTLV(nil, tlvTypeSpecial, raw)
	if err != nil {
		return "", err
	}
	if tlv, err = appendRelayTLVs(tlv, relays); err != nil {
		return "", err
	}
	return encodeTLVEntity("nevent", tlv)
}

// EncodeNaddr encodes an addressable-event coordinate as naddr1...
// The identifier (d-tag value) may be empty but is always present in the
// TLV stream, followed by the author pubkey, the 4-byte big-endian kind,
// and any relay hints.
func EncodeNaddr(kind uint32, pubkeyHex, identifier string, relays ...string) (string, error) {
	raw, err := decode32Bytes(pubkeyHex, "pubkey")
	if err != nil {
		return "", err
	}

	tlv, err := appendTLV(nil, tlvTypeSpecial, []byte(identifier))
	if err != nil {
		return "", err
	}
	if tlv, err = appendTLV(tlv, tlvTypeAuthor, raw); err != nil {
		return "", err
	}
	kindBytes := make([]byte, 4)
	binary.BigEndian.PutUint32(kindBytes, kind)
	if tlv, err = appendTLV(tlv, tlvTypeKind, kindBytes); err != nil {
		return "", err
	}
	if tlv, err = appendRelayTLVs(tlv, relays); err != nil {
		return "", err
	}
	return encodeTLVEntity("naddr", tlv)
}

// decodeTLVStream decodes an entity with the given HRP into its raw TLV
// byte stream.
func decodeTLVStream(input, hrp string) ([]byte, bool) {
	gotHRP, data, variant, ok := Bech32Decode(input)
	if !ok || gotHRP != hrp || variant != VariantBech32 {
		return nil, false
	}
	raw, err := ConvertBits(data, 5, 8, false)
	if err != nil {
		return nil, false
	}
	return raw, true
}

// walkTLV calls visit for each well-formed (type, value) entry until visit
// returns false. Truncated trailing entries are ignored.
func walkTLV(data []byte, visit func(typ byte, value []byte) bool) {
	for i := 0; i+2 <= len(data); {
		typ := data[i]
		length := int(data[i+1])
		i += 2
		if i+length > len(data) {
			return
		}
		if !visit(typ, data[i:i+length]) {
			return
		}
		i += length
	}
}

// DecodeNprofile decodes an nprofile1... identifier. Malformed input or a
// missing pubkey yields ok=false.
func DecodeNprofile(input string) (*NProfile, bool) {
	tlv, ok := decodeTLVStream(input, "nprofile")
	if !ok {
		return nil, false
	}
	n := &NProfile{}
	walkTLV(tlv, func(typ byte, value []byte) bool {
		switch typ {
		case tlvTypeSpecial:
			if len(value) == 32 {
				n.Pubkey = hex.EncodeToString(value)
			}
		case tlvTypeRelay:
			n.Relays = append(n.Relays, string(value))
		}
		return true
	})
	if n.Pubkey == "" {
		return nil, false
	}
	return n, true
}

// DecodeNevent decodes an nevent1... identifier. Malformed input or a
// missing event id yields ok=false.
func DecodeNevent(input string) (*NEvent, bool) {
	tlv, ok := decodeTLVStream(input, "nevent")
	if !ok {
		return nil, false
	}
	n := &NEvent{}
	walkTLV(tlv, func(typ byte, value []byte) bool {
		switch typ {
		case tlvTypeSpecial:
			if len(value) == 32 {
				n.EventID = hex.EncodeToString(value)
			}
		case tlvTypeRelay:
			n.Relays = append(n.Relays, string(value))
		}
		return true
	})
	if n.EventID == "" {
		return nil, false
	}
	return n, true
}

// DecodeNaddr decodes an naddr1... identifier. Malformed input or missing
// author/kind entries yield ok=false.
func DecodeNaddr(input string) (*NAddr, bool) {
	tlv, ok := decodeTLVStream(input, "naddr")
	if !ok {
		return nil, false
	}
	n := &NAddr{}
	hasKind := false
	hasAuthor := false
	walkTLV(tlv, func(typ byte, value []byte) bool {
		switch typ {
		case tlvTypeSpecial:
			n.Identifier = string(value)
		case tlvTypeAuthor:
			if len(value) == 32 {
				n.Author = hex.EncodeToString(value)
				hasAuthor = true
			}
		case tlvTypeKind:
			if len(value) == 4 {
				n.Kind = binary.BigEndian.Uint32(value)
				hasKind = true
			}
		case tlvTypeRelay:
			n.Relays = append(n.Relays, string(value))
		}
		return true
	})
	if !hasKind || !hasAuthor {
		return nil, false
	}
	return n, true
}

// DecodeNaddrKind extracts the kind from a naddr1... string or its
// nostr:-prefixed form. It stops at the first well-formed type-3 entry
// without validating the rest of the TLV stream.
func DecodeNaddrKind(input string) (uint32, bool) {
	s := strings.TrimPrefix(strings.TrimSpace(input), URIPrefix)
	tlv, ok := decodeTLVStream(s, "naddr")
	if !ok {
		return 0, false
	}
	var kind uint32
	found := false
	walkTLV(tlv, func(typ byte, value []byte) bool {
		if typ == tlvTypeKind && len(value) == 4 {
			kind = binary.BigEndian.Uint32(value)
			found = true
			return false
		}
		return true
	})
	return kind, found
}

// ErrNotNostrURI is returned by SplitURI for strings without the nostr:
// scheme.
var ErrNotNostrURI = errors.New("not a nostr URI")

// SplitURI strips the nostr: scheme and returns the bare identifier.
func SplitURI(uri string) (string, error) {
	s := strings.TrimSpace(uri)
	if !strings.HasPrefix(s, URIPrefix) {
		return "", ErrNotNostrURI
	}
	return s[len(URIPrefix):], nil
}
