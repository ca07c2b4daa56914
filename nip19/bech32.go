package nip19

import (
	"errors"
	"strings"
)

// Bech32 charset
const bech32Charset = "qpzry9x8gf2tvdw0s3jn54khce6mua7l"

// Variant distinguishes the two checksum constants of BIP-173/BIP-350.
// All NIP-19 entities use VariantBech32.
type Variant int

const (
	VariantBech32 Variant = iota
	VariantBech32m
)

const (
	bech32Const  = 1
	bech32mConst = 0x2bc830a3
)

var bech32Generator = [5]int{0x3b6a57b2, 0x26508e6d, 0x1ea119fa, 0x3d4233dd, 0x2a1462b3}

func bech32Polymod(values []int) int {
	chk := 1
	for _, v := range values {
		top := chk >> 25
		chk = (chk&0x1ffffff)<<5 ^ v
		for i := 0; i < 5; i++ {
			if (top>>i)&1 != 0 {
				chk ^= bech32Generator[i]
			}
		}
	}
	return chk
}

func bech32HrpExpand(hrp string) []int {
	ret := make([]int, 0, len(hrp)*2+1)
	for i := 0; i < len(hrp); i++ {
		ret = append(ret, int(hrp[i]>>5))
	}
	ret = append(ret, 0)
	for i := 0; i < len(hrp); i++ {
		ret = append(ret, int(hrp[i]&31))
	}
	return ret
}

func bech32VerifyChecksum(hrp string, data []byte) (Variant, bool) {
	values := bech32HrpExpand(hrp)
	for _, d := range data {
		values = append(values, int(d))
	}
	switch bech32Polymod(values) {
	case bech32Const:
		return VariantBech32, true
	case bech32mConst:
		return VariantBech32m, true
	}
	return 0, false
}

func bech32CreateChecksum(hrp string, data []byte, variant Variant) []byte {
	values := bech32HrpExpand(hrp)
	for _, d := range data {
		values = append(values, int(d))
	}
	for i := 0; i < 6; i++ {
		values = append(values, 0)
	}
	target := bech32Const
	if variant == VariantBech32m {
		target = bech32mConst
	}
	polymod := bech32Polymod(values) ^ target
	checksum := make([]byte, 6)
	for i := 0; i < 6; i++ {
		checksum[i] = byte((polymod >> (5 * (5 - i))) & 31)
	}
	return checksum
}

// Bech32Decode decodes a checksummed bech32 string into its HRP and 5-bit
// payload words (checksum stripped), reporting which checksum variant
// matched. It handles untrusted input: any violation returns ok=false,
// never an error value or panic. Mixed-case strings are rejected outright;
// all-upper strings are folded to lower before decoding.
func Bech32Decode(input string) (hrp string, data []byte, variant Variant, ok bool) {
	s := strings.TrimSpace(input)
	if len(s) < 8 {
		return "", nil, 0, false
	}

	lower := strings.ToLower(s)
	upper := strings.ToUpper(s)
	if s != lower && s != upper {
		return "", nil, 0, false
	}
	s = lower

	pos := strings.LastIndex(s, "1")
	if pos < 1 || pos+7 > len(s) {
		return "", nil, 0, false
	}

	hrp = s[:pos]
	values := make([]byte, 0, len(s)-pos-1)
	for _, c := range s[pos+1:] {
		idx := strings.IndexRune(bech32Charset, c)
		if idx == -1 {
			return "", nil, 0, false
		}
		values = append(values, byte(idx))
	}

	variant, ok = bech32VerifyChecksum(hrp, values)
	if !ok {
		return "", nil, 0, false
	}

	return hrp, values[:len(values)-6], variant, true
}

// Bech32Encode renders HRP + '1' + charset-mapped payload words with the
// 6-word checksum for the requested variant appended.
func Bech32Encode(hrp string, data []byte, variant Variant) string {
	combined := append(append([]byte{}, data...), bech32CreateChecksum(hrp, data, variant)...)

	var result strings.Builder
	result.Grow(len(hrp) + 1 + len(combined))
	result.WriteString(hrp)
	result.WriteByte('1')
	for _, v := range combined {
		result.WriteByte(bech32Charset[v])
	}
	return result.String()
}

// ConvertBits regroups a sequence of fromBits-wide integers into toBits-wide
// integers, MSB first. With pad=true remaining bits are flushed
// left-justified; with pad=false leftover bits >= fromBits or nonzero
// padding bits are an error (malformed non-final block).
func ConvertBits(data []byte, fromBits, toBits int, pad bool) ([]byte, error) {
	acc := 0
	bits := 0
	ret := make([]byte, 0, len(data)*fromBits/toBits+1)
	maxv := (1 << toBits) - 1

	for _, value := range data {
		if int(value)>>fromBits != 0 {
			return nil, errors.New("invalid data range")
		}
		acc = (acc << fromBits) | int(value)
		bits += fromBits
		for bits >= toBits {
			bits -= toBits
			ret = append(ret, byte((acc>>bits)&maxv))
		}
	}

	if pad {
		if bits > 0 {
			ret = append(ret, byte((acc<<(toBits-bits))&maxv))
		}
	} else if bits >= fromBits || ((acc<<(toBits-bits))&maxv) != 0 {
		return nil, errors.New("invalid padding")
	}

	return ret, nil
}
