package nip19

import (
	"github.com/skip2/go-qrcode"
)

// ShareQR renders an identifier or nostr: URI as a PNG QR code with the
// given edge size in pixels. Useful for handing an naddr or nprofile to a
// mobile client.
func ShareQR(identifier string, size int) ([]byte, error) {
	if size <= 0 {
		size = 256
	}
	return qrcode.Encode(identifier, qrcode.Medium, size)
}
