// NIP-19 Identifier Tool
// Encodes and decodes bech32 Nostr identifiers (npub, nprofile, nevent,
// naddr) and optionally renders an identifier as a QR code PNG.
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"nostr-feed/nip19"
)

const usage = `usage:
  nostrid decode <identifier>            decode any nostr identifier or nostr: URI
  nostrid npub <hex-pubkey>              encode a pubkey as npub
  nostrid nprofile <hex-pubkey> [relay...]
  nostrid nevent <hex-event-id> [relay...]
  nostrid naddr <kind> <hex-pubkey> <identifier> [relay...]

flags:
  -qr <file>   write the resulting identifier as a QR code PNG
  -size <px>   QR code size in pixels (default 256)
`

func main() {
	qrPath := flag.String("qr", "", "write the identifier as a QR code PNG to this path")
	qrSize := flag.Int("size", 256, "QR code size in pixels")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	args := flag.Args()
	if len(args) < 2 {
		flag.Usage()
		os.Exit(2)
	}

	var identifier string
	var err error

	switch args[0] {
	case "decode":
		decode(args[1])
		identifier = strings.TrimPrefix(args[1], nip19.URIPrefix)
	case "npub":
		identifier, err = nip19.EncodeNpub(args[1])
	case "nprofile":
		identifier, err = nip19.EncodeNprofile(args[1], args[2:]...)
	case "nevent":
		identifier, err = nip19.EncodeNevent(args[1], args[2:]...)
	case "naddr":
		if len(args) < 4 {
			flag.Usage()
			os.Exit(2)
		}
		var kind uint32
		if _, err := fmt.Sscanf(args[1], "%d", &kind); err != nil {
			fail(fmt.Errorf("invalid kind %q: %w", args[1], err))
		}
		identifier, err = nip19.EncodeNaddr(kind, args[2], args[3], args[4:]...)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}

	if args[0] != "decode" {
		fmt.Println(identifier)
	}

	if *qrPath != "" {
		png, err := nip19.ShareQR(identifier, *qrSize)
		if err != nil {
			fail(err)
		}
		if err := os.WriteFile(*qrPath, png, 0o644); err != nil {
			fail(err)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *qrPath)
	}
}

// decode prints the components of any supported identifier.
func decode(input string) {
	input = strings.TrimPrefix(strings.TrimSpace(input), nip19.URIPrefix)

	if hex, ok := nip19.NpubToHex(input); ok {
		fmt.Printf("npub\n  pubkey: %s\n", hex)
		return
	}
	if p, ok := nip19.DecodeNprofile(input); ok {
		fmt.Printf("nprofile\n  pubkey: %s\n", p.Pubkey)
		printRelays(p.Relays)
		return
	}
	if e, ok := nip19.DecodeNevent(input); ok {
		fmt.Printf("nevent\n  event id: %s\n", e.EventID)
		printRelays(e.Relays)
		return
	}
	if a, ok := nip19.DecodeNaddr(input); ok {
		fmt.Printf("naddr\n  kind: %d\n  author: %s\n  identifier: %q\n", a.Kind, a.Author, a.Identifier)
		printRelays(a.Relays)
		return
	}
	fail(fmt.Errorf("unrecognized identifier %q", input))
}

func printRelays(relays []string) {
	for _, r := range relays {
		fmt.Printf("  relay: %s\n", r)
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}
