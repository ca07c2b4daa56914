package nostr

import (
	"nostr-feed/nip19"
)

// ComputeNostrURI derives the canonical nostr: URI for an event: nprofile
// for profiles, nevent for notes, naddr for the addressable kinds. An
// addressable event without a d tag, or any encode failure, yields "".
func ComputeNostrURI(ev Event) string {
	switch ev.Kind {
	case KindProfile:
		encoded, err := nip19.EncodeNprofile(ev.PubKey)
		if err != nil {
			return ""
		}
		return nip19.URIPrefix + encoded

	case KindNote:
		encoded, err := nip19.EncodeNevent(ev.ID)
		if err != nil {
			return ""
		}
		return nip19.URIPrefix + encoded

	case KindAMB, KindCalendarDate, KindCalendarTime, KindArticle, KindArticleLegacy:
		d := ev.TagValue("d")
		if d == "" {
			return ""
		}
		encoded, err := nip19.EncodeNaddr(uint32(ev.Kind), ev.PubKey, d)
		if err != nil {
			return ""
		}
		return nip19.URIPrefix + encoded
	}
	return ""
}
