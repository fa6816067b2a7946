package lifecycle

import "time"

// HoldDown is RFC 5011's fixed add-hold-down time: a trust-anchor-safe
// key's DNSKEY is held RUMOURED for this long on top of the normal publish
// gate before it may be counted OMNIPRESENT, giving validators time to
// accept it as a new trust anchor candidate.
const HoldDown = 30 * 24 * time.Hour

// rfc5011Extra returns the additional duration added to the RUMOURED ->
// OMNIPRESENT gate of a KSK's or CSK's DNSKEY when the owning PolicyKey has
// RFC5011 enabled (spec.md §4.1's RFC5011 handling expansion): zero when
// disabled. No other record type or transition is affected.
func rfc5011Extra(enabled bool) time.Duration {
	if !enabled {
		return 0
	}
	return HoldDown
}
