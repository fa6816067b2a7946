package model

import (
	"encoding/base64"

	"github.com/miekg/dns"
)

// Keytag computes the DNSKEY key tag (RFC 4034 Appendix B, via
// miekg/dns's DNSKEY.KeyTag) that KeyData.Keytag and the signer
// configuration publish as the key's identifier. publicKey is the
// HSM-backend-returned DNSKEY-ready public key encoding (hsm.KeyHandle.Public).
func Keytag(zoneName string, role Role, algorithm uint8, publicKey []byte) uint16 {
	flags := uint16(256)
	if role == RoleKSK || role == RoleCSK {
		flags = 257
	}
	rr := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: dns.Fqdn(zoneName), Rrtype: dns.TypeDNSKEY, Class: dns.ClassINET},
		Flags:     flags,
		Protocol:  3,
		Algorithm: algorithm,
		PublicKey: base64.StdEncoding.EncodeToString(publicKey),
	}
	return rr.KeyTag()
}
