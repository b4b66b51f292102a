// Package authority holds the fixed set of directory authorities, treated
// as immutable process-wide configuration, loaded once at package init.
package authority

import "strconv"

// Authority describes one well-known directory authority.
type Authority struct {
	Nickname string
	V3Ident  string
	ORAddr   string
	ORPort   int
	DirAddr  string
	DirPort  int
}

// DirAddrPort returns "host:port" for the authority's directory endpoint.
func (a Authority) DirAddrPort() string {
	return a.DirAddr + ":" + strconv.Itoa(a.DirPort)
}

// Authorities is the fixed set of well-known directory authorities.
var Authorities = []Authority{
	{Nickname: "moria1", V3Ident: "D586D18309DED4CD6D57C18FDB97EFA96D330566", ORAddr: "128.31.0.39", ORPort: 9101, DirAddr: "128.31.0.39", DirPort: 9131},
	{Nickname: "tor26", V3Ident: "14C131DFC5C6F93646BE72FA1401C02A8DF2E8B4", ORAddr: "217.196.147.77", ORPort: 443, DirAddr: "217.196.147.77", DirPort: 80},
	{Nickname: "dizum", V3Ident: "E8A9C45EDE6D711294FADF8E7951F4DE6CA56B58", ORAddr: "45.66.33.45", ORPort: 443, DirAddr: "45.66.33.45", DirPort: 80},
	{Nickname: "gabelmoo", V3Ident: "ED03BB616EB2F60BEC80151114BB25CEF515B226", ORAddr: "131.188.40.189", ORPort: 443, DirAddr: "131.188.40.189", DirPort: 80},
	{Nickname: "dannenberg", V3Ident: "0232AF901C31A04EE9848595AF9BB7620D4C5B2E", ORAddr: "193.23.244.244", ORPort: 443, DirAddr: "193.23.244.244", DirPort: 80},
	{Nickname: "maatuska", V3Ident: "BD6A829255CB08E66FBE7D3748363586E46B3810", ORAddr: "171.25.193.9", ORPort: 443, DirAddr: "171.25.193.9", DirPort: 80},
	{Nickname: "Faravahar", V3Ident: "EFCBE720AB3A82B99F9E953CD5BF50F7EEFC7B97", ORAddr: "216.218.219.41", ORPort: 443, DirAddr: "216.218.219.41", DirPort: 80},
	{Nickname: "longclaw", V3Ident: "23D15D965BC35114467363C165C4F724B64B4F66", ORAddr: "199.58.81.140", ORPort: 443, DirAddr: "199.58.81.140", DirPort: 80},
	{Nickname: "bastet", V3Ident: "27102BC123E7AF1D4741AE047E160C91ADC76B21", ORAddr: "204.13.164.118", ORPort: 443, DirAddr: "204.13.164.118", DirPort: 80},
}

// ByV3Ident finds an authority by its identity fingerprint.
func ByV3Ident(v3ident string) (Authority, bool) {
	for _, a := range Authorities {
		if a.V3Ident == v3ident {
			return a, true
		}
	}
	return Authority{}, false
}
