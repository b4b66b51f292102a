package fetcher

import (
	"encoding/base64"
	"encoding/hex"
	"sort"
	"strings"
)

// MaxFingerprints bounds how many digests a single server/extra-info
// descriptor query carries.
const MaxFingerprints = 96

// MaxMicrodescriptorHashes bounds how many hashes a single microdescriptor
// query carries.
const MaxMicrodescriptorHashes = 92

func batches(digests []string, size int) [][]string {
	var out [][]string
	for len(digests) > 0 {
		n := size
		if n > len(digests) {
			n = len(digests)
		}
		out = append(out, digests[:n])
		digests = digests[n:]
	}
	return out
}

// serverDescriptorPath builds "/tor/server/d/<D1>+<D2>+…" with digests
// sorted lexicographically and upper-cased.
func serverDescriptorPath(digestsLowerHex []string) string {
	return descriptorPath("/tor/server/d/", digestsLowerHex)
}

// extraInfoPath builds "/tor/extra/d/<D1>+<D2>+…".
func extraInfoPath(digestsLowerHex []string) string {
	return descriptorPath("/tor/extra/d/", digestsLowerHex)
}

func descriptorPath(base string, digestsLowerHex []string) string {
	upper := make([]string, len(digestsLowerHex))
	copy(upper, digestsLowerHex)
	for i, d := range upper {
		upper[i] = strings.ToUpper(d)
	}
	sort.Strings(upper)
	return base + strings.Join(upper, "+")
}

// microdescriptorPath builds "/tor/micro/d/<H1>-<H2>-…" where each H is the
// unpadded base64 encoding of the hash, given here as lower-case hex.
func microdescriptorPath(hashesLowerHex []string) (string, error) {
	encoded := make([]string, len(hashesLowerHex))
	for i, h := range hashesLowerHex {
		raw, err := hex.DecodeString(h)
		if err != nil {
			return "", err
		}
		encoded[i] = base64.RawStdEncoding.EncodeToString(raw)
	}
	return "/tor/micro/d/" + strings.Join(encoded, "-"), nil
}

func consensusPath(microdesc bool) string {
	if microdesc {
		return "/tor/status-vote/current/consensus-microdesc"
	}
	return "/tor/status-vote/current/consensus"
}

func votePath(digestOrWildcard string) string {
	if digestOrWildcard == "" {
		return "/tor/status-vote/current/authority"
	}
	return "/tor/status-vote/current/d/" + strings.ToUpper(digestOrWildcard)
}
