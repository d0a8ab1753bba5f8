package session

import (
	"crypto/rand"
	"fmt"
	"strconv"
	"strings"
)

const pairCodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GeneratePairCode derives a 6-character join code from localIP: the first
// two characters are the uppercase hex of (last octet mod 36), zero-padded
// to two digits; the remaining four are uniformly sampled from [A-Z0-9].
func GeneratePairCode(localIP string) (string, error) {
	octets := strings.Split(localIP, ".")
	lastOctet := 0
	if len(octets) == 4 {
		if v, err := strconv.Atoi(octets[3]); err == nil {
			lastOctet = v
		}
	}
	prefix := fmt.Sprintf("%02X", lastOctet%36)
	prefix = prefix[:2]

	suffix := make([]byte, 4)
	idx := make([]byte, 4)
	if _, err := rand.Read(idx); err != nil {
		return "", err
	}
	for i, b := range idx {
		suffix[i] = pairCodeAlphabet[int(b)%len(pairCodeAlphabet)]
	}
	return prefix + string(suffix), nil
}

// PairCodesEqual compares two pair codes case-insensitively, since the code
// is a join token rather than a secret requiring constant-time comparison.
func PairCodesEqual(a, b string) bool {
	return strings.EqualFold(a, b)
}
