package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"sort"
	"strconv"
)

// Namespace prefixes keys for best-sellers history lookups.
const Namespace = "bestsellers-history"

// KeyFor derives a stable cache key from a parameter set.
//
// Parameters are written in sorted name order, each name and value length
// prefixed, into a SHA-256 digest. Length prefixes keep {"a": "b=c"} and
// {"a=b": "c"} apart, and names are hashed alongside values so equal values
// under different fields never collide.
func KeyFor(namespace string, params map[string]string) string {
	names := make([]string, 0, len(params))
	for k := range params {
		names = append(names, k)
	}
	sort.Strings(names)

	h := sha256.New()
	for _, k := range names {
		writeField(h, k)
		writeField(h, params[k])
	}

	return namespace + ":" + hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, s string) {
	_, _ = w.Write([]byte(strconv.Itoa(len(s))))
	_, _ = w.Write([]byte{':'})
	_, _ = w.Write([]byte(s))
}
