package engine

import (
	"encoding/hex"
	"fmt"
	"math/rand"
)

// Decoy fragments are synthetic, non-semantic statements interleaved with
// real fragments to defeat static diffing of patched documents. Every draw
// instantiates fresh random tokens, so two generated sequences are never
// byte-identical. No decoy carries a side effect beyond superficial
// statements against the default capability set.
var decoyTemplates = []func(rng *rand.Rand) string{
	// Logging call.
	func(rng *rand.Rand) string {
		return fmt.Sprintf("console.log(\"trace:%s\");", hexToken(rng, 8))
	},
	// Variable declaration with a random literal.
	func(rng *rand.Rand) string {
		return fmt.Sprintf("var _0x%s = %d;", hexToken(rng, 6), rng.Intn(65536))
	},
	// Randomly-gated conditional.
	func(rng *rand.Rand) string {
		return fmt.Sprintf("if (Math.random() > 0.5) { var _0x%s = \"%s\"; }",
			hexToken(rng, 6), hexToken(rng, 12))
	},
	// Deferred no-op timer. Zero delay keeps the drain phase free.
	func(rng *rand.Rand) string {
		return fmt.Sprintf("setTimeout(function _t%s() {}, 0);", hexToken(rng, 4))
	},
	// Structurally inert object literal.
	func(rng *rand.Rand) string {
		return fmt.Sprintf("var _cfg%s = { id: \"%s\", rev: %d };",
			hexToken(rng, 4), hexToken(rng, 10), rng.Intn(1000))
	},
}

// GenerateDecoys produces n synthetic fragments drawn with replacement from
// the fixed template pool. It never fails; n <= 0 yields an empty slice.
func GenerateDecoys(n int, rng *rand.Rand) []string {
	if n <= 0 {
		return nil
	}
	fragments := make([]string, n)
	for i := range fragments {
		fragments[i] = decoyTemplates[rng.Intn(len(decoyTemplates))](rng)
	}
	return fragments
}

func hexToken(rng *rand.Rand, n int) string {
	b := make([]byte, (n+1)/2)
	rng.Read(b)
	return hex.EncodeToString(b)[:n]
}
