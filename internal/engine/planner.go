package engine

import "math/rand"

// BuildPlan combines real fragments with optional decoys into the ordered
// assignment plan. It knows nothing about indentation or document content —
// markerCount is the only thing it takes from the document.
//
// The plan length may be less than, equal to, or greater than markerCount;
// the applicator leaves unmatched markers verbatim and drops unconsumed
// fragments.
func BuildPlan(markerCount int, spec PatchSpec, rng *rand.Rand) []string {
	plan := make([]string, 0, len(spec.Fragments)+markerCount)
	plan = append(plan, spec.Fragments...)

	if spec.AddFakePatches {
		plan = append(plan, GenerateDecoys(markerCount, rng)...)
	}

	if spec.RandomizeOrder {
		shuffle(plan, rng)
	}
	return plan
}

// shuffle applies an unbiased Fisher–Yates permutation in place.
func shuffle(plan []string, rng *rand.Rand) {
	for i := len(plan) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		plan[i], plan[j] = plan[j], plan[i]
	}
}
