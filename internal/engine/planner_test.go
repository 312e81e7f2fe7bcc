package engine

import (
	"math/rand"
	"sort"
	"testing"
)

func TestBuildPlan_FragmentsOnly(t *testing.T) {
	spec := PatchSpec{Fragments: []string{"a();", "b();"}}
	rng := rand.New(rand.NewSource(1))

	plan := BuildPlan(5, spec, rng)
	if len(plan) != 2 {
		t.Fatalf("plan length = %d, want 2", len(plan))
	}
	if plan[0] != "a();" || plan[1] != "b();" {
		t.Fatalf("order not preserved without shuffle: %v", plan)
	}
}

func TestBuildPlan_DecoysAppendMarkerCount(t *testing.T) {
	spec := PatchSpec{Fragments: []string{"a();"}, AddFakePatches: true}
	rng := rand.New(rand.NewSource(1))

	plan := BuildPlan(3, spec, rng)
	if len(plan) != 4 {
		t.Fatalf("plan length = %d, want fragments(1) + markerCount(3)", len(plan))
	}
	// Real fragments come first when shuffling is off.
	if plan[0] != "a();" {
		t.Fatalf("plan[0] = %q, want the real fragment", plan[0])
	}
}

func TestBuildPlan_ShuffleIsPermutation(t *testing.T) {
	fragments := []string{"f0", "f1", "f2", "f3", "f4", "f5"}
	spec := PatchSpec{Fragments: fragments, RandomizeOrder: true}

	for seed := int64(0); seed < 20; seed++ {
		rng := rand.New(rand.NewSource(seed))
		plan := BuildPlan(0, spec, rng)

		if len(plan) != len(fragments) {
			t.Fatalf("seed %d: plan length = %d, want %d", seed, len(plan), len(fragments))
		}
		got := append([]string(nil), plan...)
		want := append([]string(nil), fragments...)
		sort.Strings(got)
		sort.Strings(want)
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("seed %d: plan %v is not a permutation of %v", seed, plan, fragments)
			}
		}
	}
}

func TestBuildPlan_ShuffleReproducible(t *testing.T) {
	spec := PatchSpec{Fragments: []string{"f0", "f1", "f2", "f3"}, RandomizeOrder: true}

	first := BuildPlan(0, spec, rand.New(rand.NewSource(99)))
	second := BuildPlan(0, spec, rand.New(rand.NewSource(99)))
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("same seed produced different permutations: %v vs %v", first, second)
		}
	}
}

func TestBuildPlan_DoesNotMutateSpec(t *testing.T) {
	fragments := []string{"f0", "f1", "f2"}
	spec := PatchSpec{Fragments: fragments, RandomizeOrder: true, AddFakePatches: true}

	BuildPlan(2, spec, rand.New(rand.NewSource(3)))

	if fragments[0] != "f0" || fragments[1] != "f1" || fragments[2] != "f2" {
		t.Fatalf("spec fragments mutated: %v", fragments)
	}
}

func TestPatchSpec_Validate(t *testing.T) {
	if err := (PatchSpec{TimeoutMs: -1}).Validate(); err == nil {
		t.Fatal("negative timeout accepted")
	}
	if err := (PatchSpec{TimeoutMs: 0}).Validate(); err != nil {
		t.Fatalf("zero timeout rejected: %v", err)
	}
	if err := (PatchSpec{TimeoutMs: 500}).Validate(); err != nil {
		t.Fatalf("valid spec rejected: %v", err)
	}
}
