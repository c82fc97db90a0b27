package domain

import (
	"math/rand"
	"testing"
)

func TestCanAdvanceGenerationStepNeverRegresses(t *testing.T) {
	steps := []GenerationStep{
		GenerationStepPending,
		GenerationStepMonaLisa,
		GenerationStepPetIntegration,
		GenerationStepCompleted,
		GenerationStepFailed,
	}
	rank := map[GenerationStep]int{
		GenerationStepPending:        0,
		GenerationStepMonaLisa:       1,
		GenerationStepPetIntegration: 2,
		GenerationStepCompleted:      3,
		GenerationStepFailed:         3,
	}
	terminal := map[GenerationStep]bool{
		GenerationStepCompleted: true,
		GenerationStepFailed:    true,
	}

	rng := rand.New(rand.NewSource(1))
	for run := 0; run < 500; run++ {
		current := GenerationStepPending
		for op := 0; op < 20; op++ {
			target := steps[rng.Intn(len(steps))]
			if !CanAdvanceGenerationStep(current, target) {
				continue
			}
			if rank[target] < rank[current] {
				t.Fatalf("run %d op %d: accepted regression %s -> %s", run, op, current, target)
			}
			if terminal[current] && target != current {
				t.Fatalf("run %d op %d: accepted move out of terminal step %s -> %s", run, op, current, target)
			}
			current = target
		}
	}
}

func TestCanAdvanceGenerationStepSkipsAreRejected(t *testing.T) {
	cases := []struct {
		current GenerationStep
		target  GenerationStep
	}{
		{GenerationStepPending, GenerationStepPetIntegration},
		{GenerationStepPending, GenerationStepCompleted},
		{GenerationStepMonaLisa, GenerationStepCompleted},
		{GenerationStepMonaLisa, GenerationStepPending},
		{GenerationStepCompleted, GenerationStepFailed},
		{GenerationStepFailed, GenerationStepPending},
	}
	for _, tc := range cases {
		if CanAdvanceGenerationStep(tc.current, tc.target) {
			t.Errorf("expected %s -> %s to be rejected", tc.current, tc.target)
		}
	}
}
