package versionguard

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/sbportal/editlock/pkg/testutil"
)

// Of any number of writers racing with the same expected version, exactly
// one commits; every loser observes the authoritative current version.
func TestPropertyRacingWritersExactlyOneWins(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("same expected version admits one winner", prop.ForAll(
		func(writers int) bool {
			g, err := NewGuard(NewMemoryStore(), &testutil.MockLogger{})
			if err != nil {
				return false
			}
			if _, err := g.CheckAndApply(context.Background(), "doc", nil, []byte(`{"seed":true}`)); err != nil {
				return false
			}

			expected := int64(1)
			results := make([]Result, writers)
			errs := make([]error, writers)
			var wg sync.WaitGroup
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					content := []byte(fmt.Sprintf(`{"writer":%d}`, i))
					results[i], errs[i] = g.CheckAndApply(context.Background(), "doc", &expected, content)
				}(i)
			}
			wg.Wait()

			winners := 0
			for i := 0; i < writers; i++ {
				if errs[i] != nil {
					return false
				}
				if results[i].Applied {
					winners++
					if results[i].NewVersion != 2 {
						return false
					}
				} else if results[i].CurrentVersion != 2 {
					return false
				}
			}
			return winners == 1
		},
		gen.IntRange(2, 12),
	))

	properties.TestingRun(t)
}

// Sequential writes that each carry the version they last observed always
// apply; the version increases by exactly one per write.
func TestPropertySequentialWritesAlwaysApply(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 50
	properties := gopter.NewProperties(parameters)

	properties.Property("observed-version writes never conflict", prop.ForAll(
		func(writes int) bool {
			g, err := NewGuard(NewMemoryStore(), &testutil.MockLogger{})
			if err != nil {
				return false
			}

			result, err := g.CheckAndApply(context.Background(), "doc", nil, []byte(`{}`))
			if err != nil || !result.Applied {
				return false
			}
			version := result.NewVersion
			for i := 0; i < writes; i++ {
				result, err = g.CheckAndApply(context.Background(), "doc", &version, []byte(`{}`))
				if err != nil || !result.Applied || result.NewVersion != version+1 {
					return false
				}
				version = result.NewVersion
			}
			return true
		},
		gen.IntRange(1, 20),
	))

	properties.TestingRun(t)
}
