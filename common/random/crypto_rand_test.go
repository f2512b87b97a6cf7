package random_test

import (
	"testing"

	"github.com/relaygate/relaygate/common/random"
)

func TestGetUUIDUniqueness(t *testing.T) {
	const iterations = 10000
	seen := make(map[string]bool, iterations)

	for i := 0; i < iterations; i++ {
		val := random.GetUUID()
		if seen[val] {
			t.Fatalf("duplicate UUID generated after %d iterations: %s", i, val)
		}
		seen[val] = true
	}
}
