package eval

import (
	"context"
	"fmt"
)

// ExactMatch scores 1 when output and expected render to the same
// string, 0 otherwise (spec §8 scenario 5's default scorer).
func ExactMatch(_ context.Context, output, expected any) (float64, error) {
	if fmt.Sprint(output) == fmt.Sprint(expected) {
		return 1, nil
	}
	return 0, nil
}
