package mosaic

const (
	DefaultDensity = 30
	MinDensity     = 10
	MaxDensity     = 50

	minBlockSize = 5
)

// NormalizeDensity maps 0 to DefaultDensity and clamps everything else
// into [MinDensity, MaxDensity].
func NormalizeDensity(density int) int {
	if density == 0 {
		return DefaultDensity
	}
	return clampInt(density, MinDensity, MaxDensity)
}

// BlockSize returns the block edge in pixels for a normalized density.
// Density 10 gives 42, density 50 gives 10.
func BlockSize(density int) int {
	return maxInt(minBlockSize, int(50-float64(density)*0.8))
}

func clampInt(value int, minimum int, maximum int) int {
	if value < minimum {
		return minimum
	}
	if value > maximum {
		return maximum
	}
	return value
}

func minInt(left int, right int) int {
	if left < right {
		return left
	}
	return right
}

func maxInt(left int, right int) int {
	if left > right {
		return left
	}
	return right
}
