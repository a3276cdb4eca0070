package hearing

// GenerateTriplet draws three distinct digits. When exclude is non-nil the
// first digit never equals *exclude.
func GenerateTriplet(rng Rand, exclude *int) Triplet {
	var t Triplet
	n := 0
	for n < 3 {
		d := rng.IntN(10)
		if n == 0 && exclude != nil && d == *exclude {
			continue
		}
		if contains(t[:n], d) {
			continue
		}
		t[n] = d
		n++
	}
	return t
}

// Valid reports whether every position holds a single digit.
func (t Triplet) Valid() bool {
	for _, d := range t {
		if d < 0 || d > 9 {
			return false
		}
	}
	return true
}

func contains(digits []int, d int) bool {
	for _, x := range digits {
		if x == d {
			return true
		}
	}
	return false
}
