package speech

const (
	DifficultyEasy   = 1
	DifficultyMedium = 2
	DifficultyHard   = 3
)

// TargetDifficulty picks the next exercise level from the recent average
// intelligibility. No history starts at the easiest level.
func TargetDifficulty(avgAccuracy *float64) int {
	switch {
	case avgAccuracy == nil:
		return DifficultyEasy
	case *avgAccuracy >= 90:
		return DifficultyHard
	case *avgAccuracy >= 70:
		return DifficultyMedium
	default:
		return DifficultyEasy
	}
}
