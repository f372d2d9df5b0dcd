package model

// ladder is the ordered set of milestone lengths in days.
var ladder = [...]int{7, 14, 30, 60, 90, 180, 365}

// Rungs returns a copy of the milestone ladder.
func Rungs() []int {
	out := make([]int, len(ladder))
	copy(out, ladder[:])
	return out
}

// RungCount is the number of milestones on the ladder.
func RungCount() int {
	return len(ladder)
}

// IsRung reports whether days is one of the ladder lengths.
func IsRung(days int) bool {
	return rungIndex(days) >= 0
}

// NextTarget returns the rung after lastCompleted, or the first rung when
// nothing has been completed (lastCompleted == 0). The second result is false
// once the ladder is exhausted.
func NextTarget(lastCompleted int) (int, bool) {
	if lastCompleted == 0 {
		return ladder[0], true
	}
	i := rungIndex(lastCompleted)
	if i < 0 || i == len(ladder)-1 {
		return 0, false
	}
	return ladder[i+1], true
}

// PreviousTarget returns the rung before current, or 0 for the first rung.
func PreviousTarget(current int) int {
	i := rungIndex(current)
	if i <= 0 {
		return 0
	}
	return ladder[i-1]
}

func rungIndex(days int) int {
	for i, d := range ladder {
		if d == days {
			return i
		}
	}
	return -1
}
