package question

import "math"

// levelGrowthRate is the exponent of the experience curve:
// exp required for level L is 10 * L^1.5.
const levelGrowthRate = 1.5

// LevelForExp inverts the experience curve:
// level = floor((exp/10)^(1/1.5)), never below 1.
func LevelForExp(exp int64) int64 {
	if exp < 0 {
		return 1
	}
	level := int64(math.Floor(math.Pow(float64(exp)/10.0, 1.0/levelGrowthRate)))
	if level < 1 {
		return 1
	}
	return level
}
