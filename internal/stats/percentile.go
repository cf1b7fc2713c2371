package stats

// FiveNumberSummary returns the five-number summary (min, Q1, median, Q3, max)
func FiveNumberSummary(values []float64) (min, q1, median, q3, max float64) {
	if len(values) == 0 {
		return 0, 0, 0, 0, 0
	}

	sorted := sortedCopy(values)
	min = sorted[0]
	max = sorted[len(sorted)-1]
	q1, median, q3 = quartilesSorted(sorted)
	return
}

// Quartiles returns the three quartiles (Q1, Q2/median, Q3)
func Quartiles(values []float64) (q1, q2, q3 float64) {
	if len(values) == 0 {
		return 0, 0, 0
	}
	return quartilesSorted(sortedCopy(values))
}

func quartilesSorted(sorted []float64) (q1, q2, q3 float64) {
	return quantileSorted(sorted, 0.25), quantileSorted(sorted, 0.5), quantileSorted(sorted, 0.75)
}
