package models

// Totals aggregates logged work across a session.
type Totals struct {
	Sets   int
	Reps   int
	Volume float64 // sum of weight * reps over weighted sets
}

func SessionTotals(exercises []SessionExercise) Totals {
	var t Totals
	for _, ex := range exercises {
		for _, set := range ex.Sets {
			t.Sets++
			t.Reps += set.Reps
			if set.Weight != nil {
				t.Volume += *set.Weight * float64(set.Reps)
			}
		}
	}
	return t
}
