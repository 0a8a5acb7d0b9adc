package core

import "github.com/Exerbud/exerbud-backend/internal/store"

// Per-type progress payload shapes. These are decoded from the stored raw
// JSON only after the type discriminator is known, and only at read time;
// ingestion never depends on them.

// MealLogPayload carries the macro breakdown of one logged meal. Quality is
// a 0-100 score assigned by the coaching workflow.
type MealLogPayload struct {
	Calories float64 `json:"calories"`
	Protein  float64 `json:"protein"`
	Carbs    float64 `json:"carbs"`
	Fat      float64 `json:"fat"`
	Quality  float64 `json:"quality"`
}

// BodyScanPayload summarizes a physique check-in. Confidence is in [0,1].
type BodyScanPayload struct {
	Trend      string   `json:"trend"` // "improving", "steady", "declining"
	FocusAreas []string `json:"focus_areas"`
	Confidence float64  `json:"confidence"`
	Notes      string   `json:"notes"`
}

// WorkoutPlanPayload is a day-by-day exercise breakdown.
type WorkoutPlanPayload struct {
	Days []WorkoutDay `json:"days"`
}

type WorkoutDay struct {
	Day       string     `json:"day"`
	Exercises []Exercise `json:"exercises"`
}

type Exercise struct {
	Name string `json:"name"`
	Sets int    `json:"sets"`
	Reps int    `json:"reps"`
}

func isValidEventType(t string) bool {
	switch t {
	case store.EventMealLog, store.EventBodyScan, store.EventWorkoutPlan, store.EventInsight:
		return true
	}
	return false
}
