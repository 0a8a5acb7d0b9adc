package core

import (
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Exerbud/exerbud-backend/internal/store"
)

const summaryWindow = 7 * 24 * time.Hour

// WeeklySummary is the rolling 7-day progress view shown on the dashboard.
// AvgCaloriesPerDay averages only the days that have at least one bucketed
// calorie figure, so inconsistent logging does not drag the number down.
type WeeklySummary struct {
	MealsCount        int     `json:"meals_count"`
	BodyScansCount    int     `json:"body_scans_count"`
	WorkoutsCount     int     `json:"workouts_count"`
	AvgCaloriesPerDay float64 `json:"avg_calories_per_day"`
}

// Indicator phrases for the heuristic fallback path. Matching is
// case-insensitive and best-effort; structured progress events are always
// the preferred source.
var (
	mealPhrases = []string{
		"analysis of your plate",
		"nutritional breakdown",
		"macros for this meal",
		"logged your meal",
		"meal log",
	}
	workoutPhrases = []string{
		"workout plan",
		"training plan",
		"exercise routine",
		"today's workout",
	}
	bodyScanPhrases = []string{
		"progress photos",
		"body scan",
		"physique check",
		"body composition",
	}

	calorieRe = regexp.MustCompile(`(?i)(\d+)\s*(?:kcal|calories)`)
)

// WeeklySummary computes the user's rolling 7-day stats. Any storage error
// degrades to a zeroed summary: progress stats are a convenience view and
// must never break the dashboard.
func (s *LedgerService) WeeklySummary(userID int64) WeeklySummary {
	return s.weeklySummary(userID, time.Now().UTC())
}

func (s *LedgerService) weeklySummary(userID int64, now time.Time) WeeklySummary {
	var summary WeeklySummary
	if s.dbStore == nil {
		return summary
	}
	since := now.Add(-summaryWindow)

	events, err := s.dbStore.GetProgressEventsSince(userID, since)
	if err != nil {
		log.Printf("Weekly summary degraded for user %d: %v", userID, err)
		return summary
	}
	if len(events) > 0 {
		return summarizeEvents(events)
	}

	// Fallback: no structured events in the window (older replies predate
	// the progress protocol, or the workflow never asked for it). Classify
	// raw assistant text instead.
	messages, err := s.dbStore.GetAssistantMessagesSince(userID, since)
	if err != nil {
		log.Printf("Weekly summary degraded for user %d: %v", userID, err)
		return summary
	}
	return summarizeHeuristically(messages)
}

func summarizeEvents(events []store.ProgressEvent) WeeklySummary {
	var summary WeeklySummary
	calories := map[string]float64{}

	for _, ev := range events {
		switch ev.Type {
		case store.EventMealLog:
			summary.MealsCount++
			var meal MealLogPayload
			if err := json.Unmarshal([]byte(ev.Payload), &meal); err != nil {
				log.Printf("Skipping unreadable meal_log payload for event %s: %v", ev.ID, err)
				continue
			}
			if meal.Calories > 0 {
				calories[dayKey(ev.CreatedAt)] += meal.Calories
			}
		case store.EventBodyScan:
			summary.BodyScansCount++
		case store.EventWorkoutPlan:
			summary.WorkoutsCount++
		}
	}

	summary.AvgCaloriesPerDay = averagePerDay(calories)
	return summary
}

func summarizeHeuristically(messages []store.Message) WeeklySummary {
	var summary WeeklySummary
	calories := map[string]float64{}

	for _, msg := range messages {
		text := strings.ToLower(msg.Content)
		isMeal := containsAny(text, mealPhrases)
		if isMeal {
			summary.MealsCount++
		}
		if containsAny(text, workoutPhrases) {
			summary.WorkoutsCount++
		}
		if containsAny(text, bodyScanPhrases) {
			summary.BodyScansCount++
		}
		if isMeal {
			if kcal, ok := extractCalories(msg.Content); ok {
				calories[dayKey(msg.CreatedAt)] += kcal
			}
		}
	}

	summary.AvgCaloriesPerDay = averagePerDay(calories)
	return summary
}

func containsAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// extractCalories opportunistically pulls the first "N kcal|calories"
// figure out of free text.
func extractCalories(text string) (float64, bool) {
	m := calorieRe.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	kcal, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	return kcal, true
}

// dayKey buckets by UTC calendar day.
func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// averagePerDay divides by the number of days that actually have data, not
// by the window length.
func averagePerDay(buckets map[string]float64) float64 {
	if len(buckets) == 0 {
		return 0
	}
	var total float64
	for _, v := range buckets {
		total += v
	}
	return total / float64(len(buckets))
}
