package measurement

import (
	"fmt"
	"strings"

	"mdh-device-export/internal/mdh"
)

// Namespace describes one device data source: its API version, how abstract measurement
// names map onto its device data types, and how its catalog is filtered.
type Namespace struct {
	Name       string
	APIVersion int
	// Types maps abstract measurement names to device data types; "" marks a name the namespace cannot serve.
	Types map[string]string
	// RequireEnabled restricts the catalog to entries whose "enabled" flag is true.
	RequireEnabled bool
	// TrailingSlash appends "/" to the device data points path.
	TrailingSlash bool
}

// DeviceType resolves an abstract measurement name. ok is false when the name is absent or unsupported.
func (n Namespace) DeviceType(measurement string) (deviceType string, ok bool) {
	t, found := n.Types[measurement]
	if !found || t == "" {
		return "", false
	}
	return t, true
}

func (n Namespace) pointsPath(projectID string) string {
	p := mdh.ProjectPath(n.APIVersion, projectID, "devicedatapoints")
	if n.TrailingSlash {
		p += "/"
	}
	return p
}

func (n Namespace) dataTypesPath(projectID string) string {
	return mdh.ProjectPath(n.APIVersion, projectID, "devicedatapoints", "alldatatypes")
}

// AppleHealth is the Apple-native namespace, served by the v1 API.
var AppleHealth = Namespace{
	Name:           "AppleHealth",
	APIVersion:     1,
	RequireEnabled: true,
	TrailingSlash:  true,
	Types: map[string]string{
		"active_calories":       "TotalEnergyBurned",
		"active_calories_daily": "TotalEnergyBurned",
		"blood_glucose":         "BloodGlucose",
		"blood_pressure_sys":    "",
		"blood_pressure_dia":    "",
		"body_temp":             "Temperature",
		"distance":              "DistanceWalkingRunning",
		"distance_daily":        "TotalDistance",
		"exercise_segments":     "WorkoutEvent",
		"exercise_lat":          "WorkoutEvent",
		"exercise_lon":          "WorkoutEvent",
		"exercise_alt":          "WorkoutEvent",
		"exercise_hacc":         "WorkoutEvent",
		"exercise_vacc":         "WorkoutEvent",
		"exercise_laps":         "WorkoutEvent",
		"exercise_time":         "AppleExerciseTime",
		"heart_rate":            "HeartRate",
		"heart_rate_min":        "",
		"heart_rate_max":        "",
		"hrv":                   "HeartRateVariability",
		"oxygen_saturation":     "",
		"respiratory_rate":      "RespiratoryRate",
		"resting_hr":            "RestingHeartRate",
		"sleep":                 "SleepAnalysisInterval",
		"steps":                 "Steps",
		"steps_daily":           "DailySteps",
		"steps_hourly":          "HourlySteps",
		"steps_half_hourly":     "HalfHourSteps",
		"total_calories":        "TotalEnergyBurned",
		"total_calories_daily":  "TotalEnergyBurned",
		"vo2_max":               "",
		"weight":                "",
	},
}

// HealthConnect is the cross-platform namespace, served by the v2 API.
var HealthConnect = Namespace{
	Name:       "HealthConnect",
	APIVersion: 2,
	Types: map[string]string{
		"active_calories":       "active-calories-burned",
		"active_calories_daily": "active-calories-burned-daily",
		"blood_glucose":         "blood-glucose",
		"blood_pressure_sys":    "blood-pressure-systolic",
		"blood_pressure_dia":    "blood-pressure-diastolic",
		"body_temp":             "body-temperature",
		"distance":              "distance",
		"distance_daily":        "distance-daily",
		"exercise_segments":     "exercise-segments",
		"exercise_lat":          "exercise-route-latitude",
		"exercise_lon":          "exercise-route-longitude",
		"exercise_alt":          "exercise-route-altitude",
		"exercise_hacc":         "exercise-route-horizontalAccuracy",
		"exercise_vacc":         "exercise-route-verticalAccuracy",
		"exercise_laps":         "exercise-laps",
		"exercise_time":         "",
		"heart_rate":            "heart-rate",
		"heart_rate_min":        "heart-rate-daily-minimum",
		"heart_rate_max":        "heart-rate-daily-maximum",
		"hrv":                   "",
		"oxygen_saturation":     "oxygen-saturation",
		"respiratory_rate":      "respiratory-rate",
		"resting_hr":            "resting-heart-rate",
		"sleep":                 "sleep",
		"steps":                 "steps",
		"steps_daily":           "steps-daily",
		"steps_hourly":          "steps-hourly",
		"steps_half_hourly":     "steps-half-hourly",
		"total_calories":        "total-calories-burned",
		"total_calories_daily":  "total-calories-burned-daily",
		"vo2_max":               "vo2-max",
		"weight":                "weight",
	},
}

// Namespaces lists the built-in namespaces.
func Namespaces() []Namespace {
	return []Namespace{AppleHealth, HealthConnect}
}

// ParseNamespace resolves a namespace by name, case-insensitively.
func ParseNamespace(name string) (Namespace, error) {
	for _, ns := range Namespaces() {
		if strings.EqualFold(ns.Name, strings.TrimSpace(name)) {
			return ns, nil
		}
	}
	return Namespace{}, fmt.Errorf("measurement: unknown namespace %q", name)
}
