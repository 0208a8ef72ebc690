package tool

import (
	"strings"
	"time"
)

// WeatherInput is the input of weather_tool.
type WeatherInput struct {
	Latitude        *float64 `json:"latitude"`
	Longitude       *float64 `json:"longitude"`
	IncludePrevious bool     `json:"include_previous,omitempty"`
	UseArchive      bool     `json:"use_archive,omitempty"`
	ArchiveDate     string   `json:"archive_date,omitempty"`
}

// Validate checks coordinate ranges and the archive date format.
func (in *WeatherInput) Validate() error {
	var errs ValidationErrors
	switch {
	case in.Latitude == nil:
		errs.Add("latitude", "field required")
	case *in.Latitude < -90 || *in.Latitude > 90:
		errs.Add("latitude", "must be between -90 and 90")
	}
	switch {
	case in.Longitude == nil:
		errs.Add("longitude", "field required")
	case *in.Longitude < -180 || *in.Longitude > 180:
		errs.Add("longitude", "must be between -180 and 180")
	}
	in.ArchiveDate = strings.TrimSpace(in.ArchiveDate)
	if in.ArchiveDate != "" {
		if !datePattern.MatchString(in.ArchiveDate) {
			errs.Add("archive_date", "must be in YYYY-MM-DD format")
		} else if _, err := time.Parse(time.DateOnly, in.ArchiveDate); err != nil {
			errs.Add("archive_date", "is not a valid date")
		}
	}
	return errs.Err()
}

// Archive reports whether the historical endpoint should be queried.
func (in WeatherInput) Archive() bool {
	return in.UseArchive && in.ArchiveDate != ""
}

// WeatherData mirrors the Open-Meteo response body.
type WeatherData struct {
	Latitude  float64        `json:"latitude"`
	Longitude float64        `json:"longitude"`
	Timezone  string         `json:"timezone"`
	Current   map[string]any `json:"current,omitempty"`
	Daily     map[string]any `json:"daily,omitempty"`
	Hourly    map[string]any `json:"hourly,omitempty"`
}

// WeatherOutput is the output of weather_tool.
type WeatherOutput struct {
	Tool        Name        `json:"tool"`
	WeatherData WeatherData `json:"weather_data"`
}

// Query parameter lists requested from Open-Meteo.
var (
	WeatherCurrentParams = []string{
		"weather_code",
		"temperature_2m",
		"relative_humidity_2m",
		"apparent_temperature",
		"is_day",
		"precipitation",
		"precipitation_probability",
		"cloud_cover",
		"wind_speed_10m",
		"wind_direction_10m",
		"wind_gusts_10m",
	}

	WeatherDailyParams = []string{
		"weather_code",
		"temperature_2m_max",
		"temperature_2m_min",
		"apparent_temperature_max",
		"apparent_temperature_min",
		"sunrise",
		"sunset",
		"precipitation_sum",
		"precipitation_hours",
		"precipitation_probability_max",
		"precipitation_probability_min",
		"precipitation_probability_mean",
		"daylight_duration",
		"uv_index_max",
		"wind_gusts_10m_max",
	}
)

// WeatherQuery builds the query parameters for a validated weather request.
// Units and timezone are fixed.
func WeatherQuery(in WeatherInput) map[string]string {
	q := map[string]string{
		"latitude":           formatFloat(deref(in.Latitude)),
		"longitude":          formatFloat(deref(in.Longitude)),
		"timezone":           "America/New_York",
		"temperature_unit":   "fahrenheit",
		"wind_speed_unit":    "mph",
		"precipitation_unit": "inch",
		"daily":              strings.Join(WeatherDailyParams, ","),
	}
	if in.Archive() {
		q["start_date"] = in.ArchiveDate
		q["end_date"] = in.ArchiveDate
		return q
	}
	q["current"] = strings.Join(WeatherCurrentParams, ",")
	if in.IncludePrevious {
		q["past_days"] = "10"
	}
	return q
}

func deref(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}
