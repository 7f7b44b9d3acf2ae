package models

import "encoding/json"

// Summaries are the descriptions a forecast can carry
var Summaries = []string{
	"Freezing", "Bracing", "Chilly", "Cool", "Mild", "Warm", "Balmy", "Hot", "Sweltering", "Scorching",
}

// Temperature bounds of generated forecasts, MaxTemperatureC is exclusive
const (
	MinTemperatureC = -20
	MaxTemperatureC = 55
)

// WeatherForecast is one day of the demo forecast
type WeatherForecast struct {
	Date         Date   `json:"date"`
	TemperatureC int    `json:"temperatureC"`
	Summary      string `json:"summary"`
}

// TemperatureF converts TemperatureC to Fahrenheit, truncating toward zero
func (f WeatherForecast) TemperatureF() int {
	return 32 + int(float64(f.TemperatureC)/0.5556)
}

// MarshalJSON adds the derived temperatureF field
func (f WeatherForecast) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date         Date   `json:"date"`
		TemperatureC int    `json:"temperatureC"`
		TemperatureF int    `json:"temperatureF"`
		Summary      string `json:"summary"`
	}{
		Date:         f.Date,
		TemperatureC: f.TemperatureC,
		TemperatureF: f.TemperatureF(),
		Summary:      f.Summary,
	})
}

// Hottest returns the forecast with the highest temperature, the first one on ties.
// ok is false for an empty slice.
func Hottest(forecasts []WeatherForecast) (hottest WeatherForecast, ok bool) {
	for i, f := range forecasts {
		if i == 0 || f.TemperatureC > hottest.TemperatureC {
			hottest = f
		}
	}
	return hottest, len(forecasts) > 0
}
