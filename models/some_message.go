package models

// SomeMessage is published after every forecast request
type SomeMessage struct {
	MaxTemperatureDate Date `json:"maxTemperatureDate"`
	MaxTemperature     int  `json:"maxTemperature"`
}

// NewSomeMessage builds the message for the hottest forecast
func NewSomeMessage(forecasts []WeatherForecast) SomeMessage {
	hottest, _ := Hottest(forecasts)
	return SomeMessage{
		MaxTemperatureDate: hottest.Date,
		MaxTemperature:     hottest.TemperatureC,
	}
}
