// pkg/core/environment.go
package core

// WeatherID selects a simulator weather preset.
type WeatherID int

const (
	WeatherCustom WeatherID = iota
	WeatherSunny
	WeatherCloudy
	WeatherLightFog
	WeatherHeavyFog
	WeatherLightRain
	WeatherHeavyRain
	WeatherLightSnow
	WeatherHeavySnow
)

// EnvironmentConfig holds the simulation environment parameters asserted on every tick.
// TimeScale only applies when AutoTime is set, TimeOfDay only when it is not.
// The intensities only apply to WeatherCustom.
type EnvironmentConfig struct {
	AutoTime       bool      `json:"autoTime" mapstructure:"autoTime"`
	TimeScale      int       `json:"timeScale" mapstructure:"timeScale"`
	TimeOfDay      int       `json:"timeOfDay" mapstructure:"timeOfDay"` // minutes after midnight
	WeatherID      WeatherID `json:"weatherID" mapstructure:"weatherID"`
	CloudIntensity float64   `json:"cloudIntensity" mapstructure:"cloudIntensity"`
	FogIntensity   float64   `json:"fogIntensity" mapstructure:"fogIntensity"`
	RainIntensity  float64   `json:"rainIntensity" mapstructure:"rainIntensity"`
	SnowIntensity  float64   `json:"snowIntensity" mapstructure:"snowIntensity"`
}
