package sim

import (
	"strconv"

	"github.com/opencav/shmbridge/internal/util"
	"github.com/opencav/shmbridge/pkg/core"
)

// Environment command keys.
const (
	KeyAutoTime  = "Auto Time"
	KeyTimeScale = "Time Scale"
	KeyTime      = "Time"
	KeyWeather   = "Weather"
	KeyClouds    = "Clouds"
	KeyFog       = "Fog"
	KeyRain      = "Rain"
	KeySnow      = "Snow"
)

// Environment renders simulation environment commands.
type Environment struct{}

// GenerateCommands renders every environment field.
func (Environment) GenerateCommands(cfg core.EnvironmentConfig) map[string]string {
	return map[string]string{
		KeyAutoTime:  util.FormatBool(cfg.AutoTime),
		KeyTimeScale: strconv.Itoa(cfg.TimeScale),
		KeyTime:      strconv.Itoa(cfg.TimeOfDay),
		KeyWeather:   strconv.Itoa(int(cfg.WeatherID)),
		KeyClouds:    util.FormatFloat(cfg.CloudIntensity),
		KeyFog:       util.FormatFloat(cfg.FogIntensity),
		KeyRain:      util.FormatFloat(cfg.RainIntensity),
		KeySnow:      util.FormatFloat(cfg.SnowIntensity),
	}
}
