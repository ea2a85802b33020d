package bridge

import "github.com/opencav/shmbridge/pkg/core"

// Synthesize merges command field maps into one message.
// On a key collision the later map wins.
func Synthesize(parts ...map[string]string) core.CommandMessage {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	msg := make(core.CommandMessage, n)
	for _, p := range parts {
		for k, v := range p {
			msg[k] = v
		}
	}
	return msg
}

// IndicatorFor selects hazard lights once the vehicle has collided.
func IndicatorFor(collisions int) core.IndicatorMode {
	if collisions > 0 {
		return core.IndicatorsHazard
	}
	return core.IndicatorsDisabled
}
