package calibration

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// EnvPrefix is the prefix of every calibration override variable.
const EnvPrefix = "ACTUATION_"

// Process variables that share the prefix but are not calibration.
var reserved = map[string]bool{
	"FAMILY":       true,
	"LOG_LEVEL":    true,
	"FREQ":         true,
	"MONITOR_PORT": true,
	"RECORD":       true,
}

type setter func(p *Params, value string) error

func intSetter(field func(p *Params) *int32) setter {
	return func(p *Params, value string) error {
		v, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return err
		}

		*field(p) = int32(v)

		return nil
	}
}

func uintSetter(field func(p *Params) *uint64) setter {
	return func(p *Params, value string) error {
		v, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}

		*field(p) = v

		return nil
	}
}

func floatSetter(field func(p *Params) *float64) setter {
	return func(p *Params, value string) error {
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}

		*field(p) = v

		return nil
	}
}

var setters = map[string]setter{
	"STEER_MAX":                intSetter(func(p *Params) *int32 { return &p.Steer.MaxValue }),
	"STEER_DELTA_UP":           intSetter(func(p *Params) *int32 { return &p.Steer.DeltaUp }),
	"STEER_DELTA_DOWN":         intSetter(func(p *Params) *int32 { return &p.Steer.DeltaDown }),
	"STEER_OVERRIDE_ALLOWANCE": intSetter(func(p *Params) *int32 { return &p.Steer.OverrideAllowance }),
	"ENABLE_SPEED":             floatSetter(func(p *Params) *float64 { return &p.Engagement.EnableSpeed }),
	"DISABLE_SPEED":            floatSetter(func(p *Params) *float64 { return &p.Engagement.DisableSpeed }),
	"COOLDOWN_TICKS":           uintSetter(func(p *Params) *uint64 { return &p.Engagement.CooldownTicks }),
	"BRAKE_CHANGE_LIMIT":       floatSetter(func(p *Params) *float64 { return &p.Brake.ChangeLimit }),
	"BRAKE_DEADBAND":           floatSetter(func(p *Params) *float64 { return &p.Brake.Deadband }),
	"TORQUE_MIN":               floatSetter(func(p *Params) *float64 { return &p.Long.TorqueMin }),
	"TORQUE_MAX":               floatSetter(func(p *Params) *float64 { return &p.Long.TorqueMax }),
	"DRIVETRAIN_EFFICIENCY":    floatSetter(func(p *Params) *float64 { return &p.Long.DrivetrainEfficiency }),
	"MASS":                     floatSetter(func(p *Params) *float64 { return &p.Long.Mass }),
	"LONG_HORIZON":             floatSetter(func(p *Params) *float64 { return &p.Long.Horizon }),
	"LONGITUDINAL": func(p *Params, value string) error {
		v, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}

		p.Longitudinal = v

		return nil
	},
}

// OverrideKeys lists the variables ApplyOverrides understands, with the
// prefix.
func OverrideKeys() []string {
	keys := make([]string, 0, len(setters))
	for k := range setters {
		keys = append(keys, EnvPrefix+k)
	}

	sort.Strings(keys)

	return keys
}

// ApplyOverrides returns p with every recognized ACTUATION_* entry of env
// applied. Entries without the prefix are ignored; unknown prefixed entries
// and unparsable values are errors.
func ApplyOverrides(p Params, env map[string]string) (Params, error) {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		name, ok := strings.CutPrefix(k, EnvPrefix)
		if !ok || reserved[name] {
			continue
		}

		set, known := setters[name]
		if !known {
			return p, fmt.Errorf("calibration: unknown override %s", k)
		}

		if err := set(&p, strings.TrimSpace(env[k])); err != nil {
			return p, fmt.Errorf("calibration: bad value for %s: %w", k, err)
		}
	}

	if err := Validate(p); err != nil {
		return p, err
	}

	return p, nil
}

// LoadOverrides reads the given .env files and applies their entries to p.
func LoadOverrides(p Params, filenames ...string) (Params, error) {
	env, err := godotenv.Read(filenames...)
	if err != nil {
		return p, fmt.Errorf("calibration: reading overrides: %w", err)
	}

	return ApplyOverrides(p, env)
}

// Environ returns the ACTUATION_* variables of the process environment.
func Environ() map[string]string {
	env := make(map[string]string)

	for _, kv := range os.Environ() {
		k, v, ok := strings.Cut(kv, "=")
		if ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}

	return env
}

// Validate rejects calibrations the core cannot run on.
func Validate(p Params) error {
	switch {
	case p.Steer.MaxValue <= 0:
		return fmt.Errorf("calibration: steer max must be positive, got %d", p.Steer.MaxValue)
	case p.Steer.DeltaUp <= 0 || p.Steer.DeltaDown <= 0:
		return fmt.Errorf("calibration: steer deltas must be positive")
	case p.Engagement.DisableSpeed > p.Engagement.EnableSpeed:
		return fmt.Errorf("calibration: disable speed %.2f above enable speed %.2f",
			p.Engagement.DisableSpeed, p.Engagement.EnableSpeed)
	case p.Brake.ChangeLimit <= 0:
		return fmt.Errorf("calibration: brake change limit must be positive")
	case p.Long.TorqueMin > p.Long.TorqueMax:
		return fmt.Errorf("calibration: torque min above torque max")
	case p.Cadence.Steer == 0 || p.Cadence.Longitudinal == 0 || p.Cadence.Hud == 0 ||
		p.Cadence.KeepAlive == 0 || p.Cadence.Secondary == 0:
		return fmt.Errorf("calibration: cadences must be positive")
	}

	return nil
}
