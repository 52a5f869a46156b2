package service

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/evdriver/evdriver/internal/core/domain"
)

// NormalizeMode coerces SetMode.Raw into a domain.Mode, accepting an int,
// bool, or case-insensitive string, per the command-application rule that
// this is the only place such coercion is allowed. Anything else is
// rejected and the command discarded with a warning.
func NormalizeMode(raw any) (domain.Mode, error) {
	switch v := raw.(type) {
	case domain.Mode:
		if v >= domain.ModeManual && v <= domain.ModeScheduled {
			return v, nil
		}
		return 0, fmt.Errorf("mode %d out of range", v)
	case int:
		return normalizeModeInt(v)
	case int32:
		return normalizeModeInt(int(v))
	case int64:
		return normalizeModeInt(int(v))
	case float64:
		return normalizeModeInt(int(v))
	case bool:
		if v {
			return domain.ModeAuto, nil
		}
		return domain.ModeManual, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "manual", "0":
			return domain.ModeManual, nil
		case "auto", "1":
			return domain.ModeAuto, nil
		case "scheduled", "schedule", "2":
			return domain.ModeScheduled, nil
		default:
			return 0, fmt.Errorf("unrecognised mode %q", v)
		}
	default:
		return 0, fmt.Errorf("unrecognised mode value %v (%T)", raw, raw)
	}
}

func normalizeModeInt(v int) (domain.Mode, error) {
	switch v {
	case 0:
		return domain.ModeManual, nil
	case 1:
		return domain.ModeAuto, nil
	case 2:
		return domain.ModeScheduled, nil
	default:
		return 0, fmt.Errorf("mode %d out of range", v)
	}
}

// NormalizeStartStop coerces SetStartStop.Raw into {0,1}. Any truthy number,
// bool, or string normalises to 1.
func NormalizeStartStop(raw any) (int, error) {
	switch v := raw.(type) {
	case bool:
		if v {
			return 1, nil
		}
		return 0, nil
	case int:
		return boolToStartStop(v != 0), nil
	case int32:
		return boolToStartStop(v != 0), nil
	case int64:
		return boolToStartStop(v != 0), nil
	case float64:
		return boolToStartStop(v != 0), nil
	case string:
		s := strings.ToLower(strings.TrimSpace(v))
		switch s {
		case "1", "true", "on", "start", "yes":
			return 1, nil
		case "0", "false", "off", "stop", "no", "":
			return 0, nil
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return boolToStartStop(f != 0), nil
		}
		return 0, fmt.Errorf("unrecognised start/stop value %q", v)
	default:
		return 0, fmt.Errorf("unrecognised start/stop value %v (%T)", raw, raw)
	}
}

func boolToStartStop(b bool) int {
	if b {
		return 1
	}
	return 0
}

// NormalizeSetCurrent clamps amps into [MinSetCurrentA, MaxSetCurrentA].
// Out-of-range values are not rejected, they are raised/lowered to the
// bound with a notice (a Policy notice, never an error to the caller).
func NormalizeSetCurrent(amps float64) (value float64, notice string) {
	switch {
	case amps < domain.MinSetCurrentA:
		return domain.MinSetCurrentA, fmt.Sprintf("set_current %.1fA below minimum, raised to %.1fA", amps, domain.MinSetCurrentA)
	case amps > domain.MaxSetCurrentA:
		return domain.MaxSetCurrentA, fmt.Sprintf("set_current %.1fA above maximum, lowered to %.1fA", amps, domain.MaxSetCurrentA)
	default:
		return amps, ""
	}
}

// ApplyCommand mutates intent in place per a single drained command,
// returning a non-nil *domain.CommandRejection when normalisation fails.
// Commands are applied in drained order before mode evaluation runs.
func ApplyCommand(intent *domain.Intent, cmd domain.Command) *domain.CommandRejection {
	switch c := cmd.(type) {
	case domain.SetMode:
		mode, err := NormalizeMode(c.Raw)
		if err != nil {
			return &domain.CommandRejection{Command: cmd, Reason: err.Error()}
		}
		intent.Mode = mode
	case domain.SetStartStop:
		v, err := NormalizeStartStop(c.Raw)
		if err != nil {
			return &domain.CommandRejection{Command: cmd, Reason: err.Error()}
		}
		intent.StartStop = v
	case domain.SetCurrent:
		intent.SetCurrentA, _ = NormalizeSetCurrent(c.Amps)
	default:
		return &domain.CommandRejection{Command: cmd, Reason: "unrecognised command type"}
	}
	return nil
}
