package bot

import "trend-grid-bot-go/internal/models"

// ValidTransitions is the complete phase graph. Anything not listed here is an
// invariant violation, not a request to be accommodated.
var ValidTransitions = map[models.BotPhase][]models.BotPhase{
	models.PhaseInactive: {models.PhaseWait},
	models.PhaseWait:     {models.PhaseActivate, models.PhaseInactive},
	models.PhaseActivate: {models.PhaseActive},
	models.PhaseActive:   {models.PhasePause, models.PhaseInactive},
	models.PhasePause:    {models.PhaseActive, models.PhaseInactive},
}

// CanTransition reports whether the edge from→to is part of the phase graph.
func CanTransition(from, to models.BotPhase) bool {
	for _, allowed := range ValidTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// PhaseInfo returns an operator-facing description of a phase.
func PhaseInfo(p models.BotPhase) string {
	switch p {
	case models.PhaseInactive:
		return "stopped, no orders being maintained"
	case models.PhaseWait:
		return "waiting for the activation filters to allow entry"
	case models.PhaseActivate:
		return "placing the first grid batch"
	case models.PhaseActive:
		return "grid live, levels maintained every tick"
	case models.PhasePause:
		return "paused, orders left in place"
	default:
		return "unknown phase"
	}
}

// IsRunning reports whether the controller is doing work in this phase.
func IsRunning(p models.BotPhase) bool {
	return p == models.PhaseWait || p == models.PhaseActivate ||
		p == models.PhaseActive || p == models.PhasePause
}
