package bot

import (
	"testing"

	"trend-grid-bot-go/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionValidEdges(t *testing.T) {
	tests := []struct {
		name string
		from models.BotPhase
		to   models.BotPhase
	}{
		{"INACTIVE → WAIT (start)", models.PhaseInactive, models.PhaseWait},
		{"WAIT → ACTIVATE (filter allow)", models.PhaseWait, models.PhaseActivate},
		{"WAIT → INACTIVE (stop)", models.PhaseWait, models.PhaseInactive},
		{"ACTIVATE → ACTIVE (first confirm)", models.PhaseActivate, models.PhaseActive},
		{"ACTIVE → PAUSE (pause / filter block)", models.PhaseActive, models.PhasePause},
		{"ACTIVE → INACTIVE (stop)", models.PhaseActive, models.PhaseInactive},
		{"PAUSE → ACTIVE (resume / filter allow)", models.PhasePause, models.PhaseActive},
		{"PAUSE → INACTIVE (stop)", models.PhasePause, models.PhaseInactive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, CanTransition(tt.from, tt.to))
		})
	}
}

func TestCanTransitionInvalidEdges(t *testing.T) {
	tests := []struct {
		name string
		from models.BotPhase
		to   models.BotPhase
	}{
		{"INACTIVE → ACTIVE (must go through WAIT)", models.PhaseInactive, models.PhaseActive},
		{"INACTIVE → ACTIVATE", models.PhaseInactive, models.PhaseActivate},
		{"INACTIVE → PAUSE", models.PhaseInactive, models.PhasePause},
		{"WAIT → ACTIVE (skip ACTIVATE)", models.PhaseWait, models.PhaseActive},
		{"WAIT → PAUSE", models.PhaseWait, models.PhasePause},
		{"ACTIVATE → PAUSE", models.PhaseActivate, models.PhasePause},
		{"ACTIVATE → INACTIVE (stop mid-batch)", models.PhaseActivate, models.PhaseInactive},
		{"ACTIVATE → WAIT", models.PhaseActivate, models.PhaseWait},
		{"ACTIVE → WAIT", models.PhaseActive, models.PhaseWait},
		{"ACTIVE → ACTIVATE", models.PhaseActive, models.PhaseActivate},
		{"PAUSE → WAIT", models.PhasePause, models.PhaseWait},
		{"PAUSE → ACTIVATE", models.PhasePause, models.PhaseActivate},
		{"self loop ACTIVE → ACTIVE", models.PhaseActive, models.PhaseActive},
		{"unknown source", models.BotPhase("UNKNOWN"), models.PhaseWait},
		{"unknown target", models.PhaseWait, models.BotPhase("UNKNOWN")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.False(t, CanTransition(tt.from, tt.to))
		})
	}
}

func TestValidTransitionsNoSelfLoops(t *testing.T) {
	for from, tos := range ValidTransitions {
		for _, to := range tos {
			assert.NotEqual(t, from, to, "self loop %s", from)
		}
	}
}

func TestValidTransitionsTargetsAreKnownPhases(t *testing.T) {
	known := map[models.BotPhase]bool{
		models.PhaseInactive: true,
		models.PhaseWait:     true,
		models.PhaseActivate: true,
		models.PhaseActive:   true,
		models.PhasePause:    true,
	}
	for from, tos := range ValidTransitions {
		assert.True(t, known[from], "unknown source phase %s", from)
		for _, to := range tos {
			assert.True(t, known[to], "unknown target phase %s from %s", to, from)
		}
	}
}

func TestFullTradingCycleIsLegal(t *testing.T) {
	cycle := []models.BotPhase{
		models.PhaseInactive,
		models.PhaseWait,
		models.PhaseActivate,
		models.PhaseActive,
		models.PhasePause,
		models.PhaseActive,
		models.PhaseInactive,
	}
	for i := 0; i < len(cycle)-1; i++ {
		assert.True(t, CanTransition(cycle[i], cycle[i+1]),
			"cycle broken at %s → %s", cycle[i], cycle[i+1])
	}
}

func TestIsRunning(t *testing.T) {
	assert.False(t, IsRunning(models.PhaseInactive))
	assert.True(t, IsRunning(models.PhaseWait))
	assert.True(t, IsRunning(models.PhaseActivate))
	assert.True(t, IsRunning(models.PhaseActive))
	assert.True(t, IsRunning(models.PhasePause))
	assert.False(t, IsRunning(models.BotPhase("UNKNOWN")))
}
