package automation_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/input"
	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/services/automation"
)

func TestInterpreterKeyChordReleasesInReverse(t *testing.T) {
	dry := input.NewDryRun(800, 600)
	in := automation.NewInterpreter(dry, nil, 0)
	step := mustStep(t)(models.NewKeyStep("k", "c", models.ModCtrl, models.ModShift))

	require.NoError(t, in.Execute(context.Background(), step))

	var got []string
	for _, a := range dry.Actions() {
		got = append(got, string(a.Kind)+":"+a.Key)
	}
	assert.Equal(t, []string{
		"key_down:ctrl", "key_down:shift", "key_press:c", "key_up:shift", "key_up:ctrl",
	}, got)
}

func TestInterpreterReleasesModifiersOnFailure(t *testing.T) {
	dry := input.NewDryRun(800, 600)
	dry.FailOn(input.ActKey, errors.New("stuck key"))
	in := automation.NewInterpreter(dry, nil, 0)
	step := mustStep(t)(models.NewKeyStep("k", "v", models.ModCtrl))

	err := in.Execute(context.Background(), step)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "stuck key")
	assert.Equal(t, 1, dry.Count(input.ActKeyUp))
}

func TestInterpreterClickMovesThenClicks(t *testing.T) {
	dry := input.NewDryRun(800, 600)
	in := automation.NewInterpreter(dry, nil, time.Millisecond)
	step := mustStep(t)(models.NewClickStep("c", models.Point{X: 10, Y: 20}, models.ClickHold))

	require.NoError(t, in.Execute(context.Background(), step))

	acts := dry.Actions()
	require.Len(t, acts, 2)
	assert.Equal(t, input.ActMove, acts[0].Kind)
	assert.Equal(t, input.ActClick, acts[1].Kind)
	assert.Equal(t, models.Point{X: 10, Y: 20}, acts[1].Point)
	assert.Equal(t, input.ModeHold, acts[1].Mode)
}

func TestInterpreterDelayUsesSleep(t *testing.T) {
	var slept time.Duration
	sleep := func(ctx context.Context, d time.Duration) error {
		slept = d
		return nil
	}
	in := automation.NewInterpreter(input.NewDryRun(1, 1), sleep, 0)
	step := mustStep(t)(models.NewDelayStep("d", 75*time.Millisecond))

	require.NoError(t, in.Execute(context.Background(), step))
	assert.Equal(t, 75*time.Millisecond, slept)
}
