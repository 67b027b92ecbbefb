package models_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/models"
)

func TestRGBMatches(t *testing.T) {
	actual := models.RGB{R: 255, G: 0, B: 0}
	target := models.RGB{R: 250, G: 5, B: 3}

	assert.True(t, actual.Matches(target, 10))
	assert.False(t, actual.Matches(target, 2), "channel diff 5 exceeds tolerance 2")
	assert.True(t, actual.Matches(actual, 0))
}

func TestParseHex(t *testing.T) {
	for _, in := range []string{"ff8000", "#FF8000", "0xff8000"} {
		c, err := models.ParseHex(in)
		require.NoError(t, err, in)
		assert.Equal(t, models.RGB{R: 255, G: 128, B: 0}, c)
		assert.Equal(t, "ff8000", c.Hex())
	}
	_, err := models.ParseHex("fff")
	assert.Error(t, err)
}

func TestStepJSONRoundTripKeepsVariant(t *testing.T) {
	key, err := models.NewKeyStep("k1", "c", models.ModCtrl)
	require.NoError(t, err)
	delay, err := models.NewDelayStep("d1", 250*time.Millisecond)
	require.NoError(t, err)

	data, err := json.Marshal([]models.Step{key.Repeat(3), delay.Disabled()})
	require.NoError(t, err)

	var decoded []models.Step
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Len(t, decoded, 2)

	assert.Equal(t, 3, decoded[0].LoopCount)
	assert.Equal(t, models.KeyAction{Key: "c", Modifiers: []models.Modifier{models.ModCtrl}}, decoded[0].Action)
	assert.False(t, decoded[1].Enabled)
	assert.Equal(t, models.DelayAction{Duration: 250 * time.Millisecond}, decoded[1].Action)
}

func TestStepJSONRejectsMissingFields(t *testing.T) {
	cases := map[string]string{
		"click without coordinates": `{"id":"a","type":"click","click_type":"left"}`,
		"click without click_type":  `{"id":"a","type":"click","coordinates":{"x":1,"y":2}}`,
		"move without coordinates":  `{"id":"a","type":"move"}`,
		"delay without delay_ms":    `{"id":"a","type":"delay"}`,
		"key without key":           `{"id":"a","type":"key"}`,
		"scroll without amount":     `{"id":"a","type":"scroll","scroll_direction":"up"}`,
		"unknown type":              `{"id":"a","type":"teleport"}`,
		"zero loop count":           `{"id":"a","type":"delay","delay_ms":5,"loop_count":-1}`,
		"bad modifier":              `{"id":"a","type":"key","key":"x","modifiers":["hyper"]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			var s models.Step
			err := json.Unmarshal([]byte(raw), &s)
			require.Error(t, err)
			assert.ErrorIs(t, err, models.ErrInvalidStep)
		})
	}
}

func TestStepConstructorsValidate(t *testing.T) {
	_, err := models.NewKeyStep("k", "  ")
	assert.ErrorIs(t, err, models.ErrInvalidStep)

	_, err = models.NewScrollStep("s", "sideways", 3)
	assert.ErrorIs(t, err, models.ErrInvalidStep)

	_, err = models.NewClickStep("c", models.Point{X: 1, Y: 1}, "thumb")
	assert.ErrorIs(t, err, models.ErrInvalidStep)

	s, err := models.NewScrollStep("s", models.ScrollDown, 3)
	require.NoError(t, err)
	assert.Equal(t, models.StepScroll, s.Kind())
}

func TestProfileValidate(t *testing.T) {
	p := models.NewProfile("p1", "clicker")
	require.NoError(t, p.Validate())

	p.Timing.IntervalMS = 5
	assert.ErrorIs(t, p.Validate(), models.ErrInvalidProfile)
	p.Timing = models.DefaultTiming()

	p.Trigger = models.TriggerPixel
	assert.ErrorIs(t, p.Validate(), models.ErrInvalidProfile)

	p.PixelTrigger = &models.PixelTrigger{Enabled: true, Condition: models.ConditionExact, CheckIntervalMS: 20}
	assert.ErrorIs(t, p.Validate(), models.ErrInvalidProfile, "check interval below 50ms")

	p.PixelTrigger.CheckIntervalMS = 100
	assert.NoError(t, p.Validate())
	assert.True(t, p.PixelArmed())

	p.Schedule = &models.ScheduleTrigger{Start: time.Now(), RepeatInterval: time.Minute, CronExpression: "* * * * *"}
	assert.ErrorIs(t, p.Validate(), models.ErrInvalidProfile, "repeat and cron are exclusive")
}

func TestProfileCopyIsDeep(t *testing.T) {
	p := models.NewProfile("p1", "macro")
	key, err := models.NewKeyStep("k", "v", models.ModCtrl)
	require.NoError(t, err)
	p.Steps = []models.Step{key}
	p.Limits.MaxClicks = models.IntPtr(5)
	p.Click.Target = &models.Point{X: 1, Y: 2}

	cp := p.Copy()
	p.Steps[0] = p.Steps[0].Disabled()
	*p.Limits.MaxClicks = 99
	p.Click.Target.X = 42

	assert.True(t, cp.Steps[0].Enabled)
	assert.Equal(t, 5, *cp.Limits.MaxClicks)
	assert.Equal(t, 1, cp.Click.Target.X)
}

func TestExecutionLogFinalize(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	l := &models.ExecutionLog{ID: "x", ProfileName: "p", StartTime: start}
	assert.False(t, l.Finalized())

	l.Finalize(start.Add(10*time.Second), 5, 0, models.StopLimits, "")
	require.True(t, l.Finalized())
	require.NotNil(t, l.AverageIntervalMS)
	assert.InDelta(t, 2000.0, *l.AverageIntervalMS, 0.001)
	assert.Equal(t, 10*time.Second, l.Duration())

	row := l.CSVRow()
	assert.Len(t, row, len(models.CSVHeader))
	assert.Equal(t, "limits_reached", row[8])
}

func TestScheduleTriggerJSON(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	in := models.ScheduleTrigger{Enabled: true, Start: start, RepeatInterval: 90 * time.Second}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out models.ScheduleTrigger
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in.RepeatInterval, out.RepeatInterval)
	assert.True(t, out.Start.Equal(start))
}
