package pipeline_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/codefang-index/internal/pipeline"
)

var errStageBroken = errors.New("stage broken")

type fakeStage struct {
	name string
	err  error
	ran  *[]string
}

func (s fakeStage) Name() string { return s.name }

func (s fakeStage) Execute(*pipeline.StageContext) error {
	*s.ran = append(*s.ran, s.name)

	return s.err
}

func TestRunner_FixedOrder(t *testing.T) {
	t.Parallel()

	var ran []string

	runner := &pipeline.Runner{Stages: []pipeline.Stage{
		fakeStage{name: "one", ran: &ran},
		fakeStage{name: "two", ran: &ran},
		fakeStage{name: "three", ran: &ran},
	}}

	sc := pipeline.NewStageContext(context.Background(), "/tmp/repo", "r", "s")

	result, err := runner.Run(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"one", "two", "three"}, ran)
	assert.Len(t, result.Durations, 3)
}

func TestRunner_ErrorAbortsByDefault(t *testing.T) {
	t.Parallel()

	var ran []string

	runner := &pipeline.Runner{Stages: []pipeline.Stage{
		fakeStage{name: "one", ran: &ran},
		fakeStage{name: "broken", err: errStageBroken, ran: &ran},
		fakeStage{name: "never", ran: &ran},
	}}

	sc := pipeline.NewStageContext(context.Background(), "/tmp/repo", "r", "s")

	_, err := runner.Run(sc)
	require.ErrorIs(t, err, pipeline.ErrStageFailed)
	require.ErrorIs(t, err, errStageBroken)
	assert.Equal(t, []string{"one", "broken"}, ran)
}

func TestRunner_ContinueOnErrorRecordsAndProceeds(t *testing.T) {
	t.Parallel()

	var ran []string

	runner := &pipeline.Runner{Stages: []pipeline.Stage{
		fakeStage{name: "broken", err: errStageBroken, ran: &ran},
		fakeStage{name: "after", ran: &ran},
	}}

	sc := pipeline.NewStageContext(context.Background(), "/tmp/repo", "r", "s")
	sc.ContinueOnError = true

	result, err := runner.Run(sc)
	require.NoError(t, err)
	assert.Equal(t, []string{"broken", "after"}, ran)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "broken", result.Errors[0].Stage)
}
