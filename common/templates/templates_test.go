package templates

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
)

func testJob() (*models.Job, *models.Step) {
	upstream := &models.Step{
		ID:          "s0",
		Name:        "analyze",
		Order:       0,
		Service:     "frequency_analysis",
		CommandSpec: &models.CommandSpec{Program: "analyzer"},
		Outputs:     map[string]string{"out": "users/u1/jobs/j1/000_frequency_analysis_analyzer_abcd1234/a.csv"},
		Status:      models.StatusComplete,
	}
	step := &models.Step{
		ID:          "s1",
		Name:        "summarize",
		Order:       1,
		Service:     "aggregation",
		CommandSpec: &models.CommandSpec{Program: "summarize"},
		Status:      models.StatusPending,
	}
	job := &models.Job{
		ID:     "j1",
		UserID: "u1",
		Status: models.StatusProcessing,
		Steps:  []*models.Step{upstream, step},
	}
	return job, step
}

func TestResolveScalarTokens(t *testing.T) {
	job, step := testJob()

	resolved, err := Resolve("users/{{user_id}}/jobs/{{job_id}}/{{composite_name}}/report.csv", job, step)
	require.Nil(t, err)
	require.Equal(t, "users/u1/jobs/j1/"+step.CompositeName()+"/report.csv", resolved)

	// Whitespace inside the braces is tolerated
	resolved, err = Resolve("{{ job_id }}/{{ step_id }}", job, step)
	require.Nil(t, err)
	require.Equal(t, "j1/s1", resolved)
}

func TestResolveCrossStepReference(t *testing.T) {
	job, step := testJob()
	resolved, err := Resolve("{{steps.analyze.outputs.out}}", job, step)
	require.Nil(t, err)
	require.Equal(t, "users/u1/jobs/j1/000_frequency_analysis_analyzer_abcd1234/a.csv", resolved)
}

func TestResolveUnknownScalarLeftAsIs(t *testing.T) {
	job, step := testJob()

	resolved, err := Resolve("{{nonsense}}/x", job, step)
	require.Nil(t, err)
	require.Equal(t, "{{nonsense}}/x", resolved)

	// Dotted tokens outside the steps namespace also pass through
	resolved, err = Resolve("{{vars.tempo}}", job, step)
	require.Nil(t, err)
	require.Equal(t, "{{vars.tempo}}", resolved)
}

func TestResolveUnknownStepReferenceFails(t *testing.T) {
	job, step := testJob()

	_, err := Resolve("{{steps.nowhere.outputs.out}}", job, step)
	require.Error(t, err)
	require.True(t, gerror.IsUnknownReference(err))

	_, err = Resolve("{{steps.analyze.outputs.missing}}", job, step)
	require.Error(t, err)
	require.True(t, gerror.IsUnknownReference(err))

	// A malformed steps reference is an error, not a passthrough
	_, err = Resolve("{{steps.analyze.inputs.out}}", job, step)
	require.Error(t, err)
	require.True(t, gerror.IsUnknownReference(err))
}

func TestResolveSinglePass(t *testing.T) {
	job, step := testJob()
	// A substituted value containing template syntax is not expanded again
	job.Steps[0].Outputs["out"] = "{{job_id}}/literal"
	resolved, err := Resolve("{{steps.analyze.outputs.out}}", job, step)
	require.Nil(t, err)
	require.Equal(t, "{{job_id}}/literal", resolved)

	// Resolving an already-resolved value is a no-op
	again, err := Resolve("users/u1/jobs/j1/report.csv", job, step)
	require.Nil(t, err)
	require.Equal(t, "users/u1/jobs/j1/report.csv", again)
}

func TestResolveMultipleTokens(t *testing.T) {
	job, step := testJob()
	resolved, err := Resolve("{{job_id}} and {{steps.analyze.outputs.out}} and {{user_id}}", job, step)
	require.Nil(t, err)
	require.Equal(t, "j1 and users/u1/jobs/j1/000_frequency_analysis_analyzer_abcd1234/a.csv and u1", resolved)
}

func TestResolveAll(t *testing.T) {
	job, step := testJob()
	resolved, err := ResolveAll(map[string]string{
		"src":    "{{steps.analyze.outputs.out}}",
		"report": "users/{{user_id}}/jobs/{{job_id}}/{{composite_name}}/report.csv",
	}, job, step)
	require.Nil(t, err)
	require.Equal(t, map[string]string{
		"src":    "users/u1/jobs/j1/000_frequency_analysis_analyzer_abcd1234/a.csv",
		"report": "users/u1/jobs/j1/" + step.CompositeName() + "/report.csv",
	}, resolved)

	_, err = ResolveAll(map[string]string{"bad": "{{steps.nowhere.outputs.out}}"}, job, step)
	require.Error(t, err)
	require.True(t, gerror.IsUnknownReference(err))
}
