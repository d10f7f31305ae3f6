package models

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testPayload() *NewJobPayload {
	return &NewJobPayload{
		UserID: "u1",
		Steps: []*NewStepPayload{
			{
				Name:        "analyze",
				Service:     "frequency_analysis",
				CommandSpec: &CommandSpec{Program: "analyzer", Flags: Flags{{Name: "-i", Value: "{{in}}"}}},
				Inputs:      map[string]string{"in": "users/u1/uploads/a.wav"},
				Outputs:     map[string]string{"out": "users/{{user_id}}/jobs/{{job_id}}/{{composite_name}}/a.csv"},
			},
			{
				Name:        "summarize",
				Service:     "aggregation",
				CommandSpec: &CommandSpec{Program: "summarize"},
				Inputs:      map[string]string{"src": "{{steps.analyze.outputs.out}}"},
				Outputs:     map[string]string{"report": "users/{{user_id}}/jobs/{{job_id}}/{{composite_name}}/report.csv"},
			},
		},
		StepTransitions: []*NewTransitionPayload{
			{FromStepName: "analyze", ToStepName: "summarize", OutputToInputMapping: map[string]string{"out": "src"}},
		},
	}
}

func TestPayloadValidateSuccess(t *testing.T) {
	require.Nil(t, testPayload().Validate())
}

func TestPayloadValidateEmptySteps(t *testing.T) {
	payload := &NewJobPayload{}
	err := payload.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "steps must not be empty")
}

func TestPayloadValidateDuplicateStepNames(t *testing.T) {
	payload := testPayload()
	payload.Steps[1].Name = payload.Steps[0].Name
	err := payload.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "duplicate step name")
}

func TestPayloadValidateMissingProgram(t *testing.T) {
	payload := testPayload()
	payload.Steps[0].CommandSpec = &CommandSpec{}
	err := payload.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "program must be set")
}

func TestPayloadValidateUndeclaredTransitionStep(t *testing.T) {
	payload := testPayload()
	payload.StepTransitions[0].ToStepName = "nowhere"
	err := payload.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "undeclared step")
}

func TestPayloadValidateRejectsCycle(t *testing.T) {
	payload := testPayload()
	payload.StepTransitions = append(payload.StepTransitions,
		&NewTransitionPayload{FromStepName: "summarize", ToStepName: "analyze"})
	err := payload.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func testJob() *Job {
	now := NewTime(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC))
	steps := []*Step{
		{ID: "s0", Name: "a", Order: 0, Service: "x", CommandSpec: &CommandSpec{Program: "p"}, Status: StatusComplete},
		{ID: "s1", Name: "b", Order: 1, Service: "y", CommandSpec: &CommandSpec{Program: "q"}, Status: StatusPending},
		{ID: "s2", Name: "c", Order: 2, Service: "z", CommandSpec: &CommandSpec{Program: "r"}, Status: StatusPending},
	}
	return &Job{
		ID:     "j1",
		UserID: "u1",
		Status: StatusProcessing,
		Steps:  steps,
		StepTransitions: []*Transition{
			{FromStepID: "s0", ToStepID: "s1"},
			{FromStepID: "s1", ToStepID: "s2"},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestJobValidate(t *testing.T) {
	require.Nil(t, testJob().Validate())
}

func TestJobValidateNonDenseOrders(t *testing.T) {
	job := testJob()
	job.Steps[2].Order = 5
	err := job.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "dense")
}

func TestJobValidateRejectsCycle(t *testing.T) {
	job := testJob()
	job.StepTransitions = append(job.StepTransitions, &Transition{FromStepID: "s2", ToStepID: "s0"})
	err := job.Validate()
	require.Error(t, err)
	require.Contains(t, err.Error(), "cycle")
}

func TestJobStepLookups(t *testing.T) {
	job := testJob()
	require.Equal(t, "a", job.StepByID("s0").Name)
	require.Nil(t, job.StepByID("missing"))
	require.Equal(t, StepID("s1"), job.StepByName("b").ID)
	require.Nil(t, job.StepByName("missing"))
}

func TestFirstIncompleteStep(t *testing.T) {
	job := testJob()
	require.Equal(t, StepID("s1"), job.FirstIncompleteStep().ID)

	// A failed step earlier in the order takes precedence
	job.Steps[0].Status = StatusFailed
	job.Steps[0].ErrorMessage = "boom"
	require.Equal(t, StepID("s0"), job.FirstIncompleteStep().ID)

	for _, step := range job.Steps {
		step.Status = StatusComplete
		step.ErrorMessage = ""
	}
	require.Nil(t, job.FirstIncompleteStep())
	require.True(t, job.AllStepsComplete())
}

func TestInitialStepsAndInboundTransitions(t *testing.T) {
	job := testJob()
	initial := job.InitialSteps()
	require.Len(t, initial, 1)
	require.Equal(t, StepID("s0"), initial[0].ID)

	inbound := job.InboundTransitions("s1")
	require.Len(t, inbound, 1)
	require.Equal(t, StepID("s0"), inbound[0].FromStepID)
	require.Empty(t, job.InboundTransitions("s0"))
}

func TestApplyMapping(t *testing.T) {
	outputs := map[string]string{"out": "users/u1/jobs/j1/000_x_p_ab/a.wav", "log": "users/u1/jobs/j1/000_x_p_ab/a.log"}

	mapped := (&Transition{FromStepID: "s0", ToStepID: "s1", OutputToInputMapping: map[string]string{"out": "src"}}).ApplyMapping(outputs)
	require.Equal(t, map[string]string{"src": "users/u1/jobs/j1/000_x_p_ab/a.wav"}, mapped)

	// No mapping passes every output through under its own name
	passthrough := (&Transition{FromStepID: "s0", ToStepID: "s1"}).ApplyMapping(outputs)
	require.Equal(t, outputs, passthrough)

	// Mapping entries with no matching source output are skipped
	sparse := (&Transition{FromStepID: "s0", ToStepID: "s1", OutputToInputMapping: map[string]string{"absent": "dst"}}).ApplyMapping(outputs)
	require.Empty(t, sparse)
}

func TestCompositeName(t *testing.T) {
	step := &Step{
		Order:       0,
		Service:     "tempo",
		CommandSpec: &CommandSpec{Program: "beatfinder", Flags: Flags{{Name: "-bpm", Value: int64(120)}}},
	}
	name := step.CompositeName()
	require.True(t, strings.HasPrefix(name, "000_tempo_beatfinder_"))
	require.Len(t, name, len("000_tempo_beatfinder_")+8)

	// Identical (order, service, program, flags) produce identical names
	again := &Step{Order: 0, Service: "tempo", CommandSpec: &CommandSpec{Program: "beatfinder", Flags: Flags{{Name: "-bpm", Value: int64(120)}}}}
	require.Equal(t, name, again.CompositeName())

	// A different order changes the prefix but not the hash suffix
	shifted := &Step{Order: 7, Service: "tempo", CommandSpec: &CommandSpec{Program: "beatfinder", Flags: Flags{{Name: "-bpm", Value: int64(120)}}}}
	require.True(t, strings.HasPrefix(shifted.CompositeName(), "007_tempo_beatfinder_"))
	require.Equal(t, name[len(name)-8:], shifted.CompositeName()[len(shifted.CompositeName())-8:])
}

func TestStatusTransitions(t *testing.T) {
	require.True(t, StatusPending.CanTransitionTo(StatusProcessing))
	require.False(t, StatusPending.CanTransitionTo(StatusComplete))
	require.True(t, StatusProcessing.CanTransitionTo(StatusComplete))
	require.True(t, StatusProcessing.CanTransitionTo(StatusFailed))
	require.False(t, StatusComplete.CanTransitionTo(StatusProcessing))
	require.False(t, StatusFailed.CanTransitionTo(StatusPending))
	require.True(t, StatusComplete.HasFinished())
	require.True(t, StatusFailed.HasFinished())
	require.False(t, StatusProcessing.HasFinished())
}

func TestStepEventTypeForStatus(t *testing.T) {
	require.Equal(t, EventTypeStepProcessing, StepEventTypeForStatus(StatusProcessing))
	require.Equal(t, EventTypeStepComplete, StepEventTypeForStatus(StatusComplete))
	require.Equal(t, EventTypeStepFailed, StepEventTypeForStatus(StatusFailed))
}
