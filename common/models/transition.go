package models

import (
	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
)

// Transition is a directed edge between two steps with an output-name to
// input-name projection. Transitions are immutable after creation.
type Transition struct {
	FromStepID StepID `json:"from_step_id" bson:"from_step_id"`
	ToStepID   StepID `json:"to_step_id" bson:"to_step_id"`
	// OutputToInputMapping maps source output names to target input names.
	// An empty mapping passes every output through under its own name.
	OutputToInputMapping map[string]string `json:"output_to_input_mapping,omitempty" bson:"output_to_input_mapping,omitempty"`
}

// ApplyMapping projects a source step's outputs onto the target step's input
// names. Source outputs not named by the mapping are dropped; mapping entries
// whose source output is absent are skipped.
func (m *Transition) ApplyMapping(sourceOutputs map[string]string) map[string]string {
	mapped := make(map[string]string, len(sourceOutputs))
	if len(m.OutputToInputMapping) == 0 {
		for name, value := range sourceOutputs {
			mapped[name] = value
		}
		return mapped
	}
	for sourceName, targetName := range m.OutputToInputMapping {
		if value, ok := sourceOutputs[sourceName]; ok {
			mapped[targetName] = value
		}
	}
	return mapped
}

func (m *Transition) Validate() error {
	var result *multierror.Error
	if !m.FromStepID.Valid() {
		result = multierror.Append(result, errors.New("error from step id must be set"))
	}
	if !m.ToStepID.Valid() {
		result = multierror.Append(result, errors.New("error to step id must be set"))
	}
	if m.FromStepID.Valid() && m.FromStepID == m.ToStepID {
		result = multierror.Append(result, errors.New("error transition must not reference the same step twice"))
	}
	return result.ErrorOrNil()
}
