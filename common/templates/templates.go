package templates

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/fatih/structs"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
)

// fieldTemplateRegex matches our standard template syntax of "{{ job_id }}"
// or "{{ steps.analyze.outputs.out }}".
var fieldTemplateRegex = regexp.MustCompile("\\{\\{ *(.+?) *}}")

const (
	stepsContextKey   = "steps"
	outputsContextKey = "outputs"
)

// scalarTemplateData holds the step-scoped scalar tokens available to every
// template.
type scalarTemplateData struct {
	JobID         string `structs:"job_id"`
	UserID        string `structs:"user_id"`
	StepID        string `structs:"step_id"`
	CompositeName string `structs:"composite_name"`
}

// Resolve substitutes template tokens in value against the given job and
// step. Scalar tokens (job_id, user_id, step_id, composite_name) resolve
// from the step's own identity; steps.<name>.outputs.<key> tokens resolve
// from sibling steps located by name. Resolution is single-pass: a
// substituted value that itself contains template syntax is not expanded
// again. Unknown scalar tokens are left in place so partial resolution is
// safe; a cross-step reference naming an unknown step or output key fails
// with UnknownReference.
func Resolve(value string, job *models.Job, step *models.Step) (string, error) {
	matches := fieldTemplateRegex.FindAllStringSubmatch(value, 256) // Some upper bound we expect to never be hit
	if len(matches) == 0 {
		return value, nil
	}
	scalarContext := structs.Map(&scalarTemplateData{
		JobID:         job.ID.String(),
		UserID:        job.UserID.String(),
		StepID:        step.ID.String(),
		CompositeName: step.CompositeName(),
	})
	for _, match := range matches {
		if len(match) != 2 {
			return "", fmt.Errorf("error unexpected regex result (!=2)")
		}
		outer := match[0] // e.g. "{{ steps.analyze.outputs.out }}"
		inner := match[1] // e.g. "steps.analyze.outputs.out"
		parts := strings.Split(inner, ".")
		if parts[0] == stepsContextKey {
			resolved, err := resolveStepReference(outer, parts, job)
			if err != nil {
				return "", err
			}
			value = strings.Replace(value, outer, resolved, 1)
			continue
		}
		if len(parts) != 1 {
			// Not a recognized token shape, leave as-is
			continue
		}
		scalar, ok := scalarContext[inner]
		if !ok {
			// Unknown scalar token, leave as-is
			continue
		}
		value = strings.Replace(value, outer, fmt.Sprintf("%v", scalar), 1)
	}
	return value, nil
}

// ResolveAll resolves every value of the given map, returning a new map. The
// input map is never modified.
func ResolveAll(values map[string]string, job *models.Job, step *models.Step) (map[string]string, error) {
	resolved := make(map[string]string, len(values))
	for name, value := range values {
		v, err := Resolve(value, job, step)
		if err != nil {
			return nil, fmt.Errorf("error resolving %q: %w", name, err)
		}
		resolved[name] = v
	}
	return resolved, nil
}

// resolveStepReference resolves a steps.<name>.outputs.<key> reference
// against the job's steps.
func resolveStepReference(outer string, parts []string, job *models.Job) (string, error) {
	if len(parts) != 4 || parts[2] != outputsContextKey {
		return "", gerror.NewErrUnknownReference("Unknown template reference").IDetail("reference", outer)
	}
	target := job.StepByName(parts[1])
	if target == nil {
		return "", gerror.NewErrUnknownReference("Unknown step in template reference").
			IDetail("reference", outer).
			IDetail("step_name", parts[1])
	}
	resolved, ok := target.Outputs[parts[3]]
	if !ok {
		return "", gerror.NewErrUnknownReference("Unknown output key in template reference").
			IDetail("reference", outer).
			IDetail("step_name", parts[1]).
			IDetail("output", parts[3])
	}
	return resolved, nil
}
