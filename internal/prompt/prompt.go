package prompt

import (
	"context"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

// Provided is a credential the user supplied during the prompt step.
// CredentialID, when set, references an already-stored credential so the
// persist step binds it instead of duplicating it.
type Provided struct {
	CredentialID string
	Value        string
}

// Plan is the prompt step's answer: which missing kinds the user supplied,
// which are deferred to generation, and any extra generation metadata the
// prompt gathered along the way.
type Plan struct {
	Provided map[credential.Kind]Provided
	Generate []credential.Kind
	Metadata map[string]string
}

// Prompter resolves what to do about each missing credential kind.
type Prompter interface {
	Plan(ctx context.Context, missing []credential.Kind) (*Plan, error)
}

// ScriptedPrompter answers from a declarative plan carried on the build
// request, for API- and queue-triggered runs where no terminal is attached.
// Missing kinds the script does not cover default to generation; scripted
// entries for kinds that are not actually missing are ignored.
type ScriptedPrompter struct {
	script *model.CredentialPlan
}

// NewScriptedPrompter wraps the request's credential plan. A nil plan means
// "generate everything that is missing".
func NewScriptedPrompter(script *model.CredentialPlan) *ScriptedPrompter {
	return &ScriptedPrompter{script: script}
}

// Plan implements Prompter.
func (p *ScriptedPrompter) Plan(_ context.Context, missing []credential.Kind) (*Plan, error) {
	plan := &Plan{
		Provided: make(map[credential.Kind]Provided),
		Metadata: make(map[string]string),
	}

	for _, kind := range missing {
		entry, ok := p.lookup(kind)
		if !ok || entry.Value == "" {
			plan.Generate = append(plan.Generate, kind)
			continue
		}
		plan.Provided[kind] = Provided{
			CredentialID: entry.CredentialID,
			Value:        entry.Value,
		}
	}

	if p.script != nil {
		for k, v := range p.script.Metadata {
			plan.Metadata[k] = v
		}
	}

	return plan, nil
}

func (p *ScriptedPrompter) lookup(kind credential.Kind) (model.PlannedCredential, bool) {
	if p.script == nil {
		return model.PlannedCredential{}, false
	}
	entry, ok := p.script.Provide[string(kind)]
	return entry, ok
}
