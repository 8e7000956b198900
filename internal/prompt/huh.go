package prompt

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/huh"

	"github.com/buildharbor/signing-adapter/internal/credential"
	"github.com/buildharbor/signing-adapter/pkg/model"
)

var kindTitles = map[credential.Kind]string{
	credential.DistributionCert:    "Distribution certificate",
	credential.PushKey:             "Push notification key",
	credential.PushCert:            "Push certificate (legacy)",
	credential.ProvisioningProfile: "Provisioning profile",
}

var runSelectPrompt = func(title string, options []huh.Option[string], selected *string) error {
	return huh.NewSelect[string]().
		Title(title).
		Options(options...).
		Value(selected).
		Run()
}

var runInputPrompt = func(title, placeholder string, input *string) error {
	field := huh.NewInput().
		Title(title).
		Value(input)
	if placeholder != "" {
		field.Placeholder(placeholder)
	}
	return field.Run()
}

// HuhPrompter asks a terminal operator, kind by kind, whether to supply an
// existing credential or defer to generation. Intended for attended runs; the
// scripted prompter covers everything else.
type HuhPrompter struct{}

// Plan implements Prompter.
func (HuhPrompter) Plan(_ context.Context, missing []credential.Kind) (*Plan, error) {
	plan := &Plan{
		Provided: make(map[credential.Kind]Provided),
		Metadata: make(map[string]string),
	}

	for _, kind := range missing {
		title := kindTitles[kind]
		if title == "" {
			title = string(kind)
		}

		var choice string
		err := runSelectPrompt(
			fmt.Sprintf("%s is missing — how should it be obtained?", title),
			[]huh.Option[string]{
				huh.NewOption("Generate a new one", "generate"),
				huh.NewOption("Provide an existing one", "provide"),
			},
			&choice,
		)
		if err != nil {
			return nil, wrapAborted(err)
		}

		if choice == "generate" {
			plan.Generate = append(plan.Generate, kind)
			continue
		}

		var value string
		if err := runInputPrompt(fmt.Sprintf("Paste the %s value", title), "", &value); err != nil {
			return nil, wrapAborted(err)
		}
		var credentialID string
		if err := runInputPrompt("Existing credential ID (leave empty for a new entry)", "cred-", &credentialID); err != nil {
			return nil, wrapAborted(err)
		}

		plan.Provided[kind] = Provided{CredentialID: credentialID, Value: value}
	}

	return plan, nil
}

func wrapAborted(err error) error {
	if errors.Is(err, huh.ErrUserAborted) {
		return fmt.Errorf("%w: %v", model.ErrPromptAborted, err)
	}
	return err
}
