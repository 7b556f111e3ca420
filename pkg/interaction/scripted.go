// pkg/interaction/scripted.go

package interaction

import "fmt"

// Scripted is a Prompter with canned answers, used by tests and by
// non-interactive runs. Unscripted questions fall back to defaults.
type Scripted struct {
	// Confirms maps a question to its answer. Questions not present
	// answer with the caller's default.
	Confirms map[string]bool
	// Selections maps a question to the chosen option value.
	Selections map[string]string
	// Inputs maps a question to a typed value.
	Inputs map[string]string
	// Secrets maps a question to a hidden value.
	Secrets map[string]string

	// Asked records every question in the order it was asked.
	Asked []string
}

func (s *Scripted) Confirm(question string, defaultYes bool) bool {
	s.Asked = append(s.Asked, question)
	if answer, ok := s.Confirms[question]; ok {
		return answer
	}
	return defaultYes
}

func (s *Scripted) Select(question string, options []string) (string, error) {
	s.Asked = append(s.Asked, question)
	if choice, ok := s.Selections[question]; ok {
		for _, option := range options {
			if option == choice {
				return choice, nil
			}
		}
		return "", fmt.Errorf("scripted choice %q not among options", choice)
	}
	if len(options) == 0 {
		return "", fmt.Errorf("no options offered for %q", question)
	}
	return options[0], nil
}

func (s *Scripted) Input(question, defaultValue string) string {
	s.Asked = append(s.Asked, question)
	if value, ok := s.Inputs[question]; ok {
		return value
	}
	return defaultValue
}

func (s *Scripted) Secret(question string) (string, error) {
	s.Asked = append(s.Asked, question)
	if value, ok := s.Secrets[question]; ok {
		return value, nil
	}
	return "", fmt.Errorf("no scripted secret for %q", question)
}
