// pkg/interaction/prompter.go

package interaction

// Prompter is the interaction capability handed to installer components.
// Business logic never touches a terminal directly; tests substitute a
// scripted implementation.
type Prompter interface {
	// Confirm asks a yes/no question and returns the answer, falling back
	// to the default on unparseable input.
	Confirm(question string, defaultYes bool) bool
	// Select displays numbered options and returns the chosen value.
	Select(question string, options []string) (string, error)
	// Input asks for a free-form value with an optional default.
	Input(question, defaultValue string) string
	// Secret asks for hidden input (passphrases) with no terminal echo.
	Secret(question string) (string, error)
}

const (
	DefaultYesPrompt  = "Y/n"
	DefaultNoPrompt   = "y/N"
	EnterChoicePrompt = "Enter choice number"
)
