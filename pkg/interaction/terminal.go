// pkg/interaction/terminal.go

package interaction

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/term"
)

// TerminalPrompter implements Prompter against stdin/stderr. Prompts go to
// stderr to preserve stdout for automation.
type TerminalPrompter struct {
	reader *bufio.Reader
}

func NewTerminalPrompter() *TerminalPrompter {
	return &TerminalPrompter{reader: bufio.NewReader(os.Stdin)}
}

func (p *TerminalPrompter) Confirm(question string, defaultYes bool) bool {
	defPrompt := DefaultYesPrompt
	if !defaultYes {
		defPrompt = DefaultNoPrompt
	}
	input, err := p.readLine(fmt.Sprintf("%s [%s]", question, defPrompt))
	if err != nil {
		zap.L().Error("Failed to read yes/no input", zap.Error(err))
		return defaultYes
	}
	if answer, ok := NormalizeYesNoInput(input); ok {
		return answer
	}
	zap.L().Debug("Default applied", zap.String("question", question), zap.Bool("default_yes", defaultYes))
	return defaultYes
}

func (p *TerminalPrompter) Select(question string, options []string) (string, error) {
	fmt.Fprintln(os.Stderr, question)
	for i, option := range options {
		fmt.Fprintf(os.Stderr, "  %d) %s\n", i+1, option)
	}

	for {
		choice, err := p.readLine(EnterChoicePrompt)
		if err != nil {
			return "", err
		}
		idx, err := strconv.Atoi(choice)
		if err == nil && idx >= 1 && idx <= len(options) {
			zap.L().Info("User selected option", zap.Int("index", idx), zap.String("value", options[idx-1]))
			return options[idx-1], nil
		}
		fmt.Fprintln(os.Stderr, "Invalid selection. Please try again.")
	}
}

func (p *TerminalPrompter) Input(question, defaultValue string) string {
	label := question
	if defaultValue != "" {
		label = fmt.Sprintf("%s (default: %s)", question, defaultValue)
	}
	input, err := p.readLine(label)
	if err != nil {
		zap.L().Error("Failed to read user input", zap.Error(err))
		return defaultValue
	}
	if input == "" {
		return defaultValue
	}
	return input
}

func (p *TerminalPrompter) Secret(question string) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("secret prompt failed: no terminal available")
	}

	fmt.Fprint(os.Stderr, question+": ")
	bytePassword, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		zap.L().Error("Failed to read secret input", zap.Error(err))
		return "", err
	}
	secret := strings.TrimSpace(string(bytePassword))
	if secret == "" {
		zap.L().Warn("No input received for secret", zap.String("question", question))
	}
	return secret, nil
}

func (p *TerminalPrompter) readLine(label string) (string, error) {
	fmt.Fprint(os.Stderr, label+": ")
	text, err := p.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(text), nil
}

// NormalizeYesNoInput returns (answer, ok); ok is false for input that is
// neither an affirmative nor a negative response.
func NormalizeYesNoInput(input string) (bool, bool) {
	switch strings.TrimSpace(strings.ToLower(input)) {
	case "y", "yes":
		return true, true
	case "n", "no":
		return false, true
	}
	return false, false
}
