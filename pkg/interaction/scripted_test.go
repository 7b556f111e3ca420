package interaction

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScripted_UnscriptedConfirmUsesDefault(t *testing.T) {
	p := &Scripted{}
	assert.True(t, p.Confirm("Proceed?", true))
	assert.False(t, p.Confirm("Erase everything?", false))
	assert.Equal(t, []string{"Proceed?", "Erase everything?"}, p.Asked)
}

func TestScripted_SelectValidatesChoice(t *testing.T) {
	p := &Scripted{Selections: map[string]string{"Which disk?": "/dev/sdb"}}

	choice, err := p.Select("Which disk?", []string{"/dev/sda", "/dev/sdb"})
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdb", choice)

	_, err = p.Select("Which disk?", []string{"/dev/sda"})
	assert.Error(t, err, "a scripted answer outside the offered options is a test bug")
}

func TestScripted_SelectFallsBackToFirstOption(t *testing.T) {
	p := &Scripted{}
	choice, err := p.Select("Container name?", []string{"cryptroot", "crypt_root"})
	require.NoError(t, err)
	assert.Equal(t, "cryptroot", choice)
}

func TestScripted_SecretRequiresScript(t *testing.T) {
	p := &Scripted{Secrets: map[string]string{"Passphrase": "hunter22"}}

	secret, err := p.Secret("Passphrase")
	require.NoError(t, err)
	assert.Equal(t, "hunter22", secret)

	_, err = p.Secret("Other passphrase")
	assert.Error(t, err)
}
