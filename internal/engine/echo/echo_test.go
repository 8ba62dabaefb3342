package echo

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/go-jupyter/kernel/internal/engine"
)

// captureOutput collects stream writes for assertions.
type captureOutput struct {
	stdout strings.Builder
	stderr strings.Builder
}

func (c *captureOutput) Stdout(text string) error { c.stdout.WriteString(text); return nil }
func (c *captureOutput) Stderr(text string) error { c.stderr.WriteString(text); return nil }
func (c *captureOutput) Display(data map[string]interface{}) error { return nil }
func (c *captureOutput) DisplayUpdatable(data map[string]interface{}) (engine.DisplayHandle, error) {
	return nil, nil
}
func (c *captureOutput) Comms() engine.Comms { return nil }

func TestInfo(t *testing.T) {
	info := New().Info()
	assert.Equal(t, "echo", info.Implementation)
	assert.Equal(t, "echo", info.LanguageName)
	assert.Equal(t, "text/plain", info.MimeType)
}

func TestExecuteEchoesCode(t *testing.T) {
	e := New()
	out := &captureOutput{}

	result, err := e.Execute(context.Background(), "hello world", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusOK, result.Status)
	assert.Equal(t, "hello world", result.Data["text/plain"])
	assert.Equal(t, "hello world\n", out.stdout.String())
}

func TestExecuteEmptyCell(t *testing.T) {
	e := New()
	out := &captureOutput{}

	result, err := e.Execute(context.Background(), "   \n  ", out)
	require.NoError(t, err)
	assert.Nil(t, result, "blank cells produce no result")
	assert.Empty(t, out.stdout.String())
}

func TestExecuteErrorDirective(t *testing.T) {
	e := New()
	out := &captureOutput{}

	result, err := e.Execute(context.Background(), "!error something broke", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusError, result.Status)
	assert.Equal(t, "EchoError", result.EName)
	assert.Equal(t, "something broke", result.EValue)
}

func TestExecuteStopsAtFirstError(t *testing.T) {
	e := New()
	out := &captureOutput{}

	result, err := e.Execute(context.Background(), "first\n%echo mid\n!error boom\n", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusOK, result.Status, "error line in a code chunk does not start a new chunk")

	// A magic chunk whose body errors stops the cell.
	result, err = e.Execute(context.Background(), "%bogus\nnever", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusError, result.Status)
	assert.Equal(t, "UnknownMagic", result.EName)
}

func TestMagicEcho(t *testing.T) {
	e := New()
	out := &captureOutput{}

	result, err := e.Execute(context.Background(), "%echo one two", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusOK, result.Status)
	assert.Equal(t, "one two", result.Data["text/plain"])
	assert.Equal(t, "one two\n", out.stdout.String())
}

func TestMagicHelp(t *testing.T) {
	e := New()
	out := &captureOutput{}

	result, err := e.Execute(context.Background(), "%echo?", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusOK, result.Status)
	assert.Equal(t, "Echo the arguments.", result.Data["text/plain"])

	result, err = e.Execute(context.Background(), "%nothere?", out)
	require.NoError(t, err)
	assert.Equal(t, engine.StatusError, result.Status)
	assert.Equal(t, "UnknownMagic", result.EName)
}

func TestExecuteCancelled(t *testing.T) {
	e := New()
	out := &captureOutput{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result, err := e.Execute(ctx, "hello", out)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, engine.StatusError, result.Status)
	assert.Equal(t, "Interrupted", result.EName)
}

func TestComplete(t *testing.T) {
	e := New()

	completion, err := e.Complete("%ec", 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"%echo"}, completion.Matches)
	assert.Equal(t, 0, completion.CursorStart)
	assert.Equal(t, 3, completion.CursorEnd)

	completion, err = e.Complete("x = %e", 6)
	require.NoError(t, err)
	assert.Equal(t, []string{"%echo"}, completion.Matches)
	assert.Equal(t, 4, completion.CursorStart)

	completion, err = e.Complete("nomatch", 7)
	require.NoError(t, err)
	assert.Empty(t, completion.Matches)
}
