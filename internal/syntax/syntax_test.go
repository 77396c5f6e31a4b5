package syntax

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

const goSample = `package sample

// Add returns the sum of a and b.
func Add(a, b int) int {
	return a + b
}

func internalHelper(x int) int {
	if x > 0 && x < 100 {
		return x
	}
	return 0
}
`

const pySample = `def documented(x):
    """Say what it does."""
    return x

def _private(y):
    return y

def bare(z):
    if z and z > 1:
        return z
    return 0
`

func TestValidateAcceptsWellFormedSource(t *testing.T) {
	t.Parallel()
	p := NewParser()

	require.NoError(t, p.Validate(context.Background(), []byte(goSample), schemas.LangGo))
	require.NoError(t, p.Validate(context.Background(), []byte(pySample), schemas.LangPython))
}

func TestValidateRejectsBrokenSource(t *testing.T) {
	t.Parallel()
	p := NewParser()

	err := p.Validate(context.Background(), []byte("package x\nfunc Broken( {"), schemas.LangGo)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "syntax error")

	err = p.Validate(context.Background(), []byte("def broken(:\n  pass"), schemas.LangPython)
	require.Error(t, err)
}

func TestValidateUnsupportedLanguage(t *testing.T) {
	t.Parallel()
	p := NewParser()

	err := p.Validate(context.Background(), []byte("whatever"), schemas.LangUnknown)
	require.ErrorIs(t, err, ErrUnsupportedLanguage)
}

func TestFunctionsGo(t *testing.T) {
	t.Parallel()
	p := NewParser()

	funcs, err := p.Functions(context.Background(), []byte(goSample), schemas.LangGo)
	require.NoError(t, err)
	require.Len(t, funcs, 2)

	names := make([]string, len(funcs))
	for i, f := range funcs {
		names[i] = f.Name
	}
	if diff := cmp.Diff([]string{"Add", "internalHelper"}, names); diff != "" {
		t.Fatalf("unexpected function list (-want +got):\n%s", diff)
	}

	add := funcs[0]
	assert.Equal(t, "Add", add.Name)
	assert.True(t, add.Exported)
	assert.True(t, add.HasDoc)
	assert.Equal(t, 4, add.Span.Start)

	helper := funcs[1]
	assert.Equal(t, "internalHelper", helper.Name)
	assert.False(t, helper.Exported)
	assert.False(t, helper.HasDoc)
}

func TestFunctionsPythonDocstrings(t *testing.T) {
	t.Parallel()
	p := NewParser()

	funcs, err := p.Functions(context.Background(), []byte(pySample), schemas.LangPython)
	require.NoError(t, err)
	require.Len(t, funcs, 3)

	byName := map[string]Function{}
	for _, f := range funcs {
		byName[f.Name] = f
	}
	assert.True(t, byName["documented"].HasDoc)
	assert.True(t, byName["documented"].Exported)
	assert.False(t, byName["_private"].Exported)
	assert.False(t, byName["bare"].HasDoc)
}

func TestIsBooleanOperatorCounting(t *testing.T) {
	t.Parallel()
	p := NewParser()

	source := []byte(goSample)
	tree, err := p.Parse(context.Background(), source, schemas.LangGo)
	require.NoError(t, err)
	defer tree.Close()

	binaries := FindNodes(tree.RootNode(), []string{"binary_expression"})
	require.NotEmpty(t, binaries)

	var shortCircuit int
	for _, n := range binaries {
		if IsBooleanOperator(n, source, schemas.LangGo) {
			shortCircuit++
		}
	}
	// Only "x > 0 && x < 100" qualifies; the comparisons do not.
	assert.Equal(t, 1, shortCircuit)
}
