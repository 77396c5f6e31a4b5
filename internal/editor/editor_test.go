package editor

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/suture-cli/api/schemas"
)

const editorSample = `package sample

func Greet(name string) string {
	return "hi " + name
}

func Count(items []string) int {
	n := 0
	for range items {
		n++
	}
	return n
}
`

type editorHarness struct {
	editor   *Editor
	repoRoot string
	file     string
}

func newEditorHarness(t *testing.T) *editorHarness {
	t.Helper()
	root := t.TempDir()
	file := filepath.Join(root, "sample.go")
	require.NoError(t, os.WriteFile(file, []byte(editorSample), 0o644))
	return &editorHarness{
		editor:   New(root, filepath.Join(root, ".suture", "backups"), zaptest.NewLogger(t)),
		repoRoot: root,
		file:     file,
	}
}

func (h *editorHarness) currentContent(t *testing.T) []byte {
	t.Helper()
	content, err := os.ReadFile(h.file)
	require.NoError(t, err)
	return content
}

func (h *editorHarness) patch(t *testing.T, span schemas.LineRange, replacement string) schemas.Patch {
	t.Helper()
	return schemas.Patch{
		TargetFile:          h.file,
		OriginalContentHash: ContentHash(h.currentContent(t)),
		NewContent:          replacement,
		RegionSpan:          span,
	}
}

func TestApplyReplacesFunctionNode(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)

	replacement := `func Greet(name string) string {
	if name == "" {
		name = "stranger"
	}
	return "hi " + name
}`
	patch := h.patch(t, schemas.LineRange{Start: 3, End: 5}, replacement)

	result, err := h.editor.Apply(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeApplied, result.Outcome)
	assert.NotEmpty(t, result.BackupPath)

	content := string(h.currentContent(t))
	assert.Contains(t, content, "stranger")
	assert.Contains(t, content, "func Count", "untouched function survives")
	require.NoError(t, h.editor.Validate(context.Background(), h.currentContent(t), schemas.LangGo))
}

func TestApplyRejectsBrokenReplacement(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)
	before := h.currentContent(t)

	patch := h.patch(t, schemas.LineRange{Start: 3, End: 5}, "func Greet( {{{ broken")
	result, err := h.editor.Apply(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeRejectedSyntax, result.Outcome)
	assert.Contains(t, result.Reason, "syntax error")

	// Disk untouched on rejection.
	assert.Equal(t, before, h.currentContent(t))
	assert.False(t, h.editor.Backups().Has(h.file))
}

func TestApplyRejectsStaleHash(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)

	patch := h.patch(t, schemas.LineRange{Start: 3, End: 5}, "func Greet() string { return \"x\" }")
	patch.OriginalContentHash = ContentHash([]byte("something else entirely"))

	result, err := h.editor.Apply(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeRejectedSemantics, result.Outcome)
	assert.Contains(t, result.Reason, "changed since")
}

func TestApplyRejectsOutOfRangeSpan(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)

	patch := h.patch(t, schemas.LineRange{Start: 500, End: 510}, "func X() {}")
	result, err := h.editor.Apply(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeRejectedSemantics, result.Outcome)
	assert.Contains(t, result.Reason, "not found")
}

func TestSecondPatchAppliesAgainstLatestContent(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)

	first := h.patch(t, schemas.LineRange{Start: 3, End: 5},
		"func Greet(name string) string {\n\treturn \"hello \" + name\n}")
	result, err := h.editor.Apply(context.Background(), first, schemas.LangGo)
	require.NoError(t, err)
	require.Equal(t, schemas.OutcomeApplied, result.Outcome)

	// A second patch in the same session targets the updated content hash.
	second := h.patch(t, schemas.LineRange{Start: 7, End: 13},
		"func Count(items []string) int {\n\treturn len(items)\n}")
	result, err = h.editor.Apply(context.Background(), second, schemas.LangGo)
	require.NoError(t, err)
	require.Equal(t, schemas.OutcomeApplied, result.Outcome)

	content := string(h.currentContent(t))
	assert.Contains(t, content, "hello")
	assert.Contains(t, content, "len(items)")

	// Only one backup exists, holding the original pre-session content.
	backups := h.editor.Backups().List()
	require.Len(t, backups, 1)
	original, err := os.ReadFile(backups[0].BackupPath)
	require.NoError(t, err)
	assert.Equal(t, editorSample, string(original))
}

func TestRollbackRestoresOriginal(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)

	patch := h.patch(t, schemas.LineRange{Start: 3, End: 5},
		"func Greet(name string) string {\n\treturn name\n}")
	result, err := h.editor.Apply(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	require.Equal(t, schemas.OutcomeApplied, result.Outcome)

	require.NoError(t, h.editor.Rollback(h.file))
	assert.Equal(t, editorSample, string(h.currentContent(t)))
}

func TestRollbackWithoutBackupFails(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)
	require.Error(t, h.editor.Rollback(h.file))
}

func TestPreviewLeavesDiskUntouched(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)
	before := h.currentContent(t)

	patch := h.patch(t, schemas.LineRange{Start: 3, End: 5},
		"func Greet(name string) string {\n\treturn \"preview \" + name\n}")
	updated, result, err := h.editor.Preview(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	assert.Equal(t, schemas.OutcomeApplied, result.Outcome)
	assert.Contains(t, string(updated), "preview")

	assert.Equal(t, before, h.currentContent(t))
	assert.Empty(t, h.editor.Backups().List())
}

func TestBackupCleanup(t *testing.T) {
	t.Parallel()
	h := newEditorHarness(t)

	patch := h.patch(t, schemas.LineRange{Start: 3, End: 5},
		"func Greet(name string) string {\n\treturn name\n}")
	result, err := h.editor.Apply(context.Background(), patch, schemas.LangGo)
	require.NoError(t, err)
	backupPath := result.BackupPath

	require.NoError(t, h.editor.Backups().Cleanup())
	assert.Empty(t, h.editor.Backups().List())
	_, statErr := os.Stat(backupPath)
	assert.True(t, os.IsNotExist(statErr))
}
