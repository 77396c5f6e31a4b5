package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCategoryPriorityOrdering(t *testing.T) {
	t.Parallel()

	// Bugs outrank everything; docstrings come last.
	assert.Less(t, CategoryPriority(CategoryBug), CategoryPriority(CategoryComplexity))
	assert.Less(t, CategoryPriority(CategoryComplexity), CategoryPriority(CategoryMaintainability))
	assert.Less(t, CategoryPriority(CategoryMaintainability), CategoryPriority(CategoryStyle))
	assert.Less(t, CategoryPriority(CategoryStyle), CategoryPriority(CategoryDocstring))
	assert.Greater(t, CategoryPriority(IssueCategory("unknown")), CategoryPriority(CategoryDocstring))
}

func TestLanguageFromExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		ext  string
		want Language
	}{
		{".go", LangGo},
		{".py", LangPython},
		{".js", LangJavaScript},
		{".mjs", LangJavaScript},
		{".rb", LangUnknown},
		{"", LangUnknown},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.ext, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, LanguageFromExtension(tt.ext))
		})
	}
}

func TestTaskTypeForCategory(t *testing.T) {
	t.Parallel()

	assert.Equal(t, TaskBugFix, TaskTypeForCategory(CategoryBug))
	assert.Equal(t, TaskComplexity, TaskTypeForCategory(CategoryComplexity))
	assert.Equal(t, TaskDocstring, TaskTypeForCategory(CategoryDocstring))
	assert.Equal(t, TaskStyle, TaskTypeForCategory(CategoryStyle))
	assert.Equal(t, TaskRefactor, TaskTypeForCategory(CategoryMaintainability))
}
