package gql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractRootFieldName(t *testing.T) {
	tests := []struct {
		name   string
		doc    string
		want   string
		wantOK bool
	}{
		{"query", issueLookup, "repository", true},
		{"mutation", closeIssue, "closeIssue", true},
		{"aliased root", `query Q { repo: repository(owner: "a", name: "b") { id } }`, "repo", true},
		{"no brace", "query Q", "", false},
		{"empty", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractRootFieldName(tt.doc)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVariableNames(t *testing.T) {
	names, err := VariableNames(issueLookup)
	require.NoError(t, err)
	assert.Equal(t, []string{"owner", "name", "number"}, names)

	names, err = VariableNames(`query Viewer { viewer { login } }`)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestOperationTypeAndName(t *testing.T) {
	kind, err := OperationType(closeIssue)
	require.NoError(t, err)
	assert.Equal(t, "mutation", kind)

	kind, err = OperationType(`{ viewer { login } }`)
	require.NoError(t, err)
	assert.Equal(t, "query", kind)

	name, err := OperationName(issueLookup)
	require.NoError(t, err)
	assert.Equal(t, "IssueLookup", name)
}

func TestValidName(t *testing.T) {
	assert.True(t, ValidName("step0"))
	assert.True(t, ValidName("_x"))
	assert.True(t, ValidName("issue_close_1"))
	assert.False(t, ValidName("0step"))
	assert.False(t, ValidName("issue.close"))
	assert.False(t, ValidName(""))
}
