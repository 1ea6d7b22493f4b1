package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", RootID},
		{".", RootID},
		{"./a.cs", "a.cs"},
		{"Sub/c.cs", "Sub/c.cs"},
		{"Sub//inner/../c.cs", "Sub/c.cs"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeID(tt.in))
		})
	}
}

func TestParentIDAndDepth(t *testing.T) {
	assert.Equal(t, RootID, ParentID("a.cs"))
	assert.Equal(t, "Sub", ParentID("Sub/c.cs"))
	assert.Equal(t, "Sub/Inner", ParentID("Sub/Inner/d.cs"))
	assert.Equal(t, RootID, ParentID(RootID))

	assert.Equal(t, 0, Depth(RootID))
	assert.Equal(t, 1, Depth("Sub"))
	assert.Equal(t, 2, Depth("Sub/c.cs"))
}

func TestAnalysisResultValidate(t *testing.T) {
	ok := AnalysisResult{ID: "a.cs", Kind: KindFile, Status: StatusSuccess, Text: "x"}
	assert.NoError(t, ok.Validate())
	assert.True(t, ok.Succeeded())

	missingID := ok
	missingID.ID = ""
	assert.ErrorIs(t, missingID.Validate(), ErrEmptyIdentity)

	project := AnalysisResult{ID: ProjectID, Kind: KindProject, Status: StatusSuccess}
	assert.NoError(t, project.Validate())
	assert.True(t, project.Summary())
	assert.False(t, ok.Summary())

	badKind := ok
	badKind.Kind = "chunk"
	assert.ErrorIs(t, badKind.Validate(), ErrInvalidKind)

	failed := AnalysisResult{ID: "b.cs", Kind: KindFile, Status: StatusFailed}
	assert.ErrorIs(t, failed.Validate(), ErrMissingFailure)
	failed.ErrorKind = ErrorKindPermanent
	assert.NoError(t, failed.Validate())
	assert.False(t, failed.Succeeded())

	badStatus := ok
	badStatus.Status = "pending"
	assert.ErrorIs(t, badStatus.Validate(), ErrInvalidStatus)
}
