package pathutil

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lgandecki/convex-versioned-assets-sub001/internal/apperror"
)

func TestNormalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"/", ""},
		{"a", "a"},
		{"/a/b/", "a/b"},
		{"a//b", "a/b"},
		{"///a///b///c///", "a/b/c"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Normalize(c.in), "Normalize(%q)", c.in)
	}
}

func TestParentAndName(t *testing.T) {
	cases := []struct {
		in         string
		wantParent string
		wantName   string
	}{
		{"a", "", "a"},
		{"a/b", "a", "b"},
		{"a/b/c", "a/b", "c"},
		{"/a/b/", "a", "b"},
	}
	for _, c := range cases {
		parent, name := ParentAndName(c.in)
		assert.Equal(t, c.wantParent, parent, "parent of %q", c.in)
		assert.Equal(t, c.wantName, name, "name of %q", c.in)
	}
}

func TestJoin(t *testing.T) {
	assert.Equal(t, "a", Join("", "a"))
	assert.Equal(t, "a/b", Join("a", "b"))
}

func TestValidateName(t *testing.T) {
	assert.NoError(t, ValidateName("ok-name"))

	err := ValidateName("")
	assert.ErrorIs(t, err, apperror.New(apperror.KindInvalidPath, ""))

	err = ValidateName("a/b")
	assert.ErrorIs(t, err, apperror.New(apperror.KindInvalidPath, ""))

	err = ValidateName("a\x00b")
	assert.ErrorIs(t, err, apperror.New(apperror.KindInvalidPath, ""))
}

func TestValidatePath(t *testing.T) {
	assert.NoError(t, ValidatePath(""))
	assert.NoError(t, ValidatePath("/"))
	assert.NoError(t, ValidatePath("a/b/c"))

	err := ValidatePath("a//b")
	assert.Error(t, err)

	err = ValidatePath("a/b\x00/c")
	assert.Error(t, err)
}

func TestValidateBasename(t *testing.T) {
	assert.NoError(t, ValidateBasename("logo.png"))

	err := ValidateBasename("")
	assert.ErrorIs(t, err, apperror.New(apperror.KindInvalidBasename, ""))

	err = ValidateBasename("a/b")
	assert.ErrorIs(t, err, apperror.New(apperror.KindInvalidBasename, ""))

	longName := make([]byte, 256)
	for i := range longName {
		longName[i] = 'a'
	}
	err = ValidateBasename(string(longName))
	assert.ErrorIs(t, err, apperror.New(apperror.KindBasenameTooLong, ""))
}

func TestAncestors(t *testing.T) {
	assert.Nil(t, Ancestors(""))
	assert.Empty(t, Ancestors("a"))
	assert.Equal(t, []string{"a"}, Ancestors("a/b"))
	assert.Equal(t, []string{"a", "a/b"}, Ancestors("a/b/c"))
}
