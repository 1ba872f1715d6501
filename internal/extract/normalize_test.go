package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_StripsControlCharacters(t *testing.T) {
	// C0 controls other than tab/newline/CR are removed.
	assert.Equal(t, "hello world", Normalize("hel\x00lo \x07world"))
}

func TestNormalize_LineEndings(t *testing.T) {
	assert.Equal(t, "a\nb\nc", Normalize("a\r\nb\rc"))
}

func TestNormalize_CollapsesSpacesAndTabs(t *testing.T) {
	assert.Equal(t, "a b c", Normalize("a  \t b   c"))
}

func TestNormalize_TrimsAndDropsEmptyLines(t *testing.T) {
	assert.Equal(t, "first\nsecond", Normalize("  first  \n\n   \n\tsecond\t\n"))
}

func TestNormalize_Empty(t *testing.T) {
	assert.Equal(t, "", Normalize(""))
	assert.Equal(t, "", Normalize("   \n\t\n  "))
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"a  b\r\n\r\nc\td",
		"  leading and trailing  ",
		"plain text",
		"x\x01y\nz",
	}
	for _, input := range inputs {
		once := Normalize(input)
		assert.Equal(t, once, Normalize(once), "input %q", input)
	}
}

func TestIsEmptyPage(t *testing.T) {
	assert.True(t, IsEmptyPage(""))
	assert.True(t, IsEmptyPage("   \n  "))
	assert.True(t, IsEmptyPage("one two"))
	assert.False(t, IsEmptyPage("one two three"))
}

func TestDetectFormat_Signature(t *testing.T) {
	// Magic bytes win over a misleading extension.
	format, err := DetectFormat("report.txt", []byte("%PDF-1.7 rest"))
	assert.NoError(t, err)
	assert.Equal(t, FormatPDF, format)
}

func TestDetectFormat_Extension(t *testing.T) {
	format, err := DetectFormat("notes.md", []byte("# heading"))
	assert.NoError(t, err)
	assert.Equal(t, FormatMarkdown, format)

	format, err = DetectFormat("NOTES.TXT", []byte("plain"))
	assert.NoError(t, err)
	assert.Equal(t, FormatText, format)
}

func TestDetectFormat_Unsupported(t *testing.T) {
	_, err := DetectFormat("image.png", []byte{0x89, 0x50, 0x4e, 0x47})
	assert.Error(t, err)
}
