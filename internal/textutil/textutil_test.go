package textutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize_FoldsCaseAndWidth(t *testing.T) {
	assert.Equal(t, "invoice", Normalize("INVOICE"))
	// Full-width letters compatibility-normalize to ASCII before folding.
	assert.Equal(t, "paypal", Normalize("ＰａｙＰａｌ"))
}

func TestTokenize_KeepsDigits(t *testing.T) {
	got := Tokenize("Your 401k statement, due 2024!")
	assert.Equal(t, []string{"your", "401k", "statement", "due", "2024"}, got)
}

func TestTruncate_ValidUTF8Boundary(t *testing.T) {
	// "héllo" is 6 bytes; cutting at 2 lands inside the é sequence.
	got := Truncate("héllo", 2)
	assert.Equal(t, "h", got)
}

func TestSanitizeUTF8_DropsInvalidBytes(t *testing.T) {
	assert.Equal(t, "ab", SanitizeUTF8("a\xffb"))
}
