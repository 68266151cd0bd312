package ddl

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateIdentifier(t *testing.T) {
	valid := []string{"orders", "_tmp", "Orders2", "a_b_c"}
	for _, name := range valid {
		assert.NoError(t, ValidateIdentifier(name), name)
	}

	invalid := []string{"", "2fast", "a-b", "a b", `a"b`, "a;b", strings.Repeat("x", 129)}
	for _, name := range invalid {
		assert.Error(t, ValidateIdentifier(name), name)
	}
}

func TestQuoteDouble(t *testing.T) {
	assert.Equal(t, `"orders"`, QuoteDouble("orders"))
	assert.Equal(t, `"a""b"`, QuoteDouble(`a"b`))
}

func TestQuoteBacktick(t *testing.T) {
	assert.Equal(t, "`orders`", QuoteBacktick("orders"))
	assert.Equal(t, "`a``b`", QuoteBacktick("a`b"))
}
