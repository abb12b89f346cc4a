package templates

import (
	"regexp"
	"strconv"
	"testing"
	"time"

	"github.com/aymerick/raymond"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func render(t *testing.T, template string) string {
	t.Helper()
	NewTemplateEngine()
	out, err := raymond.Render(template, map[string]string{})
	require.NoError(t, err)
	return out
}

func TestNewTemplateEngine_Singleton(t *testing.T) {
	first := NewTemplateEngine()
	second := NewTemplateEngine()
	assert.Same(t, first, second)
}

func TestRandomValueHelper(t *testing.T) {
	numeric := render(t, `{{randomValue type="NUMERIC" length=8}}`)
	assert.Regexp(t, `^\d{8}$`, numeric)

	alnum := render(t, `{{randomValue type="ALPHANUMERIC" length=12}}`)
	assert.Regexp(t, `^[a-zA-Z0-9]{12}$`, alnum)

	// Untyped defaults to alphanumeric, length 10.
	def := render(t, `{{randomValue}}`)
	assert.Regexp(t, `^[a-zA-Z0-9]{10}$`, def)

	id := render(t, `{{randomValue type="UUID"}}`)
	assert.Regexp(t, `^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`, id)
}

func TestRandomIntHelper(t *testing.T) {
	for i := 0; i < 20; i++ {
		out := render(t, `{{randomInt lower=5 upper=10}}`)
		n, err := strconv.Atoi(out)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 5)
		assert.LessOrEqual(t, n, 10)
	}

	// Swapped bounds are tolerated.
	out := render(t, `{{randomInt lower=10 upper=5}}`)
	n, err := strconv.Atoi(out)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, n, 5)
	assert.LessOrEqual(t, n, 10)
}

func TestNowHelper(t *testing.T) {
	before := time.Now().UTC()

	epoch := render(t, `{{now format="epoch"}}`)
	millis, err := strconv.ParseInt(epoch, 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, millis, before.UnixMilli())

	unix := render(t, `{{now format="unix"}}`)
	secs, err := strconv.ParseInt(unix, 10, 64)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, secs, before.Unix())

	stamp := render(t, `{{now}}`)
	_, err = time.Parse(time.RFC3339, stamp)
	require.NoError(t, err)
}

func TestFakerHelper(t *testing.T) {
	company := render(t, `{{faker "Company.name"}}`)
	assert.NotEmpty(t, company)

	country := render(t, `{{faker "Address.country"}}`)
	assert.NotEmpty(t, country)

	currency := render(t, `{{faker "Currency.code"}}`)
	assert.Regexp(t, `^[A-Z]{3}$`, currency)

	// Unknown keys pass through so a typo is visible in the rendered prompt.
	assert.Equal(t, "Nope.nothing", render(t, `{{faker "Nope.nothing"}}`))
}

func TestRandomString(t *testing.T) {
	assert.Empty(t, RandomString("abc", 0))
	assert.Empty(t, RandomString("abc", -1))

	out := RandomString("ab", 64)
	assert.Len(t, out, 64)
	assert.Regexp(t, regexp.MustCompile(`^[ab]+$`), out)
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 7, toInt(7))
	assert.Equal(t, 7, toInt(int64(7)))
	assert.Equal(t, 7, toInt(7.0))
	assert.Equal(t, 7, toInt("7"))
	assert.Equal(t, 0, toInt("not a number"))
	assert.Equal(t, 0, toInt(nil))
}
