// Package templates registers the Handlebars helpers available in eval files.
// Prompts and config strings are rendered through model.RenderTemplate; the
// helpers here let a checked-in eval file mint fresh identifiers and synthetic
// values per run.
package templates

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/aymerick/raymond"
	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
)

const (
	alphanumericChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	numericChars      = "0123456789"
)

type TemplateEngine struct{}

var (
	templateEngineInstance *TemplateEngine
	templateEngineOnce     sync.Once
)

// NewTemplateEngine returns the singleton instance of TemplateEngine.
// Helpers are registered exactly once; raymond panics on re-registration.
func NewTemplateEngine() *TemplateEngine {
	templateEngineOnce.Do(func() {
		RegisterHelpers()
		templateEngineInstance = &TemplateEngine{}
	})
	return templateEngineInstance
}

// RegisterHelpers registers the custom Handlebars helpers.
func RegisterHelpers() {
	// randomValue: {{randomValue type="NUMERIC" length=8}}
	raymond.RegisterHelper("randomValue", func(options *raymond.Options) string {
		randomType := strings.ToUpper(options.HashStr("type"))
		if randomType == "" {
			randomType = "ALPHANUMERIC"
		}

		if randomType == "UUID" {
			return uuid.New().String()
		}

		length := 10
		if lengthVal := options.HashProp("length"); lengthVal != nil {
			switch v := lengthVal.(type) {
			case int:
				length = v
			case int64:
				length = int(v)
			case float64:
				length = int(v)
			case string:
				fmt.Sscanf(v, "%d", &length)
			}
		}

		switch randomType {
		case "NUMERIC":
			return RandomString(numericChars, length)
		default:
			return RandomString(alphanumericChars, length)
		}
	})

	// randomInt: {{randomInt lower=1 upper=10}}
	raymond.RegisterHelper("randomInt", func(options *raymond.Options) string {
		lower, upper := 0, 100
		if v := options.HashProp("lower"); v != nil {
			lower = toInt(v)
		}
		if v := options.HashProp("upper"); v != nil {
			upper = toInt(v)
		}
		if lower > upper {
			lower, upper = upper, lower
		}

		num, err := rand.Int(rand.Reader, big.NewInt(int64(upper-lower+1)))
		if err != nil {
			return "0"
		}
		return fmt.Sprintf("%d", int(num.Int64())+lower)
	})

	// now: {{now format="epoch"}} renders epoch millis, unix seconds or RFC3339.
	raymond.RegisterHelper("now", func(options *raymond.Options) string {
		t := time.Now().UTC()
		switch options.HashStr("format") {
		case "epoch":
			return fmt.Sprintf("%d", t.UnixMilli())
		case "unix":
			return fmt.Sprintf("%d", t.Unix())
		default:
			return t.Format(time.RFC3339)
		}
	})

	// faker: {{faker "Company.name"}} for synthetic business values in prompts.
	raymond.RegisterHelper("faker", func(key string) string {
		r := gofakeit.New(0)
		switch key {
		case "Company.name":
			return r.Company()
		case "Company.buzzword":
			return r.BuzzWord()
		case "Product.name":
			return r.ProductName()
		case "Product.category":
			return r.ProductCategory()
		case "Address.country":
			return r.Country()
		case "Address.city":
			return r.City()
		case "Currency.code":
			return r.CurrencyShort()
		case "Person.name":
			return r.Name()
		}
		return key
	})
}

// RandomString draws length characters from charset using crypto/rand.
func RandomString(charset string, length int) string {
	if length <= 0 {
		return ""
	}

	out := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			out[i] = charset[0]
			continue
		}
		out[i] = charset[n.Int64()]
	}
	return string(out)
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	case string:
		var parsed int
		fmt.Sscanf(n, "%d", &parsed)
		return parsed
	}
	return 0
}
