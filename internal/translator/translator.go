package translator

import (
	"context"
	"strings"

	"golang.org/x/text/language"
)

type Translator interface {
	// Translate returns text unchanged when it is empty or src and dst name
	// the same language.
	Translate(ctx context.Context, text, src, dst string) (string, error)
	// Name identifies the backing service in persisted translations.
	Name() string
}

// NormalizeLanguage canonicalizes a language code to BCP 47 casing, so
// "zh-cn" becomes "zh-CN". Codes that do not parse are returned trimmed.
func NormalizeLanguage(code string) string {
	code = strings.TrimSpace(code)
	if code == "" {
		return ""
	}
	tag, err := language.Parse(code)
	if err != nil {
		return code
	}
	return tag.String()
}

// SameLanguage compares two codes after normalization.
func SameLanguage(a, b string) bool {
	return strings.EqualFold(NormalizeLanguage(a), NormalizeLanguage(b))
}

// IsNoop reports whether translating text from src to dst is a no-op.
func IsNoop(text, src, dst string) bool {
	return strings.TrimSpace(text) == "" || SameLanguage(src, dst)
}
