// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/creative-settlement/internal/i18n"
)

// I18nMiddleware picks the first Accept-Language entry with a loaded catalog,
// e.g. "zh-TW,zh;q=0.9,en;q=0.8" resolves to zh_TW.
func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("lang", resolveLanguage(c.GetHeader("Accept-Language"), i18n.GetSupportedLanguages()))
		c.Next()
	}
}

func resolveLanguage(header string, supported []string) string {
	available := make(map[string]bool, len(supported))
	for _, lang := range supported {
		available[lang] = true
	}

	for _, entry := range strings.Split(header, ",") {
		tag := strings.TrimSpace(strings.Split(entry, ";")[0])
		if tag == "" {
			continue
		}
		for _, candidate := range languageCandidates(tag) {
			if available[candidate] {
				return candidate
			}
		}
	}
	return "en"
}

func languageCandidates(tag string) []string {
	tag = strings.ReplaceAll(tag, "-", "_")
	switch strings.ToLower(tag) {
	case "zh_tw", "zh_hant", "zh_hant_tw", "zh_hk":
		return []string{"zh_TW"}
	}
	base := strings.ToLower(strings.Split(tag, "_")[0])
	return []string{tag, base}
}
