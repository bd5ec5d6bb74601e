package synthesis

import "strings"

// SupportedLanguages is the language set the XTTSv2 checkpoint family ships
// with. Codes are matched case-insensitively everywhere.
var SupportedLanguages = map[string]string{
	"ar":    "Arabic",
	"cs":    "Czech",
	"de":    "German",
	"en":    "English",
	"es":    "Spanish",
	"fr":    "French",
	"hi":    "Hindi",
	"hu":    "Hungarian",
	"it":    "Italian",
	"ja":    "Japanese",
	"ko":    "Korean",
	"nl":    "Dutch",
	"pl":    "Polish",
	"pt":    "Portuguese",
	"ru":    "Russian",
	"tr":    "Turkish",
	"zh-cn": "Chinese",
}

// NormalizeLanguage lowercases a client-supplied code for lookups and
// persisted paths.
func NormalizeLanguage(code string) string {
	return strings.ToLower(strings.TrimSpace(code))
}

func IsLanguageSupported(code string) bool {
	_, ok := SupportedLanguages[NormalizeLanguage(code)]
	return ok
}
