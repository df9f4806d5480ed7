package config

import (
	"os"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/language/display"
)

// supportedLanguages are the output languages comments and prompts are written in.
// The first entry is the fallback.
var supportedLanguages = []language.Tag{
	language.English,
	language.German,
	language.French,
	language.Spanish,
	language.Portuguese,
	language.Japanese,
	language.Korean,
	language.SimplifiedChinese,
}

var languageMatcher = language.NewMatcher(supportedLanguages)

// LanguageConfig is the resolved output language
type LanguageConfig struct {
	tag language.Tag
}

// ParseLanguage parses a BCP 47 tag and matches it against the supported output languages.
// Empty or unparseable tags resolve to English.
func ParseLanguage(langTag string) (*LanguageConfig, error) {
	if strings.TrimSpace(langTag) == "" {
		return &LanguageConfig{tag: language.English}, nil
	}

	tag, err := language.Parse(strings.ReplaceAll(langTag, "_", "-"))
	if err != nil {
		return &LanguageConfig{tag: language.English}, nil
	}

	_, idx, conf := languageMatcher.Match(tag)
	if conf == language.No {
		return &LanguageConfig{tag: language.English}, nil
	}
	return &LanguageConfig{tag: supportedLanguages[idx]}, nil
}

// Tag returns the underlying language tag
func (lc *LanguageConfig) Tag() language.Tag {
	return lc.tag
}

// String returns the language tag as a string (e.g. "en", "zh-Hans")
func (lc *LanguageConfig) String() string {
	return lc.tag.String()
}

// IsEnglish reports whether no translation instruction is needed
func (lc *LanguageConfig) IsEnglish() bool {
	base, _ := lc.tag.Base()
	return base.String() == "en"
}

// PromptInstruction returns the English name of the language for use in prompts
func (lc *LanguageConfig) PromptInstruction() string {
	return display.English.Tags().Name(lc.tag)
}

// detectSystemLanguage reads LANG style environment variables, e.g. "de_DE.UTF-8"
func detectSystemLanguage() language.Tag {
	for _, envVar := range []string{"LC_ALL", "LC_MESSAGES", "LANG", "LANGUAGE"} {
		val := os.Getenv(envVar)
		if val == "" || val == "C" || val == "POSIX" {
			continue
		}
		lc, _ := ParseLanguage(strings.Split(val, ".")[0])
		return lc.tag
	}
	return language.English
}
