package models

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// Language describes a spoken-digit voice available to the hearing test.
type Language struct {
	Code        string `yaml:"code" json:"code"`
	Label       string `yaml:"label" json:"label"`
	EnglishName string `yaml:"english_name" json:"englishName"`
	RTL         bool   `yaml:"rtl" json:"rtl"`
	VoiceCode   string `yaml:"voice_code" json:"voiceCode"`
	WhisperCode string `yaml:"whisper_code" json:"whisperCode"`
}

// LanguageCatalog holds every supported language.
type LanguageCatalog struct {
	Default   string     `yaml:"default"`
	Languages []Language `yaml:"languages"`
}

// DefaultLanguages is used when no catalogue file is present.
func DefaultLanguages() *LanguageCatalog {
	return &LanguageCatalog{
		Default: "en",
		Languages: []Language{
			{Code: "en", Label: "English", EnglishName: "English", VoiceCode: "en-US", WhisperCode: "en"},
			{Code: "he", Label: "עברית", EnglishName: "Hebrew", RTL: true, VoiceCode: "he-IL", WhisperCode: "he"},
			{Code: "ru", Label: "Русский", EnglishName: "Russian", VoiceCode: "ru-RU", WhisperCode: "ru"},
		},
	}
}

// LoadLanguages reads the language catalogue YAML. A missing file yields
// DefaultLanguages.
func LoadLanguages(path string) (*LanguageCatalog, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultLanguages(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read language file: %w", err)
	}

	var catalog LanguageCatalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return nil, fmt.Errorf("failed to unmarshal language YAML: %w", err)
	}
	if len(catalog.Languages) == 0 {
		return nil, fmt.Errorf("language file %s defines no languages", path)
	}
	if catalog.Default == "" {
		catalog.Default = catalog.Languages[0].Code
	}
	if _, ok := catalog.Lookup(catalog.Default); !ok {
		return nil, fmt.Errorf("default language %q is not defined", catalog.Default)
	}
	return &catalog, nil
}

// Lookup finds a language by code.
func (c *LanguageCatalog) Lookup(code string) (Language, bool) {
	for _, l := range c.Languages {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// Resolve returns the language for code, falling back to the default.
func (c *LanguageCatalog) Resolve(code string) Language {
	if l, ok := c.Lookup(code); ok {
		return l
	}
	l, _ := c.Lookup(c.Default)
	return l
}
