package app

import (
	"embed"
	"path"

	goi18n "github.com/nicksnyder/go-i18n/i18n"
)

const defaultLanguage = "en-US"

//go:embed translations/*.json
var translationFiles embed.FS

// translations loads the embedded message catalogs and returns the default language translator.
func translations() (goi18n.TranslateFunc, error) {
	entries, err := translationFiles.ReadDir("translations")
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		data, err := translationFiles.ReadFile(path.Join("translations", e.Name()))
		if err != nil {
			return nil, err
		}
		if err := goi18n.ParseTranslationFileBytes(e.Name(), data); err != nil {
			return nil, err
		}
	}
	return goi18n.Tfunc(defaultLanguage)
}
