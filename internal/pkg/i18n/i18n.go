package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sync"

	"gopkg.in/yaml.v3"
)

const DefaultLocale = "en"

//go:embed locales
var embedded embed.FS

type Translations map[string]string

var (
	locales = make(map[string]Translations)
	mu      sync.RWMutex

	placeholder = regexp.MustCompile(`\{(\w+)\}`)
)

// LoadEmbedded loads the catalogs compiled into the binary.
func LoadEmbedded() error {
	return LoadFS(embedded, "locales")
}

// LoadFS reads <root>/<locale>/notifications.yaml for every locale directory.
// Keys of a later load override earlier ones.
func LoadFS(fsys fs.FS, root string) error {
	mu.Lock()
	defer mu.Unlock()

	entries, err := fs.ReadDir(fsys, root)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		locale := entry.Name()
		filePath := path.Join(root, locale, "notifications.yaml")

		data, err := fs.ReadFile(fsys, filePath)
		if err != nil {
			continue
		}

		var catalog struct {
			Notifications Translations `yaml:"NOTIFICATIONS"`
			Email         Translations `yaml:"EMAIL"`
		}
		if err := yaml.Unmarshal(data, &catalog); err != nil {
			return fmt.Errorf("failed to parse %s: %w", filePath, err)
		}

		trans, ok := locales[locale]
		if !ok {
			trans = make(Translations)
			locales[locale] = trans
		}
		for k, v := range catalog.Notifications {
			trans[k] = v
		}
		for k, v := range catalog.Email {
			trans[k] = v
		}
	}

	return nil
}

func Translate(locale, key string) string {
	mu.RLock()
	defer mu.RUnlock()

	if trans, ok := locales[locale]; ok {
		if val, ok := trans[key]; ok {
			return val
		}
	}

	if locale != DefaultLocale {
		if trans, ok := locales[DefaultLocale]; ok {
			if val, ok := trans[key]; ok {
				return val
			}
		}
	}

	return key
}

// Interpolate replaces {name} placeholders with values from data. Unknown
// placeholders are left untouched.
func Interpolate(text string, data map[string]string) string {
	if len(data) == 0 {
		return text
	}
	return placeholder.ReplaceAllStringFunc(text, func(match string) string {
		if val, ok := data[match[1:len(match)-1]]; ok {
			return val
		}
		return match
	})
}

// T translates key and interpolates data into the result.
func T(locale, key string, data map[string]string) string {
	return Interpolate(Translate(locale, key), data)
}
