package audit

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

// TemplateVars are the fields a human-text template may reference.
type TemplateVars struct {
	AgentName      string
	PrescriptionID string
}

// defaultTemplatesYAML seeds the catalog the way the teacher's
// config.LoadProfile seeds a RegionalProfile from YAML: a small, versioned
// document bundled with the binary, overridable via LoadCatalog.
const defaultTemplatesYAML = `
create:
  en: "{{.AgentName}} created prescription {{.PrescriptionID}}"
  de: "{{.AgentName}} hat das Rezept {{.PrescriptionID}} angelegt"
read:
  en: "{{.AgentName}} read prescription {{.PrescriptionID}}"
  de: "{{.AgentName}} hat das Rezept {{.PrescriptionID}} gelesen"
vread:
  en: "{{.AgentName}} read a historic version of prescription {{.PrescriptionID}}"
  de: "{{.AgentName}} hat eine historische Version des Rezepts {{.PrescriptionID}} gelesen"
update:
  en: "{{.AgentName}} updated prescription {{.PrescriptionID}}"
  de: "{{.AgentName}} hat das Rezept {{.PrescriptionID}} aktualisiert"
delete:
  en: "{{.AgentName}} deleted prescription {{.PrescriptionID}}"
  de: "{{.AgentName}} hat das Rezept {{.PrescriptionID}} geloescht"
`

// Catalog selects a human-readable text template by (sub-type, language).
type Catalog struct {
	bySubType    map[SubType]map[string]string
	supportedTag []language.Tag
	matcher      language.Matcher
}

// NewCatalog loads the built-in template set.
func NewCatalog() *Catalog {
	c, err := LoadCatalog(strings.NewReader(defaultTemplatesYAML))
	if err != nil {
		// The embedded template document is a compile-time constant;
		// a parse failure here is a programmer error, not a runtime one.
		panic(fmt.Sprintf("audit: embedded template catalog invalid: %v", err))
	}
	return c
}

// LoadCatalog parses a YAML document of subtype -> language -> template.
func LoadCatalog(r io.Reader) (*Catalog, error) {
	var raw map[string]map[string]string
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("audit: decode templates: %w", err)
	}

	c := &Catalog{bySubType: make(map[SubType]map[string]string)}
	var tags []language.Tag
	seen := map[string]bool{}
	for sub, byLang := range raw {
		m := make(map[string]string, len(byLang))
		for lang, tmpl := range byLang {
			m[lang] = tmpl
			if !seen[lang] {
				if tag, err := language.Parse(lang); err == nil {
					tags = append(tags, tag)
					seen[lang] = true
				}
			}
		}
		c.bySubType[SubType(sub)] = m
	}
	if len(tags) == 0 {
		tags = []language.Tag{language.English}
	}
	c.supportedTag = tags
	c.matcher = language.NewMatcher(tags)
	return c, nil
}

// Render selects the template for (subType, preferredLanguage), falling
// back to the closest supported language tag, and substitutes vars.
func (c *Catalog) Render(subType SubType, preferredLanguage string, vars TemplateVars) string {
	byLang := c.bySubType[subType]
	if len(byLang) == 0 {
		return ""
	}

	lang := preferredLanguage
	if tag, _, err := language.ParseAcceptLanguage(preferredLanguage); err == nil && len(tag) > 0 {
		_, idx, _ := c.matcher.Match(tag...)
		lang = c.supportedTag[idx].String()
	}

	tmpl, ok := byLang[lang]
	if !ok {
		tmpl, ok = byLang["en"]
	}
	if !ok {
		for _, v := range byLang {
			tmpl = v
			break
		}
	}

	tmpl = strings.ReplaceAll(tmpl, "{{.AgentName}}", vars.AgentName)
	tmpl = strings.ReplaceAll(tmpl, "{{.PrescriptionID}}", vars.PrescriptionID)
	return tmpl
}
