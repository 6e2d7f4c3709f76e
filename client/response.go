package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andrejsstepanovs/architect/models"
	"github.com/google/uuid"
)

// The payload types mirror models but use pointers so that missing keys can
// be told apart from zero values.
type revisionPayload struct {
	Name    *string          `json:"name"`
	Modules *[]modulePayload `json:"modules"`
	Files   *[]filePayload   `json:"files"`
	Readme  *string          `json:"readme"`
}

type modulePayload struct {
	ID          *string         `json:"id"`
	Name        *string         `json:"name"`
	Type        *string         `json:"type"`
	Description *string         `json:"description"`
	Fields      *[]fieldPayload `json:"fields"`
}

type fieldPayload struct {
	Name     *string `json:"name"`
	Label    *string `json:"label"`
	Type     *string `json:"type"`
	Required *bool   `json:"required"`
}

type filePayload struct {
	Name     *string `json:"name"`
	Path     *string `json:"path"`
	Language *string `json:"language"`
	Content  *string `json:"content"`
}

// DecodeRevision parses and validates a model answer. Anything that does not
// match the schema fails with ErrInvalidResponse.
func DecodeRevision(text string) (*models.Revision, error) {
	text = stripFences(text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty response", ErrInvalidResponse)
	}

	var payload revisionPayload
	if err := json.Unmarshal([]byte(text), &payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	rev, err := payload.revision()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if err := rev.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	rev.Files = models.DedupFiles(rev.Files)
	return rev, nil
}

func (p revisionPayload) revision() (*models.Revision, error) {
	switch {
	case p.Name == nil:
		return nil, fmt.Errorf("missing name")
	case p.Modules == nil:
		return nil, fmt.Errorf("missing modules")
	case p.Files == nil:
		return nil, fmt.Errorf("missing files")
	case p.Readme == nil:
		return nil, fmt.Errorf("missing readme")
	}

	rev := &models.Revision{
		Name:    *p.Name,
		Modules: make([]models.Module, 0, len(*p.Modules)),
		Files:   make([]models.GeneratedFile, 0, len(*p.Files)),
		Readme:  *p.Readme,
	}

	for i, m := range *p.Modules {
		if m.Name == nil || m.Type == nil || m.Description == nil {
			return nil, fmt.Errorf("module %d: missing name, type or description", i)
		}
		// Models occasionally drop the id of a new module.
		id := uuid.NewString()
		if m.ID != nil && strings.TrimSpace(*m.ID) != "" {
			id = *m.ID
		}
		mod := models.Module{
			ID:          id,
			Name:        *m.Name,
			Type:        models.ModuleType(*m.Type),
			Description: *m.Description,
		}
		if m.Fields != nil {
			mod.Fields = make([]models.Field, 0, len(*m.Fields))
			for j, f := range *m.Fields {
				if f.Name == nil || f.Label == nil || f.Type == nil || f.Required == nil {
					return nil, fmt.Errorf("module %d field %d: missing name, label, type or required", i, j)
				}
				mod.Fields = append(mod.Fields, models.Field{
					Name:     *f.Name,
					Label:    *f.Label,
					Type:     models.FieldType(*f.Type),
					Required: *f.Required,
				})
			}
		}
		rev.Modules = append(rev.Modules, mod)
	}

	for i, f := range *p.Files {
		if f.Name == nil || f.Path == nil || f.Language == nil || f.Content == nil {
			return nil, fmt.Errorf("file %d: missing name, path, language or content", i)
		}
		rev.Files = append(rev.Files, models.GeneratedFile{
			Name:     *f.Name,
			Path:     *f.Path,
			Language: *f.Language,
			Content:  *f.Content,
		})
	}

	return rev, nil
}

// stripFences removes a markdown code fence some models wrap JSON in.
func stripFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```")
	if nl := strings.IndexByte(text, '\n'); nl >= 0 {
		text = text[nl+1:]
	} else {
		text = ""
	}
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
