package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/andrejsstepanovs/architect/file"
	"github.com/google/uuid"
)

// ErrInvalidProject is returned when a document does not match the project schema.
var ErrInvalidProject = errors.New("invalid project")

// ModuleType is the closed set of module variants.
type ModuleType string

const (
	ModuleCRUD   ModuleType = "crud"
	ModuleAuth   ModuleType = "auth"
	ModuleCustom ModuleType = "custom"
)

// Valid reports whether t is one of the known module variants.
func (t ModuleType) Valid() bool {
	switch t {
	case ModuleCRUD, ModuleAuth, ModuleCustom:
		return true
	}
	return false
}

// FieldType is the closed set of CRUD field kinds.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldSelect  FieldType = "select"
)

func (t FieldType) Valid() bool {
	switch t {
	case FieldString, FieldNumber, FieldBoolean, FieldDate, FieldSelect:
		return true
	}
	return false
}

// Field describes one column of a CRUD module.
type Field struct {
	Name     string    `json:"name"`
	Label    string    `json:"label"`
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Module is a logical feature unit of a project.
type Module struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Type        ModuleType `json:"type"`
	Description string     `json:"description"`
	Fields      []Field    `json:"fields,omitempty"`
}

// GeneratedFile is one produced source file.
type GeneratedFile struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Project is the root document: the active project and every workspace
// snapshot share this shape.
type Project struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Style     string          `json:"style"`
	Modules   []Module        `json:"modules"`
	Files     []GeneratedFile `json:"files"`
	Readme    string          `json:"readme"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// Revision is the part of a project produced by generation. It replaces the
// matching fields of the active project wholesale.
type Revision struct {
	Name    string          `json:"name"`
	Modules []Module        `json:"modules"`
	Files   []GeneratedFile `json:"files"`
	Readme  string          `json:"readme"`
}

const DefaultName = "New Project"

const DefaultReadme = `# GopherScript Modular Architect
Welcome to your new project workspace.

### Getting Started
1. **Define your Style**: Select a visual theme.
2. **Add Modules**: Describe features (e.g., "Add a User CRUD with profile pictures").
3. **Review Code**: Inspect the generated Go backend and React frontend.
4. **Live Preview**: See a virtual representation of your modules.

### Production Readiness
- All generated code follows industry standard patterns.
- Data relationships are maintained across modules.
- Export your project as a ZIP to deploy to your own infrastructure.`

// Styles is the catalogue of visual styles a project can use. The first entry
// is the default.
var Styles = []string{
	"Modern Minimalist (Clean, high contrast, Inter font)",
	"Glassmorphism (Frosted glass, soft shadows, vibrant gradients)",
	"Neo-Brutalism (Bold borders, high saturation, thick shadows)",
	"Corporate Sleek (Professional, blue/slate tones, rounded corners)",
	"Dark Mode Luxury (Deep blacks, gold/emerald accents, serif fonts)",
}

// DefaultStyle returns the style assigned to fresh projects.
func DefaultStyle() string {
	return Styles[0]
}

// ValidStyle reports whether style is part of the catalogue.
func ValidStyle(style string) bool {
	for _, s := range Styles {
		if s == style {
			return true
		}
	}
	return false
}

// NewProject returns a fresh template project with a new id.
func NewProject(now time.Time) Project {
	return Project{
		ID:        uuid.NewString(),
		Name:      DefaultName,
		Style:     DefaultStyle(),
		Modules:   []Module{},
		Files:     []GeneratedFile{},
		Readme:    DefaultReadme,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy that shares no slices with p.
func (p Project) Clone() Project {
	out := p
	out.Modules = cloneModules(p.Modules)
	out.Files = make([]GeneratedFile, len(p.Files))
	copy(out.Files, p.Files)
	return out
}

func cloneModules(in []Module) []Module {
	out := make([]Module, len(in))
	for i, m := range in {
		out[i] = m
		if m.Fields != nil {
			out[i].Fields = make([]Field, len(m.Fields))
			copy(out[i].Fields, m.Fields)
		}
	}
	return out
}

// Apply replaces name, modules, files and readme with the revision. ID, style
// and UpdatedAt are kept.
func (p *Project) Apply(r Revision) {
	p.Name = r.Name
	p.Modules = cloneModules(r.Modules)
	p.Files = DedupFiles(r.Files)
	p.Readme = r.Readme
}

// HasFiles reports whether there is anything to export.
func (p Project) HasFiles() bool {
	return len(p.Files) > 0
}

// Validate checks the document against the project schema.
func (p Project) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidProject)
	}
	if !ValidStyle(p.Style) {
		return fmt.Errorf("%w: unknown style %q", ErrInvalidProject, p.Style)
	}
	if err := ValidateModules(p.Modules); err != nil {
		return err
	}

	seen := make(map[string]bool, len(p.Files))
	for _, f := range p.Files {
		if err := f.Validate(); err != nil {
			return err
		}
		if seen[f.Path] {
			return fmt.Errorf("%w: duplicate file path %q", ErrInvalidProject, f.Path)
		}
		seen[f.Path] = true
	}
	return nil
}

// Validate checks the revision content. Duplicate file paths are allowed here
// since Apply collapses them.
func (r Revision) Validate() error {
	if err := ValidateModules(r.Modules); err != nil {
		return err
	}
	for _, f := range r.Files {
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ValidateModules validates every module and checks id uniqueness.
func ValidateModules(modules []Module) error {
	ids := make(map[string]bool, len(modules))
	for i, m := range modules {
		if err := m.Validate(); err != nil {
			return fmt.Errorf("module %d: %w", i, err)
		}
		if ids[m.ID] {
			return fmt.Errorf("%w: duplicate module id %q", ErrInvalidProject, m.ID)
		}
		ids[m.ID] = true
	}
	return nil
}

// Validate checks a single module, including the per-variant payload.
func (m Module) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: module without id", ErrInvalidProject)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: module %q without name", ErrInvalidProject, m.ID)
	}
	if !m.Type.Valid() {
		return fmt.Errorf("%w: module %q has unknown type %q", ErrInvalidProject, m.ID, m.Type)
	}
	if m.Type == ModuleCRUD && len(m.Fields) == 0 {
		return fmt.Errorf("%w: crud module %q requires fields", ErrInvalidProject, m.ID)
	}
	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("%w: module %q has a field without name", ErrInvalidProject, m.ID)
		}
		if !f.Type.Valid() {
			return fmt.Errorf("%w: field %q has unknown type %q", ErrInvalidProject, f.Name, f.Type)
		}
	}
	return nil
}

// Validate checks that the file has a usable path.
func (f GeneratedFile) Validate() error {
	if _, err := file.NormalizePath(f.Path); err != nil {
		return fmt.Errorf("%w: file %q: %v", ErrInvalidProject, f.Name, err)
	}
	return nil
}

// DedupFiles normalizes paths and collapses duplicates. The last entry for a
// path wins; it takes the position of the first occurrence. Entries whose
// path cannot be normalized are dropped.
func DedupFiles(files []GeneratedFile) []GeneratedFile {
	out := make([]GeneratedFile, 0, len(files))
	index := make(map[string]int, len(files))
	for _, f := range files {
		p, err := file.NormalizePath(f.Path)
		if err != nil {
			continue
		}
		f.Path = p
		if i, ok := index[p]; ok {
			out[i] = f
			continue
		}
		index[p] = len(out)
		out = append(out, f)
	}
	return out
}

// FindModule returns the module with the given id.
func (p Project) FindModule(id string) (Module, bool) {
	for _, m := range p.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}
