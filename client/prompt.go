package client

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/andrejsstepanovs/architect/models"
)

const promptTemplate = `You are an expert full-stack developer. You are building a modular application with a Go backend and a React + TypeScript frontend.

CURRENT PROJECT STATE:
- Project Name: %s
- Visual Style: %s
- Modules: %s
- Files: %s

TASK:
Add a new module or update the project based on this request: %q.

REQUIREMENTS FOR DATA RELATIONSHIPS & CONSISTENCY:
1. ANALYZE EXISTING STATE: review the current modules and files to understand existing data structures and relationships.
2. VISUAL STYLE: strictly adhere to the visual style %q using modern Tailwind CSS patterns.
3. DATA RELATIONSHIPS: relate new modules to existing ones where logical (e.g. link 'Orders' to 'Customers' via CustomerID).
4. BACKEND CONSISTENCY:
   - Update Go structs and database schemas to include foreign keys and relationships.
   - Use consistent naming conventions and shared database utility functions.
   - ALWAYS include a "backend/.env" file with a "GEMINI_API_KEY=" placeholder.
5. FRONTEND CONSISTENCY:
   - Update or create shared TypeScript interfaces reflecting relationships.
   - Update navigation and UI components to move between related data.
6. DOCUMENTATION: ALWAYS include a "README.md" file in the root explaining the build (Go build for backend, Vite build for frontend) and how to configure the Gemini API key.
7. MODULAR INTEGRATION: the new module must be a functional part of the existing ecosystem.

MODULE RULES:
- "type" is one of: crud, auth, custom.
- crud modules MUST list "fields"; each field type is one of: string, number, boolean, date, select.
- Keep the ids of existing modules stable.

Return the result as a JSON object:
{
  "name": "Project Name",
  "modules": [ ...updated list of modules... ],
  "files": [ ...FULL updated set of files, each with name, path, language, content... ],
  "readme": "Updated Markdown"
}`

// BuildPrompt renders the generation prompt for project and request.
func BuildPrompt(project models.Project, request string) (string, error) {
	modules := project.Modules
	if modules == nil {
		modules = []models.Module{}
	}
	modulesJSON, err := json.Marshal(modules)
	if err != nil {
		return "", fmt.Errorf("failed to encode modules: %w", err)
	}

	paths := make([]string, 0, len(project.Files))
	for _, f := range project.Files {
		paths = append(paths, f.Path)
	}

	return fmt.Sprintf(promptTemplate,
		project.Name,
		project.Style,
		string(modulesJSON),
		strings.Join(paths, ", "),
		request,
		project.Style,
	), nil
}
