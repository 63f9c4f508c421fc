package templates

import (
	"bytes"
	"fmt"
	"math"
	"path/filepath"
	"text/template"

	"go.uber.org/zap"

	"github.com/avetrov/goldpilot/pkg/logger"
)

// Renderer interface for template rendering (for dependency injection)
type Renderer interface {
	ExecuteTemplate(name string, data any) (string, error)
	TemplateExists(name string) bool
}

// Manager manages templates from a directory
type Manager struct {
	templates *template.Template
	directory string
}

// GetDefaultFuncMap returns common template helper functions
func GetDefaultFuncMap() template.FuncMap {
	return template.FuncMap{
		"mul": func(a, b float64) float64 {
			return a * b
		},
		"div": func(a, b float64) float64 {
			if b == 0 {
				return 0
			}
			return a / b
		},
		"add": func(a, b int) int {
			return a + b
		},
		"abs": math.Abs,
	}
}

// NewManager creates and loads all templates from directory (including subdirectories)
func NewManager(templatesDir string) (*Manager, error) {
	tmpl := template.New("root").Funcs(GetDefaultFuncMap())

	// Load templates from root directory (if any exist)
	pattern := filepath.Join(templatesDir, "*.tmpl")
	if result, err := tmpl.ParseGlob(pattern); err == nil && result != nil {
		tmpl = result
	}

	// Load from subdirectories (one level deep: templates/*/*.tmpl)
	subPattern := filepath.Join(templatesDir, "*", "*.tmpl")
	if result, err := tmpl.ParseGlob(subPattern); err == nil && result != nil {
		tmpl = result
	}

	templateCount := len(tmpl.Templates())
	if templateCount <= 1 { // "root" template doesn't count
		return nil, fmt.Errorf("no templates found in %s or subdirectories", templatesDir)
	}

	logger.Info("templates loaded",
		zap.Int("count", templateCount),
		zap.String("directory", templatesDir),
	)

	return &Manager{
		templates: tmpl,
		directory: templatesDir,
	}, nil
}

// NewManagerWithValidation creates manager and validates required templates exist
func NewManagerWithValidation(templatesDir string, requiredTemplates []string) (*Manager, error) {
	manager, err := NewManager(templatesDir)
	if err != nil {
		return nil, err
	}

	for _, name := range requiredTemplates {
		if manager.templates.Lookup(name) == nil {
			return nil, fmt.Errorf("required template not found: %s", name)
		}
	}

	return manager, nil
}

// ExecuteTemplate renders template with data
func (m *Manager) ExecuteTemplate(name string, data interface{}) (string, error) {
	tmpl := m.templates.Lookup(name)
	if tmpl == nil {
		return "", fmt.Errorf("template %s not found", name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to execute template %s: %w", name, err)
	}

	return buf.String(), nil
}

// TemplateExists checks if template exists
func (m *Manager) TemplateExists(name string) bool {
	return m.templates.Lookup(name) != nil
}

// GetDirectory returns templates directory path
func (m *Manager) GetDirectory() string {
	return m.directory
}
