// Package skill implements the skill registry: named callables with
// natural-language descriptions that the executor role may request during a
// step. Registration happens at setup time; invocation is synchronous and
// safe for concurrent use as long as individual handlers are reentrant.
package skill

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/registry"
)

// ============================================================================
// ERRORS
// ============================================================================

// UnknownSkillError reports an invocation of a skill that was never
// registered.
type UnknownSkillError struct {
	Name string
}

func (e *UnknownSkillError) Error() string {
	return fmt.Sprintf("no skill registered with name '%s'", e.Name)
}

// SkillExecutionError wraps a failure raised by a skill handler.
type SkillExecutionError struct {
	Name string
	Err  error
}

func (e *SkillExecutionError) Error() string {
	return fmt.Sprintf("skill '%s' failed: %v", e.Name, e.Err)
}

func (e *SkillExecutionError) Unwrap() error {
	return e.Err
}

// ============================================================================
// SKILLS AND REGISTRY
// ============================================================================

// Handler executes a skill with named arguments and returns a textual result.
type Handler func(ctx context.Context, args map[string]any) (string, error)

// Skill is one registered callable plus its catalogue metadata.
type Skill struct {
	Name        string
	Description string
	Handler     Handler

	// Schema describes the argument object (JSON Schema shape). Optional;
	// typed registration fills it automatically.
	Schema map[string]any
}

// Info is the catalogue entry exposed for prompt construction.
type Info struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// Registry stores and executes skills.
type Registry struct {
	skills *registry.BaseRegistry[*Skill]
}

// NewRegistry creates an empty skill registry.
func NewRegistry() *Registry {
	return &Registry{
		skills: registry.NewBaseRegistry[*Skill](),
	}
}

// Register adds a skill. Duplicate names fail here, at setup time, never at
// run time.
func (r *Registry) Register(name, description string, handler Handler) error {
	return r.RegisterSkill(&Skill{Name: name, Description: description, Handler: handler})
}

// RegisterSkill adds a fully-populated skill.
func (r *Registry) RegisterSkill(s *Skill) error {
	if s == nil {
		return fmt.Errorf("skill cannot be nil")
	}
	if s.Handler == nil {
		return fmt.Errorf("skill '%s' has no handler", s.Name)
	}
	if err := r.skills.Register(s.Name, s); err != nil {
		return fmt.Errorf("failed to register skill: %w", err)
	}
	return nil
}

// Invoke runs the named skill. Handler panics are contained and reported as
// execution failures so a misbehaving skill cannot take down the workflow.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]any) (result string, err error) {
	s, exists := r.skills.Get(name)
	if !exists {
		return "", &UnknownSkillError{Name: name}
	}

	defer func() {
		if rec := recover(); rec != nil {
			err = &SkillExecutionError{Name: name, Err: fmt.Errorf("panic: %v", rec)}
		}
	}()

	result, err = s.Handler(ctx, args)
	if err != nil {
		return "", &SkillExecutionError{Name: name, Err: err}
	}
	return result, nil
}

// Catalog returns {name, description, schema} for every registered skill, in
// stable order.
func (r *Registry) Catalog() []Info {
	skills := r.skills.List()
	infos := make([]Info, 0, len(skills))
	for _, s := range skills {
		infos = append(infos, Info{
			Name:        s.Name,
			Description: s.Description,
			Schema:      s.Schema,
		})
	}
	return infos
}

// Count returns the number of registered skills.
func (r *Registry) Count() int {
	return r.skills.Count()
}

// PromptFragment renders the catalogue for the executor's system prompt.
func PromptFragment(catalog []Info) string {
	if len(catalog) == 0 {
		return "No skills are registered."
	}

	var b strings.Builder
	for _, info := range catalog {
		fmt.Fprintf(&b, "- %s: %s\n", info.Name, info.Description)
		if len(info.Schema) > 0 {
			if props, ok := info.Schema["properties"].(map[string]any); ok && len(props) > 0 {
				names := make([]string, 0, len(props))
				for name := range props {
					names = append(names, name)
				}
				sort.Strings(names)
				fmt.Fprintf(&b, "  arguments: %s\n", strings.Join(names, ", "))
			}
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
