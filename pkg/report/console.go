package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/fatih/color"

	"github.com/ameenalkhaldi/Automation-Framework/pkg/llms"
	"github.com/ameenalkhaldi/Automation-Framework/pkg/workflow"
)

// agentPalette rotates through distinct colors so each agent gets a
// deterministic color in order of first appearance.
var agentPalette = []*color.Color{
	color.New(color.FgCyan),
	color.New(color.FgGreen),
	color.New(color.FgMagenta),
	color.New(color.FgYellow),
	color.New(color.FgBlue),
	color.New(color.FgHiCyan),
	color.New(color.FgHiGreen),
	color.New(color.FgHiMagenta),
}

// ConsolePrinter renders assistant turns to the terminal, one color per agent.
// JSON replies are unpacked into key/value lines for readability.
type ConsolePrinter struct {
	mu     sync.Mutex
	out    io.Writer
	colors map[string]*color.Color
}

// NewConsolePrinter creates a printer writing to out (typically os.Stdout).
func NewConsolePrinter(out io.Writer) *ConsolePrinter {
	return &ConsolePrinter{
		out:    out,
		colors: make(map[string]*color.Color),
	}
}

// Observer adapts the printer to the workflow's turn observer. Only assistant
// turns are rendered; prompts and system messages stay in the transcript log.
func (p *ConsolePrinter) Observer() workflow.TurnObserver {
	return func(agent, role, content string) {
		if role != llms.RoleAssistant {
			return
		}
		p.Print(agent, content)
	}
}

// Print renders one agent reply.
func (p *ConsolePrinter) Print(agentName, text string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.colorFor(agentName)
	c.Fprintf(p.out, "%s:\n", agentName)

	var parsed map[string]any
	if err := json.Unmarshal([]byte(text), &parsed); err == nil && parsed != nil {
		keys := make([]string, 0, len(parsed))
		for key := range parsed {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			c.Fprintf(p.out, "%s: %s\n", key, formatValue(parsed[key]))
		}
	} else {
		c.Fprintln(p.out, text)
	}
	fmt.Fprintln(p.out)
}

func (p *ConsolePrinter) colorFor(agentName string) *color.Color {
	if c, ok := p.colors[agentName]; ok {
		return c
	}
	c := agentPalette[len(p.colors)%len(agentPalette)]
	p.colors[agentName] = c
	return c
}

func formatValue(v any) string {
	switch value := v.(type) {
	case bool:
		if value {
			return "Yes"
		}
		return "No"
	case []any:
		parts := make([]string, 0, len(value))
		for _, item := range value {
			parts = append(parts, fmt.Sprintf("%v", item))
		}
		return strings.Join(parts, ", ")
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", value)
	}
}
