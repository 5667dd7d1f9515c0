// Package catalog holds the fixed, ordered set of tool descriptors served by
// recall, together with the processing layer and token budget of each tool.
//
// The catalogue is built once at package init and never changes afterwards.
// Every exported accessor returns copies, so callers cannot mutate it.
package catalog

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultBudget is the token budget used for names outside the catalogue.
const DefaultBudget = 1000

// Layer is a processing stage. It is documentation and budgeting metadata
// only; routing never looks at it.
type Layer struct {
	ID     int
	Name   string
	Budget int
}

// Tag renders the layer label embedded in tool descriptions, e.g. "[L3:Discovery]".
func (l Layer) Tag() string {
	return fmt.Sprintf("[L%d:%s]", l.ID, l.Name)
}

// Processing layers.
var (
	Orchestration = Layer{ID: 1, Name: "Orchestration", Budget: 2000}
	Core          = Layer{ID: 2, Name: "Core", Budget: 1500}
	Discovery     = Layer{ID: 3, Name: "Discovery", Budget: 800}
	Mutation      = Layer{ID: 4, Name: "Mutation", Budget: 500}
	Lifecycle     = Layer{ID: 5, Name: "Lifecycle", Budget: 600}
	Analysis      = Layer{ID: 6, Name: "Analysis", Budget: 1200}
	Maintenance   = Layer{ID: 7, Name: "Maintenance", Budget: 1000}
)

type entry struct {
	layer Layer
	tool  mcp.Tool
}

var (
	entries = buildEntries()
	byName  = indexEntries(entries)
)

func indexEntries(es []entry) map[string]int {
	idx := make(map[string]int, len(es))
	for i, e := range es {
		if _, dup := idx[e.tool.Name]; dup {
			panic("catalog: duplicate tool name " + e.tool.Name)
		}
		idx[e.tool.Name] = i
	}
	return idx
}

// Descriptors returns the 22 tool descriptors in catalogue order.
func Descriptors() []mcp.Tool {
	out := make([]mcp.Tool, len(entries))
	for i, e := range entries {
		out[i] = e.tool
	}
	return out
}

// Names returns the tool names in catalogue order.
func Names() []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.tool.Name
	}
	return out
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (mcp.Tool, bool) {
	i, ok := byName[name]
	if !ok {
		return mcp.Tool{}, false
	}
	return entries[i].tool, true
}

// LayerOf returns the processing layer of a tool.
func LayerOf(name string) (Layer, bool) {
	i, ok := byName[name]
	if !ok {
		return Layer{}, false
	}
	return entries[i].layer, true
}

// BudgetFor returns the advisory token budget for a tool, or DefaultBudget
// when the name is not in the catalogue.
func BudgetFor(name string) int {
	if l, ok := LayerOf(name); ok {
		return l.Budget
	}
	return DefaultBudget
}

// EstimateTokens approximates the token cost of v once serialized to JSON,
// using the chars/4 heuristic rounded up. Values that cannot be marshalled
// count as zero.
func EstimateTokens(v any) int {
	data, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return (len(data) + 3) / 4
}

// OverBudget reports whether the serialized result exceeds the budget of
// the named tool, returning the estimate and the budget used for the check.
func OverBudget(name string, v any) (estimate, budget int, over bool) {
	budget = BudgetFor(name)
	estimate = EstimateTokens(v)
	return estimate, budget, estimate > budget
}
