package prompts

import "crucible/internal/parser"

// Layer identifies a pipeline stage. Values are 1-based and stable; they
// appear in raw response file names.
type Layer int

const (
	LayerFacts     Layer = 1
	LayerReasoning Layer = 2
	LayerIntegrity Layer = 3
)

// Layers lists the pipeline in execution order.
var Layers = []Layer{LayerFacts, LayerReasoning, LayerIntegrity}

// Name returns the short layer name used in logs and artifacts.
func (l Layer) Name() string {
	switch l {
	case LayerFacts:
		return "facts"
	case LayerReasoning:
		return "reasoning"
	case LayerIntegrity:
		return "integrity"
	default:
		return "unknown"
	}
}

func (l Layer) String() string { return l.Name() }

// Schema returns the fields a layer's response is expected to carry.
func (l Layer) Schema() parser.Schema {
	switch l {
	case LayerFacts:
		return parser.Schema{Fields: []string{"established_facts", "ambiguous_elements", "key_questions"}}
	case LayerReasoning:
		return parser.Schema{Fields: []string{"reasoning", "recommendation", "values_applied", "tradeoffs_acknowledged"}}
	case LayerIntegrity:
		return parser.Schema{Fields: []string{"factual_adherence", "value_transparency", "logical_coherence", "overall_assessment"}}
	default:
		return parser.Schema{}
	}
}
