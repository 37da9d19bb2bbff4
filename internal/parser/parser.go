package parser

import (
	"log/slog"

	"crucible/internal/logging"
)

// Parser applies strategies in order; the first to decode wins.
type Parser struct {
	strategies []Strategy
	logger     *slog.Logger
}

// New returns a Parser using DefaultStrategies.
func New(logger *slog.Logger) *Parser {
	return NewWithStrategies(logger, DefaultStrategies()...)
}

// NewWithStrategies returns a Parser with a custom strategy chain.
func NewWithStrategies(logger *slog.Logger, strategies ...Strategy) *Parser {
	return &Parser{
		strategies: append([]Strategy(nil), strategies...),
		logger:     logging.NewComponentLogger(logger, "parser"),
	}
}

// Parse recovers schema fields from raw. It never returns an error: a payload
// nothing can decode becomes a manual_review Output holding the raw text.
func (p *Parser) Parse(raw string, schema Schema) Output {
	out := Output{Attempts: make([]Attempt, 0, len(p.strategies))}

	for _, strategy := range p.strategies {
		fields, err := strategy.Extract(raw)
		if err != nil {
			out.Attempts = append(out.Attempts, Attempt{Strategy: strategy.Name(), Error: err.Error()})
			p.logger.Debug("parse strategy failed",
				logging.String("strategy", strategy.Name()),
				logging.Error(err),
			)
			continue
		}
		out.Attempts = append(out.Attempts, Attempt{Strategy: strategy.Name()})
		out.Strategy = strategy.Name()
		out.Fields = fields
		out.Missing = fillMissing(out.Fields, schema)
		out.Status = StatusSuccess
		if len(out.Missing) > 0 {
			out.Status = StatusPartialSuccess
		}
		if len(out.Attempts) > 1 || out.Status != StatusSuccess {
			p.logger.Info("parse recovered",
				logging.String("strategy", out.Strategy),
				logging.Int("missing_fields", len(out.Missing)),
				logging.String(logging.FieldEventType, "parse_recovered"),
			)
		}
		return out
	}

	out.Status = StatusManualReview
	out.Strategy = StrategyManualReview
	out.RawText = raw
	out.Fields = make(map[string]any, len(schema.Fields))
	out.Missing = fillMissing(out.Fields, schema)
	logging.WarnWithContext(p.logger, "parse fell back to manual review", "parse_manual_review",
		logging.Int("attempts", len(out.Attempts)),
		logging.Int("raw_bytes", len(raw)),
		logging.String(logging.FieldImpact, "layer fields carry the missing sentinel"),
		logging.String(logging.FieldErrorHint, "read the raw response artifact"),
	)
	return out
}

func fillMissing(fields map[string]any, schema Schema) []string {
	var missing []string
	for _, name := range schema.Fields {
		if value, ok := fields[name]; ok && value != nil {
			continue
		}
		fields[name] = MissingSentinel
		missing = append(missing, name)
	}
	return missing
}
