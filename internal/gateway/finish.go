package gateway

import "strings"

// NormalizeFinishReason maps provider-specific stop reasons onto the
// normalized set.
func NormalizeFinishReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case "stop", "end_turn", "stop_sequence", "finish_reason_stop", "eos", "tool_use", "tool_calls", "function_call":
		return FinishStop
	case "length", "max_tokens", "finish_reason_max_tokens", "model_length_context":
		return FinishLength
	case "content_filter", "safety", "recitation", "refusal", "blocklist", "prohibited_content", "spii", "image_safety":
		return FinishContentFilter
	case "error", "malformed_function_call":
		return FinishError
	default:
		return FinishOther
	}
}
