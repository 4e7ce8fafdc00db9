package mcp

import (
	"fmt"
	"time"
)

// AuditEntry describes one MCP tool invocation. It carries metadata about
// the call, never file contents or full paths.
type AuditEntry struct {
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success" or "error"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// fields flattens the entry for the event log.
func (e AuditEntry) fields() map[string]any {
	f := map[string]any{
		"tool":        e.Tool,
		"duration_ms": e.DurationMs,
		"status":      e.Status,
	}
	if e.Error != "" {
		f["error"] = e.Error
	}
	if len(e.Params) > 0 {
		f["params"] = e.Params
	}
	return f
}

// Tool parameters whose values are safe to record.
var safeValueParams = map[string]bool{
	"experiment": true,
	"status":     true,
	"limit":      true,
	"offset":     true,
}

// Tool parameters recorded only as "(set)": they may carry file paths or
// ledger identifiers.
var presenceOnlyParams = map[string]bool{
	"path":    true,
	"plan_id": true,
}

// sanitizeToolParams extracts loggable metadata from tool parameters.
// Zero values are treated as absent. Unknown keys are dropped. A
// "_param_count" key records how many parameters were set.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	result := make(map[string]string)
	set := 0
	for key, val := range params {
		if isZeroParam(val) {
			continue
		}
		set++
		switch {
		case safeValueParams[key]:
			result[key] = fmt.Sprintf("%v", val)
		case presenceOnlyParams[key]:
			result[key] = "(set)"
		}
	}
	result["_param_count"] = fmt.Sprintf("%d", set)
	return result
}

func isZeroParam(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	}
	return false
}

// auditTool records a tool invocation in the event log and at debug level.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	entry := AuditEntry{
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     params,
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}

	s.events.Log("mcp_tool", entry.fields())
	s.logger.Debug("mcp tool call",
		"tool", entry.Tool,
		"status", entry.Status,
		"duration_ms", entry.DurationMs,
		"error", entry.Error)
}
