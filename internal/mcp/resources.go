package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/nvandessel/netsweep/internal/experiment"
	"github.com/nvandessel/netsweep/internal/sanitize"
	"github.com/nvandessel/netsweep/internal/store"
)

const (
	schemaURI       = "netsweep://schema"
	planURIPrefix   = "netsweep://plans/"
	planURITemplate = planURIPrefix + "{id}"
)

// registerResources registers the experiment file schema and per-plan
// status summaries.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         schemaURI,
		Name:        "netsweep-experiment-schema",
		Description: "JSON Schema for experiment files (data, topology, input, output, experiments).",
		MIMEType:    "application/schema+json",
	}, s.handleSchemaResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: planURITemplate,
		Name:        "netsweep-plan-status",
		Description: "Progress summary of a recorded plan: run counts per status and failed runs.",
		MIMEType:    "text/markdown",
	}, s.handlePlanResource)
}

func (s *Server) handleSchemaResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	schema, err := experiment.Schema()
	if err != nil {
		return nil, fmt.Errorf("failed to build schema: %w", err)
	}
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: schemaURI, MIMEType: "application/schema+json", Text: string(schema)},
		},
	}, nil
}

func (s *Server) handlePlanResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, planURIPrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	planID := strings.TrimPrefix(uri, planURIPrefix)
	if planID == "" {
		return nil, fmt.Errorf("plan ID is required")
	}

	plan, err := s.ledger.GetPlan(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to get plan: %w", err)
	}
	if plan == nil {
		return nil, sdk.ResourceNotFoundError(uri)
	}
	failed, err := s.ledger.ListRuns(ctx, planID, store.StatusFailed)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	counts, err := s.ledger.CountRuns(ctx, planID)
	if err != nil {
		return nil, fmt.Errorf("failed to count runs: %w", err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/markdown", Text: formatPlanMarkdown(*plan, statusCounts(counts), failed)},
		},
	}, nil
}

// maxFailedListed caps the failed runs listed in a plan summary.
const maxFailedListed = 20

func formatPlanMarkdown(plan store.Plan, counts map[string]int, failed []store.Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Plan %s\n\n", sanitize.Name(plan.Name))
	fmt.Fprintf(&b, "- ID: `%s`\n", plan.ID)
	fmt.Fprintf(&b, "- Created: %s\n", plan.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Runs: %d\n\n", plan.RunCount)

	statuses := make([]string, 0, len(counts))
	for st := range counts {
		statuses = append(statuses, st)
	}
	sort.Strings(statuses)
	b.WriteString("| status | runs |\n|---|---|\n")
	for _, st := range statuses {
		fmt.Fprintf(&b, "| %s | %d |\n", st, counts[st])
	}

	if len(failed) > 0 {
		b.WriteString("\n## Failed runs\n\n")
		for i, r := range failed {
			if i == maxFailedListed {
				fmt.Fprintf(&b, "- ... and %d more\n", len(failed)-maxFailedListed)
				break
			}
			fmt.Fprintf(&b, "- #%d %s: %s\n", r.Index, sanitize.Name(r.Label), sanitize.Name(r.Error))
		}
	}
	return b.String()
}
