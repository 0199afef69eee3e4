package catalog

import (
	"context"
	"log/slog"
	"time"

	"github.com/zero-day-ai/recovery/classify"
	"github.com/zero-day-ai/recovery/types"
)

// Template is a category-tuned blueprint for a recovery action. The plan
// builder instantiates templates into concrete actions bound to one
// invocation context; templates themselves never change after
// construction, only their priors move (through the PriorStore).
type Template struct {
	Type          types.ActionType
	Description   string
	Instructions  []string
	EstimatedTime time.Duration

	// Probability is the current prior for (Type, classification
	// category), filled from a PriorStore snapshot.
	Probability float64

	Requirements []string
	Risks        []string
	Parameters   map[string]any
}

// Catalog selects applicable recovery action templates for a
// classification and stamps them with current priors.
type Catalog struct {
	priors PriorStore
	logger *slog.Logger
}

// New builds a Catalog backed by the given prior store. A nil store
// falls back to a fresh in-memory one.
func New(priors PriorStore, logger *slog.Logger) *Catalog {
	if priors == nil {
		priors = NewMemoryPriors()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Catalog{priors: priors, logger: logger}
}

// Priors exposes the store so the learner can share it.
func (c *Catalog) Priors() PriorStore {
	return c.priors
}

// TemplatesFor returns the applicable templates for a classification,
// with success probabilities taken from a consistent prior snapshot.
//
// It never returns an empty set: an unrecognized category still yields
// the generic manual-intervention template, and a prior-store failure
// degrades to the seed defaults rather than propagating.
func (c *Catalog) TemplatesFor(ctx context.Context, cls classify.Classification) []Template {
	snapshot, err := c.priors.Snapshot(ctx)
	if err != nil {
		c.logger.Warn("prior store snapshot failed, using seed defaults",
			"category", cls.Category,
			"error", err)
		snapshot = DefaultPriors()
	}

	defs := templateDefs(cls.Category)
	if len(defs) == 0 {
		defs = []Template{genericManualIntervention()}
	}

	out := make([]Template, len(defs))
	for i, def := range defs {
		key := Key{Action: def.Type, Category: cls.Category}
		if p, ok := snapshot[key]; ok {
			def.Probability = p
		} else {
			def.Probability = defaultPrior(key)
		}
		out[i] = def
	}
	return out
}

// templateDefs holds the static per-category blueprints. Probability is
// filled in later from the prior snapshot.
func templateDefs(cat classify.Category) []Template {
	switch cat {
	case classify.CategoryNetwork:
		return []Template{
			{
				Type:        types.ActionRetry,
				Description: "Retry the operation after a short backoff delay",
				Instructions: []string{
					"Wait for the configured delay",
					"Re-run the failed operation with identical parameters",
					"Stop after the configured maximum attempts",
				},
				EstimatedTime: 10 * time.Second,
				Requirements:  []string{"network connectivity"},
				Risks:         []string{"repeated failures if the outage persists"},
				Parameters:    map[string]any{"delay": 2 * time.Second},
			},
			{
				Type:        types.ActionAlternativeTool,
				Description: "Run the operation through an equivalent tool",
				Instructions: []string{
					"Select a recommended alternative tool",
					"Map parameters to the alternative's schema",
					"Invoke the alternative once",
				},
				EstimatedTime: 30 * time.Second,
				Requirements:  []string{"an alternative tool with matching capability"},
				Risks:         []string{"alternative output may differ in shape"},
			},
			{
				Type:        types.ActionEscalate,
				Description: "Escalate to an operator if the outage persists",
				Instructions: []string{
					"Collect recent failure context",
					"Open an incident with the failing tool and operation attached",
				},
				EstimatedTime: 15 * time.Minute,
				Risks:         []string{"slow resolution path"},
			},
		}
	case classify.CategoryTimeout:
		return []Template{
			{
				Type:        types.ActionRetry,
				Description: "Retry the operation with a longer delay",
				Instructions: []string{
					"Wait for the configured delay",
					"Re-run the failed operation",
				},
				EstimatedTime: 20 * time.Second,
				Risks:         []string{"the operation may simply be too slow"},
				Parameters:    map[string]any{"delay": 5 * time.Second},
			},
			{
				Type:        types.ActionModifyParams,
				Description: "Re-run with a larger timeout or a smaller workload",
				Instructions: []string{
					"Increase the operation timeout parameter",
					"Reduce batch or page size if the operation supports it",
					"Re-run with the adjusted parameters",
				},
				EstimatedTime: time.Minute,
				Parameters:    map[string]any{"suggestion": "increase timeout, reduce payload"},
			},
			{
				Type:          types.ActionAlternativeTool,
				Description:   "Run the operation through a faster equivalent tool",
				Instructions:  []string{"Select a recommended alternative tool", "Invoke it once"},
				EstimatedTime: 30 * time.Second,
			},
		}
	case classify.CategoryRateLimit:
		return []Template{
			{
				Type:        types.ActionRetry,
				Description: "Back off past the rate-limit window, then retry",
				Instructions: []string{
					"Wait for the rate-limit window to pass",
					"Re-run the failed operation",
				},
				EstimatedTime: time.Minute,
				Parameters:    map[string]any{"delay": 30 * time.Second},
			},
			{
				Type:          types.ActionAlternativeTool,
				Description:   "Use an equivalent tool with separate quota",
				Instructions:  []string{"Select a recommended alternative tool", "Invoke it once"},
				EstimatedTime: 30 * time.Second,
			},
		}
	case classify.CategoryValidation:
		return []Template{
			{
				Type:        types.ActionModifyParams,
				Description: "Correct the rejected parameters and re-run",
				Instructions: []string{
					"Compare the supplied parameters against the operation's schema",
					"Fix the rejected fields",
					"Re-run with corrected parameters",
				},
				EstimatedTime: 2 * time.Minute,
			},
			{
				Type:        types.ActionManualIntervention,
				Description: "Review the input by hand before retrying",
				Instructions: []string{
					"Inspect the validation message for the offending field",
					"Correct the input at its source",
				},
				EstimatedTime: 5 * time.Minute,
			},
		}
	case classify.CategoryAuthorization:
		return []Template{
			{
				Type:        types.ActionManualIntervention,
				Description: "Re-authenticate or refresh credentials",
				Instructions: []string{
					"Refresh or re-issue the credentials used by the failing tool",
					"Verify the granted scopes cover the operation",
					"Re-run the operation",
				},
				EstimatedTime: 5 * time.Minute,
				Requirements:  []string{"access to the credential issuer"},
			},
			{
				Type:        types.ActionEscalate,
				Description: "Request access from the resource owner",
				Instructions: []string{
					"Identify the denied resource and required permission",
					"File an access request with the owner",
				},
				EstimatedTime: time.Hour,
				Risks:         []string{"approval latency"},
			},
		}
	case classify.CategorySystem:
		return []Template{
			{
				Type:        types.ActionEscalate,
				Description: "Escalate to an operator immediately",
				Instructions: []string{
					"Capture the failure context and resource metrics",
					"Page the on-call operator",
				},
				EstimatedTime: 15 * time.Minute,
			},
			{
				Type:        types.ActionRollback,
				Description: "Roll back partially applied changes",
				Instructions: []string{
					"Identify side effects applied before the failure",
					"Revert them via the operation's rollback handler",
				},
				EstimatedTime: 5 * time.Minute,
				Requirements:  []string{"a rollback handler for the operation"},
				Risks:         []string{"rollback may itself fail on a degraded system"},
			},
			{
				Type:          types.ActionManualIntervention,
				Description:   "Free resources or restart the affected component",
				Instructions:  []string{"Inspect host resource usage", "Free memory or disk, or restart the component"},
				EstimatedTime: 10 * time.Minute,
			},
		}
	case classify.CategoryNotFound:
		return []Template{
			{
				Type:          types.ActionAlternativeTool,
				Description:   "Locate the resource through an equivalent tool",
				Instructions:  []string{"Select a recommended alternative tool", "Invoke it once"},
				EstimatedTime: 30 * time.Second,
			},
			{
				Type:        types.ActionManualIntervention,
				Description: "Verify the resource identifier",
				Instructions: []string{
					"Check the identifier or path for typos",
					"Confirm the resource still exists",
				},
				EstimatedTime: 3 * time.Minute,
			},
		}
	case classify.CategoryUnknown:
		return []Template{
			{
				Type:        types.ActionRetry,
				Description: "Retry once in case the failure was transient",
				Instructions: []string{
					"Wait briefly",
					"Re-run the failed operation once",
				},
				EstimatedTime: 10 * time.Second,
				Risks:         []string{"unknown root cause may recur"},
				Parameters:    map[string]any{"delay": 2 * time.Second, "max_retries": 1},
			},
			genericManualIntervention(),
		}
	default:
		return nil
	}
}

// genericManualIntervention is the universal fallback template, so plan
// building never receives an empty set.
func genericManualIntervention() Template {
	return Template{
		Type:        types.ActionManualIntervention,
		Description: "Investigate the failure manually",
		Instructions: []string{
			"Inspect the error message and invocation context",
			"Consult the failing tool's documentation or logs",
		},
		EstimatedTime: 10 * time.Minute,
	}
}
