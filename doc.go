// Package recovery is an embeddable error recovery engine for tool
// invocation failures.
//
// The engine classifies an error into a category and severity, builds a
// ranked plan of recovery actions from a learnable catalog, optionally
// executes automatic actions through caller-supplied hooks, and adjusts
// its action priors from reported outcomes. External collaborators
// (error intelligence, tool registry, explanation generation) are
// injected as narrow interfaces; every one of them is optional and
// every one of them may fail without failing a plan.
//
// Basic usage:
//
//	engine, err := recovery.New(recovery.DefaultConfig(),
//	    recovery.WithLogger(logger),
//	    recovery.WithRegistry(reg),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	p, err := engine.GenerateRecoveryPlan(ctx, failure, types.Context{
//	    Tool:      "http-fetch",
//	    Operation: "get",
//	})
//
// Plans always carry at least one action. Outcomes are reported back
// with LearnFromOutcome, which moves the success prior for the
// (action, category) pair so future plans rank actions by what has
// actually worked.
package recovery
