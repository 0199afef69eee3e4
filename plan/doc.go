// Package plan builds ranked, executable recovery plans.
//
// The builder combines a classification with the action catalog and, when
// collaborators are attached, alternative-tool recommendations and
// generated explanations. Collaborator failures never fail a build: the
// plan degrades to locally composed content. Every plan carries at least
// one action, sorted by success probability (descending) with estimated
// time as the tie-break.
package plan
