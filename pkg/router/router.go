// Package router builds the immutable O(1) map from (event-kind,
// tool-name) to the set of applicable rule packages, once at startup
// from every compiled rule's metadata.
package router

import (
	"github.com/warden-run/warden/pkg/event"
	"github.com/warden-run/warden/pkg/metadata"
)

// Entry is one matched rule package at a routing key, carrying the
// signals it declared so the gatherer knows what to fetch.
type Entry struct {
	RuleID          string
	RequiredSignals []string
}

// Router is the immutable, process-global routing map for one scope.
type Router struct {
	table map[event.RoutingKey][]Entry
}

// Build constructs a Router from every rule's extracted metadata. Per
// §4.6: a rule with events E and tools T is inserted at every (e,t); a
// rule with events only and no tools is inserted at (e, wildcard) AND at
// (e, t) for every tool seen anywhere in the corpus, preserving the
// semantics that a tool-unspecified rule fires for any tool of that
// event.
func Build(rules []*metadata.Rule) *Router {
	allTools := map[string]bool{}
	for _, r := range rules {
		for _, t := range r.Routing.RequiredTools {
			allTools[t] = true
		}
	}

	table := map[event.RoutingKey][]Entry{}
	insert := func(key event.RoutingKey, e Entry) {
		table[key] = append(table[key], e)
	}

	for _, r := range rules {
		id := r.Custom.ID
		if id == "" {
			id = r.SourcePath
		}
		entry := Entry{RuleID: id, RequiredSignals: r.Routing.RequiredSignals}

		for _, ek := range r.Routing.RequiredEvents {
			if len(r.Routing.RequiredTools) == 0 {
				insert(event.RoutingKey{EventKind: ek}, entry)
				for t := range allTools {
					insert(event.RoutingKey{EventKind: ek, Tool: t}, entry)
				}
				continue
			}
			for _, t := range r.Routing.RequiredTools {
				insert(event.RoutingKey{EventKind: ek, Tool: t}, entry)
			}
		}
	}

	return &Router{table: table}
}

// Match returns the union of rules at (eventKind, tool) and
// (eventKind, wildcard), preserving discovery order with duplicates
// removed, plus the union of their required signals.
func (r *Router) Match(eventKind, tool string) ([]Entry, []string) {
	seen := map[string]bool{}
	var matched []Entry

	appendUnique := func(entries []Entry) {
		for _, e := range entries {
			if seen[e.RuleID] {
				continue
			}
			seen[e.RuleID] = true
			matched = append(matched, e)
		}
	}

	appendUnique(r.table[event.RoutingKey{EventKind: eventKind, Tool: tool}])
	if tool != "" {
		appendUnique(r.table[event.RoutingKey{EventKind: eventKind}])
	}

	signalSeen := map[string]bool{}
	var signals []string
	for _, e := range matched {
		for _, s := range e.RequiredSignals {
			if !signalSeen[s] {
				signalSeen[s] = true
				signals = append(signals, s)
			}
		}
	}

	return matched, signals
}
