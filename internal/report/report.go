// Package report renders human-readable progress summaries for research
// sessions. The output is a markdown text block returned through the tool
// surface, not written to any log or file.
package report

import (
	"fmt"
	"sort"
	"strings"

	"deepresearch/internal/store"
)

const (
	maxActivityEntries = 10
	maxMetricLines     = 10
)

// Renderer reads session state and produces progress reports.
type Renderer struct {
	store *store.Store
}

func NewRenderer(st *store.Store) *Renderer {
	return &Renderer{store: st}
}

// Progress renders a markdown summary of the session: identity and flags,
// path counts by status, agent counts by status, the most recent activity
// entries, and the latest value of each recorded metric.
func (r *Renderer) Progress(sessionID string) (string, error) {
	sess, err := r.store.GetSession(sessionID)
	if err != nil {
		return "", err
	}
	paths, err := r.store.ListPaths(sessionID)
	if err != nil {
		return "", err
	}
	agents, err := r.store.AgentsBySession(sessionID)
	if err != nil {
		return "", err
	}
	activity, err := r.store.RecentActivity(sessionID, maxActivityEntries)
	if err != nil {
		return "", err
	}
	metrics, err := r.store.MetricsBySession(sessionID, "")
	if err != nil {
		return "", err
	}

	var sb strings.Builder

	sb.WriteString("# Research Progress\n\n")
	sb.WriteString(fmt.Sprintf("**Topic:** %s\n", sess.ResearchTopic))
	sb.WriteString(fmt.Sprintf("**Session:** `%s` (%s)\n", sess.SessionID, sess.ResearchType))
	sb.WriteString(fmt.Sprintf("**Status:** %s | **Phase:** %d | **Iteration:** %d/%d\n",
		sess.Status, sess.CurrentPhase, sess.IterationCount, sess.MaxIterations))
	sb.WriteString(fmt.Sprintf("**Confidence:** %.2f (threshold %.2f)\n",
		sess.Confidence, sess.ConfidenceThreshold))
	if flags := sessionFlags(sess.IsAggregated, sess.BudgetExhausted); flags != "" {
		sb.WriteString(fmt.Sprintf("**Flags:** %s\n", flags))
	}
	sb.WriteString("\n")

	sb.WriteString(fmt.Sprintf("## Paths (%d)\n", len(paths)))
	if len(paths) == 0 {
		sb.WriteString("No paths generated yet.\n")
	} else {
		counts := map[string]int{}
		for _, p := range paths {
			counts[p.Status]++
		}
		for _, status := range sortedKeys(counts) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", status, counts[status]))
		}
	}
	sb.WriteString("\n")

	if len(agents) > 0 {
		sb.WriteString(fmt.Sprintf("## Agents (%d)\n", len(agents)))
		counts := map[string]int{}
		for _, a := range agents {
			counts[a.Status]++
		}
		for _, status := range sortedKeys(counts) {
			sb.WriteString(fmt.Sprintf("- %s: %d\n", status, counts[status]))
		}
		sb.WriteString("\n")
	}

	if len(activity) > 0 {
		sb.WriteString("## Recent Activity\n")
		for _, e := range activity {
			line := fmt.Sprintf("- [phase %d] %s: %s", e.Phase, e.EventType, e.Message)
			if e.AgentID.Valid && e.AgentID.String != "" {
				line += fmt.Sprintf(" (agent %s)", e.AgentID.String)
			}
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n")
	}

	if len(metrics) > 0 {
		// Metrics arrive oldest first; keep the latest value per name.
		latest := map[string]float64{}
		for _, m := range metrics {
			latest[m.MetricName] = m.MetricValue
		}
		sb.WriteString("## Metrics\n")
		names := sortedKeys(latest)
		for i, name := range names {
			if i >= maxMetricLines {
				sb.WriteString(fmt.Sprintf("... and %d more\n", len(names)-maxMetricLines))
				break
			}
			sb.WriteString(fmt.Sprintf("- %s: %.2f\n", name, latest[name]))
		}
		sb.WriteString("\n")
	}

	return strings.TrimRight(sb.String(), "\n") + "\n", nil
}

func sessionFlags(aggregated, exhausted bool) string {
	var flags []string
	if aggregated {
		flags = append(flags, "aggregated")
	}
	if exhausted {
		flags = append(flags, "budget exhausted")
	}
	return strings.Join(flags, ", ")
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
