// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package executor

import (
	"fmt"
	"strings"

	"github.com/AleutianAI/sollol/internal/agent"
)

// merge combines results per strategy, per spec.md §4.10. collect keeps
// every result; merge/vote/best operate only over successful, JSON-format
// results, so errored or text-fallback results are carried in
// Output.Results but excluded from their merged value.
func merge(results []agent.Result, strategy MergeStrategy) any {
	switch strategy {
	case MergeCollect:
		return mergeCollect(results)
	case MergeMerge:
		return mergeDeep(results)
	case MergeVote:
		return mergeVote(results, "")
	case MergeBest:
		return mergeBest(results)
	default:
		return mergeCollect(results)
	}
}

// mergeCollect returns the ordered list of every result's data (or raw
// text), preserving submission order regardless of completion order.
func mergeCollect(results []agent.Result) []map[string]any {
	out := make([]map[string]any, len(results))
	for i, r := range results {
		out[i] = resultAsMap(r)
	}
	return out
}

func resultAsMap(r agent.Result) map[string]any {
	entry := map[string]any{
		"agent":  r.Agent,
		"status": string(r.Status),
	}
	if r.Format == agent.FormatJSON {
		entry["format"] = "json"
		entry["data"] = r.Data
	} else {
		entry["format"] = "text"
		entry["data"] = map[string]any{"content": r.RawText}
	}
	if r.Err != nil {
		entry["error"] = r.Err.Error()
	}
	return entry
}

// mergeDeep deep-merges every successful JSON result's Data: arrays are
// concatenated and deduped, and conflicting scalars keep the value from
// the result that appears first in priority order (submission order
// stands in for priority, since results carry no node-priority field).
func mergeDeep(results []agent.Result) map[string]any {
	merged := map[string]any{}
	for _, r := range results {
		if r.Status != agent.StatusSuccess || r.Format != agent.FormatJSON {
			continue
		}
		mergeObjectInto(merged, r.Data)
	}
	return merged
}

func mergeObjectInto(dst, src map[string]any) {
	for k, v := range src {
		existing, ok := dst[k]
		if !ok {
			dst[k] = v
			continue
		}
		dst[k] = mergeValue(existing, v)
	}
}

func mergeValue(existing, incoming any) any {
	existingList, existingIsList := existing.([]any)
	incomingList, incomingIsList := incoming.([]any)
	if existingIsList && incomingIsList {
		return dedupeAppend(existingList, incomingList)
	}

	existingObj, existingIsObj := existing.(map[string]any)
	incomingObj, incomingIsObj := incoming.(map[string]any)
	if existingIsObj && incomingIsObj {
		out := make(map[string]any, len(existingObj))
		for k, v := range existingObj {
			out[k] = v
		}
		mergeObjectInto(out, incomingObj)
		return out
	}

	// Conflicting scalars: keep the earlier (higher-priority) value.
	return existing
}

func dedupeAppend(a, b []any) []any {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]any, 0, len(a)+len(b))
	for _, v := range append(append([]any{}, a...), b...) {
		key := fmt.Sprintf("%v", v)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, v)
	}
	return out
}

// mergeVote picks the most common value of field across every successful
// JSON result's Data, breaking ties by the order results were submitted
// (earlier submission stands in for higher node priority). If field is
// empty, each result votes with its first present key among summary,
// content, story and context.
func mergeVote(results []agent.Result, field string) map[string]any {
	type tally struct {
		value any
		count int
		first int
	}
	votes := map[string]*tally{}
	order := 0

	for i, r := range results {
		if r.Status != agent.StatusSuccess || r.Format != agent.FormatJSON {
			continue
		}
		val, ok := voteValue(r.Data, field)
		if !ok {
			continue
		}
		key := fmt.Sprintf("%v", val)
		if t, exists := votes[key]; exists {
			t.count++
		} else {
			votes[key] = &tally{value: val, count: 1, first: i}
		}
		order++
	}

	var winner *tally
	for _, t := range votes {
		if winner == nil || t.count > winner.count || (t.count == winner.count && t.first < winner.first) {
			winner = t
		}
	}
	if winner == nil {
		return map[string]any{}
	}
	return map[string]any{"field": field, "winner": winner.value, "votes": winner.count}
}

func voteValue(data map[string]any, field string) (any, bool) {
	if field != "" {
		v, ok := data[field]
		return v, ok
	}
	for _, k := range []string{"summary", "content", "story", "context"} {
		if v, ok := data[k]; ok {
			return v, true
		}
	}
	return nil, false
}

// mergeBest picks the single successful JSON result with the highest
// internal quality score, as computed by qualityScore; this heuristic is
// separate from the workflow package's quality voter.
func mergeBest(results []agent.Result) map[string]any {
	var best agent.Result
	bestScore := -1.0
	found := false

	for _, r := range results {
		if r.Status != agent.StatusSuccess || r.Format != agent.FormatJSON {
			continue
		}
		score := qualityScore(r.Data)
		if !found || score > bestScore {
			best = r
			bestScore = score
			found = true
		}
	}
	if !found {
		return map[string]any{}
	}
	return resultAsMap(best)
}

// qualityScore is a cheap proxy for content richness: number of
// populated fields plus total textual length, normalized so neither
// dimension dominates for typical agent output sizes.
func qualityScore(data map[string]any) float64 {
	score := 0.0
	for _, v := range data {
		switch val := v.(type) {
		case string:
			if strings.TrimSpace(val) != "" {
				score += 1.0 + float64(len(val))/500.0
			}
		case []any:
			score += float64(len(val)) * 0.5
		default:
			if val != nil {
				score += 0.5
			}
		}
	}
	return score
}
