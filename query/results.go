// Package query turns vector store hits into ranked, score-annotated search
// responses.
package query

import "github.com/fabfab/docrag/store"

// Result is one ranked search hit. It carries the stored chunk fields plus the
// derived relevance score and the raw distance reported by the store.
type Result struct {
	store.DocumentChunk
	RelevanceScore float64 `json:"relevance_score"`
	Distance       float64 `json:"distance"`
}

// Response is the full answer to one search request.
type Response struct {
	Results []Result `json:"results"`
	Query   string   `json:"query"`
}

// FormatHits annotates store hits with relevance scores, preserving the
// store's distance ordering. The result slice is never nil so an empty answer
// marshals as [] rather than null.
func FormatHits(hits []store.SearchHit) []Result {
	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		results = append(results, Result{
			DocumentChunk:  hit.Chunk,
			RelevanceScore: relevanceScore(hit.Distance),
			Distance:       hit.Distance,
		})
	}
	return results
}

// relevanceScore maps a non-negative distance onto (0, 1]: an exact match
// (distance zero) scores 1 and the score strictly decreases as distance grows.
func relevanceScore(distance float64) float64 {
	return 1 / (1 + distance)
}
