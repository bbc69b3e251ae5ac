package application

import "github.com/ericfisherdev/critchecker/internal/domain/model"

// Assemble folds the records of every batch into the final report. perBatch
// must be index-aligned with batches. The first record seen for a critique
// URL wins; later duplicates are dropped and counted. Output is grouped by
// batch in discovery order, and keeps encounter order within a batch.
func Assemble(batches []model.CritiqueBatch, perBatch [][]model.CritiqueRecord) ([]model.CritiqueRecord, int) {
	seen := make(map[string]bool)
	var (
		out     []model.CritiqueRecord
		dropped int
	)

	for i := range batches {
		if i >= len(perBatch) {
			break
		}
		for _, rec := range perBatch[i] {
			key := rec.CritiqueURL.String()
			if seen[key] {
				dropped++
				continue
			}
			seen[key] = true
			out = append(out, rec)
		}
	}

	return out, dropped
}
