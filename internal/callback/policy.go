package callback

import (
	"fmt"

	"github.com/sells-group/enrichment-engine/internal/enrichment"
)

// decision is the skip-policy outcome for one inbound callback (rule 2).
type decision struct {
	skip   bool
	reason string
}

// evaluateSkipPolicy implements spec rule 2: paginated streams skip a page
// already recorded in processed_pages; unpaginated streams skip once the
// account is already completed; a failed status only accepts a new
// completed to clear it.
func evaluateSkipPolicy(status *enrichment.AccountEnrichmentStatus, event enrichment.CallbackEvent) decision {
	if status != nil && status.Status == string(enrichment.StatusFailed) && event.Status != enrichment.StatusCompleted {
		return decision{skip: true, reason: "account status is failed; only a completed callback is accepted"}
	}

	if event.Pagination != nil {
		if status != nil && status.ProcessedPages()[event.Pagination.Page] {
			return decision{skip: true, reason: fmt.Sprintf("Page %d already processed", event.Pagination.Page)}
		}
		return decision{skip: false}
	}

	if status != nil && status.Status == string(enrichment.StatusCompleted) {
		return decision{skip: true, reason: "enrichment already completed"}
	}
	return decision{skip: false}
}

// effectiveStatus implements rule 3: a paginated stream is in_progress
// until its final page, completed only on the final page. Non-paginated
// streams report their own status unchanged.
func effectiveStatus(event enrichment.CallbackEvent) enrichment.Status {
	if event.Pagination == nil {
		return event.Status
	}
	if event.Pagination.Page >= event.Pagination.TotalPages && event.Status == enrichment.StatusCompleted {
		return enrichment.StatusCompleted
	}
	if event.Status == enrichment.StatusFailed {
		return enrichment.StatusFailed
	}
	return enrichment.StatusInProgress
}

// mergeStatus implements rule 4: merge metadata (page set, total_pages,
// last_processed_page), always bump last_attempted_run, bump
// last_successful_run only on completed, and atomically increment
// failure_count on failed.
func mergeStatus(prev *enrichment.AccountEnrichmentStatus, accountID string, event enrichment.CallbackEvent) enrichment.AccountEnrichmentStatus {
	next := enrichment.AccountEnrichmentStatus{
		Account:        accountID,
		EnrichmentType: event.EnrichmentType,
	}
	if prev != nil {
		next = *prev
	}
	next.Account = accountID
	next.EnrichmentType = event.EnrichmentType
	next.Status = string(effectiveStatus(event))
	next.CompletionPercent = event.CompletionPercentage
	next.Source = event.Source
	next.LastAttemptedRun = now()

	if event.Status == enrichment.StatusCompleted {
		next.LastSuccessfulRun = now()
	}
	if event.Status == enrichment.StatusFailed {
		next.FailureCount++
		next.ErrorDetails = event.ErrorDetails
	}

	if event.Pagination != nil {
		if next.Metadata == nil {
			next.Metadata = map[string]any{}
		}
		pages := next.ProcessedPages()
		pages[event.Pagination.Page] = true
		pageList := make([]int, 0, len(pages))
		for p := range pages {
			pageList = append(pageList, p)
		}
		next.Metadata["processed_pages"] = pageList
		next.Metadata["total_pages"] = event.Pagination.TotalPages
		next.Metadata["last_processed_page"] = event.Pagination.Page
	}

	return next
}

// isFinalPage reports whether event delivers the last page of a
// paginated stream (or is not paginated at all, in which case every
// completed callback is terminal).
func isFinalPage(event enrichment.CallbackEvent) bool {
	if event.Pagination == nil {
		return true
	}
	return event.Pagination.Page >= event.Pagination.TotalPages
}
