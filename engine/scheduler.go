package engine

// nextBatch selects the next batch: a prefix of the pending queue of at
// most size items. Selection never reorders and never skips, so a
// requeued item is only seen again after everything queued ahead of it.
func nextBatch(pending []string, size int) []string {
	if len(pending) <= size {
		return pending
	}
	return pending[:size]
}
