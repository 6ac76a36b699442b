package chain

// BlockRange is one inclusive sub-range of a historical query.
type BlockRange struct {
	From uint64
	To   uint64
}

// ChunkRanges splits [from, to] into contiguous, non-overlapping
// inclusive ranges of at most span blocks each. The final range is
// shorter when the total is not evenly divisible.
func ChunkRanges(from, to, span uint64) []BlockRange {
	if to < from {
		return nil
	}
	if span == 0 {
		span = 1
	}
	out := make([]BlockRange, 0, (to-from)/span+1)
	for start := from; ; {
		end := start + span - 1
		if end > to || end < start {
			end = to
		}
		out = append(out, BlockRange{From: start, To: end})
		if end == to {
			break
		}
		start = end + 1
	}
	return out
}
