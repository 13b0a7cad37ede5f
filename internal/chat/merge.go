package chat

import "sort"

// Merge combines a point-in-time history fetch with the live inbound stream
// into one chronologically ordered, duplicate-free sequence. Both sources may
// deliver the same message (a message sent just before the history fetch
// completes arrives on both paths); the first copy seen wins, content for
// duplicate IDs is assumed identical.
//
// Merge is pure: it never mutates its inputs and holds no state, so it is
// re-run on every new inbound message and whenever the history fetch
// completes.
func Merge(history, live []Message) []Message {
	merged := make([]Message, 0, len(history)+len(live))
	seen := make(map[string]struct{}, len(history)+len(live))

	for _, src := range [][]Message{history, live} {
		for _, m := range src {
			if _, ok := seen[m.ID]; ok {
				continue
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].SentAt.Before(merged[j].SentAt)
	})

	return merged
}
