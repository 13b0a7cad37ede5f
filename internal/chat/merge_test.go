package chat

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string, t int64) Message {
	return Message{
		ID:     id,
		RoomID: "room-1",
		Sender: SenderCustomer,
		Body:   "body-" + id,
		SentAt: time.Unix(t, 0),
	}
}

func ids(msgs []Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestMergeDeduplicatesOverlappingSources(t *testing.T) {
	history := []Message{msg("1", 10), msg("2", 20), msg("3", 30)}
	live := []Message{msg("2", 20), msg("3", 30), msg("4", 40)}

	merged := Merge(history, live)

	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(merged))
}

func TestMergeOrdersByTimestampRegardlessOfArrival(t *testing.T) {
	history := []Message{msg("3", 30), msg("1", 10)}
	live := []Message{msg("4", 40), msg("2", 20)}

	merged := Merge(history, live)

	require.Len(t, merged, 4)
	for i := 1; i < len(merged); i++ {
		assert.False(t, merged[i].SentAt.Before(merged[i-1].SentAt),
			"message %s displayed before earlier message %s", merged[i].ID, merged[i-1].ID)
	}
	assert.Equal(t, []string{"1", "2", "3", "4"}, ids(merged))
}

// History returns {1,t10} and {3,t30}; the live stream then delivers {2,t20}
// followed by a duplicate of {1,t10}. The rendered order must be 1,2,3 with
// no duplicate.
func TestMergeHistoryRacesLiveStream(t *testing.T) {
	history := []Message{msg("1", 10), msg("3", 30)}
	live := []Message{msg("2", 20), msg("1", 10)}

	merged := Merge(history, live)

	assert.Equal(t, []string{"1", "2", "3"}, ids(merged))
}

func TestMergeEmptySources(t *testing.T) {
	assert.Empty(t, Merge(nil, nil))
	assert.Equal(t, []string{"1"}, ids(Merge([]Message{msg("1", 10)}, nil)))
	assert.Equal(t, []string{"1"}, ids(Merge(nil, []Message{msg("1", 10)})))
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	history := []Message{msg("3", 30), msg("1", 10)}
	live := []Message{msg("2", 20)}

	Merge(history, live)

	assert.Equal(t, []string{"3", "1"}, ids(history), "history reordered in place")
	assert.Equal(t, []string{"2"}, ids(live))
}
