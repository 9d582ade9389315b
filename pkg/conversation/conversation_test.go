package conversation

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendStampsTimestamp(t *testing.T) {
	s := New()
	s.Append(Message{Role: RoleUser, Content: "hello"})

	snapshot := s.Snapshot()
	require.Len(t, snapshot, 1)
	assert.False(t, snapshot[0].Timestamp.IsZero())
}

func TestTurnsCountsUserMessages(t *testing.T) {
	s := New()
	s.Append(Message{Role: RoleSystem, Content: "be helpful"})
	s.Append(Message{Role: RoleUser, Content: "first"})
	s.Append(Message{Role: RoleAssistant, Content: "answer"})
	s.Append(Message{Role: RoleUser, Content: "second"})

	assert.Equal(t, 2, s.Turns())
	assert.Equal(t, 4, s.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	s := New()
	s.Append(Message{Role: RoleUser, Content: "original"})

	snapshot := s.Snapshot()
	snapshot[0].Content = "mutated"

	assert.Equal(t, "original", s.Snapshot()[0].Content)
}

func TestTruncatedSnapshotKeepsSystemAndRecent(t *testing.T) {
	s := New()
	s.Append(Message{Role: RoleSystem, Content: "system"})
	for i := 0; i < 10; i++ {
		s.Append(Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	truncated := s.TruncatedSnapshot(4)
	require.Len(t, truncated, 4)
	assert.Equal(t, RoleSystem, truncated[0].Role)
	assert.Equal(t, "msg-7", truncated[1].Content)
	assert.Equal(t, "msg-9", truncated[3].Content)

	// Underlying log is untouched
	assert.Equal(t, 11, s.Len())
}

func TestTruncatedSnapshotNoLimit(t *testing.T) {
	s := New()
	s.Append(Message{Role: RoleUser, Content: "one"})
	s.Append(Message{Role: RoleAssistant, Content: "two"})

	assert.Len(t, s.TruncatedSnapshot(0), 2)
	assert.Len(t, s.TruncatedSnapshot(5), 2)
}

func TestTruncatedSnapshotWithoutSystemMessage(t *testing.T) {
	s := New()
	for i := 0; i < 6; i++ {
		s.Append(Message{Role: RoleUser, Content: fmt.Sprintf("msg-%d", i)})
	}

	truncated := s.TruncatedSnapshot(3)
	require.Len(t, truncated, 3)
	assert.Equal(t, "msg-3", truncated[0].Content)
	assert.Equal(t, "msg-5", truncated[2].Content)
}
