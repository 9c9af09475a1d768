package core

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"messenger-service/internal/mocks"
	"messenger-service/internal/models"
)

func TestUnreadIncrementAndCount(t *testing.T) {
	unread := NewUnreadLedger()

	assert.Equal(t, 1, unread.Increment("u2", "u1"))
	assert.Equal(t, 2, unread.Increment("u2", "u1"))
	assert.Equal(t, 1, unread.Increment("u2", "u3"))

	assert.Equal(t, 2, unread.Count("u2", "u1"))
	assert.Equal(t, 0, unread.Count("u1", "u2"))
}

func TestUnreadClearRemovesWholeEntry(t *testing.T) {
	unread := NewUnreadLedger()
	unread.Increment("u2", "u1")
	unread.Increment("u2", "u1")

	assert.True(t, unread.Clear("u2", "u1"))
	assert.Equal(t, 0, unread.Count("u2", "u1"))

	// Nothing pending anymore, so the second ack is a no-op.
	assert.False(t, unread.Clear("u2", "u1"))
	assert.False(t, unread.Clear("u9", "u1"))
}

func TestUnreadSnapshotIsACopy(t *testing.T) {
	unread := NewUnreadLedger()
	unread.Increment("u2", "u1")

	snap := unread.Snapshot("u2")
	snap["u1"] = 99

	assert.Equal(t, 1, unread.Count("u2", "u1"))
	assert.Empty(t, unread.Snapshot("u5"))
}

func TestUnreadRebuildFromLedger(t *testing.T) {
	repo := new(mocks.LedgerRepositoryMock)
	repo.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	ledger := NewLedger(testLogger(), repo)

	ledger.Append(&models.Message{ID: "m1", RoomID: "u1-u2", SenderID: "u1", ReceiverID: "u2", Status: models.StatusSent})
	ledger.Append(&models.Message{ID: "m2", RoomID: "u1-u2", SenderID: "u1", ReceiverID: "u2", Status: models.StatusDelivered})
	ledger.Append(&models.Message{ID: "m3", RoomID: "u1-u2", SenderID: "u2", ReceiverID: "u1", Status: models.StatusRead})
	ledger.Append(&models.Message{ID: "m4", RoomID: "u1-u3", SenderID: "u3", ReceiverID: "u1", Status: models.StatusSent})

	unread := NewUnreadLedger()
	unread.Increment("stale", "entry")
	unread.Rebuild(ledger)

	require.Equal(t, 2, unread.Count("u2", "u1"))
	require.Equal(t, 1, unread.Count("u1", "u3"))
	assert.Equal(t, 0, unread.Count("u1", "u2"))
	assert.Equal(t, 0, unread.Count("stale", "entry"))
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
