package chat_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/lllypuk/teamboard/internal/domain/chat"
)

var sentAt = time.Date(2025, 3, 10, 14, 30, 0, 0, time.UTC)

func TestNew(t *testing.T) {
	m := chat.New(7, 3, "dev1", "hello", chat.TypeGeneral, sentAt)

	assert.Equal(t, 7, m.ID)
	assert.Equal(t, 3, m.SenderID)
	assert.Equal(t, chat.None, m.TargetUserID)
	assert.Equal(t, chat.None, m.RelatedTaskID)
	assert.Equal(t, sentAt, m.SentAt)
}

func TestMessage_IsBetween(t *testing.T) {
	pm := chat.New(1, 3, "dev1", "psst", chat.TypePrivate, sentAt)
	pm.TargetUserID = 2

	t.Run("matches either direction", func(t *testing.T) {
		assert.True(t, pm.IsBetween(3, 2))
		assert.True(t, pm.IsBetween(2, 3))
	})

	t.Run("ignores other pairs", func(t *testing.T) {
		assert.False(t, pm.IsBetween(3, 4))
		assert.False(t, pm.IsBetween(1, 2))
	})

	t.Run("non-private messages never match", func(t *testing.T) {
		general := chat.New(2, 3, "dev1", "hello", chat.TypeGeneral, sentAt)
		assert.False(t, general.IsBetween(3, chat.None))
	})
}

func TestMessage_Format(t *testing.T) {
	m := chat.New(1, 3, "dev1", "hello team", chat.TypeGeneral, sentAt)
	assert.Equal(t, "2025-03-10 14:30:00 [dev1] hello team", m.Format())
}

func TestType_String(t *testing.T) {
	assert.Equal(t, "General", chat.TypeGeneral.String())
	assert.Equal(t, "Task Update", chat.TypeTaskUpdate.String())
	assert.Equal(t, "System", chat.TypeSystem.String())
	assert.Equal(t, "Private", chat.TypePrivate.String())
}
