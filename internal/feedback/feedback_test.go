package feedback

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/database"
)

func intPtr(v int) *int { return &v }

func TestNewEntry(t *testing.T) {
	entry, err := NewEntry("  great tool  ", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "great tool", entry.Text)
	assert.Equal(t, TypeGeneral, entry.Type)
	assert.NotEmpty(t, entry.ID)
	assert.False(t, entry.CreatedAt.IsZero())

	tests := []struct {
		name    string
		text    string
		kind    string
		rating  *int
		wantErr error
	}{
		{"空内容", "   ", "", nil, ErrEmptyFeedback},
		{"未知类型", "hi", "praise", nil, ErrInvalidFeedback},
		{"评分过低", "hi", TypeBug, intPtr(0), ErrInvalidFeedback},
		{"评分过高", "hi", TypeBug, intPtr(6), ErrInvalidFeedback},
		{"内容过长", strings.Repeat("x", MaxTextLength+1), "", nil, ErrInvalidFeedback},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEntry(tt.text, tt.kind, tt.rating)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestMemoryStoreRecent(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(3)

	for i := 0; i < 5; i++ {
		entry, err := NewEntry(fmt.Sprintf("feedback %d", i), TypeSuggestion, intPtr(i%5+1))
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, entry))
	}

	all, err := store.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "feedback 4", all[0].Text)
	assert.Equal(t, "feedback 2", all[2].Text)

	two, err := store.Recent(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, two, 2)
}

// 需要设置 VOICEGUARD_TEST_DSN 指向可写的 PostgreSQL
func TestPgxStore(t *testing.T) {
	dsn := os.Getenv("VOICEGUARD_TEST_DSN")
	if dsn == "" {
		t.Skip("VOICEGUARD_TEST_DSN 未设置，跳过数据库测试")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := database.ConnectPgx(ctx, database.DefaultConfig(dsn))
	require.NoError(t, err)

	store, err := NewPgxStore(ctx, pool)
	require.NoError(t, err)
	defer store.Close()

	entry, err := NewEntry("stored in postgres", TypeBug, intPtr(4))
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, entry))

	recent, err := store.Recent(ctx, 100)
	require.NoError(t, err)

	var found *Entry
	for i := range recent {
		if recent[i].ID == entry.ID {
			found = &recent[i]
		}
	}
	require.NotNil(t, found)
	assert.Equal(t, entry.Text, found.Text)
	require.NotNil(t, found.Rating)
	assert.Equal(t, 4, *found.Rating)
}
