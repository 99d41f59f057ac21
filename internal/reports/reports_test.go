package reports

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"VoiceGuardBackend/internal/config"
)

type sentMail struct {
	to, subject, body, attachment string
}

type fakeSender struct {
	configured bool
	err        error
	sent       []sentMail
}

func (f *fakeSender) Configured() bool { return f.configured }

func (f *fakeSender) Send(_ context.Context, to, subject, body, attachmentPath string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{to, subject, body, attachmentPath})
	return nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()

	older := filepath.Join(dir, "older.pdf")
	require.NoError(t, os.WriteFile(older, []byte("%PDF-old"), 0o644))
	past := time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(older, past, past))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "report.pdf"), []byte("%PDF-1.4 report"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".hidden"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	return NewStore(dir)
}

func TestStoreResolve(t *testing.T) {
	store := newTestStore(t)

	path, err := store.Resolve("report.pdf")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.Dir(), "report.pdf"), path)

	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"空名称", "", ErrInvalidName},
		{"上级目录", "../etc/passwd", ErrInvalidName},
		{"子目录", "nested/report.pdf", ErrInvalidName},
		{"反斜杠", `..\report.pdf`, ErrInvalidName},
		{"隐藏文件", ".hidden", ErrInvalidName},
		{"不存在", "missing.pdf", ErrNotFound},
		{"目录", "nested", ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Resolve(tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)

	list, err := store.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "report.pdf", list[0].Name)
	assert.Equal(t, int64(len("%PDF-1.4 report")), list[0].Size)
	assert.Equal(t, "older.pdf", list[1].Name)

	empty, err := NewStore(filepath.Join(t.TempDir(), "absent")).List()
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStoreOpen(t *testing.T) {
	store := newTestStore(t)

	f, info, err := store.Open("report.pdf")
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, "report.pdf", info.Name())
}

func TestValidateEmail(t *testing.T) {
	assert.NoError(t, ValidateEmail("analyst@example.com"))
	assert.ErrorIs(t, ValidateEmail(""), ErrInvalidEmail)
	assert.ErrorIs(t, ValidateEmail("not-an-email"), ErrInvalidEmail)
}

func TestSharerShare(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	t.Run("发送成功", func(t *testing.T) {
		sender := &fakeSender{configured: true}
		err := NewSharer(store, sender).Share(ctx, "analyst@example.com", "report.pdf")
		require.NoError(t, err)

		require.Len(t, sender.sent, 1)
		assert.Equal(t, "analyst@example.com", sender.sent[0].to)
		assert.Contains(t, sender.sent[0].subject, "report.pdf")
		assert.Equal(t, filepath.Join(store.Dir(), "report.pdf"), sender.sent[0].attachment)
	})

	t.Run("错误顺序", func(t *testing.T) {
		sender := &fakeSender{configured: false}
		sharer := NewSharer(store, sender)

		assert.ErrorIs(t, sharer.Share(ctx, "bad", "missing.pdf"), ErrInvalidEmail)
		assert.ErrorIs(t, sharer.Share(ctx, "analyst@example.com", "missing.pdf"), ErrNotFound)
		assert.ErrorIs(t, sharer.Share(ctx, "analyst@example.com", "report.pdf"), ErrMailNotConfigured)
		assert.Empty(t, sender.sent)
	})

	t.Run("发送失败", func(t *testing.T) {
		sender := &fakeSender{configured: true, err: errors.Join(ErrSendFailed, errors.New("connection refused"))}
		err := NewSharer(store, sender).Share(ctx, "analyst@example.com", "report.pdf")
		assert.ErrorIs(t, err, ErrSendFailed)
	})
}

func TestSMTPMailerNotConfigured(t *testing.T) {
	mailer := NewSMTPMailer(func() config.MailConfig { return config.MailConfig{} })
	assert.False(t, mailer.Configured())

	err := mailer.Send(context.Background(), "analyst@example.com", "s", "b", "")
	assert.ErrorIs(t, err, ErrMailNotConfigured)
}

func TestSMTPMailerReadsLatestSettings(t *testing.T) {
	current := config.MailConfig{}
	mailer := NewSMTPMailer(func() config.MailConfig { return current })
	assert.False(t, mailer.Configured())

	current = config.MailConfig{Host: "smtp.example.com", Port: 587, From: "noreply@example.com"}
	assert.True(t, mailer.Configured())
}
