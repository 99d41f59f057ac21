// Package feedback 保存前端提交的文字反馈
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	// MaxTextLength 单条反馈最大字符数
	MaxTextLength = 5000

	TypeGeneral    = "general"
	TypeBug        = "bug"
	TypeSuggestion = "suggestion"
)

// ErrEmptyFeedback 反馈内容为空
var ErrEmptyFeedback = errors.New("feedback is empty")

// ErrInvalidFeedback 反馈字段不合法
var ErrInvalidFeedback = errors.New("invalid feedback")

// Entry 一条反馈
type Entry struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Rating    *int      `json:"rating,omitempty"`
	Text      string    `json:"feedback"`
	CreatedAt time.Time `json:"created_at"`
}

// NewEntry 校验并创建反馈，type 为空时视为 general
func NewEntry(text, kind string, rating *int) (*Entry, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyFeedback
	}
	if len([]rune(text)) > MaxTextLength {
		return nil, fmt.Errorf("%w: text longer than %d characters", ErrInvalidFeedback, MaxTextLength)
	}

	switch kind {
	case "":
		kind = TypeGeneral
	case TypeGeneral, TypeBug, TypeSuggestion:
	default:
		return nil, fmt.Errorf("%w: unknown type %q", ErrInvalidFeedback, kind)
	}

	if rating != nil && (*rating < 1 || *rating > 5) {
		return nil, fmt.Errorf("%w: rating must be between 1 and 5", ErrInvalidFeedback)
	}

	return &Entry{
		ID:        uuid.NewString(),
		Type:      kind,
		Rating:    rating,
		Text:      text,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Store 反馈存储
type Store interface {
	Save(ctx context.Context, entry *Entry) error
	// Recent 按时间倒序返回最多 limit 条
	Recent(ctx context.Context, limit int) ([]Entry, error)
	Close()
}
