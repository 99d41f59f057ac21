package reports

import (
	"context"
	"fmt"
)

// Sharer 把报告作为附件发送给指定邮箱
type Sharer struct {
	store  *Store
	sender Sender
}

// NewSharer 创建分享服务
func NewSharer(store *Store, sender Sender) *Sharer {
	return &Sharer{store: store, sender: sender}
}

// Share 依次校验邮箱、报告和邮件配置，然后发送
func (s *Sharer) Share(ctx context.Context, email, name string) error {
	if err := ValidateEmail(email); err != nil {
		return err
	}
	path, err := s.store.Resolve(name)
	if err != nil {
		return err
	}
	if s.sender == nil || !s.sender.Configured() {
		return ErrMailNotConfigured
	}

	subject := fmt.Sprintf("VoiceGuard report: %s", name)
	body := fmt.Sprintf("The VoiceGuard analysis report %q is attached.\n", name)
	return s.sender.Send(ctx, email, subject, body, path)
}
