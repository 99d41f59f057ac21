package reports

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/wneessen/go-mail"

	"VoiceGuardBackend/internal/config"
)

const (
	defaultSendTimeout = 30 * time.Second
	defaultMaxElapsed  = 2 * time.Minute
)

var (
	ErrMailNotConfigured = errors.New("mail is not configured")
	ErrInvalidEmail      = errors.New("invalid email address")
	ErrSendFailed        = errors.New("failed to send email")
)

// Sender 发送带附件的邮件
type Sender interface {
	Send(ctx context.Context, to, subject, body, attachmentPath string) error
	Configured() bool
}

// ValidateEmail 校验收件人地址
func ValidateEmail(addr string) error {
	if strings.TrimSpace(addr) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidEmail)
	}
	if err := mail.NewMsg().To(addr); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}
	return nil
}

// SMTPMailer 通过 SMTP 发送邮件，每次发送时读取最新配置
type SMTPMailer struct {
	settings func() config.MailConfig
}

// NewSMTPMailer 创建 SMTP 发送器
func NewSMTPMailer(settings func() config.MailConfig) *SMTPMailer {
	return &SMTPMailer{settings: settings}
}

func (m *SMTPMailer) Configured() bool {
	return m.settings().Enabled()
}

// Send 发送邮件，临时性错误按指数退避重试
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body, attachmentPath string) error {
	cfg := m.settings()
	if !cfg.Enabled() {
		return ErrMailNotConfigured
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = defaultSendTimeout
	}
	if cfg.MaxElapsed <= 0 {
		cfg.MaxElapsed = defaultMaxElapsed
	}

	msg := mail.NewMsg()
	if err := msg.From(cfg.From); err != nil {
		return fmt.Errorf("%w: from: %w", ErrSendFailed, err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidEmail, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)
	if attachmentPath != "" {
		msg.AttachFile(attachmentPath)
	}

	client, err := newClient(cfg)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	backOff := backoff.NewExponentialBackOff()
	backOff.InitialInterval = time.Second
	backOff.MaxElapsedTime = cfg.MaxElapsed

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		sendCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		defer cancel()

		err := client.DialAndSendWithContext(sendCtx, msg)
		if err == nil {
			return nil
		}

		var sendErr *mail.SendError
		if errors.As(err, &sendErr) && !sendErr.IsTemp() {
			return backoff.Permanent(err)
		}
		log.Printf("邮件发送失败 (第%d次): %v", attempt, err)
		return err
	}, backoff.WithContext(backOff, ctx))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

func newClient(cfg config.MailConfig) (*mail.Client, error) {
	opts := []mail.Option{
		mail.WithTLSPolicy(tlsPolicy(cfg.TLSPolicy)),
		mail.WithTimeout(cfg.SendTimeout),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	return mail.NewClient(cfg.Host, opts...)
}

func tlsPolicy(name string) mail.TLSPolicy {
	switch strings.ToLower(name) {
	case "opportunistic":
		return mail.TLSOpportunistic
	case "none":
		return mail.NoTLS
	default:
		return mail.TLSMandatory
	}
}
