package mailer

import (
	"context"
	"testing"

	"licensing-controlplane/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func TestNewWithoutHostLogsOnly(t *testing.T) {
	s, err := New(&config.Config{})
	require.NoError(t, err)
	require.IsType(t, &logSender{}, s)

	require.NoError(t, s.Send(context.Background(), &Message{To: []string{"a@b.test"}, Subject: "hi"}))
	require.ErrorIs(t, s.Send(context.Background(), &Message{}), ErrNoRecipients)
}

func TestBuildMessage(t *testing.T) {
	cfg := &config.Config{}
	cfg.Mail.Host = "localhost"
	cfg.Mail.Port = 2525
	cfg.Mail.From = "noreply@licensing.test"
	cfg.Notification.SenderName = "Licensing"

	s, err := New(cfg)
	require.NoError(t, err)

	smtp, ok := s.(*SMTP)
	require.True(t, ok)

	m, err := smtp.build(&Message{
		To:      []string{"ops@acme.test"},
		Subject: "Expired",
		Text:    "plain",
		HTML:    "<p>html</p>",
	})
	require.NoError(t, err)
	require.Equal(t, []string{"Expired"}, m.GetGenHeader("Subject"))
	require.Len(t, m.GetTo(), 1)

	_, err = smtp.build(&Message{})
	require.ErrorIs(t, err, ErrNoRecipients)

	_, err = smtp.build(&Message{To: []string{"not an address"}})
	require.Error(t, err)
}
