package mailbox

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewValidatesConfig(t *testing.T) {
	t.Parallel()

	_, err := New(Config{}, nil)
	require.Error(t, err)

	_, err = New(Config{Addr: "imap.example.com:993"}, nil)
	require.Error(t, err)

	src, err := New(Config{
		Addr:     "imap.example.com:993",
		Username: "reports",
		Password: "secret",
	}, nil)
	require.NoError(t, err)
	require.Equal(t, "INBOX", src.cfg.Mailbox)
	require.Equal(t, "Internal Reports", src.cfg.SubjectPrefix)
	require.Equal(t, 2, src.cfg.SinceDays)
}
