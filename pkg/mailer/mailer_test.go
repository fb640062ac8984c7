package mailer

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSenderRecordsMessage(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSender(zap.New(core))

	r, err := s.Send(context.Background(), Message{To: []string{"ann@example.com"}, Subject: "Hello"})
	require.NoError(t, err)
	assert.NotEmpty(t, r.MessageID)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "Hello", logs.All()[0].ContextMap()["subject"])
}
