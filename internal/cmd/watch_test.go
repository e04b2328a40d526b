package cmd

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/3leaps/gobeacon/pkg/remote"
)

type stubNotificationAPI struct {
	countErr error
}

func (s stubNotificationAPI) GetUnreadCount(ctx context.Context) (*remote.UnreadCount, error) {
	if s.countErr != nil {
		return nil, s.countErr
	}
	return &remote.UnreadCount{}, nil
}

func (s stubNotificationAPI) GetNotifications(ctx context.Context, opts remote.ListOptions) (*remote.NotificationList, error) {
	return &remote.NotificationList{}, nil
}

func (s stubNotificationAPI) MarkRead(ctx context.Context, id string) error { return nil }

func (s stubNotificationAPI) MarkManyRead(ctx context.Context, _ []string) error { return nil }

func (s stubNotificationAPI) MarkAllRead(ctx context.Context) error { return nil }

func TestRemoteHealthChecker(t *testing.T) {
	t.Run("healthy when service answers", func(t *testing.T) {
		checker := remoteHealthChecker{api: stubNotificationAPI{}}
		assert.NoError(t, checker.CheckHealth(context.Background()))
	})

	t.Run("unhealthy when service fails", func(t *testing.T) {
		checker := remoteHealthChecker{api: stubNotificationAPI{countErr: errors.New("refused")}}
		err := checker.CheckHealth(context.Background())
		require.Error(t, err)
	})
}
