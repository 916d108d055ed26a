package notification

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/devflow/devflow-api/internal/model"
	"github.com/devflow/devflow-api/internal/realtime"
	"github.com/devflow/devflow-api/internal/testutil"
	"github.com/devflow/devflow-api/pkg/logger"
	"github.com/devflow/devflow-api/pkg/metrics"
)

func TestDelivery_OfflineRecipientGetsEmailOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.db, "alice")
	bob := testutil.CreateUser(t, f.db, "bob")
	project := testutil.CreateProject(t, f.db, alice, "devflow-cli")

	detail, err := f.svc.NotifyReviewReceived(ctx, ReviewEvent{ProjectID: project.ID, ReviewerID: bob.ID})
	require.NoError(t, err)
	require.NotNil(t, detail)

	n, err := f.processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Empty(t, f.pusher.sent)
	require.Len(t, f.mailer.sent, 1)
	assert.Equal(t, "alice@example.com", f.mailer.sent[0].to)
	assert.Equal(t, "DevFlow: New review received", f.mailer.sent[0].subject)
	assert.Contains(t, f.mailer.sent[0].body, "https://devflow.test/notifications")

	unread, err := f.svc.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
	assert.Equal(t, []string{"processed"}, f.outboxStatuses(t))
}

func TestDelivery_OnlineRecipientGetsPush(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.db, "alice")
	f.pusher.online[alice.ID] = true

	detail, err := f.svc.NotifyWelcome(ctx, alice.ID)
	require.NoError(t, err)

	_, err = f.processor.ProcessOnce(ctx)
	require.NoError(t, err)

	require.Len(t, f.pusher.sent, 1)
	push := f.pusher.sent[0]
	assert.Equal(t, alice.ID, push.userID)
	assert.Equal(t, realtime.EventNotificationNew, push.event)

	event, ok := push.payload.(model.NotificationEvent)
	require.True(t, ok)
	assert.Equal(t, detail.ID, event.ID)
	assert.Equal(t, model.NotificationWelcome, event.Type)
	assert.True(t, detail.CreatedAt.Equal(event.CreatedAt))

	assert.Empty(t, f.mailer.sent, "welcome notifications are not emailed")
	assert.Equal(t, []string{"processed"}, f.outboxStatuses(t))
}

func TestDelivery_EmailFailureIsRecordedNotRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.db, "alice")
	project := testutil.CreateProject(t, f.db, alice, "devflow-cli")
	f.mailer.err = errors.New("relay down")

	_, err := f.svc.NotifyProjectViewMilestone(ctx, project.ID, 100)
	require.NoError(t, err)

	_, err = f.processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"failed"}, f.outboxStatuses(t))

	n, err := f.processor.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	unread, err := f.svc.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, unread)
}

func TestDelivery_PushFailureStillSendsEmail(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.db, "alice")
	project := testutil.CreateProject(t, f.db, alice, "devflow-cli")
	f.pusher.err = errors.New("bus down")

	_, err := f.svc.NotifyProjectViewMilestone(ctx, project.ID, 500)
	require.NoError(t, err)

	_, err = f.processor.ProcessOnce(ctx)
	require.NoError(t, err)

	assert.Len(t, f.mailer.sent, 1)
	assert.Equal(t, []string{"failed"}, f.outboxStatuses(t))
}

func TestDeliverer_RejectsUndecodablePayload(t *testing.T) {
	d := NewDeliverer(&fakePusher{}, nil, nil, nil, "", logger.Nop(), metrics.New("test"))

	err := d.Handle(context.Background(), &model.OutboxEvent{
		EventType: model.EventNotificationCreated,
		Payload:   json.RawMessage(`{"recipient_id": 42}`),
	})
	assert.Error(t, err)
}

func TestDelivery_OnlyAllowListedTypesAreEmailed(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	alice := testutil.CreateUser(t, f.db, "alice")
	bob := testutil.CreateUser(t, f.db, "bob")
	project := testutil.CreateProject(t, f.db, alice, "devflow-cli")

	_, err := f.svc.NotifyReviewReceived(ctx, ReviewEvent{ProjectID: project.ID, ReviewerID: bob.ID})
	require.NoError(t, err)
	_, err = f.processor.ProcessOnce(ctx)
	require.NoError(t, err)
	require.Len(t, f.mailer.sent, 1)

	_, err = f.svc.NotifyProjectLiked(ctx, project.ID, bob.ID)
	require.NoError(t, err)
	_, err = f.processor.ProcessOnce(ctx)
	require.NoError(t, err)

	assert.Len(t, f.mailer.sent, 1, "likes are not emailed")
	assert.Empty(t, f.pusher.sent)

	unread, err := f.svc.UnreadCount(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, unread)
	assert.Equal(t, []string{"processed", "processed"}, f.outboxStatuses(t))
}
