package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/internal/events"
	"github.com/spec-kit/helpdesk-core/pkg/util"
)

func staffDirectory() []*domain.Account {
	return []*domain.Account{
		{UID: "u1", Username: "alice", DisplayName: "alice", Role: domain.RoleUser},
		{UID: "t1", Username: "bob", DisplayName: "bob", Role: domain.RoleTechnician},
		{UID: "a1", Username: "eve", DisplayName: "eve", Role: domain.RoleAdmin},
	}
}

func TestTicketEventsFanOutToStaff(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	ticket := mustCreate(t, env, userCaller("u1", "alice", nil))

	rows := env.notifications.all()
	require.Len(t, rows, 2, "one row per technician and admin, none for users")

	recipients := map[string]bool{}
	for _, row := range rows {
		recipients[row.RecipientUserID] = true
		require.NotNil(t, row.RelatedTicketID)
		assert.Equal(t, ticket.ID, *row.RelatedTicketID)
		assert.False(t, row.Read)
	}
	assert.True(t, recipients["t1"])
	assert.True(t, recipients["a1"])
}

func TestStatusChangeFansOutAgain(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	tech := techCaller("t1", "bob")
	ticket := mustCreate(t, env, userCaller("u1", "alice", nil))

	_, err := env.ticketSvc.SetStatus(context.Background(), tech, ticket.ID, domain.TicketStatusInProgress, "")
	require.NoError(t, err)

	// Creation plus the status change, two staff recipients each.
	assert.Len(t, env.notifications.all(), 4)
}

func TestChatMessagesDoNotFanOut(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	creator := userCaller("u1", "alice", nil)
	ticket := mustCreate(t, env, creator)

	before := len(env.notifications.all())
	_, err := env.chatSvc.Send(context.Background(), creator, ticket.ID, "anyone there?")
	require.NoError(t, err)

	assert.Len(t, env.notifications.all(), before, "chat traffic is not a notification source")
}

func TestAccountRegisteredFansOutToAdminsOnly(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)

	err := env.dispatcher.Publish(context.Background(), events.Event{
		ID:        "evt-1",
		Type:      events.EventAccountRegistered,
		Timestamp: time.Now(),
		Actor:     events.Actor{UserID: "u9", Username: "newbie", Role: domain.RoleUser},
		Payload:   events.AccountRegisteredPayload{Username: "newbie", Role: domain.RoleUser},
	})
	require.NoError(t, err)

	rows := env.notifications.all()
	require.Len(t, rows, 1)
	assert.Equal(t, "a1", rows[0].RecipientUserID)
	assert.Nil(t, rows[0].RelatedTicketID)
}

func TestFanoutFailureDoesNotBlockSiblings(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	env.notifications.failFor["t1"] = errors.New("write timeout")

	mustCreate(t, env, userCaller("u1", "alice", nil))

	rows := env.notifications.all()
	require.Len(t, rows, 1, "the failed recipient is skipped, the rest are written")
	assert.Equal(t, "a1", rows[0].RecipientUserID)
}

func TestListForRecipientIsScopedToCaller(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	mustCreate(t, env, userCaller("u1", "alice", nil))

	techRows, err := env.notifySvc.ListForRecipient(context.Background(), techCaller("t1", "bob"), 0, 0)
	require.NoError(t, err)
	require.Len(t, techRows, 1)
	assert.Equal(t, "t1", techRows[0].RecipientUserID)

	userRows, err := env.notifySvc.ListForRecipient(context.Background(), userCaller("u1", "alice", nil), 0, 0)
	require.NoError(t, err)
	assert.Empty(t, userRows)
}

func TestMarkReadEnforcesOwnership(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	mustCreate(t, env, userCaller("u1", "alice", nil))

	tech := techCaller("t1", "bob")
	techRows, err := env.notifySvc.ListForRecipient(context.Background(), tech, 0, 0)
	require.NoError(t, err)
	require.Len(t, techRows, 1)

	require.NoError(t, env.notifySvc.MarkRead(context.Background(), tech, techRows[0].ID))
	updated, err := env.notifications.GetByID(context.Background(), techRows[0].ID)
	require.NoError(t, err)
	assert.True(t, updated.Read)

	// The admin's row is off-limits to the technician.
	admin := adminCaller("a1", "eve")
	adminRows, err := env.notifySvc.ListForRecipient(context.Background(), admin, 0, 0)
	require.NoError(t, err)
	require.Len(t, adminRows, 1)
	err = env.notifySvc.MarkRead(context.Background(), tech, adminRows[0].ID)
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodeForbidden))
}

func TestDeleteEnforcesOwnership(t *testing.T) {
	env := newTestEnv(testEquipment(), staffDirectory()...)
	mustCreate(t, env, userCaller("u1", "alice", nil))

	tech := techCaller("t1", "bob")
	admin := adminCaller("a1", "eve")
	adminRows, err := env.notifySvc.ListForRecipient(context.Background(), admin, 0, 0)
	require.NoError(t, err)
	require.Len(t, adminRows, 1)

	err = env.notifySvc.Delete(context.Background(), tech, adminRows[0].ID)
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodeForbidden))

	require.NoError(t, env.notifySvc.Delete(context.Background(), admin, adminRows[0].ID))
	err = env.notifySvc.Delete(context.Background(), admin, adminRows[0].ID)
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodeNotFound))
}
