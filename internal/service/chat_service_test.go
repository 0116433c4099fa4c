package service

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/helpdesk-core/internal/domain"
	"github.com/spec-kit/helpdesk-core/pkg/util"
)

func TestSendAppendsInOrder(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", nil)
	ticket := mustCreate(t, env, creator)

	for _, text := range []string{"first", "second", "third"} {
		_, err := env.chatSvc.Send(context.Background(), creator, ticket.ID, text)
		require.NoError(t, err)
	}

	history, err := env.chatSvc.History(context.Background(), creator, ticket.ID)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, "first", history[0].Text)
	assert.Equal(t, "second", history[1].Text)
	assert.Equal(t, "third", history[2].Text)
	for _, msg := range history {
		assert.Equal(t, ticket.ID, msg.TicketID)
		assert.Equal(t, "alice", msg.SenderName)
	}
}

func TestSendRejectsEmptyText(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", nil)
	ticket := mustCreate(t, env, creator)

	_, err := env.chatSvc.Send(context.Background(), creator, ticket.ID, "   ")
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodeValidationFailed))
}

func TestSendToClosedTicketFailsPrecondition(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", nil)
	tech := techCaller("t1", "bob")
	ticket := mustCreate(t, env, creator)

	_, err := env.ticketSvc.SetStatus(context.Background(), tech, ticket.ID, domain.TicketStatusClosed, "resolved")
	require.NoError(t, err)

	// The status is re-read at send time; even the creator is locked out.
	_, err = env.chatSvc.Send(context.Background(), creator, ticket.ID, "are you still there?")
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodePreconditionFailed))
}

func TestReopeningRestoresTheChannel(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", nil)
	tech := techCaller("t1", "bob")
	ticket := mustCreate(t, env, creator)

	_, err := env.ticketSvc.SetStatus(context.Background(), tech, ticket.ID, domain.TicketStatusClosed, "resolved")
	require.NoError(t, err)
	_, err = env.ticketSvc.SetStatus(context.Background(), tech, ticket.ID, domain.TicketStatusOpen, "")
	require.NoError(t, err)

	_, err = env.chatSvc.Send(context.Background(), creator, ticket.ID, "it broke again")
	require.NoError(t, err)
}

func TestStaffMustAttendBeforeSending(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", nil)
	tech := techCaller("t1", "bob")
	ticket := mustCreate(t, env, creator)

	_, err := env.chatSvc.Send(context.Background(), tech, ticket.ID, "on my way")
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodePreconditionFailed))

	_, err = env.ticketSvc.Attend(context.Background(), tech, ticket.ID)
	require.NoError(t, err)

	msg, err := env.chatSvc.Send(context.Background(), tech, ticket.ID, "on my way")
	require.NoError(t, err)
	assert.Equal(t, "t1", msg.SenderID)
}

func TestSendRequiresVisibilityForUsers(t *testing.T) {
	env := newTestEnv(testEquipment())
	ticket := mustCreate(t, env, userCaller("u1", "alice", nil)) // sector TI

	outsider := userCaller("u2", "dave", strPtr("RH"))
	_, err := env.chatSvc.Send(context.Background(), outsider, ticket.ID, "hello?")
	require.Error(t, err)
	assert.True(t, util.IsCode(err, util.CodeForbidden))
}

func TestSubscribeReceivesFullHistoryOnEachAppend(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", nil)
	ticket := mustCreate(t, env, creator)

	_, err := env.chatSvc.Send(context.Background(), creator, ticket.ID, "first")
	require.NoError(t, err)

	var deliveries [][]domain.Message
	sub, err := env.chatSvc.Subscribe(context.Background(), creator, ticket.ID, func(msgs []domain.Message) {
		deliveries = append(deliveries, msgs)
	})
	require.NoError(t, err)
	require.Len(t, deliveries, 1, "initial history delivered on subscribe")
	assert.Len(t, deliveries[0], 1)

	_, err = env.chatSvc.Send(context.Background(), creator, ticket.ID, "second")
	require.NoError(t, err)
	require.Len(t, deliveries, 2)
	// Each delivery is the full ordered list, not a delta.
	require.Len(t, deliveries[1], 2)
	assert.Equal(t, "first", deliveries[1][0].Text)
	assert.Equal(t, "second", deliveries[1][1].Text)

	sub.Cancel()
	_, err = env.chatSvc.Send(context.Background(), creator, ticket.ID, "third")
	require.NoError(t, err)
	assert.Len(t, deliveries, 2, "no delivery after cancel")
}

func TestPreviewTruncatesOnRuneBoundary(t *testing.T) {
	assert.Equal(t, "curto", preview("curto", 120))
	assert.Equal(t, "abc", preview("  abc  ", 120))

	long := strings.Repeat("é", 100)
	for _, max := range []int{21, 22} {
		got := preview(long, max)
		assert.True(t, utf8.ValidString(got), "max=%d", max)
		assert.Equal(t, strings.Repeat("é", 9)+"...", got, "max=%d", max)
	}
}

func TestRepairSenderNameRewritesHistory(t *testing.T) {
	env := newTestEnv(testEquipment())
	creator := userCaller("u1", "alice", strPtr("TI"))
	other := userCaller("u2", "carol", strPtr("TI"))
	first := mustCreate(t, env, creator)
	second := mustCreate(t, env, other)

	_, err := env.chatSvc.Send(context.Background(), creator, first.ID, "message on my own ticket")
	require.NoError(t, err)
	_, err = env.chatSvc.Send(context.Background(), creator, second.ID, "message in my sector")
	require.NoError(t, err)
	_, err = env.chatSvc.Send(context.Background(), other, second.ID, "reply")
	require.NoError(t, err)

	require.NoError(t, env.chatSvc.RepairSenderName(context.Background(), "u1", "Alice Santos"))

	// Every message alice ever sent carries the new name, across tickets;
	// other senders are untouched.
	firstHistory, err := env.chatSvc.History(context.Background(), creator, first.ID)
	require.NoError(t, err)
	require.Len(t, firstHistory, 1)
	assert.Equal(t, "Alice Santos", firstHistory[0].SenderName)

	secondHistory, err := env.chatSvc.History(context.Background(), other, second.ID)
	require.NoError(t, err)
	require.Len(t, secondHistory, 2)
	assert.Equal(t, "Alice Santos", secondHistory[0].SenderName)
	assert.Equal(t, "carol", secondHistory[1].SenderName)
}
