package application

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	accessDomain "github.com/akazakov/tollgate/internal/access/domain"
	accessPersistence "github.com/akazakov/tollgate/internal/access/infrastructure/persistence"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/database"
	"github.com/akazakov/tollgate/internal/shared/infrastructure/migrations"
	sharedPersistence "github.com/akazakov/tollgate/internal/shared/infrastructure/persistence"
	subDomain "github.com/akazakov/tollgate/internal/subscription/domain"
	subPersistence "github.com/akazakov/tollgate/internal/subscription/infrastructure/persistence"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway records calls instead of talking to Telegram.
type fakeGateway struct {
	mu            sync.Mutex
	links         int
	revokedLinks  []string
	approved      []int64
	declined      []int64
	removed       []int64
	messages      map[int64][]string
	createLinkErr error
	revokeLinkErr error
	sendErr       error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{messages: make(map[int64][]string)}
}

func (f *fakeGateway) CreateInviteLink(_ context.Context, name string, _ time.Time) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createLinkErr != nil {
		return "", f.createLinkErr
	}
	f.links++
	return "https://t.me/+" + name + "-" + uuid.NewString()[:8], nil
}

func (f *fakeGateway) RevokeInviteLink(_ context.Context, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.revokeLinkErr != nil {
		return f.revokeLinkErr
	}
	f.revokedLinks = append(f.revokedLinks, link)
	return nil
}

func (f *fakeGateway) ApproveJoinRequest(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approved = append(f.approved, userID)
	return nil
}

func (f *fakeGateway) DeclineJoinRequest(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.declined = append(f.declined, userID)
	return nil
}

func (f *fakeGateway) RemoveMember(_ context.Context, userID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, userID)
	return nil
}

func (f *fakeGateway) SendMessage(_ context.Context, userID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.messages[userID] = append(f.messages[userID], text)
	return nil
}

var _ accessDomain.ChannelGateway = (*fakeGateway)(nil)

type granterStack struct {
	granter   *Granter
	gateway   *fakeGateway
	creds     accessDomain.CredentialRepository
	approvals accessDomain.ApprovalRepository
	subs      subDomain.SubscriptionRepository
	users     subDomain.UserRepository
}

func newGranterStack(t *testing.T) *granterStack {
	t.Helper()
	ctx := context.Background()

	db, err := database.OpenSQLite(ctx, filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, migrations.RunSQLiteMigrations(ctx, db))

	gw := newFakeGateway()
	st := &granterStack{
		gateway:   gw,
		creds:     accessPersistence.NewSQLiteCredentialRepository(db),
		approvals: accessPersistence.NewSQLiteApprovalRepository(db),
		subs:      subPersistence.NewSQLiteSubscriptionRepository(db),
		users:     subPersistence.NewSQLiteUserRepository(db),
	}
	st.granter = NewGranter(
		sharedPersistence.NewSQLiteUnitOfWork(db),
		st.creds, st.approvals, st.subs, gw,
		DefaultGranterConfig(), nil,
	)
	return st
}

func seedActiveSubscription(t *testing.T, st *granterStack, userID int64) *subDomain.Subscription {
	t.Helper()
	ctx := context.Background()

	user, err := subDomain.NewUser(userID, "", "")
	require.NoError(t, err)
	require.NoError(t, st.users.EnsureExists(ctx, user))

	sub, err := subDomain.NewSubscription(userID, "monthly")
	require.NoError(t, err)
	require.NoError(t, sub.Activate("pay-1", time.Now().UTC(), 720*time.Hour))
	require.NoError(t, st.subs.Save(ctx, sub))
	return sub
}

func TestGranter_GrantIssuesAndDelivers(t *testing.T) {
	st := newGranterStack(t)
	ctx := context.Background()
	subID := uuid.New()

	require.NoError(t, st.granter.Grant(ctx, 42, subID, "pay-1"))

	cred, err := st.creds.GetIssuedBySubscription(ctx, subID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), cred.UserID())
	assert.Equal(t, "pay-1", cred.PaymentID())

	require.Len(t, st.gateway.messages[42], 1)
	assert.Contains(t, st.gateway.messages[42][0], cred.InviteLink())
}

func TestGranter_GrantIsIdempotent(t *testing.T) {
	st := newGranterStack(t)
	ctx := context.Background()
	subID := uuid.New()

	require.NoError(t, st.granter.Grant(ctx, 42, subID, "pay-1"))
	require.NoError(t, st.granter.Grant(ctx, 42, subID, "pay-1"))

	// One link minted, delivered twice.
	assert.Equal(t, 1, st.gateway.links)
	assert.Len(t, st.gateway.messages[42], 2)

	n, err := st.creds.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestGranter_GrantGatewayFailureLeavesNoRecord(t *testing.T) {
	st := newGranterStack(t)
	st.gateway.createLinkErr = errors.New("telegram down")

	err := st.granter.Grant(context.Background(), 42, uuid.New(), "pay-1")
	require.Error(t, err)

	n, err := st.creds.Count(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGranter_GrantUndeliveredMessageStillIssues(t *testing.T) {
	st := newGranterStack(t)
	st.gateway.sendErr = errors.New("bot blocked by user")
	ctx := context.Background()
	subID := uuid.New()

	require.NoError(t, st.granter.Grant(ctx, 42, subID, "pay-1"))

	_, err := st.creds.GetIssuedBySubscription(ctx, subID)
	assert.NoError(t, err)
}

func TestGranter_RevokeRemovesMemberAndCredentials(t *testing.T) {
	st := newGranterStack(t)
	ctx := context.Background()
	subID := uuid.New()

	require.NoError(t, st.granter.Grant(ctx, 42, subID, "pay-1"))
	require.NoError(t, st.approvals.Record(ctx, 42, time.Now().UTC()))

	require.NoError(t, st.granter.Revoke(ctx, 42, subDomain.RevokeReasonExpired))

	assert.Equal(t, []int64{42}, st.gateway.removed)
	assert.Len(t, st.gateway.revokedLinks, 1)

	approved, err := st.approvals.IsApproved(ctx, 42)
	require.NoError(t, err)
	assert.False(t, approved)

	_, err = st.creds.GetIssuedBySubscription(ctx, subID)
	assert.ErrorIs(t, err, accessDomain.ErrCredentialNotFound)
}

func TestGranter_RevokeNothingGrantedIsNoop(t *testing.T) {
	st := newGranterStack(t)

	require.NoError(t, st.granter.Revoke(context.Background(), 42, subDomain.RevokeReasonCanceled))
	assert.Empty(t, st.gateway.removed)
}

func TestGranter_RevokeSurvivesPlatformLinkFailure(t *testing.T) {
	st := newGranterStack(t)
	ctx := context.Background()
	subID := uuid.New()

	require.NoError(t, st.granter.Grant(ctx, 42, subID, "pay-1"))
	st.gateway.revokeLinkErr = errors.New("link already revoked")

	require.NoError(t, st.granter.Revoke(ctx, 42, subDomain.RevokeReasonRefunded))

	// The local record is retired even though the platform call failed.
	_, err := st.creds.GetIssuedBySubscription(ctx, subID)
	assert.ErrorIs(t, err, accessDomain.ErrCredentialNotFound)
}

func TestGranter_JoinRequestApprovedForActiveMember(t *testing.T) {
	st := newGranterStack(t)
	ctx := context.Background()

	sub := seedActiveSubscription(t, st, 42)
	require.NoError(t, st.granter.Grant(ctx, 42, sub.ID(), "pay-1"))

	require.NoError(t, st.granter.HandleJoinRequest(ctx, 42))

	assert.Equal(t, []int64{42}, st.gateway.approved)
	approved, err := st.approvals.IsApproved(ctx, 42)
	require.NoError(t, err)
	assert.True(t, approved)

	// The credential was spent by the join.
	_, err = st.creds.GetIssuedBySubscription(ctx, sub.ID())
	assert.ErrorIs(t, err, accessDomain.ErrCredentialNotFound)
}

func TestGranter_JoinRequestDeclinedWithoutSubscription(t *testing.T) {
	st := newGranterStack(t)

	require.NoError(t, st.granter.HandleJoinRequest(context.Background(), 42))
	assert.Equal(t, []int64{42}, st.gateway.declined)
	assert.Empty(t, st.gateway.approved)
}

func TestGranter_RemindExpiring(t *testing.T) {
	st := newGranterStack(t)

	st.granter.RemindExpiring(context.Background(), 42, time.Now().UTC().Add(10*time.Hour))
	require.Len(t, st.gateway.messages[42], 1)
	assert.Contains(t, st.gateway.messages[42][0], "Renew")
}
