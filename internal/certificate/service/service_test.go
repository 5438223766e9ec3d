package service_test

import (
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"baseproof/internal/certificate/fees"
	"baseproof/internal/certificate/models"
	"baseproof/internal/certificate/service"
	"baseproof/internal/certificate/store"
	"baseproof/internal/events"
	"baseproof/internal/events/mocks"
	domain "baseproof/pkg/domain"
	dErrors "baseproof/pkg/domain-errors"
	"baseproof/pkg/testutil"
)

const (
	singleFee   = domain.Amount(1_000_000_000_000_000)
	transferFee = domain.Amount(500_000_000_000_000)
	cooldown    = 30 * 24 * time.Hour
)

var (
	alice = domain.MustParseAddress("0x1111111111111111111111111111111111111111")
	bob   = domain.MustParseAddress("0x2222222222222222222222222222222222222222")
	carol = domain.MustParseAddress("0x3333333333333333333333333333333333333333")
	t0    = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
)

type fixture struct {
	svc  *service.Service
	sink *events.MemorySink
	st   *store.MemoryStore
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	sink := events.NewMemorySink()
	st := store.NewMemoryStore(100)
	svc := service.New(
		st,
		events.NewPublisher(sink),
		fees.NewPolicy(singleFee, transferFee, fees.DefaultTiers()),
		nil,
		nil,
		service.Config{RevocationCooldown: cooldown, MaxBulkSize: 100, MaxPageSize: 100},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)
	return &fixture{svc: svc, sink: sink, st: st}
}

func certifyInput(seed string, public bool) service.CertifyInput {
	return service.CertifyInput{
		NewInput: models.NewInput{
			DocumentHash: domain.HashBytes([]byte(seed)),
			Title:        "Document " + seed,
			Category:     domain.CategoryLegal,
			IsPublic:     public,
		},
		Payment: singleFee,
	}
}

func TestCertify(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Ctx(alice, t0)

	cert, err := f.svc.Certify(ctx, certifyInput("deed", true))
	require.NoError(t, err)

	assert.Equal(t, domain.CertificateID(1), cert.ID)
	assert.Equal(t, alice, cert.Issuer)
	assert.Equal(t, alice, cert.Owner)
	assert.Equal(t, t0, cert.CertifiedAt)

	evts := f.sink.List()
	require.Len(t, evts, 1)
	assert.Equal(t, events.ActionCertified, evts[0].Action)
	assert.Equal(t, alice, evts[0].Actor)
	assert.Equal(t, t0.Unix(), evts[0].Timestamp)
	payload, ok := evts[0].Payload.(events.CertifiedPayload)
	require.True(t, ok)
	assert.Equal(t, cert.ID, payload.CertificateID)
	assert.Equal(t, cert.DocumentHash, payload.DocumentHash)
}

func TestCertifyOverpaymentAccepted(t *testing.T) {
	f := newFixture(t)
	in := certifyInput("deed", true)
	in.Payment = singleFee * 2

	_, err := f.svc.Certify(testutil.Ctx(alice, t0), in)
	assert.NoError(t, err, "excess payment is retained, not rejected")
}

func TestCertifyUnderpaid(t *testing.T) {
	f := newFixture(t)
	in := certifyInput("deed", true)
	in.Payment = singleFee - 1

	_, err := f.svc.Certify(testutil.Ctx(alice, t0), in)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidFee))

	stats, serr := f.svc.PlatformStats(testutil.Ctx(alice, t0))
	require.NoError(t, serr)
	assert.Zero(t, stats.TotalCertificates, "failed certification leaves no state")
	assert.Empty(t, f.sink.List(), "failed certification emits nothing")
}

func TestCertifyAnonymous(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Certify(testutil.AnonymousCtx(t0), certifyInput("deed", true))
	assert.True(t, dErrors.Is(err, dErrors.CodeUnauthorized))
}

func TestCertifyDuplicateHash(t *testing.T) {
	f := newFixture(t)
	ctx := testutil.Ctx(alice, t0)

	_, err := f.svc.Certify(ctx, certifyInput("deed", true))
	require.NoError(t, err)

	_, err = f.svc.Certify(testutil.Ctx(bob, t0), certifyInput("deed", true))
	assert.True(t, dErrors.Is(err, dErrors.CodeHashAlreadyExists))
}

func bulkItems(n int) []models.NewInput {
	items := make([]models.NewInput, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, models.NewInput{
			DocumentHash: domain.HashBytes([]byte(fmt.Sprintf("bulk-%d", i))),
			Title:        fmt.Sprintf("Bulk Document %d", i),
			Category:     domain.CategoryBusiness,
			IsPublic:     true,
		})
	}
	return items
}

func TestCertifyBulkDiscountBoundary(t *testing.T) {
	t.Run("nine items pay linear", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
			Items:   bulkItems(9),
			Payment: singleFee*9 - 1,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidFee))

		ids, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
			Items:   bulkItems(9),
			Payment: singleFee * 9,
		})
		require.NoError(t, err)
		assert.Len(t, ids, 9)
	})

	t.Run("ten items hit the tier exactly", func(t *testing.T) {
		f := newFixture(t)
		discounted := domain.Amount(uint64(singleFee) * 10 * 90 / 100)

		_, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
			Items:   bulkItems(10),
			Payment: discounted - 1,
		})
		assert.True(t, dErrors.Is(err, dErrors.CodeInvalidFee))

		ids, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
			Items:   bulkItems(10),
			Payment: discounted,
		})
		require.NoError(t, err)
		assert.Len(t, ids, 10)
	})
}

func TestCertifyBulkSingleAggregateEvent(t *testing.T) {
	f := newFixture(t)

	ids, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
		Items:   bulkItems(3),
		Payment: singleFee * 3,
	})
	require.NoError(t, err)

	evts := f.sink.List()
	require.Len(t, evts, 1, "a batch emits one aggregate event, never per-item events")
	assert.Equal(t, events.ActionBulkCertified, evts[0].Action)
	payload, ok := evts[0].Payload.(events.BulkCertifiedPayload)
	require.True(t, ok)
	assert.Equal(t, ids, payload.CertificateIDs)
	assert.Equal(t, 3, payload.Count)
}

func TestCertifyBulkAtomicity(t *testing.T) {
	f := newFixture(t)

	items := bulkItems(3)
	items[2].DocumentHash = items[0].DocumentHash
	_, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
		Items:   items,
		Payment: singleFee * 3,
	})
	assert.True(t, dErrors.Is(err, dErrors.CodeHashAlreadyExists))

	stats, serr := f.svc.PlatformStats(testutil.Ctx(alice, t0))
	require.NoError(t, serr)
	assert.Zero(t, stats.TotalCertificates, "a failed batch certifies nothing")
	assert.Empty(t, f.sink.List())
}

func TestCertifyBulkSizeLimits(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{Payment: singleFee})
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))

	_, err = f.svc.CertifyBulk(testutil.Ctx(alice, t0), service.BulkInput{
		Items:   bulkItems(101),
		Payment: singleFee * 101,
	})
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
}

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("asset", true))
	require.NoError(t, err)

	// Only the owner may transfer.
	_, err = f.svc.Transfer(testutil.Ctx(bob, t0), cert.ID, carol, transferFee)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized))

	_, err = f.svc.Transfer(testutil.Ctx(alice, t0), cert.ID, bob, transferFee-1)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidFee))

	moved, err := f.svc.Transfer(testutil.Ctx(alice, t0.Add(time.Hour)), cert.ID, bob, transferFee)
	require.NoError(t, err)
	assert.Equal(t, bob, moved.Owner)
	assert.Equal(t, alice, moved.Issuer)

	// New owner can transfer onward; previous owner cannot.
	_, err = f.svc.Transfer(testutil.Ctx(alice, t0.Add(2*time.Hour)), cert.ID, carol, transferFee)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized))

	history, err := f.svc.TransferHistory(testutil.Ctx(alice, t0), cert.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, alice, history[0].From)
	assert.Equal(t, bob, history[0].To)

	evts := f.sink.List()
	require.Len(t, evts, 2)
	assert.Equal(t, events.ActionTransferred, evts[1].Action)
}

func TestTransferUnknownCertificate(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Transfer(testutil.Ctx(alice, t0), 99, bob, transferFee)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestRevokeCooldown(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("doc", true))
	require.NoError(t, err)

	_, err = f.svc.Revoke(testutil.Ctx(alice, t0.Add(time.Second)), cert.ID, "ref")
	assert.True(t, dErrors.Is(err, dErrors.CodeCooldownNotMet))

	revoked, err := f.svc.Revoke(testutil.Ctx(alice, t0.Add(cooldown+time.Second)), cert.ID, "ipfs://reason")
	require.NoError(t, err)
	assert.True(t, revoked.IsRevoked)
	assert.Equal(t, "ipfs://reason", revoked.RevocationReasonRef)

	_, err = f.svc.Revoke(testutil.Ctx(alice, t0.Add(cooldown+time.Hour)), cert.ID, "again")
	assert.True(t, dErrors.Is(err, dErrors.CodeAlreadyRevoked))
}

func TestIssuerRetainsRevocationAfterTransfer(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("doc", true))
	require.NoError(t, err)

	_, err = f.svc.Transfer(testutil.Ctx(alice, t0.Add(time.Hour)), cert.ID, bob, transferFee)
	require.NoError(t, err)

	_, err = f.svc.Revoke(testutil.Ctx(carol, t0.Add(cooldown+time.Hour)), cert.ID, "ref")
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized))

	_, err = f.svc.Revoke(testutil.Ctx(alice, t0.Add(cooldown+time.Hour)), cert.ID, "ref")
	assert.NoError(t, err, "issuer can still revoke after losing ownership")
}

func TestRevokedCertificateIsFrozen(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("doc", true))
	require.NoError(t, err)
	_, err = f.svc.Revoke(testutil.Ctx(alice, t0.Add(cooldown+time.Second)), cert.ID, "ref")
	require.NoError(t, err)

	_, err = f.svc.Transfer(testutil.Ctx(alice, t0.Add(cooldown+time.Hour)), cert.ID, bob, transferFee)
	assert.True(t, dErrors.Is(err, dErrors.CodeAlreadyRevoked))

	future := t0.Add(10 * 365 * 24 * time.Hour)
	_, err = f.svc.Renew(testutil.Ctx(alice, t0.Add(cooldown+time.Hour)), cert.ID, future, singleFee)
	assert.True(t, dErrors.Is(err, dErrors.CodeAlreadyRevoked))
}

func TestCoCertificationFlow(t *testing.T) {
	f := newFixture(t)
	in := certifyInput("private-doc", false)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), in)
	require.NoError(t, err)

	// Only owner or issuer may invite.
	_, err = f.svc.AddCoCertifier(testutil.Ctx(bob, t0), cert.ID, carol)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized))

	_, err = f.svc.AddCoCertifier(testutil.Ctx(alice, t0), cert.ID, bob)
	require.NoError(t, err)

	// A pending invitee still sees the redacted view.
	got, err := f.svc.Get(testutil.Ctx(bob, t0), cert.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Title, "pending co-certifier gets the redacted projection")

	// Carol holds no invitation.
	_, err = f.svc.AcceptCoCertification(testutil.Ctx(carol, t0), cert.ID)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized))

	accepted, err := f.svc.AcceptCoCertification(testutil.Ctx(bob, t0), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{bob}, accepted.CoCertifiers)
	assert.Empty(t, accepted.PendingCoCertifiers)

	got, err = f.svc.Get(testutil.Ctx(bob, t0), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.Title, got.Title, "accepted co-certifier gains private view")

	evts := f.sink.List()
	require.Len(t, evts, 3)
	assert.Equal(t, events.ActionCoCertifierAdded, evts[1].Action)
	assert.Equal(t, events.ActionCoCertifierAccepted, evts[2].Action)
}

func TestRenew(t *testing.T) {
	f := newFixture(t)
	in := certifyInput("renewable", true)
	in.ExpiresAt = t0.Add(365 * 24 * time.Hour)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), in)
	require.NoError(t, err)

	extended := in.ExpiresAt.Add(365 * 24 * time.Hour)

	_, err = f.svc.Renew(testutil.Ctx(bob, t0), cert.ID, extended, singleFee)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized))

	_, err = f.svc.Renew(testutil.Ctx(alice, t0), cert.ID, extended, singleFee-1)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidFee))

	renewed, err := f.svc.Renew(testutil.Ctx(alice, t0), cert.ID, extended, singleFee)
	require.NoError(t, err)
	assert.Equal(t, extended, renewed.ExpiresAt)
	assert.Equal(t, uint32(1), renewed.RenewalCount)

	evts := f.sink.List()
	require.Len(t, evts, 2)
	assert.Equal(t, events.ActionRenewed, evts[1].Action)
	payload, ok := evts[1].Payload.(events.RenewedPayload)
	require.True(t, ok)
	assert.Equal(t, uint32(1), payload.RenewalCount)
}

func TestGetPrivacyGating(t *testing.T) {
	f := newFixture(t)
	in := certifyInput("secret", false)
	in.Tags = []string{"confidential"}
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), in)
	require.NoError(t, err)

	full, err := f.svc.Get(testutil.Ctx(alice, t0), cert.ID)
	require.NoError(t, err)
	assert.Equal(t, cert.Title, full.Title)

	red, err := f.svc.Get(testutil.AnonymousCtx(t0), cert.ID)
	require.NoError(t, err, "redaction is a 200, not an error")
	assert.Equal(t, cert.ID, red.ID)
	assert.Equal(t, cert.CertifiedAt, red.CertifiedAt)
	assert.Empty(t, red.Title)
	assert.Empty(t, red.Tags)
	assert.True(t, red.Issuer.IsZero())

	red, err = f.svc.Get(testutil.Ctx(bob, t0), cert.ID)
	require.NoError(t, err)
	assert.Empty(t, red.Title, "unrelated authenticated callers are redacted too")

	_, err = f.svc.Get(testutil.Ctx(alice, t0), 999)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotFound))
}

func TestTransferHistoryGating(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("secret", false))
	require.NoError(t, err)

	_, err = f.svc.TransferHistory(testutil.AnonymousCtx(t0), cert.ID)
	assert.True(t, dErrors.Is(err, dErrors.CodeNotAuthorized), "ownership log is private content")

	history, err := f.svc.TransferHistory(testutil.Ctx(alice, t0), cert.ID)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestVerify(t *testing.T) {
	f := newFixture(t)

	pub, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("public-doc", true))
	require.NoError(t, err)
	priv, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("private-doc", false))
	require.NoError(t, err)

	// Unknown fingerprint is a negative answer, not an error.
	res, err := f.svc.Verify(testutil.AnonymousCtx(t0), domain.HashBytes([]byte("never-certified")))
	require.NoError(t, err)
	assert.False(t, res.Exists)

	res, err = f.svc.Verify(testutil.AnonymousCtx(t0), pub.DocumentHash)
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.Equal(t, pub.ID, res.CertificateID)
	assert.Equal(t, alice, res.Issuer)
	assert.Equal(t, pub.Title, res.Title)
	assert.True(t, res.IsPublic)

	res, err = f.svc.Verify(testutil.AnonymousCtx(t0), priv.DocumentHash)
	require.NoError(t, err)
	assert.True(t, res.Exists, "existence-at-time stays provable")
	assert.Equal(t, priv.ID, res.CertificateID)
	assert.Equal(t, t0, res.Timestamp)
	assert.True(t, res.Issuer.IsZero(), "private verification hides the issuer")
	assert.Empty(t, res.Title)
	assert.False(t, res.IsPublic)

	res, err = f.svc.Verify(testutil.Ctx(alice, t0), priv.DocumentHash)
	require.NoError(t, err)
	assert.Equal(t, priv.Title, res.Title, "issuer sees the full result")
}

func TestVerifyReflectsRevocation(t *testing.T) {
	f := newFixture(t)
	cert, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("doc", true))
	require.NoError(t, err)
	_, err = f.svc.Revoke(testutil.Ctx(alice, t0.Add(cooldown+time.Second)), cert.ID, "ref")
	require.NoError(t, err)

	res, err := f.svc.Verify(testutil.AnonymousCtx(t0), cert.DocumentHash)
	require.NoError(t, err)
	assert.True(t, res.Exists)
	assert.True(t, res.IsRevoked)
}

func TestStats(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("a", true))
	require.NoError(t, err)
	_, err = f.svc.Certify(testutil.Ctx(alice, t0), certifyInput("b", false))
	require.NoError(t, err)
	cert, err := f.svc.Certify(testutil.Ctx(bob, t0), certifyInput("c", true))
	require.NoError(t, err)
	_, err = f.svc.Revoke(testutil.Ctx(bob, t0.Add(cooldown+time.Second)), cert.ID, "ref")
	require.NoError(t, err)

	platform, err := f.svc.PlatformStats(testutil.AnonymousCtx(t0))
	require.NoError(t, err)
	assert.Equal(t, uint64(3), platform.TotalCertificates)
	assert.Equal(t, uint64(2), platform.TotalIssuers)
	assert.Equal(t, uint64(1), platform.TotalRevoked)
	assert.Equal(t, uint64(1), platform.TotalPublic)
	assert.Equal(t, uint64(1), platform.TotalPrivate)

	issuerStats, err := f.svc.IssuerStats(testutil.AnonymousCtx(t0), alice)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), issuerStats.TotalIssued)
	assert.Equal(t, []domain.CertificateID{1, 2}, issuerStats.CertificateIDs)

	issuerStats, err = f.svc.IssuerStats(testutil.AnonymousCtx(t0), bob)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), issuerStats.TotalIssued)
	assert.Equal(t, uint64(1), issuerStats.TotalRevoked)
}

func TestListPagination(t *testing.T) {
	f := newFixture(t)
	for i := 0; i < 5; i++ {
		_, err := f.svc.Certify(testutil.Ctx(alice, t0), certifyInput(fmt.Sprintf("page-%d", i), true))
		require.NoError(t, err)
	}

	ids, err := f.svc.ListByIssuer(testutil.AnonymousCtx(t0), alice, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.CertificateID{2, 3}, ids)

	ids, err = f.svc.ListByOwner(testutil.AnonymousCtx(t0), alice, 0, 10)
	require.NoError(t, err)
	assert.Len(t, ids, 5)

	_, err = f.svc.ListByIssuer(testutil.AnonymousCtx(t0), domain.ZeroAddress, 0, 10)
	assert.True(t, dErrors.Is(err, dErrors.CodeInvalidInput))
}

func TestPublisherReceivesExactlyOneEventPerMutation(t *testing.T) {
	ctrl := gomock.NewController(t)
	publisher := mocks.NewMockPublisher(ctrl)

	svc := service.New(
		store.NewMemoryStore(100),
		publisher,
		fees.NewPolicy(singleFee, transferFee, fees.DefaultTiers()),
		nil,
		nil,
		service.Config{RevocationCooldown: cooldown, MaxBulkSize: 100, MaxPageSize: 100},
		slog.New(slog.NewTextHandler(io.Discard, nil)),
	)

	publisher.EXPECT().
		Emit(gomock.Any(), gomock.Cond(func(e events.Event) bool {
			return e.Action == events.ActionCertified
		})).
		Return(nil).
		Times(1)

	_, err := svc.Certify(testutil.Ctx(alice, t0), certifyInput("doc", true))
	require.NoError(t, err)

	// A failed mutation must not publish: no further EXPECT is registered.
	_, err = svc.Certify(testutil.Ctx(alice, t0), certifyInput("doc", true))
	assert.True(t, dErrors.Is(err, dErrors.CodeHashAlreadyExists))
}
