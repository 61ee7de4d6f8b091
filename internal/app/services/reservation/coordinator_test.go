package reservation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stayvista/internal/domain/booking"
	"stayvista/internal/domain/identity"
	"stayvista/internal/domain/payment"
	"stayvista/internal/domain/rooms"
	"stayvista/internal/domain/shared/money"
	"stayvista/internal/infra/storage/memory"
)

var (
	price        = money.Must(12000, "USD")
	errLedgerOff = errors.New("ledger offline")
	errProvider  = errors.New("provider offline")
)

type fakePayments struct {
	mu        sync.Mutex
	seq       int
	intents   map[string]payment.Authorization
	refunds   map[string]int
	statuses  int
	createErr error
	statusErr error
	refundErr error
}

func newFakePayments() *fakePayments {
	return &fakePayments{
		intents: make(map[string]payment.Authorization),
		refunds: make(map[string]int),
	}
}

func (f *fakePayments) CreateIntent(ctx context.Context, amount money.Money, key string) (payment.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return payment.Authorization{}, f.createErr
	}
	f.seq++
	auth := payment.Authorization{
		Reference:    fmt.Sprintf("pi_%d", f.seq),
		ClientSecret: fmt.Sprintf("pi_%d_secret", f.seq),
		Amount:       amount,
		Status:       payment.StatusPending,
	}
	f.intents[auth.Reference] = auth
	return auth, nil
}

func (f *fakePayments) GetStatus(ctx context.Context, reference string) (payment.Authorization, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses++
	if f.statusErr != nil {
		return payment.Authorization{}, f.statusErr
	}
	auth, ok := f.intents[reference]
	if !ok {
		return payment.Authorization{}, payment.ErrUnknownReference
	}
	return auth, nil
}

func (f *fakePayments) Refund(ctx context.Context, reference string) (payment.RefundOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.refundErr != nil {
		return payment.RefundOutcome{}, f.refundErr
	}
	f.refunds[reference]++
	auth := f.intents[reference]
	auth.Status = payment.StatusRefunded
	f.intents[reference] = auth
	return payment.RefundOutcome{RefundID: "re_" + reference, Reference: reference, Status: "succeeded"}, nil
}

func (f *fakePayments) succeed(reference string, amount money.Money) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intents[reference] = payment.Authorization{Reference: reference, Amount: amount, Status: payment.StatusSucceeded}
}

func (f *fakePayments) refundCount(reference string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refunds[reference]
}

func (f *fakePayments) statusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statuses
}

func (f *fakePayments) totalRefunds() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	total := 0
	for _, n := range f.refunds {
		total += n
	}
	return total
}

// flakyLedger fails the first failures appends; a negative value fails all of them.
type flakyLedger struct {
	*memory.BookingLedger
	mu       sync.Mutex
	failures int
	calls    int
}

func (l *flakyLedger) AppendIfAbsent(ctx context.Context, key string, b *booking.Booking) (*booking.Booking, bool, error) {
	l.mu.Lock()
	l.calls++
	fail := l.failures < 0 || l.calls <= l.failures
	l.mu.Unlock()
	if fail {
		return nil, false, errLedgerOff
	}
	return l.BookingLedger.AppendIfAbsent(ctx, key, b)
}

func (l *flakyLedger) appends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls
}

// lostAckStore commits the first claim and then reports a transport error.
type lostAckStore struct {
	*memory.RoomStore
	mu   sync.Mutex
	lost bool
}

func (s *lostAckStore) Claim(ctx context.Context, id rooms.RoomID) (bool, error) {
	claimed, err := s.RoomStore.Claim(ctx, id)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil || s.lost {
		return claimed, err
	}
	s.lost = true
	return false, errors.New("i/o timeout")
}

type failingReleaseStore struct {
	*memory.RoomStore
}

func (s failingReleaseStore) Release(ctx context.Context, id rooms.RoomID) error {
	return errors.New("room store offline")
}

type harness struct {
	coord    *Coordinator
	rooms    *memory.RoomStore
	ledger   *memory.BookingLedger
	payments *fakePayments
	box      *memory.Outbox
	mu       sync.Mutex
	sleeps   []time.Duration
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		rooms:    memory.NewRoomStore(),
		ledger:   memory.NewBookingLedger(),
		payments: newFakePayments(),
		box:      memory.NewOutbox(),
	}
	h.coord = &Coordinator{
		Rooms:         h.rooms,
		Ledger:        h.ledger,
		Payments:      h.payments,
		Guard:         memory.NewKeyGuard(time.Minute),
		Outbox:        h.box,
		LedgerBackoff: []time.Duration{10 * time.Millisecond, 20 * time.Millisecond, 40 * time.Millisecond},
		Sleep: func(ctx context.Context, d time.Duration) error {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.sleeps = append(h.sleeps, d)
			return nil
		},
	}
	return h
}

func (h *harness) addRoom(t *testing.T, id, hostID string) {
	t.Helper()
	room, err := rooms.NewRoom(rooms.CreateParams{
		ID:    rooms.RoomID(id),
		Host:  rooms.Host{ID: rooms.HostID(hostID), Email: hostID + "@example.com", Name: "Host " + hostID},
		Title: "Room " + id,
		Price: price,
	})
	require.NoError(t, err)
	require.NoError(t, h.rooms.Save(context.Background(), room))
}

func (h *harness) booked(t *testing.T, id string) bool {
	t.Helper()
	room, err := h.rooms.Get(context.Background(), rooms.RoomID(id))
	require.NoError(t, err)
	return room.Booked
}

func (h *harness) eventNames() []string {
	var names []string
	for _, rec := range h.box.Records() {
		names = append(names, rec.Name)
	}
	return names
}

func guest(id string) identity.Claim {
	return identity.Claim{Subject: id, Email: id + "@example.com", Name: "Guest " + id, Role: identity.RoleGuest}
}

func host(id string) identity.Claim {
	return identity.Claim{Subject: id, Role: identity.RoleHost}
}

func finalize(room, guestID, ref, key string) FinalizeRequest {
	return FinalizeRequest{RoomID: rooms.RoomID(room), Guest: guest(guestID), PaymentReference: ref, IdempotencyKey: key}
}

func TestBookingLifecycleForSingleRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	ledger := &flakyLedger{BookingLedger: h.ledger}
	h.coord.Ledger = ledger
	h.addRoom(t, "R101", "h1")

	handle, err := h.coord.RequestAuthorization(ctx, AuthorizationRequest{
		RoomID: "R101",
		Guest:  guest("g1"),
		Amount: price,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, handle.Reference)
	assert.NotEmpty(t, handle.ClientSecret)
	assert.False(t, h.booked(t, "R101"), "authorization must not touch the room")

	h.payments.succeed(handle.Reference, price)

	first, err := h.coord.FinalizeBooking(ctx, finalize("R101", "g1", handle.Reference, "k1"))
	require.NoError(t, err)
	require.NotNil(t, first.Booking)
	assert.False(t, first.Replayed)
	assert.Equal(t, booking.StatusConfirmed, first.Booking.Status)
	assert.Equal(t, price, first.Booking.Amount)
	assert.Equal(t, rooms.HostID("h1"), first.Booking.Host.ID)
	assert.True(t, h.booked(t, "R101"))

	statuses, appends := h.payments.statusCalls(), ledger.appends()
	again, err := h.coord.FinalizeBooking(ctx, finalize("R101", "g1", handle.Reference, "k1"))
	require.NoError(t, err)
	assert.True(t, again.Replayed)
	assert.Equal(t, first.Booking.ID, again.Booking.ID)
	assert.Equal(t, statuses, h.payments.statusCalls(), "replay must not query the provider")
	assert.Equal(t, appends, ledger.appends(), "replay must not write the ledger")
	assert.Len(t, h.box.Records(), 1)

	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R101", Guest: guest("g2"), Amount: price})
	assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))

	h.payments.succeed("pi_late", price)
	_, err = h.coord.FinalizeBooking(ctx, finalize("R101", "g2", "pi_late", "k2"))
	assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))
	assert.Equal(t, 1, h.payments.refundCount("pi_late"))
	assert.Zero(t, h.payments.refundCount(handle.Reference))

	released, err := h.coord.ReleaseRoom(ctx, ReleaseRequest{RoomID: "R101", Actor: host("h1")})
	require.NoError(t, err)
	assert.True(t, released.WasBooked)
	require.NotNil(t, released.Voided)
	assert.Equal(t, first.Booking.ID, released.Voided.ID)
	assert.False(t, h.booked(t, "R101"))

	h.payments.succeed("pi_next", price)
	next, err := h.coord.FinalizeBooking(ctx, finalize("R101", "g2", "pi_next", "k3"))
	require.NoError(t, err)
	assert.Equal(t, "g2", next.Booking.Guest.ID)

	assert.Equal(t, []string{"booking.confirmed", "booking.voided", "booking.confirmed"}, h.eventNames())
}

func TestFinalizeConcurrentGuestsSingleWinner(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")

	const guests = 16
	for i := 0; i < guests; i++ {
		h.payments.succeed(fmt.Sprintf("pi_%d", i), price)
	}

	var wg sync.WaitGroup
	errs := make([]error, guests)
	for i := 0; i < guests; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = h.coord.FinalizeBooking(context.Background(),
				finalize("R1", fmt.Sprintf("g%d", i), fmt.Sprintf("pi_%d", i), fmt.Sprintf("k%d", i)))
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		if err == nil {
			winners++
			assert.Zero(t, h.payments.refundCount(fmt.Sprintf("pi_%d", i)))
			continue
		}
		assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))
		assert.Equal(t, 1, h.payments.refundCount(fmt.Sprintf("pi_%d", i)))
	}
	assert.Equal(t, 1, winners)
	assert.Equal(t, guests-1, h.payments.totalRefunds())

	active, err := h.ledger.FindActiveByRoom(context.Background(), "R1")
	require.NoError(t, err)
	assert.True(t, active.Active())
}

func TestFinalizeConcurrentRetriesWithSameKey(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)

	const calls = 12
	var wg sync.WaitGroup
	results := make([]FinalizeResult, calls)
	errs := make([]error, calls)
	for i := 0; i < calls; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = h.coord.FinalizeBooking(context.Background(), finalize("R1", "g1", "pi_1", "k1"))
		}(i)
	}
	wg.Wait()

	var ids []booking.BookingID
	for i, err := range errs {
		if err != nil {
			assert.Equal(t, KindInProgress, KindOf(err))
			continue
		}
		ids = append(ids, results[i].Booking.ID)
	}
	require.NotEmpty(t, ids)
	for _, id := range ids {
		assert.Equal(t, ids[0], id)
	}
	assert.Zero(t, h.payments.totalRefunds())

	entries, err := h.ledger.FindByGuest(context.Background(), "g1")
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestFinalizeRejectsUnconfirmedPaymentWithoutMutation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	cases := map[string]struct {
		setup func(h *harness) string
		kind  Kind
	}{
		"pending": {
			setup: func(h *harness) string {
				auth, _ := h.payments.CreateIntent(ctx, price, "")
				return auth.Reference
			},
			kind: KindPaymentNotConfirmed,
		},
		"unknown reference": {
			setup: func(h *harness) string { return "pi_missing" },
			kind:  KindPaymentNotConfirmed,
		},
		"refunded": {
			setup: func(h *harness) string {
				h.payments.succeed("pi_r", price)
				_, _ = h.payments.Refund(ctx, "pi_r")
				return "pi_r"
			},
			kind: KindPaymentNotConfirmed,
		},
		"provider down": {
			setup: func(h *harness) string {
				h.payments.statusErr = fmt.Errorf("%w: timeout", payment.ErrUnavailable)
				return "pi_x"
			},
			kind: KindUpstreamUnavailable,
		},
	}
	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			h := newHarness(t)
			h.addRoom(t, "R1", "h1")
			ref := tc.setup(h)
			refundsBefore := h.payments.totalRefunds()

			_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", ref, "k1"))
			assert.Equal(t, tc.kind, KindOf(err))
			assert.False(t, h.booked(t, "R1"))
			_, err = h.ledger.FindByIdempotencyKey(ctx, "k1")
			assert.ErrorIs(t, err, booking.ErrNotFound)
			assert.Equal(t, refundsBefore, h.payments.totalRefunds())
			assert.Empty(t, h.eventNames())
		})
	}
}

func TestFinalizeValidation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", ""))
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrIdempotencyKeyRequired)

	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "", "k1"))
	assert.ErrorIs(t, err, ErrPaymentRefRequired)

	_, err = h.coord.FinalizeBooking(ctx, finalize("nope", "g1", "pi_1", "k1"))
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrRoomUnknown)

	_, err = h.coord.FinalizeBooking(ctx, FinalizeRequest{RoomID: "R1", PaymentReference: "pi_1", IdempotencyKey: "k1"})
	assert.Equal(t, KindUnauthorized, KindOf(err))

	assert.False(t, h.booked(t, "R1"))
	assert.Zero(t, h.payments.totalRefunds())
}

func TestFinalizeKeyReuseWithDifferentArguments(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.payments.succeed("pi_2", price)

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)

	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_2", "k1"))
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrIdempotencyConflict)
	assert.Zero(t, h.payments.refundCount("pi_2"))
}

func TestFinalizeRejectsReusedPaymentReference(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.addRoom(t, "R2", "h1")
	h.payments.succeed("pi_1", price)

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)

	_, err = h.coord.FinalizeBooking(ctx, finalize("R2", "g1", "pi_1", "k2"))
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrPaymentReused)
	assert.False(t, h.booked(t, "R2"))
	assert.Zero(t, h.payments.totalRefunds())
}

func TestFinalizeLedgerFailureReleasesAndRefunds(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	flaky := &flakyLedger{BookingLedger: h.ledger, failures: -1}
	h.coord.Ledger = flaky

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	assert.Equal(t, KindPersistenceFailed, KindOf(err))
	assert.ErrorIs(t, err, ErrLedgerExhausted)
	assert.Equal(t, 4, flaky.calls)
	assert.Equal(t, h.coord.LedgerBackoff, h.sleeps)
	assert.False(t, h.booked(t, "R1"))
	assert.Equal(t, 1, h.payments.refundCount("pi_1"))
	assert.Empty(t, h.eventNames())
}

func TestFinalizeLedgerRecoversWithinRetries(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	flaky := &flakyLedger{BookingLedger: h.ledger, failures: 2}
	h.coord.Ledger = flaky

	res, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, res.Booking.Status)
	assert.Equal(t, 3, flaky.calls)
	assert.True(t, h.booked(t, "R1"))
	assert.Zero(t, h.payments.totalRefunds())
}

func TestFinalizeLedgerHoldsActiveBookingForRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.payments.succeed("pi_2", price)

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)
	// Flag drifts from the ledger.
	require.NoError(t, h.rooms.Release(ctx, "R1"))

	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g2", "pi_2", "k2"))
	assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))
	assert.Equal(t, 1, h.payments.refundCount("pi_2"))
	assert.True(t, h.booked(t, "R1"), "room stays claimed for the confirmed booking")
}

func TestFinalizeEscalatesFailedCompensation(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.payments.succeed("pi_2", price)

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)

	h.payments.refundErr = fmt.Errorf("%w: 503", payment.ErrUnavailable)
	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g2", "pi_2", "k2"))
	assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))

	records := h.box.Records()
	require.Len(t, records, 2)
	assert.Equal(t, "booking.compensation_failed", records[1].Name)
	assert.Equal(t, "pi_2", records[1].Aggregate)
	assert.Contains(t, string(records[1].Payload), `"refund_pending":true`)
}

func TestFinalizeEscalatesFailedRelease(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.coord.Ledger = &flakyLedger{BookingLedger: h.ledger, failures: -1}
	h.coord.Rooms = failingReleaseStore{RoomStore: h.rooms}

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	assert.Equal(t, KindPersistenceFailed, KindOf(err))
	assert.Equal(t, 1, h.payments.refundCount("pi_1"))

	records := h.box.Records()
	require.Len(t, records, 1)
	assert.Contains(t, string(records[0].Payload), `"release_pending":true`)
	assert.Contains(t, string(records[0].Payload), `"refund_pending":false`)
}

func TestFinalizeEscalatesClaimWithUnknownOutcome(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.coord.Rooms = &lostAckStore{RoomStore: h.rooms}

	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
	assert.True(t, h.booked(t, "R1"), "claim landed before the error")
	assert.Zero(t, h.payments.refundCount("pi_1"))

	records := h.box.Records()
	require.Len(t, records, 1)
	assert.Equal(t, "booking.compensation_failed", records[0].Name)
	var task booking.CompensationFailed
	require.NoError(t, json.Unmarshal(records[0].Payload, &task))
	assert.Equal(t, rooms.RoomID("R1"), task.RoomID)
	assert.Equal(t, "pi_1", task.PaymentReference)
	assert.Equal(t, "k1", task.IdempotencyKey)
	assert.True(t, task.RefundPending)
	assert.True(t, task.ReleasePending)

	// The guest retries and loses to their own orphaned claim.
	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))

	require.NoError(t, h.coord.RetryCompensation(ctx, task))
	assert.False(t, h.booked(t, "R1"), "reconciliation frees the orphaned room")
	assert.NotZero(t, h.payments.refundCount("pi_1"))

	_, err = h.ledger.FindActiveByRoom(ctx, "R1")
	assert.ErrorIs(t, err, booking.ErrNotFound)

	h.payments.succeed("pi_2", price)
	res, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g2", "pi_2", "k2"))
	require.NoError(t, err)
	assert.Equal(t, "g2", res.Booking.Guest.ID)
}

func TestFinalizeRejectsUnderpaidAuthorization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_cent", money.Must(1, "USD"))
	h.payments.succeed("pi_eur", money.Must(12000, "EUR"))

	for _, ref := range []string{"pi_cent", "pi_eur"} {
		_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", ref, "k-"+ref))
		assert.Equal(t, KindPaymentNotConfirmed, KindOf(err), ref)
		assert.ErrorIs(t, err, ErrAmountBelowPrice, ref)
	}
	assert.False(t, h.booked(t, "R1"))
	assert.Zero(t, h.payments.totalRefunds())
	assert.Empty(t, h.eventNames())

	h.payments.succeed("pi_more", money.Must(15000, "USD"))
	res, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_more", "k-more"))
	require.NoError(t, err)
	assert.Equal(t, int64(15000), res.Booking.Amount.Amount)
}

func TestFinalizeReportsBusyKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)

	release, err := h.coord.Guard.Acquire(ctx, "finalize:k1")
	require.NoError(t, err)

	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	assert.Equal(t, KindInProgress, KindOf(err))
	assert.True(t, Retryable(KindOf(err)))
	assert.False(t, h.booked(t, "R1"))

	require.NoError(t, release(ctx))
	_, err = h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	assert.NoError(t, err)
}

func TestFinalizeCompletesAfterCallerCancels(t *testing.T) {
	t.Parallel()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.coord.Ledger = &flakyLedger{BookingLedger: h.ledger, failures: 1}

	ctx, cancel := context.WithCancel(context.Background())
	h.coord.Sleep = func(sctx context.Context, d time.Duration) error {
		cancel()
		return sctx.Err()
	}

	res, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)
	assert.Equal(t, booking.StatusConfirmed, res.Booking.Status)
}

func TestRequestAuthorizationFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.addRoom(t, "R2", "h1")
	_, err := h.rooms.Claim(ctx, "R2")
	require.NoError(t, err)

	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R1", Guest: guest("g1"), Amount: money.Must(0, "USD")})
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R9", Guest: guest("g1"), Amount: price})
	assert.Equal(t, KindInvalidRequest, KindOf(err))
	assert.ErrorIs(t, err, ErrRoomUnknown)

	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R2", Guest: guest("g1"), Amount: price})
	assert.Equal(t, KindRoomAlreadyBooked, KindOf(err))

	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R1", Guest: guest("g1"), Amount: money.Must(12000, "EUR")})
	assert.ErrorIs(t, err, ErrCurrencyMismatch)

	h.payments.createErr = fmt.Errorf("%w: dial tcp", payment.ErrUnavailable)
	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R1", Guest: guest("g1"), Amount: price})
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))

	h.payments.createErr = fmt.Errorf("%w: amount too small", payment.ErrRejected)
	_, err = h.coord.RequestAuthorization(ctx, AuthorizationRequest{RoomID: "R1", Guest: guest("g1"), Amount: price})
	assert.Equal(t, KindInvalidRequest, KindOf(err))

	assert.False(t, h.booked(t, "R1"))
	entries, err := h.ledger.FindByGuest(ctx, "g1")
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestReleaseRoomAuthorization(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)

	_, err = h.coord.ReleaseRoom(ctx, ReleaseRequest{RoomID: "R1", Actor: guest("g1")})
	assert.Equal(t, KindForbidden, KindOf(err))
	_, err = h.coord.ReleaseRoom(ctx, ReleaseRequest{RoomID: "R1", Actor: host("h2")})
	assert.Equal(t, KindForbidden, KindOf(err))
	assert.True(t, h.booked(t, "R1"))

	_, err = h.coord.ReleaseRoom(ctx, ReleaseRequest{RoomID: "R9", Actor: host("h1")})
	assert.Equal(t, KindNotFound, KindOf(err))

	res, err := h.coord.ReleaseRoom(ctx, ReleaseRequest{RoomID: "R1", Actor: identity.Claim{Subject: "ops", Role: identity.RoleAdmin}})
	require.NoError(t, err)
	require.NotNil(t, res.Voided)
	assert.Equal(t, booking.StatusVoided, res.Voided.Status)
	assert.False(t, h.booked(t, "R1"))
	assert.Zero(t, h.payments.totalRefunds())
}

func TestReleaseAvailableRoomIsNoop(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")

	res, err := h.coord.ReleaseRoom(ctx, ReleaseRequest{RoomID: "R1", Actor: host("h1")})
	require.NoError(t, err)
	assert.False(t, res.WasBooked)
	assert.Nil(t, res.Voided)
	assert.Empty(t, h.eventNames())
}

func TestRetryCompensationSkipsReleaseForHeldRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	h.payments.succeed("pi_1", price)
	h.payments.succeed("pi_2", price)
	_, err := h.coord.FinalizeBooking(ctx, finalize("R1", "g1", "pi_1", "k1"))
	require.NoError(t, err)

	err = h.coord.RetryCompensation(ctx, booking.CompensationFailed{
		RoomID:           "R1",
		PaymentReference: "pi_2",
		RefundPending:    true,
		ReleasePending:   true,
	})
	require.NoError(t, err)
	assert.True(t, h.booked(t, "R1"))
	assert.Equal(t, 1, h.payments.refundCount("pi_2"))
}

func TestRetryCompensationReleasesOrphanedRoom(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	h := newHarness(t)
	h.addRoom(t, "R1", "h1")
	_, err := h.rooms.Claim(ctx, "R1")
	require.NoError(t, err)

	err = h.coord.RetryCompensation(ctx, booking.CompensationFailed{RoomID: "R1", PaymentReference: "pi_1", ReleasePending: true})
	require.NoError(t, err)
	assert.False(t, h.booked(t, "R1"))

	h.payments.refundErr = errProvider
	err = h.coord.RetryCompensation(ctx, booking.CompensationFailed{RoomID: "R1", PaymentReference: "pi_1", RefundPending: true})
	assert.Equal(t, KindUpstreamUnavailable, KindOf(err))
	assert.ErrorIs(t, err, errProvider)
}
