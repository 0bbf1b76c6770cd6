package scheduler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ErlanBelekov/birthday-campaign/internal/domain"
	"github.com/ErlanBelekov/birthday-campaign/internal/infrastructure/memory"
	"github.com/ErlanBelekov/birthday-campaign/internal/lock"
	"github.com/ErlanBelekov/birthday-campaign/internal/metrics"
	"github.com/ErlanBelekov/birthday-campaign/internal/scheduler"
	"github.com/ErlanBelekov/birthday-campaign/internal/usecase"
	"github.com/ErlanBelekov/birthday-campaign/internal/window"
	"github.com/prometheus/client_golang/prometheus"
)

// ---- fakes ----

type sentMail struct {
	to, subject, body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	fail func(to string, call int) error
	call map[string]int
}

func (s *fakeSender) Send(_ context.Context, to, subject, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.call == nil {
		s.call = make(map[string]int)
	}
	s.call[to]++
	if s.fail != nil {
		if err := s.fail(to, s.call[to]); err != nil {
			return err
		}
	}
	s.sent = append(s.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

func (s *fakeSender) sentTo(to string) []sentMail {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []sentMail
	for _, m := range s.sent {
		if m.to == to {
			out = append(out, m)
		}
	}
	return out
}

type fakeLease struct {
	mu       sync.Mutex
	released bool
}

func (l *fakeLease) Release(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.released = true
	return nil
}

type fakeLocker struct {
	acquire func(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error)
}

func (l *fakeLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (lock.Lease, error) {
	return l.acquire(ctx, key, ttl)
}

// failingUsers lets a test break the batch-level listing calls.
type failingUsers struct {
	*memory.UserStore
	listInWindowErr error
	listNotifiedErr error
}

func (f *failingUsers) ListInWindow(ctx context.Context, w window.Window) ([]*domain.User, error) {
	if f.listInWindowErr != nil {
		return nil, f.listInWindowErr
	}
	return f.UserStore.ListInWindow(ctx, w)
}

func (f *failingUsers) ListNotified(ctx context.Context) ([]*domain.User, error) {
	if f.listNotifiedErr != nil {
		return nil, f.listNotifiedErr
	}
	return f.UserStore.ListNotified(ctx)
}

// ---- fixture ----

type fixture struct {
	users     *failingUsers
	discounts *memory.DiscountStore
	products  *memory.ProductStore
	ledger    *usecase.DiscountLedger
	sender    *fakeSender
	locker    lock.Locker
	campaign  *scheduler.Campaign
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	f := &fixture{
		users:     &failingUsers{UserStore: memory.NewUserStore()},
		discounts: memory.NewDiscountStore(),
		products: memory.NewProductStore(
			domain.Product{Name: "Espresso Machine", Category: "Kitchen", Rating: 4.9},
			domain.Product{Name: "Toaster", Category: "Kitchen", Rating: 3.2},
			domain.Product{Name: "Trail Shoes", Category: "Sports", Rating: 4.4},
		),
		sender: &fakeSender{},
		locker: lock.NoopLocker{},
	}
	f.ledger = usecase.NewDiscountLedger(f.discounts, logger)
	f.build(logger)
	return f
}

func (f *fixture) build(logger *slog.Logger) {
	gate := usecase.NewNotificationGate(f.users, f.ledger, 7, logger)
	f.campaign = scheduler.NewCampaign(f.users, f.products, f.ledger, gate, f.sender, f.locker,
		scheduler.Config{
			WindowDays:   7,
			Workers:      4,
			SendTimeout:  time.Second,
			StoreTimeout: time.Second,
			LockTTL:      time.Hour,
			Brand:        "Farmers Market",
		}, logger)
}

func (f *fixture) withLocker(t *testing.T, l lock.Locker) {
	t.Helper()
	f.locker = l
	f.build(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func (f *fixture) run(t *testing.T, today time.Time) scheduler.RunReport {
	t.Helper()
	report, err := f.campaign.Run(context.Background(), today)
	if err != nil {
		t.Fatalf("Run(%s): %v", today.Format(time.DateOnly), err)
	}
	return report
}

func (f *fixture) state(t *testing.T, id string) domain.CycleState {
	t.Helper()
	u, err := f.users.FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	return u.CycleState
}

// runDurationSamples gathers the run duration histogram and returns the
// observation count for one outcome.
func runDurationSamples(t *testing.T, outcome string) uint64 {
	t.Helper()
	reg := prometheus.NewRegistry()
	reg.MustRegister(metrics.CampaignRunDuration)
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetHistogram().GetSampleCount()
				}
			}
		}
	}
	return 0
}

func on(year int, m time.Month, d int) time.Time {
	return time.Date(year, m, d, 0, 0, 0, 0, time.UTC)
}

// ---- scenarios ----

func TestRun_BirthdayCycle(t *testing.T) {
	f := newFixture(t)
	u := f.users.Add(domain.User{
		Name:        "Ada",
		Email:       "ada@example.com",
		Birthdate:   on(1990, time.March, 10),
		Preferences: []string{"kitchen"},
	})

	// Day 0: notified with a fresh code.
	report := f.run(t, on(2025, time.March, 10))
	if report.Notified != 1 {
		t.Fatalf("day 0 notified = %d, want 1", report.Notified)
	}
	mails := f.sender.sentTo("ada@example.com")
	if len(mails) != 1 {
		t.Fatalf("mails = %d, want 1", len(mails))
	}
	discounts := f.discounts.All(u.ID)
	if len(discounts) != 1 || !discounts[0].Active() {
		t.Fatalf("discounts = %+v, want one active", discounts)
	}
	if !strings.Contains(mails[0].body, discounts[0].Code) {
		t.Fatalf("mail body does not contain code %s", discounts[0].Code)
	}
	if !strings.Contains(mails[0].body, "Espresso Machine") {
		t.Fatal("mail body missing top rated kitchen product")
	}
	if mails[0].subject != "Happy Birthday! Enjoy Your Special Day!" {
		t.Fatalf("subject = %q", mails[0].subject)
	}
	if f.state(t, u.ID) != domain.CycleNotified {
		t.Fatal("user not notified after day 0")
	}

	// Day 1: still in the window, nothing resent.
	report = f.run(t, on(2025, time.March, 11))
	if report.Notified != 0 || report.Reset != 0 {
		t.Fatalf("day 1 report = %+v, want no activity", report)
	}
	if n := len(f.sender.sentTo("ada@example.com")); n != 1 {
		t.Fatalf("mails after day 1 = %d, want 1", n)
	}

	// Day 8: window closed, code expired, user idle again.
	report = f.run(t, on(2025, time.March, 18))
	if report.Reset != 1 {
		t.Fatalf("day 8 reset = %d, want 1", report.Reset)
	}
	if f.state(t, u.ID) != domain.CycleIdle {
		t.Fatal("user not idle after day 8")
	}
	d := f.discounts.All(u.ID)[0]
	if !d.IsExpired || d.Used {
		t.Fatalf("discount = %+v, want expired and unused", d)
	}

	// Next year: a new cycle with a new code.
	report = f.run(t, on(2026, time.March, 8))
	if report.Notified != 1 {
		t.Fatalf("next year notified = %d, want 1", report.Notified)
	}
	if n := len(f.discounts.All(u.ID)); n != 2 {
		t.Fatalf("discounts after next year = %d, want 2", n)
	}
}

func TestRun_RedeemedCodeSurvivesReset(t *testing.T) {
	f := newFixture(t)
	u := f.users.Add(domain.User{Name: "Bo", Email: "bo@example.com", Birthdate: on(1985, time.July, 4)})

	f.run(t, on(2025, time.July, 1))
	code := f.discounts.All(u.ID)[0].Code

	ok, err := f.ledger.Redeem(context.Background(), u.ID, code)
	if err != nil || !ok {
		t.Fatalf("Redeem = %v, %v", ok, err)
	}

	report := f.run(t, on(2025, time.July, 12))
	if report.Reset != 1 {
		t.Fatalf("reset = %d, want 1", report.Reset)
	}
	d := f.discounts.All(u.ID)[0]
	if !d.Used || d.IsExpired {
		t.Fatalf("discount = %+v, want used=true is_expired=false", d)
	}
}

func TestRun_RedeemMidWindowAfterDailyRuns(t *testing.T) {
	f := newFixture(t)
	u := f.users.Add(domain.User{Name: "Flo", Email: "flo@example.com", Birthdate: on(1992, time.March, 10)})

	for d := 10; d <= 13; d++ {
		report := f.run(t, on(2025, time.March, d))
		if report.Reset != 0 {
			t.Fatalf("Mar %d reset = %d, want 0", d, report.Reset)
		}
	}
	if f.state(t, u.ID) != domain.CycleNotified {
		t.Fatal("user must stay notified through day 3")
	}

	code := f.discounts.All(u.ID)[0].Code
	ok, err := f.ledger.Redeem(context.Background(), u.ID, code)
	if err != nil || !ok {
		t.Fatalf("day 3 Redeem = %v, %v, want true", ok, err)
	}

	for d := 14; d <= 17; d++ {
		if report := f.run(t, on(2025, time.March, d)); report.Reset != 0 {
			t.Fatalf("Mar %d reset = %d, want 0", d, report.Reset)
		}
	}

	report := f.run(t, on(2025, time.March, 18))
	if report.Reset != 1 {
		t.Fatalf("day 8 reset = %d, want 1", report.Reset)
	}
	if f.state(t, u.ID) != domain.CycleIdle {
		t.Fatal("user not idle after day 8")
	}
	discounts := f.discounts.All(u.ID)
	if len(discounts) != 1 {
		t.Fatalf("discounts = %d, want 1", len(discounts))
	}
	if d := discounts[0]; !d.Used || d.IsExpired {
		t.Fatalf("discount = %+v, want used=true is_expired=false", d)
	}
	if n := len(f.sender.sentTo("flo@example.com")); n != 1 {
		t.Fatalf("mails = %d, want 1", n)
	}
}

func TestRun_UnredeemedCodeStaysValidUntilDay8(t *testing.T) {
	f := newFixture(t)
	u := f.users.Add(domain.User{Name: "Gil", Email: "gil@example.com", Birthdate: on(1992, time.March, 10)})

	f.run(t, on(2025, time.March, 10))
	f.run(t, on(2025, time.March, 17))

	active, err := f.ledger.ListActive(context.Background(), u.ID)
	if err != nil {
		t.Fatalf("ListActive: %v", err)
	}
	if len(active) != 1 {
		t.Fatalf("active on day 7 = %d, want 1", len(active))
	}

	f.run(t, on(2025, time.March, 18))
	if active, _ = f.ledger.ListActive(context.Background(), u.ID); len(active) != 0 {
		t.Fatalf("active on day 8 = %d, want 0", len(active))
	}
}

func TestRun_YearWrap(t *testing.T) {
	f := newFixture(t)
	in := f.users.Add(domain.User{Name: "In", Email: "in@example.com", Birthdate: on(2000, time.January, 3)})
	edge := f.users.Add(domain.User{Name: "Edge", Email: "edge@example.com", Birthdate: on(2000, time.January, 4)})
	out := f.users.Add(domain.User{Name: "Out", Email: "out@example.com", Birthdate: on(2000, time.January, 5)})

	report := f.run(t, on(2025, time.December, 29))
	if report.Notified != 2 {
		t.Fatalf("notified = %d, want 2", report.Notified)
	}
	if f.state(t, in.ID) != domain.CycleNotified || f.state(t, edge.ID) != domain.CycleNotified {
		t.Fatal("Jan 3 and Jan 4 must be notified on Dec 29")
	}
	if f.state(t, out.ID) != domain.CycleIdle {
		t.Fatal("Jan 5 must not be notified on Dec 29")
	}

	// Dec 30 reaches Jan 5.
	report = f.run(t, on(2025, time.December, 30))
	if report.Notified != 1 || f.state(t, out.ID) != domain.CycleNotified {
		t.Fatalf("Dec 30 report = %+v, want Jan 5 notified", report)
	}
}

func TestRun_LeapDayBirthday(t *testing.T) {
	f := newFixture(t)
	u := f.users.Add(domain.User{Name: "Leap", Email: "leap@example.com", Birthdate: on(2000, time.February, 29)})

	f.run(t, on(2025, time.February, 28))
	if f.state(t, u.ID) != domain.CycleNotified {
		t.Fatal("Feb 29 birthday must be celebrated on Feb 28")
	}
}

func TestRun_SendFailureDoesNotAbortBatch(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = func(to string, _ int) error {
		if to == "broken@example.com" {
			return errors.New("mailbox unavailable")
		}
		return nil
	}
	good := f.users.Add(domain.User{Name: "Good", Email: "good@example.com", Birthdate: on(1990, time.May, 2)})
	bad := f.users.Add(domain.User{Name: "Bad", Email: "broken@example.com", Birthdate: on(1990, time.May, 2)})

	report := f.run(t, on(2025, time.May, 1))
	if report.Notified != 1 || report.NotifyFails != 1 {
		t.Fatalf("report = %+v, want 1 notified and 1 failed", report)
	}
	if f.state(t, good.ID) != domain.CycleNotified {
		t.Fatal("good user must be notified")
	}
	if f.state(t, bad.ID) != domain.CycleIdle {
		t.Fatal("failed user must stay idle")
	}
	if f.sender.call["broken@example.com"] != 2 {
		t.Fatalf("send attempts = %d, want 2", f.sender.call["broken@example.com"])
	}

	// Next run retries with the code issued on the failed attempt.
	firstCode := f.discounts.All(bad.ID)[0].Code
	f.sender.fail = nil
	report = f.run(t, on(2025, time.May, 2))
	if report.Notified != 1 {
		t.Fatalf("retry notified = %d, want 1", report.Notified)
	}
	discounts := f.discounts.All(bad.ID)
	if len(discounts) != 1 || discounts[0].Code != firstCode {
		t.Fatalf("discounts = %+v, want the original code reused", discounts)
	}
}

func TestRun_SendRetriedOnce(t *testing.T) {
	f := newFixture(t)
	f.sender.fail = func(_ string, call int) error {
		if call == 1 {
			return errors.New("temporary failure")
		}
		return nil
	}
	u := f.users.Add(domain.User{Name: "Cy", Email: "cy@example.com", Birthdate: on(1990, time.June, 6)})

	report := f.run(t, on(2025, time.June, 6))
	if report.Notified != 1 {
		t.Fatalf("notified = %d, want 1", report.Notified)
	}
	if f.state(t, u.ID) != domain.CycleNotified {
		t.Fatal("user must be notified after retry")
	}
}

func TestRun_EmptyPreferencesStillNotified(t *testing.T) {
	f := newFixture(t)
	f.users.Add(domain.User{Name: "Di", Email: "di@example.com", Birthdate: on(1990, time.August, 8)})

	f.run(t, on(2025, time.August, 8))
	mails := f.sender.sentTo("di@example.com")
	if len(mails) != 1 {
		t.Fatalf("mails = %d, want 1", len(mails))
	}
	if strings.Contains(mails[0].body, "<ul>") {
		t.Fatal("no recommendations expected for empty preferences")
	}
}

func TestRun_ListErrorAbortsAndReleasesLock(t *testing.T) {
	f := newFixture(t)
	lease := &fakeLease{}
	f.withLocker(t, &fakeLocker{acquire: func(_ context.Context, _ string, _ time.Duration) (lock.Lease, error) {
		return lease, nil
	}})
	f.users.listInWindowErr = errors.New("connection refused")
	failedBefore := runDurationSamples(t, "failed")

	_, err := f.campaign.Run(context.Background(), on(2025, time.May, 1))
	if err == nil {
		t.Fatal("expected batch-level error")
	}
	if !lease.released {
		t.Fatal("lock must be released after an aborted run")
	}
	if got := runDurationSamples(t, "failed"); got != failedBefore+1 {
		t.Fatalf("failed run duration samples = %d, want %d", got, failedBefore+1)
	}
}

func TestRun_ResetListErrorAborts(t *testing.T) {
	f := newFixture(t)
	f.users.listNotifiedErr = errors.New("connection refused")

	if _, err := f.campaign.Run(context.Background(), on(2025, time.May, 1)); err == nil {
		t.Fatal("expected batch-level error")
	}
}

func TestRun_LockHeldSkipsRun(t *testing.T) {
	f := newFixture(t)
	var gotKey string
	f.withLocker(t, &fakeLocker{acquire: func(_ context.Context, key string, _ time.Duration) (lock.Lease, error) {
		gotKey = key
		return nil, lock.ErrHeld
	}})
	u := f.users.Add(domain.User{Name: "Ed", Email: "ed@example.com", Birthdate: on(1990, time.May, 1)})

	report := f.run(t, on(2025, time.May, 1))
	if !report.Locked {
		t.Fatal("report must say the run was locked")
	}
	if gotKey != "campaign:run:2025-05-01" {
		t.Fatalf("lock key = %q", gotKey)
	}
	if f.state(t, u.ID) != domain.CycleIdle || len(f.sender.sentTo("ed@example.com")) != 0 {
		t.Fatal("locked run must not touch users")
	}
}

func TestRun_SuccessKeepsLock(t *testing.T) {
	f := newFixture(t)
	lease := &fakeLease{}
	f.withLocker(t, &fakeLocker{acquire: func(_ context.Context, _ string, _ time.Duration) (lock.Lease, error) {
		return lease, nil
	}})

	f.run(t, on(2025, time.May, 1))
	if lease.released {
		t.Fatal("lock must be kept after a successful run")
	}
}

func TestRun_ManyUsersEachNotifiedOnce(t *testing.T) {
	f := newFixture(t)
	const n = 50
	for i := range n {
		f.users.Add(domain.User{
			Name:      "User",
			Email:     "user" + string(rune('a'+i%26)) + string(rune('a'+i/26)) + "@example.com",
			Birthdate: on(1990, time.October, 1+i%7),
		})
	}

	report := f.run(t, on(2025, time.October, 1))
	if report.Notified != n {
		t.Fatalf("notified = %d, want %d", report.Notified, n)
	}
	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()
	if len(f.sender.sent) != n {
		t.Fatalf("sent = %d, want %d", len(f.sender.sent), n)
	}
}
