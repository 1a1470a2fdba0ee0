package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	auditrepo "github.com/smallbiznis/learnpay/internal/audit/repository"
	auditservice "github.com/smallbiznis/learnpay/internal/audit/service"
	catalogrepo "github.com/smallbiznis/learnpay/internal/catalog/repository"
	catalogservice "github.com/smallbiznis/learnpay/internal/catalog/service"
	"github.com/smallbiznis/learnpay/internal/clock"
	"github.com/smallbiznis/learnpay/internal/config"
	coupondomain "github.com/smallbiznis/learnpay/internal/coupon/domain"
	couponrepo "github.com/smallbiznis/learnpay/internal/coupon/repository"
	couponservice "github.com/smallbiznis/learnpay/internal/coupon/service"
	enrollmentrepo "github.com/smallbiznis/learnpay/internal/enrollment/repository"
	enrollmentservice "github.com/smallbiznis/learnpay/internal/enrollment/service"
	invoicerepo "github.com/smallbiznis/learnpay/internal/invoice/repository"
	invoiceservice "github.com/smallbiznis/learnpay/internal/invoice/service"
	"github.com/smallbiznis/learnpay/internal/notification"
	obsmetrics "github.com/smallbiznis/learnpay/internal/observability/metrics"
	"github.com/smallbiznis/learnpay/internal/payment/adapters"
	paymentdomain "github.com/smallbiznis/learnpay/internal/payment/domain"
	"github.com/smallbiznis/learnpay/internal/payment/repository"
	"github.com/smallbiznis/learnpay/internal/pricing"
	"github.com/smallbiznis/learnpay/internal/testutil"
	userrepo "github.com/smallbiznis/learnpay/internal/user/repository"
	userservice "github.com/smallbiznis/learnpay/internal/user/service"
	"github.com/smallbiznis/learnpay/pkg/db/pagination"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var startedAt = time.Date(2026, 8, 3, 8, 30, 0, 0, time.UTC)

type fakeGateway struct {
	kind string

	mu          sync.Mutex
	charges     []paymentdomain.ChargeRequest
	refunds     []paymentdomain.RefundRequest
	cancels     []string
	statusCalls int
	chargeErr   error
	refundErr   error
	cancelErr   error
	result      paymentdomain.ChargeResult
}

func newFakeGateway(kind string) *fakeGateway {
	return &fakeGateway{
		kind:   kind,
		result: paymentdomain.ChargeResult{Status: paymentdomain.ChargeSucceeded, RawStatus: "succeeded", TransactionRef: "ch_1"},
	}
}

func (g *fakeGateway) Kind() string { return g.kind }

func (g *fakeGateway) CreateCharge(ctx context.Context, req paymentdomain.ChargeRequest) (paymentdomain.Charge, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.chargeErr != nil {
		return paymentdomain.Charge{}, g.chargeErr
	}
	g.charges = append(g.charges, req)
	ref := fmt.Sprintf("%s_%d", g.kind, len(g.charges))
	return paymentdomain.Charge{Reference: ref, ClientSecret: ref + "_secret", RawStatus: "requires_payment_method"}, nil
}

func (g *fakeGateway) ChargeStatus(ctx context.Context, q paymentdomain.StatusQuery) (paymentdomain.ChargeResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.statusCalls++
	result := g.result
	if g.kind == adapters.KindBkash && result.Status == paymentdomain.ChargeSucceeded {
		result.TransactionRef = q.ClientReference
	}
	return result, nil
}

func (g *fakeGateway) Refund(ctx context.Context, req paymentdomain.RefundRequest) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.refundErr != nil {
		return g.refundErr
	}
	g.refunds = append(g.refunds, req)
	return nil
}

func (g *fakeGateway) CancelCharge(ctx context.Context, reference string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.cancelErr != nil {
		return g.cancelErr
	}
	g.cancels = append(g.cancels, reference)
	return nil
}

type notifierMock struct {
	mock.Mock
}

func (m *notifierMock) EnrollmentCompleted(ctx context.Context, notice notification.EnrollmentNotice) {
	m.Called(ctx, notice)
}

type fixture struct {
	db       *gorm.DB
	svc      *Service
	clock    *clock.FakeClock
	stripe   *fakeGateway
	bkash    *fakeGateway
	notifier *notifierMock
	coupons  coupondomain.Service

	user       snowflake.ID
	otherUser  snowflake.ID
	course     snowflake.ID
	course2    snowflake.ID
	freeCourse snowflake.ID
}

func setup(t *testing.T) fixture {
	t.Helper()
	db := testutil.NewDB(t)
	node := testutil.NewNode(t)
	fc := clock.NewFakeClock(startedAt)
	log := zap.NewNop()

	users := userservice.New(userservice.Params{DB: db, Repo: userrepo.Provide()})
	catalog := catalogservice.New(catalogservice.Params{DB: db, Log: log, Repo: catalogrepo.Provide()})
	coupons := couponservice.New(couponservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: couponrepo.Provide(), Catalog: catalog})
	enrollments := enrollmentservice.New(enrollmentservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: enrollmentrepo.Provide(), Catalog: catalog})
	invoices := invoiceservice.New(invoiceservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: invoicerepo.Provide(), Users: users, Catalog: catalog})
	audit := auditservice.NewService(auditservice.Params{DB: db, Log: log, GenID: node, Clock: fc, Repo: auditrepo.Provide()})

	stripeGateway := newFakeGateway(adapters.KindStripe)
	bkashGateway := newFakeGateway(adapters.KindBkash)
	notifier := &notifierMock{}
	notifier.On("EnrollmentCompleted", mock.Anything, mock.Anything).Return()

	svc := NewService(Params{
		DB:          db,
		Log:         log,
		GenID:       node,
		Clock:       fc,
		Repo:        repository.Provide(),
		Registry:    adapters.NewRegistry(stripeGateway, bkashGateway),
		Calculator:  pricing.NewCalculator(config.NewStaticExchangeConfigHolder(decimal.NewFromInt(110))),
		Coupons:     coupons,
		Catalog:     catalog,
		Users:       users,
		Enrollments: enrollments,
		Invoices:    invoices,
		Notifier:    notifier,
		AuditSvc:    audit,
	})

	return fixture{
		db:         db,
		svc:        svc,
		clock:      fc,
		stripe:     stripeGateway,
		bkash:      bkashGateway,
		notifier:   notifier,
		coupons:    coupons,
		user:       testutil.SeedUser(t, db, 1, "rahim@example.com", "Rahim", "Uddin"),
		otherUser:  testutil.SeedUser(t, db, 2, "karim@example.com", "Karim", "Ahmed"),
		course:     testutil.SeedCourse(t, db, 10, "Go in Production", 10000, "USD", false),
		course2:    testutil.SeedCourse(t, db, 11, "Postgres Internals", 5000, "USD", false),
		freeCourse: testutil.SeedCourse(t, db, 12, "Intro to Git", 0, "USD", true),
	}
}

func (f fixture) createCoupon(t *testing.T, req coupondomain.CreateCouponRequest) coupondomain.Coupon {
	t.Helper()
	if req.ValidFrom == nil {
		from := startedAt.Add(-time.Hour)
		req.ValidFrom = &from
	}
	if req.ValidUntil == nil {
		until := startedAt.Add(30 * 24 * time.Hour)
		req.ValidUntil = &until
	}
	c, err := f.coupons.Create(context.Background(), req)
	require.NoError(t, err)
	return c
}

func (f fixture) initiate(t *testing.T, userID, courseID snowflake.ID, method, coupon string) *paymentdomain.Payment {
	t.Helper()
	p, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
		UserID:     userID,
		CourseID:   courseID,
		Method:     method,
		CouponCode: coupon,
	})
	require.NoError(t, err)
	return p
}

func (f fixture) confirmStripe(t *testing.T, p *paymentdomain.Payment) *paymentdomain.Payment {
	t.Helper()
	confirmed, err := f.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{
		GatewayKind:      adapters.KindStripe,
		TransactionID:    p.TransactionID,
		GatewayReference: deref(p.GatewayIntentID),
		UserID:           p.UserID,
	})
	require.NoError(t, err)
	return confirmed
}

// recordMetrics swaps in a real meter so tests can read counters back.
func (f fixture) recordMetrics(t *testing.T) *sdkmetric.ManualReader {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	m, err := obsmetrics.New(obsmetrics.Config{ServiceName: "learnpay"}, sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	require.NoError(t, err)
	f.svc.obsMetrics = m
	return reader
}

func reconciliations(t *testing.T, reader *sdkmetric.ManualReader, reason string) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, scope := range rm.ScopeMetrics {
		for _, m := range scope.Metrics {
			if m.Name != "learnpay_payment_reconciliation_total" {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				if v, ok := dp.Attributes.Value("reason"); ok && v.AsString() == reason {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func (f fixture) expireAll(t *testing.T) int64 {
	t.Helper()
	f.clock.Advance(25 * time.Hour)
	closed, err := f.svc.CancelStale(context.Background(), f.clock.Now().Add(-24*time.Hour), 100)
	require.NoError(t, err)
	return closed
}

func (f fixture) status(t *testing.T, id snowflake.ID) paymentdomain.Status {
	t.Helper()
	p, err := f.svc.reload(context.Background(), id)
	require.NoError(t, err)
	return p.Status
}

func (f fixture) usedCount(t *testing.T, couponID snowflake.ID) int {
	t.Helper()
	c, err := f.coupons.GetByID(context.Background(), couponID)
	require.NoError(t, err)
	return c.UsedCount
}

func (f fixture) enrollmentCount(t *testing.T, courseID snowflake.ID) int64 {
	t.Helper()
	var count int64
	require.NoError(t, f.db.Raw(`SELECT enrollment_count FROM courses WHERE id = ?`, courseID).Scan(&count).Error)
	return count
}

func TestInitiateFreeCourseEnrollsImmediately(t *testing.T) {
	f := setup(t)

	p := f.initiate(t, f.user, f.freeCourse, "stripe", "IGNORED")

	assert.Equal(t, paymentdomain.StatusCompleted, p.Status)
	assert.Equal(t, paymentdomain.MethodFree, p.Method)
	assert.Equal(t, int64(0), p.FinalAmount)
	assert.Regexp(t, `^TXN-[0-9A-HJKMNP-TV-Z]{26}$`, p.TransactionID)
	assert.Equal(t, paymentdomain.FreeDetails{Reason: paymentdomain.FreeReasonCourse}, p.Details)
	assert.Empty(t, f.stripe.charges)

	assert.Equal(t, int64(1), testutil.Count(t, f.db, "enrollments", "user_id = ? AND course_id = ?", f.user, f.freeCourse))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "progress", "user_id = ? AND status = 'not_started'", f.user))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "invoices", "payment_id = ? AND total = 0 AND is_paid = ?", p.ID, true))
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.freeCourse))
	f.notifier.AssertNumberOfCalls(t, "EnrollmentCompleted", 1)

	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.freeCourse, Method: "stripe"})
	assert.ErrorIs(t, err, paymentdomain.ErrAlreadyEnrolled)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payments", "user_id = ?", f.user))
}

func TestInitiateWithCouponThenConfirm(t *testing.T) {
	f := setup(t)
	maxDiscount := int64(1500)
	coupon := f.createCoupon(t, coupondomain.CreateCouponRequest{
		Code:              "SAVE20",
		DiscountType:      coupondomain.DiscountTypePercentage,
		DiscountValue:     decimal.NewFromInt(20),
		MaxDiscountAmount: &maxDiscount,
	})

	p := f.initiate(t, f.user, f.course, "stripe", " save20 ")
	assert.Equal(t, paymentdomain.StatusPending, p.Status)
	assert.Equal(t, int64(10000), p.Amount)
	assert.Equal(t, int64(1500), p.Discount)
	assert.Equal(t, int64(8500), p.FinalAmount)
	assert.Equal(t, "USD", p.Currency)
	require.NotNil(t, p.GatewayClientSecret)
	assert.Equal(t, "stripe_1_secret", *p.GatewayClientSecret)
	require.NotNil(t, p.CouponCode)
	assert.Equal(t, "SAVE20", *p.CouponCode)

	require.Len(t, f.stripe.charges, 1)
	charge := f.stripe.charges[0]
	assert.Equal(t, int64(8500), charge.Amount)
	assert.Equal(t, "Go in Production", charge.Description)
	assert.Equal(t, "rahim@example.com", charge.ReceiptEmail)
	assert.Equal(t, p.TransactionID, charge.TransactionID)
	assert.Equal(t, 0, f.usedCount(t, coupon.ID))

	confirmed := f.confirmStripe(t, p)
	assert.Equal(t, paymentdomain.StatusCompleted, confirmed.Status)
	require.NotNil(t, confirmed.CompletedAt)
	require.NotNil(t, confirmed.GatewayTransactionID)
	assert.Equal(t, "ch_1", *confirmed.GatewayTransactionID)

	assert.Equal(t, 1, f.usedCount(t, coupon.ID))
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.course))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "enrollments", "user_id = ? AND course_id = ? AND price_paid = 8500", f.user, f.course))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "invoices", "payment_id = ? AND subtotal = 10000 AND discount = 1500 AND total = 8500", p.ID))
	f.notifier.AssertCalled(t, "EnrollmentCompleted", mock.Anything, mock.MatchedBy(func(n notification.EnrollmentNotice) bool {
		return n.Email == "rahim@example.com" && n.AmountPaid == "USD 85.00" && n.TransactionID == p.TransactionID
	}))
}

func TestConfirmTwiceHasSingleEffect(t *testing.T) {
	f := setup(t)
	coupon := f.createCoupon(t, coupondomain.CreateCouponRequest{
		Code:          "TEN",
		DiscountType:  coupondomain.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
	})

	p := f.initiate(t, f.user, f.course, "stripe", "TEN")
	first := f.confirmStripe(t, p)
	second := f.confirmStripe(t, p)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, paymentdomain.StatusCompleted, second.Status)
	assert.Equal(t, 1, f.stripe.statusCalls)
	assert.Equal(t, 1, f.usedCount(t, coupon.ID))
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.course))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "invoices", "payment_id = ?", p.ID))
	f.notifier.AssertNumberOfCalls(t, "EnrollmentCompleted", 1)
}

func TestCouponPerUserLimit(t *testing.T) {
	f := setup(t)
	f.createCoupon(t, coupondomain.CreateCouponRequest{
		Code:          "ONCE",
		DiscountType:  coupondomain.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
	})

	f.confirmStripe(t, f.initiate(t, f.user, f.course, "stripe", "ONCE"))

	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
		UserID:     f.user,
		CourseID:   f.course2,
		Method:     "stripe",
		CouponCode: "ONCE",
	})
	assert.ErrorIs(t, err, coupondomain.ErrCouponAlreadyUsed)

	// Another student may still use it.
	other := f.initiate(t, f.otherUser, f.course2, "stripe", "ONCE")
	assert.Equal(t, int64(500), other.Discount)
}

func TestCouponFullDiscountTakesFreePath(t *testing.T) {
	f := setup(t)
	coupon := f.createCoupon(t, coupondomain.CreateCouponRequest{
		Code:          "FULLRIDE",
		DiscountType:  coupondomain.DiscountTypeFixed,
		DiscountValue: decimal.NewFromInt(150),
	})

	p := f.initiate(t, f.user, f.course, "bkash", "FULLRIDE")

	assert.Equal(t, paymentdomain.StatusCompleted, p.Status)
	assert.Equal(t, paymentdomain.MethodFree, p.Method)
	assert.Equal(t, int64(10000), p.Amount)
	assert.Equal(t, int64(10000), p.Discount)
	assert.Equal(t, int64(0), p.FinalAmount)
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, paymentdomain.FreeDetails{Reason: paymentdomain.FreeReasonCouponDiscount}, p.Details)
	assert.Empty(t, f.bkash.charges)
	assert.Equal(t, 1, f.usedCount(t, coupon.ID))
}

func TestFreePathRespectsCouponLimit(t *testing.T) {
	f := setup(t)
	limit := 1
	f.createCoupon(t, coupondomain.CreateCouponRequest{
		Code:          "FIRSTONLY",
		DiscountType:  coupondomain.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(100),
		UsageLimit:    &limit,
	})

	f.initiate(t, f.user, f.course, "stripe", "FIRSTONLY")
	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
		UserID:     f.otherUser,
		CourseID:   f.course,
		Method:     "stripe",
		CouponCode: "FIRSTONLY",
	})
	assert.ErrorIs(t, err, coupondomain.ErrCouponLimitReached)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "enrollments", "user_id = ?", f.otherUser))
}

func TestInitiateBkashConvertsToTaka(t *testing.T) {
	f := setup(t)

	p := f.initiate(t, f.user, f.course, "bkash", "")
	assert.Equal(t, "BDT", p.Currency)
	assert.Equal(t, int64(1100000), p.Amount)
	assert.Equal(t, int64(1100000), p.FinalAmount)

	details, ok := p.Details.(paymentdomain.BkashDetails)
	require.True(t, ok)
	assert.Equal(t, "bkash_1", details.PaymentID)
	require.NotNil(t, details.Conversion)
	assert.Equal(t, "110", details.Conversion.Rate)
	assert.Equal(t, int64(10000), details.Conversion.OriginalFinal)

	require.Len(t, f.bkash.charges, 1)
	assert.Equal(t, "BDT", f.bkash.charges[0].Currency)

	_, err := f.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{
		GatewayKind:   adapters.KindBkash,
		TransactionID: p.TransactionID,
		UserID:        f.user,
	})
	assert.ErrorIs(t, err, paymentdomain.ErrReferenceRequired)

	confirmed, err := f.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{
		GatewayKind:      adapters.KindBkash,
		TransactionID:    p.TransactionID,
		GatewayReference: "TRX9F2K",
		UserID:           f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, confirmed.Status)
	require.NotNil(t, confirmed.GatewayTransactionID)
	assert.Equal(t, "TRX9F2K", *confirmed.GatewayTransactionID)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "invoices", "payment_id = ? AND currency = 'BDT' AND total = 1100000", p.ID))
}

func TestInitiateRequestedTakaForCard(t *testing.T) {
	f := setup(t)
	p, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
		UserID:   f.user,
		CourseID: f.course2,
		Method:   "stripe",
		Currency: "bdt",
	})
	require.NoError(t, err)
	assert.Equal(t, "BDT", p.Currency)
	assert.Equal(t, int64(550000), p.FinalAmount)

	_, err = f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
		UserID:   f.otherUser,
		CourseID: f.course2,
		Method:   "stripe",
		Currency: "EUR",
	})
	assert.ErrorIs(t, err, pricing.ErrUnsupportedCurrency)
}

func TestInitiateValidatesInput(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	_, err := f.svc.Initiate(ctx, paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.course, Method: "paypal"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidMethod)

	_, err = f.svc.Initiate(ctx, paymentdomain.InitiateRequest{UserID: f.user, CourseID: 999, Method: "stripe"})
	assert.Error(t, err)

	_, err = f.svc.Initiate(ctx, paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.course, Method: "stripe", CouponCode: "NOPE"})
	assert.ErrorIs(t, err, coupondomain.ErrInvalidCoupon)
}

func TestReinitiateWhilePendingConflicts(t *testing.T) {
	f := setup(t)

	first := f.initiate(t, f.user, f.course, "stripe", "")
	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.course, Method: "stripe"})
	assert.ErrorIs(t, err, paymentdomain.ErrCheckoutInProgress)

	assert.Equal(t, paymentdomain.StatusPending, f.status(t, first.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payments", "user_id = ? AND course_id = ?", f.user, f.course))
	assert.Len(t, f.stripe.charges, 1)
	assert.Empty(t, f.stripe.cancels)

	// The open attempt still settles.
	completed := f.confirmStripe(t, first)
	assert.Equal(t, paymentdomain.StatusCompleted, completed.Status)
}

func TestConcurrentInitiateYieldsOneCheckout(t *testing.T) {
	f := setup(t)
	const callers = 4

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{
				UserID:   f.user,
				CourseID: f.course,
				Method:   "stripe",
			})
		}(i)
	}
	close(start)
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, paymentdomain.ErrCheckoutInProgress)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payments", "user_id = ? AND course_id = ?", f.user, f.course))
	assert.Len(t, f.stripe.charges, 1)
}

func TestLateCaptureCompletesCancelledPayment(t *testing.T) {
	f := setup(t)
	reader := f.recordMetrics(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "requires_payment_method"}
	assert.Equal(t, int64(1), f.expireAll(t))
	assert.Equal(t, paymentdomain.StatusCancelled, f.status(t, p.ID))
	assert.Equal(t, []string{"stripe_1"}, f.stripe.cancels)

	// The customer paid in a tab opened before the sweep.
	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargeSucceeded, RawStatus: "succeeded", TransactionRef: "ch_late"}
	err := f.svc.ProcessEvent(context.Background(), &paymentdomain.GatewayEvent{
		Provider:         "stripe",
		ProviderEventID:  "evt_late",
		Type:             paymentdomain.EventTypePaymentSucceeded,
		GatewayReference: "stripe_1",
		RawPayload:       []byte(`{"id":"evt_late"}`),
	})
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, p.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "enrollments", "user_id = ? AND course_id = ?", f.user, f.course))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "invoices", "payment_id = ? AND is_paid", p.ID))
	assert.Equal(t, int64(1), reconciliations(t, reader, "late_capture"))
	assert.Equal(t, int64(0), reconciliations(t, reader, "duplicate_charge"))
}

func TestLateCaptureAfterNewEnrollmentIsReported(t *testing.T) {
	f := setup(t)
	reader := f.recordMetrics(t)
	abandoned := f.initiate(t, f.user, f.course, "stripe", "")

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "requires_payment_method"}
	f.expireAll(t)

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargeSucceeded, RawStatus: "succeeded", TransactionRef: "ch_2"}
	f.confirmStripe(t, f.initiate(t, f.user, f.course, "stripe", ""))

	late, err := f.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{
		GatewayKind:   adapters.KindStripe,
		TransactionID: abandoned.TransactionID,
		UserID:        f.user,
	})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusCompleted, late.Status)

	assert.Equal(t, int64(1), testutil.Count(t, f.db, "enrollments", "user_id = ? AND course_id = ?", f.user, f.course))
	assert.Equal(t, int64(2), testutil.Count(t, f.db, "payments", "user_id = ? AND status = 'completed'", f.user))
	assert.Equal(t, int64(1), reconciliations(t, reader, "duplicate_charge"))
}

func TestCancelledPaymentStaysClosedWithoutCapture(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")
	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "requires_payment_method"}
	f.expireAll(t)

	_, err := f.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{
		GatewayKind:   adapters.KindStripe,
		TransactionID: p.TransactionID,
	})
	var stateErr *paymentdomain.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, paymentdomain.StatusCancelled, stateErr.Status)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "enrollments", ""))
}

func TestProcessingAttemptBlocksNewCheckout(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargeProcessing, RawStatus: "processing"}
	processing := f.confirmStripe(t, p)
	assert.Equal(t, paymentdomain.StatusProcessing, processing.Status)

	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.course, Method: "stripe"})
	assert.ErrorIs(t, err, paymentdomain.ErrCheckoutInProgress)

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargeSucceeded, RawStatus: "succeeded"}
	completed := f.confirmStripe(t, p)
	assert.Equal(t, paymentdomain.StatusCompleted, completed.Status)
}

func TestInitiateGatewayFailure(t *testing.T) {
	f := setup(t)
	f.stripe.chargeErr = errors.New("connection reset")

	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.course, Method: "stripe"})
	gatewayErr, ok := paymentdomain.AsGatewayError(err)
	require.True(t, ok)
	assert.Equal(t, adapters.KindStripe, gatewayErr.Gateway)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payments", "user_id = ? AND status = 'failed'", f.user))

	// A failed attempt does not block a retry.
	f.stripe.chargeErr = nil
	retry := f.initiate(t, f.user, f.course, "stripe", "")
	assert.Equal(t, paymentdomain.StatusPending, retry.Status)
}

func TestConfirmFailedCharge(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargeFailed, RawStatus: "requires_payment_method", Reason: "card declined"}
	failed := f.confirmStripe(t, p)
	assert.Equal(t, paymentdomain.StatusFailed, failed.Status)
	require.NotNil(t, failed.FailureReason)
	assert.Equal(t, "card declined", *failed.FailureReason)
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "enrollments", ""))

	_, err := f.svc.Confirm(context.Background(), paymentdomain.ConfirmRequest{GatewayKind: "stripe", TransactionID: p.TransactionID})
	var stateErr *paymentdomain.StateError
	require.ErrorAs(t, err, &stateErr)
	assert.Equal(t, paymentdomain.StatusFailed, stateErr.Status)
}

func TestConfirmPendingLeavesPaymentUnchanged(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")

	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "requires_action"}
	again := f.confirmStripe(t, p)
	assert.Equal(t, paymentdomain.StatusPending, again.Status)
}

func TestConfirmRejectsMismatches(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")
	ctx := context.Background()

	_, err := f.svc.Confirm(ctx, paymentdomain.ConfirmRequest{GatewayKind: "bkash", TransactionID: p.TransactionID, GatewayReference: "TRX1"})
	assert.ErrorIs(t, err, paymentdomain.ErrGatewayMismatch)

	_, err = f.svc.Confirm(ctx, paymentdomain.ConfirmRequest{GatewayKind: "stripe", TransactionID: p.TransactionID, GatewayReference: "pi_other"})
	assert.ErrorIs(t, err, paymentdomain.ErrReferenceMismatch)

	_, err = f.svc.Confirm(ctx, paymentdomain.ConfirmRequest{GatewayKind: "stripe", TransactionID: p.TransactionID, UserID: f.otherUser})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	_, err = f.svc.Confirm(ctx, paymentdomain.ConfirmRequest{GatewayKind: "stripe", TransactionID: "TXN-MISSING"})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
	assert.Equal(t, 0, f.stripe.statusCalls)
}

func TestRefundKeepsEnrollmentAndCounters(t *testing.T) {
	f := setup(t)
	coupon := f.createCoupon(t, coupondomain.CreateCouponRequest{
		Code:          "TEN",
		DiscountType:  coupondomain.DiscountTypePercentage,
		DiscountValue: decimal.NewFromInt(10),
	})
	p := f.confirmStripe(t, f.initiate(t, f.user, f.course, "stripe", "TEN"))

	refunded, err := f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: p.ID, Reason: " changed my mind "})
	require.NoError(t, err)

	assert.Equal(t, paymentdomain.StatusRefunded, refunded.Status)
	require.NotNil(t, refunded.RefundReason)
	assert.Equal(t, "changed my mind", *refunded.RefundReason)
	require.NotNil(t, refunded.RefundedAt)

	require.Len(t, f.stripe.refunds, 1)
	assert.Equal(t, "stripe_1", f.stripe.refunds[0].Reference)
	assert.Equal(t, int64(9000), f.stripe.refunds[0].Amount)

	assert.Equal(t, int64(1), testutil.Count(t, f.db, "enrollments", "user_id = ? AND course_id = ? AND payment_status = 'refunded'", f.user, f.course))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "progress", "user_id = ?", f.user))
	assert.Equal(t, 1, f.usedCount(t, coupon.ID))
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.course))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "audit_logs", "action = 'payment.refund' AND target_id = ?", p.ID.String()))

	_, err = f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: p.ID, Reason: "again"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidState)
	assert.Len(t, f.stripe.refunds, 1)
}

func TestRefundRequiresCompletedPayment(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")

	_, err := f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: p.ID, Reason: "test"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidState)

	_, err = f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: p.ID, Reason: "  "})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidRefundReason)

	_, err = f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: 404, Reason: "test"})
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)
}

func TestRefundGatewayErrorLeavesPaymentUntouched(t *testing.T) {
	f := setup(t)
	p := f.confirmStripe(t, f.initiate(t, f.user, f.course, "stripe", ""))
	f.stripe.refundErr = errors.New("charge already refunded")

	_, err := f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: p.ID, Reason: "duplicate"})
	_, ok := paymentdomain.AsGatewayError(err)
	assert.True(t, ok)

	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, p.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "enrollments", "payment_status = 'completed'"))
	assert.Equal(t, int64(0), testutil.Count(t, f.db, "audit_logs", ""))
}

func TestRefundFreePaymentSkipsGateway(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.freeCourse, "stripe", "")

	refunded, err := f.svc.Refund(context.Background(), paymentdomain.RefundCommand{PaymentID: p.ID, Reason: "admin cleanup"})
	require.NoError(t, err)
	assert.Equal(t, paymentdomain.StatusRefunded, refunded.Status)
	assert.Empty(t, f.stripe.refunds)
}

func TestCancelStale(t *testing.T) {
	f := setup(t)
	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "requires_payment_method"}
	stale := f.initiate(t, f.user, f.course, "stripe", "")

	f.clock.Advance(20 * time.Hour)
	fresh := f.initiate(t, f.otherUser, f.course, "stripe", "")

	f.clock.Advance(5 * time.Hour)
	cancelled, err := f.svc.CancelStale(context.Background(), f.clock.Now().Add(-24*time.Hour), 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), cancelled)

	assert.Equal(t, paymentdomain.StatusCancelled, f.status(t, stale.ID))
	assert.Equal(t, paymentdomain.StatusPending, f.status(t, fresh.ID))
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payments", "id = ? AND failure_reason = 'expired'", stale.ID))
	assert.Equal(t, []string{deref(stale.GatewayIntentID)}, f.stripe.cancels)
}

func TestCancelStaleSettlesPaidCharge(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")

	assert.Equal(t, int64(1), f.expireAll(t))

	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, p.ID))
	assert.Equal(t, int64(1), f.enrollmentCount(t, f.course))
	assert.Empty(t, f.stripe.cancels)
}

func TestCancelStaleKeepsPendingWhenGatewayCancelFails(t *testing.T) {
	f := setup(t)
	f.stripe.result = paymentdomain.ChargeResult{Status: paymentdomain.ChargePending, RawStatus: "requires_payment_method"}
	f.stripe.cancelErr = paymentdomain.NewGatewayError(adapters.KindStripe, "cancel_charge", errors.New("connection reset"))
	p := f.initiate(t, f.user, f.course, "stripe", "")

	assert.Equal(t, int64(0), f.expireAll(t))
	assert.Equal(t, paymentdomain.StatusPending, f.status(t, p.ID))

	// The next sweep retries once the gateway answers.
	f.stripe.cancelErr = nil
	assert.Equal(t, int64(1), f.expireAll(t))
	assert.Equal(t, paymentdomain.StatusCancelled, f.status(t, p.ID))
}

func TestListForUserPaginates(t *testing.T) {
	f := setup(t)
	for i := int64(0); i < 3; i++ {
		course := testutil.SeedCourse(t, f.db, 100+i, fmt.Sprintf("Free %d", i), 0, "USD", true)
		f.initiate(t, f.user, course, "stripe", "")
	}
	f.initiate(t, f.otherUser, f.freeCourse, "stripe", "")

	page, err := f.svc.ListForUser(context.Background(), f.user, pagination.Pagination{PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page.Payments, 2)
	assert.True(t, page.PageInfo.HasMore)
	assert.Greater(t, page.Payments[0].ID, page.Payments[1].ID)

	next, err := f.svc.ListForUser(context.Background(), f.user, pagination.Pagination{PageSize: 2, PageToken: page.PageInfo.NextPageToken})
	require.NoError(t, err)
	require.Len(t, next.Payments, 1)
	assert.False(t, next.PageInfo.HasMore)

	all, err := f.svc.ListAll(context.Background(), pagination.Offset{Limit: 3, Offset: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(4), all.Total)
	assert.Len(t, all.Payments, 3)
}

func TestGetByTransactionIDScopesToOwner(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")
	ctx := context.Background()

	got, err := f.svc.GetByTransactionID(ctx, paymentdomain.Viewer{UserID: f.user}, p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = f.svc.GetByTransactionID(ctx, paymentdomain.Viewer{UserID: f.otherUser}, p.TransactionID)
	assert.ErrorIs(t, err, paymentdomain.ErrNotFound)

	got, err = f.svc.GetByTransactionID(ctx, paymentdomain.Viewer{UserID: f.otherUser, Admin: true}, p.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)
}

func TestTransactionIDCollisionRetries(t *testing.T) {
	f := setup(t)
	ids := []string{"TXN-TAKEN", "TXN-TAKEN", "TXN-FRESH"}
	f.svc.txnID = func(time.Time) string {
		id := ids[0]
		if len(ids) > 1 {
			ids = ids[1:]
		}
		return id
	}

	first := f.initiate(t, f.user, f.freeCourse, "stripe", "")
	second := f.initiate(t, f.otherUser, f.freeCourse, "stripe", "")

	assert.Equal(t, "TXN-TAKEN", first.TransactionID)
	assert.Equal(t, "TXN-FRESH", second.TransactionID)

	f.svc.txnID = func(time.Time) string { return "TXN-TAKEN" }
	_, err := f.svc.Initiate(context.Background(), paymentdomain.InitiateRequest{UserID: f.user, CourseID: f.course, Method: "stripe"})
	assert.ErrorIs(t, err, paymentdomain.ErrTransactionIDExhausted)
}

func TestProcessEventConfirmsOnce(t *testing.T) {
	f := setup(t)
	p := f.initiate(t, f.user, f.course, "stripe", "")
	event := func() *paymentdomain.GatewayEvent {
		return &paymentdomain.GatewayEvent{
			Provider:         "stripe",
			ProviderEventID:  "evt_1",
			Type:             paymentdomain.EventTypePaymentSucceeded,
			GatewayReference: deref(p.GatewayIntentID),
			RawPayload:       []byte(`{"id":"evt_1"}`),
		}
	}

	require.NoError(t, f.svc.ProcessEvent(context.Background(), event()))
	assert.Equal(t, paymentdomain.StatusCompleted, f.status(t, p.ID))

	err := f.svc.ProcessEvent(context.Background(), event())
	assert.ErrorIs(t, err, paymentdomain.ErrEventAlreadyProcessed)
	assert.Equal(t, 1, f.stripe.statusCalls)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payment_events", "processed_at IS NOT NULL"))
}

func TestProcessEventUnknownChargeIsAcknowledged(t *testing.T) {
	f := setup(t)
	err := f.svc.ProcessEvent(context.Background(), &paymentdomain.GatewayEvent{
		Provider:         "stripe",
		ProviderEventID:  "evt_orphan",
		Type:             paymentdomain.EventTypePaymentFailed,
		GatewayReference: "pi_unknown",
		RawPayload:       []byte(`{}`),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), testutil.Count(t, f.db, "payment_events", "provider_event_id = 'evt_orphan' AND processed_at IS NOT NULL"))

	err = f.svc.ProcessEvent(context.Background(), &paymentdomain.GatewayEvent{Provider: "stripe", Type: "refund.created"})
	assert.ErrorIs(t, err, paymentdomain.ErrInvalidEvent)
}
