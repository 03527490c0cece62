package handlers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"

	"server/internal/assetcache"
	"server/internal/classifier"
	"server/internal/domain"
	"server/internal/infra/credentials"
	"server/internal/listing"
	"server/internal/middleware"
	"server/internal/payments"
	"server/internal/storage"
)

const testUserID = "user-1"

type grantCall struct {
	userID string
	amount int
	desc   string
}

type fakeUserRepo struct {
	user       *domain.User
	deductErr  error
	deductions []int
	refunds    []int
	grants     []grantCall
}

func (f *fakeUserRepo) GetByID(_ context.Context, id string) (*domain.User, error) {
	if f.user != nil && f.user.ID == id {
		return f.user, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	if f.user != nil && f.user.Email == email {
		return f.user, nil
	}
	return nil, domain.ErrNotFound
}

func (f *fakeUserRepo) DeductCredits(_ context.Context, _ string, amount int, _ string) error {
	if f.deductErr != nil {
		return f.deductErr
	}
	f.deductions = append(f.deductions, amount)
	return nil
}

func (f *fakeUserRepo) RefundCredits(_ context.Context, _ string, amount int, _ string) error {
	f.refunds = append(f.refunds, amount)
	return nil
}

func (f *fakeUserRepo) GrantCredits(_ context.Context, userID string, amount int, desc string) error {
	f.grants = append(f.grants, grantCall{userID: userID, amount: amount, desc: desc})
	return nil
}

type fakeJobRepo struct {
	created   []*domain.ListingJob
	createErr error
	jobs      map[string]*domain.ListingJob
}

func (f *fakeJobRepo) Create(_ context.Context, job *domain.ListingJob) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = append(f.created, job)
	if f.jobs == nil {
		f.jobs = map[string]*domain.ListingJob{}
	}
	f.jobs[job.ID] = job
	return nil
}

func (f *fakeJobRepo) Claim(context.Context) (*domain.ListingJob, error) {
	return nil, domain.ErrNotFound
}

func (f *fakeJobRepo) Complete(_ context.Context, jobID string, status domain.ListingJobStatus, errMsg string, bundleJSON, listingJSON []byte) error {
	if job, ok := f.jobs[jobID]; ok {
		job.Status = status
		job.ErrorMessage = errMsg
		job.BundleJSON = bundleJSON
		job.ListingJSON = listingJSON
	}
	return nil
}

func (f *fakeJobRepo) GetByID(_ context.Context, jobID string) (*domain.ListingJob, error) {
	if job, ok := f.jobs[jobID]; ok {
		return job, nil
	}
	return nil, domain.ErrNotFound
}

type learnedKeyword struct {
	nicheID int
	keyword string
	weight  float64
}

type fakeNicheRepo struct {
	niches  []domain.Niche
	learned []learnedKeyword
}

func (f *fakeNicheRepo) ListNiches(context.Context) ([]domain.Niche, error) {
	return f.niches, nil
}

func (f *fakeNicheRepo) ListKeywords(context.Context) ([]domain.NicheKeyword, error) {
	return nil, nil
}

func (f *fakeNicheRepo) LearnKeyword(_ context.Context, nicheID int, keyword string, weight float64) error {
	f.learned = append(f.learned, learnedKeyword{nicheID: nicheID, keyword: keyword, weight: weight})
	return nil
}

// stubSQL satisfies the credentials store in tests that never reach the
// database.
type stubSQL struct {
	execs int
}

func (s *stubSQL) Exec(context.Context, string, ...any) (pgconn.CommandTag, error) {
	s.execs++
	return pgconn.CommandTag{}, nil
}

func (s *stubSQL) QueryRow(context.Context, string, ...any) pgx.Row { return errRow{} }

func (s *stubSQL) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, pgx.ErrNoRows
}

type errRow struct{}

func (errRow) Scan(...any) error { return pgx.ErrNoRows }

type testEnv struct {
	app    *App
	users  *fakeUserRepo
	jobs   *fakeJobRepo
	niches *fakeNicheRepo
	sql    *stubSQL
}

func newTestEnv(t *testing.T, paymentOpts payments.Options) *testEnv {
	t.Helper()
	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	cache, err := assetcache.New(t.TempDir(), zerolog.Nop())
	if err != nil {
		t.Fatalf("asset cache: %v", err)
	}

	users := &fakeUserRepo{user: &domain.User{ID: testUserID, Email: "seller@example.com", Credits: 5}}
	jobs := &fakeJobRepo{jobs: map[string]*domain.ListingJob{}}
	niches := &fakeNicheRepo{niches: []domain.Niche{{ID: 1, Name: "Fitness"}, {ID: 2, Name: "Gaming"}}}
	sql := &stubSQL{}

	paymentOpts.Logger = zerolog.Nop()
	app := &App{
		Logger:      zerolog.Nop(),
		Users:       users,
		Jobs:        jobs,
		Niches:      niches,
		Classifier:  classifier.New(niches, zerolog.Nop()),
		Store:       store,
		Cache:       cache,
		Payments:    payments.New(paymentOpts),
		Credentials: credentials.NewStore(sql),
	}
	return &testEnv{app: app, users: users, jobs: jobs, niches: niches, sql: sql}
}

func authed(req *http.Request) *http.Request {
	return req.WithContext(middleware.ContextWithUserID(req.Context(), testUserID))
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func multipartImage(t *testing.T, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := fw.Write([]byte("not really a png, good enough for the handler")); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func TestUploadCreateQueuesJob(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	body, contentType := multipartImage(t, "product.png")
	req := authed(httptest.NewRequest("POST", "/v1/uploads", body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	env.app.UploadCreate(rr, req)

	if rr.Code != http.StatusAccepted {
		t.Fatalf("unexpected status: got %d, want 202: %s", rr.Code, rr.Body.String())
	}
	var resp uploadResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != string(domain.ListingJobStatusQueued) {
		t.Fatalf("unexpected job status %q", resp.Status)
	}
	if len(env.jobs.created) != 1 {
		t.Fatalf("expected 1 job, got %d", len(env.jobs.created))
	}
	job := env.jobs.created[0]
	if job.ID != resp.JobID || job.UserID != testUserID {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(env.users.deductions) != 1 || env.users.deductions[0] != domain.ListingCreditCost {
		t.Fatalf("unexpected deductions %v", env.users.deductions)
	}
	fullPath, err := env.app.Store.FullPath(job.ImagePath)
	if err != nil {
		t.Fatalf("resolve stored image: %v", err)
	}
	if _, err := os.Stat(fullPath); err != nil {
		t.Fatalf("stored image missing: %v", err)
	}
	if filepath.Ext(fullPath) != ".png" {
		t.Fatalf("stored image lost extension: %s", fullPath)
	}
}

func TestUploadCreateWithoutAuth(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	body, contentType := multipartImage(t, "product.png")
	req := httptest.NewRequest("POST", "/v1/uploads", body)
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	env.app.UploadCreate(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status: got %d, want 401", rr.Code)
	}
	if len(env.jobs.created) != 0 {
		t.Fatalf("job should not be created")
	}
}

func TestUploadCreateRejectsUnsupportedExtension(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	body, contentType := multipartImage(t, "product.gif")
	req := authed(httptest.NewRequest("POST", "/v1/uploads", body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	env.app.UploadCreate(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d, want 400", rr.Code)
	}
	if len(env.users.deductions) != 0 {
		t.Fatalf("credit should not be charged for rejected upload")
	}
}

func TestUploadCreateInsufficientCredits(t *testing.T) {
	env := newTestEnv(t, payments.Options{})
	env.users.deductErr = domain.ErrInsufficientCredits

	body, contentType := multipartImage(t, "product.jpg")
	req := authed(httptest.NewRequest("POST", "/v1/uploads", body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	env.app.UploadCreate(rr, req)

	if rr.Code != http.StatusPaymentRequired {
		t.Fatalf("unexpected status: got %d, want 402", rr.Code)
	}
	if len(env.jobs.created) != 0 {
		t.Fatalf("job should not be created without credit")
	}
}

func TestUploadCreateRefundsWhenEnqueueFails(t *testing.T) {
	env := newTestEnv(t, payments.Options{})
	env.jobs.createErr = fmt.Errorf("insert failed")

	body, contentType := multipartImage(t, "product.webp")
	req := authed(httptest.NewRequest("POST", "/v1/uploads", body))
	req.Header.Set("Content-Type", contentType)
	rr := httptest.NewRecorder()

	env.app.UploadCreate(rr, req)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("unexpected status: got %d, want 500", rr.Code)
	}
	if len(env.users.refunds) != 1 || env.users.refunds[0] != domain.ListingCreditCost {
		t.Fatalf("expected refund of %d, got %v", domain.ListingCreditCost, env.users.refunds)
	}
}

func TestListingGetReturnsJob(t *testing.T) {
	env := newTestEnv(t, payments.Options{})
	bundle := []byte(`{"status":"completed","formats_generated":["model"]}`)
	record := []byte(`{"listing":{"id":"l-1"}}`)
	env.jobs.jobs["job-1"] = &domain.ListingJob{
		ID:          "job-1",
		UserID:      testUserID,
		Status:      domain.ListingJobStatusSucceeded,
		BundleJSON:  bundle,
		ListingJSON: record,
		CreatedAt:   time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
	}

	req := withURLParam(authed(httptest.NewRequest("GET", "/v1/listings/job-1", nil)), "id", "job-1")
	rr := httptest.NewRecorder()

	env.app.ListingGet(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	var resp struct {
		ID      string          `json:"id"`
		Status  string          `json:"status"`
		Bundle  json.RawMessage `json:"bundle"`
		Listing json.RawMessage `json:"listing"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ID != "job-1" || resp.Status != string(domain.ListingJobStatusSucceeded) {
		t.Fatalf("unexpected response %+v", resp)
	}
	if !bytes.Equal(resp.Bundle, bundle) {
		t.Fatalf("bundle not passed through: %s", resp.Bundle)
	}
	if !bytes.Equal(resp.Listing, record) {
		t.Fatalf("listing not passed through: %s", resp.Listing)
	}
}

func TestListingGetHidesForeignJobs(t *testing.T) {
	env := newTestEnv(t, payments.Options{})
	env.jobs.jobs["job-2"] = &domain.ListingJob{ID: "job-2", UserID: "someone-else"}

	req := withURLParam(authed(httptest.NewRequest("GET", "/v1/listings/job-2", nil)), "id", "job-2")
	rr := httptest.NewRecorder()

	env.app.ListingGet(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("unexpected status: got %d, want 404", rr.Code)
	}
}

func TestNichesList(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	rr := httptest.NewRecorder()
	env.app.NichesList(rr, httptest.NewRequest("GET", "/v1/niches", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200", rr.Code)
	}
	var out []nicheDTO
	if err := json.NewDecoder(rr.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 2 || out[0].Name != "Fitness" {
		t.Fatalf("unexpected niches %+v", out)
	}
}

func TestFeedbackLearnsCorrectedNiche(t *testing.T) {
	env := newTestEnv(t, payments.Options{})
	listingJSON, err := json.Marshal(listing.Record{
		Listing: &domain.Listing{
			ID:       "l-1",
			Analysis: domain.ImageAnalysis{Labels: []string{"Yoga", "Mat"}},
		},
	})
	if err != nil {
		t.Fatalf("marshal record: %v", err)
	}
	env.jobs.jobs["job-1"] = &domain.ListingJob{
		ID:          "job-1",
		UserID:      testUserID,
		Status:      domain.ListingJobStatusSucceeded,
		ListingJSON: listingJSON,
	}

	nicheID := 2
	body, _ := json.Marshal(feedbackRequest{JobID: "job-1", Feedback: "wrong category", CorrectedNicheID: &nicheID})
	req := authed(httptest.NewRequest("POST", "/v1/feedback", bytes.NewReader(body)))
	rr := httptest.NewRecorder()

	env.app.FeedbackSubmit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if len(env.niches.learned) != 2 {
		t.Fatalf("expected 2 learned keywords, got %+v", env.niches.learned)
	}
	for _, l := range env.niches.learned {
		if l.nicheID != nicheID {
			t.Fatalf("keyword learned for wrong niche: %+v", l)
		}
		if l.weight != 2.0 {
			t.Fatalf("learned keywords should carry boosted weight, got %v", l.weight)
		}
	}
	if env.niches.learned[0].keyword != "yoga" {
		t.Fatalf("labels should be lowercased, got %q", env.niches.learned[0].keyword)
	}
}

func TestFeedbackWithoutCorrectionSkipsLearning(t *testing.T) {
	env := newTestEnv(t, payments.Options{})
	env.jobs.jobs["job-1"] = &domain.ListingJob{ID: "job-1", UserID: testUserID}

	body, _ := json.Marshal(feedbackRequest{JobID: "job-1", Feedback: "looks great"})
	req := authed(httptest.NewRequest("POST", "/v1/feedback", bytes.NewReader(body)))
	rr := httptest.NewRecorder()

	env.app.FeedbackSubmit(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200", rr.Code)
	}
	if len(env.niches.learned) != 0 {
		t.Fatalf("no keywords should be learned, got %+v", env.niches.learned)
	}
}

func TestCreditPackagesCatalog(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	rr := httptest.NewRecorder()
	env.app.CreditPackages(rr, httptest.NewRequest("GET", "/v1/credits/packages", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200", rr.Code)
	}
	var resp struct {
		Packages []payments.CreditPackage `json:"packages"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Packages) != 4 {
		t.Fatalf("expected 4 packages, got %d", len(resp.Packages))
	}
	if resp.Packages[0].ID != "starter" || resp.Packages[0].Credits != 10 {
		t.Fatalf("unexpected first package %+v", resp.Packages[0])
	}
}

func TestCreditsCheckoutUnknownPackage(t *testing.T) {
	env := newTestEnv(t, payments.Options{SecretKey: "sk_test_123"})

	body, _ := json.Marshal(checkoutRequest{PackageID: "mega"})
	req := authed(httptest.NewRequest("POST", "/v1/credits/checkout", bytes.NewReader(body)))
	rr := httptest.NewRecorder()

	env.app.CreditsCheckout(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d, want 400", rr.Code)
	}
}

func TestCreditsCheckoutUnconfigured(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	body, _ := json.Marshal(checkoutRequest{PackageID: "starter"})
	req := authed(httptest.NewRequest("POST", "/v1/credits/checkout", bytes.NewReader(body)))
	rr := httptest.NewRecorder()

	env.app.CreditsCheckout(rr, req)

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("unexpected status: got %d, want 503", rr.Code)
	}
}

func signStripePayload(secret string, ts int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestStripeWebhookGrantsCredits(t *testing.T) {
	const secret = "whsec_test"
	env := newTestEnv(t, payments.Options{SecretKey: "sk_test_123", WebhookSecret: secret})

	payload := []byte(`{
		"id": "evt_1",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"payment_status": "paid",
			"metadata": {"user_id": "user-1", "package_id": "creator", "credits": "50"}
		}}
	}`)
	req := httptest.NewRequest("POST", "/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(secret, time.Now().Unix(), payload))
	rr := httptest.NewRecorder()

	env.app.StripeWebhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if len(env.users.grants) != 1 {
		t.Fatalf("expected 1 grant, got %+v", env.users.grants)
	}
	grant := env.users.grants[0]
	if grant.userID != "user-1" || grant.amount != 50 {
		t.Fatalf("unexpected grant %+v", grant)
	}
}

func TestStripeWebhookRejectsBadSignature(t *testing.T) {
	env := newTestEnv(t, payments.Options{SecretKey: "sk_test_123", WebhookSecret: "whsec_test"})

	payload := []byte(`{"id":"evt_2","type":"checkout.session.completed"}`)
	req := httptest.NewRequest("POST", "/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload("wrong-secret", time.Now().Unix(), payload))
	rr := httptest.NewRecorder()

	env.app.StripeWebhook(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d, want 400", rr.Code)
	}
	if len(env.users.grants) != 0 {
		t.Fatalf("no credits should be granted, got %+v", env.users.grants)
	}
}

func TestStripeWebhookIgnoresOtherEvents(t *testing.T) {
	const secret = "whsec_test"
	env := newTestEnv(t, payments.Options{SecretKey: "sk_test_123", WebhookSecret: secret})

	payload := []byte(`{"id":"evt_3","type":"invoice.paid","data":{"object":{}}}`)
	req := httptest.NewRequest("POST", "/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", signStripePayload(secret, time.Now().Unix(), payload))
	rr := httptest.NewRecorder()

	env.app.StripeWebhook(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200", rr.Code)
	}
	if len(env.users.grants) != 0 {
		t.Fatalf("no credits should be granted for %q events", "invoice.paid")
	}
}

func TestCacheClearReportsRemovedEntries(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	input := filepath.Join(t.TempDir(), "input.png")
	if err := os.WriteFile(input, []byte("image bytes"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}
	env.app.Cache.Store(context.Background(), input, &domain.AssetBundle{Status: domain.BundleStatusCompleted})

	req := authed(httptest.NewRequest("DELETE", "/v1/admin/cache", nil))
	rr := httptest.NewRecorder()

	env.app.CacheClear(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200", rr.Code)
	}
	var resp map[string]int
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["removed"] != 1 {
		t.Fatalf("expected 1 removed entry, got %d", resp["removed"])
	}
}

func TestCredentialsSetValidatesInput(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	body, _ := json.Marshal(credentialRequest{Provider: "replicate"})
	req := authed(httptest.NewRequest("PUT", "/v1/admin/credentials", bytes.NewReader(body)))
	rr := httptest.NewRecorder()

	env.app.CredentialsSet(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("unexpected status: got %d, want 400", rr.Code)
	}
	if env.sql.execs != 0 {
		t.Fatalf("invalid request should not hit the store")
	}
}

func TestCredentialsSetStoresToken(t *testing.T) {
	env := newTestEnv(t, payments.Options{})

	body, _ := json.Marshal(credentialRequest{Provider: credentials.ProviderReplicate, Token: "r8_abc"})
	req := authed(httptest.NewRequest("PUT", "/v1/admin/credentials", bytes.NewReader(body)))
	rr := httptest.NewRecorder()

	env.app.CredentialsSet(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: got %d, want 200: %s", rr.Code, rr.Body.String())
	}
	if env.sql.execs != 1 {
		t.Fatalf("expected 1 upsert, got %d", env.sql.execs)
	}
}
