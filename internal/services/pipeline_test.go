package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/Mustafa-Esoofally/Invoice-payment-agent/internal/domain"
)

// --- pipeline stage fakes ---

type fakeExtractor struct {
	payment *domain.ExtractedPayment
	err     error
	calls   int
}

func (f *fakeExtractor) Extract(_ context.Context, _ string) (*domain.ExtractedPayment, error) {
	f.calls++
	return f.payment, f.err
}

type fakeFunds struct {
	out   FundsCheck
	err   error
	calls int
}

func (f *fakeFunds) Check(_ context.Context, _ decimal.Decimal, _ string) (FundsCheck, error) {
	f.calls++
	return f.out, f.err
}

type fakeResolver struct {
	res        Resolution
	resolveErr error

	destID    string
	ensureErr error
}

func (f *fakeResolver) Resolve(_ context.Context, _ string, _ *domain.BankDetails, _ *domain.PayeeContact) (Resolution, error) {
	return f.res, f.resolveErr
}

func (f *fakeResolver) EnsureDestination(_ context.Context, _ Resolution) (string, error) {
	return f.destID, f.ensureErr
}

type fakeExecutor struct {
	ref   string
	err   error
	memo  string
	calls int
}

func (f *fakeExecutor) Send(_ context.Context, _ decimal.Decimal, _ string, memo string) (string, error) {
	f.calls++
	f.memo = memo
	return f.ref, f.err
}

type fakeNotifier struct {
	err   error
	req   BankDetailsRequest
	calls int
}

func (f *fakeNotifier) RequestBankDetails(_ context.Context, req BankDetailsRequest) error {
	f.calls++
	f.req = req
	return f.err
}

type statusRecorder struct {
	transitions []string
}

func (s *statusRecorder) UpdateStatus(_ context.Context, invoiceID, status string) error {
	s.transitions = append(s.transitions, invoiceID+":"+status)
	return nil
}

// newPipeline wires a pipeline with an sqlite-backed history service and
// happy-path fakes. Tests override individual stages.
func newPipeline(t *testing.T, dsn string) (*PipelineService, *fakeExtractor, *fakeFunds, *fakeResolver, *fakeExecutor, *fakeNotifier) {
	t.Helper()
	ex := &fakeExtractor{}
	funds := &fakeFunds{out: FundsCheck{Sufficient: true, Available: decimal.RequireFromString("10000")}}
	resolver := &fakeResolver{
		res:    Resolution{Kind: ResolutionExistingPayee, Payee: &domain.Payee{ID: "p1", Name: "Acme Corp"}},
		destID: "p1",
	}
	executor := &fakeExecutor{ref: "pay-1"}
	notifier := &fakeNotifier{}
	p := &PipelineService{
		Extractor: ex,
		History:   newHistoryService(t, dsn),
		Funds:     funds,
		Payees:    resolver,
		Executor:  executor,
		Notifier:  notifier,
	}
	return p, ex, funds, resolver, executor, notifier
}

func inbound() domain.InboundInvoice {
	return domain.InboundInvoice{
		Source: domain.SourceRef{
			ThreadID:     "thr-1",
			MessageID:    "m-1",
			AttachmentID: "a-1",
			Sender:       "billing@acme.test",
			Subject:      "Invoice INV-100",
		},
		Payment: &domain.ExtractedPayment{
			InvoiceNumber: "INV-100",
			Amount:        decimal.RequireFromString("250.00"),
			Currency:      "USD",
			RecipientName: "Acme Corp",
			InvoiceDate:   "2025-05-01",
		},
	}
}

func historyCount(t *testing.T, p *PipelineService) int64 {
	t.Helper()
	_, total, err := p.History.ListPage(context.Background(), 1, 100)
	if err != nil {
		t.Fatalf("history count: %v", err)
	}
	return total
}

func TestPipeline_Process_Paid(t *testing.T) {
	p, ex, _, _, executor, _ := newPipeline(t, "pipe_paid")

	res, err := p.Process(context.Background(), inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Success || res.Status != domain.InvoiceStatusPaid || res.PaymentID != "pay-1" {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ErrorType != domain.ErrorTypeNone || res.Error != "" {
		t.Fatalf("paid result must carry no error: %+v", res)
	}
	if ex.calls != 0 {
		t.Fatalf("extractor must not run when fields were supplied upstream")
	}
	if executor.memo != "Invoice INV-100" {
		t.Fatalf("memo = %q; want default Invoice INV-100", executor.memo)
	}

	// Exactly one outcome record, carrying the snapshot.
	if n := historyCount(t, p); n != 1 {
		t.Fatalf("history rows = %d; want 1", n)
	}
	items, _, _ := p.History.ListPage(context.Background(), 1, 1)
	rec := items[0]
	if !rec.Success || rec.PaymentID != "pay-1" || rec.InvoiceNumber != "INV-100" || rec.Recipient != "Acme Corp" {
		t.Fatalf("bad history record: %+v", rec)
	}
	if rec.MessageID != "m-1" || rec.AttachmentID != "a-1" {
		t.Fatalf("history record lost the email ref: %+v", rec)
	}
}

func TestPipeline_Process_DescriptionBecomesMemo(t *testing.T) {
	p, _, _, _, executor, _ := newPipeline(t, "pipe_memo")

	inv := inbound()
	inv.Payment.Description = "Office chairs, Q2"
	if _, err := p.Process(context.Background(), inv); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if executor.memo != "Office chairs, Q2" {
		t.Fatalf("memo = %q; want the invoice description", executor.memo)
	}
}

func TestPipeline_Process_ExtractionPath(t *testing.T) {
	t.Run("extracts when no fields supplied", func(t *testing.T) {
		p, ex, _, _, _, _ := newPipeline(t, "pipe_extract_ok")
		ex.payment = inbound().Payment

		inv := inbound()
		inv.Payment = nil
		inv.RawText = "INVOICE INV-100 ... pay Acme Corp $250.00"
		res, err := p.Process(context.Background(), inv)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if ex.calls != 1 {
			t.Fatalf("extractor calls = %d; want 1", ex.calls)
		}
		if !res.Success || res.Payment == nil || res.Payment.InvoiceNumber != "INV-100" {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("extraction failure is terminal", func(t *testing.T) {
		p, ex, funds, _, _, _ := newPipeline(t, "pipe_extract_fail")
		ex.err = errors.New("llm returned no function call")

		inv := inbound()
		inv.Payment = nil
		inv.RawText = "not an invoice"
		res, err := p.Process(context.Background(), inv)
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if res.Success || res.Status != domain.InvoiceStatusFailed || res.ErrorType != domain.ErrorTypeExtractionFailed {
			t.Fatalf("unexpected result: %+v", res)
		}
		if funds.calls != 0 {
			t.Fatalf("no downstream stage may run after failed extraction")
		}
		if n := historyCount(t, p); n != 1 {
			t.Fatalf("extraction failure must append one record, got %d", n)
		}
	})
}

func TestPipeline_Process_ValidationFailure(t *testing.T) {
	p, _, funds, _, executor, _ := newPipeline(t, "pipe_validate")

	inv := inbound()
	inv.Payment.Amount = decimal.Zero
	res, err := p.Process(context.Background(), inv)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Success || res.ErrorType != domain.ErrorTypeValidation {
		t.Fatalf("unexpected result: %+v", res)
	}
	if funds.calls != 0 || executor.calls != 0 {
		t.Fatalf("no external call may run before validation passes")
	}
	if n := historyCount(t, p); n != 1 {
		t.Fatalf("validation failure must append one record, got %d", n)
	}
}

func TestPipeline_Process_SettledDuplicate_NoNewRecord(t *testing.T) {
	p, _, funds, _, executor, _ := newPipeline(t, "pipe_dup_settled")
	ctx := context.Background()

	// First run pays the invoice.
	if _, err := p.Process(ctx, inbound()); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if n := historyCount(t, p); n != 1 {
		t.Fatalf("first run rows = %d", n)
	}
	fundsCallsAfterFirst := funds.calls
	executorCallsAfterFirst := executor.calls

	// Re-polling the same email must short-circuit.
	res, err := p.Process(ctx, inbound())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if res.Success || res.Status != domain.InvoiceStatusFailed {
		t.Fatalf("duplicate must not succeed: %+v", res)
	}
	if res.ErrorType != domain.ErrorTypeDuplicate || res.Error != domain.ErrMsgAlreadyProcessed {
		t.Fatalf("unexpected duplicate classification: %+v", res)
	}
	if res.Previous == nil || !res.Previous.Success {
		t.Fatalf("duplicate result must carry the settled record: %+v", res.Previous)
	}
	if funds.calls != fundsCallsAfterFirst || executor.calls != executorCallsAfterFirst {
		t.Fatalf("no money-touching stage may run for a settled duplicate")
	}
	// The settled short-circuit appends nothing.
	if n := historyCount(t, p); n != 1 {
		t.Fatalf("rows after duplicate = %d; want 1", n)
	}
}

func TestPipeline_Process_DuplicateRefusalAlsoSettles(t *testing.T) {
	p, _, _, _, _, _ := newPipeline(t, "pipe_dup_refusal")
	ctx := context.Background()

	// Seed a prior duplicate refusal (not a success).
	rec := &domain.HistoryRecord{
		MessageID:    "m-1",
		AttachmentID: "a-1",
		Error:        domain.ErrMsgAlreadyProcessed,
		ErrorType:    domain.ErrorTypeDuplicate,
	}
	if err := p.History.Append(ctx, rec); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := p.Process(ctx, inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.ErrorType != domain.ErrorTypeDuplicate {
		t.Fatalf("prior refusal must settle: %+v", res)
	}
	if n := historyCount(t, p); n != 1 {
		t.Fatalf("refusal short-circuit appended a record")
	}
}

func TestPipeline_Process_UnsettledDuplicate_Retries(t *testing.T) {
	p, _, _, _, _, _ := newPipeline(t, "pipe_dup_retry")
	ctx := context.Background()

	// Seed a failed prior attempt for the same email ref.
	prior := &domain.HistoryRecord{
		MessageID:    "m-1",
		AttachmentID: "a-1",
		Error:        "destination is frozen",
		ErrorType:    domain.ErrorTypePaymentRejected,
	}
	if err := p.History.Append(ctx, prior); err != nil {
		t.Fatalf("seed: %v", err)
	}

	res, err := p.Process(ctx, inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if !res.Success {
		t.Fatalf("retry should proceed to payment: %+v", res)
	}
	if res.Previous == nil || res.Previous.Error != "destination is frozen" {
		t.Fatalf("retry must surface the prior attempt: %+v", res.Previous)
	}
	if n := historyCount(t, p); n != 2 {
		t.Fatalf("retry must append its own record, rows = %d", n)
	}
}

func TestPipeline_Process_InsufficientFunds(t *testing.T) {
	p, _, funds, _, executor, _ := newPipeline(t, "pipe_funds_short")
	funds.out = FundsCheck{
		Available:   decimal.RequireFromString("100.00"),
		Shortfall:   decimal.RequireFromString("150.00"),
		CheckoutURL: "https://pay.example/top-up",
	}

	res, err := p.Process(context.Background(), inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Success || res.ErrorType != domain.ErrorTypeInsufficientFunds {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Error != "Insufficient funds: required 250.00, available 100.00" {
		t.Fatalf("error message = %q", res.Error)
	}
	if res.CheckoutURL != "https://pay.example/top-up" {
		t.Fatalf("checkout url lost: %+v", res)
	}
	if executor.calls != 0 {
		t.Fatalf("no dispatch may happen on a failed funds gate")
	}
	items, _, _ := p.History.ListPage(context.Background(), 1, 1)
	if items[0].CheckoutURL != res.CheckoutURL {
		t.Fatalf("checkout url not persisted: %+v", items[0])
	}
}

func TestPipeline_Process_FundsCheckError(t *testing.T) {
	p, _, funds, _, _, _ := newPipeline(t, "pipe_funds_err")
	funds.err = errors.New("balance api down")

	res, err := p.Process(context.Background(), inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Success || res.ErrorType != domain.ErrorTypePaymentRejected {
		t.Fatalf("unexpected result: %+v", res)
	}
	if n := historyCount(t, p); n != 1 {
		t.Fatalf("rows = %d; want 1", n)
	}
}

func TestPipeline_Process_PayeeNotFound_AwaitsBankDetails(t *testing.T) {
	p, _, _, resolver, executor, notifier := newPipeline(t, "pipe_awaiting")
	resolver.res = Resolution{Kind: ResolutionNotFound}

	res, err := p.Process(context.Background(), inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Success || res.Status != domain.InvoiceStatusAwaiting {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.ErrorType != domain.ErrorTypePayeeNotFound || !res.EmailSent {
		t.Fatalf("unexpected classification: %+v", res)
	}
	if executor.calls != 0 {
		t.Fatalf("no dispatch without a destination")
	}
	if notifier.calls != 1 {
		t.Fatalf("notifier calls = %d; want 1", notifier.calls)
	}
	if notifier.req.ThreadID != "thr-1" || notifier.req.RecipientEmail != "billing@acme.test" {
		t.Fatalf("request misaddressed: %+v", notifier.req)
	}
	items, _, _ := p.History.ListPage(context.Background(), 1, 1)
	if !items[0].EmailSent {
		t.Fatalf("email_sent not persisted: %+v", items[0])
	}
}

func TestPipeline_Process_PayeeNotFound_NotifyFailureStillPauses(t *testing.T) {
	p, _, _, resolver, _, notifier := newPipeline(t, "pipe_awaiting_nomail")
	resolver.res = Resolution{Kind: ResolutionNotFound}
	notifier.err = errors.New("mail api down")

	res, err := p.Process(context.Background(), inbound())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Status != domain.InvoiceStatusAwaiting || res.ErrorType != domain.ErrorTypePayeeNotFound {
		t.Fatalf("primary outcome must survive a failed notification: %+v", res)
	}
	if res.EmailSent {
		t.Fatalf("email_sent must be false when the reply failed")
	}
}

func TestPipeline_Process_ResolveAndDispatchFailures(t *testing.T) {
	t.Run("resolve error", func(t *testing.T) {
		p, _, _, resolver, _, _ := newPipeline(t, "pipe_resolve_err")
		resolver.resolveErr = errors.New("search down")
		res, err := p.Process(context.Background(), inbound())
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if res.ErrorType != domain.ErrorTypePaymentRejected {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("destination creation error", func(t *testing.T) {
		p, _, _, resolver, _, _ := newPipeline(t, "pipe_ensure_err")
		resolver.ensureErr = errors.New("create payee down")
		res, err := p.Process(context.Background(), inbound())
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if res.ErrorType != domain.ErrorTypePaymentRejected {
			t.Fatalf("unexpected result: %+v", res)
		}
	})

	t.Run("dispatch error preserves provider message", func(t *testing.T) {
		p, _, _, _, executor, _ := newPipeline(t, "pipe_send_err")
		executor.err = errors.New("payman: destination is frozen (status 422)")
		res, err := p.Process(context.Background(), inbound())
		if err != nil {
			t.Fatalf("Process: %v", err)
		}
		if res.ErrorType != domain.ErrorTypePaymentRejected {
			t.Fatalf("unexpected result: %+v", res)
		}
		if !strings.Contains(res.Error, "destination is frozen") {
			t.Fatalf("provider message rewritten: %q", res.Error)
		}
		if n := historyCount(t, p); n != 1 {
			t.Fatalf("rows = %d; want 1", n)
		}
	})
}

func TestPipeline_Process_InvoiceStatusTransitions(t *testing.T) {
	p, _, _, _, _, _ := newPipeline(t, "pipe_status")
	rec := &statusRecorder{}
	p.Invoices = rec

	inv := inbound()
	inv.InvoiceID = "doc-1"
	if _, err := p.Process(context.Background(), inv); err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := []string{"doc-1:processing", "doc-1:paid"}
	if len(rec.transitions) != len(want) {
		t.Fatalf("transitions = %v; want %v", rec.transitions, want)
	}
	for i := range want {
		if rec.transitions[i] != want[i] {
			t.Fatalf("transitions = %v; want %v", rec.transitions, want)
		}
	}
}

func TestPipeline_Process_SettledDuplicateMarksInvoiceFailed(t *testing.T) {
	p, _, _, _, _, _ := newPipeline(t, "pipe_status_dup")
	ctx := context.Background()

	if _, err := p.Process(ctx, inbound()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	rec := &statusRecorder{}
	p.Invoices = rec
	inv := inbound()
	inv.InvoiceID = "doc-2"
	if _, err := p.Process(ctx, inv); err != nil {
		t.Fatalf("second run: %v", err)
	}
	want := []string{"doc-2:processing", "doc-2:failed"}
	if len(rec.transitions) != 2 || rec.transitions[0] != want[0] || rec.transitions[1] != want[1] {
		t.Fatalf("transitions = %v; want %v", rec.transitions, want)
	}
}
