package handler

import (
	"context"
	"errors"

	"github.com/iliyamo/marina-payment-relay/internal/model"
	"github.com/iliyamo/marina-payment-relay/internal/processor"
	"github.com/iliyamo/marina-payment-relay/internal/reconcile"
)

var _ reconcile.LedgerStore = (*fakeLedger)(nil)

type fakeLedger struct {
	statuses   map[string]model.PreauthStatus
	payInfo    map[string]*model.StoredPaymentMethod
	attached   map[string]string
	accounts   map[string]string
	writeCount int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		statuses: map[string]model.PreauthStatus{},
		payInfo:  map[string]*model.StoredPaymentMethod{},
		attached: map[string]string{},
		accounts: map[string]string{},
	}
}

func (f *fakeLedger) SaveSetup(_ context.Context, rid string, pm model.StoredPaymentMethod) error {
	f.payInfo[rid] = &pm
	return nil
}

func (f *fakeLedger) GetPayInfo(_ context.Context, rid string) (*model.StoredPaymentMethod, error) {
	return f.payInfo[rid], nil
}

func (f *fakeLedger) SetPreauth(_ context.Context, rid string, status model.PreauthStatus) error {
	f.statuses[rid] = status
	f.writeCount++
	return nil
}

func (f *fakeLedger) AttachPaymentIntent(_ context.Context, rid, piID string) error {
	f.attached[rid] = piID
	return nil
}

func (f *fakeLedger) GetAccount(_ context.Context, location string) (string, error) {
	return f.accounts[location], nil
}

func (f *fakeLedger) SetAccount(_ context.Context, location, accountID string) error {
	f.accounts[location] = accountID
	return nil
}

var _ processor.Client = (*fakeProcessor)(nil)

type fakeProcessor struct {
	sessions    []processor.SessionParams
	chargeErr   error
	chargeCalls int
	accounts    int
	loginErr    error
}

func (f *fakeProcessor) CreateCheckoutSession(_ context.Context, p processor.SessionParams) (*processor.Session, error) {
	f.sessions = append(f.sessions, p)
	return &processor.Session{ID: "cs_test_1", URL: "https://checkout.example/cs_test_1"}, nil
}

func (f *fakeProcessor) RetrieveCheckoutSession(context.Context, string) (*processor.SessionState, error) {
	return nil, errors.New("no such session")
}

func (f *fakeProcessor) RetrieveSetupIntent(context.Context, string) (*processor.SetupResult, error) {
	return nil, errors.New("no such setup intent")
}

func (f *fakeProcessor) RetrievePaymentIntent(context.Context, string) (*processor.IntentState, error) {
	return nil, errors.New("no such payment intent")
}

func (f *fakeProcessor) FindOrCreateCustomer(_ context.Context, email string) (string, error) {
	return "cus_" + email, nil
}

func (f *fakeProcessor) OffSessionCharge(context.Context, processor.ChargeParams) (*processor.ChargeResult, error) {
	f.chargeCalls++
	if f.chargeErr != nil {
		return nil, f.chargeErr
	}
	return &processor.ChargeResult{PaymentIntentID: "pi_charge_1"}, nil
}

func (f *fakeProcessor) CapturePaymentIntent(context.Context, string) error { return nil }
func (f *fakeProcessor) CancelPaymentIntent(context.Context, string) error  { return nil }

func (f *fakeProcessor) CreateAccount(context.Context, string, string, string) (string, error) {
	f.accounts++
	return "acct_new_1", nil
}

func (f *fakeProcessor) OnboardingLink(context.Context, string, string, string) (string, error) {
	return "https://connect.example/onboard", nil
}

func (f *fakeProcessor) LoginLink(context.Context, string) (string, error) {
	if f.loginErr != nil {
		return "", f.loginErr
	}
	return "https://connect.example/login", nil
}
