package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/pridehealth/portal-api/internal/booking"
	"github.com/pridehealth/portal-api/internal/intents"
)

type stubIntentGetter struct {
	intent *intents.PaymentIntent
	err    error
}

func (s *stubIntentGetter) GetByID(ctx context.Context, id uuid.UUID) (*intents.PaymentIntent, error) {
	return s.intent, s.err
}

func TestFakeCheckoutPage(t *testing.T) {
	intentID := uuid.New()
	store := &stubIntentGetter{intent: &intents.PaymentIntent{
		ID:          intentID,
		AmountCents: 8000,
		Currency:    "USD",
	}}
	h := NewFakePaymentsHandler(store, &stubConfirmations{}, nil)

	srv := httptest.NewServer(h.Routes())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/payments/fake/" + intentID.String())
	if err != nil {
		t.Fatalf("get checkout page: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var buf bytes.Buffer
	buf.ReadFrom(resp.Body)
	if !strings.Contains(buf.String(), "$80.00") {
		t.Errorf("expected formatted amount in page, got %s", buf.String())
	}
}

func TestFakeCheckoutPageNotFound(t *testing.T) {
	h := NewFakePaymentsHandler(&stubIntentGetter{err: intents.ErrIntentNotFound}, &stubConfirmations{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/payments/fake/"+uuid.NewString(), nil)
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestFakeCompleteConfirmsBooking(t *testing.T) {
	intentID := uuid.New()
	confirmations := &stubConfirmations{result: &booking.ConfirmationResult{Outcome: booking.OutcomeConfirmed}}
	h := NewFakePaymentsHandler(&stubIntentGetter{}, confirmations, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, fmt.Sprintf("/payments/fake/%s/complete", intentID), nil)
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(confirmations.calls) != 1 {
		t.Fatalf("expected 1 confirmation, got %d", len(confirmations.calls))
	}
	got := confirmations.calls[0]
	if got.Gateway != "fake" || got.ExternalReference != "fake:"+intentID.String() || !got.Succeeded {
		t.Errorf("unexpected confirmation: %+v", got)
	}
}

func TestFakeCompleteRejectsBadID(t *testing.T) {
	h := NewFakePaymentsHandler(&stubIntentGetter{}, &stubConfirmations{}, nil)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/payments/fake/not-a-uuid/complete", nil)
	h.Routes().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
