package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neurascale/neural-engine/pkg/api"
)

func TestAPI(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "pkg/api Suite")
}

type fakeAccessLedger struct {
	granted []string
	denied  []string
}

func (f *fakeAccessLedger) RecordAccessGranted(_ context.Context, _, _, scope string) error {
	f.granted = append(f.granted, scope)
	return nil
}

func (f *fakeAccessLedger) RecordAccessDenied(_ context.Context, _, _, scope string) error {
	f.denied = append(f.denied, scope)
	return nil
}

var _ = Describe("RequireScope", func() {
	var (
		verifier api.StaticTokenVerifier
		ledger   *fakeAccessLedger
		called   bool
	)

	okHandler := func() http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called = true
			w.WriteHeader(http.StatusOK)
		})
	}

	BeforeEach(func() {
		called = false
		ledger = &fakeAccessLedger{}
		verifier = api.StaticTokenVerifier{
			"reader-token": api.Principal{ID: "p1", Scopes: []string{"read:sessions"}},
			"admin-token":  api.Principal{ID: "p2", Scopes: []string{"admin:*"}},
		}
	})

	It("rejects a request with no Authorization header", func() {
		mw := api.RequireScope("read:sessions", verifier, ledger, testLogger())
		req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
		rr := httptest.NewRecorder()

		mw(okHandler()).ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		Expect(called).To(BeFalse())
		var problem map[string]interface{}
		Expect(json.NewDecoder(rr.Body).Decode(&problem)).To(Succeed())
		Expect(problem["type"]).To(ContainSubstring("authentication-required"))
	})

	It("rejects an unrecognized bearer token", func() {
		mw := api.RequireScope("read:sessions", verifier, ledger, testLogger())
		req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
		req.Header.Set("Authorization", "Bearer not-a-real-token")
		rr := httptest.NewRecorder()

		mw(okHandler()).ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusUnauthorized))
		Expect(called).To(BeFalse())
	})

	It("rejects a recognized principal lacking the required scope", func() {
		mw := api.RequireScope("write:neural_data", verifier, ledger, testLogger())
		req := httptest.NewRequest(http.MethodPost, "/v1/session/start", nil)
		req.Header.Set("Authorization", "Bearer reader-token")
		rr := httptest.NewRecorder()

		mw(okHandler()).ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusForbidden))
		Expect(called).To(BeFalse())
		Expect(ledger.denied).To(ContainElement("write:neural_data"))
		var problem map[string]interface{}
		Expect(json.NewDecoder(rr.Body).Decode(&problem)).To(Succeed())
		Expect(problem["type"]).To(ContainSubstring("permission-denied"))
	})

	It("allows a request whose principal has the exact scope", func() {
		mw := api.RequireScope("read:sessions", verifier, ledger, testLogger())
		req := httptest.NewRequest(http.MethodGet, "/v1/devices", nil)
		req.Header.Set("Authorization", "Bearer reader-token")
		rr := httptest.NewRecorder()

		mw(okHandler()).ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(called).To(BeTrue())
		Expect(ledger.granted).To(ContainElement("read:sessions"))
	})

	It("allows any scope for a principal holding admin:*", func() {
		mw := api.RequireScope("execute:analysis", verifier, ledger, testLogger())
		req := httptest.NewRequest(http.MethodGet, "/v1/ledger/verify", nil)
		req.Header.Set("Authorization", "Bearer admin-token")
		rr := httptest.NewRecorder()

		mw(okHandler()).ServeHTTP(rr, req)

		Expect(rr.Code).To(Equal(http.StatusOK))
		Expect(called).To(BeTrue())
	})
})
