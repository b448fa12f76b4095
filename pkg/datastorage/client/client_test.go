package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/neurascale/neural-engine/pkg/datastorage/client"
)

func TestDataStorageClient(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Ledger Query Client Test Suite")
}

var _ = Describe("LedgerClient", func() {
	var (
		server   *httptest.Server
		dsClient *client.LedgerClient
		ctx      context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
	})

	AfterEach(func() {
		if server != nil {
			server.Close()
		}
	})

	Context("NewLedgerClient", func() {
		It("should create client with default values", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"session_id": "123", "status": "active"}`))
			}))

			dsClient = client.NewLedgerClient(client.Config{
				BaseURL: server.URL,
			})

			Expect(dsClient).ToNot(BeNil())
		})

		It("should use custom timeout and max connections", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"session_id": "123", "status": "active"}`))
			}))

			dsClient = client.NewLedgerClient(client.Config{
				BaseURL:        server.URL,
				Timeout:        10 * time.Second,
				MaxConnections: 50,
			})

			Expect(dsClient).ToNot(BeNil())
		})
	})

	Context("GetSessionByID", func() {
		It("should successfully get session by ID", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				Expect(r.URL.Path).To(Equal("/v1/sessions/123"))
				Expect(r.Header.Get("X-Request-ID")).ToNot(BeEmpty())
				Expect(r.Header.Get("User-Agent")).To(ContainSubstring("neural-engine-ledger-client"))

				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{
					"session_id": "123",
					"status": "completed",
					"metadata": {"paradigm": "p300"},
					"started_at_ns": 1700000000000000000,
					"ended_at_ns": 1700000600000000000
				}`))
			}))

			dsClient = client.NewLedgerClient(client.Config{
				BaseURL: server.URL,
			})

			session, err := dsClient.GetSessionByID(ctx, "123")

			Expect(err).ToNot(HaveOccurred())
			Expect(session).ToNot(BeNil())
			Expect(session.SessionID).To(Equal("123"))
			Expect(session.Status).To(Equal("completed"))
			Expect(session.Metadata["paradigm"]).To(Equal("p300"))
		})

		It("should send a bearer token when configured", func() {
			var gotAuth string
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotAuth = r.Header.Get("Authorization")
				w.WriteHeader(http.StatusOK)
				_, _ = w.Write([]byte(`{"session_id": "123", "status": "active"}`))
			}))

			dsClient = client.NewLedgerClient(client.Config{BaseURL: server.URL, Token: "secret-token"})

			_, err := dsClient.GetSessionByID(ctx, "123")

			Expect(err).ToNot(HaveOccurred())
			Expect(gotAuth).To(Equal("Bearer secret-token"))
		})

		It("should return nil for non-existent session", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusNotFound)
				_, _ = w.Write([]byte(`{
					"type": "about:blank",
					"title": "Session Not Found",
					"status": 404
				}`))
			}))

			dsClient = client.NewLedgerClient(client.Config{
				BaseURL: server.URL,
			})

			session, err := dsClient.GetSessionByID(ctx, "does-not-exist")

			Expect(err).ToNot(HaveOccurred())
			Expect(session).To(BeNil())
		})

		It("should handle RFC 7807 errors", func() {
			server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusInternalServerError)
				_, _ = w.Write([]byte(`{
					"type": "https://neurascale.io/errors/internal-error",
					"title": "Internal Error",
					"status": 500,
					"detail": "document index unavailable"
				}`))
			}))

			dsClient = client.NewLedgerClient(client.Config{
				BaseURL: server.URL,
			})

			_, err := dsClient.GetSessionByID(ctx, "123")

			Expect(err).To(HaveOccurred())
			Expect(err.Error()).To(ContainSubstring("Internal Error"))
		})
	})
})
