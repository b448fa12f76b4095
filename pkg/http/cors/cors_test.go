package cors_test

import (
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	neuralcors "github.com/neurascale/neural-engine/pkg/http/cors"
)

func TestCors(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "CORS Suite")
}

var _ = Describe("Control-Plane CORS Policy", func() {
	var testHandler http.Handler

	BeforeEach(func() {
		testHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
	})

	AfterEach(func() {
		_ = os.Unsetenv("CORS_ALLOWED_ORIGINS")
		_ = os.Unsetenv("CORS_ALLOWED_METHODS")
		_ = os.Unsetenv("CORS_ALLOWED_HEADERS")
		_ = os.Unsetenv("CORS_ALLOW_CREDENTIALS")
		_ = os.Unsetenv("CORS_MAX_AGE")
		_ = os.Unsetenv("CORS_EXPOSED_HEADERS")
	})

	Context("Cross-Origin Request Authorization", func() {
		DescribeTable("should authorize/deny cross-origin requests based on origin whitelist",
			func(configuredOrigins, requestOrigin string, shouldBeAuthorized bool) {
				_ = os.Setenv("CORS_ALLOWED_ORIGINS", configuredOrigins)
				opts := neuralcors.FromEnvironment()
				handler := neuralcors.Handler(opts)(testHandler)

				req := httptest.NewRequest("GET", "/v1/devices", nil)
				req.Header.Set("Origin", requestOrigin)
				rec := httptest.NewRecorder()

				handler.ServeHTTP(rec, req)

				allowOrigin := rec.Header().Get("Access-Control-Allow-Origin")
				if shouldBeAuthorized {
					Expect(allowOrigin).To(SatisfyAny(Equal(requestOrigin), Equal("*")))
				} else {
					Expect(allowOrigin).ToNot(Equal(requestOrigin))
				}
			},
			Entry("exact match from whitelist → authorized", "https://console.neurascale.io", "https://console.neurascale.io", true),
			Entry("origin not in whitelist → blocked", "https://console.neurascale.io", "https://malicious-site.example", false),
			Entry("wildcard origin → any origin authorized", "*", "https://any-site.example.com", true),
		)
	})

	Context("HTTP Method Authorization via Preflight", func() {
		It("should permit configured methods for cross-origin requests", func() {
			_ = os.Setenv("CORS_ALLOWED_ORIGINS", "*")
			_ = os.Setenv("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE")
			opts := neuralcors.FromEnvironment()
			handler := neuralcors.Handler(opts)(testHandler)

			req := httptest.NewRequest("OPTIONS", "/v1/devices/dev-1/connect", nil)
			req.Header.Set("Origin", "https://console.neurascale.io")
			req.Header.Set("Access-Control-Request-Method", "POST")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Methods")).To(ContainSubstring("POST"))
		})
	})

	Context("Development Defaults", func() {
		It("should allow any origin when unconfigured", func() {
			opts := neuralcors.FromEnvironment()
			handler := neuralcors.Handler(opts)(testHandler)

			req := httptest.NewRequest("GET", "/v1/devices", nil)
			req.Header.Set("Origin", "http://localhost:3000")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			allowOrigin := rec.Header().Get("Access-Control-Allow-Origin")
			Expect(allowOrigin).To(SatisfyAny(Equal("*"), Equal("http://localhost:3000")))
		})

		It("should include standard methods by default", func() {
			opts := neuralcors.FromEnvironment()
			Expect(opts.AllowedMethods).To(ContainElements("GET", "POST", "PUT", "DELETE", "OPTIONS"))
		})
	})

	Context("Preflight Request Handling", func() {
		It("should respond to preflight OPTIONS with CORS headers", func() {
			_ = os.Setenv("CORS_ALLOWED_ORIGINS", "https://console.neurascale.io")
			opts := neuralcors.FromEnvironment()
			handler := neuralcors.Handler(opts)(testHandler)

			req := httptest.NewRequest("OPTIONS", "/v1/ingest/neural-data", nil)
			req.Header.Set("Origin", "https://console.neurascale.io")
			req.Header.Set("Access-Control-Request-Method", "POST")
			req.Header.Set("Access-Control-Request-Headers", "Content-Type,Authorization")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Origin")).ToNot(BeEmpty())
			Expect(rec.Header().Get("Access-Control-Allow-Methods")).ToNot(BeEmpty())
		})

		It("should include Max-Age header for preflight caching", func() {
			_ = os.Setenv("CORS_ALLOWED_ORIGINS", "*")
			opts := neuralcors.FromEnvironment()
			handler := neuralcors.Handler(opts)(testHandler)

			req := httptest.NewRequest("OPTIONS", "/v1/devices", nil)
			req.Header.Set("Origin", "https://console.neurascale.io")
			req.Header.Set("Access-Control-Request-Method", "GET")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Max-Age")).ToNot(BeEmpty())
		})
	})

	Context("Configuration Safety Classification", func() {
		DescribeTable("should correctly classify configuration security level",
			func(origins []string, isSecure bool) {
				opts := &neuralcors.Options{AllowedOrigins: origins}
				Expect(opts.IsProduction()).To(Equal(isSecure))
			},
			Entry("wildcard is insecure", []string{"*"}, false),
			Entry("explicit single origin is secure", []string{"https://console.neurascale.io"}, true),
			Entry("empty origins is insecure", []string{}, false),
			Entry("wildcard mixed with specific is insecure", []string{"https://console.neurascale.io", "*"}, false),
		)
	})

	Context("Credentials Handling", func() {
		It("should include credentials header when configured", func() {
			_ = os.Setenv("CORS_ALLOWED_ORIGINS", "https://console.neurascale.io")
			_ = os.Setenv("CORS_ALLOW_CREDENTIALS", "true")
			opts := neuralcors.FromEnvironment()
			handler := neuralcors.Handler(opts)(testHandler)

			req := httptest.NewRequest("GET", "/v1/devices", nil)
			req.Header.Set("Origin", "https://console.neurascale.io")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Credentials")).To(Equal("true"))
		})

		It("should not include credentials header by default", func() {
			_ = os.Setenv("CORS_ALLOWED_ORIGINS", "*")
			opts := neuralcors.FromEnvironment()
			handler := neuralcors.Handler(opts)(testHandler)

			req := httptest.NewRequest("GET", "/v1/devices", nil)
			req.Header.Set("Origin", "https://console.neurascale.io")
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			Expect(rec.Header().Get("Access-Control-Allow-Credentials")).ToNot(Equal("true"))
		})
	})
})
