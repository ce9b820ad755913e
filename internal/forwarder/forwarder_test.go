package forwarder_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing/iotest"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/hostproxy/internal/circuitbreaker"
	"github.com/angeloszaimis/hostproxy/internal/forwarder"
	"github.com/angeloszaimis/hostproxy/internal/metrics"
	"github.com/angeloszaimis/hostproxy/internal/resolver"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func routesFor(destination string) string {
	return "frontend :80\n" +
		"use_backend b1 if { req.hdr(host) -i api.example.com }\n" +
		"backend b1\n" +
		"server s1 " + destination + "\n"
}

func okResponse(body string) *http.Response {
	return &http.Response{
		StatusCode: http.StatusOK,
		Header:     http.Header{"Content-Type": []string{"text/plain"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

var _ = Describe("Forwarder", func() {
	var (
		tempDir string
		path    string
		log     *slog.Logger
		calls   atomic.Int32
		seen    *http.Request
		seenRaw []byte
	)

	writeRoutes := func(content string) {
		Expect(os.WriteFile(path, []byte(content), 0644)).To(Succeed())
	}

	recordingClient := func(respond func(*http.Request) (*http.Response, error)) *http.Client {
		return &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
			calls.Add(1)
			seen = r
			if r.Body != nil {
				seenRaw, _ = io.ReadAll(r.Body)
			}
			return respond(r)
		})}
	}

	newForwarder := func(client *http.Client, opts forwarder.Options) *forwarder.Forwarder {
		opts.Resolver = resolver.NewPerRequest(path, nil)
		opts.Client = client
		opts.Logger = log
		return forwarder.New(opts)
	}

	serve := func(f http.Handler, req *http.Request) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		f.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "forwarder-test-*")
		Expect(err).NotTo(HaveOccurred())

		path = filepath.Join(tempDir, "haproxy.cfg")
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		calls.Store(0)
		seen, seenRaw = nil, nil
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Context("with a matching host", func() {
		BeforeEach(func() {
			writeRoutes(routesFor("10.0.0.5:9000"))
		})

		It("should forward to the resolved destination", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse("widgets"), nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/widgets?page=2", nil)
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(w.Body.String()).To(Equal("widgets"))
			Expect(calls.Load()).To(Equal(int32(1)))
			Expect(seen.URL.String()).To(Equal("http://10.0.0.5:9000/widgets?page=2"))
			Expect(seen.Host).To(Equal("api.example.com"))
		})

		It("should use the configured scheme", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{Scheme: "https"})

			req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
			req.Host = "api.example.com"
			serve(f, req)

			Expect(seen.URL.Scheme).To(Equal("https"))
		})

		It("should preserve method and body bytes", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{})

			payload := "{\"name\":\"sprocket\"}\x00\xff"
			req := httptest.NewRequest(http.MethodPatch, "/widgets/7", strings.NewReader(payload))
			req.Host = "api.example.com"
			req.Header.Set("X-Request-Id", "abc")
			serve(f, req)

			Expect(seen.Method).To(Equal(http.MethodPatch))
			Expect(string(seenRaw)).To(Equal(payload))
			Expect(seen.Header.Get("X-Request-Id")).To(Equal("abc"))
		})

		It("should drop invalid request headers and count them", func() {
			collector := metrics.NewCollector(10, log)
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{Collector: collector})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			req.Header["X-Bad"] = []string{"line\x00break"}
			req.Header["Bad Name"] = []string{"value"}
			req.Header.Set("X-Good", "fine")
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusOK))
			Expect(seen.Header).NotTo(HaveKey("X-Bad"))
			Expect(seen.Header).NotTo(HaveKey("Bad Name"))
			Expect(seen.Header.Get("X-Good")).To(Equal("fine"))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(collector.Run(ctx)).To(Succeed())
			Expect(collector.Snapshot("first").DroppedHeaders[metrics.DirectionRequest]).To(Equal(int64(2)))
		})

		It("should not relay hop-by-hop headers", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				resp := okResponse("")
				resp.Header.Set("Connection", "X-Trace")
				resp.Header.Set("X-Trace", "1")
				resp.Header.Set("X-Kept", "1")
				return resp, nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			req.Header.Set("Keep-Alive", "timeout=5")
			w := serve(f, req)

			Expect(seen.Header).NotTo(HaveKey("Keep-Alive"))
			Expect(w.Header()).NotTo(HaveKey("X-Trace"))
			Expect(w.Header().Get("X-Kept")).To(Equal("1"))
		})

		It("should reject an invalid method with 500", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			req.Method = "BAD("
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("invalid HTTP method"))
			Expect(calls.Load()).To(BeZero())
		})

		It("should answer 500 for an out of range upstream status", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				resp := okResponse("odd")
				resp.StatusCode = 1000
				return resp, nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("invalid response status"))
		})

		It("should answer 500 without partial output when the body cannot be read", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				resp := okResponse("")
				resp.Header.Set("X-Upstream", "yes")
				resp.Body = io.NopCloser(io.MultiReader(strings.NewReader("partial"), iotest.ErrReader(errors.New("reset"))))
				return resp, nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(Equal("failed to read response body\n"))
			Expect(w.Header()).NotTo(HaveKey("X-Upstream"))
		})

		It("should answer 400 when the request body cannot be read", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodPost, "/", iotest.ErrReader(errors.New("client reset")))
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusBadRequest))
			Expect(calls.Load()).To(BeZero())
		})

		It("should answer 502 and stop dialing once the circuit opens", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return nil, errors.New("connection refused")
			}), forwarder.Options{Breakers: circuitbreaker.NewRegistry(1, time.Minute)})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"

			w := serve(f, req)
			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(ContainSubstring("Bad Gateway"))

			w = serve(f, req)
			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(ContainSubstring("upstream circuit open"))
			Expect(calls.Load()).To(Equal(int32(1)))
		})
	})

	Context("with an unmatched host", func() {
		It("should answer 503 without an outbound call", func() {
			writeRoutes(routesFor("10.0.0.5:9000"))
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/widgets", nil)
			req.Host = "other.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusServiceUnavailable))
			Expect(w.Body.String()).To(ContainSubstring("no route for host"))
			Expect(calls.Load()).To(BeZero())
		})

		It("should count unmatched hosts under one bucket", func() {
			writeRoutes(routesFor("10.0.0.5:9000"))
			collector := metrics.NewCollector(512, log)
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{Collector: collector})

			const unmatched = 100
			for i := range unmatched {
				req := httptest.NewRequest(http.MethodGet, "/", nil)
				req.Host = fmt.Sprintf("h%d.attacker.example", i)
				Expect(serve(f, req).Code).To(Equal(http.StatusServiceUnavailable))
			}

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			Expect(serve(f, req).Code).To(Equal(http.StatusOK))

			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			Expect(collector.Run(ctx)).To(Succeed())

			snap := collector.Snapshot("first")
			Expect(snap.Hosts).To(HaveLen(2))
			Expect(snap.Hosts).To(HaveKeyWithValue(metrics.UnroutedHost, int64(unmatched)))
			Expect(snap.Hosts).To(HaveKeyWithValue("api.example.com", int64(1)))
			Expect(snap.TotalRequests).To(Equal(int64(unmatched + 1)))
		})
	})

	Context("with a broken routing file", func() {
		It("should answer 500 and recover once the file exists", func() {
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse("ok"), nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"

			w := serve(f, req)
			Expect(w.Code).To(Equal(http.StatusInternalServerError))
			Expect(w.Body.String()).To(ContainSubstring("failed to load routing config"))
			Expect(calls.Load()).To(BeZero())

			writeRoutes(routesFor("10.0.0.5:9000"))
			w = serve(f, req)
			Expect(w.Code).To(Equal(http.StatusOK))
		})

		It("should answer 500 for a syntax error", func() {
			writeRoutes("frontend :80\nuse_backend\n")
			f := newForwarder(recordingClient(func(*http.Request) (*http.Response, error) {
				return okResponse(""), nil
			}), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			Expect(serve(f, req).Code).To(Equal(http.StatusInternalServerError))
		})
	})

	Context("with a real upstream", func() {
		var upstream *httptest.Server

		BeforeEach(func() {
			upstream = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path == "/old" {
					http.Redirect(w, r, "/new", http.StatusFound)
					return
				}
				body, _ := io.ReadAll(r.Body)
				w.Header().Set("X-Upstream-Host", r.Host)
				w.WriteHeader(http.StatusCreated)
				w.Write([]byte(r.Method + " " + string(body)))
			}))
			writeRoutes(routesFor(strings.TrimPrefix(upstream.URL, "http://")))
		})

		AfterEach(func() {
			upstream.Close()
		})

		It("should relay status, headers and body verbatim", func() {
			f := newForwarder(forwarder.NewClient(5*time.Second), forwarder.Options{})

			req := httptest.NewRequest(http.MethodPost, "/items", strings.NewReader("payload"))
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusCreated))
			Expect(w.Body.String()).To(Equal("POST payload"))
			Expect(w.Header().Get("X-Upstream-Host")).To(Equal("api.example.com"))
		})

		It("should relay redirects instead of following them", func() {
			f := newForwarder(forwarder.NewClient(5*time.Second), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/old", nil)
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusFound))
			Expect(w.Header().Get("Location")).To(Equal("/new"))
		})
	})

	Context("with a refused connection", func() {
		It("should answer 502 with the transport error", func() {
			listener, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())
			addr := listener.Addr().String()
			listener.Close()

			writeRoutes(routesFor(addr))
			f := newForwarder(forwarder.NewClient(5*time.Second), forwarder.Options{})

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Host = "api.example.com"
			w := serve(f, req)

			Expect(w.Code).To(Equal(http.StatusBadGateway))
			Expect(w.Body.String()).To(HavePrefix("Bad Gateway: "))
			Expect(w.Body.String()).To(ContainSubstring(addr))
		})
	})
})
