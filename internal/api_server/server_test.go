package apiserver_test

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"time"

	api "github.com/mist-hpc/mist/api/v1alpha1"
	apiserver "github.com/mist-hpc/mist/internal/api_server"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/config"
	"github.com/mist-hpc/mist/internal/dispatcher"
	handlers "github.com/mist-hpc/mist/internal/handlers/v1alpha1"
	"github.com/mist-hpc/mist/internal/handlers/validator"
	"github.com/mist-hpc/mist/internal/service"
	"github.com/mist-hpc/mist/internal/store"
	"github.com/mist-hpc/mist/internal/store/model"
	"github.com/mist-hpc/mist/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("api server", func() {
	var (
		cfg    *config.Config
		s      store.Store
		d      *dispatcher.Dispatcher
		server *apiserver.Server
	)

	BeforeEach(func() {
		cfg = config.NewDefault()
		s = store.NewMemoryStore()

		mux := dispatcher.NewBuiltinMux()
		cfg.Service.Dispatcher.TickInterval = 10 * time.Millisecond
		d = dispatcher.New(s.Job(), mux, cfg.Service.Dispatcher)

		v := validator.NewValidator()
		v.Register(validator.NewJobValidationRules(mux)...)
		v.Register(validator.NewLoginValidationRules()...)

		authenticator, err := auth.NewNoneAuthenticator()
		Expect(err).To(BeNil())

		h := handlers.NewServiceHandler(
			service.NewJobService(s, d, service.WithPayloadValidator(mux)),
			service.NewAuthService(s, nil),
			v,
		)
		server = apiserver.New(cfg, nil, h, authenticator)
	})

	It("acknowledges liveness probes", func() {
		for _, path := range []string{"/", "/health"} {
			rr := httptest.NewRecorder()
			server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
			Expect(rr.Header().Get(requestid.Header)).NotTo(BeEmpty())
		}
	})

	It("echoes the caller's request id", func() {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(requestid.Header, "req-42")
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, req)
		Expect(rr.Header().Get(requestid.Header)).To(Equal("req-42"))
	})

	It("serves the job routes at the root and under the gateway prefix", func() {
		router := server.Router()

		for _, prefix := range []string{"", "/api/v1"} {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, prefix+"/jobs", strings.NewReader(`{"payload":"echo:hi"}`)))
			Expect(rr.Code).To(Equal(http.StatusCreated), prefix)

			var created api.JobCreated
			Expect(json.Unmarshal(rr.Body.Bytes(), &created)).To(Succeed())
			Expect(created.State).To(Equal(api.JobStatePending))

			rr = httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, prefix+"/jobs/"+created.Id.String(), nil))
			Expect(rr.Code).To(Equal(http.StatusOK))
		}
	})

	It("serves the dispatcher status at the root and under the gateway prefix", func() {
		for _, prefix := range []string{"", "/api/v1"} {
			rr := httptest.NewRecorder()
			server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, prefix+"/dispatcher/status", nil))
			Expect(rr.Code).To(Equal(http.StatusOK), prefix)

			var status api.DispatcherStatus
			Expect(json.Unmarshal(rr.Body.Bytes(), &status)).To(Succeed())
			Expect(status.PoolSize).To(Equal(cfg.Service.Dispatcher.PoolSize))
			Expect(status.Free).To(Equal(status.PoolSize))
		}
	})

	It("answers unknown routes with a json error", func() {
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
		Expect(rr.Code).To(Equal(http.StatusNotFound))

		var e api.Error
		Expect(json.Unmarshal(rr.Body.Bytes(), &e)).To(Succeed())
		Expect(e.Code).To(Equal(api.ErrorCodeNotFound))
	})

	It("does not offer login when credentials come from elsewhere", func() {
		rr := httptest.NewRecorder()
		server.Router().ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{"username":"batman","password":"secret"}`)))
		Expect(rr.Code).To(Equal(http.StatusNotFound))
	})

	It("runs the echo scenario end to end", func() {
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		listener, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).To(BeNil())
		srv := apiserver.New(cfg, listener, handlersFor(s, d), mustNone())

		serverDone := make(chan error, 1)
		go func() { serverDone <- srv.Run(ctx) }()
		go func() { _ = d.Run(ctx) }()

		base := "http://" + listener.Addr().String()
		resp, err := http.Post(base+"/api/v1/jobs", "application/json", strings.NewReader(`{"payload":"echo:hi"}`))
		Expect(err).To(BeNil())
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))
		var created api.JobCreated
		Expect(json.NewDecoder(resp.Body).Decode(&created)).To(Succeed())
		resp.Body.Close()

		Eventually(func() api.JobState {
			resp, err := http.Get(base + "/jobs/" + created.Id.String())
			Expect(err).To(BeNil())
			defer resp.Body.Close()
			body, _ := io.ReadAll(resp.Body)
			var job api.Job
			Expect(json.Unmarshal(body, &job)).To(Succeed())
			if job.State == api.JobStateSucceeded {
				Expect(job.Result).NotTo(BeNil())
				Expect(*job.Result).To(Equal("hi"))
			}
			return job.State
		}).Should(Equal(api.JobStateSucceeded))

		cancel()
		Eventually(serverDone).Should(Receive(BeNil()))

		job, err := s.Job().Get(context.TODO(), created.Id)
		Expect(err).To(BeNil())
		Expect(job.State).To(Equal(model.JobStateSucceeded))
	})
})

func handlersFor(s store.Store, d *dispatcher.Dispatcher) *handlers.ServiceHandler {
	mux := dispatcher.NewBuiltinMux()
	v := validator.NewValidator()
	v.Register(validator.NewJobValidationRules(mux)...)
	v.Register(validator.NewLoginValidationRules()...)
	return handlers.NewServiceHandler(
		service.NewJobService(s, d, service.WithPayloadValidator(mux)),
		service.NewAuthService(s, nil),
		v,
	)
}

func mustNone() auth.Authenticator {
	a, err := auth.NewNoneAuthenticator()
	Expect(err).To(BeNil())
	return a
}
