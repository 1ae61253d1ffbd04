package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/client"
	"github.com/mist-hpc/mist/pkg/requestid"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("gateway client", func() {
	var (
		ctx     context.Context
		server  *httptest.Server
		handler http.HandlerFunc
	)

	BeforeEach(func() {
		ctx = context.Background()
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handler(w, r)
		}))
	})

	AfterEach(func() {
		server.Close()
	})

	reply := func(w http.ResponseWriter, status int, body any) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(body)
	}

	It("submits a job with the saved credential", func() {
		id := uuid.New()
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/jobs"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer tok"))
			Expect(r.Header.Get(requestid.Header)).NotTo(BeEmpty())

			var form api.JobCreate
			Expect(json.NewDecoder(r.Body).Decode(&form)).To(Succeed())
			Expect(form.Payload).To(Equal("echo:hi"))

			reply(w, http.StatusCreated, api.JobCreated{Id: id, State: api.JobStatePending})
		}

		c := client.NewGatewayClient(server.URL+"/", &client.Credential{Type: "Bearer", Token: "tok"})
		created, err := c.SubmitJob(ctx, "echo:hi")
		Expect(err).To(BeNil())
		Expect(created.Id).To(Equal(id))
		Expect(created.State).To(Equal(api.JobStatePending))
	})

	It("sends no authorization header without a credential", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Header.Get("Authorization")).To(BeEmpty())
			reply(w, http.StatusOK, api.Credential{Type: "Session", Token: "sid", ExpiresAt: time.Now().Add(time.Hour)})
		}

		cred, err := client.NewGatewayClient(server.URL, nil).Login(ctx, "alice", "secret-password")
		Expect(err).To(BeNil())
		Expect(cred.Type).To(Equal("Session"))
		Expect(cred.Token).To(Equal("sid"))
	})

	It("encodes the listing filters as query parameters", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Query()["state"]).To(ConsistOf("pending", "running"))
			Expect(r.URL.Query().Get("all")).To(Equal("true"))
			Expect(r.URL.Query().Get("limit")).To(Equal("5"))
			reply(w, http.StatusOK, api.JobList{{Id: uuid.New(), State: api.JobStateRunning}})
		}

		jobs, err := client.NewGatewayClient(server.URL, nil).ListJobs(ctx, client.ListJobsParams{
			States: []string{"pending", "running"},
			All:    true,
			Limit:  5,
		})
		Expect(err).To(BeNil())
		Expect(jobs).To(HaveLen(1))
	})

	It("cancels a job by id", func() {
		id := uuid.New()
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodDelete))
			Expect(r.URL.Path).To(Equal("/jobs/" + id.String()))
			reply(w, http.StatusOK, api.Job{Id: id, State: api.JobStateCancelled})
		}

		job, err := client.NewGatewayClient(server.URL, nil).CancelJob(ctx, id)
		Expect(err).To(BeNil())
		Expect(job.State).To(Equal(api.JobStateCancelled))
	})

	It("reads the dispatcher status", func() {
		running := uuid.New()
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodGet))
			Expect(r.URL.Path).To(Equal("/dispatcher/status"))
			reply(w, http.StatusOK, api.DispatcherStatus{PoolSize: 4, Running: 1, Free: 3, Jobs: []uuid.UUID{running}})
		}

		status, err := client.NewGatewayClient(server.URL, nil).DispatcherStatus(ctx)
		Expect(err).To(BeNil())
		Expect(status.PoolSize).To(Equal(4))
		Expect(status.Free).To(Equal(3))
		Expect(status.Jobs).To(Equal([]uuid.UUID{running}))
	})

	It("logs out without expecting a body", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.Method).To(Equal(http.MethodPost))
			Expect(r.URL.Path).To(Equal("/auth/logout"))
			Expect(r.Header.Get("Authorization")).To(Equal("Session sid"))
			w.WriteHeader(http.StatusNoContent)
		}

		c := client.NewGatewayClient(server.URL, &client.Credential{Type: "Session", Token: "sid"})
		Expect(c.Logout(ctx)).To(Succeed())
	})

	It("returns the gateway error body as an APIError", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			reply(w, http.StatusForbidden, api.Error{Code: api.ErrorCodeForbidden, Message: "job belongs to another user"})
		}

		_, err := client.NewGatewayClient(server.URL, nil).GetJob(ctx, uuid.New())
		Expect(err).NotTo(BeNil())

		var apiErr *client.APIError
		Expect(errors.As(err, &apiErr)).To(BeTrue())
		Expect(apiErr.StatusCode).To(Equal(http.StatusForbidden))
		Expect(apiErr.Body.Code).To(Equal(api.ErrorCodeForbidden))
		Expect(apiErr.Error()).To(ContainSubstring("job belongs to another user"))
	})

	It("reports a bare status when the error body is not json", func() {
		handler = func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}

		_, err := client.NewGatewayClient(server.URL, nil).WhoAmI(ctx)
		Expect(err).To(MatchError("gateway returned status 502"))
	})
})
