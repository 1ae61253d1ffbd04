package v1alpha1

import (
	"net/http"

	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/handlers/v1alpha1/mappers"
	"github.com/mist-hpc/mist/pkg/log"
)

// Liveness answers with a constant acknowledgement.
func Liveness(w http.ResponseWriter, r *http.Request) {
	respond(w, r, http.StatusOK, api.Status{Status: "ok"})
}

func (h *ServiceHandler) GetDispatcherStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := log.NewDebugLogger("dispatcher_handler").WithContext(ctx).Operation("get_dispatcher_status").Build()

	user := auth.MustHaveUser(ctx)

	status, err := h.jobSrv.DispatcherStatus(ctx, &user)
	if err != nil {
		logger.Error(err).Log()
		respondServiceError(w, r, err, "get dispatcher status")
		return
	}

	logger.Success().Log()
	respond(w, r, http.StatusOK, mappers.DispatcherStatusToApi(*status))
}
