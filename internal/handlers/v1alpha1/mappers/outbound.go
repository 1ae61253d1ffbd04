package mappers

import (
	api "github.com/mist-hpc/mist/api/v1alpha1"
	"github.com/mist-hpc/mist/internal/auth"
	"github.com/mist-hpc/mist/internal/dispatcher"
	"github.com/mist-hpc/mist/internal/store/model"
)

func JobToApi(job model.Job) api.Job {
	return api.Job{
		Id:        job.ID,
		Owner:     job.Owner,
		Payload:   job.Payload,
		State:     api.JobState(job.State),
		Result:    job.Result,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}
}

func JobListToApi(jobs model.JobList) api.JobList {
	list := make(api.JobList, 0, len(jobs))
	for _, j := range jobs {
		list = append(list, JobToApi(j))
	}
	return list
}

func JobCreatedToApi(job model.Job) api.JobCreated {
	return api.JobCreated{Id: job.ID, State: api.JobState(job.State)}
}

func DispatcherStatusToApi(status dispatcher.Status) api.DispatcherStatus {
	return api.DispatcherStatus{
		PoolSize: status.PoolSize,
		Running:  status.Running,
		Free:     status.Free,
		Jobs:     status.Jobs,
	}
}

func IdentityToApi(user auth.User) api.Identity {
	return api.Identity{
		Username:     user.Username,
		Organization: user.Organization,
		Admin:        user.Admin,
	}
}

func CredentialToApi(token auth.Token) api.Credential {
	return api.Credential{
		Type:      token.Scheme,
		Token:     token.Value,
		ExpiresAt: token.ExpiresAt,
	}
}
