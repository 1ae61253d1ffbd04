package mappers

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/mist-hpc/mist/internal/service"
	"github.com/mist-hpc/mist/internal/store/model"
)

// JobFilterFromQuery reads ?state= (repeatable or comma separated), ?all= and ?limit=.
func JobFilterFromQuery(query url.Values) (*service.JobFilter, error) {
	filter := service.NewJobFilter()

	for _, raw := range query["state"] {
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			state, err := model.ParseJobState(s)
			if err != nil {
				return nil, err
			}
			filter = filter.WithOption(service.WithStates(state))
		}
	}

	if raw := query.Get("all"); raw != "" {
		all, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid value %q for all", raw)
		}
		if all {
			filter = filter.WithOption(service.WithAllOwners())
		}
	}

	if raw := query.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return nil, fmt.Errorf("invalid value %q for limit", raw)
		}
		filter = filter.WithOption(service.WithLimit(limit))
	}

	return filter, nil
}
