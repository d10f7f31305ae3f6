package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/listenup/listenup/common/gerror"
	"github.com/listenup/listenup/common/models"
)

// JobIDParam extracts a job ID from the url parameters on the supplied request.
func JobIDParam(r *http.Request) (models.JobID, error) {
	idStr := chi.URLParam(r, "job_id")
	if idStr == "" {
		return "", gerror.NewErrValidationFailed("A job id must be supplied")
	}
	return models.JobID(idStr), nil
}

// UserIDParam extracts a user ID from the url parameters on the supplied request.
func UserIDParam(r *http.Request) (models.UserID, error) {
	idStr := chi.URLParam(r, "user_id")
	if idStr == "" {
		return "", gerror.NewErrValidationFailed("A user id must be supplied")
	}
	return models.UserID(idStr), nil
}
