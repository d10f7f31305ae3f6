package routes

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/listenup/listenup/common/models"
)

type RequestContext interface {
	BaseURL() string
}

type HTTPRequestCtx struct {
	scheme string
	host   string
}

func RequestCtx(r *http.Request) *HTTPRequestCtx {
	return &HTTPRequestCtx{
		scheme: scheme(r),
		host:   host(r),
	}
}

func (r *HTTPRequestCtx) BaseURL() string {
	return fmt.Sprintf("%s://%s", r.scheme, r.host)
}

func (r *HTTPRequestCtx) String() string {
	return r.BaseURL()
}

// scheme returns the original scheme (http or https) the client specified when making the request.
func scheme(r *http.Request) string {
	if r.URL.Scheme == "https" || r.TLS != nil {
		return "https"
	}
	if strings.ToLower(r.Header.Get("X-Forwarded-Proto")) == "https" {
		return "https"
	}
	return "http"
}

// host returns the original host the client specified when making the request.
func host(r *http.Request) string {
	if r.Header.Get("X-Forwarded-Host") != "" {
		return r.Header.Get("X-Forwarded-Host")
	}
	return r.Host
}

func MakeJobsLink(rctx RequestContext) string {
	return fmt.Sprintf("%s/api/v1/jobs", rctx.BaseURL())
}

func MakeJobLink(rctx RequestContext, jobID models.JobID) string {
	return fmt.Sprintf("%s/%s", MakeJobsLink(rctx), jobID)
}

func MakeJobEventsLink(rctx RequestContext, jobID models.JobID) string {
	return fmt.Sprintf("%s/events", MakeJobLink(rctx, jobID))
}

func MakeJobRetryLink(rctx RequestContext, jobID models.JobID) string {
	return fmt.Sprintf("%s/retry", MakeJobLink(rctx, jobID))
}

func MakeUserJobsLink(rctx RequestContext, userID models.UserID) string {
	return fmt.Sprintf("%s/api/v1/users/%s/jobs", rctx.BaseURL(), userID)
}

// MakeUserAssetsLink returns the listing URL for a user's upload area, scoped
// to folder if one is given.
func MakeUserAssetsLink(rctx RequestContext, userID models.UserID, folder string) string {
	link := fmt.Sprintf("%s/api/v1/users/%s/assets", rctx.BaseURL(), userID)
	if folder != "" {
		link = fmt.Sprintf("%s?folder=%s", link, url.QueryEscape(folder))
	}
	return link
}
