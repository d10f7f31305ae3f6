package server

import (
	"net/http"

	"github.com/listenup/listenup/common/logger"
	"github.com/listenup/listenup/common/version"
	"github.com/listenup/listenup/server/api/rest/documents"
	"github.com/listenup/listenup/server/api/rest/routes"
)

var rootDocumentPaths = map[string]func(ctx routes.RequestContext) string{
	"jobs_url": routes.MakeJobsLink,
}

type RootAPI struct {
	*APIBase
}

func NewRootAPI(logFactory logger.LogFactory) *RootAPI {
	return &RootAPI{
		APIBase: NewAPIBase(logFactory("RootAPI")),
	}
}

func (a *RootAPI) GetRootDocument(w http.ResponseWriter, r *http.Request) {
	res := make(documents.GetRootDocumentResponse)
	for name, fn := range rootDocumentPaths {
		res[name] = fn(routes.RequestCtx(r))
	}
	if v := version.VersionToString(); v != "" {
		res["version"] = v
	}
	a.JSON(w, r, res)
}
