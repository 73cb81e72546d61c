package handlers

import (
	"net/http"

	"github.com/vango-go/interview-live/pkg/core"
	"github.com/vango-go/interview-live/pkg/gateway/mw"
)

// NotFoundHandler answers unrouted paths with the JSON error envelope.
type NotFoundHandler struct{}

func (h NotFoundHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())
	writeCoreErrorJSON(w, reqID, &core.Error{
		Type:    core.ErrNotFound,
		Message: "not found",
		Param:   r.URL.Path,
	}, http.StatusNotFound)
}
