package product

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Route binds one method and path to a handler.
type Route struct {
	Method  string
	Path    string
	Handler gin.HandlerFunc
}

// Routes is the product API route table.
func (h *Handler) Routes() []Route {
	return []Route{
		{Method: http.MethodGet, Path: BasePath, Handler: h.List},
		{Method: http.MethodGet, Path: BasePath + "/:id", Handler: h.FindByID},
		{Method: http.MethodPost, Path: BasePath, Handler: h.Create},
		{Method: http.MethodPut, Path: BasePath + "/:id", Handler: h.Update},
		{Method: http.MethodDelete, Path: BasePath + "/:id", Handler: h.Delete},
	}
}

// RegisterRoutes mounts the route table on r.
func RegisterRoutes(r gin.IRoutes, h *Handler) {
	for _, rt := range h.Routes() {
		r.Handle(rt.Method, rt.Path, rt.Handler)
	}
}
