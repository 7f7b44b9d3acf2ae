package controllers

import (
	_ "embed"
	"net/http"
)

//go:embed openapi.json
var openAPIDocument []byte

// OpenAPIController serves the API description
type OpenAPIController struct{}

// NewOpenAPIController creates a new OpenAPI controller
func NewOpenAPIController() *OpenAPIController {
	return &OpenAPIController{}
}

// Document handles GET /openapi/v1.json
func (c *OpenAPIController) Document(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	_, _ = w.Write(openAPIDocument)
}
