//go:build swagger

package httpapi

import (
	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/swaggo/swag"
)

const docTemplate = `{
  "swagger": "2.0",
  "info": {"title": "{{.Title}}", "version": "{{.Version}}", "description": "{{escape .Description}}"},
  "basePath": "{{.BasePath}}",
  "paths": {
    "/health": {"get": {"summary": "Liveness and model state (always 200)", "produces": ["application/json"],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/HealthResponse"}}}}},
    "/predict": {"post": {"summary": "Rank breeds for an image", "consumes": ["multipart/form-data", "image/jpeg", "image/png"],
      "parameters": [{"name": "image", "in": "formData", "type": "file", "required": true}],
      "responses": {
        "200": {"description": "OK", "schema": {"$ref": "#/definitions/PredictResponse"}},
        "400": {"description": "Invalid image", "schema": {"$ref": "#/definitions/ErrorResponse"}},
        "429": {"description": "Queue full", "schema": {"$ref": "#/definitions/ErrorResponse"}},
        "503": {"description": "Model not ready or failed", "schema": {"$ref": "#/definitions/ErrorResponse"}}}}},
    "/species": {"post": {"summary": "Cattle, buffalo or non_animal", "consumes": ["multipart/form-data"],
      "parameters": [{"name": "image", "in": "formData", "type": "file", "required": true}],
      "responses": {"200": {"description": "OK", "schema": {"$ref": "#/definitions/SpeciesResult"}}}}},
    "/reload": {"post": {"summary": "Retry acquisition after a failure",
      "responses": {"202": {"description": "Started"}, "409": {"description": "Already running or ready"}}}}
  },
  "definitions": {
    "BreedPrediction": {"type": "object", "properties": {"breed": {"type": "string"}, "confidence": {"type": "number"}}},
    "PredictResponse": {"type": "object", "properties": {
      "predictions": {"type": "array", "items": {"$ref": "#/definitions/BreedPrediction"}},
      "crossbreed": {"type": "boolean"}, "model": {"type": "string"}}},
    "SpeciesResult": {"type": "object", "properties": {"species": {"type": "string"}, "confidence": {"type": "number"}}},
    "HealthResponse": {"type": "object", "properties": {
      "service_up": {"type": "boolean"}, "status": {"type": "string"}, "model_state": {"type": "string"},
      "model_loaded": {"type": "boolean"}, "model_loading": {"type": "boolean"}, "last_error": {"type": "string"}}},
    "ErrorResponse": {"type": "object", "properties": {
      "error": {"type": "string"}, "code": {"type": "integer"}, "kind": {"type": "string"},
      "status": {"type": "string"}, "retry_after_seconds": {"type": "integer"}}}
  }
}`

var swaggerInfo = &swag.Spec{
	Version:          "1.0",
	BasePath:         "/",
	Title:            "breedserve API",
	Description:      "Cattle and buffalo breed classification host.",
	InfoInstanceName: "swagger",
	SwaggerTemplate:  docTemplate,
	LeftDelim:        "{{",
	RightDelim:       "}}",
}

func init() {
	swag.Register(swaggerInfo.InstanceName(), swaggerInfo)
}

// MountSwagger serves the Swagger UI at /swagger/.
func MountSwagger(r chi.Router) {
	r.Get("/swagger/*", httpSwagger.Handler(httpSwagger.URL("/swagger/doc.json")))
}
