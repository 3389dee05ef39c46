package swagger

import (
	"net/http"

	httpSwagger "github.com/swaggo/http-swagger"
)

// Handler serves the Swagger UI against the OpenAPI document the server
// validated at startup.
func Handler() http.Handler {
	return httpSwagger.Handler(
		httpSwagger.URL("/openapi.yml"),
		httpSwagger.DeepLinking(true),
	)
}
