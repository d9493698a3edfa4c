// Package docs contains the OpenAPI documentation for the gitvault upload service
//
//	@title			Gitvault Upload Service API
//	@version		1.0
//	@description	Resumable, chunked large-file upload service that materializes completed objects into a GitHub repository.
//	@termsOfService	http://swagger.io/terms/
//
//	@contact.name	Gitvault API Support
//	@contact.url	http://www.swagger.io/support
//	@contact.email	support@swagger.io
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//	@schemes	http https
//
//	@securityDefinitions.apikey	ApiKeyAuth
//	@in							header
//	@name						X-API-Key
//	@description				Shared service credential for the trusted upstream proxy.
//
//	@tag.name			Uploads
//	@tag.description	Resumable chunked upload session lifecycle operations
package docs
