// Package docs provides generated OpenAPI documentation.
//
// Problembook API
//
//	@title			Problembook API
//	@version		1.0
//	@description	Batch extraction and solving of textbook problems: OCR batches turn page text
//	@description	into problems and theory blocks, solve batches send problems to LLM providers.
//
//	@contact.name	API Support
//	@contact.url	https://github.com/jackzampolin/problembook
//
//	@license.name	MIT
//	@license.url	https://opensource.org/licenses/MIT
//
//	@host		localhost:8080
//	@BasePath	/
//
//	@schemes	http https
package docs

//go:generate swag init -g ../cmd/problembook/serve.go -o ./swagger --parseDependency --parseInternal
