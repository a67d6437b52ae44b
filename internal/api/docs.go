package api

// @title QConf API
// @version 1.0
// @description Configuration management service with hot reload, versioning and validation
// @termsOfService http://swagger.io/terms/

// @contact.name API Support
// @contact.url http://www.swagger.io/support
// @contact.email support@swagger.io

// @license.name Apache 2.0
// @license.url http://www.apache.org/licenses/LICENSE-2.0.html

// @host localhost:8082
// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

// @tag.name Configs
// @tag.description Configuration document management operations

// @tag.name Versions
// @tag.description Configuration version management operations

// @tag.name HotReload
// @tag.description Hot reload monitoring operations

// @tag.name Auth
// @tag.description Authentication operations

// @tag.name System
// @tag.description System status and health operations
