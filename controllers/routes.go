package controllers

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	uuid "github.com/twinj/uuid"
	"gorm.io/gorm"

	"dentascope/storage"
	"dentascope/utils"
)

// Version Reported on /version
const Version = "v0.1.0"

// corsMiddleware CORS for * origins, allowing:
// - GET, POST, PUT, PATCH and DELETE methods
// - Origin and Content-Type headers
// - Preflight requests cached for 12 hours
// TODO: read the allowed origins from the configuration before exposing this to the internet
func corsMiddleware() gin.HandlerFunc {
	return cors.New(cors.Config{
		AllowOrigins:  []string{"*"},
		AllowMethods:  []string{"GET", "POST", "PUT", "PATCH", "DELETE"},
		AllowHeaders:  []string{"Origin", "Content-Type"},
		ExposeHeaders: []string{"Content-Length", "Content-Disposition", "X-Request-Id"},
		MaxAge:        12 * time.Hour,
	})
}

// requestIDMiddleware Generate a UUID and attach it to each request
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("X-Request-Id", uuid.NewV4().String())
		c.Next()
	}
}

// NewRouter Build the HTTP API
func NewRouter(db *gorm.DB, files *storage.FileStore, config *utils.Config) *gin.Engine {
	r := gin.Default()

	r.Use(corsMiddleware())
	r.Use(requestIDMiddleware())

	// Version tag to test against
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": Version})
	})

	// Currently no authentication is used
	v1 := r.Group("/v1")
	images := v1.Group("/images")
	{
		images.GET("/", FindImages(db))
		images.POST("/", CreateImage(db, files, config))
		images.GET("/:file/", RetrieveImage(db, files))
		images.DELETE("/:file/", DeleteImage(db, files))
	}

	// Image bytes are already compressed, only the label JSON is gzipped
	annotation := images.Group("/:file/annotation", gzip.Gzip(gzip.DefaultCompression))
	{
		annotation.GET("/", GetAnnotation(db))
		annotation.PUT("/", UpdateAnnotation(db))
		annotation.PATCH("/", PatchAnnotation)
	}

	return r
}
