package handlers

import (
	"encoding/csv"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/chambridge/capacity-stats/internal/processor"
)

// DistrictsUploadHandler accepts a districts CSV as the multipart field
// "file" and writes every valid row.
func DistrictsUploadHandler(repo processor.DistrictWriter, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if repo == nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "District import is not configured"})
			return
		}

		file, _, err := c.Request.FormFile("file")
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "File upload failed"})
			return
		}
		defer file.Close()

		imported, err := processor.ProcessDistrictsCSV(c.Request.Context(), repo, csv.NewReader(file), logger)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to process CSV: " + err.Error()})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "File processed successfully", "imported": imported})
	}
}
