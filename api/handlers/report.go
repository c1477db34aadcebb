package handlers

import (
	"bytes"
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chambridge/capacity-stats/internal/report"
	"github.com/chambridge/capacity-stats/internal/stats"
)

// Reporter runs one collection and aggregation pass.
type Reporter interface {
	Run(ctx context.Context, opts stats.Options) (*stats.Results, error)
}

type ReportQueryParams struct {
	Format string `form:"format"`
}

// ReportHandler handles the /api/stats/v1/report endpoint. The format comes
// from the format query parameter; without one, an Accept of
// text/tab-separated-values selects TSV and anything else JSON.
func ReportHandler(reporter Reporter, opts stats.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params ReportQueryParams
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
			return
		}

		name := params.Format
		if name == "" {
			name = string(report.FormatJSON)
			if c.GetHeader("Accept") == report.FormatTSV.ContentType() {
				name = string(report.FormatTSV)
			}
		}
		format, err := report.ParseFormat(name)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		res, err := reporter.Run(c.Request.Context(), opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute capacity stats: " + err.Error()})
			return
		}

		var buf bytes.Buffer
		if err := report.Render(&buf, res, format); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render report: " + err.Error()})
			return
		}
		if format == report.FormatTSV {
			c.Header("Content-Disposition", "attachment;filename=district_summaries.tsv")
		}
		c.Data(http.StatusOK, format.ContentType(), buf.Bytes())
	}
}
