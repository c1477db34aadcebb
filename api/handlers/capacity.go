package handlers

import (
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"

	"github.com/chambridge/capacity-stats/internal/stats"
)

type CapacityQueryParams struct {
	Threshold *float64 `form:"threshold"`
	Profile   string   `form:"profile"`
}

// ProfilesHandler handles the /api/stats/v1/profiles endpoint.
func ProfilesHandler(reporter Reporter, opts stats.Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		res, err := reporter.Run(c.Request.Context(), opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute capacity stats: " + err.Error()})
			return
		}

		profiles := lo.Values(res.ProfileSummaries)
		sort.Slice(profiles, func(i, j int) bool { return profiles[i].Profile < profiles[j].Profile })

		c.JSON(http.StatusOK, gin.H{
			"metadata": gin.H{
				"total":   len(profiles),
				"timings": res.Timings,
			},
			"data": profiles,
		})
	}
}

// CapacityHandler handles the /api/stats/v1/capacity endpoint. threshold and
// profile default to the configured values.
func CapacityHandler(reporter Reporter, opts stats.Options, threshold float64, profile string) gin.HandlerFunc {
	return func(c *gin.Context) {
		var params CapacityQueryParams
		if err := c.ShouldBindQuery(&params); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid query parameters: " + err.Error()})
			return
		}

		rule := stats.ThresholdRule{Threshold: threshold}
		if params.Threshold != nil {
			rule.Threshold = *params.Threshold
		}
		if rule.Threshold < 0 || rule.Threshold > 100 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Threshold must be between 0 and 100"})
			return
		}
		target := profile
		if params.Profile != "" {
			target = params.Profile
		}

		res, err := reporter.Run(c.Request.Context(), opts)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute capacity stats: " + err.Error()})
			return
		}
		if _, ok := res.ProfileSummaries[target]; target != "" && !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "Unknown profile: " + target})
			return
		}

		alerts := rule.EvaluateProfiles(res.ProfileSummaries, target)
		c.JSON(http.StatusOK, gin.H{
			"metadata": gin.H{
				"threshold": rule.Threshold,
				"profile":   target,
			},
			"triggered": len(alerts) > 0,
			"alerts":    alerts,
		})
	}
}
