package httptransport

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
)

// health reports process liveness plus host load and render counters, for
// dashboards and container probes.
func (h *Handlers) health(c *gin.Context) {
	payload := gin.H{
		"status":  "ok",
		"uptime":  time.Since(h.started).Round(time.Second).String(),
		"model":   h.Config.Model.Version,
		"source":  h.Config.Model.Source,
		"device":  h.Config.Model.Device,
		"stream":  h.Stream != nil,
		"caching": h.Config.Cache.Enabled,
	}

	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		payload["cpu_usage"] = fmt.Sprintf("%.1f%%", percents[0])
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		payload["memory_usage"] = fmt.Sprintf("%.1f%%", vm.UsedPercent)
	}

	if h.State != nil {
		if total, cached, err := h.State.Stats(); err == nil {
			payload["renders_total"] = total
			payload["renders_cached"] = cached
		}
	}

	c.JSON(http.StatusOK, payload)
}
