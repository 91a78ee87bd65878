package httpapi

import (
	"net/http"
	"strconv"

	"callmgr/internal/fsnode"
	"callmgr/internal/registry"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call the node controllers, return
// JSON. The admin surface is read-only apart from the fire-and-forget ACL
// reload the controllers already expose.

type Handlers struct {
	Registry *registry.Registry
}

type nodeSummary struct {
	Node            string `json:"node"`
	State           string `json:"state"`
	ActiveChannels  int    `json:"active_channels"`
	CreatedChannels int64  `json:"created_channels"`
	DestroyedChans  int64  `json:"destroyed_channels"`
	LastHeartbeat   string `json:"last_heartbeat,omitempty"`
	UptimeMicro     int64  `json:"uptime_micro,omitempty"`
	MaxChannels     int    `json:"max_channels"`
}

func summarize(s fsnode.Snapshot) nodeSummary {
	out := nodeSummary{
		Node:            s.Identity.String(),
		State:           s.State.String(),
		ActiveChannels:  s.ActiveChannels,
		CreatedChannels: s.Stats.CreatedChannels,
		DestroyedChans:  s.Stats.DestroyedChannels,
		UptimeMicro:     s.Stats.FSUptimeMicro,
		MaxChannels:     s.Options.MaxChannels,
	}
	if !s.Stats.LastHeartbeat.IsZero() {
		out.LastHeartbeat = s.Stats.LastHeartbeat.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return out
}

// ListNodes reports every registered controller. A controller that does not
// answer within its bounded wait is listed by state only.
func (h Handlers) ListNodes(c *gin.Context) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registry not configured"})
		return
	}
	nodes := h.Registry.Nodes()
	out := make([]nodeSummary, 0, len(nodes))
	for _, n := range nodes {
		if snap, ok := n.Snapshot(c.Request.Context()); ok {
			out = append(out, summarize(snap))
			continue
		}
		out = append(out, nodeSummary{Node: n.FSNode().String(), State: n.State().String()})
	}
	c.JSON(http.StatusOK, gin.H{"nodes": out})
}

func (h Handlers) GetNode(c *gin.Context) {
	n, ok := h.lookup(c)
	if !ok {
		return
	}
	snap, ok := n.Snapshot(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"error": "node controller did not answer"})
		return
	}
	c.JSON(http.StatusOK, summarize(snap))
}

// GetNodeChannels lists the live channels of one switch. Failures surface as
// an empty list by contract.
func (h Handlers) GetNodeChannels(c *gin.Context) {
	n, ok := h.lookup(c)
	if !ok {
		return
	}
	channels := n.ShowChannels(c.Request.Context())
	if channels == nil {
		channels = []map[string]string{}
	}
	c.JSON(http.StatusOK, gin.H{"channels": channels})
}

// GetNodeAvailability runs a capacity probe. min defaults to zero; a node
// that cannot satisfy it answers with an empty body and 200 (the empty reply
// is the protocol's "no capacity" answer, not an error).
func (h Handlers) GetNodeAvailability(c *gin.Context) {
	n, ok := h.lookup(c)
	if !ok {
		return
	}
	min := 0
	if raw := c.Query("min"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "min must be an integer"})
			return
		}
		min = parsed
	}
	avail, ok := n.ResourceRequest(c.Request.Context(), min)
	if !ok {
		c.JSON(http.StatusOK, gin.H{})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"node":               avail.Node,
		"available_channels": avail.AvailableChannels,
		"utilization_pct":    avail.UtilizationPct,
	})
}

func (h Handlers) ReloadNodeACL(c *gin.Context) {
	n, ok := h.lookup(c)
	if !ok {
		return
	}
	n.ReloadACL()
	c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
}

func (h Handlers) lookup(c *gin.Context) (*fsnode.Node, bool) {
	if h.Registry == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "registry not configured"})
		return nil, false
	}
	key := c.Param("node")
	if key == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "node required"})
		return nil, false
	}
	n, ok := h.Registry.Lookup(key)
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "unknown node"})
		return nil, false
	}
	return n, true
}
