package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ossprey/licenscope/internal/catalog"
)

// CatalogHandler serves the embedded license reference data.
type CatalogHandler struct {
	catalog *catalog.Catalog
}

// NewCatalogHandler creates a new catalog handler.
// Parameters:
//   - cat: loaded license catalog.
// Returns:
//   - *CatalogHandler: initialized handler.
func NewCatalogHandler(cat *catalog.Catalog) *CatalogHandler {
	return &CatalogHandler{catalog: cat}
}

// List handles GET /api/v1/licenses.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"licenses": h.catalog.All(),
		"total":    h.catalog.Len(),
	})
}

// Get handles GET /api/v1/licenses/:key.
// Parameters:
//   - c: Gin request context.
// Returns: none (writes JSON response).
func (h *CatalogHandler) Get(c *gin.Context) {
	key := c.Param("key")
	entry, ok := h.catalog.Get(key)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown license key: " + key})
		return
	}
	c.JSON(http.StatusOK, entry)
}
