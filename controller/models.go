package controller

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// modelCatalogue is the public model list for GET /v1/models, enumerating
// the model-map keys both channels understand (spec §4.8).
var modelCatalogue = []string{
	"claude-sonnet-4-5",
	"claude-sonnet-4",
	"claude-haiku-4.5",
	"gemini-2.5-pro",
	"gemini-2.5-flash",
}

// Models serves GET /v1/models.
func (app *AppContext) Models(c *gin.Context) {
	data := make([]gin.H, 0, len(modelCatalogue))
	for _, id := range modelCatalogue {
		data = append(data, gin.H{"id": id, "object": "model"})
	}
	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
