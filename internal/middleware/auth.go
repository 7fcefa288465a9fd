package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/chrismgala/verifly/internal/models"
	"github.com/chrismgala/verifly/internal/response"
)

// ShopAuthMiddleware authenticates merchant API requests against the
// shop's API key. The shop id and key arrive via headers (or query
// parameters for embedded-app iframes); the resolved shop is stored in
// the request context.
func ShopAuthMiddleware(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		shopID := c.GetHeader("X-Shop-ID")
		apiKey := c.GetHeader("X-API-Key")

		// If not passed via header, try to get from query parameters
		if shopID == "" {
			shopID = c.Query("shop_id")
		}
		if apiKey == "" {
			apiKey = c.Query("api_key")
		}

		if shopID == "" || apiKey == "" {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Missing shop_id or api_key"))
			c.Abort()
			return
		}

		var shop models.Shop
		err := db.Where("id = ? AND api_key = ? AND installed = ?", shopID, apiKey, true).
			First(&shop).Error
		if err != nil {
			c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid shop_id or api_key"))
			c.Abort()
			return
		}

		c.Set("shop", &shop)
		c.Set("request_time", time.Now())
		c.Next()
	}
}

// ShopFromContext returns the authenticated shop set by
// ShopAuthMiddleware.
func ShopFromContext(c *gin.Context) (*models.Shop, bool) {
	value, exists := c.Get("shop")
	if !exists {
		return nil, false
	}
	shop, ok := value.(*models.Shop)
	return shop, ok
}
