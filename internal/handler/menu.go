package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/streetfare/orderline/internal/domain/catalog"
)

type menuItem struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Price    string `json:"price"`
	SoldOut  bool   `json:"sold_out"`
	LowStock bool   `json:"low_stock"`
}

type menuCategory struct {
	CategoryID string     `json:"category_id"`
	Items      []menuItem `json:"items"`
}

// GetMenu lists active menu items grouped by category, in catalog order.
func (h *Handler) GetMenu(c *gin.Context) {
	items, err := h.catalog.ListItems(c.Request.Context())
	if err != nil {
		respondDomainError(c, err)
		return
	}

	categories := make([]menuCategory, 0)
	index := make(map[string]int)
	for _, item := range items {
		if !item.IsActive {
			continue
		}
		i, ok := index[item.CategoryID]
		if !ok {
			i = len(categories)
			index[item.CategoryID] = i
			categories = append(categories, menuCategory{CategoryID: item.CategoryID})
		}
		categories[i].Items = append(categories[i].Items, toMenuItem(item))
	}

	c.JSON(http.StatusOK, gin.H{"categories": categories})
}

func toMenuItem(item catalog.Item) menuItem {
	return menuItem{
		ID:       item.ID,
		Name:     item.Name,
		Price:    item.Price.StringFixed(2),
		SoldOut:  item.StockTracked && item.CurrentStock <= 0,
		LowStock: item.LowStock(),
	}
}
