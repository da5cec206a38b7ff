package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/quote-sync/internal/adapters/http/dto"
	"github.com/jsamuelsen/quote-sync/internal/app"
	"github.com/jsamuelsen/quote-sync/internal/domain"
)

// QuoteHandler serves the quote collection endpoints.
type QuoteHandler struct {
	service *app.QuoteService
}

// NewQuoteHandler creates a new quote handler.
func NewQuoteHandler(service *app.QuoteService) *QuoteHandler {
	return &QuoteHandler{service: service}
}

// List handles GET /api/v1/quotes.
// An absent category means no filter; a present one, even "all", filters by that name.
func (h *QuoteHandler) List(c *gin.Context) {
	var req dto.ListQuotesRequest
	if err := dto.BindQueryAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	quotes := dto.QuotesFromDomain(h.service.List(filterFrom(req.Category)))

	page, err := dto.Paginate(quotes, req.PaginationRequest, func(q dto.QuoteResponse) string { return q.ID })
	if err != nil {
		dto.RespondWithCode(c, dto.ErrorCodeBadRequest, err.Error())
		return
	}

	c.JSON(http.StatusOK, page)
}

// Create handles POST /api/v1/quotes.
func (h *QuoteHandler) Create(c *gin.Context) {
	var req dto.CreateQuoteRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	q, err := h.service.Add(c.Request.Context(), req.Text, req.Category)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusCreated, dto.QuoteFromDomain(q))
}

// Random handles GET /api/v1/quotes/random.
func (h *QuoteHandler) Random(c *gin.Context) {
	q, err := h.service.RandomQuote(filterFrom(queryPtr(c, "category")))
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.RandomQuoteResponse{
		Quote:   dto.QuoteFromDomain(q),
		Display: domain.Render(q),
	})
}

// Export handles GET /api/v1/quotes/export as a downloadable document.
func (h *QuoteHandler) Export(c *gin.Context) {
	doc, err := h.service.Export(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.Header("ETag", doc.ETag)

	if c.GetHeader("If-None-Match") == doc.ETag {
		c.Status(http.StatusNotModified)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+doc.Filename)
	c.Header("X-Quote-Count", strconv.Itoa(doc.Count))
	c.Data(http.StatusOK, "application/json", doc.Body)
}

// Import handles POST /api/v1/quotes/import. The body replaces the whole collection.
func (h *QuoteHandler) Import(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		dto.RespondWithCode(c, dto.ErrorCodeBadRequest, "could not read request body")
		return
	}

	result, err := h.service.Import(c.Request.Context(), body)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.ImportResponse{Imported: result.Imported, AssignedIDs: result.AssignedIDs})
}

// Categories handles GET /api/v1/categories.
func (h *QuoteHandler) Categories(c *gin.Context) {
	c.JSON(http.StatusOK, dto.CategoriesResponse{Categories: h.service.Categories()})
}

// GetFilter handles GET /api/v1/filter.
func (h *QuoteHandler) GetFilter(c *gin.Context) {
	filter, err := h.service.SelectedFilter(c.Request.Context())
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, filterResponse(filter))
}

// PutFilter handles PUT /api/v1/filter. A null category selects every quote.
func (h *QuoteHandler) PutFilter(c *gin.Context) {
	var req dto.FilterRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		respondBindError(c, err)
		return
	}

	if req.Category != nil && *req.Category == "" {
		dto.RespondWithValidationErrors(c, map[string]string{"category": "must not be empty; use null for all categories"})
		return
	}

	filter := filterFrom(req.Category)
	if err := h.service.SaveSelectedFilter(c.Request.Context(), filter); err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, filterResponse(filter))
}

// RegisterRoutes registers the read routes on rg and the collection-replacing import on editor.
func (h *QuoteHandler) RegisterRoutes(rg, editor *gin.RouterGroup) {
	quotes := rg.Group("/quotes")
	quotes.GET("", h.List)
	quotes.POST("", h.Create)
	quotes.GET("/random", h.Random)
	quotes.GET("/export", h.Export)

	editor.POST("/quotes/import", h.Import)

	rg.GET("/categories", h.Categories)
	rg.GET("/filter", h.GetFilter)
	rg.PUT("/filter", h.PutFilter)
}

func filterFrom(category *string) app.CategoryFilter {
	if category == nil {
		return app.AllCategories()
	}

	return app.InCategory(*category)
}

func filterResponse(f app.CategoryFilter) dto.FilterResponse {
	if f.IsAll() {
		return dto.FilterResponse{}
	}

	name := f.Category()

	return dto.FilterResponse{Category: &name}
}

func queryPtr(c *gin.Context, key string) *string {
	v, ok := c.GetQuery(key)
	if !ok {
		return nil
	}

	return &v
}

func respondBindError(c *gin.Context, err error) {
	if fields := dto.ValidationErrors(err); len(fields) > 0 {
		dto.RespondWithValidationErrors(c, fields)
		return
	}

	dto.RespondWithCode(c, dto.ErrorCodeBadRequest, "malformed request")
}
