package server

import (
	"context"
	"errors"
	"iter"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/registration"
)

const (
	defaultPageSize = 30
	maxPageSize     = 100
)

// DoiRepository is the DOI persistence surface used by the HTTP handlers.
type DoiRepository interface {
	NewCollector() *dois.Collector
	NewFromProps(props map[string]any) (*dois.Doi, error)
	Validate(ctx context.Context, existing *dois.Doi, props map[string]any, allowedLocales []string, primaryLocale string) dois.FieldErrors
	Get(ctx context.Context, id int64) (*dois.Doi, error)
	GetCount(ctx context.Context, collector *dois.Collector) (int64, error)
	GetMany(ctx context.Context, collector *dois.Collector) iter.Seq2[*dois.Doi, error]
	Add(ctx context.Context, doi *dois.Doi) (int64, error)
	Edit(ctx context.Context, doi *dois.Doi, changes map[string]any) (*dois.Doi, error)
	Delete(ctx context.Context, doi *dois.Doi) error
	IsEnabled(c contexts.Context) bool
	MintValue(c contexts.Context) (string, error)
}

type listResponsePayload struct {
	ItemsMax int64       `json:"itemsMax"`
	Items    []*dois.Doi `json:"items"`
}

type registrationRequestPayload struct {
	IDs []int64 `json:"ids"`
}

func (h *httpHandler) handleListDois(c *gin.Context) {
	current, ok := currentContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_context"})
		return
	}

	statuses, err := parseStatuses(c.QueryArray("status"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_status"})
		return
	}

	collector := h.dois.NewCollector().
		FilterByContextIDs(current.ID).
		Limit(pageSize(c.Query("count"))).
		Offset(pageOffset(c.Query("offset")))
	if len(statuses) > 0 {
		collector.FilterByStatus(statuses...)
	}

	ctx := c.Request.Context()
	total, err := h.dois.GetCount(ctx, collector)
	if err != nil {
		h.respondInternal(c, "dois.list.count_failed", "failed to count dois", err)
		return
	}

	items := make([]*dois.Doi, 0, collector.PageLimit())
	for doi, err := range h.dois.GetMany(ctx, collector) {
		if err != nil {
			h.respondInternal(c, "dois.list.read_failed", "failed to read dois", err)
			return
		}
		items = append(items, doi)
	}

	c.JSON(http.StatusOK, listResponsePayload{ItemsMax: total, Items: items})
}

func (h *httpHandler) handleGetDoi(c *gin.Context) {
	doi, ok := h.loadDoi(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, doi)
}

func (h *httpHandler) handleAddDoi(c *gin.Context) {
	current, ok := currentContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_context"})
		return
	}

	props, ok := bindProps(c)
	if !ok {
		return
	}
	props = scopeProps(props, current.ID)

	if missingValue(props) && h.dois.IsEnabled(current) && current.UseDefaultDoiSuffix {
		minted, err := h.dois.MintValue(current)
		if err != nil {
			h.respondInternal(c, "dois.add.mint_failed", "failed to mint doi", err)
			return
		}
		props[dois.PropValue] = minted
	}

	ctx := c.Request.Context()
	if fieldErrors := h.dois.Validate(ctx, nil, props, current.Locales(), current.PrimaryLocale); len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrors)
		return
	}

	doi, err := h.dois.NewFromProps(props)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_props"})
		return
	}
	doi.ContextID = current.ID
	id, err := h.dois.Add(ctx, doi)
	if err != nil {
		if errors.Is(err, dois.ErrContextNotFound) {
			c.JSON(http.StatusBadRequest, dois.FieldErrors{dois.PropContextID: {dois.MsgContextNotFound}})
			return
		}
		h.respondInternal(c, "dois.add.failed", "failed to add doi", err)
		return
	}

	stored, err := h.dois.Get(ctx, id)
	if err != nil {
		h.respondInternal(c, "dois.add.reload_failed", "failed to reload doi", err)
		return
	}
	c.JSON(http.StatusOK, stored)
}

func (h *httpHandler) handleEditDoi(c *gin.Context) {
	existing, ok := h.loadDoi(c)
	if !ok {
		return
	}
	current, _ := currentContext(c)

	props, ok := bindProps(c)
	if !ok {
		return
	}
	props = scopeProps(props, current.ID)

	ctx := c.Request.Context()
	if fieldErrors := h.dois.Validate(ctx, existing, props, current.Locales(), current.PrimaryLocale); len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, fieldErrors)
		return
	}

	updated, err := h.dois.Edit(ctx, existing, props)
	if err != nil {
		if errors.Is(err, dois.ErrInvalidProps) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_props"})
			return
		}
		if errors.Is(err, dois.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "doi_not_found"})
			return
		}
		h.respondInternal(c, "dois.edit.failed", "failed to edit doi", err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h *httpHandler) handleDeleteDoi(c *gin.Context) {
	existing, ok := h.loadDoi(c)
	if !ok {
		return
	}
	if err := h.dois.Delete(c.Request.Context(), existing); err != nil {
		if errors.Is(err, dois.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "doi_not_found"})
			return
		}
		h.respondInternal(c, "dois.delete.failed", "failed to delete doi", err)
		return
	}
	c.JSON(http.StatusOK, existing)
}

func (h *httpHandler) handleRegistrationAction(c *gin.Context) {
	current, ok := currentContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_context"})
		return
	}

	action, err := registration.ParseAction(c.Param("action"))
	if err != nil {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "invalid_action"})
		return
	}

	var request registrationRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || len(request.IDs) == 0 {
		c.JSON(http.StatusNotAcceptable, gin.H{"error": "no_items_included"})
		return
	}

	outcome, err := h.registration.Perform(c.Request.Context(), action, current, request.IDs)
	if err != nil {
		if errors.Is(err, registration.ErrEmptyPayload) {
			c.JSON(http.StatusNotAcceptable, gin.H{"error": "no_items_included"})
			return
		}
		h.respondInternal(c, "registration.perform.failed", "registration action failed", err)
		return
	}
	c.JSON(http.StatusOK, outcome)
}

// loadDoi reads the DOI named by the doiId parameter. Records of other
// contexts answer the same 404 as absent ones.
func (h *httpHandler) loadDoi(c *gin.Context) (*dois.Doi, bool) {
	current, ok := currentContext(c)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "missing_context"})
		return nil, false
	}
	id, err := strconv.ParseInt(c.Param("doiId"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "doi_not_found"})
		return nil, false
	}

	doi, err := h.dois.Get(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, dois.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "doi_not_found"})
			return nil, false
		}
		h.respondInternal(c, "dois.get.failed", "failed to read doi", err)
		return nil, false
	}
	if doi.ContextID != current.ID {
		h.logger.Debug("doi requested from another context",
			zap.Int64("doi_id", id),
			zap.Int64("context_id", current.ID),
		)
		c.JSON(http.StatusNotFound, gin.H{"error": "doi_not_found"})
		return nil, false
	}
	return doi, true
}

func bindProps(c *gin.Context) (map[string]any, bool) {
	var props map[string]any
	if err := c.ShouldBindJSON(&props); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return nil, false
	}
	if props == nil {
		props = make(map[string]any)
	}
	return props, true
}

// scopeProps normalizes client props and pins them to the context in the
// request path. Any client spelling of the id or context id is dropped.
func scopeProps(props map[string]any, contextID int64) map[string]any {
	scoped := dois.NormalizeProps(props)
	delete(scoped, dois.PropID)
	scoped[dois.PropContextID] = contextID
	return scoped
}

// missingValue expects props already passed through scopeProps.
func missingValue(props map[string]any) bool {
	raw, present := props[dois.PropValue]
	if !present || raw == nil {
		return true
	}
	value, isString := raw.(string)
	return isString && strings.TrimSpace(value) == ""
}

func pageSize(raw string) int {
	count, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || count <= 0 {
		return defaultPageSize
	}
	if count > maxPageSize {
		return maxPageSize
	}
	return count
}

func pageOffset(raw string) int {
	offset, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || offset < 0 {
		return 0
	}
	return offset
}

// parseStatuses accepts repeated and comma separated status values.
func parseStatuses(values []string) ([]dois.Status, error) {
	var statuses []dois.Status
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			number, err := strconv.Atoi(part)
			if err != nil {
				return nil, err
			}
			status := dois.Status(number)
			if !status.Valid() {
				return nil, errors.New("status out of range")
			}
			statuses = append(statuses, status)
		}
	}
	return statuses, nil
}
