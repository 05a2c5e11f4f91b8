package procurementhttp

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-procure/internal/catalog"
	"github.com/odyssey-erp/odyssey-procure/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement"
	"github.com/odyssey-erp/odyssey-procure/internal/procurement/workbook"
	"github.com/odyssey-erp/odyssey-procure/internal/shared"
)

// ActorHeader names the request header carrying the acting user.
const ActorHeader = "X-Actor"

const maxTemplateBytes = 10 << 20

type procurementService interface {
	Catalog() procurement.CatalogSource

	CreateIndent(ctx context.Context, input procurement.CreateIndentInput) (procurement.Indent, error)
	ApproveIndent(ctx context.Context, number, approver, comment string) (procurement.Indent, error)
	RejectIndent(ctx context.Context, number, approver, comment string) (procurement.Indent, error)
	GetIndent(ctx context.Context, number string) (procurement.Indent, error)
	ListIndents(ctx context.Context, filter procurement.IndentFilter) ([]procurement.Indent, error)

	Aggregate(ctx context.Context, input procurement.AggregateInput) (procurement.Aggregation, error)
	GetAggregation(ctx context.Context, number string) (procurement.Aggregation, error)
	ListAggregations(ctx context.Context) ([]procurement.Aggregation, error)

	CreateRFQ(ctx context.Context, input procurement.CreateRFQInput) (procurement.RFQ, error)
	ApproveRFQ(ctx context.Context, rfqNo, approver, comment string) (procurement.RFQ, error)
	RejectRFQ(ctx context.Context, rfqNo, approver, comment string) (procurement.RFQ, error)
	GetRFQ(ctx context.Context, rfqNo string) (procurement.RFQ, error)
	ListRFQs(ctx context.Context, filter procurement.RFQFilter) ([]procurement.RFQ, error)

	SubmitQuotation(ctx context.Context, input procurement.SubmitQuotationInput) (procurement.Quotation, error)
	UpdateQuotationItem(ctx context.Context, quotationNo, itemCode string, canProvideQty, rate decimal.Decimal) (procurement.Quotation, error)
	ApproveQuotation(ctx context.Context, quotationNo, approver, comment string) (procurement.Quotation, error)
	RejectQuotation(ctx context.Context, quotationNo, approver, comment string) (procurement.Quotation, error)
	GetQuotation(ctx context.Context, quotationNo string) (procurement.Quotation, error)
	ListQuotations(ctx context.Context, rfqNo string) ([]procurement.Quotation, error)

	OpenCSRow(ctx context.Context, rfqNo, itemCode string) (procurement.CSRow, error)
	AllocateCS(ctx context.Context, input procurement.AllocateInput) (procurement.CSRow, error)
	ConfirmCSRow(ctx context.Context, rfqNo, itemCode, actor string) (procurement.CSRow, error)
	SubmitComparativeStatement(ctx context.Context, input procurement.SubmitCSInput) ([]procurement.CSRow, error)
	ApproveCS(ctx context.Context, rfqNo, vendorID, approver, comment string) (procurement.CSEntry, error)
	RejectCS(ctx context.Context, rfqNo, vendorID, approver, comment string) (procurement.CSEntry, error)
	ListCSRows(ctx context.Context, rfqNo string) ([]procurement.CSRow, error)
	ListCSEntries(ctx context.Context, rfqNo string) ([]procurement.CSEntry, error)

	DerivePurchaseOrders(ctx context.Context, rfqNo, actor string) ([]procurement.PurchaseOrder, error)
	ListPurchaseOrders(ctx context.Context, rfqNo string, filter procurement.POFilter) ([]procurement.PurchaseOrder, error)
	SetPurchaseOrderStatus(ctx context.Context, rfqNo, poNumber string, next procurement.POStatus, actor string) (procurement.PurchaseOrder, error)
}

// Handler exposes the procurement workflow as JSON endpoints.
type Handler struct {
	logger  *slog.Logger
	service procurementService
}

// NewHandler constructs a procurement HTTP handler.
func NewHandler(logger *slog.Logger, service procurementService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers HTTP routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/procurement", func(r chi.Router) {
		r.Route("/indents", func(r chi.Router) {
			r.Get("/", h.listIndents)
			r.Post("/", h.createIndent)
			r.Get("/template", h.downloadTemplate)
			r.Post("/template", h.uploadTemplate)
			r.Get("/{no}", h.getIndent)
			r.Post("/{no}/approve", h.decideIndent(true))
			r.Post("/{no}/reject", h.decideIndent(false))
		})
		r.Route("/aggregations", func(r chi.Router) {
			r.Get("/", h.listAggregations)
			r.Post("/", h.createAggregation)
			r.Get("/{no}", h.getAggregation)
		})
		r.Route("/rfqs", func(r chi.Router) {
			r.Get("/", h.listRFQs)
			r.Post("/", h.createRFQ)
			r.Route("/{no}", func(r chi.Router) {
				r.Get("/", h.getRFQ)
				r.Post("/approve", h.decideRFQ(true))
				r.Post("/reject", h.decideRFQ(false))
				r.Get("/quotations", h.listQuotations)
				r.Post("/quotations", h.submitQuotation)
				r.Post("/cs", h.submitCS)
				r.Get("/cs.xlsx", h.exportCS)
				r.Get("/cs/rows", h.listCSRows)
				r.Post("/cs/rows/{code}", h.openCSRow)
				r.Put("/cs/rows/{code}/vendors/{vendor}", h.allocateCS)
				r.Post("/cs/rows/{code}/confirm", h.confirmCSRow)
				r.Get("/cs/entries", h.listCSEntries)
				r.Post("/cs/entries/{vendor}/approve", h.decideCS(true))
				r.Post("/cs/entries/{vendor}/reject", h.decideCS(false))
				r.Get("/purchase-orders", h.listPurchaseOrders)
				r.Post("/purchase-orders", h.derivePurchaseOrders)
				r.Post("/purchase-orders/{po}/status", h.setPurchaseOrderStatus)
			})
		})
		r.Route("/quotations/{no}", func(r chi.Router) {
			r.Get("/", h.getQuotation)
			r.Patch("/items/{code}", h.updateQuotationItem)
			r.Post("/approve", h.decideQuotation(true))
			r.Post("/reject", h.decideQuotation(false))
		})
		r.Route("/catalog", func(r chi.Router) {
			r.Get("/warehouses/{id}", h.getWarehouse)
			r.Get("/boms/{id}/items", h.getBOMItems)
			r.Get("/vendors", h.listVendors)
		})
	})
}

type decisionRequest struct {
	Comment string `json:"comment"`
}

type quotationItemRequest struct {
	CanProvideQty decimal.Decimal `json:"can_provide_qty"`
	Rate          decimal.Decimal `json:"rate"`
}

type submitCSRequest struct {
	Items []procurement.SubmitCSItem `json:"items"`
}

func actor(r *http.Request) string {
	if a := shared.ActorFromContext(r.Context()); a != "" {
		return a
	}
	return strings.TrimSpace(r.Header.Get(ActorHeader))
}

// fail maps a service error onto a problem response. Unknown references whose
// identifier is the addressed resource become 404, others 422.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error, pathIDs ...string) {
	var perr *procurement.Error
	switch {
	case errors.Is(err, procurement.ErrReference) && errors.As(err, &perr) && slices.Contains(pathIDs, perr.ID):
		httpx.RespondError(w, httpx.Mapped(httpx.ErrNotFound, err))
	case errors.Is(err, catalog.ErrNotFound):
		httpx.RespondError(w, httpx.Mapped(httpx.ErrNotFound, err))
	case errors.Is(err, procurement.ErrReference):
		httpx.RespondError(w, httpx.Mapped(httpx.ErrUnprocessable, err))
	case errors.Is(err, procurement.ErrInvalidState):
		httpx.RespondError(w, httpx.Mapped(httpx.ErrConflict, err))
	case errors.Is(err, procurement.ErrValidation), errors.Is(err, httpx.ErrValidation):
		httpx.RespondError(w, httpx.Mapped(httpx.ErrValidation, err))
	default:
		h.logger.Error("procurement request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}

func (h *Handler) decodeDecision(w http.ResponseWriter, r *http.Request) (decisionRequest, bool) {
	var req decisionRequest
	if r.ContentLength == 0 {
		return req, true
	}
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return req, false
	}
	return req, true
}

func (h *Handler) createIndent(w http.ResponseWriter, r *http.Request) {
	var input procurement.CreateIndentInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	if a := actor(r); a != "" {
		input.CreatedBy = a
	}
	indent, err := h.service.CreateIndent(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, indent)
}

func (h *Handler) listIndents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	indents, err := h.service.ListIndents(r.Context(), procurement.IndentFilter{
		Search: q.Get("search"),
		Status: procurement.Status(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, indents)
}

func (h *Handler) getIndent(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	indent, err := h.service.GetIndent(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, indent)
}

func (h *Handler) decideIndent(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeDecision(w, r)
		if !ok {
			return
		}
		no := chi.URLParam(r, "no")
		decide := h.service.RejectIndent
		if approve {
			decide = h.service.ApproveIndent
		}
		indent, err := decide(r.Context(), no, actor(r), req.Comment)
		if err != nil {
			h.fail(w, r, err, no)
			return
		}
		httpx.JSON(w, http.StatusOK, indent)
	}
}

func (h *Handler) downloadTemplate(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := workbook.WriteIndentTemplate(&buf); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", workbook.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="indent-template.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) uploadTemplate(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxTemplateBytes); err != nil {
		h.fail(w, r, httpx.Mapped(httpx.ErrValidation, err))
		return
	}
	file, _, err := r.FormFile("file")
	if err != nil {
		h.fail(w, r, httpx.Mapped(httpx.ErrValidation, err))
		return
	}
	defer file.Close()
	items, err := workbook.ReadIndentTemplate(file)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h *Handler) createAggregation(w http.ResponseWriter, r *http.Request) {
	var input procurement.AggregateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	if a := actor(r); a != "" {
		input.CreatedBy = a
	}
	agg, err := h.service.Aggregate(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, agg)
}

func (h *Handler) listAggregations(w http.ResponseWriter, r *http.Request) {
	aggs, err := h.service.ListAggregations(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, aggs)
}

func (h *Handler) getAggregation(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	agg, err := h.service.GetAggregation(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, agg)
}

func (h *Handler) createRFQ(w http.ResponseWriter, r *http.Request) {
	var input procurement.CreateRFQInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	if a := actor(r); a != "" {
		input.CreatedBy = a
	}
	rfq, err := h.service.CreateRFQ(r.Context(), input)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, rfq)
}

func (h *Handler) listRFQs(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rfqs, err := h.service.ListRFQs(r.Context(), procurement.RFQFilter{
		Search: q.Get("search"),
		Status: procurement.Status(q.Get("status")),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, rfqs)
}

func (h *Handler) getRFQ(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	rfq, err := h.service.GetRFQ(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, rfq)
}

func (h *Handler) decideRFQ(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeDecision(w, r)
		if !ok {
			return
		}
		no := chi.URLParam(r, "no")
		decide := h.service.RejectRFQ
		if approve {
			decide = h.service.ApproveRFQ
		}
		rfq, err := decide(r.Context(), no, actor(r), req.Comment)
		if err != nil {
			h.fail(w, r, err, no)
			return
		}
		httpx.JSON(w, http.StatusOK, rfq)
	}
}

func (h *Handler) submitQuotation(w http.ResponseWriter, r *http.Request) {
	var input procurement.SubmitQuotationInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	no := chi.URLParam(r, "no")
	input.RFQNo = no
	if a := actor(r); a != "" {
		input.CreatedBy = a
	}
	quotation, err := h.service.SubmitQuotation(r.Context(), input)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusCreated, quotation)
}

func (h *Handler) listQuotations(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	quotations, err := h.service.ListQuotations(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, quotations)
}

func (h *Handler) getQuotation(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	quotation, err := h.service.GetQuotation(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, quotation)
}

func (h *Handler) updateQuotationItem(w http.ResponseWriter, r *http.Request) {
	var req quotationItemRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	no, code := chi.URLParam(r, "no"), chi.URLParam(r, "code")
	quotation, err := h.service.UpdateQuotationItem(r.Context(), no, code, req.CanProvideQty, req.Rate)
	if err != nil {
		h.fail(w, r, err, no, no+"/"+code)
		return
	}
	httpx.JSON(w, http.StatusOK, quotation)
}

func (h *Handler) decideQuotation(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeDecision(w, r)
		if !ok {
			return
		}
		no := chi.URLParam(r, "no")
		decide := h.service.RejectQuotation
		if approve {
			decide = h.service.ApproveQuotation
		}
		quotation, err := decide(r.Context(), no, actor(r), req.Comment)
		if err != nil {
			h.fail(w, r, err, no)
			return
		}
		httpx.JSON(w, http.StatusOK, quotation)
	}
}

func (h *Handler) openCSRow(w http.ResponseWriter, r *http.Request) {
	no, code := chi.URLParam(r, "no"), chi.URLParam(r, "code")
	row, err := h.service.OpenCSRow(r.Context(), no, code)
	if err != nil {
		h.fail(w, r, err, no, no+"/"+code)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) allocateCS(w http.ResponseWriter, r *http.Request) {
	var input procurement.AllocateInput
	if err := httpx.DecodeJSON(w, r, &input); err != nil {
		h.fail(w, r, err)
		return
	}
	no, code := chi.URLParam(r, "no"), chi.URLParam(r, "code")
	input.RFQNo = no
	input.ItemCode = code
	input.VendorID = chi.URLParam(r, "vendor")
	row, err := h.service.AllocateCS(r.Context(), input)
	if err != nil {
		h.fail(w, r, err, no, no+"/"+code, no+"/"+code+"/"+input.VendorID)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) confirmCSRow(w http.ResponseWriter, r *http.Request) {
	no, code := chi.URLParam(r, "no"), chi.URLParam(r, "code")
	row, err := h.service.ConfirmCSRow(r.Context(), no, code, actor(r))
	if err != nil {
		h.fail(w, r, err, no, no+"/"+code)
		return
	}
	httpx.JSON(w, http.StatusOK, row)
}

func (h *Handler) submitCS(w http.ResponseWriter, r *http.Request) {
	var req submitCSRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	no := chi.URLParam(r, "no")
	rows, err := h.service.SubmitComparativeStatement(r.Context(), procurement.SubmitCSInput{
		RFQNo: no,
		Actor: actor(r),
		Items: req.Items,
	})
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listCSRows(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	rows, err := h.service.ListCSRows(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, rows)
}

func (h *Handler) listCSEntries(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	entries, err := h.service.ListCSEntries(r.Context(), no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, entries)
}

func (h *Handler) decideCS(approve bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := h.decodeDecision(w, r)
		if !ok {
			return
		}
		no, vendor := chi.URLParam(r, "no"), chi.URLParam(r, "vendor")
		decide := h.service.RejectCS
		if approve {
			decide = h.service.ApproveCS
		}
		entry, err := decide(r.Context(), no, vendor, actor(r), req.Comment)
		if err != nil {
			h.fail(w, r, err, no, no+"/"+vendor)
			return
		}
		httpx.JSON(w, http.StatusOK, entry)
	}
}

func (h *Handler) exportCS(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	ctx := r.Context()
	rfq, err := h.service.GetRFQ(ctx, no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	rows, err := h.service.ListCSRows(ctx, no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	entries, err := h.service.ListCSEntries(ctx, no)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	var buf bytes.Buffer
	if err := workbook.WriteComparativeStatement(&buf, rfq, rows, entries); err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", workbook.ContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+no+`-cs.xlsx"`)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) derivePurchaseOrders(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	orders, err := h.service.DerivePurchaseOrders(r.Context(), no, actor(r))
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusCreated, orders)
}

func (h *Handler) listPurchaseOrders(w http.ResponseWriter, r *http.Request) {
	no := chi.URLParam(r, "no")
	filter := procurement.POFilter{Status: procurement.POStatus(r.URL.Query().Get("status"))}
	orders, err := h.service.ListPurchaseOrders(r.Context(), no, filter)
	if err != nil {
		h.fail(w, r, err, no)
		return
	}
	httpx.JSON(w, http.StatusOK, orders)
}

type poStatusRequest struct {
	Status procurement.POStatus `json:"status"`
}

func (h *Handler) setPurchaseOrderStatus(w http.ResponseWriter, r *http.Request) {
	var req poStatusRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	no, poNumber := chi.URLParam(r, "no"), chi.URLParam(r, "po")
	po, err := h.service.SetPurchaseOrderStatus(r.Context(), no, poNumber, req.Status, actor(r))
	if err != nil {
		h.fail(w, r, err, no, poNumber)
		return
	}
	httpx.JSON(w, http.StatusOK, po)
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	wh, err := h.service.Catalog().GetWarehouse(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, wh)
}

func (h *Handler) getBOMItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.service.Catalog().GetBOMItems(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, items)
}

func (h *Handler) listVendors(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := catalog.VendorFilter{Search: q.Get("search")}
	if ids := strings.TrimSpace(q.Get("ids")); ids != "" {
		filter.IDs = strings.Split(ids, ",")
	}
	vendors, err := h.service.Catalog().GetVendors(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, vendors)
}
