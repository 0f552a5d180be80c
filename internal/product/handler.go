package product

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/MikeMC777/product-gateway/internal/observability"
)

// BasePath is where the product API is mounted.
const BasePath = "/api/client"

// StatusClientClosedRequest marks requests whose caller went away before
// an answer was ready. Nothing reaches the caller; logs and metrics see it.
const StatusClientClosedRequest = 499

// Upstream is the product service as seen by the handler.
type Upstream interface {
	List(ctx context.Context) (*Stream, error)
	Get(ctx context.Context, id string) (*Product, error)
	Create(ctx context.Context, p *Product) (*Product, error)
	Update(ctx context.Context, id string, p *Product) (*Product, error)
	Delete(ctx context.Context, id string) error
}

// Handler serves the product API by forwarding each request to the
// product service and normalizing its failures.
type Handler struct {
	upstream Upstream
	log      observability.Logger
	now      func() time.Time
}

func NewHandler(upstream Upstream, log observability.Logger) *Handler {
	return &Handler{upstream: upstream, log: log, now: time.Now}
}

// Location returns the resource path of a product id.
func Location(id string) string {
	return BasePath + "/" + url.PathEscape(id)
}

// List streams every product.
// @Summary      List products
// @Tags         products
// @Produce      json
// @Success      200  {array}   Product
// @Failure      502  {object}  ErrorEnvelope
// @Failure      504  {object}  ErrorEnvelope
// @Router       /api/client [get]
func (h *Handler) List(c *gin.Context) {
	stream, err := h.upstream.List(c.Request.Context())
	if err != nil {
		h.fail(c, OpList, err)
		return
	}
	defer stream.Close()

	// Nothing is written until the first element decodes, so a bad
	// upstream payload can still be reported with a proper status.
	first, err := stream.Next()
	if err != nil && !errors.Is(err, io.EOF) {
		h.fail(c, OpList, err)
		return
	}

	c.Header("Content-Type", "application/json")
	c.Status(http.StatusOK)
	w := c.Writer
	_, _ = w.WriteString("[")

	n := 0
	for p := first; p != nil; {
		b, err := json.Marshal(p)
		if err != nil {
			h.abortStream(c, n, err)
			return
		}
		if n > 0 {
			_, _ = w.WriteString(",")
		}
		if _, err := w.Write(b); err != nil {
			h.abortStream(c, n, err)
			return
		}
		w.Flush()
		n++

		p, err = stream.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			h.abortStream(c, n, err)
			return
		}
	}
	_, _ = w.WriteString("]")
}

// abortStream ends a list response that can no longer be completed. The
// closing bracket is left out so clients see a truncated document.
func (h *Handler) abortStream(c *gin.Context, written int, err error) {
	h.log.WithContext(c.Request.Context()).Error("product stream interrupted",
		observability.String("operation", OpList),
		observability.Int("written", written),
		observability.Error(err),
	)
	c.Abort()
}

// FindByID returns one product.
// @Summary      Get a product
// @Tags         products
// @Produce      json
// @Param        id   path      string  true  "Product id"
// @Success      200  {object}  Product
// @Failure      404  {object}  ErrorEnvelope
// @Router       /api/client/{id} [get]
func (h *Handler) FindByID(c *gin.Context) {
	p, err := h.upstream.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, OpFindByID, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Create forwards a new product, decoding its optional base64 image first.
// @Summary      Create a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        body  body      ImageProductDTO  true  "Product and optional base64 image"
// @Success      201   {object}  Product
// @Header       201   {string}  Location  "/api/client/{id}"
// @Failure      400   {object}  ValidationEnvelope
// @Router       /api/client [post]
func (h *Handler) Create(c *gin.Context) {
	var in ImageProductDTO
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, OpCreate, fmt.Errorf("%w: %v", ErrInvalidBody, err))
		return
	}
	p, err := in.ToProduct()
	if err != nil {
		h.fail(c, OpCreate, err)
		return
	}

	out, err := h.upstream.Create(c.Request.Context(), p)
	if err != nil {
		h.fail(c, OpCreate, err)
		return
	}
	c.Header("Location", Location(out.ID))
	c.JSON(http.StatusCreated, out)
}

// Update replaces a product. It answers 201 with the Location of the path
// id, whatever id the product service returns.
// @Summary      Update a product
// @Tags         products
// @Accept       json
// @Produce      json
// @Param        id    path      string   true  "Product id"
// @Param        body  body      Product  true  "Product"
// @Success      201   {object}  Product
// @Header       201   {string}  Location  "/api/client/{id}"
// @Failure      400   {object}  ValidationEnvelope
// @Failure      404   {object}  ErrorEnvelope
// @Router       /api/client/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id := c.Param("id")
	var in Product
	if err := c.ShouldBindJSON(&in); err != nil {
		h.fail(c, OpUpdate, fmt.Errorf("%w: %v", ErrInvalidBody, err))
		return
	}

	out, err := h.upstream.Update(c.Request.Context(), id, &in)
	if err != nil {
		h.fail(c, OpUpdate, err)
		return
	}
	c.Header("Location", Location(id))
	c.JSON(http.StatusCreated, out)
}

// Delete removes a product.
// @Summary      Delete a product
// @Tags         products
// @Param        id   path      string  true  "Product id"
// @Success      204
// @Failure      404  {object}  ErrorEnvelope
// @Router       /api/client/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	if err := h.upstream.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, OpDelete, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// fail is the single place where an operation's error becomes a response.
func (h *Handler) fail(c *gin.Context, op string, err error) {
	log := h.log.WithContext(c.Request.Context()).With(
		observability.String("operation", op),
		observability.Error(err),
	)
	now := h.now()

	var upErr *UpstreamError
	var decErr *DecodeError
	switch {
	case errors.As(err, &upErr):
		switch upErr.Status {
		case http.StatusNotFound:
			log.Info("product not found upstream")
			c.JSON(upErr.Status, NotFoundEnvelope(now, upErr))
		case http.StatusBadRequest:
			env, parseErr := BadRequestEnvelope(now, upErr)
			if parseErr != nil {
				log.Error("upstream field errors unreadable", observability.String("parse_error", parseErr.Error()))
			} else {
				log.Info("product rejected upstream")
			}
			c.JSON(upErr.Status, env)
		default:
			log.Warn("upstream error passed through",
				observability.Int("status", upErr.Status),
				observability.Bool("truncated", upErr.Truncated),
			)
			relay(c, upErr)
		}

	case errors.As(err, &decErr), errors.Is(err, ErrInvalidBody):
		log.Info("invalid request")
		c.JSON(http.StatusBadRequest, NewErrorEnvelope(now, http.StatusBadRequest, err.Error()))

	case c.Request.Context().Err() != nil:
		// The caller went away; nobody is left to answer.
		log.Debug("request canceled by client")
		c.AbortWithStatus(StatusClientClosedRequest)

	case errors.Is(err, ErrUpstreamTimeout):
		log.Error("product service timed out")
		c.JSON(http.StatusGatewayTimeout, NewErrorEnvelope(now, http.StatusGatewayTimeout, "product service did not answer in time"))

	case errors.Is(err, ErrInvalidResponse):
		log.Error("product service sent an unreadable response")
		c.JSON(http.StatusBadGateway, NewErrorEnvelope(now, http.StatusBadGateway, "product service returned an invalid response"))

	default:
		var tErr *TransportError
		if errors.As(err, &tErr) {
			log.Error("product service unreachable")
			c.JSON(http.StatusBadGateway, NewErrorEnvelope(now, http.StatusBadGateway, "product service unavailable"))
			return
		}
		log.Error("request failed")
		c.JSON(http.StatusInternalServerError, NewErrorEnvelope(now, http.StatusInternalServerError, "internal gateway error"))
	}
}

// relay copies an upstream failure to the caller untouched.
func relay(c *gin.Context, e *UpstreamError) {
	if e.ContentType != "" {
		c.Header("Content-Type", e.ContentType)
	}
	c.Status(e.Status)
	_, _ = c.Writer.Write(e.Body)
}
