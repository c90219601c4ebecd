package outbox

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"edihub/internal/logger"
	"edihub/pkg/errors"
)

type BaseHandler struct {
	Logger logger.Logger
}

func (h *BaseHandler) HandleError(c *gin.Context, err error) {
	h.Logger.ErrorwCtx(c.Request.Context(), "Request error", "error", err, "path", c.Request.URL.Path)

	status := errors.ToHTTPStatus(err)
	response := errors.ToErrorResponse(err)

	c.JSON(status, response)
}

type Handler struct {
	BaseHandler
	service *Service
}

func NewHandler(service *Service, log logger.Logger) *Handler {
	return &Handler{
		BaseHandler: BaseHandler{Logger: log},
		service:     service,
	}
}

func (h *Handler) RegisterRoutes(router *gin.Engine) {
	v1 := router.Group("/api/v1")
	{
		v1.POST("/messages", h.EnqueueMessage)
		v1.GET("/peek/:actorNumber/:actorRole/:category", h.PeekBundle)
		v1.DELETE("/dequeue/:bundleId", h.DequeueBundle)
	}
}

// EnqueueMessageRequest is the HTTP intake shape for one outgoing message.
type EnqueueMessageRequest struct {
	ReceiverNumber     string `json:"receiverNumber" binding:"required"`
	ReceiverRole       string `json:"receiverRole" binding:"required"`
	DocumentType       string `json:"documentType" binding:"required"`
	BusinessReason     string `json:"businessReason" binding:"required"`
	ProcessType        string `json:"processType" binding:"required"`
	GridAreaCode       string `json:"gridAreaCode,omitempty"`
	RelatedToMessageID string `json:"relatedToMessageId,omitempty"`
	ExternalID         string `json:"externalId" binding:"required"`
	Payload            []byte `json:"payload" binding:"required"`
	CreatedAt          string `json:"createdAt,omitempty"`
}

// EnqueueMessageResponse reports the message identity, whether freshly
// enqueued or an earlier enqueue of the same external id.
type EnqueueMessageResponse struct {
	MessageID string `json:"messageId"`
}

// PeekBundleResponse carries the opaque bundle id and rendered document.
type PeekBundleResponse struct {
	BundleID string `json:"bundleId"`
	Document []byte `json:"document"`
}

// ToOutgoingMessage converts the intake shape to the domain message.
func (r *EnqueueMessageRequest) ToOutgoingMessage() (*OutgoingMessage, error) {
	msg := &OutgoingMessage{
		Receiver: Receiver{
			ActorNumber: r.ReceiverNumber,
			ActorRole:   ActorRole(r.ReceiverRole),
		},
		DocumentType:   DocumentType(r.DocumentType),
		BusinessReason: BusinessReason(r.BusinessReason),
		ProcessType:    ProcessType(r.ProcessType),
		GridAreaCode:   r.GridAreaCode,
		ExternalID:     r.ExternalID,
		Payload:        r.Payload,
	}
	if r.RelatedToMessageID != "" {
		related, err := uuid.Parse(r.RelatedToMessageID)
		if err != nil {
			return nil, errors.ErrValidation.WithCause(err).
				WithDetail("field", "relatedToMessageId")
		}
		msg.RelatedToMessageID = &related
	}
	if r.CreatedAt != "" {
		createdAt, err := time.Parse(time.RFC3339, r.CreatedAt)
		if err != nil {
			return nil, errors.ErrValidation.WithCause(err).
				WithDetail("field", "createdAt")
		}
		msg.CreatedAt = createdAt.UTC()
	}
	return msg, nil
}

// EnqueueMessage godoc
// @Summary      Enqueue an outgoing message
// @Description  Record one outgoing market message for later bundled delivery. Idempotent per receiver and external id.
// @Tags         outbox
// @Accept       json
// @Produce      json
// @Param        message  body      EnqueueMessageRequest  true  "Outgoing message"
// @Success      202      {object}  EnqueueMessageResponse
// @Failure      400      {object}  errors.ErrorResponse
// @Failure      500      {object}  errors.ErrorResponse
// @Router       /messages [post]
func (h *Handler) EnqueueMessage(c *gin.Context) {
	var req EnqueueMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errors.ToErrorResponse(errors.ErrValidation.WithCause(err)))
		return
	}

	msg, err := req.ToOutgoingMessage()
	if err != nil {
		h.HandleError(c, err)
		return
	}

	messageID, err := h.service.Enqueue(c.Request.Context(), msg)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, EnqueueMessageResponse{MessageID: messageID.String()})
}

// PeekBundle godoc
// @Summary      Peek the oldest ready bundle
// @Description  Return the oldest closed bundle of the category for the actor, rendered as a market document. Repeated calls return the same bundle until it is dequeued.
// @Tags         outbox
// @Produce      json
// @Param        actorNumber  path      string  true  "Actor number (GLN or EIC)"
// @Param        actorRole    path      string  true  "Actor market role"
// @Param        category     path      string  true  "Message category"
// @Success      200          {object}  PeekBundleResponse
// @Success      204          "No bundle ready"
// @Failure      400          {object}  errors.ErrorResponse
// @Failure      500          {object}  errors.ErrorResponse
// @Router       /peek/{actorNumber}/{actorRole}/{category} [get]
func (h *Handler) PeekBundle(c *gin.Context) {
	receiver := Receiver{
		ActorNumber: c.Param("actorNumber"),
		ActorRole:   ActorRole(c.Param("actorRole")),
	}
	category := MessageCategory(c.Param("category"))

	result, err := h.service.Peek(c.Request.Context(), receiver, category)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if result == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, PeekBundleResponse{BundleID: result.BundleID, Document: result.Content})
}

// DequeueBundle godoc
// @Summary      Dequeue a peeked bundle
// @Description  Acknowledge a bundle previously returned by peek, removing it from the queue. Unknown or already dequeued bundle ids report 404.
// @Tags         outbox
// @Produce      json
// @Param        bundleId  path  string  true  "Bundle id from peek"
// @Success      200  "Bundle dequeued"
// @Failure      404  {object}  errors.ErrorResponse
// @Failure      500  {object}  errors.ErrorResponse
// @Router       /dequeue/{bundleId} [delete]
func (h *Handler) DequeueBundle(c *gin.Context) {
	removed, err := h.service.Dequeue(c.Request.Context(), c.Param("bundleId"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if !removed {
		c.JSON(http.StatusNotFound, errors.ToErrorResponse(errors.ErrNotFound.
			WithDetail("message", "no closed bundle with that id")))
		return
	}

	c.Status(http.StatusOK)
}
