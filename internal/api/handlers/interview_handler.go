package handlers

import (
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yoockh/hiready/internal/services"
	"github.com/yoockh/hiready/internal/utils"
)

type InterviewHandler struct {
	admission   services.AdmissionService
	interviews  services.InterviewService
	transcripts services.TranscriptService
	feedback    services.FeedbackService
}

func NewInterviewHandler(
	admission services.AdmissionService,
	interviews services.InterviewService,
	transcripts services.TranscriptService,
	feedback services.FeedbackService,
) *InterviewHandler {
	return &InterviewHandler{
		admission:   admission,
		interviews:  interviews,
		transcripts: transcripts,
		feedback:    feedback,
	}
}

// Create admits a new interview for the job info. Denials carry the
// user-facing message with the status of their code.
func (h *InterviewHandler) Create(c *gin.Context) {
	id, ok := requireIdentity(c)
	if !ok {
		return
	}

	res, err := h.admission.CreateSession(c.Request.Context(), id, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	if res.Allowed {
		c.JSON(http.StatusCreated, res)
		return
	}

	code := res.Reason.Code()
	if code == utils.CodeRateLimited && res.RetryAfter > 0 {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(res.RetryAfter.Seconds()))))
	}
	c.JSON(code.HTTPStatus(), res)
}

func (h *InterviewHandler) Get(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	iv, err := h.interviews.Get(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, iv)
}

func (h *InterviewHandler) ListByJobInfo(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	rows, err := h.interviews.ListByJobInfo(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": rows})
}

// Update lets a client that runs the voice SDK itself push call state.
func (h *InterviewHandler) Update(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	var req services.InterviewPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, utils.E(utils.CodeInvalidArgument, "InterviewHandler.Update", "invalid request body", err))
		return
	}

	ctx := c.Request.Context()
	if err := h.interviews.Update(ctx, userID, c.Param("id"), req); err != nil {
		writeError(c, err)
		return
	}
	iv, err := h.interviews.Get(ctx, userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, iv)
}

func (h *InterviewHandler) Messages(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	turns, err := h.transcripts.Condensed(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": turns})
}

func (h *InterviewHandler) Feedback(c *gin.Context) {
	userID, ok := requireUserID(c)
	if !ok {
		return
	}

	text, err := h.feedback.Generate(c.Request.Context(), userID, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"feedback": text})
}
