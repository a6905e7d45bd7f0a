package httpserver

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/pscheid92/qapulse/internal/domain"
	apperrors "github.com/pscheid92/qapulse/internal/platform/errors"
)

const defaultListLimit = 100

type createQuestionRequest struct {
	Content     string `json:"content"`
	IsAnonymous *bool  `json:"is_anonymous"`
}

type answerRequest struct {
	Content string `json:"content"`
}

type statusRequest struct {
	Status string `json:"status"`
}

type answerResponse struct {
	ID         int64     `json:"id"`
	QuestionID int64     `json:"question_id"`
	UserID     int64     `json:"user_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
}

type questionResponse struct {
	ID          int64                 `json:"id"`
	Content     string                `json:"content"`
	CreatedAt   time.Time             `json:"created_at"`
	Status      domain.QuestionStatus `json:"status"`
	UserID      *int64                `json:"user_id"`
	IsAnonymous bool                  `json:"is_anonymous"`
	Sentiment   domain.Sentiment      `json:"sentiment"`
	Answers     []answerResponse      `json:"answers"`
}

func newAnswerResponse(a *domain.Answer) answerResponse {
	return answerResponse{
		ID:         a.ID,
		QuestionID: a.QuestionID,
		UserID:     a.UserID,
		Content:    a.Content,
		CreatedAt:  a.CreatedAt,
	}
}

// newQuestionResponse hides the author of anonymous questions.
func newQuestionResponse(q *domain.Question, answers []domain.Answer) questionResponse {
	resp := questionResponse{
		ID:          q.ID,
		Content:     q.Content,
		CreatedAt:   q.CreatedAt,
		Status:      q.Status,
		IsAnonymous: q.IsAnonymous,
		Sentiment:   q.Sentiment,
		Answers:     make([]answerResponse, 0, len(answers)),
	}
	if !q.IsAnonymous {
		resp.UserID = q.UserID
	}
	for i := range answers {
		resp.Answers = append(resp.Answers, newAnswerResponse(&answers[i]))
	}
	return resp
}

func (s *Server) handleCreateQuestion(c echo.Context) error {
	var req createQuestionRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").Wrap(err)
	}

	anonymous := true
	if req.IsAnonymous != nil {
		anonymous = *req.IsAnonymous
	}

	q, err := s.app.CreateQuestion(c.Request().Context(), actorFrom(c), req.Content, anonymous)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, newQuestionResponse(q, nil)); err != nil {
		return fmt.Errorf("failed to write question response: %w", err)
	}
	return nil
}

func (s *Server) handleListQuestions(c echo.Context) error {
	offset, err := queryInt(c, "skip", 0)
	if err != nil {
		return err
	}
	limit, err := queryInt(c, "limit", defaultListLimit)
	if err != nil {
		return err
	}

	rows, err := s.app.ListQuestions(c.Request().Context(), offset, limit)
	if err != nil {
		return err
	}

	resp := make([]questionResponse, 0, len(rows))
	for i := range rows {
		resp = append(resp, newQuestionResponse(&rows[i].Question, rows[i].Answers))
	}
	if err := c.JSON(http.StatusOK, resp); err != nil {
		return fmt.Errorf("failed to write questions response: %w", err)
	}
	return nil
}

func (s *Server) handleAnswerQuestion(c echo.Context) error {
	id, err := questionID(c)
	if err != nil {
		return err
	}

	var req answerRequest
	if err := c.Bind(&req); err != nil {
		return apperrors.ValidationError("invalid request body").Wrap(err)
	}

	a, err := s.app.AnswerQuestion(c.Request().Context(), actorFrom(c), id, req.Content)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, newAnswerResponse(a)); err != nil {
		return fmt.Errorf("failed to write answer response: %w", err)
	}
	return nil
}

// handleUpdateStatus reads the status from the query string, falling back to
// a JSON body. The service validates it after checking the caller's role.
func (s *Server) handleUpdateStatus(c echo.Context) error {
	id, err := questionID(c)
	if err != nil {
		return err
	}

	raw := c.QueryParam("status")
	if raw == "" && c.Request().ContentLength != 0 {
		var req statusRequest
		if err := c.Bind(&req); err != nil {
			return apperrors.ValidationError("invalid request body").Wrap(err)
		}
		raw = req.Status
	}

	q, err := s.app.UpdateStatus(c.Request().Context(), actorFrom(c), id, raw)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, newQuestionResponse(q, nil)); err != nil {
		return fmt.Errorf("failed to write question response: %w", err)
	}
	return nil
}

func (s *Server) handleSuggestAnswer(c echo.Context) error {
	id, err := questionID(c)
	if err != nil {
		return err
	}

	suggestion, err := s.app.SuggestAnswer(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return err
	}

	if err := c.JSON(http.StatusOK, map[string]string{"suggestion": suggestion}); err != nil {
		return fmt.Errorf("failed to write suggestion response: %w", err)
	}
	return nil
}

func questionID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperrors.ValidationError("invalid question id").WithField("id", c.Param("id"))
	}
	return id, nil
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.ValidationError("invalid query parameter").WithField("parameter", name)
	}
	return v, nil
}
