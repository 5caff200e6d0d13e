package rest

import (
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/scribe/internal/common"
	"github.com/dmitrijs2005/scribe/internal/logging"
	"github.com/dmitrijs2005/scribe/internal/server/auth"
	"github.com/dmitrijs2005/scribe/internal/server/metrics"
	"github.com/gofiber/fiber/v3"
)

const userIDKey = "user_id"

// errUnauthorized is answered with 401 by errorHandler.
var errUnauthorized = errors.New("unauthorized")

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// authMiddleware resolves the bearer token to the owner id every handler
// scopes its queries by.
func authMiddleware(secretKey []byte) fiber.Handler {
	return func(c fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return errUnauthorized
		}

		userID, err := auth.GetUserIDFromToken(strings.TrimSpace(token), secretKey)
		if err != nil {
			if errors.Is(err, common.ErrTokenExpired) {
				return errors.Join(errUnauthorized, err)
			}
			return errUnauthorized
		}

		c.Locals(userIDKey, userID)
		return c.Next()
	}
}

func ownerID(c fiber.Ctx) string {
	id, _ := c.Locals(userIDKey).(string)
	return id
}

func requestLogger(logger logging.Logger, m *metrics.Metrics) fiber.Handler {
	return func(c fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if err != nil {
			status = statusOf(err)
		}

		elapsed := time.Since(start)
		m.ObserveRequest(c.Method(), c.Route().Path, status, elapsed)
		logger.Debug(c.Context(), "request",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"duration", elapsed,
		)
		return err
	}
}

// errorHandler maps the error taxonomy onto status codes and the stable
// {"error", "kind"} body. Storage and transcription causes are logged here
// since the body only carries the caller-facing message.
func errorHandler(logger logging.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		status := statusOf(err)
		body := errorResponse{Error: common.Message(err), Kind: kindOf(err)}

		var fe *fiber.Error
		switch {
		case errors.Is(err, errUnauthorized):
			body.Error = "Unauthorized"
			if errors.Is(err, common.ErrTokenExpired) {
				body.Error = "Token expired"
			}
		case errors.As(err, &fe):
			body.Error = fe.Message
		case status == fiber.StatusInternalServerError:
			logger.Error(c.Context(), "request failed",
				"method", c.Method(),
				"path", c.Path(),
				"owner_id", ownerID(c),
				"error", err,
			)
		}

		return c.Status(status).JSON(body)
	}
}

func statusOf(err error) int {
	var fe *fiber.Error
	switch {
	case errors.Is(err, errUnauthorized):
		return fiber.StatusUnauthorized
	case errors.As(err, &fe):
		return fe.Code
	case errors.Is(err, common.ErrValidation):
		return fiber.StatusBadRequest
	case errors.Is(err, common.ErrNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, common.ErrConflict):
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

func kindOf(err error) string {
	switch statusOf(err) {
	case fiber.StatusUnauthorized:
		return "unauthorized"
	case fiber.StatusBadRequest, fiber.StatusRequestEntityTooLarge:
		return "validation"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusConflict:
		return "conflict"
	default:
		return "service"
	}
}

func badRequest(msg string) error {
	return common.Validation(msg)
}
