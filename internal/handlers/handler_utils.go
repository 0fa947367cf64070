package handlers

import (
	"errors"
	"fmt"
	"log"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/chamadopro/backend/internal/store"
)

var validate = validator.New()

func getUserUUID(c *fiber.Ctx) (uuid.UUID, error) {
	v := c.Locals("userId")
	if v == nil {
		return uuid.Nil, fmt.Errorf("unauthorized")
	}

	switch t := v.(type) {
	case uuid.UUID:
		return t, nil
	case string:
		return uuid.Parse(t)
	case []byte:
		return uuid.ParseBytes(t)
	default:
		return uuid.Nil, fmt.Errorf("invalid userId type: %T", v)
	}
}

// respondStoreError maps store sentinel errors onto the error taxonomy
// of the API. Unanticipated errors become a generic 500 with no
// internal detail leaked.
func respondStoreError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	msg := "Internal server error"

	switch {
	case errors.Is(err, store.ErrNotFound):
		status, msg = fiber.StatusNotFound, "Not found"
	case errors.Is(err, store.ErrConflict):
		status, msg = fiber.StatusConflict, err.Error()
	case errors.Is(err, store.ErrForbidden):
		status, msg = fiber.StatusForbidden, err.Error()
	case errors.Is(err, store.ErrValidation):
		status, msg = fiber.StatusBadRequest, err.Error()
	default:
		log.Println("store error:", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": msg,
	})
}
