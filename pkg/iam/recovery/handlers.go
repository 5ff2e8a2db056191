package recovery

import (
	"github.com/Abraxas-365/keystone/pkg/errx"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	service *Service
}

func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

type requestRecoveryRequest struct {
	Email string `json:"email"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// RegisterRoutes mounts the /recovery routes on router
func (h *Handlers) RegisterRoutes(router fiber.Router, guards ...fiber.Handler) {
	g := router.Group("/recovery")

	request := append(append([]fiber.Handler{}, guards...), h.Request)
	g.Post("/request", request...)
	g.Post("/reset", h.Reset)
}

// Request always answers 202 for a well-formed body
func (h *Handlers) Request(c *fiber.Ctx) error {
	var req requestRecoveryRequest
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return errx.Validation("email is required")
	}
	if err := h.service.RequestRecovery(c.UserContext(), req.Email); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusAccepted)
}

func (h *Handlers) Reset(c *fiber.Ctx) error {
	var req resetPasswordRequest
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return ErrInvalidToken()
	}
	if err := h.service.ResetPassword(c.UserContext(), req.Token, req.Password); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
