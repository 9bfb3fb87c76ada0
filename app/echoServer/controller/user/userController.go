package user

import (
	"log/slog"
	"net/http"

	"github.com/CheropS/backend-library/app/echoServer/jwtx"
	usersvc "github.com/CheropS/backend-library/service/user"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc usersvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

type PromoteReq struct {
	Username string `json:"username" validate:"required"`
}

// GET /api/v1/user
func (h *Controller) Me(c echo.Context) error {
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}
	u, err := h.Svc.Get(c.Request().Context(), uid)
	if err != nil {
		if usersvc.Code(err) == usersvc.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
		}
		h.Log.Error("get user", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, u)
}

// GET /api/v1/users  (admin)
func (h *Controller) All(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "user not an admin"})
	}
	users, err := h.Svc.All(c.Request().Context())
	if err != nil {
		h.Log.Error("list users", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	if len(users) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no users found"})
	}
	return c.JSON(http.StatusOK, echo.Map{"users": users})
}

// PUT /api/v1/user/promote  (admin)
func (h *Controller) Promote(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	var req PromoteReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error"})
	}

	if err := h.Svc.PromoteToAdmin(c.Request().Context(), req.Username); err != nil {
		if usersvc.Code(err) == usersvc.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
		}
		h.Log.Error("promote", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "user promoted to admin"})
}
