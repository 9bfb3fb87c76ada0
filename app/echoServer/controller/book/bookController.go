package book

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CheropS/backend-library/app/echoServer/jwtx"
	"github.com/CheropS/backend-library/model"
	booksvc "github.com/CheropS/backend-library/service/book"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc booksvc.Service
	V   *validator.Validate
	Log *slog.Logger
}

// POST /api/v1/books  (admin)
func (h *Controller) Add(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	var req AddBookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "validation error", "errors": err.Error()})
	}

	b, err := h.Svc.Add(c.Request().Context(), model.Book{
		Title:     req.Title,
		Author:    req.Author,
		ISBN:      req.ISBN,
		Publisher: req.Publisher,
		Quantity:  req.Quantity,
	})
	if err != nil {
		switch booksvc.Code(err) {
		case booksvc.ErrDuplicateISBN:
			return c.JSON(http.StatusConflict, echo.Map{"message": "book with this isbn already exists"})
		case booksvc.ErrBadInput:
			return c.JSON(http.StatusBadRequest, echo.Map{"message": "bad input"})
		default:
			h.Log.Error("book add", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusCreated, b.Resp())
}

// PUT /api/v1/book/:book_id  (admin)
func (h *Controller) Update(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	var req UpdateBookReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid json"})
	}
	if err := h.V.Struct(req); err != nil {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "all fields are required"})
	}

	b, err := h.Svc.Update(c.Request().Context(), model.Book{
		ID:        id,
		Title:     req.Title,
		Author:    req.Author,
		ISBN:      req.ISBN,
		Publisher: req.Publisher,
		Quantity:  req.Quantity,
	})
	if err != nil {
		switch booksvc.Code(err) {
		case booksvc.ErrNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case booksvc.ErrDuplicateISBN:
			return c.JSON(http.StatusConflict, echo.Map{"message": "book with this isbn already exists"})
		case booksvc.ErrBadInput:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "all fields are required"})
		default:
			h.Log.Error("book update", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, b.Resp())
}

// DELETE /api/v1/book/:book_id  (admin)
func (h *Controller) Delete(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	if err := h.Svc.Delete(c.Request().Context(), id); err != nil {
		if booksvc.Code(err) == booksvc.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		}
		h.Log.Error("book delete", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "book deleted"})
}

// GET /api/v1/books
func (h *Controller) List(c echo.Context) error {
	rows, err := h.Svc.List(c.Request().Context())
	if err != nil {
		h.Log.Error("book list", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	if len(rows) == 0 {
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no books found"})
	}
	out := make([]model.BookResp, 0, len(rows))
	for _, b := range rows {
		out = append(out, b.Resp())
	}
	return c.JSON(http.StatusOK, echo.Map{"data": out})
}

// GET /api/v1/book/:book_id
func (h *Controller) Detail(c echo.Context) error {
	id, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || id <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid id"})
	}
	b, err := h.Svc.Detail(c.Request().Context(), id)
	if err != nil {
		if booksvc.Code(err) == booksvc.ErrNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		}
		h.Log.Error("book detail", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, b.Resp())
}
