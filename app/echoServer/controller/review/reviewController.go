package review

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/CheropS/backend-library/app/echoServer/jwtx"
	rs "github.com/CheropS/backend-library/service/review"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type Controller struct {
	Svc rs.Service
	V   *validator.Validate
	Log *slog.Logger
}

// Borrow a book
// @Summary      Borrow a book
// @Tags         reviews
// @Produce      json
// @Param        book_id  path  int  true  "Book ID"
// @Success      200  {object}  map[string]any "updated book"
// @Failure      400  {object}  map[string]any "malformed id"
// @Failure      403  {object}  map[string]any "already borrowed"
// @Failure      404  {object}  map[string]any "user/book not found or unavailable"
// @Router       /api/v1/users/books/{book_id} [post]
func (h *Controller) Borrow(c echo.Context) error {
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || bookID <= 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"message": "invalid book id"})
	}
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	book, err := h.Svc.Borrow(c.Request().Context(), uid, bookID)
	if err != nil {
		switch rs.Code(err) {
		case rs.ErrUserNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
		case rs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case rs.ErrUnavailable:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not available"})
		case rs.ErrAlreadyBorrowed:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "book already borrowed"})
		case rs.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"message": "try again"})
		default:
			h.Log.Error("borrow", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message": "borrowed",
		"book":    book.Resp(),
	})
}

// Return a book
// @Summary      Return a borrowed book
// @Tags         reviews
// @Produce      json
// @Param        book_id  path  int  true  "Book ID"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  map[string]any "not currently borrowed / malformed id"
// @Failure      404  {object}  map[string]any "user/book not found"
// @Router       /api/v1/users/books/{book_id} [put]
func (h *Controller) Return(c echo.Context) error {
	bookID, err := strconv.ParseInt(c.Param("book_id"), 10, 64)
	if err != nil || bookID <= 0 {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "invalid book id"})
	}
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	if err := h.Svc.Return(c.Request().Context(), uid, bookID); err != nil {
		switch rs.Code(err) {
		case rs.ErrUserNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
		case rs.ErrBookNotFound:
			return c.JSON(http.StatusNotFound, echo.Map{"message": "book not found"})
		case rs.ErrNotBorrowed, rs.ErrAlreadyReturned:
			return c.JSON(http.StatusForbidden, echo.Map{"message": "book not borrowed"})
		case rs.ErrConflict:
			return c.JSON(http.StatusConflict, echo.Map{"message": "try again"})
		default:
			h.Log.Error("return", "err", err)
			return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"message": "returned"})
}

// History lists loans: full history by default, open loans only with
// ?reviewed=false.
// @Summary      Loan history for the authenticated user
// @Tags         reviews
// @Produce      json
// @Param        reviewed  query  string  false  "false = open loans only"
// @Success      200  {object}  map[string]any
// @Failure      403  {object}  map[string]any "no open loans"
// @Failure      404  {object}  map[string]any "no history"
// @Router       /api/v1/users/books [get]
func (h *Controller) History(c echo.Context) error {
	uid, err := jwtx.UserIDFromContext(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
	}

	openOnly := c.QueryParam("reviewed") == "false"

	var rows []rs.HistoryRow
	if openOnly {
		rows, err = h.Svc.Open(c.Request().Context(), uid)
	} else {
		rows, err = h.Svc.History(c.Request().Context(), uid)
	}
	if err != nil {
		if rs.Code(err) == rs.ErrUserNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"message": "user not found"})
		}
		h.Log.Error("history", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}

	if len(rows) == 0 {
		if openOnly {
			return c.JSON(http.StatusForbidden, echo.Map{"message": "no books currently borrowed"})
		}
		return c.JSON(http.StatusNotFound, echo.Map{"message": "no borrowing history"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}

// Overdue lists open loans past due (admin only).
func (h *Controller) Overdue(c echo.Context) error {
	if !jwtx.IsAdmin(c) {
		return c.JSON(http.StatusForbidden, echo.Map{"message": "forbidden"})
	}
	rows, err := h.Svc.Overdue(c.Request().Context())
	if err != nil {
		h.Log.Error("overdue", "err", err)
		return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"data": rows})
}
