// app/echoServer/middleware.go
package echoServer

import (
	"log/slog"
	"net/http"
	"time"

	tokenrepo "github.com/CheropS/backend-library/repository/token"
	jwtutil "github.com/CheropS/backend-library/util/jwt"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func RegisterMiddlewares(e *echo.Echo) {

	e.Use(middleware.Recover())

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return uuid.NewString() },
	}))

	e.Use(Slog())
}

func Slog() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			lat := time.Since(start).Milliseconds()

			rid := c.Response().Header().Get(echo.HeaderXRequestID)
			slog.Info("http",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"latency_ms", lat,
				"req_id", rid,
				"ip", c.RealIP(),
				"ua", c.Request().UserAgent(),
			)
			return err
		}
	}
}

// RevocationCheck rejects tokens that were logged out before they expired.
// Runs after signature verification, so the token in the header is known
// to be well formed.
func RevocationCheck(tr tokenrepo.Repo) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := jwtutil.StripBearer(c.Request().Header.Get("Authorization"))
			revoked, err := tr.IsRevoked(c.Request().Context(), tok)
			if err != nil {
				return c.JSON(http.StatusInternalServerError, echo.Map{"message": "internal error"})
			}
			if revoked {
				return c.JSON(http.StatusUnauthorized, echo.Map{"message": "token revoked"})
			}
			return next(c)
		}
	}
}
