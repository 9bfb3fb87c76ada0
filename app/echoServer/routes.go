package echoServer

import (
	"net/http"

	authctrl "github.com/CheropS/backend-library/app/echoServer/controller/auth"
	bookctrl "github.com/CheropS/backend-library/app/echoServer/controller/book"
	reviewctrl "github.com/CheropS/backend-library/app/echoServer/controller/review"
	userctrl "github.com/CheropS/backend-library/app/echoServer/controller/user"
	tokenrepo "github.com/CheropS/backend-library/repository/token"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

type C struct {
	Auth   *authctrl.Controller
	Book   *bookctrl.Controller
	Review *reviewctrl.Controller
	User   *userctrl.Controller

	Tokens    tokenrepo.Repo
	JWTSecret string
}

func Register(e *echo.Echo, c C) {
	// Public
	pub := e.Group("/api/v1")
	pub.POST("/auth/register", c.Auth.Register)
	pub.POST("/auth/login", c.Auth.Login)

	// Auth
	auth := e.Group("/api/v1")
	auth.Use(echojwt.WithConfig(echojwt.Config{
		SigningKey: []byte(c.JWTSecret),

		NewClaimsFunc: func(c echo.Context) jwt.Claims { return jwt.MapClaims{} },
		TokenLookup:   "header:Authorization",
	}))
	auth.Use(RevocationCheck(c.Tokens))
	// claims -> user_id / role
	auth.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(ctx echo.Context) error {
			tokenObj := ctx.Get("user")
			if tokenObj == nil {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			var claims jwt.MapClaims
			switch t := tokenObj.(type) {
			case *jwt.Token:
				mc, ok := t.Claims.(jwt.MapClaims)
				if !ok {
					return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
				}
				claims = mc
			case jwt.MapClaims:
				claims = t
			default:
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			sub, ok := claims["sub"].(float64)
			if !ok {
				return ctx.JSON(http.StatusUnauthorized, echo.Map{"message": "unauthorized"})
			}

			ctx.Set("user_id", int64(sub))
			if role, ok := claims["role"].(string); ok {
				ctx.Set("role", role)
			}
			return next(ctx)
		}
	})

	auth.POST("/auth/logout", c.Auth.Logout)
	auth.POST("/auth/reset-password", c.Auth.ResetPassword)

	// Books
	auth.GET("/books", c.Book.List)
	auth.GET("/book/:book_id", c.Book.Detail)
	// Admin endpoints
	auth.POST("/books", c.Book.Add)
	auth.PUT("/book/:book_id", c.Book.Update)
	auth.DELETE("/book/:book_id", c.Book.Delete)

	// Borrow / return / history
	auth.POST("/users/books/:book_id", c.Review.Borrow)
	auth.PUT("/users/books/:book_id", c.Review.Return)
	auth.GET("/users/books", c.Review.History)
	auth.GET("/reviews/overdue", c.Review.Overdue)

	// Users
	auth.GET("/users", c.User.All)
	auth.GET("/user", c.User.Me)
	auth.PUT("/user/promote", c.User.Promote)
}
