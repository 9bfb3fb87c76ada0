// Package main library API.
//
// @title           Library API
// @version         1.0
// @description     Library backend (catalog, borrowing, users).
// @BasePath        /
// @schemes         http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description  Use:  Bearer <JWT>
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/CheropS/backend-library/app/echoServer"
	authctrl "github.com/CheropS/backend-library/app/echoServer/controller/auth"
	bookctrl "github.com/CheropS/backend-library/app/echoServer/controller/book"
	reviewctrl "github.com/CheropS/backend-library/app/echoServer/controller/review"
	userctrl "github.com/CheropS/backend-library/app/echoServer/controller/user"
	"github.com/CheropS/backend-library/app/echoServer/validation"
	"github.com/CheropS/backend-library/config"
	bookrepo "github.com/CheropS/backend-library/repository/book"
	isbnrepo "github.com/CheropS/backend-library/repository/isbn"
	reviewrepo "github.com/CheropS/backend-library/repository/review"
	tokenrepo "github.com/CheropS/backend-library/repository/token"
	userrepo "github.com/CheropS/backend-library/repository/user"
	authsvc "github.com/CheropS/backend-library/service/auth"
	booksvc "github.com/CheropS/backend-library/service/book"
	reviewsvc "github.com/CheropS/backend-library/service/review"
	usersvc "github.com/CheropS/backend-library/service/user"
	"github.com/CheropS/backend-library/util/database"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	echoSwagger "github.com/swaggo/echo-swagger"
)

func main() {

	cfg := config.Load()
	ctx := context.Background()

	// logger
	log := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	db, err := database.New(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Error("db connect failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	// repos
	ur := userrepo.New(db)
	br := bookrepo.New(db)
	rr := reviewrepo.New(db)
	tr := tokenrepo.New(db)
	ir := isbnrepo.NewHTTP(cfg.ApiNinjasKey)

	// services
	as := authsvc.New(ur, tr, cfg.JWTSecret)
	bs := booksvc.New(br, ir)
	rs := reviewsvc.New(database.SQLStore{DB: db}, ur, br, rr)
	us := usersvc.New(ur)

	// controllers
	v := validator.New()
	authC := &authctrl.Controller{Svc: as, V: v, Log: log}
	bookC := &bookctrl.Controller{Svc: bs, V: v, Log: log}
	reviewC := &reviewctrl.Controller{Svc: rs, V: v, Log: log}
	userC := &userctrl.Controller{Svc: us, V: v, Log: log}

	// echo
	e := echo.New()
	echoServer.RegisterMiddlewares(e)
	e.Validator = validation.New()

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(200, map[string]any{
			"status":  "ok",
			"message": "Service is healthy and connected",
		})
	})

	e.GET("/swagger/*", echoSwagger.WrapHandler)

	echoServer.Register(e, echoServer.C{
		Auth:   authC,
		Book:   bookC,
		Review: reviewC,
		User:   userC,

		Tokens:    tr,
		JWTSecret: cfg.JWTSecret,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Port
	}
	if port == "" {
		port = "8080"
	}

	log.Info("starting server", "port", port, "env", cfg.Env)

	e.Logger.Fatal(e.Start(":" + port))
}
