// Package httpserver manages server creation and api routing.
package httpserver

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/go-petr/pet-ledger/internal/accountdelivery"
	"github.com/go-petr/pet-ledger/internal/accountservice"
	"github.com/go-petr/pet-ledger/internal/ledgerdelivery"
	"github.com/go-petr/pet-ledger/internal/ledgerservice"
	"github.com/go-petr/pet-ledger/internal/middleware"
	"github.com/go-petr/pet-ledger/pkg/configpkg"
	"github.com/go-petr/pet-ledger/pkg/moneypkg"
)

// Store is the account repository shared by the account and ledger services.
type Store interface {
	ledgerservice.Repo
	accountservice.Repo
}

// Server holds handlers router and configuration.
type Server struct {
	Engine *gin.Engine
	Config configpkg.Config
}

// ServeHTTP implements the http.Handler interface for the Server type.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.Engine.ServeHTTP(w, r)
}

// New creates Server type with instantiated domains and routes.
//
// publisher may be nil, then no ledger events are sent.
func New(store Store, publisher ledgerservice.Publisher, logger zerolog.Logger, config configpkg.Config) (*Server, error) {
	accountService := accountservice.New(store)
	ledgerService := ledgerservice.New(store, publisher, ledgerservice.Options{
		MaxAttempts:  config.MaxAttempts,
		RetryBackoff: config.RetryBackoff,
	})

	accountHandler := accountdelivery.NewHandler(accountService)
	ledgerHandler := ledgerdelivery.NewHandler(ledgerService)

	engine := gin.New()

	engine.Use(middleware.RequestLogger(logger))

	engine.POST("/accounts", accountHandler.Create)
	engine.GET("/accounts", accountHandler.List)
	engine.GET("/accounts/:id", accountHandler.Get)
	engine.DELETE("/accounts/:id", accountHandler.Delete)

	engine.POST("/accounts/:id/payments", ledgerHandler.Pay)
	engine.POST("/accounts/:id/refunds", ledgerHandler.Refund)
	engine.POST("/transfers", ledgerHandler.Transfer)

	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		if err := moneypkg.RegisterValidations(v); err != nil {
			return nil, errors.New("cannot register money validators")
		}
	}

	server := &Server{
		Engine: engine,
		Config: config,
	}

	return server, nil
}
