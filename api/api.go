// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package api provides the thin HTTP boundary over the relay: it maps
// requests onto the submission pipeline, the transaction store, and the
// wallet resolver, and maps the relay's error taxonomy onto status codes
package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/fundlabs-io/chainrelay/calldata"
	"github.com/fundlabs-io/chainrelay/database"
	"github.com/fundlabs-io/chainrelay/database/models"
	"github.com/fundlabs-io/chainrelay/txsubmit"
	"github.com/fundlabs-io/chainrelay/wallet"
	"github.com/gin-gonic/gin"
)

type Config struct {
	Logger     *slog.Logger
	Database   *database.Database
	Submitter  *txsubmit.Submitter
	Resolver   *wallet.Resolver
	ListenAddr string
}

type Api struct {
	logger    *slog.Logger
	db        *database.Database
	submitter *txsubmit.Submitter
	resolver  *wallet.Resolver
	server    *http.Server
}

func New(cfg Config) *Api {
	a := &Api{
		logger:    cfg.Logger,
		db:        cfg.Database,
		submitter: cfg.Submitter,
		resolver:  cfg.Resolver,
	}
	if a.logger == nil {
		// Create logger to throw away logs
		// We do this so we don't have to add guards around every log operation
		a.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/healthz", a.handleHealthcheck)
	v1 := router.Group("/v1")
	v1.POST("/transactions", a.handleSubmitTransaction)
	v1.GET("/transactions/:hash", a.handleGetTransaction)
	v1.GET("/wallets/:txHash/address", a.handleGetWalletAddress)
	a.server = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return a
}

// Start runs the HTTP listener until Stop is called or the listener fails
func (a *Api) Start() error {
	a.logger.Info(
		"starting listener",
		"component", "api",
		"address", a.server.Addr,
	)
	err := a.server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop shuts the listener down, letting in-flight requests drain
func (a *Api) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Handler exposes the router for tests
func (a *Api) Handler() http.Handler {
	return a.server.Handler
}

type submitRequest struct {
	SignedPayload string `json:"signed_payload" binding:"required"`
	Kind          string `json:"kind"           binding:"required"`
}

type transactionResponse struct {
	Hash        string `json:"hash"`
	FromAddress string `json:"from_address"`
	ToAddress   string `json:"to_address,omitempty"`
	Kind        string `json:"kind"`
	State       string `json:"state"`
	Amount      string `json:"amount,omitempty"`
}

func newTransactionResponse(tx *models.Transaction) transactionResponse {
	resp := transactionResponse{
		Hash:        tx.Hash,
		FromAddress: tx.FromAddress,
		ToAddress:   tx.ToAddress,
		Kind:        tx.Kind,
		State:       string(tx.State),
	}
	if tx.Amount.Valid {
		resp.Amount = tx.Amount.Decimal.String()
	}
	return resp
}

func (a *Api) handleHealthcheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (a *Api) handleSubmitTransaction(c *gin.Context) {
	var req submitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	kind := calldata.OperationKind(req.Kind)
	if !kind.Valid() {
		c.JSON(
			http.StatusBadRequest,
			gin.H{"error": "unknown operation kind: " + req.Kind},
		)
		return
	}
	record, err := a.submitter.Submit(
		c.Request.Context(),
		req.SignedPayload,
		kind,
	)
	if err != nil {
		a.renderSubmitError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newTransactionResponse(record))
}

// renderSubmitError maps the pipeline's error taxonomy onto status codes
func (a *Api) renderSubmitError(c *gin.Context, err error) {
	var (
		mismatchErr  *txsubmit.TypeMismatchError
		unknownErr   *calldata.UnknownOperationError
		malformedErr *calldata.MalformedPayloadError
		broadcastErr *txsubmit.BroadcastFailedError
	)
	switch {
	case errors.Is(err, txsubmit.ErrMalformedPayload),
		errors.As(err, &malformedErr),
		errors.As(err, &unknownErr),
		errors.As(err, &mismatchErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, wallet.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case errors.As(err, &broadcastErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
	default:
		a.logger.Error(
			"submit failed",
			"component", "api",
			"error", err,
		)
		c.JSON(
			http.StatusInternalServerError,
			gin.H{"error": "internal error"},
		)
	}
}

func (a *Api) handleGetTransaction(c *gin.Context) {
	tx, err := a.db.GetTransactionByHash(c.Param("hash"), nil)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "transaction not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, newTransactionResponse(tx))
}

func (a *Api) handleGetWalletAddress(c *gin.Context) {
	addr, err := a.resolver.ResolveAddress(
		c.Request.Context(),
		c.Param("txHash"),
	)
	if err != nil {
		switch {
		case errors.Is(err, database.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "wallet not found"})
		case errors.Is(err, wallet.ErrNotYetMined):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, wallet.ErrTransactionFailed):
			c.JSON(
				http.StatusUnprocessableEntity,
				gin.H{"error": err.Error()},
			)
		default:
			a.logger.Error(
				"wallet address resolution failed",
				"component", "api",
				"error", err,
			)
			c.JSON(
				http.StatusInternalServerError,
				gin.H{"error": "internal error"},
			)
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"address": addr.Hex()})
}
