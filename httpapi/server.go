// Package httpapi exposes the dispute engine over HTTP. Handlers translate
// JSON requests into service calls and sentinel errors into status codes; no
// business rules live here.
package httpapi

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"trustledger/arbitrator"
	"trustledger/auth"
	"trustledger/dispute"
	"trustledger/params"
	"trustledger/resolution"
	"trustledger/token"
	"trustledger/voting"
)

// Server wires the domain services to gin routes.
type Server struct {
	auth        *auth.Service
	disputes    *dispute.Service
	votes       *voting.Service
	resolutions *resolution.Service
	arbitrators *arbitrator.Service
	tokens      *token.Service
	params      *params.Service
}

func NewServer(
	authSvc *auth.Service,
	disputes *dispute.Service,
	votes *voting.Service,
	resolutions *resolution.Service,
	arbitrators *arbitrator.Service,
	tokens *token.Service,
	paramsSvc *params.Service,
) *Server {
	return &Server{
		auth:        authSvc,
		disputes:    disputes,
		votes:       votes,
		resolutions: resolutions,
		arbitrators: arbitrators,
		tokens:      tokens,
		params:      paramsSvc,
	}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/v1")
	v1.POST("/auth/register", s.registerAccount)
	v1.POST("/auth/login", s.login)

	authed := v1.Group("")
	authed.Use(s.requireAuth())
	{
		authed.POST("/disputes", s.fileDispute)
		authed.GET("/disputes", s.getDisputeByInvoice)
		authed.GET("/disputes/count", s.disputeCount)
		authed.GET("/disputes/:id", s.getDispute)
		authed.POST("/disputes/:id/arbitrator", s.assignArbitrator)
		authed.POST("/disputes/:id/voting", s.startVoting)
		authed.POST("/disputes/:id/votes", s.castVote)
		authed.GET("/disputes/:id/summary", s.getSummary)
		authed.GET("/disputes/:id/votes/:voter", s.getVote)
		authed.POST("/disputes/:id/finalize", s.finalize)
		authed.POST("/disputes/:id/resolution", s.resolve)

		authed.POST("/arbitrators", s.registerArbitrator)
		authed.GET("/arbitrators/:principal", s.getArbitrator)
		authed.DELETE("/arbitrators/:principal", s.deactivateArbitrator)

		authed.GET("/balances/:account", s.getBalance)
		authed.POST("/balances/:account/mint", s.mint)

		authed.GET("/params", s.getParams)
		authed.PUT("/params/arbitration-fee", s.setArbitrationFee)
		authed.PUT("/params/voting-period", s.setVotingPeriod)
		authed.PUT("/params/min-vote-stake", s.setMinVoteStake)
	}

	return r
}

const principalKey = "principal"

// requireAuth resolves the caller principal from the bearer token. Core
// services only ever see the principal string.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		const prefix = "Bearer "
		if len(header) <= len(prefix) || header[:len(prefix)] != prefix {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing_token"})
			return
		}
		principal, _, err := s.auth.VerifyToken(header[len(prefix):])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

func caller(c *gin.Context) string {
	return c.GetString(principalKey)
}

// writeError maps the sentinel taxonomy onto HTTP statuses.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, dispute.ErrNotFound),
		errors.Is(err, voting.ErrNotFound),
		errors.Is(err, arbitrator.ErrNotFound),
		errors.Is(err, auth.ErrAccountNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": err.Error()})
	case errors.Is(err, dispute.ErrUnauthorized),
		errors.Is(err, voting.ErrUnauthorized),
		errors.Is(err, resolution.ErrUnauthorized),
		errors.Is(err, arbitrator.ErrUnauthorized),
		errors.Is(err, params.ErrUnauthorized),
		errors.Is(err, token.ErrUnauthorized):
		c.JSON(http.StatusForbidden, gin.H{"error": "unauthorized", "message": err.Error()})
	case errors.Is(err, dispute.ErrAlreadyExists),
		errors.Is(err, voting.ErrAlreadyVoted),
		errors.Is(err, dispute.ErrInvalidStatus),
		errors.Is(err, voting.ErrVotingClosed):
		c.JSON(http.StatusConflict, gin.H{"error": "conflict", "message": err.Error()})
	case errors.Is(err, voting.ErrInsufficientStake),
		errors.Is(err, voting.ErrTransferFailed),
		errors.Is(err, arbitrator.ErrTransferFailed),
		errors.Is(err, token.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment_required", "message": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal", "message": err.Error()})
	}
}
