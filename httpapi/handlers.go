package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"trustledger/auth"
	"trustledger/dispute"
	"trustledger/voting"
)

// ---------- auth ----------

func (s *Server) registerAccount(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	acct, err := s.auth.Register(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrWeakPassword) || errors.Is(err, auth.ErrDuplicateEmail) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"account_id": acct.ID, "email": acct.Email, "role": acct.Role})
}

func (s *Server) login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	res, err := s.auth.Login(c.Request.Context(), req)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid_credentials"})
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"token": res.Token, "account_id": res.Account.ID})
}

// ---------- disputes ----------

func disputeJSON(rec dispute.Record) gin.H {
	return gin.H{
		"id":                 rec.ID,
		"invoice_id":         rec.InvoiceID,
		"complainant":        rec.Complainant,
		"respondent":         rec.Respondent,
		"reason":             rec.Reason,
		"amount":             rec.Amount,
		"status":             rec.Status,
		"created_at_height":  rec.CreatedAtHeight,
		"resolved_at_height": rec.ResolvedAtHeight,
		"resolution":         rec.Resolution,
		"arbitrator":         rec.Arbitrator,
	}
}

func (s *Server) fileDispute(c *gin.Context) {
	var req struct {
		InvoiceID  string `json:"invoice_id" binding:"required"`
		Respondent string `json:"respondent" binding:"required"`
		Reason     string `json:"reason"`
		Amount     int64  `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	rec, err := s.disputes.File(c.Request.Context(), caller(c), req.InvoiceID, req.Respondent, req.Reason, req.Amount)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, disputeJSON(rec))
}

func (s *Server) getDispute(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	rec, err := s.disputes.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, disputeJSON(rec))
}

func (s *Server) getDisputeByInvoice(c *gin.Context) {
	invoiceID := c.Query("invoice_id")
	if invoiceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invoice_id query parameter required"})
		return
	}
	rec, err := s.disputes.GetByInvoice(c.Request.Context(), invoiceID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, disputeJSON(rec))
}

func (s *Server) disputeCount(c *gin.Context) {
	n, err := s.disputes.Count(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": n})
}

func (s *Server) assignArbitrator(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	var req struct {
		Arbitrator string `json:"arbitrator" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	rec, err := s.disputes.AssignArbitrator(c.Request.Context(), caller(c), id, req.Arbitrator)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, disputeJSON(rec))
}

// ---------- voting ----------

func summaryJSON(sum voting.Summary) gin.H {
	return gin.H{
		"dispute_id":        sum.DisputeID,
		"total_votes":       sum.TotalVotes,
		"complainant_votes": sum.ComplainantVotes,
		"respondent_votes":  sum.RespondentVotes,
		"total_stake":       sum.TotalStake,
		"complainant_stake": sum.ComplainantStake,
		"respondent_stake":  sum.RespondentStake,
		"voting_ends_at":    sum.VotingEndsAt,
	}
}

func (s *Server) startVoting(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	sum, err := s.votes.Start(c.Request.Context(), caller(c), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summaryJSON(sum))
}

func (s *Server) castVote(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	var req struct {
		FavorComplainant *bool `json:"favor_complainant" binding:"required"`
		Stake            int64 `json:"stake" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	rec, err := s.votes.Cast(c.Request.Context(), caller(c), id, *req.FavorComplainant, req.Stake)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"dispute_id":        rec.DisputeID,
		"voter":             rec.Voter,
		"favor_complainant": rec.FavorComplainant,
		"stake":             rec.Stake,
		"voted_at_height":   rec.VotedAtHeight,
	})
}

func (s *Server) getSummary(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	sum, err := s.votes.Summary(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaryJSON(sum))
}

func (s *Server) getVote(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	rec, err := s.votes.Vote(c.Request.Context(), id, c.Param("voter"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"dispute_id":        rec.DisputeID,
		"voter":             rec.Voter,
		"favor_complainant": rec.FavorComplainant,
		"stake":             rec.Stake,
		"voted_at_height":   rec.VotedAtHeight,
	})
}

// ---------- resolution ----------

func (s *Server) resolve(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	var req struct {
		Resolution       string `json:"resolution" binding:"required"`
		FavorComplainant *bool  `json:"favor_complainant" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	rec, err := s.resolutions.Resolve(c.Request.Context(), caller(c), id, req.Resolution, *req.FavorComplainant)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, disputeJSON(rec))
}

func (s *Server) finalize(c *gin.Context) {
	id, ok := disputeID(c)
	if !ok {
		return
	}
	wins, err := s.resolutions.Finalize(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dispute_id": id, "complainant_wins": wins})
}

// ---------- arbitrators ----------

func (s *Server) registerArbitrator(c *gin.Context) {
	arb, err := s.arbitrators.Register(c.Request.Context(), caller(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"principal":     arb.Principal,
		"active":        arb.Active,
		"cases_handled": arb.CasesHandled,
		"reputation":    arb.Reputation,
	})
}

func (s *Server) getArbitrator(c *gin.Context) {
	arb, err := s.arbitrators.Get(c.Request.Context(), c.Param("principal"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"principal":            arb.Principal,
		"active":               arb.Active,
		"cases_handled":        arb.CasesHandled,
		"reputation":           arb.Reputation,
		"registered_at_height": arb.RegisteredAtHeight,
	})
}

func (s *Server) deactivateArbitrator(c *gin.Context) {
	if err := s.arbitrators.Deactivate(c.Request.Context(), caller(c), c.Param("principal")); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"principal": c.Param("principal"), "active": false})
}

// ---------- balances ----------

func (s *Server) getBalance(c *gin.Context) {
	amount, err := s.tokens.BalanceOf(c.Request.Context(), c.Param("account"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": c.Param("account"), "amount": amount})
}

func (s *Server) mint(c *gin.Context) {
	var req struct {
		Amount int64 `json:"amount" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := s.tokens.Mint(c.Request.Context(), caller(c), c.Param("account"), req.Amount); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": c.Param("account"), "minted": req.Amount})
}

// ---------- protocol params ----------

func (s *Server) getParams(c *gin.Context) {
	p, err := s.params.Current(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"arbitration_fee": p.ArbitrationFee,
		"voting_period":   p.VotingPeriod,
		"min_vote_stake":  p.MinVoteStake,
	})
}

func (s *Server) setArbitrationFee(c *gin.Context) {
	s.setParam(c, s.params.SetArbitrationFee)
}

func (s *Server) setVotingPeriod(c *gin.Context) {
	s.setParam(c, s.params.SetVotingPeriod)
}

func (s *Server) setMinVoteStake(c *gin.Context) {
	s.setParam(c, s.params.SetMinVoteStake)
}

func (s *Server) setParam(c *gin.Context, set func(ctx context.Context, caller string, value int64) error) {
	var req struct {
		Value int64 `json:"value" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": err.Error()})
		return
	}
	if err := set(c.Request.Context(), caller(c), req.Value); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"value": req.Value})
}

func disputeID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "invalid dispute id"})
		return 0, false
	}
	return id, true
}
