package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/quorumledger/internal/chain"
	"github.com/jmerrifield20/quorumledger/internal/node"
	"github.com/jmerrifield20/quorumledger/internal/participants"
	"go.uber.org/zap"
)

// identityRequest is the wire form of a participant identity.
type identityRequest struct {
	IPAddress string `json:"ipAddress" binding:"required,ip"`
	UUID      string `json:"uuid" binding:"required,uuid"`
}

func (r identityRequest) identity() chain.Identity {
	return chain.Identity{IPAddress: r.IPAddress, UUID: r.UUID}
}

// messageRequest is the payload of POST /messages.
type messageRequest struct {
	Sender    *identityRequest `json:"sender" binding:"required"`
	Recipient *identityRequest `json:"recipient" binding:"required"`
	Content   string           `json:"content"`
	Timestamp string           `json:"timestamp"`
}

// LedgerHandler exposes the node's ledger, proposal and participant
// operations over HTTP.
type LedgerHandler struct {
	node   *node.Node
	logger *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(n *node.Node, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{node: n, logger: logger}
}

// Register mounts the ledger routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	rg.POST("/genesis", h.CreateGenesis)
	rg.GET("/index", h.Index)

	rg.GET("/participants", h.ListParticipants)
	rg.POST("/participants", h.RegisterParticipant)

	rg.POST("/messages", h.SendMessage)

	rg.POST("/proposals", h.ShareProposal)
	rg.GET("/chain/latest", h.LatestChain)

	l := rg.Group("/ledger")
	{
		l.GET("", h.HeldLedger)
		l.GET("/verify", h.Verify)
		l.POST("/sync", h.Sync)
	}
}

// RegisterLegacy mounts the route names used by earlier node versions so
// they can keep exchanging proposals with this node.
func (h *LedgerHandler) RegisterLegacy(r gin.IRoutes) {
	r.POST("/create-genesis", h.CreateGenesis)
	r.POST("/register-participant", h.RegisterParticipant)
	r.POST("/send-message", h.SendMessage)
	r.POST("/share-latest-chain", h.ShareProposal)
	r.GET("/get-latest-chain", h.LatestChain)
	r.GET("/index", h.Index)
}

// CreateGenesis handles POST /genesis by initialising the ledger.
func (h *LedgerHandler) CreateGenesis(c *gin.Context) {
	genesis, err := h.node.CreateGenesis(c.Request.Context())
	if err != nil {
		h.fail(c, "create genesis", err)
		return
	}
	RecordProposal(true)
	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Genesis block created and blockchain initialized",
		"ledger":  genesis,
	})
}

// RegisterParticipant handles POST /participants.
func (h *LedgerHandler) RegisterParticipant(c *gin.Context) {
	var req identityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.node.RegisterParticipant(c.Request.Context(), req.identity()); err != nil {
		h.fail(c, "register participant", err)
		return
	}
	RecordParticipantRegistered()
	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Participant registered successfully",
	})
}

// ListParticipants handles GET /participants.
func (h *LedgerHandler) ListParticipants(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"participants": h.node.Participants()})
}

// SendMessage handles POST /messages by appending to the held ledger.
func (h *LedgerHandler) SendMessage(c *gin.Context) {
	var req messageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	entry, err := h.node.SendMessage(c.Request.Context(), chain.Message{
		Sender:    req.Sender.identity(),
		Recipient: req.Recipient.identity(),
		Content:   req.Content,
		Timestamp: req.Timestamp,
	})
	if err != nil {
		h.fail(c, "send message", err)
		return
	}
	RecordLedgerAppend()
	c.JSON(http.StatusCreated, gin.H{
		"status":  "success",
		"message": "Message added to blockchain",
		"block":   entry,
	})
}

// ShareProposal handles POST /proposals. It validates and records a proposed
// ledger, then returns the consensus winner.
func (h *LedgerHandler) ShareProposal(c *gin.Context) {
	var proposal chain.Ledger
	if err := c.ShouldBindJSON(&proposal); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	res, err := h.node.ShareProposal(c.Request.Context(), proposal)
	if err != nil {
		h.fail(c, "share proposal", err)
		return
	}
	RecordProposal(true)
	RecordResolution(res)
	c.JSON(http.StatusOK, resolutionBody(res))
}

// LatestChain handles GET /chain/latest and returns the consensus winner.
// With no proposals the latest chain is an empty object.
func (h *LedgerHandler) LatestChain(c *gin.Context) {
	res, err := h.node.Latest()
	if errors.Is(err, chain.ErrEmptyConsensusSet) {
		c.JSON(http.StatusOK, gin.H{"status": "success", "latest_chain": gin.H{}})
		return
	}
	if err != nil {
		h.fail(c, "resolve latest chain", err)
		return
	}
	RecordResolution(res)
	c.JSON(http.StatusOK, resolutionBody(res))
}

// Index handles GET /index: participants and the consensus winner.
func (h *LedgerHandler) Index(c *gin.Context) {
	body := gin.H{
		"status":       "success",
		"participants": h.node.Participants(),
		"latest_chain": gin.H{},
	}
	res, err := h.node.Latest()
	switch {
	case err == nil:
		body["latest_chain"] = res.Ledger
	case !errors.Is(err, chain.ErrEmptyConsensusSet):
		h.fail(c, "resolve latest chain", err)
		return
	}
	c.JSON(http.StatusOK, body)
}

// HeldLedger handles GET /ledger, the ledger this node extends.
func (h *LedgerHandler) HeldLedger(c *gin.Context) {
	l, err := h.node.HeldLedger()
	if err != nil {
		h.fail(c, "held ledger", err)
		return
	}
	c.JSON(http.StatusOK, l)
}

// Verify handles GET /ledger/verify.
func (h *LedgerHandler) Verify(c *gin.Context) {
	v, err := h.node.VerifyHeld()
	if err != nil {
		h.fail(c, "verify held ledger", err)
		return
	}
	if !v.Valid {
		h.logger.Warn("held ledger integrity check failed",
			zap.Int("failed_at", v.FailedAt),
			zap.String("reason", string(v.Reason)),
		)
	}
	c.JSON(http.StatusOK, v)
}

// Sync handles POST /ledger/sync by adopting the consensus winner as the held ledger.
func (h *LedgerHandler) Sync(c *gin.Context) {
	res, err := h.node.Sync(c.Request.Context())
	if err != nil {
		h.fail(c, "sync", err)
		return
	}
	c.JSON(http.StatusOK, resolutionBody(res))
}

func resolutionBody(res chain.Resolution) gin.H {
	return gin.H{
		"status":       "success",
		"latest_chain": res.Ledger,
		"votes":        res.Votes,
		"proposals":    res.Total,
		"distinct":     res.Distinct,
	}
}

// fail maps core errors to HTTP responses.
func (h *LedgerHandler) fail(c *gin.Context, op string, err error) {
	var verr *chain.ValidationError
	switch {
	case errors.As(err, &verr):
		RecordProposal(false)
		c.JSON(http.StatusBadRequest, gin.H{
			"error":     "Invalid chain",
			"failed_at": verr.Index,
			"reason":    verr.Reason,
		})
	case errors.Is(err, node.ErrUnregisteredParticipant),
		errors.Is(err, participants.ErrAlreadyRegistered):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, node.ErrAlreadyInitialized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, node.ErrNoLedger), errors.Is(err, chain.ErrEmptyConsensusSet):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
