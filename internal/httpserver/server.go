package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/MarkoPoloResearchLab/treasury/pkg/engine"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Ledger is the engine surface the HTTP layer consumes.
type Ledger interface {
	Process(ctx context.Context, request engine.OperationRequest) (engine.Outcome, error)
	Settle(ctx context.Context, request engine.SettlementRequest) (engine.Outcome, error)
	SettleBatch(ctx context.Context, requests []engine.SettlementRequest) engine.BatchOutcome
	Cancel(ctx context.Context, entryID engine.EntryID, actorID string, reason string) (engine.Outcome, error)
}

// Server exposes the ledger engine to the platform's route handlers.
type Server struct {
	ledger    Ledger
	store     engine.Store
	validate  *validator.Validate
	logger    *zap.Logger
	jwtSecret []byte
}

// NewServer wires a Server.
func NewServer(ledger Ledger, store engine.Store, logger *zap.Logger, jwtSecret []byte) *Server {
	return &Server{
		ledger:    ledger,
		store:     store,
		validate:  validator.New(),
		logger:    logger,
		jwtSecret: jwtSecret,
	}
}

// Router builds the chi routing tree.
func (server *Server) Router() http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)

	router.Route("/v1", func(route chi.Router) {
		route.Use(requireAuth(server.jwtSecret))

		route.Post("/operations", server.handleProcess)
		route.Get("/accounts/{accountID}/balance", server.handleBalance)
		route.Get("/accounts/{accountID}/entries", server.handleEntries)
		route.Post("/entries/{entryID}/cancel", server.handleCancel)

		route.Group(func(reviewerRoute chi.Router) {
			reviewerRoute.Use(requireReviewer)
			reviewerRoute.Post("/entries/{entryID}/settle", server.handleSettle)
			reviewerRoute.Post("/entries/settle-batch", server.handleSettleBatch)
		})
	})
	return router
}

func (server *Server) handleProcess(writer http.ResponseWriter, request *http.Request) {
	var body operationRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}
	if err := server.validate.Struct(body); err != nil {
		writeError(writer, http.StatusBadRequest, "validation", "request validation failed", validationDetails(err))
		return
	}

	operation, err := server.buildOperation(request, body)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}

	outcome, err := server.ledger.Process(request.Context(), operation)
	if err != nil {
		server.writeEngineError(writer, err)
		return
	}
	writeJSON(writer, http.StatusCreated, outcomeResponse(outcome, processingLabel(operation.Channel)))
}

func (server *Server) buildOperation(request *http.Request, body operationRequest) (engine.OperationRequest, error) {
	accountID, err := engine.NewAccountID(body.AccountID)
	if err != nil {
		return engine.OperationRequest{}, err
	}
	kind, err := engine.ParseEntryKind(body.Kind)
	if err != nil {
		return engine.OperationRequest{}, err
	}
	channel, err := engine.ParseChannel(body.Channel)
	if err != nil {
		return engine.OperationRequest{}, err
	}
	gross, err := engine.NewMoney(body.Amount, body.Currency)
	if err != nil {
		return engine.OperationRequest{}, err
	}
	correlationID, err := engine.NewCorrelationID(body.CorrelationID)
	if err != nil {
		return engine.OperationRequest{}, err
	}
	metadata, err := engine.NewMetadataJSON(string(body.Metadata))
	if err != nil {
		return engine.OperationRequest{}, err
	}
	return engine.OperationRequest{
		AccountID:     accountID,
		Kind:          kind,
		Gross:         gross,
		Channel:       channel,
		Urgent:        body.Urgent,
		CorrelationID: correlationID,
		Metadata:      metadata,
		ActorID:       actorFromContext(request.Context()),
	}, nil
}

func (server *Server) handleSettle(writer http.ResponseWriter, request *http.Request) {
	var body settleRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}
	if err := server.validate.Struct(body); err != nil {
		writeError(writer, http.StatusBadRequest, "validation", "request validation failed", validationDetails(err))
		return
	}

	settlement, err := server.buildSettlement(request, chi.URLParam(request, "entryID"), body.Decision, body.AdjustedAmount, body.Note)
	if err != nil {
		writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}

	outcome, err := server.ledger.Settle(request.Context(), settlement)
	if err != nil {
		server.writeEngineError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, outcomeResponse(outcome, ""))
}

func (server *Server) handleSettleBatch(writer http.ResponseWriter, request *http.Request) {
	var body batchSettleRequest
	if err := json.NewDecoder(request.Body).Decode(&body); err != nil {
		writeError(writer, http.StatusBadRequest, "validation", "invalid request body", nil)
		return
	}
	if err := server.validate.Struct(body); err != nil {
		writeError(writer, http.StatusBadRequest, "validation", "request validation failed", validationDetails(err))
		return
	}

	settlements := make([]engine.SettlementRequest, 0, len(body.Items))
	for _, item := range body.Items {
		settlement, err := server.buildSettlement(request, item.EntryID, item.Decision, item.AdjustedAmount, item.Note)
		if err != nil {
			writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
			return
		}
		settlements = append(settlements, settlement)
	}

	batch := server.ledger.SettleBatch(request.Context(), settlements)
	response := batchSettleResponse{
		Succeeded: batch.Succeeded,
		Failed:    batch.Failed,
		Results:   make([]batchSettleOutcome, 0, len(batch.Results)),
	}
	for _, result := range batch.Results {
		item := batchSettleOutcome{EntryID: result.EntryID.String()}
		if result.Err != nil {
			item.Error = result.Err.Error()
		} else {
			item.Status = result.Outcome.Status.String()
			outcome := outcomeResponse(result.Outcome, "")
			item.Outcome = &outcome
		}
		response.Results = append(response.Results, item)
	}
	writeJSON(writer, http.StatusOK, response)
}

func (server *Server) buildSettlement(request *http.Request, rawEntryID string, rawDecision string, adjusted *int64, note string) (engine.SettlementRequest, error) {
	entryID, err := engine.NewEntryID(rawEntryID)
	if err != nil {
		return engine.SettlementRequest{}, err
	}
	decision, err := engine.ParseDecision(rawDecision)
	if err != nil {
		return engine.SettlementRequest{}, err
	}
	reviewerID, err := engine.NewReviewerID(actorFromContext(request.Context()))
	if err != nil {
		return engine.SettlementRequest{}, err
	}
	settlement := engine.SettlementRequest{
		EntryID:    entryID,
		Decision:   decision,
		ReviewerID: reviewerID,
		Note:       note,
	}
	if adjusted != nil {
		amount, err := engine.NewMoney(*adjusted, engine.DefaultCurrency)
		if err != nil {
			return engine.SettlementRequest{}, err
		}
		settlement.AdjustedGross = &amount
	}
	return settlement, nil
}

func (server *Server) handleCancel(writer http.ResponseWriter, request *http.Request) {
	entryID, err := engine.NewEntryID(chi.URLParam(request, "entryID"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}
	var body cancelRequest
	if request.Body != nil {
		// Body is optional for cancels; a bare POST cancels without a reason.
		_ = json.NewDecoder(request.Body).Decode(&body)
	}

	outcome, err := server.ledger.Cancel(request.Context(), entryID, actorFromContext(request.Context()), body.Reason)
	if err != nil {
		server.writeEngineError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, outcomeResponse(outcome, ""))
}

func (server *Server) handleBalance(writer http.ResponseWriter, request *http.Request) {
	accountID, err := engine.NewAccountID(chi.URLParam(request, "accountID"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}
	account, err := server.store.Account(request.Context(), accountID)
	if err != nil {
		server.writeEngineError(writer, err)
		return
	}
	writeJSON(writer, http.StatusOK, balanceResponse{
		AccountID: account.ID.String(),
		Balance:   account.Balance.Units().Int64(),
		Currency:  account.Balance.Currency(),
	})
}

func (server *Server) handleEntries(writer http.ResponseWriter, request *http.Request) {
	accountID, err := engine.NewAccountID(chi.URLParam(request, "accountID"))
	if err != nil {
		writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
		return
	}
	since := time.Now().UTC().Add(-30 * 24 * time.Hour).Unix()
	entries, err := server.store.EntriesSince(request.Context(), accountID, "", since)
	if err != nil {
		server.writeEngineError(writer, err)
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, entry := range entries {
		views = append(views, entryView{
			EntryID:       entry.EntryID.String(),
			Kind:          entry.Kind.String(),
			Channel:       entry.Channel.String(),
			Gross:         entry.Gross.Units().Int64(),
			Fee:           entry.Fee.Units().Int64(),
			Net:           entry.Net.Units().Int64(),
			Currency:      entry.Gross.Currency(),
			Status:        entry.Status.String(),
			CorrelationID: entry.CorrelationID.String(),
			Metadata:      json.RawMessage(entry.MetadataJSON.String()),
			CreatedAt:     entry.CreatedUnixUTC,
			SettledAt:     entry.SettledUnixUTC,
		})
	}
	writeJSON(writer, http.StatusOK, views)
}

// writeEngineError maps engine sentinels onto stable HTTP codes. Store
// failures surface as a generic retry message; the correlation id stays
// available to support through the operation log.
func (server *Server) writeEngineError(writer http.ResponseWriter, err error) {
	var limitError engine.LimitError
	switch {
	case errors.As(err, &limitError):
		details := make([]string, 0, len(limitError.Violations))
		for _, violation := range limitError.Violations {
			details = append(details, violation.Message)
		}
		writeError(writer, http.StatusUnprocessableEntity, "limit_exceeded", "one or more limits exceeded", details)
	case errors.Is(err, engine.ErrInsufficientBalance):
		writeError(writer, http.StatusUnprocessableEntity, "insufficient_balance", err.Error(), nil)
	case errors.Is(err, engine.ErrAccountNotEligible):
		writeError(writer, http.StatusForbidden, "account_not_eligible", err.Error(), nil)
	case errors.Is(err, engine.ErrSettlementConflict), errors.Is(err, engine.ErrDuplicateCorrelation):
		writeError(writer, http.StatusConflict, "conflict", err.Error(), nil)
	case errors.Is(err, engine.ErrUnknownAccount), errors.Is(err, engine.ErrUnknownEntry):
		writeError(writer, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.Is(err, engine.ErrValidation), errors.Is(err, engine.ErrUnknownChannel), errors.Is(err, engine.ErrCurrencyMismatch):
		writeError(writer, http.StatusBadRequest, "validation", err.Error(), nil)
	case errors.Is(err, engine.ErrStoreCommitFailure):
		server.logger.Error("store commit failure", zap.Error(err))
		writeError(writer, http.StatusBadGateway, "store_failure", "operation could not be committed, try again", nil)
	default:
		server.logger.Error("unhandled engine error", zap.Error(err))
		writeError(writer, http.StatusInternalServerError, "internal", "internal error", nil)
	}
}

func outcomeResponse(outcome engine.Outcome, processingTime string) operationResponse {
	response := operationResponse{
		EntryID: outcome.EntryID.String(),
		Status:  outcome.Status.String(),
		Fees: feeBreakdown{
			BaseFee:       outcome.Fees.BaseFee.Units().Int64(),
			PercentageFee: outcome.Fees.PercentageFee.Units().Int64(),
			UrgentFee:     outcome.Fees.UrgentFee.Units().Int64(),
			TotalFee:      outcome.Fees.TotalFee.Units().Int64(),
			NetAmount:     outcome.Fees.NetAmount.Units().Int64(),
		},
		NetAmount:      outcome.Net.Units().Int64(),
		Warnings:       outcome.Warnings,
		Duplicate:      outcome.Duplicate,
		ProcessingTime: processingTime,
	}
	if outcome.NewBalance != nil {
		balance := outcome.NewBalance.Units().Int64()
		response.NewBalance = &balance
	}
	return response
}

// processingLabel is a status label shown to end users, not an in-process delay.
func processingLabel(channel engine.Channel) string {
	switch channel {
	case engine.ChannelBank:
		return "1-3 business days"
	case engine.ChannelMobile:
		return "within 30 minutes"
	case engine.ChannelCrypto:
		return "within 1 hour"
	default:
		return "immediate"
	}
}

func validationDetails(err error) []string {
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return nil
	}
	details := make([]string, 0, len(validationErrors))
	for _, fieldError := range validationErrors {
		details = append(details, fieldError.Field()+" failed on the '"+fieldError.Tag()+"' rule")
	}
	return details
}

func writeJSON(writer http.ResponseWriter, status int, payload any) {
	writer.Header().Set("Content-Type", "application/json")
	writer.WriteHeader(status)
	_ = json.NewEncoder(writer).Encode(payload)
}

func writeError(writer http.ResponseWriter, status int, code string, message string, details []string) {
	writeJSON(writer, status, errorResponse{Error: message, Code: code, Details: details})
}
