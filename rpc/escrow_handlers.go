package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"golang.org/x/text/unicode/norm"

	"landescrow/native/escrow"
	"landescrow/native/property"
	"landescrow/observability/logging"
	"landescrow/services/indexer"
)

// Escrow error codes, one per engine error kind.
const (
	codeEscrowNotFound        = -32021
	codeEscrowForbidden       = -32022
	codeEscrowInvalidState    = -32023
	codeEscrowInvalidAmount   = -32024
	codeEscrowInvalidDuration = -32025
	codeEscrowSelfDealing     = -32026
	codeEscrowInvalidLand     = -32027
	codeEscrowInvalidFee      = -32028
	codeEscrowTransferFailed  = -32029
)

var errHistoryDisabled = errors.New("event index disabled")

type rpcCall struct {
	ctx    context.Context
	caller [20]byte
	params []json.RawMessage
}

type method struct {
	auth bool
	fn   func(*rpcCall) (interface{}, error)
}

type paramsError struct{ err error }

func (e *paramsError) Error() string { return e.err.Error() }
func (e *paramsError) Unwrap() error { return e.err }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{err: fmt.Errorf(format, args...)}
}

// decode unmarshals the single parameter object. Methods without required
// fields accept an empty parameter list.
func (c *rpcCall) decode(dst interface{}) error {
	switch len(c.params) {
	case 0:
		return nil
	case 1:
	default:
		return invalidParams("exactly one parameter object expected")
	}
	if err := json.Unmarshal(c.params[0], dst); err != nil {
		return invalidParams("%v", err)
	}
	return nil
}

// quantity accepts a JSON number or a decimal string.
type quantity uint64

func (q *quantity) UnmarshalJSON(data []byte) error {
	raw := strings.TrimSpace(string(data))
	if raw == "null" {
		return nil
	}
	if unquoted, err := strconv.Unquote(raw); err == nil {
		raw = strings.TrimSpace(unquoted)
	}
	value, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid unsigned integer %q", raw)
	}
	*q = quantity(value)
	return nil
}

type escrowIDParams struct {
	ID quantity `json:"id"`
}

type escrowReasonParams struct {
	ID     quantity `json:"id"`
	Reason string   `json:"reason"`
}

type escrowCreateParams struct {
	LandID        quantity `json:"landId"`
	DurationDays  int64    `json:"durationDays"`
	Deposit       string   `json:"deposit"`
	ContactInfo   string   `json:"contactInfo"`
	AgreementHash string   `json:"agreementHash"`
}

type escrowResolveParams struct {
	ID            quantity `json:"id"`
	RefundToBuyer bool     `json:"refundToBuyer"`
	Notes         string   `json:"notes"`
}

type escrowPartialRefundParams struct {
	ID     quantity `json:"id"`
	Amount string   `json:"amount"`
	Notes  string   `json:"notes"`
}

type escrowVerifyParams struct {
	ID             quantity `json:"id"`
	Document       string   `json:"document"`
	DocumentBase64 string   `json:"documentBase64"`
}

type escrowListEventsParams struct {
	ID    quantity `json:"id"`
	Limit int      `json:"limit"`
}

type addressParams struct {
	Address string `json:"address"`
}

type userListParams struct {
	Address string `json:"address"`
	State   string `json:"state"`
	Open    bool   `json:"open"`
}

type landParams struct {
	LandID quantity `json:"landId"`
}

type feeParams struct {
	FeeBps *uint32 `json:"feeBps"`
}

type creditParams struct {
	Address string `json:"address"`
	Amount  string `json:"amount"`
}

type escrowJSON struct {
	ID              uint64 `json:"id"`
	LandID          uint64 `json:"landId"`
	Buyer           string `json:"buyer"`
	Seller          string `json:"seller"`
	Amount          string `json:"amount"`
	Deposit         string `json:"deposit"`
	Refunded        string `json:"refunded"`
	FeePaid         string `json:"feePaid"`
	SellerPaid      string `json:"sellerPaid"`
	State           string `json:"state"`
	StateCode       uint8  `json:"stateCode"`
	Terminal        bool   `json:"terminal"`
	CreatedAt       int64  `json:"createdAt"`
	Deadline        int64  `json:"deadline"`
	CompletedAt     int64  `json:"completedAt,omitempty"`
	AgreementHash   string `json:"agreementHash,omitempty"`
	ContactInfo     string `json:"contactInfo,omitempty"`
	CancelReason    string `json:"cancelReason,omitempty"`
	DisputeReason   string `json:"disputeReason,omitempty"`
	ResolutionNotes string `json:"resolutionNotes,omitempty"`
}

type escrowListResult struct {
	IDs []uint64 `json:"ids"`
}

type verifyResult struct {
	Match  bool   `json:"match"`
	Digest string `json:"digest"`
}

type paramsJSON struct {
	FeeBps       uint32 `json:"feeBps"`
	MaxFeeBps    uint32 `json:"maxFeeBps"`
	FeeCollector string `json:"feeCollector"`
	Arbiter      string `json:"arbiter"`
	Owner        string `json:"owner"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

type landJSON struct {
	ID      uint64 `json:"id"`
	Owner   string `json:"owner"`
	Price   string `json:"price"`
	ForSale bool   `json:"forSale"`
}

func (s *Server) methodTable() map[string]method {
	return map[string]method{
		"escrow_create":             {auth: true, fn: s.escrowCreate},
		"escrow_confirm":            {auth: true, fn: s.transition(s.engine.Confirm)},
		"escrow_complete":           {auth: true, fn: s.transition(s.engine.Complete)},
		"escrow_expire":             {auth: true, fn: s.transition(s.engine.Expire)},
		"escrow_cancel":             {auth: true, fn: s.reasoned(s.engine.Cancel)},
		"escrow_raiseDispute":       {auth: true, fn: s.reasoned(s.engine.RaiseDispute)},
		"escrow_resolveDispute":     {auth: true, fn: s.escrowResolve},
		"escrow_partialRefund":      {auth: true, fn: s.escrowPartialRefund},
		"escrow_get":                {fn: s.escrowGet},
		"escrow_listByUser":         {fn: s.escrowListByUser},
		"escrow_listByLand":         {fn: s.escrowListByLand},
		"escrow_verifyAgreement":    {fn: s.escrowVerify},
		"escrow_listEvents":         {fn: s.escrowListEvents},
		"escrow_updatePlatformFee":  {auth: true, fn: s.escrowUpdateFee},
		"escrow_updateFeeCollector": {auth: true, fn: s.addressUpdate(s.engine.UpdateFeeCollector)},
		"escrow_updateArbiter":      {auth: true, fn: s.addressUpdate(s.engine.UpdateArbiter)},
		"escrow_getParams":          {fn: s.escrowGetParams},
		"ledger_getBalance":         {fn: s.ledgerGetBalance},
		"ledger_credit":             {auth: true, fn: s.ledgerCredit},
		"land_get":                  {fn: s.landGet},
	}
}

// Methods lists the served JSON-RPC method names.
func (s *Server) Methods() []string {
	names := make([]string, 0, len(s.methods))
	for name := range s.methods {
		names = append(names, name)
	}
	return names
}

func (s *Server) escrowCreate(c *rpcCall) (interface{}, error) {
	var params escrowCreateParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.LandID == 0 {
		return nil, invalidParams("landId required")
	}
	deposit, err := parseAmount("deposit", params.Deposit)
	if err != nil {
		return nil, err
	}
	esc, err := s.engine.Create(c.ctx, c.caller, uint64(params.LandID), params.DurationDays,
		freeText(params.ContactInfo), strings.TrimSpace(params.AgreementHash), deposit)
	if err != nil {
		return nil, err
	}
	s.logger.Info("escrow created",
		slog.Uint64("escrowId", esc.ID),
		slog.Uint64("landId", esc.LandID),
		slog.String("buyer", common.Address(esc.Buyer).Hex()),
		logging.MaskField("contactInfo", esc.ContactInfo))
	return formatEscrowJSON(esc), nil
}

func (s *Server) transition(fn func([20]byte, uint64) error) func(*rpcCall) (interface{}, error) {
	return func(c *rpcCall) (interface{}, error) {
		var params escrowIDParams
		if err := c.decode(&params); err != nil {
			return nil, err
		}
		if params.ID == 0 {
			return nil, invalidParams("id required")
		}
		if err := fn(c.caller, uint64(params.ID)); err != nil {
			return nil, err
		}
		return s.currentEscrow(uint64(params.ID))
	}
}

func (s *Server) reasoned(fn func([20]byte, uint64, string) error) func(*rpcCall) (interface{}, error) {
	return func(c *rpcCall) (interface{}, error) {
		var params escrowReasonParams
		if err := c.decode(&params); err != nil {
			return nil, err
		}
		if params.ID == 0 {
			return nil, invalidParams("id required")
		}
		if err := fn(c.caller, uint64(params.ID), freeText(params.Reason)); err != nil {
			return nil, err
		}
		return s.currentEscrow(uint64(params.ID))
	}
}

func (s *Server) escrowResolve(c *rpcCall) (interface{}, error) {
	var params escrowResolveParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.ID == 0 {
		return nil, invalidParams("id required")
	}
	if err := s.engine.ResolveDispute(c.caller, uint64(params.ID), params.RefundToBuyer, freeText(params.Notes)); err != nil {
		return nil, err
	}
	return s.currentEscrow(uint64(params.ID))
}

func (s *Server) escrowPartialRefund(c *rpcCall) (interface{}, error) {
	var params escrowPartialRefundParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.ID == 0 {
		return nil, invalidParams("id required")
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	if err := s.engine.IssuePartialRefund(c.caller, uint64(params.ID), amount, freeText(params.Notes)); err != nil {
		return nil, err
	}
	return s.currentEscrow(uint64(params.ID))
}

func (s *Server) escrowGet(c *rpcCall) (interface{}, error) {
	var params escrowIDParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.ID == 0 {
		return nil, invalidParams("id required")
	}
	return s.currentEscrow(uint64(params.ID))
}

func (s *Server) currentEscrow(id uint64) (interface{}, error) {
	esc, err := s.engine.Escrow(id)
	if err != nil {
		return nil, err
	}
	return formatEscrowJSON(esc), nil
}

// escrowListByUser returns the escrows a party is involved in. The optional
// state and open filters narrow the list by lifecycle position.
func (s *Server) escrowListByUser(c *rpcCall) (interface{}, error) {
	var params userListParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return nil, err
	}
	var want *escrow.EscrowState
	if strings.TrimSpace(params.State) != "" {
		st, err := escrow.ParseState(params.State)
		if err != nil {
			return nil, invalidParams("state: %v", err)
		}
		want = &st
	}
	ids, err := s.engine.UserEscrows(addr)
	if err != nil {
		return nil, err
	}
	if want == nil && !params.Open {
		return escrowListResult{IDs: nonNilIDs(ids)}, nil
	}
	filtered := make([]uint64, 0, len(ids))
	for _, id := range ids {
		esc, err := s.engine.Escrow(id)
		if err != nil {
			return nil, err
		}
		if want != nil && esc.State != *want {
			continue
		}
		if params.Open && esc.State.Terminal() {
			continue
		}
		filtered = append(filtered, id)
	}
	return escrowListResult{IDs: filtered}, nil
}

func (s *Server) escrowListByLand(c *rpcCall) (interface{}, error) {
	var params landParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.LandID == 0 {
		return nil, invalidParams("landId required")
	}
	ids, err := s.engine.LandEscrows(uint64(params.LandID))
	if err != nil {
		return nil, err
	}
	return escrowListResult{IDs: nonNilIDs(ids)}, nil
}

func (s *Server) escrowVerify(c *rpcCall) (interface{}, error) {
	var params escrowVerifyParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.ID == 0 {
		return nil, invalidParams("id required")
	}
	document := []byte(params.Document)
	if encoded := strings.TrimSpace(params.DocumentBase64); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, invalidParams("documentBase64: %v", err)
		}
		document = decoded
	}
	match, err := s.engine.VerifyAgreement(uint64(params.ID), document)
	if err != nil {
		return nil, err
	}
	return verifyResult{Match: match, Digest: escrow.AgreementDigest(document)}, nil
}

func (s *Server) escrowListEvents(c *rpcCall) (interface{}, error) {
	var params escrowListEventsParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.ID == 0 {
		return nil, invalidParams("id required")
	}
	if s.history == nil {
		return nil, errHistoryDisabled
	}
	if _, err := s.engine.Escrow(uint64(params.ID)); err != nil {
		return nil, err
	}
	records, err := s.history.List(c.ctx, uint64(params.ID), params.Limit)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []indexer.Record{}
	}
	return records, nil
}

func (s *Server) escrowUpdateFee(c *rpcCall) (interface{}, error) {
	var params feeParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.FeeBps == nil {
		return nil, invalidParams("feeBps required")
	}
	if err := s.engine.UpdatePlatformFee(c.caller, *params.FeeBps); err != nil {
		return nil, err
	}
	s.logger.Info("platform fee updated", slog.Uint64("feeBps", uint64(*params.FeeBps)))
	return s.escrowGetParams(c)
}

func (s *Server) addressUpdate(fn func([20]byte, [20]byte) error) func(*rpcCall) (interface{}, error) {
	return func(c *rpcCall) (interface{}, error) {
		var params addressParams
		if err := c.decode(&params); err != nil {
			return nil, err
		}
		addr, err := parseAddress("address", params.Address)
		if err != nil {
			return nil, err
		}
		if err := fn(c.caller, addr); err != nil {
			return nil, err
		}
		return s.escrowGetParams(c)
	}
}

func (s *Server) escrowGetParams(*rpcCall) (interface{}, error) {
	params, err := s.engine.Params()
	if err != nil {
		return nil, err
	}
	return paramsJSON{
		FeeBps:       params.FeeBps,
		MaxFeeBps:    params.MaxFeeBps,
		FeeCollector: formatAddress(params.FeeCollector),
		Arbiter:      formatAddress(params.Arbiter),
		Owner:        formatAddress(s.engine.Owner()),
	}, nil
}

func (s *Server) ledgerGetBalance(c *rpcCall) (interface{}, error) {
	var params addressParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return nil, err
	}
	balance, err := s.engine.Balance(addr)
	if err != nil {
		return nil, err
	}
	return balanceResult{Address: formatAddress(addr), Balance: balance.String()}, nil
}

func (s *Server) ledgerCredit(c *rpcCall) (interface{}, error) {
	var params creditParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	addr, err := parseAddress("address", params.Address)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		return nil, err
	}
	balance, err := s.engine.Credit(c.caller, addr, amount)
	if err != nil {
		return nil, err
	}
	return balanceResult{Address: formatAddress(addr), Balance: balance.String()}, nil
}

func (s *Server) landGet(c *rpcCall) (interface{}, error) {
	var params landParams
	if err := c.decode(&params); err != nil {
		return nil, err
	}
	if params.LandID == 0 {
		return nil, invalidParams("landId required")
	}
	land, ok, err := s.lands.Land(c.ctx, uint64(params.LandID))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: land %d does not exist", escrow.ErrInvalidLand, params.LandID)
	}
	price := "0"
	if land.Price != nil {
		price = land.Price.String()
	}
	return landJSON{ID: land.ID, Owner: formatAddress(land.Owner), Price: price, ForSale: land.ForSale}, nil
}

// classify maps a handler error onto an HTTP status and JSON-RPC error.
func (s *Server) classify(methodName string, err error) (int, *RPCError) {
	var perr *paramsError
	switch {
	case errors.As(err, &perr):
		return http.StatusBadRequest, &RPCError{Code: codeInvalidParams, Message: "invalid_params", Data: perr.Error()}
	case errors.Is(err, property.ErrDirectoryUnavailable):
		s.logger.Warn("property directory unavailable", slog.String("method", methodName), slog.Any("error", err))
		return http.StatusServiceUnavailable, &RPCError{Code: codeServerError, Message: "directory_unavailable", Data: err.Error()}
	case errors.Is(err, errHistoryDisabled):
		return http.StatusServiceUnavailable, &RPCError{Code: codeServerError, Message: "event_index_disabled"}
	}

	kind := escrow.ErrorKind(err)
	status, code := escrowErrorStatus(kind)
	if code == codeServerError {
		s.logger.Error("escrow rpc failed", slog.String("method", methodName), slog.Any("error", err))
		return status, &RPCError{Code: code, Message: "internal_error"}
	}
	return status, &RPCError{Code: code, Message: kind, Data: err.Error()}
}

func escrowErrorStatus(kind string) (int, int) {
	switch kind {
	case escrow.KindNotFound:
		return http.StatusNotFound, codeEscrowNotFound
	case escrow.KindUnauthorized:
		return http.StatusForbidden, codeEscrowForbidden
	case escrow.KindInvalidState:
		return http.StatusConflict, codeEscrowInvalidState
	case escrow.KindInvalidAmount:
		return http.StatusBadRequest, codeEscrowInvalidAmount
	case escrow.KindInvalidDuration:
		return http.StatusBadRequest, codeEscrowInvalidDuration
	case escrow.KindSelfDealing:
		return http.StatusBadRequest, codeEscrowSelfDealing
	case escrow.KindInvalidLand:
		return http.StatusBadRequest, codeEscrowInvalidLand
	case escrow.KindInvalidFee:
		return http.StatusBadRequest, codeEscrowInvalidFee
	case escrow.KindTransferFailed:
		return http.StatusConflict, codeEscrowTransferFailed
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func parseAddress(field, raw string) ([20]byte, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return [20]byte{}, invalidParams("%s required", field)
	}
	if !common.IsHexAddress(trimmed) {
		return [20]byte{}, invalidParams("%s: invalid address %q", field, raw)
	}
	return common.HexToAddress(trimmed), nil
}

// parseAmount accepts a decimal or 0x-prefixed hex quantity up to 256 bits.
func parseAmount(field, raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, invalidParams("%s required", field)
	}
	var (
		value *uint256.Int
		err   error
	)
	if strings.HasPrefix(trimmed, "0x") || strings.HasPrefix(trimmed, "0X") {
		value, err = uint256.FromHex(strings.ToLower(trimmed))
	} else {
		value, err = uint256.FromDecimal(trimmed)
	}
	if err != nil {
		return nil, invalidParams("%s: %v", field, err)
	}
	return value.ToBig(), nil
}

func parseEscrowID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid escrow id %q", raw)
	}
	return id, nil
}

func formatAddress(addr [20]byte) string {
	return common.Address(addr).Hex()
}

func formatAmount(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func nonNilIDs(ids []uint64) []uint64 {
	if ids == nil {
		return []uint64{}
	}
	return ids
}

// freeText trims party-supplied text and folds it to NFC so the stored
// record does not depend on how a client composed accented characters.
func freeText(raw string) string {
	return norm.NFC.String(strings.TrimSpace(raw))
}

func formatEscrowJSON(esc *escrow.Escrow) escrowJSON {
	return escrowJSON{
		ID:              esc.ID,
		LandID:          esc.LandID,
		Buyer:           formatAddress(esc.Buyer),
		Seller:          formatAddress(esc.Seller),
		Amount:          formatAmount(esc.Amount),
		Deposit:         formatAmount(esc.Deposit),
		Refunded:        formatAmount(esc.Refunded),
		FeePaid:         formatAmount(esc.FeePaid),
		SellerPaid:      formatAmount(esc.SellerPaid),
		State:           esc.State.String(),
		StateCode:       uint8(esc.State),
		Terminal:        esc.State.Terminal(),
		CreatedAt:       esc.CreatedAt,
		Deadline:        esc.Deadline,
		CompletedAt:     esc.CompletedAt,
		AgreementHash:   esc.AgreementHash,
		ContactInfo:     esc.ContactInfo,
		CancelReason:    esc.CancelReason,
		DisputeReason:   esc.DisputeReason,
		ResolutionNotes: esc.ResolutionNotes,
	}
}
