// Package api adapts external input to ledger calls and ledger results to
// user-facing messages. It holds no business rules of its own.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hashicorp/go-hclog"
	"github.com/javanstorm/capledger/internal/ledger"
	"github.com/javanstorm/capledger/internal/structs"
)

// Ledger is the set of ledger operations the façade exposes.
type Ledger interface {
	CreateVM(req structs.Amounts) (*structs.VM, error)
	DestroyVM(id string) (*structs.VM, error)
	CreatePool(name string, cpu, memory int64) (structs.Pool, error)
	DeletePool(name string) (structs.Pool, error)
	AdjustResources(source, target string, cpu, memory int64) (*ledger.Transfer, error)
	Resources() structs.Resources
	Pools() structs.PoolTable
	Pool(name string) (structs.Pool, error)
	VM(id string) (*structs.VM, error)
	VMs() ([]*structs.VM, error)
}

// Response is the outcome of one request: an HTTP-style status code, one
// human-readable message and, on success, a payload.
type Response struct {
	Code    int         `json:"-"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// OK reports whether the request succeeded.
func (r Response) OK() bool {
	return r.Code >= 200 && r.Code < 300
}

// ValidationError is malformed input rejected before it reaches the ledger.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Invalid %s: %s", e.Field, e.Message)
}

// Service translates untyped input into ledger calls.
type Service struct {
	ledger Ledger
	logger hclog.Logger
}

// NewService wraps a ledger.
func NewService(l Ledger, logger hclog.Logger) *Service {
	return &Service{
		ledger: l,
		logger: logger.Named("api"),
	}
}

// CreateVM provisions a VM from the global pool.
func (s *Service) CreateVM(cpu, memory, storage string) Response {
	var errs []*ValidationError
	c := parsePositive("cpu", cpu, &errs)
	m := parsePositive("memory", memory, &errs)
	st := parsePositive("storage", storage, &errs)
	if len(errs) > 0 {
		return invalid(errs)
	}

	v, err := s.ledger.CreateVM(structs.Amounts{CPU: c, Memory: m, Storage: st})
	switch {
	case err == nil:
		return Response{
			Code:    http.StatusCreated,
			Message: fmt.Sprintf("VM %s created successfully with CPU: %d, Memory: %d, Storage: %d.", v.ID, v.CPU, v.Memory, v.Storage),
			Data:    v,
		}
	case errors.Is(err, ledger.ErrInsufficientCapacity):
		return Response{Code: http.StatusConflict, Message: "Insufficient resources to create VM."}
	default:
		return s.failure("create vm", err)
	}
}

// DestroyVM releases a VM's grant.
func (s *Service) DestroyVM(id string) Response {
	id = strings.TrimSpace(id)
	if id == "" {
		return invalid([]*ValidationError{{Field: "id", Message: "is required"}})
	}

	v, err := s.ledger.DestroyVM(id)
	switch {
	case err == nil:
		return Response{
			Code:    http.StatusOK,
			Message: fmt.Sprintf("VM %s destroyed, released CPU: %d, Memory: %d, Storage: %d.", v.ID, v.CPU, v.Memory, v.Storage),
			Data:    v,
		}
	case errors.Is(err, ledger.ErrVMNotFound):
		return Response{Code: http.StatusNotFound, Message: "VM not found."}
	default:
		return s.failure("destroy vm", err)
	}
}

// CreatePool carves a named pool out of the global pool.
func (s *Service) CreatePool(name, cpu, memory string) Response {
	var errs []*ValidationError
	name = strings.TrimSpace(name)
	if name == "" {
		errs = append(errs, &ValidationError{Field: "name", Message: "is required"})
	}
	c := parseNonNegative("cpu", cpu, &errs)
	m := parseNonNegative("memory", memory, &errs)
	if len(errs) > 0 {
		return invalid(errs)
	}

	p, err := s.ledger.CreatePool(name, c, m)
	switch {
	case err == nil:
		return Response{
			Code:    http.StatusCreated,
			Message: fmt.Sprintf("Pool %s created successfully with CPU: %d, Memory: %d.", name, p.CPU, p.Memory),
			Data:    poolView{Name: name, Pool: p},
		}
	case errors.Is(err, ledger.ErrPoolExists):
		return Response{Code: http.StatusConflict, Message: "Pool already exists."}
	case errors.Is(err, ledger.ErrInsufficientCapacity):
		return Response{Code: http.StatusConflict, Message: "Insufficient resources to create pool."}
	default:
		return s.failure("create pool", err)
	}
}

// DeletePool returns a pool's holdings to the global pool.
func (s *Service) DeletePool(name string) Response {
	name = strings.TrimSpace(name)
	if name == "" {
		return invalid([]*ValidationError{{Field: "name", Message: "is required"}})
	}

	p, err := s.ledger.DeletePool(name)
	switch {
	case err == nil:
		return Response{
			Code:    http.StatusOK,
			Message: fmt.Sprintf("Pool %s deleted, released CPU: %d, Memory: %d.", name, p.CPU, p.Memory),
			Data:    poolView{Name: name, Pool: p},
		}
	case errors.Is(err, ledger.ErrPoolNotFound):
		return Response{Code: http.StatusNotFound, Message: "Pool does not exist."}
	default:
		return s.failure("delete pool", err)
	}
}

// AdjustResources moves cpu and memory between pools.
func (s *Service) AdjustResources(source, target, cpu, memory string) Response {
	var errs []*ValidationError
	source, target = strings.TrimSpace(source), strings.TrimSpace(target)
	if source == "" {
		errs = append(errs, &ValidationError{Field: "source", Message: "is required"})
	}
	if target == "" {
		errs = append(errs, &ValidationError{Field: "target", Message: "is required"})
	}
	c := parseNonNegative("cpu", cpu, &errs)
	m := parseNonNegative("memory", memory, &errs)
	if len(errs) > 0 {
		return invalid(errs)
	}

	tr, err := s.ledger.AdjustResources(source, target, c, m)
	switch {
	case err == nil:
		return Response{
			Code:    http.StatusOK,
			Message: fmt.Sprintf("Moved %d CPU and %d Memory from %s to %s.", tr.CPU, tr.Memory, tr.Source, tr.Target),
			Data: transferView{
				Source: poolView{Name: tr.Source, Pool: tr.SourcePool},
				Target: poolView{Name: tr.Target, Pool: tr.TargetPool},
				CPU:    tr.CPU,
				Memory: tr.Memory,
			},
		}
	case errors.Is(err, ledger.ErrPoolNotFound):
		return Response{Code: http.StatusNotFound, Message: "One or both pools do not exist."}
	case errors.Is(err, ledger.ErrSamePool):
		return Response{Code: http.StatusBadRequest, Message: "Source and target pools must differ."}
	case errors.Is(err, ledger.ErrInsufficientPoolCapacity):
		return Response{Code: http.StatusConflict, Message: "Insufficient resources in source pool."}
	default:
		return s.failure("adjust resources", err)
	}
}

// Resources reports the global resource pool.
func (s *Service) Resources() Response {
	return Response{Code: http.StatusOK, Message: "Resources.", Data: s.ledger.Resources()}
}

// Pools lists every pool.
func (s *Service) Pools() Response {
	pools := s.ledger.Pools()
	views := make([]poolView, 0, len(pools))
	for _, name := range pools.Names() {
		views = append(views, poolView{Name: name, Pool: pools[name]})
	}
	return Response{Code: http.StatusOK, Message: fmt.Sprintf("%d pools.", len(views)), Data: views}
}

// Pool reports one pool.
func (s *Service) Pool(name string) Response {
	p, err := s.ledger.Pool(name)
	switch {
	case err == nil:
		return Response{Code: http.StatusOK, Message: fmt.Sprintf("Pool %s.", name), Data: poolView{Name: name, Pool: p}}
	case errors.Is(err, ledger.ErrPoolNotFound):
		return Response{Code: http.StatusNotFound, Message: "Pool does not exist."}
	default:
		return s.failure("get pool", err)
	}
}

// VMs lists every VM.
func (s *Service) VMs() Response {
	vms, err := s.ledger.VMs()
	if err != nil {
		return s.failure("list vms", err)
	}
	if vms == nil {
		vms = []*structs.VM{}
	}
	return Response{Code: http.StatusOK, Message: fmt.Sprintf("%d VMs.", len(vms)), Data: vms}
}

// VM reports one VM.
func (s *Service) VM(id string) Response {
	v, err := s.ledger.VM(id)
	switch {
	case err == nil:
		return Response{Code: http.StatusOK, Message: fmt.Sprintf("VM %s.", v.ID), Data: v}
	case errors.Is(err, ledger.ErrVMNotFound):
		return Response{Code: http.StatusNotFound, Message: "VM not found."}
	default:
		return s.failure("get vm", err)
	}
}

// failure maps errors the façade has no specific message for.
func (s *Service) failure(op string, err error) Response {
	if ledger.IsPersistError(err) {
		s.logger.Error("ledger persistence failed", "op", op, "error", err)
		return Response{
			Code:    http.StatusInternalServerError,
			Message: "Failed to persist the ledger; no changes were applied.",
		}
	}
	if errors.Is(err, ledger.ErrInvalidRequest) {
		return Response{Code: http.StatusBadRequest, Message: "Invalid request."}
	}
	s.logger.Error("request failed", "op", op, "error", err)
	return Response{Code: http.StatusInternalServerError, Message: fmt.Sprintf("Failed to %s.", op)}
}

type poolView struct {
	Name string `json:"name"`
	structs.Pool
}

type transferView struct {
	Source poolView `json:"source"`
	Target poolView `json:"target"`
	CPU    int64    `json:"cpu"`
	Memory int64    `json:"memory"`
}

func invalid(errs []*ValidationError) Response {
	msgs := make([]string, 0, len(errs))
	for _, e := range errs {
		msgs = append(msgs, e.Error()+".")
	}
	return Response{Code: http.StatusBadRequest, Message: strings.Join(msgs, " ")}
}

func parsePositive(field, raw string, errs *[]*ValidationError) int64 {
	n, ok := parseInt(field, raw, errs)
	if ok && n <= 0 {
		*errs = append(*errs, &ValidationError{Field: field, Message: "must be a positive integer"})
	}
	return n
}

func parseNonNegative(field, raw string, errs *[]*ValidationError) int64 {
	n, ok := parseInt(field, raw, errs)
	if ok && n < 0 {
		*errs = append(*errs, &ValidationError{Field: field, Message: "must be a non-negative integer"})
	}
	return n
}

func parseInt(field, raw string, errs *[]*ValidationError) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		*errs = append(*errs, &ValidationError{Field: field, Message: "is required"})
		return 0, false
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		*errs = append(*errs, &ValidationError{Field: field, Message: "must be an integer"})
		return 0, false
	}
	return n, true
}
