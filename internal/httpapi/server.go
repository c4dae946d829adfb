package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/coerce"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/service"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/types"
	"github.com/BrandonDHaskell/Chronicle/internal/chronicle/wirelog"
)

const (
	defaultPageLimit = 100
	maxPageLimit     = 1000
)

type Dependencies struct {
	Logger   *slog.Logger
	Addr     string
	Executor *service.Executor
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
	mux        *http.ServeMux
	executor   *service.Executor
	factory    *service.Factory
}

func NewServer(d Dependencies) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	mux := http.NewServeMux()

	s := &Server{
		logger:   d.Logger,
		mux:      mux,
		executor: d.Executor,
		factory:  d.Executor.Factory(),
	}

	mux.HandleFunc("POST /v1/submit", s.handleSubmit)
	mux.HandleFunc("GET /v1/stores", s.handleListStores)
	mux.HandleFunc("GET /v1/stores/{handle}/count", s.handleCount)
	mux.HandleFunc("GET /v1/stores/{handle}/events", s.handleListEvents)
	mux.HandleFunc("GET /v1/stores/{handle}/events/{id}", s.handleGetEvent)
	mux.HandleFunc("GET /v1/stores/{handle}/events/{id}/properties", s.handleGetProperties)
	mux.HandleFunc("GET /v1/stores/{handle}/log", s.handleLog)
	mux.HandleFunc("GET /v1/stores/{handle}/members/{role}", s.handleMembers)

	handler := loggingMiddleware(d.Logger, mux)

	s.httpServer = &http.Server{
		Addr:              d.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	return s
}

func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

func (s *Server) Start() error {
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// fail writes err with the status of its class. Unclassified errors are
// logged and hidden behind a generic message.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	code := service.Code(err)
	if code == service.CodeInternal {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
		writeError(w, http.StatusInternalServerError, code, "unexpected server error")
		return
	}
	writeError(w, statusFor(code), code, err.Error())
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var sub types.Submission
	if isProtobuf(r) {
		body, err := readBody(r)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "unreadable body")
			return
		}
		if sub, err = wirelog.UnmarshalSubmission(body, s.factory.Registry()); err != nil {
			if errors.Is(err, wirelog.ErrMalformed) {
				writeError(w, http.StatusBadRequest, codeBadRequest, err.Error())
				return
			}
			s.fail(w, r, err)
			return
		}
	} else {
		dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
		dec.DisallowUnknownFields()
		dec.UseNumber()
		if err := dec.Decode(&sub); err != nil {
			writeError(w, http.StatusBadRequest, codeBadJSON, "invalid JSON body")
			return
		}
	}

	log, err := s.executor.Submit(r.Context(), sub)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.writeLog(w, r, log)
}

// writeLog answers with a wire log, as protobuf when the client accepts it.
func (s *Server) writeLog(w http.ResponseWriter, r *http.Request, log []types.WireEvent) {
	if acceptsProtobuf(r) {
		data, err := wirelog.Marshal(log, s.factory.Registry())
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeProto(w, http.StatusOK, data)
		return
	}
	writeJSON(w, http.StatusOK, types.SubmitResponse{Events: logToJSON(log)})
}

func (s *Server) handleListStores(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("owner")
	if raw == "" {
		writeJSON(w, http.StatusOK, types.StoresResponse{Stores: handlesToJSON(s.factory.ListAllStores())})
		return
	}
	owner, err := types.ParseIdentity(raw)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.StoresResponse{
		Owner:  owner.String(),
		Stores: handlesToJSON(s.factory.ListStores(owner)),
	})
}

func (s *Server) instance(w http.ResponseWriter, r *http.Request) (*service.Instance, bool) {
	h, err := types.ParseHandle(r.PathValue("handle"))
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	inst, err := s.factory.Open(r.Context(), h)
	if err != nil {
		s.fail(w, r, err)
		return nil, false
	}
	return inst, true
}

func eventID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "event id must be an unsigned integer")
		return 0, false
	}
	return id, true
}

// page reads the from and limit query parameters.
func page(w http.ResponseWriter, r *http.Request) (uint64, int, bool) {
	q := r.URL.Query()
	var from uint64
	if v := q.Get("from"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeBadRequest, "from must be an unsigned integer")
			return 0, 0, false
		}
		from = n
	}
	limit := defaultPageLimit
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, codeBadRequest, "limit must be a positive integer")
			return 0, 0, false
		}
		limit = min(n, maxPageLimit)
	}
	return from, limit, true
}

func (s *Server) handleCount(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	n, err := inst.Store.EventCount(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.CountResponse{Store: inst.Handle.String(), Count: n})
}

func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	from, limit, ok := page(w, r)
	if !ok {
		return
	}
	events, err := inst.Store.ListEvents(r.Context(), from, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.EventsResponse{Store: inst.Handle.String(), Events: eventsToJSON(events)})
}

func (s *Server) handleGetEvent(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	ev, err := inst.Store.GetEvent(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, eventToJSON(ev))
}

func (s *Server) handleGetProperties(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	id, ok := eventID(w, r)
	if !ok {
		return
	}
	props, err := inst.Store.GetProperties(r.Context(), id)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.PropertiesResponse{
		Store:      inst.Handle.String(),
		EventID:    id,
		Properties: propertiesToJSON(props),
	})
}

// handleLog serves a page of events with their properties as a wire log.
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	from, limit, ok := page(w, r)
	if !ok {
		return
	}
	events, err := inst.Store.ListEvents(r.Context(), from, limit)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	log := make([]types.WireEvent, 0, len(events))
	for _, ev := range events {
		props, err := inst.Store.GetProperties(r.Context(), ev.ID)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		recs, err := coerce.EncodeEnvelope(types.EventEnvelope{Event: ev, Properties: props})
		if err != nil {
			s.fail(w, r, err)
			return
		}
		log = append(log, recs...)
	}
	s.writeLog(w, r, log)
}

func (s *Server) handleMembers(w http.ResponseWriter, r *http.Request) {
	inst, ok := s.instance(w, r)
	if !ok {
		return
	}
	role, err := service.ParseRole(r.PathValue("role"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, types.MembersResponse{
		Store:   inst.Handle.String(),
		Role:    string(role),
		Members: identitiesToJSON(inst.Gate.Members(role)),
	})
}
