package proxy

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/magneto-serge/magneto/config"
	"github.com/magneto-serge/magneto/internal/cassette"
	"github.com/magneto-serge/magneto/internal/logging"
	"github.com/magneto-serge/magneto/internal/util"

	"github.com/gorilla/mux"
)

// StatusRep is the response of the admin status endpoint.
type StatusRep struct {
	State        string `json:"state"`
	Mode         string `json:"mode"`
	Cassette     string `json:"cassette,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Interactions int    `json:"interactions"`
	Remaining    int    `json:"remaining,omitempty"`
	Port         int    `json:"port"`
	Store        string `json:"store"`
	Version      string `json:"version"`
}

// CassetteListRep is the response of the admin endpoint that lists cassettes.
type CassetteListRep struct {
	Cassettes []string `json:"cassettes"`
}

func (p *Proxy) status() StatusRep {
	rep := StatusRep{
		Mode:    p.Mode().String(),
		Port:    p.Port(),
		Store:   p.store.Describe(),
		Version: p.Version(),
	}
	p.lock.RLock()
	s := p.session
	p.lock.RUnlock()
	if s == nil {
		rep.State = StateIdle.String()
		return rep
	}
	rep.State = s.state.String()
	rep.Cassette = s.name
	rep.SessionID = s.id
	rep.Interactions = s.interactionCount()
	if m := s.matcher(); m != nil {
		rep.Remaining = m.Remaining()
	}
	return rep
}

// AdminHandler returns the handler for the admin API, which controls sessions and manages cassettes:
//
//	GET    /status                  current state
//	GET    /cassettes               names of all cassettes
//	GET    /cassettes/{name}        a cassette in its JSON form
//	DELETE /cassettes/{name}        delete a cassette
//	POST   /session/{mode}/{name}   start a session, as Begin does
//	POST   /session/passthrough     start a PassThrough session
//	DELETE /session                 stop the active session, as End does
//	GET    /events                  server-sent events for sessions and recorded interactions
func (p *Proxy) AdminHandler() http.Handler {
	router := mux.NewRouter()
	router.StrictSlash(true)

	router.Use(logging.GlobalContextLoggersMiddleware(p.loggers))
	if p.loggers.IsDebugEnabled() {
		router.Use(logging.RequestLoggerMiddleware(p.loggers))
	}

	router.Handle("/status", statusHandler(p)).Methods("GET")
	router.Handle("/cassettes", listCassettesHandler(p)).Methods("GET")
	router.Handle("/cassettes/{name}", getCassetteHandler(p)).Methods("GET")
	router.Handle("/cassettes/{name}", deleteCassetteHandler(p)).Methods("DELETE")
	router.Handle("/session/passthrough", beginSessionHandler(p)).Methods("POST")
	router.Handle("/session/{mode}/{name}", beginSessionHandler(p)).Methods("POST")
	router.Handle("/session", endSessionHandler(p)).Methods("DELETE")
	router.Handle("/events", p.events.handler()).Methods("GET")

	return router
}

func statusHandler(p *Proxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		writeJSON(w, http.StatusOK, p.status())
	})
}

func listCassettesHandler(p *Proxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		names, err := p.store.List()
		if err != nil {
			writeAdminError(w, req, err)
			return
		}
		if names == nil {
			names = []string{}
		}
		writeJSON(w, http.StatusOK, CassetteListRep{Cassettes: names})
	})
}

func getCassetteHandler(p *Proxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		if err := cassette.ValidateName(name); err != nil {
			writeAdminError(w, req, errBadCassetteName(err))
			return
		}
		c, err := p.store.Load(name)
		if err != nil {
			writeAdminError(w, req, err)
			return
		}
		data, err := cassette.Encode(c)
		if err != nil {
			writeAdminError(w, req, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	})
}

func deleteCassetteHandler(p *Proxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		name := mux.Vars(req)["name"]
		if err := cassette.ValidateName(name); err != nil {
			writeAdminError(w, req, errBadCassetteName(err))
			return
		}
		if p.CassetteName() == name {
			writeAdminError(w, req, ErrSessionActive)
			return
		}
		if err := p.store.Delete(name); err != nil {
			writeAdminError(w, req, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}

func beginSessionHandler(p *Proxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		vars := mux.Vars(req)
		mode := config.ModePassThrough
		if modeName, ok := vars["mode"]; ok {
			parsed, err := config.ParseMode(modeName)
			if err != nil {
				writeAdminError(w, req, InvalidArgumentError{Message: err.Error()})
				return
			}
			mode = parsed
		}
		if err := p.Begin(mode, vars["name"]); err != nil {
			writeAdminError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, p.status())
	})
}

func endSessionHandler(p *Proxy) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if err := p.End(); err != nil {
			writeAdminError(w, req, err)
			return
		}
		writeJSON(w, http.StatusOK, p.status())
	})
}

func writeJSON(w http.ResponseWriter, status int, value interface{}) {
	data, _ := json.Marshal(value)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// adminErrorStatus maps an error from a session or store operation to an HTTP status.
func adminErrorStatus(err error) int {
	switch {
	case IsInvalidArgument(err):
		return http.StatusBadRequest
	case IsCassetteNotFound(err):
		return http.StatusNotFound
	case IsCassetteParseError(err):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrAlreadyRecording), errors.Is(err, ErrSessionActive), errors.Is(err, ErrNoSession),
		errors.Is(err, ErrNotRecording):
		return http.StatusConflict
	case errors.Is(err, ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeAdminError(w http.ResponseWriter, req *http.Request, err error) {
	status := adminErrorStatus(err)
	if status == http.StatusInternalServerError {
		logging.GetGlobalContextLoggers(req.Context()).Errorf(logMsgAdminRequestFailed, req.Method, req.URL.Path, err)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(util.ErrorJSONMsg(err.Error()))
}
