// Package dispatch exposes the actions of each API over HTTP.
//
// Every API lives under POST /apis/:api and receives an envelope
//
//	{"action": "signIn", "parameters": {"name": "alice", "password": "..."}}
//
// which is answered with
//
//	{"success": true, "result": "..."}
//
// Action failures are still answered with 200, success is false and result
// carries a short reason, eg.: "Wrong password". Anything that is not an
// expected failure is logged and reported as "Internal error", so storage
// details never reach the client.
//
// Before any handler runs, the action must be enabled in the hooks table,
// so operators can switch off actions (eg.: signUp) without a redeploy.
package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/andrebq/gatekeeper/internal/logutil"
	"github.com/julienschmidt/httprouter"
)

type (
	// Hooks tells, per api and action, if the action is enabled. Actions
	// not listed are undefined.
	Hooks map[string]map[string]bool

	// Action handles one request and returns the value placed in result.
	Action func(ctx context.Context, params Params) (interface{}, error)

	Request struct {
		Action     string `json:"action"`
		Parameters Params `json:"parameters"`
	}

	Response struct {
		Success bool        `json:"success"`
		Result  interface{} `json:"result"`
	}

	// Middleware wraps the http.Handler of a single api.
	Middleware func(http.Handler) http.Handler

	D struct {
		sync.RWMutex
		hooks Hooks
		apis  map[string]*endpoint
	}

	endpoint struct {
		name    string
		actions map[string]Action
		handler http.Handler
	}
)

const internalError = "Internal error"

func New(hooks Hooks) *D {
	return &D{
		hooks: hooks,
		apis:  map[string]*endpoint{},
	}
}

// Register adds the API name, each middleware wraps the whole API
// in the given order, the first one being the outermost.
func (d *D) Register(name string, mw ...Middleware) {
	d.Lock()
	defer d.Unlock()
	a := &endpoint{name: name, actions: map[string]Action{}}
	var h http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.serveAPI(w, r, a)
	})
	for i := len(mw) - 1; i >= 0; i-- {
		h = mw[i](h)
	}
	a.handler = h
	d.apis[name] = a
}

// Handle binds fn to action of the given api, which must be registered
// already.
func (d *D) Handle(apiName, action string, fn Action) {
	d.Lock()
	defer d.Unlock()
	a, ok := d.apis[apiName]
	if !ok {
		panic("dispatch: api " + apiName + " is not registered")
	}
	a.actions[action] = fn
}

// Routes returns the http.Handler serving every registered API.
func (d *D) Routes() http.Handler {
	router := httprouter.New()
	router.POST("/apis/:api", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		d.RLock()
		a, ok := d.apis[p.ByName("api")]
		d.RUnlock()
		if !ok {
			http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
			return
		}
		a.handler.ServeHTTP(w, r)
	})
	return router
}

func (d *D) serveAPI(w http.ResponseWriter, r *http.Request, a *endpoint) {
	ctx := r.Context()
	log := logutil.GetOrDefault(ctx).With().Str("api", a.name).Logger()

	var req Request
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil || req.Action == "" {
		log.Debug().Err(err).Msg("Unable to decode request envelope")
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if req.Parameters == nil {
		req.Parameters = Params{}
	}
	log = log.With().Str("action", req.Action).Logger()
	ctx = logutil.WithLogger(ctx, log)

	result, err := d.call(ctx, a, req)
	var res Response
	if err != nil {
		res.Result = classify(ctx, err)
	} else {
		res.Success = true
		res.Result = result
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(res); err != nil {
		log.Error().Err(err).Msg("Unable to write response")
	}
}

func (d *D) call(ctx context.Context, a *endpoint, req Request) (interface{}, error) {
	d.RLock()
	enabled, defined := d.hooks[a.name][req.Action]
	fn := a.actions[req.Action]
	d.RUnlock()
	switch {
	case !defined:
		return nil, UndefinedHook{}
	case !enabled:
		return nil, LockedHook{}
	case fn == nil:
		return nil, UnhandledHook{}
	}
	return fn(ctx, req.Parameters)
}

// classify turns err into the text sent back to the client.
func classify(ctx context.Context, err error) string {
	var reason interface{ Reason() string }
	if errors.As(err, &reason) {
		return reason.Reason()
	}
	log := logutil.GetOrDefault(ctx)
	log.Error().Err(err).Msg("Action failed")
	return internalError
}
