package wire

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	walkthrough "github.com/xraph/walkthrough"
	"github.com/xraph/walkthrough/gateway"
	"github.com/xraph/walkthrough/middleware"
	"github.com/xraph/walkthrough/session"
	"github.com/xraph/walkthrough/stream"
)

// Handler dispatches request frames to gateway operations through a
// middleware chain.
type Handler struct {
	gw     *gateway.Gateway
	chain  middleware.Middleware
	logger *slog.Logger
}

// NewHandler creates a method handler. mws wrap every request, first
// outermost.
func NewHandler(gw *gateway.Gateway, logger *slog.Logger, mws ...middleware.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{gw: gw, chain: middleware.Chain(mws...), logger: logger}
}

// Handle processes a single request frame and returns the response.
// Domain failures travel inside the response payload; error frames are
// reserved for malformed or unknown requests and internal failures.
func (h *Handler) Handle(ctx context.Context, frame *Frame, conn *Connection) *Frame {
	call := &middleware.Call{
		Method:  frame.Method,
		TabID:   conn.TabID,
		ConnID:  conn.ID,
		FrameID: frame.ID,
	}

	var resp *Frame
	err := h.chain(ctx, call, func(ctx context.Context) error {
		var dErr error
		resp, dErr = h.dispatch(ctx, frame, conn)
		return dErr
	})
	if err != nil {
		return NewErrorFrame(frame.ID, errorCode(err), err.Error())
	}
	return resp
}

func (h *Handler) dispatch(ctx context.Context, frame *Frame, conn *Connection) (*Frame, error) {
	rt := h.gw.Router()
	tab := conn.TabID

	switch frame.Method {
	case MethodNext:
		return respond(frame, rt.Next(ctx))
	case MethodPrev:
		return respond(frame, rt.Previous(ctx))
	case MethodRetry:
		return respond(frame, rt.Retry(ctx))
	case MethodSkip:
		return respond(frame, rt.Skip(ctx))
	case MethodGetState:
		return respond(frame, rt.GetState(ctx))

	case MethodJumpTo:
		var req JumpToRequest
		if err := decode(frame, &req, true); err != nil {
			return nil, err
		}
		return respond(frame, rt.JumpToStep(ctx, req.StepIndex))

	case MethodExit:
		var req ExitRequest
		if err := decode(frame, &req, false); err != nil {
			return nil, err
		}
		res := rt.Exit(ctx, exitReason(req.Reason))
		return respond(frame, gateway.Ack{Success: res.Success, Error: res.Error})

	case MethodReportAction:
		var rep gateway.ActionReport
		if err := decode(frame, &rep, true); err != nil {
			return nil, err
		}
		return respond(frame, h.gw.ReportAction(ctx, tab, rep))

	case MethodTabReady:
		var n gateway.ReadyNotice
		if err := decode(frame, &n, false); err != nil {
			return nil, err
		}
		if n.TabID == 0 {
			n.TabID = tab
		}
		out, err := h.gw.Ready(ctx, n)
		if err != nil {
			return nil, err
		}
		return respond(frame, out)

	case MethodElementStatus:
		var st gateway.ElementStatus
		if err := decode(frame, &st, true); err != nil {
			return nil, err
		}
		return acked(frame)(h.gw.ElementStatus(ctx, tab, st))

	case MethodHealingResult:
		var hr gateway.HealingResult
		if err := decode(frame, &hr, true); err != nil {
			return nil, err
		}
		return acked(frame)(h.gw.HealingResult(ctx, tab, hr))

	case MethodLogAppend:
		var e gateway.LogEntry
		if err := decode(frame, &e, true); err != nil {
			return nil, err
		}
		return acked(frame)(h.gw.ExecutionLog(ctx, tab, e))

	case MethodSPANavigation:
		var n gateway.SPANotice
		if err := decode(frame, &n, true); err != nil {
			return nil, err
		}
		return acked(frame)(h.gw.SPANavigation(ctx, tab, n))

	case MethodTabIdentity:
		return respond(frame, h.gw.TabIdentity(tab))

	case MethodTabOpened:
		var m gateway.TabOpened
		if err := decode(frame, &m, true); err != nil {
			return nil, err
		}
		if m.OpenerTabID == 0 {
			m.OpenerTabID = tab
		}
		return acked(frame)(h.gw.TabOpened(ctx, m))

	case MethodTabClosed:
		var req TabClosedRequest
		if err := decode(frame, &req, false); err != nil {
			return nil, err
		}
		if req.TabID == 0 {
			req.TabID = tab
		}
		return acked(frame)(h.gw.TabClosed(ctx, req.TabID))

	case MethodStart:
		var req gateway.StartRequest
		if err := decode(frame, &req, true); err != nil {
			return nil, err
		}
		return respond(frame, h.gw.Start(ctx, tab, req))

	case MethodSubscribe:
		var req SubscribeRequest
		if err := decode(frame, &req, true); err != nil {
			return nil, err
		}
		if err := stream.ValidateTopic(req.Channel); err != nil {
			return NewErrorFrame(frame.ID, ErrCodeBadRequest, err.Error()), nil
		}
		// The server loop performs the subscription after the response.
		return respond(frame, map[string]string{"channel": req.Channel, "status": "subscribed"})

	case MethodUnsubscribe:
		var req UnsubscribeRequest
		if err := decode(frame, &req, true); err != nil {
			return nil, err
		}
		return respond(frame, map[string]string{"channel": req.Channel, "status": "unsubscribed"})

	default:
		return NewErrorFrame(frame.ID, ErrCodeMethodNotFound, "unknown method: "+frame.Method), nil
	}
}

func respond(frame *Frame, v any) (*Frame, error) {
	return NewResponseFrame(frame.ID, v)
}

func acked(frame *Frame) func(gateway.Ack, error) (*Frame, error) {
	return func(a gateway.Ack, err error) (*Frame, error) {
		if err != nil {
			return nil, err
		}
		return respond(frame, a)
	}
}

// decode unmarshals the frame payload into v. An absent payload is an
// error only when required is set.
func decode(frame *Frame, v any, required bool) error {
	if len(frame.Data) == 0 {
		if required {
			return fmt.Errorf("%w: %s requires a payload", walkthrough.ErrMalformedMessage, frame.Method)
		}
		return nil
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return fmt.Errorf("%w: %s: %v", walkthrough.ErrMalformedMessage, frame.Method, err)
	}
	return nil
}

func errorCode(err error) int {
	if errors.Is(err, walkthrough.ErrMalformedMessage) {
		return ErrCodeBadRequest
	}
	return ErrCodeInternal
}

// exitReason narrows a page-supplied reason to the ones a page may claim.
// Anything else, including an empty reason, counts as the user leaving.
func exitReason(reason string) session.EndReason {
	switch r := session.EndReason(reason); r {
	case session.ReasonUserExit, session.ReasonError, session.ReasonTimeout:
		return r
	default:
		return session.ReasonUserExit
	}
}
