// Package shell drives one visitor page: it fetches connection details,
// starts and ends the call, and turns coordinator events into view messages
// for a renderer (the browser page or the terminal UI).
package shell

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ent0n29/chatform/internal/config"
	"github.com/ent0n29/chatform/internal/connection"
	"github.com/ent0n29/chatform/internal/journal"
	"github.com/ent0n29/chatform/internal/lead"
	"github.com/ent0n29/chatform/internal/observability"
	"github.com/ent0n29/chatform/internal/protocol"
	"github.com/ent0n29/chatform/internal/reliability"
	"github.com/ent0n29/chatform/internal/session"
)

type Config struct {
	SessionID   string
	UI          config.UI
	SendTimeout time.Duration
	Logger      *slog.Logger

	// Optional sinks.
	Metrics  *observability.Metrics
	Journal  *journal.Recorder
	Sessions *session.Manager
}

// Shell is the controller behind one mounted page. All of its fields are
// touched only from the Run loop.
type Shell struct {
	cfg     Config
	fetcher connection.Fetcher
	coord   *session.Coordinator
	logger  *slog.Logger

	form     *lead.Form
	doneForm uint64 // highest form ID submitted, cancelled or dismissed
	fetchSeq uint64
	fetching bool
	starting bool
}

func New(cfg Config, fetcher connection.Fetcher, coord *session.Coordinator) *Shell {
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 2 * time.Second
	}
	if cfg.UI.FieldLabels == nil {
		cfg.UI = config.DefaultUI()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Shell{
		cfg:     cfg,
		fetcher: fetcher,
		coord:   coord,
		logger:  logger.With("component", "shell", "session_id", cfg.SessionID),
		form:    lead.NewForm(cfg.UI.RequiredFields...),
	}
}

type fetchResult struct {
	seq     uint64
	details connection.Details
	err     error
}

type loop struct {
	ctx      context.Context
	outbound chan<- any
	fetched  chan fetchResult
	started  chan error
	wg       *sync.WaitGroup
}

// Run serves the page until ctx ends or inbound is closed. The coordinator
// is closed before Run returns.
func (s *Shell) Run(ctx context.Context, inbound <-chan any, outbound chan<- any) error {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		s.coord.Close()
		wg.Wait()
	}()

	l := &loop{
		ctx:      ctx,
		outbound: outbound,
		fetched:  make(chan fetchResult, 1),
		started:  make(chan error, 1),
		wg:       &wg,
	}

	s.cfg.Journal.Record(s.cfg.SessionID, journal.KindSessionStarted, "")
	s.requestDetails(l)
	s.sendView(l)

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-inbound:
			if !ok {
				return nil
			}
			s.handleInbound(l, msg)
		case res := <-l.fetched:
			s.handleFetched(l, res)
		case err := <-l.started:
			s.starting = false
			if err != nil && !errors.Is(err, session.ErrAborted) {
				s.logger.Debug("start returned", "error", err)
			}
			s.sendView(l)
		case ev := <-s.coord.Events():
			s.handleEvent(l, ev)
		}
	}
}

func (s *Shell) requestDetails(l *loop) {
	s.fetchSeq++
	seq := s.fetchSeq
	s.fetching = true

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		started := time.Now()
		d, err := s.fetcher.Fetch(l.ctx)
		s.observeStage(observability.StageDetailsFetch, started, err)
		select {
		case l.fetched <- fetchResult{seq: seq, details: d, err: err}:
		case <-l.ctx.Done():
		}
	}()
}

func (s *Shell) handleFetched(l *loop, res fetchResult) {
	if res.seq != s.fetchSeq {
		return
	}
	s.fetching = false

	if res.err != nil {
		s.logger.Warn("connection details fetch failed", "error", res.err)
		retryable := true
		var se *connection.StatusError
		if errors.As(res.err, &se) {
			retryable = reliability.IsRetryableHTTPStatus(se.StatusCode)
		}
		s.cfg.Journal.Record(s.cfg.SessionID, journal.KindDetailsFailed, res.err.Error())
		s.send(l, protocol.ErrorEvent{
			Type:      protocol.TypeErrorEvent,
			SessionID: s.cfg.SessionID,
			Code:      "details_fetch_failed",
			Source:    "token_service",
			Retryable: retryable,
			Detail:    res.err.Error(),
		})
		s.notify(l, protocol.LevelError, "Unable to prepare a call", "Please refresh and try again.")
		s.sendView(l)
		return
	}

	snap := s.coord.Snapshot()
	if snap.State == session.StateConnecting || snap.State == session.StateActive {
		return
	}
	s.coord.SetConnectionDetails(res.details)
	s.sendView(l)
}

func (s *Shell) handleInbound(l *loop, msg any) {
	switch m := msg.(type) {
	case protocol.ClientControl:
		s.handleControl(l, m)
	case protocol.LeadFormField:
		if !s.formMatches(m.FormID) {
			return
		}
		if err := s.form.Set(m.Field, m.Value); err != nil {
			s.sendError(l, "invalid_form_field", "form", false, err)
		}
	case protocol.LeadFormSubmit:
		s.handleSubmit(l, m)
	case protocol.LeadFormCancel:
		if !s.formMatches(m.FormID) {
			return
		}
		id, _ := s.form.Loaded()
		s.doneForm = max(s.doneForm, id)
		s.form.Cancel()
		s.coord.Cancel(id)
		s.observeForm("cancelled")
		s.cfg.Journal.Record(s.cfg.SessionID, journal.KindFormCancelled, "")
		s.send(l, protocol.LeadFormDismiss{
			Type:      protocol.TypeLeadFormDismiss,
			SessionID: s.cfg.SessionID,
			FormID:    id,
			Reason:    "cancelled",
		})
	default:
		s.sendError(l, "unsupported_message", "client", false, fmt.Errorf("%w: %T", protocol.ErrUnsupportedType, msg))
	}
}

func (s *Shell) handleControl(l *loop, m protocol.ClientControl) {
	snap := s.coord.Snapshot()
	switch m.Action {
	case protocol.ActionStart:
		if !s.startEnabled(snap) {
			s.send(l, protocol.SystemEvent{
				Type:      protocol.TypeSystemEvent,
				SessionID: s.cfg.SessionID,
				Code:      "start_unavailable",
			})
			return
		}
		s.starting = true
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			started := time.Now()
			err := s.coord.Start(l.ctx)
			if !errors.Is(err, session.ErrAborted) {
				s.observeStage(observability.StageConnect, started, err)
			}
			select {
			case l.started <- err:
			case <-l.ctx.Done():
			}
		}()
		s.sendView(l)
	case protocol.ActionEnd:
		s.coord.Disconnect()
	case protocol.ActionRefresh:
		if s.fetching || snap.State == session.StateConnecting || snap.State == session.StateActive {
			return
		}
		s.requestDetails(l)
		s.sendView(l)
	case protocol.ActionMediaError:
		detail := m.Detail
		if detail == "" {
			detail = "media device error"
		}
		s.coord.ReportMediaError(errors.New(detail))
	}
}

func (s *Shell) handleSubmit(l *loop, m protocol.LeadFormSubmit) {
	if !s.formMatches(m.FormID) {
		return
	}
	for field, value := range m.Fields {
		if err := s.form.Set(field, value); err != nil {
			s.sendError(l, "invalid_form_field", "form", false, err)
			return
		}
	}
	id, _ := s.form.Loaded()
	rec, err := s.form.Submit()
	if errors.Is(err, lead.ErrRequiredField) {
		s.notify(l, protocol.LevelError, "Missing information", err.Error())
		return
	}
	if err != nil {
		s.sendError(l, "form_submit_failed", "form", false, err)
		return
	}

	s.doneForm = max(s.doneForm, id)
	s.send(l, protocol.LeadFormDismiss{
		Type:      protocol.TypeLeadFormDismiss,
		SessionID: s.cfg.SessionID,
		FormID:    id,
		Reason:    "submitted",
	})

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		started := time.Now()
		err := s.coord.Submit(l.ctx, id, rec)
		if !errors.Is(err, session.ErrClosed) {
			s.observeStage(observability.StageLeadDelivery, started, err)
		}
	}()
}

func (s *Shell) handleEvent(l *loop, ev session.Event) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.SessionEvents.WithLabelValues(string(ev.Type)).Inc()
	}

	switch ev.Type {
	case session.EventStateChanged:
		snap := s.coord.Snapshot()
		if s.cfg.Sessions != nil {
			_ = s.cfg.Sessions.RecordState(s.cfg.SessionID, snap.State, snap.RoomName)
		}
		if ev.State == session.StateActive {
			s.cfg.Journal.Record(s.cfg.SessionID, journal.KindConnected, snap.RoomName)
		}
		s.sendView(l)
	case session.EventFormDisplayed, session.EventFormCleared:
		s.reconcileForm(l)
	case session.EventPayloadRejected:
		s.observeRPC(session.MethodDisplayLeadForm, "inbound", "rejected")
	case session.EventLeadDelivered:
		s.observeRPC(session.MethodSubmitLeadForm, "outbound", "ok")
		s.observeForm("delivered")
		if s.cfg.Sessions != nil {
			_ = s.cfg.Sessions.RecordLeadSent(s.cfg.SessionID)
		}
		s.cfg.Journal.Record(s.cfg.SessionID, journal.KindFormSubmitted, "")
		s.notify(l, protocol.LevelSuccess, "Information sent", "Thanks! Your details are on their way.")
	case session.EventDeliveryFailed:
		s.observeRPC(session.MethodSubmitLeadForm, "outbound", "error")
		s.observeForm("delivery_failed")
		s.cfg.Journal.Record(s.cfg.SessionID, journal.KindDeliveryFailed, errString(ev.Err))
		s.notify(l, protocol.LevelError, "Could not send your information", errString(ev.Err))
	case session.EventConnectFailed:
		s.cfg.Journal.Record(s.cfg.SessionID, journal.KindConnectFailed, errString(ev.Err))
		s.sendError(l, "connect_failed", "rtc", true, ev.Err)
		s.notify(l, protocol.LevelError, "Could not connect", errString(ev.Err))
	case session.EventMediaError:
		s.sendError(l, "media_device_error", "media", false, ev.Err)
		s.notify(l, protocol.LevelError, "Media device error", errString(ev.Err))
	case session.EventParticipantJoined:
		s.send(l, protocol.SystemEvent{
			Type:      protocol.TypeSystemEvent,
			SessionID: s.cfg.SessionID,
			Code:      "participant_joined",
			Detail:    ev.Participant.Identity,
		})
	case session.EventDisconnected:
		s.dismissForm(l, "disconnected")
		if s.cfg.Sessions != nil {
			_ = s.cfg.Sessions.RecordState(s.cfg.SessionID, session.StateDisconnected, "")
		}
		if ev.Reason != "connect_failed" {
			s.cfg.Journal.Record(s.cfg.SessionID, journal.KindDisconnected, ev.Reason)
		}
		s.sendView(l)
		s.requestDetails(l)
	}
}

// reconcileForm brings the visible form in line with the coordinator's
// pending record.
func (s *Shell) reconcileForm(l *loop) {
	pending := s.coord.Pending()
	if pending == nil {
		s.dismissForm(l, "cleared")
		return
	}
	if pending.ID <= s.doneForm {
		return
	}
	if !s.form.Load(pending.ID, pending.Record) {
		return
	}
	s.observeRPC(session.MethodDisplayLeadForm, "inbound", "ok")
	s.observeForm("displayed")
	if s.cfg.Sessions != nil {
		_ = s.cfg.Sessions.RecordFormShown(s.cfg.SessionID)
	}
	s.cfg.Journal.Record(s.cfg.SessionID, journal.KindFormDisplayed, string(pending.Kind))
	s.send(l, s.formDisplay(pending.ID))
}

func (s *Shell) dismissForm(l *loop, reason string) {
	id, loaded := s.form.Loaded()
	if !loaded {
		return
	}
	s.doneForm = max(s.doneForm, id)
	s.form.Cancel()
	s.send(l, protocol.LeadFormDismiss{
		Type:      protocol.TypeLeadFormDismiss,
		SessionID: s.cfg.SessionID,
		FormID:    id,
		Reason:    reason,
	})
}

func (s *Shell) formDisplay(id uint64) protocol.LeadFormDisplay {
	fields := make([]protocol.FormField, 0, len(s.form.Fields()))
	for _, name := range s.form.Fields() {
		fields = append(fields, protocol.FormField{
			Name:     name,
			Label:    s.cfg.UI.Label(name),
			Value:    s.form.Value(name),
			Required: s.form.Required(name),
			Multi:    name == lead.FieldInquiry,
		})
	}
	return protocol.LeadFormDisplay{
		Type:        protocol.TypeLeadFormDisplay,
		SessionID:   s.cfg.SessionID,
		FormID:      id,
		Layout:      string(s.form.Layout()),
		Title:       s.cfg.UI.FormTitle,
		Description: s.cfg.UI.FormDescription,
		SubmitText:  s.cfg.UI.SubmitText,
		CancelText:  s.cfg.UI.CancelText,
		Fields:      fields,
	}
}

func (s *Shell) formMatches(id uint64) bool {
	loaded, ok := s.form.Loaded()
	if !ok || (id != 0 && id != loaded) {
		s.logger.Debug("ignoring stale form message", "form_id", id, "loaded", loaded)
		return false
	}
	return true
}

func (s *Shell) startEnabled(snap session.Snapshot) bool {
	return snap.HasDetails && snap.State == session.StateIdle && !s.starting && !s.fetching
}

func (s *Shell) sendView(l *loop) {
	snap := s.coord.Snapshot()
	view := protocol.ViewWelcome
	if snap.State == session.StateConnecting || snap.State == session.StateActive {
		view = protocol.ViewSession
	}
	s.send(l, protocol.ViewState{
		Type:         protocol.TypeViewState,
		SessionID:    s.cfg.SessionID,
		View:         view,
		CallState:    string(snap.State),
		StartEnabled: s.startEnabled(snap),
		Fetching:     s.fetching,
		RoomName:     snap.RoomName,
	})
}

func (s *Shell) notify(l *loop, level, title, description string) {
	s.send(l, protocol.Notification{
		Type:        protocol.TypeNotification,
		SessionID:   s.cfg.SessionID,
		Level:       level,
		Title:       title,
		Description: description,
	})
}

func (s *Shell) sendError(l *loop, code, source string, retryable bool, err error) {
	s.send(l, protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: s.cfg.SessionID,
		Code:      code,
		Source:    source,
		Retryable: retryable,
		Detail:    errString(err),
	})
}

func (s *Shell) send(l *loop, msg any) {
	timer := time.NewTimer(s.cfg.SendTimeout)
	defer timer.Stop()
	result := "delivered"
	select {
	case l.outbound <- msg:
	case <-timer.C:
		result = "timeout"
		s.logger.Warn("outbound message dropped", "type", messageType(msg))
	case <-l.ctx.Done():
		result = "cancelled"
	}
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveOutboundMessage(messageType(msg), result)
	}
}

func (s *Shell) observeStage(stage string, started time.Time, err error) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.ObserveCallStage(stage, time.Since(started), err)
	}
}

func (s *Shell) observeForm(outcome string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.LeadForms.WithLabelValues(outcome).Inc()
	}
}

func (s *Shell) observeRPC(method, direction, result string) {
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RPCInvocations.WithLabelValues(method, direction, result).Inc()
	}
}

func messageType(msg any) string {
	switch m := msg.(type) {
	case protocol.ViewState:
		return string(m.Type)
	case protocol.LeadFormDisplay:
		return string(m.Type)
	case protocol.LeadFormDismiss:
		return string(m.Type)
	case protocol.Notification:
		return string(m.Type)
	case protocol.SystemEvent:
		return string(m.Type)
	case protocol.ErrorEvent:
		return string(m.Type)
	default:
		return "unknown"
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
