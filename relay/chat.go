package relay

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/bunnhack/letsim/tracer"
	"github.com/sony/gobreaker/v2"
)

// RouteModel picks the upstream for a model ID: IDs containing "/" go to
// OpenRouter, everything else to Poe.
func RouteModel(model string) string {
	if strings.Contains(model, "/") {
		return "openrouter"
	}
	return "poe"
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracer.StartSpan(r.Context(), "relay.chat")
	defer span.End()

	body, err := io.ReadAll(io.LimitReader(r.Body, maxPayload))
	if err != nil {
		tracer.RecordError(span, err)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	var payload map[string]json.RawMessage
	if err := json.Unmarshal(body, &payload); err != nil {
		tracer.RecordError(span, err)
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	var model string
	if raw, ok := payload["model"]; ok {
		if err := json.Unmarshal(raw, &model); err != nil {
			model = ""
		}
	}

	up := s.poe
	if RouteModel(model) == "openrouter" {
		up = s.openRouter
	}
	span.SetAttributes(tracer.StringAttr("upstream", up.name), tracer.StringAttr("model", model))

	if up.key == "" {
		s.logger.Error("upstream key missing", "upstream", up.name, "env", up.keyEnv)
		http.Error(w, "Missing "+up.keyEnv, http.StatusInternalServerError)
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, up.url, bytes.NewReader(body))
	if err != nil {
		tracer.RecordError(span, err)
		http.Error(w, fmt.Sprintf("Server error: %s", err), http.StatusBadGateway)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+up.key)
	req.Header.Set("HTTP-Referer", s.cfg.Referer)
	req.Header.Set("X-Title", s.cfg.Title)

	resp, err := up.do(s.client, req)
	if err != nil {
		tracer.RecordError(span, err)
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			s.logger.Warn("upstream circuit open", "upstream", up.name)
			http.Error(w, fmt.Sprintf("Upstream %s unavailable: %s", up.name, err), http.StatusServiceUnavailable)
			return
		}
		s.logger.Error("upstream request failed", "upstream", up.name, "error", err)
		http.Error(w, fmt.Sprintf("Server error: %s", err), http.StatusBadGateway)
		return
	}
	defer resp.Body.Close()
	span.SetAttributes(tracer.IntAttr("status", resp.StatusCode))

	h := w.Header()
	ctype := resp.Header.Get("Content-Type")
	if ctype == "" {
		ctype = "application/json"
	}
	h.Set("Content-Type", ctype)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(resp.StatusCode)

	if err := stream(w, resp.Body); err != nil {
		// Headers are gone; the client sees a truncated body.
		tracer.RecordError(span, err)
		s.logger.Warn("relay stream interrupted", "upstream", up.name, "error", err)
		return
	}
	tracer.SetOK(span)
}

// stream copies src to w, flushing after every read so SSE frames reach
// the client as they arrive.
func stream(w http.ResponseWriter, src io.Reader) error {
	rc := http.NewResponseController(w)
	buf := make([]byte, 32*1024)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
			if ferr := rc.Flush(); ferr != nil && !errors.Is(ferr, http.ErrNotSupported) {
				return ferr
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
	}
}
