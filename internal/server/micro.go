package server

import (
	"context"
	"strconv"

	"github.com/goccy/go-json"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
)

const queueGroup = "ocr-service"

// RegisterNatsService offers one-shot recognition and the language inventory as a NATS micro service.
// Requests to ocr.recognize carry the image as payload and the options as headers.
func (s *Service) RegisterNatsService(nc *nats.Conn) (micro.Service, error) {
	svc, err := micro.AddService(nc, micro.Config{
		Name:        "ocr",
		Version:     "1.0.0",
		Description: "Recognizes the text of images with Tesseract",
	})
	if err != nil {
		return nil, err
	}
	group := svc.AddGroup("ocr", micro.WithGroupQueueGroup(queueGroup))
	if err := group.AddEndpoint("recognize", micro.HandlerFunc(s.handleRecognize)); err != nil {
		return nil, err
	}
	if err := group.AddEndpoint("languages", micro.HandlerFunc(s.handleLanguages)); err != nil {
		return nil, err
	}
	return svc, nil
}

func (s *Service) handleRecognize(req micro.Request) {
	h := req.Headers()
	psm, err := parsePSM(h.Get("Ocr-Psm"), s.adapter.PageSegMode)
	if err != nil {
		s.replyError(req, err)
		return
	}
	lang := h.Get("Ocr-Lang")
	s.log.Info("Received Nats request", "lang", lang, "psm", psm, "size", len(req.Data()))
	res, cached, err := s.recognizeOnce(context.Background(), req.Data(), lang, psm, nil)
	if err != nil {
		s.replyError(req, err)
		return
	}
	b, err := json.Marshal(res)
	if err != nil {
		s.replyError(req, err)
		return
	}
	hdr := micro.Headers{"X-Cache": []string{"miss"}}
	if cached {
		hdr["X-Cache"] = []string{"hit"}
	}
	req.Respond(b, micro.WithHeaders(hdr))
}

func (s *Service) handleLanguages(req micro.Request) {
	if err := req.RespondJSON(s.Languages().Entries()); err != nil {
		s.log.Error("could not respond", "subject", req.Subject(), "err", err)
	}
}

func (s *Service) replyError(req micro.Request, err error) {
	status := statusFor(err)
	if status >= 500 {
		failures.Add(1)
		s.log.Error("Nats request failed", "subject", req.Subject(), "err", err)
	}
	req.Error(strconv.Itoa(status), err.Error(), nil)
}
