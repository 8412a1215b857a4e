package streamhandler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/janhq/chat-stream-api/internal/domain/streaming"
	"github.com/janhq/chat-stream-api/internal/interfaces/httpserver/middlewares"
)

var errStreamingUnsupported = errors.New("response writer does not support streaming")

// sseObserver writes session events as Server Sent Events. Every write is
// flushed. A cancelled request context is reported as a write failure.
type sseObserver struct {
	reqCtx  *gin.Context
	flusher http.Flusher
}

func newSSEObserver(reqCtx *gin.Context) *sseObserver {
	return &sseObserver{reqCtx: reqCtx}
}

var _ streaming.Observer = (*sseObserver)(nil)

func (o *sseObserver) OnOpen() error {
	flusher, ok := middlewares.PrepareSSE(o.reqCtx)
	if !ok {
		return errStreamingUnsupported
	}
	o.flusher = flusher
	o.reqCtx.Status(http.StatusOK)
	o.reqCtx.Writer.WriteHeaderNow()
	o.flusher.Flush()
	return o.reqCtx.Request.Context().Err()
}

func (o *sseObserver) OnToken(event streaming.TokenEvent) error {
	return o.writeEvent(streaming.EventToken, event)
}

func (o *sseObserver) OnPing() error {
	return o.write(": ping\n\n")
}

func (o *sseObserver) OnComplete(event streaming.CompleteEvent) error {
	return o.writeEvent(streaming.EventComplete, event)
}

func (o *sseObserver) OnError(event streaming.ErrorEvent) error {
	return o.writeEvent(streaming.EventError, event)
}

func (o *sseObserver) writeEvent(name string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return o.write(fmt.Sprintf("event: %s\ndata: %s\n\n", name, data))
}

func (o *sseObserver) write(frame string) error {
	if err := o.reqCtx.Request.Context().Err(); err != nil {
		return err
	}
	if _, err := o.reqCtx.Writer.WriteString(frame); err != nil {
		return err
	}
	o.flusher.Flush()
	return nil
}
