package handler

import "github.com/jwalitptl/carebridge/pkg/httputil"

// Response is the envelope shared by every endpoint.
type Response = httputil.Response

func NewSuccessResponse(data interface{}) *Response {
	return &Response{Status: "success", Data: data}
}

// NewErrorResponse is for failures raised outside a service call, where no
// AppError exists to carry the code.
func NewErrorResponse(code, message string) *Response {
	return &Response{Status: "error", Code: code, Message: message}
}
