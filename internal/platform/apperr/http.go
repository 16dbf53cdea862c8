package apperr

import "errors"

type errorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Body builds the JSON error envelope handlers return.
func Body(code Code, msg string) any {
	var e errorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// BodyFromErr builds the envelope from an error value.
func BodyFromErr(err error) any {
	var ae *Error
	if errors.As(err, &ae) {
		return Body(ae.Code, ae.Message)
	}
	return Body(CodeInternal, err.Error())
}
