package printing

import "errors"

var (
	ErrRenderFailed = errors.New("ticket render failed")
	ErrPrintFailed  = errors.New("print failed")
	ErrPrintTimeout = errors.New("print timed out")

	ErrUnknownPrinter = errors.New("unknown printer")
)
