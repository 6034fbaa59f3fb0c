package codegen

import (
	"fmt"

	"github.com/GriffinCanCode/callgen/pkg/logger"
)

// InternalError is an invariant violation inside the generator. It is raised
// with panic and only recovered by Module.Generate.
type InternalError struct {
	Procedure string
	Message   string
}

func (e *InternalError) Error() string {
	if e.Procedure == "" {
		return "codegen: " + e.Message
	}
	return fmt.Sprintf("codegen: %s: %s", e.Procedure, e.Message)
}

func fatalf(procedure, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	logger.LogFatal(procedure, msg)
	panic(&InternalError{Procedure: procedure, Message: msg})
}

func (p *Procedure) fatalf(format string, args ...any) {
	fatalf(p.Name, format, args...)
}
