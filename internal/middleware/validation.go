package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin/binding"
	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-scheduler/internal/model"
	"github.com/jwalitptl/clinic-scheduler/pkg/validator"
)

// RegisterValidators installs the scheduling rules on gin's binding engine
// so ShouldBind reports the same field names and messages as the services.
func RegisterValidators() error {
	engine, ok := binding.Validator.Engine().(*playground.Validate)
	if !ok {
		return fmt.Errorf("unexpected binding engine %T", binding.Validator.Engine())
	}
	return validator.Register(engine, model.ValidationRules...)
}
