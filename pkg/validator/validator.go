package validator

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"reflect"
	"strings"
	"sync"

	playground "github.com/go-playground/validator/v10"

	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
)

// TagName matches gin's binding tag so request structs validate the same
// way inside and outside the HTTP layer.
const TagName = "binding"

// Validator provides validation functionality
type Validator interface {
	Validate(interface{}) error
}

type validator struct {
	engine *playground.Validate
}

// Rule is a custom tag with the message reported when it fails.
type Rule struct {
	Tag     string
	Fn      playground.Func
	Message string
}

var (
	messagesMu sync.RWMutex
	messages   = map[string]string{
		"required": "is required",
		"uuid":     "must be a valid UUID",
	}
)

// New returns a validator reading the binding tag with rules installed.
func New(rules ...Rule) Validator {
	engine := playground.New()
	engine.SetTagName(TagName)
	if err := Register(engine, rules...); err != nil {
		panic(err)
	}
	return &validator{engine: engine}
}

// Register installs rules and JSON field naming on engine. Rule messages are
// shared by Translate.
func Register(engine *playground.Validate, rules ...Rule) error {
	for _, r := range rules {
		if err := engine.RegisterValidation(r.Tag, r.Fn); err != nil {
			return fmt.Errorf("failed to register %s validator: %w", r.Tag, err)
		}
		if r.Message != "" {
			messagesMu.Lock()
			messages[r.Tag] = r.Message
			messagesMu.Unlock()
		}
	}
	engine.RegisterTagNameFunc(fieldName)
	return nil
}

func fieldName(fld reflect.StructField) string {
	for _, tag := range []string{"json", "form"} {
		name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
		if name == "-" {
			return fld.Name
		}
		if name != "" {
			return name
		}
	}
	return fld.Name
}

func (v *validator) Validate(obj interface{}) error {
	if err := v.engine.Struct(obj); err != nil {
		return Translate(err)
	}
	return nil
}

// Translate converts binding and validation failures into an AppError with
// one entry per rejected field.
func Translate(err error) *errors.AppError {
	if err == nil {
		return nil
	}

	var verrs playground.ValidationErrors
	if stderrors.As(err, &verrs) {
		fields := make([]errors.FieldError, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, errors.FieldError{
				Field:   fe.Field(),
				Message: message(fe),
			})
		}
		return errors.NewValidation(fields...)
	}

	var typeErr *json.UnmarshalTypeError
	if stderrors.As(err, &typeErr) {
		return errors.NewFieldValidation(typeErr.Field, fmt.Sprintf("must be of type %s", typeErr.Type))
	}

	var syntaxErr *json.SyntaxError
	if stderrors.As(err, &syntaxErr) || stderrors.Is(err, io.EOF) || stderrors.Is(err, io.ErrUnexpectedEOF) {
		return errors.NewBadRequest("malformed request body", err)
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return errors.NewBadRequest(err.Error(), err)
}

func message(fe playground.FieldError) string {
	messagesMu.RLock()
	msg, ok := messages[fe.Tag()]
	messagesMu.RUnlock()
	if ok {
		return msg
	}
	numeric := false
	switch fe.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		numeric = true
	}
	switch fe.Tag() {
	case "min":
		if numeric {
			return "must be at least " + fe.Param()
		}
		return fmt.Sprintf("must be at least %s characters", fe.Param())
	case "max":
		if numeric {
			return "must be at most " + fe.Param()
		}
		return fmt.Sprintf("may not be greater than %s characters", fe.Param())
	case "required_if":
		parts := strings.Fields(fe.Param())
		if len(parts) == 2 {
			return fmt.Sprintf("is required when %s is %s", strings.ToLower(parts[0]), parts[1])
		}
		return "is required"
	case "oneof":
		return "must be one of " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	return fmt.Sprintf("failed on the %s rule", fe.Tag())
}
