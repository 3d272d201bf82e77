package validator

import (
	"encoding/json"
	stderrors "errors"
	"go/parser"
	"go/token"
	"strconv"
	"strings"
	"testing"

	playground "github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/clinic-scheduler/pkg/errors"
)

var upperRule = Rule{
	Tag: "upper",
	Fn: func(fl playground.FieldLevel) bool {
		s := fl.Field().String()
		return s == strings.ToUpper(s)
	},
	Message: "must be upper case",
}

type booking struct {
	Code     string   `json:"code" binding:"required,upper"`
	Owner    string   `json:"owner_id" binding:"required,uuid"`
	Seats    int      `json:"seats" binding:"required,min=1,max=8"`
	Label    string   `json:"label" binding:"omitempty,max=5"`
	Price    *float64 `json:"price" binding:"omitempty,min=0"`
	Internal string   `json:"-" binding:"omitempty,max=1"`
}

func validBooking() booking {
	return booking{Code: "ABC", Owner: "5a2d8a2e-6a0e-4c39-9a53-6f0a2c5b7e11", Seats: 2}
}

func fieldsOf(t *testing.T, err error) map[string]string {
	t.Helper()
	var appErr *errors.AppError
	require.True(t, stderrors.As(err, &appErr), "expected AppError, got %v", err)
	require.Equal(t, errors.ErrValidation, appErr.Code)
	out := map[string]string{}
	for _, f := range appErr.Fields {
		out[f.Field] = f.Message
	}
	return out
}

func TestValidateWithCustomRule(t *testing.T) {
	v := New(upperRule)
	assert.NoError(t, v.Validate(validBooking()))

	b := validBooking()
	b.Code = "abc"
	b.Owner = "nope"
	b.Seats = 9
	b.Label = "too long"
	price := -1.0
	b.Price = &price

	fields := fieldsOf(t, v.Validate(b))
	assert.Equal(t, "must be upper case", fields["code"])
	assert.Equal(t, "must be a valid UUID", fields["owner_id"])
	assert.Equal(t, "must be at most 8", fields["seats"])
	assert.Equal(t, "may not be greater than 5 characters", fields["label"])
	assert.Equal(t, "must be at least 0", fields["price"])
}

func TestValidateRequiredAndHiddenFields(t *testing.T) {
	fields := fieldsOf(t, New(upperRule).Validate(booking{Internal: "xy"}))
	assert.Equal(t, "is required", fields["code"])
	assert.Equal(t, "is required", fields["seats"])
	assert.Contains(t, fields, "Internal", "json:\"-\" falls back to the Go field name")
}

func TestRegisterRejectsEmptyTag(t *testing.T) {
	engine := playground.New()
	err := Register(engine, Rule{Tag: "", Fn: upperRule.Fn})
	assert.Error(t, err)
}

func TestTranslateJSONErrors(t *testing.T) {
	var b booking
	err := json.Unmarshal([]byte(`{"seats": "two"}`), &b)
	appErr := Translate(err)
	assert.Equal(t, errors.ErrValidation, appErr.Code)
	assert.Equal(t, "seats", appErr.Fields[0].Field)

	err = json.Unmarshal([]byte(`{"seats": `), &b)
	assert.Equal(t, errors.ErrBadRequest, Translate(err).Code)

	assert.Nil(t, Translate(nil))
}

func TestPackageHasNoInternalImports(t *testing.T) {
	f, err := parser.ParseFile(token.NewFileSet(), "validator.go", nil, parser.ImportsOnly)
	require.NoError(t, err)
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		require.NoError(t, err)
		assert.NotContains(t, path, "/internal/", "domain rules belong to their own package")
	}
}
