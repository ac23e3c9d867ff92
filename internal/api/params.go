package api

import (
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/roach88/annostore/internal/annotations"
)

// writeParams are the query parameters of a write.
type writeParams struct {
	IDField     string   `json:"id_field" validate:"omitempty,fieldname"`
	Version     string   `json:"version" validate:"omitempty,max=64"`
	Conditional []string `json:"conditional" validate:"dive,fieldname"`
	Replace     bool     `json:"replace"`
}

// readParams are the query parameters of fetch and query requests.
type readParams struct {
	IDField string `json:"id_field" validate:"omitempty,fieldname"`
	Version string `json:"version" validate:"omitempty,max=64"`
	Changes bool   `json:"changes"`
	OnlyID  bool   `json:"onlyid"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	_ = v.RegisterValidation("fieldname", validateFieldName)
	return v
}

// validateFieldName accepts names that are not reserved and hold no
// quote or backslash characters.
func validateFieldName(fl validator.FieldLevel) bool {
	name := fl.Field().String()
	return name != "" && !strings.HasPrefix(name, "_") && !strings.ContainsAny(name, "\"'\\")
}

func (s *Server) parseWriteParams(q url.Values) (writeParams, error) {
	p := writeParams{
		IDField: q.Get("id_field"),
		Version: q.Get("version"),
	}
	if c := q.Get("conditional"); c != "" {
		for _, f := range strings.Split(c, ",") {
			p.Conditional = append(p.Conditional, strings.TrimSpace(f))
		}
	}
	var err error
	if p.Replace, err = boolParam(q, "replace"); err != nil {
		return p, err
	}
	return p, s.check(p)
}

func (s *Server) parseReadParams(q url.Values) (readParams, error) {
	p := readParams{
		IDField: q.Get("id_field"),
		Version: q.Get("version"),
	}
	var err error
	if p.Changes, err = boolParam(q, "changes"); err != nil {
		return p, err
	}
	if p.OnlyID, err = boolParam(q, "onlyid"); err != nil {
		return p, err
	}
	return p, s.check(p)
}

func (s *Server) check(p any) error {
	err := s.validate.Struct(p)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &annotations.Error{
			Code:    annotations.CodeInvalidRequest,
			Field:   fe.Field(),
			Message: fmt.Sprintf("%s fails %q", fe.Field(), fe.Tag()),
		}
	}
	return &annotations.Error{Code: annotations.CodeInvalidRequest, Message: err.Error()}
}

func boolParam(q url.Values, name string) (bool, error) {
	raw := q.Get(name)
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, &annotations.Error{Code: annotations.CodeInvalidRequest, Message: fmt.Sprintf("parameter %s: %q is not a boolean", name, raw)}
	}
	return b, nil
}
