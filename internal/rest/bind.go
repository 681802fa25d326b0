// Package rest binds controller parameters declared through annotations.
//
// A struct field annotated with query_param reads the URL query, one with
// request_param reads the form or JSON body. A class-level pagination
// annotation fills any field of type Page from the start and count query
// parameters. Bound values are then checked with the validator tags of the
// struct.
package rest

import (
	"fmt"
	"mime"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"

	"bbkernel/internal/annotation"
	"bbkernel/internal/apperr"
)

// Pagination query parameter names.
const (
	StartParam = "start"
	CountParam = "count"
)

// Page receives pagination bounds.
type Page struct {
	Start int `json:"start"`
	Count int `json:"count"`
}

var (
	pageType = reflect.TypeOf(Page{})
	json     = jsoniter.Config{UseNumber: true}.Froze()
	validate = newValidator()
)

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// Bind fills dst, a pointer to a struct, from r.
func Bind(r *http.Request, dst any, reader annotation.Reader) error {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return apperr.Newf(apperr.CodeInvalidArgument, "bind target must be a non-nil struct pointer, got %T", dst)
	}
	sv := rv.Elem()
	st := sv.Type()
	src := &source{r: r}

	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		if f.Name == "_" || !f.IsExported() {
			continue
		}
		anns, err := reader.PropertyAnnotations(st, f.Name)
		if err != nil {
			return err
		}
		for _, a := range anns {
			var (
				name, def, rules string
				values           []string
				found            bool
			)
			switch p := a.(type) {
			case annotation.QueryParam:
				name, def, rules = p.Name, p.Default, p.Requirements
				values, found = src.query(name)
			case annotation.RequestParam:
				name, def, rules = p.Name, p.Default, p.Requirements
				values, found, err = src.body(name)
				if err != nil {
					return err
				}
			default:
				continue
			}
			if !found && def != "" {
				values, found = []string{def}, true
			}
			if rules != "" {
				if err := checkRules(name, first(values), rules); err != nil {
					return err
				}
			}
			if !found {
				continue
			}
			if err := assign(sv.Field(i), values); err != nil {
				return apperr.Wrap(apperr.CodeBadRequest, err, fmt.Sprintf("parameter %q", name))
			}
		}
	}

	classAnns, err := reader.ClassAnnotations(st)
	if err != nil {
		return err
	}
	if p, ok := annotation.First[annotation.Pagination](classAnns); ok {
		page, err := paginate(r, p)
		if err != nil {
			return err
		}
		for i := 0; i < st.NumField(); i++ {
			if st.Field(i).Type == pageType && sv.Field(i).CanSet() {
				sv.Field(i).Set(reflect.ValueOf(page))
			}
		}
	}

	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

// Validate checks the validate tags of v, a struct or struct pointer.
func Validate(v any) error {
	if err := validate.Struct(v); err != nil {
		return validationError(err)
	}
	return nil
}

func paginate(r *http.Request, p annotation.Pagination) (Page, error) {
	page := Page{Start: p.StartDefault, Count: p.CountDefault}
	q := r.URL.Query()
	if v := q.Get(StartParam); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return page, apperr.Newf(apperr.CodeBadRequest, "%s must be a non-negative integer", StartParam)
		}
		page.Start = n
	}
	if v := q.Get(CountParam); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return page, apperr.Newf(apperr.CodeBadRequest, "%s must be an integer", CountParam)
		}
		page.Count = n
	}
	if page.Count < p.CountMin || page.Count > p.CountMax {
		return page, apperr.Newf(apperr.CodeBadRequest, "%s must be between %d and %d", CountParam, p.CountMin, p.CountMax)
	}
	return page, nil
}

func checkRules(name, value, rules string) error {
	if err := validate.Var(value, rules); err != nil {
		var ve validator.ValidationErrors
		if asValidation(err, &ve) && len(ve) > 0 {
			return apperr.Newf(apperr.CodeBadRequest, "parameter %q: %s", name, message(ve[0]))
		}
		return apperr.Wrap(apperr.CodeInvalidArgument, err, fmt.Sprintf("parameter %q: requirements %q", name, rules))
	}
	return nil
}

func validationError(err error) error {
	var ve validator.ValidationErrors
	if !asValidation(err, &ve) {
		return apperr.Wrap(apperr.CodeInvalidArgument, err, "validate")
	}
	msgs := make([]string, 0, len(ve))
	for _, fe := range ve {
		msgs = append(msgs, fe.Field()+": "+message(fe))
	}
	return apperr.New(apperr.CodeBadRequest, strings.Join(msgs, "; "))
}

func asValidation(err error, out *validator.ValidationErrors) bool {
	ve, ok := err.(validator.ValidationErrors)
	if ok {
		*out = ve
	}
	return ok
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "min", "gte":
		return "must be at least " + fe.Param()
	case "max", "lte":
		return "must be at most " + fe.Param()
	case "gt":
		return "must be greater than " + fe.Param()
	case "oneof":
		return "must be one of: " + strings.ReplaceAll(fe.Param(), " ", ", ")
	}
	if fe.Param() != "" {
		return fmt.Sprintf("failed %s=%s", fe.Tag(), fe.Param())
	}
	return "failed " + fe.Tag()
}

func first(values []string) string {
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// source reads request parameters, decoding the body at most once.
type source struct {
	r      *http.Request
	parsed bool
	form   map[string][]string
}

func (s *source) query(name string) ([]string, bool) {
	v, ok := s.r.URL.Query()[name]
	return v, ok && len(v) > 0
}

func (s *source) body(name string) ([]string, bool, error) {
	if !s.parsed {
		if err := s.parse(); err != nil {
			return nil, false, err
		}
	}
	v, ok := s.form[name]
	return v, ok && len(v) > 0, nil
}

func (s *source) parse() error {
	s.parsed = true
	s.form = map[string][]string{}
	if s.r.Body == nil || s.r.Body == http.NoBody {
		return nil
	}
	mt, _, _ := mime.ParseMediaType(s.r.Header.Get("Content-Type"))
	if mt == "application/json" {
		var body map[string]any
		if err := json.NewDecoder(s.r.Body).Decode(&body); err != nil {
			return apperr.Wrap(apperr.CodeBadRequest, err, "invalid JSON body")
		}
		for k, v := range body {
			s.form[k] = stringify(v)
		}
		return nil
	}
	if err := s.r.ParseForm(); err != nil {
		return apperr.Wrap(apperr.CodeBadRequest, err, "invalid form body")
	}
	s.form = s.r.PostForm
	return nil
}

func stringify(v any) []string {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			out = append(out, stringify(item)...)
		}
		return out
	case string:
		return []string{t}
	}
	return []string{fmt.Sprint(v)}
}
