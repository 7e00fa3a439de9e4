// SPDX-FileCopyrightText: Copyright 2025 Better Auth Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/json"
	"net/http"
	"net/mail"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Bind decodes the request payload into T and applies the struct's validate
// tags. JSON bodies decode directly; form posts and GET query strings are
// coerced field-wise through the same json tags. Failures surface as 400
// INVALID_REQUEST.
func Bind[T any](r *Request) (*T, error) {
	v := new(T)
	if err := bindInto(r, v); err != nil {
		return nil, err
	}
	if err := Validate(v); err != nil {
		return nil, err
	}
	return v, nil
}

func bindInto(r *Request, v any) error {
	if r.Raw.Method == http.MethodGet {
		return decodeValues(r.Raw.URL.Query(), v)
	}

	body := r.Body()
	ct := r.Raw.Header.Get("Content-Type")
	if strings.Contains(ct, "application/json") || (len(body) > 0 && (body[0] == '{' || body[0] == '[')) {
		if len(body) == 0 {
			return nil
		}
		if err := json.Unmarshal(body, v); err != nil {
			return ErrBadRequest(CodeInvalidRequest, "Malformed request body")
		}
		return nil
	}
	return decodeValues(r.Form(), v)
}

// decodeValues maps flat form/query values onto a DTO, coercing strings to
// the field types the json tags declare.
func decodeValues(values map[string][]string, v any) error {
	flat := make(map[string]any, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			flat[key] = vals[0]
		}
	}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           v,
		TagName:          "json",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(flat); err != nil {
		return ErrBadRequest(CodeInvalidRequest, "Malformed request body")
	}
	return nil
}

// Validate applies a struct's validate tags: required, email, min=N, max=N,
// and oneof=a b c. Only the rules the request DTOs need; anything fancier
// belongs in the handler.
func Validate(v any) error {
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if rv.Kind() != reflect.Struct {
		return nil
	}

	rt := rv.Type()
	for i := range rt.NumField() {
		field := rt.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("validate")
		if tag == "" || tag == "-" {
			continue
		}
		if err := validateField(fieldName(field), rv.Field(i), tag); err != nil {
			return err
		}
	}
	return nil
}

func fieldName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" && tag != "-" {
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name
		}
	}
	return field.Name
}

func validateField(name string, fv reflect.Value, tag string) error {
	set := !fv.IsZero()
	for fv.Kind() == reflect.Pointer {
		if fv.IsNil() {
			break
		}
		fv = fv.Elem()
	}

	for rule := range strings.SplitSeq(tag, ",") {
		key, arg, _ := strings.Cut(rule, "=")
		switch key {
		case "required":
			if !set {
				return ErrBadRequest(CodeInvalidRequest, name+" is required")
			}
		case "email":
			if s := fv.String(); s != "" {
				if _, err := mail.ParseAddress(s); err != nil || strings.ContainsAny(s, " <>") {
					return ErrBadRequest(CodeInvalidRequest, "Invalid email")
				}
			}
		case "min":
			n, _ := strconv.Atoi(arg)
			if s := fv.String(); s != "" && len(s) < n {
				return ErrBadRequest(CodeInvalidRequest, name+" is too short")
			}
		case "max":
			n, _ := strconv.Atoi(arg)
			if s := fv.String(); len(s) > n {
				return ErrBadRequest(CodeInvalidRequest, name+" is too long")
			}
		case "oneof":
			s := fv.String()
			if s == "" {
				continue
			}
			allowed := strings.Fields(arg)
			ok := false
			for _, a := range allowed {
				if s == a {
					ok = true
					break
				}
			}
			if !ok {
				return ErrBadRequest(CodeInvalidRequest, "Invalid "+name)
			}
		}
	}
	return nil
}
