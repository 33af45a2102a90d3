package service

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/qs3c/ailab_server/internal/model/dto"
)

// FieldViolation 单个字段的校验失败
type FieldViolation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// ValidationError 一次性返回全部不合法字段
type ValidationError struct {
	Fields []FieldViolation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.Field + ": " + f.Message
	}
	return "参数校验失败: " + strings.Join(parts, "; ")
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.SetTagName("binding")

	// 错误中使用 JSON 字段名
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		if name == "" {
			return fld.Name
		}
		return name
	})

	// 返回指针：nil 表示缺省或 null，由 omitempty 跳过；显式的 0 仍参与 min 校验
	v.RegisterCustomTypeFunc(func(field reflect.Value) interface{} {
		switch n := field.Interface().(type) {
		case dto.Nullable[int]:
			return n.Value
		case dto.Nullable[float64]:
			return n.Value
		case dto.Nullable[string]:
			return n.Value
		}
		return nil
	}, dto.Nullable[int]{}, dto.Nullable[float64]{}, dto.Nullable[string]{})

	return v
}

// validateStruct 校验请求结构体，失败时返回 *ValidationError
func validateStruct(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make([]FieldViolation, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, FieldViolation{
			Field:   fieldPath(fe.Namespace()),
			Rule:    fe.Tag(),
			Message: violationMessage(fe),
		})
	}
	return &ValidationError{Fields: fields}
}

// fieldPath 去掉最外层结构体名：CreateExperimentRequest.targets[0].label -> targets[0].label
func fieldPath(namespace string) string {
	if i := strings.Index(namespace, "."); i >= 0 {
		return namespace[i+1:]
	}
	return namespace
}

func violationMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required", "required_without":
		return "is required"
	case "min":
		return boundMessage("at least", fe)
	case "max":
		return boundMessage("at most", fe)
	case "url":
		return "must be a valid URL"
	case "uuid":
		return "must be a valid id"
	case "email":
		return "must be a valid email"
	case "oneof":
		return "must be one of " + fe.Param()
	}
	return "is invalid"
}

// StructValidator 适配 gin 的 binding.StructValidator，让 HTTP 绑定和服务层使用同一套规则
type StructValidator struct{}

func (StructValidator) ValidateStruct(obj interface{}) error {
	if obj == nil {
		return nil
	}
	value := reflect.ValueOf(obj)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return nil
		}
		value = value.Elem()
	}
	if value.Kind() != reflect.Struct {
		return nil
	}
	return validateStruct(obj)
}

func (StructValidator) Engine() interface{} {
	return validate
}

func boundMessage(bound string, fe validator.FieldError) string {
	switch fe.Kind() {
	case reflect.Slice, reflect.Array:
		return fmt.Sprintf("must contain %s %s items", bound, fe.Param())
	case reflect.String:
		return fmt.Sprintf("must be %s %s characters", bound, fe.Param())
	}
	return fmt.Sprintf("must be %s %s", bound, fe.Param())
}

func tooManyTargets(max int) *ValidationError {
	return &ValidationError{Fields: []FieldViolation{{
		Field:   "targets",
		Rule:    "max",
		Message: fmt.Sprintf("must contain at most %d items", max),
	}}}
}
