package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ProductForm é o formulário multipart de criação e edição de produto.
// variations chega como uma lista JSON: [{"size":"M","color":"","stock":3}]
type ProductForm struct {
	Name                   string                `json:"name" validate:"required"`
	PriceInCents           int64                 `json:"priceInCents" validate:"gt=0"`
	Description            string                `json:"description" validate:"required"`
	IsAvailableForPurchase bool                  `json:"isAvailableForPurchase"`
	Variations             []VariationInput      `json:"variations" validate:"dive"`
	Image                  *multipart.FileHeader `json:"-"`
}

// FieldErrors mapeia o nome do campo para a mensagem de erro
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for field, msg := range e {
		parts = append(parts, field+": "+msg)
	}
	return "invalid form: " + strings.Join(parts, "; ")
}

var formValidator = newFormValidator()

func newFormValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// DecodeProductForm lê e valida o formulário; imageRequired vale para a criação
func DecodeProductForm(form *multipart.Form, imageRequired bool) (*ProductForm, error) {
	fieldErrs := FieldErrors{}
	out := &ProductForm{
		Name:        strings.TrimSpace(formValue(form, "name")),
		Description: strings.TrimSpace(formValue(form, "description")),
	}

	// 1. Campos escalares
	if raw := formValue(form, "priceInCents"); raw != "" {
		price, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			fieldErrs["priceInCents"] = "priceInCents must be a whole number of cents"
		}
		out.PriceInCents = price
	}

	if raw := formValue(form, "isAvailableForPurchase"); raw != "" {
		available, err := strconv.ParseBool(raw)
		if err != nil {
			fieldErrs["isAvailableForPurchase"] = "isAvailableForPurchase must be true or false"
		}
		out.IsAvailableForPurchase = available
	}

	// 2. Lista de variações
	if raw := formValue(form, "variations"); strings.TrimSpace(raw) != "" {
		if err := json.Unmarshal([]byte(raw), &out.Variations); err != nil {
			fieldErrs["variations"] = "variations must be a JSON list of {size, color, stock}"
		}
	}

	// 3. Imagem
	if form != nil {
		if files := form.File["image"]; len(files) > 0 && files[0].Size > 0 {
			out.Image = files[0]
		}
	}
	if imageRequired && out.Image == nil {
		fieldErrs["image"] = "image is required"
	}

	// 4. Regras declaradas na struct
	if err := formValidator.Struct(out); err != nil {
		var verrs FieldErrors
		if !errors.As(validationFieldErrors(err), &verrs) {
			return nil, err
		}
		for field, msg := range verrs {
			if _, exists := fieldErrs[field]; !exists {
				fieldErrs[field] = msg
			}
		}
	}

	if _, exists := fieldErrs["variations"]; !exists {
		if err := validateVariationInputs(out.Variations); err != nil {
			fieldErrs["variations"] = err.Error()
		}
	}

	if len(fieldErrs) > 0 {
		return nil, fieldErrs
	}
	return out, nil
}

// Input converte o formulário na entrada do caso de uso de estoque
func (f *ProductForm) Input(imagePath string) NewProductInput {
	return NewProductInput{
		Name:                   f.Name,
		PriceInCents:           f.PriceInCents,
		ImagePath:              imagePath,
		Description:            f.Description,
		IsAvailableForPurchase: f.IsAvailableForPurchase,
		Variations:             f.Variations,
	}
}

func formValue(form *multipart.Form, key string) string {
	if form == nil || len(form.Value[key]) == 0 {
		return ""
	}
	return form.Value[key][0]
}

// validationFieldErrors converte erros do validator em FieldErrors; outros erros passam direto
func validationFieldErrors(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	return formatValidationErrors(verrs)
}

// formatValidationErrors converte os erros do validator em mensagens por campo
func formatValidationErrors(verrs validator.ValidationErrors) FieldErrors {
	out := make(FieldErrors, len(verrs))
	for _, fe := range verrs {
		field := fe.Namespace()
		if i := strings.Index(field, "."); i >= 0 {
			field = field[i+1:]
		}

		switch fe.Tag() {
		case "required":
			out[field] = fmt.Sprintf("%s is required", fe.Field())
		case "gt":
			out[field] = fmt.Sprintf("%s must be greater than %s", fe.Field(), fe.Param())
		case "gte":
			out[field] = fmt.Sprintf("%s must be greater than or equal to %s", fe.Field(), fe.Param())
		case "email":
			out[field] = fmt.Sprintf("%s must be a valid email", fe.Field())
		default:
			out[field] = fmt.Sprintf("%s is invalid", fe.Field())
		}
	}
	return out
}
