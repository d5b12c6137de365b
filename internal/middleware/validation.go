package middleware

import (
	"reflect"
	"strings"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/jwalitptl/carebridge/internal/model"
)

var registerOnce sync.Once

// RegisterValidators installs the custom binding tags on gin's validator and
// reports fields by their json name.
func RegisterValidators() {
	registerOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			return
		}
		if err := v.RegisterValidation("transfer_type", validateTransferType); err != nil {
			panic(err)
		}
		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "" || name == "-" {
				if form := strings.SplitN(fld.Tag.Get("form"), ",", 2)[0]; form != "" {
					return form
				}
				return fld.Name
			}
			return name
		})
	})
}

func validateTransferType(fl validator.FieldLevel) bool {
	return model.TransferType(fl.Field().String()).Valid()
}
