package middleware

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	"github.com/devflow/devflow-api/internal/model"
)

// ValidationError represents a validation error
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type ValidationConfig struct {
	CustomValidators    map[string]validator.Func
	CustomErrorMessages map[string]string
}

func DefaultValidationConfig() ValidationConfig {
	return ValidationConfig{
		CustomValidators: map[string]validator.Func{
			"notiftype": validateNotificationType,
		},
		CustomErrorMessages: map[string]string{
			"required":  "Field is required",
			"uuid":      "Must be a UUID",
			"min":       "Value is too small",
			"max":       "Value is too large",
			"notiftype": "Unknown notification type",
		},
	}
}

func validateNotificationType(fl validator.FieldLevel) bool {
	return model.NotificationType(fl.Field().String()).Valid()
}

// Validation renders binding errors that handlers attached with
// gin.ErrorTypeBind as a 400 response.
func Validation(config ValidationConfig) gin.HandlerFunc {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		for tag, fn := range config.CustomValidators {
			if err := v.RegisterValidation(tag, fn); err != nil {
				panic(err)
			}
		}

		v.RegisterTagNameFunc(func(fld reflect.StructField) string {
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
		})
	}

	return func(c *gin.Context) {
		c.Next()

		bindErrors := c.Errors.ByType(gin.ErrorTypeBind)
		if len(bindErrors) == 0 || c.Writer.Written() {
			return
		}

		var validationErrors []ValidationError
		for _, err := range bindErrors {
			var errs validator.ValidationErrors
			if !errors.As(err.Err, &errs) {
				continue
			}
			for _, e := range errs {
				msg := config.CustomErrorMessages[e.Tag()]
				if msg == "" {
					msg = e.Error()
				}
				validationErrors = append(validationErrors, ValidationError{
					Field:   e.Field(),
					Message: msg,
				})
			}
		}

		body := gin.H{"status": "error", "message": "invalid request"}
		if len(validationErrors) > 0 {
			body["errors"] = validationErrors
		}
		c.AbortWithStatusJSON(http.StatusBadRequest, body)
	}
}
