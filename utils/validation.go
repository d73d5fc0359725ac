package utils

import (
	"github.com/go-playground/validator/v10"

	"example.com/wordweave/services/event/domain"
)

var validate *validator.Validate

func init() {
	validate = validator.New()
	validate.RegisterValidation("aggregate_type", func(fl validator.FieldLevel) bool {
		return domain.IsValidAggregateType(fl.Field().String())
	})
	validate.RegisterValidation("event_type", func(fl validator.FieldLevel) bool {
		aggregateType := domain.AggregateFromEventType(fl.Field().String())
		return domain.IsValidEventType(aggregateType, fl.Field().String())
	})
}

// ValidateStruct validates a struct using validation tags
func ValidateStruct(s interface{}) error {
	return validate.Struct(s)
}
