// All global custom validations in CareCast are defined here.
// These validations are allowed to be used anywhere in the application.

package validations

import (
	"CareCast/pkg/log"
	"context"
	"time"

	"github.com/asaskevich/govalidator"
)

func RegisterCustomValidations(ctx context.Context, logger log.Logger) {
	// This global validation doesn't allow whitespace in input.
	govalidator.TagMap["nospace"] = govalidator.Validator(func(str string) bool {
		return !govalidator.HasWhitespace(str)
	})
	// Timestamps on the wire are ISO-8601. Empty is allowed here, the relay
	// stamps receipt time on uploads that carry none.
	govalidator.TagMap["iso8601"] = govalidator.Validator(func(str string) bool {
		if str == "" {
			return true
		}
		_, terr := time.Parse(time.RFC3339, str)
		return terr == nil
	})
}
